// SPDX-License-Identifier: MPL-2.0

package config

import (
	"fmt"
	"os"

	"cuelang.org/go/cue/cuecontext"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// PyprojectFileName is the standard Python project metadata file.
const PyprojectFileName = "pyproject.toml"

// pyproject holds the parts of pyproject.toml pybundle reads.
type pyproject struct {
	Project struct {
		Name string `toml:"name"`
	} `toml:"project"`
	Tool struct {
		Pybundle map[string]any `toml:"pybundle"`
	} `toml:"tool"`
}

// loadPyprojectIntoViper merges [project].name as the artifact name and the
// [tool.pybundle] table, validated against #Config, into v.
func loadPyprojectIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := checkFileSize(data, maxConfigFileSize, path); err != nil {
		return err
	}

	var doc pyproject
	if err := toml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	if doc.Project.Name != "" {
		if err := v.MergeConfigMap(map[string]any{"artifact_name": doc.Project.Name}); err != nil {
			return fmt.Errorf("failed to merge config: %w", err)
		}
	}

	if len(doc.Tool.Pybundle) == 0 {
		return nil
	}

	ctx := cuecontext.New()
	value := ctx.Encode(doc.Tool.Pybundle)
	if value.Err() != nil {
		return formatCUEError(value.Err(), path)
	}
	configMap, err := validateAgainstSchema(ctx, value, path+" [tool.pybundle]")
	if err != nil {
		return err
	}
	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}
