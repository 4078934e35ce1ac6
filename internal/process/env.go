// SPDX-License-Identifier: MPL-2.0

package process

import (
	"runtime"
	"slices"
	"strings"
)

// MergeEnv applies an overlay and a removal list to a base environment in
// "KEY=value" form. Keys are compared case-insensitively on Windows. The
// result is deterministic: base order is kept and new keys are appended sorted.
func MergeEnv(base []string, overlay map[string]string, unset []string) []string {
	result := make([]string, 0, len(base)+len(overlay))
	applied := make(map[string]bool, len(overlay))

	for _, e := range base {
		idx := strings.IndexByte(e, '=')
		if idx <= 0 {
			result = append(result, e)
			continue
		}
		name := e[:idx]
		if containsKey(unset, name) {
			continue
		}
		if key, ok := lookupKey(overlay, name); ok {
			if !applied[key] {
				result = append(result, name+"="+overlay[key])
				applied[key] = true
			}
			continue
		}
		result = append(result, e)
	}

	remaining := make([]string, 0, len(overlay))
	for k := range overlay {
		if !applied[k] {
			remaining = append(remaining, k)
		}
	}
	slices.Sort(remaining)
	for _, k := range remaining {
		result = append(result, k+"="+overlay[k])
	}

	return result
}

func lookupKey(m map[string]string, name string) (string, bool) {
	if _, ok := m[name]; ok {
		return name, true
	}
	if runtime.GOOS != "windows" {
		return "", false
	}
	for k := range m {
		if strings.EqualFold(k, name) {
			return k, true
		}
	}
	return "", false
}

func containsKey(keys []string, name string) bool {
	return slices.ContainsFunc(keys, func(k string) bool { return sameKey(k, name) })
}

func sameKey(a, b string) bool {
	if runtime.GOOS == "windows" {
		return strings.EqualFold(a, b)
	}
	return a == b
}
