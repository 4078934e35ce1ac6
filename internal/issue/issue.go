// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"cmp"
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"
)

// Id identifies an entry of the issue catalog.
//
//nolint:revive // Id matches the catalog's historical naming.
type Id int

const (
	PythonNotFoundId Id = iota + 1
	EnvironmentCreationFailedId
	EnvironmentActivationFailedId
	ManifestNotFoundId
	DependencyInstallFailedId
	EntryScriptNotFoundId
	IconNotFoundId
	PackagingFailedId
	StagingFailedId
	BuildLockedId
	ConfigLoadFailedId
	ContainerEngineNotFoundId
)

type (
	// MarkdownMsg is markdown text rendered for the user.
	MarkdownMsg string

	// HttpLink is a documentation or external reference.
	//
	//nolint:revive // kept consistent with Id.
	HttpLink string

	// Issue is a catalog entry with longer remediation guidance.
	Issue struct {
		id       Id
		mdMsg    MarkdownMsg
		docLinks []HttpLink
		extLinks []HttpLink
	}
)

// Id returns the catalog identifier.
func (i *Issue) Id() Id {
	return i.id
}

// MarkdownMsg returns the raw markdown body.
func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

// DocLinks returns a copy of the documentation links.
func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

// ExtLinks returns a copy of the external links.
func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

// Render renders the issue with the named glamour style ("dark", "light", "notty", ...).
func (i *Issue) Render(stylePath string) (string, error) {
	var md strings.Builder
	md.WriteString(string(i.mdMsg))
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		md.WriteString("\n\n## See also\n")
		for _, link := range i.docLinks {
			md.WriteString("- <" + string(link) + ">\n")
		}
		for _, link := range i.extLinks {
			md.WriteString("- <" + string(link) + ">\n")
		}
	}
	return render(md.String(), stylePath)
}

var (
	render = glamour.Render

	pythonNotFoundIssue = &Issue{
		id: PythonNotFoundId,
		mdMsg: `
# No Python interpreter found!

pybundle needs a base interpreter to create the isolated environment.

## Things you can try:
- Install Python 3 and make sure it is on your PATH
- Point pybundle at a specific interpreter:
~~~
$ pybundle build --python /usr/bin/python3.12
~~~
- Or set it once in ` + "`pybundle.cue`" + `:
~~~cue
python: "C:/Python312/python.exe"
~~~`,
		extLinks: []HttpLink{"https://docs.python.org/3/library/venv.html"},
	}

	environmentCreationFailedIssue = &Issue{
		id: EnvironmentCreationFailedId,
		mdMsg: `
# Failed to create the environment!

` + "`python -m venv`" + ` did not complete successfully. Nothing else was attempted.

## Common causes:
- No write permission on the project directory
- The ` + "`venv`" + ` module is missing (Debian/Ubuntu ship it as ` + "`python3-venv`" + `)
- A file with the same name as the environment directory already exists

## Things you can try:
~~~
$ pybundle env clean
$ pybundle --verbose env ensure
~~~`,
		extLinks: []HttpLink{"https://docs.python.org/3/library/venv.html"},
	}

	environmentActivationFailedIssue = &Issue{
		id: EnvironmentActivationFailedId,
		mdMsg: `
# The environment is unusable!

The environment directory exists but its interpreter could not be resolved.
This happens when the directory was created by another Python version, copied from
another machine, or partially deleted.

## Things you can try:
- Recreate it from scratch:
~~~
$ pybundle env clean
$ pybundle build
~~~`,
	}

	manifestNotFoundIssue = &Issue{
		id: ManifestNotFoundId,
		mdMsg: `
# Dependency manifest not found!

The build installs dependencies from a manifest (` + "`requirements.txt`" + ` by default).

## Things you can try:
- Create an empty manifest if the script has no dependencies:
~~~
$ touch requirements.txt
~~~
- Or point pybundle at another file:
~~~
$ pybundle build --manifest requirements/prod.txt
~~~`,
	}

	dependencyInstallFailedIssue = &Issue{
		id: DependencyInstallFailedId,
		mdMsg: `
# Dependency installation failed!

pip exited with a non-zero status. In strict mode the build stops here so that
no executable is produced from an incomplete environment.

## Things you can try:
- Check the package names and pinned versions in the manifest
- Retry with verbose output to see pip's full log:
~~~
$ pybundle --verbose build
~~~
- Keep the historical behavior and package anyway:
~~~
$ pybundle build --strictness lenient
~~~`,
		extLinks: []HttpLink{"https://pip.pypa.io/en/stable/user_guide/"},
	}

	entryScriptNotFoundIssue = &Issue{
		id: EntryScriptNotFoundId,
		mdMsg: `
# Entry script not found!

The packaging tool needs the script that will become the executable.

## Things you can try:
~~~
$ pybundle build --entry src/main.py
~~~`,
	}

	iconNotFoundIssue = &Issue{
		id: IconNotFoundId,
		mdMsg: `
# Icon resource not found!

The configured icon does not exist. Either add it or disable the icon:
~~~cue
package: {
  icon: ""
}
~~~`,
	}

	packagingFailedIssue = &Issue{
		id: PackagingFailedId,
		mdMsg: `
# Packaging failed!

PyInstaller did not produce the expected executable.

## Common causes:
- PyInstaller is not listed in the manifest
- A hidden import could not be resolved
- Antivirus software removed the output file

## Things you can try:
- Add ` + "`pyinstaller`" + ` to the manifest
- Inspect the full PyInstaller log:
~~~
$ pybundle --verbose build
~~~`,
		extLinks: []HttpLink{"https://pyinstaller.org/en/stable/when-things-go-wrong.html"},
	}

	stagingFailedIssue = &Issue{
		id: StagingFailedId,
		mdMsg: `
# Could not stage the executable!

The executable was built but copying it into the project root failed.
On Windows this usually means the previous build is still running.

## Things you can try:
- Close the running application and rebuild
- Check write permissions on the project directory`,
	}

	buildLockedIssue = &Issue{
		id: BuildLockedId,
		mdMsg: `
# Another build is running!

Builds of the same project are serialized with a lock file (` + "`.pybundle.lock`" + `).

## Things you can try:
- Wait for the other build to finish, or let this one wait:
~~~
$ pybundle build --wait
~~~`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

## Configuration sources (lowest to highest precedence):
1. Built-in defaults
2. ` + "`[tool.pybundle]`" + ` in pyproject.toml
3. The global config file (see ` + "`pybundle config path`" + `)
4. ` + "`pybundle.cue`" + ` in the project directory
5. ` + "`PYBUNDLE_*`" + ` environment variables
6. Command-line flags

## Example pybundle.cue:
~~~cue
entry: "watchdog_backup.py"
venv: "venv"
manifest: "requirements.txt"
package: {
  icon: "app.ico"
}
~~~`,
	}

	containerEngineNotFoundIssue = &Issue{
		id: ContainerEngineNotFoundId,
		mdMsg: `
# Container engine not found!

The container runtime needs Podman or Docker.

## Things you can try:
- Install Podman or Docker
- Switch back to the native runtime:
~~~
$ pybundle build --runtime native
~~~`,
		extLinks: []HttpLink{"https://podman.io", "https://docs.docker.com/get-docker/"},
	}

	issues = map[Id]*Issue{
		pythonNotFoundIssue.id:              pythonNotFoundIssue,
		environmentCreationFailedIssue.id:   environmentCreationFailedIssue,
		environmentActivationFailedIssue.id: environmentActivationFailedIssue,
		manifestNotFoundIssue.id:            manifestNotFoundIssue,
		dependencyInstallFailedIssue.id:     dependencyInstallFailedIssue,
		entryScriptNotFoundIssue.id:         entryScriptNotFoundIssue,
		iconNotFoundIssue.id:                iconNotFoundIssue,
		packagingFailedIssue.id:             packagingFailedIssue,
		stagingFailedIssue.id:               stagingFailedIssue,
		buildLockedIssue.id:                 buildLockedIssue,
		configLoadFailedIssue.id:            configLoadFailedIssue,
		containerEngineNotFoundIssue.id:     containerEngineNotFoundIssue,
	}
)

// Values returns every catalog entry ordered by Id.
func Values() []*Issue {
	out := maps.Values(issues)
	slices.SortFunc(out, func(a, b *Issue) int { return cmp.Compare(a.id, b.id) })
	return out
}

// Get returns the catalog entry for id, or nil.
func Get(id Id) *Issue {
	return issues[id]
}
