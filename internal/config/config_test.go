package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/qobs-build/evoke/internal/builderr"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEnv(dir string) Env {
	return Env{
		TargetOS:   "linux",
		TargetArch: "amd64",
		Environ:    map[string]string{"CI": "1"},
		basedir:    dir,
	}
}

const sample = `
[project]
name = "demo"
search_paths = ["vendor"]
exclude = ["third_party/**"]

[build]
jobs = 6
toolset = "clang"
build_dir = "out/{{ target_os }}"
profile = "release"

[flags]
compile = ["-Wall"]
defines = { VERSION = "2", FAST = "" }

[flags.'target_os == "linux"']
compile = ["-pthread"]
links = ["m"]

[flags.'target_os == "windows"']
compile = ["/W4"]

[fetch]
fmt = "gh:fmtlib/fmt@11.0.2"

[fetch.'environ.CI == "1"']
ci = "gl:example/ci-headers"

[profile.size]
opt-level = "s"
`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(strings.NewReader(sample), testEnv(t.TempDir()))
	require.NoError(t, err)

	assert.Equal(t, "demo", cfg.Project.Name)
	assert.Equal(t, []string{"vendor"}, cfg.Project.SearchPaths)
	assert.Equal(t, 6, cfg.Build.Jobs)
	assert.Equal(t, "clang", cfg.Build.Toolset)
	assert.Equal(t, "out/linux", cfg.Build.BuildDir)

	assert.Equal(t, []string{"-Wall", "-pthread"}, cfg.Flags.Compile)
	assert.Equal(t, []string{"m"}, cfg.Flags.Links)
	assert.Equal(t, []string{"-Wall", "-pthread", "-DFAST", "-DVERSION=2"}, cfg.Flags.CompileFlags())

	assert.Equal(t, map[string]string{"fmt": "gh:fmtlib/fmt@11.0.2", "ci": "gl:example/ci-headers"}, cfg.Fetch)

	assert.Equal(t, []string{"debug", "release", "size"}, cfg.Profiles())
	p, ok := cfg.SelectedProfile("")
	require.True(t, ok)
	assert.Equal(t, "3", p.OptFlag())
	p, ok = cfg.SelectedProfile("size")
	require.True(t, ok)
	assert.Equal(t, "s", p.OptFlag())
}

func TestParseConfigErrors(t *testing.T) {
	env := testEnv(t.TempDir())

	_, err := ParseConfig(strings.NewReader("[build]\njobs = -1\n"), env)
	assert.ErrorIs(t, err, builderr.ErrConfiguration)

	_, err = ParseConfig(strings.NewReader("[build]\nprofile = \"nope\"\n"), env)
	assert.ErrorIs(t, err, builderr.ErrConfiguration)

	_, err = ParseConfig(strings.NewReader("[build\n"), env)
	assert.Error(t, err)

	_, err = ParseConfig(strings.NewReader("[project]\nname = \"{{ nope( }}\"\n"), env)
	assert.Error(t, err)
}

func TestParseConfigFromFileMissing(t *testing.T) {
	cfg, err := ParseConfigFromFile(filepath.Join(t.TempDir(), FileName), testEnv(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestPrebuild(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "config.h")
	require.NoError(t, os.WriteFile(target, []byte("#define LEVEL 1\n"), 0o644))

	dmp := diffmatchpatch.New()
	patch := dmp.PatchToText(dmp.PatchMake("#define LEVEL 1\n", "#define LEVEL 2\n"))

	cfg := Default()
	cfg.Project.Name = "demo"
	cfg.Project.Prebuild = `Patch("config.h", ` + quote(patch) + `) && ReadFile("config.h") contains "LEVEL 2"`
	require.NoError(t, cfg.RunPrebuild(testEnv(dir)))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "#define LEVEL 2\n", string(data))

	cfg.Project.Prebuild = `target_os == "plan9"`
	assert.ErrorContains(t, cfg.RunPrebuild(testEnv(dir)), "returned false")

	cfg.Project.Prebuild = `ReadFile("../escape.h") != ""`
	assert.ErrorContains(t, cfg.RunPrebuild(testEnv(dir)), "outside of project directory")
}

func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return `"` + r.Replace(s) + `"`
}
