package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Env is the environment visible to expressions in evoke.toml: conditional
// section keys, {{...}} templates and the prebuild program.
type Env struct {
	TargetOS   string            `expr:"target_os"`
	TargetArch string            `expr:"target_arch"`
	Environ    map[string]string `expr:"environ"`
	basedir    string
}

func NewEnv(basedir string) Env {
	environ := make(map[string]string)
	for _, e := range os.Environ() {
		if k, v, ok := strings.Cut(e, "="); ok {
			environ[k] = v
		}
	}

	return Env{
		TargetOS:   runtime.GOOS,
		TargetArch: runtime.GOARCH,
		Environ:    environ,
		basedir:    basedir,
	}
}

func (env Env) eval(expression string) (bool, error) {
	program, err := expr.Compile(expression, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, err
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}
	matched, _ := result.(bool)
	return matched, nil
}

// RunPrebuild evaluates project.prebuild. The program must return true.
func (cfg Config) RunPrebuild(env Env) error {
	if cfg.Project.Prebuild == "" {
		return nil
	}

	program, err := expr.Compile(cfg.Project.Prebuild, expr.Env(env))
	if err != nil {
		return fmt.Errorf("failed to compile prebuild script for project %q: %w", cfg.Project.Name, err)
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return fmt.Errorf("failed to run prebuild script for project %q: %w", cfg.Project.Name, err)
	}

	if result, ok := result.(bool); !ok || !result {
		return fmt.Errorf("prebuild script for project %q returned false\n%s", cfg.Project.Name, cfg.Project.Prebuild)
	}

	return nil
}

func (env Env) path(name string) (string, error) {
	full := filepath.Join(env.basedir, name)
	rel, err := filepath.Rel(env.basedir, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside of project directory %q", name, env.basedir)
	}
	return full, nil
}

// Patch applies a diff-match-patch patch to a file below the project root.
// It reports whether any hunk applied.
func (env Env) Patch(path, patchText string) (bool, error) {
	fullPath, err := env.path(path)
	if err != nil {
		return false, err
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return false, err
	}

	dmp := diffmatchpatch.New()
	patches, err := dmp.PatchFromText(patchText)
	if err != nil {
		return false, fmt.Errorf("invalid patch for %s: %w", path, err)
	}
	patchedText, results := dmp.PatchApply(patches, string(data))
	applied := false
	for _, ok := range results {
		applied = applied || ok
	}
	if !applied {
		return false, nil // nothing to write
	}

	if err := os.WriteFile(fullPath, []byte(patchedText), 0o644); err != nil {
		return false, err
	}
	return true, nil
}

func (env Env) ReadFile(path string) (string, error) {
	fullPath, err := env.path(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
