// Package gen serializes a project and its commands into files other tools
// understand. Nothing here takes part in scheduling.
package gen

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/qobs-build/evoke/internal/project"
)

type Generator interface {
	// FileName is the name of the generated file.
	FileName() string
	Generate(p *project.Project) ([]byte, error)
}

// Write generates g into dir and returns the path of the written file. An
// existing file with identical content is left alone.
func Write(p *project.Project, dir string, g Generator) (string, error) {
	data, err := g.Generate(p)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, g.FileName())
	if old, err := os.ReadFile(path); err == nil && bytes.Equal(old, data) {
		return path, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return path, os.WriteFile(path, data, 0o644)
}
