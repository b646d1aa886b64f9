package toolset

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/qobs-build/evoke/internal/msg"
	"github.com/qobs-build/evoke/internal/project"
)

// unityUnits writes one unity file per language of a component and returns
// them as translation units. A unity file is only rewritten when its content
// changes so its mtime stays put between runs.
func (t *toolset) unityUnits(p *project.Project, comp *project.Component) ([]unit, error) {
	var units []unit
	for _, cxx := range []bool{false, true} {
		var buf bytes.Buffer
		var inputs []string
		hasMain := false
		for _, f := range comp.Sources() {
			if project.IsCxx(f.Path) != cxx {
				continue
			}
			src := p.Abs(f.Path)
			fmt.Fprintf(&buf, "#include %q\n", filepath.ToSlash(src))
			inputs = append(inputs, src)
			hasMain = hasMain || f.HasMain
			inputs = append(inputs, p.IncludeClosure(f)...)
		}
		if buf.Len() == 0 {
			continue
		}

		ext := ".c"
		if cxx {
			ext = ".cpp"
		}
		path := filepath.Join(t.s.BuildDir, "unity", ArtifactName(comp.Name)+ext)
		written, err := writeIfChanged(path, buf.Bytes())
		if err != nil {
			return nil, fmt.Errorf("unity file for %s: %w", comp.Name, err)
		}
		if written {
			msg.Debug("wrote %s", path)
		}
		units = append(units, unit{
			src:     path,
			display: filepath.Base(path),
			cxx:     cxx,
			main:    hasMain,
			inputs:  append([]string{path}, inputs...),
		})
	}
	return units, nil
}

func writeIfChanged(path string, content []byte) (bool, error) {
	if old, err := os.ReadFile(path); err == nil && bytes.Equal(old, content) {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, err
	}
	return true, os.WriteFile(path, content, 0o644)
}
