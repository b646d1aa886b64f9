package gen

import (
	"encoding/json"

	"github.com/qobs-build/evoke/internal/project"
	"github.com/qobs-build/evoke/internal/toolset"
)

// CompileDB writes a clang compilation database.
type CompileDB struct{}

type compileEntry struct {
	Directory string `json:"directory"`
	File      string `json:"file"`
	Command   string `json:"command"`
	Output    string `json:"output"`
}

func (CompileDB) FileName() string { return "compile_commands.json" }

// Generate emits one entry per compile command, in command order.
func (CompileDB) Generate(p *project.Project) ([]byte, error) {
	entries := []compileEntry{}
	for _, c := range p.Commands.All() {
		if toolset.StepOf(c) != toolset.StepCompile || len(c.Inputs) == 0 {
			continue
		}
		entries = append(entries, compileEntry{
			Directory: c.Invocation.Dir,
			File:      c.Inputs[0],
			Command:   c.Invocation.Text(),
			Output:    c.Target,
		})
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
