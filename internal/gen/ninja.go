package gen

import (
	"slices"
	"strings"

	"github.com/qobs-build/evoke/internal/command"
	"github.com/qobs-build/evoke/internal/project"
)

// Ninja writes a build.ninja with one build statement per command. All
// commands share a generic rule carrying the full command line.
type Ninja struct{}

func (Ninja) FileName() string { return "build.ninja" }

var (
	ninjaPathEscaper  = strings.NewReplacer("$", "$$", ":", "$:", " ", "$ ", "\n", "$\n")
	ninjaValueEscaper = strings.NewReplacer("$", "$$", "\n", "$\n")
)

func quote(s string) string { return ninjaPathEscaper.Replace(s) }

func (Ninja) Generate(p *project.Project) ([]byte, error) {
	var sb strings.Builder

	writeln(&sb, "ninja_required_version = 1.1")
	writeln(&sb)
	write(&sb,
		`rule run
  command = $cmd
  description = $desc
`)
	writeln(&sb)

	for _, c := range p.Commands.All() {
		write(&sb, "build ", quote(c.Target), ": run")
		for _, in := range c.Inputs {
			write(&sb, " ", quote(in))
		}

		// dependencies whose output is not already an input
		var orderOnly []string
		for _, id := range c.Deps {
			if dep := p.Commands.Get(id); !slices.Contains(c.Inputs, dep.Target) {
				orderOnly = append(orderOnly, quote(dep.Target))
			}
		}
		if len(orderOnly) > 0 {
			write(&sb, " || ", strings.Join(orderOnly, " "))
		}
		writeln(&sb)

		text := c.Invocation.Text()
		if c.Invocation.Dir != "" {
			cd := command.Invocation{Argv: []string{"cd", c.Invocation.Dir}}
			text = cd.Text() + " && " + text
		}
		writeln(&sb, "  cmd = ", ninjaValueEscaper.Replace(text))
		writeln(&sb, "  desc = ", ninjaValueEscaper.Replace(c.String()))
	}
	return []byte(sb.String()), nil
}
