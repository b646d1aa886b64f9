package gen

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/qobs-build/evoke/internal/project"
	"github.com/qobs-build/evoke/internal/toolset"
)

// CMake writes a CMakeLists.txt describing the components and the edges
// between them.
type CMake struct {
	Name    string
	Options toolset.GeneralOptions
	// Links are system libraries linked into every executable.
	Links []string
}

func (CMake) FileName() string { return "CMakeLists.txt" }

var cmakeEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "$", `\$`, ";", `\;`)

func cmakeQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\"\\$;#()") {
		return s
	}
	return `"` + cmakeEscaper.Replace(s) + `"`
}

func cmakeList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = cmakeQuote(s)
	}
	return strings.Join(quoted, " ")
}

func (g CMake) Generate(p *project.Project) ([]byte, error) {
	order, err := p.TopoOrder()
	if err != nil {
		return nil, err
	}

	name := g.Name
	if name == "" {
		name = filepath.Base(p.Root)
	}

	var sb strings.Builder
	writeln(&sb, "cmake_minimum_required(VERSION 3.16)")
	writeln(&sb, "project(", cmakeQuote(name), " C CXX)")
	writeln(&sb)
	g.writeOptions(&sb)

	for _, compName := range order {
		comp := p.Components[compName]
		target := toolset.ArtifactName(compName)

		var sources []string
		for _, f := range comp.Sources() {
			sources = append(sources, f.Path)
		}

		visibility := "PUBLIC"
		switch {
		case comp.IsHeaderOnly():
			visibility = "INTERFACE"
			writeln(&sb, "add_library(", target, " INTERFACE)")
		case comp.IsBinary():
			visibility = "PRIVATE"
			writeln(&sb, "add_executable(", target, " ", cmakeList(sources), ")")
		default:
			writeln(&sb, "add_library(", target, " STATIC ", cmakeList(sources), ")")
		}

		if dirs := includeDirs(p, comp); len(dirs) > 0 {
			writeln(&sb, "target_include_directories(", target, " ", visibility, " ", cmakeList(dirs), ")")
		}

		var libs []string
		for _, dep := range comp.Deps {
			libs = append(libs, toolset.ArtifactName(dep))
		}
		if comp.IsBinary() {
			libs = append(libs, g.Links...)
		}
		if len(libs) > 0 {
			writeln(&sb, "target_link_libraries(", target, " ", visibility, " ", cmakeList(libs), ")")
		}
		writeln(&sb)
	}
	return []byte(sb.String()), nil
}

func (g CMake) writeOptions(sb *strings.Builder) {
	o := g.Options
	switch std := o.Standard; {
	case strings.HasPrefix(std, "c++"), strings.HasPrefix(std, "gnu++"):
		writeln(sb, "set(CMAKE_CXX_STANDARD ", std[strings.Index(std, "++")+2:], ")")
	case std != "":
		writeln(sb, "set(CMAKE_C_STANDARD ", strings.TrimLeft(std, "cgnu"), ")")
	}
	buildType := ""
	switch {
	case o.Debug && o.OptLevel != "" && o.OptLevel != "0":
		buildType = "RelWithDebInfo"
	case o.Debug:
		buildType = "Debug"
	case o.OptLevel != "":
		buildType = "Release"
	}
	if buildType != "" {
		write(sb, "if(NOT CMAKE_BUILD_TYPE)\n  set(CMAKE_BUILD_TYPE ", buildType, ")\nendif()\n")
	}
	if len(o.IncludeDirs) > 0 {
		writeln(sb, "include_directories(", cmakeList(o.IncludeDirs), ")")
	}
	if len(o.Defines) > 0 {
		writeln(sb, "add_compile_definitions(", cmakeList(o.Defines), ")")
	}
	if opts := append(append([]string{}, o.Warnings...), o.Other...); len(opts) > 0 {
		writeln(sb, "add_compile_options(", cmakeList(opts), ")")
	}
	writeln(sb)
}

// includeDirs are the directories of comp that dependents search headers in.
func includeDirs(p *project.Project, comp *project.Component) []string {
	var dirs []string
	inc := path.Join(comp.Dir, "include")
	if fi, err := os.Stat(p.Abs(inc)); err == nil && fi.IsDir() {
		dirs = append(dirs, inc)
	}
	if len(comp.Headers()) > 0 {
		dirs = append(dirs, comp.Dir)
	}
	return dirs
}
