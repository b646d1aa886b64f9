// Package toolset turns a scanned project into compile, archive and link
// commands for a particular compiler family.
package toolset

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/qobs-build/evoke/internal/command"
	"github.com/qobs-build/evoke/internal/project"
)

type Toolset interface {
	Name() string
	// CreateCommandsFor adds one compile command per source plus an archive
	// or link command to every component that has sources.
	CreateCommandsFor(p *project.Project) error
	// CreateCommandsForUnity is like CreateCommandsFor but compiles each
	// component through generated unity files.
	CreateCommandsForUnity(p *project.Project) error
	// ParseGeneralOptions classifies compiler flags for project file
	// generators.
	ParseGeneralOptions(flags []string) GeneralOptions
}

type Kind int

const (
	KindGCC Kind = iota
	KindClang
	KindMSVC
)

var kindNames = []string{"gcc", "clang", "msvc"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Kinds returns every toolset name.
func Kinds() []string { return slices.Clone(kindNames) }

func ParseKind(name string) (Kind, error) {
	i := slices.Index(kindNames, strings.ToLower(name))
	if i < 0 {
		return 0, fmt.Errorf("unknown toolset %q, expected one of: %s", name, strings.Join(kindNames, ", "))
	}
	return Kind(i), nil
}

// Detect picks a toolset from the compilers available on this machine.
func Detect() Kind {
	cc := findCompiler(false)
	switch name := strings.ToLower(filepath.Base(cc)); {
	case strings.HasPrefix(name, "cl.") || name == "cl":
		return KindMSVC
	case strings.Contains(name, "clang"):
		return KindClang
	case cc == "" && runtime.GOOS == "windows":
		return KindMSVC
	}
	return KindGCC
}

// Settings are the inputs every toolset needs besides the project.
type Settings struct {
	// BuildDir receives objects, archives, executables and unity files.
	BuildDir string
	// CC and CXX override compiler discovery.
	CC, CXX string
	// Flags are extra compile flags, LinkFlags extra link flags.
	Flags     []string
	LinkFlags []string
	// Links are system libraries linked into every executable.
	Links    []string
	OptLevel string
	Debug    bool
	// IncludeDirs are external header roots passed to every compile.
	IncludeDirs []string
}

// GeneralOptions is a compiler-neutral view of a flag set.
type GeneralOptions struct {
	IncludeDirs []string
	Defines     []string // NAME or NAME=VALUE
	OptLevel    string
	Debug       bool
	Standard    string // e.g. c++20
	Warnings    []string
	Other       []string
}

func New(kind Kind, s Settings) (Toolset, error) {
	if s.BuildDir == "" {
		return nil, fmt.Errorf("toolset %s: no build directory", kind)
	}
	abs, err := filepath.Abs(s.BuildDir)
	if err != nil {
		return nil, err
	}
	s.BuildDir = abs

	var d dialect
	switch kind {
	case KindGCC, KindClang:
		d = newGNU(kind, s.CC, s.CXX)
	case KindMSVC:
		d = msvc{}
	default:
		return nil, fmt.Errorf("unknown toolset %s", kind)
	}
	return &toolset{kind: kind, d: d, s: s}, nil
}

// Display prefixes of the commands a toolset creates.
const (
	StepCompile = "CC"
	StepArchive = "AR"
	StepLink    = "LINK"
)

// StepOf returns the step a command created by a toolset performs.
func StepOf(c *command.Command) string {
	step, _, _ := strings.Cut(c.Invocation.Display, " ")
	return step
}

// dialect is what differs between compiler families.
type dialect interface {
	compiler(cxx bool) string
	compile(compiler string, flags []string, src, obj string) []string
	archive(out string, objs []string) []string
	link(compiler, out string, objs, libs, ldflags []string) []string
	includeFlag(dir string) string
	optFlags(level string, debug bool) []string
	systemLib(name string) string
	objectExt() string
	libName(name string) string
	parse(flags []string) GeneralOptions
}

type toolset struct {
	kind Kind
	d    dialect
	s    Settings
}

func (t *toolset) Name() string { return t.kind.String() }

func (t *toolset) ParseGeneralOptions(flags []string) GeneralOptions {
	return t.d.parse(flags)
}

func (t *toolset) CreateCommandsFor(p *project.Project) error {
	return t.create(p, false)
}

func (t *toolset) CreateCommandsForUnity(p *project.Project) error {
	return t.create(p, true)
}

// unit is one translation unit: a source file or a unity file.
type unit struct {
	src     string // OS path
	display string
	cxx     bool
	main    bool // defines main()
	inputs  []string
}

// exeObjects are the objects of an executable component other than the ones
// defining main. Executables whose headers are used elsewhere link them in.
type exeObjects struct {
	objs []string
	ids  []command.ID
	// whole is set when main could not be split off, as in unity builds.
	whole bool
}

func (t *toolset) create(p *project.Project, unity bool) error {
	order, err := p.TopoOrder()
	if err != nil {
		return err
	}

	archives := make(map[string]*command.Command) // component -> archive command
	executables := make(map[string]exeObjects)
	produced := make(map[string]string) // target -> component
	newCommand := func(owner, target string, inputs []string, deps []command.ID, inv command.Invocation) (*command.Command, error) {
		if other, ok := produced[target]; ok {
			return nil, fmt.Errorf("components %s and %s both produce %s, rename one of them", other, owner, target)
		}
		produced[target] = owner
		return p.NewCommand(owner, target, inputs, deps, inv)
	}
	for _, name := range order {
		comp := p.Components[name]
		if comp.IsHeaderOnly() {
			continue
		}
		closure, err := p.Closure(name)
		if err != nil {
			return err
		}

		var units []unit
		if unity {
			units, err = t.unityUnits(p, comp)
			if err != nil {
				return err
			}
		} else {
			units = sourceUnits(p, comp)
		}

		flags := t.compileFlags(p, comp, closure)
		var objs []string
		var deps []command.ID
		var exe exeObjects
		cxx := false
		for _, u := range units {
			obj := t.objectPath(p, u.src)
			if err := os.MkdirAll(filepath.Dir(obj), 0o755); err != nil {
				return err
			}
			inv := command.Invocation{
				Dir:     p.Root,
				Argv:    t.d.compile(t.d.compiler(u.cxx), flags, u.src, obj),
				Display: StepCompile + " " + u.display,
			}
			c, err := newCommand(name, obj, u.inputs, nil, inv)
			if err != nil {
				return err
			}
			objs = append(objs, obj)
			deps = append(deps, c.ID)
			cxx = cxx || u.cxx
			if u.main {
				exe.whole = exe.whole || unity
				continue
			}
			exe.objs = append(exe.objs, obj)
			exe.ids = append(exe.ids, c.ID)
		}

		if !comp.IsBinary() {
			out := filepath.Join(t.s.BuildDir, t.d.libName(ArtifactName(name)))
			inv := command.Invocation{Dir: p.Root, Argv: t.d.archive(out, objs), Display: StepArchive + " " + filepath.Base(out)}
			c, err := newCommand(name, out, objs, deps, inv)
			if err != nil {
				return err
			}
			archives[name] = c
			continue
		}

		// dependents before dependencies on the link line
		var libs []string
		inputs := slices.Clone(objs)
		for _, dep := range slices.Backward(closure) {
			if a, ok := archives[dep]; ok {
				libs = append(libs, a.Target)
				inputs = append(inputs, a.Target)
				deps = append(deps, a.ID)
				cxx = cxx || hasCxx(p.Components[dep])
				continue
			}
			other, ok := executables[dep]
			if !ok {
				continue
			}
			if other.whole {
				return fmt.Errorf("%s uses headers of executable %s, which cannot be linked into it in a unity build", name, dep)
			}
			objs = append(objs, other.objs...)
			inputs = append(inputs, other.objs...)
			deps = append(deps, other.ids...)
			cxx = cxx || hasCxx(p.Components[dep])
		}
		ldflags := slices.Clone(t.s.LinkFlags)
		for _, lib := range t.s.Links {
			ldflags = append(ldflags, t.d.systemLib(lib))
		}

		out := ExecutablePath(t.s.BuildDir, name)
		inv := command.Invocation{
			Dir:     p.Root,
			Argv:    t.d.link(t.d.compiler(cxx), out, objs, libs, ldflags),
			Display: StepLink + " " + filepath.Base(out),
		}
		if _, err := newCommand(name, out, inputs, deps, inv); err != nil {
			return err
		}
		executables[name] = exe
	}
	return nil
}

func sourceUnits(p *project.Project, comp *project.Component) []unit {
	var units []unit
	for _, f := range comp.Sources() {
		src := p.Abs(f.Path)
		units = append(units, unit{
			src:     src,
			display: f.Path,
			cxx:     project.IsCxx(f.Path),
			main:    f.HasMain,
			inputs:  append([]string{src}, p.IncludeClosure(f)...),
		})
	}
	return units
}

func hasCxx(comp *project.Component) bool {
	return slices.ContainsFunc(comp.Sources(), func(f *project.SourceFile) bool {
		return project.IsCxx(f.Path)
	})
}

func (t *toolset) compileFlags(p *project.Project, comp *project.Component, closure []string) []string {
	flags := t.d.optFlags(t.s.OptLevel, t.s.Debug)
	flags = append(flags, t.s.Flags...)

	var dirs []string
	addDir := func(dir string) {
		if slices.Contains(dirs, dir) {
			return
		}
		if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
			dirs = append(dirs, dir)
		}
	}
	for _, name := range append([]string{comp.Name}, closure...) {
		dir := p.Abs(p.Components[name].Dir)
		addDir(filepath.Join(dir, "include"))
		addDir(dir)
	}
	addDir(p.Root)
	for _, dir := range t.s.IncludeDirs {
		addDir(dir)
	}
	for _, dir := range dirs {
		flags = append(flags, t.d.includeFlag(dir))
	}
	return flags
}

func (t *toolset) objectPath(p *project.Project, src string) string {
	rel, err := filepath.Rel(p.Root, src)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(src)
	}
	return filepath.Join(t.s.BuildDir, "obj", rel+t.d.objectExt())
}

// ArtifactName turns a component name into a file name.
func ArtifactName(component string) string {
	if component == "." {
		return "root"
	}
	return strings.ReplaceAll(component, "/", "_")
}

// ExecutablePath is where the executable of a component is linked to.
func ExecutablePath(buildDir, component string) string {
	name := ArtifactName(component)
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(buildDir, name)
}
