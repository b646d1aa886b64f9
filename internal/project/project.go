// Package project infers the structure of a C/C++ tree from its include
// directives. No build manifest is needed: files are grouped into components
// by directory, every include is resolved to a file (or recorded as unknown)
// and the resolved includes become dependency edges between components.
package project

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/qobs-build/evoke/internal/builderr"
	"github.com/qobs-build/evoke/internal/command"
	"github.com/qobs-build/evoke/internal/msg"
)

type Kind int

const (
	KindHeader Kind = iota
	KindSource
)

func (k Kind) String() string {
	if k == KindHeader {
		return "header"
	}
	return "source"
}

var (
	headerExts = []string{".h", ".hh", ".hpp", ".hxx", ".h++", ".inl", ".ipp", ".tcc"}
	sourceExts = []string{".c", ".cc", ".cpp", ".cxx", ".c++", ".m", ".mm"}
)

// Classify returns the kind of a file by extension. ok is false for files the
// scanner ignores.
func Classify(name string) (kind Kind, ok bool) {
	ext := strings.ToLower(path.Ext(name))
	if slices.Contains(headerExts, ext) {
		return KindHeader, true
	}
	if slices.Contains(sourceExts, ext) {
		return KindSource, true
	}
	return 0, false
}

// IsCxx reports whether a source file is compiled as C++.
func IsCxx(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".c", ".m":
		return false
	}
	return true
}

// Header is a resolved include target.
type Header struct {
	// Path is root-relative for files inside the tree and absolute
	// (slash-separated) for headers found in external search paths.
	Path      string
	Component string // owning component, empty when External
	External  bool
}

// Include is a single include directive of a file.
type Include struct {
	Name   string // as written, without quotes or brackets
	System bool   // <name> form
	Line   int
	Header *Header // nil when the include could not be resolved
}

type SourceFile struct {
	Path      string // root-relative, slash-separated
	Kind      Kind
	Component string
	Includes  []*Include
	HasMain   bool
}

type Component struct {
	Name     string
	Dir      string // root-relative, "." for the root
	Files    []*SourceFile
	Deps     []string // direct dependencies, sorted
	Commands []command.ID
}

func (c *Component) Sources() []*SourceFile {
	var out []*SourceFile
	for _, f := range c.Files {
		if f.Kind == KindSource {
			out = append(out, f)
		}
	}
	return out
}

func (c *Component) Headers() []*SourceFile {
	var out []*SourceFile
	for _, f := range c.Files {
		if f.Kind == KindHeader {
			out = append(out, f)
		}
	}
	return out
}

// IsBinary reports whether one of the component's sources defines main().
func (c *Component) IsBinary() bool {
	return slices.ContainsFunc(c.Files, func(f *SourceFile) bool { return f.HasMain })
}

func (c *Component) IsHeaderOnly() bool {
	return len(c.Sources()) == 0
}

// Options configure a scan.
type Options struct {
	// SearchPaths are tried in order after the including file's directory.
	// Relative entries are relative to the root.
	SearchPaths []string
	// Exclude contains doublestar patterns matched against root-relative,
	// slash-separated paths.
	Exclude []string
	// BuildDir is never scanned. Relative to the root.
	BuildDir string
}

// Project is the scanned graph. It does not change after Load except through
// Reload, which rescans everything.
type Project struct {
	Root           string
	Components     map[string]*Component
	UnknownHeaders *HeaderSet
	ScanErrors     []*builderr.ScanError
	Commands       *command.Table

	opts    Options
	files   map[string]*SourceFile
	headers map[string]*Header
	dirs    map[string]bool
}

// Load scans root and builds the component graph. Either a complete, acyclic
// graph is returned or an error and no project at all.
func Load(root string, opts Options) (*Project, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, &builderr.ConfigurationError{Field: "root", Value: root, Reason: err.Error()}
	}
	stat, err := os.Stat(abs)
	if err != nil {
		return nil, &builderr.ConfigurationError{Field: "root", Value: root, Reason: err.Error()}
	}
	if !stat.IsDir() {
		return nil, &builderr.ConfigurationError{Field: "root", Value: root, Reason: "not a directory"}
	}
	for _, pat := range opts.Exclude {
		if !doublestar.ValidatePattern(pat) {
			return nil, &builderr.ConfigurationError{Field: "exclude", Value: pat, Reason: "invalid glob pattern"}
		}
	}

	p := &Project{Root: abs, opts: opts}
	if err := p.load(); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload throws away the graph and all commands and scans the tree again.
func (p *Project) Reload() error {
	fresh := &Project{Root: p.Root, opts: p.opts}
	if err := fresh.load(); err != nil {
		return err
	}
	*p = *fresh
	return nil
}

func (p *Project) load() error {
	p.Components = make(map[string]*Component)
	p.UnknownHeaders = NewHeaderSet()
	p.ScanErrors = nil
	p.Commands = command.NewTable()
	p.files = make(map[string]*SourceFile)
	p.headers = make(map[string]*Header)
	p.dirs = make(map[string]bool)

	if err := p.walk(); err != nil {
		return err
	}
	p.group()
	p.resolveAll()
	p.buildEdges()
	if cycles := findCycles(p.Components); len(cycles) > 0 {
		var names []string
		for _, c := range cycles {
			names = append(names, c...)
		}
		return builderr.NewCycleError(names)
	}
	return nil
}

func (p *Project) excluded(rel string) bool {
	for _, pat := range p.opts.Exclude {
		if ok, _ := doublestar.Match(pat, rel); ok {
			return true
		}
	}
	return false
}

func (p *Project) scanError(path string, err error) {
	serr := &builderr.ScanError{Path: path, Err: err}
	p.ScanErrors = append(p.ScanErrors, serr)
	msg.Warn("%v", serr)
}

// walk reads every header and source file below the root. The walk is
// lexical, so the resulting file set does not depend on directory order.
func (p *Project) walk() error {
	buildDir := ""
	if p.opts.BuildDir != "" {
		buildDir = p.relPath(p.opts.BuildDir)
	}

	return filepath.WalkDir(p.Root, func(full string, d fs.DirEntry, err error) error {
		rel := p.relPath(full)
		if err != nil {
			if full == p.Root {
				return &builderr.ConfigurationError{Field: "root", Value: p.Root, Reason: err.Error()}
			}
			p.scanError(rel, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if rel == "." {
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") || rel == buildDir || p.excluded(rel) {
				msg.Debug("skip directory %s", rel)
				return fs.SkipDir
			}
			p.dirs[rel] = true
			return nil
		}

		kind, ok := Classify(d.Name())
		if !ok || p.excluded(rel) {
			return nil
		}
		buf, err := os.ReadFile(full)
		if err != nil {
			p.scanError(rel, err)
			return nil
		}

		f := &SourceFile{Path: rel, Kind: kind}
		incs, hasMain := scanDirectives(buf)
		f.HasMain = kind == KindSource && hasMain
		for _, inc := range incs {
			f.Includes = append(f.Includes, &Include{Name: inc.name, System: inc.system, Line: inc.line})
		}
		p.files[rel] = f
		msg.Debug("scanned %s: %d includes", rel, len(f.Includes))
		return nil
	})
}

// relPath returns the normalized root-relative form of a path. Paths outside
// the root come back starting with "../".
func (p *Project) relPath(name string) string {
	if !filepath.IsAbs(name) {
		return Normalize(name)
	}
	rel, err := filepath.Rel(p.Root, name)
	if err != nil {
		return Normalize(name)
	}
	return Normalize(rel)
}

// Abs turns a root-relative path (or an external header path) into an OS path.
func (p *Project) Abs(rel string) string {
	native := filepath.FromSlash(rel)
	if filepath.IsAbs(native) {
		return native
	}
	return filepath.Join(p.Root, native)
}

// componentDir maps a file to the directory that names its component: the
// part of the path before the first "src" or "include" element, or the
// containing directory otherwise.
func componentDir(rel string) string {
	dir := path.Dir(rel)
	if dir == "." {
		return "."
	}
	parts := strings.Split(dir, "/")
	for i, part := range parts {
		if part == "src" || part == "include" {
			if i == 0 {
				return "."
			}
			return strings.Join(parts[:i], "/")
		}
	}
	return dir
}

func (p *Project) group() {
	rootName := filepath.Base(p.Root)
	paths := p.sortedFiles()

	dirs := make(map[string]bool)
	for _, rel := range paths {
		dirs[componentDir(rel)] = true
	}
	if dirs[rootName] {
		// a subdirectory already uses the root's name
		rootName = "."
	}

	for _, rel := range paths {
		f := p.files[rel]
		dir := componentDir(rel)
		name := dir
		if dir == "." {
			name = rootName
		}
		comp, ok := p.Components[name]
		if !ok {
			comp = &Component{Name: name, Dir: dir}
			p.Components[name] = comp
		}
		f.Component = name
		comp.Files = append(comp.Files, f)
	}
}

func (p *Project) sortedFiles() []string {
	paths := make([]string, 0, len(p.files))
	for rel := range p.files {
		paths = append(paths, rel)
	}
	slices.Sort(paths)
	return paths
}

// ComponentNames returns all component names, sorted.
func (p *Project) ComponentNames() []string {
	names := make([]string, 0, len(p.Components))
	for name := range p.Components {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// File returns a scanned file by root-relative path.
func (p *Project) File(rel string) (*SourceFile, bool) {
	f, ok := p.files[Normalize(rel)]
	return f, ok
}

// IncludeClosure returns the OS paths of every header reachable from f
// through resolved includes, in discovery order.
func (p *Project) IncludeClosure(f *SourceFile) []string {
	seen := map[string]bool{f.Path: true}
	var out []string
	var visit func(f *SourceFile)
	visit = func(f *SourceFile) {
		for _, inc := range f.Includes {
			h := inc.Header
			if h == nil || seen[h.Path] {
				continue
			}
			seen[h.Path] = true
			out = append(out, p.Abs(h.Path))
			if next, ok := p.files[h.Path]; ok && !h.External {
				visit(next)
			}
		}
	}
	visit(f)
	return out
}

// Dump writes a human readable description of the graph.
func (p *Project) Dump(w io.Writer) {
	for _, name := range p.ComponentNames() {
		comp := p.Components[name]
		kind := "library"
		switch {
		case comp.IsBinary():
			kind = "executable"
		case comp.IsHeaderOnly():
			kind = "header-only"
		}
		fmt.Fprintf(w, "component %s (%s) in %s\n", name, kind, comp.Dir)
		if len(comp.Deps) > 0 {
			fmt.Fprintf(w, "  depends on: %s\n", strings.Join(comp.Deps, ", "))
		}
		for _, f := range comp.Files {
			fmt.Fprintf(w, "  %s %s\n", f.Kind, f.Path)
			for _, inc := range f.Includes {
				target := "?"
				if inc.Header != nil {
					target = inc.Header.Path
				}
				open, closing := `"`, `"`
				if inc.System {
					open, closing = "<", ">"
				}
				fmt.Fprintf(w, "    %s%s%s -> %s\n", open, inc.Name, closing, target)
			}
		}
		for _, id := range comp.Commands {
			if c := p.Commands.Get(id); c != nil {
				fmt.Fprintf(w, "  command %d: %s [%s]\n", c.ID, c, c.State())
			}
		}
	}
	if !p.UnknownHeaders.Empty() {
		fmt.Fprintf(w, "unknown headers: %s\n", strings.Join(p.UnknownHeaders.Names(), ", "))
	}
}

// AddCommand gives ownership of c to the component named by c.Owner.
func (p *Project) AddCommand(c *command.Command) error {
	comp, ok := p.Components[c.Owner]
	if !ok {
		return fmt.Errorf("command %s: no component %q", c, c.Owner)
	}
	if p.Commands.Get(c.ID) != c {
		return fmt.Errorf("command %s does not belong to this project's table", c)
	}
	comp.Commands = append(comp.Commands, c.ID)
	return nil
}

// NewCommand allocates a command in the project's table and hands it to its
// owning component.
func (p *Project) NewCommand(owner, target string, inputs []string, deps []command.ID, inv command.Invocation) (*command.Command, error) {
	c, err := p.Commands.New(owner, target, inputs, deps, inv)
	if err != nil {
		return nil, err
	}
	if err := p.AddCommand(c); err != nil {
		return nil, err
	}
	return c, nil
}

// ComponentCommands returns the commands owned by a component, in order.
func (p *Project) ComponentCommands(name string) []*command.Command {
	comp, ok := p.Components[name]
	if !ok {
		return nil
	}
	out := make([]*command.Command, 0, len(comp.Commands))
	for _, id := range comp.Commands {
		out = append(out, p.Commands.Get(id))
	}
	return out
}

// ResetCommands drops every command, e.g. before materializing them again in
// a different mode.
func (p *Project) ResetCommands() {
	p.Commands = command.NewTable()
	for _, comp := range p.Components {
		comp.Commands = nil
	}
}
