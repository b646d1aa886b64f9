// Package builder wires configuration, fetching, scanning, command creation
// and execution into a build of one project directory.
package builder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"github.com/qobs-build/evoke/internal/builderr"
	"github.com/qobs-build/evoke/internal/buildstate"
	"github.com/qobs-build/evoke/internal/config"
	"github.com/qobs-build/evoke/internal/executor"
	"github.com/qobs-build/evoke/internal/fetch"
	"github.com/qobs-build/evoke/internal/gen"
	"github.com/qobs-build/evoke/internal/msg"
	"github.com/qobs-build/evoke/internal/project"
	"github.com/qobs-build/evoke/internal/report"
	"github.com/qobs-build/evoke/internal/toolset"
)

var errCantRunLib = errors.New("can't run a library or header-only component")

const defaultBuildDir = "build"

// Overrides are command line settings. Zero values keep what evoke.toml
// says.
type Overrides struct {
	Jobs     int
	Toolset  string
	Reporter string
	Profile  string
	Unity    bool

	CompileDB bool // compile_commands.json in the root
	CMake     bool // CMakeLists.txt in the root
	Ninja     bool // build.ninja in the build directory
	Verbose   bool

	// Output receives reporter output, os.Stdout by default.
	Output io.Writer
	// Runner replaces process spawning, for tests.
	Runner executor.Runner
}

type Builder struct {
	cfg     *config.Config
	basedir string
	env     config.Env
	o       Overrides

	roots []fetch.Root
}

func NewBuilderInDirectory(path string, o Overrides) (*Builder, error) {
	var err error
	path, err = filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	env := config.NewEnv(path)
	cfg, err := config.ParseConfigFromFile(filepath.Join(path, config.FileName), env)
	if err != nil {
		return nil, err
	}
	if o.Output == nil {
		o.Output = os.Stdout
	}
	return &Builder{cfg: cfg, basedir: path, env: env, o: o}, nil
}

func (b *Builder) Config() *config.Config { return b.cfg }

func (b *Builder) Root() string { return b.basedir }

// BuildDir is the absolute build directory.
func (b *Builder) BuildDir() string {
	dir := b.cfg.Build.BuildDir
	if dir == "" {
		dir = defaultBuildDir
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(b.basedir, dir)
}

// Fetch makes every [fetch] entry available locally.
func (b *Builder) Fetch() ([]fetch.Root, error) {
	if b.roots != nil {
		return b.roots, nil
	}
	roots, err := fetch.New(b.basedir).All(b.cfg.Fetch)
	if err != nil {
		return nil, err
	}
	b.roots = roots
	return roots, nil
}

// searchPaths are the configured search paths followed by the fetched roots.
func (b *Builder) searchPaths() ([]string, error) {
	roots, err := b.Fetch()
	if err != nil {
		return nil, err
	}
	paths := slices.Clone(b.cfg.Project.SearchPaths)
	for _, r := range roots {
		paths = append(paths, r.Dir)
	}
	return paths, nil
}

// Scan fetches, runs the prebuild program and scans the project.
func (b *Builder) Scan() (*project.Project, error) {
	paths, err := b.searchPaths()
	if err != nil {
		return nil, err
	}
	if err := b.cfg.RunPrebuild(b.env); err != nil {
		return nil, err
	}
	p, err := project.Load(b.basedir, project.Options{
		SearchPaths: paths,
		Exclude:     b.cfg.Project.Exclude,
		BuildDir:    b.BuildDir(),
	})
	if err != nil {
		return nil, err
	}
	p.UnknownHeaders.Report(msg.Output)
	return p, nil
}

func (b *Builder) jobs() int {
	switch {
	case b.o.Jobs != 0:
		return b.o.Jobs
	case b.cfg.Build.Jobs != 0:
		return b.cfg.Build.Jobs
	}
	return executor.DefaultJobs()
}

func pick(override, configured string) string {
	if override != "" {
		return override
	}
	return configured
}

func (b *Builder) toolsetKind() (toolset.Kind, error) {
	name := pick(b.o.Toolset, b.cfg.Build.Toolset)
	if name == "" {
		return toolset.Detect(), nil
	}
	kind, err := toolset.ParseKind(name)
	if err != nil {
		return 0, &builderr.ConfigurationError{Field: "toolset", Value: name, Reason: err.Error()}
	}
	return kind, nil
}

func (b *Builder) reporter() (report.Reporter, error) {
	name := pick(b.o.Reporter, b.cfg.Build.Reporter)
	if name == "" {
		return report.New(report.KindGuess, b.o.Output), nil
	}
	kind, err := report.ParseKind(name)
	if err != nil {
		return nil, &builderr.ConfigurationError{Field: "reporter", Value: name, Reason: err.Error()}
	}
	return report.New(kind, b.o.Output), nil
}

func (b *Builder) settings() (toolset.Settings, error) {
	profile := pick(b.o.Profile, b.cfg.Build.Profile)
	prof, ok := b.cfg.SelectedProfile(profile)
	if !ok {
		return toolset.Settings{}, &builderr.ConfigurationError{
			Field:  "profile",
			Value:  profile,
			Reason: "unknown profile, available: " + strings.Join(b.cfg.Profiles(), ", "),
		}
	}
	paths, err := b.searchPaths()
	if err != nil {
		return toolset.Settings{}, err
	}
	var includeDirs []string
	for _, sp := range paths {
		if !filepath.IsAbs(sp) {
			sp = filepath.Join(b.basedir, sp)
		}
		includeDirs = append(includeDirs, sp)
	}
	return toolset.Settings{
		BuildDir:    b.BuildDir(),
		CC:          os.Getenv("CC"),
		CXX:         os.Getenv("CXX"),
		Flags:       b.cfg.Flags.CompileFlags(),
		LinkFlags:   b.cfg.Flags.Link,
		Links:       b.cfg.Flags.Links,
		OptLevel:    prof.OptFlag(),
		Debug:       prof.Debug,
		IncludeDirs: includeDirs,
	}, nil
}

// Prepare scans the project and creates its commands without running them.
func (b *Builder) Prepare() (*project.Project, toolset.Toolset, error) {
	kind, err := b.toolsetKind()
	if err != nil {
		return nil, nil, err
	}
	s, err := b.settings()
	if err != nil {
		return nil, nil, err
	}
	ts, err := toolset.New(kind, s)
	if err != nil {
		return nil, nil, err
	}

	p, err := b.Scan()
	if err != nil {
		return nil, nil, err
	}

	msg.Info("Building for %s", ts.Name())
	if b.o.Unity || b.cfg.Build.Unity {
		err = ts.CreateCommandsForUnity(p)
	} else {
		err = ts.CreateCommandsFor(p)
	}
	if err != nil {
		return nil, nil, err
	}
	return p, ts, nil
}

func (b *Builder) generate(p *project.Project, ts toolset.Toolset) error {
	type output struct {
		enabled bool
		dir     string
		g       gen.Generator
	}
	name := b.cfg.Project.Name
	outputs := []output{
		{b.o.CompileDB, b.basedir, gen.CompileDB{}},
		{b.o.CMake, b.basedir, gen.CMake{
			Name:    name,
			Options: ts.ParseGeneralOptions(b.cfg.Flags.CompileFlags()),
			Links:   b.cfg.Flags.Links,
		}},
		{b.o.Ninja, b.BuildDir(), gen.Ninja{}},
	}
	for _, out := range outputs {
		if !out.enabled {
			continue
		}
		path, err := gen.Write(p, out.dir, out.g)
		if err != nil {
			return fmt.Errorf("generate %s: %w", out.g.FileName(), err)
		}
		msg.Info("Wrote %s", path)
	}
	return nil
}

// Build runs every command of the project that is not up to date. The
// returned error is non-nil when the build did not succeed; the result is
// returned whenever the executor ran.
func (b *Builder) Build(ctx context.Context) (*executor.Result, error) {
	res, _, err := b.build(ctx)
	return res, err
}

func (b *Builder) build(ctx context.Context) (*executor.Result, *project.Project, error) {
	p, ts, err := b.Prepare()
	if err != nil {
		return nil, nil, err
	}
	if err := b.generate(p, ts); err != nil {
		return nil, nil, err
	}
	if b.o.Verbose {
		p.Dump(msg.Output)
	}

	state, err := buildstate.Load(filepath.Join(b.BuildDir(), buildstate.FileName))
	if err != nil {
		return nil, nil, err
	}
	r, err := b.reporter()
	if err != nil {
		return nil, nil, err
	}
	opts := []executor.Option{executor.WithChecker(buildstate.NewChecker(state))}
	if b.o.Runner != nil {
		opts = append(opts, executor.WithRunner(b.o.Runner))
	}
	ex, err := executor.New(p.Commands, b.jobs(), r, opts...)
	if err != nil {
		return nil, nil, err
	}
	for _, c := range p.Commands.All() {
		if err := ex.Run(c); err != nil {
			return nil, nil, err
		}
	}

	res := ex.Start(ctx).Wait()
	if err := state.Save(); err != nil {
		msg.Warn("failed to save build state: %v", err)
	}
	return res, p, resultError(res)
}

// resultError explains why a result is not OK.
func resultError(res *executor.Result) error {
	if res.OK() {
		return nil
	}
	var errs []error
	for _, c := range res.Failed {
		errs = append(errs, &builderr.ExecutionError{
			Command:  c.String(),
			ExitCode: c.ExitCode(),
			Output:   string(c.Output()),
		})
	}
	if len(res.Deadlocked) > 0 {
		names := make([]string, len(res.Deadlocked))
		for i, c := range res.Deadlocked {
			names[i] = c.String()
		}
		errs = append(errs, fmt.Errorf("%d commands could never run: %s", len(names), strings.Join(names, ", ")))
	}
	if res.Cancelled {
		errs = append(errs, context.Canceled)
	}
	return errors.Join(errs...)
}

// BuildAndRun builds the project and runs the executable of component. An
// empty component picks the only executable there is.
func (b *Builder) BuildAndRun(ctx context.Context, component string, args []string) error {
	_, p, err := b.build(ctx)
	if err != nil {
		return err
	}

	if component == "" {
		var binaries []string
		for _, name := range p.ComponentNames() {
			if p.Components[name].IsBinary() {
				binaries = append(binaries, name)
			}
		}
		if len(binaries) != 1 {
			return fmt.Errorf("expected exactly one executable component, found %d (%s), name one", len(binaries), strings.Join(binaries, ", "))
		}
		component = binaries[0]
	}
	comp, ok := p.Components[component]
	if !ok {
		return fmt.Errorf("unknown component %q, known components: %s", component, strings.Join(p.ComponentNames(), ", "))
	}
	if !comp.IsBinary() {
		return fmt.Errorf("%s: %w", component, errCantRunLib)
	}

	cmd := exec.CommandContext(ctx, toolset.ExecutablePath(b.BuildDir(), component), args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	return cmd.Run()
}
