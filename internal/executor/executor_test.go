package executor

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/qobs-build/evoke/internal/builderr"
	"github.com/qobs-build/evoke/internal/command"
	"github.com/qobs-build/evoke/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner pretends to run commands. It checks that every dependency has
// succeeded by the time a command starts and tracks peak concurrency.
type fakeRunner struct {
	tbl   *command.Table
	fail  map[string]bool
	delay time.Duration

	mu         sync.Mutex
	running    int
	peak       int
	ran        []string
	violations []string
}

func (f *fakeRunner) find(display string) *command.Command {
	for _, c := range f.tbl.All() {
		if c.Invocation.Display == display {
			return c
		}
	}
	return nil
}

func (f *fakeRunner) Run(_ context.Context, inv command.Invocation) (int, []byte) {
	c := f.find(inv.Display)

	f.mu.Lock()
	f.running++
	f.peak = max(f.peak, f.running)
	f.ran = append(f.ran, inv.Display)
	for _, d := range c.Deps {
		if st := f.tbl.Get(d).State(); st != command.Succeeded {
			f.violations = append(f.violations, fmt.Sprintf("%s started while %s was %s", c, f.tbl.Get(d), st))
		}
	}
	f.mu.Unlock()

	time.Sleep(f.delay)

	f.mu.Lock()
	f.running--
	f.mu.Unlock()

	if f.fail[inv.Display] {
		return 1, []byte("error: " + inv.Display)
	}
	return 0, nil
}

func (f *fakeRunner) didRun(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.ran {
		if r == name {
			return true
		}
	}
	return false
}

// freshTargets reports the listed targets as up to date.
type freshTargets map[string]bool

func (f freshTargets) Fresh(c *command.Command) bool { return f[c.Target] }
func (freshTargets) Record(*command.Command)         {}
func (f freshTargets) Forget(c *command.Command)     { delete(f, c.Target) }

type graph struct {
	t   *testing.T
	tbl *command.Table
	cmd map[string]*command.Command
}

func newGraph(t *testing.T) *graph {
	return &graph{t: t, tbl: command.NewTable(), cmd: map[string]*command.Command{}}
}

func (g *graph) add(name string, deps ...string) *command.Command {
	g.t.Helper()
	var ids []command.ID
	for _, d := range deps {
		ids = append(ids, g.cmd[d].ID)
	}
	c, err := g.tbl.New("test", name, nil, ids, command.Invocation{Argv: []string{"build", name}, Display: name})
	require.NoError(g.t, err)
	g.cmd[name] = c
	return c
}

func (g *graph) run(jobs int, opts ...Option) (*Result, *fakeRunner) {
	g.t.Helper()
	return g.runWith(context.Background(), jobs, nil, opts...)
}

func (g *graph) runWith(ctx context.Context, jobs int, fail map[string]bool, opts ...Option) (*Result, *fakeRunner) {
	g.t.Helper()
	fr := &fakeRunner{tbl: g.tbl, fail: fail, delay: 2 * time.Millisecond}
	opts = append([]Option{WithRunner(fr), WithChecker(command.AlwaysStale{})}, opts...)
	e, err := New(g.tbl, jobs, nil, opts...)
	require.NoError(g.t, err)
	for _, c := range g.tbl.All() {
		require.NoError(g.t, e.Run(c))
	}
	return e.Start(ctx).Wait(), fr
}

func TestBoundedConcurrency(t *testing.T) {
	g := newGraph(t)
	for i := range 16 {
		g.add(fmt.Sprintf("leaf%d", i))
	}
	g.add("root", "leaf0", "leaf7", "leaf15")

	res, fr := g.run(2)
	assert.True(t, res.OK())
	assert.Equal(t, 17, res.Succeeded)
	assert.Equal(t, 17, res.Ran)
	assert.LessOrEqual(t, fr.peak, 2)
	assert.Empty(t, fr.violations)
}

func TestDependencyOrder(t *testing.T) {
	g := newGraph(t)
	g.add("a")
	g.add("b", "a")
	g.add("c", "a")
	g.add("d", "b", "c")
	g.add("e", "d", "a")

	res, fr := g.run(4)
	assert.True(t, res.OK())
	assert.Empty(t, fr.violations)
	assert.Equal(t, "a", fr.ran[0])
	assert.Equal(t, "e", fr.ran[len(fr.ran)-1])
	for _, c := range g.tbl.All() {
		assert.Equal(t, command.Succeeded, c.State(), c.String())
	}
}

func TestFailurePropagation(t *testing.T) {
	g := newGraph(t)
	g.add("a")
	g.add("b", "a")
	g.add("c", "b")
	g.add("x")
	g.add("y", "x")

	res, fr := g.runWith(context.Background(), 2, map[string]bool{"a": true})
	assert.False(t, res.OK())
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "a", res.Failed[0].Target)
	assert.Equal(t, 1, res.Failed[0].ExitCode())
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 2, res.Succeeded)

	assert.Equal(t, command.Skipped, g.cmd["b"].State())
	assert.Equal(t, command.Skipped, g.cmd["c"].State())
	assert.Equal(t, command.Succeeded, g.cmd["y"].State(), "unrelated work still finishes")
	assert.False(t, fr.didRun("b"))
	assert.False(t, fr.didRun("c"))
	assert.Empty(t, res.Deadlocked)
}

func TestFailedTargetIsForgotten(t *testing.T) {
	g := newGraph(t)
	g.add("a")
	g.add("b", "a")
	g.add("x")

	checker := freshTargets{"a": false, "b": true, "x": false}
	res, _ := g.runWith(context.Background(), 2, map[string]bool{"a": true}, WithChecker(checker))
	require.Len(t, res.Failed, 1)

	_, known := checker["a"]
	assert.False(t, known)
	assert.True(t, checker["b"], "skipped commands keep their state")
	assert.Contains(t, checker, "x")
}

func TestFreshCommandsDoNotRun(t *testing.T) {
	g := newGraph(t)
	g.add("a")
	g.add("b", "a")
	g.add("c", "b")

	res, fr := g.run(2, WithChecker(freshTargets{"a": true, "b": true, "c": true}))
	assert.True(t, res.OK())
	assert.Zero(t, res.Ran)
	assert.Equal(t, 3, res.Succeeded)
	assert.Empty(t, fr.ran)
}

func TestFreshDependentAfterRun(t *testing.T) {
	g := newGraph(t)
	g.add("a")
	g.add("b", "a")
	g.add("c", "b")

	// b is fresh but has to wait for a, c is stale again
	res, fr := g.run(2, WithChecker(freshTargets{"b": true}))
	assert.True(t, res.OK())
	assert.Equal(t, 2, res.Ran)
	assert.Equal(t, 3, res.Succeeded)
	assert.Equal(t, []string{"a", "c"}, fr.ran)
}

func TestUnregisteredDependencyDeadlocks(t *testing.T) {
	g := newGraph(t)
	g.add("a")
	b := g.add("b", "a")

	e, err := New(g.tbl, 2, nil, WithRunner(&fakeRunner{tbl: g.tbl}), WithChecker(command.AlwaysStale{}))
	require.NoError(t, err)
	require.NoError(t, e.Run(b))
	res := e.Start(context.Background()).Wait()

	assert.False(t, res.OK())
	assert.Equal(t, []*command.Command{b}, res.Deadlocked)
	assert.Zero(t, res.Ran)
	assert.Equal(t, command.NotReady, b.State())
}

func TestJobsMustBePositive(t *testing.T) {
	_, err := New(command.NewTable(), 0, nil)
	assert.ErrorIs(t, err, builderr.ErrConfiguration)
}

func TestRegistration(t *testing.T) {
	g := newGraph(t)
	a := g.add("a")

	other := command.NewTable()
	foreign, err := other.New("x", "x", nil, nil, command.Invocation{})
	require.NoError(t, err)

	e, err := New(g.tbl, 1, report.Silent{}, WithRunner(&fakeRunner{tbl: g.tbl}))
	require.NoError(t, err)
	assert.Error(t, e.Run(foreign))
	require.NoError(t, e.Run(a))
	require.NoError(t, e.Run(a), "registering twice is a no-op")

	h := e.Start(context.Background())
	assert.Error(t, e.Run(a), "no registration after start")
	<-h.Done()
	assert.Equal(t, 1, h.Wait().Ran)
}

func TestCancelledBeforeStart(t *testing.T) {
	g := newGraph(t)
	g.add("a")
	g.add("b", "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, fr := g.runWith(ctx, 2, nil)
	assert.True(t, res.Cancelled)
	assert.False(t, res.OK())
	assert.Zero(t, res.Ran)
	assert.Empty(t, fr.ran)
	assert.Empty(t, res.Deadlocked)
}

func TestProcessRunner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	var r ProcessRunner
	ctx := context.Background()

	code, out := r.Run(ctx, command.Invocation{Argv: []string{"sh", "-c", "echo hi; echo err >&2; exit 3"}})
	assert.Equal(t, 3, code)
	assert.Equal(t, "hi\nerr\n", string(out))

	code, _ = r.Run(ctx, command.Invocation{Argv: []string{"sh", "-c", "pwd"}, Dir: t.TempDir()})
	assert.Zero(t, code)

	code, _ = r.Run(ctx, command.Invocation{Argv: []string{"definitely-not-a-real-binary-1234"}})
	assert.Equal(t, -1, code)

	code, _ = r.Run(ctx, command.Invocation{})
	assert.Equal(t, -1, code)
}

func TestDefaultJobs(t *testing.T) {
	assert.GreaterOrEqual(t, DefaultJobs(), 4)
}
