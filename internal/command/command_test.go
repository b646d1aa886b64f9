package command

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(filepath.Base(path)), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestTransitions(t *testing.T) {
	tbl := NewTable()
	c, err := tbl.New("a", "a.o", nil, nil, Invocation{})
	require.NoError(t, err)

	assert.Equal(t, NotReady, c.State())
	assert.Error(t, c.Transition(NotReady, Running), "must go through ToBeRun")
	assert.Error(t, c.Transition(ToBeRun, Running), "wrong from state")

	require.NoError(t, c.Transition(NotReady, ToBeRun))
	require.NoError(t, c.Transition(ToBeRun, Running))
	assert.False(t, c.Skip(), "running commands cannot be skipped")

	st, err := c.Finish(2, []byte("boom"))
	require.NoError(t, err)
	assert.Equal(t, Failed, st)
	assert.Equal(t, 2, c.ExitCode())
	assert.Equal(t, "boom", string(c.Output()))

	_, err = c.Finish(0, nil)
	assert.Error(t, err, "finished twice")
	assert.True(t, c.State().Terminal())
}

func TestTableRejectsForwardDeps(t *testing.T) {
	tbl := NewTable()
	_, err := tbl.New("a", "a.o", nil, []ID{0}, Invocation{})
	assert.Error(t, err)

	a, err := tbl.New("a", "a.o", nil, nil, Invocation{})
	require.NoError(t, err)
	b, err := tbl.New("b", "b", nil, []ID{a.ID, a.ID}, Invocation{})
	require.NoError(t, err)
	assert.Equal(t, []ID{a.ID}, b.Deps)
	assert.Equal(t, []ID{b.ID}, tbl.Dependents(a.ID))
	assert.Nil(t, tbl.Get(42))
}

func TestDownstream(t *testing.T) {
	tbl := NewTable()
	a, _ := tbl.New("x", "a", nil, nil, Invocation{})
	b, _ := tbl.New("x", "b", nil, []ID{a.ID}, Invocation{})
	c, _ := tbl.New("x", "c", nil, []ID{b.ID}, Invocation{})
	d, _ := tbl.New("x", "d", nil, []ID{a.ID, c.ID}, Invocation{})
	other, _ := tbl.New("y", "other", nil, nil, Invocation{})

	assert.ElementsMatch(t, []ID{b.ID, c.ID, d.ID}, tbl.Downstream(a.ID))
	assert.Empty(t, tbl.Downstream(other.ID))
}

func TestEvaluate(t *testing.T) {
	dir := t.TempDir()
	old := time.Now().Add(-time.Hour)
	now := time.Now()

	touch(t, filepath.Join(dir, "fresh.cpp"), old)
	touch(t, filepath.Join(dir, "fresh.o"), now)
	touch(t, filepath.Join(dir, "stale.cpp"), now)
	touch(t, filepath.Join(dir, "stale.o"), old)

	tbl := NewTable()
	fresh, _ := tbl.New("a", filepath.Join(dir, "fresh.o"), []string{filepath.Join(dir, "fresh.cpp")}, nil, Invocation{})
	stale, _ := tbl.New("a", filepath.Join(dir, "stale.o"), []string{filepath.Join(dir, "stale.cpp")}, nil, Invocation{})
	missing, _ := tbl.New("a", filepath.Join(dir, "missing.o"), []string{filepath.Join(dir, "fresh.cpp")}, nil, Invocation{})
	unknownInput, _ := tbl.New("a", filepath.Join(dir, "fresh.o"), []string{filepath.Join(dir, "gone.cpp")}, nil, Invocation{})
	link, _ := tbl.New("a", filepath.Join(dir, "app"), []string{filepath.Join(dir, "stale.o")}, []ID{fresh.ID, stale.ID}, Invocation{})

	require.NoError(t, tbl.Evaluate(MTimeChecker{}))

	assert.Equal(t, Succeeded, fresh.State(), "cache hit")
	assert.Equal(t, ToBeRun, stale.State())
	assert.Equal(t, ToBeRun, missing.State())
	assert.Equal(t, ToBeRun, unknownInput.State(), "unknown staleness defaults to stale")
	assert.Equal(t, NotReady, link.State(), "waits for stale dependency")
	assert.Len(t, tbl.Pending(), 4)
}

func TestReevaluateSkipsAfterFailure(t *testing.T) {
	tbl := NewTable()
	a, _ := tbl.New("a", "a.o", nil, nil, Invocation{})
	b, _ := tbl.New("b", "b", nil, []ID{a.ID}, Invocation{})
	require.NoError(t, tbl.Evaluate(AlwaysStale{}))

	require.NoError(t, a.Transition(ToBeRun, Running))
	_, err := a.Finish(1, nil)
	require.NoError(t, err)

	st, err := tbl.Reevaluate(b, AlwaysStale{})
	require.NoError(t, err)
	assert.Equal(t, Skipped, st)
	assert.Equal(t, Skipped, b.State())
}

func TestInvocationText(t *testing.T) {
	inv := Invocation{Argv: []string{"cc", "-DNAME=\"x y\"", "-c", "a b.cpp", "-o", "a.o"}}
	assert.Equal(t, `cc '-DNAME="x y"' -c 'a b.cpp' -o a.o`, inv.Text())
	assert.Equal(t, "''", shellQuote(""))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "ToBeRun", ToBeRun.String())
	assert.Equal(t, "State(99)", State(99).String())
}
