package command

import (
	"fmt"
	"slices"
)

// Table owns every command of a build. IDs are dense indexes and a command
// may only depend on commands allocated before it, so ID order is always a
// valid topological order and the table can never contain a cycle.
type Table struct {
	cmds       []*Command
	dependents [][]ID
}

func NewTable() *Table {
	return &Table{}
}

// New allocates a command.
func (t *Table) New(owner, target string, inputs []string, deps []ID, inv Invocation) (*Command, error) {
	id := ID(len(t.cmds))
	for _, d := range deps {
		if d < 0 || d >= id {
			return nil, fmt.Errorf("command %q: dependency %d is not an existing command", target, d)
		}
	}
	c := &Command{
		ID:         id,
		Owner:      owner,
		Target:     target,
		Inputs:     slices.Clone(inputs),
		Deps:       slices.Compact(slices.Sorted(slices.Values(deps))),
		Invocation: inv,
	}
	t.cmds = append(t.cmds, c)
	t.dependents = append(t.dependents, nil)
	for _, d := range c.Deps {
		t.dependents[d] = append(t.dependents[d], id)
	}
	return c, nil
}

func (t *Table) Len() int { return len(t.cmds) }

// Get returns nil for an unknown ID.
func (t *Table) Get(id ID) *Command {
	if id < 0 || int(id) >= len(t.cmds) {
		return nil
	}
	return t.cmds[id]
}

// All returns the commands in ID (dependency) order.
func (t *Table) All() []*Command {
	return slices.Clone(t.cmds)
}

// Dependents returns the commands that directly depend on id.
func (t *Table) Dependents(id ID) []ID {
	if id < 0 || int(id) >= len(t.dependents) {
		return nil
	}
	return t.dependents[id]
}

// Downstream returns the transitive dependents of id, nearest first.
func (t *Table) Downstream(id ID) []ID {
	seen := map[ID]bool{id: true}
	var out []ID
	queue := slices.Clone(t.Dependents(id))
	for len(queue) > 0 {
		d := queue[0]
		queue = queue[1:]
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
		queue = append(queue, t.dependents[d]...)
	}
	return out
}

// depsState summarizes the dependencies of c: whether all of them have
// Succeeded and whether any of them ended Failed or Skipped.
func (t *Table) depsState(c *Command) (allSucceeded, anyBroken bool) {
	allSucceeded = true
	for _, d := range c.Deps {
		switch t.cmds[d].State() {
		case Succeeded:
		case Failed, Skipped:
			anyBroken = true
			allSucceeded = false
		default:
			allSucceeded = false
		}
	}
	return allSucceeded, anyBroken
}

// Reevaluate advances a NotReady command as far as its dependencies allow:
// Skipped when one of them broke, Succeeded when all succeeded and the output
// is fresh, ToBeRun when all succeeded and the output is stale. The resulting
// state is returned; commands in any other state are left untouched.
func (t *Table) Reevaluate(c *Command, checker Checker) (State, error) {
	st := c.State()
	if st != NotReady {
		return st, nil
	}
	allSucceeded, anyBroken := t.depsState(c)
	switch {
	case anyBroken:
		c.Skip()
		return Skipped, nil
	case !allSucceeded:
		return NotReady, nil
	case checker.Fresh(c):
		return Succeeded, c.Transition(NotReady, Succeeded)
	default:
		return ToBeRun, c.Transition(NotReady, ToBeRun)
	}
}

// Evaluate computes the initial state of every command. Commands whose
// dependencies are all fresh start out Succeeded and never run.
func (t *Table) Evaluate(checker Checker) error {
	for _, c := range t.cmds {
		if _, err := t.Reevaluate(c, checker); err != nil {
			return err
		}
	}
	return nil
}

// Pending returns the commands that still need to run or wait on others.
func (t *Table) Pending() []*Command {
	var out []*Command
	for _, c := range t.cmds {
		if st := c.State(); st == NotReady || st == ToBeRun {
			out = append(out, c)
		}
	}
	return out
}
