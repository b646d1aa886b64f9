// Package command models one schedulable compiler or linker invocation and
// its lifecycle:
//
//	NotReady -> ToBeRun -> Running -> Succeeded | Failed
//	NotReady -> Succeeded        (output already fresh, nothing to run)
//	NotReady | ToBeRun -> Skipped (a dependency failed)
//
// Commands refer to their dependencies by ID, never by pointer. All commands
// of a build live in one Table.
package command

import (
	"fmt"
	"strings"
	"sync"
)

type State int

const (
	NotReady State = iota
	ToBeRun
	Running
	Succeeded
	Failed
	Skipped
)

var stateNames = [...]string{"NotReady", "ToBeRun", "Running", "Succeeded", "Failed", "Skipped"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed || s == Skipped
}

func allowed(from, to State) bool {
	switch from {
	case NotReady:
		return to == ToBeRun || to == Succeeded || to == Skipped
	case ToBeRun:
		return to == Running || to == Skipped
	case Running:
		return to == Succeeded || to == Failed
	}
	return false
}

// ID indexes a Command in its Table.
type ID int

// Invocation is the payload a toolset attaches to a command. The executor
// treats it as opaque: run Argv in Dir.
type Invocation struct {
	Dir     string
	Argv    []string
	Display string // short label for reporters, e.g. "CC a/a.cpp"
}

// Text renders the invocation as a single shell command line.
func (inv Invocation) Text() string {
	quoted := make([]string, len(inv.Argv))
	for i, arg := range inv.Argv {
		quoted[i] = shellQuote(arg)
	}
	return strings.Join(quoted, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n\"'\\$`*?;&|<>()[]{}#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

type Command struct {
	ID         ID
	Owner      string   // component that owns this command
	Target     string   // declared output artifact
	Inputs     []string // declared input files
	Deps       []ID
	Invocation Invocation

	mu       sync.Mutex
	state    State
	exitCode int
	output   []byte
}

func (c *Command) String() string {
	if c.Invocation.Display != "" {
		return c.Invocation.Display
	}
	return c.Target
}

func (c *Command) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ExitCode of the finished process; only meaningful once Succeeded or Failed.
func (c *Command) ExitCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exitCode
}

// Output is the combined stdout/stderr captured from the process.
func (c *Command) Output() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.output
}

// Transition moves the command from one state to another. It fails when the
// command is not in `from` or the move is not part of the lifecycle.
func (c *Command) Transition(from, to State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transitionLocked(from, to)
}

func (c *Command) transitionLocked(from, to State) error {
	if c.state != from {
		return fmt.Errorf("command %d (%s): expected state %s, got %s", c.ID, c, from, c.state)
	}
	if !allowed(from, to) {
		return fmt.Errorf("command %d (%s): illegal transition %s -> %s", c.ID, c, from, to)
	}
	c.state = to
	return nil
}

// Finish records the process result and moves a Running command to
// Succeeded (exit code 0) or Failed.
func (c *Command) Finish(exitCode int, output []byte) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	to := Succeeded
	if exitCode != 0 {
		to = Failed
	}
	if err := c.transitionLocked(Running, to); err != nil {
		return c.state, err
	}
	c.exitCode = exitCode
	c.output = output
	return to, nil
}

// Skip marks a command that has not started as Skipped. It reports whether
// the state changed.
func (c *Command) Skip() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == NotReady || c.state == ToBeRun {
		c.state = Skipped
		return true
	}
	return false
}
