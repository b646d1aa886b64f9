// Package buildstate persists what a build last produced so a later run can
// skip commands whose invocation did not change.
package buildstate

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/qobs-build/evoke/internal/command"
	"github.com/zeebo/xxh3"
)

// FileName is the state file written into the build directory.
const FileName = ".evoke_state.json"

// Entry is the recorded state of one command target.
type Entry struct {
	Fingerprint string `json:"fingerprint"`
	Run         string `json:"run"` // id of the run that produced it
}

type State struct {
	path string
	mu   sync.Mutex

	// Run identifies the current build run.
	Run     string
	Targets map[string]Entry
}

type file struct {
	LastRun string           `json:"last_run,omitempty"`
	Targets map[string]Entry `json:"targets"`
}

// Load reads the state file at path. A missing file gives an empty state.
func Load(path string) (*State, error) {
	s := &State{
		path:    path,
		Run:     uuid.NewString(),
		Targets: make(map[string]Entry),
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil // no previous state, that's fine
		}
		return nil, err
	}
	defer f.Close()

	var stored file
	if err := json.NewDecoder(bufio.NewReader(f)).Decode(&stored); err != nil {
		return nil, fmt.Errorf("corrupt build state %s: %w", path, err)
	}
	for target, e := range stored.Targets {
		s.Targets[target] = e
	}
	return s, nil
}

// Save writes the state back to the file it was loaded from.
func (s *State) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(file{LastRun: s.Run, Targets: s.Targets}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}

func (s *State) Path() string { return s.path }

// Fingerprint hashes what a command does: its working directory and argv.
func Fingerprint(c *command.Command) string {
	h := xxh3.New()
	h.WriteString(c.Invocation.Dir)
	for _, arg := range c.Invocation.Argv {
		h.WriteString("\x00")
		h.WriteString(arg)
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

func (s *State) lookup(target string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.Targets[target]
	return e, ok
}

// Forget drops the entry of a target. A failed command may have left a
// partial output behind that must not count as fresh.
func (s *State) Forget(target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Targets, target)
}

// Checker combines a timestamp check with the recorded fingerprint: a
// command whose flags changed is stale even if its output is newer than its
// inputs.
type Checker struct {
	State *State
	MTime command.MTimeChecker
}

func NewChecker(s *State) *Checker {
	return &Checker{State: s}
}

func (c *Checker) Fresh(cmd *command.Command) bool {
	e, ok := c.State.lookup(cmd.Target)
	if !ok || e.Fingerprint != Fingerprint(cmd) {
		return false
	}
	return c.MTime.Fresh(cmd)
}

func (c *Checker) Record(cmd *command.Command) {
	if cmd.Target == "" {
		return
	}
	c.State.mu.Lock()
	defer c.State.mu.Unlock()
	c.State.Targets[cmd.Target] = Entry{Fingerprint: Fingerprint(cmd), Run: c.State.Run}
}

func (c *Checker) Forget(cmd *command.Command) {
	if cmd.Target != "" {
		c.State.Forget(cmd.Target)
	}
}
