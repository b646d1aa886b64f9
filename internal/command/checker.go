package command

import (
	"io/fs"
	"os"
)

// Checker decides whether a command's output is up to date. Record is called
// after the command succeeded and Forget after it failed, so checkers keeping
// state can update it.
type Checker interface {
	Fresh(c *Command) bool
	Record(c *Command)
	Forget(c *Command)
}

// MTimeChecker treats the output as fresh when it exists and no declared
// input is newer. Anything that cannot be stat'ed counts as stale.
type MTimeChecker struct {
	Stat func(name string) (fs.FileInfo, error)
}

func (m MTimeChecker) stat(name string) (fs.FileInfo, error) {
	if m.Stat != nil {
		return m.Stat(name)
	}
	return os.Stat(name)
}

func (m MTimeChecker) Fresh(c *Command) bool {
	if c.Target == "" {
		return false
	}
	out, err := m.stat(c.Target)
	if err != nil || out.IsDir() {
		return false
	}
	for _, in := range c.Inputs {
		fi, err := m.stat(in)
		if err != nil {
			return false
		}
		if fi.ModTime().After(out.ModTime()) {
			return false
		}
	}
	return true
}

func (MTimeChecker) Record(*Command) {}
func (MTimeChecker) Forget(*Command) {}

// AlwaysStale forces every command to run.
type AlwaysStale struct{}

func (AlwaysStale) Fresh(*Command) bool { return false }
func (AlwaysStale) Record(*Command)     {}
func (AlwaysStale) Forget(*Command)     {}
