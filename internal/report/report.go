// Package report surfaces build progress. Reporters are called from a single
// goroutine and need no locking.
package report

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/qobs-build/evoke/internal/command"
	"github.com/qobs-build/evoke/internal/msg"
)

type Reporter interface {
	// Begin is called once with the number of commands that will be
	// scheduled.
	Begin(total int)
	Started(c *command.Command)
	// Finished is called when c reached a terminal state, including Skipped.
	Finished(c *command.Command)
	End(s Summary)
}

// Summary is the outcome of a run.
type Summary struct {
	Succeeded  int
	Failed     int
	Skipped    int
	Ran        int
	Deadlocked int
	Cancelled  bool
	Elapsed    time.Duration
}

func (s Summary) OK() bool {
	return s.Failed == 0 && s.Deadlocked == 0 && !s.Cancelled
}

func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d succeeded, %d failed, %d skipped (%d ran) in %s",
		s.Succeeded, s.Failed, s.Skipped, s.Ran, s.Elapsed.Round(time.Millisecond))
	if s.Deadlocked > 0 {
		fmt.Fprintf(&b, ", %d stuck", s.Deadlocked)
	}
	if s.Cancelled {
		b.WriteString(", cancelled")
	}
	return b.String()
}

type Kind int

const (
	KindGuess Kind = iota
	KindConsole
	KindProgress
	KindSimple
	KindSilent
)

var kindNames = []string{"guess", "console", "progress", "simple", "silent"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func Kinds() []string { return slices.Clone(kindNames) }

func ParseKind(name string) (Kind, error) {
	i := slices.Index(kindNames, strings.ToLower(name))
	if i < 0 {
		return 0, fmt.Errorf("unknown reporter %q, expected one of: %s", name, strings.Join(kindNames, ", "))
	}
	return Kind(i), nil
}

// New creates a reporter writing to w. KindGuess picks the progress bar when
// w is a terminal and the simple reporter otherwise.
func New(kind Kind, w io.Writer) Reporter {
	if kind == KindGuess {
		kind = KindSimple
		if isTerminal(w) {
			kind = KindProgress
		}
	}
	switch kind {
	case KindConsole:
		return &Console{W: w}
	case KindProgress:
		return &Progress{W: w}
	case KindSilent:
		return Silent{}
	default:
		return &Simple{W: w}
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func label(c *command.Command) string { return c.String() }

// printFailure writes the exit code and the captured output of c.
func printFailure(w io.Writer, c *command.Command) {
	fmt.Fprintf(w, "%s: %s (exit code %d)\n", color.HiRedString("FAILED"), label(c), c.ExitCode())
	fmt.Fprintf(w, "  %s\n", c.Invocation.Text())
	if out := c.Output(); len(out) > 0 {
		iw := &msg.IndentWriter{Indent: "    ", W: w}
		iw.Write(out)
		if out[len(out)-1] != '\n' {
			fmt.Fprintln(w)
		}
	}
}

// Console prints a line for every started command and the output of every
// finished one.
type Console struct {
	W     io.Writer
	total int
	n     int
}

func (r *Console) Begin(total int) { r.total = total }

func (r *Console) Started(c *command.Command) {
	r.n++
	fmt.Fprintf(r.W, "%s %s\n", color.HiBlackString("[%d/%d]", r.n, r.total), label(c))
}

func (r *Console) Finished(c *command.Command) {
	switch c.State() {
	case command.Failed:
		printFailure(r.W, c)
	case command.Skipped:
		fmt.Fprintf(r.W, "%s: %s\n", color.YellowString("skipped"), label(c))
	case command.Succeeded:
		if out := c.Output(); len(out) > 0 {
			iw := &msg.IndentWriter{Indent: "    ", W: r.W}
			iw.Write(out)
		}
	}
}

func (r *Console) End(s Summary) {
	status := color.HiGreenString("done")
	if !s.OK() {
		status = color.HiRedString("failed")
	}
	fmt.Fprintf(r.W, "%s: %s\n", status, s)
}

// Simple prints one uncolored line per finished command, for logs and CI.
type Simple struct {
	W io.Writer
}

func (r *Simple) Begin(int) {}

func (r *Simple) Started(*command.Command) {}

func (r *Simple) Finished(c *command.Command) {
	switch c.State() {
	case command.Failed:
		fmt.Fprintf(r.W, "FAILED %s (exit code %d)\n", label(c), c.ExitCode())
		if out := c.Output(); len(out) > 0 {
			iw := &msg.IndentWriter{Indent: "  ", W: r.W}
			iw.Write(out)
			if out[len(out)-1] != '\n' {
				fmt.Fprintln(r.W)
			}
		}
	case command.Skipped:
		fmt.Fprintf(r.W, "skipped %s\n", label(c))
	default:
		fmt.Fprintf(r.W, "ok %s\n", label(c))
	}
}

func (r *Simple) End(s Summary) {
	fmt.Fprintln(r.W, s)
}

// Progress draws a progress bar and prints failures above it.
type Progress struct {
	W  io.Writer
	pb *msg.ProgressBar
}

func (r *Progress) Begin(total int) {
	r.pb = msg.NewProgressBar(int64(total), 0, r.W)
}

func (r *Progress) Started(c *command.Command) {
	r.pb.Add(0, label(c))
}

func (r *Progress) Finished(c *command.Command) {
	if c.State() == command.Failed {
		fmt.Fprint(r.W, "\r\033[K")
		printFailure(r.W, c)
		r.pb.Add(1, label(c))
		r.pb.Redraw()
		return
	}
	r.pb.Add(1, label(c))
}

func (r *Progress) End(s Summary) {
	r.pb.Finish()
	if !s.OK() {
		fmt.Fprintln(r.W, s)
	}
}

// Silent reports nothing.
type Silent struct{}

func (Silent) Begin(int)                 {}
func (Silent) Started(*command.Command)  {}
func (Silent) Finished(*command.Command) {}
func (Silent) End(Summary)               {}
