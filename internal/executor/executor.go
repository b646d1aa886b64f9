// Package executor runs commands of a command table with bounded
// concurrency, strictly in dependency order.
//
// A single coordinator goroutine owns the ready set and every state change
// that follows a completion. Workers only run invocations and hand the
// result back, so no command can be claimed twice and no readiness
// transition can be missed.
package executor

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/qobs-build/evoke/internal/builderr"
	"github.com/qobs-build/evoke/internal/command"
	"github.com/qobs-build/evoke/internal/msg"
	"github.com/qobs-build/evoke/internal/report"
	"golang.org/x/sync/errgroup"
)

type Executor struct {
	tbl      *command.Table
	jobs     int
	reporter report.Reporter
	runner   Runner
	checker  command.Checker

	registered map[command.ID]bool
	order      []*command.Command
	started    bool
}

type Option func(*Executor)

func WithRunner(r Runner) Option {
	return func(e *Executor) { e.runner = r }
}

func WithChecker(c command.Checker) Option {
	return func(e *Executor) { e.checker = c }
}

// New creates an executor running at most jobs commands at a time.
func New(tbl *command.Table, jobs int, r report.Reporter, opts ...Option) (*Executor, error) {
	if jobs < 1 {
		return nil, &builderr.ConfigurationError{Field: "jobs", Value: jobs, Reason: "must be at least 1"}
	}
	if r == nil {
		r = report.Silent{}
	}
	e := &Executor{
		tbl:        tbl,
		jobs:       jobs,
		reporter:   r,
		runner:     ProcessRunner{},
		checker:    command.MTimeChecker{},
		registered: make(map[command.ID]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run registers c for scheduling. Terminal commands are ignored.
func (e *Executor) Run(c *command.Command) error {
	if e.started {
		return fmt.Errorf("executor already started, cannot register %s", c)
	}
	if e.tbl.Get(c.ID) != c {
		return fmt.Errorf("command %s is not part of the executor's table", c)
	}
	if c.State().Terminal() || e.registered[c.ID] {
		return nil
	}
	e.registered[c.ID] = true
	e.order = append(e.order, c)
	return nil
}

// Result is the outcome of a run.
type Result struct {
	Succeeded int // including commands whose output was already fresh
	Skipped   int
	Failed    []*command.Command
	// Deadlocked lists registered commands that could never become ready,
	// e.g. because a dependency was not registered.
	Deadlocked []*command.Command
	// Ran counts Running transitions.
	Ran       int
	Cancelled bool
	Elapsed   time.Duration
}

func (r *Result) OK() bool {
	return len(r.Failed) == 0 && len(r.Deadlocked) == 0 && !r.Cancelled
}

func (r *Result) Summary() report.Summary {
	return report.Summary{
		Succeeded:  r.Succeeded,
		Failed:     len(r.Failed),
		Skipped:    r.Skipped,
		Ran:        r.Ran,
		Deadlocked: len(r.Deadlocked),
		Cancelled:  r.Cancelled,
		Elapsed:    r.Elapsed,
	}
}

// Handle is returned by Start and completes when no registered command can
// make further progress.
type Handle struct {
	done   chan struct{}
	result *Result
}

// Wait blocks until the run is over.
func (h *Handle) Wait() *Result {
	<-h.done
	return h.result
}

func (h *Handle) Done() <-chan struct{} { return h.done }

// Start begins scheduling. Cancelling ctx stops dispatching new commands;
// commands already running finish normally.
func (e *Executor) Start(ctx context.Context) *Handle {
	e.started = true
	h := &Handle{done: make(chan struct{}), result: &Result{}}
	go func() {
		defer close(h.done)
		e.coordinate(ctx, h.result)
	}()
	return h
}

type completion struct {
	c        *command.Command
	exitCode int
	output   []byte
}

// run is the coordinator's state.
type run struct {
	e     *Executor
	res   *Result
	ready []*command.Command
}

func (e *Executor) coordinate(ctx context.Context, res *Result) {
	start := time.Now()
	r := &run{e: e, res: res}

	// initial evaluation, in ID order so dependencies come first
	slices.SortFunc(e.order, func(a, b *command.Command) int { return int(a.ID - b.ID) })
	var pending int
	for _, c := range e.order {
		st, err := e.tbl.Reevaluate(c, e.checker)
		if err != nil {
			msg.Debug("evaluate %s: %v", c, err)
		}
		switch st {
		case command.Succeeded:
			res.Succeeded++
		case command.Skipped:
			res.Skipped++
		case command.ToBeRun:
			r.ready = append(r.ready, c)
			pending++
		default:
			pending++
		}
	}
	e.reporter.Begin(pending)

	work := make(chan *command.Command)
	done := make(chan completion, e.jobs)

	// children are never interrupted
	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	for range e.jobs {
		g.Go(func() error {
			for c := range work {
				code, out := e.runner.Run(gctx, c.Invocation)
				done <- completion{c: c, exitCode: code, output: out}
			}
			return nil
		})
	}

	running := 0
	for {
		for len(r.ready) > 0 && running < e.jobs {
			if ctx.Err() != nil {
				res.Cancelled = true
				break
			}
			c := r.ready[0]
			r.ready = r.ready[1:]
			if err := c.Transition(command.ToBeRun, command.Running); err != nil {
				msg.Debug("claim %s: %v", c, err)
				continue
			}
			res.Ran++
			running++
			e.reporter.Started(c)
			work <- c
		}
		if running == 0 {
			break
		}
		r.complete(<-done)
		running--
	}
	close(work)
	g.Wait()

	if !res.Cancelled {
		for _, c := range e.order {
			if !c.State().Terminal() {
				res.Deadlocked = append(res.Deadlocked, c)
			}
		}
	}
	res.Elapsed = time.Since(start)
	e.reporter.End(res.Summary())
}

// complete records the outcome of a finished command and re-evaluates what
// depends on it.
func (r *run) complete(done completion) {
	e, c := r.e, done.c
	st, err := c.Finish(done.exitCode, done.output)
	if err != nil {
		msg.Debug("finish %s: %v", c, err)
		return
	}
	e.reporter.Finished(c)

	if st == command.Failed {
		r.res.Failed = append(r.res.Failed, c)
		e.checker.Forget(c)
		for _, id := range e.tbl.Downstream(c.ID) {
			d := e.tbl.Get(id)
			if e.registered[id] && d.Skip() {
				r.res.Skipped++
				r.drop(d)
				e.reporter.Finished(d)
			}
		}
		return
	}

	r.res.Succeeded++
	e.checker.Record(c)

	// a fresh dependent succeeds without running and may unlock others
	queue := slices.Clone(e.tbl.Dependents(c.ID))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		d := e.tbl.Get(id)
		if !e.registered[id] || d.State() != command.NotReady {
			continue
		}
		st, err := e.tbl.Reevaluate(d, e.checker)
		if err != nil {
			msg.Debug("evaluate %s: %v", d, err)
			continue
		}
		switch st {
		case command.ToBeRun:
			r.ready = append(r.ready, d)
		case command.Succeeded:
			r.res.Succeeded++
			e.reporter.Finished(d)
			queue = append(queue, e.tbl.Dependents(id)...)
		case command.Skipped:
			r.res.Skipped++
			e.reporter.Finished(d)
		}
	}
}

// drop removes a skipped command from the ready set.
func (r *run) drop(c *command.Command) {
	r.ready = slices.DeleteFunc(r.ready, func(x *command.Command) bool { return x == c })
}
