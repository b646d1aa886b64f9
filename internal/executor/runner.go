package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"

	"github.com/klauspost/cpuid/v2"
	"github.com/qobs-build/evoke/internal/command"
)

// Runner executes one invocation and returns its exit code and combined
// output. A process that cannot be started reports exit code -1.
type Runner interface {
	Run(ctx context.Context, inv command.Invocation) (exitCode int, output []byte)
}

// ProcessRunner spawns invocations as child processes. Children are not
// killed when the build context is cancelled.
type ProcessRunner struct{}

func (ProcessRunner) Run(_ context.Context, inv command.Invocation) (int, []byte) {
	if len(inv.Argv) == 0 {
		return -1, []byte("empty command line")
	}
	cmd := exec.Command(inv.Argv[0], inv.Argv[1:]...)
	cmd.Dir = inv.Dir

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if err == nil {
		return 0, out.Bytes()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), out.Bytes()
	}
	fmt.Fprintf(&out, "%v\n", err)
	return -1, out.Bytes()
}

// DefaultJobs is the job count used when none is configured: the number of
// logical cores, but at least 4.
func DefaultJobs() int {
	n := cpuid.CPU.LogicalCores
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return max(4, n)
}
