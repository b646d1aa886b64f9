// Package builderr holds the error taxonomy shared by the scanner, the
// command state machine and the executor.
//
// Every error type unwraps to one of the sentinel kinds below, so callers
// can branch with errors.Is without caring about the concrete type.
package builderr

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	ErrConfiguration = errors.New("configuration error")
	ErrScan          = errors.New("scan error")
	ErrCycle         = errors.New("dependency cycle")
	ErrUnknownHeader = errors.New("unknown header")
	ErrExecution     = errors.New("command failed")
)

// ConfigurationError is fatal and is always raised before anything runs.
type ConfigurationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("%s: %s: %s", ErrConfiguration, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %s %v: %s", ErrConfiguration, e.Field, e.Value, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// Configf is a shorthand for a ConfigurationError without a value.
func Configf(field, format string, a ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, a...)}
}

// ScanError is a per-file failure during scanning. It is never fatal.
type ScanError struct {
	Path string
	Err  error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrScan, e.Path, e.Err)
}

func (e *ScanError) Unwrap() []error { return []error{ErrScan, e.Err} }

// CycleError names every component that takes part in a dependency cycle.
type CycleError struct {
	Components []string
}

// NewCycleError sorts and deduplicates the names so the diagnostic is stable.
func NewCycleError(names []string) *CycleError {
	names = slices.Clone(names)
	slices.Sort(names)
	return &CycleError{Components: slices.Compact(names)}
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s involving: %s", ErrCycle, strings.Join(e.Components, ", "))
}

func (e *CycleError) Unwrap() error { return ErrCycle }

// UnknownHeaderWarning is accumulated during a scan and reported; it never
// stops the build.
type UnknownHeaderWarning struct {
	Name         string
	IncludedFrom string
}

func (e *UnknownHeaderWarning) Error() string {
	return fmt.Sprintf("%s %q included from %s", ErrUnknownHeader, e.Name, e.IncludedFrom)
}

func (e *UnknownHeaderWarning) Unwrap() error { return ErrUnknownHeader }

// ExecutionError is recorded when a spawned process exits non-zero.
type ExecutionError struct {
	Command  string
	ExitCode int
	Output   string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %s (exit code %d)", ErrExecution, e.Command, e.ExitCode)
}

func (e *ExecutionError) Unwrap() error { return ErrExecution }
