// Package errs implements the error taxonomy of SPEC_FULL §7 using plain
// stdlib sentinel errors and fmt.Errorf wrapping, the idiom the rest of
// this codebase's dependency pack uses rather than an errors framework.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrValidation            = errors.New("validation error")
	ErrCycleDetected          = errors.New("cycle detected")
	ErrUnknownDependency      = errors.New("unknown dependency")
	ErrUnsupportedResourceKind = errors.New("unsupported resource kind")
	ErrSubmit                = errors.New("submit error")
	ErrObserve               = errors.New("observe error")
	ErrStore                 = errors.New("store error")
	ErrCleanup               = errors.New("cleanup error")
	ErrCancelRequested       = errors.New("cancel requested")
)

// Validation builds a ValidationError from a formatted message:
// surfaced, no run created.
func Validation(format string, args ...any) error {
	return wrap(ErrValidation, format, args...)
}

// CycleDetected names the offending node per spec §4.2/S4.
func CycleDetected(node string) error {
	return wrap(ErrCycleDetected, "task %q participates in a dependency cycle", node)
}

func UnknownDependency(task, dep string) error {
	return wrap(ErrUnknownDependency, "task %q depends on unknown task %q", task, dep)
}

func UnsupportedResourceKind(kind string) error {
	return wrap(ErrUnsupportedResourceKind, "resource kind %q has no registered handler", kind)
}

func Submit(taskLabel string, cause error) error {
	return wrap(ErrSubmit, "submit %s: %v", taskLabel, cause)
}

func Observe(taskLabel string, cause error) error {
	return wrap(ErrObserve, "observe %s: %v", taskLabel, cause)
}

func Store(op string, cause error) error {
	return wrap(ErrStore, "store %s: %v", op, cause)
}

func Cleanup(taskLabel string, cause error) error {
	return wrap(ErrCleanup, "cleanup %s: %v", taskLabel, cause)
}

func wrap(sentinel error, format string, args ...any) error {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &taxonomyError{sentinel: sentinel, msg: fmt.Sprintf("%s: %s", sentinel, msg)}
}

type taxonomyError struct {
	sentinel error
	msg      string
}

func (e *taxonomyError) Error() string { return e.msg }
func (e *taxonomyError) Unwrap() error { return e.sentinel }
