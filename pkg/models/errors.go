package models

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds returned by the engine. Wrap them with fmt.Errorf("%w: ...")
// and test with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrForbidden       = errors.New("forbidden")
	ErrExpired         = errors.New("expired")
	ErrInvalidState    = errors.New("invalid state")
	ErrInvalidArgument = errors.New("invalid argument")
)

// ErrWarning matches every *WarningError
var ErrWarning = errors.New("warning")

// LimitExceededError is returned when an organization limit would be exceeded
type LimitExceededError struct {
	Resource string
	Current  int64
	Limit    int64
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("forbidden: %s limit exceeded (%d/%d)", e.Resource, e.Current, e.Limit)
}

// Is makes limit errors match ErrForbidden
func (e *LimitExceededError) Is(target error) bool {
	return target == ErrForbidden
}

// IsLimitExceeded checks if an error is a limit exceeded error
func IsLimitExceeded(err error) bool {
	var le *LimitExceededError
	return errors.As(err, &le)
}

// WarningError reports side effects that failed after the primary mutation
// was applied. The operation's result is still valid when a WarningError is
// returned.
type WarningError struct {
	Op     string
	causes []error
}

func (e *WarningError) Error() string {
	msgs := make([]string, 0, len(e.causes))
	for _, c := range e.causes {
		msgs = append(msgs, c.Error())
	}
	return fmt.Sprintf("%s applied with warnings: %s", e.Op, strings.Join(msgs, "; "))
}

// Is makes warnings match ErrWarning only, so a failed side effect never
// looks like a failed operation.
func (e *WarningError) Is(target error) bool {
	return target == ErrWarning
}

// Causes returns the underlying side-effect failures
func (e *WarningError) Causes() []error {
	return append([]error(nil), e.causes...)
}

// IsWarning reports whether err only carries warnings
func IsWarning(err error) bool {
	return err != nil && errors.Is(err, ErrWarning)
}

// JoinWarnings folds errs into a single *WarningError for op.
// Nil entries are skipped and nested warnings are flattened. Returns nil
// when there is nothing to report.
func JoinWarnings(op string, errs ...error) error {
	var causes []error
	for _, err := range errs {
		if err == nil {
			continue
		}
		var w *WarningError
		if errors.As(err, &w) {
			causes = append(causes, w.causes...)
			continue
		}
		causes = append(causes, err)
	}
	if len(causes) == 0 {
		return nil
	}
	return &WarningError{Op: op, causes: causes}
}

// Fatal returns err unless it only carries warnings
func Fatal(err error) error {
	if IsWarning(err) {
		return nil
	}
	return err
}
