package utils

import (
	"errors"
	"fmt"
)

// Operations reported in AppError.Op.
const (
	OpSource   = "source"
	OpAssemble = "assemble"
	OpLookup   = "lookup"
	OpCommit   = "commit"
	OpMigrate  = "migrate"
	OpStorage  = "storage"
	OpConfig   = "config"
)

// AppError wraps a persister operation, human-facing message, and underlying error.
type AppError struct {
	Op  string
	Msg string
	Err error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}

// OpOf returns the Op of the outermost AppError in err's chain, or "".
func OpOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Op
	}
	return ""
}
