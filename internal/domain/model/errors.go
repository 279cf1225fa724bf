package model

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel error kinds shared by the engine and its adapters.
var (
	ErrLeaderboardNotFound = errors.New("leaderboard not found")
	ErrNoClusterPlacement  = errors.New("account has no cluster placement")
	ErrEntryNotFound       = errors.New("entry not found")
	ErrConflict            = errors.New("conflicting write")
	ErrInvalidArgument     = errors.New("invalid argument")
)

// Engine error codes.
const (
	CodeDB        = "db_error"
	CodeBusy      = "db_busy"
	CodeTimeout   = "timeout"
	CodePlacement = "placement_error"
	CodeFriends   = "friends_error"
)

// EngineError wraps a failure of an underlying collaborator. It is always
// surfaced to callers.
type EngineError struct {
	Op        string
	Code      string
	Retryable bool
	Err       error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// NewEngineError wraps err. Context deadline and cancellation map to a
// retryable timeout. Errors that already are engine errors pass through.
func NewEngineError(op, code string, err error) error {
	if err == nil {
		return nil
	}
	var ee *EngineError
	if errors.As(err, &ee) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &EngineError{Op: op, Code: CodeTimeout, Retryable: true, Err: err}
	}
	return &EngineError{Op: op, Code: code, Retryable: code == CodeBusy, Err: err}
}

// IsRetryable reports whether err is an engine error the caller may retry.
func IsRetryable(err error) bool {
	var ee *EngineError
	return errors.As(err, &ee) && ee.Retryable
}
