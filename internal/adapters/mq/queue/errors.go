package queue

import "errors"

var (
	ErrFull   = errors.New("purge queue is full")
	ErrClosed = errors.New("purge queue is closed")
)
