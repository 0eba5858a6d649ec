// Package command defines the executor boundary used by the router and the
// interrupt processor, plus the executors shipped with the dispatcher.
package command

import (
	"context"
	"errors"

	"mqtt-dispatcher/internal/payload"
)

// ErrEmptyInput is returned when an Input carries neither a command nor rows
var ErrEmptyInput = errors.New("command input is empty")

// Input is either a raw command string or a parsed interrupt row set
type Input struct {
	Raw  string
	Rows *payload.RowSet
}

// Kind names the input source: "interrupt" for row sets, "command" otherwise
func (in Input) Kind() string {
	if in.Rows != nil {
		return "interrupt"
	}
	return "command"
}

// Result is opaque to callers; it is logged, never interpreted
type Result struct {
	ID     string
	Status string
	Output string
}

// Executor runs a command or an interrupt record
type Executor interface {
	Execute(ctx context.Context, in Input) (Result, error)
}

// ExecutorFunc adapts a function to the Executor interface
type ExecutorFunc func(ctx context.Context, in Input) (Result, error)

// Execute calls f(ctx, in)
func (f ExecutorFunc) Execute(ctx context.Context, in Input) (Result, error) {
	return f(ctx, in)
}
