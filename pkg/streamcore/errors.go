package streamcore

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// Sentinel errors for agent instance start.
var (
	// ErrNilStatement indicates Start was called without a statement.
	ErrNilStatement = errors.New("statement cannot be nil")

	// ErrNilFactory indicates the statement has no execution plan factory.
	ErrNilFactory = errors.New("statement has no execution plan factory")

	// ErrNilStartResult indicates the factory returned neither a result nor an error.
	ErrNilStartResult = errors.New("factory returned no start result")

	// ErrNilFinalView indicates the start result carries no final view.
	ErrNilFinalView = errors.New("start result has no final view")

	// ErrAgentInstanceExists indicates the agent instance id is already
	// live for the statement.
	ErrAgentInstanceExists = errors.New("agent instance already live")
)

// StartError wraps a failure during agent instance start.
// Everything the start had set up is unwound before it is returned.
type StartError struct {
	// Statement is the name of the statement being started.
	Statement string
	// AgentInstanceID is the id of the agent instance being started.
	AgentInstanceID int
	// Op is the start step that failed ("reserve", "new context",
	// "assign", "preload", "extension").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *StartError) Error() string {
	return fmt.Sprintf("start %s agent instance %d: %s: %v", e.Statement, e.AgentInstanceID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StartError) Unwrap() error {
	return e.Err
}

// PanicError captures a panic raised by user code run on behalf of an
// agent instance: factories, preloads, filter callbacks, internal
// dispatch, stop callbacks and extension hooks.
type PanicError struct {
	// Statement is the name of the owning statement.
	Statement string
	// AgentInstanceID is the id of the agent instance.
	AgentInstanceID int
	// Op names the code that panicked.
	Op string
	// Value is the value passed to panic().
	Value any
	// Stack is the stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("%s agent instance %d panicked in %s: %v", e.Statement, e.AgentInstanceID, e.Op, e.Value)
}

// safeCall runs fn, converting a panic into a *PanicError.
func safeCall(statement string, agentInstanceID int, op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{
				Statement:       statement,
				AgentInstanceID: agentInstanceID,
				Op:              op,
				Value:           r,
				Stack:           string(debug.Stack()),
			}
		}
	}()
	return fn()
}
