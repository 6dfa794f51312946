package streamcore

import (
	"context"
	"log/slog"

	"github.com/randalmurphal/streamcore/pkg/streamcore/filter"
	"github.com/randalmurphal/streamcore/pkg/streamcore/observability"
)

// ExceptionHandler receives dispatch failures of one agent instance.
// A failure never affects other agent instances or the rest of the event's
// dispatch. Implementations must not panic; a panic is recovered and logged.
type ExceptionHandler interface {
	HandleException(ctx context.Context, err error, handle *AgentInstanceHandle, evt filter.Event)
}

// ExceptionHandlerFunc adapts a function to ExceptionHandler.
type ExceptionHandlerFunc func(ctx context.Context, err error, handle *AgentInstanceHandle, evt filter.Event)

// HandleException implements ExceptionHandler.
func (f ExceptionHandlerFunc) HandleException(ctx context.Context, err error, handle *AgentInstanceHandle, evt filter.Event) {
	f(ctx, err, handle, evt)
}

// LoggingExceptionHandler logs dispatch failures at error level.
type LoggingExceptionHandler struct {
	Logger *slog.Logger
}

// HandleException implements ExceptionHandler.
func (h LoggingExceptionHandler) HandleException(_ context.Context, err error, handle *AgentInstanceHandle, evt filter.Event) {
	eventType := ""
	if evt != nil {
		eventType = evt.Type()
	}
	observability.LogDispatchError(h.Logger, handle.statement.name, handle.agentInstanceID, eventType, err)
}

// handleException routes err to the statement's handler, falling back to
// the runtime's.
func (r *Runtime) handleException(ctx context.Context, err error, h *AgentInstanceHandle, evt filter.Event) {
	r.metrics.RecordCallbackError(ctx, h.statement.name)

	handler := h.statement.exceptions
	if handler == nil {
		handler = r.exceptions
	}
	if herr := safeCall(h.statement.name, h.agentInstanceID, "exception handler", func() error {
		handler.HandleException(ctx, err, h, evt)
		return nil
	}); herr != nil {
		r.logger.Error("exception handler failed",
			slog.String("statement", h.statement.name),
			slog.Int("agent_instance_id", h.agentInstanceID),
			slog.String("error", herr.Error()),
		)
	}
}
