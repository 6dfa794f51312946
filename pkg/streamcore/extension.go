package streamcore

import "context"

// ExtensionHooks are notified when a context partition of a statement
// starts and ends.
type ExtensionHooks interface {
	// StartContextPartition runs at the end of start, after preloads.
	// An error fails the start.
	StartContextPartition(ctx context.Context, result *StartResult, agentInstanceID int) error

	// EndContextPartition runs during stop. An error is logged.
	EndContextPartition(ctx context.Context, agentInstanceID int) error
}
