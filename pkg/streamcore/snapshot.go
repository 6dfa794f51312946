package streamcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/randalmurphal/streamcore/pkg/streamcore/snapshot"
)

// defaultPartition names the snapshot of an unpartitioned agent instance.
const defaultPartition = "default"

// SnapshotPreload returns a preload action that loads the snapshot of one
// partition and passes it to restore. A partition with no snapshot starts
// empty.
func SnapshotPreload(store snapshot.Store, statement, partition string, restore func(data []byte) error) PreloadAction {
	return func(ctx context.Context) error {
		data, err := store.Load(statement, partition)
		if errors.Is(err, snapshot.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load snapshot %s/%s: %w", statement, partition, err)
		}
		if err := restore(data); err != nil {
			return fmt.Errorf("restore snapshot %s/%s: %w", statement, partition, err)
		}
		return nil
	}
}

// saveSnapshot persists the final view's state when the view supports it.
func (r *Runtime) saveSnapshot(ai *AgentInstance) error {
	s, ok := ai.finalView.(Snapshotter)
	if !ok || r.snapshots == nil {
		return nil
	}
	data, err := s.Snapshot()
	if err != nil {
		return fmt.Errorf("take snapshot: %w", err)
	}
	return r.snapshots.Save(ai.context.statement.name, ai.context.partition(), data)
}
