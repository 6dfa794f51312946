package lock

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGuard_ReleaseIdempotent(t *testing.T) {
	l := NewRWLock("test")
	g := l.Acquire()
	assert.True(t, g.Held())

	g.Release()
	g.Release()
	assert.False(t, g.Held())

	// lock is free again
	g2 := l.Acquire()
	g2.Release()
}

func TestGuard_NilSafe(t *testing.T) {
	var g *Guard
	assert.NotPanics(t, g.Release)
	assert.False(t, g.Held())
}

func TestRWLock_MutualExclusion(t *testing.T) {
	l := NewRWLock("test")
	var inside, overlaps atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				g := l.Acquire()
				if inside.Add(1) > 1 {
					overlaps.Add(1)
				}
				inside.Add(-1)
				g.Release()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(0), overlaps.Load())
}

func TestRWLock_ReadersBlockWriter(t *testing.T) {
	l := NewRWLock("test")
	r := l.AcquireRead()

	acquired := make(chan struct{})
	go func() {
		g := l.Acquire()
		close(acquired)
		g.Release()
	}()

	select {
	case <-acquired:
		t.Fatal("writer acquired while reader held the lock")
	case <-time.After(20 * time.Millisecond):
	}

	r.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("writer never acquired the lock")
	}
}

func TestNoopLock_NeverBlocks(t *testing.T) {
	l := NewNoopLock("noop")
	g1 := l.Acquire()
	g2 := l.Acquire()
	assert.True(t, g1.Held())
	assert.True(t, g2.Held())
	g1.Release()
	g2.Release()
	assert.Equal(t, "noop", l.Name())
}

func TestDefaultFactory(t *testing.T) {
	tests := []struct {
		name        string
		cfg         FactoryConfig
		annotations map[string]string
		stateless   bool
		wantNoop    bool
	}{
		{name: "default", wantNoop: false},
		{name: "stateless without config", stateless: true, wantNoop: false},
		{name: "stateless no lock", cfg: FactoryConfig{StatelessNoLock: true}, stateless: true, wantNoop: true},
		{name: "stateful ignores stateless config", cfg: FactoryConfig{StatelessNoLock: true}, wantNoop: false},
		{name: "disabled", cfg: FactoryConfig{DisableLocking: true}, wantNoop: true},
		{name: "annotation", annotations: map[string]string{"nolock": ""}, wantNoop: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewFactory(tt.cfg).Lock("orders", tt.annotations, tt.stateless)
			_, isNoop := l.(*NoopLock)
			assert.Equal(t, tt.wantNoop, isNoop)
			assert.Equal(t, "stmt.orders", l.Name())
		})
	}
}

func TestTracker_ReleaseAll(t *testing.T) {
	table := NewRWLock("table")
	tr := NewTracker()

	tr.Acquire(table)
	tr.Acquire(table)
	assert.Equal(t, 2, tr.Len())

	tr.ReleaseAll()
	assert.Equal(t, 0, tr.Len())

	// write lock is obtainable once all read guards are released
	done := make(chan struct{})
	go func() {
		table.Acquire().Release()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("table lock still held")
	}
}
