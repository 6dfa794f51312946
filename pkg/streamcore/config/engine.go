package config

import (
	"fmt"
	"time"
)

// Engine holds the runtime switches read at engine construction.
type Engine struct {
	// Prioritized orders matches by statement priority and honours
	// preemptive handles.
	Prioritized bool

	// DisableLocking replaces every statement lock with a no-op lock.
	DisableLocking bool

	// StatelessNoLock skips locking for statements that declare
	// themselves stateless.
	StatelessNoLock bool

	// ResolutionTTL bounds how long resolved method results stay cached.
	ResolutionTTL time.Duration

	// MetricsEnabled and TracingEnabled switch the OpenTelemetry
	// instruments on; both default to off.
	MetricsEnabled bool
	TracingEnabled bool

	// SnapshotPath, when non-empty, names a SQLite file that backs
	// partition snapshots. ":memory:" is accepted.
	SnapshotPath string
}

// DefaultEngine returns the engine configuration used when no file is given.
func DefaultEngine() Engine {
	return Engine{
		ResolutionTTL: 10 * time.Minute,
	}
}

// EngineFrom reads the "engine" section of cfg over the defaults.
//
//	engine:
//	  prioritized: true
//	  locking:
//	    disabled: false
//	    statelessNoLock: true
//	  resolution:
//	    ttl: 5m
//	  metrics: true
//	  tracing: false
//	  snapshots: /var/lib/streamcore/snapshots.db
func EngineFrom(cfg Config) (Engine, error) {
	def := DefaultEngine()
	sec := cfg.Sub("engine")

	e := Engine{
		Prioritized:     sec.Bool("prioritized", def.Prioritized),
		DisableLocking:  sec.Bool("locking.disabled", def.DisableLocking),
		StatelessNoLock: sec.Bool("locking.statelessNoLock", def.StatelessNoLock),
		ResolutionTTL:   sec.Duration("resolution.ttl", def.ResolutionTTL),
		MetricsEnabled:  sec.Bool("metrics", def.MetricsEnabled),
		TracingEnabled:  sec.Bool("tracing", def.TracingEnabled),
		SnapshotPath:    sec.String("snapshots", def.SnapshotPath),
	}
	if e.ResolutionTTL < 0 {
		return Engine{}, fmt.Errorf("engine.resolution.ttl must not be negative, got %s", e.ResolutionTTL)
	}
	return e, nil
}
