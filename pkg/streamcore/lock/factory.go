package lock

import "strings"

// NoLockAnnotation marks a statement whose agent instances run unlocked.
const NoLockAnnotation = "NoLock"

// Factory creates agent-instance locks.
type Factory interface {
	// Lock returns a new lock for one agent instance of the named statement.
	Lock(statementName string, annotations map[string]string, stateless bool) Lock
}

// FactoryConfig configures DefaultFactory.
type FactoryConfig struct {
	// DisableLocking hands out no-op locks for every statement.
	DisableLocking bool

	// StatelessNoLock hands out no-op locks for stateless statements.
	StatelessNoLock bool
}

// DefaultFactory creates RWLock instances, or NoopLock when the statement
// is annotated with NoLock or the configuration disables locking for it.
type DefaultFactory struct {
	config FactoryConfig
}

// NewFactory creates a DefaultFactory.
func NewFactory(cfg FactoryConfig) *DefaultFactory {
	return &DefaultFactory{config: cfg}
}

// Lock implements Factory.
func (f *DefaultFactory) Lock(statementName string, annotations map[string]string, stateless bool) Lock {
	name := "stmt." + statementName
	if f.config.DisableLocking || hasAnnotation(annotations, NoLockAnnotation) {
		return NewNoopLock(name)
	}
	if stateless && f.config.StatelessNoLock {
		return NewNoopLock(name)
	}
	return NewRWLock(name)
}

func hasAnnotation(annotations map[string]string, name string) bool {
	for k := range annotations {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}
