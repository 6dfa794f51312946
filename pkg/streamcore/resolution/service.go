// Package resolution caches evaluator lookups per agent instance.
//
// Evaluators resolved for one agent instance (script bindings, method
// targets, variable readers) are cached under the instance id. When the
// instance is destroyed its entries are invalidated so a later instance
// never observes a stale binding.
package resolution

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// DefaultTTL bounds how long an unused resolution stays cached.
const DefaultTTL = 10 * time.Minute

type key struct {
	agentInstanceID int
	name            string
}

// Loader resolves an evaluator on a cache miss.
type Loader func() (any, error)

// Service caches resolved evaluators. It is safe for concurrent use.
type Service struct {
	cache *ttlcache.Cache[key, any]
}

// NewService creates a service whose entries expire after ttl of disuse.
// A non-positive ttl uses DefaultTTL.
func NewService(ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		cache: ttlcache.New[key, any](
			ttlcache.WithTTL[key, any](ttl),
		),
	}
}

// Resolve returns the cached evaluator for (agentInstanceID, name),
// calling load on a miss. Load errors are not cached.
func (s *Service) Resolve(agentInstanceID int, name string, load Loader) (any, error) {
	k := key{agentInstanceID: agentInstanceID, name: name}
	if item := s.cache.Get(k); item != nil {
		return item.Value(), nil
	}

	v, err := load()
	if err != nil {
		return nil, err
	}
	s.cache.Set(k, v, ttlcache.DefaultTTL)
	return v, nil
}

// Cached reports whether a live entry exists for (agentInstanceID, name).
func (s *Service) Cached(agentInstanceID int, name string) bool {
	return s.cache.Has(key{agentInstanceID: agentInstanceID, name: name})
}

// DestroyedAgentInstance drops every entry of the agent instance and
// purges expired entries of other instances.
func (s *Service) DestroyedAgentInstance(agentInstanceID int) {
	for _, k := range s.cache.Keys() {
		if k.agentInstanceID == agentInstanceID {
			s.cache.Delete(k)
		}
	}
	s.cache.DeleteExpired()
}

// Len returns the number of cached entries.
func (s *Service) Len() int {
	return s.cache.Len()
}
