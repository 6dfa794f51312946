package resolution

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_ResolveCaches(t *testing.T) {
	s := NewService(time.Minute)
	calls := 0
	load := func() (any, error) {
		calls++
		return "evaluator", nil
	}

	v, err := s.Resolve(1, "fn", load)
	require.NoError(t, err)
	assert.Equal(t, "evaluator", v)

	v, err = s.Resolve(1, "fn", load)
	require.NoError(t, err)
	assert.Equal(t, "evaluator", v)
	assert.Equal(t, 1, calls)
	assert.True(t, s.Cached(1, "fn"))
}

func TestService_LoadErrorNotCached(t *testing.T) {
	s := NewService(0)
	boom := errors.New("boom")

	_, err := s.Resolve(1, "fn", func() (any, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, s.Cached(1, "fn"))
}

func TestService_DestroyedAgentInstance(t *testing.T) {
	s := NewService(time.Minute)
	load := func() (any, error) { return 1, nil }

	_, _ = s.Resolve(1, "a", load)
	_, _ = s.Resolve(1, "b", load)
	_, _ = s.Resolve(2, "a", load)
	assert.Equal(t, 3, s.Len())

	s.DestroyedAgentInstance(1)
	assert.False(t, s.Cached(1, "a"))
	assert.False(t, s.Cached(1, "b"))
	assert.True(t, s.Cached(2, "a"))
	assert.Equal(t, 1, s.Len())
}
