package registry

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := New[string, int]()

	r.Register("one", 1)
	r.Register("two", 2)
	r.Register("two", 22)

	v, ok := r.Get("one")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = r.Get("two")
	assert.True(t, ok)
	assert.Equal(t, 22, v)

	v, ok = r.Get("three")
	assert.False(t, ok)
	assert.Equal(t, 0, v)
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_RegisterIfAbsent(t *testing.T) {
	r := New[string, int]()
	assert.True(t, r.RegisterIfAbsent("k", 1))
	assert.False(t, r.RegisterIfAbsent("k", 2))

	v, _ := r.Get("k")
	assert.Equal(t, 1, v)
}

func TestRegistry_Remove(t *testing.T) {
	r := New[string, int]()
	r.Register("k", 7)

	v, ok := r.Remove("k")
	assert.True(t, ok)
	assert.Equal(t, 7, v)
	assert.False(t, r.Has("k"))

	_, ok = r.Remove("k")
	assert.False(t, ok)
}

func TestRegistry_RangeAllowsMutation(t *testing.T) {
	r := New[int, int]()
	for i := 0; i < 10; i++ {
		r.Register(i, i)
	}

	visited := 0
	r.Range(func(k, _ int) bool {
		r.Remove(k)
		visited++
		return true
	})
	assert.Equal(t, 10, visited)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_RangeStops(t *testing.T) {
	r := New[int, int]()
	for i := 0; i < 10; i++ {
		r.Register(i, i)
	}
	visited := 0
	r.Range(func(_, _ int) bool {
		visited++
		return visited < 3
	})
	assert.Equal(t, 3, visited)
}

func TestRegistry_Values(t *testing.T) {
	r := New[string, int]()
	r.Register("a", 1)
	r.Register("b", 2)
	assert.ElementsMatch(t, []int{1, 2}, r.Values())
}

func TestRegistry_GetOrCreateOnce(t *testing.T) {
	r := New[string, int]()
	var calls atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v := r.GetOrCreate("key", func() int {
				calls.Add(1)
				return 42
			})
			assert.Equal(t, 42, v)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
}

func TestAssignment_Lifecycle(t *testing.T) {
	a := NewAssignment[string]("prior")
	assert.Equal(t, "prior", a.Name())

	require.NoError(t, a.Assign(1, "strategy-1"))
	require.NoError(t, a.Assign(2, "strategy-2"))

	err := a.Assign(1, "again")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlreadyAssigned))
	assert.Contains(t, err.Error(), "agent instance 1")

	s, ok := a.Lookup(1)
	assert.True(t, ok)
	assert.Equal(t, "strategy-1", s)
	assert.Equal(t, 2, a.Len())

	assert.True(t, a.Deassign(1))
	assert.False(t, a.Deassign(1), "entry is removed exactly once")
	assert.False(t, a.Has(1))
	assert.True(t, a.Has(2))
}

func TestAssignment_ConcurrentInstances(t *testing.T) {
	a := NewAssignment[int]("aggregation")
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			assert.NoError(t, a.Assign(id, id*10))
			v, ok := a.Lookup(id)
			assert.True(t, ok)
			assert.Equal(t, id*10, v)
			assert.True(t, a.Deassign(id))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, a.Len())
}
