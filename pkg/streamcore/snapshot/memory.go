package snapshot

import (
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps snapshots in memory. Data is lost when the process exits.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]map[string]stored // statement -> partition -> snapshot
	seq    map[string]int
	closed bool
}

type stored struct {
	data      []byte
	sequence  int
	timestamp time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]map[string]stored),
		seq:  make(map[string]int),
	}
}

// Save implements Store.
func (m *MemoryStore) Save(statement, partition string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	if m.data[statement] == nil {
		m.data[statement] = make(map[string]stored)
	}
	m.seq[statement]++

	m.data[statement][partition] = stored{
		data:      append([]byte(nil), data...),
		sequence:  m.seq[statement],
		timestamp: time.Now().UTC(),
	}
	return nil
}

// Load implements Store.
func (m *MemoryStore) Load(statement, partition string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	s, ok := m.data[statement][partition]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), s.data...), nil
}

// List implements Store.
func (m *MemoryStore) List(statement string) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	infos := make([]Info, 0, len(m.data[statement]))
	for partition, s := range m.data[statement] {
		infos = append(infos, Info{
			Statement: statement,
			Partition: partition,
			Sequence:  s.sequence,
			Timestamp: s.timestamp,
			Size:      int64(len(s.data)),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Sequence < infos[j].Sequence
	})
	return infos, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(statement, partition string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	delete(m.data[statement], partition)
	return nil
}

// DeleteStatement implements Store.
func (m *MemoryStore) DeleteStatement(statement string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	delete(m.data, statement)
	delete(m.seq, statement)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.data = nil
	return nil
}
