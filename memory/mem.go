package memory

import (
	"context"
	"sync"
	"time"
)

// MemStore is an in-process Store and AuditLog. It is used when the bot runs
// without a database (MEMORY_BACKEND=memory) and by tests.
type MemStore struct {
	mu     sync.Mutex
	nextID int64
	turns  map[string][]Turn
	log    map[string]LogEntry
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{turns: make(map[string][]Turn), log: make(map[string]LogEntry)}
}

func roomKey(platform, room string) string { return platform + "\x00" + room }

func (m *MemStore) Append(_ context.Context, t Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	t.ID = m.nextID
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	k := roomKey(t.Platform, t.Room)
	m.turns[k] = append(m.turns[k], t)
	return nil
}

func (m *MemStore) Recent(_ context.Context, platform, room string, limit int) ([]Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.turns[roomKey(platform, room)]
	limit = ClampLimit(limit)
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]Turn(nil), all...), nil
}

func (m *MemStore) Log(_ context.Context, e LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := roomKey(e.Platform, e.MsgID)
	if prev, ok := m.log[k]; ok {
		prev.Response = e.Response
		prev.Moderated = e.Moderated
		m.log[k] = prev
		return nil
	}
	m.log[k] = e
	return nil
}

// Entries returns a copy of the audit rows.
func (m *MemStore) Entries() []LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]LogEntry, 0, len(m.log))
	for _, e := range m.log {
		out = append(out, e)
	}
	return out
}
