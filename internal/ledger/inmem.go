package ledger

import (
	"context"
	"sync"

	"github.com/tinoosan/dubsync/internal/data"
)

// InMemory keeps replication history in process memory only. A restart
// forgets everything, so the engine may copy files that already exist at the
// destination; copies overwrite, so that is safe.
type InMemory struct {
	mu      sync.RWMutex
	records map[string]data.ReplicationRecord
	order   []string
}

func NewInMemory() *InMemory {
	return &InMemory{records: make(map[string]data.ReplicationRecord)}
}

func (l *InMemory) AlreadyReplicated(ctx context.Context, id string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.records[id]
	return ok, nil
}

func (l *InMemory) Get(ctx context.Context, id string) (data.ReplicationRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[id]
	if !ok {
		return data.ReplicationRecord{}, data.ErrNotFound
	}
	return rec, nil
}

func (l *InMemory) MarkReplicated(ctx context.Context, rec data.ReplicationRecord) error {
	if rec.Identity == "" {
		return ErrEmptyIdentity
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.records[rec.Identity]; ok {
		return nil
	}
	l.records[rec.Identity] = rec
	l.order = append(l.order, rec.Identity)
	return nil
}

// List returns records in the order they were marked.
func (l *InMemory) List(ctx context.Context) (data.ReplicationRecords, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(data.ReplicationRecords, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.records[id])
	}
	return out, nil
}

func (l *InMemory) Len(ctx context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records), nil
}
