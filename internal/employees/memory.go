package employees

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/imrishuroy/go-dispatch-pipeline/internal/pipeline"
)

// Reader is the read side shared by Store and MemoryStore.
type Reader interface {
	Get(ctx context.Context, employeeID, employeeName string) (*Record, error)
	QueryByPartition(ctx context.Context, employeeID string) ([]Record, error)
	QueryByIndex(ctx context.Context, age, designation string) ([]Record, error)
}

type memEntry struct {
	rec       Record
	writtenAt time.Time
}

// MemoryStore keeps records in process for local runs. Index reads only see
// writes older than IndexLag, like a projection that trails the table.
type MemoryStore struct {
	mu       sync.RWMutex
	items    map[string]memEntry
	IndexLag time.Duration
	now      func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore(indexLag time.Duration) *MemoryStore {
	return &MemoryStore{items: map[string]memEntry{}, IndexLag: indexLag, now: time.Now}
}

func memKey(id, name string) string { return id + "\x00" + name }

func (m *MemoryStore) Put(ctx context.Context, rec Record) error {
	if rec.EmployeeID == "" || rec.EmployeeName == "" {
		return fmt.Errorf("%w: %w", pipeline.ErrPersistFailure, ErrMissingKey)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[memKey(rec.EmployeeID, rec.EmployeeName)] = memEntry{rec: rec, writtenAt: m.now()}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, employeeID, employeeName string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.items[memKey(employeeID, employeeName)]
	if !ok {
		return nil, nil
	}
	rec := e.rec
	return &rec, nil
}

func (m *MemoryStore) QueryByPartition(ctx context.Context, employeeID string) ([]Record, error) {
	return m.filter(func(e memEntry) bool { return e.rec.EmployeeID == employeeID }), nil
}

func (m *MemoryStore) QueryByIndex(ctx context.Context, age, designation string) ([]Record, error) {
	visibleBefore := m.now().Add(-m.IndexLag)
	return m.filter(func(e memEntry) bool {
		return e.rec.EmployeeAge == age &&
			e.rec.EmployeeDesignation == designation &&
			!e.writtenAt.After(visibleBefore)
	}), nil
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func (m *MemoryStore) filter(keep func(memEntry) bool) []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for _, e := range m.items {
		if keep(e) {
			out = append(out, e.rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EmployeeID != out[j].EmployeeID {
			return out[i].EmployeeID < out[j].EmployeeID
		}
		return out[i].EmployeeName < out[j].EmployeeName
	})
	return out
}
