package store

import (
	"context"
	"sync"

	"github.com/joseph-ayodele/receipt-analyzer/internal/entity"
)

// Memory is a process-local RecordStore.
type Memory struct {
	mu      sync.RWMutex
	records map[string]entity.CanonicalReceipt
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]entity.CanonicalReceipt)}
}

var _ RecordStore = (*Memory)(nil)

func (m *Memory) Put(ctx context.Context, receiptID string, r entity.CanonicalReceipt) error {
	if err := ctx.Err(); err != nil {
		return &Error{Kind: Transient, Op: "put", Err: err}
	}
	if receiptID == "" {
		return &Error{Kind: Permanent, Op: "put", Err: ErrEmptyID}
	}
	r.LineItems = append([]entity.LineItem{}, r.LineItems...)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[receiptID] = r
	return nil
}

func (m *Memory) Get(ctx context.Context, receiptID string) (entity.CanonicalReceipt, error) {
	if err := ctx.Err(); err != nil {
		return entity.CanonicalReceipt{}, &Error{Kind: Transient, Op: "get", Err: err}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[receiptID]
	if !ok {
		return entity.CanonicalReceipt{}, &Error{Kind: Permanent, Op: "get", Err: ErrNotFound}
	}
	r.LineItems = append([]entity.LineItem{}, r.LineItems...)
	return r, nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
