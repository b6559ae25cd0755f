package store

import (
	"bartershops/internal/core"
	apperrors "bartershops/pkg/errors"
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps trade records in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]core.TradeRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]core.TradeRecord)}
}

func (s *MemoryStore) SaveTradeRecord(ctx context.Context, record *core.TradeRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.TransactionID] = *record
	return nil
}

func (s *MemoryStore) GetTradeRecord(ctx context.Context, transactionID string) (*core.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[transactionID]
	if !ok {
		return nil, fmt.Errorf("trade %s: %w", transactionID, apperrors.ErrRecordNotFound)
	}
	return &r, nil
}

func (s *MemoryStore) ListRecent(ctx context.Context, limit int) ([]*core.TradeRecord, error) {
	return s.list(func(*core.TradeRecord) bool { return true }, limit), nil
}

func (s *MemoryStore) ListByShop(ctx context.Context, shopID string, limit int) ([]*core.TradeRecord, error) {
	return s.list(func(r *core.TradeRecord) bool { return r.ShopID == shopID }, limit), nil
}

// list returns matching records newest first
func (s *MemoryStore) list(match func(*core.TradeRecord) bool, limit int) []*core.TradeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*core.TradeRecord, 0, len(s.records))
	for _, r := range s.records {
		r := r
		if match(&r) {
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompletedAt.After(out[j].CompletedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
