// Package memory implements the storage interfaces in process memory
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sirosfoundation/go-esocial/internal/storage"
)

// Store implements storage.Store with a map
type Store struct {
	mu     sync.RWMutex
	events map[string]*storage.EventRecord
	now    func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		events: make(map[string]*storage.EventRecord),
		now:    time.Now,
	}
}

func (s *Store) Close(ctx context.Context) error {
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return nil
}

func (s *Store) CreateEvent(ctx context.Context, rec *storage.EventRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := s.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	if rec.Status == "" {
		rec.Status = storage.StatusPending
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *rec
	s.events[rec.ID] = &stored
	return nil
}

func (s *Store) GetEvent(ctx context.Context, id string) (*storage.EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.events[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *rec
	return &out, nil
}

func (s *Store) ListEvents(ctx context.Context, filter *storage.EventFilter) ([]*storage.EventRecord, error) {
	s.mu.RLock()
	var out []*storage.EventRecord
	for _, rec := range s.events {
		if filter != nil {
			if filter.NrInsc != "" && rec.NrInsc != filter.NrInsc {
				continue
			}
			if filter.Status != "" && rec.Status != filter.Status {
				continue
			}
		}
		cp := *rec
		out = append(out, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit := filter.EffectiveLimit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) UpdateEventStatus(ctx context.Context, id string, update *storage.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.events[id]
	if !ok {
		return storage.ErrNotFound
	}
	update.Apply(rec, s.now())
	return nil
}
