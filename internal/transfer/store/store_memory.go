package store

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"
	"time"

	"hie-gateway/internal/transfer/models"
	id "hie-gateway/pkg/domain"
	"hie-gateway/pkg/platform/sentinel"
	platformsync "hie-gateway/pkg/platform/sync"
)

// InMemoryStore keeps transfers in a map. Transitions on one id serialize on
// a sharded mutex; the map itself is guarded by an RWMutex held only for the
// read or write of a single entry.
type InMemoryStore struct {
	mu        sync.RWMutex
	transfers map[id.TransferID]*models.Transfer
	locks     *platformsync.ShardedMutex
	opts      options
}

// New constructs an empty in-memory transfer store.
func New(opts ...Option) *InMemoryStore {
	return &InMemoryStore{
		transfers: make(map[id.TransferID]*models.Transfer),
		locks:     platformsync.NewShardedMutex(platformsync.DefaultShards),
		opts:      buildOptions(opts),
	}
}

func (s *InMemoryStore) Create(_ context.Context, t *models.Transfer) error {
	if t == nil {
		return fmt.Errorf("transfer is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.transfers[t.ID]; exists {
		return fmt.Errorf("transfer %s already exists: %w", t.ID, sentinel.ErrConflict)
	}
	s.transfers[t.ID] = t.Clone()
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, transferID id.TransferID) (*models.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transfers[transferID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return t.Clone(), nil
}

func (s *InMemoryStore) Transition(ctx context.Context, transferID id.TransferID, from []models.Status, to models.Status, mutate MutateFunc) (*models.Transfer, error) {
	key := string(transferID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cur, err := s.Get(ctx, transferID)
	if err != nil {
		return nil, err
	}
	next, err := applyTransition(cur, from, to, mutate, s.opts.now())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transfers[transferID]; !ok {
		// Removed by retention cleanup while the callback ran.
		return nil, sentinel.ErrNotFound
	}
	s.transfers[transferID] = next
	return next.Clone(), nil
}

func (s *InMemoryStore) DueForAction(ctx context.Context, now time.Time, batch int) iter.Seq2[id.TransferID, error] {
	return s.scan(ctx, batch, func(t *models.Transfer) bool { return t.IsDue(now) })
}

func (s *InMemoryStore) PastExpiry(ctx context.Context, now time.Time, batch int) iter.Seq2[id.TransferID, error] {
	return s.scan(ctx, batch, func(t *models.Transfer) bool {
		return !t.Status.IsTerminal() && t.IsExpired(now)
	})
}

func (s *InMemoryStore) DeleteSettledBefore(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for tid, t := range s.transfers {
		if settled(t) && t.UpdatedAt.Before(before) {
			delete(s.transfers, tid)
			deleted++
		}
	}
	return deleted, nil
}

// scan yields matching ids in id order, one page at a time. Each page is
// chosen under the read lock and yielded after it is released, so consumers
// may transition records mid-iteration.
func (s *InMemoryStore) scan(ctx context.Context, batch int, match func(*models.Transfer) bool) iter.Seq2[id.TransferID, error] {
	batch = batchOrDefault(batch)
	return func(yield func(id.TransferID, error) bool) {
		var cursor id.TransferID
		for {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			page := s.page(cursor, batch, match)
			for _, tid := range page {
				if !yield(tid, nil) {
					return
				}
			}
			if len(page) < batch {
				return
			}
			cursor = page[len(page)-1]
		}
	}
}

func (s *InMemoryStore) page(after id.TransferID, batch int, match func(*models.Transfer) bool) []id.TransferID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []id.TransferID
	for tid, t := range s.transfers {
		if tid > after && match(t) {
			ids = append(ids, tid)
		}
	}
	slices.Sort(ids)
	if len(ids) > batch {
		ids = ids[:batch]
	}
	return ids
}
