// Package registry manages the list of florist tenants against the remote
// gateway for the admin dashboard.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tinywideclouds/go-florist-service/pkg/florist"
	"github.com/tinywideclouds/go-florist-service/pkg/storage"
	"golang.org/x/sync/errgroup"
)

// Stats holds the collections owned by one florist.
type Stats struct {
	Promotions  []florist.Promotion  `json:"promotions"`
	Subscribers []florist.Subscriber `json:"subscribers"`
}

// Store keeps the florist list in memory. Reads absorb gateway errors into
// Err; single-florist mutations record the error and also return it.
type Store struct {
	gw     storage.Gateway
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	florists []florist.Florist
	inflight int
	lastErr  error
	closed   bool
}

func New(gw storage.Gateway, logger *slog.Logger) *Store {
	return &Store{
		gw:       gw,
		logger:   logger.With("component", "RegistryStore"),
		now:      time.Now,
		florists: []florist.Florist{},
	}
}

// begin marks one call in flight; the returned func must be deferred.
func (s *Store) begin() func() {
	s.mu.Lock()
	s.inflight++
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.inflight--
		s.mu.Unlock()
	}
}

// update runs fn under the lock unless the store was closed.
func (s *Store) update(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	fn()
}

func (s *Store) record(err error) {
	s.update(func() { s.lastErr = err })
}

// LoadFlorists replaces the list with the gateway's, newest first. On
// failure the previous list is kept; the error is recorded and returned.
func (s *Store) LoadFlorists(ctx context.Context) error {
	defer s.begin()()

	florists, err := s.gw.ListFlorists(ctx)
	if err != nil {
		s.logger.Error("Failed to load florists", "err", err)
		err = fmt.Errorf("failed to load florists: %w", err)
		s.record(err)
		return err
	}
	s.update(func() {
		s.florists = florists
		s.lastErr = nil
	})
	return nil
}

// CreateFlorist inserts an active florist with a slug derived from its name
// and appends the gateway's canonical record.
func (s *Store) CreateFlorist(ctx context.Context, in florist.FloristInput) (florist.Florist, error) {
	defer s.begin()()

	created, err := s.gw.InsertFlorist(ctx, florist.NewFlorist(in, s.now()))
	if err != nil {
		err = fmt.Errorf("failed to create florist: %w", err)
		s.record(err)
		return florist.Florist{}, err
	}
	s.update(func() {
		s.florists = append(s.florists, created)
	})
	s.logger.Info("Florist created", "florist_id", created.ID, "slug", created.Slug)
	return created, nil
}

// UpdateFlorist replaces the in-memory record with the gateway's merged one,
// keeping the derived counters.
func (s *Store) UpdateFlorist(ctx context.Context, id string, patch florist.FloristPatch) (florist.Florist, error) {
	defer s.begin()()
	return s.updateFlorist(ctx, id, patch)
}

func (s *Store) updateFlorist(ctx context.Context, id string, patch florist.FloristPatch) (florist.Florist, error) {
	updated, err := s.gw.UpdateFlorist(ctx, id, patch)
	if err != nil {
		err = fmt.Errorf("failed to update florist %s: %w", id, err)
		s.record(err)
		return florist.Florist{}, err
	}
	s.update(func() {
		for i := range s.florists {
			if s.florists[i].ID == id {
				updated.PromotionCount = s.florists[i].PromotionCount
				updated.SubscriberCount = s.florists[i].SubscriberCount
				s.florists[i] = updated
				return
			}
		}
	})
	return updated, nil
}

// ToggleFlorist flips the florist's active flag.
func (s *Store) ToggleFlorist(ctx context.Context, id string) (florist.Florist, error) {
	defer s.begin()()

	current, ok := s.find(id)
	if !ok {
		fetched, err := s.gw.GetFlorist(ctx, id)
		if err != nil {
			err = fmt.Errorf("failed to toggle florist %s: %w", id, err)
			s.record(err)
			return florist.Florist{}, err
		}
		current = fetched
	}
	active := !current.Active
	return s.updateFlorist(ctx, id, florist.FloristPatch{Active: &active})
}

// DeleteFlorist removes the florist from the gateway, then from memory.
func (s *Store) DeleteFlorist(ctx context.Context, id string) error {
	defer s.begin()()

	if err := s.gw.DeleteFlorist(ctx, id); err != nil {
		err = fmt.Errorf("failed to delete florist %s: %w", id, err)
		s.record(err)
		return err
	}
	s.update(func() {
		kept := s.florists[:0:0]
		for _, f := range s.florists {
			if f.ID != id {
				kept = append(kept, f)
			}
		}
		s.florists = kept
	})
	s.logger.Info("Florist deleted", "florist_id", id)
	return nil
}

// GetFloristStats fetches the florist's promotions and subscribers
// concurrently. A failed read yields an empty list and a recorded error;
// the call itself never fails.
func (s *Store) GetFloristStats(ctx context.Context, id string) Stats {
	defer s.begin()()

	stats := Stats{
		Promotions:  []florist.Promotion{},
		Subscribers: []florist.Subscriber{},
	}
	var promotionsOK, subscribersOK bool

	var g errgroup.Group
	g.Go(func() error {
		promotions, err := s.gw.ListPromotions(ctx, id)
		if err != nil {
			s.logger.Warn("Failed to fetch promotions for stats", "florist_id", id, "err", err)
			s.record(fmt.Errorf("failed to fetch promotions of %s: %w", id, err))
			return nil
		}
		stats.Promotions = promotions
		promotionsOK = true
		return nil
	})
	g.Go(func() error {
		subscribers, err := s.gw.ListSubscribers(ctx, id)
		if err != nil {
			s.logger.Warn("Failed to fetch subscribers for stats", "florist_id", id, "err", err)
			s.record(fmt.Errorf("failed to fetch subscribers of %s: %w", id, err))
			return nil
		}
		stats.Subscribers = subscribers
		subscribersOK = true
		return nil
	})
	_ = g.Wait()

	s.update(func() {
		for i := range s.florists {
			if s.florists[i].ID != id {
				continue
			}
			if promotionsOK {
				s.florists[i].PromotionCount = len(stats.Promotions)
			}
			if subscribersOK {
				s.florists[i].SubscriberCount = len(stats.Subscribers)
			}
		}
	})
	return stats
}

func (s *Store) find(id string) (florist.Florist, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.florists {
		if f.ID == id {
			return f, true
		}
	}
	return florist.Florist{}, false
}

// Florists returns a copy of the current list.
func (s *Store) Florists() []florist.Florist {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]florist.Florist(nil), s.florists...)
}

// ActiveCount returns the number of florists whose active flag is set.
func (s *Store) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, f := range s.florists {
		if f.Active {
			n++
		}
	}
	return n
}

// Loading reports whether any call is in flight.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight > 0
}

// Err returns the last recorded error, or nil after a successful reload.
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Close stops the store from observing results of calls still in flight.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}
