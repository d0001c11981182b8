// Package tenant holds one florist's profile, promotions and subscribers,
// backed by the remote gateway.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tinywideclouds/go-florist-service/pkg/florist"
	"github.com/tinywideclouds/go-florist-service/pkg/storage"
	"golang.org/x/sync/errgroup"
)

// ErrNoFlorist is returned by mutations while no florist is selected.
var ErrNoFlorist = errors.New("no florist selected")

// Store is scoped to one florist id at a time. Loads are all-or-nothing;
// mutations record their error and also return it.
type Store struct {
	gw     storage.Gateway
	logger *slog.Logger
	now    func() time.Time

	mu          sync.Mutex
	floristID   string
	generation  uint64
	florist     florist.Florist
	promotions  []florist.Promotion
	subscribers []florist.Subscriber
	inflight    int
	lastErr     error
	closed      bool
}

func New(gw storage.Gateway, logger *slog.Logger) *Store {
	return &Store{
		gw:          gw,
		logger:      logger.With("component", "TenantStore"),
		now:         time.Now,
		promotions:  []florist.Promotion{},
		subscribers: []florist.Subscriber{},
	}
}

// SetFlorist scopes the store to id. A change of id clears the previous
// florist's data and triggers a load; the same id is a no-op.
func (s *Store) SetFlorist(ctx context.Context, id string) {
	s.mu.Lock()
	if s.closed || id == s.floristID {
		s.mu.Unlock()
		return
	}
	s.floristID = id
	s.generation++
	s.florist = florist.Florist{}
	s.promotions = []florist.Promotion{}
	s.subscribers = []florist.Subscriber{}
	s.lastErr = nil
	s.mu.Unlock()

	s.Load(ctx)
}

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

// scope returns the current florist id and generation.
func (s *Store) scope() (string, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.floristID, s.generation
}

// commit runs fn under the lock only if the store is open and still scoped
// to generation gen.
func (s *Store) commit(gen uint64, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.generation != gen {
		return false
	}
	fn()
	return true
}

func (s *Store) record(gen uint64, err error) {
	s.commit(gen, func() { s.lastErr = err })
}

// Load fetches the florist, its promotions and its subscribers concurrently.
// Any failure discards all three results and records the error; it is never
// returned. With no florist selected Load does nothing.
func (s *Store) Load(ctx context.Context) {
	id, gen := s.scope()
	if id == "" {
		return
	}
	defer s.begin()()

	var (
		profile     florist.Florist
		promotions  []florist.Promotion
		subscribers []florist.Subscriber
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		profile, err = s.gw.GetFlorist(gctx, id)
		if err != nil {
			return fmt.Errorf("florist: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		promotions, err = s.gw.ListPromotions(gctx, id)
		if err != nil {
			return fmt.Errorf("promotions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		subscribers, err = s.gw.ListSubscribers(gctx, id)
		if err != nil {
			return fmt.Errorf("subscribers: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		s.logger.Error("Failed to load florist data", "florist_id", id, "err", err)
		s.record(gen, fmt.Errorf("failed to load florist %s: %w", id, err))
		return
	}
	if promotions == nil {
		promotions = []florist.Promotion{}
	}
	if subscribers == nil {
		subscribers = []florist.Subscriber{}
	}
	profile.PromotionCount = len(promotions)
	profile.SubscriberCount = len(subscribers)

	ok := s.commit(gen, func() {
		s.florist = profile
		s.promotions = promotions
		s.subscribers = subscribers
		s.lastErr = nil
	})
	if !ok {
		s.logger.Debug("Dropped stale florist load", "florist_id", id)
	}
}

// CreatePromotion inserts an active promotion for the current florist and
// puts the gateway's record first.
func (s *Store) CreatePromotion(ctx context.Context, in florist.PromotionInput) (florist.Promotion, error) {
	id, gen := s.scope()
	if id == "" {
		return florist.Promotion{}, ErrNoFlorist
	}
	defer s.begin()()

	created, err := s.gw.InsertPromotion(ctx, florist.NewPromotion(in, id, s.now()))
	if err != nil {
		err = fmt.Errorf("failed to create promotion: %w", err)
		s.record(gen, err)
		return florist.Promotion{}, err
	}
	s.commit(gen, func() {
		s.promotions = append([]florist.Promotion{created}, s.promotions...)
		s.florist.PromotionCount = len(s.promotions)
	})
	s.logger.Info("Promotion created", "florist_id", id, "promotion_id", created.ID)
	return created, nil
}

// AddSubscriber inserts a subscriber for the current florist. Duplicate
// emails are left to the gateway.
func (s *Store) AddSubscriber(ctx context.Context, in florist.SubscriberInput) (florist.Subscriber, error) {
	id, gen := s.scope()
	if id == "" {
		return florist.Subscriber{}, ErrNoFlorist
	}
	defer s.begin()()

	created, err := s.gw.InsertSubscriber(ctx, florist.NewSubscriber(in, id, s.now()))
	if err != nil {
		err = fmt.Errorf("failed to add subscriber: %w", err)
		s.record(gen, err)
		return florist.Subscriber{}, err
	}
	s.commit(gen, func() {
		s.subscribers = append(s.subscribers, created)
		s.florist.SubscriberCount = len(s.subscribers)
	})
	return created, nil
}

// UpdatePromotion merges patch into one of the current florist's promotions.
func (s *Store) UpdatePromotion(ctx context.Context, promotionID string, patch florist.PromotionPatch) (florist.Promotion, error) {
	id, gen := s.scope()
	if id == "" {
		return florist.Promotion{}, ErrNoFlorist
	}
	defer s.begin()()

	updated, err := s.gw.UpdatePromotion(ctx, id, promotionID, patch)
	if err != nil {
		err = fmt.Errorf("failed to update promotion %s: %w", promotionID, err)
		s.record(gen, err)
		return florist.Promotion{}, err
	}
	s.commit(gen, func() {
		next := append([]florist.Promotion(nil), s.promotions...)
		for i := range next {
			if next[i].ID == promotionID {
				next[i] = updated
			}
		}
		s.promotions = next
	})
	return updated, nil
}

// DeletePromotion removes one of the current florist's promotions.
func (s *Store) DeletePromotion(ctx context.Context, promotionID string) error {
	id, gen := s.scope()
	if id == "" {
		return ErrNoFlorist
	}
	defer s.begin()()

	if err := s.gw.DeletePromotion(ctx, id, promotionID); err != nil {
		err = fmt.Errorf("failed to delete promotion %s: %w", promotionID, err)
		s.record(gen, err)
		return err
	}
	s.commit(gen, func() {
		kept := make([]florist.Promotion, 0, len(s.promotions))
		for _, p := range s.promotions {
			if p.ID != promotionID {
				kept = append(kept, p)
			}
		}
		s.promotions = kept
		s.florist.PromotionCount = len(kept)
	})
	return nil
}

// FloristID returns the id the store is scoped to.
func (s *Store) FloristID() string {
	id, _ := s.scope()
	return id
}

// Florist returns the loaded profile.
func (s *Store) Florist() florist.Florist {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.florist
}

// Promotions returns a copy of the loaded promotions, newest first.
func (s *Store) Promotions() []florist.Promotion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]florist.Promotion{}, s.promotions...)
}

// FindPromotion returns the loaded promotion with id.
func (s *Store) FindPromotion(id string) (florist.Promotion, bool) {
	for _, p := range s.Promotions() {
		if p.ID == id {
			return p, true
		}
	}
	return florist.Promotion{}, false
}

// ActivePromotions returns the promotions currently active at now.
func (s *Store) ActivePromotions(now time.Time) []florist.Promotion {
	return florist.FilterPromotions(s.Promotions(), florist.StatusActive, now)
}

// Subscribers returns a copy of the loaded subscribers.
func (s *Store) Subscribers() []florist.Subscriber {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]florist.Subscriber{}, s.subscribers...)
}

// Loading reports whether any call is in flight.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight > 0
}

// Err returns the last recorded error.
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
