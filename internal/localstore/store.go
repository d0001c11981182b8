package localstore

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tinywideclouds/go-florist-service/pkg/florist"
	"github.com/tinywideclouds/go-florist-service/pkg/storage"
)

// SnapshotKey is the fixed key of the single-tenant snapshot.
const SnapshotKey = "florist_app_data"

// Store orchestrates Reduce and write-through persistence: every dispatched
// action is followed by a full snapshot write.
type Store struct {
	mu     sync.Mutex
	state  State
	kv     storage.KeyValue
	logger *slog.Logger

	now   func() time.Time
	newID func() string
}

// New creates the store and loads the persisted snapshot.
func New(ctx context.Context, kv storage.KeyValue, logger *slog.Logger) *Store {
	s := &Store{
		state:  emptyState(),
		kv:     kv,
		logger: logger.With("component", "LocalStore"),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	s.Load(ctx)
	return s
}

func emptyState() State {
	return State{
		Promotions:  []florist.Promotion{},
		Subscribers: []florist.Subscriber{},
	}
}

// Load replaces the in-memory state with the persisted snapshot. A missing,
// unreadable or malformed snapshot leaves the defaults in place; it is
// logged and never returned.
func (s *Store) Load(ctx context.Context) {
	loaded := emptyState()

	raw, found, err := s.kv.Get(ctx, SnapshotKey)
	switch {
	case err != nil:
		s.logger.Warn("Failed to read snapshot; using defaults", "key", SnapshotKey, "err", err)
	case !found:
		s.logger.Debug("No snapshot found; using defaults", "key", SnapshotKey)
	default:
		if err := json.Unmarshal([]byte(raw), &loaded); err != nil {
			s.logger.Warn("Discarding malformed snapshot", "key", SnapshotKey, "err", err)
			loaded = emptyState()
		}
	}
	if loaded.Promotions == nil {
		loaded.Promotions = []florist.Promotion{}
	}
	if loaded.Subscribers == nil {
		loaded.Subscribers = []florist.Subscriber{}
	}

	s.dispatch(ctx, LoadSnapshot{State: loaded})
}

// AddPromotion stamps a new active promotion and puts it first.
func (s *Store) AddPromotion(ctx context.Context, in florist.PromotionInput) florist.Promotion {
	p := florist.NewPromotion(in, "", s.now())
	p.ID = s.newID()
	s.dispatch(ctx, AddPromotion{Promotion: p})
	return p
}

// UpdatePromotion merges patch into the promotion with id. found is false,
// and nothing changes, when no promotion matches.
func (s *Store) UpdatePromotion(ctx context.Context, id string, patch florist.PromotionPatch) (florist.Promotion, bool) {
	next := s.dispatch(ctx, UpdatePromotion{ID: id, Patch: patch})
	idx := indexOfPromotion(next.Promotions, id)
	if idx < 0 {
		return florist.Promotion{}, false
	}
	return next.Promotions[idx], true
}

// DeletePromotion removes the promotion with id and reports whether it existed.
func (s *Store) DeletePromotion(ctx context.Context, id string) bool {
	s.mu.Lock()
	existed := indexOfPromotion(s.state.Promotions, id) >= 0
	s.mu.Unlock()

	s.dispatch(ctx, DeletePromotion{ID: id})
	return existed
}

// AddSubscriber registers a subscriber once per email. A second attempt with
// a known email is not an error: the existing subscriber is returned with
// added set to false.
func (s *Store) AddSubscriber(ctx context.Context, in florist.SubscriberInput) (florist.Subscriber, bool) {
	sub := florist.NewSubscriber(in, "", s.now())
	sub.ID = s.newID()
	next := s.dispatch(ctx, AddSubscriber{Subscriber: sub})
	for _, existing := range next.Subscribers {
		if existing.Email == in.Email {
			return existing, existing.ID == sub.ID
		}
	}
	return sub, false
}

// UpdateFloristProfile merges patch into the single florist profile.
func (s *Store) UpdateFloristProfile(ctx context.Context, patch florist.FloristPatch) florist.Florist {
	return s.dispatch(ctx, UpdateFlorist{Patch: patch}).Florist
}

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Promotions returns the promotions matching filter at now, newest first.
func (s *Store) Promotions(filter florist.StatusFilter, now time.Time) []florist.Promotion {
	return florist.FilterPromotions(s.State().Promotions, filter, now)
}

// ActivePromotions returns the currently active promotions.
func (s *Store) ActivePromotions(now time.Time) []florist.Promotion {
	return s.Promotions(florist.StatusActive, now)
}

// dispatch applies a and persists the resulting state. The lock is held
// across the write so snapshots reach storage in transition order.
func (s *Store) dispatch(ctx context.Context, a Action) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := Reduce(s.state, a)
	s.state = next
	s.persist(ctx, next)
	return next.clone()
}

func (s *Store) persist(ctx context.Context, st State) {
	data, err := json.Marshal(st)
	if err != nil {
		s.logger.Error("Failed to encode snapshot", "err", err)
		return
	}
	if err := s.kv.Set(ctx, SnapshotKey, string(data)); err != nil {
		s.logger.Warn("Failed to persist snapshot", "key", SnapshotKey, "err", err)
	}
}
