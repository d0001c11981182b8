package registry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-florist-service/internal/storage/storagetest"
	"github.com/tinywideclouds/go-florist-service/pkg/florist"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStore_LoadFlorists(t *testing.T) {
	ctx := context.Background()
	listed := []florist.Florist{{ID: "f-2", Name: "B"}, {ID: "f-1", Name: "A"}}

	t.Run("Success - replaces the list", func(t *testing.T) {
		gw := new(storagetest.MockGateway)
		gw.On("ListFlorists", mock.Anything).Return(listed, nil).Once()

		s := New(gw, newTestLogger())
		require.NoError(t, s.LoadFlorists(ctx))

		assert.Equal(t, listed, s.Florists())
		assert.NoError(t, s.Err())
		assert.False(t, s.Loading())
	})

	t.Run("Failure - keeps the previous list", func(t *testing.T) {
		gw := new(storagetest.MockGateway)
		gw.On("ListFlorists", mock.Anything).Return(listed, nil).Once()
		gw.On("ListFlorists", mock.Anything).Return(nil, errors.New("unavailable")).Once()

		s := New(gw, newTestLogger())
		require.NoError(t, s.LoadFlorists(ctx))
		err := s.LoadFlorists(ctx)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "unavailable")
		assert.Equal(t, err, s.Err(), "the returned error is also recorded")
		assert.Equal(t, listed, s.Florists())
		assert.False(t, s.Loading())
	})

	t.Run("Success - reported even when an earlier mutation failed", func(t *testing.T) {
		gw := new(storagetest.MockGateway)
		gw.On("DeleteFlorist", mock.Anything, "f-9").Return(errors.New("unavailable")).Once()
		gw.On("ListFlorists", mock.Anything).Return(listed, nil).Once()

		s := New(gw, newTestLogger())
		require.Error(t, s.DeleteFlorist(ctx, "f-9"))
		require.Error(t, s.Err())

		assert.NoError(t, s.LoadFlorists(ctx))
		assert.Equal(t, listed, s.Florists())
	})
}

func TestStore_CreateFlorist(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	in := florist.FloristInput{Name: "Fleurs de Marie", Email: "a@b.fr", Phone: "0102030405", Address: "1 Rue X"}

	t.Run("Success - appends the canonical record", func(t *testing.T) {
		gw := new(storagetest.MockGateway)
		gw.On("InsertFlorist", mock.Anything, mock.MatchedBy(func(f florist.Florist) bool {
			return f.Slug == "fleurs-de-marie" && f.Active && f.CreatedAt.Equal(now)
		})).Return(func(_ context.Context, f florist.Florist) florist.Florist {
			f.ID = "f-1"
			return f
		}, nil)

		s := New(gw, newTestLogger())
		s.now = func() time.Time { return now }

		created, err := s.CreateFlorist(ctx, in)
		require.NoError(t, err)

		assert.Equal(t, "f-1", created.ID)
		assert.True(t, created.Active)
		assert.Equal(t, "fleurs-de-marie", created.Slug)
		require.Len(t, s.Florists(), 1)
		assert.Equal(t, 1, s.ActiveCount())
		gw.AssertExpectations(t)
	})

	t.Run("Failure - records and returns the error", func(t *testing.T) {
		gw := new(storagetest.MockGateway)
		gw.On("InsertFlorist", mock.Anything, mock.Anything).Return(florist.Florist{}, errors.New("insert rejected"))

		s := New(gw, newTestLogger())
		_, err := s.CreateFlorist(ctx, in)

		require.Error(t, err)
		assert.Empty(t, s.Florists())
		assert.Equal(t, err, s.Err())
		assert.False(t, s.Loading())
	})
}

func TestStore_UpdateToggleDelete(t *testing.T) {
	ctx := context.Background()
	original := florist.Florist{ID: "f-1", Name: "A", Active: true, PromotionCount: 4, SubscriberCount: 2}

	newStore := func(gw *storagetest.MockGateway) *Store {
		gw.On("ListFlorists", mock.Anything).Return([]florist.Florist{original}, nil).Once()
		s := New(gw, newTestLogger())
		s.LoadFlorists(ctx)
		return s
	}

	t.Run("Update keeps derived counters", func(t *testing.T) {
		gw := new(storagetest.MockGateway)
		s := newStore(gw)
		name := "Renamed"
		patch := florist.FloristPatch{Name: &name}
		gw.On("UpdateFlorist", mock.Anything, "f-1", patch).Return(florist.Florist{ID: "f-1", Name: "Renamed", Active: true}, nil)

		updated, err := s.UpdateFlorist(ctx, "f-1", patch)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", updated.Name)

		got := s.Florists()[0]
		assert.Equal(t, "Renamed", got.Name)
		assert.Equal(t, 4, got.PromotionCount)
		assert.Equal(t, 2, got.SubscriberCount)
	})

	t.Run("Toggle flips the active flag", func(t *testing.T) {
		gw := new(storagetest.MockGateway)
		s := newStore(gw)
		off := false
		gw.On("UpdateFlorist", mock.Anything, "f-1", florist.FloristPatch{Active: &off}).
			Return(florist.Florist{ID: "f-1", Name: "A", Active: false}, nil)

		toggled, err := s.ToggleFlorist(ctx, "f-1")
		require.NoError(t, err)
		assert.False(t, toggled.Active)
		assert.Equal(t, 0, s.ActiveCount())
	})

	t.Run("Toggle of an unknown florist reads it first", func(t *testing.T) {
		gw := new(storagetest.MockGateway)
		s := newStore(gw)
		gw.On("GetFlorist", mock.Anything, "f-9").Return(florist.Florist{}, errors.New("not found"))

		_, err := s.ToggleFlorist(ctx, "f-9")
		assert.Error(t, err)
		assert.Error(t, s.Err())
	})

	t.Run("Delete failure keeps the record", func(t *testing.T) {
		gw := new(storagetest.MockGateway)
		s := newStore(gw)
		gw.On("DeleteFlorist", mock.Anything, "f-1").Return(errors.New("denied"))

		assert.Error(t, s.DeleteFlorist(ctx, "f-1"))
		assert.Len(t, s.Florists(), 1)
	})

	t.Run("Delete removes the record", func(t *testing.T) {
		gw := new(storagetest.MockGateway)
		s := newStore(gw)
		gw.On("DeleteFlorist", mock.Anything, "f-1").Return(nil)

		require.NoError(t, s.DeleteFlorist(ctx, "f-1"))
		assert.Empty(t, s.Florists())
	})
}

func TestStore_GetFloristStats(t *testing.T) {
	ctx := context.Background()
	promotions := []florist.Promotion{{ID: "p-1"}, {ID: "p-2"}}
	subscribers := []florist.Subscriber{{ID: "s-1"}}

	t.Run("Success - returns both lists and refreshes counters", func(t *testing.T) {
		gw := new(storagetest.MockGateway)
		gw.On("ListFlorists", mock.Anything).Return([]florist.Florist{{ID: "f-1"}}, nil)
		gw.On("ListPromotions", mock.Anything, "f-1").Return(promotions, nil)
		gw.On("ListSubscribers", mock.Anything, "f-1").Return(subscribers, nil)

		s := New(gw, newTestLogger())
		s.LoadFlorists(ctx)
		stats := s.GetFloristStats(ctx, "f-1")

		assert.Equal(t, promotions, stats.Promotions)
		assert.Equal(t, subscribers, stats.Subscribers)
		assert.Equal(t, 2, s.Florists()[0].PromotionCount)
		assert.Equal(t, 1, s.Florists()[0].SubscriberCount)
		assert.NoError(t, s.Err())
	})

	t.Run("Partial failure - substitutes an empty list", func(t *testing.T) {
		gw := new(storagetest.MockGateway)
		gw.On("ListPromotions", mock.Anything, "f-1").Return(nil, errors.New("timeout"))
		gw.On("ListSubscribers", mock.Anything, "f-1").Return(subscribers, nil)

		s := New(gw, newTestLogger())
		stats := s.GetFloristStats(ctx, "f-1")

		assert.NotNil(t, stats.Promotions)
		assert.Empty(t, stats.Promotions)
		assert.Equal(t, subscribers, stats.Subscribers)
		assert.Error(t, s.Err())
	})
}

func TestStore_Loading(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	started := make(chan struct{})

	gw := new(storagetest.MockGateway)
	gw.On("ListFlorists", mock.Anything).Run(func(mock.Arguments) {
		close(started)
		<-release
	}).Return([]florist.Florist{}, nil)

	s := New(gw, newTestLogger())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.LoadFlorists(ctx)
	}()

	<-started
	assert.True(t, s.Loading())
	close(release)
	wg.Wait()
	assert.False(t, s.Loading())
}

func TestStore_Close(t *testing.T) {
	ctx := context.Background()
	gw := new(storagetest.MockGateway)
	gw.On("ListFlorists", mock.Anything).Return([]florist.Florist{{ID: "late"}}, nil)

	s := New(gw, newTestLogger())
	s.Close()
	s.LoadFlorists(ctx)

	assert.Empty(t, s.Florists(), "results after Close are dropped")
}
