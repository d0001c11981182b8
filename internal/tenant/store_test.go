package tenant

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-florist-service/internal/storage/storagetest"
	"github.com/tinywideclouds/go-florist-service/pkg/florist"
	"github.com/tinywideclouds/go-florist-service/pkg/storage"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var (
	marie       = florist.Florist{ID: "f-1", Name: "Fleurs de Marie", Active: true}
	promotions  = []florist.Promotion{{ID: "p-2", FloristID: "f-1"}, {ID: "p-1", FloristID: "f-1"}}
	subscribers = []florist.Subscriber{{ID: "s-1", FloristID: "f-1", Email: "lea@example.fr"}}
)

func expectLoad(gw *storagetest.MockGateway, id string) {
	gw.On("GetFlorist", mock.Anything, id).Return(marie, nil)
	gw.On("ListPromotions", mock.Anything, id).Return(promotions, nil)
	gw.On("ListSubscribers", mock.Anything, id).Return(subscribers, nil)
}

func TestStore_Load(t *testing.T) {
	ctx := context.Background()

	t.Run("Success - loads all three collections", func(t *testing.T) {
		gw := new(storagetest.MockGateway)
		expectLoad(gw, "f-1")

		s := New(gw, newTestLogger())
		s.SetFlorist(ctx, "f-1")

		assert.Equal(t, "Fleurs de Marie", s.Florist().Name)
		assert.Equal(t, 2, s.Florist().PromotionCount)
		assert.Equal(t, promotions, s.Promotions())
		assert.Equal(t, subscribers, s.Subscribers())
		assert.NoError(t, s.Err())
		assert.False(t, s.Loading())
	})

	t.Run("Empty id is a no-op", func(t *testing.T) {
		gw := new(storagetest.MockGateway)
		s := New(gw, newTestLogger())
		s.Load(ctx)
		gw.AssertNotCalled(t, "GetFlorist", mock.Anything, mock.Anything)
	})

	t.Run("Any failure discards every result", func(t *testing.T) {
		gw := new(storagetest.MockGateway)
		gw.On("GetFlorist", mock.Anything, "f-1").Return(marie, nil)
		gw.On("ListPromotions", mock.Anything, "f-1").Return(promotions, nil)
		gw.On("ListSubscribers", mock.Anything, "f-1").Return(nil, errors.New("permission denied"))

		s := New(gw, newTestLogger())
		s.SetFlorist(ctx, "f-1")

		assert.Empty(t, s.Promotions())
		assert.Empty(t, s.Subscribers())
		assert.Equal(t, florist.Florist{}, s.Florist())
		assert.Error(t, s.Err())
	})

	t.Run("Not found is detectable", func(t *testing.T) {
		gw := new(storagetest.MockGateway)
		gw.On("GetFlorist", mock.Anything, "ghost").Return(florist.Florist{}, storage.ErrNotFound)
		gw.On("ListPromotions", mock.Anything, "ghost").Return([]florist.Promotion{}, nil)
		gw.On("ListSubscribers", mock.Anything, "ghost").Return([]florist.Subscriber{}, nil)

		s := New(gw, newTestLogger())
		s.SetFlorist(ctx, "ghost")
		assert.ErrorIs(t, s.Err(), storage.ErrNotFound)
	})

	t.Run("Changing the florist reloads, same florist does not", func(t *testing.T) {
		gw := new(storagetest.MockGateway)
		expectLoad(gw, "f-1")
		expectLoad(gw, "f-2")

		s := New(gw, newTestLogger())
		s.SetFlorist(ctx, "f-1")
		s.SetFlorist(ctx, "f-1")
		s.SetFlorist(ctx, "f-2")

		gw.AssertNumberOfCalls(t, "GetFlorist", 2)
		assert.Equal(t, "f-2", s.FloristID())
	})
}

func TestStore_CreatePromotion(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	in := florist.PromotionInput{Title: "Roses", OriginalPrice: decimal.NewFromInt(20), Discount: 25, EndDate: now.Add(time.Hour)}

	t.Run("Success - stamps and prepends", func(t *testing.T) {
		gw := new(storagetest.MockGateway)
		expectLoad(gw, "f-1")
		gw.On("InsertPromotion", mock.Anything, mock.MatchedBy(func(p florist.Promotion) bool {
			return p.FloristID == "f-1" && p.Active && p.FinalPrice.Equal(decimal.NewFromInt(15)) && p.CreatedAt.Equal(now)
		})).Return(func(_ context.Context, p florist.Promotion) florist.Promotion {
			p.ID = "p-3"
			return p
		}, nil)

		s := New(gw, newTestLogger())
		s.now = func() time.Time { return now }
		s.SetFlorist(ctx, "f-1")

		created, err := s.CreatePromotion(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, "15", created.FinalPrice.String())
		assert.True(t, created.IsCurrentlyActive(now))
		assert.Equal(t, "p-3", s.Promotions()[0].ID)
		assert.Len(t, s.Promotions(), 3)
		gw.AssertExpectations(t)
	})

	t.Run("Failure - records and returns", func(t *testing.T) {
		gw := new(storagetest.MockGateway)
		expectLoad(gw, "f-1")
		gw.On("InsertPromotion", mock.Anything, mock.Anything).Return(florist.Promotion{}, errors.New("quota"))

		s := New(gw, newTestLogger())
		s.SetFlorist(ctx, "f-1")

		_, err := s.CreatePromotion(ctx, in)
		require.Error(t, err)
		assert.Equal(t, err, s.Err())
		assert.Len(t, s.Promotions(), 2)
	})

	t.Run("No florist selected", func(t *testing.T) {
		s := New(new(storagetest.MockGateway), newTestLogger())
		_, err := s.CreatePromotion(ctx, in)
		assert.ErrorIs(t, err, ErrNoFlorist)
	})
}

func TestStore_AddSubscriber(t *testing.T) {
	ctx := context.Background()
	gw := new(storagetest.MockGateway)
	expectLoad(gw, "f-1")
	gw.On("InsertSubscriber", mock.Anything, mock.Anything).Return(func(_ context.Context, sub florist.Subscriber) florist.Subscriber {
		sub.ID = "s-new"
		return sub
	}, nil)

	s := New(gw, newTestLogger())
	s.SetFlorist(ctx, "f-1")

	// No client-side dedup: a known email is still sent to the gateway.
	created, err := s.AddSubscriber(ctx, florist.SubscriberInput{Name: "Léa", Email: "lea@example.fr"})
	require.NoError(t, err)
	assert.Equal(t, "f-1", created.FloristID)

	subs := s.Subscribers()
	require.Len(t, subs, 2)
	assert.Equal(t, "s-new", subs[1].ID, "subscribers are appended")

	t.Run("Failure - records and returns", func(t *testing.T) {
		failing := new(storagetest.MockGateway)
		expectLoad(failing, "f-1")
		failing.On("InsertSubscriber", mock.Anything, mock.Anything).Return(florist.Subscriber{}, errors.New("duplicate key"))

		s := New(failing, newTestLogger())
		s.SetFlorist(ctx, "f-1")
		_, err := s.AddSubscriber(ctx, florist.SubscriberInput{Email: "lea@example.fr"})
		assert.Error(t, err)
		assert.Error(t, s.Err())
	})
}

func TestStore_UpdateAndDeletePromotion(t *testing.T) {
	ctx := context.Background()
	gw := new(storagetest.MockGateway)
	expectLoad(gw, "f-1")

	s := New(gw, newTestLogger())
	s.SetFlorist(ctx, "f-1")

	off := false
	patch := florist.PromotionPatch{Active: &off}
	gw.On("UpdatePromotion", mock.Anything, "f-1", "p-1", patch).Return(florist.Promotion{ID: "p-1", FloristID: "f-1", Active: false}, nil)

	updated, err := s.UpdatePromotion(ctx, "p-1", patch)
	require.NoError(t, err)
	assert.False(t, updated.Active)
	found, ok := s.FindPromotion("p-1")
	require.True(t, ok)
	assert.False(t, found.Active)

	gw.On("DeletePromotion", mock.Anything, "f-1", "p-2").Return(nil)
	require.NoError(t, s.DeletePromotion(ctx, "p-2"))
	assert.Len(t, s.Promotions(), 1)

	gw.On("DeletePromotion", mock.Anything, "f-1", "p-1").Return(errors.New("denied"))
	assert.Error(t, s.DeletePromotion(ctx, "p-1"))
	assert.Len(t, s.Promotions(), 1)
}

func TestStore_StaleResultsAreDropped(t *testing.T) {
	ctx := context.Background()
	gw := new(storagetest.MockGateway)
	expectLoad(gw, "f-1")

	s := New(gw, newTestLogger())
	s.Close()
	s.SetFlorist(ctx, "f-1")

	assert.Empty(t, s.Promotions())
	gw.AssertNotCalled(t, "GetFlorist", mock.Anything, mock.Anything)
}
