package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-florist-service/internal/api"
	"github.com/tinywideclouds/go-florist-service/internal/localstore"
	"github.com/tinywideclouds/go-florist-service/internal/storage/kv"
	"github.com/tinywideclouds/go-florist-service/pkg/florist"
)

func setupLocalAPI() (*api.LocalAPI, *MockNotifier) {
	logger := newTestLogger()
	store := localstore.New(context.Background(), kv.NewMemoryStore(), logger)
	notifier := new(MockNotifier)
	return api.NewLocalAPI(store, notifier, logger), notifier
}

func postJSON(handler http.HandlerFunc, target string, v any) *httptest.ResponseRecorder {
	body, _ := json.Marshal(v)
	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body)))
	return w
}

func TestLocalAPI_Subscribe(t *testing.T) {
	handler, _ := setupLocalAPI()
	in := florist.SubscriberInput{Name: "Ana", Email: "ana@example.fr"}

	first := postJSON(handler.Subscribe, "/api/v1/local/subscribers", in)
	assert.Equal(t, http.StatusCreated, first.Code)

	second := postJSON(handler.Subscribe, "/api/v1/local/subscribers", in)
	assert.Equal(t, http.StatusOK, second.Code, "a known email is not an error")

	assert.Len(t, handler.Store.State().Subscribers, 1)

	missing := postJSON(handler.Subscribe, "/api/v1/local/subscribers", florist.SubscriberInput{Name: "NoMail"})
	assert.Equal(t, http.StatusBadRequest, missing.Code)
}

func TestLocalAPI_PromotionLifecycle(t *testing.T) {
	handler, notifier := setupLocalAPI()
	end := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)

	t.Run("Create without subscribers skips the broadcast", func(t *testing.T) {
		w := postJSON(handler.CreatePromotion, "/api/v1/local/promotions",
			florist.PromotionInput{Title: "Roses", OriginalPrice: decimal.NewFromInt(20), Discount: 25, EndDate: end})

		require.Equal(t, http.StatusCreated, w.Code)
		assert.Contains(t, w.Body.String(), `"final_price":15`)
		notifier.AssertNotCalled(t, "BroadcastPromotion", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Create with subscribers broadcasts once", func(t *testing.T) {
		postJSON(handler.Subscribe, "/api/v1/local/subscribers", florist.SubscriberInput{Email: "a@b.fr"})
		notifier.On("BroadcastPromotion", mock.Anything, mock.MatchedBy(func(p florist.Promotion) bool {
			return p.Title == "Tulipes"
		}), mock.Anything).Return(true, nil).Once()

		w := postJSON(handler.CreatePromotion, "/api/v1/local/promotions",
			florist.PromotionInput{Title: "Tulipes", OriginalPrice: decimal.NewFromInt(40), Discount: 10, EndDate: end})

		require.Equal(t, http.StatusCreated, w.Code)
		assert.Contains(t, w.Body.String(), `"notified":true`)
		notifier.AssertExpectations(t)
	})

	promos := handler.Store.State().Promotions
	require.Len(t, promos, 2)
	assert.Equal(t, "Tulipes", promos[0].Title, "newest first")

	t.Run("Update unknown promotion is 404", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPatch, "/api/v1/local/promotions/nope", bytes.NewReader([]byte(`{"discount":30}`)))
		req.SetPathValue("id", "nope")
		w := httptest.NewRecorder()

		handler.UpdatePromotion(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Update recomputes the final price", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPatch, "/", bytes.NewReader([]byte(`{"discount":50}`)))
		req.SetPathValue("id", promos[1].ID)
		w := httptest.NewRecorder()

		handler.UpdatePromotion(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var updated florist.Promotion
		require.NoError(t, json.NewDecoder(w.Body).Decode(&updated))
		assert.Equal(t, "10", updated.FinalPrice.String())
	})

	t.Run("Active promotions hide deactivated ones", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPatch, "/", bytes.NewReader([]byte(`{"is_active":false}`)))
		req.SetPathValue("id", promos[0].ID)
		handler.UpdatePromotion(httptest.NewRecorder(), req)

		w := httptest.NewRecorder()
		handler.ActivePromotions(w, httptest.NewRequest(http.MethodGet, "/api/v1/local/promotions/active", nil))

		require.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Promotions []florist.Promotion `json:"promotions"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		require.Len(t, body.Promotions, 1)
		assert.Equal(t, "Roses", body.Promotions[0].Title)
	})

	t.Run("Delete is idempotent", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			req := httptest.NewRequest(http.MethodDelete, "/", nil)
			req.SetPathValue("id", promos[0].ID)
			w := httptest.NewRecorder()
			handler.DeletePromotion(w, req)
			assert.Equal(t, http.StatusNoContent, w.Code)
		}
		assert.Len(t, handler.Store.State().Promotions, 1)
	})
}

func TestLocalAPI_UpdateFlorist(t *testing.T) {
	handler, _ := setupLocalAPI()
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/local/florist", bytes.NewReader([]byte(`{"name":"Fleurs de Marie"}`)))
	w := httptest.NewRecorder()

	handler.UpdateFlorist(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Fleurs de Marie", handler.Store.State().Florist.Name)
}
