package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/tinywideclouds/go-florist-service/internal/tenant"
	"github.com/tinywideclouds/go-florist-service/pkg/florist"
	"github.com/tinywideclouds/go-florist-service/pkg/storage"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"
)

// TenantAPI serves one florist's promotions and subscribers. Each request
// gets its own tenant store scoped to the florist id in the path.
type TenantAPI struct {
	Gateway  storage.Gateway
	Notifier Notifier
	Logger   *slog.Logger
	now      func() time.Time
}

func NewTenantAPI(gw storage.Gateway, notifier Notifier, logger *slog.Logger) *TenantAPI {
	return &TenantAPI{
		Gateway:  gw,
		Notifier: notifier,
		Logger:   logger.With("component", "TenantAPI"),
		now:      time.Now,
	}
}

// open loads the florist named in the path. On failure it writes the error
// response and returns nil.
func (api *TenantAPI) open(w http.ResponseWriter, r *http.Request) *tenant.Store {
	store := tenant.New(api.Gateway, api.Logger)
	store.SetFlorist(r.Context(), r.PathValue("id"))
	if err := store.Err(); err != nil {
		store.Close()
		writeStoreError(w, api.Logger, err, "failed to load florist")
		return nil
	}
	return store
}

type customerViewResponse struct {
	Florist    florist.Florist     `json:"florist"`
	Promotions []florist.Promotion `json:"promotions"`
}

// CustomerView is the public page of a florist: its profile and the
// promotions currently active.
func (api *TenantAPI) CustomerView(w http.ResponseWriter, r *http.Request) {
	store := api.open(w, r)
	if store == nil {
		return
	}
	defer store.Close()

	writeJSON(w, http.StatusOK, customerViewResponse{
		Florist:    store.Florist(),
		Promotions: store.ActivePromotions(api.now()),
	})
}

func (api *TenantAPI) ListPromotions(w http.ResponseWriter, r *http.Request) {
	store := api.open(w, r)
	if store == nil {
		return
	}
	defer store.Close()

	filter := florist.ParseStatusFilter(r.URL.Query().Get("status"))
	writeJSON(w, http.StatusOK, florist.FilterPromotions(store.Promotions(), filter, api.now()))
}

type createPromotionResponse struct {
	Promotion florist.Promotion `json:"promotion"`
	Notified  bool              `json:"notified"`
}

// CreatePromotion stores the promotion, then announces it when the florist
// has subscribers.
func (api *TenantAPI) CreatePromotion(w http.ResponseWriter, r *http.Request) {
	var in florist.PromotionInput
	if err := decode(r, &in); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := in.Validate(); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	store := api.open(w, r)
	if store == nil {
		return
	}
	defer store.Close()

	created, err := store.CreatePromotion(r.Context(), in)
	if err != nil {
		writeStoreError(w, api.Logger, err, "failed to create promotion")
		return
	}

	notified := broadcast(r.Context(), api.Notifier, api.Logger, created, store.Subscribers())
	writeJSON(w, http.StatusCreated, createPromotionResponse{Promotion: created, Notified: notified})
}

func (api *TenantAPI) UpdatePromotion(w http.ResponseWriter, r *http.Request) {
	var patch florist.PromotionPatch
	if err := decode(r, &patch); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if patch.IsEmpty() {
		response.WriteJSONError(w, http.StatusBadRequest, "empty patch")
		return
	}

	store := api.open(w, r)
	if store == nil {
		return
	}
	defer store.Close()

	updated, err := store.UpdatePromotion(r.Context(), r.PathValue("promotionID"), patch)
	if err != nil {
		writeStoreError(w, api.Logger, err, "failed to update promotion")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (api *TenantAPI) DeletePromotion(w http.ResponseWriter, r *http.Request) {
	store := api.open(w, r)
	if store == nil {
		return
	}
	defer store.Close()

	if err := store.DeletePromotion(r.Context(), r.PathValue("promotionID")); err != nil {
		writeStoreError(w, api.Logger, err, "failed to delete promotion")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (api *TenantAPI) ListSubscribers(w http.ResponseWriter, r *http.Request) {
	store := api.open(w, r)
	if store == nil {
		return
	}
	defer store.Close()

	writeJSON(w, http.StatusOK, store.Subscribers())
}

// Subscribe is the public opt-in form of a florist's page.
func (api *TenantAPI) Subscribe(w http.ResponseWriter, r *http.Request) {
	var in florist.SubscriberInput
	if err := decode(r, &in); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := in.Validate(); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	store := api.open(w, r)
	if store == nil {
		return
	}
	defer store.Close()

	created, err := store.AddSubscriber(r.Context(), in)
	if err != nil {
		writeStoreError(w, api.Logger, err, "failed to subscribe")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}
