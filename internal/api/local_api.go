package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/tinywideclouds/go-florist-service/internal/localstore"
	"github.com/tinywideclouds/go-florist-service/pkg/florist"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"
)

// LocalAPI serves the single-tenant store.
type LocalAPI struct {
	Store    *localstore.Store
	Notifier Notifier
	Logger   *slog.Logger
	now      func() time.Time
}

func NewLocalAPI(store *localstore.Store, notifier Notifier, logger *slog.Logger) *LocalAPI {
	return &LocalAPI{
		Store:    store,
		Notifier: notifier,
		Logger:   logger.With("component", "LocalAPI"),
		now:      time.Now,
	}
}

func (api *LocalAPI) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.Store.State())
}

func (api *LocalAPI) ActivePromotions(w http.ResponseWriter, r *http.Request) {
	st := api.Store.State()
	writeJSON(w, http.StatusOK, customerViewResponse{
		Florist:    st.Florist,
		Promotions: florist.FilterPromotions(st.Promotions, florist.StatusActive, api.now()),
	})
}

func (api *LocalAPI) CreatePromotion(w http.ResponseWriter, r *http.Request) {
	var in florist.PromotionInput
	if err := decode(r, &in); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := in.Validate(); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	created := api.Store.AddPromotion(r.Context(), in)
	notified := broadcast(r.Context(), api.Notifier, api.Logger, created, api.Store.State().Subscribers)
	writeJSON(w, http.StatusCreated, createPromotionResponse{Promotion: created, Notified: notified})
}

func (api *LocalAPI) UpdatePromotion(w http.ResponseWriter, r *http.Request) {
	var patch florist.PromotionPatch
	if err := decode(r, &patch); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}

	updated, found := api.Store.UpdatePromotion(r.Context(), r.PathValue("id"), patch)
	if !found {
		response.WriteJSONError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeletePromotion answers 204 whether or not the promotion existed.
func (api *LocalAPI) DeletePromotion(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !api.Store.DeletePromotion(r.Context(), id) {
		api.Logger.Debug("Delete of unknown promotion", "promotion_id", id)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Subscribe answers 201 for a new subscriber and 200 when the email was
// already subscribed.
func (api *LocalAPI) Subscribe(w http.ResponseWriter, r *http.Request) {
	var in florist.SubscriberInput
	if err := decode(r, &in); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := in.Validate(); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	sub, added := api.Store.AddSubscriber(r.Context(), in)
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	writeJSON(w, status, sub)
}

func (api *LocalAPI) UpdateFlorist(w http.ResponseWriter, r *http.Request) {
	var patch florist.FloristPatch
	if err := decode(r, &patch); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	writeJSON(w, http.StatusOK, api.Store.UpdateFloristProfile(r.Context(), patch))
}
