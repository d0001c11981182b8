package api

import (
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-florist-service/internal/registry"
	"github.com/tinywideclouds/go-florist-service/pkg/florist"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"
)

// AdminAPI serves the florist registry to administrators.
type AdminAPI struct {
	Registry *registry.Store
	Logger   *slog.Logger
}

func NewAdminAPI(reg *registry.Store, logger *slog.Logger) *AdminAPI {
	return &AdminAPI{
		Registry: reg,
		Logger:   logger.With("component", "AdminAPI"),
	}
}

type floristListResponse struct {
	Florists    []florist.Florist `json:"florists"`
	ActiveCount int               `json:"active_count"`
}

func (api *AdminAPI) ListFlorists(w http.ResponseWriter, r *http.Request) {
	if err := api.Registry.LoadFlorists(r.Context()); err != nil {
		writeStoreError(w, api.Logger, err, "failed to load florists")
		return
	}
	writeJSON(w, http.StatusOK, floristListResponse{
		Florists:    api.Registry.Florists(),
		ActiveCount: api.Registry.ActiveCount(),
	})
}

func (api *AdminAPI) CreateFlorist(w http.ResponseWriter, r *http.Request) {
	var in florist.FloristInput
	if err := decode(r, &in); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := in.Validate(); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := api.Registry.CreateFlorist(r.Context(), in)
	if err != nil {
		writeStoreError(w, api.Logger, err, "failed to create florist")
		return
	}
	api.Logger.Info("Admin action", "action", "create", "florist_id", created.ID, "by", actor(r.Context()))
	writeJSON(w, http.StatusCreated, created)
}

func (api *AdminAPI) UpdateFlorist(w http.ResponseWriter, r *http.Request) {
	var patch florist.FloristPatch
	if err := decode(r, &patch); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}

	updated, err := api.Registry.UpdateFlorist(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeStoreError(w, api.Logger, err, "failed to update florist")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (api *AdminAPI) ToggleFlorist(w http.ResponseWriter, r *http.Request) {
	updated, err := api.Registry.ToggleFlorist(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, api.Logger, err, "failed to toggle florist")
		return
	}
	api.Logger.Info("Admin action", "action", "toggle", "florist_id", updated.ID, "active", updated.Active, "by", actor(r.Context()))
	writeJSON(w, http.StatusOK, updated)
}

func (api *AdminAPI) DeleteFlorist(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := api.Registry.DeleteFlorist(r.Context(), id); err != nil {
		writeStoreError(w, api.Logger, err, "failed to delete florist")
		return
	}
	api.Logger.Info("Admin action", "action", "delete", "florist_id", id, "by", actor(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

// FloristStats always answers 200; a failed read shows as an empty list.
func (api *AdminAPI) FloristStats(w http.ResponseWriter, r *http.Request) {
	stats := api.Registry.GetFloristStats(r.Context(), r.PathValue("id"))
	writeJSON(w, http.StatusOK, stats)
}
