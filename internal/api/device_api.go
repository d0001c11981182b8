package api

import (
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-florist-service/internal/platform"
	"github.com/tinywideclouds/go-florist-service/pkg/dispatch"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"
	"github.com/tinywideclouds/go-platform/pkg/notification/v1"
)

// PermissionReporter reports the current notification permission.
type PermissionReporter interface {
	Permission() dispatch.Permission
}

// DeviceAPI registers the operator's device with the configured platform.
// Registering a device is the answer to the permission prompt. Exactly one
// of WebGate and TokenGate is set when a platform is configured.
type DeviceAPI struct {
	Permissions PermissionReporter
	WebGate     *platform.Gate[notification.WebPushSubscription]
	TokenGate   *platform.Gate[string]
	Logger      *slog.Logger
}

func NewDeviceAPI(
	permissions PermissionReporter,
	webGate *platform.Gate[notification.WebPushSubscription],
	tokenGate *platform.Gate[string],
	logger *slog.Logger,
) *DeviceAPI {
	return &DeviceAPI{
		Permissions: permissions,
		WebGate:     webGate,
		TokenGate:   tokenGate,
		Logger:      logger.With("component", "DeviceAPI"),
	}
}

type permissionResponse struct {
	Permission dispatch.Permission `json:"permission"`
}

func (api *DeviceAPI) Permission(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, permissionResponse{Permission: api.Permissions.Permission()})
}

// --- DOOR A: Web (VAPID) ---

func (api *DeviceAPI) RegisterWeb(w http.ResponseWriter, r *http.Request) {
	if api.WebGate == nil {
		response.WriteJSONError(w, http.StatusNotFound, "web push is not configured")
		return
	}

	var sub notification.WebPushSubscription
	if err := decode(r, &sub); err != nil {
		api.Logger.Error("RegisterWeb: JSON Decode failed", "err", err)
		response.WriteJSONError(w, http.StatusBadRequest, "invalid subscription json")
		return
	}
	if sub.Endpoint == "" || len(sub.Keys.P256dh) == 0 || len(sub.Keys.Auth) == 0 {
		api.Logger.Warn("RegisterWeb: Validation failed", "reason", "missing fields")
		response.WriteJSONError(w, http.StatusBadRequest, "incomplete subscription object")
		return
	}

	// The grant is live once Grant returns; only its persistence can fail.
	if err := api.WebGate.Grant(r.Context(), sub); err != nil {
		api.Logger.Warn("Web device granted but not persisted", "err", err)
	}
	api.Logger.Info("RegisterWeb: Device registered", "by", actor(r.Context()), "endpoint", sub.Endpoint)
	w.WriteHeader(http.StatusNoContent)
}

// --- DOOR B: Mobile (FCM / APNs) ---

type registerTokenRequest struct {
	Token string `json:"token"`
}

func (api *DeviceAPI) RegisterToken(w http.ResponseWriter, r *http.Request) {
	if api.TokenGate == nil {
		response.WriteJSONError(w, http.StatusNotFound, "token push is not configured")
		return
	}

	var req registerTokenRequest
	if err := decode(r, &req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Token == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing token")
		return
	}

	if err := api.TokenGate.Grant(r.Context(), req.Token); err != nil {
		api.Logger.Warn("Device token granted but not persisted", "err", err)
	}
	api.Logger.Info("RegisterToken: Device registered", "by", actor(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

// Unregister forgets the device. With ?deny=true the operator refuses
// notifications instead, which also ends any pending prompt.
func (api *DeviceAPI) Unregister(w http.ResponseWriter, r *http.Request) {
	deny := r.URL.Query().Get("deny") == "true"

	var err error
	switch {
	case api.WebGate != nil && deny:
		err = api.WebGate.Deny(r.Context())
	case api.WebGate != nil:
		err = api.WebGate.Reset(r.Context())
	case api.TokenGate != nil && deny:
		err = api.TokenGate.Deny(r.Context())
	case api.TokenGate != nil:
		err = api.TokenGate.Reset(r.Context())
	default:
		response.WriteJSONError(w, http.StatusNotFound, "no notification platform configured")
		return
	}

	if err != nil {
		// The in-memory decision changed; only its persistence failed.
		api.Logger.Warn("failed to persist device removal", "err", err)
	}
	w.WriteHeader(http.StatusNoContent)
}
