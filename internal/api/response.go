// Package api exposes the stores and the notification helper over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/tinywideclouds/go-florist-service/internal/tenant"
	"github.com/tinywideclouds/go-florist-service/pkg/dispatch"
	"github.com/tinywideclouds/go-florist-service/pkg/florist"
	"github.com/tinywideclouds/go-florist-service/pkg/storage"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

// PromptTimeout bounds how long a create request waits for the operator to
// answer a pending notification prompt.
const PromptTimeout = 5 * time.Second

// Notifier is the part of the notification helper the handlers need.
type Notifier interface {
	Permission() dispatch.Permission
	BroadcastPromotion(ctx context.Context, p florist.Promotion, subscribers []florist.Subscriber) (bool, error)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// writeStoreError maps a store or gateway error onto an HTTP status.
func writeStoreError(w http.ResponseWriter, logger *slog.Logger, err error, msg string) {
	switch {
	case errors.Is(err, florist.ErrInvalidInput):
		response.WriteJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		response.WriteJSONError(w, http.StatusNotFound, "not found")
	case errors.Is(err, storage.ErrConflict):
		response.WriteJSONError(w, http.StatusConflict, "already exists")
	case errors.Is(err, tenant.ErrNoFlorist):
		response.WriteJSONError(w, http.StatusBadRequest, "missing florist id")
	default:
		logger.Error(msg, "err", err)
		response.WriteJSONError(w, http.StatusBadGateway, msg)
	}
}

// actor returns the authenticated user for log lines, or "anonymous".
func actor(ctx context.Context) string {
	userID, ok := middleware.GetUserHandleFromContext(ctx)
	if !ok {
		return "anonymous"
	}
	userURN, err := urn.Parse(userID)
	if err != nil {
		return userID
	}
	return userURN.String()
}

// broadcast announces p when there is someone to announce it to. The outcome
// never fails the surrounding request.
func broadcast(ctx context.Context, notifier Notifier, logger *slog.Logger, p florist.Promotion, subscribers []florist.Subscriber) bool {
	if notifier == nil || len(subscribers) == 0 {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, PromptTimeout)
	defer cancel()

	sent, err := notifier.BroadcastPromotion(ctx, p, subscribers)
	if err != nil {
		logger.Warn("Promotion broadcast failed", "promotion_id", p.ID, "err", err)
		return false
	}
	return sent
}
