// Package notify wraps a notification platform's permission and emission
// primitives and formats promotion notifications.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-florist-service/pkg/dispatch"
	"github.com/tinywideclouds/go-florist-service/pkg/florist"
)

// DefaultIcon is used for both icon and badge unless configured otherwise.
const DefaultIcon = "/pwa-192x192.png"

// deadlineLayout prints dates the way fr-FR locales do.
const deadlineLayout = "02/01/2006 15:04:05"

// Options configures the helper's defaults.
type Options struct {
	Icon  string
	Badge string
	// Location is used to print promotion deadlines; nil means UTC.
	Location *time.Location
}

// Helper is the single notification facade of a process. Its permission
// state is the platform's; a nil or unsupported platform never grants.
type Helper struct {
	platform dispatch.Platform
	icon     string
	badge    string
	loc      *time.Location
	logger   *slog.Logger
}

func New(platform dispatch.Platform, opts Options, logger *slog.Logger) *Helper {
	h := &Helper{
		platform: platform,
		icon:     opts.Icon,
		badge:    opts.Badge,
		loc:      opts.Location,
		logger:   logger.With("component", "NotificationHelper"),
	}
	if h.icon == "" {
		h.icon = DefaultIcon
	}
	if h.badge == "" {
		h.badge = DefaultIcon
	}
	if h.loc == nil {
		h.loc = time.UTC
	}
	return h
}

func (h *Helper) supported() bool {
	return h.platform != nil && h.platform.Supported()
}

// Permission returns the current decision without prompting.
func (h *Helper) Permission() dispatch.Permission {
	if !h.supported() {
		return dispatch.PermissionDenied
	}
	return h.platform.Permission()
}

// RequestPermission reports whether notifications are granted, waiting for
// a decision while none has been made. The wait ends only with ctx.
func (h *Helper) RequestPermission(ctx context.Context) bool {
	if !h.supported() {
		return false
	}
	if h.platform.Permission() == dispatch.PermissionGranted {
		return true
	}
	p, err := h.platform.RequestPermission(ctx)
	if err != nil {
		h.logger.Debug("Permission request ended without a decision", "err", err)
		return false
	}
	return p == dispatch.PermissionGranted
}

// SendNotification shows one notification. It returns false, without an
// error, when permission is not granted; only delivery failures are errors.
func (h *Helper) SendNotification(ctx context.Context, title string, opts dispatch.Options) (bool, error) {
	if !h.RequestPermission(ctx) {
		h.logger.Info("Notification not sent: permission not granted", "title", title)
		return false, nil
	}

	if opts.Icon == "" {
		opts.Icon = h.icon
	}
	if opts.Badge == "" {
		opts.Badge = h.badge
	}

	n := dispatch.Notification{Title: title, Options: opts, OnClick: dispatch.ClickFocus}
	if err := h.platform.Show(ctx, n); err != nil {
		return false, fmt.Errorf("failed to show notification: %w", err)
	}
	return true, nil
}

// PromotionNotification formats the notification announcing p.
func (h *Helper) PromotionNotification(p florist.Promotion) (string, dispatch.Options) {
	title := fmt.Sprintf("🌸 Promotion Flash - %d%% de réduction!", p.Discount)
	opts := dispatch.Options{
		Body:               fmt.Sprintf("%s\nValable jusqu'à %s", p.Title, p.EndDate.In(h.loc).Format(deadlineLayout)),
		Tag:                "promotion-" + p.ID,
		RequireInteraction: true,
		Actions:            []dispatch.Action{{Action: "view", Title: "Voir l'offre"}},
	}
	return title, opts
}

// SendPromotionNotification announces p. The tag carries the promotion id,
// so a repeat replaces the earlier notification.
func (h *Helper) SendPromotionNotification(ctx context.Context, p florist.Promotion) (bool, error) {
	title, opts := h.PromotionNotification(p)
	return h.SendNotification(ctx, title, opts)
}

// BroadcastPromotion logs the subscribers a push backend would reach and
// shows exactly one notification on the operator's device. It does not
// confirm per-subscriber delivery.
func (h *Helper) BroadcastPromotion(ctx context.Context, p florist.Promotion, subscribers []florist.Subscriber) (bool, error) {
	h.logger.Info("Broadcasting promotion", "promotion_id", p.ID, "subscribers", len(subscribers))
	for _, s := range subscribers {
		h.logger.Info("Notification queued for subscriber", "promotion_id", p.ID, "email", s.Email)
	}
	return h.SendPromotionNotification(ctx, p)
}
