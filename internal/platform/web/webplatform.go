// Package web shows notifications on the operator's browser through Web Push
// (VAPID).
package web

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/tinywideclouds/go-florist-service/floristservice/config"
	"github.com/tinywideclouds/go-florist-service/internal/platform"
	"github.com/tinywideclouds/go-florist-service/pkg/dispatch"
	"github.com/tinywideclouds/go-platform/pkg/notification/v1"
)

// Defaults shown by the service worker when a push carries no text.
const (
	FallbackTitle = "🌸 FleurNotif"
	FallbackBody  = "Nouvelle promotion disponible!"
	// ClickURL is opened by the service worker on notification click.
	ClickURL = "/"
)

// Platform delivers to the one browser subscription held by its gate.
type Platform struct {
	subscriber string
	privateKey string
	publicKey  string
	logger     *slog.Logger
	httpClient *http.Client
	gate       *platform.Gate[notification.WebPushSubscription]
}

func NewPlatform(cfg config.VapidConfig, gate *platform.Gate[notification.WebPushSubscription], logger *slog.Logger) *Platform {
	return &Platform{
		privateKey: cfg.PrivateKey,
		publicKey:  cfg.PublicKey,
		subscriber: cfg.SubscriberEmail,
		logger:     logger.With("component", "WebPushPlatform"),
		httpClient: &http.Client{},
		gate:       gate,
	}
}

// Gate exposes the permission gate so the device API can register the
// browser subscription.
func (p *Platform) Gate() *platform.Gate[notification.WebPushSubscription] {
	return p.gate
}

func (p *Platform) Supported() bool {
	return p.publicKey != "" && p.privateKey != ""
}

func (p *Platform) Permission() dispatch.Permission {
	return p.gate.State()
}

func (p *Platform) RequestPermission(ctx context.Context) (dispatch.Permission, error) {
	return p.gate.Await(ctx)
}

type pushPayload struct {
	Notification pushNotification `json:"notification"`
}

type pushNotification struct {
	Title string `json:"title"`
	dispatch.Options
}

// Show pushes n to the granted subscription. A subscription the push service
// reports gone resets the gate.
func (p *Platform) Show(ctx context.Context, n dispatch.Notification) error {
	sub, ok := p.gate.Device()
	if !ok {
		return fmt.Errorf("no web push subscription registered")
	}

	payload := pushPayload{Notification: pushNotification{Title: n.Title, Options: n.Options}}
	if payload.Notification.Title == "" {
		payload.Notification.Title = FallbackTitle
	}
	if payload.Notification.Body == "" {
		payload.Notification.Body = FallbackBody
	}
	data := make(map[string]string, len(n.Options.Data)+2)
	for k, v := range n.Options.Data {
		data[k] = v
	}
	data["url"] = ClickURL
	if n.OnClick != "" {
		data["on_click"] = n.OnClick
	}
	payload.Notification.Data = data

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	s := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: base64.RawURLEncoding.EncodeToString(sub.Keys.P256dh),
			Auth:   base64.RawURLEncoding.EncodeToString(sub.Keys.Auth),
		},
	}

	resp, err := webpush.SendNotification(payloadBytes, s, &webpush.Options{
		Subscriber:      p.subscriber,
		VAPIDPublicKey:  p.publicKey,
		VAPIDPrivateKey: p.privateKey,
		TTL:             60,
		HTTPClient:      p.httpClient,
	})
	if err != nil {
		p.logger.Error("WebPush transport error", "endpoint", sub.Endpoint, "err", err)
		return fmt.Errorf("web push transport failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK:
		p.logger.Debug("WebPush delivered", "endpoint", sub.Endpoint, "tag", n.Options.Tag)
		return nil
	case http.StatusGone, http.StatusNotFound:
		p.logger.Warn("WebPush subscription expired; awaiting a new one", "endpoint", sub.Endpoint)
		if err := p.gate.Reset(ctx); err != nil {
			p.logger.Warn("Failed to reset permission", "err", err)
		}
		return fmt.Errorf("web push subscription gone (status %d)", resp.StatusCode)
	default:
		p.logger.Warn("WebPush rejected", "status", resp.StatusCode, "endpoint", sub.Endpoint)
		return fmt.Errorf("web push rejected with status %d", resp.StatusCode)
	}
}
