// Package apns shows notifications on the operator's iOS device through the
// Apple Push Notification Service.
package apns

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
	"github.com/tinywideclouds/go-florist-service/floristservice/config"
	"github.com/tinywideclouds/go-florist-service/internal/platform"
	"github.com/tinywideclouds/go-florist-service/pkg/dispatch"
)

// APNSClient defines the subset of the apns2.Client methods we use.
// This allows mocking for unit tests.
type APNSClient interface {
	Push(n *apns2.Notification) (*apns2.Response, error)
}

// Platform delivers to the one device token held by its gate.
type Platform struct {
	client APNSClient
	topic  string // The App Bundle ID
	gate   *platform.Gate[string]
	logger *slog.Logger
}

// NewPlatform creates a configured APNs platform.
// It parses the P8 key immediately to fail fast on startup if credentials are bad.
func NewPlatform(cfg config.APNSConfig, gate *platform.Gate[string], logger *slog.Logger) (*Platform, error) {
	authKey, err := token.AuthKeyFromBytes([]byte(cfg.P8KeyContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse APNs P8 key: %w", err)
	}

	tokenSource := &token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	}

	return newPlatform(apns2.NewTokenClient(tokenSource).Production(), cfg.BundleID, gate, logger), nil
}

func newPlatform(client APNSClient, topic string, gate *platform.Gate[string], logger *slog.Logger) *Platform {
	return &Platform{
		client: client,
		topic:  topic,
		gate:   gate,
		logger: logger.With("component", "APNSPlatform"),
	}
}

// Gate exposes the permission gate so the device API can register the token.
func (p *Platform) Gate() *platform.Gate[string] {
	return p.gate
}

func (p *Platform) Supported() bool {
	return p.client != nil && p.topic != ""
}

func (p *Platform) Permission() dispatch.Permission {
	return p.gate.State()
}

func (p *Platform) RequestPermission(ctx context.Context) (dispatch.Permission, error) {
	return p.gate.Await(ctx)
}

// Show pushes n to the granted device token. The tag becomes the collapse id
// so a repeated notification replaces the previous one.
func (p *Platform) Show(ctx context.Context, n dispatch.Notification) error {
	deviceToken, ok := p.gate.Device()
	if !ok {
		return fmt.Errorf("no apns device token registered")
	}

	builder := payload.NewPayload().
		AlertTitle(n.Title).
		AlertBody(n.Options.Body).
		Sound("default")
	if n.Options.Tag != "" {
		builder.ThreadID(n.Options.Tag)
	}
	for k, v := range n.Options.Data {
		builder.Custom(k, v)
	}
	if len(n.Options.Actions) > 0 {
		builder.Category(n.Options.Actions[0].Action)
	}
	if n.OnClick != "" {
		builder.Custom("on_click", n.OnClick)
	}
	builder.Custom("url", "/")

	notification := &apns2.Notification{
		DeviceToken: deviceToken,
		Topic:       p.topic,
		CollapseID:  n.Options.Tag,
		Priority:    apns2.PriorityHigh,
		Payload:     builder,
	}

	res, err := p.client.Push(notification)
	if err != nil {
		p.logger.Error("APNs transport failed", "err", err)
		return fmt.Errorf("apns transport failed: %w", err)
	}
	if res.Sent() {
		p.logger.Debug("APNs delivered", "apns_id", res.ApnsID, "tag", n.Options.Tag)
		return nil
	}

	switch res.Reason {
	case apns2.ReasonBadDeviceToken, apns2.ReasonUnregistered, apns2.ReasonDeviceTokenNotForTopic:
		p.logger.Warn("APNs device token is dead; awaiting a new one", "reason", res.Reason)
		if err := p.gate.Reset(ctx); err != nil {
			p.logger.Warn("Failed to reset permission", "err", err)
		}
	default:
		p.logger.Warn("APNs rejected notification", "reason", res.Reason, "status", res.StatusCode)
	}
	return fmt.Errorf("apns rejected notification: %s (status %d)", res.Reason, res.StatusCode)
}
