// Package fcm shows notifications on the operator's device through Firebase
// Cloud Messaging.
package fcm

import (
	"context"
	"fmt"
	"log/slog"

	"firebase.google.com/go/v4/messaging"
	"github.com/tinywideclouds/go-florist-service/internal/platform"
	"github.com/tinywideclouds/go-florist-service/pkg/dispatch"
)

// MessagingClient defines the subset of the Firebase Messaging API we use.
// *messaging.Client satisfies it.
type MessagingClient interface {
	Send(ctx context.Context, msg *messaging.Message) (string, error)
}

// Platform delivers to the one registration token held by its gate.
type Platform struct {
	client MessagingClient
	gate   *platform.Gate[string]
	logger *slog.Logger
}

func NewPlatform(client MessagingClient, gate *platform.Gate[string], logger *slog.Logger) *Platform {
	return &Platform{
		client: client,
		gate:   gate,
		logger: logger.With("component", "FCMPlatform"),
	}
}

// Gate exposes the permission gate so the device API can register the token.
func (p *Platform) Gate() *platform.Gate[string] {
	return p.gate
}

func (p *Platform) Supported() bool {
	return p.client != nil
}

func (p *Platform) Permission() dispatch.Permission {
	return p.gate.State()
}

func (p *Platform) RequestPermission(ctx context.Context) (dispatch.Permission, error) {
	return p.gate.Await(ctx)
}

// Show sends n to the granted token. An unregistered token resets the gate;
// an invalid message is reported without touching it.
func (p *Platform) Show(ctx context.Context, n dispatch.Notification) error {
	token, ok := p.gate.Device()
	if !ok {
		return fmt.Errorf("no fcm token registered")
	}

	data := map[string]string{"url": "/"}
	for k, v := range n.Options.Data {
		data[k] = v
	}
	if n.OnClick != "" {
		data["on_click"] = n.OnClick
	}

	actions := make([]*messaging.WebpushNotificationAction, 0, len(n.Options.Actions))
	for _, a := range n.Options.Actions {
		actions = append(actions, &messaging.WebpushNotificationAction{Action: a.Action, Title: a.Title})
	}

	msg := &messaging.Message{
		Token: token,
		Data:  data,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Options.Body,
		},
		Webpush: &messaging.WebpushConfig{
			Notification: &messaging.WebpushNotification{
				Title:              n.Title,
				Body:               n.Options.Body,
				Icon:               n.Options.Icon,
				Badge:              n.Options.Badge,
				Tag:                n.Options.Tag,
				RequireInteraction: n.Options.RequireInteraction,
				Actions:            actions,
			},
		},
	}

	id, err := p.client.Send(ctx, msg)
	if err != nil {
		if messaging.IsRegistrationTokenNotRegistered(err) {
			p.logger.Warn("FCM token no longer registered; awaiting a new one", "err", err)
			if rerr := p.gate.Reset(ctx); rerr != nil {
				p.logger.Warn("Failed to reset permission", "err", rerr)
			}
			return fmt.Errorf("fcm token not registered: %w", err)
		}
		if messaging.IsInvalidArgument(err) {
			p.logger.Error("FCM rejected message as InvalidArgument", "err", err)
			return fmt.Errorf("fcm rejected message: %w", err)
		}
		return fmt.Errorf("fcm transport failed: %w", err)
	}

	p.logger.Debug("FCM delivered", "message_id", id, "tag", n.Options.Tag)
	return nil
}
