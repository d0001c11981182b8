// Package dispatch defines the notification platform contract used by the
// dispatch helper.
package dispatch

import "context"

// Permission is the platform's notification permission decision.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// ClickFocus asks the receiving client to focus the application window and
// dismiss the notification when it is clicked.
const ClickFocus = "focus"

// Action is a button shown on a notification.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// Options mirrors the options accepted by a platform notification.
type Options struct {
	Body               string            `json:"body,omitempty"`
	Icon               string            `json:"icon,omitempty"`
	Badge              string            `json:"badge,omitempty"`
	Tag                string            `json:"tag,omitempty"`
	RequireInteraction bool              `json:"requireInteraction,omitempty"`
	Actions            []Action          `json:"actions,omitempty"`
	Data               map[string]string `json:"data,omitempty"`
}

// Notification is one notification ready to be shown on a device.
type Notification struct {
	Title   string
	Options Options
	// OnClick names the client behaviour on click, e.g. ClickFocus.
	OnClick string
}

// Platform is a device notification capability with its own permission state.
type Platform interface {
	// Supported reports whether the platform can show notifications at all.
	Supported() bool
	// Permission returns the current decision without prompting.
	Permission() Permission
	// RequestPermission returns the decision, waiting for one while it is
	// undecided. The wait ends only with a decision or with ctx.
	RequestPermission(ctx context.Context) (Permission, error)
	// Show emits one notification on the granted device.
	Show(ctx context.Context, n Notification) error
}
