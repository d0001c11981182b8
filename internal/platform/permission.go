// Package platform holds what the notification platforms share: the
// permission gate that stands in for the device's permission prompt.
package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tinywideclouds/go-florist-service/pkg/dispatch"
	"github.com/tinywideclouds/go-florist-service/pkg/storage"
)

// DeviceKey is the key-value entry holding the persisted decision.
const DeviceKey = "florist_push_device"

type persistedGate[D any] struct {
	State  dispatch.Permission `json:"state"`
	Device *D                  `json:"device,omitempty"`
}

// Gate is the permission state machine of one operator device:
// default, then granted (with the device address) or denied. Reset returns
// it to default, e.g. when the push service reports the device gone.
type Gate[D any] struct {
	kv     storage.KeyValue
	logger *slog.Logger

	mu      sync.Mutex
	state   dispatch.Permission
	device  D
	decided chan struct{}
}

// NewGate creates an undecided gate. kv may be nil, in which case decisions
// only live in memory.
func NewGate[D any](kv storage.KeyValue, logger *slog.Logger) *Gate[D] {
	return &Gate[D]{
		kv:      kv,
		logger:  logger.With("component", "PermissionGate"),
		state:   dispatch.PermissionDefault,
		decided: make(chan struct{}),
	}
}

// Restore reloads a persisted decision. A missing or malformed entry leaves
// the gate undecided.
func (g *Gate[D]) Restore(ctx context.Context) error {
	if g.kv == nil {
		return nil
	}
	raw, found, err := g.kv.Get(ctx, DeviceKey)
	if err != nil {
		return fmt.Errorf("failed to read permission state: %w", err)
	}
	if !found {
		return nil
	}
	var p persistedGate[D]
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		g.logger.Warn("Discarding malformed permission state", "err", err)
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case p.State == dispatch.PermissionGranted && p.Device != nil:
		g.decide(dispatch.PermissionGranted, *p.Device)
	case p.State == dispatch.PermissionDenied:
		var zero D
		g.decide(dispatch.PermissionDenied, zero)
	}
	return nil
}

// Grant records the device and wakes every pending Await.
func (g *Gate[D]) Grant(ctx context.Context, device D) error {
	g.mu.Lock()
	g.decide(dispatch.PermissionGranted, device)
	g.mu.Unlock()
	g.logger.Info("Notification permission granted")
	return g.persist(ctx, persistedGate[D]{State: dispatch.PermissionGranted, Device: &device})
}

// Deny records a refusal and wakes every pending Await.
func (g *Gate[D]) Deny(ctx context.Context) error {
	var zero D
	g.mu.Lock()
	g.decide(dispatch.PermissionDenied, zero)
	g.mu.Unlock()
	g.logger.Info("Notification permission denied")
	return g.persist(ctx, persistedGate[D]{State: dispatch.PermissionDenied})
}

// Reset forgets the decision and the device.
func (g *Gate[D]) Reset(ctx context.Context) error {
	var zero D
	g.mu.Lock()
	if g.state != dispatch.PermissionDefault {
		g.state = dispatch.PermissionDefault
		g.device = zero
		g.decided = make(chan struct{})
	}
	g.mu.Unlock()
	g.logger.Info("Notification permission reset")
	return g.persist(ctx, persistedGate[D]{State: dispatch.PermissionDefault})
}

// decide must be called with mu held.
func (g *Gate[D]) decide(state dispatch.Permission, device D) {
	g.state = state
	g.device = device
	select {
	case <-g.decided:
	default:
		close(g.decided)
	}
}

// State returns the current decision.
func (g *Gate[D]) State() dispatch.Permission {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Device returns the granted device, if any.
func (g *Gate[D]) Device() (D, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.device, g.state == dispatch.PermissionGranted
}

// Await returns the decision, blocking while it is undecided. Only ctx
// bounds the wait.
func (g *Gate[D]) Await(ctx context.Context) (dispatch.Permission, error) {
	g.mu.Lock()
	state, decided := g.state, g.decided
	g.mu.Unlock()
	if state != dispatch.PermissionDefault {
		return state, nil
	}

	select {
	case <-decided:
		return g.State(), nil
	case <-ctx.Done():
		return dispatch.PermissionDefault, ctx.Err()
	}
}

func (g *Gate[D]) persist(ctx context.Context, p persistedGate[D]) error {
	if g.kv == nil {
		return nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode permission state: %w", err)
	}
	if err := g.kv.Set(ctx, DeviceKey, string(data)); err != nil {
		return fmt.Errorf("failed to persist permission state: %w", err)
	}
	return nil
}
