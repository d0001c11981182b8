// Package storage defines the persistence contracts used by the stores: the
// remote data gateway and the local key-value helper.
package storage

import (
	"context"
	"errors"

	"github.com/tinywideclouds/go-florist-service/pkg/florist"
)

// ErrNotFound is returned by gateways when a record addressed by id does not exist.
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned by gateways that reject a write breaking a
// uniqueness rule, such as a second subscription with the same email.
var ErrConflict = errors.New("record conflicts with an existing one")

// Gateway is the remote data store holding the florists, promotions and
// subscribers collections. List operations return records newest first.
// Insert operations return the canonical record, including gateway-assigned
// fields such as the identifier.
type Gateway interface {
	ListFlorists(ctx context.Context) ([]florist.Florist, error)
	GetFlorist(ctx context.Context, id string) (florist.Florist, error)
	InsertFlorist(ctx context.Context, f florist.Florist) (florist.Florist, error)
	UpdateFlorist(ctx context.Context, id string, patch florist.FloristPatch) (florist.Florist, error)
	DeleteFlorist(ctx context.Context, id string) error

	ListPromotions(ctx context.Context, floristID string) ([]florist.Promotion, error)
	InsertPromotion(ctx context.Context, p florist.Promotion) (florist.Promotion, error)
	// UpdatePromotion merges patch into the promotion and keeps its final
	// price consistent with the stored price and discount.
	UpdatePromotion(ctx context.Context, floristID, id string, patch florist.PromotionPatch) (florist.Promotion, error)
	DeletePromotion(ctx context.Context, floristID, id string) error

	ListSubscribers(ctx context.Context, floristID string) ([]florist.Subscriber, error)
	InsertSubscriber(ctx context.Context, s florist.Subscriber) (florist.Subscriber, error)
}

// KeyValue is durable keyed string storage local to one deployment.
type KeyValue interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}
