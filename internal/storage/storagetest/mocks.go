// Package storagetest provides testify mocks of the storage contracts for
// the stores' and handlers' tests.
package storagetest

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/tinywideclouds/go-florist-service/pkg/florist"
)

// MockGateway is a mock implementation of storage.Gateway. The Insert
// methods also accept a func returning the record, to echo their input.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) ListFlorists(ctx context.Context) ([]florist.Florist, error) {
	args := m.Called(ctx)
	var out []florist.Florist
	if v := args.Get(0); v != nil {
		out = v.([]florist.Florist)
	}
	return out, args.Error(1)
}

func (m *MockGateway) GetFlorist(ctx context.Context, id string) (florist.Florist, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(florist.Florist), args.Error(1)
}

func (m *MockGateway) InsertFlorist(ctx context.Context, f florist.Florist) (florist.Florist, error) {
	args := m.Called(ctx, f)
	if fn, ok := args.Get(0).(func(context.Context, florist.Florist) florist.Florist); ok {
		return fn(ctx, f), args.Error(1)
	}
	return args.Get(0).(florist.Florist), args.Error(1)
}

func (m *MockGateway) UpdateFlorist(ctx context.Context, id string, patch florist.FloristPatch) (florist.Florist, error) {
	args := m.Called(ctx, id, patch)
	return args.Get(0).(florist.Florist), args.Error(1)
}

func (m *MockGateway) DeleteFlorist(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockGateway) ListPromotions(ctx context.Context, floristID string) ([]florist.Promotion, error) {
	args := m.Called(ctx, floristID)
	var out []florist.Promotion
	if v := args.Get(0); v != nil {
		out = v.([]florist.Promotion)
	}
	return out, args.Error(1)
}

func (m *MockGateway) InsertPromotion(ctx context.Context, p florist.Promotion) (florist.Promotion, error) {
	args := m.Called(ctx, p)
	if fn, ok := args.Get(0).(func(context.Context, florist.Promotion) florist.Promotion); ok {
		return fn(ctx, p), args.Error(1)
	}
	return args.Get(0).(florist.Promotion), args.Error(1)
}

func (m *MockGateway) UpdatePromotion(ctx context.Context, floristID, id string, patch florist.PromotionPatch) (florist.Promotion, error) {
	args := m.Called(ctx, floristID, id, patch)
	return args.Get(0).(florist.Promotion), args.Error(1)
}

func (m *MockGateway) DeletePromotion(ctx context.Context, floristID, id string) error {
	args := m.Called(ctx, floristID, id)
	return args.Error(0)
}

func (m *MockGateway) ListSubscribers(ctx context.Context, floristID string) ([]florist.Subscriber, error) {
	args := m.Called(ctx, floristID)
	var out []florist.Subscriber
	if v := args.Get(0); v != nil {
		out = v.([]florist.Subscriber)
	}
	return out, args.Error(1)
}

func (m *MockGateway) InsertSubscriber(ctx context.Context, s florist.Subscriber) (florist.Subscriber, error) {
	args := m.Called(ctx, s)
	if fn, ok := args.Get(0).(func(context.Context, florist.Subscriber) florist.Subscriber); ok {
		return fn(ctx, s), args.Error(1)
	}
	return args.Get(0).(florist.Subscriber), args.Error(1)
}

// MockKeyValue is a mock implementation of storage.KeyValue.
type MockKeyValue struct {
	mock.Mock
}

func (m *MockKeyValue) Get(ctx context.Context, key string) (string, bool, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockKeyValue) Set(ctx context.Context, key, value string) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}
