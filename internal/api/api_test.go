package api_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/stretchr/testify/mock"
	"github.com/tinywideclouds/go-florist-service/pkg/dispatch"
	"github.com/tinywideclouds/go-florist-service/pkg/florist"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

// --- Mocks ---
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Permission() dispatch.Permission {
	return m.Called().Get(0).(dispatch.Permission)
}

func (m *MockNotifier) BroadcastPromotion(ctx context.Context, p florist.Promotion, subs []florist.Subscriber) (bool, error) {
	args := m.Called(ctx, p, subs)
	return args.Bool(0), args.Error(1)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// withUser injects a user into the context, as the auth middleware does.
func withUser(req *http.Request, userID string) *http.Request {
	ctx := middleware.ContextWithUserID(req.Context(), userID)
	return req.WithContext(ctx)
}
