package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-florist-service/internal/pipeline"
)

func TestBroadcastRequestTransformer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	testCases := []struct {
		name                  string
		payload               string
		expectError           bool
		expectedErrorContains string
		expected              *pipeline.BroadcastRequest
	}{
		{
			name:     "Happy Path - Valid Request",
			payload:  `{"florist_id":"f-1","promotion_id":"p-1"}`,
			expected: &pipeline.BroadcastRequest{FloristID: "f-1", PromotionID: "p-1"},
		},
		{
			name:     "Happy Path - Ids Are Trimmed",
			payload:  `{"florist_id":" f-1 ","promotion_id":"p-1\n"}`,
			expected: &pipeline.BroadcastRequest{FloristID: "f-1", PromotionID: "p-1"},
		},
		{
			name:                  "Failure - Malformed JSON",
			payload:               "not-json",
			expectError:           true,
			expectedErrorContains: "failed to unmarshal broadcast request",
		},
		{
			name:                  "Failure - Missing Promotion",
			payload:               `{"florist_id":"f-1"}`,
			expectError:           true,
			expectedErrorContains: "missing florist_id or promotion_id",
		},
		{
			name:                  "Failure - Blank Florist",
			payload:               `{"florist_id":"  ","promotion_id":"p-1"}`,
			expectError:           true,
			expectedErrorContains: "missing florist_id or promotion_id",
		},
	}

	for i, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			msg := &messagepipeline.Message{
				MessageData: messagepipeline.MessageData{ID: string(rune('a' + i)), Payload: []byte(tc.payload)},
			}

			req, skip, err := pipeline.BroadcastRequestTransformer(ctx, msg)

			if tc.expectError {
				require.Error(t, err)
				assert.True(t, skip)
				assert.Nil(t, req)
				assert.Contains(t, err.Error(), tc.expectedErrorContains)
			} else {
				require.NoError(t, err)
				assert.False(t, skip)
				assert.Equal(t, tc.expected, req)
			}
		})
	}
}
