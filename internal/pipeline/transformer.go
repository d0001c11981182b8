// Package pipeline turns broadcast requests delivered over Pub/Sub into
// promotion notifications.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
)

// BroadcastRequest asks for one promotion of one florist to be announced.
type BroadcastRequest struct {
	FloristID   string `json:"florist_id"`
	PromotionID string `json:"promotion_id"`
}

// BroadcastRequestTransformer is a dataflow Transformer that unmarshals and
// validates a raw payload into a BroadcastRequest. Bad payloads are skipped
// with an error so the StreamingService can Nack them to the dead letter topic.
func BroadcastRequestTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*BroadcastRequest, bool, error) {
	var req BroadcastRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return nil, true, fmt.Errorf("failed to unmarshal broadcast request from message %s: %w", msg.ID, err)
	}

	req.FloristID = strings.TrimSpace(req.FloristID)
	req.PromotionID = strings.TrimSpace(req.PromotionID)
	if req.FloristID == "" || req.PromotionID == "" {
		return nil, true, fmt.Errorf("broadcast request in message %s is missing florist_id or promotion_id", msg.ID)
	}

	return &req, false, nil
}
