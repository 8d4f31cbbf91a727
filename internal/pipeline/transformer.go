// Package pipeline contains the message processing components that turn
// inbound notification events into dispatch facade calls.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

// Event is one "notify this user" request consumed from the event bus.
type Event struct {
	UserID string            `json:"user_id"`
	Alert  string            `json:"alert,omitempty"`
	Data   map[string]string `json:"data,omitempty"`
}

// User parses the recipient URN.
func (e *Event) User() (urn.URN, error) {
	return urn.Parse(e.UserID)
}

// EventTransformer safely unmarshals and validates a raw message payload
// into an Event. Malformed messages are skipped so the StreamingService
// can handle the Nack/DLQ logic.
func EventTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*Event, bool, error) {
	var event Event
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return nil, true, fmt.Errorf("failed to unmarshal notification event from message %s: %w", msg.ID, err)
	}
	if _, err := event.User(); err != nil {
		return nil, true, fmt.Errorf("notification event %s has invalid user id: %w", msg.ID, err)
	}
	return &event, false, nil
}
