package pipeline_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-dispatch/internal/pipeline"
)

func TestEventTransformer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	validPayload, err := json.Marshal(pipeline.Event{
		UserID: "urn:sm:user:hamlet",
		Alert:  "New message",
		Data:   map[string]string{"event": "message"},
	})
	require.NoError(t, err)

	invalidURNPayload, err := json.Marshal(pipeline.Event{
		UserID: "not-a-valid-urn",
		Alert:  "New message",
	})
	require.NoError(t, err)

	testCases := []struct {
		name                  string
		inputMessage          *messagepipeline.Message
		expectError           bool
		expectedErrorContains string
	}{
		{
			name: "Happy Path - Valid Event",
			inputMessage: &messagepipeline.Message{
				MessageData: messagepipeline.MessageData{ID: "msg-1", Payload: validPayload},
			},
			expectError: false,
		},
		{
			name: "Failure - Malformed JSON",
			inputMessage: &messagepipeline.Message{
				MessageData: messagepipeline.MessageData{ID: "msg-2", Payload: []byte("not-json")},
			},
			expectError:           true,
			expectedErrorContains: "failed to unmarshal notification event",
		},
		{
			name: "Failure - Invalid Recipient URN",
			inputMessage: &messagepipeline.Message{
				MessageData: messagepipeline.MessageData{ID: "msg-3", Payload: invalidURNPayload},
			},
			expectError:           true,
			expectedErrorContains: "invalid user id",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			event, skip, err := pipeline.EventTransformer(ctx, tc.inputMessage)

			if tc.expectError {
				require.Error(t, err)
				assert.True(t, skip)
				assert.Contains(t, err.Error(), tc.expectedErrorContains)
			} else {
				assert.NoError(t, err)
				assert.False(t, skip)
				require.NotNil(t, event)
				assert.Equal(t, "urn:sm:user:hamlet", event.UserID)
				assert.Equal(t, "New message", event.Alert)
			}
		})
	}
}
