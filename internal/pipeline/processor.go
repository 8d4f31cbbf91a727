package pipeline

import (
	"context"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

// Notifier is the slice of the dispatch facade the pipeline needs.
type Notifier interface {
	SendApplePushNotification(ctx context.Context, user urn.URN, alert string)
	SendAndroidPushNotification(ctx context.Context, user urn.URN, data map[string]string)
}

// NewProcessor creates the logic that fans one event out to both
// platforms. Delivery is best effort: the facade never reports per-token
// failures back, so a processed event is always acked.
func NewProcessor(notifier Notifier, logger *slog.Logger) messagepipeline.StreamProcessor[Event] {
	return func(ctx context.Context, original messagepipeline.Message, event *Event) error {
		user, err := event.User()
		if err != nil {
			// The transformer already validated this; a failure here means
			// the message skipped transformation somehow.
			logger.Error("Dropping event with invalid user id", "pubsub_msg_id", original.ID, "err", err)
			return nil
		}

		procLogger := logger.With(
			"recipient_id", user.String(),
			"pubsub_msg_id", original.ID,
		)

		if event.Alert != "" {
			notifier.SendApplePushNotification(ctx, user, event.Alert)
		}
		if len(event.Data) > 0 {
			notifier.SendAndroidPushNotification(ctx, user, event.Data)
		}
		if event.Alert == "" && len(event.Data) == 0 {
			procLogger.Info("Event carries neither alert nor data; dropping.")
		}
		return nil
	}
}
