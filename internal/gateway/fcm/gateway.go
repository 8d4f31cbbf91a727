// Package fcm adapts Firebase Cloud Messaging to the JSON gateway
// capability. FCM's batch API has no canonical-id channel, so the
// canonical map is always empty on this transport; stale registrations
// surface through the errors map instead.
package fcm

import (
	"context"
	"fmt"
	"log/slog"

	"firebase.google.com/go/v4/messaging"

	"github.com/tinywideclouds/go-push-dispatch/pkg/push"
)

// MessagingClient defines the subset of the Firebase Messaging API we use.
// This interface allows us to mock the client for unit testing.
type MessagingClient interface {
	SendEachForMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

type Gateway struct {
	client MessagingClient
	logger *slog.Logger
}

// NewGateway accepts the concrete client but stores it as the interface.
// Note: *messaging.Client automatically satisfies this interface.
func NewGateway(client MessagingClient, logger *slog.Logger) *Gateway {
	return &Gateway{
		client: client,
		logger: logger.With("component", "FCMGateway"),
	}
}

func (g *Gateway) Send(ctx context.Context, tokens []string, data map[string]string) (*push.Result, error) {
	msg := &messaging.MulticastMessage{
		Tokens: tokens,
		Data:   data,
	}

	br, err := g.client.SendEachForMulticast(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("fcm transport failed: %w", err)
	}

	res := &push.Result{}
	for idx, resp := range br.Responses {
		if idx >= len(tokens) {
			break
		}
		token := tokens[idx]
		if resp.Success {
			if res.Success == nil {
				res.Success = make(map[string]int)
			}
			res.Success[token] = idx
			continue
		}
		if res.Errors == nil {
			res.Errors = make(map[string][]string)
		}
		reason := classify(resp.Error)
		res.Errors[reason] = append(res.Errors[reason], token)
	}
	return res, nil
}

// classify maps SDK error predicates onto the closed reason set the JSON
// client reconciles on. Only "NotRegistered" triggers a store mutation.
func classify(err error) string {
	switch {
	case messaging.IsRegistrationTokenNotRegistered(err):
		return "NotRegistered"
	case messaging.IsInvalidArgument(err):
		return "InvalidRegistration"
	default:
		return "Failed"
	}
}
