package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"

	"github.com/tinywideclouds/go-push-dispatch/pkg/push"
)

// TokenStore implements push.TokenStore using Google Cloud Firestore.
//
// Layout: users/{userURN}/devices/{sha256(kind:token)}. Token-selector
// operations (FindAllMatching, RemoveAllMatching, Replace) run as
// collection-group queries over the "devices" subcollections, because a
// stale or canonical report names a token without naming its owner.
type TokenStore struct {
	client *firestore.Client
}

func NewTokenStore(client *firestore.Client) *TokenStore {
	return &TokenStore{client: client}
}

// deviceRecord is the internal DB representation. User is duplicated into
// the record so collection-group results carry their owner.
type deviceRecord struct {
	Platform  string    `firestore:"platform"`
	Token     string    `firestore:"token"`
	User      string    `firestore:"user"`
	AppID     string    `firestore:"app_id,omitempty"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

func (s *TokenStore) Register(ctx context.Context, t push.DeviceToken) error {
	updatedAt := t.LastUpdated
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	record := deviceRecord{
		Platform:  string(t.Kind),
		Token:     t.Token,
		User:      t.User.String(),
		AppID:     t.AppID,
		UpdatedAt: updatedAt,
	}
	_, err := s.deviceRef(t.User, docID(t.Token, t.Kind)).Set(ctx, record)
	return err
}

func (s *TokenStore) TokensFor(ctx context.Context, user urn.URN, kind push.Kind) ([]push.DeviceToken, error) {
	iter := s.devicesCollection(user).
		Where("platform", "==", string(kind)).
		OrderBy("updated_at", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	tokens := make([]push.DeviceToken, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore iteration failed: %w", err)
		}
		t, err := recordToToken(doc)
		if err != nil {
			// Safe to skip corrupt rows; they cannot be dispatched to anyway.
			continue
		}
		tokens = append(tokens, t)
	}
	return tokens, nil
}

func (s *TokenStore) Remove(ctx context.Context, user urn.URN, token string, kind push.Kind) error {
	// Deleting an absent document succeeds, which gives us idempotency.
	_, err := s.deviceRef(user, docID(token, kind)).Delete(ctx)
	return err
}

func (s *TokenStore) FindAllMatching(ctx context.Context, token string, kind push.Kind) ([]push.DeviceToken, error) {
	docs, err := s.matchingDocs(ctx, token, kind)
	if err != nil {
		return nil, err
	}
	tokens := make([]push.DeviceToken, 0, len(docs))
	for _, doc := range docs {
		t, err := recordToToken(doc)
		if err != nil {
			continue
		}
		tokens = append(tokens, t)
	}
	return tokens, nil
}

func (s *TokenStore) RemoveAllMatching(ctx context.Context, token string, kind push.Kind) error {
	docs, err := s.matchingDocs(ctx, token, kind)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if _, err := doc.Ref.Delete(ctx); err != nil {
			return fmt.Errorf("firestore delete failed: %w", err)
		}
	}
	return nil
}

func (s *TokenStore) Replace(ctx context.Context, oldToken, newToken string, kind push.Kind) error {
	docs, err := s.matchingDocs(ctx, oldToken, kind)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		var record deviceRecord
		if err := doc.DataTo(&record); err != nil {
			continue
		}
		record.Token = newToken
		record.UpdatedAt = time.Now()
		user, err := urn.Parse(record.User)
		if err != nil {
			continue
		}
		newRef := s.deviceRef(user, docID(newToken, kind))
		oldRef := doc.Ref
		err = s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
			if err := tx.Delete(oldRef); err != nil {
				return err
			}
			return tx.Set(newRef, record)
		})
		if err != nil {
			return fmt.Errorf("firestore replace failed: %w", err)
		}
	}
	return nil
}

// --- Helpers ---

func (s *TokenStore) matchingDocs(ctx context.Context, token string, kind push.Kind) ([]*firestore.DocumentSnapshot, error) {
	iter := s.client.CollectionGroup("devices").
		Where("token", "==", token).
		Where("platform", "==", string(kind)).
		Documents(ctx)
	defer iter.Stop()

	var docs []*firestore.DocumentSnapshot
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore iteration failed: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *TokenStore) deviceRef(user urn.URN, docID string) *firestore.DocumentRef {
	return s.devicesCollection(user).Doc(docID)
}

func (s *TokenStore) devicesCollection(user urn.URN) *firestore.CollectionRef {
	return s.client.Collection("users").Doc(user.String()).Collection("devices")
}

func recordToToken(doc *firestore.DocumentSnapshot) (push.DeviceToken, error) {
	var record deviceRecord
	if err := doc.DataTo(&record); err != nil {
		return push.DeviceToken{}, err
	}
	user, err := urn.Parse(record.User)
	if err != nil {
		return push.DeviceToken{}, err
	}
	return push.DeviceToken{
		Token:       record.Token,
		Kind:        push.Kind(record.Platform),
		User:        user,
		AppID:       record.AppID,
		LastUpdated: record.UpdatedAt,
	}, nil
}

// docID hashes (kind, token) so the same token string can exist for both
// platforms without colliding, and so raw tokens never become document ids.
func docID(token string, kind push.Kind) string {
	sum := sha256.Sum256([]byte(string(kind) + ":" + token))
	return hex.EncodeToString(sum[:])
}
