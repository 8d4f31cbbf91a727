// Package memory provides an in-process TokenStore used by unit tests and
// by local runs without GCP credentials. It mirrors the semantics of the
// Firestore store, including idempotent removals.
package memory

import (
	"context"
	"sync"
	"time"

	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"

	"github.com/tinywideclouds/go-push-dispatch/pkg/push"
)

type Store struct {
	mu      sync.Mutex
	records []push.DeviceToken
	now     func() time.Time
}

func NewStore() *Store {
	return &Store{now: time.Now}
}

func (s *Store) Register(_ context.Context, t push.DeviceToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.LastUpdated.IsZero() {
		t.LastUpdated = s.now()
	}
	for i, rec := range s.records {
		if rec.User.String() == t.User.String() && rec.Token == t.Token && rec.Kind == t.Kind {
			s.records[i] = t
			return nil
		}
	}
	s.records = append(s.records, t)
	return nil
}

func (s *Store) TokensFor(_ context.Context, user urn.URN, kind push.Kind) ([]push.DeviceToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]push.DeviceToken, 0)
	for _, rec := range s.records {
		if rec.User.String() == user.String() && rec.Kind == kind {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *Store) Remove(_ context.Context, user urn.URN, token string, kind push.Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeWhere(func(rec push.DeviceToken) bool {
		return rec.User.String() == user.String() && rec.Token == token && rec.Kind == kind
	})
	return nil
}

func (s *Store) FindAllMatching(_ context.Context, token string, kind push.Kind) ([]push.DeviceToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]push.DeviceToken, 0)
	for _, rec := range s.records {
		if rec.Token == token && rec.Kind == kind {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *Store) RemoveAllMatching(_ context.Context, token string, kind push.Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeWhere(func(rec push.DeviceToken) bool {
		return rec.Token == token && rec.Kind == kind
	})
	return nil
}

func (s *Store) Replace(_ context.Context, oldToken, newToken string, kind push.Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rebound []push.DeviceToken
	s.removeWhere(func(rec push.DeviceToken) bool {
		if rec.Token == oldToken && rec.Kind == kind {
			rec.Token = newToken
			rec.LastUpdated = s.now()
			rebound = append(rebound, rec)
			return true
		}
		return false
	})
	for _, rec := range rebound {
		exists := false
		for i, existing := range s.records {
			if existing.User.String() == rec.User.String() && existing.Token == rec.Token && existing.Kind == rec.Kind {
				s.records[i] = rec
				exists = true
				break
			}
		}
		if !exists {
			s.records = append(s.records, rec)
		}
	}
	return nil
}

// removeWhere must be called with the lock held.
func (s *Store) removeWhere(match func(push.DeviceToken) bool) {
	kept := s.records[:0]
	for _, rec := range s.records {
		if !match(rec) {
			kept = append(kept, rec)
		}
	}
	s.records = kept
}
