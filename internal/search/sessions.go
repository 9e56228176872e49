package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrSessionExpired = errors.New("search session expired or unknown")

// Session is the write-once snapshot of one search's ranked results. It
// exists so a candidate can be revisited later by session id + index
// without re-querying; redis expiry garbage-collects it.
type Session struct {
	SessionID string      `json:"session_id"`
	UserID    string      `json:"user_id"`
	Query     string      `json:"query"`
	Geo       Geo         `json:"geo"`
	Products  []Candidate `json:"products"`
	CreatedAt time.Time   `json:"created_at"`
}

type SessionStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewSessionStore(rdb *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{rdb: rdb, ttl: ttl}
}

func sessionKey(id string) string { return "session:" + id }

// Create snapshots the results under a fresh opaque id. There is no update
// path; sessions are write-once, read-many, then gone.
func (s *SessionStore) Create(ctx context.Context, userID, query string, geo Geo, products []Candidate) (*Session, error) {
	sess := &Session{
		SessionID: "ss_" + uuid.New().String()[:13],
		UserID:    userID,
		Query:     query,
		Geo:       geo,
		Products:  products,
		CreatedAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return nil, err
	}
	if err := s.rdb.Set(ctx, sessionKey(sess.SessionID), raw, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("store search session: %w", err)
	}
	return sess, nil
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	raw, err := s.rdb.Get(ctx, sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionExpired
		}
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode search session: %w", err)
	}
	return &sess, nil
}

// Candidate resolves one result by position within a session.
func (s *SessionStore) Candidate(ctx context.Context, sessionID string, index int) (*Candidate, *Session, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if index < 0 || index >= len(sess.Products) {
		return nil, nil, fmt.Errorf("candidate index %d out of range (session has %d)", index, len(sess.Products))
	}
	return &sess.Products[index], sess, nil
}
