// Package session holds the access/refresh-token lifecycle: a durable token
// store and a single-flight refresh coordinator.
package session

import (
	"errors"
	"sync"

	"github.com/mdmeraj-dev/skillnestx-go/store"
)

const (
	sessionKind = "session"
	sessionID   = "current"
)

// Tokens is an access/refresh token pair.
type Tokens struct {
	Access  string `json:"accessToken"`
	Refresh string `json:"refreshToken"`
}

type sessionRecord struct {
	Tokens
	IsLoggingOut bool `json:"isLoggingOut"`
}

// TokenStore is the sole owner of the persisted session record. All token
// reads and writes funnel through it so that concurrent flows never interleave
// partial writes. A corrupt stored record reads as an empty session.
type TokenStore struct {
	mu    sync.Mutex
	store store.Store
}

// NewTokenStore returns a TokenStore persisting to the given store.
func NewTokenStore(s store.Store) *TokenStore {
	return &TokenStore{store: s}
}

func (t *TokenStore) load() sessionRecord {
	var rec sessionRecord
	if err := store.GetJSON(t.store, sessionKind, sessionID, &rec); err != nil {
		return sessionRecord{}
	}
	return rec
}

func (t *TokenStore) save(rec sessionRecord) error {
	return store.PutJSON(t.store, sessionKind, sessionID, rec)
}

// Tokens returns the current token pair.
func (t *TokenStore) Tokens() Tokens {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.load().Tokens
}

// SetTokens replaces the token pair, preserving the logout flag.
func (t *TokenStore) SetTokens(tk Tokens) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec := t.load()
	rec.Tokens = tk
	return t.save(rec)
}

// LoggingOut reports whether a logout is in progress.
func (t *TokenStore) LoggingOut() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.load().IsLoggingOut
}

// SetLoggingOut sets or clears the logout-in-progress flag.
func (t *TokenStore) SetLoggingOut(v bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec := t.load()
	rec.IsLoggingOut = v
	return t.save(rec)
}

// Clear removes the session record entirely.
func (t *TokenStore) Clear() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	err := t.store.Delete(sessionKind, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}
