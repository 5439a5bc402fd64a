package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Keys of the per-session flags
const (
	KeyEventRedirectURL = "event_signup_redirect"
	KeyInviteID         = "pending_invite_id"
	KeyWelcomeEmailSent = "welcome_email_sent"
)

var ErrEmptySessionID = errors.New("session id is required")

// State is the decoded set of flags for one session
type State struct {
	EventRedirectURL string `json:"event_redirect_url,omitempty"`
	InviteID         string `json:"invite_id,omitempty"`
	WelcomeEmailSent bool   `json:"welcome_email_sent"`
}

// Store holds short-lived per-session flags that sequence onboarding
type Store interface {
	Get(ctx context.Context, sessionID string) (*State, error)
	Set(ctx context.Context, sessionID, key, value string) error
	Delete(ctx context.Context, sessionID, key string) error
}

func stateFromFields(fields map[string]string) *State {
	return &State{
		EventRedirectURL: fields[KeyEventRedirectURL],
		InviteID:         fields[KeyInviteID],
		WelcomeEmailSent: fields[KeyWelcomeEmailSent] == "true",
	}
}

type memoryEntry struct {
	fields    map[string]string
	expiresAt time.Time
}

// MemoryStore keeps session flags in process memory
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memoryEntry
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryStore creates an in-memory store; ttl <= 0 disables expiry
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*memoryEntry),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get returns the flags for a session, empty when unknown or expired
func (s *MemoryStore) Get(ctx context.Context, sessionID string) (*State, error) {
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.sessions[sessionID]
	if !ok || s.expired(entry) {
		return &State{}, nil
	}
	return stateFromFields(entry.fields), nil
}

// Set stores one flag and refreshes the session expiry
func (s *MemoryStore) Set(ctx context.Context, sessionID, key, value string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[sessionID]
	if !ok || s.expired(entry) {
		entry = &memoryEntry{fields: make(map[string]string)}
		s.sessions[sessionID] = entry
	}
	entry.fields[key] = value
	if s.ttl > 0 {
		entry.expiresAt = s.now().Add(s.ttl)
	}
	return nil
}

// Delete removes one flag
func (s *MemoryStore) Delete(ctx context.Context, sessionID, key string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.sessions[sessionID]; ok {
		delete(entry.fields, key)
	}
	return nil
}

func (s *MemoryStore) expired(e *memoryEntry) bool {
	return !e.expiresAt.IsZero() && s.now().After(e.expiresAt)
}
