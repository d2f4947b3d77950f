package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"erpadmin/internal/platform/storage"
)

// Well-known storage keys. All four are written and removed together.
const (
	KeyToken     = "auth_token"
	KeySessionID = "session_id"
	KeyUser      = "user"
	KeyExpiresAt = "token_expires_at"
)

var allKeys = []string{KeyToken, KeySessionID, KeyUser, KeyExpiresAt}

// Store holds the single current Session. Reads are served from memory;
// writes go to durable storage first and are published to readers only
// after they succeed.
type Store struct {
	kv      storage.KV
	current atomic.Pointer[Session]
	now     func() time.Time
}

func NewStore(kv storage.KV) *Store {
	return &Store{kv: kv, now: time.Now}
}

// Get returns a copy of the current session.
func (s *Store) Get() (Session, bool) {
	cur := s.current.Load()
	if cur == nil {
		return Session{}, false
	}
	return cur.Clone(), true
}

// Token returns the current bearer token, or "" with no session.
func (s *Store) Token() string {
	if cur := s.current.Load(); cur != nil {
		return cur.Token
	}
	return ""
}

// Set replaces the current session. An incomplete session is rejected and
// leaves the store untouched.
func (s *Store) Set(sess Session) error {
	if err := sess.Validate(); err != nil {
		return err
	}
	value := sess.Clone()

	userJSON, err := json.Marshal(value.User)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	var expires []byte
	if !value.ExpiresAt.IsZero() {
		expires, err = value.ExpiresAt.MarshalText()
		if err != nil {
			return fmt.Errorf("encode expiry: %w", err)
		}
	}

	if err := s.kv.Put(map[string][]byte{
		KeyToken:     []byte(value.Token),
		KeySessionID: []byte(value.SessionID),
		KeyUser:      userJSON,
		KeyExpiresAt: expires,
	}); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	s.current.Store(&value)
	return nil
}

// Clear drops the in-memory session and removes every persisted key. The
// in-memory value is dropped even when storage fails.
func (s *Store) Clear() error {
	s.current.Store(nil)
	if err := s.kv.Delete(allKeys...); err != nil {
		return fmt.Errorf("clear persisted session: %w", err)
	}
	return nil
}

// Load rehydrates the session from durable storage. Unreadable, partial or
// expired data is cleared and reported; the store then holds no session.
func (s *Store) Load() (Session, bool, error) {
	raw := make(map[string][]byte, len(allKeys))
	for _, key := range allKeys {
		value, err := s.kv.Get(key)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return s.failClosed(fmt.Errorf("%w: read %s: %v", ErrCorruptSession, key, err))
		}
		raw[key] = value
	}
	if len(raw) == 0 {
		s.current.Store(nil)
		return Session{}, false, nil
	}
	if len(raw) != len(allKeys) {
		return s.failClosed(fmt.Errorf("%w: %d of %d keys present", ErrCorruptSession, len(raw), len(allKeys)))
	}

	sess := Session{
		Token:     string(raw[KeyToken]),
		SessionID: string(raw[KeySessionID]),
	}
	if err := json.Unmarshal(raw[KeyUser], &sess.User); err != nil {
		return s.failClosed(fmt.Errorf("%w: decode user: %v", ErrCorruptSession, err))
	}
	if len(raw[KeyExpiresAt]) > 0 {
		if err := sess.ExpiresAt.UnmarshalText(raw[KeyExpiresAt]); err != nil {
			return s.failClosed(fmt.Errorf("%w: decode expiry: %v", ErrCorruptSession, err))
		}
	}
	if err := sess.Validate(); err != nil {
		return s.failClosed(fmt.Errorf("%w: %v", ErrCorruptSession, err))
	}
	if sess.Expired(s.now()) {
		return s.failClosed(ErrSessionExpired)
	}

	s.current.Store(&sess)
	return sess.Clone(), true, nil
}

func (s *Store) failClosed(cause error) (Session, bool, error) {
	if err := s.Clear(); err != nil {
		cause = errors.Join(cause, err)
	}
	return Session{}, false, cause
}
