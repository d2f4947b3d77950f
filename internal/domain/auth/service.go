package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"

	cryptoutil "erpadmin/internal/platform/crypto"
)

const (
	DefaultSessionTTL  = 8 * time.Hour
	DefaultRememberTTL = 30 * 24 * time.Hour
)

type Service struct {
	Store       StoreAPI
	Secret      string
	Crypto      *cryptoutil.Service
	SessionTTL  time.Duration
	RememberTTL time.Duration
	Now         func() time.Time
}

func NewService(store StoreAPI, secret string, crypto *cryptoutil.Service) *Service {
	return &Service{
		Store:       store,
		Secret:      secret,
		Crypto:      crypto,
		SessionTTL:  DefaultSessionTTL,
		RememberTTL: DefaultRememberTTL,
		Now:         time.Now,
	}
}

func (s *Service) ttl(remember bool) time.Duration {
	if remember {
		return s.RememberTTL
	}
	return s.SessionTTL
}

// Login checks credentials (and a TOTP code when the account has MFA) and
// opens a new server-side session.
func (s *Service) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" || in.Password == "" {
		return LoginResult{}, ErrInvalidCredentials
	}
	user, err := s.Store.FindActiveUserByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, fmt.Errorf("find user: %w", err)
	}
	if err := CheckPassword(user.PasswordHash, in.Password); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}
	if err := s.checkMFA(user, in.MFACode); err != nil {
		return LoginResult{}, err
	}

	sessionID, err := generateSessionID()
	if err != nil {
		return LoginResult{}, fmt.Errorf("session id: %w", err)
	}
	now := s.Now()
	token, expires, err := GenerateToken(s.Secret, Claims{
		UserID:    user.ID,
		CompanyID: user.CompanyID,
		SessionID: sessionID,
		Remember:  in.Remember,
	}, now, s.ttl(in.Remember))
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}
	if err := s.Store.CreateSession(ctx, user.ID, HashToken(sessionID), expires); err != nil {
		return LoginResult{}, fmt.Errorf("create session: %w", err)
	}
	if err := s.Store.UpdateLastLogin(ctx, user.ID); err != nil {
		slog.Warn("update last_login failed", "userId", user.ID, "err", err)
	}

	return LoginResult{
		User:      ProfileOf(user),
		Token:     token,
		SessionID: sessionID,
		ExpiresAt: expires,
	}, nil
}

func (s *Service) checkMFA(user UserRecord, code string) error {
	if len(user.MFASecretEnc) == 0 {
		return nil
	}
	if code == "" {
		return ErrMFARequired
	}
	secret, err := s.Crypto.OpenString(user.MFASecretEnc)
	if err != nil || secret == "" {
		return ErrMFAInvalid
	}
	if !totp.Validate(code, secret) {
		return ErrMFAInvalid
	}
	return nil
}

// Authenticate confirms the session behind a verified token is still open.
func (s *Service) Authenticate(ctx context.Context, user UserContext) error {
	ok, err := s.Store.SessionValid(ctx, user.UserID, HashToken(user.SessionID))
	if err != nil {
		return fmt.Errorf("session lookup: %w", err)
	}
	if !ok {
		return ErrSessionRevoked
	}
	return nil
}

// SessionValid adapts Authenticate for the auth middleware.
func (s *Service) SessionValid(ctx context.Context, user UserContext) (bool, error) {
	err := s.Authenticate(ctx, user)
	if errors.Is(err, ErrSessionRevoked) {
		return false, nil
	}
	return err == nil, err
}

func (s *Service) Logout(ctx context.Context, user UserContext) error {
	return s.Store.RevokeSession(ctx, user.UserID, HashToken(user.SessionID))
}

// Me returns the caller's current profile. Deactivated accounts are
// rejected so the console drops their session.
func (s *Service) Me(ctx context.Context, user UserContext) (Profile, error) {
	record, err := s.Store.UserByID(ctx, user.UserID)
	if errors.Is(err, ErrUserNotFound) {
		return Profile{}, ErrSessionRevoked
	}
	if err != nil {
		return Profile{}, fmt.Errorf("load user: %w", err)
	}
	if !record.Active() {
		return Profile{}, ErrUserInactive
	}
	return ProfileOf(record), nil
}

// Refresh reissues the token for the same session and extends its expiry.
func (s *Service) Refresh(ctx context.Context, user UserContext) (TokenResult, error) {
	if err := s.Authenticate(ctx, user); err != nil {
		return TokenResult{}, err
	}
	token, expires, err := GenerateToken(s.Secret, Claims{
		UserID:    user.UserID,
		CompanyID: user.CompanyID,
		SessionID: user.SessionID,
		Remember:  user.Remember,
	}, s.Now(), s.ttl(user.Remember))
	if err != nil {
		return TokenResult{}, fmt.Errorf("issue token: %w", err)
	}
	if err := s.Store.ExtendSession(ctx, user.UserID, HashToken(user.SessionID), expires); err != nil {
		return TokenResult{}, err
	}
	return TokenResult{Token: token, ExpiresAt: expires}, nil
}

func generateSessionID() (string, error) {
	buff := make([]byte, 32)
	if _, err := rand.Read(buff); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buff), nil
}

// PurgeSessions drops session rows that ended more than retain ago.
func (s *Service) PurgeSessions(ctx context.Context, retain time.Duration) (int64, error) {
	return s.Store.PurgeSessions(ctx, s.Now().Add(-retain))
}
