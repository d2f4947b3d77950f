package auth

import (
	"context"
	"time"
)

// StoreAPI is the persistence the auth service needs. Session ids are
// passed already hashed.
type StoreAPI interface {
	FindActiveUserByEmail(ctx context.Context, email string) (UserRecord, error)
	UserByID(ctx context.Context, userID string) (UserRecord, error)
	CreateSession(ctx context.Context, userID, sessionHash string, expires time.Time) error
	SessionValid(ctx context.Context, userID, sessionHash string) (bool, error)
	ExtendSession(ctx context.Context, userID, sessionHash string, expires time.Time) error
	RevokeSession(ctx context.Context, userID, sessionHash string) error
	UpdateLastLogin(ctx context.Context, userID string) error
	// PurgeSessions deletes sessions that expired or were revoked before
	// cutoff and reports how many went.
	PurgeSessions(ctx context.Context, cutoff time.Time) (int64, error)
}

// SeedAPI provisions the default company, roles and admin accounts.
type SeedAPI interface {
	EnsureCompany(ctx context.Context, name string) (string, error)
	EnsureRole(ctx context.Context, companyID string, role RoleDefinition) (string, error)
	EnsureUser(ctx context.Context, user NewUser) (string, error)
}
