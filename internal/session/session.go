// Package session holds the signed-in console user and drives the login,
// logout, initialize and refresh lifecycle against the auth backend.
//
// Everything decided from a Session is advisory: it gates what the console
// shows, while the backend enforces authorization on every request.
package session

import (
	"errors"
	"slices"
	"strings"
	"time"
)

// Role is a named grant attached to the user. Module is empty for roles
// that apply across every sub-system.
type Role struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Module      string `json:"module,omitempty"`
}

// User is the profile returned by the backend for the signed-in account.
type User struct {
	ID           string   `json:"id"`
	DisplayName  string   `json:"displayName"`
	Email        string   `json:"email"`
	CompanyID    string   `json:"companyId"`
	DepartmentID string   `json:"departmentId,omitempty"`
	IsActive     bool     `json:"isActive"`
	IsSuperAdmin bool     `json:"isSuperAdmin"`
	Permissions  []string `json:"permissions"`
	Roles        []Role   `json:"roles"`
}

// Session is the complete authenticated state. A Session is only ever
// observable as a whole; see Store.
type Session struct {
	User      User
	Token     string
	SessionID string
	ExpiresAt time.Time
}

var errIncomplete = errors.New("incomplete session")

// Validate reports whether every field a reader relies on is populated.
func (s Session) Validate() error {
	switch {
	case strings.TrimSpace(s.Token) == "":
		return errors.Join(errIncomplete, errors.New("token is empty"))
	case strings.TrimSpace(s.SessionID) == "":
		return errors.Join(errIncomplete, errors.New("session id is empty"))
	case strings.TrimSpace(s.User.ID) == "":
		return errors.Join(errIncomplete, errors.New("user id is empty"))
	case s.User.Permissions == nil:
		return errors.Join(errIncomplete, errors.New("permissions list is missing"))
	}
	return nil
}

// Expired reports whether the token has passed its expiry. A zero ExpiresAt
// never expires.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Clone returns a deep copy so the caller can't mutate a stored value.
func (s Session) Clone() Session {
	s.User = s.User.Clone()
	return s
}

func (u User) Clone() User {
	u.Permissions = slices.Clone(u.Permissions)
	u.Roles = slices.Clone(u.Roles)
	return u
}
