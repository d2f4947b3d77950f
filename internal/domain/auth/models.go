package auth

import (
	"errors"
	"slices"
	"time"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMFARequired        = errors.New("mfa code required")
	ErrMFAInvalid         = errors.New("invalid mfa code")
	ErrSessionRevoked     = errors.New("session expired or revoked")
	ErrUserInactive       = errors.New("user is not active")
)

const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

type RoleRecord struct {
	ID          string
	Name        string
	DisplayName string
	Module      string
	Permissions []string
}

type UserRecord struct {
	ID           string
	CompanyID    string
	DepartmentID string
	DisplayName  string
	Email        string
	PasswordHash string
	Status       string
	IsSuperAdmin bool
	MFASecretEnc []byte
	Roles        []RoleRecord
}

func (u UserRecord) Active() bool {
	return u.Status == UserStatusActive
}

// NewUser is what the seeder provisions.
type NewUser struct {
	CompanyID    string
	Email        string
	DisplayName  string
	PasswordHash string
	IsSuperAdmin bool
	RoleIDs      []string
}

// UserContext is the authenticated caller attached to a request.
type UserContext struct {
	UserID    string
	CompanyID string
	SessionID string
	Remember  bool
}

type RoleProfile struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Module      string `json:"module,omitempty"`
}

// Profile is the user payload of /login and /me.
type Profile struct {
	ID           string        `json:"id"`
	DisplayName  string        `json:"displayName"`
	Email        string        `json:"email"`
	CompanyID    string        `json:"companyId"`
	DepartmentID string        `json:"departmentId,omitempty"`
	IsActive     bool          `json:"isActive"`
	IsSuperAdmin bool          `json:"isSuperAdmin"`
	Permissions  []string      `json:"permissions"`
	Roles        []RoleProfile `json:"roles"`
}

// ProfileOf flattens the role grants of u into a sorted permission set.
func ProfileOf(u UserRecord) Profile {
	perms := []string{}
	roles := make([]RoleProfile, 0, len(u.Roles))
	for _, role := range u.Roles {
		roles = append(roles, RoleProfile{ID: role.ID, Name: role.Name, DisplayName: role.DisplayName, Module: role.Module})
		perms = append(perms, role.Permissions...)
	}
	slices.Sort(perms)
	perms = slices.Compact(perms)
	return Profile{
		ID:           u.ID,
		DisplayName:  u.DisplayName,
		Email:        u.Email,
		CompanyID:    u.CompanyID,
		DepartmentID: u.DepartmentID,
		IsActive:     u.Active(),
		IsSuperAdmin: u.IsSuperAdmin,
		Permissions:  perms,
		Roles:        roles,
	}
}

type LoginInput struct {
	Email    string
	Password string
	MFACode  string
	Remember bool
}

type LoginResult struct {
	User      Profile
	Token     string
	SessionID string
	ExpiresAt time.Time
}

type TokenResult struct {
	Token     string
	ExpiresAt time.Time
}
