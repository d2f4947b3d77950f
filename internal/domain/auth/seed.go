package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type SeedInput struct {
	CompanyName        string
	AdminEmail         string
	AdminPassword      string
	SuperAdminEmail    string
	SuperAdminPassword string
}

// Seed provisions the default company, every DefaultRoles entry and the
// configured admin accounts. It is safe to run repeatedly.
func Seed(ctx context.Context, store SeedAPI, in SeedInput) error {
	if strings.TrimSpace(in.CompanyName) == "" {
		return errors.New("seed company name is required")
	}
	companyID, err := store.EnsureCompany(ctx, in.CompanyName)
	if err != nil {
		return fmt.Errorf("ensure company: %w", err)
	}

	roleIDs := map[string]string{}
	for _, role := range DefaultRoles {
		id, err := store.EnsureRole(ctx, companyID, role)
		if err != nil {
			return fmt.Errorf("ensure role %s: %w", role.Name, err)
		}
		roleIDs[role.Name] = id
	}

	if err := ensureAccount(ctx, store, NewUser{
		CompanyID:   companyID,
		Email:       in.AdminEmail,
		DisplayName: "Administrator",
		RoleIDs:     []string{roleIDs[RoleAdmin], roleIDs[RoleHRManager]},
	}, in.AdminPassword); err != nil {
		return fmt.Errorf("ensure admin: %w", err)
	}
	if err := ensureAccount(ctx, store, NewUser{
		CompanyID:    companyID,
		Email:        in.SuperAdminEmail,
		DisplayName:  "Super administrator",
		IsSuperAdmin: true,
	}, in.SuperAdminPassword); err != nil {
		return fmt.Errorf("ensure super admin: %w", err)
	}
	return nil
}

func ensureAccount(ctx context.Context, store SeedAPI, user NewUser, password string) error {
	if strings.TrimSpace(user.Email) == "" {
		return nil
	}
	if password == "" {
		return fmt.Errorf("password for %s is empty", user.Email)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	_, err = store.EnsureUser(ctx, user)
	return err
}
