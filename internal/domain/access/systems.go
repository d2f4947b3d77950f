package access

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"erpadmin/internal/domain/perm"
)

// SystemDescriptor is one sub-system of the platform the console can
// navigate to.
type SystemDescriptor struct {
	Key                 string   `json:"systemKey"`
	DisplayName         string   `json:"displayName"`
	URLPrefix           string   `json:"urlPrefix"`
	RequiredPermissions []string `json:"requiredPermissions"`
	SortOrder           int      `json:"sortOrder"`
}

// Registry serves the catalog from the backend.
type Registry interface {
	Systems(ctx context.Context, token string) ([]SystemDescriptor, error)
}

// DefaultCatalog is the built-in catalog used until (or unless) the
// registry answers.
func DefaultCatalog() []SystemDescriptor {
	return []SystemDescriptor{
		{
			Key:         "core",
			DisplayName: "Core administration",
			URLPrefix:   "/core",
			RequiredPermissions: []string{
				perm.UsersView,
				perm.RolesView,
				perm.DepartmentsView,
				perm.PositionsView,
			},
			SortOrder: 10,
		},
		{
			Key:                 "hr",
			DisplayName:         "Human resources",
			URLPrefix:           "/hr",
			RequiredPermissions: []string{perm.EmployeesView},
			SortOrder:           20,
		},
		{
			Key:                 "leave",
			DisplayName:         "Leave",
			URLPrefix:           "/leave",
			RequiredPermissions: []string{perm.LeaveRead, perm.LeaveApprove},
			SortOrder:           30,
		},
		{
			Key:                 "payroll",
			DisplayName:         "Payroll",
			URLPrefix:           "/payroll",
			RequiredPermissions: []string{perm.PayrollRead},
			SortOrder:           40,
		},
		{
			Key:                 "reports",
			DisplayName:         "Reports",
			URLPrefix:           "/reports",
			RequiredPermissions: []string{perm.ReportsRead},
			SortOrder:           50,
		},
		{
			Key:                 "profile",
			DisplayName:         "My profile",
			URLPrefix:           "/me",
			RequiredPermissions: []string{},
			SortOrder:           90,
		},
		{
			Key:                 "admin",
			DisplayName:         "System settings",
			URLPrefix:           "/admin",
			RequiredPermissions: []string{perm.SystemAdmin},
			SortOrder:           100,
		},
	}
}

// Resolver filters the catalog down to what the current session unlocks.
type Resolver struct {
	evaluator *Evaluator
	source    SessionSource

	mu      sync.RWMutex
	catalog []SystemDescriptor
}

func NewResolver(evaluator *Evaluator, source SessionSource, catalog []SystemDescriptor) *Resolver {
	r := &Resolver{evaluator: evaluator, source: source}
	r.SetCatalog(catalog)
	return r
}

// SetCatalog replaces the catalog with a copy of catalog.
func (r *Resolver) SetCatalog(catalog []SystemDescriptor) {
	copied := make([]SystemDescriptor, len(catalog))
	for i, d := range catalog {
		d.RequiredPermissions = slices.Clone(d.RequiredPermissions)
		copied[i] = d
	}
	r.mu.Lock()
	r.catalog = copied
	r.mu.Unlock()
}

// Sync pulls the catalog from the registry. On error the current catalog
// stays in place.
func (r *Resolver) Sync(ctx context.Context, registry Registry) error {
	sess, ok := r.source.Get()
	if !ok {
		return nil
	}
	catalog, err := registry.Systems(ctx, sess.Token)
	if err != nil {
		return err
	}
	r.SetCatalog(catalog)
	return nil
}

// AvailableSystems returns the unlocked systems by ascending SortOrder.
// A descriptor with no required permissions is open to any session; the
// rest need any one of theirs.
func (r *Resolver) AvailableSystems() []SystemDescriptor {
	out := []SystemDescriptor{}
	if _, ok := r.source.Get(); !ok {
		return out
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.catalog {
		if len(d.RequiredPermissions) == 0 || r.evaluator.HasAnyPermission(d.RequiredPermissions...) {
			d.RequiredPermissions = slices.Clone(d.RequiredPermissions)
			out = append(out, d)
		}
	}
	slices.SortStableFunc(out, func(a, b SystemDescriptor) int {
		return cmp.Compare(a.SortOrder, b.SortOrder)
	})
	return out
}
