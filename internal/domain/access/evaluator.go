// Package access answers the console's access-control questions against
// the current session. Every answer is advisory; the backend is the
// authority.
package access

import (
	"slices"
	"strings"

	"erpadmin/internal/session"
)

// SessionSource is anything that can hand out the current session.
type SessionSource interface {
	Get() (session.Session, bool)
}

// Evaluator is a read-only view over a SessionSource. It never fails: an
// absent session simply denies.
type Evaluator struct {
	source SessionSource
}

func NewEvaluator(source SessionSource) *Evaluator {
	return &Evaluator{source: source}
}

// HasPermission matches p exactly. Super admins hold every permission.
func (e *Evaluator) HasPermission(p string) bool {
	sess, ok := e.source.Get()
	if !ok {
		return false
	}
	return holds(sess.User, p)
}

// HasAnyPermission is false for an empty list.
func (e *Evaluator) HasAnyPermission(ps ...string) bool {
	if len(ps) == 0 {
		return false
	}
	sess, ok := e.source.Get()
	if !ok {
		return false
	}
	return slices.ContainsFunc(ps, func(p string) bool { return holds(sess.User, p) })
}

// HasAllPermissions is true for an empty list, with or without a session.
func (e *Evaluator) HasAllPermissions(ps ...string) bool {
	if len(ps) == 0 {
		return true
	}
	sess, ok := e.source.Get()
	if !ok {
		return false
	}
	for _, p := range ps {
		if !holds(sess.User, p) {
			return false
		}
	}
	return true
}

// HasRole matches by role name. Super admin does not bypass role checks.
func (e *Evaluator) HasRole(name string) bool {
	sess, ok := e.source.Get()
	if !ok {
		return false
	}
	return hasRole(sess.User, name)
}

// HasAnyRole is false for an empty list.
func (e *Evaluator) HasAnyRole(names ...string) bool {
	sess, ok := e.source.Get()
	if !ok {
		return false
	}
	return slices.ContainsFunc(names, func(name string) bool { return hasRole(sess.User, name) })
}

// PermissionsByModule lists held permissions under "module.".
func (e *Evaluator) PermissionsByModule(module string) []string {
	sess, ok := e.source.Get()
	if !ok {
		return []string{}
	}
	prefix := module + "."
	out := []string{}
	for _, p := range sess.User.Permissions {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	return out
}

// RolesByModule returns untagged roles plus roles tagged with module.
func (e *Evaluator) RolesByModule(module string) []session.Role {
	sess, ok := e.source.Get()
	if !ok {
		return []session.Role{}
	}
	out := []session.Role{}
	for _, role := range sess.User.Roles {
		if role.Module == "" || role.Module == module {
			out = append(out, role)
		}
	}
	return out
}

func holds(user session.User, p string) bool {
	if user.IsSuperAdmin {
		return true
	}
	return slices.Contains(user.Permissions, p)
}

func hasRole(user session.User, name string) bool {
	return slices.ContainsFunc(user.Roles, func(r session.Role) bool { return r.Name == name })
}
