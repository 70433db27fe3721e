// Package authz is the ranked role and permission model gating every manual
// read and override entry point into activation state. It is a pure
// predicate: authentication happens elsewhere.
package authz

import (
	"errors"
	"sort"
)

// Role is a closed, ranked enumeration. Each rank's permission set strictly
// contains the rank below's.
type Role string

const (
	RoleUser     Role = "user"
	RoleReviewer Role = "reviewer"
	RoleAdmin    Role = "admin"
	RoleSystem   Role = "system"
)

// Permission is a closed enumeration depended on elsewhere in the system.
type Permission string

const (
	PermissionReadPromotions     Permission = "promotions:read"
	PermissionWritePromotions    Permission = "promotions:write"
	PermissionReadEvidence       Permission = "evidence:read"
	PermissionWriteEvidence      Permission = "evidence:write"
	PermissionValidate           Permission = "validate"
	PermissionReview             Permission = "review"
	PermissionOverrideValidation Permission = "validate:override"
	PermissionManageUsers        Permission = "users:manage"
	PermissionManageSystem       Permission = "system:manage"
)

// ErrPermissionDenied is returned by Require when a principal lacks the
// needed permission. Mutating callers fail closed on it, performing no
// partial write. It is deliberately distinct from not-found; see DESIGN.md.
var ErrPermissionDenied = errors.New("permission denied")

// rankOrder lists roles lowest rank first; it is the single source of truth
// for both ranking and permission accumulation.
var rankOrder = []Role{RoleUser, RoleReviewer, RoleAdmin, RoleSystem}

// roleGrants holds only the permissions each rank adds on top of the rank
// below. Full sets are accumulated in init, which makes monotonicity hold by
// construction rather than by discipline.
var roleGrants = map[Role][]Permission{
	RoleUser: {
		PermissionReadPromotions,
	},
	RoleReviewer: {
		PermissionReadEvidence,
		PermissionReview,
	},
	RoleAdmin: {
		PermissionWritePromotions,
		PermissionWriteEvidence,
		PermissionValidate,
		PermissionOverrideValidation,
		PermissionManageUsers,
	},
	RoleSystem: {
		PermissionManageSystem,
	},
}

var rolePermissions = buildRolePermissions()

func buildRolePermissions() map[Role]map[Permission]bool {
	built := make(map[Role]map[Permission]bool, len(rankOrder))
	accumulated := make(map[Permission]bool)
	for _, role := range rankOrder {
		for _, perm := range roleGrants[role] {
			accumulated[perm] = true
		}
		set := make(map[Permission]bool, len(accumulated))
		for perm := range accumulated {
			set[perm] = true
		}
		built[role] = set
	}
	return built
}

// Rank returns the position of the role in the hierarchy, lowest first.
// Unknown roles rank below User.
func (r Role) Rank() int {
	for i, role := range rankOrder {
		if role == r {
			return i
		}
	}
	return -1
}

// Valid reports whether r is one of the closed set of roles.
func (r Role) Valid() bool {
	return r.Rank() >= 0
}

// HasPermission reports whether the role's default set includes perm.
func HasPermission(role Role, perm Permission) bool {
	return rolePermissions[role][perm]
}

// RolePermissions returns the full, sorted default permission set of a role.
func RolePermissions(role Role) []Permission {
	set := rolePermissions[role]
	perms := make([]Permission, 0, len(set))
	for perm := range set {
		perms = append(perms, perm)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i] < perms[j] })
	return perms
}

// Principal is an authenticated caller: a role plus optional explicit
// grants. Explicit permissions are additive; they union with the role's
// defaults and can never narrow them.
type Principal struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Role     Role         `json:"role"`
	Explicit []Permission `json:"explicitPermissions,omitempty"`
}

// Has reports whether the principal holds perm through its role or an
// explicit grant.
func (p Principal) Has(perm Permission) bool {
	if HasPermission(p.Role, perm) {
		return true
	}
	for _, granted := range p.Explicit {
		if granted == perm {
			return true
		}
	}
	return false
}

// Require returns ErrPermissionDenied unless the principal holds perm.
func Require(p Principal, perm Permission) error {
	if !p.Has(perm) {
		return ErrPermissionDenied
	}
	return nil
}
