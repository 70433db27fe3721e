package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allPermissions = []Permission{
	PermissionReadPromotions,
	PermissionWritePromotions,
	PermissionReadEvidence,
	PermissionWriteEvidence,
	PermissionValidate,
	PermissionReview,
	PermissionOverrideValidation,
	PermissionManageUsers,
	PermissionManageSystem,
}

func TestPermissionMonotonicity(t *testing.T) {
	// Every permission held by a role must be held by every higher rank.
	for i, lower := range rankOrder {
		for _, higher := range rankOrder[i+1:] {
			for _, perm := range allPermissions {
				if HasPermission(lower, perm) {
					assert.True(t, HasPermission(higher, perm),
						"%s holds %s but higher rank %s does not", lower, perm, higher)
				}
			}
		}
	}
}

func TestStrictContainment(t *testing.T) {
	// Each rank adds at least one permission over the rank below.
	for i := 1; i < len(rankOrder); i++ {
		lower, higher := rankOrder[i-1], rankOrder[i]
		assert.Greater(t, len(RolePermissions(higher)), len(RolePermissions(lower)),
			"%s must strictly contain %s", higher, lower)
	}
}

func TestRoleDefaults(t *testing.T) {
	tests := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleUser, PermissionReadPromotions, true},
		{RoleUser, PermissionReadEvidence, false},
		{RoleReviewer, PermissionReadEvidence, true},
		{RoleReviewer, PermissionReview, true},
		{RoleReviewer, PermissionWriteEvidence, false},
		{RoleReviewer, PermissionOverrideValidation, false},
		{RoleAdmin, PermissionOverrideValidation, true},
		{RoleAdmin, PermissionWritePromotions, true},
		{RoleAdmin, PermissionManageSystem, false},
		{RoleSystem, PermissionOverrideValidation, true},
		{RoleSystem, PermissionManageSystem, true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, HasPermission(tt.role, tt.perm),
			"HasPermission(%s, %s)", tt.role, tt.perm)
	}
}

func TestOnlyAdminAndSystemOverride(t *testing.T) {
	for _, role := range rankOrder {
		want := role == RoleAdmin || role == RoleSystem
		assert.Equal(t, want, HasPermission(role, PermissionOverrideValidation), "role %s", role)
	}
}

func TestExplicitPermissionsAreAdditive(t *testing.T) {
	p := Principal{
		ID:       "u-1",
		Role:     RoleUser,
		Explicit: []Permission{PermissionValidate},
	}

	// Union: explicit grant adds to role defaults.
	assert.True(t, p.Has(PermissionValidate))
	// Role defaults survive; explicit grants can never narrow them.
	assert.True(t, p.Has(PermissionReadPromotions))
	assert.False(t, p.Has(PermissionOverrideValidation))
}

func TestRequire(t *testing.T) {
	admin := Principal{ID: "a-1", Role: RoleAdmin}
	require.NoError(t, Require(admin, PermissionOverrideValidation))

	reviewer := Principal{ID: "r-1", Role: RoleReviewer}
	err := Require(reviewer, PermissionOverrideValidation)
	require.ErrorIs(t, err, ErrPermissionDenied)
}

func TestRank(t *testing.T) {
	assert.Less(t, RoleUser.Rank(), RoleReviewer.Rank())
	assert.Less(t, RoleReviewer.Rank(), RoleAdmin.Rank())
	assert.Less(t, RoleAdmin.Rank(), RoleSystem.Rank())
	assert.Equal(t, -1, Role("ghost").Rank())
	assert.False(t, Role("ghost").Valid())
}
