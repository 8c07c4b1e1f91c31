package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentity_HasCapability(t *testing.T) {
	admin := Identity{UserID: 1, Role: RoleAdmin}
	operator := Identity{UserID: 2, Role: RoleOperator}
	user := Identity{UserID: 3, Role: RoleUser}

	assert.True(t, admin.HasCapability(CapManageStations))
	assert.True(t, admin.HasCapability(CapAssignRoles))

	assert.True(t, operator.HasCapability(CapManageStations))
	assert.False(t, operator.HasCapability(CapAssignRoles))
	assert.False(t, operator.HasCapability(CapViewActivityLog))

	assert.False(t, user.HasCapability(CapManageStations))
	assert.False(t, user.HasCapability(CapManageBookings))
}

func TestIdentity_IsAdminLike(t *testing.T) {
	assert.True(t, Identity{Role: RoleAdmin}.IsAdminLike())
	assert.True(t, Identity{Role: RoleOperator}.IsAdminLike())
	assert.False(t, Identity{Role: RoleUser}.IsAdminLike())
}
