package tenant_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/syntroph/crm/pkg/tenant"
)

func TestRoleValid(t *testing.T) {
	t.Parallel()

	for _, r := range []tenant.Role{
		tenant.RoleOwner, tenant.RoleAdmin, tenant.RoleManager, tenant.RoleMember, tenant.RoleGuest,
	} {
		assert.True(t, r.Valid(), string(r))
	}

	assert.False(t, tenant.Role("superuser").Valid())
	assert.False(t, tenant.Role("").Valid())
}

func TestRoleAtLeast(t *testing.T) {
	t.Parallel()

	tests := []struct {
		role  tenant.Role
		other tenant.Role
		want  bool
	}{
		{tenant.RoleOwner, tenant.RoleAdmin, true},
		{tenant.RoleOwner, tenant.RoleOwner, true},
		{tenant.RoleAdmin, tenant.RoleOwner, false},
		{tenant.RoleManager, tenant.RoleMember, true},
		{tenant.RoleMember, tenant.RoleManager, false},
		{tenant.RoleGuest, tenant.RoleGuest, true},
		{tenant.Role("unknown"), tenant.RoleGuest, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.role.AtLeast(tt.other), "%s >= %s", tt.role, tt.other)
	}
}
