package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
	}{
		{"viewer", RoleViewer},
		{"editor", RoleEditor},
		{"admin", RoleAdmin},
		{"", RoleNone},
		{"owner", RoleNone}, // org role, not a project role
		{"ADMIN", RoleNone}, // stored roles are lowercase
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseRole(tt.in), tt.in)
	}
}

func TestRoleOrdering(t *testing.T) {
	assert.True(t, RoleAdmin.AtLeast(RoleEditor))
	assert.True(t, RoleAdmin.AtLeast(RoleAdmin))
	assert.True(t, RoleEditor.AtLeast(RoleViewer))
	assert.False(t, RoleViewer.AtLeast(RoleEditor))
	assert.False(t, RoleNone.AtLeast(RoleViewer))
}

func TestRoleString(t *testing.T) {
	assert.Equal(t, "editor", RoleEditor.String())
	assert.Equal(t, "", RoleNone.String())
}
