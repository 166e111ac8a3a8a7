package user

import "testing"

func TestRoles(t *testing.T) {
	tests := []struct {
		role     Role
		valid    bool
		canWrite bool
	}{
		{RoleAdmin, true, true},
		{RoleStaff, true, true},
		{RoleViewer, true, false},
		{Role("auditor"), false, false},
	}
	for _, tt := range tests {
		if tt.role.Valid() != tt.valid || tt.role.CanWrite() != tt.canWrite {
			t.Errorf("%s: valid=%v canWrite=%v", tt.role, tt.role.Valid(), tt.role.CanWrite())
		}
	}
}
