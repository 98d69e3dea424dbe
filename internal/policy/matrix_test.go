package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/terra-clan/office-hub/internal/models"
)

func principal(m *Matrix, role models.Role) *models.Principal {
	return &models.Principal{UserID: 1, Role: role, Permissions: m.Permissions(role)}
}

func TestDefaultMatrix(t *testing.T) {
	m := Default()

	tests := []struct {
		role models.Role
		perm string
		want bool
	}{
		{models.RoleAnonymous, "collections:read", true},
		{models.RoleAnonymous, "desks:read", false},
		{models.RoleAnonymous, "payments:write", false},
		{models.RoleEmployee, "desks:update", true},
		{models.RoleEmployee, "desks:write", false},
		{models.RoleEmployee, "employees:delete", false},
		{models.RoleEmployee, "payments:write", true},
		{models.RoleStaff, "employees:delete", true},
		{models.RoleStaff, "anything:else", true},
	}

	for _, tt := range tests {
		got := principal(m, tt.role).HasPermission(tt.perm)
		if got != tt.want {
			t.Errorf("%s has %s = %v, want %v", tt.role, tt.perm, got, tt.want)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roles.yaml")
	content := `
roles:
  anonymous: []
  employee:
    - "desks:*"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if principal(m, models.RoleAnonymous).HasPermission("collections:read") {
		t.Error("anonymous should lose collections:read")
	}
	if !principal(m, models.RoleEmployee).HasPermission("desks:write") {
		t.Error("desks:* should grant desks:write")
	}
	if principal(m, models.RoleEmployee).HasPermission("payments:write") {
		t.Error("employee permissions should be replaced, not merged")
	}
	if !principal(m, models.RoleStaff).HasPermission("desks:write") {
		t.Error("staff should keep the built-in wildcard")
	}
}

func TestLoadFromFileRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"unknown role":     "roles:\n  admin: [\"*\"]\n",
		"bad permission":   "roles:\n  employee: [\"desks\"]\n",
		"nested action":    "roles:\n  employee: [\"desks:read:all\"]\n",
		"no roles":         "roles: {}\n",
		"not yaml mapping": "- a\n- b\n",
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "roles.yaml")
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestShippedPolicyMatchesDefault(t *testing.T) {
	path := filepath.Join("..", "..", "policies", "roles.yaml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Skip("policies directory not found, skipping")
	}

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	def := Default()
	for _, role := range def.Roles() {
		got, want := m.Permissions(role), def.Permissions(role)
		if len(got) != len(want) {
			t.Errorf("role %s: got %v, want %v", role, got, want)
			continue
		}
		for i := range got {
			if got[i] != want[i] {
				t.Errorf("role %s: got %v, want %v", role, got, want)
				break
			}
		}
	}
}
