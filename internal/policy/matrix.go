// Package policy loads the role matrix that decides which permissions each
// role holds.
package policy

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/terra-clan/office-hub/internal/models"
)

// Matrix maps roles to permission strings such as "desks:read" or "desks:*"
type Matrix struct {
	mu    sync.RWMutex
	roles map[models.Role][]string
}

// Default returns the built-in role matrix
func Default() *Matrix {
	return &Matrix{roles: map[models.Role][]string{
		models.RoleAnonymous: {"collections:read"},
		models.RoleEmployee: {
			"employees:read", "employees:update",
			"skills:read",
			"desks:read", "desks:update",
			"collections:read", "collections:write",
			"payments:read", "payments:write",
		},
		models.RoleStaff: {"*"},
	}}
}

// Permissions returns the permissions granted to role
func (m *Matrix) Permissions(role models.Role) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	perms := m.roles[role]
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}

// Roles lists the configured roles in name order
func (m *Matrix) Roles() []models.Role {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]models.Role, 0, len(m.roles))
	for r := range m.roles {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// Set replaces the permissions of a role
func (m *Matrix) Set(role models.Role, permissions []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roles[role] = permissions
}

// LoadFromFile overlays the roles defined in a YAML policy file. Roles the
// file does not mention keep their current permissions.
func (m *Matrix) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	if len(pf.Roles) == 0 {
		return fmt.Errorf("policy defines no roles")
	}

	for name, perms := range pf.Roles {
		role := models.Role(name)
		if !role.Valid() {
			return fmt.Errorf("unknown role %q", name)
		}
		for _, p := range perms {
			if err := validatePermission(p); err != nil {
				return fmt.Errorf("role %s: %w", name, err)
			}
		}
	}

	m.mu.Lock()
	for name, perms := range pf.Roles {
		m.roles[models.Role(name)] = perms
	}
	m.mu.Unlock()

	slog.Info("policy loaded", "file", path, "roles", len(pf.Roles))
	return nil
}

// Load returns the default matrix overlaid with path, if given
func Load(path string) (*Matrix, error) {
	m := Default()
	if path == "" {
		return m, nil
	}
	if err := m.LoadFromFile(path); err != nil {
		return nil, err
	}
	return m, nil
}

// validatePermission accepts "*", "resource:*" and "resource:action"
func validatePermission(p string) error {
	if p == "*" {
		return nil
	}
	resource, action, ok := strings.Cut(p, ":")
	if !ok || resource == "" || action == "" || strings.Contains(action, ":") {
		return fmt.Errorf("malformed permission %q", p)
	}
	return nil
}

// --- YAML file structs ---

// policyFile represents the YAML structure of a policy file
type policyFile struct {
	Roles map[string][]string `yaml:"roles"`
}
