// Package loader reads role and account definitions from YAML.
package loader

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"scenerepo/internal/acl"
	"scenerepo/internal/storage"
)

// RolesYAML represents the YAML file structure
type RolesYAML struct {
	Version string     `yaml:"version"`
	Roles   []RoleYAML `yaml:"roles"`
	Users   []UserYAML `yaml:"users,omitempty"`
}

// RoleYAML represents a role in YAML format
type RoleYAML struct {
	Name     string `yaml:"name"`
	Database string `yaml:"database"`
	// Permissions without a database apply to the role's database
	Permissions []acl.Permission `yaml:"permissions,omitempty"`
	Inherits    []acl.RoleRef    `yaml:"inherits,omitempty"`
}

// UserYAML represents an account in YAML format
type UserYAML struct {
	Name     string `yaml:"name"`
	Database string `yaml:"database"`
	// PasswordEnv names the environment variable holding the password
	PasswordEnv string        `yaml:"password_env"`
	Roles       []acl.RoleRef `yaml:"roles,omitempty"`
}

// RoleSpec is a role ready to provision
type RoleSpec struct {
	Name        string
	Database    string
	Permissions []acl.Permission
	Inherited   []acl.RoleRef
}

// UserSpec is an account ready to provision
type UserSpec struct {
	Database string
	User     storage.User
}

// Definitions is the content of a roles file
type Definitions struct {
	Roles []RoleSpec
	Users []UserSpec
}

// LoadRoles loads definitions from a YAML file
func LoadRoles(path string) (*Definitions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return ParseRoles(data)
}

// ParseRoles parses definitions from YAML bytes
func ParseRoles(data []byte) (*Definitions, error) {
	var y RolesYAML
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return convert(&y)
}

func convert(y *RolesYAML) (*Definitions, error) {
	defs := &Definitions{}
	var errs []error
	seen := make(map[string]bool)

	for i, r := range y.Roles {
		if r.Name == "" || r.Database == "" {
			errs = append(errs, fmt.Errorf("role %d: name and database are required", i+1))
			continue
		}
		id := r.Database + "." + r.Name
		if seen[id] {
			errs = append(errs, fmt.Errorf("role %s: defined twice", id))
			continue
		}
		seen[id] = true

		role := RoleSpec{Name: r.Name, Database: r.Database}
		for _, p := range r.Permissions {
			if p.Project == "" || strings.Contains(p.Project, ".") {
				errs = append(errs, fmt.Errorf("role %s: invalid project %q", id, p.Project))
				continue
			}
			if p.Database == "" {
				p.Database = r.Database
			}
			role.Permissions = append(role.Permissions, p)
		}
		for _, ref := range r.Inherits {
			if ref.Database == "" {
				ref.Database = r.Database
			}
			role.Inherited = append(role.Inherited, ref)
		}
		defs.Roles = append(defs.Roles, role)
	}

	for i, u := range y.Users {
		if u.Name == "" || u.Database == "" {
			errs = append(errs, fmt.Errorf("user %d: name and database are required", i+1))
			continue
		}
		password := ""
		if u.PasswordEnv != "" {
			password = os.Getenv(u.PasswordEnv)
		}
		if password == "" {
			errs = append(errs, fmt.Errorf("user %s: no password in $%s", u.Name, u.PasswordEnv))
			continue
		}
		roles := make([]acl.RoleRef, len(u.Roles))
		for j, ref := range u.Roles {
			if ref.Database == "" {
				ref.Database = u.Database
			}
			roles[j] = ref
		}
		defs.Users = append(defs.Users, UserSpec{
			Database: u.Database,
			User:     storage.User{Username: u.Name, Password: password, Roles: roles},
		})
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return defs, nil
}
