package loader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scenerepo/internal/acl"
)

const sample = `
version: "1"
roles:
  - name: tower-editors
    database: acme
    permissions:
      - project: tower
        access: readwrite
      - project: bridge
        database: partner
        access: read
    inherits:
      - role: viewer
  - name: auditors
    database: acme
    permissions:
      - project: tower
        access: none
users:
  - name: alice
    database: acme
    password_env: TEST_ALICE_PASSWORD
    roles:
      - role: tower-editors
`

func TestParseRoles(t *testing.T) {
	t.Setenv("TEST_ALICE_PASSWORD", "s3cret")

	defs, err := ParseRoles([]byte(sample))
	if err != nil {
		t.Fatalf("ParseRoles() error: %v", err)
	}
	if len(defs.Roles) != 2 {
		t.Fatalf("expected 2 roles, got %d", len(defs.Roles))
	}

	editors := defs.Roles[0]
	want := []acl.Permission{
		{Database: "acme", Project: "tower", Right: acl.AccessReadWrite},
		{Database: "partner", Project: "bridge", Right: acl.AccessRead},
	}
	if len(editors.Permissions) != len(want) {
		t.Fatalf("permissions = %+v", editors.Permissions)
	}
	for i := range want {
		if editors.Permissions[i] != want[i] {
			t.Errorf("permission %d = %+v, want %+v", i, editors.Permissions[i], want[i])
		}
	}
	if len(editors.Inherited) != 1 || editors.Inherited[0] != (acl.RoleRef{Role: "viewer", Database: "acme"}) {
		t.Errorf("inherited = %+v", editors.Inherited)
	}
	if defs.Roles[1].Permissions[0].Right != acl.AccessNone {
		t.Errorf("auditors access = %s, want none", defs.Roles[1].Permissions[0].Right)
	}

	if len(defs.Users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(defs.Users))
	}
	u := defs.Users[0]
	if u.User.Password != "s3cret" || u.User.Roles[0].Database != "acme" {
		t.Errorf("user = %+v", u)
	}
}

func TestParseRolesErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"missing database", "roles:\n  - name: x\n", "name and database are required"},
		{"duplicate", "roles:\n  - {name: x, database: a}\n  - {name: x, database: a}\n", "defined twice"},
		{"bad access", "roles:\n  - name: x\n    database: a\n    permissions:\n      - {project: p, access: admin}\n", "failed to parse YAML"},
		{"dotted project", "roles:\n  - name: x\n    database: a\n    permissions:\n      - {project: p.scene, access: read}\n", "invalid project"},
		{"no password", "users:\n  - {name: bob, database: a, password_env: TEST_UNSET_PASSWORD}\n", "no password"},
		{"garbage", "roles: [", "failed to parse YAML"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRoles([]byte(tt.data))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadRoles(t *testing.T) {
	if _, err := LoadRoles(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "roles.yaml")
	if err := os.WriteFile(path, []byte("roles:\n  - {name: viewer, database: acme}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	defs, err := LoadRoles(path)
	if err != nil {
		t.Fatalf("LoadRoles() error: %v", err)
	}
	if len(defs.Roles) != 1 || defs.Roles[0].Name != "viewer" {
		t.Errorf("roles = %+v", defs.Roles)
	}
}
