package acl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scenerepo/internal/document"
)

func privilegeFor(t *testing.T, privs []Privilege, collection string) Privilege {
	t.Helper()
	for _, p := range privs {
		if p.Collection == collection {
			return p
		}
	}
	t.Fatalf("no privilege on %s", collection)
	return Privilege{}
}

func TestTranslate(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, Translate(nil))
	})

	t.Run("read maps every suffix to find", func(t *testing.T) {
		privs := Translate([]Permission{{Database: "test", Project: "project", Right: AccessRead}})
		require.Len(t, privs, len(Suffixes()))
		for _, p := range privs {
			assert.Equal(t, "test", p.Database)
			assert.Equal(t, []Action{ActionFind}, p.Actions, p.Collection)
		}
	})

	t.Run("write per resource", func(t *testing.T) {
		privs := Translate([]Permission{{Database: "test", Project: "project", Right: AccessWrite}})
		require.Len(t, privs, len(Suffixes()))

		tests := []struct {
			suffix string
			want   []Action
		}{
			{SuffixScene, []Action{ActionInsert}},
			{SuffixHistory, []Action{ActionInsert}},
			{SuffixStashRepo, []Action{ActionInsert}},
			{SuffixStashSrc, []Action{ActionInsert}},
			{SuffixIssues, []Action{ActionInsert, ActionUpdate}},
			{SuffixWayfinder, []Action{ActionInsert, ActionUpdate, ActionRemove}},
		}
		for _, tt := range tests {
			p := privilegeFor(t, privs, Collection("project", tt.suffix))
			assert.ElementsMatch(t, tt.want, p.Actions, tt.suffix)
		}
	})

	t.Run("read write on scene", func(t *testing.T) {
		privs := Translate([]Permission{{Database: "db", Project: "alpha", Right: AccessReadWrite}})
		p := privilegeFor(t, privs, "alpha.scene")
		assert.ElementsMatch(t, []Action{ActionFind, ActionInsert}, p.Actions)
		for _, p := range privs {
			assert.NotEqual(t, "alpha.unmapped", p.Collection)
		}
	})

	t.Run("none yields nothing", func(t *testing.T) {
		assert.Empty(t, Translate([]Permission{{Database: "db", Project: "alpha", Right: AccessNone}}))
	})

	t.Run("same project merges", func(t *testing.T) {
		privs := Translate([]Permission{
			{Database: "db", Project: "alpha", Right: AccessRead},
			{Database: "db", Project: "alpha", Right: AccessWrite},
		})
		require.Len(t, privs, len(Suffixes()))
		p := privilegeFor(t, privs, "alpha.history")
		assert.ElementsMatch(t, []Action{ActionFind, ActionInsert}, p.Actions)
	})
}

func TestUpdateActionsIsIdempotent(t *testing.T) {
	var actions []Action

	actions = UpdateActions(SuffixScene, AccessRead, actions)
	assert.Equal(t, []Action{ActionFind}, actions)

	actions = UpdateActions(SuffixScene, AccessRead, actions)
	assert.Equal(t, []Action{ActionFind}, actions)

	actions = UpdateActions(SuffixScene, AccessWrite, actions)
	assert.ElementsMatch(t, []Action{ActionFind, ActionInsert}, actions)

	actions = UpdateActions(SuffixScene, AccessRead, actions)
	assert.Len(t, actions, 2)

	assert.Empty(t, UpdateActions("unknown", AccessReadWrite, nil))
}

func TestParseAction(t *testing.T) {
	tests := map[string]Action{
		"insert":     ActionInsert,
		"update":     ActionUpdate,
		"remove":     ActionRemove,
		"find":       ActionFind,
		"createUser": ActionCreateUser,
		"createRole": ActionCreateRole,
		"dropRole":   ActionDropRole,
		"grantRole":  ActionGrantRole,
		"revokeRole": ActionRevokeRole,
		"viewRole":   ActionViewRole,
		"":           ActionUnknown,
		"dropAll":    ActionUnknown,
	}
	for name, want := range tests {
		assert.Equal(t, want, ParseAction(name), name)
	}
}

func TestParseAccessRight(t *testing.T) {
	tests := []struct {
		in   string
		want AccessRight
	}{
		{"read", AccessRead},
		{"WRITE", AccessWrite},
		{"read_write", AccessReadWrite},
		{"ReadWrite", AccessReadWrite},
		{"none", AccessNone},
	}
	for _, tt := range tests {
		got, err := ParseAccessRight(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	_, err := ParseAccessRight("admin")
	assert.Error(t, err)
}

func exampleRole() Role {
	return Role{
		Name:     "testRole",
		Database: "admin",
		Privileges: []Privilege{
			{Database: "testdb", Collection: "testCol", Actions: []Action{ActionFind, ActionUpdate}},
			{Database: "testdb", Collection: "alpha.scene", Actions: []Action{ActionFind, ActionInsert}},
			{Database: "testdb", Collection: "beta.scene", Actions: []Action{ActionFind}},
		},
		Inherited: []RoleRef{{Role: "readWrite", Database: "canarywharf"}},
	}
}

func TestRoleDocument(t *testing.T) {
	role := exampleRole()
	doc, err := role.Document()
	require.NoError(t, err)

	assert.Equal(t, "testRole", doc.String("role", ""))
	assert.Equal(t, "admin", doc.String("db", ""))

	decoded := RoleFromDocument(doc)
	assert.Equal(t, role, decoded)
	assert.Equal(t, "admin.testRole", decoded.ID())

	empty := RoleFromDocument(document.Empty())
	assert.Empty(t, empty.Name)
	assert.Empty(t, empty.Database)
	assert.Empty(t, empty.Privileges)
	assert.Empty(t, empty.Inherited)
}

func TestRoleFromDocumentDropsUnknownActions(t *testing.T) {
	resource := document.NewBuilder().Append("db", "d").Append("collection", "c").Document()
	priv := document.NewBuilder().
		AppendDocument("resource", resource).
		Append("actions", []string{"find", "shutdown"}).
		Document()
	doc := document.NewBuilder().
		Append("role", "r").
		Append("db", "d").
		Append("privileges", []document.Document{priv}).
		Document()

	role := RoleFromDocument(doc)
	require.Len(t, role.Privileges, 1)
	assert.Equal(t, []Action{ActionFind}, role.Privileges[0].Actions)
}

func TestProjectAccessRights(t *testing.T) {
	perms := exampleRole().ProjectAccessRights()
	assert.Equal(t, []Permission{
		{Database: "testdb", Project: "alpha", Right: AccessReadWrite},
		{Database: "testdb", Project: "beta", Right: AccessRead},
	}, perms)

	round := ProjectAccessRights(Translate(perms))
	assert.Equal(t, perms, round)
}
