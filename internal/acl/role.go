package acl

import "scenerepo/internal/document"

// Role document labels
const (
	labelRole       = "role"
	labelDatabase   = "db"
	labelCollection = "collection"
	labelPrivileges = "privileges"
	labelResource   = "resource"
	labelActions    = "actions"
	labelInherited  = "roles"
)

// RoleRef names an inherited role
type RoleRef struct {
	Role     string `yaml:"role" json:"role"`
	Database string `yaml:"db" json:"db"`
}

// Role groups privileges and inherited roles
type Role struct {
	Name       string
	Database   string
	Privileges []Privilege
	Inherited  []RoleRef
}

// ID is the identifier the backing store files the role under
func (r Role) ID() string {
	return r.Database + "." + r.Name
}

// ProjectAccessRights returns the project permissions the role grants
func (r Role) ProjectAccessRights() []Permission {
	return ProjectAccessRights(r.Privileges)
}

// Document encodes the role
func (r Role) Document() (document.Document, error) {
	privs, err := PrivilegeDocuments(r.Privileges)
	if err != nil {
		return document.Empty(), err
	}
	inherited := make([]document.Document, 0, len(r.Inherited))
	for _, ref := range r.Inherited {
		inherited = append(inherited, document.NewBuilder().
			Append(labelRole, ref.Role).
			Append(labelDatabase, ref.Database).
			Document())
	}

	b := document.NewBuilder().
		Append(labelRole, r.Name).
		Append(labelDatabase, r.Database).
		Append(labelPrivileges, privs).
		Append(labelInherited, inherited)
	doc := b.Document()
	return doc, b.Err()
}

// PrivilegeDocuments encodes privileges in the form used by role commands
func PrivilegeDocuments(privileges []Privilege) ([]document.Document, error) {
	out := make([]document.Document, 0, len(privileges))
	for _, p := range privileges {
		doc, err := privilegeDocument(p)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func privilegeDocument(p Privilege) (document.Document, error) {
	actions := make([]string, len(p.Actions))
	for i, a := range p.Actions {
		actions[i] = string(a)
	}
	resource := document.NewBuilder().
		Append(labelDatabase, p.Database).
		Append(labelCollection, p.Collection).
		Document()
	b := document.NewBuilder().
		AppendDocument(labelResource, resource).
		Append(labelActions, actions)
	doc := b.Document()
	return doc, b.Err()
}

// RoleFromDocument decodes a role. Missing fields read as empty and unknown
// action names are dropped.
func RoleFromDocument(doc document.Document) Role {
	r := Role{
		Name:     doc.String(labelRole, ""),
		Database: doc.String(labelDatabase, ""),
	}
	for _, v := range doc.Array(labelPrivileges) {
		pd := v.Document(document.Empty())
		resource := pd.Document(labelResource)
		p := Privilege{
			Database:   resource.String(labelDatabase, ""),
			Collection: resource.String(labelCollection, ""),
		}
		for _, name := range pd.Strings(labelActions) {
			if a := ParseAction(name); a != ActionUnknown {
				p.Actions = append(p.Actions, a)
			}
		}
		r.Privileges = append(r.Privileges, p)
	}
	for _, v := range doc.Array(labelInherited) {
		ref := v.Document(document.Empty())
		r.Inherited = append(r.Inherited, RoleRef{
			Role:     ref.String(labelRole, ""),
			Database: ref.String(labelDatabase, ""),
		})
	}
	return r
}
