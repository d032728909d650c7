// Package acl translates project permissions into the privilege documents
// applied to the backing store when roles are provisioned.
package acl

import (
	"fmt"
	"slices"
	"strings"
)

// AccessRight is the level of access granted on a project
type AccessRight int

const (
	AccessNone AccessRight = iota
	AccessRead
	AccessWrite
	AccessReadWrite
)

func (r AccessRight) String() string {
	switch r {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	case AccessReadWrite:
		return "readwrite"
	default:
		return "none"
	}
}

// ParseAccessRight parses the names produced by String. Case and the
// separators "_" and "-" are ignored.
func ParseAccessRight(s string) (AccessRight, error) {
	norm := strings.NewReplacer("_", "", "-", "").Replace(strings.ToLower(strings.TrimSpace(s)))
	switch norm {
	case "", "none":
		return AccessNone, nil
	case "read":
		return AccessRead, nil
	case "write":
		return AccessWrite, nil
	case "readwrite":
		return AccessReadWrite, nil
	}
	return AccessNone, fmt.Errorf("unknown access right %q", s)
}

// UnmarshalText allows access rights in YAML role files
func (r *AccessRight) UnmarshalText(text []byte) error {
	parsed, err := ParseAccessRight(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// MarshalText renders the access right name
func (r AccessRight) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Action is a database action name as understood by the backing store
type Action string

const (
	ActionUnknown    Action = ""
	ActionInsert     Action = "insert"
	ActionUpdate     Action = "update"
	ActionRemove     Action = "remove"
	ActionFind       Action = "find"
	ActionCreateUser Action = "createUser"
	ActionCreateRole Action = "createRole"
	ActionDropRole   Action = "dropRole"
	ActionGrantRole  Action = "grantRole"
	ActionRevokeRole Action = "revokeRole"
	ActionViewRole   Action = "viewRole"
)

var knownActions = []Action{
	ActionInsert, ActionUpdate, ActionRemove, ActionFind,
	ActionCreateUser, ActionCreateRole, ActionDropRole,
	ActionGrantRole, ActionRevokeRole, ActionViewRole,
}

// ParseAction maps a stored action name to an Action. Unknown names map to
// ActionUnknown.
func ParseAction(s string) Action {
	if a := Action(s); slices.Contains(knownActions, a) {
		return a
	}
	return ActionUnknown
}

// Permission grants an access right on one project
type Permission struct {
	Database string      `yaml:"database" json:"database"`
	Project  string      `yaml:"project" json:"project"`
	Right    AccessRight `yaml:"access" json:"access"`
}

// Privilege allows a set of actions on one collection
type Privilege struct {
	Database   string
	Collection string
	Actions    []Action
}

// Has reports whether the privilege allows a
func (p Privilege) Has(a Action) bool {
	return slices.Contains(p.Actions, a)
}
