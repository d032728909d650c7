package acl

import (
	"slices"
	"strings"
)

// Project collection suffixes
const (
	SuffixScene     = "scene"
	SuffixHistory   = "history"
	SuffixStashRepo = "stash.3drepo"
	SuffixStashSrc  = "stash.src"
	SuffixIssues    = "issues"
	SuffixWayfinder = "wayfinder"
)

var suffixes = []string{
	SuffixScene, SuffixHistory, SuffixStashRepo, SuffixStashSrc, SuffixIssues, SuffixWayfinder,
}

// resourceActions is the fixed suffix × access right table. READ is always
// {find}; write sets cover what each resource needs to be mutated.
var resourceActions = map[string]map[AccessRight][]Action{
	SuffixScene:     appendOnly,
	SuffixHistory:   appendOnly,
	SuffixStashRepo: appendOnly,
	SuffixStashSrc:  appendOnly,
	SuffixIssues: {
		AccessRead:      {ActionFind},
		AccessWrite:     {ActionInsert, ActionUpdate},
		AccessReadWrite: {ActionFind, ActionInsert, ActionUpdate},
	},
	SuffixWayfinder: {
		AccessRead:      {ActionFind},
		AccessWrite:     {ActionInsert, ActionUpdate, ActionRemove},
		AccessReadWrite: {ActionFind, ActionInsert, ActionUpdate, ActionRemove},
	},
}

var appendOnly = map[AccessRight][]Action{
	AccessRead:      {ActionFind},
	AccessWrite:     {ActionInsert},
	AccessReadWrite: {ActionFind, ActionInsert},
}

// Suffixes returns the known project collection suffixes
func Suffixes() []string {
	out := make([]string, len(suffixes))
	copy(out, suffixes)
	return out
}

// Collection names the collection holding suffix for project
func Collection(project, suffix string) string {
	return project + "." + suffix
}

// UpdateActions adds the actions implied by right on suffix to existing,
// skipping any already present. Unknown suffixes add nothing.
func UpdateActions(suffix string, right AccessRight, existing []Action) []Action {
	for _, a := range resourceActions[suffix][right] {
		if !slices.Contains(existing, a) {
			existing = append(existing, a)
		}
	}
	return existing
}

// Translate expands permissions into privileges, one per known suffix for
// each project. A permission of AccessNone yields no privileges. Permissions
// naming the same project are merged.
func Translate(perms []Permission) []Privilege {
	var out []Privilege
	index := make(map[string]int)
	for _, perm := range perms {
		if perm.Right == AccessNone {
			continue
		}
		for _, suffix := range suffixes {
			key := perm.Database + "\x00" + Collection(perm.Project, suffix)
			i, ok := index[key]
			if !ok {
				out = append(out, Privilege{
					Database:   perm.Database,
					Collection: Collection(perm.Project, suffix),
				})
				i = len(out) - 1
				index[key] = i
			}
			out[i].Actions = UpdateActions(suffix, perm.Right, out[i].Actions)
		}
	}
	return out
}

// ProjectAccessRights recovers project permissions from privileges on
// scene collections.
func ProjectAccessRights(privileges []Privilege) []Permission {
	var out []Permission
	for _, p := range privileges {
		project, ok := strings.CutSuffix(p.Collection, "."+SuffixScene)
		if !ok || project == "" {
			continue
		}
		read, write := p.Has(ActionFind), p.Has(ActionInsert)
		right := AccessNone
		switch {
		case read && write:
			right = AccessReadWrite
		case read:
			right = AccessRead
		case write:
			right = AccessWrite
		}
		out = append(out, Permission{Database: p.Database, Project: project, Right: right})
	}
	return out
}
