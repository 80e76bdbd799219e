package domain

import "strings"

// Role is a capability held by an actor.
type Role string

const (
	RoleRequester   Role = "requester"
	RoleLineManager Role = "line_manager"
	RoleHeadOfIT    Role = "head_of_it"
	RoleITOfficer   Role = "it_officer"
	RoleQAOfficer   Role = "qa_officer"
	RoleNOC         Role = "noc"
)

// RoleSet is the set of roles an actor holds.
type RoleSet map[Role]struct{}

// NewRoleSet builds a set from raw role names, ignoring blanks and duplicates.
func NewRoleSet(roles ...string) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		r = strings.ToLower(strings.TrimSpace(r))
		if r == "" {
			continue
		}
		set[Role(r)] = struct{}{}
	}
	return set
}

// Has reports membership of a single role.
func (s RoleSet) Has(role Role) bool {
	_, ok := s[role]
	return ok
}

// HasAny reports whether the set intersects roles.
func (s RoleSet) HasAny(roles ...Role) bool {
	for _, r := range roles {
		if s.Has(r) {
			return true
		}
	}
	return false
}

// Strings returns role names for serialization.
func (s RoleSet) Strings() []string {
	out := make([]string, 0, len(s))
	for r := range s {
		out = append(out, string(r))
	}
	return out
}

// Actor is an authenticated identity supplied by the identity provider.
type Actor struct {
	ID    string
	Name  string
	Roles RoleSet
}

// Is reports whether the actor is the given identity.
func (a Actor) Is(id string) bool {
	return a.ID != "" && a.ID == id
}

// PrimaryRole picks the role recorded on an approval row; the first match in preferred wins.
func (a Actor) PrimaryRole(preferred ...Role) Role {
	for _, r := range preferred {
		if a.Roles.Has(r) {
			return r
		}
	}
	for r := range a.Roles {
		return r
	}
	return ""
}
