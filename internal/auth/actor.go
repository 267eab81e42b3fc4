package auth

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// Role is one of the fixed capability flags an account may hold.
// Roles are non-exclusive: an actor can be both investigator and coordinator.
type Role string

const (
	RoleDonor        Role = "donor"
	RoleInvestigator Role = "investigator"
	RoleCoordinator  Role = "coordinator"
	RoleSponsor      Role = "sponsor"
	RoleResearcher   Role = "researcher"
	RoleRecruiter    Role = "recruiter"

	// Escalation flags: either one short-circuits all scoping.
	RoleStaff     Role = "staff"
	RoleSuperuser Role = "superuser"
)

// AllRoles lists every recognized role flag.
var AllRoles = []Role{
	RoleDonor, RoleInvestigator, RoleCoordinator, RoleSponsor,
	RoleResearcher, RoleRecruiter, RoleStaff, RoleSuperuser,
}

// ParseRole normalizes a role name, returning false for unknown values.
func ParseRole(raw string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range AllRoles {
		if r == known {
			return r, true
		}
	}
	return "", false
}

// RoleSet is the set of roles held by an actor.
type RoleSet map[Role]struct{}

// NewRoleSet builds a set from role values, dropping unknown names.
func NewRoleSet(roles ...Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		if parsed, ok := ParseRole(string(r)); ok {
			set[parsed] = struct{}{}
		}
	}
	return set
}

// Has reports whether the set contains the role.
func (s RoleSet) Has(r Role) bool {
	_, ok := s[r]
	return ok
}

// Escalated reports whether the set carries staff or superuser.
func (s RoleSet) Escalated() bool {
	return s.Has(RoleStaff) || s.Has(RoleSuperuser)
}

// Slice returns the roles in stable order.
func (s RoleSet) Slice() []Role {
	out := make([]Role, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings returns the roles as sorted strings (for token claims).
func (s RoleSet) Strings() []string {
	roles := s.Slice()
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}

// MarshalJSON renders the set as a sorted array of role names.
func (s RoleSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}

// UnmarshalJSON accepts an array of role names, dropping unknown values.
func (s *RoleSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	set := make(RoleSet, len(names))
	for _, name := range names {
		if r, ok := ParseRole(name); ok {
			set[r] = struct{}{}
		}
	}
	*s = set
	return nil
}

// Actor is an authenticated account with resolved role flags.
type Actor struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	PasswordHash string    `json:"-"`
	Roles        RoleSet   `json:"roles"`
	Phone        string    `json:"phone,omitempty"`
	Organization string    `json:"organization,omitempty"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// FullName joins first and last name the way the sponsor-name edge expects.
func (a *Actor) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// HasRole reports whether the actor holds the role.
func (a *Actor) HasRole(r Role) bool {
	if a == nil {
		return false
	}
	return a.Roles.Has(r)
}

// Escalated reports whether the actor holds staff or superuser.
func (a *Actor) Escalated() bool {
	return a != nil && a.Roles.Escalated()
}

// ActorUpdate carries optional account changes. Nil means unchanged.
type ActorUpdate struct {
	Email        *string
	FirstName    *string
	LastName     *string
	Password     *string
	Phone        *string
	Organization *string
	Status       *string
	Roles        *RoleSet
}
