package authz

import (
	"strings"

	"biovault.org/internal/auth"
)

// Scope is the row-visibility constraint derived from a list decision.
// The store layer translates it into WHERE predicates; edges union.
type Scope struct {
	All      bool
	Edges    []EdgeKind
	ActorID  string
	FullName string
}

// HasEdge reports whether the scope carries the edge kind.
func (s Scope) HasEdge(e EdgeKind) bool {
	for _, edge := range s.Edges {
		if edge == e {
			return true
		}
	}
	return false
}

// ScopeFor resolves the list-read scope for an actor on an entity type.
// Deny maps to PermissionError (or ErrUnauthenticated for anonymous
// callers) so an access failure is never confused with an empty result.
func ScopeFor(actor *auth.Actor, entity EntityType) (Scope, error) {
	d := Decide(actor, entity, OpList)
	switch d.Effect {
	case AllowAll:
		return Scope{All: true}, nil
	case AllowScoped:
		s := Scope{Edges: d.Edges}
		if actor != nil {
			s.ActorID = actor.ID
			s.FullName = actor.FullName()
		}
		return s, nil
	default:
		if actor == nil {
			return Scope{}, ErrUnauthenticated
		}
		return Scope{}, &PermissionError{Entity: entity, Op: OpList}
	}
}

// Facts are the ownership facts of one entity instance, assembled by the
// caller from the loaded record (and, for site edges, its site roster).
// Edges are derived on demand from current state, never cached.
type Facts struct {
	OwnerID     string
	SiteActors  []string
	SponsorID   string
	SponsorName string
	Public      bool
}

// Instance checks a single loaded instance against the decision for
// (actor, entity, op). Deny fails without inspecting the facts. A scoped
// decision succeeds iff at least one of its edges holds; zero edges means
// denied, never allowed.
func Instance(actor *auth.Actor, entity EntityType, op Operation, facts Facts) error {
	d := Decide(actor, entity, op)
	switch d.Effect {
	case AllowAll:
		return nil
	case AllowScoped:
		for _, edge := range d.Edges {
			if edgeHolds(actor, edge, facts) {
				return nil
			}
		}
		return &PermissionError{Entity: entity, Op: op}
	default:
		if actor == nil {
			return ErrUnauthenticated
		}
		return &PermissionError{Entity: entity, Op: op}
	}
}

func edgeHolds(actor *auth.Actor, edge EdgeKind, facts Facts) bool {
	switch edge {
	case EdgePublic:
		return facts.Public
	case EdgeOwner:
		return actor != nil && facts.OwnerID != "" && facts.OwnerID == actor.ID
	case EdgeSite:
		if actor == nil {
			return false
		}
		for _, id := range facts.SiteActors {
			if id == actor.ID {
				return true
			}
		}
		return false
	case EdgeSponsor:
		if actor == nil {
			return false
		}
		if facts.SponsorID != "" {
			return facts.SponsorID == actor.ID
		}
		// Legacy rows carry only the free-text sponsor name.
		return facts.SponsorName != "" && strings.EqualFold(facts.SponsorName, actor.FullName())
	default:
		return false
	}
}
