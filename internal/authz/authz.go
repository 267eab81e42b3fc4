// Package authz is the single place where role-based access rules live.
// Every query handler reduces to: ask Decide (or ScopeFor / Instance) and
// proceed; no per-handler role ladders.
package authz

import (
	"errors"
	"fmt"
)

// EntityType enumerates the resource kinds subject to authorization.
type EntityType string

const (
	EntityActor             EntityType = "actor"
	EntityStudy             EntityType = "study"
	EntityStudySite         EntityType = "study_site"
	EntityParticipant       EntityType = "participant"
	EntityVisit             EntityType = "visit"
	EntityAdverseEvent      EntityType = "adverse_event"
	EntityStudyDocument     EntityType = "study_document"
	EntityDonor             EntityType = "donor"
	EntityMedicalHistory    EntityType = "medical_history"
	EntityDonationType      EntityType = "donation_type"
	EntityAppointment       EntityType = "donation_appointment"
	EntityDonation          EntityType = "donation"
	EntitySampleType        EntityType = "sample_type"
	EntitySample            EntityType = "sample"
	EntityProspect          EntityType = "prospect"
	EntityContactLog        EntityType = "contact_log"
	EntityReferral          EntityType = "referral"
	EntitySponsorProfile    EntityType = "sponsor_profile"
	EntityResearcherProfile EntityType = "researcher_profile"
	EntityProtocolDraft     EntityType = "protocol_draft"
	EntitySampleRequest     EntityType = "sample_request"
	EntityProduct           EntityType = "product"
	EntityCart              EntityType = "cart"
	EntityOrder             EntityType = "order"
	EntityInvoice           EntityType = "invoice"
	EntityAPIKey            EntityType = "api_key"
)

// Operation is the kind of access being decided.
type Operation string

const (
	OpList   Operation = "list"
	OpGet    Operation = "get"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
)

// Effect orders outcomes by permissiveness; the most permissive wins when
// an actor holds several roles.
type Effect int

const (
	Deny Effect = iota
	AllowScoped
	AllowAll
)

// EdgeKind names an ownership edge that a scoped decision filters by.
type EdgeKind string

const (
	// EdgeOwner: the actor is the record's subject (direct column match).
	EdgeOwner EdgeKind = "owner"
	// EdgeSite: the actor is investigator or coordinator on the study site
	// the record belongs to.
	EdgeSite EdgeKind = "site"
	// EdgeSponsor: the actor is the study's sponsor, matched by sponsor_id
	// FK, with a case-insensitive full-name match against the free-text
	// sponsor_name column as fallback for legacy rows without the FK.
	EdgeSponsor EdgeKind = "sponsor"
	// EdgePublic: the record itself is publicly visible (active public
	// study, available storefront product).
	EdgePublic EdgeKind = "public"
)

// Decision is the outcome of the decision function. A scoped decision may
// carry several edges; their row sets union.
type Decision struct {
	Effect Effect
	Edges  []EdgeKind
}

func deny() Decision                { return Decision{Effect: Deny} }
func allow() Decision               { return Decision{Effect: AllowAll} }
func scoped(e ...EdgeKind) Decision { return Decision{Effect: AllowScoped, Edges: e} }

// ErrUnauthenticated signals that no actor identity was present for an
// operation that requires one.
var ErrUnauthenticated = errors.New("authz: authentication required")

// PermissionError reports a denied operation; it names the entity and
// operation but never the record contents.
type PermissionError struct {
	Entity EntityType
	Op     Operation
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("authz: %s %s denied", e.Op, e.Entity)
}

// IsPermissionDenied reports whether err is a PermissionError.
func IsPermissionDenied(err error) bool {
	var pe *PermissionError
	return errors.As(err, &pe)
}

func merge(a, b Decision) Decision {
	if b.Effect > a.Effect {
		return b
	}
	if b.Effect < a.Effect {
		return a
	}
	if a.Effect != AllowScoped {
		return a
	}
	// Same effect, both scoped: union the edges.
	out := Decision{Effect: AllowScoped}
	seen := map[EdgeKind]struct{}{}
	for _, e := range append(append([]EdgeKind{}, a.Edges...), b.Edges...) {
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out.Edges = append(out.Edges, e)
	}
	return out
}
