package authz

import "biovault.org/internal/auth"

// entityRules holds one decision per operation.
type entityRules struct {
	List, Get, Create, Update Decision
}

func (r entityRules) forOp(op Operation) Decision {
	switch op {
	case OpList:
		return r.List
	case OpGet:
		return r.Get
	case OpCreate:
		return r.Create
	case OpUpdate:
		return r.Update
	default:
		return deny()
	}
}

// anonymousRules apply when no actor identity is present. The storefront
// catalog is the only world-readable surface.
var anonymousRules = map[EntityType]entityRules{
	EntityProduct: {List: scoped(EdgePublic), Get: scoped(EdgePublic)},
}

// baselineRules apply to every authenticated actor regardless of role flags:
// self-service resources and publicly visible records.
var baselineRules = map[EntityType]entityRules{
	EntityActor:   {Get: scoped(EdgeOwner), Update: scoped(EdgeOwner)},
	EntityStudy:   {List: scoped(EdgePublic), Get: scoped(EdgePublic)},
	EntityProduct: {List: scoped(EdgePublic), Get: scoped(EdgePublic)},
	EntityCart:    {List: scoped(EdgeOwner), Get: scoped(EdgeOwner), Create: scoped(EdgeOwner), Update: scoped(EdgeOwner)},
	EntityOrder:   {List: scoped(EdgeOwner), Get: scoped(EdgeOwner), Create: scoped(EdgeOwner)},
	EntityInvoice: {List: scoped(EdgeOwner), Get: scoped(EdgeOwner)},
	EntityAPIKey:  {List: scoped(EdgeOwner), Get: scoped(EdgeOwner), Create: scoped(EdgeOwner), Update: scoped(EdgeOwner)},
}

// siteScoped covers the investigator and coordinator flags, which share the
// same site-reachability rule for trial records.
var siteScoped = map[EntityType]entityRules{
	EntityStudy:         {List: scoped(EdgeSite), Get: scoped(EdgeSite)},
	EntityStudySite:     {List: scoped(EdgeSite), Get: scoped(EdgeSite)},
	EntityParticipant:   {List: scoped(EdgeSite), Get: scoped(EdgeSite), Create: scoped(EdgeSite), Update: scoped(EdgeSite)},
	EntityVisit:         {List: scoped(EdgeSite), Get: scoped(EdgeSite), Create: scoped(EdgeSite), Update: scoped(EdgeSite)},
	EntityAdverseEvent:  {List: scoped(EdgeSite), Get: scoped(EdgeSite), Create: scoped(EdgeSite)},
	EntityStudyDocument: {List: scoped(EdgeSite), Get: scoped(EdgeSite), Create: scoped(EdgeSite)},
}

// roleRules is the static policy table. Rules for different roles held by
// the same actor combine most-permissive-wins; staff and superuser bypass
// the table entirely.
var roleRules = map[auth.Role]map[EntityType]entityRules{
	auth.RoleDonor: {
		EntityDonor:          {List: scoped(EdgeOwner), Get: scoped(EdgeOwner), Update: scoped(EdgeOwner)},
		EntityMedicalHistory: {List: scoped(EdgeOwner), Get: scoped(EdgeOwner)},
		EntityAppointment:    {List: scoped(EdgeOwner), Get: scoped(EdgeOwner), Create: scoped(EdgeOwner), Update: scoped(EdgeOwner)},
		EntityDonation:       {List: scoped(EdgeOwner), Get: scoped(EdgeOwner)},
		EntitySample:         {List: scoped(EdgeOwner), Get: scoped(EdgeOwner)},
		EntityDonationType:   {List: allow(), Get: allow()},
	},
	auth.RoleInvestigator: siteScoped,
	auth.RoleCoordinator:  siteScoped,
	auth.RoleSponsor: {
		EntityStudy:          {List: scoped(EdgeSponsor), Get: scoped(EdgeSponsor), Create: allow(), Update: scoped(EdgeSponsor)},
		EntityParticipant:    {List: scoped(EdgeSponsor), Get: scoped(EdgeSponsor)},
		EntityAdverseEvent:   {List: scoped(EdgeSponsor), Get: scoped(EdgeSponsor)},
		EntityStudyDocument:  {List: scoped(EdgeSponsor), Get: scoped(EdgeSponsor)},
		EntitySponsorProfile: {List: scoped(EdgeOwner), Get: scoped(EdgeOwner), Create: scoped(EdgeOwner), Update: scoped(EdgeOwner)},
		EntityProtocolDraft:  {List: scoped(EdgeOwner), Get: scoped(EdgeOwner), Create: scoped(EdgeOwner), Update: scoped(EdgeOwner)},
	},
	auth.RoleResearcher: {
		EntityResearcherProfile: {List: scoped(EdgeOwner), Get: scoped(EdgeOwner), Create: scoped(EdgeOwner), Update: scoped(EdgeOwner)},
		EntitySampleRequest:     {List: scoped(EdgeOwner), Get: scoped(EdgeOwner), Create: scoped(EdgeOwner), Update: scoped(EdgeOwner)},
	},
	auth.RoleRecruiter: {
		EntityDonor:          {List: allow(), Get: allow(), Create: allow(), Update: allow()},
		EntityMedicalHistory: {List: allow(), Get: allow(), Create: allow(), Update: allow()},
		EntityAppointment:    {List: allow(), Get: allow(), Create: allow(), Update: allow()},
		EntityDonation:       {List: allow(), Get: allow()},
		EntityDonationType:   {List: allow(), Get: allow()},
		EntityProspect:       {List: allow(), Get: allow(), Create: allow(), Update: allow()},
		EntityContactLog:     {List: allow(), Get: allow(), Create: allow(), Update: allow()},
		EntityReferral:       {List: allow(), Get: allow(), Create: allow(), Update: allow()},
	},
}

// Decide resolves the rule for (actor, entity, op). actor may be nil for
// anonymous requests. Pure: same inputs, same decision.
func Decide(actor *auth.Actor, entity EntityType, op Operation) Decision {
	if actor == nil {
		if rules, ok := anonymousRules[entity]; ok {
			return rules.forOp(op)
		}
		return deny()
	}
	if actor.Escalated() {
		return allow()
	}
	best := deny()
	if rules, ok := baselineRules[entity]; ok {
		best = merge(best, rules.forOp(op))
	}
	for role := range actor.Roles {
		table, ok := roleRules[role]
		if !ok {
			continue
		}
		if rules, ok := table[entity]; ok {
			best = merge(best, rules.forOp(op))
		}
	}
	return best
}
