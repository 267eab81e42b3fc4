package authz

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"biovault.org/internal/auth"
)

func TestScopeForStaffIsUnrestricted(t *testing.T) {
	s, err := ScopeFor(actorWith(auth.RoleStaff), EntityDonor)
	require.NoError(t, err)
	assert.True(t, s.All)
	assert.Empty(t, s.Edges)
}

func TestScopeForCarriesActorIdentity(t *testing.T) {
	actor := &auth.Actor{ID: "d-7", FirstName: "Ada", LastName: "Reyes", Roles: auth.NewRoleSet(auth.RoleDonor)}
	s, err := ScopeFor(actor, EntityDonation)
	require.NoError(t, err)
	assert.False(t, s.All)
	assert.True(t, s.HasEdge(EdgeOwner))
	assert.Equal(t, "d-7", s.ActorID)
	assert.Equal(t, "Ada Reyes", s.FullName)
}

func TestScopeForDenied(t *testing.T) {
	_, err := ScopeFor(actorWith(auth.RoleDonor), EntityProspect)
	var pe *PermissionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, EntityProspect, pe.Entity)
	assert.True(t, IsPermissionDenied(err))

	_, err = ScopeFor(nil, EntityDonor)
	assert.True(t, errors.Is(err, ErrUnauthenticated))
}

func TestInstanceOwnerEdge(t *testing.T) {
	donor := &auth.Actor{ID: "d-1", Roles: auth.NewRoleSet(auth.RoleDonor)}

	err := Instance(donor, EntityDonor, OpGet, Facts{OwnerID: "d-1"})
	assert.NoError(t, err)

	err = Instance(donor, EntityDonor, OpGet, Facts{OwnerID: "d-2"})
	assert.True(t, IsPermissionDenied(err))

	// A record with no owner column set never matches anyone.
	err = Instance(&auth.Actor{ID: "", Roles: auth.NewRoleSet(auth.RoleDonor)}, EntityDonor, OpGet, Facts{OwnerID: ""})
	assert.True(t, IsPermissionDenied(err))
}

func TestInstanceSiteEdge(t *testing.T) {
	inv := &auth.Actor{ID: "i-9", Roles: auth.NewRoleSet(auth.RoleInvestigator)}
	facts := Facts{SiteActors: []string{"c-2", "i-9"}}

	assert.NoError(t, Instance(inv, EntityParticipant, OpUpdate, facts))
	assert.True(t, IsPermissionDenied(Instance(inv, EntityParticipant, OpUpdate, Facts{SiteActors: []string{"c-2"}})))
}

func TestInstanceSponsorEdge(t *testing.T) {
	sponsor := &auth.Actor{ID: "s-1", FirstName: "Acme", LastName: "Biotech", Roles: auth.NewRoleSet(auth.RoleSponsor)}

	// FK match wins when present.
	assert.NoError(t, Instance(sponsor, EntityStudy, OpGet, Facts{SponsorID: "s-1"}))
	assert.True(t, IsPermissionDenied(Instance(sponsor, EntityStudy, OpGet, Facts{SponsorID: "s-2", SponsorName: "Acme Biotech"})))

	// Legacy rows fall back to a case-insensitive full-name match.
	assert.NoError(t, Instance(sponsor, EntityStudy, OpGet, Facts{SponsorName: "acme biotech"}))

	// Renaming the sponsor revokes the legacy edge on the next check.
	renamed := &auth.Actor{ID: "s-1", FirstName: "Acme", LastName: "Pharma", Roles: auth.NewRoleSet(auth.RoleSponsor)}
	assert.True(t, IsPermissionDenied(Instance(renamed, EntityStudy, OpUpdate, Facts{SponsorName: "Acme Biotech"})))

	// Empty names never match each other.
	nameless := &auth.Actor{ID: "s-3", Roles: auth.NewRoleSet(auth.RoleSponsor)}
	assert.True(t, IsPermissionDenied(Instance(nameless, EntityStudy, OpGet, Facts{})))
}

func TestInstancePublicEdge(t *testing.T) {
	assert.NoError(t, Instance(nil, EntityProduct, OpGet, Facts{Public: true}))
	err := Instance(nil, EntityProduct, OpGet, Facts{Public: false})
	assert.True(t, IsPermissionDenied(err))

	member := actorWith(auth.RoleResearcher)
	assert.NoError(t, Instance(member, EntityStudy, OpGet, Facts{Public: true}))
	assert.True(t, IsPermissionDenied(Instance(member, EntityStudy, OpGet, Facts{Public: false})))
}

func TestInstanceMultiRoleAnyEdgeSuffices(t *testing.T) {
	actor := &auth.Actor{ID: "x-1", FirstName: "Vera", LastName: "Lund", Roles: auth.NewRoleSet(auth.RoleSponsor, auth.RoleInvestigator)}

	// Reachable through the site edge even though the sponsor edge fails.
	assert.NoError(t, Instance(actor, EntityStudy, OpGet, Facts{SiteActors: []string{"x-1"}, SponsorID: "other"}))
	// And through the sponsor edge when the site edge fails.
	assert.NoError(t, Instance(actor, EntityStudy, OpGet, Facts{SponsorID: "x-1"}))
	// Neither edge: denied.
	assert.True(t, IsPermissionDenied(Instance(actor, EntityStudy, OpGet, Facts{SponsorID: "other"})))
}

func TestInstanceDenyIgnoresFacts(t *testing.T) {
	donor := actorWith(auth.RoleDonor)
	// Even "owning" facts cannot help when the decision itself is Deny.
	err := Instance(donor, EntityProspect, OpGet, Facts{OwnerID: donor.ID})
	assert.True(t, IsPermissionDenied(err))
}
