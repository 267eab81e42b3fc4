package sponsors

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"biovault.org/internal/auth"
	"biovault.org/internal/authz"
)

type fakeStore struct {
	sponsorProfiles    map[string]*SponsorProfile
	researcherProfiles map[string]*ResearcherProfile
	drafts             map[string]*ProtocolDraft
	requests           map[string]*CustomSampleRequest
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sponsorProfiles:    map[string]*SponsorProfile{},
		researcherProfiles: map[string]*ResearcherProfile{},
		drafts:             map[string]*ProtocolDraft{},
		requests:           map[string]*CustomSampleRequest{},
	}
}

func (f *fakeStore) CreateSponsorProfile(_ context.Context, p *SponsorProfile) error {
	for _, existing := range f.sponsorProfiles {
		if existing.ActorID == p.ActorID {
			return fmt.Errorf("%w: profile already exists", ErrConflict)
		}
	}
	f.sponsorProfiles[p.ID] = p
	return nil
}

func (f *fakeStore) FindSponsorProfile(_ context.Context, id string) (*SponsorProfile, error) {
	p, ok := f.sponsorProfiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) FindSponsorProfileByActor(_ context.Context, actorID string) (*SponsorProfile, error) {
	for _, p := range f.sponsorProfiles {
		if p.ActorID == actorID {
			return p, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeStore) ListSponsorProfiles(_ context.Context, scope authz.Scope) ([]*SponsorProfile, error) {
	var out []*SponsorProfile
	for _, p := range f.sponsorProfiles {
		if scope.All || p.ActorID == scope.ActorID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateSponsorProfile(_ context.Context, id string, upd SponsorProfileUpdate) (*SponsorProfile, error) {
	p, ok := f.sponsorProfiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.Organization != nil {
		p.Organization = *upd.Organization
	}
	return p, nil
}

func (f *fakeStore) CreateResearcherProfile(_ context.Context, p *ResearcherProfile) error {
	f.researcherProfiles[p.ID] = p
	return nil
}

func (f *fakeStore) FindResearcherProfile(_ context.Context, id string) (*ResearcherProfile, error) {
	p, ok := f.researcherProfiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) ListResearcherProfiles(_ context.Context, scope authz.Scope) ([]*ResearcherProfile, error) {
	var out []*ResearcherProfile
	for _, p := range f.researcherProfiles {
		if scope.All || p.ActorID == scope.ActorID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateResearcherProfile(_ context.Context, id string, upd ResearcherProfileUpdate) (*ResearcherProfile, error) {
	p, ok := f.researcherProfiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.Institution != nil {
		p.Institution = *upd.Institution
	}
	return p, nil
}

func (f *fakeStore) CreateDraft(_ context.Context, d *ProtocolDraft) error {
	f.drafts[d.ID] = d
	return nil
}

func (f *fakeStore) FindDraft(_ context.Context, id string) (*ProtocolDraft, error) {
	d, ok := f.drafts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return d, nil
}

func (f *fakeStore) ListDrafts(_ context.Context, scope authz.Scope) ([]*ProtocolDraft, error) {
	var out []*ProtocolDraft
	for _, d := range f.drafts {
		if scope.All || d.ActorID == scope.ActorID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateDraft(_ context.Context, id string, upd ProtocolDraftUpdate) (*ProtocolDraft, error) {
	d, ok := f.drafts[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.Status != nil {
		d.Status = *upd.Status
	}
	if upd.Body != nil {
		d.Body = *upd.Body
	}
	return d, nil
}

func (f *fakeStore) CreateSampleRequest(_ context.Context, r *CustomSampleRequest) error {
	f.requests[r.ID] = r
	return nil
}

func (f *fakeStore) FindSampleRequest(_ context.Context, id string) (*CustomSampleRequest, error) {
	r, ok := f.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

func (f *fakeStore) ListSampleRequests(_ context.Context, scope authz.Scope) ([]*CustomSampleRequest, error) {
	var out []*CustomSampleRequest
	for _, r := range f.requests {
		if scope.All || r.ActorID == scope.ActorID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateSampleRequest(_ context.Context, id string, upd SampleRequestUpdate) (*CustomSampleRequest, error) {
	r, ok := f.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.Status != nil {
		r.Status = *upd.Status
	}
	if upd.Quantity != nil {
		r.Quantity = *upd.Quantity
	}
	return r, nil
}

func newTestService(t *testing.T) (*Service, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	n := 0
	svc, err := NewService(store, func() string { n++; return fmt.Sprintf("id-%d", n) })
	require.NoError(t, err)
	return svc, store
}

func sponsor(id string) *auth.Actor {
	return &auth.Actor{ID: id, Roles: auth.NewRoleSet(auth.RoleSponsor)}
}

func researcher(id string) *auth.Actor {
	return &auth.Actor{ID: id, Roles: auth.NewRoleSet(auth.RoleResearcher)}
}

func staff() *auth.Actor {
	return &auth.Actor{ID: "staff-1", Roles: auth.NewRoleSet(auth.RoleStaff)}
}

func ptr[T any](v T) *T { return &v }

func TestSponsorProfileOwnership(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	p, err := svc.CreateSponsorProfile(ctx, sponsor("sp-1"), SponsorProfileInput{Organization: "Acme Biotech"})
	require.NoError(t, err)
	assert.Equal(t, "sp-1", p.ActorID)

	// One profile per account.
	_, err = svc.CreateSponsorProfile(ctx, sponsor("sp-1"), SponsorProfileInput{Organization: "Acme Again"})
	assert.ErrorIs(t, err, ErrConflict)

	// Another sponsor cannot read or edit it.
	_, err = svc.SponsorProfile(ctx, sponsor("sp-2"), p.ID)
	assert.True(t, authz.IsPermissionDenied(err))
	_, err = svc.UpdateSponsorProfile(ctx, sponsor("sp-2"), p.ID, SponsorProfileUpdate{Organization: ptr("Hijacked")})
	assert.True(t, authz.IsPermissionDenied(err))

	// Researchers have no sponsor-profile rule at all.
	_, err = svc.CreateSponsorProfile(ctx, researcher("r-1"), SponsorProfileInput{Organization: "Univ"})
	assert.True(t, authz.IsPermissionDenied(err))
}

func TestSponsorProfileListScoping(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.CreateSponsorProfile(ctx, sponsor("sp-1"), SponsorProfileInput{Organization: "Acme"})
	require.NoError(t, err)
	_, err = svc.CreateSponsorProfile(ctx, sponsor("sp-2"), SponsorProfileInput{Organization: "Nova"})
	require.NoError(t, err)

	mine, err := svc.SponsorProfiles(ctx, sponsor("sp-1"))
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "Acme", mine[0].Organization)

	all, err := svc.SponsorProfiles(ctx, staff())
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestProtocolDraftReviewGate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	d, err := svc.CreateDraft(ctx, sponsor("sp-1"), DraftInput{Title: "Cryopreserved PBMC protocol"})
	require.NoError(t, err)
	assert.Equal(t, DraftInProgress, d.Status)

	// The author can submit but not approve their own draft.
	_, err = svc.UpdateDraft(ctx, sponsor("sp-1"), d.ID, ProtocolDraftUpdate{Status: ptr("submitted")})
	require.NoError(t, err)
	_, err = svc.UpdateDraft(ctx, sponsor("sp-1"), d.ID, ProtocolDraftUpdate{Status: ptr("approved")})
	assert.True(t, authz.IsPermissionDenied(err))

	_, err = svc.UpdateDraft(ctx, staff(), d.ID, ProtocolDraftUpdate{Status: ptr("approved")})
	assert.NoError(t, err)
}

func TestSampleRequestLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateSampleRequest(ctx, researcher("r-1"), SampleRequestInput{Criteria: "HLA-A*02:01 donors"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	r, err := svc.CreateSampleRequest(ctx, researcher("r-1"), SampleRequestInput{
		Quantity: 24,
		Criteria: "HLA-A*02:01 donors, age 18-40",
	})
	require.NoError(t, err)
	assert.Equal(t, RequestPending, r.Status)

	// The owner can adjust quantity but not self-approve.
	_, err = svc.UpdateSampleRequest(ctx, researcher("r-1"), r.ID, SampleRequestUpdate{Quantity: ptr(30)})
	require.NoError(t, err)
	_, err = svc.UpdateSampleRequest(ctx, researcher("r-1"), r.ID, SampleRequestUpdate{Status: ptr("approved")})
	assert.True(t, authz.IsPermissionDenied(err))

	_, err = svc.UpdateSampleRequest(ctx, staff(), r.ID, SampleRequestUpdate{Status: ptr("approved")})
	assert.NoError(t, err)

	// Sponsors are strangers to researcher requests.
	_, err = svc.SampleRequest(ctx, sponsor("sp-1"), r.ID)
	assert.True(t, authz.IsPermissionDenied(err))
}

func TestResearcherProfile(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	p, err := svc.CreateResearcherProfile(ctx, researcher("r-1"), ResearcherProfileInput{
		Institution: "Marine Biology Institute",
		ORCID:       "0000-0002-1825-0097",
	})
	require.NoError(t, err)

	got, err := svc.ResearcherProfile(ctx, researcher("r-1"), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Marine Biology Institute", got.Institution)

	_, err = svc.ResearcherProfile(ctx, researcher("r-2"), p.ID)
	assert.True(t, authz.IsPermissionDenied(err))
}
