package recruiting

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
	prospects map[string]*Prospect
	contacts  map[string]*ContactLog
	referrals map[string]*Referral
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		prospects: map[string]*Prospect{},
		contacts:  map[string]*ContactLog{},
		referrals: map[string]*Referral{},
	}
}

func (f *fakeStore) CreateProspect(_ context.Context, p *Prospect) error {
	f.prospects[p.ID] = p
	return nil
}

func (f *fakeStore) FindProspect(_ context.Context, id string) (*Prospect, error) {
	p, ok := f.prospects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) ListProspects(_ context.Context, _ authz.Scope, status string) ([]*Prospect, error) {
	var out []*Prospect
	for _, p := range f.prospects {
		if status == "" || p.Status == status {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateProspect(_ context.Context, id string, upd ProspectUpdate) (*Prospect, error) {
	p, ok := f.prospects[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.Status != nil {
		p.Status = *upd.Status
	}
	if upd.Notes != nil {
		p.Notes = *upd.Notes
	}
	return p, nil
}

func (f *fakeStore) CreateContactLog(_ context.Context, cl *ContactLog) error {
	f.contacts[cl.ID] = cl
	return nil
}

func (f *fakeStore) ListContactLogs(_ context.Context, _ authz.Scope, prospectID string) ([]*ContactLog, error) {
	var out []*ContactLog
	for _, cl := range f.contacts {
		if prospectID == "" || cl.ProspectID == prospectID {
			out = append(out, cl)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateReferral(_ context.Context, r *Referral) error {
	f.referrals[r.ID] = r
	return nil
}

func (f *fakeStore) FindReferral(_ context.Context, id string) (*Referral, error) {
	r, ok := f.referrals[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

func (f *fakeStore) ListReferrals(_ context.Context, _ authz.Scope, prospectID string) ([]*Referral, error) {
	var out []*Referral
	for _, r := range f.referrals {
		if prospectID == "" || r.ProspectID == prospectID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateReferral(_ context.Context, id string, upd ReferralUpdate) (*Referral, error) {
	r, ok := f.referrals[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.RewardIssued != nil {
		r.RewardIssued = *upd.RewardIssued
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

func recruiter() *auth.Actor {
	return &auth.Actor{ID: "rec-1", Roles: auth.NewRoleSet(auth.RoleRecruiter)}
}

func TestPipelineIsRecruiterOnly(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, actor := range []*auth.Actor{
		{ID: "d-1", Roles: auth.NewRoleSet(auth.RoleDonor)},
		{ID: "sp-1", Roles: auth.NewRoleSet(auth.RoleSponsor)},
		{ID: "r-1", Roles: auth.NewRoleSet(auth.RoleResearcher)},
	} {
		_, err := svc.Prospects(ctx, actor, "")
		assert.True(t, authz.IsPermissionDenied(err), "roles=%v", actor.Roles.Slice())
		_, err = svc.AddProspect(ctx, actor, AddProspectInput{FirstName: "A", LastName: "B"})
		assert.True(t, authz.IsPermissionDenied(err))
	}

	_, err := svc.Prospects(ctx, nil, "")
	assert.ErrorIs(t, err, authz.ErrUnauthenticated)
}

func TestProspectPipeline(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	p, err := svc.AddProspect(ctx, recruiter(), AddProspectInput{
		FirstName: "Lena",
		LastName:  "Marsh",
		Email:     "Lena.Marsh@Example.org",
		Source:    "health fair",
	})
	require.NoError(t, err)
	assert.Equal(t, ProspectNew, p.Status)
	assert.Equal(t, "lena.marsh@example.org", p.Email)

	// Logging the first contact advances the pipeline.
	cl, err := svc.LogContact(ctx, recruiter(), LogContactInput{
		ProspectID: p.ID, Method: "Phone", Outcome: "voicemail",
	})
	require.NoError(t, err)
	assert.Equal(t, "phone", cl.Method)
	assert.Equal(t, "rec-1", cl.ContactedBy)
	assert.Equal(t, ProspectContacted, store.prospects[p.ID].Status)

	// A second contact leaves the status alone.
	_, err = svc.LogContact(ctx, recruiter(), LogContactInput{ProspectID: p.ID, Method: "email"})
	require.NoError(t, err)
	assert.Equal(t, ProspectContacted, store.prospects[p.ID].Status)

	_, err = svc.UpdateProspect(ctx, recruiter(), p.ID, ProspectUpdate{Status: ptr("qualified")})
	require.NoError(t, err)
	_, err = svc.UpdateProspect(ctx, recruiter(), p.ID, ProspectUpdate{Status: ptr("limbo")})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestReferrals(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	p, err := svc.AddProspect(ctx, recruiter(), AddProspectInput{FirstName: "Lena", LastName: "Marsh"})
	require.NoError(t, err)

	_, err = svc.AddReferral(ctx, recruiter(), AddReferralInput{ProspectID: p.ID})
	assert.ErrorIs(t, err, ErrInvalidInput)

	r, err := svc.AddReferral(ctx, recruiter(), AddReferralInput{ProspectID: p.ID, ReferringDonor: "DN-00012345"})
	require.NoError(t, err)
	assert.False(t, r.RewardIssued)

	got, err := svc.UpdateReferral(ctx, recruiter(), r.ID, ReferralUpdate{RewardIssued: ptr(true)})
	require.NoError(t, err)
	assert.True(t, got.RewardIssued)

	list, err := svc.Referrals(ctx, recruiter(), p.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func ptr[T any](v T) *T { return &v }
