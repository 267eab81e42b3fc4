package trials

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"biovault.org/internal/auth"
	"biovault.org/internal/authz"
)

// fakeStore keeps everything in maps. Scope filtering is the SQL layer's
// concern; the fake only records the scope it was handed.
type fakeStore struct {
	studies      map[string]*Study
	sites        map[string]*StudySite
	participants map[string]*Participant
	visits       map[string]*Visit
	events       map[string]*AdverseEvent
	documents    map[string]*StudyDocument
	lastScope    authz.Scope
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		studies:      map[string]*Study{},
		sites:        map[string]*StudySite{},
		participants: map[string]*Participant{},
		visits:       map[string]*Visit{},
		events:       map[string]*AdverseEvent{},
		documents:    map[string]*StudyDocument{},
	}
}

func (f *fakeStore) CreateStudy(_ context.Context, st *Study) error { f.studies[st.ID] = st; return nil }

func (f *fakeStore) FindStudy(_ context.Context, id string) (*Study, error) {
	st, ok := f.studies[id]
	if !ok {
		return nil, ErrNotFound
	}
	return st, nil
}

func (f *fakeStore) ListStudies(_ context.Context, scope authz.Scope) ([]*Study, error) {
	f.lastScope = scope
	var out []*Study
	for _, st := range f.studies {
		out = append(out, st)
	}
	return out, nil
}

func (f *fakeStore) UpdateStudy(_ context.Context, id string, upd StudyUpdate) (*Study, error) {
	st, ok := f.studies[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.Status != nil {
		st.Status = *upd.Status
	}
	if upd.Title != nil {
		st.Title = *upd.Title
	}
	if upd.SponsorName != nil {
		st.SponsorName = *upd.SponsorName
	}
	return st, nil
}

func (f *fakeStore) CreateSite(_ context.Context, site *StudySite) error {
	f.sites[site.ID] = site
	return nil
}

func (f *fakeStore) FindSite(_ context.Context, id string) (*StudySite, error) {
	site, ok := f.sites[id]
	if !ok {
		return nil, ErrNotFound
	}
	return site, nil
}

func (f *fakeStore) ListSites(_ context.Context, scope authz.Scope, studyID string) ([]*StudySite, error) {
	f.lastScope = scope
	var out []*StudySite
	for _, site := range f.sites {
		if studyID == "" || site.StudyID == studyID {
			out = append(out, site)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateSite(_ context.Context, id string, upd StudySiteUpdate) (*StudySite, error) {
	site, ok := f.sites[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.Status != nil {
		site.Status = *upd.Status
	}
	return site, nil
}

func (f *fakeStore) CreateParticipant(_ context.Context, p *Participant) error {
	f.participants[p.ID] = p
	return nil
}

func (f *fakeStore) FindParticipant(_ context.Context, id string) (*Participant, error) {
	p, ok := f.participants[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) ListParticipants(_ context.Context, scope authz.Scope, studyID string) ([]*Participant, error) {
	f.lastScope = scope
	var out []*Participant
	for _, p := range f.participants {
		if studyID == "" || p.StudyID == studyID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateParticipant(_ context.Context, id string, upd ParticipantUpdate) (*Participant, error) {
	p, ok := f.participants[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.Status != nil {
		p.Status = *upd.Status
	}
	return p, nil
}

func (f *fakeStore) CreateVisit(_ context.Context, v *Visit) error { f.visits[v.ID] = v; return nil }

func (f *fakeStore) FindVisit(_ context.Context, id string) (*Visit, error) {
	v, ok := f.visits[id]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (f *fakeStore) ListVisits(_ context.Context, scope authz.Scope, participantID string) ([]*Visit, error) {
	f.lastScope = scope
	var out []*Visit
	for _, v := range f.visits {
		if participantID == "" || v.ParticipantID == participantID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateVisit(_ context.Context, id string, upd VisitUpdate) (*Visit, error) {
	v, ok := f.visits[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.Status != nil {
		v.Status = *upd.Status
	}
	if upd.ActualDate != nil {
		v.ActualDate = upd.ActualDate
	}
	return v, nil
}

func (f *fakeStore) CreateAdverseEvent(_ context.Context, ev *AdverseEvent) error {
	f.events[ev.ID] = ev
	return nil
}

func (f *fakeStore) FindAdverseEvent(_ context.Context, id string) (*AdverseEvent, error) {
	ev, ok := f.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	return ev, nil
}

func (f *fakeStore) ListAdverseEvents(_ context.Context, scope authz.Scope, participantID string) ([]*AdverseEvent, error) {
	f.lastScope = scope
	var out []*AdverseEvent
	for _, ev := range f.events {
		if participantID == "" || ev.ParticipantID == participantID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateDocument(_ context.Context, doc *StudyDocument) error {
	f.documents[doc.ID] = doc
	return nil
}

func (f *fakeStore) FindDocument(_ context.Context, id string) (*StudyDocument, error) {
	doc, ok := f.documents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return doc, nil
}

func (f *fakeStore) ListDocuments(_ context.Context, scope authz.Scope, studyID string) ([]*StudyDocument, error) {
	f.lastScope = scope
	var out []*StudyDocument
	for _, doc := range f.documents {
		if studyID == "" || doc.StudyID == studyID {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (f *fakeStore) StudyActors(_ context.Context, studyID string) ([]string, error) {
	var out []string
	for _, site := range f.sites {
		if site.StudyID != studyID {
			continue
		}
		if site.InvestigatorID != "" {
			out = append(out, site.InvestigatorID)
		}
		if site.CoordinatorID != "" {
			out = append(out, site.CoordinatorID)
		}
	}
	return out, nil
}

func (f *fakeStore) SiteActors(_ context.Context, siteID string) ([]string, error) {
	site, ok := f.sites[siteID]
	if !ok {
		return nil, ErrNotFound
	}
	var out []string
	if site.InvestigatorID != "" {
		out = append(out, site.InvestigatorID)
	}
	if site.CoordinatorID != "" {
		out = append(out, site.CoordinatorID)
	}
	return out, nil
}

func newTestService(t *testing.T) (*Service, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	n := 0
	svc, err := NewService(store, func() string { n++; return fmt.Sprintf("id-%d", n) })
	require.NoError(t, err)
	return svc, store
}

func staffActor() *auth.Actor {
	return &auth.Actor{ID: "staff-1", Roles: auth.NewRoleSet(auth.RoleStaff)}
}

func seedStudyWithSite(t *testing.T, svc *Service) (*Study, *StudySite) {
	t.Helper()
	ctx := context.Background()
	st, err := svc.CreateStudy(ctx, staffActor(), CreateStudyInput{
		ProtocolNumber: "BV-2026-001",
		Title:          "Plasma proteomics baseline",
		SponsorName:    "Acme Biotech",
	})
	require.NoError(t, err)
	_, err = svc.UpdateStudy(ctx, staffActor(), st.ID, StudyUpdate{Status: ptr(StudyActive)})
	require.NoError(t, err)
	site, err := svc.CreateSite(ctx, staffActor(), CreateSiteInput{
		StudyID:        st.ID,
		Name:           "Riverside Clinical Center",
		InvestigatorID: "inv-1",
		CoordinatorID:  "coord-1",
	})
	require.NoError(t, err)
	return st, site
}

func ptr[T any](v T) *T { return &v }

func TestCreateStudyValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateStudy(ctx, staffActor(), CreateStudyInput{Title: "No protocol"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.CreateStudy(ctx, staffActor(), CreateStudyInput{ProtocolNumber: "BV-1"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSponsorCreateOwnsStudy(t *testing.T) {
	svc, _ := newTestService(t)
	sponsor := &auth.Actor{ID: "sp-1", FirstName: "Acme", LastName: "Biotech", Roles: auth.NewRoleSet(auth.RoleSponsor)}

	st, err := svc.CreateStudy(context.Background(), sponsor, CreateStudyInput{
		ProtocolNumber: "BV-2026-002",
		Title:          "Sponsored study",
	})
	require.NoError(t, err)
	assert.Equal(t, "sp-1", st.SponsorID)
	assert.Equal(t, StudyDraft, st.Status)
}

func TestDonorCannotCreateStudy(t *testing.T) {
	svc, _ := newTestService(t)
	donor := &auth.Actor{ID: "d-1", Roles: auth.NewRoleSet(auth.RoleDonor)}

	_, err := svc.CreateStudy(context.Background(), donor, CreateStudyInput{
		ProtocolNumber: "BV-X",
		Title:          "Nope",
	})
	assert.True(t, authz.IsPermissionDenied(err))
}

func TestStudyGetHonorsEdges(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	st, _ := seedStudyWithSite(t, svc)

	// Site investigator reaches the study through the roster.
	inv := &auth.Actor{ID: "inv-1", Roles: auth.NewRoleSet(auth.RoleInvestigator)}
	got, err := svc.Study(ctx, inv, st.ID)
	require.NoError(t, err)
	assert.Equal(t, st.ID, got.ID)

	// An investigator from another site does not.
	stranger := &auth.Actor{ID: "inv-99", Roles: auth.NewRoleSet(auth.RoleInvestigator)}
	_, err = svc.Study(ctx, stranger, st.ID)
	assert.True(t, authz.IsPermissionDenied(err))

	// Legacy sponsor-name match grants the sponsor edge.
	sponsor := &auth.Actor{ID: "sp-other", FirstName: "Acme", LastName: "Biotech", Roles: auth.NewRoleSet(auth.RoleSponsor)}
	_, err = svc.Study(ctx, sponsor, st.ID)
	assert.NoError(t, err)

	// Missing study stays a not-found, not a permission error.
	_, err = svc.Study(ctx, inv, "no-such-study")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPublicStudyVisibleToAnyAuthenticated(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	st, err := svc.CreateStudy(ctx, staffActor(), CreateStudyInput{
		ProtocolNumber: "BV-PUB-1",
		Title:          "Open cohort",
		Public:         true,
	})
	require.NoError(t, err)

	member := &auth.Actor{ID: "r-1", Roles: auth.NewRoleSet(auth.RoleResearcher)}

	// Draft studies stay hidden even when flagged public.
	_, err = svc.Study(ctx, member, st.ID)
	assert.True(t, authz.IsPermissionDenied(err))

	_, err = svc.UpdateStudy(ctx, staffActor(), st.ID, StudyUpdate{Status: ptr(StudyActive)})
	require.NoError(t, err)

	_, err = svc.Study(ctx, member, st.ID)
	assert.NoError(t, err)
}

func TestStudiesListPassesScope(t *testing.T) {
	svc, store := newTestService(t)
	inv := &auth.Actor{ID: "inv-1", Roles: auth.NewRoleSet(auth.RoleInvestigator)}

	_, err := svc.Studies(context.Background(), inv)
	require.NoError(t, err)
	assert.False(t, store.lastScope.All)
	assert.True(t, store.lastScope.HasEdge(authz.EdgeSite))
	assert.True(t, store.lastScope.HasEdge(authz.EdgePublic))
	assert.Equal(t, "inv-1", store.lastScope.ActorID)
}

func TestEnrollRequiresSiteEdge(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, site := seedStudyWithSite(t, svc)

	coord := &auth.Actor{ID: "coord-1", Roles: auth.NewRoleSet(auth.RoleCoordinator)}
	p, err := svc.Enroll(ctx, coord, EnrollInput{
		ParticipantID: "P-001",
		SiteID:        site.ID,
		FirstName:     "Ira",
		LastName:      "Novak",
	})
	require.NoError(t, err)
	assert.Equal(t, site.StudyID, p.StudyID)
	assert.Equal(t, "enrolled", p.Status)
	require.NotNil(t, p.EnrolledAt)

	outsider := &auth.Actor{ID: "coord-9", Roles: auth.NewRoleSet(auth.RoleCoordinator)}
	_, err = svc.Enroll(ctx, outsider, EnrollInput{
		ParticipantID: "P-002",
		SiteID:        site.ID,
		FirstName:     "Jo",
		LastName:      "Lind",
	})
	assert.True(t, authz.IsPermissionDenied(err))
}

func TestVisitLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, site := seedStudyWithSite(t, svc)
	coord := &auth.Actor{ID: "coord-1", Roles: auth.NewRoleSet(auth.RoleCoordinator)}

	p, err := svc.Enroll(ctx, coord, EnrollInput{
		ParticipantID: "P-001", SiteID: site.ID, FirstName: "Ira", LastName: "Novak",
	})
	require.NoError(t, err)

	when := time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC)
	v, err := svc.ScheduleVisit(ctx, coord, ScheduleVisitInput{ParticipantID: p.ID, ScheduledDate: when})
	require.NoError(t, err)
	assert.Equal(t, "scheduled", v.Status)

	// The investigator on the same site can read and complete it.
	inv := &auth.Actor{ID: "inv-1", Roles: auth.NewRoleSet(auth.RoleInvestigator)}
	got, err := svc.Visit(ctx, inv, v.ID)
	require.NoError(t, err)
	assert.Equal(t, when, got.ScheduledDate)

	done := when.Add(20 * time.Minute)
	_, err = svc.UpdateVisit(ctx, inv, v.ID, VisitUpdate{Status: ptr("completed"), ActualDate: &done})
	assert.NoError(t, err)

	// A donor cannot touch trial visits at all.
	donor := &auth.Actor{ID: "d-1", Roles: auth.NewRoleSet(auth.RoleDonor)}
	_, err = svc.Visit(ctx, donor, v.ID)
	assert.True(t, authz.IsPermissionDenied(err))
}

func TestReportAdverseEvent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, site := seedStudyWithSite(t, svc)
	inv := &auth.Actor{ID: "inv-1", Roles: auth.NewRoleSet(auth.RoleInvestigator)}

	p, err := svc.Enroll(ctx, inv, EnrollInput{
		ParticipantID: "P-001", SiteID: site.ID, FirstName: "Ira", LastName: "Novak",
	})
	require.NoError(t, err)

	_, err = svc.ReportAdverseEvent(ctx, inv, ReportAdverseEventInput{
		ParticipantID: p.ID,
		Description:   "Mild bruising at draw site",
		Severity:      "bad",
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	ev, err := svc.ReportAdverseEvent(ctx, inv, ReportAdverseEventInput{
		ParticipantID: p.ID,
		Description:   "Mild bruising at draw site",
		Severity:      "Mild",
	})
	require.NoError(t, err)
	assert.Equal(t, SeverityMild, ev.Severity)
	assert.Equal(t, "inv-1", ev.ReportedBy)

	// The study sponsor can read the event but not file one.
	sponsor := &auth.Actor{ID: "sp-1", FirstName: "Acme", LastName: "Biotech", Roles: auth.NewRoleSet(auth.RoleSponsor)}
	_, err = svc.AdverseEvent(ctx, sponsor, ev.ID)
	assert.NoError(t, err)
	_, err = svc.ReportAdverseEvent(ctx, sponsor, ReportAdverseEventInput{
		ParticipantID: p.ID, Description: "x", Severity: "mild",
	})
	assert.True(t, authz.IsPermissionDenied(err))
}

func TestStudyDocuments(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	st, _ := seedStudyWithSite(t, svc)
	inv := &auth.Actor{ID: "inv-1", Roles: auth.NewRoleSet(auth.RoleInvestigator)}

	doc, err := svc.AddDocument(ctx, inv, AddDocumentInput{
		StudyID:      st.ID,
		Title:        "Protocol v2",
		DocumentType: "protocol",
		Version:      "2.0",
		URI:          "s3://biovault-docs/bv-2026-001/protocol-v2.pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, "inv-1", doc.UploadedBy)

	got, err := svc.Document(ctx, inv, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Protocol v2", got.Title)

	stranger := &auth.Actor{ID: "inv-99", Roles: auth.NewRoleSet(auth.RoleInvestigator)}
	_, err = svc.Document(ctx, stranger, doc.ID)
	assert.True(t, authz.IsPermissionDenied(err))
}
