package trials

import (
	"context"
	"fmt"
	"strings"
	"time"

	"biovault.org/internal/auth"
	"biovault.org/internal/authz"
)

// Store describes persistence operations for the trials domain. List
// methods take an authz.Scope and translate it into row filtering.
type Store interface {
	CreateStudy(ctx context.Context, st *Study) error
	FindStudy(ctx context.Context, id string) (*Study, error)
	ListStudies(ctx context.Context, scope authz.Scope) ([]*Study, error)
	UpdateStudy(ctx context.Context, id string, upd StudyUpdate) (*Study, error)

	CreateSite(ctx context.Context, site *StudySite) error
	FindSite(ctx context.Context, id string) (*StudySite, error)
	ListSites(ctx context.Context, scope authz.Scope, studyID string) ([]*StudySite, error)
	UpdateSite(ctx context.Context, id string, upd StudySiteUpdate) (*StudySite, error)

	CreateParticipant(ctx context.Context, p *Participant) error
	FindParticipant(ctx context.Context, id string) (*Participant, error)
	ListParticipants(ctx context.Context, scope authz.Scope, studyID string) ([]*Participant, error)
	UpdateParticipant(ctx context.Context, id string, upd ParticipantUpdate) (*Participant, error)

	CreateVisit(ctx context.Context, v *Visit) error
	FindVisit(ctx context.Context, id string) (*Visit, error)
	ListVisits(ctx context.Context, scope authz.Scope, participantID string) ([]*Visit, error)
	UpdateVisit(ctx context.Context, id string, upd VisitUpdate) (*Visit, error)

	CreateAdverseEvent(ctx context.Context, ev *AdverseEvent) error
	FindAdverseEvent(ctx context.Context, id string) (*AdverseEvent, error)
	ListAdverseEvents(ctx context.Context, scope authz.Scope, participantID string) ([]*AdverseEvent, error)

	CreateDocument(ctx context.Context, doc *StudyDocument) error
	FindDocument(ctx context.Context, id string) (*StudyDocument, error)
	ListDocuments(ctx context.Context, scope authz.Scope, studyID string) ([]*StudyDocument, error)

	// StudyActors returns the investigator and coordinator ids across all
	// sites of a study; SiteActors returns them for one site.
	StudyActors(ctx context.Context, studyID string) ([]string, error)
	SiteActors(ctx context.Context, siteID string) ([]string, error)
}

// Service implements trial operations with centralized authorization:
// every read resolves a scope or checks the loaded instance, every
// mutation re-checks before writing.
type Service struct {
	store Store
	now   func() time.Time
	newID func() string
}

func NewService(store Store, newID func() string) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidInput)
	}
	if newID == nil {
		return nil, fmt.Errorf("%w: id generator is required", ErrInvalidInput)
	}
	return &Service{store: store, now: time.Now, newID: newID}, nil
}

// WithClock overrides the time source. Intended for tests.
func (s *Service) WithClock(fn func() time.Time) *Service {
	if fn != nil {
		s.now = fn
	}
	return s
}

func (s *Service) studyFacts(ctx context.Context, st *Study) (authz.Facts, error) {
	actors, err := s.store.StudyActors(ctx, st.ID)
	if err != nil {
		return authz.Facts{}, err
	}
	return authz.Facts{
		SiteActors:  actors,
		SponsorID:   st.SponsorID,
		SponsorName: st.SponsorName,
		Public:      st.Public && st.Status == StudyActive,
	}, nil
}

func (s *Service) participantFacts(ctx context.Context, p *Participant) (authz.Facts, error) {
	st, err := s.store.FindStudy(ctx, p.StudyID)
	if err != nil {
		return authz.Facts{}, err
	}
	actors, err := s.store.SiteActors(ctx, p.SiteID)
	if err != nil {
		return authz.Facts{}, err
	}
	return authz.Facts{
		SiteActors:  actors,
		SponsorID:   st.SponsorID,
		SponsorName: st.SponsorName,
	}, nil
}

// Studies lists the studies visible to the actor.
func (s *Service) Studies(ctx context.Context, actor *auth.Actor) ([]*Study, error) {
	scope, err := authz.ScopeFor(actor, authz.EntityStudy)
	if err != nil {
		return nil, err
	}
	return s.store.ListStudies(ctx, scope)
}

// Study loads one study and checks the actor's access to it.
func (s *Service) Study(ctx context.Context, actor *auth.Actor, id string) (*Study, error) {
	st, err := s.store.FindStudy(ctx, id)
	if err != nil {
		return nil, err
	}
	facts, err := s.studyFacts(ctx, st)
	if err != nil {
		return nil, err
	}
	if err := authz.Instance(actor, authz.EntityStudy, authz.OpGet, facts); err != nil {
		return nil, err
	}
	return st, nil
}

// CreateStudyInput carries the fields needed to register a study.
type CreateStudyInput struct {
	ProtocolNumber        string
	Title                 string
	Description           string
	Phase                 string
	SponsorID             string
	SponsorName           string
	PrincipalInvestigator string
	Public                bool
}

func (s *Service) CreateStudy(ctx context.Context, actor *auth.Actor, in CreateStudyInput) (*Study, error) {
	if err := authz.Instance(actor, authz.EntityStudy, authz.OpCreate, authz.Facts{}); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.ProtocolNumber) == "" {
		return nil, fmt.Errorf("%w: field protocol_number: required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("%w: field title: required", ErrInvalidInput)
	}
	sponsorID := strings.TrimSpace(in.SponsorID)
	if sponsorID == "" && actor.HasRole(auth.RoleSponsor) {
		sponsorID = actor.ID
	}
	now := s.now().UTC()
	st := &Study{
		ID:                    s.newID(),
		ProtocolNumber:        strings.TrimSpace(in.ProtocolNumber),
		Title:                 strings.TrimSpace(in.Title),
		Description:           strings.TrimSpace(in.Description),
		Phase:                 strings.TrimSpace(in.Phase),
		Status:                StudyDraft,
		SponsorID:             sponsorID,
		SponsorName:           strings.TrimSpace(in.SponsorName),
		PrincipalInvestigator: strings.TrimSpace(in.PrincipalInvestigator),
		Public:                in.Public,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.store.CreateStudy(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Service) UpdateStudy(ctx context.Context, actor *auth.Actor, id string, upd StudyUpdate) (*Study, error) {
	st, err := s.store.FindStudy(ctx, id)
	if err != nil {
		return nil, err
	}
	facts, err := s.studyFacts(ctx, st)
	if err != nil {
		return nil, err
	}
	if err := authz.Instance(actor, authz.EntityStudy, authz.OpUpdate, facts); err != nil {
		return nil, err
	}
	if upd.Status != nil {
		status := strings.ToLower(strings.TrimSpace(*upd.Status))
		switch status {
		case StudyDraft, StudyActive, StudyCompleted, StudyTerminated:
		default:
			return nil, fmt.Errorf("%w: field status: unsupported value %q", ErrInvalidInput, *upd.Status)
		}
		upd.Status = &status
	}
	return s.store.UpdateStudy(ctx, id, upd)
}

// Sites lists the sites of a study visible to the actor.
func (s *Service) Sites(ctx context.Context, actor *auth.Actor, studyID string) ([]*StudySite, error) {
	scope, err := authz.ScopeFor(actor, authz.EntityStudySite)
	if err != nil {
		return nil, err
	}
	return s.store.ListSites(ctx, scope, studyID)
}

func (s *Service) Site(ctx context.Context, actor *auth.Actor, id string) (*StudySite, error) {
	site, err := s.store.FindSite(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Instance(actor, authz.EntityStudySite, authz.OpGet, s.siteFacts(site)); err != nil {
		return nil, err
	}
	return site, nil
}

func (s *Service) siteFacts(site *StudySite) authz.Facts {
	var actors []string
	if site.InvestigatorID != "" {
		actors = append(actors, site.InvestigatorID)
	}
	if site.CoordinatorID != "" {
		actors = append(actors, site.CoordinatorID)
	}
	return authz.Facts{SiteActors: actors}
}

// CreateSiteInput carries the fields needed to open a study site.
type CreateSiteInput struct {
	StudyID        string
	Name           string
	Address        string
	InvestigatorID string
	CoordinatorID  string
}

func (s *Service) CreateSite(ctx context.Context, actor *auth.Actor, in CreateSiteInput) (*StudySite, error) {
	if err := authz.Instance(actor, authz.EntityStudySite, authz.OpCreate, authz.Facts{}); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.StudyID) == "" {
		return nil, fmt.Errorf("%w: field study_id: required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: field name: required", ErrInvalidInput)
	}
	if _, err := s.store.FindStudy(ctx, in.StudyID); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	site := &StudySite{
		ID:             s.newID(),
		StudyID:        strings.TrimSpace(in.StudyID),
		Name:           strings.TrimSpace(in.Name),
		Address:        strings.TrimSpace(in.Address),
		InvestigatorID: strings.TrimSpace(in.InvestigatorID),
		CoordinatorID:  strings.TrimSpace(in.CoordinatorID),
		Status:         StudyActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateSite(ctx, site); err != nil {
		return nil, err
	}
	return site, nil
}

func (s *Service) UpdateSite(ctx context.Context, actor *auth.Actor, id string, upd StudySiteUpdate) (*StudySite, error) {
	site, err := s.store.FindSite(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Instance(actor, authz.EntityStudySite, authz.OpUpdate, s.siteFacts(site)); err != nil {
		return nil, err
	}
	return s.store.UpdateSite(ctx, id, upd)
}

// Participants lists enrolled participants visible to the actor, optionally
// filtered to one study.
func (s *Service) Participants(ctx context.Context, actor *auth.Actor, studyID string) ([]*Participant, error) {
	scope, err := authz.ScopeFor(actor, authz.EntityParticipant)
	if err != nil {
		return nil, err
	}
	return s.store.ListParticipants(ctx, scope, studyID)
}

func (s *Service) Participant(ctx context.Context, actor *auth.Actor, id string) (*Participant, error) {
	p, err := s.store.FindParticipant(ctx, id)
	if err != nil {
		return nil, err
	}
	facts, err := s.participantFacts(ctx, p)
	if err != nil {
		return nil, err
	}
	if err := authz.Instance(actor, authz.EntityParticipant, authz.OpGet, facts); err != nil {
		return nil, err
	}
	return p, nil
}

// EnrollInput carries the fields needed to enroll a participant at a site.
type EnrollInput struct {
	ParticipantID string
	SiteID        string
	FirstName     string
	LastName      string
	Email         string
	Phone         string
}

// Enroll registers a participant at a site. The caller must hold a create
// decision that reaches the site.
func (s *Service) Enroll(ctx context.Context, actor *auth.Actor, in EnrollInput) (*Participant, error) {
	if strings.TrimSpace(in.ParticipantID) == "" {
		return nil, fmt.Errorf("%w: field participant_id: required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.SiteID) == "" {
		return nil, fmt.Errorf("%w: field site_id: required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.FirstName) == "" || strings.TrimSpace(in.LastName) == "" {
		return nil, fmt.Errorf("%w: field first_name/last_name: required", ErrInvalidInput)
	}
	site, err := s.store.FindSite(ctx, in.SiteID)
	if err != nil {
		return nil, err
	}
	st, err := s.store.FindStudy(ctx, site.StudyID)
	if err != nil {
		return nil, err
	}
	facts := s.siteFacts(site)
	facts.SponsorID = st.SponsorID
	facts.SponsorName = st.SponsorName
	if err := authz.Instance(actor, authz.EntityParticipant, authz.OpCreate, facts); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	p := &Participant{
		ID:            s.newID(),
		ParticipantID: strings.TrimSpace(in.ParticipantID),
		StudyID:       site.StudyID,
		SiteID:        site.ID,
		FirstName:     strings.TrimSpace(in.FirstName),
		LastName:      strings.TrimSpace(in.LastName),
		Email:         strings.TrimSpace(strings.ToLower(in.Email)),
		Phone:         strings.TrimSpace(in.Phone),
		Status:        "enrolled",
		EnrolledAt:    &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateParticipant(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) UpdateParticipant(ctx context.Context, actor *auth.Actor, id string, upd ParticipantUpdate) (*Participant, error) {
	p, err := s.store.FindParticipant(ctx, id)
	if err != nil {
		return nil, err
	}
	facts, err := s.participantFacts(ctx, p)
	if err != nil {
		return nil, err
	}
	if err := authz.Instance(actor, authz.EntityParticipant, authz.OpUpdate, facts); err != nil {
		return nil, err
	}
	return s.store.UpdateParticipant(ctx, id, upd)
}

// Visits lists visits visible to the actor, optionally for one participant.
func (s *Service) Visits(ctx context.Context, actor *auth.Actor, participantID string) ([]*Visit, error) {
	scope, err := authz.ScopeFor(actor, authz.EntityVisit)
	if err != nil {
		return nil, err
	}
	return s.store.ListVisits(ctx, scope, participantID)
}

func (s *Service) Visit(ctx context.Context, actor *auth.Actor, id string) (*Visit, error) {
	v, err := s.store.FindVisit(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkParticipantRecord(ctx, actor, authz.EntityVisit, authz.OpGet, v.ParticipantID); err != nil {
		return nil, err
	}
	return v, nil
}

// ScheduleVisitInput carries the fields needed to schedule a visit.
type ScheduleVisitInput struct {
	ParticipantID string
	ScheduledDate time.Time
	Notes         string
}

func (s *Service) ScheduleVisit(ctx context.Context, actor *auth.Actor, in ScheduleVisitInput) (*Visit, error) {
	if strings.TrimSpace(in.ParticipantID) == "" {
		return nil, fmt.Errorf("%w: field participant_id: required", ErrInvalidInput)
	}
	if in.ScheduledDate.IsZero() {
		return nil, fmt.Errorf("%w: field scheduled_date: required", ErrInvalidInput)
	}
	if err := s.checkParticipantRecord(ctx, actor, authz.EntityVisit, authz.OpCreate, in.ParticipantID); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	v := &Visit{
		ID:            s.newID(),
		ParticipantID: strings.TrimSpace(in.ParticipantID),
		ScheduledDate: in.ScheduledDate.UTC(),
		Status:        "scheduled",
		Notes:         strings.TrimSpace(in.Notes),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateVisit(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Service) UpdateVisit(ctx context.Context, actor *auth.Actor, id string, upd VisitUpdate) (*Visit, error) {
	v, err := s.store.FindVisit(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkParticipantRecord(ctx, actor, authz.EntityVisit, authz.OpUpdate, v.ParticipantID); err != nil {
		return nil, err
	}
	return s.store.UpdateVisit(ctx, id, upd)
}

// AdverseEvents lists safety events visible to the actor.
func (s *Service) AdverseEvents(ctx context.Context, actor *auth.Actor, participantID string) ([]*AdverseEvent, error) {
	scope, err := authz.ScopeFor(actor, authz.EntityAdverseEvent)
	if err != nil {
		return nil, err
	}
	return s.store.ListAdverseEvents(ctx, scope, participantID)
}

func (s *Service) AdverseEvent(ctx context.Context, actor *auth.Actor, id string) (*AdverseEvent, error) {
	ev, err := s.store.FindAdverseEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkParticipantRecord(ctx, actor, authz.EntityAdverseEvent, authz.OpGet, ev.ParticipantID); err != nil {
		return nil, err
	}
	return ev, nil
}

// ReportAdverseEventInput carries the fields of a safety report.
type ReportAdverseEventInput struct {
	ParticipantID string
	Description   string
	Severity      string
	Serious       bool
	OnsetDate     *time.Time
}

func (s *Service) ReportAdverseEvent(ctx context.Context, actor *auth.Actor, in ReportAdverseEventInput) (*AdverseEvent, error) {
	if strings.TrimSpace(in.ParticipantID) == "" {
		return nil, fmt.Errorf("%w: field participant_id: required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Description) == "" {
		return nil, fmt.Errorf("%w: field description: required", ErrInvalidInput)
	}
	severity := strings.ToLower(strings.TrimSpace(in.Severity))
	switch severity {
	case SeverityMild, SeverityModerate, SeveritySevere:
	default:
		return nil, fmt.Errorf("%w: field severity: unsupported value %q", ErrInvalidInput, in.Severity)
	}
	if err := s.checkParticipantRecord(ctx, actor, authz.EntityAdverseEvent, authz.OpCreate, in.ParticipantID); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	ev := &AdverseEvent{
		ID:            s.newID(),
		ParticipantID: strings.TrimSpace(in.ParticipantID),
		Description:   strings.TrimSpace(in.Description),
		Severity:      severity,
		Serious:       in.Serious,
		ReportedBy:    actor.ID,
		OnsetDate:     in.OnsetDate,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateAdverseEvent(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// Documents lists study documents visible to the actor.
func (s *Service) Documents(ctx context.Context, actor *auth.Actor, studyID string) ([]*StudyDocument, error) {
	scope, err := authz.ScopeFor(actor, authz.EntityStudyDocument)
	if err != nil {
		return nil, err
	}
	return s.store.ListDocuments(ctx, scope, studyID)
}

func (s *Service) Document(ctx context.Context, actor *auth.Actor, id string) (*StudyDocument, error) {
	doc, err := s.store.FindDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkStudyRecord(ctx, actor, authz.EntityStudyDocument, authz.OpGet, doc.StudyID); err != nil {
		return nil, err
	}
	return doc, nil
}

// AddDocumentInput carries the fields of a document reference.
type AddDocumentInput struct {
	StudyID      string
	Title        string
	DocumentType string
	Version      string
	URI          string
}

func (s *Service) AddDocument(ctx context.Context, actor *auth.Actor, in AddDocumentInput) (*StudyDocument, error) {
	if strings.TrimSpace(in.StudyID) == "" {
		return nil, fmt.Errorf("%w: field study_id: required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("%w: field title: required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.URI) == "" {
		return nil, fmt.Errorf("%w: field uri: required", ErrInvalidInput)
	}
	if err := s.checkStudyRecord(ctx, actor, authz.EntityStudyDocument, authz.OpCreate, in.StudyID); err != nil {
		return nil, err
	}
	doc := &StudyDocument{
		ID:           s.newID(),
		StudyID:      strings.TrimSpace(in.StudyID),
		Title:        strings.TrimSpace(in.Title),
		DocumentType: strings.TrimSpace(in.DocumentType),
		Version:      strings.TrimSpace(in.Version),
		URI:          strings.TrimSpace(in.URI),
		UploadedBy:   actor.ID,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// checkParticipantRecord authorizes access to a record hanging off a
// participant: its facts are the participant's site roster plus the
// study's sponsor identity.
func (s *Service) checkParticipantRecord(ctx context.Context, actor *auth.Actor, entity authz.EntityType, op authz.Operation, participantID string) error {
	p, err := s.store.FindParticipant(ctx, participantID)
	if err != nil {
		return err
	}
	facts, err := s.participantFacts(ctx, p)
	if err != nil {
		return err
	}
	return authz.Instance(actor, entity, op, facts)
}

// checkStudyRecord authorizes access to a record hanging off a study.
func (s *Service) checkStudyRecord(ctx context.Context, actor *auth.Actor, entity authz.EntityType, op authz.Operation, studyID string) error {
	st, err := s.store.FindStudy(ctx, studyID)
	if err != nil {
		return err
	}
	facts, err := s.studyFacts(ctx, st)
	if err != nil {
		return err
	}
	return authz.Instance(actor, entity, op, facts)
}
