package sponsors

import (
	"context"
	"fmt"
	"strings"
	"time"

	"biovault.org/internal/auth"
	"biovault.org/internal/authz"
)

// Store describes persistence operations for the sponsor and researcher
// portal.
type Store interface {
	CreateSponsorProfile(ctx context.Context, p *SponsorProfile) error
	FindSponsorProfile(ctx context.Context, id string) (*SponsorProfile, error)
	FindSponsorProfileByActor(ctx context.Context, actorID string) (*SponsorProfile, error)
	ListSponsorProfiles(ctx context.Context, scope authz.Scope) ([]*SponsorProfile, error)
	UpdateSponsorProfile(ctx context.Context, id string, upd SponsorProfileUpdate) (*SponsorProfile, error)

	CreateResearcherProfile(ctx context.Context, p *ResearcherProfile) error
	FindResearcherProfile(ctx context.Context, id string) (*ResearcherProfile, error)
	ListResearcherProfiles(ctx context.Context, scope authz.Scope) ([]*ResearcherProfile, error)
	UpdateResearcherProfile(ctx context.Context, id string, upd ResearcherProfileUpdate) (*ResearcherProfile, error)

	CreateDraft(ctx context.Context, d *ProtocolDraft) error
	FindDraft(ctx context.Context, id string) (*ProtocolDraft, error)
	ListDrafts(ctx context.Context, scope authz.Scope) ([]*ProtocolDraft, error)
	UpdateDraft(ctx context.Context, id string, upd ProtocolDraftUpdate) (*ProtocolDraft, error)

	CreateSampleRequest(ctx context.Context, r *CustomSampleRequest) error
	FindSampleRequest(ctx context.Context, id string) (*CustomSampleRequest, error)
	ListSampleRequests(ctx context.Context, scope authz.Scope) ([]*CustomSampleRequest, error)
	UpdateSampleRequest(ctx context.Context, id string, upd SampleRequestUpdate) (*CustomSampleRequest, error)
}

// Service implements portal operations. Everything here is owner-scoped:
// sponsors see their profiles and drafts, researchers their profiles and
// sample requests, staff everything.
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

func ownerFacts(actorID string) authz.Facts {
	return authz.Facts{OwnerID: actorID}
}

// SponsorProfiles lists the profiles visible to the actor.
func (s *Service) SponsorProfiles(ctx context.Context, actor *auth.Actor) ([]*SponsorProfile, error) {
	scope, err := authz.ScopeFor(actor, authz.EntitySponsorProfile)
	if err != nil {
		return nil, err
	}
	return s.store.ListSponsorProfiles(ctx, scope)
}

func (s *Service) SponsorProfile(ctx context.Context, actor *auth.Actor, id string) (*SponsorProfile, error) {
	p, err := s.store.FindSponsorProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Instance(actor, authz.EntitySponsorProfile, authz.OpGet, ownerFacts(p.ActorID)); err != nil {
		return nil, err
	}
	return p, nil
}

// SponsorProfileInput carries the organization fields.
type SponsorProfileInput struct {
	Organization string
	ContactEmail string
	ContactPhone string
	Address      string
}

// CreateSponsorProfile creates the calling sponsor's profile. One profile
// per account; a second create surfaces the store's conflict.
func (s *Service) CreateSponsorProfile(ctx context.Context, actor *auth.Actor, in SponsorProfileInput) (*SponsorProfile, error) {
	if actor == nil {
		return nil, authz.ErrUnauthenticated
	}
	if err := authz.Instance(actor, authz.EntitySponsorProfile, authz.OpCreate, ownerFacts(actor.ID)); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Organization) == "" {
		return nil, fmt.Errorf("%w: field organization: required", ErrInvalidInput)
	}
	now := s.now().UTC()
	p := &SponsorProfile{
		ID:           s.newID(),
		ActorID:      actor.ID,
		Organization: strings.TrimSpace(in.Organization),
		ContactEmail: strings.TrimSpace(strings.ToLower(in.ContactEmail)),
		ContactPhone: strings.TrimSpace(in.ContactPhone),
		Address:      strings.TrimSpace(in.Address),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateSponsorProfile(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) UpdateSponsorProfile(ctx context.Context, actor *auth.Actor, id string, upd SponsorProfileUpdate) (*SponsorProfile, error) {
	p, err := s.store.FindSponsorProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Instance(actor, authz.EntitySponsorProfile, authz.OpUpdate, ownerFacts(p.ActorID)); err != nil {
		return nil, err
	}
	return s.store.UpdateSponsorProfile(ctx, id, upd)
}

// ResearcherProfiles lists the profiles visible to the actor.
func (s *Service) ResearcherProfiles(ctx context.Context, actor *auth.Actor) ([]*ResearcherProfile, error) {
	scope, err := authz.ScopeFor(actor, authz.EntityResearcherProfile)
	if err != nil {
		return nil, err
	}
	return s.store.ListResearcherProfiles(ctx, scope)
}

func (s *Service) ResearcherProfile(ctx context.Context, actor *auth.Actor, id string) (*ResearcherProfile, error) {
	p, err := s.store.FindResearcherProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Instance(actor, authz.EntityResearcherProfile, authz.OpGet, ownerFacts(p.ActorID)); err != nil {
		return nil, err
	}
	return p, nil
}

// ResearcherProfileInput carries the institutional fields.
type ResearcherProfileInput struct {
	Institution string
	Department  string
	ORCID       string
}

func (s *Service) CreateResearcherProfile(ctx context.Context, actor *auth.Actor, in ResearcherProfileInput) (*ResearcherProfile, error) {
	if actor == nil {
		return nil, authz.ErrUnauthenticated
	}
	if err := authz.Instance(actor, authz.EntityResearcherProfile, authz.OpCreate, ownerFacts(actor.ID)); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Institution) == "" {
		return nil, fmt.Errorf("%w: field institution: required", ErrInvalidInput)
	}
	now := s.now().UTC()
	p := &ResearcherProfile{
		ID:          s.newID(),
		ActorID:     actor.ID,
		Institution: strings.TrimSpace(in.Institution),
		Department:  strings.TrimSpace(in.Department),
		ORCID:       strings.TrimSpace(in.ORCID),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateResearcherProfile(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) UpdateResearcherProfile(ctx context.Context, actor *auth.Actor, id string, upd ResearcherProfileUpdate) (*ResearcherProfile, error) {
	p, err := s.store.FindResearcherProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Instance(actor, authz.EntityResearcherProfile, authz.OpUpdate, ownerFacts(p.ActorID)); err != nil {
		return nil, err
	}
	return s.store.UpdateResearcherProfile(ctx, id, upd)
}

// Drafts lists protocol drafts visible to the actor.
func (s *Service) Drafts(ctx context.Context, actor *auth.Actor) ([]*ProtocolDraft, error) {
	scope, err := authz.ScopeFor(actor, authz.EntityProtocolDraft)
	if err != nil {
		return nil, err
	}
	return s.store.ListDrafts(ctx, scope)
}

func (s *Service) Draft(ctx context.Context, actor *auth.Actor, id string) (*ProtocolDraft, error) {
	d, err := s.store.FindDraft(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Instance(actor, authz.EntityProtocolDraft, authz.OpGet, ownerFacts(d.ActorID)); err != nil {
		return nil, err
	}
	return d, nil
}

// DraftInput carries the protocol draft fields.
type DraftInput struct {
	Title   string
	Summary string
	Body    string
}

func (s *Service) CreateDraft(ctx context.Context, actor *auth.Actor, in DraftInput) (*ProtocolDraft, error) {
	if actor == nil {
		return nil, authz.ErrUnauthenticated
	}
	if err := authz.Instance(actor, authz.EntityProtocolDraft, authz.OpCreate, ownerFacts(actor.ID)); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("%w: field title: required", ErrInvalidInput)
	}
	now := s.now().UTC()
	d := &ProtocolDraft{
		ID:        s.newID(),
		ActorID:   actor.ID,
		Title:     strings.TrimSpace(in.Title),
		Summary:   strings.TrimSpace(in.Summary),
		Body:      in.Body,
		Status:    DraftInProgress,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateDraft(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) UpdateDraft(ctx context.Context, actor *auth.Actor, id string, upd ProtocolDraftUpdate) (*ProtocolDraft, error) {
	d, err := s.store.FindDraft(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Instance(actor, authz.EntityProtocolDraft, authz.OpUpdate, ownerFacts(d.ActorID)); err != nil {
		return nil, err
	}
	if upd.Status != nil {
		status := strings.ToLower(strings.TrimSpace(*upd.Status))
		switch status {
		case DraftInProgress, DraftSubmitted, DraftApproved, DraftRejected:
		default:
			return nil, fmt.Errorf("%w: field status: unsupported value %q", ErrInvalidInput, *upd.Status)
		}
		// Approval and rejection are review outcomes, not self-service.
		if (status == DraftApproved || status == DraftRejected) && !actor.Escalated() {
			return nil, &authz.PermissionError{Entity: authz.EntityProtocolDraft, Op: authz.OpUpdate}
		}
		upd.Status = &status
	}
	return s.store.UpdateDraft(ctx, id, upd)
}

// SampleRequests lists custom sample requests visible to the actor.
func (s *Service) SampleRequests(ctx context.Context, actor *auth.Actor) ([]*CustomSampleRequest, error) {
	scope, err := authz.ScopeFor(actor, authz.EntitySampleRequest)
	if err != nil {
		return nil, err
	}
	return s.store.ListSampleRequests(ctx, scope)
}

func (s *Service) SampleRequest(ctx context.Context, actor *auth.Actor, id string) (*CustomSampleRequest, error) {
	r, err := s.store.FindSampleRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Instance(actor, authz.EntitySampleRequest, authz.OpGet, ownerFacts(r.ActorID)); err != nil {
		return nil, err
	}
	return r, nil
}

// SampleRequestInput carries the request fields.
type SampleRequestInput struct {
	SampleTypeID  string
	Quantity      int
	Criteria      string
	Justification string
}

func (s *Service) CreateSampleRequest(ctx context.Context, actor *auth.Actor, in SampleRequestInput) (*CustomSampleRequest, error) {
	if actor == nil {
		return nil, authz.ErrUnauthenticated
	}
	if err := authz.Instance(actor, authz.EntitySampleRequest, authz.OpCreate, ownerFacts(actor.ID)); err != nil {
		return nil, err
	}
	if in.Quantity <= 0 {
		return nil, fmt.Errorf("%w: field quantity: must be positive", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Criteria) == "" {
		return nil, fmt.Errorf("%w: field criteria: required", ErrInvalidInput)
	}
	now := s.now().UTC()
	r := &CustomSampleRequest{
		ID:            s.newID(),
		ActorID:       actor.ID,
		SampleTypeID:  strings.TrimSpace(in.SampleTypeID),
		Quantity:      in.Quantity,
		Criteria:      strings.TrimSpace(in.Criteria),
		Justification: strings.TrimSpace(in.Justification),
		Status:        RequestPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateSampleRequest(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) UpdateSampleRequest(ctx context.Context, actor *auth.Actor, id string, upd SampleRequestUpdate) (*CustomSampleRequest, error) {
	r, err := s.store.FindSampleRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Instance(actor, authz.EntitySampleRequest, authz.OpUpdate, ownerFacts(r.ActorID)); err != nil {
		return nil, err
	}
	if upd.Status != nil {
		status := strings.ToLower(strings.TrimSpace(*upd.Status))
		switch status {
		case RequestPending, RequestReviewing, RequestApproved, RequestDeclined, RequestFulfilled:
		default:
			return nil, fmt.Errorf("%w: field status: unsupported value %q", ErrInvalidInput, *upd.Status)
		}
		// Only reviewers move a request past pending.
		if status != RequestPending && !actor.Escalated() {
			return nil, &authz.PermissionError{Entity: authz.EntitySampleRequest, Op: authz.OpUpdate}
		}
		upd.Status = &status
	}
	return s.store.UpdateSampleRequest(ctx, id, upd)
}
