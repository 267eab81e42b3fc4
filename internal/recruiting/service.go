package recruiting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"biovault.org/internal/auth"
	"biovault.org/internal/authz"
)

// Store describes persistence operations for the recruiting pipeline.
type Store interface {
	CreateProspect(ctx context.Context, p *Prospect) error
	FindProspect(ctx context.Context, id string) (*Prospect, error)
	ListProspects(ctx context.Context, scope authz.Scope, status string) ([]*Prospect, error)
	UpdateProspect(ctx context.Context, id string, upd ProspectUpdate) (*Prospect, error)

	CreateContactLog(ctx context.Context, cl *ContactLog) error
	ListContactLogs(ctx context.Context, scope authz.Scope, prospectID string) ([]*ContactLog, error)

	CreateReferral(ctx context.Context, r *Referral) error
	FindReferral(ctx context.Context, id string) (*Referral, error)
	ListReferrals(ctx context.Context, scope authz.Scope, prospectID string) ([]*Referral, error)
	UpdateReferral(ctx context.Context, id string, upd ReferralUpdate) (*Referral, error)
}

// Service implements recruiting operations. The whole pipeline is a
// back-office surface: recruiters and staff see everything, nobody else
// sees anything.
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

// Prospects lists prospects, optionally filtered by pipeline status.
func (s *Service) Prospects(ctx context.Context, actor *auth.Actor, status string) ([]*Prospect, error) {
	scope, err := authz.ScopeFor(actor, authz.EntityProspect)
	if err != nil {
		return nil, err
	}
	return s.store.ListProspects(ctx, scope, strings.ToLower(strings.TrimSpace(status)))
}

func (s *Service) Prospect(ctx context.Context, actor *auth.Actor, id string) (*Prospect, error) {
	p, err := s.store.FindProspect(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Instance(actor, authz.EntityProspect, authz.OpGet, authz.Facts{}); err != nil {
		return nil, err
	}
	return p, nil
}

// AddProspectInput carries the intake fields.
type AddProspectInput struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Source    string
	Notes     string
}

func (s *Service) AddProspect(ctx context.Context, actor *auth.Actor, in AddProspectInput) (*Prospect, error) {
	if err := authz.Instance(actor, authz.EntityProspect, authz.OpCreate, authz.Facts{}); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.FirstName) == "" || strings.TrimSpace(in.LastName) == "" {
		return nil, fmt.Errorf("%w: field first_name/last_name: required", ErrInvalidInput)
	}
	now := s.now().UTC()
	p := &Prospect{
		ID:        s.newID(),
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Email:     strings.TrimSpace(strings.ToLower(in.Email)),
		Phone:     strings.TrimSpace(in.Phone),
		Source:    strings.TrimSpace(in.Source),
		Status:    ProspectNew,
		Notes:     strings.TrimSpace(in.Notes),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateProspect(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) UpdateProspect(ctx context.Context, actor *auth.Actor, id string, upd ProspectUpdate) (*Prospect, error) {
	if _, err := s.store.FindProspect(ctx, id); err != nil {
		return nil, err
	}
	if err := authz.Instance(actor, authz.EntityProspect, authz.OpUpdate, authz.Facts{}); err != nil {
		return nil, err
	}
	if upd.Status != nil {
		status := strings.ToLower(strings.TrimSpace(*upd.Status))
		switch status {
		case ProspectNew, ProspectContacted, ProspectScreening, ProspectQualified, ProspectConverted, ProspectDisengaged:
		default:
			return nil, fmt.Errorf("%w: field status: unsupported value %q", ErrInvalidInput, *upd.Status)
		}
		upd.Status = &status
	}
	return s.store.UpdateProspect(ctx, id, upd)
}

// ContactLogs lists outreach attempts, optionally for one prospect.
func (s *Service) ContactLogs(ctx context.Context, actor *auth.Actor, prospectID string) ([]*ContactLog, error) {
	scope, err := authz.ScopeFor(actor, authz.EntityContactLog)
	if err != nil {
		return nil, err
	}
	return s.store.ListContactLogs(ctx, scope, prospectID)
}

// LogContactInput carries the outreach fields.
type LogContactInput struct {
	ProspectID string
	Method     string
	Outcome    string
	Notes      string
}

// LogContact records an outreach attempt and advances a fresh prospect to
// the contacted status.
func (s *Service) LogContact(ctx context.Context, actor *auth.Actor, in LogContactInput) (*ContactLog, error) {
	if err := authz.Instance(actor, authz.EntityContactLog, authz.OpCreate, authz.Facts{}); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.ProspectID) == "" {
		return nil, fmt.Errorf("%w: field prospect_id: required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Method) == "" {
		return nil, fmt.Errorf("%w: field method: required", ErrInvalidInput)
	}
	p, err := s.store.FindProspect(ctx, in.ProspectID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	cl := &ContactLog{
		ID:          s.newID(),
		ProspectID:  p.ID,
		Method:      strings.ToLower(strings.TrimSpace(in.Method)),
		Outcome:     strings.TrimSpace(in.Outcome),
		Notes:       strings.TrimSpace(in.Notes),
		ContactedBy: actor.ID,
		ContactedAt: now,
		CreatedAt:   now,
	}
	if err := s.store.CreateContactLog(ctx, cl); err != nil {
		return nil, err
	}
	if p.Status == ProspectNew {
		status := ProspectContacted
		if _, err := s.store.UpdateProspect(ctx, p.ID, ProspectUpdate{Status: &status}); err != nil {
			return nil, err
		}
	}
	return cl, nil
}

// Referrals lists referral records, optionally for one prospect.
func (s *Service) Referrals(ctx context.Context, actor *auth.Actor, prospectID string) ([]*Referral, error) {
	scope, err := authz.ScopeFor(actor, authz.EntityReferral)
	if err != nil {
		return nil, err
	}
	return s.store.ListReferrals(ctx, scope, prospectID)
}

// AddReferralInput carries the referral fields.
type AddReferralInput struct {
	ProspectID     string
	ReferringDonor string
}

func (s *Service) AddReferral(ctx context.Context, actor *auth.Actor, in AddReferralInput) (*Referral, error) {
	if err := authz.Instance(actor, authz.EntityReferral, authz.OpCreate, authz.Facts{}); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.ProspectID) == "" {
		return nil, fmt.Errorf("%w: field prospect_id: required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.ReferringDonor) == "" {
		return nil, fmt.Errorf("%w: field referring_donor: required", ErrInvalidInput)
	}
	if _, err := s.store.FindProspect(ctx, in.ProspectID); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	r := &Referral{
		ID:             s.newID(),
		ProspectID:     strings.TrimSpace(in.ProspectID),
		ReferringDonor: strings.TrimSpace(in.ReferringDonor),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateReferral(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) UpdateReferral(ctx context.Context, actor *auth.Actor, id string, upd ReferralUpdate) (*Referral, error) {
	if _, err := s.store.FindReferral(ctx, id); err != nil {
		return nil, err
	}
	if err := authz.Instance(actor, authz.EntityReferral, authz.OpUpdate, authz.Facts{}); err != nil {
		return nil, err
	}
	return s.store.UpdateReferral(ctx, id, upd)
}
