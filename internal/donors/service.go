package donors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"biovault.org/internal/auth"
	"biovault.org/internal/authz"
	"biovault.org/internal/ids"
)

// Store describes persistence operations for the donor registry. List
// methods take an authz.Scope and translate it into row filtering.
type Store interface {
	CreateDonor(ctx context.Context, d *Donor) error
	FindDonor(ctx context.Context, id string) (*Donor, error)
	FindDonorByActor(ctx context.Context, actorID string) (*Donor, error)
	ListDonors(ctx context.Context, scope authz.Scope) ([]*Donor, error)
	// UpdateDonor writes the optional field changes plus the derived BMI,
	// which is recomputed by the service on every donor write.
	UpdateDonor(ctx context.Context, id string, upd DonorUpdate, bmi *float64) (*Donor, error)

	UpsertHistory(ctx context.Context, h *MedicalHistory) error
	FindHistoryByDonor(ctx context.Context, donorID string) (*MedicalHistory, error)

	CreateDonationType(ctx context.Context, dt *DonationType) error
	FindDonationType(ctx context.Context, id string) (*DonationType, error)
	ListDonationTypes(ctx context.Context) ([]*DonationType, error)

	CreateAppointment(ctx context.Context, ap *DonationAppointment) error
	FindAppointment(ctx context.Context, id string) (*DonationAppointment, error)
	ListAppointments(ctx context.Context, scope authz.Scope, donorID string) ([]*DonationAppointment, error)
	UpdateAppointment(ctx context.Context, id string, upd AppointmentUpdate) (*DonationAppointment, error)

	CreateDonation(ctx context.Context, d *Donation) error
	FindDonation(ctx context.Context, id string) (*Donation, error)
	ListDonations(ctx context.Context, scope authz.Scope, donorID string) ([]*Donation, error)

	CreateSampleType(ctx context.Context, st *SampleType) error
	FindSampleType(ctx context.Context, id string) (*SampleType, error)
	ListSampleTypes(ctx context.Context) ([]*SampleType, error)

	CreateSample(ctx context.Context, sm *Sample) error
	FindSample(ctx context.Context, id string) (*Sample, error)
	ListSamples(ctx context.Context, scope authz.Scope, donationID string) ([]*Sample, error)
	UpdateSample(ctx context.Context, id string, upd SampleUpdate) (*Sample, error)
}

// numberAttempts bounds the retry loop when a generated business number
// collides with an existing row.
const numberAttempts = 3

// Service implements donor registry operations. Row visibility comes from
// internal/authz; business numbers come from internal/ids with a bounded
// retry on unique-constraint collisions.
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

func donorFacts(d *Donor) authz.Facts {
	return authz.Facts{OwnerID: d.ActorID}
}

// Donors lists the donors visible to the actor.
func (s *Service) Donors(ctx context.Context, actor *auth.Actor) ([]*Donor, error) {
	scope, err := authz.ScopeFor(actor, authz.EntityDonor)
	if err != nil {
		return nil, err
	}
	return s.store.ListDonors(ctx, scope)
}

// Donor loads one donor and checks the actor's access to it.
func (s *Service) Donor(ctx context.Context, actor *auth.Actor, id string) (*Donor, error) {
	d, err := s.store.FindDonor(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Instance(actor, authz.EntityDonor, authz.OpGet, donorFacts(d)); err != nil {
		return nil, err
	}
	return d, nil
}

// DonorForActor loads the donor record linked to the calling account.
func (s *Service) DonorForActor(ctx context.Context, actor *auth.Actor) (*Donor, error) {
	if actor == nil {
		return nil, authz.ErrUnauthenticated
	}
	d, err := s.store.FindDonorByActor(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if err := authz.Instance(actor, authz.EntityDonor, authz.OpGet, donorFacts(d)); err != nil {
		return nil, err
	}
	return d, nil
}

// RegisterDonorInput carries the fields needed to register a donor.
type RegisterDonorInput struct {
	ActorID     string
	FirstName   string
	LastName    string
	DateOfBirth *time.Time
	BloodType   string
	HLAType     string
	HeightCm    *float64
	WeightKg    *float64
}

// RegisterDonor creates a donor record with a fresh DN number. BMI is
// derived from height and weight at write time.
func (s *Service) RegisterDonor(ctx context.Context, actor *auth.Actor, in RegisterDonorInput) (*Donor, error) {
	if err := authz.Instance(actor, authz.EntityDonor, authz.OpCreate, authz.Facts{}); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.FirstName) == "" || strings.TrimSpace(in.LastName) == "" {
		return nil, fmt.Errorf("%w: field first_name/last_name: required", ErrInvalidInput)
	}
	now := s.now().UTC()
	d := &Donor{
		ID:          s.newID(),
		ActorID:     strings.TrimSpace(in.ActorID),
		FirstName:   strings.TrimSpace(in.FirstName),
		LastName:    strings.TrimSpace(in.LastName),
		DateOfBirth: in.DateOfBirth,
		BloodType:   strings.TrimSpace(in.BloodType),
		HLAType:     strings.TrimSpace(in.HLAType),
		HeightCm:    in.HeightCm,
		WeightKg:    in.WeightKg,
		BMI:         ComputeBMI(in.HeightCm, in.WeightKg),
		Status:      DonorActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	var err error
	for i := 0; i < numberAttempts; i++ {
		d.DonorID = ids.DonorID()
		if err = s.store.CreateDonor(ctx, d); !errors.Is(err, ErrConflict) {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// UpdateDonor applies optional field changes and recomputes BMI from the
// resulting height and weight.
func (s *Service) UpdateDonor(ctx context.Context, actor *auth.Actor, id string, upd DonorUpdate) (*Donor, error) {
	d, err := s.store.FindDonor(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Instance(actor, authz.EntityDonor, authz.OpUpdate, donorFacts(d)); err != nil {
		return nil, err
	}
	if upd.Status != nil {
		status := strings.ToLower(strings.TrimSpace(*upd.Status))
		switch status {
		case DonorActive, DonorDeferred, DonorInactive, DonorDisallowed:
		default:
			return nil, fmt.Errorf("%w: field status: unsupported value %q", ErrInvalidInput, *upd.Status)
		}
		upd.Status = &status
	}
	height := d.HeightCm
	if upd.HeightCm != nil {
		height = upd.HeightCm
	}
	weight := d.WeightKg
	if upd.WeightKg != nil {
		weight = upd.WeightKg
	}
	return s.store.UpdateDonor(ctx, id, upd, ComputeBMI(height, weight))
}

// History loads the donor's one-to-one medical history.
func (s *Service) History(ctx context.Context, actor *auth.Actor, donorID string) (*MedicalHistory, error) {
	d, err := s.store.FindDonor(ctx, donorID)
	if err != nil {
		return nil, err
	}
	if err := authz.Instance(actor, authz.EntityMedicalHistory, authz.OpGet, donorFacts(d)); err != nil {
		return nil, err
	}
	return s.store.FindHistoryByDonor(ctx, d.ID)
}

// HistoryInput carries the reviewable health record fields.
type HistoryInput struct {
	Conditions    string
	Medications   string
	Allergies     string
	SurgicalNotes string
}

// RecordHistory creates or replaces the donor's medical history.
func (s *Service) RecordHistory(ctx context.Context, actor *auth.Actor, donorID string, in HistoryInput) (*MedicalHistory, error) {
	d, err := s.store.FindDonor(ctx, donorID)
	if err != nil {
		return nil, err
	}
	op := authz.OpCreate
	existing, err := s.store.FindHistoryByDonor(ctx, d.ID)
	switch {
	case err == nil:
		op = authz.OpUpdate
	case errors.Is(err, ErrNotFound):
	default:
		return nil, err
	}
	if err := authz.Instance(actor, authz.EntityMedicalHistory, op, donorFacts(d)); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	h := &MedicalHistory{
		ID:             s.newID(),
		DonorID:        d.ID,
		Conditions:     strings.TrimSpace(in.Conditions),
		Medications:    strings.TrimSpace(in.Medications),
		Allergies:      strings.TrimSpace(in.Allergies),
		SurgicalNotes:  strings.TrimSpace(in.SurgicalNotes),
		LastReviewedAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if existing != nil {
		h.ID = existing.ID
		h.CreatedAt = existing.CreatedAt
	}
	if err := s.store.UpsertHistory(ctx, h); err != nil {
		return nil, err
	}
	return h, nil
}

// DonationTypes lists the donation type catalog.
func (s *Service) DonationTypes(ctx context.Context, actor *auth.Actor) ([]*DonationType, error) {
	if _, err := authz.ScopeFor(actor, authz.EntityDonationType); err != nil {
		return nil, err
	}
	return s.store.ListDonationTypes(ctx)
}

// CreateDonationTypeInput carries the reference-data fields.
type CreateDonationTypeInput struct {
	Name            string
	Description     string
	MinIntervalDays int
}

func (s *Service) CreateDonationType(ctx context.Context, actor *auth.Actor, in CreateDonationTypeInput) (*DonationType, error) {
	if err := authz.Instance(actor, authz.EntityDonationType, authz.OpCreate, authz.Facts{}); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: field name: required", ErrInvalidInput)
	}
	if in.MinIntervalDays < 0 {
		return nil, fmt.Errorf("%w: field min_interval_days: must not be negative", ErrInvalidInput)
	}
	dt := &DonationType{
		ID:              s.newID(),
		Name:            strings.TrimSpace(in.Name),
		Description:     strings.TrimSpace(in.Description),
		MinIntervalDays: in.MinIntervalDays,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.store.CreateDonationType(ctx, dt); err != nil {
		return nil, err
	}
	return dt, nil
}

// Appointments lists appointments visible to the actor, optionally for
// one donor.
func (s *Service) Appointments(ctx context.Context, actor *auth.Actor, donorID string) ([]*DonationAppointment, error) {
	scope, err := authz.ScopeFor(actor, authz.EntityAppointment)
	if err != nil {
		return nil, err
	}
	return s.store.ListAppointments(ctx, scope, donorID)
}

func (s *Service) Appointment(ctx context.Context, actor *auth.Actor, id string) (*DonationAppointment, error) {
	ap, err := s.store.FindAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkDonorRecord(ctx, actor, authz.EntityAppointment, authz.OpGet, ap.DonorID); err != nil {
		return nil, err
	}
	return ap, nil
}

// BookAppointmentInput carries the booking fields.
type BookAppointmentInput struct {
	DonorID        string
	DonationTypeID string
	ScheduledAt    time.Time
	Location       string
	Notes          string
}

// BookAppointment schedules a donation. Donors book for themselves;
// recruiters and staff book for anyone.
func (s *Service) BookAppointment(ctx context.Context, actor *auth.Actor, in BookAppointmentInput) (*DonationAppointment, error) {
	if strings.TrimSpace(in.DonorID) == "" {
		return nil, fmt.Errorf("%w: field donor_id: required", ErrInvalidInput)
	}
	if in.ScheduledAt.IsZero() {
		return nil, fmt.Errorf("%w: field scheduled_at: required", ErrInvalidInput)
	}
	d, err := s.store.FindDonor(ctx, in.DonorID)
	if err != nil {
		return nil, err
	}
	if err := authz.Instance(actor, authz.EntityAppointment, authz.OpCreate, donorFacts(d)); err != nil {
		return nil, err
	}
	if _, err := s.store.FindDonationType(ctx, in.DonationTypeID); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	ap := &DonationAppointment{
		ID:             s.newID(),
		DonorID:        d.ID,
		DonationTypeID: in.DonationTypeID,
		ScheduledAt:    in.ScheduledAt.UTC(),
		Location:       strings.TrimSpace(in.Location),
		Status:         AppointmentScheduled,
		Notes:          strings.TrimSpace(in.Notes),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateAppointment(ctx, ap); err != nil {
		return nil, err
	}
	return ap, nil
}

func (s *Service) UpdateAppointment(ctx context.Context, actor *auth.Actor, id string, upd AppointmentUpdate) (*DonationAppointment, error) {
	ap, err := s.store.FindAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkDonorRecord(ctx, actor, authz.EntityAppointment, authz.OpUpdate, ap.DonorID); err != nil {
		return nil, err
	}
	if upd.Status != nil {
		status := strings.ToLower(strings.TrimSpace(*upd.Status))
		switch status {
		case AppointmentScheduled, AppointmentCompleted, AppointmentCancelled, AppointmentNoShow:
		default:
			return nil, fmt.Errorf("%w: field status: unsupported value %q", ErrInvalidInput, *upd.Status)
		}
		upd.Status = &status
	}
	return s.store.UpdateAppointment(ctx, id, upd)
}

// Donations lists donations visible to the actor, optionally for one donor.
func (s *Service) Donations(ctx context.Context, actor *auth.Actor, donorID string) ([]*Donation, error) {
	scope, err := authz.ScopeFor(actor, authz.EntityDonation)
	if err != nil {
		return nil, err
	}
	return s.store.ListDonations(ctx, scope, donorID)
}

func (s *Service) Donation(ctx context.Context, actor *auth.Actor, id string) (*Donation, error) {
	dn, err := s.store.FindDonation(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkDonorRecord(ctx, actor, authz.EntityDonation, authz.OpGet, dn.DonorID); err != nil {
		return nil, err
	}
	return dn, nil
}

// RecordDonationInput carries the collection fields.
type RecordDonationInput struct {
	DonorID       string
	AppointmentID string
	TypeID        string
	VolumeML      int
	CollectedAt   time.Time
}

// RecordDonation registers a completed collection and, when linked to an
// appointment, marks it completed.
func (s *Service) RecordDonation(ctx context.Context, actor *auth.Actor, in RecordDonationInput) (*Donation, error) {
	if strings.TrimSpace(in.DonorID) == "" {
		return nil, fmt.Errorf("%w: field donor_id: required", ErrInvalidInput)
	}
	if in.VolumeML <= 0 {
		return nil, fmt.Errorf("%w: field volume_ml: must be positive", ErrInvalidInput)
	}
	d, err := s.store.FindDonor(ctx, in.DonorID)
	if err != nil {
		return nil, err
	}
	if err := authz.Instance(actor, authz.EntityDonation, authz.OpCreate, donorFacts(d)); err != nil {
		return nil, err
	}
	collected := in.CollectedAt
	if collected.IsZero() {
		collected = s.now()
	}
	dn := &Donation{
		ID:            s.newID(),
		DonorID:       d.ID,
		AppointmentID: strings.TrimSpace(in.AppointmentID),
		TypeID:        strings.TrimSpace(in.TypeID),
		VolumeML:      in.VolumeML,
		CollectedAt:   collected.UTC(),
		CreatedAt:     s.now().UTC(),
	}
	for i := 0; i < numberAttempts; i++ {
		dn.DonationID = ids.DonationID()
		if err = s.store.CreateDonation(ctx, dn); !errors.Is(err, ErrConflict) {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	if dn.AppointmentID != "" {
		status := AppointmentCompleted
		if _, err := s.store.UpdateAppointment(ctx, dn.AppointmentID, AppointmentUpdate{Status: &status}); err != nil {
			return nil, err
		}
	}
	return dn, nil
}

// SampleTypes lists the sample type catalog.
func (s *Service) SampleTypes(ctx context.Context, actor *auth.Actor) ([]*SampleType, error) {
	if _, err := authz.ScopeFor(actor, authz.EntitySampleType); err != nil {
		return nil, err
	}
	return s.store.ListSampleTypes(ctx)
}

// CreateSampleTypeInput carries the reference-data fields.
type CreateSampleTypeInput struct {
	Name        string
	Description string
}

func (s *Service) CreateSampleType(ctx context.Context, actor *auth.Actor, in CreateSampleTypeInput) (*SampleType, error) {
	if err := authz.Instance(actor, authz.EntitySampleType, authz.OpCreate, authz.Facts{}); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: field name: required", ErrInvalidInput)
	}
	st := &SampleType{
		ID:          s.newID(),
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.CreateSampleType(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

// Samples lists samples visible to the actor, optionally for one donation.
func (s *Service) Samples(ctx context.Context, actor *auth.Actor, donationID string) ([]*Sample, error) {
	scope, err := authz.ScopeFor(actor, authz.EntitySample)
	if err != nil {
		return nil, err
	}
	return s.store.ListSamples(ctx, scope, donationID)
}

func (s *Service) Sample(ctx context.Context, actor *auth.Actor, id string) (*Sample, error) {
	sm, err := s.store.FindSample(ctx, id)
	if err != nil {
		return nil, err
	}
	dn, err := s.store.FindDonation(ctx, sm.DonationID)
	if err != nil {
		return nil, err
	}
	if err := s.checkDonorRecord(ctx, actor, authz.EntitySample, authz.OpGet, dn.DonorID); err != nil {
		return nil, err
	}
	return sm, nil
}

// RegisterSampleInput carries the aliquot fields.
type RegisterSampleInput struct {
	DonationID   string
	SampleTypeID string
	VolumeML     float64
	StorageRef   string
	ExpiresAt    *time.Time
}

// RegisterSample creates an aliquot with fresh SM and BC numbers.
func (s *Service) RegisterSample(ctx context.Context, actor *auth.Actor, in RegisterSampleInput) (*Sample, error) {
	if err := authz.Instance(actor, authz.EntitySample, authz.OpCreate, authz.Facts{}); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.DonationID) == "" {
		return nil, fmt.Errorf("%w: field donation_id: required", ErrInvalidInput)
	}
	if in.VolumeML <= 0 {
		return nil, fmt.Errorf("%w: field volume_ml: must be positive", ErrInvalidInput)
	}
	if _, err := s.store.FindDonation(ctx, in.DonationID); err != nil {
		return nil, err
	}
	if _, err := s.store.FindSampleType(ctx, in.SampleTypeID); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	sm := &Sample{
		ID:           s.newID(),
		DonationID:   strings.TrimSpace(in.DonationID),
		SampleTypeID: in.SampleTypeID,
		VolumeML:     in.VolumeML,
		Status:       SampleAvailable,
		StorageRef:   strings.TrimSpace(in.StorageRef),
		ExpiresAt:    in.ExpiresAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	var err error
	for i := 0; i < numberAttempts; i++ {
		sm.SampleID = ids.SampleID()
		sm.Barcode = ids.Barcode()
		if err = s.store.CreateSample(ctx, sm); !errors.Is(err, ErrConflict) {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	return sm, nil
}

func (s *Service) UpdateSample(ctx context.Context, actor *auth.Actor, id string, upd SampleUpdate) (*Sample, error) {
	sm, err := s.store.FindSample(ctx, id)
	if err != nil {
		return nil, err
	}
	dn, err := s.store.FindDonation(ctx, sm.DonationID)
	if err != nil {
		return nil, err
	}
	if err := s.checkDonorRecord(ctx, actor, authz.EntitySample, authz.OpUpdate, dn.DonorID); err != nil {
		return nil, err
	}
	if upd.Status != nil {
		status := strings.ToLower(strings.TrimSpace(*upd.Status))
		switch status {
		case SampleAvailable, SampleReserved, SampleShipped, SampleDepleted, SampleDiscarded:
		default:
			return nil, fmt.Errorf("%w: field status: unsupported value %q", ErrInvalidInput, *upd.Status)
		}
		upd.Status = &status
	}
	return s.store.UpdateSample(ctx, id, upd)
}

// checkDonorRecord authorizes access to a record hanging off a donor: its
// owner fact is the donor's linked account.
func (s *Service) checkDonorRecord(ctx context.Context, actor *auth.Actor, entity authz.EntityType, op authz.Operation, donorID string) error {
	d, err := s.store.FindDonor(ctx, donorID)
	if err != nil {
		return err
	}
	return authz.Instance(actor, entity, op, donorFacts(d))
}
