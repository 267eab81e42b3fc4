package donors

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"biovault.org/internal/auth"
	"biovault.org/internal/authz"
)

type fakeStore struct {
	donors        map[string]*Donor
	histories     map[string]*MedicalHistory
	donationTypes map[string]*DonationType
	appointments  map[string]*DonationAppointment
	donations     map[string]*Donation
	sampleTypes   map[string]*SampleType
	samples       map[string]*Sample
	lastScope     authz.Scope
	donorNumbers  map[string]bool
	conflicts     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		donors:        map[string]*Donor{},
		histories:     map[string]*MedicalHistory{},
		donationTypes: map[string]*DonationType{},
		appointments:  map[string]*DonationAppointment{},
		donations:     map[string]*Donation{},
		sampleTypes:   map[string]*SampleType{},
		samples:       map[string]*Sample{},
		donorNumbers:  map[string]bool{},
	}
}

func (f *fakeStore) CreateDonor(_ context.Context, d *Donor) error {
	if f.conflicts > 0 {
		f.conflicts--
		return fmt.Errorf("%w: duplicate donor number", ErrConflict)
	}
	if f.donorNumbers[d.DonorID] {
		return fmt.Errorf("%w: duplicate donor number", ErrConflict)
	}
	f.donorNumbers[d.DonorID] = true
	f.donors[d.ID] = d
	return nil
}

func (f *fakeStore) FindDonor(_ context.Context, id string) (*Donor, error) {
	d, ok := f.donors[id]
	if !ok {
		return nil, ErrNotFound
	}
	return d, nil
}

func (f *fakeStore) FindDonorByActor(_ context.Context, actorID string) (*Donor, error) {
	for _, d := range f.donors {
		if d.ActorID == actorID {
			return d, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeStore) ListDonors(_ context.Context, scope authz.Scope) ([]*Donor, error) {
	f.lastScope = scope
	var out []*Donor
	for _, d := range f.donors {
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeStore) UpdateDonor(_ context.Context, id string, upd DonorUpdate, bmi *float64) (*Donor, error) {
	d, ok := f.donors[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.HeightCm != nil {
		d.HeightCm = upd.HeightCm
	}
	if upd.WeightKg != nil {
		d.WeightKg = upd.WeightKg
	}
	if upd.Status != nil {
		d.Status = *upd.Status
	}
	d.BMI = bmi
	return d, nil
}

func (f *fakeStore) UpsertHistory(_ context.Context, h *MedicalHistory) error {
	f.histories[h.DonorID] = h
	return nil
}

func (f *fakeStore) FindHistoryByDonor(_ context.Context, donorID string) (*MedicalHistory, error) {
	h, ok := f.histories[donorID]
	if !ok {
		return nil, ErrNotFound
	}
	return h, nil
}

func (f *fakeStore) CreateDonationType(_ context.Context, dt *DonationType) error {
	f.donationTypes[dt.ID] = dt
	return nil
}

func (f *fakeStore) FindDonationType(_ context.Context, id string) (*DonationType, error) {
	dt, ok := f.donationTypes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return dt, nil
}

func (f *fakeStore) ListDonationTypes(_ context.Context) ([]*DonationType, error) {
	var out []*DonationType
	for _, dt := range f.donationTypes {
		out = append(out, dt)
	}
	return out, nil
}

func (f *fakeStore) CreateAppointment(_ context.Context, ap *DonationAppointment) error {
	f.appointments[ap.ID] = ap
	return nil
}

func (f *fakeStore) FindAppointment(_ context.Context, id string) (*DonationAppointment, error) {
	ap, ok := f.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return ap, nil
}

func (f *fakeStore) ListAppointments(_ context.Context, scope authz.Scope, donorID string) ([]*DonationAppointment, error) {
	f.lastScope = scope
	var out []*DonationAppointment
	for _, ap := range f.appointments {
		if donorID == "" || ap.DonorID == donorID {
			out = append(out, ap)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateAppointment(_ context.Context, id string, upd AppointmentUpdate) (*DonationAppointment, error) {
	ap, ok := f.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.Status != nil {
		ap.Status = *upd.Status
	}
	if upd.ScheduledAt != nil {
		ap.ScheduledAt = *upd.ScheduledAt
	}
	return ap, nil
}

func (f *fakeStore) CreateDonation(_ context.Context, d *Donation) error {
	f.donations[d.ID] = d
	return nil
}

func (f *fakeStore) FindDonation(_ context.Context, id string) (*Donation, error) {
	d, ok := f.donations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return d, nil
}

func (f *fakeStore) ListDonations(_ context.Context, scope authz.Scope, donorID string) ([]*Donation, error) {
	f.lastScope = scope
	var out []*Donation
	for _, d := range f.donations {
		if donorID == "" || d.DonorID == donorID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateSampleType(_ context.Context, st *SampleType) error {
	f.sampleTypes[st.ID] = st
	return nil
}

func (f *fakeStore) FindSampleType(_ context.Context, id string) (*SampleType, error) {
	st, ok := f.sampleTypes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return st, nil
}

func (f *fakeStore) ListSampleTypes(_ context.Context) ([]*SampleType, error) {
	var out []*SampleType
	for _, st := range f.sampleTypes {
		out = append(out, st)
	}
	return out, nil
}

func (f *fakeStore) CreateSample(_ context.Context, sm *Sample) error {
	f.samples[sm.ID] = sm
	return nil
}

func (f *fakeStore) FindSample(_ context.Context, id string) (*Sample, error) {
	sm, ok := f.samples[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sm, nil
}

func (f *fakeStore) ListSamples(_ context.Context, scope authz.Scope, donationID string) ([]*Sample, error) {
	f.lastScope = scope
	var out []*Sample
	for _, sm := range f.samples {
		if donationID == "" || sm.DonationID == donationID {
			out = append(out, sm)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateSample(_ context.Context, id string, upd SampleUpdate) (*Sample, error) {
	sm, ok := f.samples[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.Status != nil {
		sm.Status = *upd.Status
	}
	if upd.StorageRef != nil {
		sm.StorageRef = *upd.StorageRef
	}
	return sm, nil
}

func newTestService(t *testing.T) (*Service, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	n := 0
	svc, err := NewService(store, func() string { n++; return fmt.Sprintf("id-%d", n) })
	require.NoError(t, err)
	return svc, store
}

func ptr[T any](v T) *T { return &v }

func staffActor() *auth.Actor {
	return &auth.Actor{ID: "staff-1", Roles: auth.NewRoleSet(auth.RoleStaff)}
}

func recruiterActor() *auth.Actor {
	return &auth.Actor{ID: "rec-1", Roles: auth.NewRoleSet(auth.RoleRecruiter)}
}

func TestComputeBMI(t *testing.T) {
	bmi := ComputeBMI(ptr(180.0), ptr(75.0))
	require.NotNil(t, bmi)
	assert.InDelta(t, 23.15, *bmi, 0.001)

	assert.Nil(t, ComputeBMI(nil, ptr(75.0)))
	assert.Nil(t, ComputeBMI(ptr(180.0), nil))
	assert.Nil(t, ComputeBMI(ptr(0.0), ptr(75.0)))
}

func TestRegisterDonorComputesBMI(t *testing.T) {
	svc, _ := newTestService(t)
	d, err := svc.RegisterDonor(context.Background(), recruiterActor(), RegisterDonorInput{
		ActorID:   "acct-7",
		FirstName: "Mira",
		LastName:  "Osei",
		HeightCm:  ptr(180.0),
		WeightKg:  ptr(75.0),
		BloodType: "O+",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(d.DonorID, "DN-"))
	require.NotNil(t, d.BMI)
	assert.InDelta(t, 23.15, *d.BMI, 0.001)
	assert.Equal(t, DonorActive, d.Status)
}

func TestRegisterDonorRetriesNumberCollision(t *testing.T) {
	svc, store := newTestService(t)
	store.conflicts = 2

	d, err := svc.RegisterDonor(context.Background(), recruiterActor(), RegisterDonorInput{
		FirstName: "Mira", LastName: "Osei",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(d.DonorID, "DN-"))

	// Three straight collisions exhaust the retry budget.
	store.conflicts = 3
	_, err = svc.RegisterDonor(context.Background(), recruiterActor(), RegisterDonorInput{
		FirstName: "Noa", LastName: "Berg",
	})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestUpdateDonorRecomputesBMI(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	d, err := svc.RegisterDonor(ctx, recruiterActor(), RegisterDonorInput{
		FirstName: "Mira", LastName: "Osei", HeightCm: ptr(180.0), WeightKg: ptr(75.0),
	})
	require.NoError(t, err)

	got, err := svc.UpdateDonor(ctx, staffActor(), d.ID, DonorUpdate{WeightKg: ptr(81.0)})
	require.NoError(t, err)
	require.NotNil(t, got.BMI)
	assert.InDelta(t, 25.0, *got.BMI, 0.001)
}

func TestDonorOwnsOwnRecordOnly(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	d, err := svc.RegisterDonor(ctx, recruiterActor(), RegisterDonorInput{
		ActorID: "acct-1", FirstName: "Mira", LastName: "Osei",
	})
	require.NoError(t, err)

	owner := &auth.Actor{ID: "acct-1", Roles: auth.NewRoleSet(auth.RoleDonor)}
	got, err := svc.Donor(ctx, owner, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.ID, got.ID)

	self, err := svc.DonorForActor(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, d.ID, self.ID)

	other := &auth.Actor{ID: "acct-2", Roles: auth.NewRoleSet(auth.RoleDonor)}
	_, err = svc.Donor(ctx, other, d.ID)
	assert.True(t, authz.IsPermissionDenied(err))

	// Donors cannot register donor records themselves.
	_, err = svc.RegisterDonor(ctx, owner, RegisterDonorInput{FirstName: "X", LastName: "Y"})
	assert.True(t, authz.IsPermissionDenied(err))
}

func TestMedicalHistoryAccess(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	d, err := svc.RegisterDonor(ctx, recruiterActor(), RegisterDonorInput{
		ActorID: "acct-1", FirstName: "Mira", LastName: "Osei",
	})
	require.NoError(t, err)

	owner := &auth.Actor{ID: "acct-1", Roles: auth.NewRoleSet(auth.RoleDonor)}

	// Nothing recorded yet.
	_, err = svc.History(ctx, owner, d.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// The donor can read but not write their history.
	_, err = svc.RecordHistory(ctx, owner, d.ID, HistoryInput{Conditions: "none"})
	assert.True(t, authz.IsPermissionDenied(err))

	h, err := svc.RecordHistory(ctx, recruiterActor(), d.ID, HistoryInput{Conditions: "asthma"})
	require.NoError(t, err)

	got, err := svc.History(ctx, owner, d.ID)
	require.NoError(t, err)
	assert.Equal(t, h.ID, got.ID)
	assert.Equal(t, "asthma", got.Conditions)

	// Re-recording keeps the row identity.
	again, err := svc.RecordHistory(ctx, recruiterActor(), d.ID, HistoryInput{Conditions: "asthma, pollen allergy"})
	require.NoError(t, err)
	assert.Equal(t, h.ID, again.ID)
}

func seedDonationType(t *testing.T, svc *Service) *DonationType {
	t.Helper()
	dt, err := svc.CreateDonationType(context.Background(), staffActor(), CreateDonationTypeInput{
		Name: "Whole blood", MinIntervalDays: 56,
	})
	require.NoError(t, err)
	return dt
}

func TestAppointmentBooking(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	dt := seedDonationType(t, svc)
	d, err := svc.RegisterDonor(ctx, recruiterActor(), RegisterDonorInput{
		ActorID: "acct-1", FirstName: "Mira", LastName: "Osei",
	})
	require.NoError(t, err)

	owner := &auth.Actor{ID: "acct-1", Roles: auth.NewRoleSet(auth.RoleDonor)}
	when := time.Date(2026, 9, 20, 9, 30, 0, 0, time.UTC)

	ap, err := svc.BookAppointment(ctx, owner, BookAppointmentInput{
		DonorID: d.ID, DonationTypeID: dt.ID, ScheduledAt: when, Location: "Main lab",
	})
	require.NoError(t, err)
	assert.Equal(t, AppointmentScheduled, ap.Status)

	// A different donor cannot book on this record.
	other := &auth.Actor{ID: "acct-2", Roles: auth.NewRoleSet(auth.RoleDonor)}
	_, err = svc.BookAppointment(ctx, other, BookAppointmentInput{
		DonorID: d.ID, DonationTypeID: dt.ID, ScheduledAt: when,
	})
	assert.True(t, authz.IsPermissionDenied(err))

	// An unknown donation type is a validation-time not-found.
	_, err = svc.BookAppointment(ctx, owner, BookAppointmentInput{
		DonorID: d.ID, DonationTypeID: "missing", ScheduledAt: when,
	})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.UpdateAppointment(ctx, owner, ap.ID, AppointmentUpdate{Status: ptr("cancelled")})
	assert.NoError(t, err)
	_, err = svc.UpdateAppointment(ctx, owner, ap.ID, AppointmentUpdate{Status: ptr("vanished")})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRecordDonationCompletesAppointment(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	dt := seedDonationType(t, svc)
	d, err := svc.RegisterDonor(ctx, recruiterActor(), RegisterDonorInput{
		ActorID: "acct-1", FirstName: "Mira", LastName: "Osei",
	})
	require.NoError(t, err)
	owner := &auth.Actor{ID: "acct-1", Roles: auth.NewRoleSet(auth.RoleDonor)}
	ap, err := svc.BookAppointment(ctx, owner, BookAppointmentInput{
		DonorID: d.ID, DonationTypeID: dt.ID, ScheduledAt: time.Date(2026, 9, 20, 9, 30, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	// Recording a collection is a staff operation.
	_, err = svc.RecordDonation(ctx, recruiterActor(), RecordDonationInput{
		DonorID: d.ID, AppointmentID: ap.ID, TypeID: dt.ID, VolumeML: 450,
	})
	assert.True(t, authz.IsPermissionDenied(err))

	dn, err := svc.RecordDonation(ctx, staffActor(), RecordDonationInput{
		DonorID: d.ID, AppointmentID: ap.ID, TypeID: dt.ID, VolumeML: 450,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dn.DonationID, "DON-"))
	assert.Equal(t, AppointmentCompleted, store.appointments[ap.ID].Status)

	// The donor can read their own donation.
	got, err := svc.Donation(ctx, owner, dn.ID)
	require.NoError(t, err)
	assert.Equal(t, 450, got.VolumeML)
}

func TestSampleRegistry(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	dt := seedDonationType(t, svc)
	d, err := svc.RegisterDonor(ctx, recruiterActor(), RegisterDonorInput{
		ActorID: "acct-1", FirstName: "Mira", LastName: "Osei",
	})
	require.NoError(t, err)
	dn, err := svc.RecordDonation(ctx, staffActor(), RecordDonationInput{
		DonorID: d.ID, TypeID: dt.ID, VolumeML: 450,
	})
	require.NoError(t, err)
	st, err := svc.CreateSampleType(ctx, staffActor(), CreateSampleTypeInput{Name: "Plasma"})
	require.NoError(t, err)

	sm, err := svc.RegisterSample(ctx, staffActor(), RegisterSampleInput{
		DonationID: dn.ID, SampleTypeID: st.ID, VolumeML: 2.5, StorageRef: "FRZ-2/R4/B12",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sm.SampleID, "SM-"))
	assert.True(t, strings.HasPrefix(sm.Barcode, "BC-"))
	assert.Equal(t, SampleAvailable, sm.Status)

	// The donor can read their own sample but not restate it.
	owner := &auth.Actor{ID: "acct-1", Roles: auth.NewRoleSet(auth.RoleDonor)}
	got, err := svc.Sample(ctx, owner, sm.ID)
	require.NoError(t, err)
	assert.Equal(t, sm.Barcode, got.Barcode)
	_, err = svc.UpdateSample(ctx, owner, sm.ID, SampleUpdate{Status: ptr("shipped")})
	assert.True(t, authz.IsPermissionDenied(err))

	_, err = svc.UpdateSample(ctx, staffActor(), sm.ID, SampleUpdate{Status: ptr("shipped")})
	assert.NoError(t, err)
}
