package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"biovault.org/internal/authz"
	"biovault.org/internal/donors"
)

// Scope translation for the donor registry. The owner edge is the donor's
// linked account; appointment, donation and sample rows reach it through
// their donor foreign keys.

func donorScope(p *predicates, scope authz.Scope) {
	if scope.All {
		return
	}
	var ors []string
	if scope.HasEdge(authz.EdgeOwner) {
		ors = append(ors, "actor_id = "+p.next(scope.ActorID))
	}
	p.add(scopeOr(ors))
}

func donorReach(p *predicates, scope authz.Scope, col string) {
	if scope.All {
		return
	}
	var ors []string
	if scope.HasEdge(authz.EdgeOwner) {
		ors = append(ors, col+` in (select id from donors where actor_id = `+p.next(scope.ActorID)+`)`)
	}
	p.add(scopeOr(ors))
}

func (s *Store) CreateDonor(ctx context.Context, d *donors.Donor) error {
	_, err := s.db.ExecContext(ctx, `
		insert into donors (id, donor_code, actor_id, first_name, last_name, date_of_birth, blood_type, hla_type, height_cm, weight_kg, bmi, status, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, d.ID, d.DonorID, d.ActorID, d.FirstName, d.LastName, nullTime(d.DateOfBirth),
		nullIfEmpty(d.BloodType), nullIfEmpty(d.HLAType), nullFloat(d.HeightCm), nullFloat(d.WeightKg),
		nullFloat(d.BMI), d.Status, d.CreatedAt, d.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: donor number or account already registered", donors.ErrConflict)
	}
	return err
}

const donorColumns = `id, donor_code, actor_id, first_name, last_name, date_of_birth, blood_type, hla_type, height_cm, weight_kg, bmi, status, created_at, updated_at`

func scanDonor(row interface{ Scan(...any) error }) (*donors.Donor, error) {
	var (
		d                   donors.Donor
		dob                 sql.NullTime
		blood, hla          sql.NullString
		height, weight, bmi sql.NullFloat64
	)
	err := row.Scan(&d.ID, &d.DonorID, &d.ActorID, &d.FirstName, &d.LastName, &dob,
		&blood, &hla, &height, &weight, &bmi, &d.Status, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, donors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d.DateOfBirth = timeOf(dob)
	d.BloodType = strOf(blood)
	d.HLAType = strOf(hla)
	d.HeightCm = floatOf(height)
	d.WeightKg = floatOf(weight)
	d.BMI = floatOf(bmi)
	return &d, nil
}

func (s *Store) FindDonor(ctx context.Context, id string) (*donors.Donor, error) {
	row := s.db.QueryRowContext(ctx, `select `+donorColumns+` from donors where id = $1`, id)
	return scanDonor(row)
}

func (s *Store) FindDonorByActor(ctx context.Context, actorID string) (*donors.Donor, error) {
	row := s.db.QueryRowContext(ctx, `select `+donorColumns+` from donors where actor_id = $1`, actorID)
	return scanDonor(row)
}

func (s *Store) ListDonors(ctx context.Context, scope authz.Scope) ([]*donors.Donor, error) {
	p := &predicates{}
	donorScope(p, scope)
	rows, err := s.db.QueryContext(ctx, `select `+donorColumns+` from donors`+p.clause()+` order by created_at desc`, p.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*donors.Donor
	for rows.Next() {
		d, err := scanDonor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) UpdateDonor(ctx context.Context, id string, upd donors.DonorUpdate, bmi *float64) (*donors.Donor, error) {
	u := newUpdater()
	u.setString("first_name", upd.FirstName)
	u.setString("last_name", upd.LastName)
	if upd.DateOfBirth != nil {
		u.set("date_of_birth", *upd.DateOfBirth)
	}
	u.setNullable("blood_type", upd.BloodType)
	u.setNullable("hla_type", upd.HLAType)
	if upd.HeightCm != nil {
		u.set("height_cm", *upd.HeightCm)
	}
	if upd.WeightKg != nil {
		u.set("weight_kg", *upd.WeightKg)
	}
	u.setString("status", upd.Status)
	// bmi is derived by the service from the merged measurements and is
	// written on every donor update.
	u.set("bmi", nullFloat(bmi))
	if err := u.exec(ctx, s.db, "donors", id, donors.ErrNotFound, donors.ErrConflict); err != nil {
		return nil, err
	}
	return s.FindDonor(ctx, id)
}

func (s *Store) UpsertHistory(ctx context.Context, h *donors.MedicalHistory) error {
	// A re-submission keeps the original row id; everything else is
	// replaced wholesale.
	_, err := s.db.ExecContext(ctx, `
		insert into donor_medical_histories (id, donor_id, conditions, medications, allergies, surgical_notes, last_reviewed_at, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		on conflict (donor_id) do update set
			conditions = excluded.conditions,
			medications = excluded.medications,
			allergies = excluded.allergies,
			surgical_notes = excluded.surgical_notes,
			last_reviewed_at = excluded.last_reviewed_at,
			updated_at = excluded.updated_at
	`, h.ID, h.DonorID, nullIfEmpty(h.Conditions), nullIfEmpty(h.Medications),
		nullIfEmpty(h.Allergies), nullIfEmpty(h.SurgicalNotes), h.LastReviewedAt, h.CreatedAt, h.UpdatedAt)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: donor does not exist", donors.ErrInvalidInput)
	}
	return err
}

func (s *Store) FindHistoryByDonor(ctx context.Context, donorID string) (*donors.MedicalHistory, error) {
	var (
		h                        donors.MedicalHistory
		cond, meds, allerg, surg sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, donor_id, conditions, medications, allergies, surgical_notes, last_reviewed_at, created_at, updated_at
		from donor_medical_histories where donor_id = $1
	`, donorID).Scan(&h.ID, &h.DonorID, &cond, &meds, &allerg, &surg, &h.LastReviewedAt, &h.CreatedAt, &h.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, donors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	h.Conditions = strOf(cond)
	h.Medications = strOf(meds)
	h.Allergies = strOf(allerg)
	h.SurgicalNotes = strOf(surg)
	return &h, nil
}

func (s *Store) CreateDonationType(ctx context.Context, dt *donors.DonationType) error {
	_, err := s.db.ExecContext(ctx, `
		insert into donation_types (id, name, description, min_interval_days, created_at)
		values ($1, $2, $3, $4, $5)
	`, dt.ID, dt.Name, nullIfEmpty(dt.Description), dt.MinIntervalDays, dt.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: donation type already exists", donors.ErrConflict)
	}
	return err
}

func (s *Store) FindDonationType(ctx context.Context, id string) (*donors.DonationType, error) {
	var (
		dt   donors.DonationType
		desc sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, name, description, min_interval_days, created_at from donation_types where id = $1
	`, id).Scan(&dt.ID, &dt.Name, &desc, &dt.MinIntervalDays, &dt.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, donors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	dt.Description = strOf(desc)
	return &dt, nil
}

func (s *Store) ListDonationTypes(ctx context.Context) ([]*donors.DonationType, error) {
	rows, err := s.db.QueryContext(ctx, `select id, name, description, min_interval_days, created_at from donation_types order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*donors.DonationType
	for rows.Next() {
		var (
			dt   donors.DonationType
			desc sql.NullString
		)
		if err := rows.Scan(&dt.ID, &dt.Name, &desc, &dt.MinIntervalDays, &dt.CreatedAt); err != nil {
			return nil, err
		}
		dt.Description = strOf(desc)
		out = append(out, &dt)
	}
	return out, rows.Err()
}

func (s *Store) CreateAppointment(ctx context.Context, ap *donors.DonationAppointment) error {
	_, err := s.db.ExecContext(ctx, `
		insert into donation_appointments (id, donor_id, donation_type_id, scheduled_at, location, status, notes, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, ap.ID, ap.DonorID, ap.DonationTypeID, ap.ScheduledAt, nullIfEmpty(ap.Location),
		ap.Status, nullIfEmpty(ap.Notes), ap.CreatedAt, ap.UpdatedAt)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: donor or donation type does not exist", donors.ErrInvalidInput)
	}
	return err
}

const appointmentColumns = `id, donor_id, donation_type_id, scheduled_at, location, status, notes, created_at, updated_at`

func scanAppointment(row interface{ Scan(...any) error }) (*donors.DonationAppointment, error) {
	var (
		ap         donors.DonationAppointment
		loc, notes sql.NullString
	)
	err := row.Scan(&ap.ID, &ap.DonorID, &ap.DonationTypeID, &ap.ScheduledAt, &loc, &ap.Status, &notes, &ap.CreatedAt, &ap.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, donors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	ap.Location = strOf(loc)
	ap.Notes = strOf(notes)
	return &ap, nil
}

func (s *Store) FindAppointment(ctx context.Context, id string) (*donors.DonationAppointment, error) {
	row := s.db.QueryRowContext(ctx, `select `+appointmentColumns+` from donation_appointments where id = $1`, id)
	return scanAppointment(row)
}

func (s *Store) ListAppointments(ctx context.Context, scope authz.Scope, donorID string) ([]*donors.DonationAppointment, error) {
	p := &predicates{}
	if donorID != "" {
		p.add("donor_id = " + p.next(donorID))
	}
	donorReach(p, scope, "donor_id")
	rows, err := s.db.QueryContext(ctx, `select `+appointmentColumns+` from donation_appointments`+p.clause()+` order by scheduled_at`, p.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*donors.DonationAppointment
	for rows.Next() {
		ap, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ap)
	}
	return out, rows.Err()
}

func (s *Store) UpdateAppointment(ctx context.Context, id string, upd donors.AppointmentUpdate) (*donors.DonationAppointment, error) {
	u := newUpdater()
	if upd.ScheduledAt != nil {
		u.set("scheduled_at", *upd.ScheduledAt)
	}
	u.setNullable("location", upd.Location)
	u.setString("status", upd.Status)
	u.setNullable("notes", upd.Notes)
	if err := u.exec(ctx, s.db, "donation_appointments", id, donors.ErrNotFound, donors.ErrConflict); err != nil {
		return nil, err
	}
	return s.FindAppointment(ctx, id)
}

func (s *Store) CreateDonation(ctx context.Context, d *donors.Donation) error {
	_, err := s.db.ExecContext(ctx, `
		insert into donations (id, donation_code, donor_id, appointment_id, type_id, volume_ml, collected_at, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, d.ID, d.DonationID, d.DonorID, nullIfEmpty(d.AppointmentID), d.TypeID, d.VolumeML, d.CollectedAt, d.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: donation number already registered", donors.ErrConflict)
	}
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: donor, appointment or type does not exist", donors.ErrInvalidInput)
	}
	return err
}

const donationColumns = `id, donation_code, donor_id, appointment_id, type_id, volume_ml, collected_at, created_at`

func scanDonation(row interface{ Scan(...any) error }) (*donors.Donation, error) {
	var (
		d  donors.Donation
		ap sql.NullString
	)
	err := row.Scan(&d.ID, &d.DonationID, &d.DonorID, &ap, &d.TypeID, &d.VolumeML, &d.CollectedAt, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, donors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d.AppointmentID = strOf(ap)
	return &d, nil
}

func (s *Store) FindDonation(ctx context.Context, id string) (*donors.Donation, error) {
	row := s.db.QueryRowContext(ctx, `select `+donationColumns+` from donations where id = $1`, id)
	return scanDonation(row)
}

func (s *Store) ListDonations(ctx context.Context, scope authz.Scope, donorID string) ([]*donors.Donation, error) {
	p := &predicates{}
	if donorID != "" {
		p.add("donor_id = " + p.next(donorID))
	}
	donorReach(p, scope, "donor_id")
	rows, err := s.db.QueryContext(ctx, `select `+donationColumns+` from donations`+p.clause()+` order by collected_at desc`, p.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*donors.Donation
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) CreateSampleType(ctx context.Context, st *donors.SampleType) error {
	_, err := s.db.ExecContext(ctx, `
		insert into sample_types (id, name, description, created_at)
		values ($1, $2, $3, $4)
	`, st.ID, st.Name, nullIfEmpty(st.Description), st.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: sample type already exists", donors.ErrConflict)
	}
	return err
}

func (s *Store) FindSampleType(ctx context.Context, id string) (*donors.SampleType, error) {
	var (
		st   donors.SampleType
		desc sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, name, description, created_at from sample_types where id = $1
	`, id).Scan(&st.ID, &st.Name, &desc, &st.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, donors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	st.Description = strOf(desc)
	return &st, nil
}

func (s *Store) ListSampleTypes(ctx context.Context) ([]*donors.SampleType, error) {
	rows, err := s.db.QueryContext(ctx, `select id, name, description, created_at from sample_types order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*donors.SampleType
	for rows.Next() {
		var (
			st   donors.SampleType
			desc sql.NullString
		)
		if err := rows.Scan(&st.ID, &st.Name, &desc, &st.CreatedAt); err != nil {
			return nil, err
		}
		st.Description = strOf(desc)
		out = append(out, &st)
	}
	return out, rows.Err()
}

func (s *Store) CreateSample(ctx context.Context, sm *donors.Sample) error {
	_, err := s.db.ExecContext(ctx, `
		insert into samples (id, sample_code, barcode, donation_id, sample_type_id, volume_ml, status, storage_ref, expires_at, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, sm.ID, sm.SampleID, sm.Barcode, sm.DonationID, sm.SampleTypeID, sm.VolumeML,
		sm.Status, nullIfEmpty(sm.StorageRef), nullTime(sm.ExpiresAt), sm.CreatedAt, sm.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: sample number or barcode already registered", donors.ErrConflict)
	}
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: donation or sample type does not exist", donors.ErrInvalidInput)
	}
	return err
}

const sampleColumns = `id, sample_code, barcode, donation_id, sample_type_id, volume_ml, status, storage_ref, expires_at, created_at, updated_at`

func scanSample(row interface{ Scan(...any) error }) (*donors.Sample, error) {
	var (
		sm      donors.Sample
		storage sql.NullString
		expires sql.NullTime
	)
	err := row.Scan(&sm.ID, &sm.SampleID, &sm.Barcode, &sm.DonationID, &sm.SampleTypeID,
		&sm.VolumeML, &sm.Status, &storage, &expires, &sm.CreatedAt, &sm.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, donors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sm.StorageRef = strOf(storage)
	sm.ExpiresAt = timeOf(expires)
	return &sm, nil
}

func (s *Store) FindSample(ctx context.Context, id string) (*donors.Sample, error) {
	row := s.db.QueryRowContext(ctx, `select `+sampleColumns+` from samples where id = $1`, id)
	return scanSample(row)
}

func (s *Store) ListSamples(ctx context.Context, scope authz.Scope, donationID string) ([]*donors.Sample, error) {
	p := &predicates{}
	if donationID != "" {
		p.add("donation_id = " + p.next(donationID))
	}
	if !scope.All {
		var ors []string
		if scope.HasEdge(authz.EdgeOwner) {
			ors = append(ors, `donation_id in (select d.id from donations d join donors dn on dn.id = d.donor_id where dn.actor_id = `+p.next(scope.ActorID)+`)`)
		}
		p.add(scopeOr(ors))
	}
	rows, err := s.db.QueryContext(ctx, `select `+sampleColumns+` from samples`+p.clause()+` order by created_at desc`, p.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*donors.Sample
	for rows.Next() {
		sm, err := scanSample(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

func (s *Store) UpdateSample(ctx context.Context, id string, upd donors.SampleUpdate) (*donors.Sample, error) {
	u := newUpdater()
	u.setString("status", upd.Status)
	u.setNullable("storage_ref", upd.StorageRef)
	if upd.ExpiresAt != nil {
		u.set("expires_at", *upd.ExpiresAt)
	}
	if err := u.exec(ctx, s.db, "samples", id, donors.ErrNotFound, donors.ErrConflict); err != nil {
		return nil, err
	}
	return s.FindSample(ctx, id)
}
