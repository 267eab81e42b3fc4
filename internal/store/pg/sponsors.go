package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"biovault.org/internal/authz"
	"biovault.org/internal/sponsors"
)

// Portal tables are all owner-scoped on actor_id.
func ownerScope(p *predicates, scope authz.Scope) {
	if scope.All {
		return
	}
	var ors []string
	if scope.HasEdge(authz.EdgeOwner) {
		ors = append(ors, "actor_id = "+p.next(scope.ActorID))
	}
	p.add(scopeOr(ors))
}

func (s *Store) CreateSponsorProfile(ctx context.Context, pr *sponsors.SponsorProfile) error {
	_, err := s.db.ExecContext(ctx, `
		insert into sponsor_profiles (id, actor_id, organization, contact_email, contact_phone, address, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, pr.ID, pr.ActorID, pr.Organization, nullIfEmpty(pr.ContactEmail), nullIfEmpty(pr.ContactPhone),
		nullIfEmpty(pr.Address), pr.CreatedAt, pr.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: account already has a sponsor profile", sponsors.ErrConflict)
	}
	return err
}

const sponsorProfileColumns = `id, actor_id, organization, contact_email, contact_phone, address, created_at, updated_at`

func scanSponsorProfile(row interface{ Scan(...any) error }) (*sponsors.SponsorProfile, error) {
	var (
		pr                 sponsors.SponsorProfile
		email, phone, addr sql.NullString
	)
	err := row.Scan(&pr.ID, &pr.ActorID, &pr.Organization, &email, &phone, &addr, &pr.CreatedAt, &pr.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sponsors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	pr.ContactEmail = strOf(email)
	pr.ContactPhone = strOf(phone)
	pr.Address = strOf(addr)
	return &pr, nil
}

func (s *Store) FindSponsorProfile(ctx context.Context, id string) (*sponsors.SponsorProfile, error) {
	row := s.db.QueryRowContext(ctx, `select `+sponsorProfileColumns+` from sponsor_profiles where id = $1`, id)
	return scanSponsorProfile(row)
}

func (s *Store) FindSponsorProfileByActor(ctx context.Context, actorID string) (*sponsors.SponsorProfile, error) {
	row := s.db.QueryRowContext(ctx, `select `+sponsorProfileColumns+` from sponsor_profiles where actor_id = $1`, actorID)
	return scanSponsorProfile(row)
}

func (s *Store) ListSponsorProfiles(ctx context.Context, scope authz.Scope) ([]*sponsors.SponsorProfile, error) {
	p := &predicates{}
	ownerScope(p, scope)
	rows, err := s.db.QueryContext(ctx, `select `+sponsorProfileColumns+` from sponsor_profiles`+p.clause()+` order by organization`, p.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*sponsors.SponsorProfile
	for rows.Next() {
		pr, err := scanSponsorProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

func (s *Store) UpdateSponsorProfile(ctx context.Context, id string, upd sponsors.SponsorProfileUpdate) (*sponsors.SponsorProfile, error) {
	u := newUpdater()
	u.setString("organization", upd.Organization)
	u.setNullable("contact_email", upd.ContactEmail)
	u.setNullable("contact_phone", upd.ContactPhone)
	u.setNullable("address", upd.Address)
	if err := u.exec(ctx, s.db, "sponsor_profiles", id, sponsors.ErrNotFound, sponsors.ErrConflict); err != nil {
		return nil, err
	}
	return s.FindSponsorProfile(ctx, id)
}

func (s *Store) CreateResearcherProfile(ctx context.Context, pr *sponsors.ResearcherProfile) error {
	_, err := s.db.ExecContext(ctx, `
		insert into researcher_profiles (id, actor_id, institution, department, orcid, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, pr.ID, pr.ActorID, pr.Institution, nullIfEmpty(pr.Department), nullIfEmpty(pr.ORCID),
		pr.CreatedAt, pr.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: account already has a researcher profile", sponsors.ErrConflict)
	}
	return err
}

const researcherProfileColumns = `id, actor_id, institution, department, orcid, created_at, updated_at`

func scanResearcherProfile(row interface{ Scan(...any) error }) (*sponsors.ResearcherProfile, error) {
	var (
		pr          sponsors.ResearcherProfile
		dept, orcid sql.NullString
	)
	err := row.Scan(&pr.ID, &pr.ActorID, &pr.Institution, &dept, &orcid, &pr.CreatedAt, &pr.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sponsors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	pr.Department = strOf(dept)
	pr.ORCID = strOf(orcid)
	return &pr, nil
}

func (s *Store) FindResearcherProfile(ctx context.Context, id string) (*sponsors.ResearcherProfile, error) {
	row := s.db.QueryRowContext(ctx, `select `+researcherProfileColumns+` from researcher_profiles where id = $1`, id)
	return scanResearcherProfile(row)
}

func (s *Store) ListResearcherProfiles(ctx context.Context, scope authz.Scope) ([]*sponsors.ResearcherProfile, error) {
	p := &predicates{}
	ownerScope(p, scope)
	rows, err := s.db.QueryContext(ctx, `select `+researcherProfileColumns+` from researcher_profiles`+p.clause()+` order by institution`, p.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*sponsors.ResearcherProfile
	for rows.Next() {
		pr, err := scanResearcherProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

func (s *Store) UpdateResearcherProfile(ctx context.Context, id string, upd sponsors.ResearcherProfileUpdate) (*sponsors.ResearcherProfile, error) {
	u := newUpdater()
	u.setString("institution", upd.Institution)
	u.setNullable("department", upd.Department)
	u.setNullable("orcid", upd.ORCID)
	if err := u.exec(ctx, s.db, "researcher_profiles", id, sponsors.ErrNotFound, sponsors.ErrConflict); err != nil {
		return nil, err
	}
	return s.FindResearcherProfile(ctx, id)
}

func (s *Store) CreateDraft(ctx context.Context, d *sponsors.ProtocolDraft) error {
	_, err := s.db.ExecContext(ctx, `
		insert into protocol_drafts (id, actor_id, title, summary, body, status, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, d.ID, d.ActorID, d.Title, nullIfEmpty(d.Summary), nullIfEmpty(d.Body), d.Status, d.CreatedAt, d.UpdatedAt)
	return err
}

const draftColumns = `id, actor_id, title, summary, body, status, created_at, updated_at`

func scanDraft(row interface{ Scan(...any) error }) (*sponsors.ProtocolDraft, error) {
	var (
		d             sponsors.ProtocolDraft
		summary, body sql.NullString
	)
	err := row.Scan(&d.ID, &d.ActorID, &d.Title, &summary, &body, &d.Status, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sponsors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d.Summary = strOf(summary)
	d.Body = strOf(body)
	return &d, nil
}

func (s *Store) FindDraft(ctx context.Context, id string) (*sponsors.ProtocolDraft, error) {
	row := s.db.QueryRowContext(ctx, `select `+draftColumns+` from protocol_drafts where id = $1`, id)
	return scanDraft(row)
}

func (s *Store) ListDrafts(ctx context.Context, scope authz.Scope) ([]*sponsors.ProtocolDraft, error) {
	p := &predicates{}
	ownerScope(p, scope)
	rows, err := s.db.QueryContext(ctx, `select `+draftColumns+` from protocol_drafts`+p.clause()+` order by created_at desc`, p.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*sponsors.ProtocolDraft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) UpdateDraft(ctx context.Context, id string, upd sponsors.ProtocolDraftUpdate) (*sponsors.ProtocolDraft, error) {
	u := newUpdater()
	u.setString("title", upd.Title)
	u.setNullable("summary", upd.Summary)
	u.setNullable("body", upd.Body)
	u.setString("status", upd.Status)
	if err := u.exec(ctx, s.db, "protocol_drafts", id, sponsors.ErrNotFound, sponsors.ErrConflict); err != nil {
		return nil, err
	}
	return s.FindDraft(ctx, id)
}

func (s *Store) CreateSampleRequest(ctx context.Context, r *sponsors.CustomSampleRequest) error {
	_, err := s.db.ExecContext(ctx, `
		insert into sample_requests (id, actor_id, sample_type_id, quantity, criteria, justification, status, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, r.ID, r.ActorID, nullIfEmpty(r.SampleTypeID), r.Quantity, r.Criteria,
		nullIfEmpty(r.Justification), r.Status, r.CreatedAt, r.UpdatedAt)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: sample type does not exist", sponsors.ErrInvalidInput)
	}
	return err
}

const sampleRequestColumns = `id, actor_id, sample_type_id, quantity, criteria, justification, status, created_at, updated_at`

func scanSampleRequest(row interface{ Scan(...any) error }) (*sponsors.CustomSampleRequest, error) {
	var (
		r              sponsors.CustomSampleRequest
		typeID, justif sql.NullString
	)
	err := row.Scan(&r.ID, &r.ActorID, &typeID, &r.Quantity, &r.Criteria, &justif, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sponsors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.SampleTypeID = strOf(typeID)
	r.Justification = strOf(justif)
	return &r, nil
}

func (s *Store) FindSampleRequest(ctx context.Context, id string) (*sponsors.CustomSampleRequest, error) {
	row := s.db.QueryRowContext(ctx, `select `+sampleRequestColumns+` from sample_requests where id = $1`, id)
	return scanSampleRequest(row)
}

func (s *Store) ListSampleRequests(ctx context.Context, scope authz.Scope) ([]*sponsors.CustomSampleRequest, error) {
	p := &predicates{}
	ownerScope(p, scope)
	rows, err := s.db.QueryContext(ctx, `select `+sampleRequestColumns+` from sample_requests`+p.clause()+` order by created_at desc`, p.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*sponsors.CustomSampleRequest
	for rows.Next() {
		r, err := scanSampleRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) UpdateSampleRequest(ctx context.Context, id string, upd sponsors.SampleRequestUpdate) (*sponsors.CustomSampleRequest, error) {
	u := newUpdater()
	if upd.Quantity != nil {
		u.set("quantity", *upd.Quantity)
	}
	u.setString("criteria", upd.Criteria)
	u.setNullable("justification", upd.Justification)
	u.setString("status", upd.Status)
	if err := u.exec(ctx, s.db, "sample_requests", id, sponsors.ErrNotFound, sponsors.ErrConflict); err != nil {
		return nil, err
	}
	return s.FindSampleRequest(ctx, id)
}
