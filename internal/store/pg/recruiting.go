package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"biovault.org/internal/authz"
	"biovault.org/internal/recruiting"
)

// The recruiting pipeline has no row-level edges: a scope either sees
// everything or nothing.
func pipelineScope(p *predicates, scope authz.Scope) {
	if scope.All {
		return
	}
	p.add(scopeOr(nil))
}

func (s *Store) CreateProspect(ctx context.Context, pr *recruiting.Prospect) error {
	_, err := s.db.ExecContext(ctx, `
		insert into prospects (id, first_name, last_name, email, phone, source, status, notes, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, pr.ID, pr.FirstName, pr.LastName, nullIfEmpty(pr.Email), nullIfEmpty(pr.Phone),
		nullIfEmpty(pr.Source), pr.Status, nullIfEmpty(pr.Notes), pr.CreatedAt, pr.UpdatedAt)
	return err
}

const prospectColumns = `id, first_name, last_name, email, phone, source, status, notes, created_at, updated_at`

func scanProspect(row interface{ Scan(...any) error }) (*recruiting.Prospect, error) {
	var (
		pr                          recruiting.Prospect
		email, phone, source, notes sql.NullString
	)
	err := row.Scan(&pr.ID, &pr.FirstName, &pr.LastName, &email, &phone, &source, &pr.Status, &notes, &pr.CreatedAt, &pr.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, recruiting.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	pr.Email = strOf(email)
	pr.Phone = strOf(phone)
	pr.Source = strOf(source)
	pr.Notes = strOf(notes)
	return &pr, nil
}

func (s *Store) FindProspect(ctx context.Context, id string) (*recruiting.Prospect, error) {
	row := s.db.QueryRowContext(ctx, `select `+prospectColumns+` from prospects where id = $1`, id)
	return scanProspect(row)
}

func (s *Store) ListProspects(ctx context.Context, scope authz.Scope, status string) ([]*recruiting.Prospect, error) {
	p := &predicates{}
	if status != "" {
		p.add("status = " + p.next(status))
	}
	pipelineScope(p, scope)
	rows, err := s.db.QueryContext(ctx, `select `+prospectColumns+` from prospects`+p.clause()+` order by created_at desc`, p.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*recruiting.Prospect
	for rows.Next() {
		pr, err := scanProspect(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

func (s *Store) UpdateProspect(ctx context.Context, id string, upd recruiting.ProspectUpdate) (*recruiting.Prospect, error) {
	u := newUpdater()
	u.setString("first_name", upd.FirstName)
	u.setString("last_name", upd.LastName)
	u.setNullable("email", upd.Email)
	u.setNullable("phone", upd.Phone)
	u.setNullable("source", upd.Source)
	u.setString("status", upd.Status)
	u.setNullable("notes", upd.Notes)
	if err := u.exec(ctx, s.db, "prospects", id, recruiting.ErrNotFound, recruiting.ErrConflict); err != nil {
		return nil, err
	}
	return s.FindProspect(ctx, id)
}

func (s *Store) CreateContactLog(ctx context.Context, cl *recruiting.ContactLog) error {
	_, err := s.db.ExecContext(ctx, `
		insert into contact_logs (id, prospect_id, method, outcome, notes, contacted_by, contacted_at, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, cl.ID, cl.ProspectID, cl.Method, nullIfEmpty(cl.Outcome), nullIfEmpty(cl.Notes),
		cl.ContactedBy, cl.ContactedAt, cl.CreatedAt)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: prospect does not exist", recruiting.ErrInvalidInput)
	}
	return err
}

func (s *Store) ListContactLogs(ctx context.Context, scope authz.Scope, prospectID string) ([]*recruiting.ContactLog, error) {
	p := &predicates{}
	if prospectID != "" {
		p.add("prospect_id = " + p.next(prospectID))
	}
	pipelineScope(p, scope)
	rows, err := s.db.QueryContext(ctx, `
		select id, prospect_id, method, outcome, notes, contacted_by, contacted_at, created_at
		from contact_logs`+p.clause()+` order by contacted_at desc`, p.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*recruiting.ContactLog
	for rows.Next() {
		var (
			cl             recruiting.ContactLog
			outcome, notes sql.NullString
		)
		if err := rows.Scan(&cl.ID, &cl.ProspectID, &cl.Method, &outcome, &notes, &cl.ContactedBy, &cl.ContactedAt, &cl.CreatedAt); err != nil {
			return nil, err
		}
		cl.Outcome = strOf(outcome)
		cl.Notes = strOf(notes)
		out = append(out, &cl)
	}
	return out, rows.Err()
}

func (s *Store) CreateReferral(ctx context.Context, r *recruiting.Referral) error {
	_, err := s.db.ExecContext(ctx, `
		insert into referrals (id, prospect_id, referring_donor, reward_issued, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6)
	`, r.ID, r.ProspectID, r.ReferringDonor, r.RewardIssued, r.CreatedAt, r.UpdatedAt)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: prospect or donor does not exist", recruiting.ErrInvalidInput)
	}
	return err
}

func (s *Store) FindReferral(ctx context.Context, id string) (*recruiting.Referral, error) {
	var r recruiting.Referral
	err := s.db.QueryRowContext(ctx, `
		select id, prospect_id, referring_donor, reward_issued, created_at, updated_at
		from referrals where id = $1
	`, id).Scan(&r.ID, &r.ProspectID, &r.ReferringDonor, &r.RewardIssued, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, recruiting.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) ListReferrals(ctx context.Context, scope authz.Scope, prospectID string) ([]*recruiting.Referral, error) {
	p := &predicates{}
	if prospectID != "" {
		p.add("prospect_id = " + p.next(prospectID))
	}
	pipelineScope(p, scope)
	rows, err := s.db.QueryContext(ctx, `
		select id, prospect_id, referring_donor, reward_issued, created_at, updated_at
		from referrals`+p.clause()+` order by created_at desc`, p.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*recruiting.Referral
	for rows.Next() {
		var r recruiting.Referral
		if err := rows.Scan(&r.ID, &r.ProspectID, &r.ReferringDonor, &r.RewardIssued, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *Store) UpdateReferral(ctx context.Context, id string, upd recruiting.ReferralUpdate) (*recruiting.Referral, error) {
	u := newUpdater()
	if upd.RewardIssued != nil {
		u.set("reward_issued", *upd.RewardIssued)
	}
	if err := u.exec(ctx, s.db, "referrals", id, recruiting.ErrNotFound, recruiting.ErrConflict); err != nil {
		return nil, err
	}
	return s.FindReferral(ctx, id)
}
