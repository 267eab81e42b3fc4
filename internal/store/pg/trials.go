package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"biovault.org/internal/authz"
	"biovault.org/internal/trials"
)

// Scope translation for trial tables. The site edge reaches rows through
// study_sites.investigator_id / coordinator_id; the sponsor edge through
// the owning study's sponsor columns.

func studyScope(p *predicates, scope authz.Scope) {
	if scope.All {
		return
	}
	var ors []string
	if scope.HasEdge(authz.EdgePublic) {
		ors = append(ors, `(public and status = 'active')`)
	}
	if scope.HasEdge(authz.EdgeSite) {
		arg := p.next(scope.ActorID)
		ors = append(ors, fmt.Sprintf(`id in (select study_id from study_sites where investigator_id = %[1]s or coordinator_id = %[1]s)`, arg))
	}
	if scope.HasEdge(authz.EdgeSponsor) {
		ors = append(ors, sponsorMatch(p, scope, ""))
	}
	p.add(scopeOr(ors))
}

func siteScope(p *predicates, scope authz.Scope) {
	if scope.All {
		return
	}
	var ors []string
	if scope.HasEdge(authz.EdgeSite) {
		arg := p.next(scope.ActorID)
		ors = append(ors, fmt.Sprintf(`(investigator_id = %[1]s or coordinator_id = %[1]s)`, arg))
	}
	if scope.HasEdge(authz.EdgeSponsor) {
		ors = append(ors, `study_id in (select id from studies where `+sponsorMatch(p, scope, "")+`)`)
	}
	p.add(scopeOr(ors))
}

func participantScope(p *predicates, scope authz.Scope) {
	if scope.All {
		return
	}
	var ors []string
	if scope.HasEdge(authz.EdgeSite) {
		arg := p.next(scope.ActorID)
		ors = append(ors, fmt.Sprintf(`site_id in (select id from study_sites where investigator_id = %[1]s or coordinator_id = %[1]s)`, arg))
	}
	if scope.HasEdge(authz.EdgeSponsor) {
		ors = append(ors, `study_id in (select id from studies where `+sponsorMatch(p, scope, "")+`)`)
	}
	p.add(scopeOr(ors))
}

// participantReach is the participant-id subquery for tables hanging off
// participants (visits, adverse events). The inner builder shares the
// outer arg slice so placeholders stay aligned.
func participantReach(p *predicates, scope authz.Scope) string {
	inner := &predicates{args: p.args}
	participantScope(inner, scope)
	p.args = inner.args
	return `participant_id in (select id from participants where ` + strings.Join(inner.where, " and ") + `)`
}

func (s *Store) CreateStudy(ctx context.Context, st *trials.Study) error {
	_, err := s.db.ExecContext(ctx, `
		insert into studies (id, protocol_number, title, description, phase, status, sponsor_id, sponsor_name, principal_investigator, public, start_date, end_date, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, st.ID, st.ProtocolNumber, st.Title, nullIfEmpty(st.Description), nullIfEmpty(st.Phase), st.Status,
		nullIfEmpty(st.SponsorID), nullIfEmpty(st.SponsorName), nullIfEmpty(st.PrincipalInvestigator),
		st.Public, nullTime(st.StartDate), nullTime(st.EndDate), st.CreatedAt, st.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: protocol number already registered", trials.ErrConflict)
	}
	return err
}

const studyColumns = `id, protocol_number, title, description, phase, status, sponsor_id, sponsor_name, principal_investigator, public, start_date, end_date, created_at, updated_at`

func scanStudy(row interface{ Scan(...any) error }) (*trials.Study, error) {
	var (
		st                         trials.Study
		desc, phase                sql.NullString
		sponsorID, sponsorName, pi sql.NullString
		start, end                 sql.NullTime
	)
	err := row.Scan(&st.ID, &st.ProtocolNumber, &st.Title, &desc, &phase, &st.Status,
		&sponsorID, &sponsorName, &pi, &st.Public, &start, &end, &st.CreatedAt, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, trials.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	st.Description = strOf(desc)
	st.Phase = strOf(phase)
	st.SponsorID = strOf(sponsorID)
	st.SponsorName = strOf(sponsorName)
	st.PrincipalInvestigator = strOf(pi)
	st.StartDate = timeOf(start)
	st.EndDate = timeOf(end)
	return &st, nil
}

func (s *Store) FindStudy(ctx context.Context, id string) (*trials.Study, error) {
	row := s.db.QueryRowContext(ctx, `select `+studyColumns+` from studies where id = $1`, id)
	return scanStudy(row)
}

func (s *Store) ListStudies(ctx context.Context, scope authz.Scope) ([]*trials.Study, error) {
	p := &predicates{}
	studyScope(p, scope)
	rows, err := s.db.QueryContext(ctx, `select `+studyColumns+` from studies`+p.clause()+` order by created_at desc`, p.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*trials.Study
	for rows.Next() {
		st, err := scanStudy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) UpdateStudy(ctx context.Context, id string, upd trials.StudyUpdate) (*trials.Study, error) {
	u := newUpdater()
	u.setString("title", upd.Title)
	u.setNullable("description", upd.Description)
	u.setNullable("phase", upd.Phase)
	u.setString("status", upd.Status)
	u.setNullable("sponsor_id", upd.SponsorID)
	u.setNullable("sponsor_name", upd.SponsorName)
	u.setNullable("principal_investigator", upd.PrincipalInvestigator)
	if upd.Public != nil {
		u.set("public", *upd.Public)
	}
	if upd.StartDate != nil {
		u.set("start_date", *upd.StartDate)
	}
	if upd.EndDate != nil {
		u.set("end_date", *upd.EndDate)
	}
	if err := u.exec(ctx, s.db, "studies", id, trials.ErrNotFound, trials.ErrConflict); err != nil {
		return nil, err
	}
	return s.FindStudy(ctx, id)
}

func (s *Store) CreateSite(ctx context.Context, site *trials.StudySite) error {
	_, err := s.db.ExecContext(ctx, `
		insert into study_sites (id, study_id, name, address, investigator_id, coordinator_id, status, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, site.ID, site.StudyID, site.Name, nullIfEmpty(site.Address),
		nullIfEmpty(site.InvestigatorID), nullIfEmpty(site.CoordinatorID),
		site.Status, site.CreatedAt, site.UpdatedAt)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: study does not exist", trials.ErrInvalidInput)
	}
	return err
}

const siteColumns = `id, study_id, name, address, investigator_id, coordinator_id, status, created_at, updated_at`

func scanSite(row interface{ Scan(...any) error }) (*trials.StudySite, error) {
	var (
		site             trials.StudySite
		addr, inv, coord sql.NullString
	)
	err := row.Scan(&site.ID, &site.StudyID, &site.Name, &addr, &inv, &coord, &site.Status, &site.CreatedAt, &site.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, trials.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	site.Address = strOf(addr)
	site.InvestigatorID = strOf(inv)
	site.CoordinatorID = strOf(coord)
	return &site, nil
}

func (s *Store) FindSite(ctx context.Context, id string) (*trials.StudySite, error) {
	row := s.db.QueryRowContext(ctx, `select `+siteColumns+` from study_sites where id = $1`, id)
	return scanSite(row)
}

func (s *Store) ListSites(ctx context.Context, scope authz.Scope, studyID string) ([]*trials.StudySite, error) {
	p := &predicates{}
	if studyID != "" {
		p.add("study_id = " + p.next(studyID))
	}
	siteScope(p, scope)
	rows, err := s.db.QueryContext(ctx, `select `+siteColumns+` from study_sites`+p.clause()+` order by name`, p.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*trials.StudySite
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, site)
	}
	return out, rows.Err()
}

func (s *Store) UpdateSite(ctx context.Context, id string, upd trials.StudySiteUpdate) (*trials.StudySite, error) {
	u := newUpdater()
	u.setString("name", upd.Name)
	u.setNullable("address", upd.Address)
	u.setNullable("investigator_id", upd.InvestigatorID)
	u.setNullable("coordinator_id", upd.CoordinatorID)
	u.setString("status", upd.Status)
	if err := u.exec(ctx, s.db, "study_sites", id, trials.ErrNotFound, trials.ErrConflict); err != nil {
		return nil, err
	}
	return s.FindSite(ctx, id)
}

func (s *Store) CreateParticipant(ctx context.Context, pt *trials.Participant) error {
	_, err := s.db.ExecContext(ctx, `
		insert into participants (id, participant_code, study_id, site_id, first_name, last_name, email, phone, status, enrolled_at, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, pt.ID, pt.ParticipantID, pt.StudyID, pt.SiteID, pt.FirstName, pt.LastName,
		nullIfEmpty(pt.Email), nullIfEmpty(pt.Phone), pt.Status, nullTime(pt.EnrolledAt),
		pt.CreatedAt, pt.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: participant code already enrolled", trials.ErrConflict)
	}
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: study or site does not exist", trials.ErrInvalidInput)
	}
	return err
}

const participantColumns = `id, participant_code, study_id, site_id, first_name, last_name, email, phone, status, enrolled_at, created_at, updated_at`

func scanParticipant(row interface{ Scan(...any) error }) (*trials.Participant, error) {
	var (
		pt           trials.Participant
		email, phone sql.NullString
		enrolled     sql.NullTime
	)
	err := row.Scan(&pt.ID, &pt.ParticipantID, &pt.StudyID, &pt.SiteID, &pt.FirstName, &pt.LastName,
		&email, &phone, &pt.Status, &enrolled, &pt.CreatedAt, &pt.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, trials.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	pt.Email = strOf(email)
	pt.Phone = strOf(phone)
	pt.EnrolledAt = timeOf(enrolled)
	return &pt, nil
}

func (s *Store) FindParticipant(ctx context.Context, id string) (*trials.Participant, error) {
	row := s.db.QueryRowContext(ctx, `select `+participantColumns+` from participants where id = $1`, id)
	return scanParticipant(row)
}

func (s *Store) ListParticipants(ctx context.Context, scope authz.Scope, studyID string) ([]*trials.Participant, error) {
	p := &predicates{}
	if studyID != "" {
		p.add("study_id = " + p.next(studyID))
	}
	participantScope(p, scope)
	rows, err := s.db.QueryContext(ctx, `select `+participantColumns+` from participants`+p.clause()+` order by created_at desc`, p.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*trials.Participant
	for rows.Next() {
		pt, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pt)
	}
	return out, rows.Err()
}

func (s *Store) UpdateParticipant(ctx context.Context, id string, upd trials.ParticipantUpdate) (*trials.Participant, error) {
	u := newUpdater()
	u.setString("first_name", upd.FirstName)
	u.setString("last_name", upd.LastName)
	u.setNullable("email", upd.Email)
	u.setNullable("phone", upd.Phone)
	u.setString("status", upd.Status)
	if err := u.exec(ctx, s.db, "participants", id, trials.ErrNotFound, trials.ErrConflict); err != nil {
		return nil, err
	}
	return s.FindParticipant(ctx, id)
}

func (s *Store) CreateVisit(ctx context.Context, v *trials.Visit) error {
	_, err := s.db.ExecContext(ctx, `
		insert into visits (id, participant_id, scheduled_date, actual_date, status, notes, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, v.ID, v.ParticipantID, v.ScheduledDate, nullTime(v.ActualDate), v.Status, nullIfEmpty(v.Notes), v.CreatedAt, v.UpdatedAt)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: participant does not exist", trials.ErrInvalidInput)
	}
	return err
}

const visitColumns = `id, participant_id, scheduled_date, actual_date, status, notes, created_at, updated_at`

func scanVisit(row interface{ Scan(...any) error }) (*trials.Visit, error) {
	var (
		v      trials.Visit
		actual sql.NullTime
		notes  sql.NullString
	)
	err := row.Scan(&v.ID, &v.ParticipantID, &v.ScheduledDate, &actual, &v.Status, &notes, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, trials.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	v.ActualDate = timeOf(actual)
	v.Notes = strOf(notes)
	return &v, nil
}

func (s *Store) FindVisit(ctx context.Context, id string) (*trials.Visit, error) {
	row := s.db.QueryRowContext(ctx, `select `+visitColumns+` from visits where id = $1`, id)
	return scanVisit(row)
}

func (s *Store) ListVisits(ctx context.Context, scope authz.Scope, participantID string) ([]*trials.Visit, error) {
	p := &predicates{}
	if participantID != "" {
		p.add("participant_id = " + p.next(participantID))
	}
	if !scope.All {
		p.add(participantReach(p, scope))
	}
	rows, err := s.db.QueryContext(ctx, `select `+visitColumns+` from visits`+p.clause()+` order by scheduled_date`, p.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*trials.Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) UpdateVisit(ctx context.Context, id string, upd trials.VisitUpdate) (*trials.Visit, error) {
	u := newUpdater()
	if upd.ScheduledDate != nil {
		u.set("scheduled_date", *upd.ScheduledDate)
	}
	if upd.ActualDate != nil {
		u.set("actual_date", *upd.ActualDate)
	}
	u.setString("status", upd.Status)
	u.setNullable("notes", upd.Notes)
	if err := u.exec(ctx, s.db, "visits", id, trials.ErrNotFound, trials.ErrConflict); err != nil {
		return nil, err
	}
	return s.FindVisit(ctx, id)
}

func (s *Store) CreateAdverseEvent(ctx context.Context, ev *trials.AdverseEvent) error {
	_, err := s.db.ExecContext(ctx, `
		insert into adverse_events (id, participant_id, description, severity, serious, reported_by, onset_date, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, ev.ID, ev.ParticipantID, ev.Description, ev.Severity, ev.Serious,
		nullIfEmpty(ev.ReportedBy), nullTime(ev.OnsetDate), ev.CreatedAt, ev.UpdatedAt)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: participant does not exist", trials.ErrInvalidInput)
	}
	return err
}

const adverseEventColumns = `id, participant_id, description, severity, serious, reported_by, onset_date, created_at, updated_at`

func scanAdverseEvent(row interface{ Scan(...any) error }) (*trials.AdverseEvent, error) {
	var (
		ev       trials.AdverseEvent
		reporter sql.NullString
		onset    sql.NullTime
	)
	err := row.Scan(&ev.ID, &ev.ParticipantID, &ev.Description, &ev.Severity, &ev.Serious, &reporter, &onset, &ev.CreatedAt, &ev.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, trials.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	ev.ReportedBy = strOf(reporter)
	ev.OnsetDate = timeOf(onset)
	return &ev, nil
}

func (s *Store) FindAdverseEvent(ctx context.Context, id string) (*trials.AdverseEvent, error) {
	row := s.db.QueryRowContext(ctx, `select `+adverseEventColumns+` from adverse_events where id = $1`, id)
	return scanAdverseEvent(row)
}

func (s *Store) ListAdverseEvents(ctx context.Context, scope authz.Scope, participantID string) ([]*trials.AdverseEvent, error) {
	p := &predicates{}
	if participantID != "" {
		p.add("participant_id = " + p.next(participantID))
	}
	if !scope.All {
		p.add(participantReach(p, scope))
	}
	rows, err := s.db.QueryContext(ctx, `select `+adverseEventColumns+` from adverse_events`+p.clause()+` order by created_at desc`, p.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*trials.AdverseEvent
	for rows.Next() {
		ev, err := scanAdverseEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *Store) CreateDocument(ctx context.Context, doc *trials.StudyDocument) error {
	_, err := s.db.ExecContext(ctx, `
		insert into study_documents (id, study_id, title, document_type, version, uri, uploaded_by, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, doc.ID, doc.StudyID, doc.Title, doc.DocumentType, nullIfEmpty(doc.Version), doc.URI, nullIfEmpty(doc.UploadedBy), doc.CreatedAt)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: study does not exist", trials.ErrInvalidInput)
	}
	return err
}

const documentColumns = `id, study_id, title, document_type, version, uri, uploaded_by, created_at`

func scanDocument(row interface{ Scan(...any) error }) (*trials.StudyDocument, error) {
	var (
		doc               trials.StudyDocument
		version, uploader sql.NullString
	)
	err := row.Scan(&doc.ID, &doc.StudyID, &doc.Title, &doc.DocumentType, &version, &doc.URI, &uploader, &doc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, trials.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	doc.Version = strOf(version)
	doc.UploadedBy = strOf(uploader)
	return &doc, nil
}

func (s *Store) FindDocument(ctx context.Context, id string) (*trials.StudyDocument, error) {
	row := s.db.QueryRowContext(ctx, `select `+documentColumns+` from study_documents where id = $1`, id)
	return scanDocument(row)
}

func (s *Store) ListDocuments(ctx context.Context, scope authz.Scope, studyID string) ([]*trials.StudyDocument, error) {
	p := &predicates{}
	if studyID != "" {
		p.add("study_id = " + p.next(studyID))
	}
	if !scope.All {
		var ors []string
		if scope.HasEdge(authz.EdgeSite) {
			arg := p.next(scope.ActorID)
			ors = append(ors, fmt.Sprintf(`study_id in (select study_id from study_sites where investigator_id = %[1]s or coordinator_id = %[1]s)`, arg))
		}
		if scope.HasEdge(authz.EdgeSponsor) {
			ors = append(ors, `study_id in (select id from studies where `+sponsorMatch(p, scope, "")+`)`)
		}
		p.add(scopeOr(ors))
	}
	rows, err := s.db.QueryContext(ctx, `select `+documentColumns+` from study_documents`+p.clause()+` order by created_at desc`, p.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*trials.StudyDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (s *Store) StudyActors(ctx context.Context, studyID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		select investigator_id, coordinator_id from study_sites where study_id = $1
	`, studyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSiteActors(rows)
}

func (s *Store) SiteActors(ctx context.Context, siteID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		select investigator_id, coordinator_id from study_sites where id = $1
	`, siteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSiteActors(rows)
}

func collectSiteActors(rows *sql.Rows) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	for rows.Next() {
		var inv, coord sql.NullString
		if err := rows.Scan(&inv, &coord); err != nil {
			return nil, err
		}
		for _, id := range []string{strOf(inv), strOf(coord)} {
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out, rows.Err()
}
