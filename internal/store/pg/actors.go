package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"biovault.org/internal/auth"
)

// Roles are stored as a comma-separated list; unknown names are dropped
// on read so a rolled-back code change cannot grant stray access.

func rolesToColumn(set auth.RoleSet) string {
	return strings.Join(set.Strings(), ",")
}

func rolesFromColumn(raw string) auth.RoleSet {
	set := auth.RoleSet{}
	for _, part := range strings.Split(raw, ",") {
		if role, ok := auth.ParseRole(part); ok {
			set[role] = struct{}{}
		}
	}
	return set
}

const actorColumns = `id, email, first_name, last_name, password_hash, roles, phone, organization, status, created_at, updated_at`

func scanActor(row interface{ Scan(...any) error }) (*auth.Actor, error) {
	var (
		a          auth.Actor
		roles      string
		phone, org sql.NullString
	)
	err := row.Scan(&a.ID, &a.Email, &a.FirstName, &a.LastName, &a.PasswordHash, &roles, &phone, &org, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Roles = rolesFromColumn(roles)
	a.Phone = strOf(phone)
	a.Organization = strOf(org)
	return &a, nil
}

func (s *Store) CreateActor(ctx context.Context, actor *auth.Actor) error {
	_, err := s.db.ExecContext(ctx, `
		insert into users (id, email, first_name, last_name, password_hash, roles, phone, organization, status, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, actor.ID, actor.Email, actor.FirstName, actor.LastName, actor.PasswordHash,
		rolesToColumn(actor.Roles), nullIfEmpty(actor.Phone), nullIfEmpty(actor.Organization),
		actor.Status, actor.CreatedAt, actor.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: email already registered", auth.ErrConflict)
	}
	return err
}

func (s *Store) FindActor(ctx context.Context, id string) (*auth.Actor, error) {
	row := s.db.QueryRowContext(ctx, `select `+actorColumns+` from users where id = $1`, id)
	return scanActor(row)
}

func (s *Store) FindActorByEmail(ctx context.Context, email string) (*auth.Actor, error) {
	row := s.db.QueryRowContext(ctx, `select `+actorColumns+` from users where email = $1`, email)
	return scanActor(row)
}

func (s *Store) ListActors(ctx context.Context) ([]*auth.Actor, error) {
	rows, err := s.db.QueryContext(ctx, `select `+actorColumns+` from users order by email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actors []*auth.Actor
	for rows.Next() {
		a, err := scanActor(rows)
		if err != nil {
			return nil, err
		}
		actors = append(actors, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return actors, nil
}

func (s *Store) UpdateActor(ctx context.Context, id string, upd auth.ActorUpdate) (*auth.Actor, error) {
	var (
		sets []string
		args []any
		idx  = 1
	)
	set := func(col string, val any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, idx))
		args = append(args, val)
		idx++
	}
	if upd.Email != nil {
		set("email", *upd.Email)
	}
	if upd.FirstName != nil {
		set("first_name", *upd.FirstName)
	}
	if upd.LastName != nil {
		set("last_name", *upd.LastName)
	}
	if upd.Password != nil {
		set("password_hash", *upd.Password)
	}
	if upd.Roles != nil {
		set("roles", rolesToColumn(*upd.Roles))
	}
	if upd.Phone != nil {
		set("phone", nullIfEmpty(*upd.Phone))
	}
	if upd.Organization != nil {
		set("organization", nullIfEmpty(*upd.Organization))
	}
	if upd.Status != nil {
		set("status", *upd.Status)
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update users set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, fmt.Errorf("%w: email already registered", auth.ErrConflict)
			}
			return nil, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if aff == 0 {
			return nil, auth.ErrNotFound
		}
	}
	return s.FindActor(ctx, id)
}
