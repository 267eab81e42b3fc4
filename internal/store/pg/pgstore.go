// Package pg implements every domain store on Postgres via database/sql
// over the pgx stdlib driver. List queries translate authz scopes into
// WHERE predicates; unique violations surface as the owning package's
// conflict error.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"biovault.org/internal/auth"
	"biovault.org/internal/authz"
	"biovault.org/internal/donors"
	"biovault.org/internal/recruiting"
	"biovault.org/internal/sponsors"
	"biovault.org/internal/trials"
	"biovault.org/internal/webstore"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

type Store struct {
	db *sql.DB
}

var (
	_ auth.Store       = (*Store)(nil)
	_ trials.Store     = (*Store)(nil)
	_ donors.Store     = (*Store)(nil)
	_ recruiting.Store = (*Store)(nil)
	_ sponsors.Store   = (*Store)(nil)
	_ webstore.Store   = (*Store)(nil)
)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection. Intended for tests.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// --- helpers ---

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func isUniqueViolation(err error) bool {
	pgErr, ok := maybePgError(err)
	return ok && pgErr.Code == pgErrUniqueViolation
}

func isForeignKeyViolation(err error) bool {
	pgErr, ok := maybePgError(err)
	return ok && pgErr.Code == pgErrForeignKeyViolation
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func strOf(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

func timeOf(nt sql.NullTime) *time.Time {
	if nt.Valid {
		t := nt.Time
		return &t
	}
	return nil
}

func floatOf(nf sql.NullFloat64) *float64 {
	if nf.Valid {
		f := nf.Float64
		return &f
	}
	return nil
}

// predicates accumulates WHERE fragments with positional args, the same
// way the update builders accumulate SET fragments.
type predicates struct {
	where []string
	args  []any
}

// next registers an argument and returns its positional placeholder.
func (p *predicates) next(arg any) string {
	p.args = append(p.args, arg)
	return fmt.Sprintf("$%d", len(p.args))
}

func (p *predicates) add(expr string) {
	p.where = append(p.where, expr)
}

func (p *predicates) clause() string {
	if len(p.where) == 0 {
		return ""
	}
	return " where " + strings.Join(p.where, " and ")
}

// scopeOr joins edge fragments; a scoped decision that produced no usable
// fragment matches nothing, never everything.
func scopeOr(ors []string) string {
	if len(ors) == 0 {
		return "false"
	}
	return "(" + strings.Join(ors, " or ") + ")"
}

// updater accumulates SET fragments for partial updates the same way the
// actor update does, shared by the domain tables.
type updater struct {
	sets []string
	args []any
}

func newUpdater() *updater { return &updater{} }

func (u *updater) set(col string, val any) {
	u.args = append(u.args, val)
	u.sets = append(u.sets, fmt.Sprintf("%s = $%d", col, len(u.args)))
}

func (u *updater) setString(col string, val *string) {
	if val != nil {
		u.set(col, *val)
	}
}

// setNullable stores empty strings as NULL so optional text columns stay
// clean for the coalesce-based predicates.
func (u *updater) setNullable(col string, val *string) {
	if val != nil {
		u.set(col, nullIfEmpty(*val))
	}
}

// exec runs the UPDATE when at least one field changed. Missing rows map
// to notFound, unique violations to conflict.
func (u *updater) exec(ctx context.Context, db *sql.DB, table, id string, notFound, conflict error) error {
	if len(u.sets) == 0 {
		return nil
	}
	u.sets = append(u.sets, "updated_at = now()")
	u.args = append(u.args, id)
	query := fmt.Sprintf("update %s set %s where id = $%d", table, strings.Join(u.sets, ", "), len(u.args))
	res, err := db.ExecContext(ctx, query, u.args...)
	if err != nil {
		if isUniqueViolation(err) {
			return conflict
		}
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return notFound
	}
	return nil
}

// sponsorMatch is the sponsor edge predicate: FK match, with the legacy
// case-insensitive name fallback for rows without the FK.
func sponsorMatch(p *predicates, scope authz.Scope, col string) string {
	id := p.next(scope.ActorID)
	name := p.next(scope.FullName)
	return fmt.Sprintf(`(%[1]ssponsor_id = %[2]s or (coalesce(%[1]ssponsor_id, '') = '' and lower(coalesce(%[1]ssponsor_name, '')) = lower(%[3]s)))`, col, id, name)
}
