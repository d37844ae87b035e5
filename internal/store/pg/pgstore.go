// Package pg implements directory.Store on PostgreSQL through database/sql and the pgx
// stdlib driver.
package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"

	"durga.org/internal/directory"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

var _ directory.Store = (*Store)(nil)

type Store struct {
	db *sql.DB
}

// Open connects to dsn with tuned pool defaults.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error {
	return errors.Wrap(s.db.PingContext(ctx), "pg: ping")
}

type scanner interface {
	Scan(dest ...any) error
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// translate maps driver errors onto the directory taxonomy. Anything unrecognized is
// returned with context and otherwise unchanged.
func translate(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", directory.ErrNotFound, what)
	}
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return fmt.Errorf("%w: %s: %s", directory.ErrConflict, what, pgErr.ConstraintName)
		case pgErrForeignKeyViolation:
			return fmt.Errorf("%w: %s: %s", directory.ErrNotFound, what, pgErr.ConstraintName)
		}
	}
	return errors.Wrap(err, "pg: "+what)
}

// affected turns a zero-row update into ErrNotFound.
func affected(res sql.Result, err error, what string) error {
	if err != nil {
		return translate(err, what)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "pg: "+what)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", directory.ErrNotFound, what)
	}
	return nil
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// Validity predicates in SQL form. They mirror directory.GrantEffective,
// directory.MembershipCurrent and directory.IdentityUsable and are the only place the
// store spells them out.

func grantEffective(alias, now string) string {
	return fmt.Sprintf("%[1]s.active and (%[1]s.expires_at is null or %[1]s.expires_at > %[2]s)", alias, now)
}

func membershipCurrent(alias string) string {
	return fmt.Sprintf("%[1]s.active and %[1]s.left_at is null", alias)
}

func identityUsable(alias string) string {
	return alias + ".deleted_at is null"
}

const memberOrder = "lower(i.first_name), lower(i.last_name), i.created_at, i.id"

// filter accumulates a WHERE clause and its positional arguments. Count and page queries
// of a listing are rendered from the same filter.
type filter struct {
	clauses []string
	args    []any
}

func (f *filter) arg(v any) string {
	f.args = append(f.args, v)
	return fmt.Sprintf("$%d", len(f.args))
}

func (f *filter) add(clause string) {
	f.clauses = append(f.clauses, clause)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// search ORs a case-insensitive substring match over cols. term is already normalized.
func (f *filter) search(term string, cols ...string) {
	if term == "" || len(cols) == 0 {
		return
	}
	p := f.arg("%" + likeEscaper.Replace(term) + "%")
	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		parts = append(parts, fmt.Sprintf("lower(%s) like %s", c, p))
	}
	f.add("(" + strings.Join(parts, " or ") + ")")
}

func (f *filter) where() string {
	if len(f.clauses) == 0 {
		return ""
	}
	return " where " + strings.Join(f.clauses, " and ")
}

func (f *filter) count(from string) (string, []any) {
	return "select count(*) from " + from + f.where(), f.args
}

func (f *filter) page(cols, from, order string, p directory.Page) (string, []any) {
	args := append(f.args[:len(f.args):len(f.args)], p.Size, p.Offset())
	q := fmt.Sprintf("select %s from %s%s order by %s limit $%d offset $%d",
		cols, from, f.where(), order, len(args)-1, len(args))
	return q, args
}

// list runs the count and page queries of f and scans each row with scan.
func list[T any](ctx context.Context, db *sql.DB, f *filter, cols, from, order string, p directory.Page, what string, scan func(scanner) (T, error)) (directory.Result[T], error) {
	countQuery, countArgs := f.count(from)
	var total int
	if err := db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return directory.Result[T]{}, translate(err, "count "+what)
	}
	pageQuery, pageArgs := f.page(cols, from, order, p)
	items, err := query(ctx, db, pageQuery, pageArgs, what, scan)
	if err != nil {
		return directory.Result[T]{}, err
	}
	return directory.Result[T]{Items: items, Total: total}, nil
}

func query[T any](ctx context.Context, db *sql.DB, q string, args []any, what string, scan func(scanner) (T, error)) ([]T, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, translate(err, "query "+what)
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, errors.Wrap(err, "pg: scan "+what)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "pg: iterate "+what)
	}
	return out, nil
}
