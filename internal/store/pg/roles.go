package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"durga.org/internal/directory"
)

const roleCols = `r.id, r.name, r.description, r.is_system, r.active, r.created_at,
	coalesce(r.created_by, ''), r.updated_at, coalesce(r.updated_by, '')`

func scanRole(row scanner) (directory.Role, error) {
	var r directory.Role
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.IsSystem, &r.Active, &r.CreatedAt,
		&r.CreatedBy, &r.UpdatedAt, &r.UpdatedBy)
	return r, err
}

const grantCols = `g.identity_id, g.role_id, g.assigned_at, coalesce(g.assigned_by, ''), g.expires_at,
	g.active, g.revoked_at, coalesce(g.revoked_by, '')`

func scanGrant(row scanner) (directory.Grant, error) {
	var g directory.Grant
	err := row.Scan(&g.IdentityID, &g.RoleID, &g.AssignedAt, &g.AssignedBy, &g.ExpiresAt,
		&g.Active, &g.RevokedAt, &g.RevokedBy)
	return g, err
}

func (s *Store) CreateRole(ctx context.Context, in directory.Role) (directory.Role, error) {
	row := s.db.QueryRowContext(ctx, `
		insert into roles as r (id, name, description, is_system, active, created_at, created_by)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning `+roleCols,
		in.ID, in.Name, in.Description, in.IsSystem, in.Active, in.CreatedAt, nullIfEmpty(in.CreatedBy))
	out, err := scanRole(row)
	if err != nil {
		return directory.Role{}, translate(err, "create role")
	}
	return out, nil
}

func (s *Store) GetRole(ctx context.Context, id string) (directory.Role, error) {
	out, err := scanRole(s.db.QueryRowContext(ctx, `select `+roleCols+` from roles r where r.id = $1`, id))
	if err != nil {
		return directory.Role{}, translate(err, "role "+id)
	}
	return out, nil
}

func (s *Store) GetRoleByName(ctx context.Context, name string) (directory.Role, error) {
	out, err := scanRole(s.db.QueryRowContext(ctx, `select `+roleCols+` from roles r where lower(r.name) = lower($1)`, name))
	if err != nil {
		return directory.Role{}, translate(err, "role "+name)
	}
	return out, nil
}

func (s *Store) UpdateRole(ctx context.Context, id string, upd directory.RoleUpdate, st directory.Stamp) (directory.Role, error) {
	var f filter
	var sets []string
	if upd.Name != nil {
		sets = append(sets, "name = "+f.arg(*upd.Name))
	}
	if upd.Description != nil {
		sets = append(sets, "description = "+f.arg(*upd.Description))
	}
	if upd.Active != nil {
		sets = append(sets, "active = "+f.arg(*upd.Active))
	}
	sets = append(sets, "updated_at = "+f.arg(st.At), "updated_by = "+f.arg(nullIfEmpty(st.By)))
	q := fmt.Sprintf(`update roles as r set %s where r.id = %s returning %s`, strings.Join(sets, ", "), f.arg(id), roleCols)
	out, err := scanRole(s.db.QueryRowContext(ctx, q, f.args...))
	if err != nil {
		return directory.Role{}, translate(err, "role "+id)
	}
	return out, nil
}

const roleHoldersQuery = `
	select count(distinct g.identity_id)
	from user_roles g
	join identities i on i.id = g.identity_id
	where g.role_id = $1 and `

// DeleteRole locks the role row so that concurrent grant inserts, which take a key-share
// lock through the foreign key, wait for the outcome.
func (s *Store) DeleteRole(ctx context.Context, id string, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "pg: begin delete role")
	}
	defer func() { _ = tx.Rollback() }()

	var (
		name     string
		isSystem bool
	)
	if err := tx.QueryRowContext(ctx, `select name, is_system from roles where id = $1 for update`, id).Scan(&name, &isSystem); err != nil {
		return translate(err, "role "+id)
	}
	if isSystem {
		return directory.ErrSystemRole
	}
	var holders int
	q := roleHoldersQuery + grantEffective("g", "$2") + ` and ` + identityUsable("i")
	if err := tx.QueryRowContext(ctx, q, id, now).Scan(&holders); err != nil {
		return translate(err, "count role holders")
	}
	if holders > 0 {
		return fmt.Errorf("%w: role %s has %d effective holders", directory.ErrConflict, name, holders)
	}
	if _, err := tx.ExecContext(ctx, `delete from user_roles where role_id = $1`, id); err != nil {
		return translate(err, "delete grants of role "+id)
	}
	if _, err := tx.ExecContext(ctx, `delete from roles where id = $1`, id); err != nil {
		return translate(err, "delete role "+id)
	}
	return errors.Wrap(tx.Commit(), "pg: commit delete role")
}

func (s *Store) ListRoles(ctx context.Context, q directory.RoleQuery) (directory.Result[directory.Role], error) {
	var f filter
	if !q.IncludeInactive {
		f.add("r.active")
	}
	if q.System != nil {
		f.add("r.is_system = " + f.arg(*q.System))
	}
	f.search(directory.SearchTerm(q.Search), "r.name", "r.description")
	return list(ctx, s.db, &f, roleCols, "roles r", "lower(r.name), r.id", q.Page, "roles", scanRole)
}

func (s *Store) CountRoleHolders(ctx context.Context, roleID string, now time.Time) (int, error) {
	var n int
	q := roleHoldersQuery + grantEffective("g", "$2") + ` and ` + identityUsable("i")
	if err := s.db.QueryRowContext(ctx, q, roleID, now).Scan(&n); err != nil {
		return 0, translate(err, "count role holders")
	}
	return n, nil
}

func (s *Store) GetGrant(ctx context.Context, identityID, roleID string) (directory.Grant, error) {
	out, err := scanGrant(s.db.QueryRowContext(ctx, `
		select `+grantCols+`
		from user_roles g
		where g.identity_id = $1 and g.role_id = $2
	`, identityID, roleID))
	if err != nil {
		return directory.Grant{}, translate(err, "grant "+identityID+"/"+roleID)
	}
	return out, nil
}

func (s *Store) InsertGrant(ctx context.Context, g directory.Grant) error {
	_, err := s.db.ExecContext(ctx, `
		insert into user_roles (identity_id, role_id, assigned_at, assigned_by, expires_at, active)
		values ($1, $2, $3, $4, $5, $6)
	`, g.IdentityID, g.RoleID, g.AssignedAt, nullIfEmpty(g.AssignedBy), nullTime(g.ExpiresAt), g.Active)
	return translate(err, "grant "+g.IdentityID+"/"+g.RoleID)
}

func (s *Store) ReactivateGrant(ctx context.Context, g directory.Grant) error {
	res, err := s.db.ExecContext(ctx, `
		update user_roles
		set assigned_at = $3, assigned_by = $4, expires_at = $5, active = true, revoked_at = null, revoked_by = null
		where identity_id = $1 and role_id = $2
	`, g.IdentityID, g.RoleID, g.AssignedAt, nullIfEmpty(g.AssignedBy), nullTime(g.ExpiresAt))
	return affected(res, err, "grant "+g.IdentityID+"/"+g.RoleID)
}

func (s *Store) DeactivateGrant(ctx context.Context, identityID, roleID string, st directory.Stamp) error {
	res, err := s.db.ExecContext(ctx, `
		update user_roles
		set active = false, revoked_at = $3, revoked_by = $4
		where identity_id = $1 and role_id = $2
	`, identityID, roleID, st.At, nullIfEmpty(st.By))
	return affected(res, err, "grant "+identityID+"/"+roleID)
}

func (s *Store) GrantsForIdentity(ctx context.Context, identityID string) ([]directory.Grant, error) {
	q := `select ` + grantCols + ` from user_roles g where g.identity_id = $1 order by g.assigned_at, g.role_id`
	return query(ctx, s.db, q, []any{identityID}, "grants", scanGrant)
}

func (s *Store) GrantsForRole(ctx context.Context, roleID string) ([]directory.Grant, error) {
	q := `select ` + grantCols + ` from user_roles g where g.role_id = $1 order by g.assigned_at, g.identity_id`
	return query(ctx, s.db, q, []any{roleID}, "grants", scanGrant)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
