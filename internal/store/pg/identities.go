package pg

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"durga.org/internal/directory"
)

const identityCols = `i.id, i.username, i.email, i.first_name, i.last_name, i.active, i.last_login_at,
	i.deleted_at, coalesce(i.deleted_by, ''), i.created_at, coalesce(i.created_by, ''),
	i.updated_at, coalesce(i.updated_by, '')`

func scanIdentity(row scanner) (directory.Identity, error) {
	var i directory.Identity
	err := row.Scan(&i.ID, &i.Username, &i.Email, &i.FirstName, &i.LastName, &i.Active, &i.LastLoginAt,
		&i.DeletedAt, &i.DeletedBy, &i.CreatedAt, &i.CreatedBy, &i.UpdatedAt, &i.UpdatedBy)
	return i, err
}

func (s *Store) CreateIdentity(ctx context.Context, in directory.Identity) (directory.Identity, error) {
	row := s.db.QueryRowContext(ctx, `
		insert into identities as i (id, username, email, first_name, last_name, active, created_at, created_by)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		returning `+identityCols,
		in.ID, in.Username, in.Email, in.FirstName, in.LastName, in.Active, in.CreatedAt, nullIfEmpty(in.CreatedBy))
	out, err := scanIdentity(row)
	if err != nil {
		return directory.Identity{}, translate(err, "create identity")
	}
	return out, nil
}

func (s *Store) getIdentity(ctx context.Context, where string, arg any, what string) (directory.Identity, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+identityCols+`
		from identities i
		where `+where+` and `+identityUsable("i"), arg)
	out, err := scanIdentity(row)
	if err != nil {
		return directory.Identity{}, translate(err, what)
	}
	return out, nil
}

func (s *Store) GetIdentity(ctx context.Context, id string) (directory.Identity, error) {
	return s.getIdentity(ctx, "i.id = $1", id, "identity "+id)
}

func (s *Store) GetIdentityByUsername(ctx context.Context, username string) (directory.Identity, error) {
	return s.getIdentity(ctx, "lower(i.username) = lower($1)", username, "identity "+username)
}

func (s *Store) GetIdentityByEmail(ctx context.Context, email string) (directory.Identity, error) {
	return s.getIdentity(ctx, "lower(i.email) = lower($1)", email, "identity "+email)
}

func (s *Store) UpdateIdentity(ctx context.Context, id string, upd directory.IdentityUpdate, st directory.Stamp) (directory.Identity, error) {
	var f filter
	var sets []string
	if upd.Username != nil {
		sets = append(sets, "username = "+f.arg(*upd.Username))
	}
	if upd.Email != nil {
		sets = append(sets, "email = "+f.arg(*upd.Email))
	}
	if upd.FirstName != nil {
		sets = append(sets, "first_name = "+f.arg(*upd.FirstName))
	}
	if upd.LastName != nil {
		sets = append(sets, "last_name = "+f.arg(*upd.LastName))
	}
	if upd.Active != nil {
		sets = append(sets, "active = "+f.arg(*upd.Active))
	}
	sets = append(sets, "updated_at = "+f.arg(st.At), "updated_by = "+f.arg(nullIfEmpty(st.By)))
	q := fmt.Sprintf(`update identities as i set %s where i.id = %s and %s returning %s`,
		strings.Join(sets, ", "), f.arg(id), identityUsable("i"), identityCols)
	out, err := scanIdentity(s.db.QueryRowContext(ctx, q, f.args...))
	if err != nil {
		return directory.Identity{}, translate(err, "identity "+id)
	}
	return out, nil
}

func (s *Store) SoftDeleteIdentity(ctx context.Context, id string, st directory.Stamp) error {
	res, err := s.db.ExecContext(ctx, `
		update identities set deleted_at = $2, deleted_by = $3
		where id = $1 and deleted_at is null
	`, id, st.At, nullIfEmpty(st.By))
	return affected(res, err, "identity "+id)
}

func (s *Store) TouchLogin(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update identities set last_login_at = $2
		where id = $1 and deleted_at is null
	`, id, at)
	return affected(res, err, "identity "+id)
}

func (s *Store) ListIdentities(ctx context.Context, q directory.IdentityQuery) (directory.Result[directory.Identity], error) {
	var f filter
	f.add(identityUsable("i"))
	if !q.IncludeInactive {
		f.add("i.active")
	}
	f.search(directory.SearchTerm(q.Search), "i.username", "i.email", "i.first_name", "i.last_name")
	return list(ctx, s.db, &f, identityCols, "identities i", "i.created_at, i.id", q.Page, "identities", scanIdentity)
}

func (s *Store) IdentitiesInRole(ctx context.Context, roleID string, now time.Time) ([]directory.Identity, error) {
	q := `
		select ` + identityCols + `
		from identities i
		join user_roles g on g.identity_id = i.id
		where g.role_id = $1 and ` + grantEffective("g", "$2") + ` and ` + identityUsable("i") + `
		order by ` + memberOrder
	return query(ctx, s.db, q, []any{roleID, now}, "role holders", scanIdentity)
}

func (s *Store) EffectiveRoles(ctx context.Context, identityID string, now time.Time) ([]directory.Role, error) {
	q := `
		select ` + roleCols + `
		from roles r
		join user_roles g on g.role_id = r.id
		join identities i on i.id = g.identity_id
		where g.identity_id = $1 and r.active and ` + grantEffective("g", "$2") + ` and ` + identityUsable("i") + `
		order by lower(r.name), r.id`
	return query(ctx, s.db, q, []any{identityID, now}, "effective roles", scanRole)
}

// PasswordHash returns the id and password hash of an active, usable identity.
func (s *Store) PasswordHash(ctx context.Context, username string) (string, string, error) {
	var id, hash string
	err := s.db.QueryRowContext(ctx, `
		select id, coalesce(password_hash, '')
		from identities
		where lower(username) = lower($1) and active and deleted_at is null
	`, username).Scan(&id, &hash)
	if err != nil {
		return "", "", translate(err, "credential "+username)
	}
	if hash == "" {
		return "", "", errors.Wrapf(directory.ErrNotFound, "pg: identity %s has no password", username)
	}
	return id, hash, nil
}

// SetPasswordHash stores the password hash of a usable identity.
func (s *Store) SetPasswordHash(ctx context.Context, identityID, hash string) error {
	res, err := s.db.ExecContext(ctx, `
		update identities set password_hash = $2
		where id = $1 and deleted_at is null
	`, identityID, hash)
	return affected(res, err, "identity "+identityID)
}
