package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"durga.org/internal/directory"
)

const teamCols = `t.id, t.name, t.description, t.department_id, coalesce(t.leader_id, ''),
	coalesce(t.manager_id, ''), t.active, t.created_at, coalesce(t.created_by, ''),
	t.updated_at, coalesce(t.updated_by, '')`

func scanTeam(row scanner) (directory.Team, error) {
	var t directory.Team
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.DepartmentID, &t.LeaderID,
		&t.ManagerID, &t.Active, &t.CreatedAt, &t.CreatedBy, &t.UpdatedAt, &t.UpdatedBy)
	return t, err
}

const membershipCols = `m.team_id, m.identity_id, m.joined_at, coalesce(m.joined_by, ''), m.left_at,
	coalesce(m.left_by, ''), m.active`

func scanMembership(row scanner) (directory.Membership, error) {
	var m directory.Membership
	err := row.Scan(&m.TeamID, &m.IdentityID, &m.JoinedAt, &m.JoinedBy, &m.LeftAt, &m.LeftBy, &m.Active)
	return m, err
}

func (s *Store) CreateTeam(ctx context.Context, in directory.Team) (directory.Team, error) {
	row := s.db.QueryRowContext(ctx, `
		insert into teams as t (id, name, description, department_id, leader_id, manager_id, active, created_at, created_by)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		returning `+teamCols,
		in.ID, in.Name, in.Description, in.DepartmentID, nullIfEmpty(in.LeaderID), nullIfEmpty(in.ManagerID),
		in.Active, in.CreatedAt, nullIfEmpty(in.CreatedBy))
	out, err := scanTeam(row)
	if err != nil {
		return directory.Team{}, translate(err, "create team")
	}
	return out, nil
}

func (s *Store) GetTeam(ctx context.Context, id string) (directory.Team, error) {
	out, err := scanTeam(s.db.QueryRowContext(ctx, `select `+teamCols+` from teams t where t.id = $1`, id))
	if err != nil {
		return directory.Team{}, translate(err, "team "+id)
	}
	return out, nil
}

func (s *Store) UpdateTeam(ctx context.Context, id string, upd directory.TeamUpdate, st directory.Stamp) (directory.Team, error) {
	var f filter
	var sets []string
	if upd.Name != nil {
		sets = append(sets, "name = "+f.arg(*upd.Name))
	}
	if upd.Description != nil {
		sets = append(sets, "description = "+f.arg(*upd.Description))
	}
	if upd.DepartmentID != nil {
		sets = append(sets, "department_id = "+f.arg(*upd.DepartmentID))
	}
	if upd.Active != nil {
		sets = append(sets, "active = "+f.arg(*upd.Active))
	}
	sets = append(sets, "updated_at = "+f.arg(st.At), "updated_by = "+f.arg(nullIfEmpty(st.By)))
	q := fmt.Sprintf(`update teams as t set %s where t.id = %s returning %s`, strings.Join(sets, ", "), f.arg(id), teamCols)
	out, err := scanTeam(s.db.QueryRowContext(ctx, q, f.args...))
	if err != nil {
		return directory.Team{}, translate(err, "team "+id)
	}
	return out, nil
}

const currentMembersCount = `
	select count(distinct m.identity_id)
	from team_users m
	join identities i on i.id = m.identity_id
	where m.team_id = $1 and `

// DeleteTeam locks the team row so that concurrent membership inserts wait for the outcome.
func (s *Store) DeleteTeam(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "pg: begin delete team")
	}
	defer func() { _ = tx.Rollback() }()

	var name string
	if err := tx.QueryRowContext(ctx, `select name from teams where id = $1 for update`, id).Scan(&name); err != nil {
		return translate(err, "team "+id)
	}
	var members int
	q := currentMembersCount + membershipCurrent("m") + ` and ` + identityUsable("i")
	if err := tx.QueryRowContext(ctx, q, id).Scan(&members); err != nil {
		return translate(err, "count team members")
	}
	if members > 0 {
		return fmt.Errorf("%w: team %s has %d current members", directory.ErrConflict, name, members)
	}
	if _, err := tx.ExecContext(ctx, `delete from team_users where team_id = $1`, id); err != nil {
		return translate(err, "delete memberships of team "+id)
	}
	if _, err := tx.ExecContext(ctx, `delete from teams where id = $1`, id); err != nil {
		return translate(err, "delete team "+id)
	}
	return errors.Wrap(tx.Commit(), "pg: commit delete team")
}

func (s *Store) ListTeams(ctx context.Context, q directory.TeamQuery) (directory.Result[directory.Team], error) {
	var f filter
	if !q.IncludeInactive {
		f.add("t.active")
	}
	if q.DepartmentID != "" {
		f.add("t.department_id = " + f.arg(q.DepartmentID))
	}
	f.search(directory.SearchTerm(q.Search), "t.name", "t.description")
	return list(ctx, s.db, &f, teamCols, "teams t", "lower(t.name), t.id", q.Page, "teams", scanTeam)
}

func (s *Store) teamsWhere(ctx context.Context, where string, arg any) ([]directory.Team, error) {
	q := `select ` + teamCols + ` from teams t where ` + where + ` order by lower(t.name), t.id`
	return query(ctx, s.db, q, []any{arg}, "teams", scanTeam)
}

func (s *Store) TeamsInDepartment(ctx context.Context, departmentID string) ([]directory.Team, error) {
	return s.teamsWhere(ctx, "t.department_id = $1", departmentID)
}

func (s *Store) TeamsLedBy(ctx context.Context, identityID string) ([]directory.Team, error) {
	return s.teamsWhere(ctx, "t.leader_id = $1", identityID)
}

func (s *Store) TeamsManagedBy(ctx context.Context, identityID string) ([]directory.Team, error) {
	return s.teamsWhere(ctx, "t.manager_id = $1", identityID)
}

func (s *Store) SetTeamLeader(ctx context.Context, teamID, identityID string, st directory.Stamp) error {
	return s.setPointer(ctx, "teams", "leader_id", teamID, identityID, st)
}

func (s *Store) SetTeamManager(ctx context.Context, teamID, identityID string, st directory.Stamp) error {
	return s.setPointer(ctx, "teams", "manager_id", teamID, identityID, st)
}

// setPointer writes a nullable identity reference. table and column are constants of this
// package, never caller input.
func (s *Store) setPointer(ctx context.Context, table, column, id, identityID string, st directory.Stamp) error {
	q := fmt.Sprintf(`update %s set %s = $2, updated_at = $3, updated_by = $4 where id = $1`, table, column)
	res, err := s.db.ExecContext(ctx, q, id, nullIfEmpty(identityID), st.At, nullIfEmpty(st.By))
	return affected(res, err, strings.TrimSuffix(table, "s")+" "+id)
}

func (s *Store) GetMembership(ctx context.Context, teamID, identityID string) (directory.Membership, error) {
	out, err := scanMembership(s.db.QueryRowContext(ctx, `
		select `+membershipCols+`
		from team_users m
		where m.team_id = $1 and m.identity_id = $2
	`, teamID, identityID))
	if err != nil {
		return directory.Membership{}, translate(err, "membership "+teamID+"/"+identityID)
	}
	return out, nil
}

func (s *Store) InsertMembership(ctx context.Context, m directory.Membership) error {
	_, err := s.db.ExecContext(ctx, `
		insert into team_users (team_id, identity_id, joined_at, joined_by, active)
		values ($1, $2, $3, $4, $5)
	`, m.TeamID, m.IdentityID, m.JoinedAt, nullIfEmpty(m.JoinedBy), m.Active)
	return translate(err, "membership "+m.TeamID+"/"+m.IdentityID)
}

func (s *Store) ReviveMembership(ctx context.Context, m directory.Membership) error {
	res, err := s.db.ExecContext(ctx, `
		update team_users as m
		set joined_at = $3, joined_by = $4, left_at = null, left_by = null, active = true
		where m.team_id = $1 and m.identity_id = $2 and not (`+membershipCurrent("m")+`)
	`, m.TeamID, m.IdentityID, m.JoinedAt, nullIfEmpty(m.JoinedBy))
	if err != nil {
		return translate(err, "membership "+m.TeamID+"/"+m.IdentityID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "pg: revive membership")
	}
	if n > 0 {
		return nil
	}
	var current bool
	err = s.db.QueryRowContext(ctx, `
		select `+membershipCurrent("m")+`
		from team_users m
		where m.team_id = $1 and m.identity_id = $2
	`, m.TeamID, m.IdentityID).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%w: membership %s/%s", directory.ErrNotFound, m.TeamID, m.IdentityID)
	case err != nil:
		return translate(err, "membership "+m.TeamID+"/"+m.IdentityID)
	case current:
		return directory.ErrAlreadyMember
	default:
		return fmt.Errorf("%w: membership %s/%s changed concurrently", directory.ErrConflict, m.TeamID, m.IdentityID)
	}
}

func (s *Store) EndMembership(ctx context.Context, teamID, identityID string, st directory.Stamp) error {
	res, err := s.db.ExecContext(ctx, `
		update team_users as m
		set left_at = $3, left_by = $4, active = false
		where m.team_id = $1 and m.identity_id = $2 and `+membershipCurrent("m"),
		teamID, identityID, st.At, nullIfEmpty(st.By))
	return affected(res, err, "current membership "+teamID+"/"+identityID)
}

func (s *Store) MembershipsForTeam(ctx context.Context, teamID string) ([]directory.Membership, error) {
	q := `select ` + membershipCols + ` from team_users m where m.team_id = $1 order by m.joined_at, m.identity_id`
	return query(ctx, s.db, q, []any{teamID}, "memberships", scanMembership)
}

func (s *Store) CurrentMembers(ctx context.Context, teamID string) ([]directory.Identity, error) {
	q := `
		select ` + identityCols + `
		from identities i
		join team_users m on m.identity_id = i.id
		where m.team_id = $1 and ` + membershipCurrent("m") + ` and ` + identityUsable("i") + `
		order by ` + memberOrder
	return query(ctx, s.db, q, []any{teamID}, "team members", scanIdentity)
}

func (s *Store) CountCurrentMembers(ctx context.Context, teamID string) (int, error) {
	var n int
	q := currentMembersCount + membershipCurrent("m") + ` and ` + identityUsable("i")
	if err := s.db.QueryRowContext(ctx, q, teamID).Scan(&n); err != nil {
		return 0, translate(err, "count team members")
	}
	return n, nil
}

func (s *Store) CurrentTeams(ctx context.Context, identityID string) ([]directory.Team, error) {
	q := `
		select ` + teamCols + `
		from teams t
		join team_users m on m.team_id = t.id
		join identities i on i.id = m.identity_id
		where m.identity_id = $1 and t.active and ` + membershipCurrent("m") + ` and ` + identityUsable("i") + `
		order by lower(t.name), t.id`
	return query(ctx, s.db, q, []any{identityID}, "identity teams", scanTeam)
}
