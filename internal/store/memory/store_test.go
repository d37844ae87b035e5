package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"durga.org/internal/directory"
)

var t0 = time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)

func seedIdentity(t *testing.T, s *Store, id, first, last string, created time.Time) directory.Identity {
	t.Helper()
	i, err := s.CreateIdentity(context.Background(), directory.Identity{
		ID: id, Username: id, Email: id + "@example.com", FirstName: first, LastName: last,
		Active: true, CreatedAt: created,
	})
	require.NoError(t, err)
	return i
}

func TestMembersOrderedByName(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedIdentity(t, s, "u1", "Zoe", "Adams", t0)
	seedIdentity(t, s, "u2", "amy", "Brown", t0.Add(time.Minute))
	seedIdentity(t, s, "u3", "Amy", "Allen", t0.Add(2*time.Minute))
	_, err := s.CreateRole(ctx, directory.Role{ID: "r1", Name: "Viewer", Active: true})
	require.NoError(t, err)
	for _, id := range []string{"u1", "u2", "u3"} {
		require.NoError(t, s.InsertGrant(ctx, directory.Grant{IdentityID: id, RoleID: "r1", AssignedAt: t0, Active: true}))
	}

	got, err := s.IdentitiesInRole(ctx, "r1", t0)
	require.NoError(t, err)
	var ids []string
	for _, i := range got {
		ids = append(ids, i.ID)
	}
	assert.Equal(t, []string{"u3", "u2", "u1"}, ids)
}

func TestListRolesFarPageIsEmpty(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, name := range []string{"Auditor", "Editor", "Viewer"} {
		_, err := s.CreateRole(ctx, directory.Role{ID: "role-" + name, Name: name, Active: true})
		require.NoError(t, err)
	}

	first, err := s.ListRoles(ctx, directory.RoleQuery{Page: directory.Page{Number: 1, Size: 4}})
	require.NoError(t, err)
	assert.Len(t, first.Items, 3)

	far, err := s.ListRoles(ctx, directory.RoleQuery{Page: directory.Page{Number: 1<<62 + 1, Size: 4}})
	require.NoError(t, err)
	assert.Empty(t, far.Items)
	assert.Equal(t, 3, far.Total)
}

func TestInsertGrantConflictAndForeignKeys(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedIdentity(t, s, "u1", "A", "B", t0)
	_, err := s.CreateRole(ctx, directory.Role{ID: "r1", Name: "Viewer", Active: true})
	require.NoError(t, err)

	g := directory.Grant{IdentityID: "u1", RoleID: "r1", AssignedAt: t0, Active: true}
	require.NoError(t, s.InsertGrant(ctx, g))
	assert.ErrorIs(t, s.InsertGrant(ctx, g), directory.ErrConflict)
	assert.ErrorIs(t, s.InsertGrant(ctx, directory.Grant{IdentityID: "nobody", RoleID: "r1"}), directory.ErrNotFound)
	assert.ErrorIs(t, s.ReactivateGrant(ctx, directory.Grant{IdentityID: "u1", RoleID: "r2"}), directory.ErrNotFound)
}

func TestRoleNamesAreCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.CreateRole(ctx, directory.Role{ID: "r1", Name: "Admin", Active: true})
	require.NoError(t, err)
	_, err = s.CreateRole(ctx, directory.Role{ID: "r2", Name: "ADMIN", Active: true})
	assert.ErrorIs(t, err, directory.ErrConflict)

	r, err := s.GetRoleByName(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, "r1", r.ID)
}

func TestListTeamsFiltersByDepartmentAndActive(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.CreateDepartment(ctx, directory.Department{ID: "d1", Name: "Eng"})
	require.NoError(t, err)
	_, err = s.CreateDepartment(ctx, directory.Department{ID: "d2", Name: "Ops"})
	require.NoError(t, err)
	for _, tm := range []directory.Team{
		{ID: "t1", Name: "beta", DepartmentID: "d1", Active: true},
		{ID: "t2", Name: "Alpha", DepartmentID: "d1", Active: false},
		{ID: "t3", Name: "gamma", DepartmentID: "d2", Active: true},
	} {
		_, err := s.CreateTeam(ctx, tm)
		require.NoError(t, err)
	}
	_, err = s.CreateTeam(ctx, directory.Team{ID: "t4", Name: "orphan", DepartmentID: "missing"})
	assert.ErrorIs(t, err, directory.ErrNotFound)

	res, err := s.ListTeams(ctx, directory.TeamQuery{Page: directory.Page{Number: 1, Size: 10}, DepartmentID: "d1"})
	require.NoError(t, err)
	require.Equal(t, 1, res.Total)
	assert.Equal(t, "t1", res.Items[0].ID)

	res, err = s.ListTeams(ctx, directory.TeamQuery{Page: directory.Page{Number: 1, Size: 10}, IncludeInactive: true})
	require.NoError(t, err)
	require.Len(t, res.Items, 3)
	assert.Equal(t, []string{"Alpha", "beta", "gamma"}, []string{res.Items[0].Name, res.Items[1].Name, res.Items[2].Name})

	all, err := s.TeamsInDepartment(ctx, "d1")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestReviveRejectsCurrentMembership(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedIdentity(t, s, "u1", "A", "B", t0)
	_, err := s.CreateDepartment(ctx, directory.Department{ID: "d1", Name: "Eng"})
	require.NoError(t, err)
	_, err = s.CreateTeam(ctx, directory.Team{ID: "t1", Name: "core", DepartmentID: "d1", Active: true})
	require.NoError(t, err)

	m := directory.Membership{TeamID: "t1", IdentityID: "u1", JoinedAt: t0, Active: true}
	require.NoError(t, s.InsertMembership(ctx, m))
	assert.ErrorIs(t, s.ReviveMembership(ctx, m), directory.ErrAlreadyMember)

	require.NoError(t, s.EndMembership(ctx, "t1", "u1", directory.Stamp{By: "root", At: t0.Add(time.Hour)}))
	assert.ErrorIs(t, s.EndMembership(ctx, "t1", "u1", directory.Stamp{At: t0}), directory.ErrNotFound)

	teams, err := s.CurrentTeams(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, teams)

	require.NoError(t, s.ReviveMembership(ctx, directory.Membership{TeamID: "t1", IdentityID: "u1", JoinedAt: t0.Add(2 * time.Hour), Active: true}))
	teams, err = s.CurrentTeams(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, teams, 1)
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := New()
	_, err := s.GetIdentity(ctx, "u1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.Ping(ctx), context.Canceled)
}
