package summary

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"durga.org/internal/directory"
)

var now = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func TestIdentityRoleNamesUseEffectiveGrantsOnly(t *testing.T) {
	yesterday := now.Add(-24 * time.Hour)
	u := directory.Identity{ID: "u1", FirstName: "Una", LastName: "User"}
	grants := []directory.Grant{
		{IdentityID: "u1", RoleID: "admin", Active: true, ExpiresAt: &yesterday},
		{IdentityID: "u1", RoleID: "user", Active: true},
		{IdentityID: "u1", RoleID: "gone", Active: true},
	}
	roles := map[string]directory.Role{
		"admin": {ID: "admin", Name: "Admin", Active: true},
		"user":  {ID: "user", Name: "User", Active: true},
	}
	v := Identity(u, grants, roles, now)
	assert.Equal(t, []string{"User"}, v.RoleNames)
	assert.Equal(t, "Una User", v.FullName)
}

func TestTeamViewResolvesNamesAndCounts(t *testing.T) {
	deleted := now
	lead := directory.Identity{ID: "l", FirstName: "Lee", LastName: "Dean"}
	mgr := directory.Identity{ID: "m", FirstName: "Max", LastName: "Ng", DeletedAt: &deleted}
	mem := directory.Identity{ID: "a", FirstName: "Ann", LastName: "Bo"}
	idx := directory.IndexIdentities(lead, mgr, mem)
	team := directory.Team{ID: "t", Name: "Core", DepartmentID: "d", LeaderID: "l", ManagerID: "m", Active: true}
	dept := &directory.Department{ID: "d", Name: "Eng"}
	ms := []directory.Membership{
		{TeamID: "t", IdentityID: "a", Active: true},
		{TeamID: "t", IdentityID: "m", Active: true},
	}

	v := Team(team, dept, ms, idx)
	assert.Equal(t, "Eng", v.DepartmentName)
	assert.Equal(t, "Lee Dean", v.LeaderName)
	assert.True(t, v.HasLeader)
	assert.False(t, v.IsLeaderInTeam)
	assert.False(t, v.HasManager)
	assert.Empty(t, v.ManagerName)
	assert.Equal(t, 1, v.ActiveMemberCount)

	members := TeamMembers(team, ms, idx)
	if assert.Len(t, members, 1) {
		assert.Equal(t, "a", members[0].IdentityID)
		assert.False(t, members[0].IsLeader)
	}
}

func TestDepartmentTeamCountIgnoresActiveFlag(t *testing.T) {
	d := directory.Department{ID: "d", Name: "Eng", ManagerID: "x"}
	teams := []directory.Team{
		{ID: "t1", DepartmentID: "d", Active: true},
		{ID: "t2", DepartmentID: "d", Active: false},
		{ID: "t3", DepartmentID: "other", Active: true},
	}
	v := Department(d, teams, directory.IdentityIndex{})
	assert.Equal(t, 2, v.TeamCount)
	assert.Equal(t, 1, v.ActiveTeamCount)
	assert.False(t, v.HasManager, "unresolvable manager")
}

func TestPagedMetadata(t *testing.T) {
	res := directory.Result[int]{Items: []int{3, 4}, Total: 5}
	p := Paged(res, directory.Page{Number: 2, Size: 2}, func(i int) int { return i * 10 })
	assert.Equal(t, []int{30, 40}, p.Items)
	assert.Equal(t, 3, p.TotalPages)
	assert.True(t, p.HasPrevious)
	assert.True(t, p.HasNext)

	last := Paged(directory.Result[int]{Items: []int{5}, Total: 5}, directory.Page{Number: 3, Size: 2}, func(i int) int { return i })
	assert.False(t, last.HasNext)
}

func TestProjectionsDoNotMutateInputs(t *testing.T) {
	team := directory.Team{ID: "t", LeaderID: "l"}
	ms := []directory.Membership{{TeamID: "t", IdentityID: "l", Active: true}}
	idx := directory.IndexIdentities(directory.Identity{ID: "l"})
	before := ms[0]
	first := Team(team, nil, ms, idx)
	second := Team(team, nil, ms, idx)
	assert.Equal(t, first, second)
	assert.Equal(t, before, ms[0])
}
