package summary_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"durga.org/internal/directory"
	"durga.org/internal/store/memory"
	"durga.org/internal/summary"
)

func setup(t *testing.T) (*directory.Service, *summary.Builder, *time.Time) {
	t.Helper()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := memory.New()
	svc, err := directory.NewService(store, directory.WithClock(clock))
	require.NoError(t, err)
	return svc, summary.NewBuilder(store, clock), &now
}

func TestTeamDetailAndDivergences(t *testing.T) {
	ctx := context.Background()
	svc, b, _ := setup(t)

	d, err := svc.CreateDepartment(ctx, directory.DepartmentInput{Name: "Eng"}, "root")
	require.NoError(t, err)
	tm, err := svc.CreateTeam(ctx, directory.TeamInput{Name: "Core", DepartmentID: d.ID}, "root")
	require.NoError(t, err)
	lead, err := svc.CreateIdentity(ctx, directory.IdentityInput{Username: "lee", Email: "lee@example.com", FirstName: "Lee", LastName: "Dean"}, "root")
	require.NoError(t, err)
	ann, err := svc.CreateIdentity(ctx, directory.IdentityInput{Username: "ann", Email: "ann@example.com", FirstName: "Ann", LastName: "Bo"}, "root")
	require.NoError(t, err)

	require.NoError(t, svc.JoinTeam(ctx, tm.ID, ann.ID, "root"))
	require.NoError(t, svc.AssignTeamLeader(ctx, tm.ID, lead.ID, "root"))

	detail, err := b.TeamDetail(ctx, tm.ID)
	require.NoError(t, err)
	assert.Equal(t, "Eng", detail.DepartmentName)
	assert.Equal(t, "Lee Dean", detail.LeaderName)
	assert.True(t, detail.HasLeader)
	assert.False(t, detail.IsLeaderInTeam)
	assert.Equal(t, 1, detail.ActiveMemberCount)
	require.Len(t, detail.Members, 1)
	assert.Equal(t, ann.ID, detail.Members[0].IdentityID)

	divs, err := b.Divergences(ctx)
	require.NoError(t, err)
	require.Len(t, divs, 1)
	assert.Equal(t, directory.DivergenceLeader, divs[0].Kind)
	assert.Equal(t, lead.ID, divs[0].IdentityID)
	assert.Equal(t, "Core", divs[0].TeamName)

	require.NoError(t, svc.JoinTeam(ctx, tm.ID, lead.ID, "root"))
	divs, err = b.Divergences(ctx)
	require.NoError(t, err)
	assert.Empty(t, divs)

	depts, err := b.DepartmentList(ctx, directory.DepartmentQuery{Page: directory.Page{Number: 1, Size: 10}})
	require.NoError(t, err)
	require.Len(t, depts.Items, 1)
	assert.Equal(t, 1, depts.Items[0].TeamCount)
}

func TestRoleAndIdentityViewsTrackExpiry(t *testing.T) {
	ctx := context.Background()
	svc, b, now := setup(t)

	admin, err := svc.CreateRole(ctx, directory.RoleInput{Name: "Admin", IsSystem: true}, "root")
	require.NoError(t, err)
	u, err := svc.CreateIdentity(ctx, directory.IdentityInput{Username: "u", Email: "u@example.com", FirstName: "Una"}, "root")
	require.NoError(t, err)
	require.NoError(t, svc.GrantRole(ctx, u.ID, admin.ID, "root", directory.WithExpiry(now.Add(time.Hour))))

	role, err := b.RoleDetail(ctx, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, role.UserCount)
	require.Len(t, role.Holders, 1)

	ident, err := b.IdentityDetail(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Admin"}, ident.RoleNames)

	*now = now.Add(2 * time.Hour)

	role, err = b.RoleDetail(ctx, admin.ID)
	require.NoError(t, err)
	assert.Zero(t, role.UserCount)
	assert.Empty(t, role.Holders)

	page, err := b.IdentityPage(ctx, directory.IdentityQuery{Page: directory.Page{Number: 1, Size: 10}})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Empty(t, page.Items[0].RoleNames)

	roles, err := b.RolePage(ctx, directory.RoleQuery{Page: directory.Page{Number: 1, Size: 10}})
	require.NoError(t, err)
	require.Len(t, roles.Items, 1)
	assert.Zero(t, roles.Items[0].UserCount)
}
