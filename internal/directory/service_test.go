package directory_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"durga.org/internal/directory"
	"durga.org/internal/store/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recorder struct {
	mu       sync.Mutex
	events   []string
	outcomes map[string][]error
	retries  int
}

func (r *recorder) Record(_ context.Context, event string, _ map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) Workflow(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = make(map[string][]error)
	}
	r.outcomes[op] = append(r.outcomes[op], err)
}

func (r *recorder) RaceRetry(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries++
}

type fixture struct {
	ctx   context.Context
	store directory.Store
	svc   *directory.Service
	clock *fakeClock
	rec   *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, memory.New())
}

func newFixtureWithStore(t *testing.T, store directory.Store) *fixture {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)}
	rec := &recorder{}
	seq := 0
	svc, err := directory.NewService(store,
		directory.WithClock(clock.Now),
		directory.WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("id-%03d", seq)
		}),
		directory.WithAuditor(rec),
		directory.WithMetrics(rec),
	)
	require.NoError(t, err)
	return &fixture{ctx: context.Background(), store: store, svc: svc, clock: clock, rec: rec}
}

func (f *fixture) identity(t *testing.T, username, first, last string) directory.Identity {
	t.Helper()
	i, err := f.svc.CreateIdentity(f.ctx, directory.IdentityInput{
		Username:  username,
		Email:     username + "@example.com",
		FirstName: first,
		LastName:  last,
	}, "seed")
	require.NoError(t, err)
	return i
}

func (f *fixture) role(t *testing.T, name string, system bool) directory.Role {
	t.Helper()
	r, err := f.svc.CreateRole(f.ctx, directory.RoleInput{Name: name, IsSystem: system}, "seed")
	require.NoError(t, err)
	return r
}

func (f *fixture) department(t *testing.T, name string) directory.Department {
	t.Helper()
	d, err := f.svc.CreateDepartment(f.ctx, directory.DepartmentInput{Name: name}, "seed")
	require.NoError(t, err)
	return d
}

func (f *fixture) team(t *testing.T, name, departmentID string) directory.Team {
	t.Helper()
	tm, err := f.svc.CreateTeam(f.ctx, directory.TeamInput{Name: name, DepartmentID: departmentID}, "seed")
	require.NoError(t, err)
	return tm
}

func TestExpiredAdminGrantIsNotEffective(t *testing.T) {
	f := newFixture(t)
	u := f.identity(t, "U", "Una", "User")
	admin := f.role(t, "Admin", true)

	require.NoError(t, f.svc.GrantRole(f.ctx, u.ID, admin.ID, "root", directory.WithExpiry(f.clock.Now().Add(time.Hour))))

	ok, err := f.svc.IsInRole(f.ctx, u.ID, "Admin")
	require.NoError(t, err)
	assert.True(t, ok)

	f.clock.Advance(2 * time.Hour)

	ok, err = f.svc.IsInRole(f.ctx, u.ID, "admin")
	require.NoError(t, err)
	assert.False(t, ok, "expired grant must not be effective")

	names, err := f.svc.EffectiveRoleNames(f.ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, names)

	n, err := f.svc.CountRoleHolders(f.ctx, admin.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	g, err := f.store.GetGrant(f.ctx, u.ID, admin.ID)
	require.NoError(t, err)
	assert.True(t, g.Active, "expiry is evaluated on read, not written back")
}

func TestRevokeThenGrantReactivatesSingleRow(t *testing.T) {
	f := newFixture(t)
	u := f.identity(t, "alice", "Alice", "Ng")
	r := f.role(t, "Editor", false)

	require.NoError(t, f.svc.GrantRole(f.ctx, u.ID, r.ID, "root"))
	f.clock.Advance(time.Minute)
	require.NoError(t, f.svc.RevokeRole(f.ctx, u.ID, r.ID, "root"))

	g, err := f.store.GetGrant(f.ctx, u.ID, r.ID)
	require.NoError(t, err)
	require.False(t, g.Active)
	require.NotNil(t, g.RevokedAt)

	f.clock.Advance(time.Minute)
	second := f.clock.Now()
	require.NoError(t, f.svc.GrantRole(f.ctx, u.ID, r.ID, "ops"))

	grants, err := f.svc.IdentityGrants(f.ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.True(t, grants[0].Active)
	assert.True(t, grants[0].AssignedAt.Equal(second))
	assert.Equal(t, "ops", grants[0].AssignedBy)
	assert.Nil(t, grants[0].ExpiresAt)
	assert.Nil(t, grants[0].RevokedAt)
	assert.Empty(t, grants[0].RevokedBy)
}

func TestGrantRoleAlreadyEffectiveIsNoop(t *testing.T) {
	f := newFixture(t)
	u := f.identity(t, "alice", "Alice", "Ng")
	r := f.role(t, "Editor", false)

	require.NoError(t, f.svc.GrantRole(f.ctx, u.ID, r.ID, "root"))
	first, err := f.store.GetGrant(f.ctx, u.ID, r.ID)
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	require.NoError(t, f.svc.GrantRole(f.ctx, u.ID, r.ID, "other"))
	again, err := f.store.GetGrant(f.ctx, u.ID, r.ID)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	exp := f.clock.Now().Add(24 * time.Hour)
	require.NoError(t, f.svc.GrantRole(f.ctx, u.ID, r.ID, "other", directory.WithExpiry(exp)))
	bounded, err := f.store.GetGrant(f.ctx, u.ID, r.ID)
	require.NoError(t, err)
	require.NotNil(t, bounded.ExpiresAt)
	assert.True(t, bounded.ExpiresAt.Equal(exp))
}

func TestGrantRoleValidation(t *testing.T) {
	f := newFixture(t)
	u := f.identity(t, "alice", "Alice", "Ng")
	r := f.role(t, "Editor", false)

	err := f.svc.GrantRole(f.ctx, "missing", r.ID, "root")
	assert.ErrorIs(t, err, directory.ErrNotFound)

	err = f.svc.GrantRole(f.ctx, u.ID, "missing", "root")
	assert.ErrorIs(t, err, directory.ErrNotFound)

	err = f.svc.GrantRole(f.ctx, " ", r.ID, "root")
	assert.ErrorIs(t, err, directory.ErrInvalidArgument)

	err = f.svc.GrantRole(f.ctx, u.ID, r.ID, "root", directory.WithExpiry(f.clock.Now().Add(-time.Second)))
	assert.ErrorIs(t, err, directory.ErrInvalidArgument)

	inactive := false
	_, err = f.svc.UpdateRole(f.ctx, r.ID, directory.RoleUpdate{Active: &inactive}, "root")
	require.NoError(t, err)
	err = f.svc.GrantRole(f.ctx, u.ID, r.ID, "root")
	assert.ErrorIs(t, err, directory.ErrInactive)

	err = f.svc.RevokeRole(f.ctx, u.ID, r.ID, "root")
	assert.ErrorIs(t, err, directory.ErrNotFound)
}

func TestJoinLeaveJoinKeepsOneRow(t *testing.T) {
	f := newFixture(t)
	u := f.identity(t, "bob", "Bob", "Tan")
	d := f.department(t, "Engineering")
	tm := f.team(t, "Platform", d.ID)

	require.NoError(t, f.svc.JoinTeam(f.ctx, tm.ID, u.ID, "root"))
	err := f.svc.JoinTeam(f.ctx, tm.ID, u.ID, "root")
	assert.ErrorIs(t, err, directory.ErrAlreadyMember)
	assert.ErrorIs(t, err, directory.ErrConflict)

	f.clock.Advance(time.Hour)
	require.NoError(t, f.svc.LeaveTeam(f.ctx, tm.ID, u.ID, "root"))
	assert.ErrorIs(t, f.svc.LeaveTeam(f.ctx, tm.ID, u.ID, "root"), directory.ErrNotFound)

	members, err := f.svc.TeamMembers(f.ctx, tm.ID)
	require.NoError(t, err)
	assert.Empty(t, members)

	f.clock.Advance(time.Hour)
	second := f.clock.Now()
	require.NoError(t, f.svc.JoinTeam(f.ctx, tm.ID, u.ID, "lead"))

	rows, err := f.svc.TeamMemberships(f.ctx, tm.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, directory.MembershipCurrent(rows[0]))
	assert.True(t, rows[0].JoinedAt.Equal(second))
	assert.Equal(t, "lead", rows[0].JoinedBy)
	assert.Nil(t, rows[0].LeftAt)
}

func TestJoinTeamValidation(t *testing.T) {
	f := newFixture(t)
	u := f.identity(t, "bob", "Bob", "Tan")
	d := f.department(t, "Engineering")
	tm := f.team(t, "Platform", d.ID)

	assert.ErrorIs(t, f.svc.JoinTeam(f.ctx, "missing", u.ID, "root"), directory.ErrNotFound)
	assert.ErrorIs(t, f.svc.JoinTeam(f.ctx, tm.ID, "missing", "root"), directory.ErrNotFound)

	inactive := false
	_, err := f.svc.UpdateTeam(f.ctx, tm.ID, directory.TeamUpdate{Active: &inactive}, "root")
	require.NoError(t, err)
	assert.ErrorIs(t, f.svc.JoinTeam(f.ctx, tm.ID, u.ID, "root"), directory.ErrInactive)
}

func TestLeaderWithoutMembership(t *testing.T) {
	f := newFixture(t)
	x := f.identity(t, "x", "Xena", "Ray")
	d := f.department(t, "Ops")
	tm := f.team(t, "Oncall", d.ID)

	require.NoError(t, f.svc.AssignTeamLeader(f.ctx, tm.ID, x.ID, "root"))

	tm, err := f.svc.GetTeam(f.ctx, tm.ID)
	require.NoError(t, err)
	ms, err := f.svc.TeamMemberships(f.ctx, tm.ID)
	require.NoError(t, err)
	idx := directory.IndexIdentities(x)

	assert.True(t, directory.HasLeader(tm, idx))
	assert.False(t, directory.IsLeaderInTeam(tm, ms, idx))

	led, err := f.svc.TeamsLedBy(f.ctx, x.ID)
	require.NoError(t, err)
	require.Len(t, led, 1)
	assert.Equal(t, tm.ID, led[0].ID)

	require.NoError(t, f.svc.ClearTeamLeader(f.ctx, tm.ID, "root"))
	tm, err = f.svc.GetTeam(f.ctx, tm.ID)
	require.NoError(t, err)
	assert.False(t, directory.HasLeader(tm, idx))
}

func TestLeaveKeepsLeaderPointer(t *testing.T) {
	f := newFixture(t)
	x := f.identity(t, "x", "Xena", "Ray")
	d := f.department(t, "Ops")
	tm := f.team(t, "Oncall", d.ID)

	require.NoError(t, f.svc.JoinTeam(f.ctx, tm.ID, x.ID, "root"))
	require.NoError(t, f.svc.AssignTeamManager(f.ctx, tm.ID, x.ID, "root"))
	require.NoError(t, f.svc.LeaveTeam(f.ctx, tm.ID, x.ID, "root"))

	tm, err := f.svc.GetTeam(f.ctx, tm.ID)
	require.NoError(t, err)
	assert.Equal(t, x.ID, tm.ManagerID)
}

func TestSoftDeletedIdentityDisappears(t *testing.T) {
	f := newFixture(t)
	u := f.identity(t, "carol", "Carol", "Diaz")
	keep := f.identity(t, "dave", "Dave", "Eng")
	r := f.role(t, "Viewer", false)
	d := f.department(t, "Sales")
	tm := f.team(t, "EMEA", d.ID)

	for _, id := range []string{u.ID, keep.ID} {
		require.NoError(t, f.svc.GrantRole(f.ctx, id, r.ID, "root"))
		require.NoError(t, f.svc.JoinTeam(f.ctx, tm.ID, id, "root"))
	}
	require.NoError(t, f.svc.DeleteIdentity(f.ctx, u.ID, "root"))

	_, err := f.svc.GetIdentity(f.ctx, u.ID)
	assert.ErrorIs(t, err, directory.ErrNotFound)

	list, err := f.svc.ListIdentities(f.ctx, directory.IdentityQuery{Page: directory.Page{Number: 1, Size: 50}, IncludeInactive: true})
	require.NoError(t, err)
	assert.Equal(t, 1, list.Total)
	require.Len(t, list.Items, 1)
	assert.Equal(t, keep.ID, list.Items[0].ID)

	holders, err := f.svc.IdentitiesInRole(f.ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, holders, 1)
	assert.Equal(t, keep.ID, holders[0].ID)

	n, err := f.svc.CountRoleHolders(f.ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	members, err := f.svc.TeamMembers(f.ctx, tm.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, keep.ID, members[0].ID)

	count, err := f.store.CountCurrentMembers(f.ctx, tm.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	assert.ErrorIs(t, f.svc.GrantRole(f.ctx, u.ID, r.ID, "root"), directory.ErrNotFound)
	assert.ErrorIs(t, f.svc.AssignTeamLeader(f.ctx, tm.ID, u.ID, "root"), directory.ErrNotFound)
	assert.ErrorIs(t, f.svc.DeleteIdentity(f.ctx, u.ID, "root"), directory.ErrNotFound)

	_, err = f.svc.CreateIdentity(f.ctx, directory.IdentityInput{Username: "CAROL", Email: "new@example.com"}, "root")
	assert.ErrorIs(t, err, directory.ErrConflict, "usernames of deleted identities stay reserved")
}

func TestPaginationIsDisjointAndComplete(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.identity(t, fmt.Sprintf("user%d", i), "User", fmt.Sprint(i))
		f.clock.Advance(time.Second)
	}
	all, err := f.svc.ListIdentities(f.ctx, directory.IdentityQuery{Page: directory.Page{Number: 1, Size: 100}})
	require.NoError(t, err)
	require.Len(t, all.Items, 5)

	seen := map[string]int{}
	var union []string
	for p := 1; p <= 3; p++ {
		res, err := f.svc.ListIdentities(f.ctx, directory.IdentityQuery{Page: directory.Page{Number: p, Size: 2}})
		require.NoError(t, err)
		assert.Equal(t, 5, res.Total)
		for _, i := range res.Items {
			seen[i.ID]++
			union = append(union, i.ID)
		}
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "identity %s appeared on more than one page", id)
	}
	var want []string
	for _, i := range all.Items {
		want = append(want, i.ID)
	}
	assert.Equal(t, want, union)

	_, err = f.svc.ListIdentities(f.ctx, directory.IdentityQuery{Page: directory.Page{Number: 0, Size: 2}})
	assert.ErrorIs(t, err, directory.ErrInvalidArgument)
}

func TestSearchFiltersCountAndPage(t *testing.T) {
	f := newFixture(t)
	f.identity(t, "alice", "Alice", "Ng")
	f.identity(t, "alina", "Alina", "Po")
	f.identity(t, "bob", "Bob", "Tan")

	res, err := f.svc.ListIdentities(f.ctx, directory.IdentityQuery{Page: directory.Page{Number: 1, Size: 1}, Search: " ALI "})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Len(t, res.Items, 1)

	f.role(t, "Auditor", false)
	f.role(t, "Admin", true)
	system := true
	roles, err := f.svc.ListRoles(f.ctx, directory.RoleQuery{Page: directory.Page{Number: 1, Size: 10}, System: &system})
	require.NoError(t, err)
	require.Len(t, roles.Items, 1)
	assert.Equal(t, "Admin", roles.Items[0].Name)
}

func TestDepartmentDeleteBlockedByTeams(t *testing.T) {
	f := newFixture(t)
	d := f.department(t, "Finance")
	tm := f.team(t, "Payables", d.ID)

	err := f.svc.DeleteDepartment(f.ctx, d.ID, "root")
	assert.ErrorIs(t, err, directory.ErrConflict)

	require.NoError(t, f.svc.DeleteTeam(f.ctx, tm.ID, "root"))
	require.NoError(t, f.svc.DeleteDepartment(f.ctx, d.ID, "root"))

	_, err = f.svc.GetDepartment(f.ctx, d.ID)
	assert.ErrorIs(t, err, directory.ErrNotFound)
}

func TestDeleteTeamBlockedByCurrentMembers(t *testing.T) {
	f := newFixture(t)
	u := f.identity(t, "bob", "Bob", "Tan")
	d := f.department(t, "Engineering")
	tm := f.team(t, "Platform", d.ID)
	require.NoError(t, f.svc.JoinTeam(f.ctx, tm.ID, u.ID, "root"))

	assert.ErrorIs(t, f.svc.DeleteTeam(f.ctx, tm.ID, "root"), directory.ErrConflict)

	require.NoError(t, f.svc.LeaveTeam(f.ctx, tm.ID, u.ID, "root"))
	require.NoError(t, f.svc.DeleteTeam(f.ctx, tm.ID, "root"))

	_, err := f.store.GetMembership(f.ctx, tm.ID, u.ID)
	assert.ErrorIs(t, err, directory.ErrNotFound, "historical rows are removed with the team")
}

func TestDeleteRolePolicy(t *testing.T) {
	f := newFixture(t)
	u := f.identity(t, "alice", "Alice", "Ng")
	admin := f.role(t, "Admin", true)
	editor := f.role(t, "Editor", false)

	err := f.svc.DeleteRole(f.ctx, admin.ID, "root")
	assert.ErrorIs(t, err, directory.ErrSystemRole)
	assert.ErrorIs(t, err, directory.ErrConflict)

	newName := "Root"
	_, err = f.svc.UpdateRole(f.ctx, admin.ID, directory.RoleUpdate{Name: &newName}, "root")
	assert.ErrorIs(t, err, directory.ErrSystemRole)

	require.NoError(t, f.svc.GrantRole(f.ctx, u.ID, editor.ID, "root"))
	assert.ErrorIs(t, f.svc.DeleteRole(f.ctx, editor.ID, "root"), directory.ErrConflict)

	require.NoError(t, f.svc.RevokeRole(f.ctx, u.ID, editor.ID, "root"))
	require.NoError(t, f.svc.DeleteRole(f.ctx, editor.ID, "root"))

	_, err = f.store.GetGrant(f.ctx, u.ID, editor.ID)
	assert.ErrorIs(t, err, directory.ErrNotFound)
}

func TestDeleteRoleIgnoresExpiredGrants(t *testing.T) {
	f := newFixture(t)
	u := f.identity(t, "alice", "Alice", "Ng")
	r := f.role(t, "Temp", false)
	require.NoError(t, f.svc.GrantRole(f.ctx, u.ID, r.ID, "root", directory.WithExpiry(f.clock.Now().Add(time.Minute))))

	f.clock.Advance(time.Hour)
	require.NoError(t, f.svc.DeleteRole(f.ctx, r.ID, "root"))
}

func TestMutationsAreAudited(t *testing.T) {
	f := newFixture(t)
	u := f.identity(t, "alice", "Alice", "Ng")
	r := f.role(t, "Editor", false)
	require.NoError(t, f.svc.GrantRole(f.ctx, u.ID, r.ID, "root"))
	assert.Error(t, f.svc.GrantRole(f.ctx, u.ID, "missing", "root"))

	assert.Equal(t, []string{"identity.created", "role.created", "role.granted"}, f.rec.events)
	require.Len(t, f.rec.outcomes["grant_role"], 2)
	assert.NoError(t, f.rec.outcomes["grant_role"][0])
	assert.ErrorIs(t, f.rec.outcomes["grant_role"][1], directory.ErrNotFound)
}

// racyStore hides existing join rows from the first lookup to force the insert path.
type racyStore struct {
	directory.Store
	failRetry bool
}

func (s *racyStore) GetGrant(ctx context.Context, identityID, roleID string) (directory.Grant, error) {
	return directory.Grant{}, directory.ErrNotFound
}

func (s *racyStore) ReactivateGrant(ctx context.Context, g directory.Grant) error {
	if s.failRetry {
		return directory.ErrNotFound
	}
	return s.Store.ReactivateGrant(ctx, g)
}

func (s *racyStore) GetMembership(ctx context.Context, teamID, identityID string) (directory.Membership, error) {
	return directory.Membership{}, directory.ErrNotFound
}

func TestGrantRoleRetriesOnceAfterInsertRace(t *testing.T) {
	inner := memory.New()
	racy := &racyStore{Store: inner}
	f := newFixtureWithStore(t, racy)
	u := f.identity(t, "alice", "Alice", "Ng")
	r := f.role(t, "Editor", false)

	require.NoError(t, f.svc.GrantRole(f.ctx, u.ID, r.ID, "root"))
	require.NoError(t, f.svc.RevokeRole(f.ctx, u.ID, r.ID, "root"))
	require.NoError(t, f.svc.GrantRole(f.ctx, u.ID, r.ID, "root"))
	assert.Equal(t, 1, f.rec.retries)

	g, err := inner.GetGrant(f.ctx, u.ID, r.ID)
	require.NoError(t, err)
	assert.True(t, g.Active)

	racy.failRetry = true
	err = f.svc.GrantRole(f.ctx, u.ID, r.ID, "root")
	assert.ErrorIs(t, err, directory.ErrConflict)
	assert.Equal(t, 2, f.rec.retries)
}

func TestJoinTeamRaceReportsAlreadyMember(t *testing.T) {
	inner := memory.New()
	f := newFixtureWithStore(t, &racyStore{Store: inner})
	u := f.identity(t, "bob", "Bob", "Tan")
	d := f.department(t, "Engineering")
	tm := f.team(t, "Platform", d.ID)

	require.NoError(t, f.svc.JoinTeam(f.ctx, tm.ID, u.ID, "root"))
	err := f.svc.JoinTeam(f.ctx, tm.ID, u.ID, "root")
	assert.ErrorIs(t, err, directory.ErrAlreadyMember)
	assert.Equal(t, 1, f.rec.retries)

	require.NoError(t, f.svc.LeaveTeam(f.ctx, tm.ID, u.ID, "root"))
	require.NoError(t, f.svc.JoinTeam(f.ctx, tm.ID, u.ID, "root"))
	assert.Equal(t, 2, f.rec.retries)
}

func TestConcurrentJoinsProduceOneRow(t *testing.T) {
	f := newFixture(t)
	u := f.identity(t, "bob", "Bob", "Tan")
	d := f.department(t, "Engineering")
	tm := f.team(t, "Platform", d.ID)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.svc.JoinTeam(f.ctx, tm.ID, u.ID, "root")
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, directory.ErrConflict)
	}
	assert.Equal(t, 1, ok)

	rows, err := f.svc.TeamMemberships(f.ctx, tm.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestIdentityValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateIdentity(f.ctx, directory.IdentityInput{Username: " ", Email: "a@example.com"}, "root")
	assert.ErrorIs(t, err, directory.ErrInvalidArgument)

	_, err = f.svc.CreateIdentity(f.ctx, directory.IdentityInput{Username: "a", Email: "not-an-email"}, "root")
	assert.ErrorIs(t, err, directory.ErrInvalidArgument)

	i, err := f.svc.CreateIdentity(f.ctx, directory.IdentityInput{Username: "  Mixed ", Email: "Mixed@Example.com"}, "root")
	require.NoError(t, err)
	assert.Equal(t, "mixed", i.Username)
	assert.Equal(t, "mixed@example.com", i.Email)

	found, err := f.svc.GetIdentityByEmail(f.ctx, "MIXED@example.com")
	require.NoError(t, err)
	assert.Equal(t, i.ID, found.ID)

	_, err = f.svc.CreateIdentity(f.ctx, directory.IdentityInput{Username: "other", Email: "mixed@example.com"}, "root")
	assert.ErrorIs(t, err, directory.ErrConflict)
}

func TestDepartmentManager(t *testing.T) {
	f := newFixture(t)
	m := f.identity(t, "mgr", "Mia", "Gr")
	d := f.department(t, "Legal")

	require.NoError(t, f.svc.AssignDepartmentManager(f.ctx, d.ID, m.ID, "root"))
	managed, err := f.svc.DepartmentsManagedBy(f.ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, managed, 1)
	assert.Equal(t, d.ID, managed[0].ID)

	require.NoError(t, f.svc.ClearDepartmentManager(f.ctx, d.ID, "root"))
	d, err = f.svc.GetDepartment(f.ctx, d.ID)
	require.NoError(t, err)
	assert.Empty(t, d.ManagerID)

	assert.ErrorIs(t, f.svc.AssignDepartmentManager(f.ctx, d.ID, "missing", "root"), directory.ErrNotFound)
}
