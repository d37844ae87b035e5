package summary

import (
	"context"
	"errors"
	"time"

	"durga.org/internal/directory"
)

const scanPageSize = 100

// Builder loads the slice of the entity graph a view needs and projects it. It keeps no
// state between calls.
type Builder struct {
	store directory.Store
	now   func() time.Time
}

// NewBuilder returns a Builder reading through store. now defaults to time.Now.
func NewBuilder(store directory.Store, now func() time.Time) *Builder {
	if now == nil {
		now = time.Now
	}
	return &Builder{store: store, now: now}
}

type IdentityDetail struct {
	IdentityView
	Teams              []NamedRef `json:"teams"`
	LeadsTeams         []NamedRef `json:"leads_teams"`
	ManagesDepartments []NamedRef `json:"manages_departments"`
}

type RoleDetail struct {
	RoleView
	Holders []IdentityRef `json:"holders"`
}

type TeamDetail struct {
	TeamView
	Members []TeamMemberView `json:"members"`
}

type DepartmentDetail struct {
	DepartmentView
	Teams []TeamView `json:"teams"`
}

// DivergenceView is a leader/manager pointer whose identity is not a current member.
type DivergenceView struct {
	directory.Divergence
	TeamName     string `json:"team_name"`
	IdentityName string `json:"identity_name"`
}

func (b *Builder) identityView(ctx context.Context, i directory.Identity, now time.Time) (IdentityView, error) {
	grants, err := b.store.GrantsForIdentity(ctx, i.ID)
	if err != nil {
		return IdentityView{}, err
	}
	roles, err := b.store.EffectiveRoles(ctx, i.ID, now)
	if err != nil {
		return IdentityView{}, err
	}
	byID := make(map[string]directory.Role, len(roles))
	for _, r := range roles {
		byID[r.ID] = r
	}
	return Identity(i, grants, byID, now), nil
}

func (b *Builder) IdentityDetail(ctx context.Context, id string) (IdentityDetail, error) {
	now := b.now().UTC()
	i, err := b.store.GetIdentity(ctx, id)
	if err != nil {
		return IdentityDetail{}, err
	}
	view, err := b.identityView(ctx, i, now)
	if err != nil {
		return IdentityDetail{}, err
	}
	teams, err := b.store.CurrentTeams(ctx, i.ID)
	if err != nil {
		return IdentityDetail{}, err
	}
	led, err := b.store.TeamsLedBy(ctx, i.ID)
	if err != nil {
		return IdentityDetail{}, err
	}
	depts, err := b.store.DepartmentsManagedBy(ctx, i.ID)
	if err != nil {
		return IdentityDetail{}, err
	}
	out := IdentityDetail{
		IdentityView:       view,
		Teams:              teamRefs(teams),
		LeadsTeams:         teamRefs(led),
		ManagesDepartments: make([]NamedRef, 0, len(depts)),
	}
	for _, d := range depts {
		out.ManagesDepartments = append(out.ManagesDepartments, NamedRef{ID: d.ID, Name: d.Name})
	}
	return out, nil
}

func (b *Builder) IdentityPage(ctx context.Context, q directory.IdentityQuery) (PageView[IdentityView], error) {
	if err := q.Page.Validate(); err != nil {
		return PageView[IdentityView]{}, err
	}
	now := b.now().UTC()
	res, err := b.store.ListIdentities(ctx, q)
	if err != nil {
		return PageView[IdentityView]{}, err
	}
	views := make(map[string]IdentityView, len(res.Items))
	for _, i := range res.Items {
		v, err := b.identityView(ctx, i, now)
		if err != nil {
			return PageView[IdentityView]{}, err
		}
		views[i.ID] = v
	}
	return Paged(res, q.Page, func(i directory.Identity) IdentityView { return views[i.ID] }), nil
}

func (b *Builder) roleView(ctx context.Context, r directory.Role, now time.Time) (RoleView, []directory.Identity, error) {
	grants, err := b.store.GrantsForRole(ctx, r.ID)
	if err != nil {
		return RoleView{}, nil, err
	}
	holders, err := b.store.IdentitiesInRole(ctx, r.ID, now)
	if err != nil {
		return RoleView{}, nil, err
	}
	return Role(r, grants, directory.IndexIdentities(holders...), now), holders, nil
}

func (b *Builder) RoleDetail(ctx context.Context, id string) (RoleDetail, error) {
	now := b.now().UTC()
	r, err := b.store.GetRole(ctx, id)
	if err != nil {
		return RoleDetail{}, err
	}
	view, holders, err := b.roleView(ctx, r, now)
	if err != nil {
		return RoleDetail{}, err
	}
	out := RoleDetail{RoleView: view, Holders: make([]IdentityRef, 0, len(holders))}
	for _, h := range holders {
		out.Holders = append(out.Holders, Ref(h))
	}
	return out, nil
}

func (b *Builder) RolePage(ctx context.Context, q directory.RoleQuery) (PageView[RoleView], error) {
	if err := q.Page.Validate(); err != nil {
		return PageView[RoleView]{}, err
	}
	now := b.now().UTC()
	res, err := b.store.ListRoles(ctx, q)
	if err != nil {
		return PageView[RoleView]{}, err
	}
	views := make(map[string]RoleView, len(res.Items))
	for _, r := range res.Items {
		v, _, err := b.roleView(ctx, r, now)
		if err != nil {
			return PageView[RoleView]{}, err
		}
		views[r.ID] = v
	}
	return Paged(res, q.Page, func(r directory.Role) RoleView { return views[r.ID] }), nil
}

// teamGraph loads the memberships of t and an index of every usable identity the team
// projection can reference.
func (b *Builder) teamGraph(ctx context.Context, t directory.Team) ([]directory.Membership, directory.IdentityIndex, error) {
	ms, err := b.store.MembershipsForTeam(ctx, t.ID)
	if err != nil {
		return nil, nil, err
	}
	members, err := b.store.CurrentMembers(ctx, t.ID)
	if err != nil {
		return nil, nil, err
	}
	idx := directory.IndexIdentities(members...)
	for _, id := range []string{t.LeaderID, t.ManagerID} {
		if err := b.resolve(ctx, idx, id); err != nil {
			return nil, nil, err
		}
	}
	return ms, idx, nil
}

// resolve adds id to idx when it names a usable identity.
func (b *Builder) resolve(ctx context.Context, idx directory.IdentityIndex, id string) error {
	if id == "" {
		return nil
	}
	if _, ok := idx[id]; ok {
		return nil
	}
	i, err := b.store.GetIdentity(ctx, id)
	switch {
	case err == nil:
		idx[i.ID] = i
		return nil
	case errors.Is(err, directory.ErrNotFound):
		return nil
	default:
		return err
	}
}

func (b *Builder) department(ctx context.Context, id string) (*directory.Department, error) {
	d, err := b.store.GetDepartment(ctx, id)
	if errors.Is(err, directory.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (b *Builder) teamView(ctx context.Context, t directory.Team, dept *directory.Department) (TeamView, []directory.Membership, directory.IdentityIndex, error) {
	ms, idx, err := b.teamGraph(ctx, t)
	if err != nil {
		return TeamView{}, nil, nil, err
	}
	return Team(t, dept, ms, idx), ms, idx, nil
}

func (b *Builder) TeamDetail(ctx context.Context, id string) (TeamDetail, error) {
	t, err := b.store.GetTeam(ctx, id)
	if err != nil {
		return TeamDetail{}, err
	}
	dept, err := b.department(ctx, t.DepartmentID)
	if err != nil {
		return TeamDetail{}, err
	}
	view, ms, idx, err := b.teamView(ctx, t, dept)
	if err != nil {
		return TeamDetail{}, err
	}
	return TeamDetail{TeamView: view, Members: TeamMembers(t, ms, idx)}, nil
}

func (b *Builder) TeamMembers(ctx context.Context, id string) ([]TeamMemberView, error) {
	t, err := b.store.GetTeam(ctx, id)
	if err != nil {
		return nil, err
	}
	ms, idx, err := b.teamGraph(ctx, t)
	if err != nil {
		return nil, err
	}
	return TeamMembers(t, ms, idx), nil
}

func (b *Builder) TeamList(ctx context.Context, q directory.TeamQuery) (PageView[TeamView], error) {
	if err := q.Page.Validate(); err != nil {
		return PageView[TeamView]{}, err
	}
	res, err := b.store.ListTeams(ctx, q)
	if err != nil {
		return PageView[TeamView]{}, err
	}
	depts := map[string]*directory.Department{}
	views := make(map[string]TeamView, len(res.Items))
	for _, t := range res.Items {
		dept, ok := depts[t.DepartmentID]
		if !ok {
			if dept, err = b.department(ctx, t.DepartmentID); err != nil {
				return PageView[TeamView]{}, err
			}
			depts[t.DepartmentID] = dept
		}
		v, _, _, err := b.teamView(ctx, t, dept)
		if err != nil {
			return PageView[TeamView]{}, err
		}
		views[t.ID] = v
	}
	return Paged(res, q.Page, func(t directory.Team) TeamView { return views[t.ID] }), nil
}

func (b *Builder) departmentView(ctx context.Context, d directory.Department) (DepartmentView, []directory.Team, error) {
	teams, err := b.store.TeamsInDepartment(ctx, d.ID)
	if err != nil {
		return DepartmentView{}, nil, err
	}
	idx := directory.IdentityIndex{}
	if err := b.resolve(ctx, idx, d.ManagerID); err != nil {
		return DepartmentView{}, nil, err
	}
	return Department(d, teams, idx), teams, nil
}

func (b *Builder) DepartmentDetail(ctx context.Context, id string) (DepartmentDetail, error) {
	d, err := b.store.GetDepartment(ctx, id)
	if err != nil {
		return DepartmentDetail{}, err
	}
	view, teams, err := b.departmentView(ctx, d)
	if err != nil {
		return DepartmentDetail{}, err
	}
	out := DepartmentDetail{DepartmentView: view, Teams: make([]TeamView, 0, len(teams))}
	for _, t := range teams {
		tv, _, _, err := b.teamView(ctx, t, &d)
		if err != nil {
			return DepartmentDetail{}, err
		}
		out.Teams = append(out.Teams, tv)
	}
	return out, nil
}

func (b *Builder) DepartmentList(ctx context.Context, q directory.DepartmentQuery) (PageView[DepartmentView], error) {
	if err := q.Page.Validate(); err != nil {
		return PageView[DepartmentView]{}, err
	}
	res, err := b.store.ListDepartments(ctx, q)
	if err != nil {
		return PageView[DepartmentView]{}, err
	}
	views := make(map[string]DepartmentView, len(res.Items))
	for _, d := range res.Items {
		v, _, err := b.departmentView(ctx, d)
		if err != nil {
			return PageView[DepartmentView]{}, err
		}
		views[d.ID] = v
	}
	return Paged(res, q.Page, func(d directory.Department) DepartmentView { return views[d.ID] }), nil
}

// Divergences scans every team, active or not, and reports leader/manager pointers whose
// identity is not a current member.
func (b *Builder) Divergences(ctx context.Context) ([]DivergenceView, error) {
	out := []DivergenceView{}
	for page := 1; ; page++ {
		q := directory.TeamQuery{Page: directory.Page{Number: page, Size: scanPageSize}, IncludeInactive: true}
		res, err := b.store.ListTeams(ctx, q)
		if err != nil {
			return nil, err
		}
		for _, t := range res.Items {
			ms, idx, err := b.teamGraph(ctx, t)
			if err != nil {
				return nil, err
			}
			for _, d := range directory.TeamDivergences(t, ms, idx) {
				out = append(out, DivergenceView{
					Divergence:   d,
					TeamName:     t.Name,
					IdentityName: idx[d.IdentityID].FullName(),
				})
			}
		}
		if page*scanPageSize >= res.Total || len(res.Items) == 0 {
			return out, nil
		}
	}
}

func teamRefs(teams []directory.Team) []NamedRef {
	out := make([]NamedRef, 0, len(teams))
	for _, t := range teams {
		out = append(out, NamedRef{ID: t.ID, Name: t.Name})
	}
	return out
}
