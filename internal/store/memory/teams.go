package memory

import (
	"context"
	"sort"
	"strings"

	"durga.org/internal/directory"
)

func (s *Store) teamNameTaken(selfID, name string) error {
	for id, t := range s.teams {
		if id != selfID && strings.EqualFold(t.Name, name) {
			return conflict("team %q exists", name)
		}
	}
	return nil
}

func (s *Store) CreateTeam(ctx context.Context, t directory.Team) (directory.Team, error) {
	if err := ctx.Err(); err != nil {
		return directory.Team{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.teams[t.ID]; ok {
		return directory.Team{}, conflict("team %s exists", t.ID)
	}
	if _, ok := s.departments[t.DepartmentID]; !ok {
		return directory.Team{}, notFound("department", t.DepartmentID)
	}
	if err := s.teamNameTaken(t.ID, t.Name); err != nil {
		return directory.Team{}, err
	}
	s.teams[t.ID] = t
	return t, nil
}

func (s *Store) GetTeam(ctx context.Context, id string) (directory.Team, error) {
	if err := ctx.Err(); err != nil {
		return directory.Team{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.teams[id]
	if !ok {
		return directory.Team{}, notFound("team", id)
	}
	return t, nil
}

func (s *Store) UpdateTeam(ctx context.Context, id string, upd directory.TeamUpdate, st directory.Stamp) (directory.Team, error) {
	if err := ctx.Err(); err != nil {
		return directory.Team{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.teams[id]
	if !ok {
		return directory.Team{}, notFound("team", id)
	}
	if upd.Name != nil {
		if err := s.teamNameTaken(id, *upd.Name); err != nil {
			return directory.Team{}, err
		}
		t.Name = *upd.Name
	}
	if upd.Description != nil {
		t.Description = *upd.Description
	}
	if upd.DepartmentID != nil {
		if _, ok := s.departments[*upd.DepartmentID]; !ok {
			return directory.Team{}, notFound("department", *upd.DepartmentID)
		}
		t.DepartmentID = *upd.DepartmentID
	}
	if upd.Active != nil {
		t.Active = *upd.Active
	}
	at := st.At
	t.UpdatedAt = &at
	t.UpdatedBy = st.By
	s.teams[id] = t
	return t, nil
}

func (s *Store) DeleteTeam(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.teams[id]
	if !ok {
		return notFound("team", id)
	}
	if n := directory.ActiveMemberCount(id, s.teamMemberships(id), s.usableIndex()); n > 0 {
		return conflict("team %s has %d current members", t.Name, n)
	}
	for k := range s.memberships {
		if k.a == id {
			delete(s.memberships, k)
		}
	}
	delete(s.teams, id)
	return nil
}

func (s *Store) ListTeams(ctx context.Context, q directory.TeamQuery) (directory.Result[directory.Team], error) {
	if err := ctx.Err(); err != nil {
		return directory.Result[directory.Team]{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	term := directory.SearchTerm(q.Search)
	var list []directory.Team
	for _, t := range s.teams {
		if !q.IncludeInactive && !t.Active {
			continue
		}
		if q.DepartmentID != "" && t.DepartmentID != q.DepartmentID {
			continue
		}
		if !directory.Matches(term, t.Name, t.Description) {
			continue
		}
		list = append(list, t)
	}
	sortTeams(list)
	return page(list, q.Page), nil
}

func (s *Store) teamsWhere(ctx context.Context, match func(directory.Team) bool) ([]directory.Team, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var list []directory.Team
	for _, t := range s.teams {
		if match(t) {
			list = append(list, t)
		}
	}
	sortTeams(list)
	return list, nil
}

func (s *Store) TeamsInDepartment(ctx context.Context, departmentID string) ([]directory.Team, error) {
	return s.teamsWhere(ctx, func(t directory.Team) bool { return t.DepartmentID == departmentID })
}

func (s *Store) TeamsLedBy(ctx context.Context, identityID string) ([]directory.Team, error) {
	return s.teamsWhere(ctx, func(t directory.Team) bool { return identityID != "" && t.LeaderID == identityID })
}

func (s *Store) TeamsManagedBy(ctx context.Context, identityID string) ([]directory.Team, error) {
	return s.teamsWhere(ctx, func(t directory.Team) bool { return identityID != "" && t.ManagerID == identityID })
}

func (s *Store) SetTeamLeader(ctx context.Context, teamID, identityID string, st directory.Stamp) error {
	return s.setTeamPointer(ctx, teamID, identityID, st, func(t *directory.Team) { t.LeaderID = identityID })
}

func (s *Store) SetTeamManager(ctx context.Context, teamID, identityID string, st directory.Stamp) error {
	return s.setTeamPointer(ctx, teamID, identityID, st, func(t *directory.Team) { t.ManagerID = identityID })
}

func (s *Store) setTeamPointer(ctx context.Context, teamID, identityID string, st directory.Stamp, set func(*directory.Team)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.teams[teamID]
	if !ok {
		return notFound("team", teamID)
	}
	if identityID != "" {
		if _, ok := s.identities[identityID]; !ok {
			return notFound("identity", identityID)
		}
	}
	set(&t)
	at := st.At
	t.UpdatedAt = &at
	t.UpdatedBy = st.By
	s.teams[teamID] = t
	return nil
}

// teamMemberships returns the raw rows of teamID. Callers hold s.mu.
func (s *Store) teamMemberships(teamID string) []directory.Membership {
	var list []directory.Membership
	for k, m := range s.memberships {
		if k.a == teamID {
			list = append(list, m)
		}
	}
	return list
}

func (s *Store) GetMembership(ctx context.Context, teamID, identityID string) (directory.Membership, error) {
	if err := ctx.Err(); err != nil {
		return directory.Membership{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.memberships[pair{teamID, identityID}]
	if !ok {
		return directory.Membership{}, notFound("membership", teamID+"/"+identityID)
	}
	return m, nil
}

func (s *Store) InsertMembership(ctx context.Context, m directory.Membership) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := pair{m.TeamID, m.IdentityID}
	if _, ok := s.memberships[k]; ok {
		return conflict("membership %s/%s exists", m.TeamID, m.IdentityID)
	}
	if _, ok := s.teams[m.TeamID]; !ok {
		return notFound("team", m.TeamID)
	}
	if _, ok := s.identities[m.IdentityID]; !ok {
		return notFound("identity", m.IdentityID)
	}
	s.memberships[k] = m
	return nil
}

func (s *Store) ReviveMembership(ctx context.Context, m directory.Membership) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := pair{m.TeamID, m.IdentityID}
	cur, ok := s.memberships[k]
	if !ok {
		return notFound("membership", m.TeamID+"/"+m.IdentityID)
	}
	if directory.MembershipCurrent(cur) {
		return directory.ErrAlreadyMember
	}
	cur.JoinedAt = m.JoinedAt
	cur.JoinedBy = m.JoinedBy
	cur.LeftAt = nil
	cur.LeftBy = ""
	cur.Active = true
	s.memberships[k] = cur
	return nil
}

func (s *Store) EndMembership(ctx context.Context, teamID, identityID string, st directory.Stamp) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := pair{teamID, identityID}
	cur, ok := s.memberships[k]
	if !ok || !directory.MembershipCurrent(cur) {
		return notFound("current membership", teamID+"/"+identityID)
	}
	at := st.At
	cur.LeftAt = &at
	cur.LeftBy = st.By
	cur.Active = false
	s.memberships[k] = cur
	return nil
}

func (s *Store) MembershipsForTeam(ctx context.Context, teamID string) ([]directory.Membership, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.teamMemberships(teamID)
	sort.Slice(list, func(i, j int) bool {
		if !list[i].JoinedAt.Equal(list[j].JoinedAt) {
			return list[i].JoinedAt.Before(list[j].JoinedAt)
		}
		return list[i].IdentityID < list[j].IdentityID
	})
	return list, nil
}

func (s *Store) CurrentMembers(ctx context.Context, teamID string) ([]directory.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var list []directory.Identity
	for k, m := range s.memberships {
		if k.a != teamID || !directory.MembershipCurrent(m) {
			continue
		}
		if i, ok := s.usable(k.b); ok {
			list = append(list, i)
		}
	}
	sortMembers(list)
	return list, nil
}

func (s *Store) CountCurrentMembers(ctx context.Context, teamID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return directory.ActiveMemberCount(teamID, s.teamMemberships(teamID), s.usableIndex()), nil
}

func (s *Store) CurrentTeams(ctx context.Context, identityID string) ([]directory.Team, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.usable(identityID); !ok {
		return nil, nil
	}
	var list []directory.Team
	for k, m := range s.memberships {
		if k.b != identityID || !directory.MembershipCurrent(m) {
			continue
		}
		if t, ok := s.teams[k.a]; ok && t.Active {
			list = append(list, t)
		}
	}
	sortTeams(list)
	return list, nil
}
