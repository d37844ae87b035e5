package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// TeamInput carries the fields of a new team.
type TeamInput struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	DepartmentID string `json:"department_id"`
}

// CreateTeam registers an active team inside an existing department.
func (s *Service) CreateTeam(ctx context.Context, in TeamInput, createdBy string) (out Team, err error) {
	const op = "create_team"
	defer func() { s.observe(op, err) }()

	name, err := requireName("team name", in.Name)
	if err != nil {
		return Team{}, err
	}
	dept, err := s.GetDepartment(ctx, in.DepartmentID)
	if err != nil {
		return Team{}, err
	}
	st := s.stamp(createdBy)
	out, err = s.store.CreateTeam(ctx, Team{
		ID:           s.newID(),
		Name:         name,
		Description:  strings.TrimSpace(in.Description),
		DepartmentID: dept.ID,
		Active:       true,
		CreatedAt:    st.At,
		CreatedBy:    st.By,
	})
	if err != nil {
		return Team{}, err
	}
	s.record(ctx, "team.created", map[string]any{"team_id": out.ID, "department_id": dept.ID})
	return out, nil
}

// GetTeam returns the team with the given id.
func (s *Service) GetTeam(ctx context.Context, id string) (Team, error) {
	id, err := requireID("team id", id)
	if err != nil {
		return Team{}, err
	}
	return s.store.GetTeam(ctx, id)
}

// ListTeams returns a page of teams.
func (s *Service) ListTeams(ctx context.Context, q TeamQuery) (Result[Team], error) {
	if err := q.Page.Validate(); err != nil {
		return Result[Team]{}, err
	}
	q.DepartmentID = strings.TrimSpace(q.DepartmentID)
	return s.store.ListTeams(ctx, q)
}

// UpdateTeam applies the non-nil fields of upd. Moving a team requires the target department
// to exist.
func (s *Service) UpdateTeam(ctx context.Context, id string, upd TeamUpdate, updatedBy string) (out Team, err error) {
	const op = "update_team"
	defer func() { s.observe(op, err) }()

	team, err := s.GetTeam(ctx, id)
	if err != nil {
		return Team{}, err
	}
	if upd.Name != nil {
		v, err := requireName("team name", *upd.Name)
		if err != nil {
			return Team{}, err
		}
		upd.Name = &v
	}
	upd.Description = trimPtr(upd.Description)
	if upd.DepartmentID != nil {
		dept, err := s.GetDepartment(ctx, *upd.DepartmentID)
		if err != nil {
			return Team{}, err
		}
		upd.DepartmentID = &dept.ID
	}
	out, err = s.store.UpdateTeam(ctx, team.ID, upd, s.stamp(updatedBy))
	if err != nil {
		return Team{}, err
	}
	s.record(ctx, "team.updated", map[string]any{"team_id": out.ID})
	return out, nil
}

// DeleteTeam removes a team without current members. Historical memberships go with it.
func (s *Service) DeleteTeam(ctx context.Context, id, deletedBy string) (err error) {
	const op = "delete_team"
	defer func() { s.observe(op, err) }()

	team, err := s.GetTeam(ctx, id)
	if err != nil {
		return err
	}
	if err = s.store.DeleteTeam(ctx, team.ID); err != nil {
		return err
	}
	s.record(ctx, "team.deleted", map[string]any{"team_id": team.ID, "name": team.Name, "deleted_by": strings.TrimSpace(deletedBy)})
	return nil
}

// JoinTeam makes identityID a current member of teamID. A previous membership row is
// revived with a fresh join stamp; a concurrent insert is retried once as a revival.
func (s *Service) JoinTeam(ctx context.Context, teamID, identityID, joinedBy string) (err error) {
	const op = "join_team"
	defer func() { s.observe(op, err) }()

	team, err := s.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if !team.Active {
		return fmt.Errorf("%w: team %s", ErrInactive, team.Name)
	}
	identity, err := s.GetIdentity(ctx, identityID)
	if err != nil {
		return err
	}
	st := s.stamp(joinedBy)
	m := Membership{
		TeamID:     team.ID,
		IdentityID: identity.ID,
		JoinedAt:   st.At,
		JoinedBy:   st.By,
		Active:     true,
	}

	existing, err := s.store.GetMembership(ctx, m.TeamID, m.IdentityID)
	switch {
	case err == nil:
		if MembershipCurrent(existing) {
			return ErrAlreadyMember
		}
		err = s.store.ReviveMembership(ctx, m)
	case errors.Is(err, ErrNotFound):
		err = s.store.InsertMembership(ctx, m)
		if errors.Is(err, ErrConflict) {
			s.metrics.RaceRetry(op)
			err = s.store.ReviveMembership(ctx, m)
			if errors.Is(err, ErrNotFound) {
				err = fmt.Errorf("%w: concurrent join of %s to team %s", ErrConflict, m.IdentityID, m.TeamID)
			}
		}
	}
	if err != nil {
		return err
	}
	s.record(ctx, "team.joined", map[string]any{"team_id": m.TeamID, "identity_id": m.IdentityID})
	return nil
}

// LeaveTeam ends the current membership of identityID in teamID. Leader and manager
// pointers are left untouched.
func (s *Service) LeaveTeam(ctx context.Context, teamID, identityID, leftBy string) (err error) {
	const op = "leave_team"
	defer func() { s.observe(op, err) }()

	if teamID, err = requireID("team id", teamID); err != nil {
		return err
	}
	if identityID, err = requireID("identity id", identityID); err != nil {
		return err
	}
	if err = s.store.EndMembership(ctx, teamID, identityID, s.stamp(leftBy)); err != nil {
		return err
	}
	s.record(ctx, "team.left", map[string]any{"team_id": teamID, "identity_id": identityID})
	return nil
}

// AssignTeamLeader points the team's leader at identityID. Membership is not required.
func (s *Service) AssignTeamLeader(ctx context.Context, teamID, identityID, assignedBy string) (err error) {
	const op = "assign_team_leader"
	defer func() { s.observe(op, err) }()
	return s.setTeamPointer(ctx, op, teamID, identityID, assignedBy, s.store.SetTeamLeader)
}

// AssignTeamManager points the team's manager at identityID. Membership is not required.
func (s *Service) AssignTeamManager(ctx context.Context, teamID, identityID, assignedBy string) (err error) {
	const op = "assign_team_manager"
	defer func() { s.observe(op, err) }()
	return s.setTeamPointer(ctx, op, teamID, identityID, assignedBy, s.store.SetTeamManager)
}

// ClearTeamLeader unsets the team's leader.
func (s *Service) ClearTeamLeader(ctx context.Context, teamID, clearedBy string) (err error) {
	const op = "clear_team_leader"
	defer func() { s.observe(op, err) }()
	return s.clearTeamPointer(ctx, op, teamID, clearedBy, s.store.SetTeamLeader)
}

// ClearTeamManager unsets the team's manager.
func (s *Service) ClearTeamManager(ctx context.Context, teamID, clearedBy string) (err error) {
	const op = "clear_team_manager"
	defer func() { s.observe(op, err) }()
	return s.clearTeamPointer(ctx, op, teamID, clearedBy, s.store.SetTeamManager)
}

type pointerSetter func(ctx context.Context, ownerID, identityID string, st Stamp) error

func (s *Service) setTeamPointer(ctx context.Context, op, teamID, identityID, by string, set pointerSetter) error {
	team, err := s.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	identity, err := s.GetIdentity(ctx, identityID)
	if err != nil {
		return err
	}
	if err := set(ctx, team.ID, identity.ID, s.stamp(by)); err != nil {
		return err
	}
	s.record(ctx, "team."+op, map[string]any{"team_id": team.ID, "identity_id": identity.ID})
	return nil
}

func (s *Service) clearTeamPointer(ctx context.Context, op, teamID, by string, set pointerSetter) error {
	team, err := s.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if err := set(ctx, team.ID, "", s.stamp(by)); err != nil {
		return err
	}
	s.record(ctx, "team."+op, map[string]any{"team_id": team.ID})
	return nil
}

// TeamMembers returns the usable identities holding a current membership in the team.
func (s *Service) TeamMembers(ctx context.Context, teamID string) ([]Identity, error) {
	team, err := s.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	return s.store.CurrentMembers(ctx, team.ID)
}

// TeamMemberships returns every membership row of the team, current or historical.
func (s *Service) TeamMemberships(ctx context.Context, teamID string) ([]Membership, error) {
	team, err := s.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	return s.store.MembershipsForTeam(ctx, team.ID)
}

// TeamsLedBy returns the teams whose leader pointer names the identity.
func (s *Service) TeamsLedBy(ctx context.Context, identityID string) ([]Team, error) {
	identity, err := s.GetIdentity(ctx, identityID)
	if err != nil {
		return nil, err
	}
	return s.store.TeamsLedBy(ctx, identity.ID)
}

// TeamsManagedBy returns the teams whose manager pointer names the identity.
func (s *Service) TeamsManagedBy(ctx context.Context, identityID string) ([]Team, error) {
	identity, err := s.GetIdentity(ctx, identityID)
	if err != nil {
		return nil, err
	}
	return s.store.TeamsManagedBy(ctx, identity.ID)
}
