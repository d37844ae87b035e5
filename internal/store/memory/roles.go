package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"durga.org/internal/directory"
)

func sortRoles(list []directory.Role) {
	byName(list, func(r directory.Role) string { return r.Name }, func(r directory.Role) string { return r.ID })
}

func (s *Store) roleNameTaken(selfID, name string) error {
	for id, r := range s.roles {
		if id != selfID && strings.EqualFold(r.Name, name) {
			return conflict("role %q exists", name)
		}
	}
	return nil
}

func (s *Store) CreateRole(ctx context.Context, r directory.Role) (directory.Role, error) {
	if err := ctx.Err(); err != nil {
		return directory.Role{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.roles[r.ID]; ok {
		return directory.Role{}, conflict("role %s exists", r.ID)
	}
	if err := s.roleNameTaken(r.ID, r.Name); err != nil {
		return directory.Role{}, err
	}
	s.roles[r.ID] = r
	return r, nil
}

func (s *Store) GetRole(ctx context.Context, id string) (directory.Role, error) {
	if err := ctx.Err(); err != nil {
		return directory.Role{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.roles[id]
	if !ok {
		return directory.Role{}, notFound("role", id)
	}
	return r, nil
}

func (s *Store) GetRoleByName(ctx context.Context, name string) (directory.Role, error) {
	if err := ctx.Err(); err != nil {
		return directory.Role{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.roles {
		if strings.EqualFold(r.Name, name) {
			return r, nil
		}
	}
	return directory.Role{}, notFound("role", name)
}

func (s *Store) UpdateRole(ctx context.Context, id string, upd directory.RoleUpdate, st directory.Stamp) (directory.Role, error) {
	if err := ctx.Err(); err != nil {
		return directory.Role{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.roles[id]
	if !ok {
		return directory.Role{}, notFound("role", id)
	}
	if upd.Name != nil {
		if err := s.roleNameTaken(id, *upd.Name); err != nil {
			return directory.Role{}, err
		}
		r.Name = *upd.Name
	}
	if upd.Description != nil {
		r.Description = *upd.Description
	}
	if upd.Active != nil {
		r.Active = *upd.Active
	}
	at := st.At
	r.UpdatedAt = &at
	r.UpdatedBy = st.By
	s.roles[id] = r
	return r, nil
}

func (s *Store) DeleteRole(ctx context.Context, id string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.roles[id]
	if !ok {
		return notFound("role", id)
	}
	if r.IsSystem {
		return directory.ErrSystemRole
	}
	if n := s.holders(id, now); n > 0 {
		return conflict("role %s has %d effective holders", r.Name, n)
	}
	for k := range s.grants {
		if k.b == id {
			delete(s.grants, k)
		}
	}
	delete(s.roles, id)
	return nil
}

func (s *Store) holders(roleID string, now time.Time) int {
	grants := make([]directory.Grant, 0)
	for k, g := range s.grants {
		if k.b == roleID {
			grants = append(grants, g)
		}
	}
	return directory.EffectiveHolderCount(roleID, grants, s.usableIndex(), now)
}

func (s *Store) ListRoles(ctx context.Context, q directory.RoleQuery) (directory.Result[directory.Role], error) {
	if err := ctx.Err(); err != nil {
		return directory.Result[directory.Role]{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	term := directory.SearchTerm(q.Search)
	var list []directory.Role
	for _, r := range s.roles {
		if !q.IncludeInactive && !r.Active {
			continue
		}
		if q.System != nil && r.IsSystem != *q.System {
			continue
		}
		if !directory.Matches(term, r.Name, r.Description) {
			continue
		}
		list = append(list, r)
	}
	sortRoles(list)
	return page(list, q.Page), nil
}

func (s *Store) CountRoleHolders(ctx context.Context, roleID string, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.holders(roleID, now), nil
}

func (s *Store) GetGrant(ctx context.Context, identityID, roleID string) (directory.Grant, error) {
	if err := ctx.Err(); err != nil {
		return directory.Grant{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.grants[pair{identityID, roleID}]
	if !ok {
		return directory.Grant{}, notFound("grant", identityID+"/"+roleID)
	}
	return g, nil
}

func (s *Store) InsertGrant(ctx context.Context, g directory.Grant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := pair{g.IdentityID, g.RoleID}
	if _, ok := s.grants[k]; ok {
		return conflict("grant %s/%s exists", g.IdentityID, g.RoleID)
	}
	if _, ok := s.identities[g.IdentityID]; !ok {
		return notFound("identity", g.IdentityID)
	}
	if _, ok := s.roles[g.RoleID]; !ok {
		return notFound("role", g.RoleID)
	}
	s.grants[k] = g
	return nil
}

func (s *Store) ReactivateGrant(ctx context.Context, g directory.Grant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := pair{g.IdentityID, g.RoleID}
	cur, ok := s.grants[k]
	if !ok {
		return notFound("grant", g.IdentityID+"/"+g.RoleID)
	}
	cur.AssignedAt = g.AssignedAt
	cur.AssignedBy = g.AssignedBy
	cur.ExpiresAt = g.ExpiresAt
	cur.Active = true
	cur.RevokedAt = nil
	cur.RevokedBy = ""
	s.grants[k] = cur
	return nil
}

func (s *Store) DeactivateGrant(ctx context.Context, identityID, roleID string, st directory.Stamp) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := pair{identityID, roleID}
	cur, ok := s.grants[k]
	if !ok {
		return notFound("grant", identityID+"/"+roleID)
	}
	at := st.At
	cur.Active = false
	cur.RevokedAt = &at
	cur.RevokedBy = st.By
	s.grants[k] = cur
	return nil
}

func (s *Store) grantsWhere(ctx context.Context, match func(pair) bool) ([]directory.Grant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var list []directory.Grant
	for k, g := range s.grants {
		if match(k) {
			list = append(list, g)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].AssignedAt.Equal(list[j].AssignedAt) {
			return list[i].AssignedAt.Before(list[j].AssignedAt)
		}
		if list[i].IdentityID != list[j].IdentityID {
			return list[i].IdentityID < list[j].IdentityID
		}
		return list[i].RoleID < list[j].RoleID
	})
	return list, nil
}

func (s *Store) GrantsForIdentity(ctx context.Context, identityID string) ([]directory.Grant, error) {
	return s.grantsWhere(ctx, func(k pair) bool { return k.a == identityID })
}

func (s *Store) GrantsForRole(ctx context.Context, roleID string) ([]directory.Grant, error) {
	return s.grantsWhere(ctx, func(k pair) bool { return k.b == roleID })
}
