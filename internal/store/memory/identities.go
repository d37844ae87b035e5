package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"durga.org/internal/directory"
)

func (s *Store) CreateIdentity(ctx context.Context, i directory.Identity) (directory.Identity, error) {
	if err := ctx.Err(); err != nil {
		return directory.Identity{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.identities[i.ID]; ok {
		return directory.Identity{}, conflict("identity %s exists", i.ID)
	}
	if err := s.loginTaken(i.ID, i.Username, i.Email); err != nil {
		return directory.Identity{}, err
	}
	s.identities[i.ID] = i
	return i, nil
}

// loginTaken enforces username and email uniqueness across all rows, soft deleted included.
func (s *Store) loginTaken(selfID, username, email string) error {
	for id, other := range s.identities {
		if id == selfID {
			continue
		}
		if strings.EqualFold(other.Username, username) {
			return conflict("username %q is taken", username)
		}
		if strings.EqualFold(other.Email, email) {
			return conflict("email %q is taken", email)
		}
	}
	return nil
}

func (s *Store) usable(id string) (directory.Identity, bool) {
	i, ok := s.identities[id]
	if !ok || !directory.IdentityUsable(i) {
		return directory.Identity{}, false
	}
	return i, true
}

func (s *Store) GetIdentity(ctx context.Context, id string) (directory.Identity, error) {
	if err := ctx.Err(); err != nil {
		return directory.Identity{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.usable(id)
	if !ok {
		return directory.Identity{}, notFound("identity", id)
	}
	return i, nil
}

func (s *Store) findIdentity(ctx context.Context, match func(directory.Identity) bool, key string) (directory.Identity, error) {
	if err := ctx.Err(); err != nil {
		return directory.Identity{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, i := range s.identities {
		if directory.IdentityUsable(i) && match(i) {
			return i, nil
		}
	}
	return directory.Identity{}, notFound("identity", key)
}

func (s *Store) GetIdentityByUsername(ctx context.Context, username string) (directory.Identity, error) {
	return s.findIdentity(ctx, func(i directory.Identity) bool {
		return strings.EqualFold(i.Username, username)
	}, username)
}

func (s *Store) GetIdentityByEmail(ctx context.Context, email string) (directory.Identity, error) {
	return s.findIdentity(ctx, func(i directory.Identity) bool {
		return strings.EqualFold(i.Email, email)
	}, email)
}

func (s *Store) UpdateIdentity(ctx context.Context, id string, upd directory.IdentityUpdate, st directory.Stamp) (directory.Identity, error) {
	if err := ctx.Err(); err != nil {
		return directory.Identity{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.usable(id)
	if !ok {
		return directory.Identity{}, notFound("identity", id)
	}
	if upd.Username != nil {
		i.Username = *upd.Username
	}
	if upd.Email != nil {
		i.Email = *upd.Email
	}
	if upd.FirstName != nil {
		i.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		i.LastName = *upd.LastName
	}
	if upd.Active != nil {
		i.Active = *upd.Active
	}
	if err := s.loginTaken(i.ID, i.Username, i.Email); err != nil {
		return directory.Identity{}, err
	}
	at := st.At
	i.UpdatedAt = &at
	i.UpdatedBy = st.By
	s.identities[id] = i
	return i, nil
}

func (s *Store) SoftDeleteIdentity(ctx context.Context, id string, st directory.Stamp) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.usable(id)
	if !ok {
		return notFound("identity", id)
	}
	at := st.At
	i.DeletedAt = &at
	i.DeletedBy = st.By
	s.identities[id] = i
	return nil
}

func (s *Store) TouchLogin(ctx context.Context, id string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.usable(id)
	if !ok {
		return notFound("identity", id)
	}
	i.LastLoginAt = &at
	s.identities[id] = i
	return nil
}

func (s *Store) ListIdentities(ctx context.Context, q directory.IdentityQuery) (directory.Result[directory.Identity], error) {
	if err := ctx.Err(); err != nil {
		return directory.Result[directory.Identity]{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	term := directory.SearchTerm(q.Search)
	var list []directory.Identity
	for _, i := range s.identities {
		if !directory.IdentityUsable(i) {
			continue
		}
		if !q.IncludeInactive && !i.Active {
			continue
		}
		if !directory.Matches(term, i.Username, i.Email, i.FirstName, i.LastName) {
			continue
		}
		list = append(list, i)
	}
	sort.Slice(list, func(a, b int) bool {
		if !list[a].CreatedAt.Equal(list[b].CreatedAt) {
			return list[a].CreatedAt.Before(list[b].CreatedAt)
		}
		return list[a].ID < list[b].ID
	})
	return page(list, q.Page), nil
}

func (s *Store) IdentitiesInRole(ctx context.Context, roleID string, now time.Time) ([]directory.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var list []directory.Identity
	for k, g := range s.grants {
		if k.b != roleID || !directory.GrantEffective(g, now) {
			continue
		}
		if i, ok := s.usable(k.a); ok {
			list = append(list, i)
		}
	}
	sortMembers(list)
	return list, nil
}

func (s *Store) EffectiveRoles(ctx context.Context, identityID string, now time.Time) ([]directory.Role, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.usable(identityID)
	if !ok {
		return nil, nil
	}
	var grants []directory.Grant
	for k, g := range s.grants {
		if k.a == identityID {
			grants = append(grants, g)
		}
	}
	var list []directory.Role
	for _, roleID := range directory.EffectiveRoleIDs(i, grants, now) {
		if r, ok := s.roles[roleID]; ok && r.Active {
			list = append(list, r)
		}
	}
	sortRoles(list)
	return list, nil
}
