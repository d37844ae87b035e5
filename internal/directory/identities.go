package directory

import (
	"context"
	"strings"
)

// IdentityInput carries the fields of a new identity.
type IdentityInput struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// CreateIdentity registers an active identity. Username and email are normalized and must
// be unique.
func (s *Service) CreateIdentity(ctx context.Context, in IdentityInput, createdBy string) (out Identity, err error) {
	const op = "create_identity"
	defer func() { s.observe(op, err) }()

	username, err := requireName("username", NormalizeLogin(in.Username))
	if err != nil {
		return Identity{}, err
	}
	email, err := validEmail(in.Email)
	if err != nil {
		return Identity{}, err
	}
	st := s.stamp(createdBy)
	out, err = s.store.CreateIdentity(ctx, Identity{
		ID:        s.newID(),
		Username:  username,
		Email:     email,
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Active:    true,
		CreatedAt: st.At,
		CreatedBy: st.By,
	})
	if err != nil {
		return Identity{}, err
	}
	s.record(ctx, "identity.created", map[string]any{"identity_id": out.ID, "username": out.Username})
	return out, nil
}

// GetIdentity returns a usable identity. Soft-deleted identities are not found.
func (s *Service) GetIdentity(ctx context.Context, id string) (Identity, error) {
	id, err := requireID("identity id", id)
	if err != nil {
		return Identity{}, err
	}
	return s.store.GetIdentity(ctx, id)
}

// GetIdentityByUsername looks up a usable identity by normalized username.
func (s *Service) GetIdentityByUsername(ctx context.Context, username string) (Identity, error) {
	username, err := requireName("username", NormalizeLogin(username))
	if err != nil {
		return Identity{}, err
	}
	return s.store.GetIdentityByUsername(ctx, username)
}

// GetIdentityByEmail looks up a usable identity by normalized email.
func (s *Service) GetIdentityByEmail(ctx context.Context, email string) (Identity, error) {
	email, err := requireName("email", NormalizeLogin(email))
	if err != nil {
		return Identity{}, err
	}
	return s.store.GetIdentityByEmail(ctx, email)
}

// ListIdentities returns a page of usable identities.
func (s *Service) ListIdentities(ctx context.Context, q IdentityQuery) (Result[Identity], error) {
	if err := q.Page.Validate(); err != nil {
		return Result[Identity]{}, err
	}
	return s.store.ListIdentities(ctx, q)
}

// UpdateIdentity applies the non-nil fields of upd.
func (s *Service) UpdateIdentity(ctx context.Context, id string, upd IdentityUpdate, updatedBy string) (out Identity, err error) {
	const op = "update_identity"
	defer func() { s.observe(op, err) }()

	if id, err = requireID("identity id", id); err != nil {
		return Identity{}, err
	}
	if upd.Username != nil {
		v, err := requireName("username", NormalizeLogin(*upd.Username))
		if err != nil {
			return Identity{}, err
		}
		upd.Username = &v
	}
	if upd.Email != nil {
		v, err := validEmail(*upd.Email)
		if err != nil {
			return Identity{}, err
		}
		upd.Email = &v
	}
	upd.FirstName = trimPtr(upd.FirstName)
	upd.LastName = trimPtr(upd.LastName)

	out, err = s.store.UpdateIdentity(ctx, id, upd, s.stamp(updatedBy))
	if err != nil {
		return Identity{}, err
	}
	s.record(ctx, "identity.updated", map[string]any{"identity_id": id})
	return out, nil
}

// DeleteIdentity soft deletes an identity. Its grants, memberships and leader/manager
// pointers stay in place but become inert.
func (s *Service) DeleteIdentity(ctx context.Context, id, deletedBy string) (err error) {
	const op = "delete_identity"
	defer func() { s.observe(op, err) }()

	if id, err = requireID("identity id", id); err != nil {
		return err
	}
	if err = s.store.SoftDeleteIdentity(ctx, id, s.stamp(deletedBy)); err != nil {
		return err
	}
	s.record(ctx, "identity.deleted", map[string]any{"identity_id": id})
	return nil
}

// RecordLogin stamps the identity's last login time.
func (s *Service) RecordLogin(ctx context.Context, id string) error {
	id, err := requireID("identity id", id)
	if err != nil {
		return err
	}
	return s.store.TouchLogin(ctx, id, s.Now())
}

// EffectiveRoles returns the active roles the identity holds effectively right now.
func (s *Service) EffectiveRoles(ctx context.Context, identityID string) ([]Role, error) {
	identity, err := s.GetIdentity(ctx, identityID)
	if err != nil {
		return nil, err
	}
	return s.store.EffectiveRoles(ctx, identity.ID, s.Now())
}

// EffectiveRoleNames returns the names of EffectiveRoles.
func (s *Service) EffectiveRoleNames(ctx context.Context, identityID string) ([]string, error) {
	roles, err := s.EffectiveRoles(ctx, identityID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	return names, nil
}

// IsInRole reports whether the identity effectively holds the named role. An unknown role
// name yields false.
func (s *Service) IsInRole(ctx context.Context, identityID, roleName string) (bool, error) {
	roleName, err := requireName("role name", roleName)
	if err != nil {
		return false, err
	}
	roles, err := s.EffectiveRoles(ctx, identityID)
	if err != nil {
		return false, err
	}
	for _, r := range roles {
		if strings.EqualFold(r.Name, roleName) {
			return true, nil
		}
	}
	return false, nil
}

// IdentityTeams returns the active teams in which the identity is a current member.
func (s *Service) IdentityTeams(ctx context.Context, identityID string) ([]Team, error) {
	identity, err := s.GetIdentity(ctx, identityID)
	if err != nil {
		return nil, err
	}
	return s.store.CurrentTeams(ctx, identity.ID)
}

// IdentityGrants returns every grant row of the identity, effective or not.
func (s *Service) IdentityGrants(ctx context.Context, identityID string) ([]Grant, error) {
	identity, err := s.GetIdentity(ctx, identityID)
	if err != nil {
		return nil, err
	}
	return s.store.GrantsForIdentity(ctx, identity.ID)
}
