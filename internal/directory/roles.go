package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RoleInput carries the fields of a new role.
type RoleInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsSystem    bool   `json:"-"`
}

// CreateRole registers an active role. Names are unique case-insensitively.
func (s *Service) CreateRole(ctx context.Context, in RoleInput, createdBy string) (out Role, err error) {
	const op = "create_role"
	defer func() { s.observe(op, err) }()

	name, err := requireName("role name", in.Name)
	if err != nil {
		return Role{}, err
	}
	st := s.stamp(createdBy)
	out, err = s.store.CreateRole(ctx, Role{
		ID:          s.newID(),
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		IsSystem:    in.IsSystem,
		Active:      true,
		CreatedAt:   st.At,
		CreatedBy:   st.By,
	})
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, "role.created", map[string]any{"role_id": out.ID, "name": out.Name})
	return out, nil
}

// EnsureRole returns the role named name, creating it when absent.
func (s *Service) EnsureRole(ctx context.Context, in RoleInput, createdBy string) (Role, error) {
	r, err := s.GetRoleByName(ctx, in.Name)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return r, err
	}
	r, err = s.CreateRole(ctx, in, createdBy)
	if errors.Is(err, ErrConflict) {
		return s.GetRoleByName(ctx, in.Name)
	}
	return r, err
}

// GetRole returns the role with the given id.
func (s *Service) GetRole(ctx context.Context, id string) (Role, error) {
	id, err := requireID("role id", id)
	if err != nil {
		return Role{}, err
	}
	return s.store.GetRole(ctx, id)
}

// GetRoleByName looks up a role case-insensitively.
func (s *Service) GetRoleByName(ctx context.Context, name string) (Role, error) {
	name, err := requireName("role name", name)
	if err != nil {
		return Role{}, err
	}
	return s.store.GetRoleByName(ctx, name)
}

// ListRoles returns a page of roles.
func (s *Service) ListRoles(ctx context.Context, q RoleQuery) (Result[Role], error) {
	if err := q.Page.Validate(); err != nil {
		return Result[Role]{}, err
	}
	return s.store.ListRoles(ctx, q)
}

// UpdateRole applies the non-nil fields of upd. System roles cannot be renamed or deactivated.
func (s *Service) UpdateRole(ctx context.Context, id string, upd RoleUpdate, updatedBy string) (out Role, err error) {
	const op = "update_role"
	defer func() { s.observe(op, err) }()

	current, err := s.GetRole(ctx, id)
	if err != nil {
		return Role{}, err
	}
	if upd.Name != nil {
		v, err := requireName("role name", *upd.Name)
		if err != nil {
			return Role{}, err
		}
		upd.Name = &v
	}
	upd.Description = trimPtr(upd.Description)
	if current.IsSystem {
		renamed := upd.Name != nil && *upd.Name != current.Name
		deactivated := upd.Active != nil && !*upd.Active
		if renamed || deactivated {
			return Role{}, ErrSystemRole
		}
	}
	out, err = s.store.UpdateRole(ctx, current.ID, upd, s.stamp(updatedBy))
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, "role.updated", map[string]any{"role_id": out.ID})
	return out, nil
}

// DeleteRole removes a role. System roles and roles with effective holders are refused
// with a conflict; inert grant rows are removed with the role.
func (s *Service) DeleteRole(ctx context.Context, id, deletedBy string) (err error) {
	const op = "delete_role"
	defer func() { s.observe(op, err) }()

	role, err := s.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return ErrSystemRole
	}
	if err = s.store.DeleteRole(ctx, role.ID, s.Now()); err != nil {
		return err
	}
	s.record(ctx, "role.deleted", map[string]any{"role_id": role.ID, "name": role.Name, "deleted_by": strings.TrimSpace(deletedBy)})
	return nil
}

// IdentitiesInRole returns the usable identities holding an effective grant to the role.
func (s *Service) IdentitiesInRole(ctx context.Context, roleID string) ([]Identity, error) {
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	return s.store.IdentitiesInRole(ctx, role.ID, s.Now())
}

// IdentitiesInRoleNamed is IdentitiesInRole keyed by role name.
func (s *Service) IdentitiesInRoleNamed(ctx context.Context, name string) ([]Identity, error) {
	role, err := s.GetRoleByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.store.IdentitiesInRole(ctx, role.ID, s.Now())
}

// CountRoleHolders counts usable identities holding an effective grant to the role.
func (s *Service) CountRoleHolders(ctx context.Context, roleID string) (int, error) {
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return 0, err
	}
	return s.store.CountRoleHolders(ctx, role.ID, s.Now())
}

type grantOptions struct {
	expiresAt *time.Time
}

// GrantOption adjusts a single GrantRole call.
type GrantOption func(*grantOptions)

// WithExpiry bounds the grant so that it stops being effective at t.
func WithExpiry(t time.Time) GrantOption {
	return func(o *grantOptions) {
		v := t.UTC()
		o.expiresAt = &v
	}
}

// GrantRole makes roleID effective for identityID. An existing row for the pair is
// reactivated with a fresh assignment stamp; otherwise a row is inserted. A concurrent
// insert of the same pair is retried once as a reactivation.
func (s *Service) GrantRole(ctx context.Context, identityID, roleID, assignedBy string, opts ...GrantOption) (err error) {
	const op = "grant_role"
	defer func() { s.observe(op, err) }()

	var o grantOptions
	for _, opt := range opts {
		opt(&o)
	}
	identity, err := s.GetIdentity(ctx, identityID)
	if err != nil {
		return err
	}
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if !role.Active {
		return fmt.Errorf("%w: role %s", ErrInactive, role.Name)
	}
	st := s.stamp(assignedBy)
	if o.expiresAt != nil && !o.expiresAt.After(st.At) {
		return fmt.Errorf("%w: expiry must be in the future", ErrInvalidArgument)
	}
	g := Grant{
		IdentityID: identity.ID,
		RoleID:     role.ID,
		AssignedAt: st.At,
		AssignedBy: st.By,
		ExpiresAt:  o.expiresAt,
		Active:     true,
	}

	existing, err := s.store.GetGrant(ctx, g.IdentityID, g.RoleID)
	switch {
	case err == nil:
		if GrantEffective(existing, st.At) && sameInstant(existing.ExpiresAt, g.ExpiresAt) {
			return nil
		}
		err = s.store.ReactivateGrant(ctx, g)
	case errors.Is(err, ErrNotFound):
		err = s.store.InsertGrant(ctx, g)
		if errors.Is(err, ErrConflict) {
			s.metrics.RaceRetry(op)
			err = s.store.ReactivateGrant(ctx, g)
			if errors.Is(err, ErrNotFound) {
				err = fmt.Errorf("%w: concurrent grant of role %s to %s", ErrConflict, g.RoleID, g.IdentityID)
			}
		}
	}
	if err != nil {
		return err
	}
	fields := map[string]any{"identity_id": g.IdentityID, "role_id": g.RoleID, "role": role.Name}
	if g.ExpiresAt != nil {
		fields["expires_at"] = g.ExpiresAt.Format(time.RFC3339)
	}
	s.record(ctx, "role.granted", fields)
	return nil
}

// RevokeRole deactivates the grant of roleID to identityID. The row is kept.
func (s *Service) RevokeRole(ctx context.Context, identityID, roleID, revokedBy string) (err error) {
	const op = "revoke_role"
	defer func() { s.observe(op, err) }()

	if identityID, err = requireID("identity id", identityID); err != nil {
		return err
	}
	if roleID, err = requireID("role id", roleID); err != nil {
		return err
	}
	if err = s.store.DeactivateGrant(ctx, identityID, roleID, s.stamp(revokedBy)); err != nil {
		return err
	}
	s.record(ctx, "role.revoked", map[string]any{"identity_id": identityID, "role_id": roleID})
	return nil
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
