package directory

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// Page selects a 1-based page of a deterministic ordering.
type Page struct {
	Number int `json:"page_number"`
	Size   int `json:"page_size"`
}

// Offset returns the number of rows preceding the page. Offsets beyond math.MaxInt saturate,
// so far pages are past the end instead of wrapping around.
func (p Page) Offset() int {
	if p.Number <= 1 || p.Size <= 0 {
		return 0
	}
	if p.Number-1 > math.MaxInt/p.Size {
		return math.MaxInt
	}
	return (p.Number - 1) * p.Size
}

// Validate rejects non-positive page values.
func (p Page) Validate() error {
	if p.Number < 1 || p.Size < 1 {
		return fmt.Errorf("%w: page number and size must be positive", ErrInvalidArgument)
	}
	return nil
}

// Slice returns the page of items, which must already be filtered and ordered.
func Slice[T any](items []T, p Page) []T {
	start := p.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := len(items)
	if p.Size < end-start {
		end = start + p.Size
	}
	out := make([]T, end-start)
	copy(out, items[start:end])
	return out
}

// Result is one page of a filtered listing together with the unpaged total.
type Result[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total_count"`
}

// SearchTerm normalizes a caller search string; blank terms disable filtering.
func SearchTerm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Matches reports whether any field contains term case-insensitively. An empty term matches.
func Matches(term string, fields ...string) bool {
	if term == "" {
		return true
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), term) {
			return true
		}
	}
	return false
}

type IdentityQuery struct {
	Page            Page
	Search          string
	IncludeInactive bool
}

type RoleQuery struct {
	Page            Page
	Search          string
	IncludeInactive bool
	// System restricts the listing to system (true) or user-defined (false) roles when set.
	System *bool
}

type TeamQuery struct {
	Page            Page
	Search          string
	IncludeInactive bool
	DepartmentID    string
}

type DepartmentQuery struct {
	Page   Page
	Search string
}

// Stamp carries the actor and time of a mutation.
type Stamp struct {
	By string
	At time.Time
}

type IdentityUpdate struct {
	Username  *string `json:"username,omitempty"`
	Email     *string `json:"email,omitempty"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Active    *bool   `json:"active,omitempty"`
}

type RoleUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Active      *bool   `json:"active,omitempty"`
}

type TeamUpdate struct {
	Name         *string `json:"name,omitempty"`
	Description  *string `json:"description,omitempty"`
	DepartmentID *string `json:"department_id,omitempty"`
	Active       *bool   `json:"active,omitempty"`
}

type DepartmentUpdate struct {
	Name *string `json:"name,omitempty"`
}

// IdentityStore persists identities. Every read excludes soft-deleted rows.
type IdentityStore interface {
	CreateIdentity(ctx context.Context, i Identity) (Identity, error)
	GetIdentity(ctx context.Context, id string) (Identity, error)
	GetIdentityByUsername(ctx context.Context, username string) (Identity, error)
	GetIdentityByEmail(ctx context.Context, email string) (Identity, error)
	UpdateIdentity(ctx context.Context, id string, upd IdentityUpdate, st Stamp) (Identity, error)
	SoftDeleteIdentity(ctx context.Context, id string, st Stamp) error
	TouchLogin(ctx context.Context, id string, at time.Time) error
	// ListIdentities orders by creation time then id.
	ListIdentities(ctx context.Context, q IdentityQuery) (Result[Identity], error)
	// IdentitiesInRole returns usable identities with an effective grant to roleID,
	// ordered by first name, last name, creation time and id.
	IdentitiesInRole(ctx context.Context, roleID string, now time.Time) ([]Identity, error)
	// EffectiveRoles returns the active roles identityID holds effectively at now, by name.
	EffectiveRoles(ctx context.Context, identityID string, now time.Time) ([]Role, error)
}

// RoleStore persists roles.
type RoleStore interface {
	CreateRole(ctx context.Context, r Role) (Role, error)
	GetRole(ctx context.Context, id string) (Role, error)
	GetRoleByName(ctx context.Context, name string) (Role, error)
	UpdateRole(ctx context.Context, id string, upd RoleUpdate, st Stamp) (Role, error)
	// DeleteRole removes a non-system role without effective holders, together with its
	// inert grant rows, in one atomic operation.
	DeleteRole(ctx context.Context, id string, now time.Time) error
	ListRoles(ctx context.Context, q RoleQuery) (Result[Role], error)
	CountRoleHolders(ctx context.Context, roleID string, now time.Time) (int, error)
}

// GrantStore persists (identity, role) grant rows.
type GrantStore interface {
	GetGrant(ctx context.Context, identityID, roleID string) (Grant, error)
	// InsertGrant returns ErrConflict when a row for the pair already exists.
	InsertGrant(ctx context.Context, g Grant) error
	// ReactivateGrant overwrites the assignment fields of the existing row, sets it active
	// and clears the revocation stamp. ErrNotFound when no row exists.
	ReactivateGrant(ctx context.Context, g Grant) error
	DeactivateGrant(ctx context.Context, identityID, roleID string, st Stamp) error
	GrantsForIdentity(ctx context.Context, identityID string) ([]Grant, error)
	GrantsForRole(ctx context.Context, roleID string) ([]Grant, error)
}

// TeamStore persists teams and their leader/manager pointers.
type TeamStore interface {
	CreateTeam(ctx context.Context, t Team) (Team, error)
	GetTeam(ctx context.Context, id string) (Team, error)
	UpdateTeam(ctx context.Context, id string, upd TeamUpdate, st Stamp) (Team, error)
	// DeleteTeam removes a team without current memberships, together with its
	// historical membership rows, in one atomic operation.
	DeleteTeam(ctx context.Context, id string) error
	ListTeams(ctx context.Context, q TeamQuery) (Result[Team], error)
	TeamsInDepartment(ctx context.Context, departmentID string) ([]Team, error)
	SetTeamLeader(ctx context.Context, teamID, identityID string, st Stamp) error
	SetTeamManager(ctx context.Context, teamID, identityID string, st Stamp) error
	TeamsLedBy(ctx context.Context, identityID string) ([]Team, error)
	TeamsManagedBy(ctx context.Context, identityID string) ([]Team, error)
}

// MembershipStore persists (team, identity) membership rows.
type MembershipStore interface {
	GetMembership(ctx context.Context, teamID, identityID string) (Membership, error)
	// InsertMembership returns ErrConflict when a row for the pair already exists.
	InsertMembership(ctx context.Context, m Membership) error
	// ReviveMembership restamps a non-current row as a fresh join. ErrNotFound when no row
	// exists, ErrAlreadyMember when the row is current.
	ReviveMembership(ctx context.Context, m Membership) error
	// EndMembership stamps the current row as left. ErrNotFound when there is no current row.
	EndMembership(ctx context.Context, teamID, identityID string, st Stamp) error
	MembershipsForTeam(ctx context.Context, teamID string) ([]Membership, error)
	// CurrentMembers returns usable identities with a current membership in teamID,
	// ordered by first name, last name, creation time and id.
	CurrentMembers(ctx context.Context, teamID string) ([]Identity, error)
	CountCurrentMembers(ctx context.Context, teamID string) (int, error)
	// CurrentTeams returns active teams in which identityID holds a current membership, by name.
	CurrentTeams(ctx context.Context, identityID string) ([]Team, error)
}

// DepartmentStore persists departments.
type DepartmentStore interface {
	CreateDepartment(ctx context.Context, d Department) (Department, error)
	GetDepartment(ctx context.Context, id string) (Department, error)
	UpdateDepartment(ctx context.Context, id string, upd DepartmentUpdate, st Stamp) (Department, error)
	// DeleteDepartment removes a department that owns no teams.
	DeleteDepartment(ctx context.Context, id string) error
	ListDepartments(ctx context.Context, q DepartmentQuery) (Result[Department], error)
	SetDepartmentManager(ctx context.Context, departmentID, identityID string, st Stamp) error
	DepartmentsManagedBy(ctx context.Context, identityID string) ([]Department, error)
}

// Store is the persistence contract of the directory. Implementations own the uniqueness
// constraints on (identity, role) and (team, identity).
type Store interface {
	IdentityStore
	RoleStore
	GrantStore
	TeamStore
	MembershipStore
	DepartmentStore
	Ping(ctx context.Context) error
}
