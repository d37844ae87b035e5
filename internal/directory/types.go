package directory

import (
	"strings"
	"time"
)

// Identity is a user account. A set DeletedAt marks the row as soft deleted.
type Identity struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Active      bool       `json:"active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
	DeletedBy   string     `json:"deleted_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CreatedBy   string     `json:"created_by,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
	UpdatedBy   string     `json:"updated_by,omitempty"`
}

// FullName joins first and last name.
func (i Identity) FullName() string {
	return strings.TrimSpace(i.FirstName + " " + i.LastName)
}

// Role is a named bundle of authority granted to identities.
type Role struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	IsSystem    bool       `json:"is_system"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
	CreatedBy   string     `json:"created_by,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
	UpdatedBy   string     `json:"updated_by,omitempty"`
}

// Grant assigns a role to an identity. At most one row exists per (IdentityID, RoleID).
type Grant struct {
	IdentityID string     `json:"identity_id"`
	RoleID     string     `json:"role_id"`
	AssignedAt time.Time  `json:"assigned_at"`
	AssignedBy string     `json:"assigned_by,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Active     bool       `json:"active"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	RevokedBy  string     `json:"revoked_by,omitempty"`
}

// Team belongs to exactly one department. LeaderID and ManagerID are empty when unset
// and do not require the referenced identity to be a member.
type Team struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	DepartmentID string     `json:"department_id"`
	LeaderID     string     `json:"leader_id,omitempty"`
	ManagerID    string     `json:"manager_id,omitempty"`
	Active       bool       `json:"active"`
	CreatedAt    time.Time  `json:"created_at"`
	CreatedBy    string     `json:"created_by,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
	UpdatedBy    string     `json:"updated_by,omitempty"`
}

// Membership links an identity to a team. At most one row exists per (TeamID, IdentityID);
// re-joining revives the row.
type Membership struct {
	TeamID     string     `json:"team_id"`
	IdentityID string     `json:"identity_id"`
	JoinedAt   time.Time  `json:"joined_at"`
	JoinedBy   string     `json:"joined_by,omitempty"`
	LeftAt     *time.Time `json:"left_at,omitempty"`
	LeftBy     string     `json:"left_by,omitempty"`
	Active     bool       `json:"active"`
}

// Department owns a set of teams.
type Department struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	ManagerID string     `json:"manager_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	CreatedBy string     `json:"created_by,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	UpdatedBy string     `json:"updated_by,omitempty"`
}

// NormalizeLogin canonicalizes usernames and emails before storage and lookup.
func NormalizeLogin(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
