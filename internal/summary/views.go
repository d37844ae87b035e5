// Package summary shapes directory entities into caller-facing views. Projections are pure:
// they resolve display names and compute counts through the directory predicates only.
package summary

import (
	"sort"
	"strings"
	"time"

	"durga.org/internal/directory"
)

type IdentityRef struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
}

type NamedRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type IdentityView struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	FullName    string     `json:"full_name"`
	Active      bool       `json:"active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	RoleNames   []string   `json:"roles"`
}

type RoleView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsSystem    bool      `json:"is_system"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UserCount   int       `json:"user_count"`
}

type TeamView struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Description       string    `json:"description,omitempty"`
	Active            bool      `json:"active"`
	DepartmentID      string    `json:"department_id"`
	DepartmentName    string    `json:"department_name"`
	LeaderID          string    `json:"leader_id,omitempty"`
	LeaderName        string    `json:"leader_name,omitempty"`
	ManagerID         string    `json:"manager_id,omitempty"`
	ManagerName       string    `json:"manager_name,omitempty"`
	HasLeader         bool      `json:"has_leader"`
	HasManager        bool      `json:"has_manager"`
	IsLeaderInTeam    bool      `json:"is_leader_in_team"`
	IsManagerInTeam   bool      `json:"is_manager_in_team"`
	ActiveMemberCount int       `json:"active_member_count"`
	CreatedAt         time.Time `json:"created_at"`
}

type TeamMemberView struct {
	IdentityID string    `json:"identity_id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	FullName   string    `json:"full_name"`
	JoinedAt   time.Time `json:"joined_at"`
	JoinedBy   string    `json:"joined_by,omitempty"`
	IsLeader   bool      `json:"is_leader"`
	IsManager  bool      `json:"is_manager"`
}

type DepartmentView struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	ManagerID       string    `json:"manager_id,omitempty"`
	ManagerName     string    `json:"manager_name,omitempty"`
	HasManager      bool      `json:"has_manager"`
	TeamCount       int       `json:"team_count"`
	ActiveTeamCount int       `json:"active_team_count"`
	CreatedAt       time.Time `json:"created_at"`
}

// PageView wraps one page of projected items with navigation metadata.
type PageView[V any] struct {
	Items       []V  `json:"items"`
	TotalCount  int  `json:"total_count"`
	PageNumber  int  `json:"page_number"`
	PageSize    int  `json:"page_size"`
	TotalPages  int  `json:"total_pages"`
	HasPrevious bool `json:"has_previous"`
	HasNext     bool `json:"has_next"`
}

// Paged projects every item of r.
func Paged[T, V any](r directory.Result[T], p directory.Page, project func(T) V) PageView[V] {
	items := make([]V, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, project(it))
	}
	pages := 0
	if p.Size > 0 {
		pages = (r.Total + p.Size - 1) / p.Size
	}
	return PageView[V]{
		Items:       items,
		TotalCount:  r.Total,
		PageNumber:  p.Number,
		PageSize:    p.Size,
		TotalPages:  pages,
		HasPrevious: p.Number > 1,
		HasNext:     p.Number < pages,
	}
}

func Ref(i directory.Identity) IdentityRef {
	return IdentityRef{ID: i.ID, Username: i.Username, FullName: i.FullName()}
}

// Identity projects i with the names of the active roles it holds effectively at now.
// roles resolves role ids; ids missing from it are skipped.
func Identity(i directory.Identity, grants []directory.Grant, roles map[string]directory.Role, now time.Time) IdentityView {
	names := []string{}
	for _, id := range directory.EffectiveRoleIDs(i, grants, now) {
		if r, ok := roles[id]; ok && r.Active {
			names = append(names, r.Name)
		}
	}
	sort.Slice(names, func(a, b int) bool { return strings.ToLower(names[a]) < strings.ToLower(names[b]) })
	return IdentityView{
		ID:          i.ID,
		Username:    i.Username,
		Email:       i.Email,
		FirstName:   i.FirstName,
		LastName:    i.LastName,
		FullName:    i.FullName(),
		Active:      i.Active,
		LastLoginAt: i.LastLoginAt,
		CreatedAt:   i.CreatedAt,
		RoleNames:   names,
	}
}

// Role projects r with the number of usable identities holding it effectively at now.
func Role(r directory.Role, grants []directory.Grant, idx directory.IdentityIndex, now time.Time) RoleView {
	return RoleView{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		IsSystem:    r.IsSystem,
		Active:      r.Active,
		CreatedAt:   r.CreatedAt,
		UserCount:   directory.EffectiveHolderCount(r.ID, grants, idx, now),
	}
}

// Team projects t. dept may be nil when the department no longer resolves.
func Team(t directory.Team, dept *directory.Department, ms []directory.Membership, idx directory.IdentityIndex) TeamView {
	v := TeamView{
		ID:                t.ID,
		Name:              t.Name,
		Description:       t.Description,
		Active:            t.Active,
		DepartmentID:      t.DepartmentID,
		LeaderID:          t.LeaderID,
		ManagerID:         t.ManagerID,
		HasLeader:         directory.HasLeader(t, idx),
		HasManager:        directory.HasManager(t, idx),
		IsLeaderInTeam:    directory.IsLeaderInTeam(t, ms, idx),
		IsManagerInTeam:   directory.IsManagerInTeam(t, ms, idx),
		ActiveMemberCount: directory.ActiveMemberCount(t.ID, ms, idx),
		CreatedAt:         t.CreatedAt,
	}
	if dept != nil {
		v.DepartmentName = dept.Name
	}
	if v.HasLeader {
		v.LeaderName = idx[t.LeaderID].FullName()
	}
	if v.HasManager {
		v.ManagerName = idx[t.ManagerID].FullName()
	}
	return v
}

// TeamMembers projects the current memberships of usable identities in t, ordered by
// first name, last name, creation time and id.
func TeamMembers(t directory.Team, ms []directory.Membership, idx directory.IdentityIndex) []TeamMemberView {
	type row struct {
		i directory.Identity
		m directory.Membership
	}
	var rows []row
	for _, m := range ms {
		if m.TeamID != t.ID || !directory.MembershipCurrent(m) || !idx.Usable(m.IdentityID) {
			continue
		}
		rows = append(rows, row{i: idx[m.IdentityID], m: m})
	}
	sort.Slice(rows, func(a, b int) bool {
		x, y := rows[a].i, rows[b].i
		if fx, fy := strings.ToLower(x.FirstName), strings.ToLower(y.FirstName); fx != fy {
			return fx < fy
		}
		if lx, ly := strings.ToLower(x.LastName), strings.ToLower(y.LastName); lx != ly {
			return lx < ly
		}
		if !x.CreatedAt.Equal(y.CreatedAt) {
			return x.CreatedAt.Before(y.CreatedAt)
		}
		return x.ID < y.ID
	})
	out := make([]TeamMemberView, 0, len(rows))
	for _, r := range rows {
		out = append(out, TeamMemberView{
			IdentityID: r.i.ID,
			Username:   r.i.Username,
			Email:      r.i.Email,
			FullName:   r.i.FullName(),
			JoinedAt:   r.m.JoinedAt,
			JoinedBy:   r.m.JoinedBy,
			IsLeader:   t.LeaderID == r.i.ID,
			IsManager:  t.ManagerID == r.i.ID,
		})
	}
	return out
}

// Department projects d. TeamCount counts every team of d regardless of its active flag.
func Department(d directory.Department, teams []directory.Team, idx directory.IdentityIndex) DepartmentView {
	v := DepartmentView{
		ID:         d.ID,
		Name:       d.Name,
		ManagerID:  d.ManagerID,
		HasManager: idx.Usable(d.ManagerID),
		CreatedAt:  d.CreatedAt,
	}
	for _, t := range teams {
		if t.DepartmentID != d.ID {
			continue
		}
		v.TeamCount++
		if t.Active {
			v.ActiveTeamCount++
		}
	}
	if v.HasManager {
		v.ManagerName = idx[d.ManagerID].FullName()
	}
	return v
}
