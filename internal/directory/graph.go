package directory

import "time"

// IdentityIndex resolves identities by id when deriving relationship state.
type IdentityIndex map[string]Identity

// IndexIdentities builds an IdentityIndex from the given rows.
func IndexIdentities(list ...Identity) IdentityIndex {
	idx := make(IdentityIndex, len(list))
	for _, i := range list {
		idx[i.ID] = i
	}
	return idx
}

// Usable reports whether id resolves to an identity that is not soft deleted.
func (x IdentityIndex) Usable(id string) bool {
	if id == "" {
		return false
	}
	i, ok := x[id]
	return ok && IdentityUsable(i)
}

// HasLeader reports whether the team's leader pointer resolves to a usable identity.
func HasLeader(t Team, idx IdentityIndex) bool {
	return t.LeaderID != "" && idx.Usable(t.LeaderID)
}

// HasManager reports whether the team's manager pointer resolves to a usable identity.
func HasManager(t Team, idx IdentityIndex) bool {
	return t.ManagerID != "" && idx.Usable(t.ManagerID)
}

// IsCurrentMember reports whether identityID holds a current membership in teamID.
// Memberships of soft-deleted identities are inert.
func IsCurrentMember(teamID, identityID string, ms []Membership, idx IdentityIndex) bool {
	if !idx.Usable(identityID) {
		return false
	}
	for _, m := range ms {
		if m.TeamID == teamID && m.IdentityID == identityID && MembershipCurrent(m) {
			return true
		}
	}
	return false
}

// IsLeaderInTeam reports whether the team's leader also holds a current membership.
// It can be false while HasLeader is true.
func IsLeaderInTeam(t Team, ms []Membership, idx IdentityIndex) bool {
	return t.LeaderID != "" && IsCurrentMember(t.ID, t.LeaderID, ms, idx)
}

// IsManagerInTeam reports whether the team's manager also holds a current membership.
func IsManagerInTeam(t Team, ms []Membership, idx IdentityIndex) bool {
	return t.ManagerID != "" && IsCurrentMember(t.ID, t.ManagerID, ms, idx)
}

// ActiveMemberCount counts current memberships of usable identities in teamID.
func ActiveMemberCount(teamID string, ms []Membership, idx IdentityIndex) int {
	seen := make(map[string]struct{}, len(ms))
	for _, m := range ms {
		if m.TeamID != teamID || !MembershipCurrent(m) || !idx.Usable(m.IdentityID) {
			continue
		}
		seen[m.IdentityID] = struct{}{}
	}
	return len(seen)
}

// EffectiveHolderCount counts usable identities holding an effective grant to roleID.
func EffectiveHolderCount(roleID string, grants []Grant, idx IdentityIndex, now time.Time) int {
	seen := make(map[string]struct{}, len(grants))
	for _, g := range grants {
		if g.RoleID != roleID || !GrantEffective(g, now) || !idx.Usable(g.IdentityID) {
			continue
		}
		seen[g.IdentityID] = struct{}{}
	}
	return len(seen)
}

// EffectiveRoleIDs returns the role ids identity holds effectively at now, in grant order.
// A soft-deleted identity holds nothing.
func EffectiveRoleIDs(identity Identity, grants []Grant, now time.Time) []string {
	if !IdentityUsable(identity) {
		return nil
	}
	var out []string
	for _, g := range grants {
		if g.IdentityID == identity.ID && GrantEffective(g, now) {
			out = append(out, g.RoleID)
		}
	}
	return out
}

// DivergenceKind names which pointer disagrees with membership state.
type DivergenceKind string

const (
	DivergenceLeader  DivergenceKind = "leader"
	DivergenceManager DivergenceKind = "manager"
)

// Divergence records a leader or manager pointer whose identity is not a current member.
type Divergence struct {
	TeamID     string         `json:"team_id"`
	Kind       DivergenceKind `json:"kind"`
	IdentityID string         `json:"identity_id"`
}

// TeamDivergences lists the pointer/membership disagreements of t. Only resolvable
// pointers are reported; a dangling pointer is already visible through HasLeader/HasManager.
func TeamDivergences(t Team, ms []Membership, idx IdentityIndex) []Divergence {
	var out []Divergence
	if HasLeader(t, idx) && !IsLeaderInTeam(t, ms, idx) {
		out = append(out, Divergence{TeamID: t.ID, Kind: DivergenceLeader, IdentityID: t.LeaderID})
	}
	if HasManager(t, idx) && !IsManagerInTeam(t, ms, idx) {
		out = append(out, Divergence{TeamID: t.ID, Kind: DivergenceManager, IdentityID: t.ManagerID})
	}
	return out
}
