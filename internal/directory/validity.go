package directory

import "time"

// GrantEffective reports whether g is in force at now. Expiry is evaluated here on every
// read; nothing flips Active when ExpiresAt passes.
func GrantEffective(g Grant, now time.Time) bool {
	return g.Active && (g.ExpiresAt == nil || g.ExpiresAt.After(now))
}

// MembershipCurrent reports whether m is an ongoing membership.
func MembershipCurrent(m Membership) bool {
	return m.Active && m.LeftAt == nil
}

// IdentityUsable reports whether i has not been soft deleted.
func IdentityUsable(i Identity) bool {
	return i.DeletedAt == nil
}
