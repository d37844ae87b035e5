// Package memory is an in-process directory.Store guarded by a single mutex. Every read
// goes through the directory validity predicates.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"durga.org/internal/directory"
)

var _ directory.Store = (*Store)(nil)

type pair struct{ a, b string }

// Store implements directory.Store in memory.
type Store struct {
	mu          sync.RWMutex
	identities  map[string]directory.Identity
	roles       map[string]directory.Role
	grants      map[pair]directory.Grant
	teams       map[string]directory.Team
	memberships map[pair]directory.Membership
	departments map[string]directory.Department
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		identities:  make(map[string]directory.Identity),
		roles:       make(map[string]directory.Role),
		grants:      make(map[pair]directory.Grant),
		teams:       make(map[string]directory.Team),
		memberships: make(map[pair]directory.Membership),
		departments: make(map[string]directory.Department),
	}
}

// Ping always succeeds unless ctx is done.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func notFound(what, id string) error {
	return fmt.Errorf("%w: %s %s", directory.ErrNotFound, what, id)
}

func conflict(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{directory.ErrConflict}, args...)...)
}

func page[T any](items []T, p directory.Page) directory.Result[T] {
	return directory.Result[T]{Items: directory.Slice(items, p), Total: len(items)}
}

func byName[T any](items []T, name func(T) string, id func(T) string) {
	sort.Slice(items, func(i, j int) bool {
		ni, nj := strings.ToLower(name(items[i])), strings.ToLower(name(items[j]))
		if ni != nj {
			return ni < nj
		}
		return id(items[i]) < id(items[j])
	})
}

// sortMembers orders identities by first name, last name, creation time and id.
func sortMembers(list []directory.Identity) {
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if fa, fb := strings.ToLower(a.FirstName), strings.ToLower(b.FirstName); fa != fb {
			return fa < fb
		}
		if la, lb := strings.ToLower(a.LastName), strings.ToLower(b.LastName); la != lb {
			return la < lb
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func sortTeams(list []directory.Team) {
	byName(list, func(t directory.Team) string { return t.Name }, func(t directory.Team) string { return t.ID })
}

// usableIndex exposes the identity map to the directory graph helpers. Callers hold s.mu.
func (s *Store) usableIndex() directory.IdentityIndex {
	return directory.IdentityIndex(s.identities)
}
