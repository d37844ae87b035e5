package directory

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("directory: not found")
	ErrConflict        = errors.New("directory: conflict")
	ErrInactive        = errors.New("directory: inactive")
	ErrInvalidArgument = errors.New("directory: invalid argument")
)

// ErrAlreadyMember is returned when joining a team the identity is currently a member of.
var ErrAlreadyMember = fmt.Errorf("%w: identity is already a current member of the team", ErrConflict)

// ErrSystemRole is returned when a workflow tries to delete or rename a system role.
var ErrSystemRole = fmt.Errorf("%w: system roles cannot be modified", ErrConflict)
