package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"durga.org/internal/directory"
)

const minPasswordLen = 8

// HashPassword hashes plaintext password using bcrypt.
func HashPassword(password string) (string, error) {
	if len(password) < minPasswordLen {
		return "", errors.New("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares plaintext password with stored hash.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return errors.New("password hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// Credentials is the password storage port. PasswordHash reports directory.ErrNotFound
// for unknown, inactive or deleted identities and for identities without a password.
type Credentials interface {
	PasswordHash(ctx context.Context, username string) (identityID, hash string, err error)
	SetPasswordHash(ctx context.Context, identityID, hash string) error
}

// Directory is the part of directory.Service token issuance depends on.
type Directory interface {
	EffectiveRoleNames(ctx context.Context, identityID string) ([]string, error)
	RecordLogin(ctx context.Context, identityID string) error
}

// Authenticator exchanges username and password for a signed token.
type Authenticator struct {
	creds  Credentials
	dir    Directory
	issuer *Issuer
}

// NewAuthenticator returns an Authenticator. A nil creds makes every call return
// ErrNotImplemented.
func NewAuthenticator(creds Credentials, dir Directory, issuer *Issuer) *Authenticator {
	return &Authenticator{creds: creds, dir: dir, issuer: issuer}
}

// Enabled reports whether a credentials store is configured.
func (a *Authenticator) Enabled() bool {
	return a != nil && a.creds != nil
}

// Login verifies the password and issues a token carrying the identity's effective roles.
func (a *Authenticator) Login(ctx context.Context, username, password string) (string, time.Time, error) {
	if !a.Enabled() {
		return "", time.Time{}, ErrNotImplemented
	}
	username = directory.NormalizeLogin(username)
	if username == "" || password == "" {
		return "", time.Time{}, ErrInvalidCredentials
	}
	id, hash, err := a.creds.PasswordHash(ctx, username)
	if errors.Is(err, directory.ErrNotFound) {
		return "", time.Time{}, ErrInvalidCredentials
	}
	if err != nil {
		return "", time.Time{}, err
	}
	if err := VerifyPassword(hash, password); err != nil {
		return "", time.Time{}, ErrInvalidCredentials
	}
	roles, err := a.dir.EffectiveRoleNames(ctx, id)
	if err != nil {
		return "", time.Time{}, err
	}
	if err := a.dir.RecordLogin(ctx, id); err != nil {
		return "", time.Time{}, err
	}
	return a.issuer.Issue(id, roles)
}

// SetPassword hashes and stores a new password for identityID.
func (a *Authenticator) SetPassword(ctx context.Context, identityID, password string) error {
	if !a.Enabled() {
		return ErrNotImplemented
	}
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return directory.ErrInvalidArgument
	}
	hash, err := HashPassword(password)
	if err != nil {
		return errors.Join(directory.ErrInvalidArgument, err)
	}
	return a.creds.SetPasswordHash(ctx, identityID, hash)
}
