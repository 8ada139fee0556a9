package mgmt

import (
	"context"

	"github.com/jrsteele09/go-vpn-auth-service/users"
)

// UserRecord is the narrow, read-only view of a directory user the core
// needs: enough to check a password and route a one-time code to the right
// verification method.
type UserRecord struct {
	Username  string
	Method    users.TwoFactorMethod
	SecretRef string // method-specific secret reference (TOTP secret, SMS code owner)
}

// UserDirectory is the user lookup collaborator. Lookup returns
// UserNotFoundErr when no such user exists. Both calls may block on storage
// or network and must honour the context deadline.
type UserDirectory interface {
	Lookup(ctx context.Context, username string) (*UserRecord, error)
	CheckPassword(ctx context.Context, record *UserRecord, basePassword string) (bool, error)
}

// TwoFactorVerifier checks a one-time code against the record's method and
// secret reference.
type TwoFactorVerifier interface {
	Verify(ctx context.Context, method users.TwoFactorMethod, secretRef, code string) (bool, error)
}
