// Package directory adapts the user store to the narrow read-only
// UserDirectory contract consumed by the management-interface core.
package directory

import (
	"context"

	"github.com/jrsteele09/go-vpn-auth-service/mgmt"
	"github.com/jrsteele09/go-vpn-auth-service/users"
	"github.com/rs/zerolog/log"
)

var _ mgmt.UserDirectory = (*Service)(nil)

type Service struct {
	repo users.UserRepo
}

func NewService(repo users.UserRepo) *Service {
	return &Service{repo: repo}
}

// Lookup resolves a username to the core's UserRecord view. Blocked users
// are reported as not found: from the channel's point of view they do not
// exist, which keeps the deny path identical to a bad username.
func (s *Service) Lookup(ctx context.Context, username string) (*mgmt.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	user, err := s.repo.GetByUsername(username)
	if err != nil {
		return nil, mgmt.UserNotFoundErr
	}
	if user.Blocked {
		log.Warn().Str("username", username).Msg("blocked user attempted VPN login")
		return nil, mgmt.UserNotFoundErr
	}
	return &mgmt.UserRecord{
		Username:  user.Username,
		Method:    user.TwoFactor,
		SecretRef: secretRef(user),
	}, nil
}

// CheckPassword verifies the base password against the stored bcrypt hash.
func (s *Service) CheckPassword(ctx context.Context, record *mgmt.UserRecord, basePassword string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	user, err := s.repo.GetByUsername(record.Username)
	if err != nil {
		return false, mgmt.UserNotFoundErr
	}
	return users.CheckPasswordHash(basePassword, user.PasswordHash), nil
}

// secretRef picks the method-specific secret reference: the shared secret
// for TOTP, the owning user id for SMS codes.
func secretRef(user *users.User) string {
	switch user.TwoFactor {
	case users.TwoFactorTOTP:
		return user.TOTPSecret
	case users.TwoFactorSMS:
		return user.ID
	}
	return ""
}
