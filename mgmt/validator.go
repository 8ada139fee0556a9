package mgmt

import (
	"context"
	"errors"

	"github.com/jrsteele09/go-vpn-auth-service/users"
	"github.com/rs/zerolog/log"
)

// Validator turns a finalized environment into a Decision by consulting the
// user directory and the two-factor verifier. It never mutates shared state;
// the caller attaches the returned Decision to the session. Any collaborator
// failure or deadline overrun resolves to an explicit deny - fail closed,
// never fail open.
type Validator struct {
	directory UserDirectory
	verifier  TwoFactorVerifier
}

func NewValidator(directory UserDirectory, verifier TwoFactorVerifier) *Validator {
	return &Validator{directory: directory, verifier: verifier}
}

// Validate authenticates the credentials embedded in env. The context
// carries the per-attempt deadline, which must be comfortably shorter than
// the remote client's own connect timeout.
func (v *Validator) Validate(ctx context.Context, env map[string]string) Decision {
	username := env[envUsername]
	rawPassword := env[envPassword]
	if username == "" || rawPassword == "" {
		return Deny(ReasonInvalidCredentials)
	}

	basePassword, otpCode := SplitPassword(rawPassword)

	record, err := v.directory.Lookup(ctx, username)
	if err != nil {
		if errors.Is(err, UserNotFoundErr) {
			return Deny(ReasonInvalidCredentials)
		}
		return v.failClosed(username, err)
	}

	ok, err := v.directory.CheckPassword(ctx, record, basePassword)
	if err != nil {
		return v.failClosed(username, err)
	}
	if !ok {
		return Deny(ReasonInvalidCredentials)
	}

	// No second factor configured: a trailing code, if any, is ignored.
	if record.Method == "" || record.Method == users.TwoFactorNone {
		return Accept()
	}

	if otpCode == "" {
		return Deny(ReasonMissingCode)
	}

	verified, err := v.verifier.Verify(ctx, record.Method, record.SecretRef, otpCode)
	if err != nil {
		return v.failClosed(username, err)
	}
	if !verified {
		return Deny(ReasonInvalidCode)
	}
	return Accept()
}

func (v *Validator) failClosed(username string, err error) Decision {
	if errors.Is(err, context.DeadlineExceeded) {
		log.Warn().Err(err).Str("username", username).Msg("validation deadline exceeded")
		return Deny(ReasonValidationTimeout)
	}
	log.Error().Err(err).Str("username", username).Msg("validation collaborator failure")
	return Deny(ReasonValidationError)
}
