package twofactor

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-vpn-auth-service/users"
	"github.com/pkg/errors"
	"github.com/pquerna/otp/totp"
)

const (
	smsCodeLength = 6
	smsCodeExpiry = 10 * time.Minute
)

var (
	UnknownMethodErr = errors.New("unknown two-factor method")
	NoPhoneNumberErr = errors.New("user has no phone number")
)

// Service implements both halves of two-factor verification: TOTP
// (authenticator apps) and SMS one-time codes. It satisfies the management
// core's TwoFactorVerifier contract: for TOTP the secret reference is the
// shared secret itself, for SMS it is the user id owning the pending code.
type Service struct {
	issuer  string
	codes   CodeRepo
	sender  Sender
	nowTime func() time.Time
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

func NewService(issuer string, codes CodeRepo, sender Sender, options ...ServiceOption) *Service {
	s := &Service{
		issuer:  issuer,
		codes:   codes,
		sender:  sender,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// SetupTOTP generates a fresh TOTP secret for the user and returns the
// secret together with the provisioning URI for authenticator apps.
func (s *Service) SetupTOTP(username string) (secret, uri string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: username,
	})
	if err != nil {
		return "", "", errors.Wrap(err, "[Service.SetupTOTP] totp.Generate")
	}
	return key.Secret(), key.URL(), nil
}

// VerifyTOTP checks a TOTP code against the shared secret.
func (s *Service) VerifyTOTP(secret, code string) bool {
	return totp.Validate(code, secret)
}

// SendSMSCode creates a new verification code for the user and hands it to
// the sender.
func (s *Service) SendSMSCode(user *users.User) error {
	if user.PhoneNumber == "" {
		return NoPhoneNumberErr
	}
	digits, err := randomDigits(smsCodeLength)
	if err != nil {
		return errors.Wrap(err, "[Service.SendSMSCode] randomDigits")
	}
	now := s.nowTime()
	code := &Code{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Code:      digits,
		CreatedAt: now,
		ExpiresAt: now.Add(smsCodeExpiry),
	}
	if err := s.codes.Create(code); err != nil {
		return errors.Wrap(err, "[Service.SendSMSCode] codes.Create")
	}
	message := fmt.Sprintf("Your verification code is: %s", digits)
	if err := s.sender.Send(user.PhoneNumber, message); err != nil {
		return errors.Wrap(err, "[Service.SendSMSCode] sender.Send")
	}
	return nil
}

// VerifySMSCode redeems the latest unused code for the user. A matching code
// is marked used so it cannot be replayed.
func (s *Service) VerifySMSCode(userID, code string) (bool, error) {
	latest, err := s.codes.LatestUnused(userID)
	if err != nil {
		return false, nil // no pending code: plain verification failure
	}
	if !latest.Valid(s.nowTime()) || latest.Code != code {
		return false, nil
	}
	if err := s.codes.MarkUsed(latest.ID); err != nil {
		return false, errors.Wrap(err, "[Service.VerifySMSCode] codes.MarkUsed")
	}
	return true, nil
}

// Verify dispatches a one-time code to the verification mechanism matching
// the user's configured method.
func (s *Service) Verify(ctx context.Context, method users.TwoFactorMethod, secretRef, code string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	switch method {
	case users.TwoFactorTOTP:
		return s.VerifyTOTP(secretRef, code), nil
	case users.TwoFactorSMS:
		return s.VerifySMSCode(secretRef, code)
	}
	return false, errors.Wrapf(UnknownMethodErr, "%q", method)
}

func randomDigits(n int) (string, error) {
	digits := make([]byte, n)
	for i := range digits {
		v, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + v.Int64())
	}
	return string(digits), nil
}
