package server

import (
	"net/http"

	"github.com/jrsteele09/go-vpn-auth-service/users"
	"github.com/rs/zerolog/log"
)

// SetupTOTPHandler enrols the authenticated user in TOTP. The returned
// provisioning URI is meant to be rendered as a QR code by the caller.
func (s *Server) SetupTOTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.repos.Users.GetByUsername(authenticatedUser(r))
		if err != nil {
			errorJSON(w, http.StatusNotFound, "user not found")
			return
		}
		secret, uri, err := s.repos.TwoFactor.SetupTOTP(user.Username)
		if err != nil {
			errorJSON(w, http.StatusInternalServerError, "failed to generate TOTP secret")
			return
		}
		user.TwoFactor = users.TwoFactorTOTP
		user.TOTPSecret = secret
		if err := s.repos.Users.Upsert(user); err != nil {
			errorJSON(w, http.StatusInternalServerError, "failed to save user")
			return
		}
		log.Info().Str("username", user.Username).Msg("TOTP enabled")
		writeJSON(w, http.StatusOK, map[string]string{
			"secret":           secret,
			"provisioning_uri": uri,
		})
	}
}

type setupSMSRequest struct {
	PhoneNumber string `json:"phone_number"`
}

// SetupSMSHandler enrols the authenticated user in SMS codes and sends a
// first code so the caller can confirm delivery.
func (s *Server) SetupSMSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.repos.Users.GetByUsername(authenticatedUser(r))
		if err != nil {
			errorJSON(w, http.StatusNotFound, "user not found")
			return
		}
		var req setupSMSRequest
		if err := readJSON(r, &req); err == nil && req.PhoneNumber != "" {
			user.PhoneNumber = req.PhoneNumber
		}
		if user.PhoneNumber == "" {
			errorJSON(w, http.StatusBadRequest, "a phone number is required for SMS codes")
			return
		}
		user.TwoFactor = users.TwoFactorSMS
		if err := s.repos.Users.Upsert(user); err != nil {
			errorJSON(w, http.StatusInternalServerError, "failed to save user")
			return
		}
		if err := s.repos.TwoFactor.SendSMSCode(user); err != nil {
			errorJSON(w, http.StatusInternalServerError, "failed to send verification code")
			return
		}
		log.Info().Str("username", user.Username).Msg("SMS codes enabled")
		writeJSON(w, http.StatusOK, map[string]string{"status": "code sent"})
	}
}
