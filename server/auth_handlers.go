package server

import (
	"net/http"

	"github.com/jrsteele09/go-vpn-auth-service/users"
	"github.com/rs/zerolog/log"
)

type registerRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number"`
}

// RegisterHandler creates a new user account.
func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := readJSON(r, &req); err != nil {
			errorJSON(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Username == "" || req.Password == "" {
			errorJSON(w, http.StatusBadRequest, "username and password are required")
			return
		}
		if _, err := s.repos.Users.GetByUsername(req.Username); err == nil {
			errorJSON(w, http.StatusConflict, "username already taken")
			return
		}
		if err := users.ValidatePasswordStrength(req.Password); err != nil {
			errorJSON(w, http.StatusBadRequest, err.Error())
			return
		}
		hash, err := users.HashPassword(req.Password)
		if err != nil {
			errorJSON(w, http.StatusInternalServerError, "failed to create user")
			return
		}
		user := &users.User{
			Username:     req.Username,
			Email:        req.Email,
			PasswordHash: hash,
			FirstName:    req.FirstName,
			LastName:     req.LastName,
			PhoneNumber:  req.PhoneNumber,
			TwoFactor:    users.TwoFactorNone,
		}
		if err := s.repos.Users.Upsert(user); err != nil {
			errorJSON(w, http.StatusInternalServerError, "failed to create user")
			return
		}
		log.Info().Str("username", user.Username).Msg("user registered")
		writeJSON(w, http.StatusCreated, user)
	}
}

type loginStep1Request struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginStep1Handler validates username and password. Users without a second
// factor receive an access token directly; everyone else receives a
// temporary token for step 2.
func (s *Server) LoginStep1Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginStep1Request
		if err := readJSON(r, &req); err != nil || req.Username == "" || req.Password == "" {
			errorJSON(w, http.StatusBadRequest, "please provide both username and password")
			return
		}
		user, err := s.repos.Users.GetByUsername(req.Username)
		if err != nil || user.Blocked || !users.CheckPasswordHash(req.Password, user.PasswordHash) {
			errorJSON(w, http.StatusUnauthorized, "invalid credentials")
			return
		}

		if !user.TwoFactorEnabled() {
			token, err := s.issueToken(user.ID, user.Username, purposeAccess, s.config.GetAccessTokenExpiry())
			if err != nil {
				errorJSON(w, http.StatusInternalServerError, "failed to issue token")
				return
			}
			_ = s.repos.Users.SetLastLogin(user.Username)
			writeJSON(w, http.StatusOK, map[string]any{
				"access_token":    token,
				"username":        user.Username,
				"two_fa_required": false,
			})
			return
		}

		if user.TwoFactor == users.TwoFactorSMS {
			if err := s.repos.TwoFactor.SendSMSCode(user); err != nil {
				log.Error().Err(err).Str("username", user.Username).Msg("failed to send SMS code")
				errorJSON(w, http.StatusInternalServerError, "failed to send verification code")
				return
			}
		}

		temp, err := s.issueToken(user.ID, user.Username, purposeTwoFactor, s.config.GetTempTokenExpiry())
		if err != nil {
			errorJSON(w, http.StatusInternalServerError, "failed to issue token")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"temporary_token": temp,
			"username":        user.Username,
			"two_fa_required": true,
			"two_fa_method":   user.TwoFactor,
		})
	}
}

type loginStep2Request struct {
	TemporaryToken string `json:"temporary_token"`
	Code           string `json:"code"`
}

// LoginStep2Handler verifies the one-time code against the temporary token
// from step 1 and exchanges it for an access token.
func (s *Server) LoginStep2Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginStep2Request
		if err := readJSON(r, &req); err != nil || req.TemporaryToken == "" || req.Code == "" {
			errorJSON(w, http.StatusBadRequest, "please provide both temporary_token and code")
			return
		}
		claims, err := s.parseToken(req.TemporaryToken, purposeTwoFactor)
		if err != nil {
			errorJSON(w, http.StatusUnauthorized, "invalid or expired temporary token")
			return
		}
		user, err := s.repos.Users.GetByUsername(claims.Username)
		if err != nil || user.Blocked {
			errorJSON(w, http.StatusUnauthorized, "invalid or expired temporary token")
			return
		}

		verified, err := s.repos.TwoFactor.Verify(r.Context(), user.TwoFactor, twoFactorSecretRef(user), req.Code)
		if err != nil || !verified {
			errorJSON(w, http.StatusUnauthorized, "invalid verification code")
			return
		}

		token, err := s.issueToken(user.ID, user.Username, purposeAccess, s.config.GetAccessTokenExpiry())
		if err != nil {
			errorJSON(w, http.StatusInternalServerError, "failed to issue token")
			return
		}
		_ = s.repos.Users.SetLastLogin(user.Username)
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": token,
			"username":     user.Username,
		})
	}
}

// ProfileHandler returns the authenticated user's profile.
func (s *Server) ProfileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.repos.Users.GetByUsername(authenticatedUser(r))
		if err != nil {
			errorJSON(w, http.StatusNotFound, "user not found")
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

// twoFactorSecretRef mirrors the management core's convention: the TOTP
// secret itself, or the user id owning the pending SMS code.
func twoFactorSecretRef(user *users.User) string {
	if user.TwoFactor == users.TwoFactorTOTP {
		return user.TOTPSecret
	}
	return user.ID
}
