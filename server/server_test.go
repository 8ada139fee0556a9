package server_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jrsteele09/go-vpn-auth-service/company"
	fakecompanyrepo "github.com/jrsteele09/go-vpn-auth-service/company/repofake"
	"github.com/jrsteele09/go-vpn-auth-service/internal/config"
	"github.com/jrsteele09/go-vpn-auth-service/server"
	"github.com/jrsteele09/go-vpn-auth-service/twofactor"
	fakecoderepo "github.com/jrsteele09/go-vpn-auth-service/twofactor/repofake"
	"github.com/jrsteele09/go-vpn-auth-service/users"
	fakeuserrepo "github.com/jrsteele09/go-vpn-auth-service/users/repofake"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

const testPassword = "Hunter2Hunter2"

type serverFixture struct {
	userRepo *fakeuserrepo.FakeUserRepo
	codeRepo *fakecoderepo.FakeCodeRepo
	server   *server.Server
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	f := &serverFixture{
		userRepo: fakeuserrepo.NewFakeUserRepo(),
		codeRepo: fakecoderepo.NewFakeCodeRepo(),
	}
	repos := server.Repos{
		Users:     f.userRepo,
		TwoFactor: twofactor.NewService("VPN Auth Server", f.codeRepo, twofactor.LogSender{}),
		Companies: company.NewService(fakecompanyrepo.NewFakeCompanyRepo()),
	}
	f.server = server.New(config.New(), repos)
	return f
}

func (f *serverFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "198.51.100.7:55000"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	f.server.ServeHTTP(recorder, req)
	return recorder
}

func decode(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &out))
	return out
}

func (f *serverFixture) registerUser(t *testing.T, username string) *users.User {
	t.Helper()
	recorder := f.do(t, http.MethodPost, server.RouteRegister, "", map[string]string{
		"username":     username,
		"password":     testPassword,
		"email":        username + "@example.com",
		"phone_number": "+44123456789",
	})
	require.Equal(t, http.StatusCreated, recorder.Code)
	user, err := f.userRepo.GetByUsername(username)
	require.NoError(t, err)
	return user
}

func (f *serverFixture) login(t *testing.T, username, password string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	recorder := f.do(t, http.MethodPost, server.RouteLoginStep1, "", map[string]string{
		"username": username,
		"password": password,
	})
	return recorder, decode(t, recorder)
}

func TestRegister(t *testing.T) {
	f := newServerFixture(t)
	f.registerUser(t, "alice")

	user, err := f.userRepo.GetByUsername("alice")
	require.NoError(t, err)
	require.True(t, users.CheckPasswordHash(testPassword, user.PasswordHash))
	require.Equal(t, users.TwoFactorNone, user.TwoFactor)
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	f := newServerFixture(t)
	recorder := f.do(t, http.MethodPost, server.RouteRegister, "", map[string]string{
		"username": "alice",
		"password": "weak",
	})
	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	f := newServerFixture(t)
	f.registerUser(t, "alice")

	recorder := f.do(t, http.MethodPost, server.RouteRegister, "", map[string]string{
		"username": "alice",
		"password": testPassword,
	})
	require.Equal(t, http.StatusConflict, recorder.Code)
}

func TestLoginWithoutTwoFactorIssuesAccessToken(t *testing.T) {
	f := newServerFixture(t)
	f.registerUser(t, "alice")

	recorder, body := f.login(t, "alice", testPassword)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, false, body["two_fa_required"])
	require.NotEmpty(t, body["access_token"])
}

func TestLoginRejectsBadPassword(t *testing.T) {
	f := newServerFixture(t)
	f.registerUser(t, "alice")

	recorder, _ := f.login(t, "alice", "wrong")
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestLoginRejectsBlockedUser(t *testing.T) {
	f := newServerFixture(t)
	f.registerUser(t, "alice")
	require.NoError(t, f.userRepo.SetBlocked("alice", true))

	recorder, _ := f.login(t, "alice", testPassword)
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestTwoStepLoginWithTOTP(t *testing.T) {
	f := newServerFixture(t)
	f.registerUser(t, "alice")

	// Enrol in TOTP through the authenticated setup endpoint.
	_, body := f.login(t, "alice", testPassword)
	accessToken := body["access_token"].(string)

	recorder := f.do(t, http.MethodPost, server.RouteSetupTOTP, accessToken, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	secret := decode(t, recorder)["secret"].(string)

	// Step 1 now demands a second factor.
	recorder, body = f.login(t, "alice", testPassword)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, true, body["two_fa_required"])
	require.Equal(t, "totp", body["two_fa_method"])
	tempToken := body["temporary_token"].(string)
	require.Empty(t, body["access_token"])

	// Step 2 exchanges the temporary token plus a valid code.
	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	recorder = f.do(t, http.MethodPost, server.RouteLoginStep2, "", map[string]string{
		"temporary_token": tempToken,
		"code":            code,
	})
	require.Equal(t, http.StatusOK, recorder.Code)
	require.NotEmpty(t, decode(t, recorder)["access_token"])
}

func TestLoginStep2RejectsInvalidCode(t *testing.T) {
	f := newServerFixture(t)
	f.registerUser(t, "alice")

	_, body := f.login(t, "alice", testPassword)
	accessToken := body["access_token"].(string)
	recorder := f.do(t, http.MethodPost, server.RouteSetupTOTP, accessToken, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	_, body = f.login(t, "alice", testPassword)
	recorder = f.do(t, http.MethodPost, server.RouteLoginStep2, "", map[string]string{
		"temporary_token": body["temporary_token"].(string),
		"code":            "000000",
	})
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestLoginStep2RejectsAccessTokenAsTemporaryToken(t *testing.T) {
	f := newServerFixture(t)
	f.registerUser(t, "alice")

	_, body := f.login(t, "alice", testPassword)
	recorder := f.do(t, http.MethodPost, server.RouteLoginStep2, "", map[string]string{
		"temporary_token": body["access_token"].(string),
		"code":            "123456",
	})
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestTwoStepLoginWithSMS(t *testing.T) {
	f := newServerFixture(t)
	user := f.registerUser(t, "carol")

	_, body := f.login(t, "carol", testPassword)
	accessToken := body["access_token"].(string)

	recorder := f.do(t, http.MethodPost, server.RouteSetupSMS, accessToken, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder, body = f.login(t, "carol", testPassword)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, "sms", body["two_fa_method"])

	pending, err := f.codeRepo.LatestUnused(user.ID)
	require.NoError(t, err)
	recorder = f.do(t, http.MethodPost, server.RouteLoginStep2, "", map[string]string{
		"temporary_token": body["temporary_token"].(string),
		"code":            pending.Code,
	})
	require.Equal(t, http.StatusOK, recorder.Code)
}

func TestProfileRequiresAuth(t *testing.T) {
	f := newServerFixture(t)
	f.registerUser(t, "alice")

	recorder := f.do(t, http.MethodGet, server.RouteProfile, "", nil)
	require.Equal(t, http.StatusUnauthorized, recorder.Code)

	_, body := f.login(t, "alice", testPassword)
	recorder = f.do(t, http.MethodGet, server.RouteProfile, body["access_token"].(string), nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, "alice", decode(t, recorder)["username"])
}

func TestLoginRateLimit(t *testing.T) {
	f := newServerFixture(t)
	f.registerUser(t, "alice")

	limited := false
	for i := 0; i < 10; i++ {
		recorder, _ := f.login(t, "alice", "wrong")
		if recorder.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	require.True(t, limited)
}

func TestCompanyEndpoints(t *testing.T) {
	f := newServerFixture(t)
	f.registerUser(t, "alice")
	_, body := f.login(t, "alice", testPassword)
	token := body["access_token"].(string)

	recorder := f.do(t, http.MethodPost, server.RouteCompanies, token, map[string]any{
		"name":    "Acme Ltd",
		"country": "GB",
	})
	require.Equal(t, http.StatusCreated, recorder.Code)
	pid := decode(t, recorder)["pid"].(string)

	recorder = f.do(t, http.MethodGet, "/companies/"+pid, token, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = f.do(t, http.MethodPatch, "/companies/"+pid, token, map[string]any{
		"name": "Acme Holdings Ltd",
	})
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, "Acme Holdings Ltd", decode(t, recorder)["name"])

	recorder = f.do(t, http.MethodGet, "/companies/"+pid+"/changelog", token, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	var logs []map[string]any
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &logs))
	require.Len(t, logs, 2)

	recorder = f.do(t, http.MethodGet, server.RouteCompanies, token, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = f.do(t, http.MethodGet, "/companies/unknown", token, nil)
	require.Equal(t, http.StatusNotFound, recorder.Code)
}
