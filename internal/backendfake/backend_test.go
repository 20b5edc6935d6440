package backendfake_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-opportuci/internal/backendfake"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "yao.nguessan@example.ci"
	testPassword = "Treichville1"
)

// testFixture holds all test dependencies
type testFixture struct {
	backend *backendfake.Backend
	srv     *httptest.Server
	user    backendfake.User
}

func setupTestFixture(t *testing.T, options ...backendfake.Option) *testFixture {
	t.Helper()

	options = append([]backendfake.Option{backendfake.WithLogger(zerolog.Nop())}, options...)
	backend := backendfake.New(options...)
	user := backend.AddUser(testEmail, testPassword)
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	return &testFixture{backend: backend, srv: srv, user: user}
}

func (f *testFixture) call(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, f.srv.URL+backendfake.APIPrefix+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func (f *testFixture) login(t *testing.T) (access, refresh string) {
	t.Helper()
	status, body := f.call(t, http.MethodPost, "/auth/jwt/create/", "", map[string]string{"email": testEmail, "password": testPassword})
	require.Equal(t, http.StatusOK, status)
	return body["access"].(string), body["refresh"].(string)
}

func TestBackend_TokenLifecycle(t *testing.T) {
	f := setupTestFixture(t, backendfake.WithRotateRefreshTokens(true))

	t.Run("bad credentials", func(t *testing.T) {
		status, body := f.call(t, http.MethodPost, "/auth/jwt/create/", "", map[string]string{"email": testEmail, "password": "x"})
		require.Equal(t, http.StatusUnauthorized, status)
		require.Equal(t, "No active account found with the given credentials", body["detail"])

		status, body = f.call(t, http.MethodPost, "/auth/jwt/create/", "", map[string]string{"email": testEmail})
		require.Equal(t, http.StatusBadRequest, status)
		require.Contains(t, body, "password")
	})

	access, refresh := f.login(t)

	status, body := f.call(t, http.MethodGet, "/auth/users/me/", access, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, testEmail, body["email"])

	status, _ = f.call(t, http.MethodGet, "/auth/users/me/", "", nil)
	require.Equal(t, http.StatusUnauthorized, status)

	f.backend.ExpireAccessTokens()
	status, body = f.call(t, http.MethodGet, "/auth/users/me/", access, nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "token_not_valid", body["code"])

	status, body = f.call(t, http.MethodPost, "/auth/jwt/refresh/", "", map[string]string{"refresh": refresh})
	require.Equal(t, http.StatusOK, status)
	newAccess := body["access"].(string)
	newRefresh := body["refresh"].(string)
	require.NotEqual(t, refresh, newRefresh)

	status, _ = f.call(t, http.MethodGet, "/auth/users/me/", newAccess, nil)
	require.Equal(t, http.StatusOK, status)

	t.Run("rotated refresh token is blacklisted", func(t *testing.T) {
		status, _ := f.call(t, http.MethodPost, "/auth/jwt/refresh/", "", map[string]string{"refresh": refresh})
		require.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("verify", func(t *testing.T) {
		status, _ := f.call(t, http.MethodPost, "/auth/jwt/verify/", "", map[string]string{"token": newAccess})
		require.Equal(t, http.StatusOK, status)
		status, _ = f.call(t, http.MethodPost, "/auth/jwt/verify/", "", map[string]string{"token": "garbage"})
		require.Equal(t, http.StatusUnauthorized, status)
	})

	require.Equal(t, 2, f.backend.RefreshCalls())
}

func TestBackend_AccessTTL(t *testing.T) {
	var now atomic.Int64
	now.Store(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC).Unix())
	f := setupTestFixture(t,
		backendfake.WithAccessTTL(time.Minute),
		backendfake.WithNowFunc(func() time.Time { return time.Unix(now.Load(), 0) }),
	)

	access, _ := f.login(t)
	status, _ := f.call(t, http.MethodGet, "/auth/users/me/", access, nil)
	require.Equal(t, http.StatusOK, status)

	now.Add(int64((2 * time.Minute).Seconds()))
	status, _ = f.call(t, http.MethodGet, "/auth/users/me/", access, nil)
	require.Equal(t, http.StatusUnauthorized, status)
}

func TestBackend_Controls(t *testing.T) {
	f := setupTestFixture(t)
	_, refresh := f.login(t)

	t.Run("hold refresh", func(t *testing.T) {
		release := f.backend.HoldRefresh()
		done := make(chan int, 1)
		body, err := json.Marshal(map[string]string{"refresh": refresh})
		require.NoError(t, err)
		go func() {
			resp, err := http.Post(f.srv.URL+backendfake.APIPrefix+"/auth/jwt/refresh/", "application/json", bytes.NewReader(body))
			if err != nil {
				done <- 0
				return
			}
			resp.Body.Close()
			done <- resp.StatusCode
		}()

		require.Eventually(t, func() bool { return f.backend.RefreshCalls() == 1 }, 2*time.Second, 5*time.Millisecond)
		select {
		case <-done:
			t.Fatal("refresh finished while held")
		case <-time.After(20 * time.Millisecond):
		}

		release()
		require.Equal(t, http.StatusOK, <-done)
	})

	t.Run("fail refresh", func(t *testing.T) {
		f.backend.FailRefresh(http.StatusUnauthorized)
		status, body := f.call(t, http.MethodPost, "/auth/jwt/refresh/", "", map[string]string{"refresh": refresh})
		require.Equal(t, http.StatusUnauthorized, status)
		require.Equal(t, "token_not_valid", body["code"])
		f.backend.FailRefresh(0)
	})

	t.Run("reject access tokens", func(t *testing.T) {
		access, _, err := f.backend.IssueTokens(f.user.ID)
		require.NoError(t, err)

		f.backend.RejectAccessTokens(true)
		status, _ := f.call(t, http.MethodGet, "/auth/users/me/", access, nil)
		require.Equal(t, http.StatusUnauthorized, status)

		f.backend.RejectAccessTokens(false)
		status, _ = f.call(t, http.MethodGet, "/auth/users/me/", access, nil)
		require.Equal(t, http.StatusOK, status)
	})

	t.Run("calls are recorded", func(t *testing.T) {
		calls := f.backend.Calls("/auth/users/me/")
		require.NotEmpty(t, calls)
		require.Equal(t, http.MethodGet, calls[0].Method)
		require.Equal(t, http.StatusUnauthorized, calls[0].Status)
	})
}

func TestBackend_Opportunities(t *testing.T) {
	f := setupTestFixture(t)
	f.backend.Seed(f.user.ID, 4)
	access, _ := f.login(t)

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+backendfake.APIPrefix+"/opportunities/user-opportunities/", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+access)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var list []backendfake.Opportunity
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 4)
	for _, o := range list {
		_, err := time.Parse(time.DateOnly, o.Deadline)
		require.NoError(t, err)
	}

	t.Run("validation", func(t *testing.T) {
		status, body := f.call(t, http.MethodPost, "/opportunities/opportunities/", access, map[string]any{
			"title": "Bourse", "category": 42, "deadline": "01/02/2030",
		})
		require.Equal(t, http.StatusBadRequest, status)
		require.Contains(t, body, "category")
		require.Contains(t, body, "deadline")
		require.Contains(t, body, "description")
	})

	t.Run("unknown route", func(t *testing.T) {
		status, body := f.call(t, http.MethodGet, "/nowhere/", access, nil)
		require.Equal(t, http.StatusNotFound, status)
		require.Equal(t, "Not found.", body["detail"])
	})
}

func TestBackend_PasswordChangeAndEmailVerify(t *testing.T) {
	f := setupTestFixture(t)
	access, _ := f.login(t)

	status, _ := f.call(t, http.MethodPost, "/accounts/auth/password/change/", "", map[string]string{"old_password": testPassword})
	require.Equal(t, http.StatusUnauthorized, status)

	status, body := f.call(t, http.MethodPost, "/accounts/auth/password/change/", access, map[string]string{
		"old_password": testPassword, "new_password1": "Marcory2026", "new_password2": "Marcory2027",
	})
	require.Equal(t, http.StatusBadRequest, status)
	require.Contains(t, body, "new_password2")

	status, body = f.call(t, http.MethodPost, "/accounts/auth/password/change/", access, map[string]string{
		"old_password": testPassword, "new_password1": "Marcory2026", "new_password2": "Marcory2026",
	})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "New password has been saved.", body["detail"])

	status, _ = f.call(t, http.MethodPost, "/auth/jwt/create/", "", map[string]string{"email": testEmail, "password": "Marcory2026"})
	require.Equal(t, http.StatusOK, status)

	t.Run("email verify", func(t *testing.T) {
		key, ok := f.backend.EmailVerificationKey(f.user.ID)
		require.True(t, ok)
		again, _ := f.backend.EmailVerificationKey(f.user.ID)
		require.Equal(t, key, again)

		status, _ := f.call(t, http.MethodPost, "/accounts/auth/email/verify/", "", map[string]string{"key": key})
		require.Equal(t, http.StatusOK, status)
		u, _ := f.backend.User(f.user.ID)
		require.True(t, u.IsVerified)

		status, _ = f.call(t, http.MethodPost, "/accounts/auth/email/verify/", "", map[string]string{"key": key})
		require.Equal(t, http.StatusNotFound, status)

		_, ok = f.backend.EmailVerificationKey(999)
		require.False(t, ok)
	})
}

func TestBackend_AI(t *testing.T) {
	f := setupTestFixture(t)
	f.backend.Seed(f.user.ID, 3)
	access, _ := f.login(t)

	status, _ := f.call(t, http.MethodGet, "/ai/recommendations/", "", nil)
	require.Equal(t, http.StatusUnauthorized, status)

	status, body := f.call(t, http.MethodGet, "/ai/recommendations/", access, nil)
	require.Equal(t, http.StatusOK, status)
	recs, ok := body["recommendations"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, recs)
	first := recs[0].(map[string]any)
	require.Contains(t, first, "match_score")
	require.Contains(t, first, "match_reason")

	status, body = f.call(t, http.MethodPost, "/ai/career-advice/", access, map[string]string{"career_goals": "software engineer"})
	require.Equal(t, http.StatusOK, status)
	advice := body["career_advice"].(map[string]any)
	require.Contains(t, advice["recommended_skills"], "git")

	status, body = f.call(t, http.MethodPost, "/ai/interview-prep/", access, map[string]int{"opportunity_id": 1})
	require.Equal(t, http.StatusOK, status)
	prep := body["interview_prep"].(map[string]any)
	require.EqualValues(t, 1, prep["opportunity_id"])
	require.NotEmpty(t, prep["questions"])

	status, body = f.call(t, http.MethodPost, "/ai/interview-prep/", access, map[string]any{})
	require.Equal(t, http.StatusBadRequest, status)
	require.Contains(t, body, "opportunity_id")
}
