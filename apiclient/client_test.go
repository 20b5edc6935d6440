package apiclient_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-opportuci/apiclient"
	"github.com/jrsteele09/go-opportuci/internal/backendfake"
	"github.com/jrsteele09/go-opportuci/internal/metrics"
	"github.com/jrsteele09/go-opportuci/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "awa.kone@example.ci"
	testPassword = "motdepasse123"
	waitFor      = 2 * time.Second
	tick         = 5 * time.Millisecond
)

// testFixture holds all test dependencies
type testFixture struct {
	backend *backendfake.Backend
	server  *httptest.Server
	store   *session.InMemoryStore
	metrics *metrics.Collector
	client  *apiclient.Client
	user    backendfake.User
	logouts atomic.Int32
}

// setupTestFixture starts a fake backend with one user and a client pointed at it
func setupTestFixture(t *testing.T, backendOpts []backendfake.Option, clientOpts ...apiclient.ClientOption) *testFixture {
	t.Helper()

	f := &testFixture{
		backend: backendfake.New(append([]backendfake.Option{backendfake.WithLogger(zerolog.Nop())}, backendOpts...)...),
		store:   session.NewInMemoryStore(),
		metrics: metrics.NewCollector(),
	}
	f.user = f.backend.AddUser(testEmail, testPassword)
	f.server = httptest.NewServer(f.backend)
	t.Cleanup(f.server.Close)

	// Keep-alives off: net/http silently retries idempotent requests whose
	// reused connection dropped, which would hide DropRequests.
	opts := []apiclient.ClientOption{
		apiclient.WithHTTPClient(&http.Client{Transport: &http.Transport{DisableKeepAlives: true}}),
		apiclient.WithLogger(zerolog.Nop()),
		apiclient.WithMetrics(f.metrics),
		apiclient.WithLogoutHook(func() { f.logouts.Add(1) }),
	}
	client, err := apiclient.New(f.baseURL(), f.store, append(opts, clientOpts...)...)
	require.NoError(t, err)
	f.client = client
	return f
}

func (f *testFixture) baseURL() string {
	return f.server.URL + backendfake.APIPrefix
}

func (f *testFixture) login(t *testing.T) session.Session {
	t.Helper()
	s, err := f.client.Login(context.Background(), apiclient.Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	return s
}

func (f *testFixture) accessToken(t *testing.T) string {
	t.Helper()
	s, err := f.store.Load(context.Background())
	require.NoError(t, err)
	return s.AccessToken
}

func (f *testFixture) addOpportunity(t *testing.T) (string, backendfake.Opportunity) {
	t.Helper()
	o := f.backend.AddOpportunity(f.user.ID, backendfake.Opportunity{
		Title:        "Bourse d'excellence",
		Description:  "Master en informatique",
		Category:     1,
		Deadline:     "2030-06-30",
		Location:     "Abidjan",
		Organization: "Ministère de l'Enseignement Supérieur",
	})
	return fmt.Sprintf("/opportunities/opportunities/%d/", o.ID), o
}

func TestNew(t *testing.T) {
	store := session.NewInMemoryStore()

	t.Run("requires base URL", func(t *testing.T) {
		_, err := apiclient.New("", store)
		require.Error(t, err)
	})

	t.Run("rejects relative base URL", func(t *testing.T) {
		_, err := apiclient.New("/api", store)
		require.Error(t, err)
	})

	t.Run("requires store", func(t *testing.T) {
		_, err := apiclient.New("http://127.0.0.1:8000/api", nil)
		require.Error(t, err)
	})

	t.Run("trims trailing slash", func(t *testing.T) {
		c, err := apiclient.New("http://127.0.0.1:8000/api/", store)
		require.NoError(t, err)
		require.Equal(t, "http://127.0.0.1:8000/api", c.BaseURL())
	})
}

func TestClient_AttachesBearerToken(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.login(t)
	path, want := f.addOpportunity(t)

	resp, err := f.client.Get(context.Background(), path, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got backendfake.Opportunity
	require.NoError(t, resp.Decode(&got))
	require.Equal(t, want.Title, got.Title)
	require.Equal(t, []string{"Bearer " + f.accessToken(t)}, f.backend.Authorizations(path))
}

func TestClient_NoSessionSendsNoAuthorization(t *testing.T) {
	f := setupTestFixture(t, nil)

	resp, err := f.client.Get(context.Background(), "/opportunities/categories/", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []string{""}, f.backend.Authorizations("/opportunities/categories/"))
}

func TestClient_ErrorClassification(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.login(t)
	ctx := context.Background()

	t.Run("400 is a field validation error", func(t *testing.T) {
		resp, err := f.client.Post(ctx, "/opportunities/opportunities/", map[string]any{"title": ""})
		require.NotNil(t, resp)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var fve *apiclient.FieldValidationError
		require.ErrorAs(t, err, &fve)
		require.Equal(t, "This field is required.", fve.Field("title"))
		require.Contains(t, fve.Fields, "category")
	})

	t.Run("404 is a status error", func(t *testing.T) {
		_, err := f.client.Get(ctx, "/opportunities/opportunities/9999/", nil)
		var se *apiclient.StatusError
		require.ErrorAs(t, err, &se)
		require.Equal(t, http.StatusNotFound, se.StatusCode)
		require.Equal(t, "Not found.", se.Message)
		require.True(t, apiclient.IsNotFound(err))
	})

	t.Run("403 is an auth error and does not refresh", func(t *testing.T) {
		_, err := f.client.Patch(ctx, fmt.Sprintf("/accounts/users/%d/", f.user.ID+1), map[string]string{"bio": "x"})
		var ae *apiclient.AuthError
		require.ErrorAs(t, err, &ae)
		require.Equal(t, http.StatusForbidden, ae.StatusCode)
		require.Zero(t, f.backend.RefreshCalls())
	})
}

func TestClient_TransportErrorIsPassedThrough(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.login(t)
	path, _ := f.addOpportunity(t)
	f.backend.DropRequests(1)

	_, err := f.client.Get(context.Background(), path, nil)

	var te *apiclient.TransportError
	require.ErrorAs(t, err, &te)
	require.Equal(t, http.MethodGet, te.Method)
	require.Zero(t, f.backend.RefreshCalls())
	require.True(t, f.client.IsAuthenticated(context.Background()))
}

func TestClient_TransportRetries(t *testing.T) {
	f := setupTestFixture(t, nil, apiclient.WithTransportRetries(2, time.Millisecond))
	f.login(t)
	path, _ := f.addOpportunity(t)
	ctx := context.Background()

	t.Run("idempotent request is retried", func(t *testing.T) {
		f.backend.DropRequests(2)
		resp, err := f.client.Get(ctx, path, nil)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, float64(2), f.metrics.TransportRetryCount())
	})

	t.Run("retries are bounded", func(t *testing.T) {
		f.backend.DropRequests(3)
		_, err := f.client.Get(ctx, path, nil)
		var te *apiclient.TransportError
		require.ErrorAs(t, err, &te)
	})

	t.Run("POST is never retried", func(t *testing.T) {
		f.backend.DropRequests(1)
		_, err := f.client.Post(ctx, "/opportunities/opportunities/", map[string]any{"title": "x"})
		var te *apiclient.TransportError
		require.ErrorAs(t, err, &te)
		f.backend.DropRequests(0)
	})
}

func TestClient_RateLimit(t *testing.T) {
	f := setupTestFixture(t, nil, apiclient.WithRateLimit(1000, 1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.client.Get(ctx, "/opportunities/categories/", nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestClient_UserAgentAndRequestID(t *testing.T) {
	var gotUA, gotID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotID = r.Header.Get("X-Request-ID")
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	c, err := apiclient.New(srv.URL, session.NewInMemoryStore(), apiclient.WithUserAgent("opportuci-test"), apiclient.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	resp, err := c.Delete(context.Background(), "/anything/")
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "opportuci-test", gotUA)
	require.Len(t, gotID, 36)
}

func TestClient_Upload(t *testing.T) {
	var title, fileBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		title = r.FormValue("title")
		if file, _, err := r.FormFile("cv"); err == nil {
			data, _ := io.ReadAll(file)
			fileBody = string(data)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(srv.Close)

	c, err := apiclient.New(srv.URL, session.NewInMemoryStore(), apiclient.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	resp, err := c.Upload(context.Background(), "/accounts/profile/cv/",
		map[string]string{"title": "CV 2026"},
		apiclient.File{Field: "cv", Filename: "cv.pdf", Content: strings.NewReader("%PDF-1.7")})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "CV 2026", title)
	require.Equal(t, "%PDF-1.7", fileBody)
}
