// Package backendfake is an in-process stand-in for the OpportuCI REST
// backend (Django REST Framework with SimpleJWT and Djoser). It issues real
// HS256 tokens, serves the auth, accounts and opportunities endpoints under
// /api, and exposes controls for forcing token expiry and refresh failures.
// Tests serve it with httptest; the CLI serves it with serve-fake.
package backendfake

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jrsteele09/go-opportuci/internal/utils"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// APIPrefix is the path all endpoints are served under.
const APIPrefix = "/api"

// Call is one request received by the backend.
type Call struct {
	Method        string
	Path          string
	Authorization string
	RequestID     string
	Status        int
}

// Backend is the fake server. Safe for concurrent use.
type Backend struct {
	mu      sync.Mutex
	router  *mux.Router
	signer  *hmacSigner
	logger  zerolog.Logger
	nowFunc func() time.Time

	accessTTL     time.Duration
	refreshTTL    time.Duration
	rotateRefresh bool

	// generation invalidates every access token issued before it changed
	generation   int
	rejectAccess bool
	blacklist    map[string]bool

	refreshFailStatus int
	refreshGate       chan struct{}
	refreshCalls      int
	dropRequests      int

	users         map[int]*User
	nextUserID    int
	resetTokens   map[int]string
	verifyKeys    map[int]string
	opportunities map[int]*Opportunity
	nextOppID     int
	categories    []Category

	calls []Call
}

// Option configures a Backend
type Option func(*Backend)

func WithAccessTTL(d time.Duration) Option {
	return func(b *Backend) {
		b.accessTTL = d
	}
}

func WithRefreshTTL(d time.Duration) Option {
	return func(b *Backend) {
		b.refreshTTL = d
	}
}

// WithRotateRefreshTokens makes the refresh endpoint return a new refresh
// token and blacklist the old one.
func WithRotateRefreshTokens(rotate bool) Option {
	return func(b *Backend) {
		b.rotateRefresh = rotate
	}
}

// WithSecret sets the HMAC signing secret. Defaults to a random value.
func WithSecret(secret string) Option {
	return func(b *Backend) {
		b.signer = &hmacSigner{secret: []byte(secret)}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// WithNowFunc sets the clock used for token iat/exp (primarily for testing)
func WithNowFunc(now func() time.Time) Option {
	return func(b *Backend) {
		b.nowFunc = now
	}
}

// New creates a backend with the default categories and no users.
func New(options ...Option) *Backend {
	b := &Backend{
		signer:        &hmacSigner{secret: []byte(uuid.NewString())},
		logger:        log.Logger,
		nowFunc:       time.Now,
		accessTTL:     5 * time.Minute,
		refreshTTL:    24 * time.Hour,
		blacklist:     map[string]bool{},
		users:         map[int]*User{},
		nextUserID:    1,
		resetTokens:   map[int]string{},
		verifyKeys:    map[int]string{},
		opportunities: map[int]*Opportunity{},
		nextOppID:     1,
		categories:    defaultCategories(),
	}
	for _, opt := range options {
		opt(b)
	}
	b.router = b.routes()
	return b
}

func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.router.ServeHTTP(w, r)
}

// ExpireAccessTokens invalidates every access token issued so far, as if
// they had all reached their exp.
func (b *Backend) ExpireAccessTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.generation++
}

// RejectAccessTokens makes every access token, including ones issued later,
// fail authentication until called with false.
func (b *Backend) RejectAccessTokens(reject bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rejectAccess = reject
}

// FailRefresh makes the refresh endpoint answer with status. 0 restores
// normal behaviour.
func (b *Backend) FailRefresh(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshFailStatus = status
}

// HoldRefresh parks refresh requests until the returned release func is called.
func (b *Backend) HoldRefresh() (release func()) {
	gate := make(chan struct{})
	b.mu.Lock()
	b.refreshGate = gate
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if b.refreshGate == gate {
				b.refreshGate = nil
			}
			b.mu.Unlock()
			close(gate)
		})
	}
}

// DropRequests closes the connection without a response for the next n
// requests to non-token endpoints.
func (b *Backend) DropRequests(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropRequests = n
}

// RefreshCalls returns how many requests reached the refresh endpoint.
func (b *Backend) RefreshCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refreshCalls
}

// Calls returns the recorded requests to path (relative to /api), in arrival order.
// An empty path returns every call.
func (b *Backend) Calls(path string) []Call {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Call
	for _, c := range b.calls {
		if path == "" || c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

// Authorizations returns the Authorization headers sent to path, in arrival order.
func (b *Backend) Authorizations(path string) []string {
	calls := b.Calls(path)
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.Authorization)
	}
	return out
}

// IssueTokens creates a valid token pair for an existing user without a login call.
func (b *Backend) IssueTokens(userID int) (access, refresh string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if access, err = b.issueAccess(userID); err != nil {
		return "", "", err
	}
	if refresh, err = b.issueRefresh(userID); err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// statusRecorder captures the status written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// recordMiddleware records every call and logs it with the method coloured
// for the terminal.
func (b *Backend) recordMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := r.URL.Path[len(APIPrefix):]
		b.mu.Lock()
		b.calls = append(b.calls, Call{
			Method:        r.Method,
			Path:          path,
			Authorization: r.Header.Get("Authorization"),
			RequestID:     r.Header.Get("X-Request-ID"),
			Status:        rec.status,
		})
		b.mu.Unlock()

		b.logger.Debug().Msgf("[%-19s] %s %s", utils.ColourMethod(r.Method), utils.ColourStatus(rec.status), r.URL.Path)
	})
}

// dropMiddleware hijacks and closes the connection for requests selected by
// DropRequests. It must run before recordMiddleware, whose writer cannot be hijacked.
func (b *Backend) dropMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, APIPrefix+"/auth/jwt/") {
			next.ServeHTTP(w, r)
			return
		}

		b.mu.Lock()
		drop := b.dropRequests > 0
		if drop {
			b.dropRequests--
		}
		b.mu.Unlock()

		if hj, ok := w.(http.Hijacker); drop && ok {
			if conn, _, err := hj.Hijack(); err == nil {
				conn.Close()
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// recoverMiddleware turns handler panics into 500s
func (b *Backend) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				b.logger.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("handler panic")
				writeDetail(w, http.StatusInternalServerError, "A server error occurred.")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
