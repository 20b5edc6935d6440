package backendfake

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
)

type ctxKey int

const userIDKey ctxKey = iota

func (b *Backend) routes() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix(APIPrefix).Subrouter()
	api.Use(b.recoverMiddleware, b.dropMiddleware, b.recordMiddleware)

	// Djoser JWT
	api.HandleFunc("/auth/jwt/create/", b.handleTokenCreate).Methods(http.MethodPost)
	api.HandleFunc("/auth/jwt/refresh/", b.handleTokenRefresh).Methods(http.MethodPost)
	api.HandleFunc("/auth/jwt/verify/", b.handleTokenVerify).Methods(http.MethodPost)

	// Djoser users
	api.HandleFunc("/auth/users/me/", b.authenticated(b.handleMe)).Methods(http.MethodGet)
	api.HandleFunc("/auth/users/reset_password/", b.handleResetPassword).Methods(http.MethodPost)
	api.HandleFunc("/auth/users/reset_password_confirm/", b.handleResetPasswordConfirm).Methods(http.MethodPost)

	// accounts
	api.HandleFunc("/accounts/users/", b.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/accounts/users/{id:[0-9]+}/", b.authenticated(b.handleUserUpdate)).Methods(http.MethodPatch)
	api.HandleFunc("/accounts/auth/password/change/", b.authenticated(b.handlePasswordChange)).Methods(http.MethodPost)
	api.HandleFunc("/accounts/auth/email/verify/", b.handleEmailVerify).Methods(http.MethodPost)

	// opportunities
	api.HandleFunc("/opportunities/user-opportunities/", b.authenticated(b.handleUserOpportunities)).Methods(http.MethodGet)
	api.HandleFunc("/opportunities/opportunities/", b.authenticated(b.handleOpportunityCreate)).Methods(http.MethodPost)
	api.HandleFunc("/opportunities/opportunities/{id:[0-9]+}/", b.authenticated(b.handleOpportunityGet)).Methods(http.MethodGet)
	api.HandleFunc("/opportunities/opportunities/{id:[0-9]+}/", b.authenticated(b.handleOpportunityUpdate)).Methods(http.MethodPut)
	api.HandleFunc("/opportunities/opportunities/{id:[0-9]+}/", b.authenticated(b.handleOpportunityDelete)).Methods(http.MethodDelete)
	api.HandleFunc("/opportunities/categories/", b.handleCategories).Methods(http.MethodGet)

	// ai
	api.HandleFunc("/ai/recommendations/", b.authenticated(b.handleRecommendations)).Methods(http.MethodGet)
	api.HandleFunc("/ai/career-advice/", b.authenticated(b.handleCareerAdvice)).Methods(http.MethodPost)
	api.HandleFunc("/ai/interview-prep/", b.authenticated(b.handleInterviewPrep)).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not found.")
	})
	return r
}

// authenticated enforces a valid bearer access token, mirroring DRF's
// JWTAuthentication + IsAuthenticated.
func (b *Backend) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeDetail(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
			return
		}
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			writeDetail(w, http.StatusUnauthorized, "Authorization header must contain two space-delimited values")
			return
		}

		b.mu.Lock()
		userID, err := b.checkToken(raw, tokenTypeAccess)
		b.mu.Unlock()
		if err != nil {
			writeTokenInvalid(w)
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	}
}

func requestUserID(r *http.Request) int {
	id, _ := r.Context().Value(userIDKey).(int)
	return id
}

func pathID(r *http.Request) int {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeTokenInvalid(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, map[string]string{
		"detail": "Given token not valid for any token type",
		"code":   "token_not_valid",
	})
}

// fieldErrors collects DRF-style {"field": ["message"]} errors
type fieldErrors map[string][]string

func (f fieldErrors) add(field, msg string) {
	f[field] = append(f[field], msg)
}

func (f fieldErrors) required(field, value string) {
	if strings.TrimSpace(value) == "" {
		f.add(field, "This field is required.")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeDetail(w, http.StatusBadRequest, "JSON parse error - "+err.Error())
		return false
	}
	return true
}
