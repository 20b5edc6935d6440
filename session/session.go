package session

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// Storage keys under which the two tokens are persisted. Both are written at
// login and removed together at logout.
const (
	KeyAccess  = "access"
	KeyRefresh = "refresh"
)

// Session is the access/refresh token pair issued by the backend at login.
type Session struct {
	AccessToken  string `json:"access"`  // Short-lived bearer credential
	RefreshToken string `json:"refresh"` // Exchanged for a new access token when the access token expires
}

// IsEmpty reports whether no access token is held.
func (s Session) IsEmpty() bool {
	return s.AccessToken == ""
}

// AccessExpiry reads the "exp" claim of the access token without verifying
// its signature. The client never holds the signing key, so this is only a
// hint used to refresh ahead of expiry; the backend stays authoritative.
func (s Session) AccessExpiry() (time.Time, bool) {
	return tokenExpiry(s.AccessToken)
}

// OAuth2Token converts the session to the golang.org/x/oauth2 token model so
// it can feed oauth2.Transport or any other TokenSource consumer.
func (s Session) OAuth2Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  s.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: s.RefreshToken,
	}
	if exp, ok := s.AccessExpiry(); ok {
		tok.Expiry = exp
	}
	return tok
}

// FromOAuth2Token builds a Session from an oauth2.Token.
func FromOAuth2Token(tok *oauth2.Token) Session {
	if tok == nil {
		return Session{}
	}
	return Session{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}
}

func tokenExpiry(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	token, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Store persists the session. Implementations must be safe for concurrent use.
// Load returns a zero Session, not an error, when nothing is stored.
type Store interface {
	Load(ctx context.Context) (Session, error)
	Save(ctx context.Context, s Session) error
	SetAccessToken(ctx context.Context, accessToken string) error
	Clear(ctx context.Context) error
}
