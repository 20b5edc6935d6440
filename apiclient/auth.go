package apiclient

import (
	"context"
	"fmt"

	apperrors "github.com/jrsteele09/go-opportuci/internal/errors"
	"github.com/jrsteele09/go-opportuci/session"
)

// Credentials are exchanged for a token pair at login.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login exchanges credentials for an access/refresh token pair and persists
// both. Invalid input is reported as *FieldValidationError before anything is
// sent; rejected credentials come back as *AuthError.
func (c *Client) Login(ctx context.Context, creds Credentials) (session.Session, error) {
	if err := Validate(creds); err != nil {
		return session.Session{}, err
	}

	resp, err := c.Post(ctx, EndpointTokenCreate, creds)
	if err != nil {
		c.logger.Warn().Err(err).Msg("login rejected")
		return session.Session{}, err
	}

	var pair tokenPair
	if err := resp.Decode(&pair); err != nil {
		return session.Session{}, fmt.Errorf("[Client Login] %w", err)
	}
	if pair.Access == "" {
		return session.Session{}, fmt.Errorf("[Client Login] %w", apperrors.ErrMissingAccessKey)
	}

	s := session.Session{AccessToken: pair.Access, RefreshToken: pair.Refresh}
	if err := c.store.Save(ctx, s); err != nil {
		return session.Session{}, fmt.Errorf("[Client Login] saving session: %w", err)
	}

	c.logger.Info().Msg("logged in")
	return s, nil
}

// Logout clears both tokens. It never fails: store errors are logged and the
// logout hook still runs.
func (c *Client) Logout(ctx context.Context) {
	c.refresh.endSession()
	if err := c.store.Clear(context.WithoutCancel(ctx)); err != nil {
		c.logger.Error().Err(err).Msg("clearing session on logout")
	}
	c.logger.Info().Msg("logged out")

	if c.onLogout != nil {
		c.onLogout()
	}
}

// Refresh exchanges the stored refresh token for a new access token and
// returns it. A refresh already in flight is joined rather than repeated. On
// failure the session is logged out and a *RefreshError is returned.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	s, err := c.store.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("[Client Refresh] %w", err)
	}
	return c.awaitRefresh(ctx, s.AccessToken, true)
}

// exchangeRefreshToken is the single network refresh call. It persists the
// new access token, and the new refresh token when the backend rotates it.
// Nothing is persisted when Logout ran while the call was in flight.
func (c *Client) exchangeRefreshToken(ctx context.Context) (string, error) {
	gen := c.refresh.currentGeneration()
	s, err := c.store.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("[Client exchangeRefreshToken] %w", err)
	}
	if s.RefreshToken == "" {
		return "", ErrNoRefreshToken
	}

	resp, err := c.Post(ctx, EndpointTokenRefresh, refreshRequest{Refresh: s.RefreshToken})
	if err != nil {
		return "", err
	}

	var pair tokenPair
	if err := resp.Decode(&pair); err != nil {
		return "", fmt.Errorf("[Client exchangeRefreshToken] %w", err)
	}
	if pair.Access == "" {
		return "", apperrors.ErrMissingAccessKey
	}

	// The write happens under refresh.mu so a concurrent Logout either sees
	// the new tokens and clears them or bumps the generation first.
	c.refresh.mu.Lock()
	defer c.refresh.mu.Unlock()
	if c.refresh.generation != gen {
		c.logger.Info().Msg("session ended during refresh, discarding new tokens")
		return "", errSessionEnded
	}
	if pair.Refresh != "" {
		err = c.store.Save(ctx, session.Session{AccessToken: pair.Access, RefreshToken: pair.Refresh})
	} else {
		err = c.store.SetAccessToken(ctx, pair.Access)
	}
	if err != nil {
		return "", fmt.Errorf("[Client exchangeRefreshToken] saving token: %w", err)
	}
	return pair.Access, nil
}

// Verify asks the backend whether token is valid. An empty token verifies the
// stored access token.
func (c *Client) Verify(ctx context.Context, token string) error {
	if token == "" {
		s, err := c.store.Load(ctx)
		if err != nil {
			return fmt.Errorf("[Client Verify] %w", err)
		}
		if s.IsEmpty() {
			return ErrNoSession
		}
		token = s.AccessToken
	}

	_, err := c.Post(ctx, EndpointTokenVerify, verifyRequest{Token: token})
	return err
}

// IsAuthenticated reports whether an access token is held. It does not
// contact the backend.
func (c *Client) IsAuthenticated(ctx context.Context) bool {
	s, err := c.store.Load(ctx)
	return err == nil && !s.IsEmpty()
}
