package apiclient

import (
	"context"

	"golang.org/x/oauth2"
)

var _ oauth2.TokenSource = (*Client)(nil)

// Token returns the stored session as an oauth2.Token, refreshing first when
// the access token's exp claim has passed. It lets the client's session feed
// oauth2.NewClient or any other TokenSource consumer.
func (c *Client) Token() (*oauth2.Token, error) {
	ctx := context.Background()

	s, err := c.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if s.IsEmpty() {
		return nil, ErrNoSession
	}

	tok := s.OAuth2Token()
	if !tok.Expiry.IsZero() && !tok.Expiry.After(c.nowFunc()) {
		if _, err := c.recoverToken(ctx, s.AccessToken); err != nil {
			return nil, err
		}
		if s, err = c.store.Load(ctx); err != nil {
			return nil, err
		}
		tok = s.OAuth2Token()
	}
	return tok, nil
}
