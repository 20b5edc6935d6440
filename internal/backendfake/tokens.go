package backendfake

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// hmacSigner signs and verifies HS256 tokens the way SimpleJWT does with its
// default settings.
type hmacSigner struct {
	secret []byte
}

func (h *hmacSigner) sign(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(h.secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token with HMAC")
	}
	return signed, nil
}

func (h *hmacSigner) parse(raw string, now func() time.Time) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return h.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(now))
	if err != nil {
		return nil, errors.Wrap(err, "token not valid")
	}
	return claims, nil
}

// issueAccess creates an access token bound to the current generation.
// Called with b.mu held.
func (b *Backend) issueAccess(userID int) (string, error) {
	now := b.nowFunc()
	return b.signer.sign(jwt.MapClaims{
		"token_type": tokenTypeAccess,
		"user_id":    userID,
		"gen":        b.generation,
		"jti":        uuid.NewString(),
		"iat":        now.Unix(),
		"exp":        now.Add(b.accessTTL).Unix(),
	})
}

// issueRefresh creates a refresh token. Called with b.mu held.
func (b *Backend) issueRefresh(userID int) (string, error) {
	now := b.nowFunc()
	return b.signer.sign(jwt.MapClaims{
		"token_type": tokenTypeRefresh,
		"user_id":    userID,
		"jti":        uuid.NewString(),
		"iat":        now.Unix(),
		"exp":        now.Add(b.refreshTTL).Unix(),
	})
}

// checkToken validates raw as a token of the given type and returns its
// user id. Called with b.mu held.
func (b *Backend) checkToken(raw, tokenType string) (int, error) {
	claims, err := b.signer.parse(raw, b.nowFunc)
	if err != nil {
		return 0, err
	}
	if claims["token_type"] != tokenType {
		return 0, errors.New("token has wrong type")
	}
	if jti, _ := claims["jti"].(string); b.blacklist[jti] {
		return 0, errors.New("token is blacklisted")
	}
	if tokenType == tokenTypeAccess {
		if b.rejectAccess {
			return 0, errors.New("access tokens rejected")
		}
		if gen, _ := claims["gen"].(float64); int(gen) != b.generation {
			return 0, errors.New("token expired")
		}
	}

	userID, _ := claims["user_id"].(float64)
	if _, ok := b.users[int(userID)]; !ok {
		return 0, errors.New("user not found")
	}
	return int(userID), nil
}

// blacklistToken marks a rotated refresh token as used. Called with b.mu held.
func (b *Backend) blacklistToken(raw string) {
	claims, err := b.signer.parse(raw, b.nowFunc)
	if err != nil {
		return
	}
	if jti, ok := claims["jti"].(string); ok {
		b.blacklist[jti] = true
	}
}
