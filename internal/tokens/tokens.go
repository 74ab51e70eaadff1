package tokens

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/deckhand/deckhand/backend/auth-service/internal/config"
)

// Issued tokens carry a minimized claim set: sub, iss, aud, kid, jti, iat,
// exp and ua (hex SHA-256 of the requesting User-Agent). Raw request metadata
// is never embedded in claims; only the derived hash is.

// HashUserAgent derives the `ua` claim from a raw User-Agent header.
func HashUserAgent(ua string) string {
	sum := sha256.Sum256([]byte(ua))
	return hex.EncodeToString(sum[:])
}

func claims(cfg *config.Config, sub, uaHash string, ttl time.Duration) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"sub": sub,
		"iss": cfg.JWT.Issuer,
		"aud": cfg.JWT.Audience,
		"kid": cfg.JWT.KeyID,
		"jti": uuid.NewString(),
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
		"ua":  uaHash,
	}
}

// IssueAccessToken creates a signed JWT access token for the subject and
// returns it together with its jti (the revocation key).
func IssueAccessToken(cfg *config.Config, sub, uaHash string) (string, string, error) {
	cl := claims(cfg, sub, uaHash, cfg.JWT.AccessTokenTTL)
	jt := jwt.NewWithClaims(jwt.SigningMethodHS256, cl)
	signed, err := jt.SignedString([]byte(cfg.JWT.Secret))
	if err != nil {
		return "", "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, cl["jti"].(string), nil
}

// IssueRefreshToken creates a signed JWT refresh token. The token itself is
// never persisted; the rotation engine stores only its hash.
func IssueRefreshToken(cfg *config.Config, sub, uaHash string) (string, error) {
	cl := claims(cfg, sub, uaHash, cfg.JWT.RefreshTokenTTL)
	jt := jwt.NewWithClaims(jwt.SigningMethodHS256, cl)
	signed, err := jt.SignedString([]byte(cfg.JWT.Secret))
	if err != nil {
		return "", fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, nil
}

// Parse verifies signature, expiry, issuer and audience and returns the
// claims. Only HS256 is accepted.
func Parse(cfg *config.Config, raw string) (jwt.MapClaims, error) {
	parsed, err := jwt.Parse(raw,
		func(token *jwt.Token) (interface{}, error) {
			return []byte(cfg.JWT.Secret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cfg.JWT.Issuer),
		jwt.WithAudience(cfg.JWT.Audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	cl, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("unexpected claims type %T", parsed.Claims)
	}
	return cl, nil
}

// Subject extracts the `sub` claim.
func Subject(cl jwt.MapClaims) (string, error) {
	sub, err := cl.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("missing sub claim")
	}
	return sub, nil
}

// ExpiresAt returns the `exp` claim as a time, with ok=false when absent.
func ExpiresAt(cl jwt.MapClaims) (time.Time, bool) {
	exp, err := cl.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
