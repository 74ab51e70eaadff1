package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// PKCE challenge engine per RFC 7636. Verifiers carry 32 bytes of entropy and
// are base64url-encoded without padding, matching what Discord's token
// endpoint expects for the S256 method.

const (
	MethodS256  = "S256"
	MethodPlain = "plain"

	verifierEntropyBytes = 32
)

// ErrUnsupportedMethod signals a configuration problem; it is surfaced at
// startup, never per request.
var ErrUnsupportedMethod = fmt.Errorf("pkce: unsupported challenge method")

// GenerateVerifier returns a cryptographically random, URL-safe code verifier.
func GenerateVerifier() (string, error) {
	b := make([]byte, verifierEntropyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("pkce: generate verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DeriveChallenge computes the code challenge for a verifier.
func DeriveChallenge(verifier, method string) (string, error) {
	switch method {
	case MethodS256:
		sum := sha256.Sum256([]byte(verifier))
		return base64.RawURLEncoding.EncodeToString(sum[:]), nil
	case MethodPlain:
		return verifier, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}
}

// Validate recomputes the challenge from the verifier and compares in
// constant time so attacker-controlled input cannot probe a prefix match.
func Validate(verifier, challenge, method string) bool {
	expected, err := DeriveChallenge(verifier, method)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(challenge)) == 1
}
