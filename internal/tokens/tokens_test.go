package tokens

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/deckhand/deckhand/backend/auth-service/internal/config"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.JWT.Secret = "test-secret-32-bytes-should-be-long-enough"
	cfg.JWT.Issuer = "https://api.local"
	cfg.JWT.Audience = "deckhand-api"
	cfg.JWT.KeyID = "jwt-key-1"
	cfg.JWT.AccessTokenTTL = 2 * time.Minute
	cfg.JWT.RefreshTokenTTL = 30 * 24 * time.Hour
	return cfg
}

func TestIssueAccessToken_ValidAndClaims(t *testing.T) {
	cfg := testConfig()
	uaHash := HashUserAgent("Mozilla/5.0 test agent")

	tokenStr, jti, err := IssueAccessToken(cfg, "123456789", uaHash)
	if err != nil {
		t.Fatalf("IssueAccessToken error: %v", err)
	}
	if jti == "" {
		t.Fatalf("expected non-empty jti")
	}

	cl, err := Parse(cfg, tokenStr)
	if err != nil {
		t.Fatalf("failed to parse token: %v", err)
	}
	if cl["sub"] != "123456789" {
		t.Fatalf("unexpected sub claim: got=%v", cl["sub"])
	}
	if cl["jti"] != jti {
		t.Fatalf("jti mismatch: claim=%v returned=%v", cl["jti"], jti)
	}
	if cl["iss"] != cfg.JWT.Issuer || cl["aud"] != cfg.JWT.Audience || cl["kid"] != cfg.JWT.KeyID {
		t.Fatalf("unexpected issuer/audience/kid claims: %+v", cl)
	}
	if cl["ua"] != uaHash {
		t.Fatalf("ua claim must be the hash, got %v", cl["ua"])
	}
}

// Claim minimization: the decoded claim set contains exactly the enumerated
// fields and never a raw user-agent string.
func TestClaimMinimization(t *testing.T) {
	cfg := testConfig()
	rawUA := "Mozilla/5.0 (X11; Linux x86_64) VeryIdentifiableAgent/1.0"

	for _, issue := range []func() (string, error){
		func() (string, error) { s, _, err := IssueAccessToken(cfg, "42", HashUserAgent(rawUA)); return s, err },
		func() (string, error) { return IssueRefreshToken(cfg, "42", HashUserAgent(rawUA)) },
	} {
		tokenStr, err := issue()
		if err != nil {
			t.Fatalf("issue error: %v", err)
		}
		cl, err := Parse(cfg, tokenStr)
		if err != nil {
			t.Fatalf("parse error: %v", err)
		}
		allowed := map[string]bool{"sub": true, "iss": true, "aud": true, "kid": true, "jti": true, "iat": true, "exp": true, "ua": true}
		for k := range cl {
			if !allowed[k] {
				t.Fatalf("unexpected claim %q in token", k)
			}
		}
		if strings.Contains(tokenStr, "Mozilla") || cl["ua"] == rawUA {
			t.Fatalf("raw user-agent leaked into token claims")
		}
	}
}

func TestAccessExpiryShorterThanRefresh(t *testing.T) {
	cfg := testConfig()
	access, _, err := IssueAccessToken(cfg, "7", "")
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	refresh, err := IssueRefreshToken(cfg, "7", "")
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}

	ac, err := Parse(cfg, access)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	rc, err := Parse(cfg, refresh)
	if err != nil {
		t.Fatalf("parse refresh: %v", err)
	}
	aExp, ok := ExpiresAt(ac)
	if !ok {
		t.Fatalf("access token missing exp")
	}
	rExp, ok := ExpiresAt(rc)
	if !ok {
		t.Fatalf("refresh token missing exp")
	}
	if !aExp.Before(rExp) {
		t.Fatalf("access exp %v must be before refresh exp %v", aExp, rExp)
	}
}

func TestParse_WrongSecretFails(t *testing.T) {
	cfg := testConfig()
	tokenStr, _, err := IssueAccessToken(cfg, "9", "")
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	other := testConfig()
	other.JWT.Secret = "different-secret-xxxxxxxxxxxxxxxxxxxxxx"
	if _, err := Parse(other, tokenStr); err == nil {
		t.Fatalf("expected parse to fail with wrong secret")
	}
}

func TestParse_WrongAudienceFails(t *testing.T) {
	cfg := testConfig()
	tokenStr, _, err := IssueAccessToken(cfg, "9", "")
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	other := testConfig()
	other.JWT.Audience = "some-other-api"
	if _, err := Parse(other, tokenStr); err == nil {
		t.Fatalf("expected parse to fail with wrong audience")
	}
}

func TestParse_Malformed(t *testing.T) {
	cfg := testConfig()
	if _, err := Parse(cfg, "not.a.jwt"); err == nil {
		t.Fatalf("expected parse to fail for malformed token")
	}
}

// Rejected when alg=none (unsigned token)
func TestParse_AlgNoneRejected(t *testing.T) {
	cfg := testConfig()
	headerEnc := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none"}`))
	payloadEnc := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"u-none","iss":"https://api.local","aud":"deckhand-api","exp":9999999999}`))
	tok := headerEnc + "." + payloadEnc + "."
	if _, err := Parse(cfg, tok); err == nil {
		t.Fatalf("expected parse to reject alg=none token")
	}
}

// Tampering with payload must fail signature verification
func TestParse_TamperedPayload(t *testing.T) {
	cfg := testConfig()
	tokenStr, _, err := IssueAccessToken(cfg, "user-t", "")
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	parts := strings.Split(tokenStr, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token parts")
	}
	payloadBytes, _ := base64.RawURLEncoding.DecodeString(parts[1])
	payloadStr := strings.Replace(string(payloadBytes), "user-t", "attacker", 1)
	parts[1] = base64.RawURLEncoding.EncodeToString([]byte(payloadStr))
	if _, err := Parse(cfg, strings.Join(parts, ".")); err == nil {
		t.Fatalf("expected signature verification to fail for tampered token")
	}
}

func TestHashUserAgent_HexSHA256(t *testing.T) {
	h := HashUserAgent("agent")
	if len(h) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(h))
	}
	if h == HashUserAgent("other agent") {
		t.Fatalf("different agents must hash differently")
	}
}
