package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/deckhand/deckhand/backend/auth-service/internal/config"
	"github.com/deckhand/deckhand/backend/auth-service/internal/pkce"
	"github.com/deckhand/deckhand/backend/auth-service/internal/store"
	"github.com/deckhand/deckhand/backend/auth-service/pkg/logger"
)

// Staged login flows live in the token store under oauth:flow:<state> with a
// short TTL, so an abandoned login expires instead of lingering. The staged
// verifier is consumed with a single GETDEL whether or not the exchange
// succeeds; a replayed callback finds nothing.
const flowPrefix = "oauth:flow:"

var (
	ErrStateMismatch       = errors.New("oauth: state mismatch")
	ErrPKCEMissing         = errors.New("oauth: PKCE verifier not staged for this flow")
	ErrExchangeFailed      = errors.New("oauth: token exchange failed")
	ErrUpstreamUnavailable = errors.New("oauth: identity provider unavailable")
)

// Client drives the Discord OAuth2 authorization-code exchange.
type Client struct {
	cfg   *config.Config
	store store.Store
	http  *http.Client
}

func NewClient(cfg *config.Config, st store.Store) *Client {
	return &Client{
		cfg:   cfg,
		store: st,
		http:  &http.Client{Timeout: cfg.Discord.HTTPTimeout},
	}
}

// ProviderTokens is Discord's token-endpoint response.
type ProviderTokens struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

// Profile is the subset of Discord's /users/@me payload the resolver needs.
type Profile struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name"`
	Avatar     string `json:"avatar"`
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// BeginFlow generates the CSRF state and PKCE verifier, stages the verifier
// under the state key, and returns the authorization URL to redirect to.
func (c *Client) BeginFlow(ctx context.Context) (string, string, error) {
	verifier, err := pkce.GenerateVerifier()
	if err != nil {
		return "", "", err
	}
	challenge, err := pkce.DeriveChallenge(verifier, c.cfg.Discord.PKCEMethod)
	if err != nil {
		return "", "", err
	}
	state, err := generateState()
	if err != nil {
		return "", "", err
	}

	if err := c.store.SetEx(ctx, flowPrefix+state, c.cfg.Discord.FlowTTL, verifier); err != nil {
		return "", "", fmt.Errorf("stage flow: %w", err)
	}

	params := url.Values{}
	params.Set("client_id", c.cfg.Discord.ClientID)
	params.Set("redirect_uri", c.cfg.Discord.RedirectURI)
	params.Set("response_type", "code")
	params.Set("scope", strings.Join(c.cfg.Discord.Scopes, " "))
	params.Set("state", state)
	params.Set("code_challenge", challenge)
	params.Set("code_challenge_method", c.cfg.Discord.PKCEMethod)

	return c.cfg.Discord.APIBaseURL + "/oauth2/authorize?" + params.Encode(), state, nil
}

// ExchangeCode redeems the authorization code. The staged flow is consumed
// first (single-use, erased even when the exchange then fails), so neither
// the state nor the verifier can be replayed.
func (c *Client) ExchangeCode(ctx context.Context, code, state string) (*ProviderTokens, error) {
	verifier, ok, err := c.store.GetDel(ctx, flowPrefix+state)
	if err != nil {
		return nil, fmt.Errorf("consume flow: %w", err)
	}
	if !ok {
		return nil, ErrStateMismatch
	}
	if verifier == "" {
		return nil, ErrPKCEMissing
	}

	form := url.Values{}
	form.Set("client_id", c.cfg.Discord.ClientID)
	form.Set("client_secret", c.cfg.Discord.ClientSecret)
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.cfg.Discord.RedirectURI)
	form.Set("code_verifier", verifier)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.Discord.APIBaseURL+"/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		logger.Debugf("token exchange returned %d: %s", resp.StatusCode, truncate(string(b), 256))
		return nil, fmt.Errorf("%w: status %d", ErrExchangeFailed, resp.StatusCode)
	}

	var pt ProviderTokens
	if err := json.NewDecoder(resp.Body).Decode(&pt); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrExchangeFailed, err)
	}
	return &pt, nil
}

// FetchProfile fetches the provider's identity endpoint with the freshly
// exchanged access token.
func (c *Client) FetchProfile(ctx context.Context, providerAccessToken string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.Discord.APIBaseURL+"/users/@me", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+providerAccessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	var p Profile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: decode profile: %v", ErrUpstreamUnavailable, err)
	}
	return &p, nil
}

type guildMember struct {
	Roles []string `json:"roles"`
}

type guildRole struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FetchGuildRoles resolves the user's role names in the configured guild via
// the bot token. Role lookup is an enrichment, not a login precondition:
// every failure path returns an empty set.
func (c *Client) FetchGuildRoles(ctx context.Context, userID string) []string {
	guildID := c.cfg.Discord.GuildID
	if guildID == "" || c.cfg.Discord.BotToken == "" {
		return nil
	}

	var member guildMember
	if err := c.botGet(ctx, fmt.Sprintf("/guilds/%s/members/%s", guildID, userID), &member); err != nil {
		logger.Debugf("guild member lookup failed for user=%s: %v", userID, err)
		return nil
	}
	if len(member.Roles) == 0 {
		return nil
	}

	var roles []guildRole
	if err := c.botGet(ctx, fmt.Sprintf("/guilds/%s/roles", guildID), &roles); err != nil {
		logger.Debugf("guild roles lookup failed: %v", err)
		return nil
	}
	names := make(map[string]string, len(roles))
	for _, r := range roles {
		names[r.ID] = r.Name
	}

	out := make([]string, 0, len(member.Roles))
	for _, id := range member.Roles {
		if name, ok := names[id]; ok {
			out = append(out, name)
		}
	}
	return out
}

func (c *Client) botGet(ctx context.Context, path string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Discord.APIBaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+c.cfg.Discord.BotToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
