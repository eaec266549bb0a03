package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"grantdesk.org/internal/access"
)

// OAuthConnector exchanges authorization codes at a platform's token
// endpoint. Client credentials come from per-platform env vars:
// GRANTDESK_OAUTH_<KEY>_CLIENT_ID and GRANTDESK_OAUTH_<KEY>_CLIENT_SECRET,
// where <KEY> is the platform key upper-cased with dashes as underscores.
type OAuthConnector struct {
	key      string
	tokenURL string
	client   *http.Client
}

func NewOAuthConnector(key, tokenURL string) *OAuthConnector {
	return &OAuthConnector{
		key:      key,
		tokenURL: tokenURL,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *OAuthConnector) envPrefix() string {
	return "GRANTDESK_OAUTH_" + strings.ToUpper(strings.ReplaceAll(c.key, "-", "_"))
}

func (c *OAuthConnector) credentials() (id, secret string) {
	prefix := c.envPrefix()
	return strings.TrimSpace(os.Getenv(prefix + "_CLIENT_ID")),
		strings.TrimSpace(os.Getenv(prefix + "_CLIENT_SECRET"))
}

// Configured reports whether client credentials are present.
func (c *OAuthConnector) Configured() bool {
	id, secret := c.credentials()
	return id != "" && secret != ""
}

// GrantAccess is not implemented for OAuth-style platforms; access is
// established by the code exchange.
func (c *OAuthConnector) GrantAccess(ctx context.Context, item access.AccessRequestItem) (Result, error) {
	return Result{}, ErrNotSupported
}

// VerifyAccess is not implemented for OAuth-style platforms.
func (c *OAuthConnector) VerifyAccess(ctx context.Context, item access.AccessRequestItem) (Result, error) {
	return Result{}, ErrNotSupported
}

type oauthTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Error        string `json:"error"`
	ErrorDesc    string `json:"error_description"`
}

// ExchangeCode posts the authorization code to the token endpoint.
func (c *OAuthConnector) ExchangeCode(ctx context.Context, code, redirectURI string) (Token, error) {
	id, secret := c.credentials()
	if id == "" || secret == "" {
		return Token{}, fmt.Errorf("plugin: oauth credentials missing for %s: %w", c.key, ErrNotSupported)
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	form.Set("client_id", id)
	form.Set("client_secret", secret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, fmt.Errorf("plugin: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("plugin: token request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Token{}, fmt.Errorf("plugin: read token response: %w", err)
	}

	var parsed oauthTokenResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Token{}, fmt.Errorf("plugin: decode token response (%d): %w", resp.StatusCode, err)
	}
	if parsed.Error != "" {
		return Token{}, fmt.Errorf("plugin: token exchange failed for %s: %s %s", c.key, parsed.Error, parsed.ErrorDesc)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Token{}, fmt.Errorf("plugin: token endpoint returned %d", resp.StatusCode)
	}
	if parsed.AccessToken == "" {
		return Token{}, fmt.Errorf("plugin: token exchange for %s returned no access token", c.key)
	}
	return Token{
		AccessToken:  parsed.AccessToken,
		RefreshToken: parsed.RefreshToken,
		ExpiresIn:    parsed.ExpiresIn,
	}, nil
}
