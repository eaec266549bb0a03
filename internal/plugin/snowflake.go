package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"grantdesk.org/internal/access"
	"grantdesk.org/internal/obs"
)

const (
	snowflakeAccountEnv = "GRANTDESK_SNOWFLAKE_ACCOUNT"
	snowflakeTokenEnv   = "GRANTDESK_SNOWFLAKE_TOKEN"
)

// SnowflakeConnector grants and verifies role membership through the
// Snowflake SQL statements API. When the account or token env vars are
// unset the connector reports itself unconfigured and every call
// returns ErrNotSupported.
type SnowflakeConnector struct {
	account string
	token   string
	client  *http.Client
}

func NewSnowflakeConnector() *SnowflakeConnector {
	return &SnowflakeConnector{
		account: strings.TrimSpace(os.Getenv(snowflakeAccountEnv)),
		token:   strings.TrimSpace(os.Getenv(snowflakeTokenEnv)),
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Configured reports whether credentials are present.
func (c *SnowflakeConnector) Configured() bool {
	return c.account != "" && c.token != ""
}

func (c *SnowflakeConnector) statementsURL() string {
	return fmt.Sprintf("https://%s.snowflakecomputing.com/api/v2/statements", c.account)
}

// GrantAccess runs GRANT ROLE for the item's role and resolved identity.
func (c *SnowflakeConnector) GrantAccess(ctx context.Context, item access.AccessRequestItem) (Result, error) {
	if !c.Configured() {
		return Result{}, ErrNotSupported
	}
	user := item.ResolvedIdentity
	if user == "" {
		return Result{OK: false, Detail: "no resolved identity to grant"}, nil
	}
	stmt := fmt.Sprintf("GRANT ROLE %s TO USER %s", quoteIdent(item.Role), quoteIdent(user))
	if err := c.execute(ctx, stmt); err != nil {
		return Result{OK: false, Detail: err.Error()}, nil
	}
	obs.Logger().Printf("snowflake grant executed role=%s user=%s", item.Role, user)
	return Result{OK: true, Detail: fmt.Sprintf("granted %s to %s", item.Role, user)}, nil
}

// VerifyAccess runs SHOW GRANTS and checks the role appears.
func (c *SnowflakeConnector) VerifyAccess(ctx context.Context, item access.AccessRequestItem) (Result, error) {
	if !c.Configured() {
		return Result{}, ErrNotSupported
	}
	user := item.ResolvedIdentity
	if user == "" {
		return Result{OK: false, Detail: "no resolved identity to verify"}, nil
	}
	stmt := fmt.Sprintf("SHOW GRANTS TO USER %s", quoteIdent(user))
	rows, err := c.query(ctx, stmt)
	if err != nil {
		return Result{OK: false, Detail: err.Error()}, nil
	}
	for _, row := range rows {
		for _, cell := range row {
			if strings.EqualFold(cell, item.Role) {
				return Result{OK: true, Detail: fmt.Sprintf("%s holds role %s", user, item.Role)}, nil
			}
		}
	}
	return Result{OK: false, Detail: fmt.Sprintf("%s does not hold role %s", user, item.Role)}, nil
}

// ExchangeCode is not part of the Snowflake surface.
func (c *SnowflakeConnector) ExchangeCode(ctx context.Context, code, redirectURI string) (Token, error) {
	return Token{}, ErrNotSupported
}

type snowflakeStatementRequest struct {
	Statement string `json:"statement"`
	Timeout   int    `json:"timeout"`
}

type snowflakeStatementResponse struct {
	Code    string     `json:"code"`
	Message string     `json:"message"`
	Data    [][]string `json:"data"`
}

func (c *SnowflakeConnector) execute(ctx context.Context, stmt string) error {
	_, err := c.query(ctx, stmt)
	return err
}

func (c *SnowflakeConnector) query(ctx context.Context, stmt string) ([][]string, error) {
	body, err := json.Marshal(snowflakeStatementRequest{Statement: stmt, Timeout: 10})
	if err != nil {
		return nil, fmt.Errorf("plugin: marshal statement: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.statementsURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("plugin: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-Snowflake-Authorization-Token-Type", "KEYPAIR_JWT")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("plugin: snowflake request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("plugin: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("plugin: snowflake returned %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}
	var parsed snowflakeStatementResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("plugin: decode response: %w", err)
	}
	return parsed.Data, nil
}

// quoteIdent wraps an identifier in double quotes, doubling embedded
// quotes, so role and user names survive mixed case and spaces.
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
