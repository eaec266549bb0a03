package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"grantdesk.org/internal/access"
	"grantdesk.org/internal/auth"
	"grantdesk.org/internal/catalog"
	"grantdesk.org/internal/plugin"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	t.Setenv("GRANTDESK_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()

	store := access.NewInMemory()
	cat := catalog.FromPlatforms(catalog.Builtin())
	api := New(store, cat, plugin.NewRegistry(), ReadyProbe{}, "test")
	api.rateBurst = 1000
	api.ratePerSec = 1000

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
	}
}

func (c *apiClient) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	return c.do(http.MethodPost, path, body, headers)
}

func (c *apiClient) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		c.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("get request: %v", err)
	}
	return resp
}

func (c *apiClient) obtainToken(user string, roles []string) string {
	c.t.Helper()
	resp := c.post("/api/auth/token", map[string]any{
		"user":  user,
		"roles": roles,
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("unexpected token status: %d", resp.StatusCode)
	}
	var payload struct {
		Data tokenResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.t.Fatalf("decode token response: %v", err)
	}
	if payload.Data.Token == "" {
		c.t.Fatalf("empty token issued")
	}
	return payload.Data.Token
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Errors  []string        `json:"errors"`
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var env envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	return v
}

func decodeError(t *testing.T, r *http.Response) envelope {
	t.Helper()
	defer r.Body.Close()
	var env envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if env.Success {
		t.Fatalf("expected failure envelope, got success")
	}
	return env
}

func TestAPIEnforcesAuth(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/api/clients", map[string]any{
		"name":  "Acme",
		"email": "ops@acme.example",
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestOperatorRoleIsReadOnly(t *testing.T) {
	api := newTestAPI(t)
	token := api.obtainToken("viewer", []string{"operator"})
	authHeader := map[string]string{"Authorization": "Bearer " + token}

	resp := api.get("/api/platforms", nil, authHeader)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("operator read should pass, got %d", resp.StatusCode)
	}

	resp = api.post("/api/clients", map[string]any{
		"name":  "Acme",
		"email": "ops@acme.example",
	}, authHeader)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("operator write should be forbidden, got %d", resp.StatusCode)
	}
}

func TestTokenEndpointValidation(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/api/auth/token", map[string]any{"user": ""}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestCatalogListIsPopulated(t *testing.T) {
	api := newTestAPI(t)
	token := api.obtainToken("demo", []string{"admin"})
	authHeader := map[string]string{"Authorization": "Bearer " + token}

	resp := api.get("/api/platforms", nil, authHeader)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	platforms := decode[[]catalog.Platform](t, resp)
	if len(platforms) == 0 {
		t.Fatal("builtin catalog should not be empty")
	}
}

func TestAgencyPlatformDuplicateAdd(t *testing.T) {
	api := newTestAPI(t)
	token := api.obtainToken("demo", []string{"admin"})
	authHeader := map[string]string{"Authorization": "Bearer " + token}

	resp := api.post("/api/agency/platforms", map[string]any{"platform_id": "cat-google-ads"}, authHeader)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	first := decode[access.AgencyPlatform](t, resp)

	resp = api.post("/api/agency/platforms", map[string]any{"platform_id": "cat-google-ads"}, authHeader)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	defer resp.Body.Close()
	var payload struct {
		Success bool                  `json:"success"`
		Data    access.AgencyPlatform `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode conflict body: %v", err)
	}
	if payload.Success {
		t.Fatal("conflict must not report success")
	}
	if payload.Data.ID != first.ID {
		t.Fatalf("conflict must carry the existing record: %s vs %s", payload.Data.ID, first.ID)
	}
}

func TestAgencyPlatformToggleAcceptsPatch(t *testing.T) {
	api := newTestAPI(t)
	token := api.obtainToken("demo", []string{"admin"})
	authHeader := map[string]string{"Authorization": "Bearer " + token}

	resp := api.post("/api/agency/platforms", map[string]any{"platform_id": "cat-ga4"}, authHeader)
	ap := decode[access.AgencyPlatform](t, resp)
	if !ap.IsEnabled {
		t.Fatal("fresh platform should be enabled")
	}

	resp = api.do(http.MethodPatch, "/api/agency/platforms/"+ap.ID+"/toggle", nil, authHeader)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PATCH toggle: got %d", resp.StatusCode)
	}
	toggled := decode[access.AgencyPlatform](t, resp)
	if toggled.IsEnabled {
		t.Fatalf("toggle should disable the platform: %+v", toggled)
	}
}

func TestUpdateItemKeepsOmittedIdentityFields(t *testing.T) {
	api := newTestAPI(t)
	token := api.obtainToken("demo", []string{"admin"})
	authHeader := map[string]string{"Authorization": "Bearer " + token}

	resp := api.post("/api/agency/platforms", map[string]any{"platform_id": "cat-google-ads"}, authHeader)
	ap := decode[access.AgencyPlatform](t, resp)

	resp = api.post("/api/agency/platforms/"+ap.ID+"/items", map[string]any{
		"item_type":               "NAMED_INVITE",
		"label":                   "Ads access",
		"role":                    "Standard",
		"human_identity_strategy": "CLIENT_DEDICATED",
		"naming_template":         "{client_slug}.{platform}@agency.example",
	}, authHeader)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create item: %d", resp.StatusCode)
	}
	item := decode[access.AccessItem](t, resp)

	// Restating only label and role must not drop the stored identity
	// configuration.
	resp = api.do(http.MethodPut, "/api/agency/platforms/"+ap.ID+"/items/"+item.ID, map[string]any{
		"label": "Ads access (renamed)",
		"role":  "Admin",
	}, authHeader)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update omitting identity fields: got %d", resp.StatusCode)
	}
	updated := decode[access.AccessItem](t, resp)
	if updated.Label != "Ads access (renamed)" || updated.Role != "Admin" {
		t.Fatalf("explicit fields not applied: %+v", updated)
	}
	if updated.HumanIdentityStrategy != access.ClientDedicated {
		t.Fatalf("identity strategy dropped: %+v", updated)
	}
	if updated.NamingTemplate != item.NamingTemplate {
		t.Fatalf("naming template dropped: %q", updated.NamingTemplate)
	}
}

func TestItemValidationReportsAllViolations(t *testing.T) {
	api := newTestAPI(t)
	token := api.obtainToken("demo", []string{"admin"})
	authHeader := map[string]string{"Authorization": "Bearer " + token}

	resp := api.post("/api/agency/platforms", map[string]any{"platform_id": "cat-ga4"}, authHeader)
	ap := decode[access.AgencyPlatform](t, resp)

	resp = api.post("/api/agency/platforms/"+ap.ID+"/items", map[string]any{}, authHeader)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	env := decodeError(t, resp)
	if len(env.Errors) < 3 {
		t.Fatalf("expected the full violation list, got %v", env.Errors)
	}
}

func TestCreateRequestRequiresItems(t *testing.T) {
	api := newTestAPI(t)
	token := api.obtainToken("demo", []string{"admin"})
	authHeader := map[string]string{"Authorization": "Bearer " + token}

	resp := api.post("/api/clients", map[string]any{"name": "Acme", "email": "ops@acme.example"}, authHeader)
	client := decode[access.Client](t, resp)

	resp = api.post("/api/access-requests", map[string]any{
		"client_id": client.ID,
		"items":     []any{},
	}, authHeader)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty items, got %d", resp.StatusCode)
	}
}

func TestConnectorVerifyUnsupportedPlatform(t *testing.T) {
	api := newTestAPI(t)
	token := api.obtainToken("demo", []string{"admin"})
	authHeader := map[string]string{"Authorization": "Bearer " + token}

	resp := api.post("/api/clients", map[string]any{"name": "Acme", "email": "ops@acme.example"}, authHeader)
	client := decode[access.Client](t, resp)

	resp = api.post("/api/agency/platforms", map[string]any{"platform_id": "cat-google-ads"}, authHeader)
	ap := decode[access.AgencyPlatform](t, resp)

	resp = api.post("/api/agency/platforms/"+ap.ID+"/items", map[string]any{
		"item_type": "NAMED_INVITE",
		"label":     "Ads access",
		"role":      "Standard",
	}, authHeader)
	item := decode[access.AccessItem](t, resp)

	resp = api.post("/api/access-requests", map[string]any{
		"client_id": client.ID,
		"items": []map[string]any{
			{"agency_platform_id": ap.ID, "item_id": item.ID},
		},
	}, authHeader)
	request := decode[access.AccessRequest](t, resp)

	// Google Ads has no verify connector; the capability check answers 501.
	resp = api.post("/api/access-requests/"+request.ID+"/items/"+request.Items[0].ID+"/verify", nil, authHeader)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", resp.StatusCode)
	}
}

func TestOAuthCallbackUnsupportedPlatform(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/api/oauth/ga4/callback", map[string]any{"code": "abc"}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", resp.StatusCode)
	}
}

func TestHealthEndpoints(t *testing.T) {
	api := newTestAPI(t)

	for _, path := range []string{"/healthz", "/readyz", "/api/info"} {
		resp := api.get(path, nil, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: unexpected status %d", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}
