package httpapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"grantdesk.org/internal/access"
)

type attestResult struct {
	Item             access.AccessRequestItem `json:"item"`
	RequestCompleted bool                     `json:"request_completed"`
}

// Full lifecycle: client -> agency platform -> item -> request ->
// public onboarding fetch -> attest everything -> request completed.
func TestOnboardingFlow(t *testing.T) {
	api := newTestAPI(t)
	token := api.obtainToken("demo", []string{"admin"})
	authHeader := map[string]string{"Authorization": "Bearer " + token}

	resp := api.post("/api/clients", map[string]any{"name": "Acme Corp", "email": "ops@acme.example"}, authHeader)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create client: %d", resp.StatusCode)
	}
	client := decode[access.Client](t, resp)

	resp = api.post("/api/agency/platforms", map[string]any{"platform_id": "cat-google-ads"}, authHeader)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add platform: %d", resp.StatusCode)
	}
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
	if item.AccessPattern != "named_invite" {
		t.Fatalf("pattern not derived: %+v", item)
	}

	resp = api.post("/api/access-requests", map[string]any{
		"client_id": client.ID,
		"items": []map[string]any{
			{"agency_platform_id": ap.ID, "item_id": item.ID},
		},
	}, authHeader)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create request: %d", resp.StatusCode)
	}
	request := decode[access.AccessRequest](t, resp)
	if request.Token == "" {
		t.Fatal("request should carry an onboarding token")
	}
	if len(request.Items) != 1 {
		t.Fatalf("expected one frozen item, got %d", len(request.Items))
	}
	if got := request.Items[0].ResolvedIdentity; got != "acme-corp.google-ads@agency.example" {
		t.Fatalf("unexpected resolved identity: %q", got)
	}
	if len(request.Items[0].ClientInstructions) == 0 {
		t.Fatal("instructions should be rendered at creation")
	}

	// Public onboarding view, no auth header.
	resp = api.get("/api/onboarding/"+request.Token, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("onboarding fetch: %d", resp.StatusCode)
	}
	view := decode[onboardingView](t, resp)
	if view.Completed {
		t.Fatal("fresh request must not be completed")
	}
	if view.Items[0].Status != access.StatusPending {
		t.Fatalf("fresh item should be pending, got %s", view.Items[0].Status)
	}
	if view.Items[0].PlatformName != "Google Ads" {
		t.Fatalf("platform name not resolved: %q", view.Items[0].PlatformName)
	}

	// Attest the only item; the request completes.
	resp = api.post("/api/onboarding/"+request.Token+"/items/"+request.Items[0].ID+"/attest", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("attest: %d", resp.StatusCode)
	}
	result := decode[attestResult](t, resp)
	if result.Item.Status != access.StatusValidated || result.Item.ValidationMode != access.ModeAttestation {
		t.Fatalf("item not validated via attestation: %+v", result.Item)
	}
	if !result.RequestCompleted {
		t.Fatal("attesting the last item should complete the request")
	}

	resp = api.get("/api/access-requests/"+request.ID, nil, authHeader)
	after := decode[access.AccessRequest](t, resp)
	if after.CompletedAt == nil {
		t.Fatal("completed_at not set")
	}
}

func TestSubmitCredentialsAndPamCheckout(t *testing.T) {
	api := newTestAPI(t)
	token := api.obtainToken("demo", []string{"admin"})
	authHeader := map[string]string{"Authorization": "Bearer " + token}

	resp := api.post("/api/clients", map[string]any{"name": "Acme", "email": "ops@acme.example"}, authHeader)
	client := decode[access.Client](t, resp)

	resp = api.post("/api/agency/platforms", map[string]any{"platform_id": "cat-shopify"}, authHeader)
	ap := decode[access.AgencyPlatform](t, resp)

	resp = api.post("/api/agency/platforms/"+ap.ID+"/items", map[string]any{
		"item_type": "SHARED_ACCOUNT_PAM",
		"label":     "Store admin seat",
		"role":      "Admin",
		"pam_config": map[string]any{
			"ownership":            "CLIENT_OWNED",
			"max_checkout_minutes": 15,
		},
	}, authHeader)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create item: %d", resp.StatusCode)
	}
	item := decode[access.AccessItem](t, resp)

	resp = api.post("/api/access-requests", map[string]any{
		"client_id": client.ID,
		"items": []map[string]any{
			{"agency_platform_id": ap.ID, "item_id": item.ID},
		},
	}, authHeader)
	request := decode[access.AccessRequest](t, resp)
	reqItem := request.Items[0]

	// Client submits the shared credential.
	resp = api.post("/api/onboarding/"+request.Token+"/items/"+reqItem.ID+"/submit-credentials", map[string]any{
		"username": "store-admin",
		"password": "hunter2",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit credentials: %d", resp.StatusCode)
	}
	result := decode[attestResult](t, resp)
	if result.Item.ValidationMode != access.ModeCredentialSubmission {
		t.Fatalf("unexpected validation mode: %s", result.Item.ValidationMode)
	}
	if result.Item.PamSecretRef != "" {
		t.Fatal("secret reference must not be echoed to the client")
	}

	// Operator checks the credential out; the stored secret comes back.
	resp = api.post("/api/pam/checkout", map[string]any{
		"request_id": request.ID,
		"item_id":    reqItem.ID,
		"minutes":    60,
	}, authHeader)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("checkout: %d", resp.StatusCode)
	}
	defer resp.Body.Close()
	var payload struct {
		Data struct {
			Session  access.PamSession `json:"session"`
			Username string            `json:"username"`
			Password string            `json:"password"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode checkout: %v", err)
	}
	if payload.Data.Username != "store-admin" || payload.Data.Password != "hunter2" {
		t.Fatalf("credential roundtrip failed: %+v", payload.Data)
	}
	if payload.Data.Session.Status != access.PamSessionActive {
		t.Fatalf("session should be active: %+v", payload.Data.Session)
	}

	// Checkout asked for 60 minutes but the item caps at 15.
	capped := payload.Data.Session.ExpiresAt.Sub(payload.Data.Session.CreatedAt)
	if capped.Minutes() > 16 {
		t.Fatalf("checkout window not capped: %v", capped)
	}

	resp = api.post("/api/pam/checkin", map[string]any{
		"session_id": payload.Data.Session.ID,
	}, authHeader)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("checkin: %d", resp.StatusCode)
	}
	sess := decode[access.PamSession](t, resp)
	if sess.Status != access.PamSessionCheckedIn {
		t.Fatalf("session not checked in: %+v", sess)
	}
}
