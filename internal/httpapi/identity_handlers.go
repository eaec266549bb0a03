package httpapi

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"grantdesk.org/internal/access"
	"grantdesk.org/internal/plugin"
)

type integrationIdentityRequest struct {
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
	PlatformID string `json:"platform_id"`
}

type pamCheckoutRequest struct {
	RequestID string `json:"request_id"`
	ItemID    string `json:"item_id"`
	Minutes   int    `json:"minutes"`
}

type pamCheckinRequest struct {
	SessionID string `json:"session_id"`
}

type oauthCallbackRequest struct {
	Code        string `json:"code"`
	RedirectURI string `json:"redirect_uri"`
}

const defaultCheckoutMinutes = 30

var identityTypes = map[access.IdentityType]bool{
	access.SharedCredential: true,
	access.ServiceAccount:   true,
	access.APIKey:           true,
	access.OAuthClient:      true,
}

func (a *API) handleIdentitiesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listIdentities(w, r)
	case http.MethodPost:
		a.createIdentity(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleIdentityResource(w http.ResponseWriter, r *http.Request) {
	id, rest := shiftPath(strings.TrimPrefix(r.URL.Path, "/api/integration-identities/"))
	if id == "" || rest != "toggle" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, http.MethodPatch)
		return
	}
	ii, err := a.store.ToggleIntegrationIdentity(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	a.audit(r.Context(), "integration_identity.toggle", "integration_identity", id, map[string]string{
		"active": boolString(ii.IsActive),
	})
	writeData(w, http.StatusOK, ii)
}

func (a *API) createIdentity(w http.ResponseWriter, r *http.Request) {
	var req integrationIdentityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	idType := access.IdentityType(strings.TrimSpace(req.Type))
	if !identityTypes[idType] {
		writeError(w, r, http.StatusBadRequest, "unknown identity type "+string(idType))
		return
	}
	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" {
		writeError(w, r, http.StatusBadRequest, "identifier is required")
		return
	}

	ii, err := a.store.CreateIntegrationIdentity(r.Context(), access.IntegrationIdentity{
		Type:       idType,
		Identifier: identifier,
		PlatformID: strings.TrimSpace(req.PlatformID),
	})
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	a.audit(r.Context(), "integration_identity.create", "integration_identity", ii.ID, map[string]string{
		"type": string(idType),
	})
	writeData(w, http.StatusCreated, ii)
}

func (a *API) listIdentities(w http.ResponseWriter, r *http.Request) {
	identities, err := a.store.ListIntegrationIdentities(r.Context())
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	if identities == nil {
		identities = []access.IntegrationIdentity{}
	}
	writeData(w, http.StatusOK, identities)
}

// handlePamCheckout opens a time-boxed session and reveals the stored
// shared credential to the operator. Expiry is advisory.
func (a *API) handlePamCheckout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req pamCheckoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.RequestID == "" || req.ItemID == "" {
		writeError(w, r, http.StatusBadRequest, "request_id and item_id are required")
		return
	}

	request, err := a.store.GetAccessRequest(r.Context(), req.RequestID)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	var item *access.AccessRequestItem
	for i := range request.Items {
		if request.Items[i].ID == req.ItemID {
			item = &request.Items[i]
			break
		}
	}
	if item == nil {
		writeError(w, r, http.StatusNotFound, "item not found")
		return
	}
	if item.ItemType != access.SharedAccountPAM {
		writeError(w, r, http.StatusBadRequest, "item is not a shared-account item")
		return
	}
	if item.PamSecretRef == "" {
		writeError(w, r, http.StatusConflict, "no credentials on file for this item")
		return
	}

	minutes := req.Minutes
	if minutes <= 0 {
		minutes = defaultCheckoutMinutes
	}
	if item.PamConfig != nil && item.PamConfig.MaxCheckoutMinutes > 0 && minutes > item.PamConfig.MaxCheckoutMinutes {
		minutes = item.PamConfig.MaxCheckoutMinutes
	}

	sess, err := a.store.CreatePamSession(r.Context(), access.PamSession{
		RequestID: req.RequestID,
		ItemID:    req.ItemID,
		UserID:    actorFromContext(r.Context()),
		ExpiresAt: time.Now().UTC().Add(time.Duration(minutes) * time.Minute),
	})
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	secret, err := base64.StdEncoding.DecodeString(item.PamSecretRef)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "stored credential is corrupt")
		return
	}

	a.audit(r.Context(), "pam.checkout", "pam_session", sess.ID, map[string]string{
		"request_id": req.RequestID,
		"item_id":    req.ItemID,
		"minutes":    strconv.Itoa(minutes),
	})
	writeData(w, http.StatusCreated, map[string]any{
		"session":  sess,
		"username": item.PamUsername,
		"password": string(secret),
	})
}

func (a *API) handlePamCheckin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req pamCheckinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.SessionID == "" {
		writeError(w, r, http.StatusBadRequest, "session_id is required")
		return
	}

	sess, err := a.store.CheckinPamSession(r.Context(), req.SessionID)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	a.audit(r.Context(), "pam.checkin", "pam_session", sess.ID, nil)
	writeData(w, http.StatusOK, sess)
}

// handleOAuthCallback delegates the authorization-code exchange to the
// platform's connector and persists the resulting token pair.
func (a *API) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	key, rest := shiftPath(strings.TrimPrefix(r.URL.Path, "/api/oauth/"))
	if key == "" || rest != "callback" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req oauthCallbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		writeError(w, r, http.StatusBadRequest, "code is required")
		return
	}

	manifest := a.plugins.Resolve(key)
	if !manifest.Capabilities.CanExchangeCode || manifest.Connector == nil {
		writeError(w, r, http.StatusNotImplemented, "platform "+key+" does not support code exchange")
		return
	}

	tok, err := manifest.Connector.ExchangeCode(r.Context(), code, strings.TrimSpace(req.RedirectURI))
	if err != nil {
		if errors.Is(err, plugin.ErrNotSupported) {
			writeError(w, r, http.StatusNotImplemented, "platform "+key+" does not support code exchange")
			return
		}
		writeError(w, r, http.StatusBadGateway, "code exchange failed: "+err.Error())
		return
	}

	var expiresAt *time.Time
	if tok.ExpiresIn > 0 {
		t := time.Now().UTC().Add(time.Duration(tok.ExpiresIn) * time.Second)
		expiresAt = &t
	}
	saved, err := a.store.SaveOAuthToken(r.Context(), access.OAuthToken{
		PlatformKey:  key,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    expiresAt,
	})
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	a.audit(r.Context(), "oauth.token.exchange", "oauth_token", saved.ID, map[string]string{
		"platform_key": key,
	})
	// Raw tokens stay server-side.
	writeData(w, http.StatusOK, map[string]any{
		"id":           saved.ID,
		"platform_key": saved.PlatformKey,
		"expires_at":   saved.ExpiresAt,
	})
}
