package httpapi

import (
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"grantdesk.org/internal/access"
	"grantdesk.org/internal/plugin"
)

type attestRequest struct {
	ClientProvidedTarget string `json:"client_provided_target"`
}

type submitCredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// onboardingItemView is the client-facing projection of a request item.
// Stored secrets never leave the server.
type onboardingItemView struct {
	ID                 string             `json:"id"`
	PlatformID         string             `json:"platform_id"`
	PlatformName       string             `json:"platform_name"`
	ItemType           access.ItemType    `json:"item_type"`
	Label              string             `json:"label"`
	Role               string             `json:"role"`
	ResolvedIdentity   string             `json:"resolved_identity,omitempty"`
	Status             access.ItemStatus  `json:"status"`
	VerificationMode   string             `json:"verification_mode"`
	ClientInstructions []string           `json:"client_instructions"`
	ClientFields       []plugin.FieldSpec `json:"client_fields,omitempty"`
}

type onboardingView struct {
	ClientName  string               `json:"client_name"`
	Notes       string               `json:"notes,omitempty"`
	Completed   bool                 `json:"completed"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
	Items       []onboardingItemView `json:"items"`
}

// handleOnboarding routes
//
//	/api/onboarding/{token}
//	/api/onboarding/{token}/items/{itemID}/attest
//	/api/onboarding/{token}/items/{itemID}/submit-credentials
func (a *API) handleOnboarding(w http.ResponseWriter, r *http.Request) {
	token, rest := shiftPath(strings.TrimPrefix(r.URL.Path, "/api/onboarding/"))
	if token == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if rest == "" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.getOnboarding(w, r, token)
		return
	}

	head, tail := shiftPath(rest)
	if head != "items" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	itemID, action := shiftPath(tail)
	if itemID == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	switch action {
	case "attest":
		a.attestItem(w, r, token, itemID)
	case "submit-credentials":
		a.submitCredentials(w, r, token, itemID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) getOnboarding(w http.ResponseWriter, r *http.Request, token string) {
	request, err := a.store.GetAccessRequestByToken(r.Context(), token)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	client, err := a.store.GetClient(r.Context(), request.ClientID)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	view := onboardingView{
		ClientName:  client.Name,
		Notes:       request.Notes,
		Completed:   request.CompletedAt != nil,
		CompletedAt: request.CompletedAt,
		Items:       []onboardingItemView{},
	}
	for _, item := range request.Items {
		platformName := item.PlatformID
		slug := ""
		if p, ok := a.catalog.ByID(item.PlatformID); ok {
			platformName = p.Name
			slug = p.Slug
		} else if p, err := a.store.GetCatalogPlatform(r.Context(), item.PlatformID); err == nil {
			platformName = p.Name
			slug = p.Slug
		}
		view.Items = append(view.Items, onboardingItemView{
			ID:                 item.ID,
			PlatformID:         item.PlatformID,
			PlatformName:       platformName,
			ItemType:           item.ItemType,
			Label:              item.Label,
			Role:               item.Role,
			ResolvedIdentity:   item.ResolvedIdentity,
			Status:             item.Status,
			VerificationMode:   item.VerificationMode,
			ClientInstructions: item.ClientInstructions,
			ClientFields:       a.plugins.Resolve(slug).ClientFieldsFor(item.ItemType),
		})
	}

	a.audit(r.Context(), "onboarding.view", "access_request", request.ID, nil)
	writeData(w, http.StatusOK, view)
}

func (a *API) attestItem(w http.ResponseWriter, r *http.Request, token, itemID string) {
	request, err := a.store.GetAccessRequestByToken(r.Context(), token)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	var req attestRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}

	if target := strings.TrimSpace(req.ClientProvidedTarget); target != "" {
		if _, err := a.store.UpdateRequestItem(r.Context(), request.ID, itemID, access.RequestItemUpdate{
			ClientProvidedTarget: &target,
		}); err != nil {
			handleStoreError(w, r, err)
			return
		}
	}

	item, completed, err := a.store.ValidateRequestItem(r.Context(), request.ID, itemID, access.ModeAttestation, "client")
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	details := map[string]string{"item_id": itemID}
	if completed {
		details["request_completed"] = "true"
	}
	a.audit(r.Context(), "onboarding.attest", "access_request", request.ID, details)
	writeData(w, http.StatusOK, map[string]any{
		"item":              item,
		"request_completed": completed,
	})
}

func (a *API) submitCredentials(w http.ResponseWriter, r *http.Request, token, itemID string) {
	request, err := a.store.GetAccessRequestByToken(r.Context(), token)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	var req submitCredentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "username and password are required")
		return
	}

	var target *access.AccessRequestItem
	for i := range request.Items {
		if request.Items[i].ID == itemID {
			target = &request.Items[i]
			break
		}
	}
	if target == nil {
		writeError(w, r, http.StatusNotFound, "item not found")
		return
	}
	if target.ItemType != access.SharedAccountPAM && target.ItemType != access.ProxyToken {
		writeError(w, r, http.StatusBadRequest, "item does not accept credential submission")
		return
	}

	secretRef := base64.StdEncoding.EncodeToString([]byte(req.Password))
	if _, err := a.store.UpdateRequestItem(r.Context(), request.ID, itemID, access.RequestItemUpdate{
		PamUsername:  &username,
		PamSecretRef: &secretRef,
	}); err != nil {
		handleStoreError(w, r, err)
		return
	}

	item, completed, err := a.store.ValidateRequestItem(r.Context(), request.ID, itemID, access.ModeCredentialSubmission, "client")
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	// The secret reference stays server-side.
	item.PamSecretRef = ""

	details := map[string]string{"item_id": itemID}
	if completed {
		details["request_completed"] = "true"
	}
	a.audit(r.Context(), "onboarding.submit_credentials", "access_request", request.ID, details)
	writeData(w, http.StatusOK, map[string]any{
		"item":              item,
		"request_completed": completed,
	})
}
