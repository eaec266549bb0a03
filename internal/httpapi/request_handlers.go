package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"grantdesk.org/internal/access"
	"grantdesk.org/internal/catalog"
	"grantdesk.org/internal/plugin"
)

type requestItemRef struct {
	AgencyPlatformID string   `json:"agency_platform_id"`
	ItemID           string   `json:"item_id"`
	Invitees         []string `json:"invitees"`
}

type createRequestRequest struct {
	ClientID string           `json:"client_id"`
	Notes    string           `json:"notes"`
	Items    []requestItemRef `json:"items"`
}

type validateRequestRequest struct {
	ItemIDs []string `json:"item_ids"`
}

func (a *API) handleRequestsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listRequests(w, r)
	case http.MethodPost:
		a.createRequest(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleRequestResource routes
//
//	/api/access-requests/{id}
//	/api/access-requests/{id}/validate
//	/api/access-requests/{id}/refresh
//	/api/access-requests/{id}/items/{itemID}/grant
//	/api/access-requests/{id}/items/{itemID}/verify
func (a *API) handleRequestResource(w http.ResponseWriter, r *http.Request) {
	id, rest := shiftPath(strings.TrimPrefix(r.URL.Path, "/api/access-requests/"))
	if id == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	action, tail := shiftPath(rest)
	if action == "items" {
		itemID, verb := shiftPath(tail)
		if itemID == "" || (verb != "grant" && verb != "verify") {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.connectorAction(w, r, id, itemID, verb)
		return
	}
	if tail != "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch action {
	case "":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.getRequest(w, r, id)
	case "validate":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.validateRequest(w, r, id)
	case "refresh":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.refreshRequest(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) createRequest(w http.ResponseWriter, r *http.Request) {
	var req createRequestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	clientID := strings.TrimSpace(req.ClientID)
	if clientID == "" {
		writeError(w, r, http.StatusBadRequest, "client_id is required")
		return
	}
	if len(req.Items) == 0 {
		writeError(w, r, http.StatusBadRequest, "at least one item is required")
		return
	}

	client, err := a.store.GetClient(r.Context(), clientID)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	request := access.AccessRequest{
		ClientID: clientID,
		Token:    uuid.NewString(),
		Notes:    strings.TrimSpace(req.Notes),
	}
	for _, ref := range req.Items {
		item, err := a.store.GetAccessItem(r.Context(), ref.AgencyPlatformID, ref.ItemID)
		if err != nil {
			handleStoreError(w, r, err)
			return
		}
		ap, err := a.store.GetAgencyPlatform(r.Context(), ref.AgencyPlatformID)
		if err != nil {
			handleStoreError(w, r, err)
			return
		}
		if !ap.IsEnabled {
			writeError(w, r, http.StatusBadRequest, "agency platform "+ap.ID+" is disabled")
			return
		}
		platform, err := a.store.GetCatalogPlatform(r.Context(), ap.PlatformID)
		if err != nil {
			handleStoreError(w, r, err)
			return
		}
		request.Items = append(request.Items, a.buildRequestItem(item, platform, client, ref.Invitees))
	}

	created, err := a.store.CreateAccessRequest(r.Context(), request)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	a.audit(r.Context(), "access_request.create", "access_request", created.ID, map[string]string{
		"client_id": clientID,
	})
	w.Header().Set("Location", "/api/access-requests/"+created.ID)
	writeData(w, http.StatusCreated, created)
}

// buildRequestItem freezes a template item into its client-facing copy:
// identity resolved, instructions rendered, verification mode pinned.
func (a *API) buildRequestItem(item access.AccessItem, platform catalog.Platform, client access.Client, invitees []string) access.AccessRequestItem {
	resolved := access.ResolveIdentity(access.IdentityInputs{
		Strategy:         item.HumanIdentityStrategy,
		AgencyGroupEmail: item.AgencyGroupEmail,
		NamingTemplate:   item.NamingTemplate,
		AgencyData:       item.AgencyData,
		Invitees:         invitees,
	}, client.Name, platform.Slug)

	manifest := a.plugins.Resolve(platform.Slug)
	out := access.AccessRequestItem{
		PlatformID:       platform.ID,
		SourceItemID:     item.ID,
		ItemType:         item.ItemType,
		Label:            item.Label,
		Role:             item.Role,
		ResolvedIdentity: resolved,
		PamConfig:        item.PamConfig,
		Status:           access.StatusPending,
		VerificationMode: string(manifest.VerificationFor(item.ItemType)),
	}
	out.ClientInstructions = manifest.BuildInstructions(plugin.InstructionContext{
		PlatformName: platform.Name,
		Item:         out,
	})
	return out
}

func (a *API) listRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := a.store.ListAccessRequests(r.Context())
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	if requests == nil {
		requests = []access.AccessRequest{}
	}
	writeData(w, http.StatusOK, requests)
}

func (a *API) getRequest(w http.ResponseWriter, r *http.Request, id string) {
	request, err := a.store.GetAccessRequest(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, request)
}

// validateRequest marks the named items (or every pending item when none
// are named) as validated by the operator.
func (a *API) validateRequest(w http.ResponseWriter, r *http.Request, id string) {
	// Body is optional: no named items means validate everything pending.
	var req validateRequestRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}

	request, err := a.store.GetAccessRequest(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	targets := req.ItemIDs
	if len(targets) == 0 {
		for _, item := range request.Items {
			if item.Status == access.StatusPending {
				targets = append(targets, item.ID)
			}
		}
	}

	actor := actorFromContext(r.Context())
	for _, itemID := range targets {
		if _, _, err := a.store.ValidateRequestItem(r.Context(), id, itemID, access.ModeManual, actor); err != nil {
			handleStoreError(w, r, err)
			return
		}
	}

	updated, err := a.store.GetAccessRequest(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	a.audit(r.Context(), "access_request.validate", "access_request", id, map[string]string{
		"items": strings.Join(targets, ","),
	})
	writeData(w, http.StatusOK, updated)
}

// refreshRequest re-resolves identities and re-renders instructions for
// pending items from the current item templates and plugin manifests.
func (a *API) refreshRequest(w http.ResponseWriter, r *http.Request, id string) {
	request, err := a.store.GetAccessRequest(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	client, err := a.store.GetClient(r.Context(), request.ClientID)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	refreshed := 0
	for _, item := range request.Items {
		if item.Status != access.StatusPending {
			continue
		}
		platform, err := a.store.GetCatalogPlatform(r.Context(), item.PlatformID)
		if err != nil {
			handleStoreError(w, r, err)
			return
		}

		resolved := item.ResolvedIdentity
		if src, ok := a.lookupSourceItem(r.Context(), item.SourceItemID); ok {
			resolved = access.ResolveIdentity(access.IdentityInputs{
				Strategy:         src.HumanIdentityStrategy,
				AgencyGroupEmail: src.AgencyGroupEmail,
				NamingTemplate:   src.NamingTemplate,
				AgencyData:       src.AgencyData,
			}, client.Name, platform.Slug)
			if resolved == "" {
				resolved = item.ResolvedIdentity
			}
		}

		preview := item
		preview.ResolvedIdentity = resolved
		steps := a.plugins.Resolve(platform.Slug).BuildInstructions(plugin.InstructionContext{
			PlatformName: platform.Name,
			Item:         preview,
		})

		if _, err := a.store.UpdateRequestItem(r.Context(), id, item.ID, access.RequestItemUpdate{
			ResolvedIdentity:   &resolved,
			ClientInstructions: &steps,
		}); err != nil {
			handleStoreError(w, r, err)
			return
		}
		refreshed++
	}

	updated, err := a.store.GetAccessRequest(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	a.audit(r.Context(), "access_request.refresh", "access_request", id, map[string]string{
		"refreshed": strconv.Itoa(refreshed),
	})
	writeData(w, http.StatusOK, updated)
}

// connectorAction runs a platform connector against one request item.
// A failed call leaves the item pending; the detail goes in the
// response only, never into persisted state.
func (a *API) connectorAction(w http.ResponseWriter, r *http.Request, requestID, itemID, verb string) {
	request, err := a.store.GetAccessRequest(r.Context(), requestID)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	var item *access.AccessRequestItem
	for i := range request.Items {
		if request.Items[i].ID == itemID {
			item = &request.Items[i]
			break
		}
	}
	if item == nil {
		writeError(w, r, http.StatusNotFound, "item not found")
		return
	}

	platform, err := a.store.GetCatalogPlatform(r.Context(), item.PlatformID)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	manifest := a.plugins.Resolve(platform.Slug)

	var (
		supported bool
		result    plugin.Result
	)
	switch verb {
	case "grant":
		supported = manifest.Capabilities.CanGrantAccess
		if supported && manifest.Connector != nil {
			result, err = manifest.Connector.GrantAccess(r.Context(), *item)
		}
	case "verify":
		supported = manifest.Capabilities.CanVerifyAccess
		if supported && manifest.Connector != nil {
			result, err = manifest.Connector.VerifyAccess(r.Context(), *item)
		}
	}
	if !supported || manifest.Connector == nil {
		writeError(w, r, http.StatusNotImplemented, "platform does not support "+verb)
		return
	}
	if err != nil {
		if errors.Is(err, plugin.ErrNotSupported) {
			writeError(w, r, http.StatusNotImplemented, "platform does not support "+verb)
			return
		}
		writeError(w, r, http.StatusBadGateway, "connector call failed")
		return
	}

	completed := false
	if verb == "verify" && result.OK {
		validated, completedNow, err := a.store.ValidateRequestItem(r.Context(), requestID, itemID, access.ModeConnector, actorFromContext(r.Context()))
		if err != nil {
			handleStoreError(w, r, err)
			return
		}
		item = &validated
		completed = completedNow
	}

	a.audit(r.Context(), "access_request.connector."+verb, "access_request", requestID, map[string]string{
		"item_id": itemID,
		"ok":      boolString(result.OK),
	})
	writeData(w, http.StatusOK, map[string]any{
		"ok":                result.OK,
		"detail":            result.Detail,
		"item":              item,
		"request_completed": completed,
	})
}

// lookupSourceItem finds the template an item was copied from. Templates
// can be deleted after a request is issued, so a miss is not an error.
func (a *API) lookupSourceItem(ctx context.Context, sourceItemID string) (access.AccessItem, bool) {
	if sourceItemID == "" {
		return access.AccessItem{}, false
	}
	platforms, err := a.store.ListAgencyPlatforms(ctx)
	if err != nil {
		return access.AccessItem{}, false
	}
	for _, ap := range platforms {
		for _, item := range ap.AccessItems {
			if item.ID == sourceItemID {
				return item, true
			}
		}
	}
	return access.AccessItem{}, false
}
