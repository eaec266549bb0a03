package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"grantdesk.org/internal/access"
	"grantdesk.org/internal/audit"
	"grantdesk.org/internal/catalog"
)

type createPlatformRequest struct {
	Name                  string                  `json:"name"`
	Slug                  string                  `json:"slug"`
	Category              string                  `json:"category"`
	Tier                  int                     `json:"tier"`
	ClientFacing          bool                    `json:"client_facing"`
	AutomationFeasibility string                  `json:"automation_feasibility"`
	SupportedItemTypes    []string                `json:"supported_item_types"`
	AccessPatterns        []catalog.AccessPattern `json:"access_patterns"`
}

type addAgencyPlatformRequest struct {
	PlatformID string `json:"platform_id"`
}

type accessItemRequest struct {
	ItemType              string            `json:"item_type"`
	AccessPattern         string            `json:"access_pattern"`
	Label                 string            `json:"label"`
	Role                  string            `json:"role"`
	IdentityPurpose       string            `json:"identity_purpose"`
	HumanIdentityStrategy string            `json:"human_identity_strategy"`
	AgencyGroupEmail      string            `json:"agency_group_email"`
	IntegrationIdentityID string            `json:"integration_identity_id"`
	NamingTemplate        string            `json:"naming_template"`
	AgencyData            map[string]string `json:"agency_data"`
	PamConfig             *access.PamConfig `json:"pam_config"`
}

func (a *API) handlePlatformsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listCatalog(w, r)
	case http.MethodPost:
		a.createCatalogPlatform(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handlePlatformResource(w http.ResponseWriter, r *http.Request) {
	id, rest := shiftPath(strings.TrimPrefix(r.URL.Path, "/api/platforms/"))
	if id == "" || rest != "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, err := a.store.GetCatalogPlatform(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, p)
}

func (a *API) listCatalog(w http.ResponseWriter, r *http.Request) {
	platforms, err := a.store.ListCatalogPlatforms(r.Context())
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	if platforms == nil {
		platforms = []catalog.Platform{}
	}
	writeData(w, http.StatusOK, platforms)
}

func (a *API) createCatalogPlatform(w http.ResponseWriter, r *http.Request) {
	var req createPlatformRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, r, http.StatusBadRequest, "name is required")
		return
	}
	slug := strings.TrimSpace(req.Slug)
	if slug == "" {
		slug = access.Slugify(name)
	}
	if len(req.SupportedItemTypes) == 0 {
		writeError(w, r, http.StatusBadRequest, "supported_item_types is required")
		return
	}
	for _, t := range req.SupportedItemTypes {
		if _, ok := access.DerivePattern(access.ItemType(t)); !ok {
			writeError(w, r, http.StatusBadRequest, "unknown item type "+t)
			return
		}
	}

	p, err := a.store.CreateCatalogPlatform(r.Context(), catalog.Platform{
		Name:                  name,
		Slug:                  slug,
		Category:              strings.TrimSpace(req.Category),
		Tier:                  req.Tier,
		ClientFacing:          req.ClientFacing,
		AutomationFeasibility: strings.TrimSpace(req.AutomationFeasibility),
		SupportedItemTypes:    req.SupportedItemTypes,
		AccessPatterns:        req.AccessPatterns,
	})
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	a.audit(r.Context(), "catalog.platform.create", "platform", p.ID, map[string]string{
		"slug": p.Slug,
	})
	w.Header().Set("Location", "/api/platforms/"+p.ID)
	writeData(w, http.StatusCreated, p)
}

func (a *API) handleAgencyPlatformsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listAgencyPlatforms(w, r)
	case http.MethodPost:
		a.addAgencyPlatform(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleAgencyPlatformResource routes
//
//	/api/agency/platforms/{id}
//	/api/agency/platforms/{id}/toggle
//	/api/agency/platforms/{id}/items
//	/api/agency/platforms/{id}/items/{itemID}
func (a *API) handleAgencyPlatformResource(w http.ResponseWriter, r *http.Request) {
	id, rest := shiftPath(strings.TrimPrefix(r.URL.Path, "/api/agency/platforms/"))
	if id == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	head, tail := shiftPath(rest)
	switch head {
	case "":
		switch r.Method {
		case http.MethodGet:
			a.getAgencyPlatform(w, r, id)
		case http.MethodDelete:
			a.deleteAgencyPlatform(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
		}
	case "toggle":
		if tail != "" {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		// POST is kept as an alias for older clients.
		if r.Method != http.MethodPatch && r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPatch, http.MethodPost)
			return
		}
		a.toggleAgencyPlatform(w, r, id)
	case "items":
		a.handleAccessItems(w, r, id, tail)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) addAgencyPlatform(w http.ResponseWriter, r *http.Request) {
	var req addAgencyPlatformRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	platformID := strings.TrimSpace(req.PlatformID)
	if platformID == "" {
		writeError(w, r, http.StatusBadRequest, "platform_id is required")
		return
	}

	ap, err := a.store.AddAgencyPlatform(r.Context(), platformID)
	if errors.Is(err, access.ErrConflict) {
		// Adding twice is answered with the existing record so callers
		// can treat the operation as idempotent.
		payload := map[string]any{
			"success": false,
			"error":   "platform already added",
			"data":    ap,
		}
		if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
			payload["request_id"] = rid
		}
		writeJSON(w, http.StatusConflict, payload)
		return
	}
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	a.audit(r.Context(), "agency.platform.add", "agency_platform", ap.ID, map[string]string{
		"platform_id": platformID,
	})
	w.Header().Set("Location", "/api/agency/platforms/"+ap.ID)
	writeData(w, http.StatusCreated, ap)
}

func (a *API) listAgencyPlatforms(w http.ResponseWriter, r *http.Request) {
	platforms, err := a.store.ListAgencyPlatforms(r.Context())
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	if platforms == nil {
		platforms = []access.AgencyPlatform{}
	}
	writeData(w, http.StatusOK, platforms)
}

func (a *API) getAgencyPlatform(w http.ResponseWriter, r *http.Request, id string) {
	ap, err := a.store.GetAgencyPlatform(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, ap)
}

func (a *API) toggleAgencyPlatform(w http.ResponseWriter, r *http.Request, id string) {
	ap, err := a.store.ToggleAgencyPlatform(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	a.audit(r.Context(), "agency.platform.toggle", "agency_platform", id, map[string]string{
		"enabled": boolString(ap.IsEnabled),
	})
	writeData(w, http.StatusOK, ap)
}

func (a *API) deleteAgencyPlatform(w http.ResponseWriter, r *http.Request, id string) {
	if err := a.store.DeleteAgencyPlatform(r.Context(), id); err != nil {
		handleStoreError(w, r, err)
		return
	}
	a.audit(r.Context(), "agency.platform.delete", "agency_platform", id, nil)
	writeData(w, http.StatusOK, map[string]string{"id": id})
}

func (a *API) handleAccessItems(w http.ResponseWriter, r *http.Request, agencyPlatformID, tail string) {
	itemID, rest := shiftPath(tail)
	if rest != "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if itemID == "" {
		switch r.Method {
		case http.MethodGet:
			a.listAccessItems(w, r, agencyPlatformID)
		case http.MethodPost:
			a.createAccessItem(w, r, agencyPlatformID)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		}
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.getAccessItem(w, r, agencyPlatformID, itemID)
	case http.MethodPut:
		a.updateAccessItem(w, r, agencyPlatformID, itemID)
	case http.MethodDelete:
		a.deleteAccessItem(w, r, agencyPlatformID, itemID)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) listAccessItems(w http.ResponseWriter, r *http.Request, agencyPlatformID string) {
	ap, err := a.store.GetAgencyPlatform(r.Context(), agencyPlatformID)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, ap.AccessItems)
}

func (a *API) getAccessItem(w http.ResponseWriter, r *http.Request, agencyPlatformID, itemID string) {
	item, err := a.store.GetAccessItem(r.Context(), agencyPlatformID, itemID)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, item)
}

func (a *API) createAccessItem(w http.ResponseWriter, r *http.Request, agencyPlatformID string) {
	var req accessItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	ap, err := a.store.GetAgencyPlatform(r.Context(), agencyPlatformID)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	platform, err := a.store.GetCatalogPlatform(r.Context(), ap.PlatformID)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	item := itemFromRequest(req)
	item.AgencyPlatformID = agencyPlatformID
	if errs := access.ValidateItem(item, platform); len(errs) > 0 {
		writeErrors(w, r, http.StatusBadRequest, "item validation failed", errs)
		return
	}
	applyDerivedPattern(&item)

	created, err := a.store.CreateAccessItem(r.Context(), item)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	a.audit(r.Context(), "access_item.create", "access_item", created.ID, map[string]string{
		"agency_platform_id": agencyPlatformID,
		"item_type":          string(created.ItemType),
	})
	writeData(w, http.StatusCreated, created)
}

func (a *API) updateAccessItem(w http.ResponseWriter, r *http.Request, agencyPlatformID, itemID string) {
	var req accessItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	existing, err := a.store.GetAccessItem(r.Context(), agencyPlatformID, itemID)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	ap, err := a.store.GetAgencyPlatform(r.Context(), agencyPlatformID)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	platform, err := a.store.GetCatalogPlatform(r.Context(), ap.PlatformID)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	// Omitted identity fields carry over from the stored record so a
	// partial update does not have to restate them.
	item := access.MergeForUpdate(itemFromRequest(req), existing)
	item.ID = existing.ID
	item.AgencyPlatformID = agencyPlatformID
	if errs := access.ValidateItem(item, platform); len(errs) > 0 {
		writeErrors(w, r, http.StatusBadRequest, "item validation failed", errs)
		return
	}
	applyDerivedPattern(&item)

	updated, err := a.store.UpdateAccessItem(r.Context(), item)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	a.audit(r.Context(), "access_item.update", "access_item", itemID, nil)
	writeData(w, http.StatusOK, updated)
}

func (a *API) deleteAccessItem(w http.ResponseWriter, r *http.Request, agencyPlatformID, itemID string) {
	if err := a.store.DeleteAccessItem(r.Context(), agencyPlatformID, itemID); err != nil {
		handleStoreError(w, r, err)
		return
	}
	a.audit(r.Context(), "access_item.delete", "access_item", itemID, nil)
	writeData(w, http.StatusOK, map[string]string{"id": itemID})
}

func itemFromRequest(req accessItemRequest) access.AccessItem {
	return access.AccessItem{
		ItemType:              access.ItemType(strings.TrimSpace(req.ItemType)),
		AccessPattern:         strings.TrimSpace(req.AccessPattern),
		Label:                 strings.TrimSpace(req.Label),
		Role:                  strings.TrimSpace(req.Role),
		IdentityPurpose:       access.IdentityPurpose(strings.TrimSpace(req.IdentityPurpose)),
		HumanIdentityStrategy: access.HumanIdentityStrategy(strings.TrimSpace(req.HumanIdentityStrategy)),
		AgencyGroupEmail:      strings.TrimSpace(req.AgencyGroupEmail),
		IntegrationIdentityID: strings.TrimSpace(req.IntegrationIdentityID),
		NamingTemplate:        strings.TrimSpace(req.NamingTemplate),
		AgencyData:            req.AgencyData,
		PamConfig:             req.PamConfig,
	}
}

// applyDerivedPattern overwrites the stored pattern with the canonical
// one for the item type. Explicit values never win.
func applyDerivedPattern(item *access.AccessItem) {
	if p, ok := access.DerivePattern(item.ItemType); ok {
		item.AccessPattern = p.Key
		item.PatternLabel = p.Label
	}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
