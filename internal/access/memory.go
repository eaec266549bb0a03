package access

import (
	"context"
	"sort"
	"sync"
	"time"

	"grantdesk.org/internal/catalog"
	"grantdesk.org/internal/ids"
)

// InMemory implements Store with in-process maps. Used by handler tests
// and by dev mode when no database DSN is configured.
type InMemory struct {
	mu            sync.RWMutex
	platforms     map[string]catalog.Platform
	platformOrder []string
	clients       map[string]Client
	agency        map[string]*AgencyPlatform
	requests      map[string]*AccessRequest
	byToken       map[string]string // token -> request id
	identities    map[string]IntegrationIdentity
	sessions      map[string]PamSession
	tokens        map[string]OAuthToken
	auditTrail    []AuditEntry
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates a store pre-loaded with the builtin catalog.
func NewInMemory() *InMemory {
	s := &InMemory{
		platforms:  make(map[string]catalog.Platform),
		clients:    make(map[string]Client),
		agency:     make(map[string]*AgencyPlatform),
		requests:   make(map[string]*AccessRequest),
		byToken:    make(map[string]string),
		identities: make(map[string]IntegrationIdentity),
		sessions:   make(map[string]PamSession),
		tokens:     make(map[string]OAuthToken),
	}
	for _, p := range catalog.Builtin() {
		p.CreatedAt = time.Now().UTC()
		s.platforms[p.ID] = p
		s.platformOrder = append(s.platformOrder, p.ID)
	}
	return s
}

// --- catalog ---

func (s *InMemory) ListCatalogPlatforms(ctx context.Context) ([]catalog.Platform, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]catalog.Platform, 0, len(s.platformOrder))
	for _, id := range s.platformOrder {
		out = append(out, s.platforms[id])
	}
	return out, nil
}

func (s *InMemory) GetCatalogPlatform(ctx context.Context, id string) (catalog.Platform, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.platforms[id]
	if !ok {
		return catalog.Platform{}, ErrNotFound
	}
	return p, nil
}

func (s *InMemory) CreateCatalogPlatform(ctx context.Context, p catalog.Platform) (catalog.Platform, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = ids.New()
	}
	if _, exists := s.platforms[p.ID]; exists {
		return catalog.Platform{}, ErrConflict
	}
	for _, existing := range s.platforms {
		if existing.Slug == p.Slug {
			return catalog.Platform{}, ErrConflict
		}
	}
	p.CreatedAt = time.Now().UTC()
	s.platforms[p.ID] = p
	s.platformOrder = append(s.platformOrder, p.ID)
	return p, nil
}

// --- clients ---

func (s *InMemory) CreateClient(ctx context.Context, c Client) (Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	c.ID = ids.New()
	c.CreatedAt = now
	c.UpdatedAt = now
	s.clients[c.ID] = c
	return c, nil
}

func (s *InMemory) GetClient(ctx context.Context, id string) (Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[id]
	if !ok {
		return Client{}, ErrNotFound
	}
	return c, nil
}

func (s *InMemory) ListClients(ctx context.Context) ([]Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) UpdateClient(ctx context.Context, id string, upd ClientUpdate) (Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	if !ok {
		return Client{}, ErrNotFound
	}
	if upd.Name != nil {
		c.Name = *upd.Name
	}
	if upd.Email != nil {
		c.Email = *upd.Email
	}
	c.UpdatedAt = time.Now().UTC()
	s.clients[id] = c
	return c, nil
}

func (s *InMemory) DeleteClient(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[id]; !ok {
		return ErrNotFound
	}
	delete(s.clients, id)
	return nil
}

// --- agency platforms ---

func (s *InMemory) AddAgencyPlatform(ctx context.Context, platformID string) (AgencyPlatform, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.platforms[platformID]; !ok {
		return AgencyPlatform{}, ErrNotFound
	}
	for _, ap := range s.agency {
		if ap.PlatformID == platformID {
			return copyAgencyPlatform(ap), ErrConflict
		}
	}
	ap := &AgencyPlatform{
		ID:          ids.New(),
		PlatformID:  platformID,
		IsEnabled:   true,
		AccessItems: []AccessItem{},
		CreatedAt:   time.Now().UTC(),
	}
	s.agency[ap.ID] = ap
	return copyAgencyPlatform(ap), nil
}

func (s *InMemory) ListAgencyPlatforms(ctx context.Context) ([]AgencyPlatform, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AgencyPlatform, 0, len(s.agency))
	for _, ap := range s.agency {
		out = append(out, copyAgencyPlatform(ap))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) GetAgencyPlatform(ctx context.Context, id string) (AgencyPlatform, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ap, ok := s.agency[id]
	if !ok {
		return AgencyPlatform{}, ErrNotFound
	}
	return copyAgencyPlatform(ap), nil
}

func (s *InMemory) ToggleAgencyPlatform(ctx context.Context, id string) (AgencyPlatform, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ap, ok := s.agency[id]
	if !ok {
		return AgencyPlatform{}, ErrNotFound
	}
	ap.IsEnabled = !ap.IsEnabled
	return copyAgencyPlatform(ap), nil
}

func (s *InMemory) DeleteAgencyPlatform(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agency[id]; !ok {
		return ErrNotFound
	}
	// Items live on the agency platform record, so the cascade is the
	// map delete itself.
	delete(s.agency, id)
	return nil
}

// --- access items ---

func (s *InMemory) CreateAccessItem(ctx context.Context, item AccessItem) (AccessItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ap, ok := s.agency[item.AgencyPlatformID]
	if !ok {
		return AccessItem{}, ErrNotFound
	}
	now := time.Now().UTC()
	item.ID = ids.New()
	item.CreatedAt = now
	item.UpdatedAt = now
	ap.AccessItems = append(ap.AccessItems, item)
	return item, nil
}

func (s *InMemory) GetAccessItem(ctx context.Context, agencyPlatformID, itemID string) (AccessItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ap, ok := s.agency[agencyPlatformID]
	if !ok {
		return AccessItem{}, ErrNotFound
	}
	for _, item := range ap.AccessItems {
		if item.ID == itemID {
			return item, nil
		}
	}
	return AccessItem{}, ErrNotFound
}

func (s *InMemory) UpdateAccessItem(ctx context.Context, item AccessItem) (AccessItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ap, ok := s.agency[item.AgencyPlatformID]
	if !ok {
		return AccessItem{}, ErrNotFound
	}
	for i, existing := range ap.AccessItems {
		if existing.ID == item.ID {
			item.CreatedAt = existing.CreatedAt
			item.UpdatedAt = time.Now().UTC()
			ap.AccessItems[i] = item
			return item, nil
		}
	}
	return AccessItem{}, ErrNotFound
}

func (s *InMemory) DeleteAccessItem(ctx context.Context, agencyPlatformID, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ap, ok := s.agency[agencyPlatformID]
	if !ok {
		return ErrNotFound
	}
	for i, item := range ap.AccessItems {
		if item.ID == itemID {
			ap.AccessItems = append(ap.AccessItems[:i], ap.AccessItems[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// --- access requests ---

func (s *InMemory) CreateAccessRequest(ctx context.Context, req AccessRequest) (AccessRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[req.ClientID]; !ok {
		return AccessRequest{}, ErrNotFound
	}
	now := time.Now().UTC()
	req.ID = ids.New()
	req.CreatedAt = now
	for i := range req.Items {
		req.Items[i].ID = ids.New()
		req.Items[i].AccessRequestID = req.ID
		req.Items[i].Status = StatusPending
		req.Items[i].CreatedAt = now
	}
	stored := req
	s.requests[req.ID] = &stored
	s.byToken[req.Token] = req.ID
	return copyRequest(&stored), nil
}

func (s *InMemory) GetAccessRequest(ctx context.Context, id string) (AccessRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[id]
	if !ok {
		return AccessRequest{}, ErrNotFound
	}
	return copyRequest(req), nil
}

func (s *InMemory) GetAccessRequestByToken(ctx context.Context, token string) (AccessRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byToken[token]
	if !ok {
		return AccessRequest{}, ErrNotFound
	}
	return copyRequest(s.requests[id]), nil
}

func (s *InMemory) ListAccessRequests(ctx context.Context) ([]AccessRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AccessRequest, 0, len(s.requests))
	for _, req := range s.requests {
		out = append(out, copyRequest(req))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) UpdateRequestItem(ctx context.Context, requestID, itemID string, upd RequestItemUpdate) (AccessRequestItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[requestID]
	if !ok {
		return AccessRequestItem{}, ErrNotFound
	}
	for i := range req.Items {
		item := &req.Items[i]
		if item.ID != itemID {
			continue
		}
		if upd.ClientProvidedTarget != nil {
			item.ClientProvidedTarget = *upd.ClientProvidedTarget
		}
		if upd.PamUsername != nil {
			item.PamUsername = *upd.PamUsername
		}
		if upd.PamSecretRef != nil {
			item.PamSecretRef = *upd.PamSecretRef
		}
		if upd.ResolvedIdentity != nil {
			item.ResolvedIdentity = *upd.ResolvedIdentity
		}
		if upd.ClientInstructions != nil {
			item.ClientInstructions = *upd.ClientInstructions
		}
		return *item, nil
	}
	return AccessRequestItem{}, ErrNotFound
}

func (s *InMemory) ValidateRequestItem(ctx context.Context, requestID, itemID, mode, actor string) (AccessRequestItem, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[requestID]
	if !ok {
		return AccessRequestItem{}, false, ErrNotFound
	}
	var target *AccessRequestItem
	for i := range req.Items {
		if req.Items[i].ID == itemID {
			target = &req.Items[i]
			break
		}
	}
	if target == nil {
		return AccessRequestItem{}, false, ErrNotFound
	}
	if target.Status != StatusValidated {
		now := time.Now().UTC()
		target.Status = StatusValidated
		target.ValidatedAt = &now
		target.ValidatedBy = actor
		target.ValidationMode = mode
	}

	completedNow := false
	if req.CompletedAt == nil {
		allDone := true
		for i := range req.Items {
			if req.Items[i].Status != StatusValidated {
				allDone = false
				break
			}
		}
		if allDone {
			now := time.Now().UTC()
			req.CompletedAt = &now
			completedNow = true
		}
	}
	return *target, completedNow, nil
}

// --- integration identities ---

func (s *InMemory) CreateIntegrationIdentity(ctx context.Context, ii IntegrationIdentity) (IntegrationIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ii.ID = ids.New()
	ii.IsActive = true
	ii.CreatedAt = time.Now().UTC()
	s.identities[ii.ID] = ii
	return ii, nil
}

func (s *InMemory) ListIntegrationIdentities(ctx context.Context) ([]IntegrationIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]IntegrationIdentity, 0, len(s.identities))
	for _, ii := range s.identities {
		out = append(out, ii)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) ToggleIntegrationIdentity(ctx context.Context, id string) (IntegrationIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ii, ok := s.identities[id]
	if !ok {
		return IntegrationIdentity{}, ErrNotFound
	}
	ii.IsActive = !ii.IsActive
	s.identities[id] = ii
	return ii, nil
}

// --- PAM sessions ---

func (s *InMemory) CreatePamSession(ctx context.Context, sess PamSession) (PamSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.ID = ids.New()
	sess.Status = PamSessionActive
	sess.CreatedAt = time.Now().UTC()
	s.sessions[sess.ID] = sess
	return sess, nil
}

func (s *InMemory) CheckinPamSession(ctx context.Context, id string) (PamSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return PamSession{}, ErrNotFound
	}
	if sess.Status != PamSessionCheckedIn {
		now := time.Now().UTC()
		sess.Status = PamSessionCheckedIn
		sess.CheckedInAt = &now
		s.sessions[id] = sess
	}
	return sess, nil
}

// --- OAuth tokens ---

func (s *InMemory) SaveOAuthToken(ctx context.Context, tok OAuthToken) (OAuthToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok.ID = ids.New()
	tok.CreatedAt = time.Now().UTC()
	s.tokens[tok.ID] = tok
	return tok, nil
}

// --- audit ---

func (s *InMemory) AppendAudit(ctx context.Context, e AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = ids.New()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	s.auditTrail = append(s.auditTrail, e)
	return nil
}

// AuditTrail returns a copy of recorded audit entries. Test helper.
func (s *InMemory) AuditTrail() []AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AuditEntry, len(s.auditTrail))
	copy(out, s.auditTrail)
	return out
}

// --- copy helpers ---

func copyAgencyPlatform(ap *AgencyPlatform) AgencyPlatform {
	out := *ap
	out.AccessItems = make([]AccessItem, len(ap.AccessItems))
	copy(out.AccessItems, ap.AccessItems)
	return out
}

func copyRequest(req *AccessRequest) AccessRequest {
	out := *req
	out.Items = make([]AccessRequestItem, len(req.Items))
	copy(out.Items, req.Items)
	return out
}
