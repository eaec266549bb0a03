package access

import (
	"context"

	"grantdesk.org/internal/catalog"
)

// Store defines the persistence operations behind the API. Implemented
// by the in-memory store below and by store/pg for PostgreSQL.
type Store interface {
	// Catalog reference data.
	ListCatalogPlatforms(ctx context.Context) ([]catalog.Platform, error)
	GetCatalogPlatform(ctx context.Context, id string) (catalog.Platform, error)
	CreateCatalogPlatform(ctx context.Context, p catalog.Platform) (catalog.Platform, error)

	// Clients.
	CreateClient(ctx context.Context, c Client) (Client, error)
	GetClient(ctx context.Context, id string) (Client, error)
	ListClients(ctx context.Context) ([]Client, error)
	UpdateClient(ctx context.Context, id string, upd ClientUpdate) (Client, error)
	DeleteClient(ctx context.Context, id string) error

	// Agency platforms. AddAgencyPlatform is idempotent by platform id:
	// adding the same catalog platform twice returns the existing record
	// together with ErrConflict.
	AddAgencyPlatform(ctx context.Context, platformID string) (AgencyPlatform, error)
	ListAgencyPlatforms(ctx context.Context) ([]AgencyPlatform, error)
	GetAgencyPlatform(ctx context.Context, id string) (AgencyPlatform, error)
	ToggleAgencyPlatform(ctx context.Context, id string) (AgencyPlatform, error)
	DeleteAgencyPlatform(ctx context.Context, id string) error

	// Access items, owned by an agency platform.
	CreateAccessItem(ctx context.Context, item AccessItem) (AccessItem, error)
	GetAccessItem(ctx context.Context, agencyPlatformID, itemID string) (AccessItem, error)
	UpdateAccessItem(ctx context.Context, item AccessItem) (AccessItem, error)
	DeleteAccessItem(ctx context.Context, agencyPlatformID, itemID string) error

	// Access requests and their items. Items are written after the
	// parent, sequentially.
	CreateAccessRequest(ctx context.Context, req AccessRequest) (AccessRequest, error)
	GetAccessRequest(ctx context.Context, id string) (AccessRequest, error)
	GetAccessRequestByToken(ctx context.Context, token string) (AccessRequest, error)
	ListAccessRequests(ctx context.Context) ([]AccessRequest, error)
	UpdateRequestItem(ctx context.Context, requestID, itemID string, upd RequestItemUpdate) (AccessRequestItem, error)
	// ValidateRequestItem moves an item to validated. Re-validating an
	// already validated item is a no-op. The bool reports whether this
	// call completed the whole request (CompletedAt written now).
	ValidateRequestItem(ctx context.Context, requestID, itemID, mode, actor string) (AccessRequestItem, bool, error)

	// Integration identities.
	CreateIntegrationIdentity(ctx context.Context, ii IntegrationIdentity) (IntegrationIdentity, error)
	ListIntegrationIdentities(ctx context.Context) ([]IntegrationIdentity, error)
	ToggleIntegrationIdentity(ctx context.Context, id string) (IntegrationIdentity, error)

	// PAM sessions.
	CreatePamSession(ctx context.Context, s PamSession) (PamSession, error)
	CheckinPamSession(ctx context.Context, id string) (PamSession, error)

	// OAuth tokens obtained by connectors.
	SaveOAuthToken(ctx context.Context, tok OAuthToken) (OAuthToken, error)

	// Append-only audit trail.
	AppendAudit(ctx context.Context, e AuditEntry) error
}
