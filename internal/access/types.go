package access

import (
	"errors"
	"time"
)

// ItemType enumerates the ways a client can grant platform access.
type ItemType string

const (
	NamedInvite       ItemType = "NAMED_INVITE"
	PartnerDelegation ItemType = "PARTNER_DELEGATION"
	GroupAccess       ItemType = "GROUP_ACCESS"
	ProxyToken        ItemType = "PROXY_TOKEN"
	SharedAccountPAM  ItemType = "SHARED_ACCOUNT_PAM"
)

// IdentityPurpose distinguishes human logins from integration identities.
type IdentityPurpose string

const (
	HumanInteractive    IdentityPurpose = "HUMAN_INTERACTIVE"
	IntegrationNonHuman IdentityPurpose = "INTEGRATION_NON_HUMAN"
)

// HumanIdentityStrategy selects which concrete identity a client is told
// to grant access to.
type HumanIdentityStrategy string

const (
	IndividualUsers HumanIdentityStrategy = "INDIVIDUAL_USERS"
	AgencyGroup     HumanIdentityStrategy = "AGENCY_GROUP"
	ClientDedicated HumanIdentityStrategy = "CLIENT_DEDICATED"
)

// PamOwnership states who owns the shared credential.
type PamOwnership string

const (
	AgencyOwned PamOwnership = "AGENCY_OWNED"
	ClientOwned PamOwnership = "CLIENT_OWNED"
)

// IdentityType classifies integration identities.
type IdentityType string

const (
	SharedCredential IdentityType = "SHARED_CREDENTIAL"
	ServiceAccount   IdentityType = "SERVICE_ACCOUNT"
	APIKey           IdentityType = "API_KEY"
	OAuthClient      IdentityType = "OAUTH_CLIENT"
)

// ItemStatus is the request-item lifecycle. pending -> validated, no
// rollback path.
type ItemStatus string

const (
	StatusPending   ItemStatus = "pending"
	StatusValidated ItemStatus = "validated"
)

// Validation modes recorded on a request item when it reaches validated.
const (
	ModeManual               = "manual"
	ModeAttestation          = "attestation"
	ModeCredentialSubmission = "credential_submission"
	ModeConnector            = "connector"
)

// PAM session states. Expiry is advisory: a session stays active until
// explicitly checked in.
const (
	PamSessionActive    = "active"
	PamSessionCheckedIn = "checked_in"
)

// PamConfig describes shared-credential handling for a PAM item.
type PamConfig struct {
	Ownership           PamOwnership `json:"ownership"`
	AgencyIdentityEmail string       `json:"agency_identity_email,omitempty"`
	RoleTemplate        string       `json:"role_template,omitempty"`
	IdentityStrategy    string       `json:"identity_strategy,omitempty"`
	MaxCheckoutMinutes  int          `json:"max_checkout_minutes,omitempty"`
}

// Client is an agency customer that will receive onboarding links.
type Client struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ClientUpdate carries optional client field changes.
type ClientUpdate struct {
	Name  *string
	Email *string
}

// AccessItem is an agency-defined template describing one way a client
// can grant access on a platform. Never referenced by clients directly;
// copied into request items at request-creation time.
type AccessItem struct {
	ID                    string                `json:"id"`
	AgencyPlatformID      string                `json:"agency_platform_id"`
	ItemType              ItemType              `json:"item_type"`
	AccessPattern         string                `json:"access_pattern"`
	PatternLabel          string                `json:"pattern_label"`
	Label                 string                `json:"label"`
	Role                  string                `json:"role"`
	IdentityPurpose       IdentityPurpose       `json:"identity_purpose,omitempty"`
	HumanIdentityStrategy HumanIdentityStrategy `json:"human_identity_strategy,omitempty"`
	AgencyGroupEmail      string                `json:"agency_group_email,omitempty"`
	IntegrationIdentityID string                `json:"integration_identity_id,omitempty"`
	NamingTemplate        string                `json:"naming_template,omitempty"`
	AgencyData            map[string]string     `json:"agency_data,omitempty"`
	PamConfig             *PamConfig            `json:"pam_config,omitempty"`
	CreatedAt             time.Time             `json:"created_at"`
	UpdatedAt             time.Time             `json:"updated_at"`
}

// AgencyPlatform links a catalog platform to the agency and owns its
// access items. Deleting it removes the items (cascade).
type AgencyPlatform struct {
	ID          string       `json:"id"`
	PlatformID  string       `json:"platform_id"`
	IsEnabled   bool         `json:"is_enabled"`
	AccessItems []AccessItem `json:"access_items"`
	CreatedAt   time.Time    `json:"created_at"`
}

// AccessRequest is a per-client bundle of access items behind an opaque
// onboarding token. CompletedAt is set exactly once, when the last item
// reaches validated.
type AccessRequest struct {
	ID          string              `json:"id"`
	ClientID    string              `json:"client_id"`
	Token       string              `json:"token"`
	Notes       string              `json:"notes,omitempty"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
	Items       []AccessRequestItem `json:"items"`
	CreatedAt   time.Time           `json:"created_at"`
}

// AccessRequestItem is the client-facing copy of an access item, with
// the resolved identity and rendered instructions frozen at creation.
type AccessRequestItem struct {
	ID                   string     `json:"id"`
	AccessRequestID      string     `json:"access_request_id"`
	PlatformID           string     `json:"platform_id"`
	SourceItemID         string     `json:"source_item_id,omitempty"`
	ItemType             ItemType   `json:"item_type"`
	Label                string     `json:"label"`
	Role                 string     `json:"role"`
	ResolvedIdentity     string     `json:"resolved_identity,omitempty"`
	PamConfig            *PamConfig `json:"pam_config,omitempty"`
	PamUsername          string     `json:"pam_username,omitempty"`
	PamSecretRef         string     `json:"pam_secret_ref,omitempty"`
	ClientProvidedTarget string     `json:"client_provided_target,omitempty"`
	Status               ItemStatus `json:"status"`
	ValidatedAt          *time.Time `json:"validated_at,omitempty"`
	ValidatedBy          string     `json:"validated_by,omitempty"`
	ValidationMode       string     `json:"validation_mode,omitempty"`
	VerificationMode     string     `json:"verification_mode,omitempty"`
	ClientInstructions   []string   `json:"client_instructions,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}

// RequestItemUpdate carries optional request-item field changes made
// during onboarding or an admin refresh.
type RequestItemUpdate struct {
	ClientProvidedTarget *string
	PamUsername          *string
	PamSecretRef         *string
	ResolvedIdentity     *string
	ClientInstructions   *[]string
}

// IntegrationIdentity is agency reference data for non-human identity
// assignment (service accounts, API keys, OAuth clients).
type IntegrationIdentity struct {
	ID         string       `json:"id"`
	Type       IdentityType `json:"type"`
	Identifier string       `json:"identifier"`
	PlatformID string       `json:"platform_id,omitempty"`
	IsActive   bool         `json:"is_active"`
	CreatedAt  time.Time    `json:"created_at"`
}

// PamSession is a time-boxed credential checkout. Nothing enforces
// expiry automatically.
type PamSession struct {
	ID          string     `json:"id"`
	RequestID   string     `json:"request_id"`
	ItemID      string     `json:"item_id"`
	UserID      string     `json:"user_id"`
	Status      string     `json:"status"`
	ExpiresAt   time.Time  `json:"expires_at"`
	CheckedInAt *time.Time `json:"checked_in_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// OAuthToken is a persisted token pair obtained via a platform
// connector's code exchange.
type OAuthToken struct {
	ID           string     `json:"id"`
	PlatformKey  string     `json:"platform_key"`
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// AuditEntry is an append-only event record.
type AuditEntry struct {
	ID           string            `json:"id"`
	Event        string            `json:"event"`
	Actor        string            `json:"actor,omitempty"`
	ResourceType string            `json:"resource_type,omitempty"`
	ResourceID   string            `json:"resource_id,omitempty"`
	Details      map[string]string `json:"details,omitempty"`
	OccurredAt   time.Time         `json:"occurred_at"`
}

var (
	ErrNotFound  = errors.New("access: not found")
	ErrConflict  = errors.New("access: already exists")
	ErrInvalid   = errors.New("access: invalid input")
	ErrValidated = errors.New("access: item already validated")
)
