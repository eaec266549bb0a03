package plugin

import (
	"context"
	"errors"

	"grantdesk.org/internal/access"
)

// VerificationMode tells the onboarding UI what to render for an item:
// an automated connect action, a plain confirmation button, or an
// evidence upload form.
type VerificationMode string

const (
	Auto             VerificationMode = "AUTO"
	AttestationOnly  VerificationMode = "ATTESTATION_ONLY"
	EvidenceRequired VerificationMode = "EVIDENCE_REQUIRED"
)

// FieldSpec describes one configuration field, either filled in by the
// agency when defining an item or by the client during onboarding.
type FieldSpec struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Required bool   `json:"required"`
	Help     string `json:"help,omitempty"`
}

// Capabilities flags what a platform's connector can actually do.
// Callers must check these before assuming automation is available.
type Capabilities struct {
	CanGrantAccess         bool `json:"can_grant_access"`
	CanVerifyAccess        bool `json:"can_verify_access"`
	CanExchangeCode        bool `json:"can_exchange_code"`
	RequiresEvidenceUpload bool `json:"requires_evidence_upload"`
}

// Result is the outcome of a best-effort connector call. Failed calls
// carry a descriptive detail string that is displayed as-is.
type Result struct {
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// Token is the outcome of an OAuth code exchange.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
}

// ErrNotSupported is returned by connector operations the platform
// does not implement. Check Capabilities before calling.
var ErrNotSupported = errors.New("plugin: operation not supported")

// Connector is the per-platform automation surface. Implementations
// return result values; transport failures come back as errors, never
// panics.
type Connector interface {
	GrantAccess(ctx context.Context, item access.AccessRequestItem) (Result, error)
	VerifyAccess(ctx context.Context, item access.AccessRequestItem) (Result, error)
	ExchangeCode(ctx context.Context, code, redirectURI string) (Token, error)
}

// InstructionContext is what an instruction builder gets to work with.
type InstructionContext struct {
	PlatformName string
	Item         access.AccessRequestItem
}

// Manifest is the per-platform descriptor: field schemas per item
// type, verification modes, capability flags, instruction builder and
// an optional connector.
type Manifest struct {
	Key          string
	AgencyFields map[access.ItemType][]FieldSpec
	ClientFields map[access.ItemType][]FieldSpec
	Verification map[access.ItemType]VerificationMode
	Capabilities Capabilities
	Instructions func(InstructionContext) []string
	Connector    Connector
}

// VerificationFor returns the verification mode for an item type,
// falling back to attestation when the manifest has no entry.
func (m Manifest) VerificationFor(t access.ItemType) VerificationMode {
	if mode, ok := m.Verification[t]; ok {
		return mode
	}
	return AttestationOnly
}

// AgencyFieldsFor returns the agency-side field schema for an item type.
func (m Manifest) AgencyFieldsFor(t access.ItemType) []FieldSpec {
	return m.AgencyFields[t]
}

// ClientFieldsFor returns the client-side field schema for an item type.
func (m Manifest) ClientFieldsFor(t access.ItemType) []FieldSpec {
	return m.ClientFields[t]
}

// BuildInstructions renders the ordered instruction steps for an item.
func (m Manifest) BuildInstructions(ctx InstructionContext) []string {
	if m.Instructions == nil {
		return genericInstructions(ctx)
	}
	return m.Instructions(ctx)
}

// Registry resolves platform keys to manifests. Built once at process
// start and never mutated afterwards.
type Registry struct {
	byKey    map[string]Manifest
	fallback Manifest
}

// NewRegistry builds the registry of builtin manifests.
func NewRegistry() *Registry {
	r := &Registry{
		byKey:    make(map[string]Manifest),
		fallback: defaultManifest(),
	}
	for _, m := range builtinManifests() {
		r.byKey[m.Key] = m
	}
	return r
}

// Resolve returns the manifest for a platform key, or the default
// manual-instructions manifest for unknown keys.
func (r *Registry) Resolve(key string) Manifest {
	if m, ok := r.byKey[key]; ok {
		return m
	}
	return r.fallback
}

// Known reports whether a dedicated manifest exists for the key.
func (r *Registry) Known(key string) bool {
	_, ok := r.byKey[key]
	return ok
}

// Keys lists the platform keys with dedicated manifests.
func (r *Registry) Keys() []string {
	out := make([]string, 0, len(r.byKey))
	for k := range r.byKey {
		out = append(out, k)
	}
	return out
}
