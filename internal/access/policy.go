package access

import (
	"fmt"
	"strings"

	"grantdesk.org/internal/catalog"
	"grantdesk.org/internal/obs"
)

// Pattern is the canonical access pattern derived from an item type.
type Pattern struct {
	Key   string
	Label string
}

var patternByType = map[ItemType]Pattern{
	NamedInvite:       {Key: "named_invite", Label: "Named user invite"},
	PartnerDelegation: {Key: "partner_delegation", Label: "Partner/manager delegation"},
	GroupAccess:       {Key: "group_access", Label: "Group or service account access"},
	ProxyToken:        {Key: "proxy_token", Label: "Proxy token"},
	SharedAccountPAM:  {Key: "shared_account_pam", Label: "Shared account (PAM)"},
}

// DerivePattern maps an item type to its access pattern. The mapping is
// a fixed table; the same input always yields the same pattern.
func DerivePattern(t ItemType) (Pattern, bool) {
	p, ok := patternByType[t]
	return p, ok
}

// ItemTypes returns the known item types in a stable order.
func ItemTypes() []ItemType {
	return []ItemType{NamedInvite, PartnerDelegation, GroupAccess, ProxyToken, SharedAccountPAM}
}

// MergeForUpdate fills in the identity fields an update payload left
// empty from the existing record. Label and role are not carried over;
// they stay mandatory on every write.
func MergeForUpdate(incoming, existing AccessItem) AccessItem {
	if incoming.ItemType == "" {
		incoming.ItemType = existing.ItemType
	}
	if incoming.IdentityPurpose == "" {
		incoming.IdentityPurpose = existing.IdentityPurpose
	}
	if incoming.HumanIdentityStrategy == "" {
		incoming.HumanIdentityStrategy = existing.HumanIdentityStrategy
	}
	if incoming.AgencyGroupEmail == "" {
		incoming.AgencyGroupEmail = existing.AgencyGroupEmail
	}
	if incoming.IntegrationIdentityID == "" {
		incoming.IntegrationIdentityID = existing.IntegrationIdentityID
	}
	if incoming.NamingTemplate == "" {
		incoming.NamingTemplate = existing.NamingTemplate
	}
	if incoming.AgencyData == nil {
		incoming.AgencyData = existing.AgencyData
	}
	if incoming.PamConfig == nil {
		incoming.PamConfig = existing.PamConfig
	}
	return incoming
}

// ValidateItem checks a submitted access item against the field policy
// for its type, identity strategy and owning platform. All violations
// are collected and returned as human-readable strings; an empty slice
// means the item is well-formed. Updates merge omitted identity fields
// from the existing record first (MergeForUpdate), so the same rules
// apply to both writes.
func ValidateItem(item AccessItem, platform catalog.Platform) []string {
	var errs []string

	if strings.TrimSpace(string(item.ItemType)) == "" {
		errs = append(errs, "itemType is required")
	}
	if strings.TrimSpace(item.Label) == "" {
		errs = append(errs, "label is required")
	}
	if strings.TrimSpace(item.Role) == "" {
		errs = append(errs, "role is required")
	}

	if item.ItemType == "" {
		return errs
	}

	derived, known := DerivePattern(item.ItemType)
	if !known {
		errs = append(errs, fmt.Sprintf("unknown itemType %q", item.ItemType))
		return errs
	}

	// An explicit pattern that conflicts with the derived one is logged
	// and ignored, kept for payloads produced by older clients.
	if item.AccessPattern != "" && item.AccessPattern != derived.Key {
		obs.Logger().Printf(`{"type":"policy","msg":"access pattern %q conflicts with derived %q for item type %s; using derived"}`,
			item.AccessPattern, derived.Key, item.ItemType)
	}

	if platform.ID != "" && !platform.SupportsItemType(string(item.ItemType)) {
		errs = append(errs, fmt.Sprintf("platform %s does not support item type %s (supported: %s)",
			platform.Name, item.ItemType, strings.Join(platform.SupportedItemTypes, ", ")))
	}

	if item.ItemType == SharedAccountPAM {
		errs = append(errs, validatePamConfig(item.PamConfig)...)
	}

	switch item.HumanIdentityStrategy {
	case "":
		// optional for non-human purposes
	case ClientDedicated:
		if strings.TrimSpace(item.NamingTemplate) == "" {
			errs = append(errs, "namingTemplate is required for CLIENT_DEDICATED identity strategy")
		}
	case AgencyGroup:
		if strings.TrimSpace(item.AgencyGroupEmail) == "" {
			errs = append(errs, "agencyGroupEmail is required for AGENCY_GROUP identity strategy")
		}
	case IndividualUsers:
		// Invitees are supplied at request-creation time, not on the
		// item definition.
	default:
		errs = append(errs, fmt.Sprintf("unknown humanIdentityStrategy %q", item.HumanIdentityStrategy))
	}

	return errs
}

func validatePamConfig(cfg *PamConfig) []string {
	if cfg == nil {
		return []string{"pamConfig is required for SHARED_ACCOUNT_PAM items"}
	}
	var errs []string
	switch cfg.Ownership {
	case "":
		errs = append(errs, "pamConfig.ownership is required")
	case AgencyOwned:
		if strings.TrimSpace(cfg.AgencyIdentityEmail) == "" {
			errs = append(errs, "pamConfig.agencyIdentityEmail is required for AGENCY_OWNED credentials")
		}
		if strings.TrimSpace(cfg.RoleTemplate) == "" {
			errs = append(errs, "pamConfig.roleTemplate is required for AGENCY_OWNED credentials")
		}
	case ClientOwned:
		// The client supplies credentials during onboarding; no agency
		// identity fields are required.
	default:
		errs = append(errs, fmt.Sprintf("unknown pamConfig.ownership %q", cfg.Ownership))
	}
	return errs
}
