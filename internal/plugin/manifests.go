package plugin

import (
	"fmt"

	"grantdesk.org/internal/access"
)

func builtinManifests() []Manifest {
	return []Manifest{
		googleAdsManifest(),
		metaAdsManifest(),
		ga4Manifest(),
		linkedinAdsManifest(),
		snowflakeManifest(),
		shopifyManifest(),
	}
}

func defaultManifest() Manifest {
	return Manifest{
		Key: "default",
		AgencyFields: map[access.ItemType][]FieldSpec{
			access.NamedInvite: {
				{Key: "role", Label: "Role to grant", Required: true},
			},
			access.SharedAccountPAM: {
				{Key: "loginUrl", Label: "Login URL", Required: false},
			},
		},
		ClientFields: map[access.ItemType][]FieldSpec{
			access.NamedInvite: {
				{Key: "accountId", Label: "Account identifier", Required: false},
			},
			access.SharedAccountPAM: {
				{Key: "username", Label: "Account username", Required: true},
				{Key: "password", Label: "Account password", Required: true},
			},
		},
		Verification: map[access.ItemType]VerificationMode{
			access.SharedAccountPAM: EvidenceRequired,
		},
	}
}

func genericInstructions(ctx InstructionContext) []string {
	item := ctx.Item
	switch item.ItemType {
	case access.NamedInvite:
		steps := []string{
			fmt.Sprintf("Sign in to %s with an administrator account.", ctx.PlatformName),
			"Open the user management or permissions page.",
		}
		if item.ResolvedIdentity != "" {
			steps = append(steps, fmt.Sprintf("Invite %s with the %q role.", item.ResolvedIdentity, item.Role))
		} else {
			steps = append(steps, fmt.Sprintf("Invite the agency users with the %q role.", item.Role))
		}
		steps = append(steps, "Confirm the invite below once it has been sent.")
		return steps
	case access.PartnerDelegation:
		return []string{
			fmt.Sprintf("Sign in to %s with an administrator account.", ctx.PlatformName),
			"Open the partner or linked-accounts settings.",
			fmt.Sprintf("Accept the pending partner request, or add the agency account %s.", fallbackIdentity(item)),
			"Confirm below once the link is active.",
		}
	case access.GroupAccess:
		return []string{
			fmt.Sprintf("Open the access settings in %s.", ctx.PlatformName),
			fmt.Sprintf("Grant the %q role to %s.", item.Role, fallbackIdentity(item)),
			"Confirm below once the grant is saved.",
		}
	case access.ProxyToken:
		return []string{
			fmt.Sprintf("Create an API token in %s with the scopes listed by your agency contact.", ctx.PlatformName),
			"Submit the token through the secure form below.",
		}
	case access.SharedAccountPAM:
		return []string{
			fmt.Sprintf("Locate the shared %s account credentials.", ctx.PlatformName),
			"Submit the username and password through the secure form below.",
			"The credentials are stored for managed checkout and never shown in plain text again.",
		}
	}
	return []string{fmt.Sprintf("Follow your agency contact's instructions for %s.", ctx.PlatformName)}
}

func fallbackIdentity(item access.AccessRequestItem) string {
	if item.ResolvedIdentity != "" {
		return item.ResolvedIdentity
	}
	return "the agency identity"
}

func googleAdsManifest() Manifest {
	m := defaultManifest()
	m.Key = "google-ads"
	m.AgencyFields[access.PartnerDelegation] = []FieldSpec{
		{Key: "managerAccountId", Label: "Manager account (MCC) ID", Required: true,
			Help: "Ten-digit ID of the agency manager account, e.g. 123-456-7890."},
	}
	m.ClientFields[access.PartnerDelegation] = []FieldSpec{
		{Key: "customerId", Label: "Google Ads customer ID", Required: true},
	}
	m.Capabilities = Capabilities{CanExchangeCode: true}
	m.Connector = NewOAuthConnector("google-ads", "https://oauth2.googleapis.com/token")
	m.Instructions = func(ctx InstructionContext) []string {
		if ctx.Item.ItemType == access.PartnerDelegation {
			return []string{
				"Sign in to Google Ads with administrator access.",
				"Open Settings, then Access and security, then Managers.",
				"Accept the link request from the agency manager account.",
				"Confirm below once the link shows as active.",
			}
		}
		return genericInstructions(ctx)
	}
	return m
}

func metaAdsManifest() Manifest {
	m := defaultManifest()
	m.Key = "meta-ads"
	m.AgencyFields[access.PartnerDelegation] = []FieldSpec{
		{Key: "businessId", Label: "Business Manager ID", Required: true},
	}
	m.ClientFields[access.PartnerDelegation] = []FieldSpec{
		{Key: "adAccountId", Label: "Ad account ID", Required: true},
	}
	m.Capabilities = Capabilities{CanExchangeCode: true}
	m.Connector = NewOAuthConnector("meta-ads", "https://graph.facebook.com/v19.0/oauth/access_token")
	m.Instructions = func(ctx InstructionContext) []string {
		if ctx.Item.ItemType == access.PartnerDelegation {
			return []string{
				"Open Meta Business Settings as an admin.",
				"Go to Partners, then Add, then 'Give a partner access to your assets'.",
				"Enter the agency Business Manager ID and assign the requested ad accounts.",
				"Confirm below once the partner shows in your partner list.",
			}
		}
		return genericInstructions(ctx)
	}
	return m
}

func ga4Manifest() Manifest {
	m := defaultManifest()
	m.Key = "ga4"
	m.ClientFields[access.NamedInvite] = []FieldSpec{
		{Key: "propertyId", Label: "GA4 property ID", Required: true},
	}
	m.Instructions = func(ctx InstructionContext) []string {
		if ctx.Item.ItemType == access.NamedInvite || ctx.Item.ItemType == access.GroupAccess {
			return []string{
				"Open Google Analytics Admin for the property.",
				"Select Property access management.",
				fmt.Sprintf("Add %s with the %q role.", fallbackIdentity(ctx.Item), ctx.Item.Role),
				"Confirm below once access is granted.",
			}
		}
		return genericInstructions(ctx)
	}
	return m
}

func linkedinAdsManifest() Manifest {
	m := defaultManifest()
	m.Key = "linkedin-ads"
	m.ClientFields[access.NamedInvite] = []FieldSpec{
		{Key: "adAccountId", Label: "Campaign Manager account ID", Required: true},
	}
	m.Capabilities = Capabilities{CanExchangeCode: true}
	m.Connector = NewOAuthConnector("linkedin-ads", "https://www.linkedin.com/oauth/v2/accessToken")
	return m
}

func snowflakeManifest() Manifest {
	m := defaultManifest()
	m.Key = "snowflake"
	m.AgencyFields[access.GroupAccess] = []FieldSpec{
		{Key: "accountIdentifier", Label: "Snowflake account identifier", Required: true},
		{Key: "warehouse", Label: "Default warehouse", Required: false},
	}
	m.ClientFields[access.GroupAccess] = nil
	conn := NewSnowflakeConnector()
	m.Connector = conn
	m.Capabilities = Capabilities{
		CanGrantAccess:  conn.Configured(),
		CanVerifyAccess: conn.Configured(),
	}
	m.Verification[access.GroupAccess] = AttestationOnly
	if conn.Configured() {
		m.Verification[access.GroupAccess] = Auto
	}
	m.Instructions = func(ctx InstructionContext) []string {
		if ctx.Item.ItemType == access.GroupAccess {
			return []string{
				fmt.Sprintf("A Snowflake role grant for %s will be executed against your account.", fallbackIdentity(ctx.Item)),
				"No manual action is needed; use the connect action below, or ask your admin to run the grant.",
			}
		}
		return genericInstructions(ctx)
	}
	return m
}

func shopifyManifest() Manifest {
	m := defaultManifest()
	m.Key = "shopify"
	m.ClientFields[access.NamedInvite] = []FieldSpec{
		{Key: "storeDomain", Label: "Store domain (example.myshopify.com)", Required: true},
	}
	m.Verification[access.NamedInvite] = EvidenceRequired
	m.Capabilities = Capabilities{RequiresEvidenceUpload: true}
	m.Instructions = func(ctx InstructionContext) []string {
		if ctx.Item.ItemType == access.NamedInvite {
			return []string{
				"Open your Shopify admin, Settings, then Users and permissions.",
				fmt.Sprintf("Send a collaborator request approval or staff invite to %s.", fallbackIdentity(ctx.Item)),
				"Upload a screenshot of the granted access as evidence.",
			}
		}
		return genericInstructions(ctx)
	}
	return m
}
