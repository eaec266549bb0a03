package catalog

// Builtin returns the seed catalog of supported marketing platforms.
// The migrate tool writes these into catalog_platforms; the in-memory
// store serves them directly in dev mode.
func Builtin() []Platform {
	invite := AccessPattern{Pattern: "named_invite", Label: "Named user invite"}
	delegation := AccessPattern{Pattern: "partner_delegation", Label: "Partner/manager delegation"}
	group := AccessPattern{Pattern: "group_access", Label: "Group or service account access"}
	proxy := AccessPattern{Pattern: "proxy_token", Label: "Proxy token"}
	pam := AccessPattern{Pattern: "shared_account_pam", Label: "Shared account (PAM)"}

	return []Platform{
		{
			ID: "cat-google-ads", Name: "Google Ads", Slug: "google-ads",
			Category: "paid-search", Tier: 1, ClientFacing: true,
			AutomationFeasibility: "High",
			SupportedItemTypes:    []string{"NAMED_INVITE", "PARTNER_DELEGATION"},
			AccessPatterns: []AccessPattern{
				withRoles(invite, "Admin", "Standard", "Read only"),
				withRoles(delegation, "Manager account link"),
			},
		},
		{
			ID: "cat-meta-ads", Name: "Meta Ads", Slug: "meta-ads",
			Category: "paid-social", Tier: 1, ClientFacing: true,
			AutomationFeasibility: "Medium",
			SupportedItemTypes:    []string{"NAMED_INVITE", "PARTNER_DELEGATION"},
			AccessPatterns: []AccessPattern{
				withRoles(invite, "Admin", "Advertiser", "Analyst"),
				withRoles(delegation, "Partner business"),
			},
		},
		{
			ID: "cat-ga4", Name: "Google Analytics 4", Slug: "ga4",
			Category: "analytics", Tier: 1, ClientFacing: true,
			AutomationFeasibility: "High",
			SupportedItemTypes:    []string{"NAMED_INVITE", "GROUP_ACCESS"},
			AccessPatterns: []AccessPattern{
				withRoles(invite, "Administrator", "Editor", "Analyst", "Viewer"),
				withRoles(group, "Editor", "Viewer"),
			},
		},
		{
			ID: "cat-gtm", Name: "Google Tag Manager", Slug: "google-tag-manager",
			Category: "analytics", Tier: 2, ClientFacing: true,
			AutomationFeasibility: "High",
			SupportedItemTypes:    []string{"NAMED_INVITE", "GROUP_ACCESS"},
			AccessPatterns: []AccessPattern{
				withRoles(invite, "Admin", "Publish", "Edit", "Read"),
				withRoles(group, "Edit", "Read"),
			},
		},
		{
			ID: "cat-linkedin-ads", Name: "LinkedIn Ads", Slug: "linkedin-ads",
			Category: "paid-social", Tier: 1, ClientFacing: true,
			AutomationFeasibility: "Medium",
			SupportedItemTypes:    []string{"NAMED_INVITE", "PARTNER_DELEGATION"},
			AccessPatterns: []AccessPattern{
				withRoles(invite, "Account manager", "Campaign manager", "Viewer"),
				withRoles(delegation, "Business manager partner"),
			},
		},
		{
			ID: "cat-tiktok-ads", Name: "TikTok Ads", Slug: "tiktok-ads",
			Category: "paid-social", Tier: 2, ClientFacing: true,
			AutomationFeasibility: "Medium/Low",
			SupportedItemTypes:    []string{"NAMED_INVITE", "PARTNER_DELEGATION"},
			AccessPatterns: []AccessPattern{
				withRoles(invite, "Admin", "Operator", "Analyst"),
				withRoles(delegation, "Business center partner"),
			},
		},
		{
			ID: "cat-microsoft-ads", Name: "Microsoft Advertising", Slug: "microsoft-ads",
			Category: "paid-search", Tier: 2, ClientFacing: true,
			AutomationFeasibility: "Medium",
			SupportedItemTypes:    []string{"NAMED_INVITE", "PARTNER_DELEGATION"},
			AccessPatterns: []AccessPattern{
				withRoles(invite, "Super admin", "Standard", "Viewer"),
				withRoles(delegation, "Agency link"),
			},
		},
		{
			ID: "cat-amazon-ads", Name: "Amazon Ads", Slug: "amazon-ads",
			Category: "retail-media", Tier: 2, ClientFacing: true,
			AutomationFeasibility: "Low",
			SupportedItemTypes:    []string{"NAMED_INVITE", "SHARED_ACCOUNT_PAM"},
			AccessPatterns: []AccessPattern{
				withRoles(invite, "Admin", "Editor", "Viewer"),
				pam,
			},
		},
		{
			ID: "cat-snowflake", Name: "Snowflake", Slug: "snowflake",
			Category: "data-warehouse", Tier: 1, ClientFacing: false,
			AutomationFeasibility: "High",
			SupportedItemTypes:    []string{"GROUP_ACCESS", "PROXY_TOKEN"},
			AccessPatterns: []AccessPattern{
				withRoles(group, "SYSADMIN", "ANALYST", "REPORTER"),
				proxy,
			},
		},
		{
			ID: "cat-klaviyo", Name: "Klaviyo", Slug: "klaviyo",
			Category: "email", Tier: 2, ClientFacing: true,
			AutomationFeasibility: "Medium",
			SupportedItemTypes:    []string{"NAMED_INVITE", "PROXY_TOKEN"},
			AccessPatterns: []AccessPattern{
				withRoles(invite, "Owner", "Admin", "Analyst"),
				proxy,
			},
		},
		{
			ID: "cat-shopify", Name: "Shopify", Slug: "shopify",
			Category: "commerce", Tier: 2, ClientFacing: true,
			AutomationFeasibility: "Low",
			SupportedItemTypes:    []string{"NAMED_INVITE", "SHARED_ACCOUNT_PAM"},
			AccessPatterns: []AccessPattern{
				withRoles(invite, "Staff", "Collaborator"),
				pam,
			},
		},
		{
			ID: "cat-x-ads", Name: "X Ads", Slug: "x-ads",
			Category: "paid-social", Tier: 2, ClientFacing: true,
			AutomationFeasibility: "Low",
			SupportedItemTypes:    []string{"NAMED_INVITE", "SHARED_ACCOUNT_PAM"},
			AccessPatterns: []AccessPattern{
				withRoles(invite, "Account administrator", "Ad manager", "Analyst"),
				pam,
			},
		},
	}
}

func withRoles(p AccessPattern, roles ...string) AccessPattern {
	p.Roles = roles
	return p
}
