package access

import (
	"strings"
	"testing"

	"grantdesk.org/internal/catalog"
)

func testPlatform() catalog.Platform {
	return catalog.Platform{
		ID:                 "cat-test",
		Name:               "Test Platform",
		Slug:               "test-platform",
		SupportedItemTypes: []string{"NAMED_INVITE", "SHARED_ACCOUNT_PAM"},
	}
}

func TestDerivePatternIsFixed(t *testing.T) {
	for _, itemType := range ItemTypes() {
		first, ok := DerivePattern(itemType)
		if !ok {
			t.Fatalf("no pattern for %s", itemType)
		}
		second, _ := DerivePattern(itemType)
		if first != second {
			t.Fatalf("pattern derivation not stable for %s: %v vs %v", itemType, first, second)
		}
		if first.Key == "" || first.Label == "" {
			t.Fatalf("incomplete pattern for %s: %+v", itemType, first)
		}
	}
	if _, ok := DerivePattern("MYSTERY"); ok {
		t.Fatal("unexpected pattern for unknown item type")
	}
}

func TestValidateItemMandatoryFields(t *testing.T) {
	errs := ValidateItem(AccessItem{}, testPlatform())
	if len(errs) != 3 {
		t.Fatalf("expected 3 violations, got %v", errs)
	}
	joined := strings.Join(errs, "; ")
	for _, want := range []string{"itemType", "label", "role"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("missing violation for %s in %q", want, joined)
		}
	}
}

func TestValidateItemUnsupportedType(t *testing.T) {
	item := AccessItem{ItemType: GroupAccess, Label: "Group", Role: "Viewer"}
	errs := ValidateItem(item, testPlatform())
	if len(errs) != 1 {
		t.Fatalf("expected 1 violation, got %v", errs)
	}
	if !strings.Contains(errs[0], "NAMED_INVITE, SHARED_ACCOUNT_PAM") {
		t.Fatalf("violation should list supported types: %q", errs[0])
	}
}

func TestValidateItemPamAgencyOwned(t *testing.T) {
	item := AccessItem{
		ItemType:  SharedAccountPAM,
		Label:     "Shared seat",
		Role:      "Admin",
		PamConfig: &PamConfig{Ownership: AgencyOwned},
	}
	errs := ValidateItem(item, testPlatform())
	if len(errs) != 2 {
		t.Fatalf("expected agencyIdentityEmail and roleTemplate violations, got %v", errs)
	}

	item.PamConfig.AgencyIdentityEmail = "ops@agency.example"
	item.PamConfig.RoleTemplate = "admin-{client_slug}"
	if errs := ValidateItem(item, testPlatform()); len(errs) != 0 {
		t.Fatalf("expected valid item, got %v", errs)
	}
}

func TestValidateItemPamClientOwned(t *testing.T) {
	item := AccessItem{
		ItemType:  SharedAccountPAM,
		Label:     "Client seat",
		Role:      "Admin",
		PamConfig: &PamConfig{Ownership: ClientOwned},
	}
	if errs := ValidateItem(item, testPlatform()); len(errs) != 0 {
		t.Fatalf("CLIENT_OWNED must not require agency identity fields, got %v", errs)
	}
}

func TestValidateItemPamConfigMissing(t *testing.T) {
	item := AccessItem{ItemType: SharedAccountPAM, Label: "Seat", Role: "Admin"}
	errs := ValidateItem(item, testPlatform())
	if len(errs) != 1 || !strings.Contains(errs[0], "pamConfig") {
		t.Fatalf("expected pamConfig violation, got %v", errs)
	}
}

func TestValidateItemIdentityStrategies(t *testing.T) {
	base := AccessItem{ItemType: NamedInvite, Label: "Invite", Role: "Editor"}

	dedicated := base
	dedicated.HumanIdentityStrategy = ClientDedicated
	if errs := ValidateItem(dedicated, testPlatform()); len(errs) != 1 {
		t.Fatalf("CLIENT_DEDICATED without template should fail once, got %v", errs)
	}
	dedicated.NamingTemplate = "{client_slug}@agency.example"
	if errs := ValidateItem(dedicated, testPlatform()); len(errs) != 0 {
		t.Fatalf("expected valid, got %v", errs)
	}

	group := base
	group.HumanIdentityStrategy = AgencyGroup
	if errs := ValidateItem(group, testPlatform()); len(errs) != 1 {
		t.Fatalf("AGENCY_GROUP without email should fail once, got %v", errs)
	}
	group.AgencyGroupEmail = "analytics@agency.example"
	if errs := ValidateItem(group, testPlatform()); len(errs) != 0 {
		t.Fatalf("expected valid, got %v", errs)
	}

	// Invitees are supplied at request-creation time, so the item alone
	// is valid.
	individual := base
	individual.HumanIdentityStrategy = IndividualUsers
	if errs := ValidateItem(individual, testPlatform()); len(errs) != 0 {
		t.Fatalf("INDIVIDUAL_USERS item should validate, got %v", errs)
	}
}

func TestMergeForUpdateCarriesIdentityFields(t *testing.T) {
	existing := AccessItem{
		ItemType:              NamedInvite,
		Label:                 "Invite",
		Role:                  "Editor",
		HumanIdentityStrategy: ClientDedicated,
		NamingTemplate:        "{client_slug}@agency.example",
		AgencyData:            map[string]string{"managerAccountId": "123-456-7890"},
	}

	// A payload that only restates label and role keeps the stored
	// identity configuration.
	merged := MergeForUpdate(AccessItem{Label: "Renamed", Role: "Admin"}, existing)
	if merged.ItemType != NamedInvite || merged.HumanIdentityStrategy != ClientDedicated {
		t.Fatalf("type/strategy not carried over: %+v", merged)
	}
	if merged.NamingTemplate != existing.NamingTemplate {
		t.Fatalf("naming template not carried over: %q", merged.NamingTemplate)
	}
	if merged.AgencyData["managerAccountId"] != "123-456-7890" {
		t.Fatalf("agency data not carried over: %v", merged.AgencyData)
	}
	if merged.Label != "Renamed" || merged.Role != "Admin" {
		t.Fatalf("explicit fields must win: %+v", merged)
	}
	if errs := ValidateItem(merged, testPlatform()); len(errs) != 0 {
		t.Fatalf("merged update should validate, got %v", errs)
	}

	// Explicit values are never overwritten by the existing record.
	replaced := MergeForUpdate(AccessItem{
		Label:                 "Invite",
		Role:                  "Editor",
		HumanIdentityStrategy: AgencyGroup,
		AgencyGroupEmail:      "ads@agency.example",
	}, existing)
	if replaced.HumanIdentityStrategy != AgencyGroup || replaced.AgencyGroupEmail != "ads@agency.example" {
		t.Fatalf("explicit identity fields must win: %+v", replaced)
	}
}

func TestValidateItemConflictingPatternAccepted(t *testing.T) {
	item := AccessItem{
		ItemType:      NamedInvite,
		AccessPattern: "partner_delegation",
		Label:         "Invite",
		Role:          "Editor",
	}
	if errs := ValidateItem(item, testPlatform()); len(errs) != 0 {
		t.Fatalf("conflicting explicit pattern must be accepted, got %v", errs)
	}
}
