package access

import "testing"

func TestGenerateClientDedicatedIdentityDeterministic(t *testing.T) {
	template := "{client_slug}.{platform}@agency.example"
	first := GenerateClientDedicatedIdentity(template, "Acme Corp", "google-ads")
	second := GenerateClientDedicatedIdentity(template, "Acme Corp", "google-ads")
	if first != second {
		t.Fatalf("resolution not deterministic: %q vs %q", first, second)
	}
	if first != "acme-corp.google-ads@agency.example" {
		t.Fatalf("unexpected identity: %q", first)
	}
}

func TestGenerateClientDedicatedIdentityPlaceholders(t *testing.T) {
	got := GenerateClientDedicatedIdentity("{client} via {platform}", "Acme Corp", "Meta Ads")
	if got != "Acme Corp via meta-ads" {
		t.Fatalf("unexpected substitution: %q", got)
	}
	if GenerateClientDedicatedIdentity("   ", "Acme", "x") != "" {
		t.Fatal("blank template should resolve to empty")
	}
}

func TestResolveIdentityStrategies(t *testing.T) {
	group := IdentityInputs{Strategy: AgencyGroup, AgencyGroupEmail: " ads-team@agency.example "}
	if got := ResolveIdentity(group, "Acme", "google-ads"); got != "ads-team@agency.example" {
		t.Fatalf("AGENCY_GROUP: %q", got)
	}

	individual := IdentityInputs{Strategy: IndividualUsers, Invitees: []string{"a@x.com", " ", "b@x.com"}}
	if got := ResolveIdentity(individual, "Acme", "google-ads"); got != "a@x.com, b@x.com" {
		t.Fatalf("INDIVIDUAL_USERS: %q", got)
	}

	noInvitees := IdentityInputs{Strategy: IndividualUsers}
	if got := ResolveIdentity(noInvitees, "Acme", "google-ads"); got != "" {
		t.Fatalf("missing invitees should leave identity unset, got %q", got)
	}
}

func TestResolveIdentityFallback(t *testing.T) {
	in := IdentityInputs{AgencyData: map[string]string{"agencyEmail": "legacy@agency.example"}}
	if got := ResolveIdentity(in, "Acme", "ga4"); got != "legacy@agency.example" {
		t.Fatalf("fallback: %q", got)
	}
	if got := ResolveIdentity(IdentityInputs{}, "Acme", "ga4"); got != "" {
		t.Fatalf("no strategy and no fallback should be unset, got %q", got)
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Acme Corp":      "acme-corp",
		"  Acme  Corp  ": "acme-corp",
		"ACME & Söhne":   "acme-s-hne",
		"a1 b2":          "a1-b2",
		"":               "",
	}
	for input, want := range cases {
		if got := Slugify(input); got != want {
			t.Fatalf("Slugify(%q)=%q, want %q", input, got, want)
		}
	}
}
