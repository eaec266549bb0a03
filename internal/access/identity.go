package access

import (
	"strings"
)

// IdentityInputs carries everything the resolver needs from the access
// item definition plus the invitees supplied at request-creation time.
type IdentityInputs struct {
	Strategy         HumanIdentityStrategy
	AgencyGroupEmail string
	NamingTemplate   string
	AgencyData       map[string]string
	Invitees         []string
}

// ResolveIdentity computes the concrete identity string presented to
// the client for one request item. Failure is "leave unset", never an
// error.
func ResolveIdentity(in IdentityInputs, clientName, platformSlug string) string {
	switch in.Strategy {
	case AgencyGroup:
		return strings.TrimSpace(in.AgencyGroupEmail)
	case ClientDedicated:
		return GenerateClientDedicatedIdentity(in.NamingTemplate, clientName, platformSlug)
	case IndividualUsers:
		return joinInvitees(in.Invitees)
	}
	// Backward-compatibility: older item definitions carried a plain
	// agency email in the free-form platform data.
	if email, ok := in.AgencyData["agencyEmail"]; ok {
		return strings.TrimSpace(email)
	}
	return ""
}

// GenerateClientDedicatedIdentity applies a naming template against a
// client and platform. Substitution is pure: the same (template,
// client, platform) triple always yields the same string.
//
// Placeholders: {client} (display name), {client_slug}, {platform}.
func GenerateClientDedicatedIdentity(template, clientName, platformSlug string) string {
	template = strings.TrimSpace(template)
	if template == "" {
		return ""
	}
	r := strings.NewReplacer(
		"{client}", strings.TrimSpace(clientName),
		"{client_slug}", Slugify(clientName),
		"{platform}", Slugify(platformSlug),
	)
	return r.Replace(template)
}

// Slugify lowercases and collapses a name into a dash-separated slug
// safe for logins and email local parts.
func Slugify(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func joinInvitees(invitees []string) string {
	var cleaned []string
	for _, email := range invitees {
		email = strings.TrimSpace(email)
		if email == "" {
			continue
		}
		cleaned = append(cleaned, email)
	}
	return strings.Join(cleaned, ", ")
}
