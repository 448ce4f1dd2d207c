// Package keyidentity describes the KeyIdentity values a policy template's
// keys can carry: the cosigner services the backend knows about, and a
// human-readable label for any identity, used by the UI wherever a key's
// owner needs to be displayed.
package keyidentity

import "github.com/wizardsardine/liana-business-session/types"

// Cosigner describes one backend-known cosigning service a Token-kind
// KeyIdentity can name.
type Cosigner struct {
	Token       string
	DisplayName string
}

// knownCosigners is the fixed set of cosigning services the installer can
// attribute a Token identity to. New services are added here as the backend
// adds support for them.
var knownCosigners = []Cosigner{
	{Token: "wizardsardine-safety-net", DisplayName: "WizardSardine Safety Net"},
	{Token: "liana-connect-relay", DisplayName: "Liana Connect Relay"},
}

// KnownCosigners returns the fixed set of cosigning services the installer
// recognizes by token.
func KnownCosigners() []Cosigner {
	out := make([]Cosigner, len(knownCosigners))
	copy(out, knownCosigners)
	return out
}

func cosignerDisplayName(token string) (string, bool) {
	for _, c := range knownCosigners {
		if c.Token == token {
			return c.DisplayName, true
		}
	}
	return "", false
}

// Describe returns the human-readable label for id: the email for an Email
// identity, the matching cosigner's display name (falling back to its raw
// token) for a Token identity, and the raw value for Other.
func Describe(id types.KeyIdentity) string {
	switch id.Kind {
	case types.IdentityEmail:
		return id.Email
	case types.IdentityToken:
		if name, ok := cosignerDisplayName(id.Token); ok {
			return name
		}
		return id.Token
	case types.IdentityOther:
		return id.Other
	default:
		return "unknown"
	}
}
