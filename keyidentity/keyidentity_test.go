package keyidentity

import (
	"testing"

	"github.com/wizardsardine/liana-business-session/types"
)

func TestDescribeEmail(t *testing.T) {
	id := types.KeyIdentity{Kind: types.IdentityEmail, Email: "a@b.com"}
	if got := Describe(id); got != "a@b.com" {
		t.Fatalf("got %q", got)
	}
}

func TestDescribeKnownCosignerToken(t *testing.T) {
	id := types.KeyIdentity{Kind: types.IdentityToken, Token: "wizardsardine-safety-net"}
	if got := Describe(id); got != "WizardSardine Safety Net" {
		t.Fatalf("got %q", got)
	}
}

func TestDescribeUnknownTokenFallsBackToRaw(t *testing.T) {
	id := types.KeyIdentity{Kind: types.IdentityToken, Token: "some-other-service"}
	if got := Describe(id); got != "some-other-service" {
		t.Fatalf("got %q", got)
	}
}

func TestDescribeOther(t *testing.T) {
	id := types.KeyIdentity{Kind: types.IdentityOther, Other: "hardware-slot-3"}
	if got := Describe(id); got != "hardware-slot-3" {
		t.Fatalf("got %q", got)
	}
}

func TestKnownCosignersReturnsCopy(t *testing.T) {
	a := KnownCosigners()
	a[0].DisplayName = "mutated"
	b := KnownCosigners()
	if b[0].DisplayName == "mutated" {
		t.Fatalf("KnownCosigners should return a fresh copy each call")
	}
}
