package protocol

import (
	"testing"

	"github.com/google/uuid"
	"github.com/wizardsardine/liana-business-session/types"
)

func TestRequestRoundTrip(t *testing.T) {
	token := "T"
	id := uuid.New()

	cases := []Request{
		ConnectRequest{Version: 1},
		PingRequest{},
		CloseRequest{},
		FetchOrgRequest{ID: uuid.New()},
		FetchWalletRequest{ID: uuid.New()},
		FetchUserRequest{ID: uuid.New()},
		EditXpubRequest{WalletID: uuid.New(), KeyID: 3, Xpub: nil},
		EditXpubRequest{WalletID: uuid.New(), KeyID: 3, Xpub: &types.Xpub{
			Value: "xpub...", Source: types.XpubSourcePasted,
		}},
		DeviceRegisteredRequest{
			WalletID: uuid.New(),
			Infos:    RegistrationInfos{Fingerprint: 0xdeadbeef, DeviceKind: "ledger"},
		},
	}

	for _, want := range cases {
		data, err := EncodeRequest(want, token, id)
		if err != nil {
			t.Fatalf("encode %T: %v", want, err)
		}
		got, gotToken, gotID, err := DecodeRequest(data)
		if err != nil {
			t.Fatalf("decode %T: %v", want, err)
		}
		if gotToken != token || gotID != id {
			t.Fatalf("token/id mismatch for %T: got (%s,%s)", want, gotToken, gotID)
		}
		if got.Method() != want.Method() {
			t.Fatalf("method mismatch: got %v want %v", got.Method(), want.Method())
		}
	}
}

func TestEditXpubClearsOnNil(t *testing.T) {
	id := uuid.New()
	req := EditXpubRequest{WalletID: id, KeyID: 5, Xpub: nil}
	data, err := EncodeRequest(req, "t", uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	decoded, _, _, err := DecodeRequest(data)
	if err != nil {
		t.Fatal(err)
	}
	got := decoded.(EditXpubRequest)
	if got.Xpub != nil {
		t.Fatalf("expected xpub to be cleared, got %+v", got.Xpub)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	id := uuid.New()

	org := types.Org{
		ID:      uuid.New(),
		Name:    "acme",
		Wallets: map[types.ID]struct{}{uuid.New(): {}},
		Users:   map[types.ID]struct{}{uuid.New(): {}},
		Owners:  []types.ID{uuid.New()},
	}

	cases := []Response{
		ConnectedResponse{Version: 1, User: uuid.New()},
		PongResponse{},
		OrgResponse{Org: org},
		DeleteUserOrgResponse{User: uuid.New(), Org: uuid.New()},
		ErrorResponse{Error: WireError{Code: "bad_request", Message: "nope"}},
	}

	for _, want := range cases {
		data, err := EncodeResponse(want, &id)
		if err != nil {
			t.Fatalf("encode %T: %v", want, err)
		}
		got, gotID, err := DecodeResponse(data)
		if err != nil {
			t.Fatalf("decode %T: %v", want, err)
		}
		if gotID == nil || *gotID != id {
			t.Fatalf("request id mismatch for %T", want)
		}
		if got.Method() != want.Method() {
			t.Fatalf("method mismatch: got %v want %v", got.Method(), want.Method())
		}
	}
}

func TestResponseWithoutRequestID(t *testing.T) {
	resp := OrgResponse{Org: types.Org{ID: uuid.New(), Wallets: map[types.ID]struct{}{}, Users: map[types.ID]struct{}{}}}
	data, err := EncodeResponse(resp, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, id, err := DecodeResponse(data)
	if err != nil {
		t.Fatal(err)
	}
	if id != nil {
		t.Fatalf("expected nil request id, got %v", *id)
	}
}

func TestErrorResponseCarriesOwnRequestID(t *testing.T) {
	inner := "inner-id"
	resp := ErrorResponse{Error: WireError{Code: "x", Message: "y", RequestID: &inner}}
	outer := uuid.New()
	data, err := EncodeResponse(resp, &outer)
	if err != nil {
		t.Fatal(err)
	}
	got, gotOuter, err := DecodeResponse(data)
	if err != nil {
		t.Fatal(err)
	}
	if gotOuter == nil || *gotOuter != outer {
		t.Fatalf("outer request id not preserved")
	}
	errResp := got.(ErrorResponse)
	if errResp.Error.RequestID == nil || *errResp.Error.RequestID != inner {
		t.Fatalf("inner request id not preserved")
	}
}

func TestBinaryFrameRejected(t *testing.T) {
	_, _, err := DecodeResponseFrame(false, []byte("anything"))
	if _, ok := err.(InvalidMessageType); !ok {
		t.Fatalf("expected InvalidMessageType, got %v (%T)", err, err)
	}
}

func TestMissingTypeRejected(t *testing.T) {
	_, _, err := DecodeResponse([]byte(`{"request_id":"` + uuid.New().String() + `"}`))
	if err == nil {
		t.Fatal("expected error for missing type")
	}
	if _, ok := err.(DeserializationFailed); !ok {
		t.Fatalf("expected DeserializationFailed, got %T", err)
	}
}

func TestUnknownEnumTagRejected(t *testing.T) {
	raw := `{"type":"wallet","payload":{"id":"` + uuid.New().String() + `","alias":"a",` +
		`"org":"` + uuid.New().String() + `","owner":"` + uuid.New().String() + `",` +
		`"status":"not_a_real_status"}}`
	_, _, err := DecodeResponse([]byte(raw))
	if err == nil {
		t.Fatal("expected error for unknown status tag")
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	raw := `{"type":"ping","unexpected_field":true}`
	_, _, err := DecodeResponse([]byte(raw))
	if err == nil {
		t.Fatal("expected error for unknown top-level field")
	}
}
