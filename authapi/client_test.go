package authapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestSignInOTPInvalidEmail(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte("bad email"))
	})

	c := NewClient(DesktopConfig{AuthAPIURL: srv.URL}, "nope@")
	err := c.SignInOTP()
	if _, ok := err.(InvalidEmail); !ok {
		t.Fatalf("expected InvalidEmail, got %v (%T)", err, err)
	}
}

func TestSignInOTPOtherFailure(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	c := NewClient(DesktopConfig{AuthAPIURL: srv.URL}, "a@b.com")
	err := c.SignInOTP()
	if _, ok := err.(AuthCodeFail); !ok {
		t.Fatalf("expected AuthCodeFail, got %v (%T)", err, err)
	}
}

func TestSignInOTPSuccess(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	c := NewClient(DesktopConfig{AuthAPIURL: srv.URL}, "a@b.com")
	if err := c.SignInOTP(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestVerifyOTP(t *testing.T) {
	want := Tokens{AccessToken: "acc", RefreshToken: "ref", ExpiresAt: 1234}
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(want)
	})

	c := NewClient(DesktopConfig{AuthAPIURL: srv.URL}, "a@b.com")
	got, err := c.VerifyOTP("123456")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestRefreshTokenFailure(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	c := NewClient(DesktopConfig{AuthAPIURL: srv.URL}, "a@b.com")
	_, err := c.RefreshToken("stale")
	if _, ok := err.(LoginFail); !ok {
		t.Fatalf("expected LoginFail, got %v (%T)", err, err)
	}
}

func TestFetchDesktopConfig(t *testing.T) {
	want := DesktopConfig{
		AuthAPIURL:       "https://auth.example.com",
		AuthAPIPublicKey: "",
		BackendAPIURL:    "https://backend.example.com",
	}
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/desktop" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(want)
	})

	got, err := FetchDesktopConfig(srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
}
