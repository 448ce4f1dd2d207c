package tokenrefresh

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wizardsardine/liana-business-session/authapi"
	"github.com/wizardsardine/liana-business-session/config"
	"github.com/wizardsardine/liana-business-session/tokencache"
)

func TestTickRefreshesNearExpiry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"new-access","refresh_token":"new-refresh","expires_at":` +
			"9999999999}"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	client := authapi.NewClient(authapi.DesktopConfig{AuthAPIURL: srv.URL}, "a@b.com")

	soon := time.Now().Add(1 * time.Minute).Unix()
	initial := authapi.Tokens{AccessToken: "old-access", RefreshToken: "old-refresh", ExpiresAt: soon}
	if _, err := tokencache.Update(dir, config.Signet, initial, client, false); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	r := New(dir, config.Signet, client, time.Hour, 5*time.Minute, initial)
	r.tick()

	if got := r.AccessToken(); got != "new-access" {
		t.Fatalf("expected refreshed token, got %q", got)
	}

	reloaded, err := tokencache.FromFile(dir, config.Signet)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(reloaded.Accounts) != 1 || reloaded.Accounts[0].Tokens.AccessToken != "new-access" {
		t.Fatalf("cache not updated: %+v", reloaded)
	}
}

func TestTickSkipsWhenFarFromExpiry(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	dir := t.TempDir()
	client := authapi.NewClient(authapi.DesktopConfig{AuthAPIURL: srv.URL}, "a@b.com")

	farFuture := time.Now().Add(24 * time.Hour).Unix()
	initial := authapi.Tokens{AccessToken: "stays", RefreshToken: "r", ExpiresAt: farFuture}
	tokencache.Update(dir, config.Signet, initial, client, false)

	r := New(dir, config.Signet, client, time.Hour, 5*time.Minute, initial)
	r.tick()

	if called {
		t.Fatalf("expected no refresh call when token is far from expiry")
	}
	if got := r.AccessToken(); got != "stays" {
		t.Fatalf("token should be unchanged, got %q", got)
	}
}

func TestStopDoesNotBlock(t *testing.T) {
	dir := t.TempDir()
	client := authapi.NewClient(authapi.DesktopConfig{}, "a@b.com")
	r := New(dir, config.Signet, client, time.Hour, 5*time.Minute, authapi.Tokens{})
	r.Start()

	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Stop blocked")
	}
	r.Wait()
}
