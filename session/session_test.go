package session

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/wizardsardine/liana-business-session/authapi"
	"github.com/wizardsardine/liana-business-session/config"
	"github.com/wizardsardine/liana-business-session/protocol"
	"github.com/wizardsardine/liana-business-session/testserver"
	"github.com/wizardsardine/liana-business-session/tokencache"
	"github.com/wizardsardine/liana-business-session/types"
)

func seedToken(t *testing.T, dir string, client *authapi.Client) {
	t.Helper()
	tokens := authapi.Tokens{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(24 * time.Hour).Unix(),
	}
	if _, err := tokencache.Update(dir, config.Signet, tokens, client, false); err != nil {
		t.Fatalf("seed token: %v", err)
	}
}

func testConfig(dir string) config.Config {
	return config.Config{
		Network:           config.Signet,
		TokenCacheDir:     dir,
		HandshakeTimeout:  2 * time.Second,
		PingInterval:      5 * time.Second,
		PingTimeout:       5 * time.Second,
		RequestTimeout:    100 * time.Millisecond,
		RetryCheckPeriod:  20 * time.Millisecond,
		MaxRequestRetries: 2,
		RefreshThreshold:  time.Minute,
		RefreshInterval:   time.Hour,
	}
}

func awaitNotification(t *testing.T, s *Session, timeout time.Duration) Notification {
	t.Helper()
	select {
	case n := <-s.Notifications():
		return n
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for notification")
		return nil
	}
}

func TestConnectHandshakeSucceeds(t *testing.T) {
	dir := t.TempDir()
	userID := uuid.New()

	srv := testserver.New(func(req protocol.Request, token string) (protocol.Response, bool) {
		if req.Method() == protocol.MethodConnect {
			return protocol.ConnectedResponse{Version: config.ProtocolVersion, User: userID}, true
		}
		return nil, false
	})
	defer srv.Close()

	client := authapi.NewClient(authapi.DesktopConfig{}, "a@b.com")
	seedToken(t, dir, client)

	s := New(testConfig(dir), client)
	defer s.Close()
	s.Connect(srv.URL())

	n := awaitNotification(t, s, time.Second)
	if _, ok := n.(Connected); !ok {
		t.Fatalf("expected Connected, got %#v", n)
	}
	if s.UserID() != userID {
		t.Fatalf("expected UserID %s, got %s", userID, s.UserID())
	}
}

func TestConnectVersionMismatch(t *testing.T) {
	dir := t.TempDir()
	srv := testserver.New(func(req protocol.Request, token string) (protocol.Response, bool) {
		return protocol.ConnectedResponse{Version: config.ProtocolVersion + 1, User: uuid.New()}, true
	})
	defer srv.Close()

	client := authapi.NewClient(authapi.DesktopConfig{}, "a@b.com")
	seedToken(t, dir, client)

	s := New(testConfig(dir), client)
	defer s.Close()
	s.Connect(srv.URL())

	n := awaitNotification(t, s, time.Second)
	notice, ok := n.(ErrorNotice)
	if !ok {
		t.Fatalf("expected ErrorNotice, got %#v", n)
	}
	if _, ok := notice.Kind.(WsConnectionErr); !ok {
		t.Fatalf("expected WsConnectionErr, got %#v", notice.Kind)
	}
}

func TestConnectNoTokenEmitsTokenMissing(t *testing.T) {
	dir := t.TempDir()
	srv := testserver.New(func(req protocol.Request, token string) (protocol.Response, bool) {
		return protocol.ConnectedResponse{Version: config.ProtocolVersion, User: uuid.New()}, true
	})
	defer srv.Close()

	client := authapi.NewClient(authapi.DesktopConfig{}, "nobody@b.com")
	s := New(testConfig(dir), client)
	defer s.Close()
	s.Connect(srv.URL())

	n := awaitNotification(t, s, time.Second)
	notice, ok := n.(ErrorNotice)
	if !ok {
		t.Fatalf("expected ErrorNotice, got %#v", n)
	}
	if _, ok := notice.Kind.(TokenMissingErr); !ok {
		t.Fatalf("expected TokenMissingErr, got %#v", notice.Kind)
	}
}

func TestFetchOrgTriggersTransitiveFetch(t *testing.T) {
	dir := t.TempDir()
	userID := uuid.New()
	orgID := uuid.New()
	memberID := uuid.New()
	walletID := uuid.New()

	srv := testserver.New(func(req protocol.Request, token string) (protocol.Response, bool) {
		switch r := req.(type) {
		case protocol.ConnectRequest:
			return protocol.ConnectedResponse{Version: config.ProtocolVersion, User: userID}, true
		case protocol.FetchOrgRequest:
			return protocol.OrgResponse{Org: types.Org{
				ID:      orgID,
				Users:   map[types.ID]struct{}{memberID: {}},
				Wallets: map[types.ID]struct{}{walletID: {}},
			}}, true
		case protocol.FetchUserRequest:
			return protocol.UserResponse{User: types.User{UUID: r.ID, Email: "member@b.com"}}, true
		case protocol.FetchWalletRequest:
			return protocol.WalletResponse{Wallet: types.Wallet{ID: r.ID, Org: orgID}}, true
		}
		return nil, false
	})
	defer srv.Close()

	client := authapi.NewClient(authapi.DesktopConfig{}, "a@b.com")
	seedToken(t, dir, client)

	s := New(testConfig(dir), client)
	defer s.Close()
	s.Connect(srv.URL())

	if _, ok := awaitNotification(t, s, time.Second).(Connected); !ok {
		t.Fatalf("expected Connected first")
	}

	s.FetchOrg(orgID)

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		switch n := awaitNotification(t, s, time.Second).(type) {
		case OrgUpdated:
			seen["org"] = true
		case UserUpdated:
			seen["user"] = true
		case WalletUpdated:
			seen["wallet"] = true
		default:
			t.Fatalf("unexpected notification %#v", n)
		}
	}
	for _, key := range []string{"org", "user", "wallet"} {
		if !seen[key] {
			t.Fatalf("missing %s notification", key)
		}
	}

	if _, ok := s.Cache().Org(orgID); !ok {
		t.Fatalf("org not cached")
	}
	if _, ok := s.Cache().User(memberID); !ok {
		t.Fatalf("member not cached")
	}
	if _, ok := s.Cache().Wallet(walletID); !ok {
		t.Fatalf("wallet not cached")
	}
}

func TestRequestTimeoutGivesUpAfterRetries(t *testing.T) {
	dir := t.TempDir()
	userID := uuid.New()

	srv := testserver.New(func(req protocol.Request, token string) (protocol.Response, bool) {
		if req.Method() == protocol.MethodConnect {
			return protocol.ConnectedResponse{Version: config.ProtocolVersion, User: userID}, true
		}
		return nil, false // silently drop fetch_user so it times out
	})
	defer srv.Close()

	client := authapi.NewClient(authapi.DesktopConfig{}, "a@b.com")
	seedToken(t, dir, client)

	s := New(testConfig(dir), client)
	defer s.Close()
	s.Connect(srv.URL())

	if _, ok := awaitNotification(t, s, time.Second).(Connected); !ok {
		t.Fatalf("expected Connected first")
	}

	s.FetchUser(uuid.New())

	for i := 0; i < 10; i++ {
		n := awaitNotification(t, s, 2*time.Second)
		if notice, ok := n.(ErrorNotice); ok {
			if _, ok := notice.Kind.(RequestTimeoutErr); ok {
				return
			}
		}
	}
	t.Fatalf("did not observe RequestTimeoutErr")
}

func TestMismatchedResponseMethodDropsEntry(t *testing.T) {
	dir := t.TempDir()
	userID := uuid.New()
	otherUserID := uuid.New()

	srv := testserver.New(func(req protocol.Request, token string) (protocol.Response, bool) {
		switch req.(type) {
		case protocol.ConnectRequest:
			return protocol.ConnectedResponse{Version: config.ProtocolVersion, User: userID}, true
		case protocol.FetchWalletRequest:
			// Reply to a fetch_wallet request with a user payload under
			// the same request id.
			return protocol.UserResponse{User: types.User{UUID: otherUserID}}, true
		}
		return nil, false
	})
	defer srv.Close()

	client := authapi.NewClient(authapi.DesktopConfig{}, "a@b.com")
	seedToken(t, dir, client)

	s := New(testConfig(dir), client)
	defer s.Close()
	s.Connect(srv.URL())

	if _, ok := awaitNotification(t, s, time.Second).(Connected); !ok {
		t.Fatalf("expected Connected first")
	}

	s.FetchWallet(uuid.New())

	n := awaitNotification(t, s, time.Second)
	notice, ok := n.(ErrorNotice)
	if !ok {
		t.Fatalf("expected ErrorNotice, got %#v", n)
	}
	if _, ok := notice.Kind.(WsMessageHandlingErr); !ok {
		t.Fatalf("expected WsMessageHandlingErr, got %#v", notice.Kind)
	}
	if _, ok := s.Cache().User(otherUserID); ok {
		t.Fatalf("user cache should not have been populated by a mismatched response")
	}
}

func TestPingSentImmediatelyOnConnect(t *testing.T) {
	dir := t.TempDir()
	userID := uuid.New()
	pinged := make(chan struct{}, 1)

	srv := testserver.New(func(req protocol.Request, token string) (protocol.Response, bool) {
		switch req.(type) {
		case protocol.ConnectRequest:
			return protocol.ConnectedResponse{Version: config.ProtocolVersion, User: userID}, true
		case protocol.PingRequest:
			select {
			case pinged <- struct{}{}:
			default:
			}
			return protocol.PongResponse{}, true
		}
		return nil, false
	})
	defer srv.Close()

	client := authapi.NewClient(authapi.DesktopConfig{}, "a@b.com")
	seedToken(t, dir, client)

	s := New(testConfig(dir), client)
	defer s.Close()
	s.Connect(srv.URL())

	if _, ok := awaitNotification(t, s, time.Second).(Connected); !ok {
		t.Fatalf("expected Connected first")
	}

	select {
	case <-pinged:
	case <-time.After(time.Second):
		t.Fatalf("expected a ping well before PingInterval elapsed")
	}
}

func TestDisconnectOnDroppedConnection(t *testing.T) {
	dir := t.TempDir()
	userID := uuid.New()

	var srv *testserver.Server
	srv = testserver.New(func(req protocol.Request, token string) (protocol.Response, bool) {
		if req.Method() == protocol.MethodConnect {
			return protocol.ConnectedResponse{Version: config.ProtocolVersion, User: userID}, true
		}
		return nil, false
	})
	defer srv.Close()

	client := authapi.NewClient(authapi.DesktopConfig{}, "a@b.com")
	seedToken(t, dir, client)

	s := New(testConfig(dir), client)
	defer s.Close()
	s.Connect(srv.URL())

	if _, ok := awaitNotification(t, s, time.Second).(Connected); !ok {
		t.Fatalf("expected Connected first")
	}

	srv.DropConnection()

	for i := 0; i < 5; i++ {
		if _, ok := awaitNotification(t, s, 2*time.Second).(Disconnected); ok {
			return
		}
	}
	t.Fatalf("did not observe Disconnected")
}
