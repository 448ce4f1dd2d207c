// Package session implements the central WebSocket session runtime: one
// persistent connection to the business backend, driven by a small fleet
// of goroutines (sender, receiver, ping,
// retry) that never share state except through the pending table, the
// entity cache, the connection slot and the ping timestamps, each guarded
// by its own lock.
//
// A Session is used by calling Connect once, reading Notifications() for as
// long as it runs, issuing commands (FetchOrg, EditWallet, ...), and calling
// Close or Logout when done.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wizardsardine/liana-business-session/authapi"
	"github.com/wizardsardine/liana-business-session/bclog"
	"github.com/wizardsardine/liana-business-session/config"
	"github.com/wizardsardine/liana-business-session/entitycache"
	"github.com/wizardsardine/liana-business-session/metrics"
	"github.com/wizardsardine/liana-business-session/protocol"
	"github.com/wizardsardine/liana-business-session/tokencache"
	"github.com/wizardsardine/liana-business-session/tokenrefresh"
	"github.com/wizardsardine/liana-business-session/types"
)

// Session is one installer's connection to the business backend.
type Session struct {
	cfg        config.Config
	authClient *authapi.Client
	cache      *entitycache.Cache
	metrics    *metrics.Registry

	notifyCh chan Notification
	sendCh   chan protocol.Request
	pending  *pendingTable

	connMu    sync.Mutex
	conn      *websocket.Conn
	connected bool
	userID    uuid.UUID
	refresher *tokenrefresh.Refresher

	pingMu         sync.Mutex
	pingSentAt     time.Time
	havePingSentAt bool
	lastPong       time.Time

	quit     chan struct{}
	quitOnce sync.Once
	wg       sync.WaitGroup
}

// New constructs a Session for authClient's account. cfg's zero-valued
// tunables are replaced by their documented defaults.
func New(cfg config.Config, authClient *authapi.Client) *Session {
	return &Session{
		cfg:        cfg.WithDefaults(),
		authClient: authClient,
		cache:      entitycache.New(),
		notifyCh:   make(chan Notification, 64),
		sendCh:     make(chan protocol.Request, 32),
		pending:    newPendingTable(),
		quit:       make(chan struct{}),
	}
}

// SetMetrics attaches a metrics registry; optional, and must be called
// before Connect.
func (s *Session) SetMetrics(m *metrics.Registry) { s.metrics = m }

// Notifications returns the channel every Notification is delivered on. The
// caller must keep draining it for the lifetime of the session.
func (s *Session) Notifications() <-chan Notification { return s.notifyCh }

// Cache returns the entity cache backing this session, for the reducer to
// read from after each notification.
func (s *Session) Cache() *entitycache.Cache { return s.cache }

// UserID returns the authenticated user's id, valid only after Connected
// has been observed.
func (s *Session) UserID() uuid.UUID {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.userID
}

// Connect starts a connection attempt against wsURL in the background.
// Outcomes arrive as Notifications: Connected on success, or an ErrorNotice
// on failure.
func (s *Session) Connect(wsURL string) {
	s.wg.Add(1)
	go s.connectLoop(wsURL)
}

func (s *Session) connectLoop(wsURL string) {
	defer s.wg.Done()

	tokens, err := s.currentTokens()
	if err != nil {
		bclog.SessLog.Warnf("connect: no usable token: %v", err)
		s.emit(ErrorNotice{Kind: TokenMissingErr{}})
		return
	}

	conn, err := dialWithBackoff(s.quit, wsURL, s.cfg.HandshakeTimeout)
	if err != nil {
		s.emit(ErrorNotice{Kind: WsConnectionErr{Detail: err.Error()}})
		return
	}

	userID, err := s.handshake(conn, tokens.AccessToken)
	if err != nil {
		conn.Close()
		s.emit(ErrorNotice{Kind: WsConnectionErr{Detail: err.Error()}})
		return
	}

	refresher := tokenrefresh.New(s.cfg.TokenCacheDir, s.cfg.Network, s.authClient,
		s.cfg.RefreshInterval, s.cfg.RefreshThreshold, tokens)
	refresher.Start()

	s.connMu.Lock()
	s.conn = conn
	s.connected = true
	s.userID = userID
	s.refresher = refresher
	s.connMu.Unlock()

	s.pending.clear()
	s.resetPingState()

	s.wg.Add(4)
	go s.senderLoop()
	go s.receiverLoop()
	go s.pingLoop()
	go s.retryLoop()

	if s.metrics != nil {
		s.metrics.Reconnects.Inc()
	}
	bclog.SessLog.Infof("connected as user %s", userID)
	s.emit(Connected{})
}

// currentTokens reads the on-disk token cache for the session's email,
// refreshing eagerly if the cached token is already within the refresh
// threshold of expiry.
func (s *Session) currentTokens() (authapi.Tokens, error) {
	cache, err := tokencache.FromFile(s.cfg.TokenCacheDir, s.cfg.Network)
	if err != nil {
		bclog.SessLog.Warnf("token cache unreadable: %v", err)
	}

	email := s.authClient.Email()
	for _, acc := range cache.Accounts {
		if acc.Email != email {
			continue
		}
		if !acc.Tokens.Expired(s.cfg.RefreshThreshold, time.Now()) {
			return acc.Tokens, nil
		}
		fresh, err := s.authClient.RefreshToken(acc.Tokens.RefreshToken)
		if err != nil {
			return authapi.Tokens{}, err
		}
		if _, err := tokencache.Update(s.cfg.TokenCacheDir, s.cfg.Network, fresh, s.authClient, false); err != nil {
			bclog.SessLog.Warnf("token cache write failed: %v", err)
		}
		return fresh, nil
	}
	return authapi.Tokens{}, fmt.Errorf("no cached token for %s", email)
}

func (s *Session) currentAccessToken() string {
	s.connMu.Lock()
	r := s.refresher
	s.connMu.Unlock()
	if r == nil {
		return ""
	}
	return r.AccessToken()
}

func (s *Session) isConnected() bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.connected
}

// enqueue hands req to the sender loop, dropping it only if the session is
// shutting down.
func (s *Session) enqueue(req protocol.Request) {
	select {
	case s.sendCh <- req:
	case <-s.quit:
	}
}

func (s *Session) sendIfConnected(req protocol.Request) {
	if !s.isConnected() {
		s.emit(Disconnected{})
		return
	}
	s.enqueue(req)
}

// FetchOrg requests the organization identified by id.
func (s *Session) FetchOrg(id uuid.UUID) { s.sendIfConnected(protocol.FetchOrgRequest{ID: id}) }

// FetchWallet requests the wallet identified by id.
func (s *Session) FetchWallet(id uuid.UUID) { s.sendIfConnected(protocol.FetchWalletRequest{ID: id}) }

// FetchUser requests the user identified by id.
func (s *Session) FetchUser(id uuid.UUID) { s.sendIfConnected(protocol.FetchUserRequest{ID: id}) }

// EditWallet submits a full wallet snapshot for the server to merge.
func (s *Session) EditWallet(w types.Wallet) {
	s.sendIfConnected(protocol.EditWalletRequest{Wallet: w})
}

// EditXpub sets (or, with a nil xpub, clears) the xpub of one key.
func (s *Session) EditXpub(walletID uuid.UUID, keyID uint8, xpub *types.Xpub) {
	s.sendIfConnected(protocol.EditXpubRequest{WalletID: walletID, KeyID: keyID, Xpub: xpub})
}

// DeviceRegistered reports that a hardware device finished registering the
// wallet descriptor.
func (s *Session) DeviceRegistered(walletID uuid.UUID, infos protocol.RegistrationInfos) {
	s.sendIfConnected(protocol.DeviceRegisteredRequest{WalletID: walletID, Infos: infos})
}

// Close tears down the connection and every worker goroutine, sending a
// best-effort close request first. It blocks until every worker has
// exited.
func (s *Session) Close() {
	s.quitOnce.Do(func() { close(s.quit) })

	s.connMu.Lock()
	conn := s.conn
	refresher := s.refresher
	s.connMu.Unlock()

	if conn != nil {
		if frame, err := protocol.EncodeRequest(protocol.CloseRequest{}, s.currentAccessToken(), uuid.New()); err == nil {
			conn.WriteMessage(websocket.TextMessage, frame)
		}
		conn.Close()
	}
	if refresher != nil {
		refresher.Stop()
	}
	s.wg.Wait()
}

// Logout clears this account's on-disk token cache entry and in-memory
// caches, then closes the session.
func (s *Session) Logout() {
	if err := tokencache.Remove(s.cfg.TokenCacheDir, s.cfg.Network, s.authClient.Email()); err != nil {
		bclog.SessLog.Warnf("logout: token cache remove failed: %v", err)
	}
	s.cache.Clear()
	s.Close()
}

func (s *Session) emit(n Notification) {
	select {
	case s.notifyCh <- n:
	case <-s.quit:
	}
}

// disconnect tears down the current connection and its refresher without
// stopping the session's own quit channel, so a future reconnect attempt
// remains possible.
func (s *Session) disconnect() {
	s.connMu.Lock()
	conn := s.conn
	refresher := s.refresher
	wasConnected := s.connected
	s.conn = nil
	s.refresher = nil
	s.connected = false
	s.connMu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if refresher != nil {
		refresher.Stop()
	}
	s.pending.clear()
	s.resetPingState()

	if wasConnected {
		bclog.SessLog.Warnf("disconnected")
		s.emit(Disconnected{})
	}
}

func (s *Session) handleConnError(err error) {
	bclog.SessLog.Warnf("connection error: %v", err)
	s.emit(ErrorNotice{Kind: WsConnectionErr{Detail: err.Error()}})
	s.disconnect()
}

func (s *Session) setPingSentAt(t time.Time) {
	s.pingMu.Lock()
	s.pingSentAt = t
	s.havePingSentAt = true
	s.pingMu.Unlock()
}

func (s *Session) getPingSentAt() (time.Time, bool) {
	s.pingMu.Lock()
	defer s.pingMu.Unlock()
	return s.pingSentAt, s.havePingSentAt
}

func (s *Session) recordPong() {
	s.pingMu.Lock()
	s.lastPong = time.Now()
	s.pingMu.Unlock()
}

func (s *Session) getLastPong() time.Time {
	s.pingMu.Lock()
	defer s.pingMu.Unlock()
	return s.lastPong
}

func (s *Session) resetPingState() {
	s.pingMu.Lock()
	s.havePingSentAt = false
	s.lastPong = time.Time{}
	s.pingMu.Unlock()
}
