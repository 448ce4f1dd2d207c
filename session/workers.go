package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wizardsardine/liana-business-session/bclog"
	"github.com/wizardsardine/liana-business-session/protocol"
)

// senderLoop drains sendCh, encoding and writing each request, and inserting
// an entry into the pending table when one is expected.
func (s *Session) senderLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.quit:
			return
		case req, ok := <-s.sendCh:
			if !ok {
				return
			}
			s.sendRequest(req)
		}
	}
}

func (s *Session) sendRequest(req protocol.Request) {
	id := uuid.New()
	token := s.currentAccessToken()

	frame, err := protocol.EncodeRequest(req, token, id)
	if err != nil {
		s.emit(ErrorNotice{Kind: WsMessageHandlingErr{Detail: err.Error()}})
		return
	}

	if expected, wantsResponse := protocol.ExpectedResponse(req.Method()); wantsResponse {
		s.pending.insert(id, req, expected, time.Now())
		if s.metrics != nil {
			s.metrics.PendingSize.Set(float64(s.pending.len()))
		}
	}

	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()
	if conn == nil {
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		s.handleConnError(err)
		return
	}
	if s.metrics != nil {
		s.metrics.RequestsSent.Inc()
	}
}

// receiverLoop reads frames off the connection until it errors or the
// session quits.
func (s *Session) receiverLoop() {
	defer s.wg.Done()
	for {
		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()
		if conn == nil {
			return
		}

		msgType, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
			}
			s.handleConnError(err)
			return
		}

		resp, reqID, err := protocol.DecodeResponseFrame(msgType == websocket.TextMessage, data)
		if err != nil {
			s.emit(ErrorNotice{Kind: WsMessageHandlingErr{Detail: err.Error()}})
			continue
		}
		s.handleResponse(resp, reqID)
	}
}

func (s *Session) handleResponse(resp protocol.Response, reqID *uuid.UUID) {
	if errResp, isErr := resp.(protocol.ErrorResponse); isErr && errResp.Error.RequestID != nil {
		if inner, err := uuid.Parse(*errResp.Error.RequestID); err == nil {
			reqID = &inner
		}
	}
	if reqID != nil {
		entry, ok := s.pending.remove(*reqID)
		if s.metrics != nil {
			s.metrics.PendingSize.Set(float64(s.pending.len()))
		}
		if ok && resp.Method() != entry.expected {
			s.emit(ErrorNotice{Kind: WsMessageHandlingErr{
				Detail: fmt.Sprintf("expected %s response, got %s", entry.expected, resp.Method()),
			}})
			return
		}
	}

	switch r := resp.(type) {
	case protocol.PongResponse:
		s.recordPong()
		if r.ServerTime != nil {
			s.emit(ServerTimeNotice{Seconds: *r.ServerTime})
		}
	case protocol.OrgResponse:
		prevOwners := s.snapshotOwners(r.Org.ID)
		needUsers, needWallets := s.cache.UpsertOrg(r.Org)
		s.emit(OrgUpdated{ID: r.Org.ID})
		if ownersChanged(prevOwners, r.Org.Owners) {
			s.emit(OrgOwnersChanged{ID: r.Org.ID})
		}
		for _, id := range needUsers {
			s.enqueue(protocol.FetchUserRequest{ID: id})
		}
		for _, id := range needWallets {
			s.enqueue(protocol.FetchWalletRequest{ID: id})
		}
	case protocol.WalletResponse:
		needUsers := s.cache.UpsertWallet(r.Wallet)
		s.emit(WalletUpdated{ID: r.Wallet.ID})
		for _, id := range needUsers {
			s.enqueue(protocol.FetchUserRequest{ID: id})
		}
	case protocol.UserResponse:
		needUsers := s.cache.UpsertUser(r.User)
		s.emit(UserUpdated{ID: r.User.UUID})
		for _, id := range needUsers {
			s.enqueue(protocol.FetchUserRequest{ID: id})
		}
	case protocol.DeleteUserOrgResponse:
		if s.cache.DeleteUserOrg(r.User, r.Org, s.UserID()) {
			s.emit(Update{})
		}
	case protocol.ErrorResponse:
		bclog.SessLog.Warnf("server error %s: %s", r.Error.Code, r.Error.Message)
		s.emit(ErrorNotice{Kind: WsMessageHandlingErr{Detail: r.Error.Message}})
	default:
		s.emit(ErrorNotice{Kind: WsMessageHandlingErr{Detail: fmt.Sprintf("unexpected response %T", resp)}})
	}
}

func (s *Session) snapshotOwners(orgID uuid.UUID) []uuid.UUID {
	org, ok := s.cache.Org(orgID)
	if !ok {
		return nil
	}
	return org.Owners
}

func ownersChanged(prev, cur []uuid.UUID) bool {
	if len(prev) != len(cur) {
		return true
	}
	prevSet := make(map[uuid.UUID]struct{}, len(prev))
	for _, id := range prev {
		prevSet[id] = struct{}{}
	}
	for _, id := range cur {
		if _, ok := prevSet[id]; !ok {
			return true
		}
	}
	return false
}

// pingLoop sends a keepalive ping immediately on handshake, then every
// PingInterval.
func (s *Session) pingLoop() {
	defer s.wg.Done()
	s.setPingSentAt(time.Now())
	s.enqueue(protocol.PingRequest{})

	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			s.setPingSentAt(time.Now())
			s.enqueue(protocol.PingRequest{})
		}
	}
}

// retryLoop periodically checks for a missed pong and for requests that
// have exceeded RequestTimeout, resending up to MaxRequestRetries times
// before giving up on a request.
func (s *Session) retryLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.RetryCheckPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			s.checkPingTimeout()
			s.checkRequestTimeouts()
		}
	}
}

func (s *Session) checkPingTimeout() {
	sentAt, ok := s.getPingSentAt()
	if !ok {
		return
	}
	if s.getLastPong().After(sentAt) {
		return
	}
	if time.Since(sentAt) >= s.cfg.PingTimeout {
		s.handleConnError(fmt.Errorf("ping timeout after %s", s.cfg.PingTimeout))
	}
}

func (s *Session) checkRequestTimeouts() {
	timedOut := s.pending.timedOut(s.cfg.RequestTimeout, time.Now())
	for id, entry := range timedOut {
		if entry.attempts >= s.cfg.MaxRequestRetries {
			s.pending.remove(id)
			if s.metrics != nil {
				s.metrics.RequestTimeouts.Inc()
				s.metrics.PendingSize.Set(float64(s.pending.len()))
			}
			s.emit(ErrorNotice{Kind: RequestTimeoutErr{Method: entry.request.Method()}})
			continue
		}
		s.pending.touch(id, time.Now())
		s.resend(id, entry.request)
		if s.metrics != nil {
			s.metrics.RequestsRetried.Inc()
		}
	}
}

func (s *Session) resend(id uuid.UUID, req protocol.Request) {
	token := s.currentAccessToken()
	frame, err := protocol.EncodeRequest(req, token, id)
	if err != nil {
		return
	}
	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()
	if conn == nil {
		return
	}
	conn.WriteMessage(websocket.TextMessage, frame)
}
