package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"gitlab.com/NebulousLabs/fastrand"

	"github.com/wizardsardine/liana-business-session/bclog"
	"github.com/wizardsardine/liana-business-session/config"
	"github.com/wizardsardine/liana-business-session/protocol"
)

// dialBackoff is the reconnect delay schedule: the
// first attempt is immediate, then delays grow 1s, 2s, 4s before the dial is
// given up on. Every wait beyond the first gets up to 250ms of jitter so a
// fleet of clients reconnecting after the same outage doesn't redial in
// lockstep.
var dialBackoff = []time.Duration{0, time.Second, 2 * time.Second, 4 * time.Second}

// dialWithBackoff dials wsURL, retrying on the schedule in dialBackoff.
// quit, if closed, aborts a pending backoff wait immediately.
func dialWithBackoff(quit <-chan struct{}, wsURL string, handshakeTimeout time.Duration) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}

	var lastErr error
	for attempt, wait := range dialBackoff {
		if wait > 0 {
			wait += time.Duration(fastrand.Intn(250)) * time.Millisecond
			select {
			case <-time.After(wait):
			case <-quit:
				return nil, fmt.Errorf("dial cancelled")
			}
		}

		conn, _, err := dialer.Dial(wsURL, nil)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		bclog.SessLog.Warnf("dial attempt %d/%d failed: %v", attempt+1, len(dialBackoff), err)
	}
	return nil, lastErr
}

// handshake performs the connect request/response exchange: send
// connect{version}, read one frame within handshakeTimeout, require it to
// be a matching-version connected response.
func (s *Session) handshake(conn *websocket.Conn, token string) (uuid.UUID, error) {
	id := uuid.New()
	frame, err := protocol.EncodeRequest(protocol.ConnectRequest{Version: config.ProtocolVersion}, token, id)
	if err != nil {
		return uuid.UUID{}, err
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return uuid.UUID{}, err
	}

	conn.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout))
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		return uuid.UUID{}, err
	}
	conn.SetReadDeadline(time.Time{})

	resp, _, err := protocol.DecodeResponseFrame(msgType == websocket.TextMessage, data)
	if err != nil {
		return uuid.UUID{}, err
	}

	connected, ok := resp.(protocol.ConnectedResponse)
	if !ok {
		if errResp, isErr := resp.(protocol.ErrorResponse); isErr {
			return uuid.UUID{}, fmt.Errorf("handshake rejected: %s", errResp.Error.Message)
		}
		return uuid.UUID{}, fmt.Errorf("unexpected handshake response %T", resp)
	}
	if connected.Version != config.ProtocolVersion {
		return uuid.UUID{}, fmt.Errorf("protocol version mismatch: client speaks %d, server speaks %d",
			config.ProtocolVersion, connected.Version)
	}
	return connected.User, nil
}
