package session

import (
	"github.com/google/uuid"
	"github.com/wizardsardine/liana-business-session/protocol"
)

// Notification is any of the typed events the session runtime emits upward
// to the state reducer. The core never throws; every fault and
// every state change surfaces as one of these.
type Notification interface{ isNotification() }

// Connected is emitted once the connect handshake succeeds.
type Connected struct{}

func (Connected) isNotification() {}

// Disconnected is emitted when a live connection is lost (a read or write
// error, or a ping/pong keepalive timeout), or when a command is attempted
// while not connected.
type Disconnected struct{}

func (Disconnected) isNotification() {}

// AuthCodeSent is emitted after a successful sign-in-OTP request.
type AuthCodeSent struct{}

func (AuthCodeSent) isNotification() {}

// InvalidEmailNotice is emitted when the auth service rejects the email
// address itself.
type InvalidEmailNotice struct{ Detail string }

func (InvalidEmailNotice) isNotification() {}

// AuthCodeFailNotice is emitted for any other sign-in-OTP failure.
type AuthCodeFailNotice struct{ Detail string }

func (AuthCodeFailNotice) isNotification() {}

// LoginSuccess is emitted once verify-OTP succeeds and tokens are cached.
type LoginSuccess struct{}

func (LoginSuccess) isNotification() {}

// LoginFailNotice is emitted when verify-OTP or refresh-token fails.
type LoginFailNotice struct{ Detail string }

func (LoginFailNotice) isNotification() {}

// ErrorNotice wraps one of the typed error kinds in §7's taxonomy.
type ErrorNotice struct{ Kind ErrorKind }

func (ErrorNotice) isNotification() {}

// OrgUpdated is emitted whenever an org push is processed into the cache.
type OrgUpdated struct{ ID uuid.UUID }

func (OrgUpdated) isNotification() {}

// OrgOwnersChanged additionally fires alongside OrgUpdated when a push
// changes the org's owners list.
type OrgOwnersChanged struct{ ID uuid.UUID }

func (OrgOwnersChanged) isNotification() {}

// WalletUpdated is emitted whenever a wallet push is processed into the
// cache.
type WalletUpdated struct{ ID uuid.UUID }

func (WalletUpdated) isNotification() {}

// UserUpdated is emitted whenever a user push is processed into the cache.
type UserUpdated struct{ ID uuid.UUID }

func (UserUpdated) isNotification() {}

// ServerTimeNotice carries the server's epoch seconds, when the server
// attaches one to a pong.
type ServerTimeNotice struct{ Seconds uint64 }

func (ServerTimeNotice) isNotification() {}

// Update is a generic cache-changed signal, used for delete_user_org pushes
// and other changes that don't map to a single entity kind.
type Update struct{}

func (Update) isNotification() {}

// ErrorKind is the closed taxonomy of error notifications.
type ErrorKind interface {
	isErrorKind()
	// ShowWarning reports whether the reducer should surface this error
	// in a Warning modal, versus logging it silently.
	ShowWarning() bool
}

// WsConnectionErr is a terminal transport error: the connection is closed
// and no automatic reconnect is attempted.
type WsConnectionErr struct{ Detail string }

func (WsConnectionErr) isErrorKind()      {}
func (WsConnectionErr) ShowWarning() bool { return true }

// WsMessageHandlingErr is a protocol-level error; the session continues.
type WsMessageHandlingErr struct{ Detail string }

func (WsMessageHandlingErr) isErrorKind()      {}
func (WsMessageHandlingErr) ShowWarning() bool { return true }

// TokenMissingErr means no usable token could be obtained for connect.
type TokenMissingErr struct{}

func (TokenMissingErr) isErrorKind()      {}
func (TokenMissingErr) ShowWarning() bool { return true }

// RequestTimeoutErr means a pending request exhausted its retries.
type RequestTimeoutErr struct{ Method protocol.RequestMethod }

func (RequestTimeoutErr) isErrorKind()      {}
func (RequestTimeoutErr) ShowWarning() bool { return true }
