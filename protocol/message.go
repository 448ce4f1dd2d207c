// Package protocol implements the wire codec: a single-text-frame JSON
// protocol exchanging Request/Response sum types
// between the installer and the business backend over one persistent
// WebSocket. Decoding is strict — unknown fields, missing required fields,
// and enum tags outside the defined set all fail with DeserializationFailed.
package protocol

import (
	"bytes"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/wizardsardine/liana-business-session/types"
)

// RequestMethod is the lowercase snake-case tag identifying a request.
type RequestMethod string

// The set of request methods.
const (
	MethodConnect           RequestMethod = "connect"
	MethodPing              RequestMethod = "ping"
	MethodClose             RequestMethod = "close"
	MethodFetchOrg          RequestMethod = "fetch_org"
	MethodFetchWallet       RequestMethod = "fetch_wallet"
	MethodFetchUser         RequestMethod = "fetch_user"
	MethodEditWallet        RequestMethod = "edit_wallet"
	MethodEditXpub          RequestMethod = "edit_xpub"
	MethodDeviceRegistered  RequestMethod = "device_registered"
)

// ResponseMethod is the lowercase snake-case tag identifying a response.
type ResponseMethod string

// The set of response methods.
const (
	MethodConnected      ResponseMethod = "connected"
	MethodPong           ResponseMethod = "pong"
	MethodOrg            ResponseMethod = "org"
	MethodWallet         ResponseMethod = "wallet"
	MethodUser           ResponseMethod = "user"
	MethodDeleteUserOrg  ResponseMethod = "delete_user_org"
	MethodErrorResponse  ResponseMethod = "error"
)

// ExpectedResponse returns the response method a request of method m should
// provoke, and whether one is expected at all (close expects none).
func ExpectedResponse(m RequestMethod) (ResponseMethod, bool) {
	switch m {
	case MethodConnect:
		return MethodConnected, true
	case MethodPing:
		return MethodPong, true
	case MethodClose:
		return "", false
	case MethodFetchOrg:
		return MethodOrg, true
	case MethodFetchWallet, MethodEditWallet, MethodEditXpub:
		return MethodWallet, true
	case MethodFetchUser:
		return MethodUser, true
	case MethodDeviceRegistered:
		return MethodWallet, true
	default:
		return "", false
	}
}

// RegistrationInfos describes a hardware device's registration result,
// reported to the backend after the installer registers the wallet
// descriptor on the device. The core treats its contents as opaque beyond
// the fingerprint used to key local bookkeeping.
type RegistrationInfos struct {
	Fingerprint   types.Fingerprint `json:"fingerprint"`
	DeviceKind    string            `json:"device_kind"`
	DeviceVersion string            `json:"device_version"`
}

// Request is any of the protocol's outbound method values.
type Request interface {
	Method() RequestMethod
}

// ConnectRequest opens the session and announces the protocol version the
// client speaks.
type ConnectRequest struct{ Version uint8 }

// Method implements Request.
func (ConnectRequest) Method() RequestMethod { return MethodConnect }

// PingRequest asks the server to reply with pong; carries no payload.
type PingRequest struct{}

// Method implements Request.
func (PingRequest) Method() RequestMethod { return MethodPing }

// CloseRequest asks the server to close the connection gracefully; carries
// no payload and expects no response.
type CloseRequest struct{}

// Method implements Request.
func (CloseRequest) Method() RequestMethod { return MethodClose }

// FetchOrgRequest fetches an organization by id.
type FetchOrgRequest struct{ ID uuid.UUID }

// Method implements Request.
func (FetchOrgRequest) Method() RequestMethod { return MethodFetchOrg }

// FetchWalletRequest fetches a wallet by id.
type FetchWalletRequest struct{ ID uuid.UUID }

// Method implements Request.
func (FetchWalletRequest) Method() RequestMethod { return MethodFetchWallet }

// FetchUserRequest fetches a user by id.
type FetchUserRequest struct{ ID uuid.UUID }

// Method implements Request.
func (FetchUserRequest) Method() RequestMethod { return MethodFetchUser }

// EditWalletRequest submits a full wallet snapshot for the server to merge
// and broadcast.
type EditWalletRequest struct{ Wallet types.Wallet }

// Method implements Request.
func (EditWalletRequest) Method() RequestMethod { return MethodEditWallet }

// EditXpubRequest sets or clears the xpub of a single key. A nil Xpub
// clears it.
type EditXpubRequest struct {
	WalletID uuid.UUID
	KeyID    uint8
	Xpub     *types.Xpub
}

// Method implements Request.
func (EditXpubRequest) Method() RequestMethod { return MethodEditXpub }

// DeviceRegisteredRequest reports that a hardware device finished
// registering the wallet descriptor.
type DeviceRegisteredRequest struct {
	WalletID uuid.UUID
	Infos    RegistrationInfos
}

// Method implements Request.
func (DeviceRegisteredRequest) Method() RequestMethod { return MethodDeviceRegistered }

// Response is any of the protocol's inbound method values.
type Response interface {
	Method() ResponseMethod
}

// ConnectedResponse acknowledges a successful handshake.
type ConnectedResponse struct {
	Version uint8
	User    uuid.UUID
}

// Method implements Response.
func (ConnectedResponse) Method() ResponseMethod { return MethodConnected }

// PongResponse answers a ping. ServerTime carries the server's epoch
// seconds when available; nil when the server
// omits it.
type PongResponse struct {
	ServerTime *uint64
}

// Method implements Response.
func (PongResponse) Method() ResponseMethod { return MethodPong }

// OrgResponse pushes an organization snapshot.
type OrgResponse struct{ Org types.Org }

// Method implements Response.
func (OrgResponse) Method() ResponseMethod { return MethodOrg }

// WalletResponse pushes a wallet snapshot.
type WalletResponse struct{ Wallet types.Wallet }

// Method implements Response.
func (WalletResponse) Method() ResponseMethod { return MethodWallet }

// UserResponse pushes a user snapshot.
type UserResponse struct{ User types.User }

// Method implements Response.
func (UserResponse) Method() ResponseMethod { return MethodUser }

// DeleteUserOrgResponse announces that user was removed from org.
type DeleteUserOrgResponse struct {
	User uuid.UUID
	Org  uuid.UUID
}

// Method implements Response.
func (DeleteUserOrgResponse) Method() ResponseMethod { return MethodDeleteUserOrg }

// WireError is the body of an error response. RequestID, when present,
// overrides the outer frame's request id for correlation purposes.
type WireError struct {
	Code      string
	Message   string
	RequestID *string
}

// ErrorResponse carries a server-reported failure.
type ErrorResponse struct{ Error WireError }

// Method implements Response.
func (ErrorResponse) Method() ResponseMethod { return MethodErrorResponse }

// requestEnvelope is the on-wire shape of a request frame.
type requestEnvelope struct {
	Type      string          `json:"type"`
	Token     string          `json:"token"`
	RequestID string          `json:"request_id"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// responseEnvelope is the on-wire shape of a response frame.
type responseEnvelope struct {
	Type      string          `json:"type"`
	RequestID *string         `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     json.RawMessage `json:"error,omitempty"`
}

// decodeStrict decodes data into v, rejecting any field not present on v's
// type. The wire protocol requires strict decoding.
func decodeStrict(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// EncodeRequest serializes req as a complete wire frame, assigning it token
// and requestID.
func EncodeRequest(req Request, token string, requestID uuid.UUID) ([]byte, error) {
	payload, err := requestPayload(req)
	if err != nil {
		return nil, err
	}
	env := requestEnvelope{
		Type:      string(req.Method()),
		Token:     token,
		RequestID: requestID.String(),
		Payload:   payload,
	}
	return json.Marshal(env)
}

func requestPayload(req Request) (json.RawMessage, error) {
	switch r := req.(type) {
	case ConnectRequest:
		return json.Marshal(struct {
			Version uint8 `json:"version"`
		}{r.Version})
	case PingRequest, CloseRequest:
		return nil, nil
	case FetchOrgRequest:
		return json.Marshal(struct {
			ID string `json:"id"`
		}{r.ID.String()})
	case FetchWalletRequest:
		return json.Marshal(struct {
			ID string `json:"id"`
		}{r.ID.String()})
	case FetchUserRequest:
		return json.Marshal(struct {
			ID string `json:"id"`
		}{r.ID.String()})
	case EditWalletRequest:
		return json.Marshal(struct {
			Wallet types.Wallet `json:"wallet"`
		}{r.Wallet})
	case EditXpubRequest:
		return json.Marshal(struct {
			WalletID string      `json:"wallet_id"`
			KeyID    uint8       `json:"key_id"`
			Xpub     *types.Xpub `json:"xpub,omitempty"`
		}{r.WalletID.String(), r.KeyID, r.Xpub})
	case DeviceRegisteredRequest:
		return json.Marshal(struct {
			WalletID string            `json:"wallet_id"`
			Infos    RegistrationInfos `json:"infos"`
		}{r.WalletID.String(), r.Infos})
	default:
		return nil, deserFailed("unknown request type %T", req)
	}
}

// DecodeRequest parses a complete wire frame into its Request, token and
// request id. Used by the test double server and by DecodeRequestFrame.
func DecodeRequest(data []byte) (Request, string, uuid.UUID, error) {
	var env requestEnvelope
	if err := decodeStrict(data, &env); err != nil {
		return nil, "", uuid.UUID{}, deserFailed("envelope: %v", err)
	}
	id, err := uuid.Parse(env.RequestID)
	if err != nil {
		return nil, "", uuid.UUID{}, deserFailed("request_id: %v", err)
	}
	req, err := decodeRequestPayload(RequestMethod(env.Type), env.Payload)
	if err != nil {
		return nil, "", uuid.UUID{}, err
	}
	return req, env.Token, id, nil
}

func decodeRequestPayload(method RequestMethod, payload json.RawMessage) (Request, error) {
	switch method {
	case MethodConnect:
		var p struct {
			Version uint8 `json:"version"`
		}
		if err := decodeStrict(payload, &p); err != nil {
			return nil, deserFailed("connect payload: %v", err)
		}
		return ConnectRequest{Version: p.Version}, nil
	case MethodPing:
		return PingRequest{}, nil
	case MethodClose:
		return CloseRequest{}, nil
	case MethodFetchOrg, MethodFetchWallet, MethodFetchUser:
		var p struct {
			ID string `json:"id"`
		}
		if err := decodeStrict(payload, &p); err != nil {
			return nil, deserFailed("%s payload: %v", method, err)
		}
		id, err := uuid.Parse(p.ID)
		if err != nil {
			return nil, deserFailed("%s id: %v", method, err)
		}
		switch method {
		case MethodFetchOrg:
			return FetchOrgRequest{ID: id}, nil
		case MethodFetchWallet:
			return FetchWalletRequest{ID: id}, nil
		default:
			return FetchUserRequest{ID: id}, nil
		}
	case MethodEditWallet:
		var p struct {
			Wallet types.Wallet `json:"wallet"`
		}
		if err := decodeStrict(payload, &p); err != nil {
			return nil, deserFailed("edit_wallet payload: %v", err)
		}
		return EditWalletRequest{Wallet: p.Wallet}, nil
	case MethodEditXpub:
		var p struct {
			WalletID string      `json:"wallet_id"`
			KeyID    uint8       `json:"key_id"`
			Xpub     *types.Xpub `json:"xpub,omitempty"`
		}
		if err := decodeStrict(payload, &p); err != nil {
			return nil, deserFailed("edit_xpub payload: %v", err)
		}
		walletID, err := uuid.Parse(p.WalletID)
		if err != nil {
			return nil, deserFailed("edit_xpub wallet_id: %v", err)
		}
		return EditXpubRequest{WalletID: walletID, KeyID: p.KeyID, Xpub: p.Xpub}, nil
	case MethodDeviceRegistered:
		var p struct {
			WalletID string            `json:"wallet_id"`
			Infos    RegistrationInfos `json:"infos"`
		}
		if err := decodeStrict(payload, &p); err != nil {
			return nil, deserFailed("device_registered payload: %v", err)
		}
		walletID, err := uuid.Parse(p.WalletID)
		if err != nil {
			return nil, deserFailed("device_registered wallet_id: %v", err)
		}
		return DeviceRegisteredRequest{WalletID: walletID, Infos: p.Infos}, nil
	default:
		return nil, deserFailed("unknown request method %q", method)
	}
}

// EncodeResponse serializes resp as a complete wire frame. requestID is nil
// for unsolicited server pushes.
func EncodeResponse(resp Response, requestID *uuid.UUID) ([]byte, error) {
	payload, errPayload, err := responsePayload(resp)
	if err != nil {
		return nil, err
	}
	var idStr *string
	if requestID != nil {
		s := requestID.String()
		idStr = &s
	}
	env := responseEnvelope{
		Type:      string(resp.Method()),
		RequestID: idStr,
		Payload:   payload,
		Error:     errPayload,
	}
	return json.Marshal(env)
}

func responsePayload(resp Response) (payload json.RawMessage, errPayload json.RawMessage, err error) {
	switch r := resp.(type) {
	case ConnectedResponse:
		payload, err = json.Marshal(struct {
			Version uint8  `json:"version"`
			User    string `json:"user"`
		}{r.Version, r.User.String()})
	case PongResponse:
		if r.ServerTime == nil {
			return nil, nil, nil
		}
		payload, err = json.Marshal(struct {
			ServerTime uint64 `json:"server_time"`
		}{*r.ServerTime})
	case OrgResponse:
		payload, err = json.Marshal(r.Org)
	case WalletResponse:
		payload, err = json.Marshal(r.Wallet)
	case UserResponse:
		payload, err = json.Marshal(r.User)
	case DeleteUserOrgResponse:
		payload, err = json.Marshal(struct {
			User string `json:"user"`
			Org  string `json:"org"`
		}{r.User.String(), r.Org.String()})
	case ErrorResponse:
		errPayload, err = json.Marshal(struct {
			Code      string  `json:"code"`
			Message   string  `json:"message"`
			RequestID *string `json:"request_id,omitempty"`
		}{r.Error.Code, r.Error.Message, r.Error.RequestID})
	default:
		return nil, nil, deserFailed("unknown response type %T", resp)
	}
	return payload, errPayload, err
}

// DecodeResponse parses a complete wire frame into its Response and
// correlation id (nil for a response with no request_id).
func DecodeResponse(data []byte) (Response, *uuid.UUID, error) {
	var env responseEnvelope
	if err := decodeStrict(data, &env); err != nil {
		return nil, nil, deserFailed("envelope: %v", err)
	}
	var id *uuid.UUID
	if env.RequestID != nil {
		parsed, err := uuid.Parse(*env.RequestID)
		if err != nil {
			return nil, nil, deserFailed("request_id: %v", err)
		}
		id = &parsed
	}
	resp, err := decodeResponsePayload(ResponseMethod(env.Type), env.Payload, env.Error)
	if err != nil {
		return nil, nil, err
	}
	return resp, id, nil
}

func decodeResponsePayload(method ResponseMethod, payload, errPayload json.RawMessage) (Response, error) {
	if method == MethodErrorResponse {
		var p struct {
			Code      string  `json:"code"`
			Message   string  `json:"message"`
			RequestID *string `json:"request_id,omitempty"`
		}
		if err := decodeStrict(errPayload, &p); err != nil {
			return nil, deserFailed("error payload: %v", err)
		}
		return ErrorResponse{Error: WireError{Code: p.Code, Message: p.Message, RequestID: p.RequestID}}, nil
	}
	switch method {
	case MethodConnected:
		var p struct {
			Version uint8  `json:"version"`
			User    string `json:"user"`
		}
		if err := decodeStrict(payload, &p); err != nil {
			return nil, deserFailed("connected payload: %v", err)
		}
		user, err := uuid.Parse(p.User)
		if err != nil {
			return nil, deserFailed("connected user: %v", err)
		}
		return ConnectedResponse{Version: p.Version, User: user}, nil
	case MethodPong:
		if len(payload) == 0 {
			return PongResponse{}, nil
		}
		var p struct {
			ServerTime *uint64 `json:"server_time,omitempty"`
		}
		if err := decodeStrict(payload, &p); err != nil {
			return nil, deserFailed("pong payload: %v", err)
		}
		return PongResponse{ServerTime: p.ServerTime}, nil
	case MethodOrg:
		var org types.Org
		if err := decodeStrict(payload, &org); err != nil {
			return nil, deserFailed("org payload: %v", err)
		}
		return OrgResponse{Org: org}, nil
	case MethodWallet:
		var wallet types.Wallet
		if err := decodeStrict(payload, &wallet); err != nil {
			return nil, deserFailed("wallet payload: %v", err)
		}
		return WalletResponse{Wallet: wallet}, nil
	case MethodUser:
		var user types.User
		if err := decodeStrict(payload, &user); err != nil {
			return nil, deserFailed("user payload: %v", err)
		}
		return UserResponse{User: user}, nil
	case MethodDeleteUserOrg:
		var p struct {
			User string `json:"user"`
			Org  string `json:"org"`
		}
		if err := decodeStrict(payload, &p); err != nil {
			return nil, deserFailed("delete_user_org payload: %v", err)
		}
		user, err := uuid.Parse(p.User)
		if err != nil {
			return nil, deserFailed("delete_user_org user: %v", err)
		}
		org, err := uuid.Parse(p.Org)
		if err != nil {
			return nil, deserFailed("delete_user_org org: %v", err)
		}
		return DeleteUserOrgResponse{User: user, Org: org}, nil
	default:
		return nil, deserFailed("unknown response method %q", method)
	}
}

// DecodeResponseFrame decodes a response, checking the frame's transport
// type first: only text frames carry protocol messages.
func DecodeResponseFrame(isText bool, data []byte) (Response, *uuid.UUID, error) {
	if !isText {
		return nil, nil, InvalidMessageType{}
	}
	return DecodeResponse(data)
}

// DecodeRequestFrame is the request-side analog of DecodeResponseFrame,
// used by the in-process test double server.
func DecodeRequestFrame(isText bool, data []byte) (Request, string, uuid.UUID, error) {
	if !isText {
		return nil, "", uuid.UUID{}, InvalidMessageType{}
	}
	return DecodeRequest(data)
}
