// Package authapi is the synchronous HTTP/JSON client for the business
// backend's auth service: it requests a one-time code by email, verifies
// it, and refreshes the resulting access/refresh token pair. It never
// touches the WebSocket; the session runtime hands it a token to refresh in
// place and asks it for fresh tokens on connect.
package authapi

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-errors/errors"
	"github.com/miekg/dns"
	"github.com/wizardsardine/liana-business-session/bclog"
)

// DesktopConfig is the body of GET {api_base}/v1/desktop, the single
// configuration endpoint the installer consults to learn where the auth
// service and backend actually live.
type DesktopConfig struct {
	AuthAPIURL       string `json:"auth_api_url"`
	AuthAPIPublicKey string `json:"auth_api_public_key"`
	BackendAPIURL    string `json:"backend_api_url"`
}

// Tokens is the access/refresh token tuple returned by VerifyOTP and
// RefreshToken.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
}

// Expired reports whether t expires within margin of now, used by the
// background refresher's 5-minute threshold.
func (t Tokens) Expired(margin time.Duration, now time.Time) bool {
	return time.Unix(t.ExpiresAt, 0).Sub(now) < margin
}

// Client is a synchronous HTTP/JSON client for one authenticated email
// against one auth service instance.
type Client struct {
	httpClient *http.Client
	authURL    string
	publicKey  ed25519.PublicKey
	email      string
}

// FetchDesktopConfig retrieves apiBase's desktop configuration. It first
// runs a DNS query for apiBase's host and logs a warning if that query
// fails; the HTTP request is made either way.
func FetchDesktopConfig(apiBase string) (DesktopConfig, error) {
	if err := checkHostResolves(apiBase); err != nil {
		bclog.AuthLog.Warnf("desktop config host did not resolve: %v", err)
	}

	resp, err := http.Get(strings.TrimRight(apiBase, "/") + "/v1/desktop")
	if err != nil {
		return DesktopConfig{}, errors.Errorf("fetch desktop config: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return DesktopConfig{}, errors.Errorf("fetch desktop config: unexpected status %d", resp.StatusCode)
	}

	var cfg DesktopConfig
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return DesktopConfig{}, errors.Errorf("decode desktop config: %v", err)
	}
	return cfg, nil
}

// checkHostResolves performs a best-effort A-record query for rawURL's
// host against the first resolver in /etc/resolv.conf. It returns an error
// only when the URL has no host or the DNS exchange itself fails; a reply
// saying the name does not exist is not reported as an error. The result
// is only logged by the caller and does not block the subsequent HTTP call.
func checkHostResolves(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("no host in %q", rawURL)
	}

	conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(conf.Servers) == 0 {
		return nil
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), dns.TypeA)

	c := new(dns.Client)
	c.Timeout = 2 * time.Second

	_, _, err = c.Exchange(m, conf.Servers[0]+":"+conf.Port)
	return err
}

// NewClient constructs a Client bound to cfg's auth service, for email.
// A valid base64 ed25519 auth service public key is decoded and kept on the
// Client, and an empty or malformed key is left unset; no response
// signature is checked against the key.
func NewClient(cfg DesktopConfig, email string) *Client {
	var pub ed25519.PublicKey
	if raw, err := base64.StdEncoding.DecodeString(cfg.AuthAPIPublicKey); err == nil &&
		len(raw) == ed25519.PublicKeySize {
		pub = ed25519.PublicKey(raw)
	}
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		authURL:    strings.TrimRight(cfg.AuthAPIURL, "/"),
		publicKey:  pub,
		email:      email,
	}
}

// Email returns the email address this client was constructed for.
func (c *Client) Email() string { return c.email }

// SignInOTP requests a one-time code be sent to the client's email. HTTP
// 400/422 is surfaced as InvalidEmail; any other failure is AuthCodeFail.
func (c *Client) SignInOTP() error {
	body, _ := json.Marshal(struct {
		Email string `json:"email"`
	}{c.email})

	resp, err := c.httpClient.Post(c.authURL+"/otp/request", "application/json", bytes.NewReader(body))
	if err != nil {
		return AuthCodeFail{Detail: err.Error()}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return nil
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		detail, _ := ioutil.ReadAll(resp.Body)
		return InvalidEmail{Detail: string(detail)}
	default:
		detail, _ := ioutil.ReadAll(resp.Body)
		return AuthCodeFail{Detail: fmt.Sprintf("status %d: %s", resp.StatusCode, detail)}
	}
}

// VerifyOTP exchanges a one-time code for an access/refresh token pair.
func (c *Client) VerifyOTP(code string) (Tokens, error) {
	body, _ := json.Marshal(struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}{c.email, code})

	resp, err := c.httpClient.Post(c.authURL+"/otp/verify", "application/json", bytes.NewReader(body))
	if err != nil {
		return Tokens{}, LoginFail{Detail: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := ioutil.ReadAll(resp.Body)
		return Tokens{}, LoginFail{Detail: fmt.Sprintf("status %d: %s", resp.StatusCode, detail)}
	}

	var tokens Tokens
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return Tokens{}, LoginFail{Detail: err.Error()}
	}
	return tokens, nil
}

// RefreshToken exchanges a refresh token for a fresh access/refresh token
// pair, used by the background token refresher.
func (c *Client) RefreshToken(refreshToken string) (Tokens, error) {
	body, _ := json.Marshal(struct {
		RefreshToken string `json:"refresh_token"`
	}{refreshToken})

	resp, err := c.httpClient.Post(c.authURL+"/token/refresh", "application/json", bytes.NewReader(body))
	if err != nil {
		return Tokens{}, LoginFail{Detail: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := ioutil.ReadAll(resp.Body)
		return Tokens{}, LoginFail{Detail: fmt.Sprintf("status %d: %s", resp.StatusCode, detail)}
	}

	var tokens Tokens
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return Tokens{}, LoginFail{Detail: err.Error()}
	}
	return tokens, nil
}
