// Package tokencache implements the on-disk, multi-account token store: one
// JSON file per network, holding every signed-in account's access/refresh
// token pair, written with a write-to-temp-then-rename atomic replace so a
// concurrent reader never observes a partial write.
//
// Alongside the normative JSON file, each write mints a small detached
// integrity macaroon (gopkg.in/macaroon.v2) binding a hash of the file's
// canonical bytes; a mismatch on load is treated as a disk error, logged
// and tolerated rather than a hard failure — the core prefers running
// without persistence to refusing to start.
package tokencache

import (
	"crypto/sha256"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/go-errors/errors"
	macaroon "gopkg.in/macaroon.v2"

	"github.com/wizardsardine/liana-business-session/authapi"
	"github.com/wizardsardine/liana-business-session/bclog"
	"github.com/wizardsardine/liana-business-session/config"
)

// Account is one cached identity: an email and its current token pair.
type Account struct {
	Email  string         `json:"email"`
	Tokens authapi.Tokens `json:"tokens"`
}

// Cache is the full on-disk contents for one network.
type Cache struct {
	Accounts []Account `json:"accounts"`
}

func fileName(dir string, network config.Network) string {
	return filepath.Join(dir, string(network)+"-tokens.json")
}

func macFileName(dir string, network config.Network) string {
	return filepath.Join(dir, string(network)+"-tokens.mac")
}

// FromFile returns the current on-disk contents for network in dir. A
// missing file is not an error; it returns an empty Cache. Any other I/O or
// parse error is surfaced to the caller, who should log and tolerate it
// rather than fail startup.
func FromFile(dir string, network config.Network) (Cache, error) {
	path := fileName(dir, network)

	data, err := ioutil.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Cache{}, nil
		}
		return Cache{}, errors.Errorf("read token cache: %v", err)
	}

	if err := verifyIntegrity(dir, network, data); err != nil {
		bclog.CchLog.Warnf("token cache integrity check failed for %s: %v", path, err)
	}

	var c Cache
	if err := json.Unmarshal(data, &c); err != nil {
		return Cache{}, errors.Errorf("parse token cache: %v", err)
	}
	return c, nil
}

// Update upserts the entry for authClient's email with tokens, replacing
// any prior identity for that email when replaceIdentity is true (used when
// the same email re-authenticates with a new refresh token family), and
// returns the canonical stored tokens.
func Update(dir string, network config.Network, tokens authapi.Tokens,
	authClient *authapi.Client, replaceIdentity bool) (authapi.Tokens, error) {

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return authapi.Tokens{}, errors.Errorf("create token cache dir: %v", err)
	}

	cur, err := FromFile(dir, network)
	if err != nil {
		bclog.CchLog.Warnf("token cache unreadable, starting fresh: %v", err)
		cur = Cache{}
	}

	email := authClient.Email()
	idx := -1
	for i, acc := range cur.Accounts {
		if acc.Email == email {
			idx = i
			break
		}
	}

	switch {
	case idx < 0:
		cur.Accounts = append(cur.Accounts, Account{Email: email, Tokens: tokens})
	case replaceIdentity:
		// Drop whatever the stale entry carried instead of merging into
		// it — relevant once Account grows fields beyond Tokens that
		// shouldn't survive a re-authentication.
		cur.Accounts[idx] = Account{Email: email, Tokens: tokens}
	default:
		cur.Accounts[idx].Tokens = tokens
	}

	if err := writeAtomic(dir, network, cur); err != nil {
		return authapi.Tokens{}, err
	}
	return tokens, nil
}

// Filter rewrites the on-disk cache to hold only accounts whose email is in
// keepEmails, used on logout-adjacent cleanups where stale identities
// should be dropped entirely.
func Filter(dir string, network config.Network, keepEmails map[string]struct{}) error {
	cur, err := FromFile(dir, network)
	if err != nil {
		return err
	}

	kept := cur.Accounts[:0]
	for _, acc := range cur.Accounts {
		if _, ok := keepEmails[acc.Email]; ok {
			kept = append(kept, acc)
		}
	}
	cur.Accounts = kept

	return writeAtomic(dir, network, cur)
}

// Remove drops a single email from the on-disk cache, used by Session's
// logout.
func Remove(dir string, network config.Network, email string) error {
	cur, err := FromFile(dir, network)
	if err != nil {
		return err
	}

	kept := cur.Accounts[:0]
	for _, acc := range cur.Accounts {
		if acc.Email != email {
			kept = append(kept, acc)
		}
	}
	cur.Accounts = kept

	return writeAtomic(dir, network, cur)
}

// writeAtomic serializes c and replaces the on-disk file via
// write-to-temp-then-rename, so concurrent readers only ever see the
// previous or the new complete contents.
func writeAtomic(dir string, network config.Network, c Cache) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Errorf("marshal token cache: %v", err)
	}

	path := fileName(dir, network)
	tmp, err := ioutil.TempFile(dir, ".tokens-*.tmp")
	if err != nil {
		return errors.Errorf("create temp token cache file: %v", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Errorf("write temp token cache file: %v", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Errorf("sync temp token cache file: %v", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Errorf("close temp token cache file: %v", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Errorf("replace token cache file: %v", err)
	}

	if err := writeIntegrity(dir, network, data); err != nil {
		bclog.CchLog.Warnf("failed to write token cache integrity macaroon: %v", err)
	}
	return nil
}

// macaroonRootKey is fixed process-wide: the macaroon here is a detached
// tamper-evidence check against accidental truncation/corruption on this
// machine, not a network-facing credential, so a stable local root key is
// sufficient.
var macaroonRootKey = []byte("liana-business-session-token-cache-integrity")

func writeIntegrity(dir string, network config.Network, contents []byte) error {
	sum := sha256.Sum256(contents)

	m, err := macaroon.New(macaroonRootKey, []byte("tokencache"), "liana-business-session", macaroon.LatestVersion)
	if err != nil {
		return err
	}
	if err := m.AddFirstPartyCaveat(append([]byte("sha256="), sum[:]...)); err != nil {
		return err
	}

	data, err := m.MarshalBinary()
	if err != nil {
		return err
	}

	return ioutil.WriteFile(macFileName(dir, network), data, 0o600)
}

func verifyIntegrity(dir string, network config.Network, contents []byte) error {
	macData, err := ioutil.ReadFile(macFileName(dir, network))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var m macaroon.Macaroon
	if err := m.UnmarshalBinary(macData); err != nil {
		return err
	}

	sum := sha256.Sum256(contents)
	want := string(append([]byte("sha256="), sum[:]...))

	for _, cav := range m.Caveats() {
		if string(cav.Id) == want {
			return nil
		}
	}
	return errors.New("token cache contents do not match stored integrity macaroon")
}
