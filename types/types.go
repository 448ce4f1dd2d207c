// Package types defines the entities shared by every layer of the session
// core: organizations, users, wallets, and the policy template that
// describes a Liana-style miniscript wallet under construction.
//
// Every entity is keyed by a 128-bit UUID and carries optional
// last-edited/last-editor bookkeeping used by the conflict detector. None of
// these types know how to reach the network; they are plain data, cloned on
// every read out of the entity caches.
package types

import (
	"time"

	"github.com/google/uuid"
)

// ID is a 128-bit entity identifier shared by orgs, users and wallets.
type ID = uuid.UUID

// Fingerprint is a 32-bit BIP32 master-key identifier.
type Fingerprint uint32

// UserRole is the role assigned to a user by an organization administrator.
type UserRole string

// The set of roles a User can hold.
const (
	RoleWizardSardineAdmin UserRole = "wizard_sardine_admin"
	RoleWalletManager      UserRole = "wallet_manager"
	RoleParticipant        UserRole = "participant"
)

// Valid reports whether r is one of the defined roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleWizardSardineAdmin, RoleWalletManager, RoleParticipant:
		return true
	}
	return false
}

// WalletStatus is the raw server-side lifecycle stage of a wallet.
type WalletStatus string

// The set of statuses a Wallet can be in, in the order the installer drives
// a wallet through them.
const (
	StatusDrafted      WalletStatus = "drafted"
	StatusCreated      WalletStatus = "created"
	StatusLocked       WalletStatus = "locked"
	StatusValidated    WalletStatus = "validated"
	StatusRegistration WalletStatus = "registration"
	StatusFinalized    WalletStatus = "finalized"
)

// Valid reports whether s is one of the defined statuses.
func (s WalletStatus) Valid() bool {
	switch s {
	case StatusDrafted, StatusCreated, StatusLocked, StatusValidated,
		StatusRegistration, StatusFinalized:
		return true
	}
	return false
}

// KeyType classifies the role a key plays within a policy template.
type KeyType string

// The set of key types.
const (
	KeyInternal  KeyType = "internal"
	KeyExternal  KeyType = "external"
	KeyCosigner  KeyType = "cosigner"
	KeySafetyNet KeyType = "safety_net"
)

// Valid reports whether k is one of the defined key types.
func (k KeyType) Valid() bool {
	switch k {
	case KeyInternal, KeyExternal, KeyCosigner, KeySafetyNet:
		return true
	}
	return false
}

// XpubSource identifies how an extended public key was obtained.
type XpubSource string

// The set of xpub sources.
const (
	XpubSourceDevice XpubSource = "device"
	XpubSourceFile   XpubSource = "file"
	XpubSourcePasted XpubSource = "pasted"
)

// Valid reports whether s is one of the defined xpub sources.
func (s XpubSource) Valid() bool {
	switch s {
	case XpubSourceDevice, XpubSourceFile, XpubSourcePasted:
		return true
	}
	return false
}

// KeyIdentityKind tags the variant held by a KeyIdentity.
type KeyIdentityKind string

// The set of key identity kinds.
const (
	IdentityEmail KeyIdentityKind = "email"
	IdentityToken KeyIdentityKind = "token"
	IdentityOther KeyIdentityKind = "other"
)

// Valid reports whether k is one of the defined identity kinds.
func (k KeyIdentityKind) Valid() bool {
	switch k {
	case IdentityEmail, IdentityToken, IdentityOther:
		return true
	}
	return false
}

// KeyIdentity is a tagged union identifying who, or what service, controls a
// key. Exactly one of Email, Token or Other is meaningful, selected by Kind.
type KeyIdentity struct {
	Kind  KeyIdentityKind `json:"kind"`
	Email string          `json:"email,omitempty"`
	Token string          `json:"token,omitempty"`
	Other string          `json:"other,omitempty"`
}

// Xpub is an extended public key along with the metadata describing where it
// came from.
type Xpub struct {
	Value         string      `json:"value"`
	Source        XpubSource  `json:"source"`
	DeviceKind    string      `json:"device_kind,omitempty"`
	DeviceVersion string      `json:"device_version,omitempty"`
	FileName      string      `json:"file_name,omitempty"`
}

// Validate checks the per-source invariants: a Device-sourced xpub must
// carry a device kind, a File-sourced xpub must carry a file name, and a
// Pasted xpub must carry none of the optional fields.
func (x Xpub) Validate() error {
	switch x.Source {
	case XpubSourceDevice:
		if x.DeviceKind == "" {
			return errInvalidXpub("device xpub missing device_kind")
		}
	case XpubSourceFile:
		if x.FileName == "" {
			return errInvalidXpub("file xpub missing file_name")
		}
	case XpubSourcePasted:
		if x.DeviceKind != "" || x.DeviceVersion != "" || x.FileName != "" {
			return errInvalidXpub("pasted xpub must not carry device/file metadata")
		}
	default:
		return errInvalidXpub("unknown xpub source " + string(x.Source))
	}
	return nil
}

type errInvalidXpub string

func (e errInvalidXpub) Error() string { return string(e) }

// Key is one signer slot of a policy template.
type Key struct {
	ID          uint8       `json:"id"`
	Alias       string      `json:"alias"`
	Description string      `json:"description"`
	Identity    KeyIdentity `json:"identity"`
	KeyType     KeyType     `json:"key_type"`
	Xpub        *Xpub       `json:"xpub,omitempty"`

	LastEdited *time.Time `json:"last_edited,omitempty"`
	LastEditor *ID        `json:"last_editor,omitempty"`
}

// Equal reports whether k and other describe the same key contents, ignoring
// last-edited bookkeeping. Used by the conflict detector to decide whether a
// server push actually changed a key an edit modal is looking at.
func (k Key) Equal(other Key) bool {
	if k.ID != other.ID || k.Alias != other.Alias ||
		k.Description != other.Description || k.KeyType != other.KeyType ||
		k.Identity != other.Identity {
		return false
	}
	switch {
	case k.Xpub == nil && other.Xpub == nil:
		return true
	case k.Xpub == nil || other.Xpub == nil:
		return false
	default:
		return *k.Xpub == *other.Xpub
	}
}

// Timelock is a relative lock time expressed in blocks of wallet inactivity.
type Timelock struct {
	Blocks uint64 `json:"blocks"`
}

// SpendingPath is a threshold of key ids usable to spend from the wallet.
type SpendingPath struct {
	IsPrimary  bool     `json:"is_primary"`
	ThresholdN uint8    `json:"threshold_n"`
	KeyIDs     []uint8  `json:"key_ids"`

	LastEdited *time.Time `json:"last_edited,omitempty"`
	LastEditor *ID        `json:"last_editor,omitempty"`
}

// Validate checks the threshold/distinctness invariants for a spending path.
func (p SpendingPath) Validate() error {
	if p.ThresholdN == 0 || int(p.ThresholdN) > len(p.KeyIDs) {
		return errInvalidPath("threshold_n out of range")
	}
	seen := make(map[uint8]struct{}, len(p.KeyIDs))
	for _, id := range p.KeyIDs {
		if _, dup := seen[id]; dup {
			return errInvalidPath("duplicate key id in path")
		}
		seen[id] = struct{}{}
	}
	return nil
}

type errInvalidPath string

func (e errInvalidPath) Error() string { return string(e) }

// KeySet returns the path's key ids as a set, used for conflict comparisons.
func (p SpendingPath) KeySet() map[uint8]struct{} {
	s := make(map[uint8]struct{}, len(p.KeyIDs))
	for _, id := range p.KeyIDs {
		s[id] = struct{}{}
	}
	return s
}

// SecondaryPath is a recovery path gated by a relative timelock.
type SecondaryPath struct {
	Path     SpendingPath `json:"path"`
	Timelock Timelock     `json:"timelock"`
}

// IsSafetyNet reports whether sp is a single-signature path composed
// entirely of SafetyNet keys, per the glossary definition.
func (sp SecondaryPath) IsSafetyNet(keys map[uint8]Key) bool {
	if sp.Path.ThresholdN != 1 {
		return false
	}
	for _, id := range sp.Path.KeyIDs {
		k, ok := keys[id]
		if !ok || k.KeyType != KeySafetyNet {
			return false
		}
	}
	return len(sp.Path.KeyIDs) > 0
}

// PolicyTemplate is the miniscript policy under construction for a wallet:
// the set of keys and the primary/secondary spending paths built from them.
type PolicyTemplate struct {
	Keys           map[uint8]Key   `json:"keys"`
	PrimaryPath    SpendingPath    `json:"primary_path"`
	SecondaryPaths []SecondaryPath `json:"secondary_paths"`
}

// Validate checks that every key id referenced by a path exists in Keys.
func (t PolicyTemplate) Validate() error {
	check := func(p SpendingPath) error {
		for _, id := range p.KeyIDs {
			if _, ok := t.Keys[id]; !ok {
				return errInvalidTemplate("path references unknown key id")
			}
		}
		return p.Validate()
	}
	if err := check(t.PrimaryPath); err != nil {
		return err
	}
	for _, sp := range t.SecondaryPaths {
		if err := check(sp.Path); err != nil {
			return err
		}
	}
	return nil
}

type errInvalidTemplate string

func (e errInvalidTemplate) Error() string { return string(e) }

// Wallet is a Liana-style miniscript wallet under collaborative
// construction.
type Wallet struct {
	ID         ID              `json:"id"`
	Alias      string          `json:"alias"`
	Org        ID              `json:"org"`
	Owner      ID              `json:"owner"`
	Status     WalletStatus    `json:"status"`
	Template   *PolicyTemplate `json:"template,omitempty"`
	Descriptor string          `json:"descriptor,omitempty"`
	Devices    map[Fingerprint]struct{} `json:"devices,omitempty"`

	LastEdited *time.Time `json:"last_edited,omitempty"`
	LastEditor *ID        `json:"last_editor,omitempty"`
}

// Clone returns a deep copy of w, safe for a reader to keep after the entity
// cache's lock is released. The LastEdited/LastEditor pointers are shared
// with w.
func (w Wallet) Clone() Wallet {
	out := w
	if w.Template != nil {
		tpl := *w.Template
		tpl.Keys = make(map[uint8]Key, len(w.Template.Keys))
		for id, k := range w.Template.Keys {
			if k.Xpub != nil {
				xc := *k.Xpub
				k.Xpub = &xc
			}
			tpl.Keys[id] = k
		}
		tpl.PrimaryPath.KeyIDs = append([]uint8(nil), w.Template.PrimaryPath.KeyIDs...)
		tpl.SecondaryPaths = append([]SecondaryPath(nil), w.Template.SecondaryPaths...)
		for i := range tpl.SecondaryPaths {
			tpl.SecondaryPaths[i].Path.KeyIDs = append([]uint8(nil), tpl.SecondaryPaths[i].Path.KeyIDs...)
		}
		out.Template = &tpl
	}
	if w.Devices != nil {
		out.Devices = make(map[Fingerprint]struct{}, len(w.Devices))
		for fp := range w.Devices {
			out.Devices[fp] = struct{}{}
		}
	}
	return out
}

// Org is a tenant grouping of users and wallets.
type Org struct {
	ID      ID        `json:"id"`
	Name    string    `json:"name"`
	Wallets map[ID]struct{} `json:"wallets"`
	Users   map[ID]struct{} `json:"users"`
	Owners  []ID      `json:"owners"`

	LastEdited *time.Time `json:"last_edited,omitempty"`
	LastEditor *ID        `json:"last_editor,omitempty"`
}

// Clone returns a deep copy of o. The LastEdited/LastEditor pointers are
// shared with o.
func (o Org) Clone() Org {
	out := o
	out.Wallets = make(map[ID]struct{}, len(o.Wallets))
	for id := range o.Wallets {
		out.Wallets[id] = struct{}{}
	}
	out.Users = make(map[ID]struct{}, len(o.Users))
	for id := range o.Users {
		out.Users[id] = struct{}{}
	}
	out.Owners = append([]ID(nil), o.Owners...)
	return out
}

// User is an account known to the backend, independent of any particular
// org or wallet membership.
type User struct {
	UUID  ID       `json:"uuid"`
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Role  UserRole `json:"role"`

	LastEdited *time.Time `json:"last_edited,omitempty"`
	LastEditor *ID        `json:"last_editor,omitempty"`
}

// EffectiveRole derives the role a user plays with respect to a specific
// wallet: an admin globally, a wallet manager if owner of that wallet, a
// participant if referenced by a key's identity, otherwise none.
func EffectiveRole(u User, w Wallet, userEmail string) UserRole {
	if u.Role == RoleWizardSardineAdmin {
		return RoleWizardSardineAdmin
	}
	if w.Owner == u.UUID {
		return RoleWalletManager
	}
	if w.Template != nil {
		for _, k := range w.Template.Keys {
			if k.Identity.Kind == IdentityEmail && k.Identity.Email == userEmail {
				return RoleParticipant
			}
		}
	}
	return ""
}

// EffectiveStatus computes the wallet status as perceived by the current
// user, per the glossary: Validated is reported as Finalized once the
// current user's own key already carries a filled xpub. The current user's
// key is identified by an Email identity matching userEmail.
func EffectiveStatus(w Wallet, userEmail string) WalletStatus {
	if w.Status != StatusValidated || w.Template == nil {
		return w.Status
	}
	for _, k := range w.Template.Keys {
		if k.Identity.Kind == IdentityEmail && k.Identity.Email == userEmail && k.Xpub != nil {
			return StatusFinalized
		}
	}
	return w.Status
}
