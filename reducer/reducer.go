// Package reducer turns session.Notification events and entity cache reads
// into the view the installer UI should show, and owns the edit-modal
// lifecycle: which modal, if any, is open; what it was opened against; and
// how an incoming conflict is classified and resolved via the conflict
// package.
package reducer

import (
	"sync"

	"github.com/wizardsardine/liana-business-session/bclog"
	"github.com/wizardsardine/liana-business-session/conflict"
	"github.com/wizardsardine/liana-business-session/entitycache"
	"github.com/wizardsardine/liana-business-session/session"
	"github.com/wizardsardine/liana-business-session/types"
)

// View names the top-level screen the installer should render.
type View int

// The set of views the routing table in ViewFor can produce.
const (
	ViewLoading View = iota
	ViewDisconnected
	ViewOrgList
	ViewWalletDashboard
	ViewAwaitingValidation
	ViewRegistration
	ViewFinalized
)

// ModalKind distinguishes which edit modal, if any, is open.
type ModalKind int

// The set of modal kinds.
const (
	ModalNone ModalKind = iota
	ModalKeyEdit
	ModalPathEdit
)

// ConflictPrompt is surfaced when a server push changes something the open
// modal was editing. The reducer stops applying further pushes to the open
// modal until the user resolves the prompt.
type ConflictPrompt struct {
	KeyConflict  conflict.KeyConflict
	PathConflict conflict.PathConflict
	Remote       types.Wallet
}

// Modal is the state of the currently open edit modal, if any.
type Modal struct {
	Kind     ModalKind
	Snapshot types.Wallet
	KeyID    uint8
	PathRef  conflict.PathRef
	Conflict *ConflictPrompt
}

// State is the full installer-facing state derived from the session.
type State struct {
	View    View
	Warning string

	Org    *types.Org
	Wallet *types.Wallet
	User   *types.User

	Modal Modal
}

// Reducer owns one installer's derived State, updated by feeding it every
// session.Notification alongside the entity cache it was read from.
type Reducer struct {
	mu        sync.Mutex
	state     State
	selfEmail string
}

// New constructs a Reducer for the signed-in user's email, used to resolve
// EffectiveRole/EffectiveStatus against the wallets it observes.
func New(selfEmail string) *Reducer {
	return &Reducer{
		selfEmail: selfEmail,
		state:     State{View: ViewLoading},
	}
}

// State returns a copy of the current derived state.
func (r *Reducer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Handle applies one session notification, reading any entity it references
// out of cache.
func (r *Reducer) Handle(n session.Notification, cache *entitycache.Cache) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev := n.(type) {
	case session.Connected:
		r.state.View = ViewOrgList
		r.state.Warning = ""
	case session.Disconnected:
		r.state.View = ViewDisconnected
	case session.OrgUpdated:
		if org, ok := cache.Org(ev.ID); ok {
			r.state.Org = &org
		}
	case session.OrgOwnersChanged:
		bclog.RdcLog.Infof("org %s owners changed", ev.ID)
	case session.UserUpdated:
		if r.state.User != nil && r.state.User.UUID == ev.ID {
			if u, ok := cache.User(ev.ID); ok {
				r.state.User = &u
			}
		}
	case session.WalletUpdated:
		r.applyWalletPush(ev.ID, cache)
	case session.ErrorNotice:
		r.state.Warning = describeError(ev)
	}
}

func describeError(n session.ErrorNotice) string {
	switch k := n.Kind.(type) {
	case session.WsConnectionErr:
		return "connection error: " + k.Detail
	case session.WsMessageHandlingErr:
		return "protocol error: " + k.Detail
	case session.TokenMissingErr:
		return "not signed in"
	case session.RequestTimeoutErr:
		return "request timed out: " + string(k.Method)
	default:
		return "unknown error"
	}
}

// applyWalletPush updates Wallet, or, if an edit modal is open against the
// same wallet, runs it through the conflict detector instead of overwriting
// the snapshot out from under the user.
func (r *Reducer) applyWalletPush(id types.ID, cache *entitycache.Cache) {
	remote, ok := cache.Wallet(id)
	if !ok {
		return
	}

	if r.state.Modal.Kind != ModalNone && r.state.Modal.Snapshot.ID == id {
		r.detectModalConflict(remote)
		return
	}

	r.state.Wallet = &remote
	r.recomputeView()
}

func (r *Reducer) detectModalConflict(remote types.Wallet) {
	switch r.state.Modal.Kind {
	case ModalKeyEdit:
		kc := conflict.DetectKey(r.state.Modal.Snapshot, remote, r.state.Modal.KeyID)
		if kc != conflict.KeyUnchanged {
			r.state.Modal.Conflict = &ConflictPrompt{KeyConflict: kc, Remote: remote}
		}
	case ModalPathEdit:
		pc := conflict.DetectPath(r.state.Modal.Snapshot, remote, r.state.Modal.PathRef)
		if pc != conflict.PathUnchanged {
			r.state.Modal.Conflict = &ConflictPrompt{PathConflict: pc, Remote: remote}
		}
	}
}

func (r *Reducer) recomputeView() {
	if r.state.Wallet == nil || r.state.User == nil {
		return
	}
	role := types.EffectiveRole(*r.state.User, *r.state.Wallet, r.selfEmail)
	status := types.EffectiveStatus(*r.state.Wallet, r.selfEmail)
	r.state.View = ViewFor(role, status)
}

// ViewFor is the routing table: a wallet's effective status, seen through a
// user's effective role, determines which screen is shown.
func ViewFor(role types.UserRole, status types.WalletStatus) View {
	switch status {
	case types.StatusDrafted, types.StatusCreated:
		return ViewWalletDashboard
	case types.StatusLocked:
		if role == types.RoleParticipant {
			return ViewAwaitingValidation
		}
		return ViewWalletDashboard
	case types.StatusValidated:
		return ViewWalletDashboard
	case types.StatusRegistration:
		return ViewRegistration
	case types.StatusFinalized:
		return ViewFinalized
	default:
		return ViewWalletDashboard
	}
}

// CanEditWallet reports whether the signed-in user may submit an
// edit_wallet/edit_xpub request against the current wallet: a
// WizardSardineAdmin always may, a WalletManager may for a wallet they own,
// a Participant never may.
func (r *Reducer) CanEditWallet() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.User == nil || r.state.Wallet == nil {
		return false
	}
	switch types.EffectiveRole(*r.state.User, *r.state.Wallet, r.selfEmail) {
	case types.RoleWizardSardineAdmin:
		return true
	case types.RoleWalletManager:
		return r.state.Wallet.Owner == r.state.User.UUID
	default:
		return false
	}
}

// OpenKeyEditModal opens a key-edit modal snapshotting wallet as it stood
// when the user started editing keyID.
func (r *Reducer) OpenKeyEditModal(wallet types.Wallet, keyID uint8) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.Modal = Modal{Kind: ModalKeyEdit, Snapshot: wallet, KeyID: keyID}
}

// OpenPathEditModal opens a path-edit modal snapshotting wallet as it stood
// when the user started editing the path identified by ref.
func (r *Reducer) OpenPathEditModal(wallet types.Wallet, ref conflict.PathRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.Modal = Modal{Kind: ModalPathEdit, Snapshot: wallet, PathRef: ref}
}

// CloseModal discards any open modal and pending conflict prompt.
func (r *Reducer) CloseModal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.Modal = Modal{}
}

// ResolveConflict applies the user's choice to a pending conflict prompt. A
// reload adopts the pushed wallet as the modal's new snapshot and clears the
// prompt; keep-local and dismiss both discard the prompt, dismiss also
// closing the modal entirely.
func (r *Reducer) ResolveConflict(res conflict.Resolution) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prompt := r.state.Modal.Conflict
	if prompt == nil {
		return
	}

	r.state.Modal.Snapshot = conflict.Apply(r.state.Modal.Snapshot, prompt.Remote, res)
	r.state.Modal.Conflict = nil

	if res == conflict.ResolveDismiss {
		r.state.Modal = Modal{}
	}
}
