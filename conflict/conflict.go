// Package conflict implements the optimistic-concurrency conflict detector:
// whenever a wallet push arrives while the user has a key-edit or path-edit
// modal open, the detector decides whether the push
// actually changed anything the open modal depends on, and classifies the
// change so the reducer can prompt the user instead of silently clobbering
// their in-progress edit.
package conflict

import "github.com/wizardsardine/liana-business-session/types"

// KeyConflict classifies what a wallet push did to the key a key-edit modal
// is looking at.
type KeyConflict int

const (
	// KeyUnchanged means the push left the key exactly as the modal last
	// saw it; no prompt is needed.
	KeyUnchanged KeyConflict = iota
	// KeyModified means the push changed the key's contents.
	KeyModified
	// KeyDeleted means the push removed the key from the template
	// entirely.
	KeyDeleted
)

// DetectKey compares keyID as seen in local (the snapshot the open modal was
// built from) against remote (the freshly pushed wallet).
func DetectKey(local, remote types.Wallet, keyID uint8) KeyConflict {
	localKey, hadLocal := templateKey(local, keyID)
	remoteKey, hasRemote := templateKey(remote, keyID)

	switch {
	case !hasRemote:
		if hadLocal {
			return KeyDeleted
		}
		return KeyUnchanged
	case !hadLocal:
		return KeyModified
	case !localKey.Equal(remoteKey):
		return KeyModified
	default:
		return KeyUnchanged
	}
}

func templateKey(w types.Wallet, keyID uint8) (types.Key, bool) {
	if w.Template == nil {
		return types.Key{}, false
	}
	k, ok := w.Template.Keys[keyID]
	return k, ok
}

// PathRef identifies which spending path a path-edit modal has open: the
// primary path, or the secondary path at Index.
type PathRef struct {
	Primary bool
	Index   int
}

// resolvePath returns the spending path ref identifies in w, along with its
// timelock (zero for the primary path, which carries none).
func resolvePath(w types.Wallet, ref PathRef) (types.SpendingPath, types.Timelock, bool) {
	if w.Template == nil {
		return types.SpendingPath{}, types.Timelock{}, false
	}
	if ref.Primary {
		return w.Template.PrimaryPath, types.Timelock{}, true
	}
	if ref.Index < 0 || ref.Index >= len(w.Template.SecondaryPaths) {
		return types.SpendingPath{}, types.Timelock{}, false
	}
	sp := w.Template.SecondaryPaths[ref.Index]
	return sp.Path, sp.Timelock, true
}

// PathConflict classifies what a wallet push did to the path a path-edit
// modal is looking at.
type PathConflict int

const (
	// PathUnchanged means the push left the path, and every key it
	// references, exactly as the modal last saw them.
	PathUnchanged PathConflict = iota
	// PathKeyDeleted means one of the keys the path references was
	// deleted by the push, even if the path's own key-id set is
	// unchanged.
	PathKeyDeleted
	// PathModified means the path's threshold, key-id set, or (for a
	// secondary path) timelock changed.
	PathModified
	// PathDeleted means the path itself no longer exists (only possible
	// for a secondary path, whose index or contents may vanish).
	PathDeleted
)

// DetectPath compares the path identified by ref in local against remote.
func DetectPath(local, remote types.Wallet, ref PathRef) PathConflict {
	localPath, localTimelock, hadLocal := resolvePath(local, ref)
	remotePath, remoteTimelock, hasRemote := resolvePath(remote, ref)

	if !hasRemote {
		if hadLocal && !ref.Primary {
			return PathDeleted
		}
		return PathUnchanged
	}
	if !hadLocal {
		return PathModified
	}

	for _, id := range localPath.KeyIDs {
		if remote.Template == nil {
			break
		}
		if _, stillExists := remote.Template.Keys[id]; !stillExists {
			return PathKeyDeleted
		}
	}

	if localPath.ThresholdN != remotePath.ThresholdN || !sameKeySet(localPath, remotePath) {
		return PathModified
	}
	if !ref.Primary && localTimelock.Blocks != remoteTimelock.Blocks {
		return PathModified
	}
	return PathUnchanged
}

func sameKeySet(a, b types.SpendingPath) bool {
	as, bs := a.KeySet(), b.KeySet()
	if len(as) != len(bs) {
		return false
	}
	for id := range as {
		if _, ok := bs[id]; !ok {
			return false
		}
	}
	return true
}

// Resolution is the user's choice when presented with a conflict prompt.
type Resolution int

const (
	// ResolveDismiss closes the modal without keeping or discarding
	// anything further; the caller should simply stop editing.
	ResolveDismiss Resolution = iota
	// ResolveReload abandons the local edit and adopts the freshly
	// pushed wallet.
	ResolveReload
	// ResolveKeepLocal keeps editing the local snapshot, ignoring the
	// push until the next edit is submitted.
	ResolveKeepLocal
)

// Apply returns the wallet the modal should continue editing against, given
// the user's resolution choice between the two conflicting snapshots.
func Apply(local, remote types.Wallet, res Resolution) types.Wallet {
	if res == ResolveReload {
		return remote
	}
	return local
}
