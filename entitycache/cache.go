// Package entitycache holds the local, single-writer/many-reader maps of
// Org, Wallet and User entities, keyed by UUID, and computes the
// transitive-fetch follow-ups a freshly-pushed entity requires: any
// referenced-but-uncached id yields a fetch request. Only the receiver
// worker ever writes; every other reader gets a deep clone so it can hold
// the result across suspension points without racing the next push.
//
// Each map has its own lock; no method here ever holds two locks
// at once.
package entitycache

import (
	"sync"

	"github.com/wizardsardine/liana-business-session/bclog"
	"github.com/wizardsardine/liana-business-session/types"
)

// Cache is the process-wide entity store for one Session. It is safe for
// concurrent use.
type Cache struct {
	orgMu sync.Mutex
	orgs  map[types.ID]types.Org

	walletMu sync.Mutex
	wallets  map[types.ID]types.Wallet

	userMu sync.Mutex
	users  map[types.ID]types.User
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{
		orgs:    make(map[types.ID]types.Org),
		wallets: make(map[types.ID]types.Wallet),
		users:   make(map[types.ID]types.User),
	}
}

// Org returns a clone of the cached org, if any.
func (c *Cache) Org(id types.ID) (types.Org, bool) {
	c.orgMu.Lock()
	defer c.orgMu.Unlock()
	o, ok := c.orgs[id]
	if !ok {
		return types.Org{}, false
	}
	return o.Clone(), true
}

// Wallet returns a clone of the cached wallet, if any.
func (c *Cache) Wallet(id types.ID) (types.Wallet, bool) {
	c.walletMu.Lock()
	defer c.walletMu.Unlock()
	w, ok := c.wallets[id]
	if !ok {
		return types.Wallet{}, false
	}
	return w.Clone(), true
}

// User returns a clone of the cached user, if any.
func (c *Cache) User(id types.ID) (types.User, bool) {
	c.userMu.Lock()
	defer c.userMu.Unlock()
	u, ok := c.users[id]
	return u, ok
}

// Wallets returns a clone of every wallet currently cached, for callers that
// need a full snapshot rather than a single lookup (e.g. a status report).
func (c *Cache) Wallets() []types.Wallet {
	c.walletMu.Lock()
	defer c.walletMu.Unlock()
	out := make([]types.Wallet, 0, len(c.wallets))
	for _, w := range c.wallets {
		out = append(out, w.Clone())
	}
	return out
}

func (c *Cache) hasUser(id types.ID) bool {
	c.userMu.Lock()
	defer c.userMu.Unlock()
	_, ok := c.users[id]
	return ok
}

func (c *Cache) hasWallet(id types.ID) bool {
	c.walletMu.Lock()
	defer c.walletMu.Unlock()
	_, ok := c.wallets[id]
	return ok
}

// UpsertOrg stores org and returns the set of user/wallet ids referenced by
// it that are not yet cached: every id in org.Users ∪ {org.LastEditor} not
// in users, and every id in org.Wallets not in wallets.
func (c *Cache) UpsertOrg(org types.Org) (needUsers, needWallets []types.ID) {
	c.orgMu.Lock()
	c.orgs[org.ID] = org.Clone()
	c.orgMu.Unlock()

	for id := range org.Users {
		if !c.hasUser(id) {
			needUsers = append(needUsers, id)
		}
	}
	if org.LastEditor != nil && !c.hasUser(*org.LastEditor) {
		needUsers = append(needUsers, *org.LastEditor)
	}
	for id := range org.Wallets {
		if !c.hasWallet(id) {
			needWallets = append(needWallets, id)
		}
	}

	bclog.EntLog.Debugf("upserted org %s: %d users, %d wallets to fetch",
		org.ID, len(needUsers), len(needWallets))
	return needUsers, needWallets
}

// UpsertWallet stores wallet and returns the set of uncached user ids
// referenced by its owner and by every LastEditor field on the wallet, its
// keys, its primary path and each secondary path.
func (c *Cache) UpsertWallet(wallet types.Wallet) (needUsers []types.ID) {
	c.walletMu.Lock()
	c.wallets[wallet.ID] = wallet.Clone()
	c.walletMu.Unlock()

	seen := make(map[types.ID]struct{})
	add := func(id *types.ID) {
		if id == nil {
			return
		}
		if _, dup := seen[*id]; dup {
			return
		}
		seen[*id] = struct{}{}
		if !c.hasUser(*id) {
			needUsers = append(needUsers, *id)
		}
	}

	add(&wallet.Owner)
	add(wallet.LastEditor)
	if wallet.Template != nil {
		for _, k := range wallet.Template.Keys {
			add(k.LastEditor)
		}
		add(wallet.Template.PrimaryPath.LastEditor)
		for _, sp := range wallet.Template.SecondaryPaths {
			add(sp.Path.LastEditor)
		}
	}

	bclog.EntLog.Debugf("upserted wallet %s: %d users to fetch", wallet.ID, len(needUsers))
	return needUsers
}

// UpsertUser stores user and returns a single-element slice with its
// LastEditor id if that id is not yet cached.
func (c *Cache) UpsertUser(user types.User) (needUsers []types.ID) {
	c.userMu.Lock()
	c.users[user.UUID] = user
	c.userMu.Unlock()

	if user.LastEditor != nil && !c.hasUser(*user.LastEditor) {
		needUsers = append(needUsers, *user.LastEditor)
	}

	bclog.EntLog.Debugf("upserted user %s", user.UUID)
	return needUsers
}

// DeleteUserOrg removes org from the cache iff user equals selfUserID,
// reporting whether it did so.
func (c *Cache) DeleteUserOrg(user, org, selfUserID types.ID) bool {
	if user != selfUserID {
		return false
	}
	c.orgMu.Lock()
	defer c.orgMu.Unlock()
	if _, ok := c.orgs[org]; !ok {
		return false
	}
	delete(c.orgs, org)
	return true
}

// Clear empties every map, used on logout.
func (c *Cache) Clear() {
	c.orgMu.Lock()
	c.orgs = make(map[types.ID]types.Org)
	c.orgMu.Unlock()

	c.walletMu.Lock()
	c.wallets = make(map[types.ID]types.Wallet)
	c.walletMu.Unlock()

	c.userMu.Lock()
	c.users = make(map[types.ID]types.User)
	c.userMu.Unlock()
}
