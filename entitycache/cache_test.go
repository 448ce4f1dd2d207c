package entitycache

import (
	"testing"

	"github.com/google/uuid"
	"github.com/wizardsardine/liana-business-session/types"
)

func TestUpsertOrgTriggersTransitiveFetch(t *testing.T) {
	c := New()
	u1, w1, editor := uuid.New(), uuid.New(), uuid.New()

	org := types.Org{
		ID:         uuid.New(),
		Users:      map[types.ID]struct{}{u1: {}},
		Wallets:    map[types.ID]struct{}{w1: {}},
		Owners:     []types.ID{u1},
		LastEditor: &editor,
	}

	needUsers, needWallets := c.UpsertOrg(org)

	if len(needWallets) != 1 || needWallets[0] != w1 {
		t.Fatalf("expected fetch_wallet for %s, got %v", w1, needWallets)
	}
	wantUsers := map[types.ID]bool{u1: true, editor: true}
	if len(needUsers) != 2 {
		t.Fatalf("expected 2 users to fetch, got %v", needUsers)
	}
	for _, id := range needUsers {
		if !wantUsers[id] {
			t.Fatalf("unexpected fetch_user for %s", id)
		}
	}

	got, ok := c.Org(org.ID)
	if !ok || got.ID != org.ID {
		t.Fatalf("org not cached")
	}
}

func TestUpsertOrgSkipsAlreadyCachedUsers(t *testing.T) {
	c := New()
	u1 := uuid.New()
	c.UpsertUser(types.User{UUID: u1})

	org := types.Org{
		ID:    uuid.New(),
		Users: map[types.ID]struct{}{u1: {}},
	}
	needUsers, needWallets := c.UpsertOrg(org)
	if len(needUsers) != 0 || len(needWallets) != 0 {
		t.Fatalf("expected no fetches, got users=%v wallets=%v", needUsers, needWallets)
	}
}

func TestUpsertWalletCollectsEveryLastEditor(t *testing.T) {
	c := New()
	owner, keyEditor, pathEditor, secEditor := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	wallet := types.Wallet{
		ID:    uuid.New(),
		Owner: owner,
		Template: &types.PolicyTemplate{
			Keys: map[uint8]types.Key{
				0: {ID: 0, LastEditor: &keyEditor},
			},
			PrimaryPath: types.SpendingPath{LastEditor: &pathEditor},
			SecondaryPaths: []types.SecondaryPath{
				{Path: types.SpendingPath{LastEditor: &secEditor}},
			},
		},
	}

	needUsers := c.UpsertWallet(wallet)
	want := map[types.ID]bool{owner: true, keyEditor: true, pathEditor: true, secEditor: true}
	if len(needUsers) != 4 {
		t.Fatalf("expected 4 users to fetch, got %v", needUsers)
	}
	for _, id := range needUsers {
		if !want[id] {
			t.Fatalf("unexpected fetch_user for %s", id)
		}
	}
}

func TestUpsertWalletDedupesRepeatedEditor(t *testing.T) {
	c := New()
	shared := uuid.New()
	wallet := types.Wallet{
		ID:    uuid.New(),
		Owner: shared,
		Template: &types.PolicyTemplate{
			Keys:        map[uint8]types.Key{0: {ID: 0, LastEditor: &shared}},
			PrimaryPath: types.SpendingPath{LastEditor: &shared},
		},
	}
	needUsers := c.UpsertWallet(wallet)
	if len(needUsers) != 1 {
		t.Fatalf("expected a single deduped fetch_user, got %v", needUsers)
	}
}

func TestDeleteUserOrgOnlyForSelf(t *testing.T) {
	c := New()
	org := types.Org{ID: uuid.New()}
	c.UpsertOrg(org)

	self := uuid.New()
	other := uuid.New()

	if c.DeleteUserOrg(other, org.ID, self) {
		t.Fatalf("expected no-op for non-self user")
	}
	if _, ok := c.Org(org.ID); !ok {
		t.Fatalf("org should still be cached")
	}

	if !c.DeleteUserOrg(self, org.ID, self) {
		t.Fatalf("expected removal for self user")
	}
	if _, ok := c.Org(org.ID); ok {
		t.Fatalf("org should have been removed")
	}
}

func TestClearEmptiesAllMaps(t *testing.T) {
	c := New()
	orgID, walletID, userID := uuid.New(), uuid.New(), uuid.New()
	c.UpsertOrg(types.Org{ID: orgID})
	c.UpsertWallet(types.Wallet{ID: walletID})
	c.UpsertUser(types.User{UUID: userID})

	c.Clear()

	if _, ok := c.Org(orgID); ok {
		t.Fatalf("expected empty org cache")
	}
	if _, ok := c.Wallet(walletID); ok {
		t.Fatalf("expected empty wallet cache")
	}
	if _, ok := c.User(userID); ok {
		t.Fatalf("expected empty user cache")
	}
}
