package state

import (
	"errors"
	"math/big"
	"testing"

	"autonledger/native/market"
	"autonledger/storage/trie"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	tr, err := trie.NewTrie(trie.NewMemoryTrieDB(), nil)
	if err != nil {
		t.Fatalf("new trie: %v", err)
	}
	return NewManager(tr)
}

func testAddr(b byte) [20]byte {
	var out [20]byte
	out[0] = b
	return out
}

func TestAccountRoundTrip(t *testing.T) {
	manager := newTestManager(t)
	addr := testAddr(1)

	account, err := manager.GetAccount(addr[:])
	if err != nil {
		t.Fatalf("get missing account: %v", err)
	}
	if account.Balance.Sign() != 0 || account.Nonce != 0 || account.Username != "" {
		t.Fatalf("missing account not zero valued: %+v", account)
	}

	account.Balance = big.NewInt(12_345)
	account.Nonce = 3
	account.Username = "alice"
	if err := manager.PutAccount(addr[:], account); err != nil {
		t.Fatalf("put account: %v", err)
	}

	loaded, err := manager.GetAccount(addr[:])
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if loaded.Balance.Cmp(big.NewInt(12_345)) != 0 || loaded.Nonce != 3 || loaded.Username != "alice" {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
}

func TestChargeStorage(t *testing.T) {
	manager := newTestManager(t)
	payer := testAddr(1)
	vault := testAddr(2)
	if err := manager.Credit(payer, big.NewInt(10_000)); err != nil {
		t.Fatalf("credit payer: %v", err)
	}

	cost, err := manager.ChargeStorage(payer, vault, 244)
	if err != nil {
		t.Fatalf("charge storage: %v", err)
	}
	if cost.Cmp(big.NewInt(2_440)) != 0 {
		t.Fatalf("cost %s for 244 bytes", cost)
	}
	payerAccount, _ := manager.GetAccount(payer[:])
	if payerAccount.Balance.Cmp(big.NewInt(7_560)) != 0 {
		t.Fatalf("payer balance %s", payerAccount.Balance)
	}
	vaultAccount, _ := manager.GetAccount(vault[:])
	if vaultAccount.Balance.Cmp(big.NewInt(2_440)) != 0 {
		t.Fatalf("vault balance %s", vaultAccount.Balance)
	}
}

func TestChargeStorageInsufficientFunds(t *testing.T) {
	manager := newTestManager(t)
	payer := testAddr(1)
	vault := testAddr(2)
	if err := manager.Credit(payer, big.NewInt(100)); err != nil {
		t.Fatalf("credit payer: %v", err)
	}
	if _, err := manager.ChargeStorage(payer, vault, 1_000); !errors.Is(err, market.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	payerAccount, _ := manager.GetAccount(payer[:])
	if payerAccount.Balance.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("payer debited despite failure: %s", payerAccount.Balance)
	}
}

func TestChargeStorageZeroGrowthIsFree(t *testing.T) {
	manager := newTestManager(t)
	cost, err := manager.ChargeStorage(testAddr(1), testAddr(2), 0)
	if err != nil {
		t.Fatalf("charge zero growth: %v", err)
	}
	if cost.Sign() != 0 {
		t.Fatalf("zero growth cost %s", cost)
	}
}

func TestConfigCreateOnce(t *testing.T) {
	manager := newTestManager(t)
	cfg := &market.ProtocolConfig{Admin: testAddr(1), FeeRateBps: 500, StorageVault: testAddr(2)}
	if err := manager.ConfigCreate(cfg); err != nil {
		t.Fatalf("create config: %v", err)
	}
	if err := manager.ConfigCreate(cfg); !errors.Is(err, market.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	loaded, ok, err := manager.ConfigGet()
	if err != nil || !ok {
		t.Fatalf("get config: ok=%v err=%v", ok, err)
	}
	if loaded.Admin != cfg.Admin || loaded.FeeRateBps != 500 || loaded.StorageVault != cfg.StorageVault {
		t.Fatalf("config mismatch: %+v", loaded)
	}
}

func TestUsernameCreateCollides(t *testing.T) {
	manager := newTestManager(t)
	first := &market.UsernameRecord{Owner: testAddr(1), Username: "alice"}
	if err := manager.UsernameCreate(first); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	second := &market.UsernameRecord{Owner: testAddr(2), Username: "alice"}
	if err := manager.UsernameCreate(second); !errors.Is(err, market.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	rec, ok, err := manager.UsernameGet("alice")
	if err != nil || !ok {
		t.Fatalf("get username: ok=%v err=%v", ok, err)
	}
	if rec.Owner != testAddr(1) {
		t.Fatalf("first claimant lost the handle: %+v", rec)
	}
}

func TestCreatorRoundTrip(t *testing.T) {
	manager := newTestManager(t)
	acct := &market.CreatorAccount{
		Owner:         testAddr(1),
		NextContentID: 2,
		Content: []market.ContentItem{
			{ID: 1, Title: "one", Price: big.NewInt(100), EncryptedLocator: []byte{0xaa, 0xbb}},
			{ID: 2, Title: "two", Price: big.NewInt(0), EncryptedLocator: nil},
		},
		Profile:     "ipfs://profile",
		StorageSize: 546,
	}
	if err := manager.CreatorCreate(acct); err != nil {
		t.Fatalf("create creator: %v", err)
	}
	loaded, ok, err := manager.CreatorGet(testAddr(1))
	if err != nil || !ok {
		t.Fatalf("get creator: ok=%v err=%v", ok, err)
	}
	if loaded.NextContentID != 2 || loaded.Profile != "ipfs://profile" || loaded.StorageSize != 546 {
		t.Fatalf("creator mismatch: %+v", loaded)
	}
	if len(loaded.Content) != 2 || loaded.Content[0].Price.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("content mismatch: %+v", loaded.Content)
	}
	if loaded.Content[1].Price.Sign() != 0 {
		t.Fatalf("zero price not preserved: %s", loaded.Content[1].Price)
	}

	if err := manager.CreatorCreate(acct); !errors.Is(err, market.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	loaded.Profile = "ipfs://updated"
	if err := manager.CreatorPut(loaded); err != nil {
		t.Fatalf("put creator: %v", err)
	}
	again, ok, err := manager.CreatorGet(testAddr(1))
	if err != nil || !ok {
		t.Fatalf("reload creator: ok=%v err=%v", ok, err)
	}
	if again.Profile != "ipfs://updated" {
		t.Fatalf("profile not updated: %q", again.Profile)
	}
}

func TestAccessCreateOncePerPair(t *testing.T) {
	manager := newTestManager(t)
	receipt := &market.AccessReceipt{
		Buyer:     testAddr(1),
		ContentID: 7,
		Creator:   testAddr(2),
		CreatedAt: 1_700_000_000,
	}
	if err := manager.AccessCreate(receipt); err != nil {
		t.Fatalf("create receipt: %v", err)
	}
	if err := manager.AccessCreate(receipt); !errors.Is(err, market.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	loaded, ok, err := manager.AccessGet(testAddr(1), 7)
	if err != nil || !ok {
		t.Fatalf("get receipt: ok=%v err=%v", ok, err)
	}
	if loaded.Creator != testAddr(2) || loaded.CreatedAt != 1_700_000_000 {
		t.Fatalf("receipt mismatch: %+v", loaded)
	}

	// The same buyer buying a different item, and a different buyer buying the
	// same item, land on distinct addresses.
	if _, ok, _ := manager.AccessGet(testAddr(1), 8); ok {
		t.Fatalf("unexpected receipt for different content id")
	}
	if _, ok, _ := manager.AccessGet(testAddr(3), 7); ok {
		t.Fatalf("unexpected receipt for different buyer")
	}
	other := &market.AccessReceipt{Buyer: testAddr(1), ContentID: 8, Creator: testAddr(2), CreatedAt: 1}
	if err := manager.AccessCreate(other); err != nil {
		t.Fatalf("create receipt for second item: %v", err)
	}
}
