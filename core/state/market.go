package state

import (
	"math/big"

	"autonledger/native/market"
)

// Stored representations keep the trie encoding RLP-safe (unsigned integers
// only) and independent of the engine's in-memory types.

type storedConfig struct {
	Admin        [20]byte
	FeeRateBps   uint32
	StorageVault [20]byte
}

type storedUsername struct {
	Owner    [20]byte
	Username string
}

type storedContent struct {
	ID               uint64
	Title            string
	Price            *big.Int
	EncryptedLocator []byte
}

type storedCreator struct {
	Owner         [20]byte
	NextContentID uint64
	Content       []storedContent
	Profile       string
	StorageSize   uint64
}

type storedReceipt struct {
	Buyer     [20]byte
	ContentID uint64
	Creator   [20]byte
	CreatedAt uint64
}

// ConfigGet loads the protocol config singleton.
func (m *Manager) ConfigGet() (*market.ProtocolConfig, bool, error) {
	stored := new(storedConfig)
	ok, err := m.getRecord(ConfigAddress(), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &market.ProtocolConfig{
		Admin:        stored.Admin,
		FeeRateBps:   stored.FeeRateBps,
		StorageVault: stored.StorageVault,
	}, true, nil
}

// ConfigCreate writes the singleton once; a second initialisation collides.
func (m *Manager) ConfigCreate(cfg *market.ProtocolConfig) error {
	return m.createRecord(ConfigAddress(), configToStored(cfg))
}

// ConfigPut overwrites the singleton after an authorised update.
func (m *Manager) ConfigPut(cfg *market.ProtocolConfig) error {
	return m.putRecord(ConfigAddress(), configToStored(cfg))
}

func configToStored(cfg *market.ProtocolConfig) *storedConfig {
	return &storedConfig{
		Admin:        cfg.Admin,
		FeeRateBps:   cfg.FeeRateBps,
		StorageVault: cfg.StorageVault,
	}
}

// UsernameGet resolves a normalized username to its record.
func (m *Manager) UsernameGet(username string) (*market.UsernameRecord, bool, error) {
	stored := new(storedUsername)
	ok, err := m.getRecord(UsernameAddress(username), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &market.UsernameRecord{Owner: stored.Owner, Username: stored.Username}, true, nil
}

// UsernameCreate claims a username. The derived address collision on a second
// claim is what guarantees global uniqueness.
func (m *Manager) UsernameCreate(rec *market.UsernameRecord) error {
	return m.createRecord(UsernameAddress(rec.Username), &storedUsername{
		Owner:    rec.Owner,
		Username: rec.Username,
	})
}

// CreatorGet loads the creator account owned by the supplied identity.
func (m *Manager) CreatorGet(owner [20]byte) (*market.CreatorAccount, bool, error) {
	stored := new(storedCreator)
	ok, err := m.getRecord(CreatorAddress(owner), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return creatorFromStored(stored), true, nil
}

// CreatorCreate initialises a creator account; one per identity.
func (m *Manager) CreatorCreate(acct *market.CreatorAccount) error {
	return m.createRecord(CreatorAddress(acct.Owner), creatorToStored(acct))
}

// CreatorPut persists a mutated creator account.
func (m *Manager) CreatorPut(acct *market.CreatorAccount) error {
	return m.putRecord(CreatorAddress(acct.Owner), creatorToStored(acct))
}

func creatorToStored(acct *market.CreatorAccount) *storedCreator {
	stored := &storedCreator{
		Owner:         acct.Owner,
		NextContentID: acct.NextContentID,
		Profile:       acct.Profile,
		StorageSize:   acct.StorageSize,
	}
	stored.Content = make([]storedContent, len(acct.Content))
	for i, item := range acct.Content {
		price := item.Price
		if price == nil {
			price = big.NewInt(0)
		}
		stored.Content[i] = storedContent{
			ID:               item.ID,
			Title:            item.Title,
			Price:            price,
			EncryptedLocator: item.EncryptedLocator,
		}
	}
	return stored
}

func creatorFromStored(stored *storedCreator) *market.CreatorAccount {
	acct := &market.CreatorAccount{
		Owner:         stored.Owner,
		NextContentID: stored.NextContentID,
		Profile:       stored.Profile,
		StorageSize:   stored.StorageSize,
	}
	acct.Content = make([]market.ContentItem, len(stored.Content))
	for i, item := range stored.Content {
		acct.Content[i] = market.ContentItem{
			ID:               item.ID,
			Title:            item.Title,
			Price:            new(big.Int).Set(item.Price),
			EncryptedLocator: item.EncryptedLocator,
		}
	}
	return acct
}

// AccessGet loads the receipt for a (buyer, content) pair if one exists.
func (m *Manager) AccessGet(buyer [20]byte, contentID uint64) (*market.AccessReceipt, bool, error) {
	stored := new(storedReceipt)
	ok, err := m.getRecord(AccessAddress(buyer, contentID), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &market.AccessReceipt{
		Buyer:     stored.Buyer,
		ContentID: stored.ContentID,
		Creator:   stored.Creator,
		CreatedAt: int64(stored.CreatedAt),
	}, true, nil
}

// AccessCreate writes a receipt exactly once. A collision here aborts the
// whole payment, which is what makes a second payment for the same pair
// structurally impossible.
func (m *Manager) AccessCreate(receipt *market.AccessReceipt) error {
	return m.createRecord(AccessAddress(receipt.Buyer, receipt.ContentID), &storedReceipt{
		Buyer:     receipt.Buyer,
		ContentID: receipt.ContentID,
		Creator:   receipt.Creator,
		CreatedAt: uint64(receipt.CreatedAt),
	})
}
