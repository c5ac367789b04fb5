package market

import "math/big"

// ProtocolConfig is the singleton record holding the platform administrator,
// the fee rate taken out of every payment, and the vault credited with
// storage rent. It lives at the well-known "config" derived address.
type ProtocolConfig struct {
	Admin        [20]byte `json:"admin"`
	FeeRateBps   uint32   `json:"feeRateBps"`
	StorageVault [20]byte `json:"storageVault"`
}

// Clone returns a copy of the config.
func (c *ProtocolConfig) Clone() *ProtocolConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// ConfigUpdate carries the optional fields of a partial config update. Nil
// fields leave the current value untouched.
type ConfigUpdate struct {
	Admin        *[20]byte
	FeeRateBps   *uint32
	StorageVault *[20]byte
}

// UsernameRecord claims a globally unique handle for an identity. The record
// address is derived from the username itself, so a second claim collides at
// creation time; there is no update or delete path.
type UsernameRecord struct {
	Owner    [20]byte `json:"owner"`
	Username string   `json:"username"`
}

// ContentItem is one priced entry in a creator's catalogue. The encrypted
// locator is opaque ciphertext (payload reference + nonce + auth tag) the
// ledger stores but never interprets. Items are immutable once appended.
type ContentItem struct {
	ID               uint64   `json:"id"`
	Title            string   `json:"title"`
	Price            *big.Int `json:"price"`
	EncryptedLocator []byte   `json:"encryptedLocator"`
}

// Clone returns a deep copy of the content item.
func (c *ContentItem) Clone() *ContentItem {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Price != nil {
		clone.Price = new(big.Int).Set(c.Price)
	}
	clone.EncryptedLocator = append([]byte(nil), c.EncryptedLocator...)
	return &clone
}

// CreatorAccount holds a creator's catalogue. Content ids are assigned from
// the monotonic counter and are strictly increasing in append order. The
// account records its own storage footprint so growth can be charged to the
// payer of the mutation that caused it.
type CreatorAccount struct {
	Owner         [20]byte      `json:"owner"`
	NextContentID uint64        `json:"nextContentId"`
	Content       []ContentItem `json:"content"`
	Profile       string        `json:"profile"`
	StorageSize   uint64        `json:"storageSize"`
}

// Clone returns a deep copy of the creator account.
func (a *CreatorAccount) Clone() *CreatorAccount {
	if a == nil {
		return nil
	}
	clone := *a
	if a.Content != nil {
		clone.Content = make([]ContentItem, len(a.Content))
		for i := range a.Content {
			clone.Content[i] = *a.Content[i].Clone()
		}
	}
	return &clone
}

// FindContent returns the first item with the given id, scanning in append
// order. Catalogues are small; callers needing large ones should front this
// with an index.
func (a *CreatorAccount) FindContent(id uint64) (*ContentItem, bool) {
	for i := range a.Content {
		if a.Content[i].ID == id {
			return &a.Content[i], true
		}
	}
	return nil, false
}

// AccessReceipt proves that a buyer paid for a specific content item. It is
// created exactly once by a successful payment and never mutated; its
// existence at the derived (buyer, content) address is the access check.
type AccessReceipt struct {
	Buyer     [20]byte `json:"buyer"`
	ContentID uint64   `json:"contentId"`
	Creator   [20]byte `json:"creator"`
	CreatedAt int64    `json:"createdAt"`
}

// Clone returns a copy of the receipt.
func (r *AccessReceipt) Clone() *AccessReceipt {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

// PaymentBreakdown reports how a settled payment was split.
type PaymentBreakdown struct {
	Total        *big.Int `json:"total"`
	Fee          *big.Int `json:"fee"`
	CreatorShare *big.Int `json:"creatorShare"`
}
