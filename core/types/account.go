package types

import "math/big"

// Account is the balance-holding record for a ledger identity. Value transfer
// and storage rent are settled against it; every richer record (creator
// catalogues, receipts) lives under its own derived address instead.
type Account struct {
	Nonce    uint64   `json:"nonce"`
	Balance  *big.Int `json:"balance"`
	Username string   `json:"username"`
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	if a.Balance != nil {
		clone.Balance = new(big.Int).Set(a.Balance)
	}
	return &clone
}
