package state

import (
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"autonledger/core/types"
	"autonledger/native/market"
	"autonledger/storage/trie"
)

// rentPricePerByte is the storage cost model of the host ledger: every byte of
// record growth is charged to the designated payer at this rate, in the
// smallest currency unit, within the same transaction as the mutation.
var rentPricePerByte = big.NewInt(10)

// Manager exposes the ledger account store over the state trie. All record
// addresses are derived (see derive.go); the manager adds the create-if-absent
// semantics the uniqueness invariants lean on and the balance/rent plumbing.
//
// A Manager instance is bound to one trie. Callers wanting all-or-nothing
// execution run a manager against a speculative trie copy and only adopt the
// copy on success.
type Manager struct {
	trie *trie.Trie
}

// NewManager creates a state manager operating on the provided trie.
func NewManager(tr *trie.Trie) *Manager {
	return &Manager{trie: tr}
}

type stateAccount struct {
	Nonce    uint64
	Balance  *big.Int
	Username string
}

func accountStateKey(addr []byte) []byte {
	return ethcrypto.Keccak256(addr)
}

// GetAccount reconstructs the balance account stored under the provided
// identity address. A missing account is returned as a zero-balance account.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	if len(addr) == 0 {
		return nil, fmt.Errorf("address must not be empty")
	}
	data, err := m.trie.Get(accountStateKey(addr))
	if err != nil {
		return nil, err
	}
	account := &types.Account{Balance: big.NewInt(0)}
	if len(data) == 0 {
		return account, nil
	}
	stored := new(stateAccount)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, err
	}
	account.Nonce = stored.Nonce
	if stored.Balance != nil {
		account.Balance = new(big.Int).Set(stored.Balance)
	}
	account.Username = stored.Username
	return account, nil
}

// PutAccount persists the balance account under the provided identity address.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if len(addr) == 0 {
		return fmt.Errorf("address must not be empty")
	}
	if account == nil {
		return fmt.Errorf("account must not be nil")
	}
	balance := account.Balance
	if balance == nil {
		balance = big.NewInt(0)
	}
	encoded, err := rlp.EncodeToBytes(&stateAccount{
		Nonce:    account.Nonce,
		Balance:  balance,
		Username: account.Username,
	})
	if err != nil {
		return err
	}
	return m.trie.Update(accountStateKey(addr), encoded)
}

// ChargeStorage settles the host ledger's "allocate S bytes charged to payer
// P" operation: the payer is debited growth*rate and the protocol storage
// vault is credited, synchronously with the mutation that grew the record.
// The charged amount is returned for event and metrics reporting.
func (m *Manager) ChargeStorage(payer [20]byte, vault [20]byte, growth uint64) (*big.Int, error) {
	cost := new(big.Int).Mul(new(big.Int).SetUint64(growth), rentPricePerByte)
	if cost.Sign() == 0 {
		return cost, nil
	}
	payerAccount, err := m.GetAccount(payer[:])
	if err != nil {
		return nil, err
	}
	if payerAccount.Balance.Cmp(cost) < 0 {
		return nil, fmt.Errorf("%w: storage rent %s exceeds payer balance %s", market.ErrInsufficientFunds, cost, payerAccount.Balance)
	}
	payerAccount.Balance = new(big.Int).Sub(payerAccount.Balance, cost)
	vaultAccount, err := m.GetAccount(vault[:])
	if err != nil {
		return nil, err
	}
	vaultAccount.Balance = new(big.Int).Add(vaultAccount.Balance, cost)
	if err := m.PutAccount(payer[:], payerAccount); err != nil {
		return nil, err
	}
	if err := m.PutAccount(vault[:], vaultAccount); err != nil {
		return nil, err
	}
	return cost, nil
}

// Credit adds value to an identity's balance. It exists for genesis
// allocations; regular operations move value through the market engine.
func (m *Manager) Credit(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("credit amount must be non-negative")
	}
	account, err := m.GetAccount(addr[:])
	if err != nil {
		return err
	}
	account.Balance = new(big.Int).Add(account.Balance, amount)
	return m.PutAccount(addr[:], account)
}

func (m *Manager) getRecord(addr [32]byte, out interface{}) (bool, error) {
	data, err := m.trie.Get(addr[:])
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Manager) putRecord(addr [32]byte, record interface{}) error {
	encoded, err := rlp.EncodeToBytes(record)
	if err != nil {
		return err
	}
	return m.trie.Update(addr[:], encoded)
}

// createRecord writes a record only if its derived address is vacant. The
// resulting ErrAlreadyExists is the sole uniqueness mechanism in the system;
// no caller maintains a separate index or duplicate scan.
func (m *Manager) createRecord(addr [32]byte, record interface{}) error {
	existing, err := m.trie.Get(addr[:])
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return market.ErrAlreadyExists
	}
	return m.putRecord(addr, record)
}
