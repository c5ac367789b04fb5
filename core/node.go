package core

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/triedb"

	"autonledger/core/events"
	"autonledger/core/state"
	"autonledger/core/types"
	"autonledger/native/market"
	"autonledger/observability/metrics"
	"autonledger/storage"
	"autonledger/storage/trie"
)

var stateRootKey = []byte("autonledger/state-root")

// Node executes ledger operations one at a time against the state trie. Each
// operation runs on a speculative copy that is committed only when the
// transition succeeds, so every failure rolls back wholesale: no partial
// transfer, rent charge, or record creation is ever observable. This is the
// host-ledger atomicity the market engine relies on instead of doing its own
// duplicate checks or compensation.
type Node struct {
	mu        sync.Mutex
	db        storage.Database
	trieDB    *triedb.Database
	stateTrie *trie.Trie
	engine    *market.Engine
	emitter   events.Emitter
	version   uint64
}

// NewNode wires a node over the provided metadata store and trie database,
// reopening the last committed state root when one is recorded.
func NewNode(db storage.Database, trieDB *triedb.Database) (*Node, error) {
	var root []byte
	if db != nil {
		if ok, err := db.Has(stateRootKey); err == nil && ok {
			stored, err := db.Get(stateRootKey)
			if err != nil {
				return nil, err
			}
			root = stored
		}
	}
	stateTrie, err := trie.NewTrie(trieDB, root)
	if err != nil {
		return nil, err
	}
	return &Node{
		db:        db,
		trieDB:    trieDB,
		stateTrie: stateTrie,
		engine:    market.NewEngine(),
		emitter:   events.NoopEmitter{},
	}, nil
}

// SetEmitter configures where committed-operation events are delivered.
// Events from failed operations are discarded with the rest of the
// speculative state.
func (n *Node) SetEmitter(emitter events.Emitter) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	n.emitter = emitter
}

// SetNowFunc overrides the engine time source for deterministic testing.
func (n *Node) SetNowFunc(now func() int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.engine.SetNowFunc(now)
}

// bufferEmitter queues events during a speculative execution so they can be
// flushed only if the operation commits.
type bufferEmitter struct {
	buffered []events.Event
}

func (b *bufferEmitter) Emit(evt events.Event) {
	b.buffered = append(b.buffered, evt)
}

// withState runs fn against a speculative copy of the state trie and commits
// the copy only on success.
func (n *Node) withState(fn func(engine *market.Engine) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	work := n.stateTrie.Copy()
	manager := state.NewManager(work)
	buffer := &bufferEmitter{}
	n.engine.SetState(manager)
	n.engine.SetEmitter(buffer)
	defer func() {
		n.engine.SetState(nil)
		n.engine.SetEmitter(nil)
	}()

	if err := fn(n.engine); err != nil {
		return err
	}

	parent := n.stateTrie.Root()
	root, err := work.Commit(parent, n.version+1)
	if err != nil {
		return err
	}
	n.stateTrie = work
	n.version++
	if n.db != nil {
		if err := n.db.Put(stateRootKey, root.Bytes()); err != nil {
			return err
		}
	}
	for _, evt := range buffer.buffered {
		if evt.EventType() == market.EventTypeStorageCharged {
			if carrier, ok := evt.(eventCarrier); ok {
				if cost, ok := new(big.Int).SetString(carrier.Event().Attributes["cost"], 10); ok {
					metrics.Market().ObserveStorageRent(cost)
				}
			}
		}
		n.emitter.Emit(evt)
	}
	return nil
}

// eventCarrier matches envelopes exposing their raw payload.
type eventCarrier interface {
	Event() *types.Event
}

// withView runs fn against a read-only manager over the committed state.
func (n *Node) withView(fn func(manager *state.Manager) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return fn(state.NewManager(n.stateTrie.Copy()))
}

// StateRoot returns the last committed state root.
func (n *Node) StateRoot() common.Hash {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stateTrie.Root()
}

// --- Transitions ---

// InitializeConfig creates the protocol config singleton.
func (n *Node) InitializeConfig(caller [20]byte, feeRateBps uint32, storageVault [20]byte) (*market.ProtocolConfig, error) {
	var cfg *market.ProtocolConfig
	err := n.withState(func(engine *market.Engine) error {
		created, err := engine.InitializeConfig(caller, feeRateBps, storageVault)
		if err != nil {
			return err
		}
		cfg = created
		return nil
	})
	return cfg, err
}

// UpdateConfig applies an admin-gated partial update.
func (n *Node) UpdateConfig(caller [20]byte, update market.ConfigUpdate) (*market.ProtocolConfig, error) {
	var cfg *market.ProtocolConfig
	err := n.withState(func(engine *market.Engine) error {
		updated, err := engine.UpdateConfig(caller, update)
		if err != nil {
			return err
		}
		cfg = updated
		return nil
	})
	return cfg, err
}

// RegisterUsername claims a unique handle for the caller.
func (n *Node) RegisterUsername(caller [20]byte, username string) (*market.UsernameRecord, error) {
	var rec *market.UsernameRecord
	err := n.withState(func(engine *market.Engine) error {
		created, err := engine.RegisterUsername(caller, username)
		if err != nil {
			return err
		}
		rec = created
		return nil
	})
	return rec, err
}

// InitializeCreator creates the caller's creator account, charging the payer
// for the base footprint.
func (n *Node) InitializeCreator(caller [20]byte, payer [20]byte) (*market.CreatorAccount, error) {
	var acct *market.CreatorAccount
	err := n.withState(func(engine *market.Engine) error {
		created, err := engine.InitializeCreator(caller, payer)
		if err != nil {
			return err
		}
		acct = created
		return nil
	})
	return acct, err
}

// AddContent appends a priced item to the caller's catalogue.
func (n *Node) AddContent(caller [20]byte, creator [20]byte, payer [20]byte, title string, price *big.Int, encryptedLocator []byte) (*market.ContentItem, error) {
	var item *market.ContentItem
	err := n.withState(func(engine *market.Engine) error {
		created, err := engine.AddContent(caller, creator, payer, title, price, encryptedLocator)
		if err != nil {
			return err
		}
		item = created
		return nil
	})
	if err == nil {
		metrics.Market().ObserveContentPublished()
	}
	return item, err
}

// UpdateProfile replaces the caller's profile locator.
func (n *Node) UpdateProfile(caller [20]byte, creator [20]byte, profile string) (*market.CreatorAccount, error) {
	var acct *market.CreatorAccount
	err := n.withState(func(engine *market.Engine) error {
		updated, err := engine.UpdateProfile(caller, creator, profile)
		if err != nil {
			return err
		}
		acct = updated
		return nil
	})
	return acct, err
}

// ProcessPayment settles a purchase and creates the access receipt.
func (n *Node) ProcessPayment(buyer [20]byte, creator [20]byte, contentID uint64, admin [20]byte) (*market.AccessReceipt, *market.PaymentBreakdown, error) {
	var (
		receipt   *market.AccessReceipt
		breakdown *market.PaymentBreakdown
	)
	err := n.withState(func(engine *market.Engine) error {
		settled, split, err := engine.ProcessPayment(buyer, creator, contentID, admin)
		if err != nil {
			return err
		}
		receipt = settled
		breakdown = split
		return nil
	})
	switch {
	case err == nil:
		metrics.Market().ObservePayment(breakdown.Total, breakdown.Fee)
	case errors.Is(err, market.ErrAlreadyPaid):
		metrics.Market().ObserveDuplicatePayment()
	}
	return receipt, breakdown, err
}

// --- Queries ---

// GetAccount returns the balance account for an identity.
func (n *Node) GetAccount(addr [20]byte) (*types.Account, error) {
	var account *types.Account
	err := n.withView(func(manager *state.Manager) error {
		loaded, err := manager.GetAccount(addr[:])
		if err != nil {
			return err
		}
		account = loaded
		return nil
	})
	return account, err
}

// GetConfig returns the protocol config if initialised.
func (n *Node) GetConfig() (*market.ProtocolConfig, bool, error) {
	var (
		cfg *market.ProtocolConfig
		ok  bool
	)
	err := n.withView(func(manager *state.Manager) error {
		loaded, found, err := manager.ConfigGet()
		if err != nil {
			return err
		}
		cfg, ok = loaded, found
		return nil
	})
	return cfg, ok, err
}

// GetCreator returns a creator account by owner identity.
func (n *Node) GetCreator(owner [20]byte) (*market.CreatorAccount, bool, error) {
	var (
		acct *market.CreatorAccount
		ok   bool
	)
	err := n.withView(func(manager *state.Manager) error {
		loaded, found, err := manager.CreatorGet(owner)
		if err != nil {
			return err
		}
		acct, ok = loaded, found
		return nil
	})
	return acct, ok, err
}

// GetAccess returns the receipt for a (buyer, content) pair if the buyer has
// paid.
func (n *Node) GetAccess(buyer [20]byte, contentID uint64) (*market.AccessReceipt, bool, error) {
	var (
		receipt *market.AccessReceipt
		ok      bool
	)
	err := n.withView(func(manager *state.Manager) error {
		loaded, found, err := manager.AccessGet(buyer, contentID)
		if err != nil {
			return err
		}
		receipt, ok = loaded, found
		return nil
	})
	return receipt, ok, err
}

// ResolveUsername returns the owning identity of a registered username.
func (n *Node) ResolveUsername(username string) (*market.UsernameRecord, bool, error) {
	normalized, err := market.NormalizeUsername(username)
	if err != nil {
		return nil, false, err
	}
	var (
		rec *market.UsernameRecord
		ok  bool
	)
	viewErr := n.withView(func(manager *state.Manager) error {
		loaded, found, err := manager.UsernameGet(normalized)
		if err != nil {
			return err
		}
		rec, ok = loaded, found
		return nil
	})
	return rec, ok, viewErr
}

// GenesisAllocation seeds a balance for an identity at first boot.
type GenesisAllocation struct {
	Address [20]byte
	Amount  *big.Int
}

// EnsureGenesis initialises the protocol config and genesis balances when the
// node starts with an empty state. It is a no-op once the config exists.
func (n *Node) EnsureGenesis(admin [20]byte, feeRateBps uint32, storageVault [20]byte, allocations []GenesisAllocation) error {
	_, ok, err := n.GetConfig()
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if err := n.withState(func(engine *market.Engine) error {
		_, err := engine.InitializeConfig(admin, feeRateBps, storageVault)
		return err
	}); err != nil {
		return err
	}
	if len(allocations) == 0 {
		return nil
	}
	return n.CreditGenesis(allocations)
}

// CreditGenesis applies genesis balance allocations. Split from EnsureGenesis
// so tests and tooling can seed balances on an already-configured node.
func (n *Node) CreditGenesis(allocations []GenesisAllocation) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	work := n.stateTrie.Copy()
	manager := state.NewManager(work)
	for _, alloc := range allocations {
		if err := manager.Credit(alloc.Address, alloc.Amount); err != nil {
			return err
		}
	}
	root, err := work.Commit(n.stateTrie.Root(), n.version+1)
	if err != nil {
		return err
	}
	n.stateTrie = work
	n.version++
	if n.db != nil {
		return n.db.Put(stateRootKey, root.Bytes())
	}
	return nil
}
