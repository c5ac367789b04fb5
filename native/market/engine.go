package market

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"autonledger/core/events"
	"autonledger/core/types"
)

type engineState interface {
	ConfigGet() (*ProtocolConfig, bool, error)
	ConfigCreate(cfg *ProtocolConfig) error
	ConfigPut(cfg *ProtocolConfig) error
	UsernameGet(username string) (*UsernameRecord, bool, error)
	UsernameCreate(rec *UsernameRecord) error
	CreatorGet(owner [20]byte) (*CreatorAccount, bool, error)
	CreatorCreate(acct *CreatorAccount) error
	CreatorPut(acct *CreatorAccount) error
	AccessGet(buyer [20]byte, contentID uint64) (*AccessReceipt, bool, error)
	AccessCreate(receipt *AccessReceipt) error
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
	ChargeStorage(payer [20]byte, vault [20]byte, growth uint64) (*big.Int, error)
}

// Engine wires the content-monetization transitions with persistence and
// event emission. It holds no locks and performs no retries: serialization
// and atomicity come from the node executing each operation against an
// exclusive, speculative state that is only committed on success.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine constructs a market engine with default dependencies.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn: func() int64 {
			return time.Now().Unix()
		},
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for deterministic testing.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(WrapEvent(evt))
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func ensureAccount(acc *types.Account) *types.Account {
	if acc == nil {
		return &types.Account{Balance: big.NewInt(0)}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}

// InitializeConfig creates the protocol config singleton with the caller as
// administrator. It can succeed at most once; later attempts collide at the
// config address.
func (e *Engine) InitializeConfig(caller [20]byte, feeRateBps uint32, storageVault [20]byte) (*ProtocolConfig, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if feeRateBps > MaxFeeRateBps {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFeeBps, feeRateBps)
	}
	cfg := &ProtocolConfig{
		Admin:        caller,
		FeeRateBps:   feeRateBps,
		StorageVault: storageVault,
	}
	if err := e.state.ConfigCreate(cfg); err != nil {
		return nil, err
	}
	e.emit(ConfigUpdatedEvent(hexAddr(cfg.Admin), cfg.FeeRateBps))
	return cfg.Clone(), nil
}

// UpdateConfig applies a partial update to the singleton. Only the current
// administrator may call it; fields left nil keep their current value.
func (e *Engine) UpdateConfig(caller [20]byte, update ConfigUpdate) (*ProtocolConfig, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	cfg, ok, err := e.state.ConfigGet()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConfigNotFound
	}
	if caller != cfg.Admin {
		return nil, ErrUnauthorized
	}
	if update.FeeRateBps != nil && *update.FeeRateBps > MaxFeeRateBps {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFeeBps, *update.FeeRateBps)
	}
	if update.Admin != nil {
		cfg.Admin = *update.Admin
	}
	if update.FeeRateBps != nil {
		cfg.FeeRateBps = *update.FeeRateBps
	}
	if update.StorageVault != nil {
		cfg.StorageVault = *update.StorageVault
	}
	if err := e.state.ConfigPut(cfg); err != nil {
		return nil, err
	}
	e.emit(ConfigUpdatedEvent(hexAddr(cfg.Admin), cfg.FeeRateBps))
	return cfg.Clone(), nil
}

// RegisterUsername claims a unique handle for the caller. Uniqueness is
// enforced solely by the username-derived record address: the first claim
// wins and every later claim fails at creation.
func (e *Engine) RegisterUsername(caller [20]byte, username string) (*UsernameRecord, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	normalized, err := NormalizeUsername(username)
	if err != nil {
		return nil, err
	}
	rec := &UsernameRecord{Owner: caller, Username: normalized}
	if err := e.state.UsernameCreate(rec); err != nil {
		return nil, err
	}
	account, err := e.state.GetAccount(caller[:])
	if err != nil {
		return nil, err
	}
	account = ensureAccount(account)
	account.Username = normalized
	if err := e.state.PutAccount(caller[:], account); err != nil {
		return nil, err
	}
	e.emit(UsernameRegisteredEvent(normalized, hexAddr(caller)))
	return rec, nil
}

// InitializeCreator creates an empty creator account for the caller with a
// zeroed content counter. The payer is charged rent for the base footprint;
// it need not be the caller.
func (e *Engine) InitializeCreator(caller [20]byte, payer [20]byte) (*CreatorAccount, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	cfg, ok, err := e.state.ConfigGet()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConfigNotFound
	}
	acct := &CreatorAccount{
		Owner:         caller,
		NextContentID: 0,
		Content:       []ContentItem{},
		StorageSize:   CreatorAccountSize(0, 0),
	}
	if err := e.state.CreatorCreate(acct); err != nil {
		return nil, err
	}
	if _, err := e.state.ChargeStorage(payer, cfg.StorageVault, acct.StorageSize); err != nil {
		return nil, err
	}
	e.emit(CreatorInitializedEvent(hexAddr(caller)))
	return acct.Clone(), nil
}

// AddContent appends a priced item to the creator's catalogue. The id is the
// pre-incremented counter, so ids start at 1 and are strictly increasing in
// append order. Storage growth is charged to the payer in the same operation.
func (e *Engine) AddContent(caller [20]byte, creator [20]byte, payer [20]byte, title string, price *big.Int, encryptedLocator []byte) (*ContentItem, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if price == nil || price.Sign() < 0 {
		return nil, ErrInvalidPrice
	}
	if len(title) > maxTitleLength {
		return nil, fmt.Errorf("%w: title exceeds %d bytes", ErrContentTooLarge, maxTitleLength)
	}
	if len(encryptedLocator) > maxLocatorLength {
		return nil, fmt.Errorf("%w: locator exceeds %d bytes", ErrContentTooLarge, maxLocatorLength)
	}
	cfg, ok, err := e.state.ConfigGet()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConfigNotFound
	}
	acct, ok, err := e.state.CreatorGet(creator)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCreatorNotFound
	}
	if acct.Owner != caller {
		return nil, ErrUnauthorized
	}
	id := acct.NextContentID + 1
	acct.NextContentID = id
	item := ContentItem{
		ID:               id,
		Title:            title,
		Price:            new(big.Int).Set(price),
		EncryptedLocator: append([]byte(nil), encryptedLocator...),
	}
	acct.Content = append(acct.Content, item)
	if err := e.resize(acct, payer, cfg.StorageVault); err != nil {
		return nil, err
	}
	if err := e.state.CreatorPut(acct); err != nil {
		return nil, err
	}
	e.emit(ContentPublishedEvent(hexAddr(acct.Owner), id, title, price.String()))
	return item.Clone(), nil
}

// UpdateProfile replaces the creator's profile locator, resizing the account
// to fit. Growth is charged to the caller.
func (e *Engine) UpdateProfile(caller [20]byte, creator [20]byte, profile string) (*CreatorAccount, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	cfg, ok, err := e.state.ConfigGet()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConfigNotFound
	}
	if len(profile) > maxProfileLocator {
		return nil, fmt.Errorf("%w: profile locator exceeds %d bytes", ErrContentTooLarge, maxProfileLocator)
	}
	acct, ok, err := e.state.CreatorGet(creator)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCreatorNotFound
	}
	if acct.Owner != caller {
		return nil, ErrUnauthorized
	}
	acct.Profile = profile
	if err := e.resize(acct, caller, cfg.StorageVault); err != nil {
		return nil, err
	}
	if err := e.state.CreatorPut(acct); err != nil {
		return nil, err
	}
	e.emit(ProfileUpdatedEvent(hexAddr(acct.Owner), profile))
	return acct.Clone(), nil
}

// resize grows the account's recorded footprint to the planned capacity and
// charges the payer for the delta. Capacity never shrinks; over-provisioning
// is acceptable, under-provisioning would be a fatal host-ledger failure.
func (e *Engine) resize(acct *CreatorAccount, payer [20]byte, vault [20]byte) error {
	required := CreatorAccountSize(len(acct.Content), len(acct.Profile))
	if required <= acct.StorageSize {
		return nil
	}
	growth := required - acct.StorageSize
	cost, err := e.state.ChargeStorage(payer, vault, growth)
	if err != nil {
		return err
	}
	acct.StorageSize = required
	e.emit(StorageChargedEvent(hexAddr(payer), growth, cost.String()))
	return nil
}

// ProcessPayment settles a purchase: it splits the item price between the
// configured administrator and the creator recorded in the account, then
// creates the access receipt at the (buyer, content) derived address. The
// receipt creation is what enforces exactly-once payment; on any failure the
// node rolls the whole operation back, transfers included.
func (e *Engine) ProcessPayment(buyer [20]byte, creator [20]byte, contentID uint64, admin [20]byte) (*AccessReceipt, *PaymentBreakdown, error) {
	if e == nil || e.state == nil {
		return nil, nil, ErrNilState
	}
	cfg, ok, err := e.state.ConfigGet()
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, ErrConfigNotFound
	}
	// Address-equality check against the caller-supplied admin identity, not
	// a lookup: the fee must route to the configured admin or not at all.
	if admin != cfg.Admin {
		return nil, nil, ErrAdminMismatch
	}
	acct, ok, err := e.state.CreatorGet(creator)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, ErrCreatorNotFound
	}
	item, ok := acct.FindContent(contentID)
	if !ok {
		return nil, nil, fmt.Errorf("%w: id %d", ErrContentNotFound, contentID)
	}
	total := new(big.Int).Set(item.Price)
	fee, creatorShare := SplitFee(total, cfg.FeeRateBps)

	buyerAccount, err := e.state.GetAccount(buyer[:])
	if err != nil {
		return nil, nil, err
	}
	buyerAccount = ensureAccount(buyerAccount)
	if buyerAccount.Balance.Cmp(total) < 0 {
		return nil, nil, fmt.Errorf("%w: price %s exceeds buyer balance %s", ErrInsufficientFunds, total, buyerAccount.Balance)
	}
	buyerAccount.Balance = new(big.Int).Sub(buyerAccount.Balance, total)
	if err := e.state.PutAccount(buyer[:], buyerAccount); err != nil {
		return nil, nil, err
	}
	if fee.Sign() > 0 {
		adminAccount, err := e.state.GetAccount(cfg.Admin[:])
		if err != nil {
			return nil, nil, err
		}
		adminAccount = ensureAccount(adminAccount)
		adminAccount.Balance = new(big.Int).Add(adminAccount.Balance, fee)
		if err := e.state.PutAccount(cfg.Admin[:], adminAccount); err != nil {
			return nil, nil, err
		}
	}
	// The creator share always routes to the owner recorded in the creator
	// account, never to a caller-supplied destination.
	ownerAccount, err := e.state.GetAccount(acct.Owner[:])
	if err != nil {
		return nil, nil, err
	}
	ownerAccount = ensureAccount(ownerAccount)
	ownerAccount.Balance = new(big.Int).Add(ownerAccount.Balance, creatorShare)
	if err := e.state.PutAccount(acct.Owner[:], ownerAccount); err != nil {
		return nil, nil, err
	}

	receipt := &AccessReceipt{
		Buyer:     buyer,
		ContentID: contentID,
		Creator:   acct.Owner,
		CreatedAt: e.now(),
	}
	if err := e.state.AccessCreate(receipt); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, nil, ErrAlreadyPaid
		}
		return nil, nil, err
	}
	e.emit(ContentPurchasedEvent(hexAddr(buyer), hexAddr(acct.Owner), contentID, total.String(), fee.String()))
	breakdown := &PaymentBreakdown{Total: total, Fee: fee, CreatorShare: creatorShare}
	return receipt.Clone(), breakdown, nil
}

// Receipt returns the access receipt for the supplied pair without mutating
// state; absence simply means the buyer has not paid.
func (e *Engine) Receipt(buyer [20]byte, contentID uint64) (*AccessReceipt, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, ErrNilState
	}
	receipt, ok, err := e.state.AccessGet(buyer, contentID)
	if err != nil || !ok {
		return nil, false, err
	}
	return receipt.Clone(), true, nil
}
