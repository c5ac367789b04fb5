package market

import "errors"

var (
	// ErrNilState is returned when an engine is used before a state backend
	// has been configured.
	ErrNilState = errors.New("market: state not configured")
	// ErrUnauthorized is returned when the caller is not the owner or admin
	// the mutation requires.
	ErrUnauthorized = errors.New("market: unauthorized")
	// ErrInvalidFeeBps is returned when a fee rate exceeds 10000 basis points.
	ErrInvalidFeeBps = errors.New("market: fee rate exceeds 10000 basis points")
	// ErrInvalidUsername is returned when a username fails validation.
	ErrInvalidUsername = errors.New("market: invalid username")
	// ErrInvalidPrice is returned when a content price is missing or negative.
	ErrInvalidPrice = errors.New("market: price must be a non-negative integer")
	// ErrContentTooLarge is returned when a title, locator, or profile exceeds
	// the fixed budget the capacity planner reserves for it.
	ErrContentTooLarge = errors.New("market: content exceeds size budget")
	// ErrConfigNotFound is returned when the protocol config singleton has not
	// been initialised yet.
	ErrConfigNotFound = errors.New("market: protocol config not initialised")
	// ErrCreatorNotFound is returned when no creator account exists at the
	// derived address.
	ErrCreatorNotFound = errors.New("market: creator account not found")
	// ErrContentNotFound is returned when a content id is absent from the
	// creator's catalogue.
	ErrContentNotFound = errors.New("market: content not found")
	// ErrAlreadyExists is surfaced by the state layer when a record creation
	// collides with an existing derived address. The engine never performs its
	// own duplicate scan; this collision is the entire uniqueness mechanism.
	ErrAlreadyExists = errors.New("market: record already exists")
	// ErrAlreadyPaid is returned when an access receipt already exists for the
	// (buyer, content) pair.
	ErrAlreadyPaid = errors.New("market: content already paid for")
	// ErrAdminMismatch is returned when the admin identity supplied with a
	// payment does not match the configured admin.
	ErrAdminMismatch = errors.New("market: admin identity mismatch")
	// ErrInsufficientFunds is returned when a transfer or rent charge exceeds
	// the payer's balance.
	ErrInsufficientFunds = errors.New("market: insufficient balance")
)
