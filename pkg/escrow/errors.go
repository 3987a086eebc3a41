package escrow

import "errors"

// Validation and authorization failures surfaced to callers.
// Every rejected operation leaves the book, custody and fee ledger untouched.
var (
	ErrSameAsset         = errors.New("same asset on both sides")
	ErrNativeAddress     = errors.New("native asset address must be the zero address")
	ErrTokenAddress      = errors.New("token asset address must not be the zero address")
	ErrCollectionAddress = errors.New("nft collection address must not be the zero address")
	ErrZeroAmount        = errors.New("asset amount must be positive")
	ErrItemCountMismatch = errors.New("nft count must match the item id list")
	ErrDurationTooLow    = errors.New("lock duration below minimum")
	ErrDurationTooHigh   = errors.New("lock duration overflows the expiry time")
	ErrValueTooLow       = errors.New("attached value below required fee and payment")
	ErrNotAdmin          = errors.New("only the administrator may call this")
	ErrUnknownTrade      = errors.New("unknown trade")
)
