// Package vault provides the asset-custody capability the escrow engine
// settles through: pulling deposits into engine custody and paying custody
// out to counterparties. Implementations must make a whole Tx atomically
// reversible so a failed settlement leaves no partial transfers behind.
package vault

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInsufficientCustody = errors.New("insufficient custody")
	ErrNotItemOwner        = errors.New("item not owned by account")
)

// Vault hands out transactions. All transfers within one engine operation go
// through one Tx so they commit or roll back as a unit.
type Vault interface {
	Begin() Tx
}

// Tx is a unit of custody work. Pull moves value from an account into engine
// custody; Pay moves value from custody to an account. Effects are visible to
// later calls on the same Tx. Discard undoes everything applied so far.
type Tx interface {
	PullNative(from common.Address, amount *big.Int) error
	PayNative(to common.Address, amount *big.Int) error
	PullToken(contract, from common.Address, amount *big.Int) error
	PayToken(contract, to common.Address, amount *big.Int) error
	PullItems(contract common.Address, from common.Address, ids []*big.Int) error
	PayItems(contract common.Address, to common.Address, ids []*big.Int) error
	Commit()
	Discard()
}
