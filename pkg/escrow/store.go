package escrow

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// State is the persistent engine state outside the trades themselves:
// ID counters, fee configuration and the fee ledger.
type State struct {
	LastTradeID   uint64         `json:"lastTradeId"`
	LastAssetID   uint64         `json:"lastAssetId"`
	FlatFee       *big.Int       `json:"flatFee"`
	Admin         common.Address `json:"admin"`
	AvailableFees *big.Int       `json:"availableFees"`
	CollectedFees *big.Int       `json:"collectedFees"`
}

// Store persists trades and engine state so the book survives a restart.
// Implementations must tolerate being called under the engine lock.
type Store interface {
	SaveTrade(t Trade) error
	DeleteTrade(id uint64) error
	SaveState(s State) error
}
