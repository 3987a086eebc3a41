package escrow

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AssetKind discriminates the three kinds of value the engine can hold.
type AssetKind uint8

const (
	Native   AssetKind = iota // chain-native coin, no contract address
	Fungible                  // fungible token, amount in smallest unit
	NFTSet                    // set of non-fungible items, amount is a count
)

func (k AssetKind) String() string {
	switch k {
	case Native:
		return "NATIVE"
	case Fungible:
		return "FUNGIBLE"
	case NFTSet:
		return "NFT"
	default:
		return fmt.Sprintf("KIND(%d)", k)
	}
}

// Asset describes a quantity of value of one kind.
// For Native the Contract field is always the zero address.
// For NFTSet the Amount is a count of items; the identities of the specific
// items held in custody live on the owning Trade, not here.
type Asset struct {
	Kind     AssetKind      `json:"kind"`
	Contract common.Address `json:"contract"`
	Amount   *big.Int       `json:"amount"`
}

func NativeAsset(amount *big.Int) Asset {
	return Asset{Kind: Native, Amount: new(big.Int).Set(amount)}
}

func FungibleAsset(contract common.Address, amount *big.Int) Asset {
	return Asset{Kind: Fungible, Contract: contract, Amount: new(big.Int).Set(amount)}
}

func NFTAsset(contract common.Address, count *big.Int) Asset {
	return Asset{Kind: NFTSet, Contract: contract, Amount: new(big.Int).Set(count)}
}

// Validate checks the structural invariants of a single asset side.
func (a Asset) Validate() error {
	if a.Amount == nil || a.Amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	switch a.Kind {
	case Native:
		if a.Contract != (common.Address{}) {
			return ErrNativeAddress
		}
	case Fungible:
		if a.Contract == (common.Address{}) {
			return ErrTokenAddress
		}
	case NFTSet:
		if a.Contract == (common.Address{}) {
			return ErrCollectionAddress
		}
	default:
		return fmt.Errorf("unknown asset kind %d", a.Kind)
	}
	return nil
}

// Same reports whether two descriptors refer to the same underlying asset
// (same kind and, for contract-backed kinds, the same contract).
func (a Asset) Same(b Asset) bool {
	return a.Kind == b.Kind && a.Contract == b.Contract
}

// Clone returns a deep copy (the amount is the only reference field).
func (a Asset) Clone() Asset {
	c := a
	if a.Amount != nil {
		c.Amount = new(big.Int).Set(a.Amount)
	}
	return c
}

func (a Asset) String() string {
	if a.Kind == Native {
		return fmt.Sprintf("%s %s", a.Amount, a.Kind)
	}
	return fmt.Sprintf("%s %s@%s", a.Amount, a.Kind, a.Contract.Hex())
}
