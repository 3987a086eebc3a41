package escrow

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestAssetValidate(t *testing.T) {
	tests := []struct {
		name  string
		asset Asset
		want  error
	}{
		{"valid native", NativeAsset(big.NewInt(1)), nil},
		{"valid fungible", FungibleAsset(tokenA, big.NewInt(100)), nil},
		{"valid nft", NFTAsset(nftC, big.NewInt(2)), nil},
		{"native with address", Asset{Kind: Native, Contract: tokenA, Amount: big.NewInt(1)}, ErrNativeAddress},
		{"fungible without address", Asset{Kind: Fungible, Amount: big.NewInt(1)}, ErrTokenAddress},
		{"nft without address", Asset{Kind: NFTSet, Amount: big.NewInt(1)}, ErrCollectionAddress},
		{"zero amount", FungibleAsset(tokenA, big.NewInt(0)), ErrZeroAmount},
		{"nil amount", Asset{Kind: Native}, ErrZeroAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.asset.Validate()
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAssetSame(t *testing.T) {
	if !NativeAsset(big.NewInt(1)).Same(NativeAsset(big.NewInt(99))) {
		t.Fatal("natives with different amounts are still the same asset")
	}
	if FungibleAsset(tokenA, big.NewInt(1)).Same(NFTAsset(tokenA, big.NewInt(1))) {
		t.Fatal("different kinds at the same address are not the same asset")
	}
	other := common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	if FungibleAsset(tokenA, big.NewInt(1)).Same(FungibleAsset(other, big.NewInt(1))) {
		t.Fatal("different contracts are not the same asset")
	}
}

func TestAssetCloneIsIndependent(t *testing.T) {
	a := FungibleAsset(tokenA, big.NewInt(10))
	c := a.Clone()
	c.Amount.SetInt64(99)
	if a.Amount.Int64() != 10 {
		t.Fatalf("clone shares amount: %s", a.Amount)
	}
}
