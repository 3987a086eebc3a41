package escrow

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Trade is one open offer: custody of Offered is held by the engine for the
// trade's entire lifetime until it is matched away or withdrawn.
//
// Partial fills reduce Offered/Wanted in place; nothing else ever mutates a
// trade. ItemIDs is populated only when Offered is an NFT set and holds the
// identities of the escrowed items in deposit order, length == Offered.Amount.
// Fills consume items from the front.
type Trade struct {
	ID           uint64         `json:"id"`
	Owner        common.Address `json:"owner"`
	Offered      Asset          `json:"offered"`
	Wanted       Asset          `json:"wanted"`
	AllowPartial bool           `json:"allowPartial"`
	ExpiresAt    int64          `json:"expiresAt"` // unix seconds

	// Monotonic asset indices assigned at submission (offered first).
	OfferedAssetID uint64 `json:"offeredAssetId"`
	WantedAssetID  uint64 `json:"wantedAssetId"`

	ItemIDs []*big.Int `json:"itemIds,omitempty"`
}

// Snapshot returns a deep copy, safe to hand to event listeners and API
// responses while the original keeps mutating under the engine lock.
func (t *Trade) Snapshot() Trade {
	c := *t
	c.Offered = t.Offered.Clone()
	c.Wanted = t.Wanted.Clone()
	if t.ItemIDs != nil {
		c.ItemIDs = make([]*big.Int, len(t.ItemIDs))
		for i, id := range t.ItemIDs {
			c.ItemIDs[i] = new(big.Int).Set(id)
		}
	}
	return c
}

// takeItems removes and returns the first n escrowed item IDs.
func (t *Trade) takeItems(n int64) []*big.Int {
	out := t.ItemIDs[:n:n]
	t.ItemIDs = t.ItemIDs[n:]
	return out
}
