package escrow

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// Book is the order book: trades addressed by stable ID plus a per-owner
// secondary index. It is not safe for concurrent use; the engine serializes
// all access under its own lock.
type Book struct {
	trades  map[uint64]*Trade
	byOwner map[common.Address]map[uint64]struct{}
	order   []uint64 // insertion order, ascending ID
}

func NewBook() *Book {
	return &Book{
		trades:  make(map[uint64]*Trade),
		byOwner: make(map[common.Address]map[uint64]struct{}),
	}
}

func (b *Book) Insert(t *Trade) {
	b.trades[t.ID] = t
	ids, ok := b.byOwner[t.Owner]
	if !ok {
		ids = make(map[uint64]struct{})
		b.byOwner[t.Owner] = ids
	}
	ids[t.ID] = struct{}{}
	b.order = append(b.order, t.ID)
}

func (b *Book) Remove(id uint64) {
	t, ok := b.trades[id]
	if !ok {
		return
	}
	delete(b.trades, id)
	if ids := b.byOwner[t.Owner]; ids != nil {
		delete(ids, id)
		if len(ids) == 0 {
			delete(b.byOwner, t.Owner)
		}
	}
	for i, oid := range b.order {
		if oid == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

func (b *Book) Get(id uint64) (*Trade, bool) {
	t, ok := b.trades[id]
	return t, ok
}

func (b *Book) Len() int { return len(b.trades) }

// IDs returns all open trade IDs in insertion order.
func (b *Book) IDs() []uint64 {
	out := make([]uint64, len(b.order))
	copy(out, b.order)
	return out
}

// OwnerIDs returns the IDs owned by addr, ascending.
func (b *Book) OwnerIDs(owner common.Address) []uint64 {
	ids := b.byOwner[owner]
	out := make([]uint64, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
