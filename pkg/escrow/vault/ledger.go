package vault

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Ledger is an in-memory Vault: native balances, per-contract fungible
// balances and per-contract item ownership, plus the engine's custody pool.
// It stands in for the chain's transfer primitives in a standalone service
// and carries the devnet funding surface (Fund/Mint).
type Ledger struct {
	mu     sync.Mutex
	native map[common.Address]*big.Int
	tokens map[common.Address]map[common.Address]*big.Int // contract -> holder -> balance
	items  map[common.Address]map[string]common.Address   // contract -> item id -> holder

	custodyNative *big.Int
	custodyTokens map[common.Address]*big.Int
	custodyItems  map[common.Address]map[string]struct{}
}

func NewLedger() *Ledger {
	return &Ledger{
		native:        make(map[common.Address]*big.Int),
		tokens:        make(map[common.Address]map[common.Address]*big.Int),
		items:         make(map[common.Address]map[string]common.Address),
		custodyNative: new(big.Int),
		custodyTokens: make(map[common.Address]*big.Int),
		custodyItems:  make(map[common.Address]map[string]struct{}),
	}
}

// SeedNativeCustody credits the custody pool directly. Used when rebuilding
// the ledger to back trades restored from persistence.
func (l *Ledger) SeedNativeCustody(amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.custodyNative.Add(l.custodyNative, amount)
}

// SeedTokenCustody credits the custody pool with a fungible balance.
func (l *Ledger) SeedTokenCustody(contract common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.custodyTokenOf(contract).Add(l.custodyTokenOf(contract), amount)
}

// SeedItemCustody places specific items directly into the custody pool.
func (l *Ledger) SeedItemCustody(contract common.Address, ids []*big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	set := l.custodyItemsOf(contract)
	for _, id := range ids {
		set[id.String()] = struct{}{}
	}
}

// FundNative credits addr with native coin (devnet faucet).
func (l *Ledger) FundNative(addr common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nativeOf(addr).Add(l.nativeOf(addr), amount)
}

// MintToken credits addr with a fungible token balance (devnet faucet).
func (l *Ledger) MintToken(contract, addr common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokenOf(contract, addr).Add(l.tokenOf(contract, addr), amount)
}

// MintItem assigns a fresh item of a collection to addr (devnet faucet).
// Fails if the item already exists.
func (l *Ledger) MintItem(contract, addr common.Address, id *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	coll := l.collection(contract)
	key := id.String()
	if _, exists := coll[key]; exists {
		return fmt.Errorf("item %s already minted in %s", key, contract.Hex())
	}
	if set := l.custodyItems[contract]; set != nil {
		if _, held := set[key]; held {
			return fmt.Errorf("item %s already minted in %s", key, contract.Hex())
		}
	}
	coll[key] = addr
	return nil
}

func (l *Ledger) NativeBalanceOf(addr common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.nativeOf(addr))
}

func (l *Ledger) TokenBalanceOf(contract, addr common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.tokenOf(contract, addr))
}

// ItemOwnerOf reports who holds an item; held == false when the item does not
// exist. Items in engine custody report the zero address with held == true.
func (l *Ledger) ItemOwnerOf(contract common.Address, id *big.Int) (owner common.Address, held bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := id.String()
	if o, ok := l.collection(contract)[key]; ok {
		return o, true
	}
	if set := l.custodyItems[contract]; set != nil {
		if _, ok := set[key]; ok {
			return common.Address{}, true
		}
	}
	return common.Address{}, false
}

// CustodyNative returns the native amount currently held in escrow.
func (l *Ledger) CustodyNative() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.custodyNative)
}

func (l *Ledger) Begin() Tx {
	return &ledgerTx{l: l}
}

// nativeOf and friends assume l.mu is held.
func (l *Ledger) nativeOf(addr common.Address) *big.Int {
	b, ok := l.native[addr]
	if !ok {
		b = new(big.Int)
		l.native[addr] = b
	}
	return b
}

func (l *Ledger) tokenOf(contract, addr common.Address) *big.Int {
	holders, ok := l.tokens[contract]
	if !ok {
		holders = make(map[common.Address]*big.Int)
		l.tokens[contract] = holders
	}
	b, ok := holders[addr]
	if !ok {
		b = new(big.Int)
		holders[addr] = b
	}
	return b
}

func (l *Ledger) collection(contract common.Address) map[string]common.Address {
	coll, ok := l.items[contract]
	if !ok {
		coll = make(map[string]common.Address)
		l.items[contract] = coll
	}
	return coll
}

func (l *Ledger) custodyTokenOf(contract common.Address) *big.Int {
	b, ok := l.custodyTokens[contract]
	if !ok {
		b = new(big.Int)
		l.custodyTokens[contract] = b
	}
	return b
}

func (l *Ledger) custodyItemsOf(contract common.Address) map[string]struct{} {
	set, ok := l.custodyItems[contract]
	if !ok {
		set = make(map[string]struct{})
		l.custodyItems[contract] = set
	}
	return set
}

// ledgerTx applies transfers eagerly and keeps an undo log so Discard can
// roll the ledger back to where Begin left it.
type ledgerTx struct {
	l    *Ledger
	undo []func()
	done bool
}

func (tx *ledgerTx) PullNative(from common.Address, amount *big.Int) error {
	tx.l.mu.Lock()
	defer tx.l.mu.Unlock()
	bal := tx.l.nativeOf(from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("pull native %s from %s: %w", amount, from.Hex(), ErrInsufficientBalance)
	}
	amt := new(big.Int).Set(amount)
	bal.Sub(bal, amt)
	tx.l.custodyNative.Add(tx.l.custodyNative, amt)
	tx.undo = append(tx.undo, func() {
		tx.l.custodyNative.Sub(tx.l.custodyNative, amt)
		tx.l.nativeOf(from).Add(tx.l.nativeOf(from), amt)
	})
	return nil
}

func (tx *ledgerTx) PayNative(to common.Address, amount *big.Int) error {
	tx.l.mu.Lock()
	defer tx.l.mu.Unlock()
	if tx.l.custodyNative.Cmp(amount) < 0 {
		return fmt.Errorf("pay native %s to %s: %w", amount, to.Hex(), ErrInsufficientCustody)
	}
	amt := new(big.Int).Set(amount)
	tx.l.custodyNative.Sub(tx.l.custodyNative, amt)
	tx.l.nativeOf(to).Add(tx.l.nativeOf(to), amt)
	tx.undo = append(tx.undo, func() {
		tx.l.nativeOf(to).Sub(tx.l.nativeOf(to), amt)
		tx.l.custodyNative.Add(tx.l.custodyNative, amt)
	})
	return nil
}

func (tx *ledgerTx) PullToken(contract, from common.Address, amount *big.Int) error {
	tx.l.mu.Lock()
	defer tx.l.mu.Unlock()
	bal := tx.l.tokenOf(contract, from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("pull token %s %s from %s: %w", contract.Hex(), amount, from.Hex(), ErrInsufficientBalance)
	}
	amt := new(big.Int).Set(amount)
	bal.Sub(bal, amt)
	cust := tx.l.custodyTokenOf(contract)
	cust.Add(cust, amt)
	tx.undo = append(tx.undo, func() {
		tx.l.custodyTokenOf(contract).Sub(tx.l.custodyTokenOf(contract), amt)
		tx.l.tokenOf(contract, from).Add(tx.l.tokenOf(contract, from), amt)
	})
	return nil
}

func (tx *ledgerTx) PayToken(contract, to common.Address, amount *big.Int) error {
	tx.l.mu.Lock()
	defer tx.l.mu.Unlock()
	cust := tx.l.custodyTokenOf(contract)
	if cust.Cmp(amount) < 0 {
		return fmt.Errorf("pay token %s %s to %s: %w", contract.Hex(), amount, to.Hex(), ErrInsufficientCustody)
	}
	amt := new(big.Int).Set(amount)
	cust.Sub(cust, amt)
	tx.l.tokenOf(contract, to).Add(tx.l.tokenOf(contract, to), amt)
	tx.undo = append(tx.undo, func() {
		tx.l.tokenOf(contract, to).Sub(tx.l.tokenOf(contract, to), amt)
		tx.l.custodyTokenOf(contract).Add(tx.l.custodyTokenOf(contract), amt)
	})
	return nil
}

func (tx *ledgerTx) PullItems(contract common.Address, from common.Address, ids []*big.Int) error {
	tx.l.mu.Lock()
	defer tx.l.mu.Unlock()
	coll := tx.l.collection(contract)
	set := tx.l.custodyItemsOf(contract)
	// Check and move one item at a time: a duplicate ID in the list fails its
	// second transfer because the first already moved it into custody. The
	// caller's Discard unwinds any items moved before the failure.
	for _, id := range ids {
		key := id.String()
		if owner, ok := coll[key]; !ok || owner != from {
			return fmt.Errorf("pull item %s of %s from %s: %w", id, contract.Hex(), from.Hex(), ErrNotItemOwner)
		}
		delete(coll, key)
		set[key] = struct{}{}
		tx.undo = append(tx.undo, func() {
			delete(set, key)
			coll[key] = from
		})
	}
	return nil
}

func (tx *ledgerTx) PayItems(contract common.Address, to common.Address, ids []*big.Int) error {
	tx.l.mu.Lock()
	defer tx.l.mu.Unlock()
	set := tx.l.custodyItemsOf(contract)
	coll := tx.l.collection(contract)
	for _, id := range ids {
		key := id.String()
		if _, held := set[key]; !held {
			return fmt.Errorf("pay item %s of %s to %s: %w", id, contract.Hex(), to.Hex(), ErrInsufficientCustody)
		}
		delete(set, key)
		coll[key] = to
		tx.undo = append(tx.undo, func() {
			delete(coll, key)
			set[key] = struct{}{}
		})
	}
	return nil
}

func (tx *ledgerTx) Commit() {
	tx.undo = nil
	tx.done = true
}

func (tx *ledgerTx) Discard() {
	if tx.done {
		return
	}
	tx.l.mu.Lock()
	defer tx.l.mu.Unlock()
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
	tx.done = true
}
