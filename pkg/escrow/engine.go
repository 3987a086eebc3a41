package escrow

import (
	"fmt"
	"math"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/zenswap/escrowd/pkg/escrow/vault"
	"github.com/zenswap/escrowd/pkg/util"
)

// Config carries the engine's fixed identities and initial fee settings.
type Config struct {
	// MinLockTime is the shortest accepted trade duration, in seconds.
	MinLockTime int64
	// FlatFee is the native-coin charge collected on every trade creation.
	FlatFee *big.Int
	// Admin may change the fee, withdraw fees and hand over administration.
	Admin common.Address
	// SystemOwner is the reserved identity whose trades never expire.
	SystemOwner common.Address
}

// Submission is one incoming trade offer.
//
// The offered asset is pulled from Owner; the native payment (flat fee plus
// any native offered amount) is pulled from Caller, who attached Value.
// Only the required native amount is drawn, the rest stays with the caller.
type Submission struct {
	Caller         common.Address
	Owner          common.Address
	Offered        Asset
	OfferedItemIDs []*big.Int
	Wanted         Asset
	AllowPartial   bool
	Duration       int64    // seconds until the trade becomes withdrawable
	Value          *big.Int // native payment attached by the caller
}

// Engine is the trade-matching and custody core. Every externally invoked
// operation runs to completion under one mutex; an operation either commits
// all of its effects or none of them.
type Engine struct {
	mu    sync.Mutex
	book  *Book
	vault vault.Vault
	store Store // optional
	clock util.Clock
	sink  EventSink
	log   *zap.SugaredLogger

	minLockTime int64
	flatFee     *big.Int
	admin       common.Address
	systemOwner common.Address

	lastTradeID   uint64
	lastAssetID   uint64
	availableFees *big.Int
	collectedFees *big.Int
}

// NewEngine wires an engine. store may be nil (no persistence); clock, sink
// and logger fall back to real clock, no-op sink and no-op logger.
func NewEngine(cfg Config, v vault.Vault, store Store, clock util.Clock, sink EventSink, logger *zap.SugaredLogger) *Engine {
	if clock == nil {
		clock = util.RealClock{}
	}
	if sink == nil {
		sink = NopSink{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	flatFee := new(big.Int)
	if cfg.FlatFee != nil {
		flatFee.Set(cfg.FlatFee)
	}
	return &Engine{
		book:          NewBook(),
		vault:         v,
		store:         store,
		clock:         clock,
		sink:          sink,
		log:           logger,
		minLockTime:   cfg.MinLockTime,
		flatFee:       flatFee,
		admin:         cfg.Admin,
		systemOwner:   cfg.SystemOwner,
		availableFees: new(big.Int),
		collectedFees: new(big.Int),
	}
}

// SetSink swaps the event sink. Call before the engine starts serving.
func (e *Engine) SetSink(sink EventSink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if sink == nil {
		sink = NopSink{}
	}
	e.sink = sink
}

// Restore loads previously persisted state and open trades into the book.
// Must be called before the engine starts serving.
func (e *Engine) Restore(s State, trades []Trade) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastTradeID = s.LastTradeID
	e.lastAssetID = s.LastAssetID
	if s.FlatFee != nil {
		e.flatFee.Set(s.FlatFee)
	}
	if s.Admin != (common.Address{}) {
		e.admin = s.Admin
	}
	if s.AvailableFees != nil {
		e.availableFees.Set(s.AvailableFees)
	}
	if s.CollectedFees != nil {
		e.collectedFees.Set(s.CollectedFees)
	}
	for i := range trades {
		t := trades[i].Snapshot()
		e.book.Insert(&t)
	}
	e.log.Infow("engine_restored", "trades", len(trades), "last_trade_id", e.lastTradeID)
}

// fill is one planned settlement between resting trade a and the incoming
// trade: aOffered/bOffered are the quantities each side delivers, aItems the
// specific NFT IDs leaving a's escrow. Book mutation is deferred until the
// vault transaction has fully succeeded.
type fill struct {
	a        *Trade
	aSnap    Trade // a as it stood entering this pairing
	bSnap    Trade // incoming remainder entering this pairing
	aOffered *big.Int
	bOffered *big.Int
	aItems   []*big.Int
	full     bool // both sides exactly exhausted
	aGone    bool // a leaves the book
	bGone    bool // incoming side exhausted by this fill
}

// SubmitTrade validates and escrows a new offer, matches it against resting
// trades, and inserts any unfilled remainder into the book. The returned ID
// identifies the submission even when it was fully consumed by matching.
func (e *Engine) SubmitTrade(s Submission) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.validate(s); err != nil {
		return 0, err
	}

	tx := e.vault.Begin()

	// Custody intake: native payment from the caller, contract-backed
	// offered asset from the stated owner.
	required := new(big.Int).Set(e.flatFee)
	if s.Offered.Kind == Native {
		required.Add(required, s.Offered.Amount)
	}
	if err := tx.PullNative(s.Caller, required); err != nil {
		tx.Discard()
		return 0, fmt.Errorf("custody intake: %w", err)
	}
	switch s.Offered.Kind {
	case Fungible:
		if err := tx.PullToken(s.Offered.Contract, s.Owner, s.Offered.Amount); err != nil {
			tx.Discard()
			return 0, fmt.Errorf("custody intake: %w", err)
		}
	case NFTSet:
		if err := tx.PullItems(s.Offered.Contract, s.Owner, s.OfferedItemIDs); err != nil {
			tx.Discard()
			return 0, fmt.Errorf("custody intake: %w", err)
		}
	}

	id := e.lastTradeID + 1
	b := &Trade{
		ID:             id,
		Owner:          s.Owner,
		Offered:        s.Offered.Clone(),
		Wanted:         s.Wanted.Clone(),
		AllowPartial:   s.AllowPartial,
		ExpiresAt:      e.clock.Now().Unix() + s.Duration,
		OfferedAssetID: e.lastAssetID + 1,
		WantedAssetID:  e.lastAssetID + 2,
	}
	if s.Offered.Kind == NFTSet {
		b.ItemIDs = make([]*big.Int, len(s.OfferedItemIDs))
		for i, itemID := range s.OfferedItemIDs {
			b.ItemIDs[i] = new(big.Int).Set(itemID)
		}
	}
	created := b.Snapshot()

	fills, err := e.match(tx, b)
	if err != nil {
		tx.Discard()
		return 0, err
	}

	// Everything settled: commit custody, then apply the book mutations and
	// emit events in scan order.
	tx.Commit()
	e.lastTradeID = id
	e.lastAssetID += 2
	e.availableFees.Add(e.availableFees, e.flatFee)

	e.sink.TradeCreated(created)
	e.log.Infow("trade_created",
		"id", id, "owner", s.Owner.Hex(),
		"offered", created.Offered.String(), "wanted", created.Wanted.String(),
		"allow_partial", s.AllowPartial, "expires_at", b.ExpiresAt)

	for _, f := range fills {
		e.applyFill(f)
	}

	if b.Wanted.Amount.Sign() > 0 {
		e.book.Insert(b)
		e.persistTrade(*b)
	}
	e.persistState()
	return id, nil
}

func (e *Engine) validate(s Submission) error {
	if err := s.Offered.Validate(); err != nil {
		return fmt.Errorf("offered: %w", err)
	}
	if err := s.Wanted.Validate(); err != nil {
		return fmt.Errorf("wanted: %w", err)
	}
	if s.Offered.Contract == s.Wanted.Contract {
		return ErrSameAsset
	}
	if s.Offered.Kind == NFTSet {
		if big.NewInt(int64(len(s.OfferedItemIDs))).Cmp(s.Offered.Amount) != 0 {
			return ErrItemCountMismatch
		}
	}
	if s.Duration < e.minLockTime {
		return ErrDurationTooLow
	}
	if s.Duration > math.MaxInt64-e.clock.Now().Unix() {
		return ErrDurationTooHigh
	}
	required := new(big.Int).Set(e.flatFee)
	if s.Offered.Kind == Native {
		required.Add(required, s.Offered.Amount)
	}
	value := s.Value
	if value == nil {
		value = new(big.Int)
	}
	if value.Cmp(required) < 0 {
		return ErrValueTooLow
	}
	return nil
}

// match scans resting trades in insertion order and stages settlements on tx
// for every compatible pairing. b's remaining amounts are reduced in place;
// resting trades are left untouched until applyFill.
//
// Two trades pair when their asset sides cross and their implied exchange
// rates reconcile exactly: a.offered*b.offered == a.wanted*b.wanted. The
// smaller side is always fully consumed, so reductions stay integral and no
// rounding is ever needed. The side left with a remainder must allow partial
// fills, otherwise the candidate is skipped and the scan continues.
func (e *Engine) match(tx vault.Tx, b *Trade) ([]fill, error) {
	var fills []fill
	for _, id := range e.book.IDs() {
		if b.Wanted.Amount.Sign() == 0 {
			break
		}
		a, ok := e.book.Get(id)
		if !ok {
			continue
		}
		if !a.Offered.Same(b.Wanted) || !a.Wanted.Same(b.Offered) {
			continue
		}
		cross1 := new(big.Int).Mul(a.Offered.Amount, b.Offered.Amount)
		cross2 := new(big.Int).Mul(a.Wanted.Amount, b.Wanted.Amount)
		if cross1.Cmp(cross2) != 0 {
			continue
		}

		f := fill{a: a, aSnap: a.Snapshot(), bSnap: b.Snapshot()}
		switch a.Offered.Amount.Cmp(b.Wanted.Amount) {
		case 0: // exact: both sides exhausted
			f.full = true
			f.aGone, f.bGone = true, true
			f.aOffered = new(big.Int).Set(a.Offered.Amount)
			f.bOffered = new(big.Int).Set(b.Offered.Amount)
		case 1: // a keeps a remainder
			if !a.AllowPartial {
				continue
			}
			f.bGone = true
			f.aOffered = new(big.Int).Set(b.Wanted.Amount)
			f.bOffered = new(big.Int).Set(b.Offered.Amount)
		case -1: // b keeps a remainder
			if !b.AllowPartial {
				continue
			}
			f.aGone = true
			f.aOffered = new(big.Int).Set(a.Offered.Amount)
			f.bOffered = new(big.Int).Set(a.Wanted.Amount)
		}

		if a.Offered.Kind == NFTSet {
			n := f.aOffered.Int64()
			f.aItems = make([]*big.Int, n)
			for i := range f.aItems {
				f.aItems[i] = new(big.Int).Set(a.ItemIDs[i])
			}
		}
		var bItems []*big.Int
		if b.Offered.Kind == NFTSet {
			bItems = b.takeItems(f.bOffered.Int64())
		}

		// Settle both legs out of custody.
		if err := e.payOut(tx, a.Offered, f.aOffered, f.aItems, b.Owner); err != nil {
			return nil, fmt.Errorf("settle trade %d: %w", a.ID, err)
		}
		if err := e.payOut(tx, b.Offered, f.bOffered, bItems, a.Owner); err != nil {
			return nil, fmt.Errorf("settle trade %d: %w", a.ID, err)
		}

		b.Offered.Amount.Sub(b.Offered.Amount, f.bOffered)
		b.Wanted.Amount.Sub(b.Wanted.Amount, f.aOffered)
		fills = append(fills, f)

		if f.bGone {
			break
		}
	}
	return fills, nil
}

func (e *Engine) payOut(tx vault.Tx, asset Asset, amount *big.Int, items []*big.Int, to common.Address) error {
	switch asset.Kind {
	case Native:
		return tx.PayNative(to, amount)
	case Fungible:
		return tx.PayToken(asset.Contract, to, amount)
	case NFTSet:
		return tx.PayItems(asset.Contract, to, items)
	default:
		return fmt.Errorf("unknown asset kind %d", asset.Kind)
	}
}

// applyFill mutates the book for one committed fill and emits its events.
func (e *Engine) applyFill(f fill) {
	if f.full {
		e.sink.TradesMatched(f.aSnap, f.bSnap)
		e.log.Infow("trades_matched", "resting", f.a.ID, "incoming", f.bSnap.ID)
	} else {
		e.sink.TradesPartiallyMatched(f.aSnap, f.bSnap)
		e.log.Infow("trades_partially_matched",
			"resting", f.a.ID, "incoming", f.bSnap.ID,
			"filled", f.aOffered.String())
	}

	if f.aGone {
		e.book.Remove(f.a.ID)
		e.sink.TradeRemoved(f.aSnap)
		e.deleteTrade(f.a.ID)
	} else {
		f.a.Offered.Amount.Sub(f.a.Offered.Amount, f.aOffered)
		f.a.Wanted.Amount.Sub(f.a.Wanted.Amount, f.bOffered)
		if f.a.Offered.Kind == NFTSet {
			f.a.takeItems(int64(len(f.aItems)))
		}
		e.persistTrade(*f.a)
	}
	if f.bGone {
		e.sink.TradeRemoved(f.bSnap)
	}
}

// Withdraw sweeps owner's expired trades, refunding each trade's remaining
// escrowed asset. Callable by anyone for any owner; trades of the system
// owner never expire and are left untouched.
func (e *Engine) Withdraw(owner common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if owner == e.systemOwner {
		return nil
	}
	now := e.clock.Now().Unix()
	var expired []*Trade
	for _, id := range e.book.OwnerIDs(owner) {
		t, ok := e.book.Get(id)
		if ok && t.ExpiresAt <= now {
			expired = append(expired, t)
		}
	}
	if len(expired) == 0 {
		return nil
	}

	tx := e.vault.Begin()
	for _, t := range expired {
		if err := e.payOut(tx, t.Offered, t.Offered.Amount, t.ItemIDs, owner); err != nil {
			tx.Discard()
			return fmt.Errorf("refund trade %d: %w", t.ID, err)
		}
	}
	tx.Commit()

	for _, t := range expired {
		snap := t.Snapshot()
		e.book.Remove(t.ID)
		e.sink.TradeRemoved(snap)
		e.deleteTrade(t.ID)
		e.log.Infow("trade_withdrawn", "id", t.ID, "owner", owner.Hex())
	}
	return nil
}

// SetFee changes the flat creation fee. Admin only.
func (e *Engine) SetFee(caller common.Address, fee *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.admin {
		return ErrNotAdmin
	}
	if fee == nil || fee.Sign() < 0 {
		return fmt.Errorf("invalid fee")
	}
	e.flatFee.Set(fee)
	e.persistState()
	e.log.Infow("fee_updated", "flat_fee", fee.String())
	return nil
}

// TransferOwnership hands administration to newAdmin. Admin only.
func (e *Engine) TransferOwnership(caller, newAdmin common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.admin {
		return ErrNotAdmin
	}
	e.admin = newAdmin
	e.persistState()
	e.log.Infow("ownership_transferred", "admin", newAdmin.Hex())
	return nil
}

// WithdrawFees pays the entire available fee balance to `to` and moves it to
// the collected total. Admin only.
func (e *Engine) WithdrawFees(caller, to common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.admin {
		return ErrNotAdmin
	}
	if e.availableFees.Sign() == 0 {
		return nil
	}
	tx := e.vault.Begin()
	if err := tx.PayNative(to, e.availableFees); err != nil {
		tx.Discard()
		return fmt.Errorf("withdraw fees: %w", err)
	}
	tx.Commit()
	e.collectedFees.Add(e.collectedFees, e.availableFees)
	e.log.Infow("fees_withdrawn", "to", to.Hex(), "amount", e.availableFees.String())
	e.availableFees.SetUint64(0)
	e.persistState()
	return nil
}

// TradesOf lists owner's open trades, ascending by ID.
func (e *Engine) TradesOf(owner common.Address) []Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := e.book.OwnerIDs(owner)
	out := make([]Trade, 0, len(ids))
	for _, id := range ids {
		if t, ok := e.book.Get(id); ok {
			out = append(out, t.Snapshot())
		}
	}
	return out
}

// AllTrades lists every open trade in insertion order.
func (e *Engine) AllTrades() []Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Trade, 0, e.book.Len())
	for _, id := range e.book.IDs() {
		if t, ok := e.book.Get(id); ok {
			out = append(out, t.Snapshot())
		}
	}
	return out
}

// TradeByID returns one open trade.
func (e *Engine) TradeByID(id uint64) (Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.book.Get(id)
	if !ok {
		return Trade{}, ErrUnknownTrade
	}
	return t.Snapshot(), nil
}

// NFTTokenIDs returns the item IDs still escrowed for a trade's offered side.
func (e *Engine) NFTTokenIDs(tradeID uint64) ([]*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.book.Get(tradeID)
	if !ok {
		return nil, ErrUnknownTrade
	}
	out := make([]*big.Int, len(t.ItemIDs))
	for i, id := range t.ItemIDs {
		out[i] = new(big.Int).Set(id)
	}
	return out, nil
}

func (e *Engine) CurrentFee() *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return new(big.Int).Set(e.flatFee)
}

func (e *Engine) AvailableFees() *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return new(big.Int).Set(e.availableFees)
}

func (e *Engine) CollectedFees() *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return new(big.Int).Set(e.collectedFees)
}

func (e *Engine) Admin() common.Address {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.admin
}

func (e *Engine) LastTradeIndex() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastTradeID
}

func (e *Engine) LastAssetIndex() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastAssetID
}

// Persistence happens after custody has committed; a store failure cannot
// unwind the operation anymore, so it is logged and served from memory.
func (e *Engine) persistTrade(t Trade) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveTrade(t); err != nil {
		e.log.Errorw("persist_trade_failed", "id", t.ID, "err", err)
	}
}

func (e *Engine) deleteTrade(id uint64) {
	if e.store == nil {
		return
	}
	if err := e.store.DeleteTrade(id); err != nil {
		e.log.Errorw("delete_trade_failed", "id", id, "err", err)
	}
}

func (e *Engine) persistState() {
	if e.store == nil {
		return
	}
	s := State{
		LastTradeID:   e.lastTradeID,
		LastAssetID:   e.lastAssetID,
		FlatFee:       new(big.Int).Set(e.flatFee),
		Admin:         e.admin,
		AvailableFees: new(big.Int).Set(e.availableFees),
		CollectedFees: new(big.Int).Set(e.collectedFees),
	}
	if err := e.store.SaveState(s); err != nil {
		e.log.Errorw("persist_state_failed", "err", err)
	}
}
