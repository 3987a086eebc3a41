package escrow

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zenswap/escrowd/pkg/escrow/vault"
)

var (
	admin    = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	sysOwner = common.HexToAddress("0x00000000000000000000000000000000000005e7")
	alice    = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	bob      = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
	carol    = common.HexToAddress("0x90F79bf6EB2c4f870365E785982E1f101E93b906")
	tokenA   = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	nftC     = common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")
)

var testFee = big.NewInt(1_000_000)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

// recorder captures event emission order as compact strings.
type recorder struct{ events []string }

func (r *recorder) TradeCreated(t Trade) { r.events = append(r.events, fmt.Sprintf("created:%d", t.ID)) }
func (r *recorder) TradeRemoved(t Trade) { r.events = append(r.events, fmt.Sprintf("removed:%d", t.ID)) }
func (r *recorder) TradesMatched(a, b Trade) {
	r.events = append(r.events, fmt.Sprintf("matched:%d/%d", a.ID, b.ID))
}
func (r *recorder) TradesPartiallyMatched(a, b Trade) {
	r.events = append(r.events, fmt.Sprintf("partial:%d/%d", a.ID, b.ID))
}

func newTestEngine(t *testing.T) (*Engine, *vault.Ledger, *fakeClock, *recorder) {
	t.Helper()
	ledger := vault.NewLedger()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	rec := &recorder{}
	eng := NewEngine(Config{
		MinLockTime: 10,
		FlatFee:     testFee,
		Admin:       admin,
		SystemOwner: sysOwner,
	}, ledger, nil, clock, rec, nil)
	return eng, ledger, clock, rec
}

// eth funds addr with enough native coin for fees plus amount.
func eth(ledger *vault.Ledger, addr common.Address, amount int64) {
	ledger.FundNative(addr, new(big.Int).Add(big.NewInt(amount), new(big.Int).Mul(testFee, big.NewInt(10))))
}

// value computes the native payment for a submission: fee plus any native
// offered amount.
func value(offered Asset) *big.Int {
	v := new(big.Int).Set(testFee)
	if offered.Kind == Native {
		v.Add(v, offered.Amount)
	}
	return v
}

func submit(t *testing.T, eng *Engine, owner common.Address, offered, wanted Asset, partial bool, itemIDs ...*big.Int) uint64 {
	t.Helper()
	id, err := eng.SubmitTrade(Submission{
		Caller:         owner,
		Owner:          owner,
		Offered:        offered,
		OfferedItemIDs: itemIDs,
		Wanted:         wanted,
		AllowPartial:   partial,
		Duration:       60,
		Value:          value(offered),
	})
	if err != nil {
		t.Fatalf("submit for %s: %v", owner.Hex(), err)
	}
	return id
}

func TestSubmitValidation(t *testing.T) {
	eng, ledger, _, _ := newTestEngine(t)
	eth(ledger, alice, 1_000_000)

	native := NativeAsset(big.NewInt(100))
	token := FungibleAsset(tokenA, big.NewInt(100))

	tests := []struct {
		name string
		sub  Submission
		want error
	}{
		{
			name: "same asset both sides",
			sub:  Submission{Caller: alice, Owner: alice, Offered: native, Wanted: NativeAsset(big.NewInt(50)), Duration: 60, Value: value(native)},
			want: ErrSameAsset,
		},
		{
			name: "native with contract address",
			sub:  Submission{Caller: alice, Owner: alice, Offered: Asset{Kind: Native, Contract: tokenA, Amount: big.NewInt(100)}, Wanted: Asset{Kind: Fungible, Amount: big.NewInt(1), Contract: nftC}, Duration: 60, Value: value(native)},
			want: ErrNativeAddress,
		},
		{
			name: "fungible with zero address",
			sub:  Submission{Caller: alice, Owner: alice, Offered: Asset{Kind: Fungible, Amount: big.NewInt(100)}, Wanted: Asset{Kind: Fungible, Contract: tokenA, Amount: big.NewInt(1)}, Duration: 60, Value: testFee},
			want: ErrTokenAddress,
		},
		{
			name: "nft with zero address",
			sub:  Submission{Caller: alice, Owner: alice, Offered: Asset{Kind: NFTSet, Amount: big.NewInt(1)}, Wanted: token, Duration: 60, Value: testFee},
			want: ErrCollectionAddress,
		},
		{
			name: "zero amount",
			sub:  Submission{Caller: alice, Owner: alice, Offered: FungibleAsset(tokenA, big.NewInt(0)), Wanted: native, Duration: 60, Value: testFee},
			want: ErrZeroAmount,
		},
		{
			name: "nft item count mismatch",
			sub:  Submission{Caller: alice, Owner: alice, Offered: NFTAsset(nftC, big.NewInt(2)), OfferedItemIDs: []*big.Int{big.NewInt(1)}, Wanted: native, Duration: 60, Value: testFee},
			want: ErrItemCountMismatch,
		},
		{
			name: "zero contract reported before same asset",
			sub:  Submission{Caller: alice, Owner: alice, Offered: native, Wanted: Asset{Kind: Fungible, Amount: big.NewInt(1)}, Duration: 60, Value: value(native)},
			want: ErrTokenAddress,
		},
		{
			name: "duration too low",
			sub:  Submission{Caller: alice, Owner: alice, Offered: token, Wanted: native, Duration: 5, Value: testFee},
			want: ErrDurationTooLow,
		},
		{
			name: "duration overflows expiry",
			sub:  Submission{Caller: alice, Owner: alice, Offered: token, Wanted: native, Duration: math.MaxInt64, Value: testFee},
			want: ErrDurationTooHigh,
		},
		{
			name: "attached value too low",
			sub:  Submission{Caller: alice, Owner: alice, Offered: native, Wanted: token, Duration: 60, Value: testFee},
			want: ErrValueTooLow,
		},
	}

	before := ledger.NativeBalanceOf(alice)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eng.SubmitTrade(tt.sub)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}

	if got := len(eng.AllTrades()); got != 0 {
		t.Fatalf("book should be empty, has %d trades", got)
	}
	if eng.AvailableFees().Sign() != 0 {
		t.Fatalf("no fee should accrue on rejection, got %s", eng.AvailableFees())
	}
	if after := ledger.NativeBalanceOf(alice); after.Cmp(before) != 0 {
		t.Fatalf("balance changed on rejected submissions: %s -> %s", before, after)
	}
}

func TestSubmitCustodyFailureIsAtomic(t *testing.T) {
	eng, ledger, _, rec := newTestEngine(t)
	eth(ledger, alice, 0) // native for the fee, but no tokens

	before := ledger.NativeBalanceOf(alice)
	_, err := eng.SubmitTrade(Submission{
		Caller:   alice,
		Owner:    alice,
		Offered:  FungibleAsset(tokenA, big.NewInt(100)),
		Wanted:   NativeAsset(big.NewInt(10)),
		Duration: 60,
		Value:    testFee,
	})
	if !errors.Is(err, vault.ErrInsufficientBalance) {
		t.Fatalf("got %v, want insufficient balance", err)
	}
	if after := ledger.NativeBalanceOf(alice); after.Cmp(before) != 0 {
		t.Fatalf("fee pull not rolled back: %s -> %s", before, after)
	}
	if eng.AvailableFees().Sign() != 0 || eng.LastTradeIndex() != 0 {
		t.Fatal("rejected submission mutated engine state")
	}
	if len(rec.events) != 0 {
		t.Fatalf("no events expected, got %v", rec.events)
	}
}

func TestPurePlacement(t *testing.T) {
	eng, ledger, _, rec := newTestEngine(t)
	eth(ledger, alice, 0)
	ledger.MintToken(tokenA, alice, big.NewInt(1000))

	id := submit(t, eng, alice, FungibleAsset(tokenA, big.NewInt(1000)), NativeAsset(big.NewInt(5)), false)
	if id != 1 {
		t.Fatalf("first trade id = %d, want 1", id)
	}
	if eng.LastAssetIndex() != 2 {
		t.Fatalf("asset index = %d, want 2", eng.LastAssetIndex())
	}
	if bal := ledger.TokenBalanceOf(tokenA, alice); bal.Sign() != 0 {
		t.Fatalf("tokens not escrowed, alice still has %s", bal)
	}
	if eng.AvailableFees().Cmp(testFee) != 0 {
		t.Fatalf("availableFees = %s, want %s", eng.AvailableFees(), testFee)
	}
	trades := eng.TradesOf(alice)
	if len(trades) != 1 || trades[0].ID != 1 {
		t.Fatalf("owner index wrong: %+v", trades)
	}
	if len(rec.events) != 1 || rec.events[0] != "created:1" {
		t.Fatalf("events = %v", rec.events)
	}
}

func TestFullMatch(t *testing.T) {
	eng, ledger, _, rec := newTestEngine(t)
	eth(ledger, alice, 500)
	eth(ledger, bob, 0)
	ledger.MintToken(tokenA, bob, big.NewInt(1000))

	submit(t, eng, alice, NativeAsset(big.NewInt(500)), FungibleAsset(tokenA, big.NewInt(1000)), false)
	bobBefore := ledger.NativeBalanceOf(bob)
	submit(t, eng, bob, FungibleAsset(tokenA, big.NewInt(1000)), NativeAsset(big.NewInt(500)), false)

	if got := len(eng.AllTrades()); got != 0 {
		t.Fatalf("book should be empty after full match, has %d", got)
	}
	if bal := ledger.TokenBalanceOf(tokenA, alice); bal.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("alice received %s tokens, want 1000", bal)
	}
	gotNative := new(big.Int).Sub(ledger.NativeBalanceOf(bob), bobBefore)
	wantNative := new(big.Int).Sub(big.NewInt(500), testFee)
	if gotNative.Cmp(wantNative) != 0 {
		t.Fatalf("bob native delta = %s, want %s", gotNative, wantNative)
	}
	wantEvents := []string{"created:1", "created:2", "matched:1/2", "removed:1", "removed:2"}
	if fmt.Sprint(rec.events) != fmt.Sprint(wantEvents) {
		t.Fatalf("events = %v, want %v", rec.events, wantEvents)
	}
	wantFees := new(big.Int).Mul(testFee, big.NewInt(2))
	if eng.AvailableFees().Cmp(wantFees) != 0 {
		t.Fatalf("availableFees = %s, want %s", eng.AvailableFees(), wantFees)
	}
}

func TestPriceMismatchNoMatch(t *testing.T) {
	eng, ledger, _, _ := newTestEngine(t)
	eth(ledger, alice, 500)
	eth(ledger, bob, 0)
	ledger.MintToken(tokenA, bob, big.NewInt(1001))

	submit(t, eng, alice, NativeAsset(big.NewInt(500)), FungibleAsset(tokenA, big.NewInt(1000)), false)
	submit(t, eng, bob, FungibleAsset(tokenA, big.NewInt(1001)), NativeAsset(big.NewInt(500)), false)

	if got := len(eng.AllTrades()); got != 2 {
		t.Fatalf("both trades should rest open, book has %d", got)
	}
	if bal := ledger.TokenBalanceOf(tokenA, alice); bal.Sign() != 0 {
		t.Fatalf("no settlement expected, alice has %s tokens", bal)
	}
}

func TestPartialFillMakerSurvives(t *testing.T) {
	eng, ledger, _, rec := newTestEngine(t)
	eth(ledger, alice, 0)
	ledger.MintToken(tokenA, alice, big.NewInt(1000))
	eth(ledger, bob, 50)

	submit(t, eng, alice, FungibleAsset(tokenA, big.NewInt(1000)), NativeAsset(big.NewInt(100)), true)
	submit(t, eng, bob, NativeAsset(big.NewInt(50)), FungibleAsset(tokenA, big.NewInt(500)), false)

	if bal := ledger.TokenBalanceOf(tokenA, bob); bal.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("bob received %s tokens, want 500", bal)
	}
	rest, err := eng.TradeByID(1)
	if err != nil {
		t.Fatalf("maker should survive: %v", err)
	}
	if rest.Offered.Amount.Cmp(big.NewInt(500)) != 0 || rest.Wanted.Amount.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("maker not reduced correctly: offered=%s wanted=%s", rest.Offered.Amount, rest.Wanted.Amount)
	}
	if _, err := eng.TradeByID(2); !errors.Is(err, ErrUnknownTrade) {
		t.Fatal("taker should be fully consumed")
	}
	wantEvents := []string{"created:1", "created:2", "partial:1/2", "removed:2"}
	if fmt.Sprint(rec.events) != fmt.Sprint(wantEvents) {
		t.Fatalf("events = %v, want %v", rec.events, wantEvents)
	}
}

func TestPartialFillTakerSurvives(t *testing.T) {
	eng, ledger, _, rec := newTestEngine(t)
	eth(ledger, alice, 0)
	ledger.MintToken(tokenA, alice, big.NewInt(500))
	eth(ledger, bob, 100)

	submit(t, eng, alice, FungibleAsset(tokenA, big.NewInt(500)), NativeAsset(big.NewInt(50)), false)
	submit(t, eng, bob, NativeAsset(big.NewInt(100)), FungibleAsset(tokenA, big.NewInt(1000)), true)

	if _, err := eng.TradeByID(1); !errors.Is(err, ErrUnknownTrade) {
		t.Fatal("maker should be fully consumed")
	}
	rest, err := eng.TradeByID(2)
	if err != nil {
		t.Fatalf("taker remainder should rest: %v", err)
	}
	if rest.Offered.Amount.Cmp(big.NewInt(50)) != 0 || rest.Wanted.Amount.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("taker not reduced correctly: offered=%s wanted=%s", rest.Offered.Amount, rest.Wanted.Amount)
	}
	if bal := ledger.TokenBalanceOf(tokenA, bob); bal.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("bob received %s tokens, want 500", bal)
	}
	wantEvents := []string{"created:1", "created:2", "partial:1/2", "removed:1"}
	if fmt.Sprint(rec.events) != fmt.Sprint(wantEvents) {
		t.Fatalf("events = %v, want %v", rec.events, wantEvents)
	}
}

func TestGreedyFillAcrossMakers(t *testing.T) {
	eng, ledger, _, rec := newTestEngine(t)
	eth(ledger, alice, 0)
	eth(ledger, bob, 0)
	eth(ledger, carol, 110)
	ledger.MintToken(tokenA, alice, big.NewInt(500))
	ledger.MintToken(tokenA, bob, big.NewInt(600))

	submit(t, eng, alice, FungibleAsset(tokenA, big.NewInt(500)), NativeAsset(big.NewInt(50)), false)
	submit(t, eng, bob, FungibleAsset(tokenA, big.NewInt(600)), NativeAsset(big.NewInt(60)), false)
	submit(t, eng, carol, NativeAsset(big.NewInt(110)), FungibleAsset(tokenA, big.NewInt(1100)), true)

	if got := len(eng.AllTrades()); got != 0 {
		t.Fatalf("all trades should be consumed, book has %d", got)
	}
	if bal := ledger.TokenBalanceOf(tokenA, carol); bal.Cmp(big.NewInt(1100)) != 0 {
		t.Fatalf("carol received %s tokens, want 1100", bal)
	}
	wantEvents := []string{
		"created:1", "created:2", "created:3",
		"partial:1/3", "removed:1",
		"matched:2/3", "removed:2", "removed:3",
	}
	if fmt.Sprint(rec.events) != fmt.Sprint(wantEvents) {
		t.Fatalf("events = %v, want %v", rec.events, wantEvents)
	}
}

func TestPartialPolicyRefusal(t *testing.T) {
	eng, ledger, _, _ := newTestEngine(t)
	eth(ledger, alice, 0)
	ledger.MintToken(tokenA, alice, big.NewInt(1000))
	eth(ledger, bob, 50)

	// Price-compatible but the maker would keep a remainder and does not
	// allow partial fills: the pair is skipped, both rest.
	submit(t, eng, alice, FungibleAsset(tokenA, big.NewInt(1000)), NativeAsset(big.NewInt(100)), false)
	submit(t, eng, bob, NativeAsset(big.NewInt(50)), FungibleAsset(tokenA, big.NewInt(500)), false)

	if got := len(eng.AllTrades()); got != 2 {
		t.Fatalf("both trades should rest open, book has %d", got)
	}
	if bal := ledger.TokenBalanceOf(tokenA, bob); bal.Sign() != 0 {
		t.Fatalf("no settlement expected, bob has %s tokens", bal)
	}
}

func TestNFTItemDelivery(t *testing.T) {
	eng, ledger, _, _ := newTestEngine(t)
	eth(ledger, alice, 0)
	eth(ledger, bob, 0)
	for i := int64(1); i <= 3; i++ {
		if err := ledger.MintItem(nftC, alice, big.NewInt(i)); err != nil {
			t.Fatalf("mint item %d: %v", i, err)
		}
	}
	ledger.MintToken(tokenA, bob, big.NewInt(100))

	submit(t, eng, alice, NFTAsset(nftC, big.NewInt(3)), FungibleAsset(tokenA, big.NewInt(300)), true,
		big.NewInt(1), big.NewInt(2), big.NewInt(3))
	submit(t, eng, bob, FungibleAsset(tokenA, big.NewInt(100)), NFTAsset(nftC, big.NewInt(1)), false)

	// Items are consumed from the front: bob gets item 1.
	owner, held := ledger.ItemOwnerOf(nftC, big.NewInt(1))
	if !held || owner != bob {
		t.Fatalf("item 1 owner = %s held=%v, want bob", owner.Hex(), held)
	}
	ids, err := eng.NFTTokenIDs(1)
	if err != nil {
		t.Fatalf("token ids: %v", err)
	}
	if len(ids) != 2 || ids[0].Int64() != 2 || ids[1].Int64() != 3 {
		t.Fatalf("remaining item ids = %v, want [2 3]", ids)
	}
	rest, err := eng.TradeByID(1)
	if err != nil {
		t.Fatalf("nft trade should survive: %v", err)
	}
	if rest.Offered.Amount.Cmp(big.NewInt(2)) != 0 || rest.Wanted.Amount.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("nft trade not reduced: offered=%s wanted=%s", rest.Offered.Amount, rest.Wanted.Amount)
	}
}

func TestDuplicateItemSubmissionRejected(t *testing.T) {
	eng, ledger, _, rec := newTestEngine(t)
	eth(ledger, alice, 0)
	if err := ledger.MintItem(nftC, alice, big.NewInt(5)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	// Listing the same item twice must not escrow one item while the trade
	// claims two: the second intake fails and the whole submission unwinds.
	before := ledger.NativeBalanceOf(alice)
	_, err := eng.SubmitTrade(Submission{
		Caller:         alice,
		Owner:          alice,
		Offered:        NFTAsset(nftC, big.NewInt(2)),
		OfferedItemIDs: []*big.Int{big.NewInt(5), big.NewInt(5)},
		Wanted:         NativeAsset(big.NewInt(100)),
		Duration:       60,
		Value:          testFee,
	})
	if !errors.Is(err, vault.ErrNotItemOwner) {
		t.Fatalf("got %v, want %v", err, vault.ErrNotItemOwner)
	}
	owner, held := ledger.ItemOwnerOf(nftC, big.NewInt(5))
	if !held || owner != alice {
		t.Fatalf("item 5 owner = %s held=%v, want alice", owner.Hex(), held)
	}
	if after := ledger.NativeBalanceOf(alice); after.Cmp(before) != 0 {
		t.Fatalf("fee pull not rolled back: %s -> %s", before, after)
	}
	if got := len(eng.AllTrades()); got != 0 {
		t.Fatalf("book should be empty, has %d trades", got)
	}
	if len(rec.events) != 0 {
		t.Fatalf("no events expected, got %v", rec.events)
	}
}

func TestExpiryWithdraw(t *testing.T) {
	eng, ledger, clock, rec := newTestEngine(t)
	eth(ledger, alice, 0)
	ledger.MintToken(tokenA, alice, big.NewInt(1000))

	submit(t, eng, alice, FungibleAsset(tokenA, big.NewInt(1000)), NativeAsset(big.NewInt(5)), false)

	// Not yet expired: the sweep is a no-op.
	if err := eng.Withdraw(alice); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := len(eng.TradesOf(alice)); got != 1 {
		t.Fatal("unexpired trade must not be swept")
	}

	clock.advance(61 * time.Second)
	if err := eng.Withdraw(alice); err != nil {
		t.Fatalf("withdraw after expiry: %v", err)
	}
	if got := len(eng.TradesOf(alice)); got != 0 {
		t.Fatalf("expired trade should be gone, %d remain", got)
	}
	if bal := ledger.TokenBalanceOf(tokenA, alice); bal.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("refund = %s tokens, want 1000", bal)
	}
	// The creation fee is not refunded.
	if eng.AvailableFees().Cmp(testFee) != 0 {
		t.Fatalf("availableFees = %s, want %s", eng.AvailableFees(), testFee)
	}
	if last := rec.events[len(rec.events)-1]; last != "removed:1" {
		t.Fatalf("last event = %s, want removed:1", last)
	}
}

func TestSystemOwnerNeverExpires(t *testing.T) {
	eng, ledger, clock, _ := newTestEngine(t)
	eth(ledger, admin, 0)
	ledger.MintToken(tokenA, sysOwner, big.NewInt(1000))

	// The admin seeds liquidity under the system identity.
	_, err := eng.SubmitTrade(Submission{
		Caller:   admin,
		Owner:    sysOwner,
		Offered:  FungibleAsset(tokenA, big.NewInt(1000)),
		Wanted:   NativeAsset(big.NewInt(100)),
		Duration: 60,
		Value:    testFee,
	})
	if err != nil {
		t.Fatalf("seed trade: %v", err)
	}

	clock.advance(24 * time.Hour)
	if err := eng.Withdraw(sysOwner); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := len(eng.TradesOf(sysOwner)); got != 1 {
		t.Fatalf("system trade swept, %d remain", got)
	}
}

func TestFeeLifecycle(t *testing.T) {
	eng, ledger, _, _ := newTestEngine(t)
	eth(ledger, alice, 0)
	ledger.MintToken(tokenA, alice, big.NewInt(200))

	submit(t, eng, alice, FungibleAsset(tokenA, big.NewInt(100)), NativeAsset(big.NewInt(5)), false)
	submit(t, eng, alice, FungibleAsset(tokenA, big.NewInt(100)), NativeAsset(big.NewInt(7)), false)

	wantFees := new(big.Int).Mul(testFee, big.NewInt(2))
	if eng.AvailableFees().Cmp(wantFees) != 0 {
		t.Fatalf("availableFees = %s, want %s", eng.AvailableFees(), wantFees)
	}

	if err := eng.WithdrawFees(bob, bob); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("non-admin fee withdrawal: got %v, want %v", err, ErrNotAdmin)
	}
	treasury := carol
	before := ledger.NativeBalanceOf(treasury)
	if err := eng.WithdrawFees(admin, treasury); err != nil {
		t.Fatalf("withdraw fees: %v", err)
	}
	delta := new(big.Int).Sub(ledger.NativeBalanceOf(treasury), before)
	if delta.Cmp(wantFees) != 0 {
		t.Fatalf("treasury delta = %s, want %s", delta, wantFees)
	}
	if eng.AvailableFees().Sign() != 0 {
		t.Fatalf("availableFees = %s after withdrawal, want 0", eng.AvailableFees())
	}
	if eng.CollectedFees().Cmp(wantFees) != 0 {
		t.Fatalf("collectedFees = %s, want %s", eng.CollectedFees(), wantFees)
	}
	// A second withdrawal is a no-op.
	if err := eng.WithdrawFees(admin, treasury); err != nil {
		t.Fatalf("second withdraw fees: %v", err)
	}
	if eng.CollectedFees().Cmp(wantFees) != 0 {
		t.Fatal("collectedFees changed on empty withdrawal")
	}
}

func TestAdminOps(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)

	if err := eng.SetFee(alice, big.NewInt(5)); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("non-admin setFee: got %v, want %v", err, ErrNotAdmin)
	}
	if err := eng.SetFee(admin, big.NewInt(5)); err != nil {
		t.Fatalf("setFee: %v", err)
	}
	if eng.CurrentFee().Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("flat fee = %s, want 5", eng.CurrentFee())
	}

	if err := eng.TransferOwnership(bob, bob); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("non-admin transfer: got %v, want %v", err, ErrNotAdmin)
	}
	if err := eng.TransferOwnership(admin, bob); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if eng.Admin() != bob {
		t.Fatalf("admin = %s, want bob", eng.Admin().Hex())
	}
	if err := eng.SetFee(admin, big.NewInt(7)); !errors.Is(err, ErrNotAdmin) {
		t.Fatal("old admin should have lost authority")
	}
	if err := eng.SetFee(bob, big.NewInt(7)); err != nil {
		t.Fatalf("new admin setFee: %v", err)
	}
}

func TestOnlyRequiredNativeIsDrawn(t *testing.T) {
	eng, ledger, _, _ := newTestEngine(t)
	eth(ledger, alice, 0)
	ledger.MintToken(tokenA, alice, big.NewInt(100))

	before := ledger.NativeBalanceOf(alice)
	// Attach far more value than required; only the flat fee is pulled.
	_, err := eng.SubmitTrade(Submission{
		Caller:   alice,
		Owner:    alice,
		Offered:  FungibleAsset(tokenA, big.NewInt(100)),
		Wanted:   NativeAsset(big.NewInt(5)),
		Duration: 60,
		Value:    new(big.Int).Mul(testFee, big.NewInt(3)),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	delta := new(big.Int).Sub(before, ledger.NativeBalanceOf(alice))
	if delta.Cmp(testFee) != 0 {
		t.Fatalf("native drawn = %s, want exactly the flat fee %s", delta, testFee)
	}
}
