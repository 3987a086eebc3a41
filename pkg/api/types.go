package api

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zenswap/escrowd/pkg/escrow"
)

// REST request/response types and WebSocket messages. Amounts travel as
// decimal strings so u256 values survive JSON.

// AssetView is one side of a trade.
type AssetView struct {
	Kind     string `json:"kind"`     // "NATIVE" | "FUNGIBLE" | "NFT"
	Contract string `json:"contract"` // hex address, zero for NATIVE
	Amount   string `json:"amount"`   // decimal; item count for NFT
}

// TradeView is the API shape of an open trade.
type TradeView struct {
	ID             uint64    `json:"id"`
	Owner          string    `json:"owner"`
	Offered        AssetView `json:"offered"`
	Wanted         AssetView `json:"wanted"`
	AllowPartial   bool      `json:"allowPartial"`
	ExpiresAt      int64     `json:"expiresAt"`
	OfferedAssetID uint64    `json:"offeredAssetId"`
	WantedAssetID  uint64    `json:"wantedAssetId"`
	ItemIDs        []string  `json:"itemIds,omitempty"`
}

// SubmitTradeRequest is the payload for POST /api/v1/trades.
// Value is the attached native payment covering the flat fee plus any
// native offered amount.
type SubmitTradeRequest struct {
	Caller         string    `json:"caller"`
	Owner          string    `json:"owner"`
	Offered        AssetView `json:"offered"`
	OfferedItemIDs []string  `json:"offeredItemIds,omitempty"`
	Wanted         AssetView `json:"wanted"`
	AllowPartial   bool      `json:"allowPartial"`
	Duration       int64     `json:"duration"` // seconds
	Value          string    `json:"value"`
}

type SubmitTradeResponse struct {
	Status  string `json:"status"`
	TradeID uint64 `json:"tradeId"`
}

// FeesResponse reports the fee ledger and engine counters.
type FeesResponse struct {
	FlatFee        string `json:"flatFee"`
	AvailableFees  string `json:"availableFees"`
	CollectedFees  string `json:"collectedFees"`
	Admin          string `json:"admin"`
	LastTradeIndex uint64 `json:"lastTradeIndex"`
	LastAssetIndex uint64 `json:"lastAssetIndex"`
}

type SetFeeRequest struct {
	Caller  string `json:"caller"`
	FlatFee string `json:"flatFee"`
}

type TransferOwnershipRequest struct {
	Caller   string `json:"caller"`
	NewAdmin string `json:"newAdmin"`
}

type WithdrawFeesRequest struct {
	Caller string `json:"caller"`
	To     string `json:"to"`
}

// FaucetRequest funds a devnet account: native coin when Contract is empty,
// a fungible balance otherwise, or one NFT item when ItemID is set.
type FaucetRequest struct {
	Address  string `json:"address"`
	Contract string `json:"contract,omitempty"`
	Amount   string `json:"amount,omitempty"`
	ItemID   string `json:"itemId,omitempty"`
}

type BalanceResponse struct {
	Address string `json:"address"`
	Native  string `json:"native"`
	Token   string `json:"token,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WSSubscribeRequest is sent by clients to manage channel subscriptions.
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g. ["trades"]
}

// TradeEvent is broadcast for created/removed lifecycle events.
type TradeEvent struct {
	Type  string    `json:"type"` // "trade_created" | "trade_removed"
	Trade TradeView `json:"trade"`
}

// MatchEvent is broadcast for full and partial matches.
type MatchEvent struct {
	Type     string    `json:"type"` // "trades_matched" | "trades_partially_matched"
	Resting  TradeView `json:"resting"`
	Incoming TradeView `json:"incoming"`
}

func assetView(a escrow.Asset) AssetView {
	return AssetView{
		Kind:     a.Kind.String(),
		Contract: a.Contract.Hex(),
		Amount:   a.Amount.String(),
	}
}

func tradeView(t escrow.Trade) TradeView {
	v := TradeView{
		ID:             t.ID,
		Owner:          t.Owner.Hex(),
		Offered:        assetView(t.Offered),
		Wanted:         assetView(t.Wanted),
		AllowPartial:   t.AllowPartial,
		ExpiresAt:      t.ExpiresAt,
		OfferedAssetID: t.OfferedAssetID,
		WantedAssetID:  t.WantedAssetID,
	}
	for _, id := range t.ItemIDs {
		v.ItemIDs = append(v.ItemIDs, id.String())
	}
	return v
}

func parseAsset(v AssetView) (escrow.Asset, error) {
	amount, err := parseAmount(v.Amount)
	if err != nil {
		return escrow.Asset{}, err
	}
	var contract common.Address
	if v.Contract != "" {
		if !common.IsHexAddress(v.Contract) {
			return escrow.Asset{}, fmt.Errorf("invalid contract address %q", v.Contract)
		}
		contract = common.HexToAddress(v.Contract)
	}
	switch strings.ToUpper(v.Kind) {
	case "NATIVE":
		return escrow.Asset{Kind: escrow.Native, Contract: contract, Amount: amount}, nil
	case "FUNGIBLE":
		return escrow.Asset{Kind: escrow.Fungible, Contract: contract, Amount: amount}, nil
	case "NFT":
		return escrow.Asset{Kind: escrow.NFTSet, Contract: contract, Amount: amount}, nil
	default:
		return escrow.Asset{}, fmt.Errorf("unknown asset kind %q", v.Kind)
	}
}

func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return n, nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}
