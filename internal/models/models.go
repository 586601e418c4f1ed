package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Chain identifies the blockchain family a deposit was observed on.
type Chain string

const (
	ChainBitcoin   Chain = "Bitcoin"
	ChainDeFiChain Chain = "DeFiChain"
)

// RouteKind determines the downstream disposition of a deposit route.
type RouteKind string

const (
	RouteSell    RouteKind = "sell"    // fiat payout
	RouteSwap    RouteKind = "swap"    // crypto payout
	RouteStaking RouteKind = "staking" // staking credit
)

// DepositKind is the derived classification of a detected deposit.
type DepositKind string

const (
	KindFiat           DepositKind = "fiat"
	KindCrypto         DepositKind = "crypto"
	KindStaking        DepositKind = "staking"
	KindStakingInvalid DepositKind = "staking_invalid"
	KindUnknown        DepositKind = "unknown"
)

// Verdict is the outcome of the compliance check on a deposit.
type Verdict string

const (
	VerdictPending Verdict = "PENDING"
	VerdictPass    Verdict = "PASS"
	VerdictFail    Verdict = "FAIL"
)

// Deposit is the ledger row for a single detected chain input.
// (chain_tx_id, output_index, asset, route_id) is unique; output_index is
// nil on account-model chains, where uniqueness drops to the remaining
// three columns.
type Deposit struct {
	ID                int64
	Chain             Chain
	ChainTxID         string
	OutputIndex       *int32
	BlockHeight       int64
	TxType            string
	Asset             string
	Amount            decimal.Decimal
	BtcAmount         decimal.Decimal
	UsdAmount         decimal.Decimal
	RouteID           int64
	RouteKind         RouteKind
	Kind              DepositKind
	ComplianceVerdict Verdict
	OutboundTxID      *string
	ForwardingFee     decimal.Decimal
	Confirmed         bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Forwarded reports whether an outbound transaction has been issued.
func (d *Deposit) Forwarded() bool {
	return d.OutboundTxID != nil && *d.OutboundTxID != ""
}

// Route is a managed deposit address and the profile behind it.
type Route struct {
	ID             int64
	Kind           RouteKind
	Chain          Chain
	DepositAddress string
	UserID         int64
	UserAddress    string
	KycRejected    bool
	// CrossAsset marks a sell route whose proceeds stay on-chain
	// (crypto-to-crypto) instead of being paid out in fiat.
	CrossAsset bool
}

// AssetInfo is a row of the asset registry.
type AssetInfo struct {
	Symbol   string
	Chain    Chain
	IsToken  bool
	Sellable bool
	PoolPair bool
}
