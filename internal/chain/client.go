package chain

import (
	"context"

	"github.com/shopspring/decimal"
)

// Info is the node's view of its own sync state.
type Info struct {
	Blocks  int64
	Headers int64
}

// UTXO is a single unspent output at a watched address.
type UTXO struct {
	Address string
	TxID    string
	Vout    int32
	Amount  decimal.Decimal
}

// TokenBalance is an account-model token holding.
type TokenBalance struct {
	Owner  string
	Amount decimal.Decimal
	Symbol string
}

// HistoryEntry is one account-history record. Amounts carries one leg per
// asset in "<amount>@<symbol>" form; multi-asset operations have several.
type HistoryEntry struct {
	Owner       string
	TxID        string
	BlockHeight int64
	Type        string
	Amounts     []string
}

// Tx is the chain's view of a transaction we issued.
type Tx struct {
	TxID          string
	Confirmations int64
}

// SendResult reports the outbound transaction id and the fee it paid.
type SendResult struct {
	TxID string
	Fee  decimal.Decimal
}

// Client is the node access every chain family provides.
type Client interface {
	GetInfo(ctx context.Context) (Info, error)
	GetUTXOs(ctx context.Context) ([]UTXO, error)
	GetTx(ctx context.Context, txID string) (Tx, error)
}

// UTXOClient is the Bitcoin-family node surface.
type UTXOClient interface {
	Client

	// EstimateFeeRate returns the recommended fee rate in sat/vB.
	EstimateFeeRate(ctx context.Context) (decimal.Decimal, error)
	// Send spends the given input to addr at the given fee rate.
	Send(ctx context.Context, addr, inTxID string, amount decimal.Decimal, vout int32, feeRate decimal.Decimal) (SendResult, error)
}

// AccountClient is the account-history-family (DeFiChain-like) node surface.
type AccountClient interface {
	Client

	GetTokenBalances(ctx context.Context) ([]TokenBalance, error)
	GetHistories(ctx context.Context, addresses []string, fromHeight, toHeight int64) ([]HistoryEntry, error)
	// TestConversion dry-runs a composite swap and returns the output amount.
	TestConversion(ctx context.Context, fromAsset, toAsset string, amount decimal.Decimal) (decimal.Decimal, error)

	// SendCompleteUTXO sweeps the full UTXO balance of from to to.
	SendCompleteUTXO(ctx context.Context, from, to string, amount decimal.Decimal) (SendResult, error)
	// SendUTXO sends a plain UTXO of the given amount.
	SendUTXO(ctx context.Context, from, to string, amount decimal.Decimal) (string, error)
	// SendToken transfers a token amount, paying fees from feeUTXO.
	SendToken(ctx context.Context, from, to, token string, amount decimal.Decimal, feeUTXO UTXO) (string, error)
	RemovePoolLiquidity(ctx context.Context, owner, amount string, feeUTXO UTXO) (string, error)
	CompositeSwap(ctx context.Context, from, fromToken, to, toToken string, amount decimal.Decimal, feeUTXO UTXO) (string, error)
	// ToUTXO converts account tokens of the chain's native coin to UTXO form.
	ToUTXO(ctx context.Context, from, to string, amount decimal.Decimal, feeUTXO UTXO) (string, error)

	// WaitForTx blocks until the transaction is visible in a block.
	WaitForTx(ctx context.Context, txID string) (Tx, error)
	// UTXOFee is the flat fee a plain UTXO transfer costs.
	UTXOFee() decimal.Decimal
}
