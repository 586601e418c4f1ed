package chain

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Sim is an in-memory node used for local runs and tests. It implements
// both UTXOClient and AccountClient; state is set up through the exported
// fields and the seed helpers.
type Sim struct {
	mu sync.Mutex

	Height    int64
	Headers   int64
	UTXOs     []UTXO
	Tokens    []TokenBalance
	Histories []HistoryEntry

	// Rates maps "FROM/TO" to a conversion rate for TestConversion.
	Rates map[string]decimal.Decimal
	// FeeRate is returned by EstimateFeeRate.
	FeeRate decimal.Decimal
	// Confirmations is reported for every transaction.
	Confirmations int64

	txSeq int64
}

var _ UTXOClient = (*Sim)(nil)
var _ AccountClient = (*Sim)(nil)

// NewSim returns a synced simulated node at the given height.
func NewSim(height int64) *Sim {
	return &Sim{
		Height:        height,
		Headers:       height,
		Rates:         map[string]decimal.Decimal{},
		FeeRate:       decimal.NewFromInt(5),
		Confirmations: 1,
	}
}

func (s *Sim) GetInfo(ctx context.Context) (Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{Blocks: s.Height, Headers: s.Headers}, nil
}

func (s *Sim) GetUTXOs(ctx context.Context) ([]UTXO, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]UTXO, len(s.UTXOs))
	copy(out, s.UTXOs)
	return out, nil
}

func (s *Sim) GetTokenBalances(ctx context.Context) ([]TokenBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TokenBalance, len(s.Tokens))
	copy(out, s.Tokens)
	return out, nil
}

func (s *Sim) GetHistories(ctx context.Context, addresses []string, fromHeight, toHeight int64) ([]HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	watched := make(map[string]bool, len(addresses))
	for _, a := range addresses {
		watched[a] = true
	}

	var out []HistoryEntry
	for _, h := range s.Histories {
		if watched[h.Owner] && h.BlockHeight >= fromHeight && h.BlockHeight <= toHeight {
			out = append(out, h)
		}
	}
	return out, nil
}

func (s *Sim) TestConversion(ctx context.Context, fromAsset, toAsset string, amount decimal.Decimal) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rate, ok := s.Rates[fromAsset+"/"+toAsset]
	if !ok {
		return decimal.Zero, fmt.Errorf("no pool path %s -> %s", fromAsset, toAsset)
	}
	return amount.Mul(rate), nil
}

func (s *Sim) GetTx(ctx context.Context, txID string) (Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Tx{TxID: txID, Confirmations: s.Confirmations}, nil
}

func (s *Sim) WaitForTx(ctx context.Context, txID string) (Tx, error) {
	return s.GetTx(ctx, txID)
}

func (s *Sim) EstimateFeeRate(ctx context.Context) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FeeRate, nil
}

func (s *Sim) Send(ctx context.Context, addr, inTxID string, amount decimal.Decimal, vout int32, feeRate decimal.Decimal) (SendResult, error) {
	return SendResult{TxID: s.nextTxID(), Fee: feeRate}, nil
}

func (s *Sim) SendCompleteUTXO(ctx context.Context, from, to string, amount decimal.Decimal) (SendResult, error) {
	return SendResult{TxID: s.nextTxID(), Fee: s.UTXOFee()}, nil
}

func (s *Sim) SendUTXO(ctx context.Context, from, to string, amount decimal.Decimal) (string, error) {
	s.mu.Lock()
	txID := s.newTxIDLocked()
	// the fee UTXO becomes spendable at the destination immediately
	s.UTXOs = append(s.UTXOs, UTXO{Address: to, TxID: txID, Vout: 0, Amount: amount})
	s.mu.Unlock()
	return txID, nil
}

func (s *Sim) SendToken(ctx context.Context, from, to, token string, amount decimal.Decimal, feeUTXO UTXO) (string, error) {
	return s.nextTxID(), nil
}

func (s *Sim) RemovePoolLiquidity(ctx context.Context, owner, amount string, feeUTXO UTXO) (string, error) {
	return s.nextTxID(), nil
}

func (s *Sim) CompositeSwap(ctx context.Context, from, fromToken, to, toToken string, amount decimal.Decimal, feeUTXO UTXO) (string, error) {
	return s.nextTxID(), nil
}

func (s *Sim) ToUTXO(ctx context.Context, from, to string, amount decimal.Decimal, feeUTXO UTXO) (string, error) {
	return s.nextTxID(), nil
}

func (s *Sim) UTXOFee() decimal.Decimal {
	return decimal.RequireFromString("0.00001")
}

func (s *Sim) nextTxID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newTxIDLocked()
}

func (s *Sim) newTxIDLocked() string {
	s.txSeq++
	return fmt.Sprintf("sim-%d-%06d-%04d", time.Now().Unix(), s.txSeq, rand.Intn(10000))
}
