package service

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/veltapay/chainfunnel/internal/chain"
	"github.com/veltapay/chainfunnel/internal/models"
	"go.uber.org/zap"
)

// FeeUtxoSweeperConfig configures the dust consolidation job.
type FeeUtxoSweeperConfig struct {
	Chain              models.Chain
	UtxoSpenderAddress string
	NativeMinDeposit   decimal.Decimal
	MinTxAmount        decimal.Decimal
}

// FeeUtxoSweeper consolidates leftover fee UTXOs back to the spender
// address: outputs below the deposit minimum but still worth moving, at
// addresses that hold no sufficient native balance of their own.
type FeeUtxoSweeper struct {
	cfg    FeeUtxoSweeperConfig
	client chain.AccountClient
}

func NewFeeUtxoSweeper(cfg FeeUtxoSweeperConfig, client chain.AccountClient) *FeeUtxoSweeper {
	return &FeeUtxoSweeper{cfg: cfg, client: client}
}

func (s *FeeUtxoSweeper) Run(ctx context.Context) error {
	utxos, err := s.client.GetUTXOs(ctx)
	if err != nil {
		return &NodeNotAccessibleError{Chain: s.cfg.Chain, Err: err}
	}

	for _, utxo := range utxos {
		if !s.sweepable(utxo, utxos) {
			continue
		}
		if _, err := s.client.SendCompleteUTXO(ctx, utxo.Address, s.cfg.UtxoSpenderAddress, utxo.Amount); err != nil {
			zap.L().Warn("failed to retrieve fee utxo",
				zap.String("address", utxo.Address),
				zap.String("amount", utxo.Amount.String()),
				zap.Error(err))
		}
	}
	return nil
}

func (s *FeeUtxoSweeper) sweepable(utxo chain.UTXO, all []chain.UTXO) bool {
	if utxo.Address == s.cfg.UtxoSpenderAddress {
		return false
	}
	if utxo.Amount.GreaterThanOrEqual(s.cfg.NativeMinDeposit) {
		return false
	}
	// not worth a transaction
	if utxo.Amount.Sub(s.client.UTXOFee()).LessThan(s.cfg.MinTxAmount) {
		return false
	}
	// leave addresses alone that still hold a deposit-sized balance
	for _, other := range all {
		if other.Address == utxo.Address && other.Amount.GreaterThanOrEqual(s.cfg.NativeMinDeposit) {
			return false
		}
	}
	return true
}
