package service

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/veltapay/chainfunnel/internal/chain"
	"github.com/veltapay/chainfunnel/internal/models"
	"github.com/veltapay/chainfunnel/internal/observability"
	"go.uber.org/zap"
)

// UtxoForwarderConfig configures forwarding on a Bitcoin-family chain.
type UtxoForwarderConfig struct {
	Chain             models.Chain
	CollectionAddress string
	// FeeRateFloor and FeeRateCeilingFactor bound the applied fee rate:
	// rate = max(floor, min(recommended, factor * amount)).
	FeeRateFloor         decimal.Decimal
	FeeRateCeilingFactor decimal.Decimal
}

// UtxoForwarder moves compliance-passed deposits from their deposit
// address to the collection wallet, one send per deposit.
type UtxoForwarder struct {
	cfg      UtxoForwarderConfig
	client   chain.UTXOClient
	deposits DepositStore
}

func NewUtxoForwarder(cfg UtxoForwarderConfig, client chain.UTXOClient, deposits DepositStore) *UtxoForwarder {
	return &UtxoForwarder{cfg: cfg, client: client, deposits: deposits}
}

func (f *UtxoForwarder) Run(ctx context.Context) error {
	if _, err := nodeInSync(ctx, f.client, f.cfg.Chain); err != nil {
		return err
	}

	deposits, err := f.deposits.Forwardable(ctx, f.cfg.Chain)
	if err != nil {
		return err
	}

	for _, deposit := range deposits {
		if err := f.forward(ctx, deposit); err != nil {
			zap.L().Error("failed to forward deposit",
				zap.Int64("deposit_id", deposit.ID),
				zap.Error(err))
			continue
		}
		observability.IncrementDepositForwarded(string(f.cfg.Chain))
	}
	return nil
}

func (f *UtxoForwarder) forward(ctx context.Context, deposit models.Deposit) error {
	feeRate, err := f.feeRate(ctx, deposit.Amount)
	if err != nil {
		return err
	}

	vout := int32(0)
	if deposit.OutputIndex != nil {
		vout = *deposit.OutputIndex
	}

	result, err := f.client.Send(ctx, f.cfg.CollectionAddress, deposit.ChainTxID, deposit.Amount, vout, feeRate)
	if err != nil {
		return err
	}
	return f.deposits.SetOutbound(ctx, deposit.ID, result.TxID, result.Fee)
}

// feeRate clamps the recommended rate between the configured floor and a
// ceiling proportional to the amount moved, so small deposits are never
// consumed by fees.
func (f *UtxoForwarder) feeRate(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	recommended, err := f.client.EstimateFeeRate(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	ceiling := f.cfg.FeeRateCeilingFactor.Mul(amount)
	rate := decimal.Min(recommended, ceiling)
	return decimal.Max(rate, f.cfg.FeeRateFloor).Floor(), nil
}
