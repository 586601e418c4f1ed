package service

import (
	"context"

	"github.com/veltapay/chainfunnel/internal/chain"
	"github.com/veltapay/chainfunnel/internal/models"
	"github.com/veltapay/chainfunnel/internal/observability"
	"go.uber.org/zap"
)

// ConfirmationTracker polls outbound transactions of forwarded deposits
// until they pass the chain's finality threshold.
type ConfirmationTracker struct {
	chain     models.Chain
	client    chain.Client
	deposits  DepositStore
	threshold int64
}

func NewConfirmationTracker(chainName models.Chain, client chain.Client, deposits DepositStore, threshold int64) *ConfirmationTracker {
	return &ConfirmationTracker{chain: chainName, client: client, deposits: deposits, threshold: threshold}
}

// Run checks every unconfirmed forwarded deposit once. Per-item lookup
// failures are logged and retried on the next interval.
func (t *ConfirmationTracker) Run(ctx context.Context) error {
	if _, err := nodeInSync(ctx, t.client, t.chain); err != nil {
		return err
	}

	deposits, err := t.deposits.Unconfirmed(ctx, t.chain)
	if err != nil {
		return err
	}

	for _, deposit := range deposits {
		if deposit.OutboundTxID == nil {
			continue
		}

		tx, err := t.client.GetTx(ctx, *deposit.OutboundTxID)
		if err != nil {
			zap.L().Error("failed to check confirmations",
				zap.Int64("deposit_id", deposit.ID),
				zap.String("outbound_tx_id", *deposit.OutboundTxID),
				zap.Error(err))
			continue
		}

		if tx.Confirmations > t.threshold {
			if err := t.deposits.MarkConfirmed(ctx, deposit.ID); err != nil {
				zap.L().Error("failed to mark deposit confirmed",
					zap.Int64("deposit_id", deposit.ID),
					zap.Error(err))
				continue
			}
			observability.IncrementDepositConfirmed(string(t.chain))
		}
	}
	return nil
}
