package dispatch

import (
	"context"

	"github.com/veltapay/chainfunnel/internal/models"
	"go.uber.org/zap"
)

// Dispatcher triggers the fulfillment pipeline for a freshly saved deposit.
// Each method is invoked at most once per deposit, right after the row was
// inserted.
type Dispatcher interface {
	// CreateFiatPayout starts the fiat payout pipeline for a sell deposit.
	CreateFiatPayout(ctx context.Context, deposit *models.Deposit) error
	// CreateCryptoPayout starts the crypto payout pipeline for a swap deposit.
	CreateCryptoPayout(ctx context.Context, deposit *models.Deposit) error
	// CreateStakingCredit credits a valid staking deposit.
	CreateStakingCredit(ctx context.Context, deposit *models.Deposit) error
	// ReturnStakingDeposit notifies the return-to-sender flow for a deposit
	// that reached a staking route with the wrong asset.
	ReturnStakingDeposit(ctx context.Context, deposit *models.Deposit) error
}

// LogDispatcher records dispatches in the log without side effects. It
// stands in for the payout/staking subsystems in local runs.
type LogDispatcher struct{}

func (LogDispatcher) CreateFiatPayout(ctx context.Context, deposit *models.Deposit) error {
	logDispatch("fiat_payout", deposit)
	return nil
}

func (LogDispatcher) CreateCryptoPayout(ctx context.Context, deposit *models.Deposit) error {
	logDispatch("crypto_payout", deposit)
	return nil
}

func (LogDispatcher) CreateStakingCredit(ctx context.Context, deposit *models.Deposit) error {
	logDispatch("staking_credit", deposit)
	return nil
}

func (LogDispatcher) ReturnStakingDeposit(ctx context.Context, deposit *models.Deposit) error {
	logDispatch("staking_return", deposit)
	return nil
}

func logDispatch(pipeline string, deposit *models.Deposit) {
	zap.L().Info("deposit dispatched",
		zap.String("pipeline", pipeline),
		zap.String("chain", string(deposit.Chain)),
		zap.String("tx_id", deposit.ChainTxID),
		zap.String("asset", deposit.Asset),
		zap.String("amount", deposit.Amount.String()),
	)
}
