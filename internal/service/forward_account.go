package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/veltapay/chainfunnel/internal/chain"
	"github.com/veltapay/chainfunnel/internal/models"
	"github.com/veltapay/chainfunnel/internal/observability"
	"go.uber.org/zap"
)

// AccountForwarderConfig configures forwarding on an account-model chain.
type AccountForwarderConfig struct {
	Chain             models.Chain
	NativeAsset       string
	CollectionAddress string
	// BlockRewardMaturity holds back block-reward deposits until they are
	// deep enough to no longer be orphanable.
	BlockRewardMaturity int64
}

// AccountForwarder moves compliance-passed deposits onward. Native-coin
// deposits are swept directly; token deposits first need a fee UTXO at the
// deposit address.
type AccountForwarder struct {
	cfg      AccountForwarderConfig
	client   chain.AccountClient
	deposits DepositStore
	routes   RouteSource
	fees     *feeUTXOHelper
}

func NewAccountForwarder(cfg AccountForwarderConfig, client chain.AccountClient, deposits DepositStore, routes RouteSource, fees *feeUTXOHelper) *AccountForwarder {
	return &AccountForwarder{cfg: cfg, client: client, deposits: deposits, routes: routes, fees: fees}
}

// NewAccountForwarderFromConfig wires the forwarder with its own fee
// helper built from the spender address and deposit minimum.
func NewAccountForwarderFromConfig(cfg AccountForwarderConfig, client chain.AccountClient, deposits DepositStore, routes RouteSource, spenderAddress string, minNative decimal.Decimal) *AccountForwarder {
	return NewAccountForwarder(cfg, client, deposits, routes, newFeeUTXOHelper(client, spenderAddress, minNative))
}

func (f *AccountForwarder) Run(ctx context.Context) error {
	info, err := nodeInSync(ctx, f.client, f.cfg.Chain)
	if err != nil {
		return err
	}

	deposits, err := f.deposits.Forwardable(ctx, f.cfg.Chain)
	if err != nil {
		return err
	}

	for _, deposit := range deposits {
		// block rewards can still be orphaned while shallow
		if deposit.TxType == "blockReward" && info.Blocks <= deposit.BlockHeight+f.cfg.BlockRewardMaturity {
			continue
		}

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

func (f *AccountForwarder) forward(ctx context.Context, deposit models.Deposit) error {
	route, err := f.routes.RouteByID(ctx, deposit.RouteID)
	if err != nil {
		return fmt.Errorf("failed to load route %d: %w", deposit.RouteID, err)
	}

	// staking funds go back to the user's own address, everything else to
	// the collection wallet
	target := f.cfg.CollectionAddress
	if route.Kind == models.RouteStaking {
		target = route.UserAddress
	}

	if deposit.Asset == f.cfg.NativeAsset && utxoTxTypes[deposit.TxType] {
		result, err := f.client.SendCompleteUTXO(ctx, route.DepositAddress, target, deposit.Amount)
		if err != nil {
			return err
		}
		return f.deposits.SetOutbound(ctx, deposit.ID, result.TxID, result.Fee)
	}

	outTxID, err := f.fees.withFeeUTXO(ctx, route.DepositAddress, func(feeUTXO chain.UTXO) (string, error) {
		return f.client.SendToken(ctx, route.DepositAddress, target, deposit.Asset, deposit.Amount, feeUTXO)
	})
	if err != nil {
		return err
	}
	return f.deposits.SetOutbound(ctx, deposit.ID, outTxID, decimal.Zero)
}
