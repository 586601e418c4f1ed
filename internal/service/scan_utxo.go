package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/veltapay/chainfunnel/internal/chain"
	"github.com/veltapay/chainfunnel/internal/compliance"
	"github.com/veltapay/chainfunnel/internal/dispatch"
	"github.com/veltapay/chainfunnel/internal/models"
	"github.com/veltapay/chainfunnel/internal/observability"
	"github.com/veltapay/chainfunnel/internal/repository"
	"go.uber.org/zap"
)

// UtxoScannerConfig configures a Bitcoin-family input scan.
type UtxoScannerConfig struct {
	Chain      models.Chain
	Asset      string
	MinDeposit decimal.Decimal
}

// UtxoScanner detects incoming unspent outputs at managed deposit
// addresses and records them as deposits.
type UtxoScanner struct {
	cfg        UtxoScannerConfig
	client     chain.UTXOClient
	deposits   DepositStore
	routes     RouteSource
	oracle     compliance.Oracle
	dispatcher dispatch.Dispatcher
}

func NewUtxoScanner(cfg UtxoScannerConfig, client chain.UTXOClient, deposits DepositStore, routes RouteSource, oracle compliance.Oracle, dispatcher dispatch.Dispatcher) *UtxoScanner {
	return &UtxoScanner{
		cfg:        cfg,
		client:     client,
		deposits:   deposits,
		routes:     routes,
		oracle:     oracle,
		dispatcher: dispatcher,
	}
}

// Run scans the node's unspent outputs once. Chain client faults abort the
// whole run; individual rejected observations are logged and skipped.
func (s *UtxoScanner) Run(ctx context.Context) error {
	if _, err := nodeInSync(ctx, s.client, s.cfg.Chain); err != nil {
		return err
	}

	utxos, err := s.client.GetUTXOs(ctx)
	if err != nil {
		return &NodeNotAccessibleError{Chain: s.cfg.Chain, Err: err}
	}

	for _, utxo := range utxos {
		deposit, err := s.classify(ctx, utxo)
		if err != nil {
			// fail fast so the next interval retries the whole batch
			return err
		}
		if deposit == nil {
			continue
		}

		inserted, err := s.deposits.Insert(ctx, deposit)
		if err != nil {
			zap.L().Error("failed to save deposit",
				zap.String("chain", string(s.cfg.Chain)),
				zap.String("tx_id", deposit.ChainTxID),
				zap.Error(err))
			continue
		}
		if !inserted {
			continue
		}
		observability.IncrementDepositDetected(string(s.cfg.Chain), string(deposit.Kind))
		zap.L().Info("new deposit detected",
			zap.String("chain", string(s.cfg.Chain)),
			zap.String("tx_id", deposit.ChainTxID),
			zap.String("asset", deposit.Asset),
			zap.String("amount", deposit.Amount.String()))

		if err := dispatchDeposit(ctx, s.dispatcher, deposit); err != nil {
			zap.L().Error("deposit dispatch failed",
				zap.Int64("deposit_id", deposit.ID),
				zap.Error(err))
		}
	}

	return nil
}

// classify turns one UTXO into a deposit, or nil when a business rule
// rejects it. Only chain client faults are returned as errors.
func (s *UtxoScanner) classify(ctx context.Context, utxo chain.UTXO) (*models.Deposit, error) {
	if utxo.Amount.LessThan(s.cfg.MinDeposit) {
		zap.L().Debug("ignoring too small input",
			zap.String("chain", string(s.cfg.Chain)),
			zap.String("amount", utxo.Amount.String()))
		observability.IncrementDepositRejected(string(s.cfg.Chain), "below_minimum")
		return nil, nil
	}

	route, err := s.routes.RouteByAddress(ctx, s.cfg.Chain, utxo.Address)
	if errors.Is(err, repository.ErrRouteNotFound) {
		zap.L().Warn("no matching route for input",
			zap.String("chain", string(s.cfg.Chain)),
			zap.String("address", utxo.Address))
		observability.IncrementDepositRejected(string(s.cfg.Chain), "no_route")
		return nil, nil
	}
	if err != nil {
		zap.L().Error("route lookup failed", zap.String("address", utxo.Address), zap.Error(err))
		return nil, nil
	}

	vout := utxo.Vout
	exists, err := s.deposits.Exists(ctx, s.cfg.Chain, utxo.TxID, &vout, s.cfg.Asset, route.ID)
	if err != nil {
		zap.L().Error("duplicate check failed", zap.String("tx_id", utxo.TxID), zap.Error(err))
		return nil, nil
	}
	if exists {
		return nil, nil
	}

	verdict, err := complianceVerdict(ctx, s.oracle, route, compliance.TxRef{
		Chain:       s.cfg.Chain,
		TxID:        utxo.TxID,
		OutputIndex: &vout,
		Asset:       s.cfg.Asset,
	})
	if err != nil {
		zap.L().Error("compliance check failed, skipping input", zap.String("tx_id", utxo.TxID), zap.Error(err))
		return nil, nil
	}

	return &models.Deposit{
		Chain:             s.cfg.Chain,
		ChainTxID:         utxo.TxID,
		OutputIndex:       &vout,
		TxType:            "receive",
		Asset:             s.cfg.Asset,
		Amount:            utxo.Amount.Abs(),
		BtcAmount:         utxo.Amount.Abs(),
		UsdAmount:         decimal.Zero,
		RouteID:           route.ID,
		RouteKind:         route.Kind,
		Kind:              kindForRoute(route),
		ComplianceVerdict: verdict,
	}, nil
}

// String identifies the scanner in logs.
func (s *UtxoScanner) String() string {
	return fmt.Sprintf("UtxoScanner(%s)", s.cfg.Chain)
}
