package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/veltapay/chainfunnel/internal/chain"
	"github.com/veltapay/chainfunnel/internal/compliance"
	"github.com/veltapay/chainfunnel/internal/dispatch"
	"github.com/veltapay/chainfunnel/internal/models"
	"github.com/veltapay/chainfunnel/internal/observability"
	"github.com/veltapay/chainfunnel/internal/repository"
	"go.uber.org/zap"
)

// History entry types with value legs in UTXO form. All other accepted
// types carry account (token) legs.
var utxoTxTypes = map[string]bool{
	"receive":        true,
	"AccountToUtxos": true,
	"blockReward":    true,
}

var tokenTxTypes = map[string]bool{
	"AccountToAccount":      true,
	"AnyAccountsToAccounts": true,
	"WithdrawFromVault":     true,
	"PoolSwap":              true,
	"RemovePoolLiquidity":   true,
}

// AccountScannerConfig configures an account-history-family input scan.
type AccountScannerConfig struct {
	Chain              models.Chain
	NativeAsset        string
	NativeMinDeposit   decimal.Decimal
	UsdMinDeposit      decimal.Decimal
	UtxoSpenderAddress string
}

// AccountScanner detects deposits on account-history chains. It scans the
// history of every funded address between the stored watermark and the
// current height, classifying each value leg independently.
type AccountScanner struct {
	cfg        AccountScannerConfig
	client     chain.AccountClient
	deposits   DepositStore
	routes     RouteSource
	assets     AssetSource
	oracle     compliance.Oracle
	dispatcher dispatch.Dispatcher
	converter  *ReferenceConverter
}

func NewAccountScanner(cfg AccountScannerConfig, client chain.AccountClient, deposits DepositStore, routes RouteSource, assets AssetSource, oracle compliance.Oracle, dispatcher dispatch.Dispatcher, converter *ReferenceConverter) *AccountScanner {
	return &AccountScanner{
		cfg:        cfg,
		client:     client,
		deposits:   deposits,
		routes:     routes,
		assets:     assets,
		oracle:     oracle,
		dispatcher: dispatcher,
		converter:  converter,
	}
}

// Run performs one incremental scan. The watermark is the highest block
// height already stored, so a run can only move it forward; the store's
// uniqueness constraint backstops overlapping runs.
func (s *AccountScanner) Run(ctx context.Context) error {
	info, err := nodeInSync(ctx, s.client, s.cfg.Chain)
	if err != nil {
		return err
	}

	lastHeight, err := s.deposits.MaxBlockHeight(ctx, s.cfg.Chain)
	if err != nil {
		return err
	}

	utxos, err := s.client.GetUTXOs(ctx)
	if err != nil {
		return &NodeNotAccessibleError{Chain: s.cfg.Chain, Err: err}
	}
	tokens, err := s.client.GetTokenBalances(ctx)
	if err != nil {
		return &NodeNotAccessibleError{Chain: s.cfg.Chain, Err: err}
	}

	addresses := s.addressesWithFunds(utxos, tokens)
	if len(addresses) == 0 {
		return nil
	}

	histories, err := s.client.GetHistories(ctx, addresses, lastHeight+1, info.Blocks)
	if err != nil {
		return &NodeNotAccessibleError{Chain: s.cfg.Chain, Err: err}
	}

	for _, history := range histories {
		if !utxoTxTypes[history.Type] && !tokenTxTypes[history.Type] {
			continue
		}
		if history.BlockHeight <= lastHeight {
			continue
		}

		for _, leg := range amountLegs(history) {
			deposit, err := s.classify(ctx, history, leg)
			if err != nil {
				if IsNodeNotAccessible(err) {
					// abort the run until the next interval cycle
					return err
				}
				zap.L().Error("failed to classify history leg",
					zap.String("tx_id", history.TxID),
					zap.String("asset", leg.Asset),
					zap.Error(err))
				continue
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
				zap.String("amount", deposit.Amount.String()),
				zap.Int64("height", deposit.BlockHeight))

			if err := dispatchDeposit(ctx, s.dispatcher, deposit); err != nil {
				zap.L().Error("deposit dispatch failed",
					zap.Int64("deposit_id", deposit.ID),
					zap.Error(err))
			}
		}
	}

	return nil
}

// addressesWithFunds is the deduplicated union of addresses holding a
// relevant UTXO balance or any token balance, excluding the fee spender.
func (s *AccountScanner) addressesWithFunds(utxos []chain.UTXO, tokens []chain.TokenBalance) []string {
	seen := map[string]bool{}
	var addresses []string

	add := func(addr string) {
		if addr == s.cfg.UtxoSpenderAddress || seen[addr] {
			return
		}
		seen[addr] = true
		addresses = append(addresses, addr)
	}

	for _, u := range utxos {
		if u.Amount.GreaterThanOrEqual(s.cfg.NativeMinDeposit) {
			add(u.Address)
		}
	}
	for _, t := range tokens {
		add(t.Owner)
	}
	return addresses
}

// amountLegs applies the per-type sign rules. UTXO-form legs are taken at
// absolute value regardless of sign; account legs are kept only when
// positive (the outflow leg of a swap is discarded), then normalized.
func amountLegs(history chain.HistoryEntry) []chain.AmountLeg {
	isToken := !utxoTxTypes[history.Type]

	var legs []chain.AmountLeg
	for _, raw := range history.Amounts {
		leg, err := chain.ParseAmountLeg(raw)
		if err != nil {
			zap.L().Warn("dropping malformed history leg", zap.String("tx_id", history.TxID), zap.Error(err))
			continue
		}
		leg.IsToken = isToken
		if isToken && !leg.Amount.IsPositive() {
			continue
		}
		leg.Amount = leg.Amount.Abs()
		if leg.Amount.IsZero() {
			continue
		}
		legs = append(legs, leg)
	}
	return legs
}

// classify turns one history leg into a deposit, or nil when rejected.
func (s *AccountScanner) classify(ctx context.Context, history chain.HistoryEntry, leg chain.AmountLeg) (*models.Deposit, error) {
	asset, err := s.assets.AssetBySymbol(ctx, s.cfg.Chain, leg.Asset, leg.IsToken)
	if errors.Is(err, repository.ErrAssetNotFound) {
		zap.L().Warn("no asset registered for input",
			zap.String("asset", leg.Asset),
			zap.String("tx_id", history.TxID))
		observability.IncrementDepositRejected(string(s.cfg.Chain), "unknown_asset")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if !asset.Sellable || asset.PoolPair {
		zap.L().Debug("ignoring unsellable input",
			zap.String("asset", leg.Asset),
			zap.String("tx_id", history.TxID))
		observability.IncrementDepositRejected(string(s.cfg.Chain), "unsellable")
		return nil, nil
	}

	btcAmount, usdAmount, err := s.converter.ReferenceAmounts(ctx, leg.Asset, leg.Amount)
	if err != nil {
		if IsNodeNotAccessible(err) {
			return nil, err
		}
		observability.IncrementDepositRejected(string(s.cfg.Chain), "conversion_failed")
		return nil, err
	}

	// native coin is measured in native units, tokens in USD equivalent
	if leg.Asset == s.cfg.NativeAsset {
		if leg.Amount.LessThan(s.cfg.NativeMinDeposit) {
			observability.IncrementDepositRejected(string(s.cfg.Chain), "below_minimum")
			return nil, nil
		}
	} else if usdAmount.LessThan(s.cfg.UsdMinDeposit) {
		observability.IncrementDepositRejected(string(s.cfg.Chain), "below_minimum")
		return nil, nil
	}

	route, err := s.routes.RouteByAddress(ctx, s.cfg.Chain, history.Owner)
	if errors.Is(err, repository.ErrRouteNotFound) {
		zap.L().Warn("no matching route for input",
			zap.String("address", history.Owner),
			zap.String("tx_id", history.TxID))
		observability.IncrementDepositRejected(string(s.cfg.Chain), "no_route")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	// UTXO conversions on a sell route are internal reshuffling, not deposits
	if route.Kind == models.RouteSell && history.Type == "AccountToUtxos" {
		zap.L().Debug("ignoring account-to-utxos input on sell route", zap.String("tx_id", history.TxID))
		observability.IncrementDepositRejected(string(s.cfg.Chain), "internal_transfer")
		return nil, nil
	}

	kind := kindForRoute(route)
	if route.Kind == models.RouteStaking {
		if leg.Asset != s.cfg.NativeAsset {
			zap.L().Debug("ignoring non-native input on staking route",
				zap.String("asset", leg.Asset),
				zap.String("tx_id", history.TxID))
			observability.IncrementDepositRejected(string(s.cfg.Chain), "wrong_staking_asset")
			return nil, nil
		}
		if leg.IsToken {
			// native asset in token form cannot be staked; record it and
			// return the funds once compliance passed
			kind = models.KindStakingInvalid
		}
	}

	verdict, err := complianceVerdict(ctx, s.oracle, route, compliance.TxRef{
		Chain: s.cfg.Chain,
		TxID:  history.TxID,
		Asset: leg.Asset,
	})
	if err != nil {
		return nil, err
	}

	return &models.Deposit{
		Chain:             s.cfg.Chain,
		ChainTxID:         history.TxID,
		OutputIndex:       nil,
		BlockHeight:       history.BlockHeight,
		TxType:            history.Type,
		Asset:             leg.Asset,
		Amount:            leg.Amount,
		BtcAmount:         btcAmount,
		UsdAmount:         usdAmount,
		RouteID:           route.ID,
		RouteKind:         route.Kind,
		Kind:              kind,
		ComplianceVerdict: verdict,
	}, nil
}
