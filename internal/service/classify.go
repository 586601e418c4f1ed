package service

import (
	"context"
	"fmt"

	"github.com/veltapay/chainfunnel/internal/compliance"
	"github.com/veltapay/chainfunnel/internal/dispatch"
	"github.com/veltapay/chainfunnel/internal/models"
)

// kindForRoute derives the downstream classification from the route type.
// Sell routes flagged as cross-asset keep the proceeds on-chain.
func kindForRoute(route *models.Route) models.DepositKind {
	switch route.Kind {
	case models.RouteSell:
		if route.CrossAsset {
			return models.KindCrypto
		}
		return models.KindFiat
	case models.RouteSwap:
		return models.KindCrypto
	case models.RouteStaking:
		return models.KindStaking
	default:
		return models.KindUnknown
	}
}

// complianceVerdict attaches the screening outcome. A KYC-rejected user
// fails without consulting the oracle.
func complianceVerdict(ctx context.Context, oracle compliance.Oracle, route *models.Route, ref compliance.TxRef) (models.Verdict, error) {
	if route.KycRejected {
		return models.VerdictFail, nil
	}
	verdict, err := oracle.Check(ctx, route.UserID, ref)
	if err != nil {
		return models.VerdictPending, fmt.Errorf("compliance check for %s: %w", ref.TxID, err)
	}
	return verdict, nil
}

// dispatchDeposit notifies the fulfillment pipeline matching the deposit
// kind. Staking dispositions require a passed compliance check.
func dispatchDeposit(ctx context.Context, dispatcher dispatch.Dispatcher, deposit *models.Deposit) error {
	switch deposit.Kind {
	case models.KindFiat:
		return dispatcher.CreateFiatPayout(ctx, deposit)
	case models.KindCrypto:
		return dispatcher.CreateCryptoPayout(ctx, deposit)
	case models.KindStaking:
		if deposit.ComplianceVerdict == models.VerdictPass {
			return dispatcher.CreateStakingCredit(ctx, deposit)
		}
	case models.KindStakingInvalid:
		if deposit.ComplianceVerdict == models.VerdictPass {
			return dispatcher.ReturnStakingDeposit(ctx, deposit)
		}
	}
	return nil
}
