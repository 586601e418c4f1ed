package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/veltapay/chainfunnel/internal/models"
)

func TestKindForRoute(t *testing.T) {
	cases := []struct {
		name  string
		route models.Route
		want  models.DepositKind
	}{
		{name: "sell_pays_fiat", route: models.Route{Kind: models.RouteSell}, want: models.KindFiat},
		{name: "cross_asset_sell_stays_crypto", route: models.Route{Kind: models.RouteSell, CrossAsset: true}, want: models.KindCrypto},
		{name: "swap_pays_crypto", route: models.Route{Kind: models.RouteSwap}, want: models.KindCrypto},
		{name: "staking_credits", route: models.Route{Kind: models.RouteStaking}, want: models.KindStaking},
		{name: "unknown_kind", route: models.Route{Kind: "lending"}, want: models.KindUnknown},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, kindForRoute(&tc.route))
		})
	}
}

func TestDispatchGatesStakingOnVerdict(t *testing.T) {
	dispatcher := &recordingDispatcher{}

	pending := &models.Deposit{ChainTxID: "T1", Kind: models.KindStaking, ComplianceVerdict: models.VerdictPending}
	require.NoError(t, dispatchDeposit(context.Background(), dispatcher, pending))
	require.Empty(t, dispatcher.staking)

	passed := &models.Deposit{ChainTxID: "T2", Kind: models.KindStaking, ComplianceVerdict: models.VerdictPass}
	require.NoError(t, dispatchDeposit(context.Background(), dispatcher, passed))
	require.Equal(t, []string{"T2"}, dispatcher.staking)

	invalid := &models.Deposit{ChainTxID: "T3", Kind: models.KindStakingInvalid, ComplianceVerdict: models.VerdictFail}
	require.NoError(t, dispatchDeposit(context.Background(), dispatcher, invalid))
	require.Empty(t, dispatcher.returned)
}
