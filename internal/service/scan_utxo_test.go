package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/veltapay/chainfunnel/internal/chain"
	"github.com/veltapay/chainfunnel/internal/models"
)

func newBtcScanner(node chain.UTXOClient, store *memStore, routes *fakeRoutes, dispatcher *recordingDispatcher) *UtxoScanner {
	return NewUtxoScanner(UtxoScannerConfig{
		Chain:      models.ChainBitcoin,
		Asset:      "BTC",
		MinDeposit: dec("0.00005"),
	}, node, store, routes, &stubOracle{verdict: models.VerdictPass}, dispatcher)
}

func TestUtxoScannerDetectsDeposit(t *testing.T) {
	node := chain.NewSim(800_000)
	node.UTXOs = []chain.UTXO{
		{Address: "bc1qdeposit", TxID: "T1", Vout: 0, Amount: dec("0.002")},
	}

	store := &memStore{}
	routes := &fakeRoutes{routes: []*models.Route{
		{ID: 1, Kind: models.RouteSell, Chain: models.ChainBitcoin, DepositAddress: "bc1qdeposit", UserID: 7},
	}}
	dispatcher := &recordingDispatcher{}

	scanner := newBtcScanner(node, store, routes, dispatcher)
	require.NoError(t, scanner.Run(context.Background()))

	rows := store.all()
	require.Len(t, rows, 1)
	require.Equal(t, "T1", rows[0].ChainTxID)
	require.Equal(t, models.KindFiat, rows[0].Kind)
	require.Equal(t, models.VerdictPass, rows[0].ComplianceVerdict)
	require.NotNil(t, rows[0].OutputIndex)
	require.Equal(t, int32(0), *rows[0].OutputIndex)
	require.True(t, rows[0].Amount.Equal(dec("0.002")))
	require.Equal(t, []string{"T1"}, dispatcher.fiat)
}

func TestUtxoScannerRejectsBelowMinimum(t *testing.T) {
	node := chain.NewSim(800_000)
	node.UTXOs = []chain.UTXO{
		{Address: "bc1qdeposit", TxID: "T1", Vout: 0, Amount: dec("0.00003")},
	}

	store := &memStore{}
	routes := &fakeRoutes{routes: []*models.Route{
		{ID: 1, Kind: models.RouteSell, Chain: models.ChainBitcoin, DepositAddress: "bc1qdeposit"},
	}}

	scanner := newBtcScanner(node, store, routes, &recordingDispatcher{})
	require.NoError(t, scanner.Run(context.Background()))
	require.Empty(t, store.all())
}

func TestUtxoScannerSkipsUnknownAddress(t *testing.T) {
	node := chain.NewSim(800_000)
	node.UTXOs = []chain.UTXO{
		{Address: "bc1qstranger", TxID: "T1", Vout: 0, Amount: dec("0.5")},
	}

	store := &memStore{}
	scanner := newBtcScanner(node, store, &fakeRoutes{}, &recordingDispatcher{})
	require.NoError(t, scanner.Run(context.Background()))
	require.Empty(t, store.all())
}

func TestUtxoScannerIsIdempotent(t *testing.T) {
	node := chain.NewSim(800_000)
	node.UTXOs = []chain.UTXO{
		{Address: "bc1qdeposit", TxID: "T1", Vout: 0, Amount: dec("0.002")},
	}

	store := &memStore{}
	routes := &fakeRoutes{routes: []*models.Route{
		{ID: 1, Kind: models.RouteSell, Chain: models.ChainBitcoin, DepositAddress: "bc1qdeposit"},
	}}
	dispatcher := &recordingDispatcher{}

	scanner := newBtcScanner(node, store, routes, dispatcher)
	require.NoError(t, scanner.Run(context.Background()))
	require.NoError(t, scanner.Run(context.Background()))

	require.Len(t, store.all(), 1)
	require.Len(t, dispatcher.fiat, 1)
}

func TestUtxoScannerDistinguishesOutputs(t *testing.T) {
	node := chain.NewSim(800_000)
	node.UTXOs = []chain.UTXO{
		{Address: "bc1qdeposit", TxID: "T1", Vout: 0, Amount: dec("0.002")},
		{Address: "bc1qdeposit", TxID: "T1", Vout: 1, Amount: dec("0.003")},
	}

	store := &memStore{}
	routes := &fakeRoutes{routes: []*models.Route{
		{ID: 1, Kind: models.RouteSell, Chain: models.ChainBitcoin, DepositAddress: "bc1qdeposit"},
	}}

	scanner := newBtcScanner(node, store, routes, &recordingDispatcher{})
	require.NoError(t, scanner.Run(context.Background()))
	require.Len(t, store.all(), 2)
}

func TestUtxoScannerAbortsWhenNodeLags(t *testing.T) {
	node := chain.NewSim(800_000)
	node.Headers = 800_002

	scanner := newBtcScanner(node, &memStore{}, &fakeRoutes{}, &recordingDispatcher{})
	require.Error(t, scanner.Run(context.Background()))
}

func TestUtxoScannerAbortsOnDeadNode(t *testing.T) {
	node := &flakyNode{Sim: chain.NewSim(800_000), failInfoAfter: 1, infoErr: context.DeadlineExceeded}

	scanner := newBtcScanner(node, &memStore{}, &fakeRoutes{}, &recordingDispatcher{})
	err := scanner.Run(context.Background())
	require.Error(t, err)
	require.True(t, IsNodeNotAccessible(err))
}

func TestUtxoScannerRecordsKycRejection(t *testing.T) {
	node := chain.NewSim(800_000)
	node.UTXOs = []chain.UTXO{
		{Address: "bc1qdeposit", TxID: "T1", Vout: 0, Amount: dec("0.002")},
	}

	store := &memStore{}
	routes := &fakeRoutes{routes: []*models.Route{
		{ID: 1, Kind: models.RouteSell, Chain: models.ChainBitcoin, DepositAddress: "bc1qdeposit", KycRejected: true},
	}}

	scanner := newBtcScanner(node, store, routes, &recordingDispatcher{})
	require.NoError(t, scanner.Run(context.Background()))

	rows := store.all()
	require.Len(t, rows, 1)
	require.Equal(t, models.VerdictFail, rows[0].ComplianceVerdict)

	// a failed verdict keeps the deposit off the forwardable list
	forwardable, err := store.Forwardable(context.Background(), models.ChainBitcoin)
	require.NoError(t, err)
	require.Empty(t, forwardable)
}
