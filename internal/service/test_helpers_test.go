package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/veltapay/chainfunnel/internal/chain"
	"github.com/veltapay/chainfunnel/internal/compliance"
	"github.com/veltapay/chainfunnel/internal/models"
	"github.com/veltapay/chainfunnel/internal/repository"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// memStore is an in-memory DepositStore with the same uniqueness rules as
// the Postgres schema.
type memStore struct {
	mu     sync.Mutex
	rows   []models.Deposit
	nextID int64
}

func (m *memStore) key(txID string, vout *int32, asset string, routeID int64) string {
	idx := int32(-1)
	if vout != nil {
		idx = *vout
	}
	return fmt.Sprintf("%s|%d|%s|%d", txID, idx, asset, routeID)
}

func (m *memStore) Insert(ctx context.Context, d *models.Deposit) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	want := m.key(d.ChainTxID, d.OutputIndex, d.Asset, d.RouteID)
	for _, row := range m.rows {
		if m.key(row.ChainTxID, row.OutputIndex, row.Asset, row.RouteID) == want {
			return false, nil
		}
	}

	m.nextID++
	d.ID = m.nextID
	d.CreatedAt = time.Now()
	m.rows = append(m.rows, *d)
	return true, nil
}

func (m *memStore) Exists(ctx context.Context, chainName models.Chain, txID string, vout *int32, asset string, routeID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	want := m.key(txID, vout, asset, routeID)
	for _, row := range m.rows {
		if m.key(row.ChainTxID, row.OutputIndex, row.Asset, row.RouteID) == want {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) MaxBlockHeight(ctx context.Context, chainName models.Chain) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var max int64
	for _, row := range m.rows {
		if row.Chain == chainName && row.BlockHeight > max {
			max = row.BlockHeight
		}
	}
	return max, nil
}

func (m *memStore) Forwardable(ctx context.Context, chainName models.Chain) ([]models.Deposit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Deposit
	for _, row := range m.rows {
		if row.Chain == chainName && row.OutboundTxID == nil && row.ComplianceVerdict == models.VerdictPass {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memStore) Unconfirmed(ctx context.Context, chainName models.Chain) ([]models.Deposit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Deposit
	for _, row := range m.rows {
		if row.Chain == chainName && !row.Confirmed && row.OutboundTxID != nil {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memStore) SetOutbound(ctx context.Context, id int64, outTxID string, fee decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.rows {
		if m.rows[i].ID == id {
			if m.rows[i].OutboundTxID != nil {
				return fmt.Errorf("deposit %d already forwarded", id)
			}
			m.rows[i].OutboundTxID = &outTxID
			m.rows[i].ForwardingFee = fee
			return nil
		}
	}
	return fmt.Errorf("deposit %d not found", id)
}

func (m *memStore) MarkConfirmed(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.rows {
		if m.rows[i].ID == id {
			m.rows[i].Confirmed = true
			return nil
		}
	}
	return fmt.Errorf("deposit %d not found", id)
}

func (m *memStore) all() []models.Deposit {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Deposit, len(m.rows))
	copy(out, m.rows)
	return out
}

// fakeRoutes resolves routes from a fixed slice.
type fakeRoutes struct {
	routes []*models.Route
}

func (f *fakeRoutes) RouteByAddress(ctx context.Context, chainName models.Chain, address string) (*models.Route, error) {
	for _, r := range f.routes {
		if r.Chain == chainName && r.DepositAddress == address {
			return r, nil
		}
	}
	return nil, repository.ErrRouteNotFound
}

func (f *fakeRoutes) RouteByID(ctx context.Context, id int64) (*models.Route, error) {
	for _, r := range f.routes {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, repository.ErrRouteNotFound
}

// fakeAssets is a fixed asset registry keyed by symbol and form.
type fakeAssets struct {
	assets []*models.AssetInfo
}

func (f *fakeAssets) AssetBySymbol(ctx context.Context, chainName models.Chain, symbol string, isToken bool) (*models.AssetInfo, error) {
	for _, a := range f.assets {
		if a.Chain == chainName && a.Symbol == symbol && a.IsToken == isToken {
			return a, nil
		}
	}
	return nil, repository.ErrAssetNotFound
}

// stubOracle returns a fixed verdict.
type stubOracle struct {
	verdict models.Verdict
	err     error
}

func (s *stubOracle) Check(ctx context.Context, userID int64, ref compliance.TxRef) (models.Verdict, error) {
	return s.verdict, s.err
}

// recordingDispatcher collects the tx ids routed into each pipeline.
type recordingDispatcher struct {
	fiat     []string
	crypto   []string
	staking  []string
	returned []string
}

func (d *recordingDispatcher) CreateFiatPayout(ctx context.Context, deposit *models.Deposit) error {
	d.fiat = append(d.fiat, deposit.ChainTxID)
	return nil
}

func (d *recordingDispatcher) CreateCryptoPayout(ctx context.Context, deposit *models.Deposit) error {
	d.crypto = append(d.crypto, deposit.ChainTxID)
	return nil
}

func (d *recordingDispatcher) CreateStakingCredit(ctx context.Context, deposit *models.Deposit) error {
	d.staking = append(d.staking, deposit.ChainTxID)
	return nil
}

func (d *recordingDispatcher) ReturnStakingDeposit(ctx context.Context, deposit *models.Deposit) error {
	d.returned = append(d.returned, deposit.ChainTxID)
	return nil
}

type transferCall struct {
	from   string
	to     string
	amount decimal.Decimal
}

type tokenCall struct {
	from   string
	to     string
	token  string
	amount decimal.Decimal
}

// recordingNode wraps the simulator and records outbound transfers.
type recordingNode struct {
	*chain.Sim
	completeSends  []transferCall
	tokenSends     []tokenCall
	toUTXOCalls    []transferCall
	swapCalls      []tokenCall
	liquidityCalls []string
}

func (n *recordingNode) SendCompleteUTXO(ctx context.Context, from, to string, amount decimal.Decimal) (chain.SendResult, error) {
	n.completeSends = append(n.completeSends, transferCall{from: from, to: to, amount: amount})
	return n.Sim.SendCompleteUTXO(ctx, from, to, amount)
}

func (n *recordingNode) SendToken(ctx context.Context, from, to, token string, amount decimal.Decimal, feeUTXO chain.UTXO) (string, error) {
	n.tokenSends = append(n.tokenSends, tokenCall{from: from, to: to, token: token, amount: amount})
	return n.Sim.SendToken(ctx, from, to, token, amount, feeUTXO)
}

func (n *recordingNode) ToUTXO(ctx context.Context, from, to string, amount decimal.Decimal, feeUTXO chain.UTXO) (string, error) {
	n.toUTXOCalls = append(n.toUTXOCalls, transferCall{from: from, to: to, amount: amount})
	return n.Sim.ToUTXO(ctx, from, to, amount, feeUTXO)
}

func (n *recordingNode) CompositeSwap(ctx context.Context, from, fromToken, to, toToken string, amount decimal.Decimal, feeUTXO chain.UTXO) (string, error) {
	n.swapCalls = append(n.swapCalls, tokenCall{from: from, to: to, token: fromToken, amount: amount})
	return n.Sim.CompositeSwap(ctx, from, fromToken, to, toToken, amount, feeUTXO)
}

func (n *recordingNode) RemovePoolLiquidity(ctx context.Context, owner, amount string, feeUTXO chain.UTXO) (string, error) {
	n.liquidityCalls = append(n.liquidityCalls, amount)
	return n.Sim.RemovePoolLiquidity(ctx, owner, amount, feeUTXO)
}

// flakyNode fails GetInfo from the given call number on.
type flakyNode struct {
	*chain.Sim
	infoCalls     int
	failInfoAfter int
	infoErr       error
}

func (n *flakyNode) GetInfo(ctx context.Context) (chain.Info, error) {
	n.infoCalls++
	if n.failInfoAfter > 0 && n.infoCalls >= n.failInfoAfter {
		return chain.Info{}, n.infoErr
	}
	return n.Sim.GetInfo(ctx)
}

// countingNode counts dry-run conversions.
type countingNode struct {
	*chain.Sim
	convCalls int
}

func (n *countingNode) TestConversion(ctx context.Context, fromAsset, toAsset string, amount decimal.Decimal) (decimal.Decimal, error) {
	n.convCalls++
	return n.Sim.TestConversion(ctx, fromAsset, toAsset, amount)
}
