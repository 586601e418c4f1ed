package service

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/veltapay/chainfunnel/internal/models"
)

// DepositStore is the minimal ledger access contract the jobs require.
// Implemented by repository.DepositRepository.
type DepositStore interface {
	Insert(ctx context.Context, d *models.Deposit) (bool, error)
	Exists(ctx context.Context, chain models.Chain, txID string, vout *int32, asset string, routeID int64) (bool, error)
	MaxBlockHeight(ctx context.Context, chain models.Chain) (int64, error)
	Forwardable(ctx context.Context, chain models.Chain) ([]models.Deposit, error)
	Unconfirmed(ctx context.Context, chain models.Chain) ([]models.Deposit, error)
	SetOutbound(ctx context.Context, id int64, outTxID string, fee decimal.Decimal) error
	MarkConfirmed(ctx context.Context, id int64) error
}

// RouteSource resolves a deposit address to its owning route. A missing
// route is reported as repository.ErrRouteNotFound.
type RouteSource interface {
	RouteByAddress(ctx context.Context, chain models.Chain, address string) (*models.Route, error)
	RouteByID(ctx context.Context, id int64) (*models.Route, error)
}

// AssetSource is the asset registry lookup.
type AssetSource interface {
	AssetBySymbol(ctx context.Context, chain models.Chain, symbol string, isToken bool) (*models.AssetInfo, error)
}
