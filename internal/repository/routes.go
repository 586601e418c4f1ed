package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/veltapay/chainfunnel/internal/models"
)

var (
	ErrRouteNotFound = errors.New("route not found")
	ErrAssetNotFound = errors.New("asset not found")
)

// RouteRepository resolves managed deposit addresses to their owning route
// and the user profile behind it.
type RouteRepository struct {
	db *pgxpool.Pool
}

func NewRouteRepository(db *pgxpool.Pool) *RouteRepository {
	return &RouteRepository{db: db}
}

func (r *RouteRepository) RouteByAddress(ctx context.Context, chain models.Chain, address string) (*models.Route, error) {
	query := `
		SELECT r.id, r.kind, r.chain, r.deposit_address, r.user_id, u.address,
			u.kyc_rejected, r.cross_asset
		FROM deposit_routes r
		JOIN users u ON u.id = r.user_id
		WHERE r.chain = $1 AND r.deposit_address = $2
	`
	route := &models.Route{}
	err := r.db.QueryRow(ctx, query, chain, address).Scan(
		&route.ID, &route.Kind, &route.Chain, &route.DepositAddress, &route.UserID,
		&route.UserAddress, &route.KycRejected, &route.CrossAsset,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRouteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve route for %s: %w", address, err)
	}
	return route, nil
}

func (r *RouteRepository) RouteByID(ctx context.Context, id int64) (*models.Route, error) {
	query := `
		SELECT r.id, r.kind, r.chain, r.deposit_address, r.user_id, u.address,
			u.kyc_rejected, r.cross_asset
		FROM deposit_routes r
		JOIN users u ON u.id = r.user_id
		WHERE r.id = $1
	`
	route := &models.Route{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&route.ID, &route.Kind, &route.Chain, &route.DepositAddress, &route.UserID,
		&route.UserAddress, &route.KycRejected, &route.CrossAsset,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRouteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load route %d: %w", id, err)
	}
	return route, nil
}

// AssetRepository is the registry of assets the pipeline accepts.
type AssetRepository struct {
	db *pgxpool.Pool
}

func NewAssetRepository(db *pgxpool.Pool) *AssetRepository {
	return &AssetRepository{db: db}
}

func (r *AssetRepository) AssetBySymbol(ctx context.Context, chain models.Chain, symbol string, isToken bool) (*models.AssetInfo, error) {
	query := `
		SELECT symbol, chain, is_token, sellable, pool_pair
		FROM assets
		WHERE chain = $1 AND symbol = $2 AND is_token = $3
	`
	asset := &models.AssetInfo{}
	err := r.db.QueryRow(ctx, query, chain, symbol, isToken).Scan(
		&asset.Symbol, &asset.Chain, &asset.IsToken, &asset.Sellable, &asset.PoolPair,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAssetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve asset %s: %w", symbol, err)
	}
	return asset, nil
}
