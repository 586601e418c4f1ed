package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/veltapay/chainfunnel/internal/chain"
	"github.com/veltapay/chainfunnel/internal/models"
	"github.com/veltapay/chainfunnel/internal/repository"
	"go.uber.org/zap"
)

// TokenConverterConfig configures the token conversion sweep.
type TokenConverterConfig struct {
	Chain             models.Chain
	NativeAsset       string
	UsdMinDeposit     decimal.Decimal
	CollectionAddress string
	PeggedAssets      []string
}

// TokenConverter normalizes token balances at managed addresses: pool-pair
// tokens are unwound, dust tokens are swept to the collection wallet, and
// staking-route balances are converted to the native coin so they can be
// credited.
type TokenConverter struct {
	cfg    TokenConverterConfig
	client chain.AccountClient
	assets AssetSource
	routes RouteSource
	fees   *feeUTXOHelper
	pegged map[string]bool
}

func NewTokenConverter(cfg TokenConverterConfig, client chain.AccountClient, assets AssetSource, routes RouteSource, spenderAddress string, minNative decimal.Decimal) *TokenConverter {
	pegged := make(map[string]bool, len(cfg.PeggedAssets))
	for _, a := range cfg.PeggedAssets {
		pegged[a] = true
	}
	return &TokenConverter{
		cfg:    cfg,
		client: client,
		assets: assets,
		routes: routes,
		fees:   newFeeUTXOHelper(client, spenderAddress, minNative),
		pegged: pegged,
	}
}

func (c *TokenConverter) Run(ctx context.Context) error {
	if _, err := nodeInSync(ctx, c.client, c.cfg.Chain); err != nil {
		return err
	}

	tokens, err := c.client.GetTokenBalances(ctx)
	if err != nil {
		return &NodeNotAccessibleError{Chain: c.cfg.Chain, Err: err}
	}

	for _, token := range tokens {
		if err := c.convert(ctx, token); err != nil {
			zap.L().Error("failed to convert token balance",
				zap.String("owner", token.Owner),
				zap.String("asset", token.Symbol),
				zap.String("amount", token.Amount.String()),
				zap.Error(err))
		}
	}
	return nil
}

func (c *TokenConverter) convert(ctx context.Context, token chain.TokenBalance) error {
	asset, err := c.assets.AssetBySymbol(ctx, c.cfg.Chain, token.Symbol, true)
	if err != nil && !errors.Is(err, repository.ErrAssetNotFound) {
		return err
	}

	if asset != nil && asset.PoolPair {
		return c.unwindPoolPair(ctx, token)
	}

	usdAmount := token.Amount
	if !c.pegged[token.Symbol] {
		usdAmount, err = c.client.TestConversion(ctx, token.Symbol, "USDT", token.Amount)
		if err != nil {
			return fmt.Errorf("usd valuation of %s: %w", token.Symbol, err)
		}
	}

	// dust tokens are swept off the deposit address
	if usdAmount.LessThan(c.cfg.UsdMinDeposit) {
		zap.L().Info("retrieving small token balance",
			zap.String("owner", token.Owner),
			zap.String("asset", token.Symbol))
		_, err := c.fees.withFeeUTXO(ctx, token.Owner, func(feeUTXO chain.UTXO) (string, error) {
			return c.client.SendToken(ctx, token.Owner, c.cfg.CollectionAddress, token.Symbol, token.Amount, feeUTXO)
		})
		return err
	}

	route, err := c.routes.RouteByAddress(ctx, c.cfg.Chain, token.Owner)
	if errors.Is(err, repository.ErrRouteNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if route.Kind != models.RouteStaking {
		return nil
	}

	zap.L().Info("converting staking token balance",
		zap.String("owner", token.Owner),
		zap.String("asset", token.Symbol))

	if token.Symbol == c.cfg.NativeAsset {
		// native token form -> UTXO form
		_, err = c.fees.withFeeUTXO(ctx, token.Owner, func(feeUTXO chain.UTXO) (string, error) {
			return c.client.ToUTXO(ctx, token.Owner, token.Owner, token.Amount, feeUTXO)
		})
		return err
	}

	// other tokens -> native
	_, err = c.fees.withFeeUTXO(ctx, token.Owner, func(feeUTXO chain.UTXO) (string, error) {
		return c.client.CompositeSwap(ctx, token.Owner, token.Symbol, token.Owner, c.cfg.NativeAsset, token.Amount, feeUTXO)
	})
	return err
}

// unwindPoolPair removes pool liquidity and provisions the extra fee UTXO
// the second token leg will need.
func (c *TokenConverter) unwindPoolPair(ctx context.Context, token chain.TokenBalance) error {
	zap.L().Info("removing pool liquidity",
		zap.String("owner", token.Owner),
		zap.String("asset", token.Symbol))

	raw := token.Amount.String() + "@" + token.Symbol
	if _, err := c.fees.withFeeUTXO(ctx, token.Owner, func(feeUTXO chain.UTXO) (string, error) {
		return c.client.RemovePoolLiquidity(ctx, token.Owner, raw, feeUTXO)
	}); err != nil {
		return err
	}

	existing, err := c.fees.findFeeUTXO(ctx, token.Owner)
	if err != nil {
		return err
	}
	if existing == nil {
		if _, err := c.fees.sendFeeUTXO(ctx, token.Owner); err != nil {
			return err
		}
	}
	return nil
}
