package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/veltapay/chainfunnel/internal/chain"
	"github.com/veltapay/chainfunnel/internal/models"
	"go.uber.org/zap"
)

// ReferenceConverter computes the BTC and USD reference amounts of an
// asset quantity through dry-run swaps on the node.
type ReferenceConverter struct {
	client chain.AccountClient
	chain  models.Chain
	pegged map[string]bool
}

func NewReferenceConverter(client chain.AccountClient, chainName models.Chain, peggedAssets []string) *ReferenceConverter {
	pegged := make(map[string]bool, len(peggedAssets))
	for _, a := range peggedAssets {
		pegged[a] = true
	}
	return &ReferenceConverter{client: client, chain: chainName, pegged: pegged}
}

// ReferenceAmounts converts amount of asset to its BTC and USD equivalents.
// A conversion failure is disambiguated through a node liveness probe: a
// dead node escalates to NodeNotAccessibleError (aborting the run), a live
// node earns exactly one retry before the failure is treated as input
// related.
func (c *ReferenceConverter) ReferenceAmounts(ctx context.Context, asset string, amount decimal.Decimal) (btcAmount, usdAmount decimal.Decimal, err error) {
	return c.convert(ctx, asset, amount, true)
}

func (c *ReferenceConverter) convert(ctx context.Context, asset string, amount decimal.Decimal, allowRetry bool) (decimal.Decimal, decimal.Decimal, error) {
	btcAmount, err := c.client.TestConversion(ctx, asset, "BTC", amount)
	var usdAmount decimal.Decimal
	if err == nil {
		if c.pegged[asset] {
			usdAmount = amount
		} else {
			usdAmount, err = c.client.TestConversion(ctx, asset, "USDT", amount)
		}
	}
	if err == nil {
		return btcAmount, usdAmount, nil
	}

	// poll the node to tell a node fault from a bad input
	if _, probeErr := c.client.GetInfo(ctx); probeErr != nil {
		return decimal.Zero, decimal.Zero, &NodeNotAccessibleError{Chain: c.chain, Err: probeErr}
	}

	if allowRetry {
		zap.L().Info("retrying reference conversion after node poll success", zap.String("asset", asset))
		return c.convert(ctx, asset, amount, false)
	}

	return decimal.Zero, decimal.Zero, fmt.Errorf("reference conversion for %s: %w", asset, err)
}
