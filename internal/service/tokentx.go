package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/veltapay/chainfunnel/internal/chain"
)

// feeUTXOHelper runs token transactions on account chains. Token transfers
// cannot pay their own fees, so every token tx needs a small fee UTXO at
// the source address; if none exists one is sent from the dedicated
// spender address and awaited first.
type feeUTXOHelper struct {
	client         chain.AccountClient
	spenderAddress string
	minNative      decimal.Decimal
}

func newFeeUTXOHelper(client chain.AccountClient, spenderAddress string, minNative decimal.Decimal) *feeUTXOHelper {
	return &feeUTXOHelper{client: client, spenderAddress: spenderAddress, minNative: minNative}
}

// withFeeUTXO acquires a fee UTXO at address and runs tx with it.
func (h *feeUTXOHelper) withFeeUTXO(ctx context.Context, address string, tx func(chain.UTXO) (string, error)) (string, error) {
	feeUTXO, err := h.findFeeUTXO(ctx, address)
	if err != nil {
		return "", err
	}

	if feeUTXO == nil {
		utxoTx, err := h.sendFeeUTXO(ctx, address)
		if err != nil {
			return "", fmt.Errorf("failed to send fee utxo to %s: %w", address, err)
		}
		if _, err := h.client.WaitForTx(ctx, utxoTx); err != nil {
			return "", fmt.Errorf("failed to await fee utxo %s: %w", utxoTx, err)
		}
		feeUTXO, err = h.findUTXOByTx(ctx, address, utxoTx)
		if err != nil {
			return "", err
		}
		if feeUTXO == nil {
			return "", fmt.Errorf("fee utxo %s not found at %s after confirmation", utxoTx, address)
		}
	}

	return tx(*feeUTXO)
}

// findFeeUTXO returns an existing UTXO at address sized for fees: below
// the deposit minimum but above a quarter of it.
func (h *feeUTXOHelper) findFeeUTXO(ctx context.Context, address string) (*chain.UTXO, error) {
	utxos, err := h.client.GetUTXOs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list utxos: %w", err)
	}
	for _, u := range utxos {
		if u.Address == address && u.Amount.LessThan(h.minNative) && u.Amount.GreaterThan(h.minNative.Div(decimal.NewFromInt(4))) {
			utxo := u
			return &utxo, nil
		}
	}
	return nil, nil
}

// sendFeeUTXO sends half the deposit minimum from the spender address.
func (h *feeUTXOHelper) sendFeeUTXO(ctx context.Context, address string) (string, error) {
	return h.client.SendUTXO(ctx, h.spenderAddress, address, h.minNative.Div(decimal.NewFromInt(2)))
}

func (h *feeUTXOHelper) findUTXOByTx(ctx context.Context, address, txID string) (*chain.UTXO, error) {
	utxos, err := h.client.GetUTXOs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list utxos: %w", err)
	}
	for _, u := range utxos {
		if u.TxID == txID && u.Address == address {
			utxo := u
			return &utxo, nil
		}
	}
	return nil, nil
}
