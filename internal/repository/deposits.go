package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/veltapay/chainfunnel/internal/models"
)

// DepositRepository is the persisted deposit ledger. The composite unique
// index on (chain_tx_id, output_index, asset, route_id) is the correctness
// backstop against overlapping or restarted scans.
type DepositRepository struct {
	db *pgxpool.Pool
}

func NewDepositRepository(db *pgxpool.Pool) *DepositRepository {
	return &DepositRepository{db: db}
}

const depositColumns = `id, chain, chain_tx_id, output_index, block_height, tx_type, asset,
	amount, btc_amount, usd_amount, route_id, route_kind, kind, compliance_verdict,
	outbound_tx_id, forwarding_fee, confirmed, created_at, updated_at`

// Insert persists a new deposit. It reports false without error when a row
// with the same natural key already exists.
func (r *DepositRepository) Insert(ctx context.Context, d *models.Deposit) (bool, error) {
	query := `
		INSERT INTO deposits (chain, chain_tx_id, output_index, block_height, tx_type, asset,
			amount, btc_amount, usd_amount, route_id, route_kind, kind, compliance_verdict,
			forwarding_fee, confirmed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 0, FALSE, NOW(), NOW())
		ON CONFLICT DO NOTHING
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query,
		d.Chain, d.ChainTxID, d.OutputIndex, d.BlockHeight, d.TxType, d.Asset,
		d.Amount, d.BtcAmount, d.UsdAmount, d.RouteID, d.RouteKind, d.Kind, d.ComplianceVerdict,
	).Scan(&d.ID, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert deposit: %w", err)
	}
	return true, nil
}

// Exists checks for a deposit by its natural key. A nil vout matches rows
// without an output index (account-model chains).
func (r *DepositRepository) Exists(ctx context.Context, chain models.Chain, txID string, vout *int32, asset string, routeID int64) (bool, error) {
	query := `
		SELECT 1 FROM deposits
		WHERE chain = $1 AND chain_tx_id = $2 AND output_index IS NOT DISTINCT FROM $3
			AND asset = $4 AND route_id = $5
	`
	var one int
	err := r.db.QueryRow(ctx, query, chain, txID, vout, asset, routeID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check deposit existence: %w", err)
	}
	return true, nil
}

// MaxBlockHeight returns the scan watermark for a chain, 0 when empty.
func (r *DepositRepository) MaxBlockHeight(ctx context.Context, chain models.Chain) (int64, error) {
	var height int64
	err := r.db.QueryRow(ctx, `SELECT COALESCE(MAX(block_height), 0) FROM deposits WHERE chain = $1`, chain).Scan(&height)
	if err != nil {
		return 0, fmt.Errorf("failed to get max block height: %w", err)
	}
	return height, nil
}

// Forwardable lists deposits that passed compliance and have not been
// forwarded yet.
func (r *DepositRepository) Forwardable(ctx context.Context, chain models.Chain) ([]models.Deposit, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM deposits
		WHERE chain = $1 AND outbound_tx_id IS NULL AND compliance_verdict = $2
		ORDER BY id
	`, depositColumns)
	return r.queryDeposits(ctx, query, chain, models.VerdictPass)
}

// Unconfirmed lists forwarded deposits whose outbound transaction has not
// reached the finality threshold.
func (r *DepositRepository) Unconfirmed(ctx context.Context, chain models.Chain) ([]models.Deposit, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM deposits
		WHERE chain = $1 AND confirmed = FALSE AND outbound_tx_id IS NOT NULL
		ORDER BY id
	`, depositColumns)
	return r.queryDeposits(ctx, query, chain)
}

// SetOutbound records the forwarding transaction. The guard on
// outbound_tx_id IS NULL makes the write at-most-once.
func (r *DepositRepository) SetOutbound(ctx context.Context, id int64, outTxID string, fee decimal.Decimal) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE deposits SET outbound_tx_id = $2, forwarding_fee = $3, updated_at = NOW()
		WHERE id = $1 AND outbound_tx_id IS NULL
	`, id, outTxID, fee)
	if err != nil {
		return fmt.Errorf("failed to set outbound tx: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("deposit %d already forwarded", id)
	}
	return nil
}

// MarkConfirmed flips the confirmed flag. The transition is one-way.
func (r *DepositRepository) MarkConfirmed(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE deposits SET confirmed = TRUE, updated_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to mark deposit confirmed: %w", err)
	}
	return nil
}

func (r *DepositRepository) queryDeposits(ctx context.Context, query string, args ...any) ([]models.Deposit, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query deposits: %w", err)
	}
	defer rows.Close()

	var deposits []models.Deposit
	for rows.Next() {
		var d models.Deposit
		if err := rows.Scan(
			&d.ID, &d.Chain, &d.ChainTxID, &d.OutputIndex, &d.BlockHeight, &d.TxType, &d.Asset,
			&d.Amount, &d.BtcAmount, &d.UsdAmount, &d.RouteID, &d.RouteKind, &d.Kind, &d.ComplianceVerdict,
			&d.OutboundTxID, &d.ForwardingFee, &d.Confirmed, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan deposit: %w", err)
		}
		deposits = append(deposits, d)
	}
	return deposits, rows.Err()
}
