package compliance

import (
	"context"

	"github.com/veltapay/chainfunnel/internal/models"
)

// TxRef identifies the chain event being screened.
type TxRef struct {
	Chain       models.Chain
	TxID        string
	OutputIndex *int32
	Asset       string
}

// Oracle is the external risk-screening provider. Given a user and a
// transaction reference it returns a pass/fail verdict.
type Oracle interface {
	Check(ctx context.Context, userID int64, ref TxRef) (models.Verdict, error)
}

// PassAllOracle approves every transaction. Used for local runs and tests;
// the production provider is wired in through the same interface.
type PassAllOracle struct{}

func (PassAllOracle) Check(ctx context.Context, userID int64, ref TxRef) (models.Verdict, error) {
	return models.VerdictPass, nil
}
