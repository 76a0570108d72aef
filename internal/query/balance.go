package query

import (
	"context"
	"database/sql"
	"fmt"
)

// BalanceResponse represents one account's mirrored holdings for API queries.
type BalanceResponse struct {
	Account string `json:"account"` // hex address

	// Ledger balances (from journal entries)
	Collateral int64 `json:"collateral"` // NATIVE units
	Stable     int64 `json:"stable"`     // GARD units

	// Metadata
	AsOfSequence int64 `json:"as_of_sequence"` // last applied event sequence
}

// GetBalance returns an account's collateral and stable balances.
func (qs *QueryService) GetBalance(
	ctx context.Context,
	account string,
) (*BalanceResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	collateral, err := qs.getProjectedBalance(ctx, fmt.Sprintf("acct:%s:NATIVE", account))
	if err != nil {
		return nil, err
	}

	stable, err := qs.getProjectedBalance(ctx, fmt.Sprintf("acct:%s:GARD", account))
	if err != nil {
		return nil, err
	}

	return &BalanceResponse{
		Account:      account,
		Collateral:   collateral,
		Stable:       stable,
		AsOfSequence: asOfSeq,
	}, nil
}

func (qs *QueryService) getProjectedBalance(ctx context.Context, accountPath string) (int64, error) {
	var balance int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(balance, 0) FROM projections.balances
		WHERE account_path = $1
	`, accountPath).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return balance, err
}
