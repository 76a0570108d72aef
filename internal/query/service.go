package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// QueryService provides read-only access to projection tables. Queries are
// served over HTTP/JSON from the PostgreSQL projections, with hot position
// lookups cached in Redis for a short TTL. All responses include
// as_of_sequence for freshness semantics.
type QueryService struct {
	db       *sql.DB
	cache    *redis.Client // optional; nil disables caching
	cacheTTL time.Duration
}

func NewQueryService(db *sql.DB, cache *redis.Client) *QueryService {
	return &QueryService{
		db:       db,
		cache:    cache,
		cacheTTL: 2 * time.Second,
	}
}

// DB exposes the underlying handle for admin operations that bypass the
// projection read path.
func (qs *QueryService) DB() *sql.DB {
	return qs.db
}

// GetPosition returns the position custodied by an escrow address.
// Returns nil when no open position exists.
func (qs *QueryService) GetPosition(ctx context.Context, escrow string) (*PositionResponse, error) {
	if qs.cache != nil {
		cacheKey := "gard:position:" + escrow
		if data, err := qs.cache.Get(ctx, cacheKey).Bytes(); err == nil {
			var p PositionResponse
			if json.Unmarshal(data, &p) == nil {
				return &p, nil
			}
		}
	}

	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	var p PositionResponse
	p.AsOfSequence = asOfSeq
	err = qs.db.QueryRowContext(ctx, `
		SELECT escrow, owner, position_id, debt, status_kind, status_time,
		       ext_app_opt_ins, updated_sequence
		FROM projections.positions
		WHERE escrow = $1
	`, escrow).Scan(
		&p.Escrow, &p.Owner, &p.PositionID, &p.Debt, &p.StatusKind,
		&p.StatusTime, &p.ExtAppOptIns, &p.UpdatedSequence,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if qs.cache != nil {
		if data, err := json.Marshal(&p); err == nil {
			qs.cache.Set(ctx, "gard:position:"+escrow, data, qs.cacheTTL)
		}
	}

	return &p, nil
}

// GetPositionsByOwner returns all open positions held by an owner.
func (qs *QueryService) GetPositionsByOwner(ctx context.Context, owner string) ([]PositionResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT escrow, owner, position_id, debt, status_kind, status_time,
		       ext_app_opt_ins, updated_sequence
		FROM projections.positions
		WHERE owner = $1
		ORDER BY position_id
	`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []PositionResponse
	for rows.Next() {
		var p PositionResponse
		p.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&p.Escrow, &p.Owner, &p.PositionID, &p.Debt, &p.StatusKind,
			&p.StatusTime, &p.ExtAppOptIns, &p.UpdatedSequence,
		); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}

	return positions, rows.Err()
}

// GetAuctions returns all positions currently in a liquidation auction.
func (qs *QueryService) GetAuctions(ctx context.Context) ([]PositionResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT escrow, owner, position_id, debt, status_kind, status_time,
		       ext_app_opt_ins, updated_sequence
		FROM projections.positions
		WHERE status_kind = 1
		ORDER BY status_time
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var auctions []PositionResponse
	for rows.Next() {
		var p PositionResponse
		p.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&p.Escrow, &p.Owner, &p.PositionID, &p.Debt, &p.StatusKind,
			&p.StatusTime, &p.ExtAppOptIns, &p.UpdatedSequence,
		); err != nil {
			return nil, err
		}
		auctions = append(auctions, p)
	}

	return auctions, rows.Err()
}

// GetPositionHistory returns lifecycle transitions for an escrow with
// cursor-based pagination.
func (qs *QueryService) GetPositionHistory(
	ctx context.Context,
	escrow string,
	limit int,
	afterSequence *int64,
) ([]PositionHistoryResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT escrow, owner, operation, debt_before, debt_after, closed, sequence, timestamp
		FROM projections.position_history
		WHERE escrow = $1
	`
	args := []interface{}{escrow}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []PositionHistoryResponse
	for rows.Next() {
		var h PositionHistoryResponse
		h.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&h.Escrow, &h.Owner, &h.Operation, &h.DebtBefore,
			&h.DebtAfter, &h.Closed, &h.Sequence, &h.Timestamp,
		); err != nil {
			return nil, err
		}
		history = append(history, h)
	}

	return history, rows.Err()
}

// GetJournalHistory returns journal entries touching an account with
// cursor-based pagination.
func (qs *QueryService) GetJournalHistory(
	ctx context.Context,
	account string,
	limit int,
	afterSequence *int64,
) ([]JournalHistoryEntry, error) {
	accountPrefix := fmt.Sprintf("acct:%s:%%", account)

	query := `
		SELECT journal_id, batch_id, event_ref, sequence,
		       debit_account, credit_account, asset_id, amount, journal_type, timestamp
		FROM event_log.journal
		WHERE debit_account LIKE $1 OR credit_account LIKE $1
	`
	args := []interface{}{accountPrefix}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalHistoryEntry
	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.EventRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.AssetID, &e.Amount,
			&e.JournalType, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks hash chain continuity and the global zero-sum
// invariant from the durable tables.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	// Check hash chain continuity
	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM event_log.events e1
		LEFT JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.sequence > 0 AND e1.prev_hash != COALESCE(e2.state_hash, e1.prev_hash)
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Check global balance (should sum to zero across all accounts per asset)
	balanceRows, err := qs.db.QueryContext(ctx, `
		SELECT asset_id, SUM(balance) as total
		FROM projections.balances
		GROUP BY asset_id
		HAVING SUM(balance) != 0
	`)
	if err != nil {
		return nil, err
	}
	defer balanceRows.Close()

	for balanceRows.Next() {
		var assetID uint16
		var total int64
		if err := balanceRows.Scan(&assetID, &total); err != nil {
			return nil, err
		}
		report.UnbalancedAssets = append(report.UnbalancedAssets, UnbalancedAsset{
			AssetID:   assetID,
			Imbalance: total,
		})
	}
	if err := balanceRows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.UnbalancedAssets) == 0
	return report, nil
}

// --- helpers ---

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}
