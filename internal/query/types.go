package query

// PositionResponse represents a position for API queries.
type PositionResponse struct {
	Escrow          string `json:"escrow"`
	Owner           string `json:"owner"`
	PositionID      uint64 `json:"position_id"`
	Debt            uint64 `json:"debt"`
	StatusKind      int32  `json:"status_kind"` // 0=Normal, 1=Auction
	StatusTime      int64  `json:"status_time"`
	ExtAppOptIns    uint8  `json:"ext_app_opt_ins"`
	UpdatedSequence int64  `json:"updated_sequence"`
	AsOfSequence    int64  `json:"as_of_sequence"`
}

// PositionHistoryResponse represents one lifecycle transition for API queries.
type PositionHistoryResponse struct {
	Escrow       string `json:"escrow"`
	Owner        string `json:"owner"`
	Operation    string `json:"operation"`
	DebtBefore   uint64 `json:"debt_before"`
	DebtAfter    uint64 `json:"debt_after"`
	Closed       bool   `json:"closed"`
	Sequence     int64  `json:"sequence"`
	Timestamp    int64  `json:"timestamp"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// JournalHistoryEntry represents a journal entry for API queries.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	EventRef      string `json:"event_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	AssetID       uint16 `json:"asset_id"`
	Amount        int64  `json:"amount"`
	JournalType   int32  `json:"journal_type"`
	Timestamp     int64  `json:"timestamp"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy        bool              `json:"is_healthy"`
	HashChainBreaks  []int64           `json:"hash_chain_breaks,omitempty"`
	UnbalancedAssets []UnbalancedAsset `json:"unbalanced_assets,omitempty"`
}

// UnbalancedAsset represents an asset with non-zero global balance sum.
type UnbalancedAsset struct {
	AssetID   uint16 `json:"asset_id"`
	Imbalance int64  `json:"imbalance"`
}
