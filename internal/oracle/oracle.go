package oracle

import (
	"fmt"

	"GardLedger/internal/group"
)

// The validators consult three external modules by opaque key lookup: the
// price oracle (price, decimals), the fee modules (open/close percentages),
// and the governance manager (elected manager account). The stores below are
// the in-process mirror of those lookups, mutated only by ingested update
// events so every group evaluation reads one consistent snapshot.

// PriceState is the latest oracle observation.
type PriceState struct {
	Price     uint64 // USD per native unit, scaled by Decimals
	Decimals  uint64
	Sequence  int64
	Timestamp int64
}

// PriceFeed caches the oracle's price/decimals keys per oracle app id.
// Not thread-safe — only accessed from the single-threaded deterministic core.
type PriceFeed struct {
	byApp map[uint64]*PriceState
}

func NewPriceFeed() *PriceFeed {
	return &PriceFeed{byApp: make(map[uint64]*PriceState)}
}

// Update applies an oracle observation. Stale sequences are silently ignored
// (idempotent); gaps are tolerated, unlike group-submission sequencing.
func (pf *PriceFeed) Update(appID uint64, price, decimals uint64, sequence, timestamp int64) {
	current := pf.byApp[appID]
	if current != nil && sequence <= current.Sequence {
		return
	}
	pf.byApp[appID] = &PriceState{
		Price:     price,
		Decimals:  decimals,
		Sequence:  sequence,
		Timestamp: timestamp,
	}
}

// Lookup reads the price and decimals keys for an oracle app. A missing value
// is fatal to any operation requiring valuation.
func (pf *PriceFeed) Lookup(appID uint64) (price, decimals uint64, err error) {
	state := pf.byApp[appID]
	if state == nil {
		return 0, 0, fmt.Errorf("no oracle state for app %d", appID)
	}
	return state.Price, state.Decimals, nil
}

// All returns the feed contents (for snapshot creation).
func (pf *PriceFeed) All() map[uint64]*PriceState {
	out := make(map[uint64]*PriceState, len(pf.byApp))
	for k, v := range pf.byApp {
		out[k] = v
	}
	return out
}

// Restore directly sets an entry (used for snapshot restore).
func (pf *PriceFeed) Restore(appID uint64, st *PriceState) {
	pf.byApp[appID] = st
}

// FeeSchedule mirrors the fee modules' elected percentages. Values carry two
// implied decimals and are applied over 1000 (so 20 == 2.0%).
type FeeSchedule struct {
	byApp map[uint64]uint64
}

func NewFeeSchedule() *FeeSchedule {
	return &FeeSchedule{byApp: make(map[uint64]uint64)}
}

func (fs *FeeSchedule) Update(appID, feePct uint64) {
	fs.byApp[appID] = feePct
}

func (fs *FeeSchedule) Lookup(appID uint64) (uint64, error) {
	fee, ok := fs.byApp[appID]
	if !ok {
		return 0, fmt.Errorf("no fee state for app %d", appID)
	}
	return fee, nil
}

func (fs *FeeSchedule) All() map[uint64]uint64 {
	out := make(map[uint64]uint64, len(fs.byApp))
	for k, v := range fs.byApp {
		out[k] = v
	}
	return out
}

func (fs *FeeSchedule) Restore(appID, feePct uint64) {
	fs.byApp[appID] = feePct
}

// ManagerRegistry mirrors the governance module's elected manager account,
// used to gate oracle migrations.
type ManagerRegistry struct {
	byApp map[uint64]group.Address
}

func NewManagerRegistry() *ManagerRegistry {
	return &ManagerRegistry{byApp: make(map[uint64]group.Address)}
}

func (mr *ManagerRegistry) Update(appID uint64, manager group.Address) {
	mr.byApp[appID] = manager
}

func (mr *ManagerRegistry) Lookup(appID uint64) (group.Address, error) {
	mgr, ok := mr.byApp[appID]
	if !ok {
		return group.ZeroAddress, fmt.Errorf("no manager state for app %d", appID)
	}
	return mgr, nil
}

func (mr *ManagerRegistry) All() map[uint64]group.Address {
	out := make(map[uint64]group.Address, len(mr.byApp))
	for k, v := range mr.byApp {
		out[k] = v
	}
	return out
}

func (mr *ManagerRegistry) Restore(appID uint64, manager group.Address) {
	mr.byApp[appID] = manager
}
