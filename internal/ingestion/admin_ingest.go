package ingestion

import (
	"context"
	"fmt"
	"time"

	"GardLedger/internal/event"
	"GardLedger/internal/group"
)

// AdminIngestService provides manual event injection for operators: seeding
// an oracle price on a fresh deployment, forcing a fee election, rotating the
// governance manager. Not for high-throughput ingestion (use NATS for that).
type AdminIngestService struct {
	eventChan chan<- event.Event
}

func NewAdminIngestService(eventChan chan<- event.Event) *AdminIngestService {
	return &AdminIngestService{eventChan: eventChan}
}

// InjectPrice manually injects a PriceUpdate event.
func (s *AdminIngestService) InjectPrice(
	ctx context.Context,
	oracleAppID uint64,
	price uint64,
	decimals uint64,
	priceSequence int64,
) error {
	if oracleAppID == 0 {
		return fmt.Errorf("oracle app id must be set")
	}
	if price == 0 {
		return fmt.Errorf("price must be positive")
	}

	evt := &event.PriceUpdate{
		OracleAppID:    oracleAppID,
		Price:          price,
		Decimals:       decimals,
		PriceSequence:  priceSequence,
		PriceTimestamp: time.Now().Unix(),
	}

	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectFee manually injects a FeeUpdate event.
func (s *AdminIngestService) InjectFee(
	ctx context.Context,
	feeAppID uint64,
	feePct uint64,
	sequence int64,
) error {
	if feeAppID == 0 {
		return fmt.Errorf("fee app id must be set")
	}

	evt := &event.FeeUpdate{
		FeeAppID:  feeAppID,
		FeePct:    feePct,
		Sequence:  sequence,
		Timestamp: time.Now().Unix(),
	}

	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectManager manually injects a ManagerUpdate event.
func (s *AdminIngestService) InjectManager(
	ctx context.Context,
	managerAppID uint64,
	manager group.Address,
	sequence int64,
) error {
	if managerAppID == 0 {
		return fmt.Errorf("manager app id must be set")
	}
	if manager.IsZero() {
		return fmt.Errorf("manager address must be set")
	}

	evt := &event.ManagerUpdate{
		ManagerAppID: managerAppID,
		Manager:      manager,
		Sequence:     sequence,
		Timestamp:    time.Now().Unix(),
	}

	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
