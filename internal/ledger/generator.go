package ledger

import (
	"fmt"

	"github.com/google/uuid"

	"GardLedger/internal/escrow"
	"GardLedger/internal/event"
	"GardLedger/internal/group"
)

// JournalGenerator creates balanced journal batches from accepted groups. The
// resulting batch mirrors every value-moving leg one-to-one, so replaying the
// journal reproduces exactly the balances the guards were evaluated against.
type JournalGenerator struct {
	sequence int64
	tracker  *BalanceTracker
	reserve  group.Address
	feeSink  group.Address
}

func NewJournalGenerator(startSequence int64, tracker *BalanceTracker, reserve, feeSink group.Address) *JournalGenerator {
	return &JournalGenerator{
		sequence: startSequence,
		tracker:  tracker,
		reserve:  reserve,
		feeSink:  feeSink,
	}
}

// GenerateGroupBatch converts an accepted submission's legs into one balanced
// batch. Escrow accounts and the reserve pool must already cover their debits
// (their history is fully mirrored); any other sender short of funds is topped
// up from the external funding boundary first, since owner and keeper wallets
// are funded outside the mirrored protocol flows.
func (jg *JournalGenerator) GenerateGroupBatch(sub *event.GroupSubmission) (*Batch, error) {
	batchID := uuid.New()
	batch := &Batch{
		BatchID:   batchID,
		EventRef:  sub.IdempotencyKey(),
		Sequence:  jg.sequence,
		Timestamp: sub.Timestamp.Unix(),
		Journals:  make([]Journal, 0, sub.Group.Size()+1),
	}

	var escrowAddr group.Address
	if sub.Escrow != nil {
		escrowAddr = escrow.Derive(sub.Escrow.Owner, sub.Escrow.PositionID)
	}

	// Running deltas within the batch, applied on top of tracked balances.
	pending := make(map[AccountKey]int64)
	effective := func(key AccountKey) int64 {
		return jg.tracker.GetBalance(key) + pending[key]
	}

	add := func(jt JournalType, debit, credit AccountKey, asset AssetID, amount int64) {
		j := Journal{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			EventRef:      batch.EventRef,
			Sequence:      jg.sequence,
			DebitAccount:  debit,
			CreditAccount: credit,
			AssetID:       asset,
			Amount:        amount,
			JournalType:   jt,
			Timestamp:     batch.Timestamp,
		}
		batch.Journals = append(batch.Journals, j)
		pending[debit] += amount
		pending[credit] -= amount
	}

	cover := func(sender group.Address, asset AssetID, amount int64) error {
		key := NewAddressAccountKey(sender, asset)
		short := amount - effective(key)
		if short <= 0 {
			return nil
		}
		if sender == escrowAddr {
			return fmt.Errorf("escrow %s cannot cover %d (short %d)", sender, amount, short)
		}
		if sender == jg.reserve {
			return fmt.Errorf("reserve cannot cover %d (short %d)", amount, short)
		}
		boundary := SubTypeExternalFunding
		if asset == AssetStable {
			boundary = SubTypeExternalMint
		}
		add(JournalTypeExternalFunding, key, NewExternalAccountKey(boundary, asset), asset, short)
		return nil
	}

	for i := 0; i < sub.Group.Size(); i++ {
		op := sub.Group.At(i)

		switch op.Kind {
		case group.KindPayment:
			if op.Amount > 0 {
				amount := int64(op.Amount)
				if err := cover(op.Sender, AssetNative, amount); err != nil {
					return nil, err
				}
				jt := JournalTypeCollateralLock
				if op.Receiver == jg.feeSink {
					jt = JournalTypeFeePayment
				}
				add(jt,
					NewAddressAccountKey(op.Receiver, AssetNative),
					NewAddressAccountKey(op.Sender, AssetNative),
					AssetNative, amount)
			}
			if !op.CloseRemainderTo.IsZero() {
				remaining := effective(NewAddressAccountKey(op.Sender, AssetNative))
				if remaining > 0 {
					add(JournalTypeCollateralRelease,
						NewAddressAccountKey(op.CloseRemainderTo, AssetNative),
						NewAddressAccountKey(op.Sender, AssetNative),
						AssetNative, remaining)
				}
			}

		case group.KindAssetTransfer:
			if op.AssetAmount > 0 {
				amount := int64(op.AssetAmount)
				if err := cover(op.Sender, AssetStable, amount); err != nil {
					return nil, err
				}
				jt := JournalTypeLiquidationPremium
				switch {
				case op.Sender == jg.reserve:
					jt = JournalTypeMintDisbursement
				case op.AssetReceiver == jg.reserve:
					jt = JournalTypeRepayment
				}
				add(jt,
					NewAddressAccountKey(op.AssetReceiver, AssetStable),
					NewAddressAccountKey(op.Sender, AssetStable),
					AssetStable, amount)
			}
			if !op.AssetCloseTo.IsZero() {
				remaining := effective(NewAddressAccountKey(op.Sender, AssetStable))
				if remaining > 0 {
					add(JournalTypeAdjustment,
						NewAddressAccountKey(op.AssetCloseTo, AssetStable),
						NewAddressAccountKey(op.Sender, AssetStable),
						AssetStable, remaining)
				}
			}
		}
	}

	if len(batch.Journals) == 0 {
		return nil, fmt.Errorf("submission %s moved no value", batch.EventRef)
	}

	jg.sequence++
	return batch, nil
}

// GenerateGenesisMint seeds the reserve pool's synthetic supply from the mint
// boundary. Used once at bootstrap and on snapshot-less restarts.
func (jg *JournalGenerator) GenerateGenesisMint(supply int64, timestamp int64) (*Batch, error) {
	if supply <= 0 {
		return nil, fmt.Errorf("genesis supply must be positive, got %d", supply)
	}

	batchID := uuid.New()
	batch := &Batch{
		BatchID:   batchID,
		EventRef:  "genesis:reserve",
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals: []Journal{{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			EventRef:      "genesis:reserve",
			Sequence:      jg.sequence,
			DebitAccount:  NewAddressAccountKey(jg.reserve, AssetStable),
			CreditAccount: NewExternalAccountKey(SubTypeExternalMint, AssetStable),
			AssetID:       AssetStable,
			Amount:        supply,
			JournalType:   JournalTypeGenesisMint,
			Timestamp:     timestamp,
		}},
	}

	jg.sequence++
	return batch, nil
}

// Sequence returns the next batch sequence (for snapshot persistence).
func (jg *JournalGenerator) Sequence() int64 {
	return jg.sequence
}

// SetSequence resets the generator after a snapshot restore.
func (jg *JournalGenerator) SetSequence(seq int64) {
	jg.sequence = seq
}
