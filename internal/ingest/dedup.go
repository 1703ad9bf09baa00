package ingest

import (
	"context"
	"fmt"

	"fintrack/internal/core"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerLookup is the read side the detector needs.
type LedgerLookup interface {
	TransactionExists(ctx context.Context, userID uuid.UUID, date core.Date, amount decimal.Decimal, dir core.Direction, description string) (bool, error)
}

type dedupKey struct {
	user        uuid.UUID
	date        string
	amount      string
	dir         core.Direction
	description string
}

// DuplicateDetector matches candidates on the exact key
// (user, date, amount, direction, description). Amounts are magnitudes, so
// the direction keeps a refund from matching a purchase of the same value. It lives for one batch and also
// remembers rows written earlier in that batch.
type DuplicateDetector struct {
	ledger LedgerLookup
	seen   map[dedupKey]struct{}
}

func NewDuplicateDetector(ledger LedgerLookup) *DuplicateDetector {
	return &DuplicateDetector{ledger: ledger, seen: make(map[dedupKey]struct{})}
}

func (d *DuplicateDetector) IsDuplicate(ctx context.Context, userID uuid.UUID, date core.Date, amount decimal.Decimal, dir core.Direction, description string) (bool, error) {
	if _, ok := d.seen[keyOf(userID, date, amount, dir, description)]; ok {
		return true, nil
	}
	exists, err := d.ledger.TransactionExists(ctx, userID, date, amount, dir, description)
	if err != nil {
		return false, fmt.Errorf("duplicate lookup: %w", err)
	}
	return exists, nil
}

// Remember records a written row so later rows of the batch match it
// without a store round trip.
func (d *DuplicateDetector) Remember(userID uuid.UUID, date core.Date, amount decimal.Decimal, dir core.Direction, description string) {
	d.seen[keyOf(userID, date, amount, dir, description)] = struct{}{}
}

func keyOf(userID uuid.UUID, date core.Date, amount decimal.Decimal, dir core.Direction, description string) dedupKey {
	return dedupKey{user: userID, date: date.String(), amount: core.Canonical(amount), dir: dir, description: description}
}
