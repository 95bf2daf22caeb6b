package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is one observed state of a TWAP order at a point in time.
// The tuple (OrderID, HolderID, ObservedAt) is the natural key: two
// snapshots with the same key are the same fact, and a repeat write of
// the key is a no-op in storage.
type Snapshot struct {
	OrderID         string
	HolderID        string
	ObservedAt      time.Time
	Instrument      *string
	Direction       *string
	SizeRequested   decimal.NullDecimal
	SizeFilled      decimal.NullDecimal
	ValueFilled     decimal.NullDecimal
	LifecycleStatus *string
	DurationMinutes *int
	SourceObjectID  string
	// Raw preserves the complete original source row for forward
	// compatibility and audit.
	Raw map[string]any
	// InsertedAt is assigned by the store on first durable write.
	InsertedAt time.Time
}
