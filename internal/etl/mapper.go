package etl

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Davidrsdiaz/Hyperliquid-TWAP-API-Open-Source/internal/domain"
	"github.com/shopspring/decimal"
)

// Source column names as published in the TWAP status parquet files.
const (
	colOrderID         = "twap_id"
	colHolderID        = "state_user"
	colObservedAt      = "state_timestamp"
	colInstrument      = "state_coin"
	colDirection       = "state_side"
	colSizeRequested   = "state_sz"
	colSizeFilled      = "state_executedSz"
	colValueFilled     = "state_executedNtl"
	colLifecycleStatus = "status"
	colDurationMinutes = "state_minutes"
)

// MappingError marks a single row that cannot be normalized, attributed to
// the offending source field. The row is skipped; the object continues.
type MappingError struct {
	Field  string
	Reason string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("field %s: %s", e.Field, e.Reason)
}

// MapRow projects one decoded source row onto a snapshot record. Pure and
// deterministic: missing optional fields become null, never a default
// guess. Fields of the natural key (order id, holder, timestamp) must be
// present, since a snapshot without its key cannot be stored. The complete
// original row is preserved as Raw regardless of mapping of other fields.
func MapRow(row domain.Row, sourceObjectID string) (domain.Snapshot, error) {
	snap := domain.Snapshot{
		SourceObjectID: sourceObjectID,
		Raw:            row.Raw(),
	}

	var err error
	if snap.OrderID, err = requiredString(row, colOrderID); err != nil {
		return domain.Snapshot{}, err
	}
	if snap.HolderID, err = requiredString(row, colHolderID); err != nil {
		return domain.Snapshot{}, err
	}
	if snap.ObservedAt, err = requiredTimestamp(row, colObservedAt); err != nil {
		return domain.Snapshot{}, err
	}

	snap.Instrument = optionalString(row, colInstrument)
	snap.Direction = optionalString(row, colDirection)
	snap.LifecycleStatus = optionalString(row, colLifecycleStatus)

	if snap.SizeRequested, err = optionalDecimal(row, colSizeRequested); err != nil {
		return domain.Snapshot{}, err
	}
	if snap.SizeFilled, err = optionalDecimal(row, colSizeFilled); err != nil {
		return domain.Snapshot{}, err
	}
	if snap.ValueFilled, err = optionalDecimal(row, colValueFilled); err != nil {
		return domain.Snapshot{}, err
	}
	if snap.DurationMinutes, err = optionalInt(row, colDurationMinutes); err != nil {
		return domain.Snapshot{}, err
	}

	return snap, nil
}

func requiredString(row domain.Row, field string) (string, error) {
	v, ok := row.Get(field)
	if !ok || v.IsNull() {
		return "", &MappingError{Field: field, Reason: "required field is missing"}
	}
	return v.String(), nil
}

// requiredTimestamp normalizes observation times to UTC instants. Source
// files carry them as nanosecond epoch integers, ISO-8601 strings, or
// native timestamp columns.
func requiredTimestamp(row domain.Row, field string) (time.Time, error) {
	v, ok := row.Get(field)
	if !ok || v.IsNull() {
		return time.Time{}, &MappingError{Field: field, Reason: "required field is missing"}
	}
	switch v.Kind() {
	case domain.KindTime:
		return v.Time().UTC(), nil
	case domain.KindInt:
		return time.Unix(0, v.Int()).UTC(), nil
	case domain.KindString:
		t, err := time.Parse(time.RFC3339Nano, v.Str())
		if err != nil {
			return time.Time{}, &MappingError{Field: field, Reason: fmt.Sprintf("unparseable timestamp %q", v.Str())}
		}
		return t.UTC(), nil
	default:
		return time.Time{}, &MappingError{Field: field, Reason: fmt.Sprintf("unsupported timestamp representation %v", v.Kind())}
	}
}

func optionalString(row domain.Row, field string) *string {
	v, ok := row.Get(field)
	if !ok || v.IsNull() {
		return nil
	}
	s := v.String()
	return &s
}

func optionalDecimal(row domain.Row, field string) (decimal.NullDecimal, error) {
	v, ok := row.Get(field)
	if !ok || v.IsNull() {
		return decimal.NullDecimal{}, nil
	}
	switch v.Kind() {
	case domain.KindInt:
		return decimal.NewNullDecimal(decimal.NewFromInt(v.Int())), nil
	case domain.KindFloat:
		return decimal.NewNullDecimal(decimal.NewFromFloat(v.Float())), nil
	case domain.KindString:
		d, err := decimal.NewFromString(v.Str())
		if err != nil {
			return decimal.NullDecimal{}, &MappingError{Field: field, Reason: fmt.Sprintf("non-numeric value %q", v.Str())}
		}
		return decimal.NewNullDecimal(d), nil
	default:
		return decimal.NullDecimal{}, &MappingError{Field: field, Reason: fmt.Sprintf("unsupported numeric representation %v", v.Kind())}
	}
}

func optionalInt(row domain.Row, field string) (*int, error) {
	v, ok := row.Get(field)
	if !ok || v.IsNull() {
		return nil, nil
	}
	switch v.Kind() {
	case domain.KindInt:
		n := int(v.Int())
		return &n, nil
	case domain.KindFloat:
		f := v.Float()
		if f != float64(int64(f)) {
			return nil, &MappingError{Field: field, Reason: fmt.Sprintf("non-integral value %v", f)}
		}
		n := int(f)
		return &n, nil
	case domain.KindString:
		n, err := strconv.Atoi(v.Str())
		if err != nil {
			return nil, &MappingError{Field: field, Reason: fmt.Sprintf("non-integer value %q", v.Str())}
		}
		return &n, nil
	default:
		return nil, &MappingError{Field: field, Reason: fmt.Sprintf("unsupported integer representation %v", v.Kind())}
	}
}
