package domain

import (
	"fmt"
	"time"
)

// ValueKind discriminates the representations a source field can take.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindString
	KindInt
	KindFloat
	KindTime
)

// Value is one cell of a decoded source row. Source files are loosely
// typed, so every field is carried as a tagged union instead of an
// interface{} bag.
type Value struct {
	kind ValueKind
	str  string
	i64  int64
	f64  float64
	ts   time.Time
}

func Null() Value            { return Value{kind: KindNull} }
func String(s string) Value  { return Value{kind: KindString, str: s} }
func Int(i int64) Value      { return Value{kind: KindInt, i64: i} }
func Float(f float64) Value  { return Value{kind: KindFloat, f64: f} }
func Time(t time.Time) Value { return Value{kind: KindTime, ts: t.UTC()} }

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsNull() bool    { return v.kind == KindNull }

func (v Value) Str() string     { return v.str }
func (v Value) Int() int64      { return v.i64 }
func (v Value) Float() float64  { return v.f64 }
func (v Value) Time() time.Time { return v.ts }

// Interface converts the value into its plain Go representation, suitable
// for JSON encoding of the raw payload. Times render as RFC 3339 in UTC so
// the raw payload round-trips through JSONB unchanged.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return v.i64
	case KindFloat:
		return v.f64
	case KindTime:
		return v.ts.UTC().Format(time.RFC3339Nano)
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return fmt.Sprintf("%d", v.i64)
	case KindFloat:
		return fmt.Sprintf("%v", v.f64)
	case KindTime:
		return v.ts.UTC().Format(time.RFC3339Nano)
	default:
		return "null"
	}
}

// Row is one decoded source row: field names in file order with their
// values. Lookup is by name; order is preserved only for the raw payload.
type Row struct {
	Fields []Field
}

type Field struct {
	Name  string
	Value Value
}

// Get returns the value for a field name and whether it was present.
func (r Row) Get(name string) (Value, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Raw returns the entire row as a plain map for verbatim retention.
func (r Row) Raw() map[string]any {
	out := make(map[string]any, len(r.Fields))
	for _, f := range r.Fields {
		out[f.Name] = f.Value.Interface()
	}
	return out
}
