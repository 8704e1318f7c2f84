package domain

import (
	"encoding/json"
	"math"
)

// Item keys with a fixed meaning across backends.
const (
	ItemKeyUUID      = "uuid"
	ItemKeyUpdatedOn = "updated_on"
	ItemKeyOffset    = "offset"

	// Added to every item by the job before it is pushed.
	ItemKeyJobID   = "job_id"
	ItemKeyVersion = "harvester_version"
)

// Item is one unit of fetched data, a field map produced by a backend.
type Item map[string]any

// UUID returns the item identifier, or "" when it has none.
func (i Item) UUID() string {
	s, _ := i[ItemKeyUUID].(string)
	return s
}

// UpdatedOn returns the update timestamp (unix seconds) of the item.
func (i Item) UpdatedOn() (float64, bool) {
	return toFloat(i[ItemKeyUpdatedOn])
}

// Offset returns the offset carried by the item. Only integral values count.
func (i Item) Offset() (int64, bool) {
	switch n := i[ItemKeyOffset].(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		if v, err := n.Int64(); err == nil {
			return v, true
		}
		f, err := n.Float64()
		if err != nil || f != math.Trunc(f) || math.Abs(f) >= 1<<63 {
			return 0, false
		}
		return int64(f), true
	case float64:
		if n != math.Trunc(n) || math.Abs(n) >= 1<<63 {
			return 0, false
		}
		return int64(n), true
	case float32:
		f := float64(n)
		if f != math.Trunc(f) || math.Abs(f) >= 1<<63 {
			return 0, false
		}
		return int64(f), true
	default:
		return 0, false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
