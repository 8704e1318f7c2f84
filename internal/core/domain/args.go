package domain

import "maps"

// Well-known argument names injected by the job itself.
const (
	ArgFromDate = "from_date"
	ArgOffset   = "offset"
	ArgCache    = "cache"
)

// Args is the generic argument bag handed to a backend.
type Args map[string]any

// Clone returns a shallow copy so callers' bags are never mutated.
func (a Args) Clone() Args {
	out := make(Args, len(a)+2)
	maps.Copy(out, a)
	return out
}
