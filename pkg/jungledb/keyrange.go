package jungledb

// KeyRange is a pure descriptor of an inclusive/exclusive bounded interval
// over the key order. A zero-value KeyRange (no bounds, both
// Open flags false) matches every key.
type KeyRange struct {
	Lower      any
	Upper      any
	HasLower   bool
	HasUpper   bool
	LowerOpen  bool
	UpperOpen  bool
}

// Only returns the range matching exactly v: [v, v].
func Only(v any) KeyRange {
	return KeyRange{Lower: v, HasLower: true, Upper: v, HasUpper: true}
}

// LowerBound returns the range [v, +inf) (or (v, +inf) if open).
func LowerBound(v any, open bool) KeyRange {
	return KeyRange{Lower: v, HasLower: true, LowerOpen: open}
}

// UpperBound returns the range (-inf, v] (or (-inf, v) if open).
func UpperBound(v any, open bool) KeyRange {
	return KeyRange{Upper: v, HasUpper: true, UpperOpen: open}
}

// Bound returns the range between lower and upper with the given
// openness on each side.
func Bound(lower, upper any, lowerOpen, upperOpen bool) KeyRange {
	return KeyRange{
		Lower: lower, HasLower: true, LowerOpen: lowerOpen,
		Upper: upper, HasUpper: true, UpperOpen: upperOpen,
	}
}

// Includes reports whether key falls within the range.
func (r KeyRange) Includes(key any) bool {
	if r.HasLower {
		c := compare(key, r.Lower)
		if c < 0 || (c == 0 && r.LowerOpen) {
			return false
		}
	}
	if r.HasUpper {
		c := compare(key, r.Upper)
		if c > 0 || (c == 0 && r.UpperOpen) {
			return false
		}
	}
	return true
}

// IncludesMin reports whether the range's lower bound (if any) is itself a
// member of the range — i.e. the lower bound is closed.
func (r KeyRange) IncludesMin() bool {
	return r.HasLower && !r.LowerOpen
}

// IncludesMax reports whether the range's upper bound (if any) is itself a
// member of the range — i.e. the upper bound is closed.
func (r KeyRange) IncludesMax() bool {
	return r.HasUpper && !r.UpperOpen
}

// Query pairs an index name with a KeyRange; an equality match is the
// range Only(v). Nothing in this package resolves a Query against a store:
// a caller looks the index up by name and passes Range to that index's
// Keys, Values or Count.
type Query struct {
	Index string
	Range KeyRange
}

// Eq builds a Query selecting rows whose secondary key on idx equals v.
func Eq(idx string, v any) Query {
	return Query{Index: idx, Range: Only(v)}
}

// Within builds a Query selecting the closed range [lower, upper] on idx.
func Within(idx string, lower, upper any) Query {
	return Query{Index: idx, Range: Bound(lower, upper, false, false)}
}

// RangeQuery builds a Query over an arbitrary bounded range on idx.
func RangeQuery(idx string, lower, upper any, lowerOpen, upperOpen bool) Query {
	return Query{Index: idx, Range: Bound(lower, upper, lowerOpen, upperOpen)}
}
