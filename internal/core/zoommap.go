package core

import "sort"

// FingerprintMap is a sorted mapping from an address — an Interval at
// granularity > 1, individual row ids at granularity 1 — to a
// 32-character hex MD5 digest. Address is carried as an Interval
// throughout; granularity-1 callers wrap each row id as Interval{id,id}.
type FingerprintMap map[Interval]string

// SortedAddresses returns the map's keys in ascending order, matching
// the "addresses are yielded in ascending order" ordering guarantee.
func (m FingerprintMap) SortedAddresses() []Interval {
	addrs := make([]Interval, 0, len(m))
	for a := range m {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Start < addrs[j].Start })
	return addrs
}

// ZoomLevel is one entry of a ZoomMap: the set of mismatching
// sub-ranges found at this granularity, or Scanned=false if this level
// hasn't been visited yet.
type ZoomLevel struct {
	Granularity int64
	Scanned     bool
	Scopes      []Interval
}

// ZoomMap is the ordered granularity -> scopes state of one table's
// zoom recursion (spec §4.7). Granularities are kept sorted ascending;
// a nil/unscanned level has Scanned == false.
type ZoomMap struct {
	levels []ZoomLevel
}

// NewZoomMap builds the initial map for a magnification list plus the
// upstream max id: every named granularity starts unscanned, and the
// upstream.MaxID level starts pre-populated with the whole table as a
// single scope. A magnification larger than upstream.MaxID is kept as a
// level but never scanned.
func NewZoomMap(magnifications []int64, upstreamMaxID int64) *ZoomMap {
	granularities := map[int64]bool{upstreamMaxID: true}
	for _, g := range magnifications {
		granularities[g] = true
	}

	sorted := make([]int64, 0, len(granularities))
	for g := range granularities {
		sorted = append(sorted, g)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	zm := &ZoomMap{}
	for _, g := range sorted {
		zm.levels = append(zm.levels, ZoomLevel{Granularity: g})
	}

	for i := range zm.levels {
		if zm.levels[i].Granularity == upstreamMaxID {
			zm.levels[i].Scanned = true
			zm.levels[i].Scopes = []Interval{{Start: 0, End: upstreamMaxID}}
		}
	}
	return zm
}

// Levels returns the levels from finest to coarsest (ascending
// granularity).
func (zm *ZoomMap) Levels() []ZoomLevel {
	return zm.levels
}

// Populate records the scan result for a granularity.
func (zm *ZoomMap) Populate(granularity int64, scopes []Interval) {
	for i := range zm.levels {
		if zm.levels[i].Granularity == granularity {
			zm.levels[i].Scanned = true
			zm.levels[i].Scopes = scopes
			return
		}
	}
	panic("core: zoom map has no such granularity")
}

// NextToScan walks from largest to smallest granularity looking for the
// topmost unscanned level whose next-coarser neighbor is populated.
// It returns (granularity to scan, scopes to scan within, ok).
func (zm *ZoomMap) NextToScan() (granularity int64, largerScope []Interval, ok bool) {
	// levels are sorted ascending by granularity: index len-1 is coarsest.
	for i := len(zm.levels) - 2; i >= 0; i-- {
		finer := zm.levels[i]
		coarser := zm.levels[i+1]
		if !finer.Scanned && coarser.Scanned {
			return finer.Granularity, coarser.Scopes, true
		}
	}
	return 0, nil, false
}

// Finest returns the smallest-granularity level, which is always
// populated by the time recursion terminates.
func (zm *ZoomMap) Finest() ZoomLevel {
	return zm.levels[0]
}

// GroupConcatBudget bounds how many 32-byte MD5 entries (plus a comma
// each) a single GROUP_CONCAT is allowed to carry, taken as the
// minimum of what upstream and downstream will permit.
type GroupConcatBudget struct {
	Rows  int64
	Bytes int64
}

// Min returns the more restrictive of two budgets.
func (b GroupConcatBudget) Min(other GroupConcatBudget) GroupConcatBudget {
	out := b
	if other.Rows < out.Rows {
		out.Rows = other.Rows
	}
	if other.Bytes < out.Bytes {
		out.Bytes = other.Bytes
	}
	return out
}
