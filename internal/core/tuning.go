package core

// Tuning constants from spec §6. They bound how much work a single
// round trip is allowed to do, the same roles the original project's
// constants.py played: big enough to make progress, small enough that
// a slow remote connection or an overloaded server doesn't time out
// mid-batch.
const (
	// BatchRows bounds how many rows a single ID-extension dump
	// batch moves at a time.
	BatchRows = 100000

	// BatchConditions bounds how many ids can appear in a single
	// "id IN (...)" predicate built from a modified-time window.
	BatchConditions = 1000

	// BatchFingerprints bounds how many OR-joined predicates a
	// single fingerprinting query (or transfer predicate) may contain.
	BatchFingerprints = 1000

	// GroupConcatTry is the group_concat_max_len value requested at
	// the start of a session, before the server's actual ceiling is
	// discovered: 32 bytes per MD5 plus one separator byte, times
	// ten million rows.
	GroupConcatTry = 10_000_000 * 33
)
