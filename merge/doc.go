// Package merge combines two versions of the same entity.
//
// The newer version (by Date; a missing date is oldest) wins. Its non-empty
// fields are layered over the older version's non-empty fields, so a later
// but less complete record never erases data the store already holds. Equal
// or missing dates keep the stored entity as the winner, which makes
// re-importing unchanged data a no-op.
//
//	m := merge.New(merge.WithLogger(log))
//	merged, report, err := m.Merge(stored, incoming)
//	if err != nil {
//	    return err // only under MismatchReject
//	}
//	if report.Changed {
//	    // persist merged
//	}
package merge
