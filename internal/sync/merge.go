package sync

import (
	"time"

	"github.com/aheige321/true-mastery/internal/domain"
)

// Record is a mergeable entity: cards and decks.
type Record interface {
	Key() domain.ID
	Modified() time.Time
	Tombstoned() bool
}

// Merge combines two versions of the same collection by id. The result
// holds every id from either side, in a's order followed by ids only b
// knows, in b's order. Records without an id are skipped.
//
// When both sides hold a record, b's version wins only if it was modified
// strictly later; ties keep a's. This covers tombstones too: a deletion
// newer than the live copy propagates, and an edit newer than a deletion
// resurrects the record. Records are never combined field by field.
func Merge[T Record](a, b []T) []T {
	out := make([]T, 0, len(a)+len(b))
	index := make(map[domain.ID]int, len(a)+len(b))

	upsert := func(r T) {
		id := r.Key()
		if id == "" {
			return
		}
		i, ok := index[id]
		if !ok {
			index[id] = len(out)
			out = append(out, r)
			return
		}
		if newer(r, out[i]) {
			out[i] = r
		}
	}

	for _, r := range a {
		upsert(r)
	}
	for _, r := range b {
		upsert(r)
	}
	return out
}

// newer reports whether incoming replaces existing.
func newer[T Record](incoming, existing T) bool {
	return incoming.Modified().After(existing.Modified())
}
