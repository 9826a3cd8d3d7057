package catalog

import (
	"sort"
	"time"
)

// Sort orders records in place under the catalog's total order:
//
//  1. live before not-live;
//  2. among live, higher viewer count first;
//  3. among not-live, more recent last broadcast first (absent = epoch);
//  4. ties broken by (platform, id) ascending.
func Sort(records []StreamerRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return less(records[i], records[j])
	})
}

func less(a, b StreamerRecord) bool {
	if a.Live() != b.Live() {
		return a.Live()
	}
	if a.Live() {
		if a.ViewerCount != b.ViewerCount {
			return a.ViewerCount > b.ViewerCount
		}
		return keyLess(a, b)
	}
	at, bt := lastBroadcast(a), lastBroadcast(b)
	if !at.Equal(bt) {
		return at.After(bt)
	}
	return keyLess(a, b)
}

func lastBroadcast(r StreamerRecord) time.Time {
	if r.LastBroadcastAt == nil {
		return time.Unix(0, 0).UTC()
	}
	return *r.LastBroadcastAt
}

func keyLess(a, b StreamerRecord) bool {
	if a.Platform != b.Platform {
		return a.Platform < b.Platform
	}
	return a.ID < b.ID
}
