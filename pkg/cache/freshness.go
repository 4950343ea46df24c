package cache

import "time"

// IsFresh reports whether entry may be served without a fetch.
// A forced refresh or a missing entry is never fresh; otherwise the entry is
// fresh while its age is strictly below window, so an entry exactly window old
// has expired.
func IsFresh[P any](entry *Entry[P], now time.Time, forceRefresh bool, window time.Duration) bool {
	if forceRefresh || entry == nil {
		return false
	}
	return now.Sub(entry.FetchedAt) < window
}
