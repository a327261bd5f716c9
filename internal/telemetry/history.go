package telemetry

import (
	"sort"

	"sentinel-monitor/internal/model"
)

// NormalizeHistory returns entries oldest-first by parsed timestamp.
// The sort is stable: equal timestamps keep arrival order and duplicates are kept.
// Entries with unparsable timestamps sort before all dated entries.
func NormalizeHistory(entries []model.HistoryEntry) []model.HistoryEntry {
	type keyed struct {
		entry model.HistoryEntry
		ok    bool
		unix  int64
	}

	items := make([]keyed, len(entries))
	for i, e := range entries {
		e.Sanitize()
		ts, ok := model.ParseTimestamp(e.Timestamp)
		items[i] = keyed{entry: e, ok: ok}
		if ok {
			items[i].unix = ts.UnixNano()
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.ok != b.ok {
			return !a.ok
		}
		return a.unix < b.unix
	})

	out := make([]model.HistoryEntry, len(items))
	for i, it := range items {
		out[i] = it.entry
	}
	return out
}
