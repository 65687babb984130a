package backup

import (
	"sort"
	"time"
)

type dated struct {
	name string
	at   time.Time
}

// expired returns the entries to delete: everything older than the
// retention period, then whatever exceeds MaxBackups, oldest first.
func expired(items []dated, now time.Time, s Settings) []dated {
	sorted := append([]dated(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].at.After(sorted[j].at) })

	maxAge := time.Duration(s.RetentionDays) * 24 * time.Hour

	var keep, drop []dated
	for _, d := range sorted {
		if s.RetentionDays > 0 && now.Sub(d.at) > maxAge {
			drop = append(drop, d)
			continue
		}
		keep = append(keep, d)
	}
	if s.MaxBackups > 0 && len(keep) > s.MaxBackups {
		drop = append(drop, keep[s.MaxBackups:]...)
	}

	sort.SliceStable(drop, func(i, j int) bool { return drop[i].at.Before(drop[j].at) })
	return drop
}
