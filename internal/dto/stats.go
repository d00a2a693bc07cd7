// Summary and StatsData carry aggregate counts over stored detections.
package dto

// Summary is a consistent snapshot of the aggregate counters.
type Summary struct {
	Total       int64
	PerLabel    map[string]int64
	RecentCount int64
}

type StatsData struct {
	TotalDetections int64            `json:"total_detections"`
	CountsPerLabel  map[string]int64 `json:"counts_per_label"`
	RecentCount     int64            `json:"recent_count_last_minutes"`
	RecentPerMinute *float64         `json:"recent_per_minute"`
}
