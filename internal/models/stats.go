package models

import "time"

// GenderCounts is a total plus a per-gender breakdown.
type GenderCounts struct {
	Total  int `json:"t"`
	Male   int `json:"m"`
	Female int `json:"f"`
}

// AvgSearchTime summarizes how long matched searches took to pair.
type AvgSearchTime struct {
	Male      float64 `json:"m"`
	Female    float64 `json:"f"`
	Total     float64 `json:"t"`
	Matches24h int    `json:"matches24h"`
}

// StatsSnapshot is the cached, derivable-from-Store global view broadcast to
// search_stats_room subscribers.
type StatsSnapshot struct {
	Searching     GenderCounts  `json:"searching"`
	Online        GenderCounts  `json:"online"`
	AvgSearchTime AvgSearchTime `json:"avgSearchTime"`
	CachedAt      time.Time     `json:"cachedAt"`
}

// Clone returns a deep copy safe to hand to a caller outside the lock.
func (s StatsSnapshot) Clone() StatsSnapshot {
	return s
}
