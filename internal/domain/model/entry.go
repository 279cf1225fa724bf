package model

import "time"

// Entry is one account's standing in one leaderboard partition.
type Entry struct {
	Gamespace     string
	LeaderboardID int64
	AccountID     string
	ClusterID     int64
	Score         float64
	DisplayName   string
	Profile       map[string]any
	ExpiresAt     time.Time
}

// Record is an entry as returned by a scan, before ranks are assigned.
type Record struct {
	AccountID   string
	Score       float64
	DisplayName string
	Profile     map[string]any
}

// Ranked is a record with the rank the producing query gave it.
type Ranked struct {
	Rank        int            `json:"rank"`
	AccountID   string         `json:"account"`
	Score       float64        `json:"score"`
	DisplayName string         `json:"display_name"`
	Profile     map[string]any `json:"profile"`
}

// Page is the result shape of a ranked query.
type Page struct {
	Entries int      `json:"entries"`
	Data    []Ranked `json:"data"`
}

// NewPage ranks records starting at firstRank.
func NewPage(records []Record, firstRank int) Page {
	data := make([]Ranked, len(records))
	for i, r := range records {
		profile := r.Profile
		if profile == nil {
			profile = map[string]any{}
		}
		data[i] = Ranked{
			Rank:        firstRank + i,
			AccountID:   r.AccountID,
			Score:       r.Score,
			DisplayName: r.DisplayName,
			Profile:     profile,
		}
	}
	return Page{Entries: len(data), Data: data}
}

// EmptyPage is the zero-row result.
func EmptyPage() Page {
	return Page{Entries: 0, Data: []Ranked{}}
}
