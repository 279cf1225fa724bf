// Package types contains request and status shapes shared by the service and
// its transports.
package types

import (
	"time"

	"github.com/anthill-platform/anthill-leaderboard/internal/domain/model"
)

// Submission is one account's score for a leaderboard.
type Submission struct {
	Gamespace   string
	Name        string
	Order       model.SortOrder
	Account     string
	Score       float64
	DisplayName string
	Profile     map[string]any
	// ExpireIn is the time-to-live of the entry.
	ExpireIn time.Duration
}

// ExpiresAt returns the absolute expiry of an entry written at now.
func (s Submission) ExpiresAt(now time.Time) time.Time {
	return now.Add(s.ExpireIn)
}

// Stats is a snapshot of the background machinery.
type Stats struct {
	Started            bool  `json:"started"`
	PurgeQueueLength   int   `json:"purge_queue_length"`
	PurgeWorkers       int   `json:"purge_workers"`
	RememberedPurgeIDs int64 `json:"remembered_purge_ids"`
}
