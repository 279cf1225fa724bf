// Package loadgen drives a running leaderboard service over HTTP: it submits
// one score per generated account, reads the leaderboard back page by page
// and checks that order and ranks match the submitted scores.
package loadgen

import (
	"time"

	"github.com/anthill-platform/anthill-leaderboard/internal/domain/model"
	"github.com/anthill-platform/anthill-leaderboard/pkg/logger"
)

// Config holds configuration for a load run.
type Config struct {
	BaseURL     string          // Base URL of the service
	Gamespace   string          // Value of the gamespace header
	Leaderboard string          // Leaderboard name; generated when empty
	Order       model.SortOrder // Sort order of the leaderboard
	Accounts    int             // Number of accounts to submit for
	Workers     int             // Number of concurrent submitters
	PageSize    int             // Limit used when reading the leaderboard back
	Timeout     time.Duration   // HTTP request timeout
	ExpireIn    time.Duration   // Time-to-live of submitted entries
	Cleanup     bool            // Delete the leaderboard when done
	Logger      logger.Logger   // Progress output; nil discards it
}

// DefaultConfig returns the settings used by the CLI.
func DefaultConfig() Config {
	return Config{
		BaseURL:   "http://localhost:9511",
		Gamespace: "loadgen",
		Order:     model.Descending,
		Accounts:  1000,
		Workers:   16,
		PageSize:  100,
		Timeout:   10 * time.Second,
		ExpireIn:  time.Hour,
	}
}

// Submission is one generated score.
type Submission struct {
	Account string  `json:"-"`
	Score   float64 `json:"score"`
	Name    string  `json:"display_name"`
	// ExpireIn is in seconds.
	ExpireIn int64 `json:"expire_in"`
	Profile  any   `json:"profile"`
}

// Entry is one ranked row read back from the service.
type Entry struct {
	Rank    int     `json:"rank"`
	Account string  `json:"account"`
	Score   float64 `json:"score"`
}

// Stats holds run statistics.
type Stats struct {
	Submitted int
	Inserted  int
	Updated   int
	Failed    int
	Read      int
	Duration  time.Duration
}
