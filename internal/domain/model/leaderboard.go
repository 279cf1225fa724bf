// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
)

// SortOrder is part of a leaderboard's identity: the same name with the
// opposite order is a different leaderboard.
type SortOrder string

// Supported sort orders.
const (
	Ascending  SortOrder = "asc"
	Descending SortOrder = "desc"
)

// ParseSortOrder accepts "asc"/"desc" (case-insensitive).
func ParseSortOrder(s string) (SortOrder, error) {
	switch SortOrder(strings.ToLower(strings.TrimSpace(s))) {
	case Ascending:
		return Ascending, nil
	case Descending:
		return Descending, nil
	default:
		return "", fmt.Errorf("%w: unknown sort order %q", ErrInvalidArgument, s)
	}
}

// Valid reports whether o is one of the supported orders.
func (o SortOrder) Valid() bool {
	return o == Ascending || o == Descending
}

// Better reports whether score a ranks ahead of score b under this order.
func (o SortOrder) Better(a, b float64) bool {
	if o == Ascending {
		return a < b
	}
	return a > b
}

// SQL returns the ORDER BY direction keyword.
func (o SortOrder) SQL() string {
	if o == Ascending {
		return "ASC"
	}
	return "DESC"
}

// Reverse returns the opposite order.
func (o SortOrder) Reverse() SortOrder {
	if o == Ascending {
		return Descending
	}
	return Ascending
}

// NoCluster is the partition every non-clustered leaderboard lives in.
const NoCluster int64 = 0

// Leaderboard is a resolved leaderboard identity.
type Leaderboard struct {
	ID        int64
	Gamespace string
	Name      string
	Order     SortOrder
	// Clustered is fixed when the leaderboard is created and never re-derived.
	Clustered bool
}

// Ref names a leaderboard the way callers address it.
type Ref struct {
	Gamespace string
	Name      string
	Order     SortOrder
	// Clustered is only consulted when the leaderboard gets created.
	Clustered bool
}

// Validate checks the identity triple.
func (r Ref) Validate() error {
	switch {
	case strings.TrimSpace(r.Gamespace) == "":
		return fmt.Errorf("%w: missing gamespace", ErrInvalidArgument)
	case strings.TrimSpace(r.Name) == "":
		return fmt.Errorf("%w: missing leaderboard name", ErrInvalidArgument)
	case !r.Order.Valid():
		return fmt.Errorf("%w: invalid sort order %q", ErrInvalidArgument, r.Order)
	}
	return nil
}

// Partition addresses one scan scope: a leaderboard's cluster.
type Partition struct {
	Gamespace     string
	LeaderboardID int64
	ClusterID     int64
}

// Partition returns the scan scope of lb for the given cluster.
func (lb Leaderboard) Partition(clusterID int64) Partition {
	return Partition{Gamespace: lb.Gamespace, LeaderboardID: lb.ID, ClusterID: clusterID}
}
