// Package leaderboard contains the core domain types and computations for
// Advent of Code leaderboard snapshots.
package leaderboard

import (
	"errors"
	"fmt"
	"time"
)

// Part identifies one of the two stars of a daily challenge.
type Part int

// Each challenge day has exactly two parts.
const (
	PartOne Part = 1
	PartTwo Part = 2
)

func (p Part) String() string {
	switch p {
	case PartOne:
		return "1"
	case PartTwo:
		return "2"
	default:
		return fmt.Sprintf("Part(%d)", int(p))
	}
}

// ParsePart converts a star index (1 or 2) into a Part.
func ParsePart(n int) (Part, error) {
	switch n {
	case 1:
		return PartOne, nil
	case 2:
		return PartTwo, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrInvalidPart, n)
	}
}

// Valid reports whether p is one of the two parts.
func (p Part) Valid() bool {
	return p == PartOne || p == PartTwo
}

// Member identifies a leaderboard participant.
// Two members are the same participant when their IDs match; names may change
// between snapshots.
type Member struct {
	Name        string `json:"name"`
	ID          uint64 `json:"id"`
	GlobalScore uint64 `json:"global_score"` // Provider-assigned score, 0 when unknown
}

// Solve is a single earned star.
type Solve struct {
	Timestamp time.Time `json:"timestamp"`
	Member    Member    `json:"member"`
	Year      int       `json:"year"`
	Day       int       `json:"day"`
	Part      Part      `json:"part"`
	Rank      int       `json:"rank,omitempty"` // Position on a top-100 listing, 0 when not ranked
}

// Ranked reports whether the solve carries a provider rank.
func (s Solve) Ranked() bool {
	return s.Rank > 0
}

// Key returns the uniqueness key of the solve.
func (s Solve) Key() Key {
	return Key{Year: s.Year, MemberID: s.Member.ID, Day: s.Day, Part: s.Part}
}

// Key identifies a solve within a snapshot: one star per member per part per day.
type Key struct {
	Year     int
	MemberID uint64
	Day      int
	Part     Part
}

// Challenge identifies one star of one day.
type Challenge struct {
	Day  int
	Part Part
}

// Days is the number of challenge days in an event.
const Days = 25

// TopRank is the last rank listed on a provider top-100 board.
const TopRank = 100

// UnknownRank tags a delta computed as a bound rather than an exact value.
const UnknownRank = TopRank + 1

var (
	// ErrNoData indicates that no solves exist for the requested day.
	ErrNoData = errors.New("no data for day")

	// ErrInvalidDay indicates a day outside 1-25.
	ErrInvalidDay = errors.New("invalid day")

	// ErrInvalidPart indicates a part other than 1 or 2.
	ErrInvalidPart = errors.New("invalid part")
)

// InconsistencyError reports a snapshot that violates the one-solve-per-part
// invariant. It is never recoverable.
type InconsistencyError struct {
	MemberID uint64
	Year     int
	Day      int
	Count    int
	Part     Part // Set for duplicate keys, 0 when Count exceeds the two parts
}

func (e *InconsistencyError) Error() string {
	if e.Part != 0 {
		return fmt.Sprintf("duplicate solve: member %d year %d day %d part %s", e.MemberID, e.Year, e.Day, e.Part)
	}
	return fmt.Sprintf("member %d has %d solves for year %d day %d", e.MemberID, e.Count, e.Year, e.Day)
}

// IsInconsistent checks if an error is an InconsistencyError.
func IsInconsistent(err error) bool {
	var inconsistent *InconsistencyError
	return errors.As(err, &inconsistent)
}

func validDay(day int) error {
	if day < 1 || day > Days {
		return fmt.Errorf("%w: %d", ErrInvalidDay, day)
	}
	return nil
}
