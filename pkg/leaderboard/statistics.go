package leaderboard

import (
	"slices"
	"sort"
	"time"
)

// ProviderOffset is added to timestamps rendered by the provider's day pages
// to bring them to the reference frame used for release times.
const ProviderOffset = 6 * time.Hour

// challengeZone is the zone in which the provider unlocks a new day at midnight.
var challengeZone = time.FixedZone("UTC-5", -5*60*60)

// ReleaseTime returns the instant a challenge day is released, in the same
// reference frame as scraped solve timestamps.
func ReleaseTime(year, day int) time.Time {
	return time.Date(year, time.December, day, 0, 0, 0, 0, time.UTC).Add(ProviderOffset)
}

// CurrentDay returns the challenge day running at now, if any.
func CurrentDay(now time.Time) (year, day int, ok bool) {
	local := now.In(challengeZone)
	if local.Month() != time.December || local.Day() > Days {
		return local.Year(), 0, false
	}
	return local.Year(), local.Day(), true
}

// Timing is a part 1 to part 2 delta tagged with the part 2 rank it belongs to.
// Rank is UnknownRank when the delta is a bound rather than an exact value.
type Timing struct {
	Delta time.Duration `json:"delta"`
	Rank  int           `json:"rank"`
}

// DayStatistics summarises the top-100 boards of one day. Nil fields mean the
// value could not be determined.
type DayStatistics struct {
	PartOneFastest *time.Duration `json:"part_one_fastest,omitempty"`
	PartOneSlowest *time.Duration `json:"part_one_slowest,omitempty"`
	PartTwoFastest *time.Duration `json:"part_two_fastest,omitempty"`
	PartTwoSlowest *time.Duration `json:"part_two_slowest,omitempty"`
	DeltaFastest   *Timing        `json:"delta_fastest,omitempty"`
	DeltaSlowest   *Timing        `json:"delta_slowest,omitempty"`
}

// Statistics computes completion times and part deltas for one day of a
// global snapshot. release is the instant the day was unlocked.
func (s *Snapshot) Statistics(year, day int, release time.Time) (*DayStatistics, error) {
	if err := validDay(day); err != nil {
		return nil, err
	}

	var partOne, partTwo, today []Solve
	for _, solve := range s.solves {
		if solve.Year != year || solve.Day != day {
			continue
		}
		today = append(today, solve)
		if solve.Part == PartOne {
			partOne = append(partOne, solve)
		} else {
			partTwo = append(partTwo, solve)
		}
	}
	if len(today) == 0 {
		return nil, ErrNoData
	}

	stats := &DayStatistics{}
	stats.PartOneFastest, stats.PartOneSlowest = offsets(partOne, release)
	stats.PartTwoFastest, stats.PartTwoSlowest = offsets(partTwo, release)

	timings, err := s.timings(today)
	if err != nil {
		return nil, err
	}
	var ranked []Timing
	for _, t := range timings {
		if t.Rank <= TopRank {
			ranked = append(ranked, t)
		}
	}
	if len(ranked) > 0 {
		sort.SliceStable(ranked, func(i, j int) bool {
			if ranked[i].Delta != ranked[j].Delta {
				return ranked[i].Delta < ranked[j].Delta
			}
			return ranked[i].Rank < ranked[j].Rank
		})
		fastest, slowest := ranked[0], ranked[len(ranked)-1]
		stats.DeltaFastest, stats.DeltaSlowest = &fastest, &slowest
	}
	return stats, nil
}

func offsets(solves []Solve, release time.Time) (fastest, slowest *time.Duration) {
	if len(solves) == 0 {
		return nil, nil
	}
	sorted := slices.Clone(solves)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	first := sorted[0].Timestamp.Sub(release)
	last := sorted[len(sorted)-1].Timestamp.Sub(release)
	return &first, &last
}

// latest returns the most recent part 1 and part 2 timestamps across the
// whole snapshot. They bound the arrival time of stars missing from a board.
func (s *Snapshot) latest() (partOne, partTwo time.Time) {
	for _, solve := range s.solves {
		switch solve.Part {
		case PartOne:
			if solve.Timestamp.After(partOne) {
				partOne = solve.Timestamp
			}
		case PartTwo:
			if solve.Timestamp.After(partTwo) {
				partTwo = solve.Timestamp
			}
		}
	}
	return partOne, partTwo
}

// timings computes one delta per ranked member of solves. Members present on a
// single board get an extrapolated delta.
func (s *Snapshot) timings(solves []Solve) ([]Timing, error) {
	maxOne, maxTwo := s.latest()

	byMember := make(map[uint64][]Solve)
	var ids []uint64
	for _, solve := range solves {
		if !solve.Ranked() {
			continue
		}
		if _, ok := byMember[solve.Member.ID]; !ok {
			ids = append(ids, solve.Member.ID)
		}
		byMember[solve.Member.ID] = append(byMember[solve.Member.ID], solve)
	}

	out := make([]Timing, 0, len(ids))
	for _, id := range ids {
		entries := byMember[id]
		switch len(entries) {
		case 1:
			e := entries[0]
			if e.Part == PartOne {
				// Part 2 came after the last listed part 2 star, so the real
				// delta is above this bound.
				if maxTwo.IsZero() {
					continue
				}
				out = append(out, Timing{Delta: maxTwo.Sub(e.Timestamp) + time.Second, Rank: UnknownRank})
				continue
			}
			// Part 1 came after the last listed part 1 star.
			if maxOne.IsZero() {
				continue
			}
			out = append(out, Timing{Delta: e.Timestamp.Sub(maxOne) - time.Second, Rank: e.Rank})
		case 2:
			one, two := entries[0], entries[1]
			if one.Part == PartTwo {
				one, two = two, one
			}
			out = append(out, Timing{Delta: two.Timestamp.Sub(one.Timestamp), Rank: two.Rank})
		default:
			return nil, &InconsistencyError{MemberID: id, Year: entries[0].Year, Day: entries[0].Day, Count: len(entries)}
		}
	}
	return out, nil
}
