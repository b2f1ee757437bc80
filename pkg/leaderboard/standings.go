package leaderboard

import (
	"slices"
	"sort"
	"time"
)

// Standing is one row of a points or star ranking.
type Standing struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// DeltaStanding is one row of a part 1 to part 2 ranking.
type DeltaStanding struct {
	Name  string        `json:"name"`
	Delta time.Duration `json:"delta"`
}

// dailyScores computes the local score of every member, one slot per day.
// Each star is worth N points for the first solver, N-1 for the second and so
// on, where N is the number of members in the whole snapshot.
func (s *Snapshot) dailyScores() map[uint64]*[Days]int {
	n := len(s.MemberIDs())
	scores := make(map[uint64]*[Days]int)

	for c, solves := range s.ByChallenge() {
		if c.Day < 1 || c.Day > Days {
			continue
		}
		sort.SliceStable(solves, func(i, j int) bool {
			return solves[i].Timestamp.Before(solves[j].Timestamp)
		})
		for i, solve := range solves {
			days, ok := scores[solve.Member.ID]
			if !ok {
				days = &[Days]int{}
				scores[solve.Member.ID] = days
			}
			days[c.Day-1] += n - i
		}
	}
	return scores
}

// rank orders rows by member ID then stable-sorts them with less, so that
// ties always come out in the same order.
func rank[T any](members map[uint64]Member, rows map[uint64]T, less func(a, b T) bool, row func(Member, T) Standing) []Standing {
	ids := make([]uint64, 0, len(rows))
	for id := range rows {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	sort.SliceStable(ids, func(i, j int) bool {
		return less(rows[ids[i]], rows[ids[j]])
	})

	out := make([]Standing, 0, len(ids))
	for _, id := range ids {
		out = append(out, row(members[id], rows[id]))
	}
	return out
}

// ScoreStandings ranks members by local score, highest first.
func (s *Snapshot) ScoreStandings() []Standing {
	totals := make(map[uint64]int)
	for id, days := range s.dailyScores() {
		for _, score := range days {
			totals[id] += score
		}
	}
	return rank(s.members(), totals,
		func(a, b int) bool { return a > b },
		func(m Member, score int) Standing { return Standing{Name: m.Name, Score: score} })
}

// DayScoreStandings ranks members by the local score earned on one day.
// Members without points that day are left out.
func (s *Snapshot) DayScoreStandings(day int) ([]Standing, error) {
	if err := validDay(day); err != nil {
		return nil, err
	}
	scores := make(map[uint64]int)
	for id, days := range s.dailyScores() {
		if days[day-1] > 0 {
			scores[id] = days[day-1]
		}
	}
	return rank(s.members(), scores,
		func(a, b int) bool { return a > b },
		func(m Member, score int) Standing { return Standing{Name: m.Name, Score: score} }), nil
}

type starCount struct {
	stars int
	last  time.Time
}

// StarStandings ranks members by number of stars. Equal counts are ordered by
// who earned their last star first.
func (s *Snapshot) StarStandings() []Standing {
	counts := make(map[uint64]starCount)
	for id, solves := range s.ByMember() {
		c := starCount{stars: len(solves)}
		for _, solve := range solves {
			if solve.Timestamp.After(c.last) {
				c.last = solve.Timestamp
			}
		}
		counts[id] = c
	}
	return rank(s.members(), counts,
		func(a, b starCount) bool {
			if a.stars != b.stars {
				return a.stars > b.stars
			}
			return a.last.Before(b.last)
		},
		func(m Member, c starCount) Standing { return Standing{Name: m.Name, Score: c.stars} })
}

// GlobalScoreStandings ranks members by provider score. Members without a
// provider score are left out, so scraped snapshots always yield an empty list.
func (s *Snapshot) GlobalScoreStandings() []Standing {
	scores := make(map[uint64]int)
	for id, m := range s.members() {
		if m.GlobalScore > 0 {
			scores[id] = int(m.GlobalScore)
		}
	}
	return rank(s.members(), scores,
		func(a, b int) bool { return a > b },
		func(m Member, score int) Standing { return Standing{Name: m.Name, Score: score} })
}

// DeltaStandings ranks members who solved both parts of a day by the time
// between their two stars, fastest first.
func (s *Snapshot) DeltaStandings(day int) ([]DeltaStanding, error) {
	if err := validDay(day); err != nil {
		return nil, err
	}
	members := s.members()
	deltas := make(map[uint64]time.Duration)

	for id, solves := range s.ByMember() {
		var today []Solve
		for _, solve := range solves {
			if solve.Day == day {
				today = append(today, solve)
			}
		}
		switch len(today) {
		case 0, 1:
			continue
		case 2:
			first, second := today[0], today[1]
			if second.Timestamp.Before(first.Timestamp) {
				first, second = second, first
			}
			deltas[id] = second.Timestamp.Sub(first.Timestamp)
		default:
			return nil, &InconsistencyError{MemberID: id, Year: today[0].Year, Day: day, Count: len(today)}
		}
	}

	ids := make([]uint64, 0, len(deltas))
	for id := range deltas {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	sort.SliceStable(ids, func(i, j int) bool {
		return deltas[ids[i]] < deltas[ids[j]]
	})

	out := make([]DeltaStanding, 0, len(ids))
	for _, id := range ids {
		out = append(out, DeltaStanding{Name: members[id].Name, Delta: deltas[id]})
	}
	return out, nil
}

// HistogramRow is the star count of one member for each day, 0 to 2 per slot.
type HistogramRow struct {
	Name  string    `json:"name"`
	Score int       `json:"score"`
	Stars [Days]int `json:"stars"`
}

// Histogram lays out the stars of every member day by day, ordered like
// ScoreStandings.
func (s *Snapshot) Histogram() []HistogramRow {
	members := s.members()
	rows := make(map[uint64]*HistogramRow, len(members))
	for id, solves := range s.ByMember() {
		row := &HistogramRow{Name: members[id].Name}
		for _, solve := range solves {
			row.Stars[solve.Day-1]++
		}
		rows[id] = row
	}
	for id, days := range s.dailyScores() {
		for _, score := range days {
			rows[id].Score += score
		}
	}

	ids := make([]uint64, 0, len(rows))
	for id := range rows {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	sort.SliceStable(ids, func(i, j int) bool {
		return rows[ids[i]].Score > rows[ids[j]].Score
	})

	out := make([]HistogramRow, 0, len(ids))
	for _, id := range ids {
		out = append(out, *rows[id])
	}
	return out
}
