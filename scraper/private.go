package scraper

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"aoc-notifier/pkg/leaderboard"
)

// privateBoard mirrors the private leaderboard JSON API.
type privateBoard struct {
	Members map[string]privateMember `json:"members"`
}

type privateMember struct {
	Name        *string                                 `json:"name"` // null for anonymous users
	Completions map[string]map[string]privateCompletion `json:"completion_day_level"`
	ID          uint64                                  `json:"id"`
	GlobalScore uint64                                  `json:"global_score"`
}

type privateCompletion struct {
	StarTS int64 `json:"get_star_ts"`
}

// ParsePrivate decodes a private leaderboard document into solves, ordered by
// star time. Private solves carry the provider score but no rank.
func ParsePrivate(body io.Reader, year int) ([]leaderboard.Solve, error) {
	var board privateBoard
	if err := json.NewDecoder(body).Decode(&board); err != nil {
		return nil, fmt.Errorf("decode private leaderboard: %w", err)
	}

	var solves []leaderboard.Solve
	for _, m := range board.Members {
		member := leaderboard.Member{ID: m.ID, GlobalScore: m.GlobalScore}
		if m.Name != nil && *m.Name != "" {
			member.Name = *m.Name
		} else {
			member.Name = anonymousName(m.ID)
		}

		for rawDay, parts := range m.Completions {
			day, err := strconv.Atoi(rawDay)
			if err != nil || day < 1 || day > leaderboard.Days {
				return nil, fmt.Errorf("member %d: invalid day %q", m.ID, rawDay)
			}
			for rawPart, completion := range parts {
				n, err := strconv.Atoi(rawPart)
				if err != nil {
					return nil, fmt.Errorf("member %d day %d: invalid part %q", m.ID, day, rawPart)
				}
				part, err := leaderboard.ParsePart(n)
				if err != nil {
					return nil, fmt.Errorf("member %d day %d: %w", m.ID, day, err)
				}
				solves = append(solves, leaderboard.Solve{
					Timestamp: time.Unix(completion.StarTS, 0).UTC(),
					Member:    member,
					Year:      year,
					Day:       day,
					Part:      part,
				})
			}
		}
	}

	sort.Slice(solves, func(i, j int) bool {
		a, b := solves[i], solves[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.Member.ID != b.Member.ID {
			return a.Member.ID < b.Member.ID
		}
		if a.Day != b.Day {
			return a.Day < b.Day
		}
		return a.Part < b.Part
	})
	return solves, nil
}
