package leaderboard

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// Snapshot is an immutable set of solves captured at one instant.
// Solve order is arrival order and carries no meaning.
type Snapshot struct {
	capturedAt time.Time
	solves     []Solve
}

// NewSnapshot builds a snapshot, rejecting duplicate solves and solves outside
// the 25 days or the two parts.
func NewSnapshot(capturedAt time.Time, solves []Solve) (*Snapshot, error) {
	seen := make(map[Key]struct{}, len(solves))
	for _, s := range solves {
		if err := validDay(s.Day); err != nil {
			return nil, fmt.Errorf("solve of member %d: %w", s.Member.ID, err)
		}
		if !s.Part.Valid() {
			return nil, fmt.Errorf("solve of member %d on day %d: %w: %d", s.Member.ID, s.Day, ErrInvalidPart, int(s.Part))
		}
		k := s.Key()
		if _, dup := seen[k]; dup {
			return nil, &InconsistencyError{MemberID: k.MemberID, Year: k.Year, Day: k.Day, Part: k.Part, Count: 2}
		}
		seen[k] = struct{}{}
	}
	return &Snapshot{
		capturedAt: capturedAt,
		solves:     slices.Clone(solves),
	}, nil
}

// Empty returns a snapshot without solves.
func Empty(capturedAt time.Time) *Snapshot {
	return &Snapshot{capturedAt: capturedAt}
}

// CapturedAt returns when the snapshot was taken.
func (s *Snapshot) CapturedAt() time.Time {
	return s.capturedAt
}

// Solves returns a copy of the solves in arrival order.
func (s *Snapshot) Solves() []Solve {
	return slices.Clone(s.solves)
}

// Len returns the number of solves.
func (s *Snapshot) Len() int {
	return len(s.solves)
}

// ByMember groups solves by member ID. Order within a group is unspecified.
func (s *Snapshot) ByMember() map[uint64][]Solve {
	groups := make(map[uint64][]Solve)
	for _, solve := range s.solves {
		groups[solve.Member.ID] = append(groups[solve.Member.ID], solve)
	}
	return groups
}

// ByChallenge groups solves by day and part, keeping arrival order.
func (s *Snapshot) ByChallenge() map[Challenge][]Solve {
	groups := make(map[Challenge][]Solve)
	for _, solve := range s.solves {
		c := Challenge{Day: solve.Day, Part: solve.Part}
		groups[c] = append(groups[c], solve)
	}
	return groups
}

// MemberIDs returns the distinct member IDs in ascending order.
func (s *Snapshot) MemberIDs() []uint64 {
	seen := make(map[uint64]struct{})
	var ids []uint64
	for _, solve := range s.solves {
		if _, ok := seen[solve.Member.ID]; ok {
			continue
		}
		seen[solve.Member.ID] = struct{}{}
		ids = append(ids, solve.Member.ID)
	}
	slices.Sort(ids)
	return ids
}

// Member looks up a member by ID. When names differ between solves the most
// recently arrived one wins.
func (s *Snapshot) Member(id uint64) (Member, bool) {
	for i := len(s.solves) - 1; i >= 0; i-- {
		if s.solves[i].Member.ID == id {
			return s.solves[i].Member, true
		}
	}
	return Member{}, false
}

// members resolves every member of the snapshot, keyed by ID.
func (s *Snapshot) members() map[uint64]Member {
	out := make(map[uint64]Member)
	for _, solve := range s.solves {
		out[solve.Member.ID] = solve.Member
	}
	return out
}

// Year returns a snapshot restricted to one event year.
func (s *Snapshot) Year(year int) *Snapshot {
	var solves []Solve
	for _, solve := range s.solves {
		if solve.Year == year {
			solves = append(solves, solve)
		}
	}
	return &Snapshot{capturedAt: s.capturedAt, solves: solves}
}

// ByYear splits a multi-year snapshot into one snapshot per event year.
func (s *Snapshot) ByYear() map[int]*Snapshot {
	out := make(map[int]*Snapshot)
	for _, solve := range s.solves {
		snap, ok := out[solve.Year]
		if !ok {
			snap = &Snapshot{capturedAt: s.capturedAt}
			out[solve.Year] = snap
		}
		snap.solves = append(snap.solves, solve)
	}
	return out
}

type snapshotJSON struct {
	CapturedAt time.Time `json:"captured_at"`
	Solves     []Solve   `json:"solves"`
}

// MarshalJSON implements json.Marshaler.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	solves := s.solves
	if solves == nil {
		solves = []Solve{}
	}
	return json.Marshal(snapshotJSON{CapturedAt: s.capturedAt, Solves: solves})
}

// UnmarshalJSON implements json.Unmarshaler. The decoded solves are validated
// like NewSnapshot does.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw snapshotJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	snap, err := NewSnapshot(raw.CapturedAt, raw.Solves)
	if err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	*s = *snap
	return nil
}
