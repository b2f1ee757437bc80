package leaderboard

// Diff returns the solves of reference whose key is absent from comparison,
// in reference order. Both snapshots must cover the same scope.
func Diff(reference, comparison *Snapshot) []Solve {
	known := make(map[Key]struct{}, comparison.Len())
	for _, s := range comparison.solves {
		known[s.Key()] = struct{}{}
	}

	var out []Solve
	for _, s := range reference.solves {
		if _, ok := known[s.Key()]; !ok {
			out = append(out, s)
		}
	}
	return out
}

// NewMembers returns the members of current that do not appear in previous,
// ordered by ID.
func NewMembers(previous, current *Snapshot) []Member {
	known := make(map[uint64]struct{})
	for _, id := range previous.MemberIDs() {
		known[id] = struct{}{}
	}

	var out []Member
	for _, id := range current.MemberIDs() {
		if _, ok := known[id]; ok {
			continue
		}
		m, _ := current.Member(id)
		out = append(out, m)
	}
	return out
}

// Hero is a tracked member found on a broad-scope board.
type Hero struct {
	Member Member `json:"member"`
	Part   Part   `json:"part"`
	Rank   int    `json:"rank,omitempty"`
}

// CrossReference returns one Hero per solve of broad whose member also belongs
// to narrow. The member is resolved from narrow so its display name wins.
func CrossReference(broad, narrow *Snapshot) []Hero {
	tracked := narrow.members()

	var heroes []Hero
	for _, s := range broad.solves {
		m, ok := tracked[s.Member.ID]
		if !ok {
			continue
		}
		heroes = append(heroes, Hero{Member: m, Part: s.Part, Rank: s.Rank})
	}
	return heroes
}
