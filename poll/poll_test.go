package poll

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"aoc-notifier/metrics"
	"aoc-notifier/pkg/leaderboard"
	"aoc-notifier/storage"
)

type fakeFetcher struct {
	private      *leaderboard.Snapshot
	privateErr   error
	global       *leaderboard.Snapshot
	title        string
	titleErr     error
	privateCalls int
	globalCalls  int
}

func (f *fakeFetcher) Private(_ context.Context, _ int, _ uint64) (*leaderboard.Snapshot, error) {
	f.privateCalls++
	return f.private, f.privateErr
}

func (f *fakeFetcher) GlobalDay(_ context.Context, _, _ int) (*leaderboard.Snapshot, error) {
	f.globalCalls++
	if f.global == nil {
		return nil, errors.New("no global board")
	}
	return f.global, nil
}

func (f *fakeFetcher) ChallengeTitle(_ context.Context, _, _ int) (string, error) {
	return f.title, f.titleErr
}

type memStore struct {
	mu    sync.Mutex
	snaps map[string]*leaderboard.Snapshot
}

func newMemStore() *memStore {
	return &memStore{snaps: make(map[string]*leaderboard.Snapshot)}
}

func (s *memStore) Save(_ context.Context, key string, snap *leaderboard.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[key] = snap
	return nil
}

func (s *memStore) Load(_ context.Context, key string) (*leaderboard.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snaps[key]
	if !ok {
		return nil, fmt.Errorf("load %s: %w", key, storage.ErrNotFound)
	}
	return snap, nil
}

type recordingNotifier struct {
	completions [][]leaderboard.Solve
	members     [][]leaderboard.Member
	heroes      []leaderboard.Hero
	statistics  []*leaderboard.DayStatistics
	standings   [][]leaderboard.Standing
	unlocked    []string
	today       []int
}

func (n *recordingNotifier) SendCompletions(_ context.Context, solves []leaderboard.Solve, _, today int) error {
	if len(solves) > 0 {
		n.completions = append(n.completions, solves)
		n.today = append(n.today, today)
	}
	return nil
}

func (n *recordingNotifier) SendChallengeUnlocked(_ context.Context, _, _ int, title string) error {
	n.unlocked = append(n.unlocked, title)
	return nil
}

func (n *recordingNotifier) SendNewMembers(_ context.Context, members []leaderboard.Member) error {
	if len(members) > 0 {
		n.members = append(n.members, members)
	}
	return nil
}

func (n *recordingNotifier) SendHero(_ context.Context, hero leaderboard.Hero) error {
	n.heroes = append(n.heroes, hero)
	return nil
}

func (n *recordingNotifier) SendStatistics(_ context.Context, _ int, stats *leaderboard.DayStatistics) error {
	n.statistics = append(n.statistics, stats)
	return nil
}

func (n *recordingNotifier) SendStandings(_ context.Context, _ int, standings []leaderboard.Standing, _ time.Time) error {
	n.standings = append(n.standings, standings)
	return nil
}

var december5 = time.Date(2022, time.December, 5, 12, 0, 0, 0, time.UTC)

func star(id uint64, name string, day int, part leaderboard.Part, at time.Time) leaderboard.Solve {
	return leaderboard.Solve{
		Timestamp: at,
		Member:    leaderboard.Member{ID: id, Name: name},
		Year:      2022,
		Day:       day,
		Part:      part,
	}
}

func snapshot(t *testing.T, solves ...leaderboard.Solve) *leaderboard.Snapshot {
	t.Helper()
	snap, err := leaderboard.NewSnapshot(december5, solves)
	if err != nil {
		t.Fatalf("NewSnapshot() error = %v", err)
	}
	return snap
}

// fullBoard returns a global day 5 snapshot with both top-100 lists full.
func fullBoard(t *testing.T, hero uint64) *leaderboard.Snapshot {
	t.Helper()
	release := leaderboard.ReleaseTime(2022, 5)
	var solves []leaderboard.Solve
	for i := 1; i <= leaderboard.TopRank; i++ {
		id := uint64(1000 + i)
		if i == 10 {
			id = hero
		}
		one := star(id, fmt.Sprintf("user%d", i), 5, leaderboard.PartOne, release.Add(time.Duration(i)*time.Minute))
		one.Rank = i
		two := star(id, fmt.Sprintf("user%d", i), 5, leaderboard.PartTwo, release.Add(time.Duration(i)*time.Minute+30*time.Second))
		two.Rank = i
		solves = append(solves, one, two)
	}
	return snapshot(t, solves...)
}

func testMonitor(fetcher Fetcher, store Store, notifier Notifier, settings Settings, now time.Time) *Monitor {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := New(fetcher, store, notifier, metrics.New(), logger, settings)
	m.now = func() time.Time { return now }
	return m
}

func TestCheckAllPrivate(t *testing.T) {
	november := time.Date(2022, time.November, 30, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()
	store := newMemStore()
	notifier := &recordingNotifier{}
	fetcher := &fakeFetcher{
		private: snapshot(t, star(1, "alice", 1, leaderboard.PartOne, december5)),
	}
	settings := Settings{Year: 2022, BoardID: 42}

	// First run only records the snapshot.
	if err := testMonitor(fetcher, store, notifier, settings, november).CheckAll(ctx); err != nil {
		t.Fatalf("CheckAll() error = %v", err)
	}
	if len(notifier.completions) != 0 || len(notifier.members) != 0 {
		t.Errorf("Expected no notifications on first run, got %+v", notifier)
	}
	if _, ok := store.snaps[storage.PrivateKey(42, 2022)]; !ok {
		t.Fatal("Expected the private snapshot to be saved")
	}
	if fetcher.globalCalls != 0 {
		t.Errorf("Global board fetched outside the event: %d calls", fetcher.globalCalls)
	}

	fetcher.private = snapshot(t,
		star(1, "alice", 1, leaderboard.PartOne, december5),
		star(1, "alice", 1, leaderboard.PartTwo, december5.Add(time.Minute)),
		star(2, "bob", 1, leaderboard.PartOne, december5.Add(2*time.Minute)),
	)
	if err := testMonitor(fetcher, store, notifier, settings, november).CheckAll(ctx); err != nil {
		t.Fatalf("CheckAll() error = %v", err)
	}

	if len(notifier.completions) != 1 || len(notifier.completions[0]) != 2 {
		t.Fatalf("Expected one completions message with 2 solves, got %+v", notifier.completions)
	}
	if len(notifier.members) != 1 || notifier.members[0][0].Name != "bob" {
		t.Errorf("Expected bob as new member, got %+v", notifier.members)
	}
	if len(notifier.standings) != 1 || notifier.standings[0][0].Name != "alice" {
		t.Errorf("Expected standings led by alice, got %+v", notifier.standings)
	}
	if got := store.snaps[storage.PrivateKey(42, 2022)].Len(); got != 3 {
		t.Errorf("Saved snapshot has %d solves, want 3", got)
	}

	// Nothing changed: no further messages.
	if err := testMonitor(fetcher, store, notifier, settings, november).CheckAll(ctx); err != nil {
		t.Fatalf("CheckAll() error = %v", err)
	}
	if len(notifier.completions) != 1 || len(notifier.standings) != 1 {
		t.Errorf("Unexpected notifications for an unchanged board")
	}
}

func TestCheckAllLimitsMessageSize(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	notifier := &recordingNotifier{}
	settings := Settings{Year: 2022, BoardID: 42}
	november := time.Date(2022, time.November, 30, 12, 0, 0, 0, time.UTC)

	store.snaps[storage.PrivateKey(42, 2022)] = snapshot(t)

	var solves []leaderboard.Solve
	for day := 1; day <= leaderboard.Days; day++ {
		for _, id := range []uint64{1, 2, 3} {
			solves = append(solves, star(id, "m", day, leaderboard.PartOne, december5.Add(time.Duration(day)*time.Minute)))
		}
	}
	fetcher := &fakeFetcher{private: snapshot(t, solves...)}

	if err := testMonitor(fetcher, store, notifier, settings, november).CheckAll(ctx); err != nil {
		t.Fatalf("CheckAll() error = %v", err)
	}
	if got := len(notifier.completions[0]); got != maxSolvesPerMessage {
		t.Errorf("Sent %d solves, want %d", got, maxSolvesPerMessage)
	}
	if got := notifier.completions[0][0].Day; got == 1 {
		t.Error("Expected the oldest solves to be dropped")
	}
}

func TestCheckAllGlobal(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	notifier := &recordingNotifier{}
	settings := Settings{Year: 2022, BoardID: 42}

	store.snaps[storage.PrivateKey(42, 2022)] = snapshot(t, star(7, "alice", 5, leaderboard.PartOne, december5))
	fetcher := &fakeFetcher{
		private: store.snaps[storage.PrivateKey(42, 2022)],
		global:  fullBoard(t, 7),
	}

	if err := testMonitor(fetcher, store, notifier, settings, december5).CheckAll(ctx); err != nil {
		t.Fatalf("CheckAll() error = %v", err)
	}

	if len(notifier.heroes) != 2 {
		t.Fatalf("Expected 2 heroes (both parts), got %+v", notifier.heroes)
	}
	for _, hero := range notifier.heroes {
		if hero.Member.Name != "alice" || hero.Rank != 10 {
			t.Errorf("Hero = %+v, want alice at rank 10", hero)
		}
	}
	if len(notifier.statistics) != 1 {
		t.Fatalf("Expected statistics once the board is complete, got %d", len(notifier.statistics))
	}
	if got := *notifier.statistics[0].PartOneFastest; got != time.Minute {
		t.Errorf("PartOneFastest = %v, want 1m", got)
	}
	if _, ok := store.snaps[storage.GlobalKey(2022, 5)]; !ok {
		t.Error("Expected the global snapshot to be saved")
	}

	// A complete board is not fetched again.
	if err := testMonitor(fetcher, store, notifier, settings, december5.Add(time.Hour)).CheckAll(ctx); err != nil {
		t.Fatalf("CheckAll() error = %v", err)
	}
	if fetcher.globalCalls != 1 {
		t.Errorf("Global board fetched %d times, want 1", fetcher.globalCalls)
	}
	if len(notifier.heroes) != 2 || len(notifier.statistics) != 1 {
		t.Error("Events repeated for a complete board")
	}
}

func TestCheckAllScopesFailIndependently(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	notifier := &recordingNotifier{}
	fetchErr := errors.New("provider down")
	fetcher := &fakeFetcher{privateErr: fetchErr, global: fullBoard(t, 7)}

	err := testMonitor(fetcher, store, notifier, Settings{Year: 2022, BoardID: 42}, december5).CheckAll(ctx)
	if !errors.Is(err, fetchErr) {
		t.Fatalf("CheckAll() error = %v, want %v", err, fetchErr)
	}
	if fetcher.globalCalls != 1 {
		t.Errorf("Global board fetched %d times, want 1", fetcher.globalCalls)
	}
	if len(notifier.statistics) != 1 {
		t.Error("Expected statistics despite the private failure")
	}
	if len(notifier.heroes) != 0 {
		t.Error("Heroes reported without a private snapshot")
	}
}

func TestCheckAllThrottlesManualTriggers(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	fetcher := &fakeFetcher{private: snapshot(t)}
	now := time.Date(2022, time.November, 30, 12, 0, 0, 0, time.UTC)

	m := testMonitor(fetcher, store, &recordingNotifier{}, Settings{Year: 2022, BoardID: 42, MinInterval: 15 * time.Minute}, now)
	for range 3 {
		if err := m.CheckAll(ctx); err != nil {
			t.Fatalf("CheckAll() error = %v", err)
		}
	}
	if fetcher.privateCalls != 1 {
		t.Errorf("Private board fetched %d times, want 1", fetcher.privateCalls)
	}

	m.now = func() time.Time { return now.Add(15 * time.Minute) }
	if err := m.CheckAll(ctx); err != nil {
		t.Fatalf("CheckAll() error = %v", err)
	}
	if fetcher.privateCalls != 2 {
		t.Errorf("Private board fetched %d times after the interval, want 2", fetcher.privateCalls)
	}
}

func TestCheckAllPollsOnEarlyTicks(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{private: snapshot(t)}
	now := time.Date(2022, time.November, 30, 12, 0, 0, 0, time.UTC)
	interval := 15 * time.Minute

	m := testMonitor(fetcher, newMemStore(), &recordingNotifier{}, Settings{Year: 2022, BoardID: 42, MinInterval: interval}, now)
	if err := m.CheckAll(ctx); err != nil {
		t.Fatalf("CheckAll() error = %v", err)
	}

	// Ticker delivery jitter lands the next tick just before the interval.
	m.now = func() time.Time { return now.Add(interval - time.Millisecond) }
	if err := m.CheckAll(ctx); err != nil {
		t.Fatalf("CheckAll() error = %v", err)
	}
	if fetcher.privateCalls != 2 {
		t.Errorf("Private board fetched %d times over two ticks, want 2", fetcher.privateCalls)
	}
}

func TestCheckAllTodayOnlyForRunningEvent(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want int
	}{
		{"event running", december5, 5},
		{"past event polled in a later december", december5.AddDate(1, 0, 0), 0},
		{"outside december", time.Date(2022, time.November, 30, 12, 0, 0, 0, time.UTC), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := newMemStore()
			store.snaps[storage.PrivateKey(42, 2022)] = snapshot(t)
			notifier := &recordingNotifier{}
			fetcher := &fakeFetcher{private: snapshot(t, star(1, "alice", 5, leaderboard.PartOne, december5))}

			m := testMonitor(fetcher, store, notifier, Settings{Year: 2022, BoardID: 42}, tt.now)
			// Only the private scope matters here.
			m.lastPolled[metrics.SourceGlobal] = tt.now
			m.settings.MinInterval = time.Hour
			if err := m.CheckAll(ctx); err != nil {
				t.Fatalf("CheckAll() error = %v", err)
			}
			if len(notifier.today) != 1 || notifier.today[0] != tt.want {
				t.Errorf("today = %v, want [%d]", notifier.today, tt.want)
			}
		})
	}
}

func TestCheckAllAnnouncesNewDay(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	notifier := &recordingNotifier{}
	release := leaderboard.ReleaseTime(2022, 5)
	first := star(1001, "speedy", 5, leaderboard.PartOne, release.Add(time.Minute))
	first.Rank = 1
	fetcher := &fakeFetcher{global: snapshot(t, first), title: "Day 5: Supply Stacks"}

	if err := testMonitor(fetcher, store, notifier, Settings{Year: 2022}, december5).CheckAll(ctx); err != nil {
		t.Fatalf("CheckAll() error = %v", err)
	}
	if len(notifier.unlocked) != 1 || notifier.unlocked[0] != "Day 5: Supply Stacks" {
		t.Fatalf("unlocked = %v, want one announcement", notifier.unlocked)
	}

	// The saved board marks the day as announced.
	if err := testMonitor(fetcher, store, notifier, Settings{Year: 2022}, december5.Add(time.Hour)).CheckAll(ctx); err != nil {
		t.Fatalf("CheckAll() error = %v", err)
	}
	if len(notifier.unlocked) != 1 {
		t.Errorf("Day announced %d times, want 1", len(notifier.unlocked))
	}
}

func TestCheckAllAnnouncesWithoutTitle(t *testing.T) {
	notifier := &recordingNotifier{}
	fetcher := &fakeFetcher{global: snapshot(t), titleErr: errors.New("HTTP 500")}

	if err := testMonitor(fetcher, newMemStore(), notifier, Settings{Year: 2022}, december5).CheckAll(context.Background()); err != nil {
		t.Fatalf("CheckAll() error = %v", err)
	}
	if len(notifier.unlocked) != 1 || notifier.unlocked[0] != "Day 5" {
		t.Errorf("unlocked = %v, want [Day 5]", notifier.unlocked)
	}
}

func TestCheckAllSkipsAnnouncementForCompleteBoard(t *testing.T) {
	notifier := &recordingNotifier{}
	fetcher := &fakeFetcher{global: fullBoard(t, 7), title: "Day 5: Supply Stacks"}

	if err := testMonitor(fetcher, newMemStore(), notifier, Settings{Year: 2022}, december5).CheckAll(context.Background()); err != nil {
		t.Fatalf("CheckAll() error = %v", err)
	}
	if len(notifier.unlocked) != 0 {
		t.Errorf("Announced a day whose boards were already full: %v", notifier.unlocked)
	}
}
