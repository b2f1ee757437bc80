// Package poll runs the leaderboard ingestion cycle: fetch, compare with the
// previous generation, notify and save.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"aoc-notifier/metrics"
	"aoc-notifier/pkg/leaderboard"
	"aoc-notifier/scraper"
	"aoc-notifier/storage"

	"github.com/google/uuid"
)

const (
	// Both top-100 lists of a day are full at this size.
	completeBoard = 2 * leaderboard.TopRank

	maxSolvesPerMessage = 50 // Safety limit after long outages

	// Ticks arriving this much early still count as due.
	pollSlack = time.Minute
)

// Fetcher retrieves leaderboards from the provider.
type Fetcher interface {
	Private(ctx context.Context, year int, boardID uint64) (*leaderboard.Snapshot, error)
	GlobalDay(ctx context.Context, year, day int) (*leaderboard.Snapshot, error)
	ChallengeTitle(ctx context.Context, year, day int) (string, error)
}

// Store persists snapshots between cycles.
type Store interface {
	Save(ctx context.Context, key string, snap *leaderboard.Snapshot) error
	Load(ctx context.Context, key string) (*leaderboard.Snapshot, error)
}

// Notifier announces leaderboard events.
type Notifier interface {
	SendCompletions(ctx context.Context, solves []leaderboard.Solve, year, today int) error
	SendNewMembers(ctx context.Context, members []leaderboard.Member) error
	SendHero(ctx context.Context, hero leaderboard.Hero) error
	SendStatistics(ctx context.Context, day int, stats *leaderboard.DayStatistics) error
	SendChallengeUnlocked(ctx context.Context, year, day int, title string) error
	SendStandings(ctx context.Context, year int, standings []leaderboard.Standing, at time.Time) error
}

// Settings selects what a Monitor polls.
type Settings struct {
	Year    int    // Event year of the private leaderboard
	BoardID uint64 // Private leaderboard; 0 disables the private scope

	// MinInterval is the shortest time between two fetches of the same scope.
	// Manual triggers arriving sooner are skipped.
	MinInterval time.Duration
}

// Monitor handles leaderboard polling.
type Monitor struct {
	fetcher  Fetcher
	store    Store
	notifier Notifier
	metrics  *metrics.Recorder
	logger   *slog.Logger
	settings Settings
	now      func() time.Time

	mu         sync.Mutex // Serialises cycles
	lastPolled map[string]time.Time
}

// New creates a new poll monitor.
func New(fetcher Fetcher, store Store, notifier Notifier, recorder *metrics.Recorder, logger *slog.Logger, settings Settings) *Monitor {
	return &Monitor{
		fetcher:    fetcher,
		store:      store,
		notifier:   notifier,
		metrics:    recorder,
		logger:     logger,
		settings:   settings,
		now:        time.Now,
		lastPolled: make(map[string]time.Time),
	}
}

// CheckAll runs one poll cycle. A failure in one scope does not stop the
// other; the returned error joins both.
func (m *Monitor) CheckAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	logger := m.logger.With("run_id", uuid.NewString())
	logger.Info("Poll cycle starting", "timestamp", now.Format(time.RFC3339))

	var (
		errs    []error
		private *leaderboard.Snapshot
	)

	if m.settings.BoardID != 0 && m.due(metrics.SourcePrivate, now) {
		var err error
		private, err = m.checkPrivate(ctx, logger, now)
		m.metrics.PollCycle(metrics.SourcePrivate, err)
		if err != nil {
			logger.Warn("Private leaderboard check failed", "error", err)
			errs = append(errs, err)
		}
	}

	if year, day, ok := leaderboard.CurrentDay(now); ok && m.due(metrics.SourceGlobal, now) {
		if private == nil || year != m.settings.Year {
			private = m.trackedMembers(ctx, logger, year)
		}
		err := m.checkGlobal(ctx, logger, year, day, private)
		m.metrics.PollCycle(metrics.SourceGlobal, err)
		if err != nil {
			logger.Warn("Global leaderboard check failed", "year", year, "day", day, "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) == 0 {
		m.metrics.PollSucceeded(now)
	}
	logger.Info("Poll cycle completed", "errors", len(errs))
	return errors.Join(errs...)
}

// due reports whether scope may be fetched again and records the attempt.
func (m *Monitor) due(scope string, now time.Time) bool {
	last := m.lastPolled[scope]
	if !last.IsZero() && now.Sub(last) < m.settings.MinInterval-pollSlack {
		m.logger.Debug("Skipping scope (not due for polling)",
			"scope", scope,
			"last_polled", last.Format(time.RFC3339),
			"next_poll", last.Add(m.settings.MinInterval-pollSlack).Format(time.RFC3339))
		return false
	}
	m.lastPolled[scope] = now
	return true
}

func (m *Monitor) checkPrivate(ctx context.Context, logger *slog.Logger, now time.Time) (*leaderboard.Snapshot, error) {
	year, boardID := m.settings.Year, m.settings.BoardID
	key := storage.PrivateKey(boardID, year)

	start := time.Now()
	current, err := m.fetcher.Private(ctx, year, boardID)
	m.metrics.ObserveFetch(metrics.SourcePrivate, time.Since(start))
	if err != nil {
		if scraper.IsHTTPStatus(err, http.StatusBadRequest) || scraper.IsHTTPStatus(err, http.StatusForbidden) {
			logger.Error("Session cookie rejected by provider, refresh it", "board_id", boardID)
		}
		return nil, fmt.Errorf("fetch private leaderboard: %w", err)
	}
	m.metrics.TrackedMembers(len(current.MemberIDs()))

	previous, err := m.store.Load(ctx, key)
	if storage.IsNotFound(err) {
		if err := m.store.Save(ctx, key, current); err != nil {
			return nil, fmt.Errorf("save private snapshot: %w", err)
		}
		logger.Info("Initial private snapshot recorded", "board_id", boardID, "year", year, "solves", current.Len())
		return current, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load private snapshot: %w", err)
	}

	fresh := leaderboard.Diff(current, previous)
	joined := leaderboard.NewMembers(previous, current)
	m.metrics.NewSolves(metrics.SourcePrivate, len(fresh))

	logger.Info("Private leaderboard compared",
		"board_id", boardID,
		"year", year,
		"solves", current.Len(),
		"new_solves", len(fresh),
		"new_members", len(joined))

	if len(fresh) > maxSolvesPerMessage {
		logger.Warn("Too many new solves, limiting to most recent",
			"total_new", len(fresh),
			"sending", maxSolvesPerMessage)
		fresh = fresh[len(fresh)-maxSolvesPerMessage:]
	}

	// Only the running event has a challenge of the day.
	var today int
	if y, d, ok := leaderboard.CurrentDay(now); ok && y == year {
		today = d
	}
	if err := m.notifier.SendNewMembers(ctx, joined); err != nil {
		return nil, fmt.Errorf("send new members: %w", err)
	}
	if err := m.notifier.SendCompletions(ctx, fresh, year, today); err != nil {
		return nil, fmt.Errorf("send completions: %w", err)
	}
	if len(fresh) > 0 {
		if err := m.notifier.SendStandings(ctx, year, current.Year(year).ScoreStandings(), current.CapturedAt()); err != nil {
			return nil, fmt.Errorf("send standings: %w", err)
		}
	}

	if err := m.store.Save(ctx, key, current); err != nil {
		return nil, fmt.Errorf("save private snapshot: %w", err)
	}
	return current, nil
}

// trackedMembers loads the stored private snapshot of year. It returns nil when
// there is none, which disables the hero search.
func (m *Monitor) trackedMembers(ctx context.Context, logger *slog.Logger, year int) *leaderboard.Snapshot {
	if m.settings.BoardID == 0 {
		return nil
	}
	snap, err := m.store.Load(ctx, storage.PrivateKey(m.settings.BoardID, year))
	if err != nil {
		if !storage.IsNotFound(err) {
			logger.Warn("Failed to load private snapshot for hero search", "year", year, "error", err)
		}
		return nil
	}
	return snap
}

func (m *Monitor) checkGlobal(ctx context.Context, logger *slog.Logger, year, day int, private *leaderboard.Snapshot) error {
	key := storage.GlobalKey(year, day)

	previous, err := m.store.Load(ctx, key)
	unseen := storage.IsNotFound(err)
	switch {
	case unseen:
		previous = leaderboard.Empty(time.Time{})
	case err != nil:
		return fmt.Errorf("load global snapshot: %w", err)
	}
	if previous.Len() >= completeBoard {
		logger.Debug("Global leaderboard already complete", "year", year, "day", day)
		return nil
	}

	start := time.Now()
	current, err := m.fetcher.GlobalDay(ctx, year, day)
	m.metrics.ObserveFetch(metrics.SourceGlobal, time.Since(start))
	if err != nil {
		return fmt.Errorf("fetch global leaderboard: %w", err)
	}

	fresh := leaderboard.Diff(current, previous)
	m.metrics.NewSolves(metrics.SourceGlobal, len(fresh))
	logger.Info("Global leaderboard compared",
		"year", year,
		"day", day,
		"solves", current.Len(),
		"new_solves", len(fresh))

	// A day seen for the first time while its boards are still filling has
	// just been released.
	if unseen && current.Len() < completeBoard {
		if err := m.announceChallenge(ctx, logger, year, day); err != nil {
			return err
		}
	}

	if private != nil && len(fresh) > 0 {
		arrivals, err := leaderboard.NewSnapshot(current.CapturedAt(), fresh)
		if err != nil {
			return fmt.Errorf("build arrivals snapshot: %w", err)
		}
		heroes := leaderboard.CrossReference(arrivals, private)
		m.metrics.HeroesFound(len(heroes))
		for _, hero := range heroes {
			logger.Info("Hero found on global leaderboard",
				"member_id", hero.Member.ID,
				"name", hero.Member.Name,
				"part", hero.Part.String(),
				"rank", hero.Rank)
			if err := m.notifier.SendHero(ctx, hero); err != nil {
				return fmt.Errorf("send hero: %w", err)
			}
		}
	}

	if current.Len() >= completeBoard {
		stats, err := current.Statistics(year, day, leaderboard.ReleaseTime(year, day))
		if err != nil {
			return fmt.Errorf("compute statistics: %w", err)
		}
		if err := m.notifier.SendStatistics(ctx, day, stats); err != nil {
			return fmt.Errorf("send statistics: %w", err)
		}
	}

	if err := m.store.Save(ctx, key, current); err != nil {
		return fmt.Errorf("save global snapshot: %w", err)
	}
	return nil
}

func (m *Monitor) announceChallenge(ctx context.Context, logger *slog.Logger, year, day int) error {
	title, err := m.fetcher.ChallengeTitle(ctx, year, day)
	if err != nil {
		logger.Warn("Failed to fetch challenge title, announcing without it", "year", year, "day", day, "error", err)
		title = fmt.Sprintf("Day %d", day)
	}
	logger.Info("New challenge unlocked", "year", year, "day", day, "title", title)
	if err := m.notifier.SendChallengeUnlocked(ctx, year, day, title); err != nil {
		return fmt.Errorf("send challenge unlocked: %w", err)
	}
	return nil
}
