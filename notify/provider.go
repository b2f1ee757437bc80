// Package notify formats leaderboard events and delivers them through
// pluggable providers.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"aoc-notifier/pkg/leaderboard"
)

// Provider defines the interface for message delivery implementations.
type Provider interface {
	// Send delivers a message. Providers without a subject line ignore it.
	Send(ctx context.Context, subject, body string) error
}

// Sender formats leaderboard events and sends them using a pluggable provider.
type Sender struct {
	provider Provider
	logger   *slog.Logger
}

// New creates a new sender with the given provider.
func New(provider Provider, logger *slog.Logger) *Sender {
	return &Sender{
		provider: provider,
		logger:   logger,
	}
}

// SendCompletions announces new private leaderboard completions. Solves of the
// running day are listed apart from late ones.
func (s *Sender) SendCompletions(ctx context.Context, solves []leaderboard.Solve, year, today int) error {
	if len(solves) == 0 {
		return nil
	}
	s.logger.Info("Sending completions notification", "count", len(solves), "year", year, "day", today)
	return s.provider.Send(ctx, "New completions", formatCompletions(solves, year, today))
}

// SendNewMembers announces members who joined the private leaderboard.
func (s *Sender) SendNewMembers(ctx context.Context, members []leaderboard.Member) error {
	if len(members) == 0 {
		return nil
	}
	s.logger.Info("Sending new members notification", "count", len(members))
	return s.provider.Send(ctx, "New leaderboard members", formatNewMembers(members))
}

// SendHero announces a tracked member on the global leaderboard.
func (s *Sender) SendHero(ctx context.Context, hero leaderboard.Hero) error {
	s.logger.Info("Sending hero notification",
		"member_id", hero.Member.ID,
		"part", hero.Part.String(),
		"rank", hero.Rank)
	return s.provider.Send(ctx, "Global leaderboard hero", formatHero(hero))
}

// SendStatistics announces the statistics of a completed global leaderboard.
func (s *Sender) SendStatistics(ctx context.Context, day int, stats *leaderboard.DayStatistics) error {
	s.logger.Info("Sending statistics notification", "day", day)
	return s.provider.Send(ctx, "Global leaderboard complete", formatStatistics(day, stats))
}

// SendChallengeUnlocked announces that the puzzle of a new day is available.
func (s *Sender) SendChallengeUnlocked(ctx context.Context, year, day int, title string) error {
	s.logger.Info("Sending challenge unlocked notification", "year", year, "day", day, "title", title)
	return s.provider.Send(ctx, fmt.Sprintf("Day %d is up", day), formatChallengeUnlocked(title))
}

// SendStandings posts a score table of the private leaderboard.
func (s *Sender) SendStandings(ctx context.Context, year int, standings []leaderboard.Standing, at time.Time) error {
	s.logger.Info("Sending standings notification", "year", year, "members", len(standings))
	return s.provider.Send(ctx, "Leaderboard standings", formatStandings(year, standings, at))
}
