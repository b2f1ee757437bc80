// Package scraper handles fetching and parsing Advent of Code leaderboards.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"aoc-notifier/pkg/leaderboard"

	"github.com/codeGROOVE-dev/retry"
)

// DefaultBaseURL is the leaderboard provider.
const DefaultBaseURL = "https://adventofcode.com"

const userAgent = "aoc-notifier (leaderboard watcher; polls at most every 15 minutes)"

// HTTPStatusError indicates a non-OK response.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.URL)
}

// IsHTTPStatus checks if an error is an HTTPStatusError with the given code.
func IsHTTPStatus(err error, code int) bool {
	var statusErr *HTTPStatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == code
}

// isClientError reports 4xx responses, which retrying cannot fix.
func isClientError(err error) bool {
	var statusErr *HTTPStatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode >= 400 && statusErr.StatusCode < 500
}

// Scraper fetches leaderboards from the provider.
type Scraper struct {
	client  *http.Client
	logger  *slog.Logger
	now     func() time.Time
	baseURL string
	session string // Session cookie, required for private leaderboards
}

// New creates a new scraper.
func New(client *http.Client, logger *slog.Logger, baseURL, session string) *Scraper {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Scraper{
		client:  client,
		logger:  logger,
		now:     time.Now,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		session: session,
	}
}

// GlobalDay fetches the top-100 boards of one day.
func (s *Scraper) GlobalDay(ctx context.Context, year, day int) (*leaderboard.Snapshot, error) {
	pageURL := fmt.Sprintf("%s/%d/leaderboard/day/%d", s.baseURL, year, day)

	var page *DayPage
	err := s.fetch(ctx, pageURL, "fetch_global_day", func(body io.Reader) error {
		var err error
		page, err = ParseDayPage(body, year, day)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Global leaderboard parsed",
		"year", year,
		"day", day,
		"solves", len(page.Solves),
		"dropped_rows", page.Dropped)

	snap, err := leaderboard.NewSnapshot(s.now(), page.Solves)
	if err != nil {
		return nil, fmt.Errorf("build global snapshot: %w", err)
	}
	return snap, nil
}

// ChallengeTitle fetches the title of one day's puzzle.
func (s *Scraper) ChallengeTitle(ctx context.Context, year, day int) (string, error) {
	pageURL := fmt.Sprintf("%s/%d/day/%d", s.baseURL, year, day)

	var title string
	err := s.fetch(ctx, pageURL, "fetch_challenge_title", func(body io.Reader) error {
		var err error
		title, err = ParseChallengeTitle(body)
		return err
	})
	if err != nil {
		return "", err
	}
	return title, nil
}

// Private fetches a private leaderboard through the JSON API.
func (s *Scraper) Private(ctx context.Context, year int, boardID uint64) (*leaderboard.Snapshot, error) {
	if s.session == "" {
		return nil, errors.New("session cookie required for private leaderboards")
	}
	pageURL := fmt.Sprintf("%s/%d/leaderboard/private/view/%d.json", s.baseURL, year, boardID)

	var solves []leaderboard.Solve
	err := s.fetch(ctx, pageURL, "fetch_private_board", func(body io.Reader) error {
		var err error
		solves, err = ParsePrivate(body, year)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Private leaderboard parsed", "year", year, "board_id", boardID, "solves", len(solves))

	snap, err := leaderboard.NewSnapshot(s.now(), solves)
	if err != nil {
		return nil, fmt.Errorf("build private snapshot: %w", err)
	}
	return snap, nil
}

func (s *Scraper) fetch(ctx context.Context, pageURL, purpose string, parse func(io.Reader) error) error {
	var parseFailed bool
	err := retry.Do(
		func() error {
			s.logger.Info("HTTP request starting",
				"method", "GET",
				"url", pageURL,
				"purpose", purpose)

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			req.Header.Set("User-Agent", userAgent)
			if s.session != "" {
				req.AddCookie(&http.Cookie{Name: "session", Value: s.session})
			}

			startTime := time.Now()
			resp, err := s.client.Do(req)
			duration := time.Since(startTime)

			if err != nil {
				s.logger.Warn("HTTP request failed, will retry",
					"url", pageURL,
					"duration_ms", duration.Milliseconds(),
					"error", err)
				return err
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					s.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			s.logger.Info("HTTP request completed",
				"url", pageURL,
				"status_code", resp.StatusCode,
				"duration_ms", duration.Milliseconds())

			if resp.StatusCode != http.StatusOK {
				s.logger.Warn("HTTP request returned non-OK status", "url", pageURL, "status_code", resp.StatusCode)
				return &HTTPStatusError{URL: pageURL, StatusCode: resp.StatusCode}
			}

			if err := parse(resp.Body); err != nil {
				s.logger.Error("Failed to parse response", "url", pageURL, "error", err)
				parseFailed = true
				return retry.Unrecoverable(err)
			}
			return nil
		},
		retry.Attempts(5),
		retry.Delay(time.Second),
		retry.MaxDelay(time.Minute),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Info("Retrying fetch after error", "attempt", n, "url", pageURL, "error", err)
		}),
		retry.RetryIf(func(err error) bool {
			// A 4xx or a malformed body will not improve on retry.
			return !parseFailed && !isClientError(err)
		}),
	)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	return nil
}
