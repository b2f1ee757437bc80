// Package server handles HTTP endpoints and request routing.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"aoc-notifier/pkg/leaderboard"
	"aoc-notifier/storage"
)

// Store interface for snapshot queries.
type Store interface {
	Load(ctx context.Context, key string) (*leaderboard.Snapshot, error)
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Poller interface for triggering checks.
type Poller interface {
	CheckAll(ctx context.Context) error
}

// Server handles HTTP requests.
type Server struct {
	store   Store
	poller  Poller
	metrics http.Handler
	logger  *slog.Logger
	limiter *rateLimiter
	boardID uint64
	year    int
}

// Config holds server configuration.
type Config struct {
	Store   Store
	Poller  Poller
	Metrics http.Handler // Served at /metrics when set
	Logger  *slog.Logger
	BoardID uint64 // Private leaderboard served by /standings
	Year    int    // Default year of queries
}

// New creates a new HTTP server handler.
func New(cfg *Config) *Server {
	return &Server{
		store:   cfg.Store,
		poller:  cfg.Poller,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		limiter: newRateLimiter(pollsPerHour, time.Hour),
		boardID: cfg.BoardID,
		year:    cfg.Year,
	}
}

// Handler returns the routes of the service.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/pollz", s.handlePoll)
	mux.HandleFunc("/standings", s.handleStandings)
	mux.HandleFunc("/statistics", s.handleStatistics)
	mux.HandleFunc("/snapshots", s.handleSnapshots)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	return mux
}

// ListenAndServe serves the routes on port until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, port string) error {
	// Timeouts bound resource use per connection
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           s.Handler(),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      2 * time.Minute, // A triggered poll may retry fetches
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", "port", port)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("Shutting down HTTP server")
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ip := clientIP(r)
	if !s.limiter.allow(ip) {
		s.logger.Warn("Rate limit exceeded", "ip", ip)
		http.Error(w, "Too many requests. Please try again later.", http.StatusTooManyRequests)
		return
	}

	s.logger.Info("Poll endpoint triggered", "ip", ip)

	if err := s.poller.CheckAll(r.Context()); err != nil {
		s.logger.Error("Poll check failed", "error", err)
		http.Error(w, "Check failed", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

type standingsResponse struct {
	CapturedAt time.Time                   `json:"captured_at"`
	By         string                      `json:"by"`
	Standings  []leaderboard.Standing      `json:"standings,omitempty"`
	Deltas     []leaderboard.DeltaStanding `json:"deltas,omitempty"`
	Histogram  []leaderboard.HistogramRow  `json:"histogram,omitempty"`
	Year       int                         `json:"year"`
	Day        int                         `json:"day,omitempty"`
}

func (s *Server) handleStandings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.boardID == 0 {
		http.Error(w, "No private leaderboard configured", http.StatusNotFound)
		return
	}

	q := r.URL.Query()
	year, err := s.yearParam(q.Get("year"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	by := q.Get("by")
	if by == "" {
		by = "score"
	}
	var day int
	if by == "day" || by == "delta" {
		if day, err = dayParam(q.Get("day")); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	snap, err := s.store.Load(r.Context(), storage.PrivateKey(s.boardID, year))
	if err != nil {
		s.writeError(w, err)
		return
	}
	snap = snap.Year(year)

	resp := standingsResponse{CapturedAt: snap.CapturedAt(), By: by, Year: year, Day: day}
	switch by {
	case "score":
		resp.Standings = snap.ScoreStandings()
	case "stars":
		resp.Standings = snap.StarStandings()
	case "global":
		resp.Standings = snap.GlobalScoreStandings()
	case "day":
		resp.Standings, err = snap.DayScoreStandings(day)
	case "delta":
		resp.Deltas, err = snap.DeltaStandings(day)
	case "histogram":
		resp.Histogram = snap.Histogram()
	default:
		http.Error(w, fmt.Sprintf("unknown ranking %q", by), http.StatusBadRequest)
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type statisticsResponse struct {
	*leaderboard.DayStatistics
	CapturedAt time.Time `json:"captured_at"`
	Year       int       `json:"year"`
	Day        int       `json:"day"`
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	year, err := s.yearParam(q.Get("year"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	day, err := dayParam(q.Get("day"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	snap, err := s.store.Load(r.Context(), storage.GlobalKey(year, day))
	if err != nil {
		s.writeError(w, err)
		return
	}
	stats, err := snap.Statistics(year, day, leaderboard.ReleaseTime(year, day))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, statisticsResponse{DayStatistics: stats, CapturedAt: snap.CapturedAt(), Year: year, Day: day})
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	keys, err := s.store.Keys(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"keys": keys})
}

func (s *Server) yearParam(raw string) (int, error) {
	if raw == "" {
		return s.year, nil
	}
	year, err := strconv.Atoi(raw)
	if err != nil || year < 2015 || year > 9999 {
		return 0, fmt.Errorf("invalid year %q", raw)
	}
	return year, nil
}

func dayParam(raw string) (int, error) {
	day, err := strconv.Atoi(raw)
	if err != nil || day < 1 || day > leaderboard.Days {
		return 0, fmt.Errorf("invalid day %q", raw)
	}
	return day, nil
}

// writeError maps engine and storage errors to status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case storage.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, leaderboard.ErrInvalidDay):
		status = http.StatusBadRequest
	case errors.Is(err, leaderboard.ErrNoData):
		status = http.StatusUnprocessableEntity
	case leaderboard.IsInconsistent(err):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", "error", err)
	} else {
		s.logger.Warn("Request rejected", "status_code", status, "error", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}
