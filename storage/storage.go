// Package storage handles persistence of leaderboard snapshots.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"aoc-notifier/pkg/leaderboard"

	"cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"
	"google.golang.org/api/iterator"
)

// ErrNotFound is returned when no snapshot is stored under a key.
var ErrNotFound = errors.New("storage: object doesn't exist")

// IsNotFound checks if an error indicates a snapshot was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, storage.ErrObjectNotExist)
}

// Store handles snapshot persistence, either in a Cloud Storage bucket or in a
// local directory when localPath is set.
type Store struct {
	client    *storage.Client
	logger    *slog.Logger
	localPath string
	bucket    string
}

// New creates a new storage handler.
func New(client *storage.Client, bucket string, localPath string, logger *slog.Logger) *Store {
	return &Store{
		client:    client,
		logger:    logger,
		localPath: localPath,
		bucket:    bucket,
	}
}

// Key prefixes of the two snapshot scopes.
const (
	PrivatePrefix = "private-"
	GlobalPrefix  = "global-"
)

var keyPattern = regexp.MustCompile(`^(private-\d+-\d{4}|global-\d{4}-\d{1,2})\.json$`)

// PrivateKey names the snapshot of a private leaderboard for one year.
func PrivateKey(boardID uint64, year int) string {
	return fmt.Sprintf("%s%d-%d.json", PrivatePrefix, boardID, year)
}

// GlobalKey names the snapshot of the global top-100 boards of one day.
func GlobalKey(year, day int) string {
	return fmt.Sprintf("%s%d-%d.json", GlobalPrefix, year, day)
}

// ValidKey reports whether key is a snapshot key. Anything else is rejected
// before touching the filesystem or bucket.
func ValidKey(key string) bool {
	return keyPattern.MatchString(key)
}

// Save stores a snapshot under key, replacing any previous generation.
func (s *Store) Save(ctx context.Context, key string, snap *leaderboard.Snapshot) error {
	if !ValidKey(key) {
		return fmt.Errorf("invalid key format: %q", key)
	}
	s.logger.Debug("Saving snapshot", "key", key, "solves", snap.Len())

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	// Local filesystem storage
	if s.localPath != "" {
		filePath := filepath.Join(s.localPath, key)
		tmp := filePath + ".tmp"
		if err := os.WriteFile(tmp, data, 0o600); err != nil {
			return fmt.Errorf("write to local storage: %w", err)
		}
		if err := os.Rename(tmp, filePath); err != nil {
			return fmt.Errorf("replace local snapshot: %w", err)
		}

		s.logger.Info("Snapshot saved to local storage", "path", filePath, "solves", snap.Len())
		return nil
	}

	err = retry.Do(
		func() error {
			w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
			w.ContentType = "application/json"
			if _, writeErr := w.Write(data); writeErr != nil {
				if closeErr := w.Close(); closeErr != nil {
					s.logger.Warn("Failed to close writer after error", "error", closeErr)
				}
				return fmt.Errorf("write to storage: %w", writeErr)
			}
			if closeErr := w.Close(); closeErr != nil {
				return fmt.Errorf("close storage writer: %w", closeErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying save operation after error", "attempt", n, "key", key, "error", retryErr)
		}),
	)
	if err != nil {
		return fmt.Errorf("save after retries: %w", err)
	}

	s.logger.Info("Snapshot saved", "key", key, "solves", snap.Len())
	return nil
}

// Load reads the snapshot stored under key. A missing snapshot yields an
// error for which IsNotFound is true.
func (s *Store) Load(ctx context.Context, key string) (*leaderboard.Snapshot, error) {
	if !ValidKey(key) {
		return nil, fmt.Errorf("invalid key format: %q", key)
	}

	var data []byte

	if s.localPath != "" {
		var err error
		filePath := filepath.Join(s.localPath, key)
		data, err = os.ReadFile(filePath)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("load %s: %w", key, ErrNotFound)
			}
			return nil, fmt.Errorf("read from local storage: %w", err)
		}
	} else {
		var readData []byte
		var missing bool
		err := retry.Do(
			func() error {
				r, openErr := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
				if openErr != nil {
					if errors.Is(openErr, storage.ErrObjectNotExist) {
						missing = true
						return retry.Unrecoverable(fmt.Errorf("open storage reader: %w", openErr))
					}
					return fmt.Errorf("open storage reader: %w", openErr)
				}
				defer func() {
					if closeErr := r.Close(); closeErr != nil {
						s.logger.Warn("Failed to close storage reader", "error", closeErr)
					}
				}()

				var readErr error
				readData, readErr = io.ReadAll(r)
				if readErr != nil {
					return fmt.Errorf("read from storage: %w", readErr)
				}
				return nil
			},
			retry.Attempts(3),
			retry.Delay(time.Second),
			retry.MaxDelay(2*time.Minute),
			retry.MaxJitter(10*time.Second),
			retry.Context(ctx),
			retry.OnRetry(func(n uint, retryErr error) {
				s.logger.Info("Retrying load operation after error", "attempt", n, "key", key, "error", retryErr)
			}),
			retry.RetryIf(func(error) bool {
				return !missing
			}),
		)
		if missing {
			return nil, fmt.Errorf("load %s: %w", key, ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("load after retries: %w", err)
		}
		data = readData
	}

	var snap leaderboard.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Keys lists the stored snapshot keys starting with prefix, sorted.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	if s.localPath != "" {
		entries, err := os.ReadDir(s.localPath)
		if err != nil {
			return nil, fmt.Errorf("read local storage directory: %w", err)
		}
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || !strings.HasPrefix(name, prefix) || !ValidKey(name) {
				continue
			}
			keys = append(keys, name)
		}
		sort.Strings(keys)
		return keys, nil
	}

	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{
		Prefix: prefix,
	})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate storage: %w", err)
		}
		if ValidKey(attrs.Name) {
			keys = append(keys, attrs.Name)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
