// Package chronicler records the experience of the loop in the event journal, an
// append-only JSON array on disk.
package chronicler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/aevum/internal/evolution/models"
)

// Chronicler owns the event journal file.
type Chronicler struct {
	path   string
	logger *zap.Logger
	now    func() time.Time

	mu sync.Mutex
}

// NewChronicler creates a Chronicler over the journal at path.
func NewChronicler(logger *zap.Logger, path string) *Chronicler {
	return &Chronicler{
		path:   path,
		logger: logger.Named("chronicler"),
		now:    time.Now,
	}
}

// Path returns the journal file location.
func (c *Chronicler) Path() string { return c.path }

// Init creates an empty journal if none exists. An existing journal is left alone.
func (c *Chronicler) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := os.Stat(c.path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to stat journal: %w", err)
	}
	return c.write([]models.JournalEntry{})
}

// Record appends entry to the journal. A zero Time is stamped with the current UTC time.
// A malformed journal is replaced by one holding only the new entry.
func (c *Chronicler) Record(entry models.JournalEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry.Time.IsZero() {
		entry.Time = c.now()
	}
	entry.Time = entry.Time.UTC()

	entries, err := c.read()
	if err != nil {
		c.logger.Warn("Journal unreadable; starting a new one.", zap.String("path", c.path), zap.Error(err))
		entries = nil
	}
	return c.write(append(entries, entry))
}

// Entries returns every entry in insertion order. A missing, empty or malformed journal
// yields no entries.
func (c *Chronicler) Entries() []models.JournalEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.read()
	if err != nil {
		c.logger.Debug("Journal unreadable.", zap.Error(err))
		return nil
	}
	return entries
}

// Recent returns the last n entries in insertion order, together with the total count.
// n <= 0 returns all of them.
func (c *Chronicler) Recent(n int) ([]models.JournalEntry, int) {
	entries := c.Entries()
	total := len(entries)
	if n > 0 && total > n {
		entries = entries[total-n:]
	}
	return entries, total
}

func (c *Chronicler) read() ([]models.JournalEntry, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var entries []models.JournalEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("malformed journal: %w", err)
	}
	return entries, nil
}

func (c *Chronicler) write(entries []models.JournalEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode journal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("failed to create journal directory: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write journal: %w", err)
	}
	return nil
}

// FormatEntry renders one journal line as shown by the history viewer, numbered from 1.
func FormatEntry(index int, e models.JournalEntry) string {
	score := "-"
	if e.Score != nil {
		score = fmt.Sprintf("%.2f", *e.Score)
	}
	line := fmt.Sprintf("%02d. %s | event=%s | score=%s | mutated=%t | %s",
		index, e.Time.UTC().Format(time.RFC3339), e.Event, score, e.Mutated, e.Log)
	if e.Reason != "" {
		line += " (" + e.Reason + ")"
	}
	return line
}
