// Package archive keeps an immutable copy of the active brain definition for every
// generation, for audit and rollback.
package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/aevum/internal/evolution/models"
)

const (
	definitionSuffix = ".brain.json"
	metaSuffix       = ".json"
)

// ErrTagNotFound is returned when no snapshot carries the requested tag.
var ErrTagNotFound = errors.New("snapshot tag not found")

// Archive writes and reads generation snapshots under a single directory.
type Archive struct {
	dir    string
	logger *zap.Logger
	now    func() time.Time
}

// New creates an Archive rooted at dir.
func New(logger *zap.Logger, dir string) *Archive {
	return &Archive{dir: dir, logger: logger.Named("archive"), now: time.Now}
}

// Dir returns the archive directory.
func (a *Archive) Dir() string { return a.dir }

// Snapshot stores definition under a fresh tag for generation and returns the recorded
// snapshot. Existing snapshots are never overwritten.
func (a *Archive) Snapshot(generation int, note string, definition []byte) (models.Snapshot, error) {
	if generation < 1 {
		return models.Snapshot{}, fmt.Errorf("invalid generation %d", generation)
	}
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to create archive directory: %w", err)
	}

	now := a.now().UTC()
	tag, err := a.claim(fmt.Sprintf("gen_%05d_%d", generation, now.Unix()), definition)
	if err != nil {
		return models.Snapshot{}, err
	}

	snap := models.Snapshot{Generation: generation, Tag: tag, Note: note, Time: now, Definition: definition}
	meta, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to encode snapshot metadata: %w", err)
	}
	if err := writeExclusive(filepath.Join(a.dir, tag+metaSuffix), meta); err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to write snapshot metadata: %w", err)
	}

	a.logger.Debug("Generation archived.", zap.String("tag", tag), zap.Int("generation", generation))
	return snap, nil
}

// claim writes the definition copy under base, or under base plus a short random suffix
// when base is already taken within the same second.
func (a *Archive) claim(base string, definition []byte) (string, error) {
	tag := base
	for attempt := 0; attempt < 5; attempt++ {
		err := writeExclusive(filepath.Join(a.dir, tag+definitionSuffix), definition)
		if err == nil {
			return tag, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("failed to write snapshot definition: %w", err)
		}
		tag = base + "_" + uuid.NewString()[:8]
	}
	return "", fmt.Errorf("could not allocate a unique tag for %s", base)
}

// List returns all snapshots ordered by generation, then tag.
func (a *Archive) List() ([]models.Snapshot, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read archive directory: %w", err)
	}

	var snaps []models.Snapshot
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasSuffix(name, definitionSuffix) || !strings.HasSuffix(name, metaSuffix) {
			continue
		}
		snap, err := a.readMeta(strings.TrimSuffix(name, metaSuffix))
		if err != nil {
			a.logger.Warn("Skipping unreadable snapshot metadata.", zap.String("file", name), zap.Error(err))
			continue
		}
		snaps = append(snaps, snap)
	}

	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].Generation != snaps[j].Generation {
			return snaps[i].Generation < snaps[j].Generation
		}
		return snaps[i].Tag < snaps[j].Tag
	})
	return snaps, nil
}

// Load returns the snapshot recorded under tag, including its definition copy.
func (a *Archive) Load(tag string) (models.Snapshot, error) {
	if tag == "" || strings.ContainsAny(tag, `/\`) {
		return models.Snapshot{}, fmt.Errorf("%w: %q", ErrTagNotFound, tag)
	}
	snap, err := a.readMeta(tag)
	if err != nil {
		return models.Snapshot{}, err
	}
	definition, err := os.ReadFile(filepath.Join(a.dir, tag+definitionSuffix))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.Snapshot{}, fmt.Errorf("%w: %q has no definition copy", ErrTagNotFound, tag)
		}
		return models.Snapshot{}, fmt.Errorf("failed to read snapshot definition: %w", err)
	}
	snap.Definition = definition
	return snap, nil
}

func (a *Archive) readMeta(tag string) (models.Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(a.dir, tag+metaSuffix))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.Snapshot{}, fmt.Errorf("%w: %q", ErrTagNotFound, tag)
		}
		return models.Snapshot{}, fmt.Errorf("failed to read snapshot metadata: %w", err)
	}
	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return models.Snapshot{}, fmt.Errorf("malformed snapshot metadata: %w", err)
	}
	return snap, nil
}

func writeExclusive(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
