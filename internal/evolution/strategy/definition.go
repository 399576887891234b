package strategy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/aevum/internal/evolution/models"
)

// DefaultDefinition is the brain used before any mutation: the online affine learner.
func DefaultDefinition() models.Definition {
	return models.Definition{Kind: models.KindAffineSGD, Name: string(models.KindAffineSGD)}
}

// DefinitionStore keeps the active strategy definition on disk. Exactly one definition is
// active at a time; writers replace it wholesale.
type DefinitionStore struct {
	path   string
	logger *zap.Logger
}

// NewDefinitionStore creates a store backed by path.
func NewDefinitionStore(logger *zap.Logger, path string) *DefinitionStore {
	return &DefinitionStore{path: path, logger: logger.Named("definitions")}
}

// Load returns the active definition. A missing or unreadable file yields DefaultDefinition.
func (d *DefinitionStore) Load() models.Definition {
	data, err := os.ReadFile(d.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			d.logger.Warn("Definition unreadable; using default brain.", zap.Error(err))
		}
		return DefaultDefinition()
	}
	def, err := DecodeDefinition(data)
	if err != nil {
		d.logger.Warn("Definition malformed; using default brain.", zap.Error(err))
		return DefaultDefinition()
	}
	return def
}

// Raw returns the canonical encoding of the active definition, as archived per generation.
func (d *DefinitionStore) Raw() ([]byte, error) {
	return EncodeDefinition(d.Load())
}

// Save installs def as the active definition.
func (d *DefinitionStore) Save(def models.Definition) error {
	data, err := EncodeDefinition(def)
	if err != nil {
		return err
	}
	return d.write(data)
}

// Install replaces the active definition with an encoded one, e.g. an archived copy.
func (d *DefinitionStore) Install(data []byte) (models.Definition, error) {
	def, err := DecodeDefinition(data)
	if err != nil {
		return models.Definition{}, err
	}
	return def, d.Save(def)
}

func (d *DefinitionStore) write(data []byte) error {
	if err := os.MkdirAll(filepath.Dir(d.path), 0o755); err != nil {
		return fmt.Errorf("failed to create definition directory: %w", err)
	}
	if err := os.WriteFile(d.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write definition: %w", err)
	}
	return nil
}

// EncodeDefinition renders a definition as indented JSON.
func EncodeDefinition(def models.Definition) ([]byte, error) {
	if def.Kind == "" {
		return nil, errors.New("definition kind is required")
	}
	data, err := json.MarshalIndent(def, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode definition: %w", err)
	}
	return data, nil
}

// DecodeDefinition parses a definition and checks its parameters.
func DecodeDefinition(data []byte) (models.Definition, error) {
	var def models.Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return models.Definition{}, fmt.Errorf("invalid definition: %w", err)
	}
	switch def.Kind {
	case models.KindAffineSGD:
	case models.KindRandomCurve:
		if def.LowThreshold < 0 || def.HighThreshold > 100 || def.LowThreshold > def.HighThreshold {
			return models.Definition{}, fmt.Errorf("invalid thresholds low=%d high=%d", def.LowThreshold, def.HighThreshold)
		}
	default:
		return models.Definition{}, fmt.Errorf("%w: %q", ErrUnknownKind, def.Kind)
	}
	if def.Name == "" {
		def.Name = string(def.Kind)
	}
	return def, nil
}

// NewRandomCurveDefinition builds the mutation template definition.
func NewRandomCurveDefinition(name string, low, high int, now time.Time) models.Definition {
	return models.Definition{
		Kind:          models.KindRandomCurve,
		Name:          name,
		LowThreshold:  low,
		HighThreshold: high,
		CreatedAt:     now.UTC(),
	}
}
