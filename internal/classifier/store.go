package classifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Skufu/symptomcheck/internal/forest"
)

// Store kinds accepted by OpenStore.
const (
	StoreFile   = "file"
	StoreBadger = "badger"
)

// SchemaVersion is written into every model artifact. Bump it when the
// artifact layout changes incompatibly.
const SchemaVersion = 1

// ModelArtifact is the persisted fitted ensemble. It records the vocabulary
// the feature vectors were built with so a reload can detect drift.
type ModelArtifact struct {
	SchemaVersion int            `json:"schema_version"`
	Generation    string         `json:"generation"`
	Vocabulary    []string       `json:"vocabulary"`
	Accuracy      float64        `json:"accuracy"`
	TrainedAt     time.Time      `json:"trained_at"`
	Forest        *forest.Forest `json:"forest"`
}

// LabelArtifact is the persisted label encoding.
type LabelArtifact struct {
	Generation string   `json:"generation"`
	Classes    []string `json:"classes"`
}

// Artifacts is the unit of persistence: both halves of a fitted state,
// tagged with the same generation.
type Artifacts struct {
	Model  ModelArtifact
	Labels LabelArtifact
}

// Store persists fitted state. Load returns ErrNotFound when nothing has been
// saved yet. Save must leave the previously saved artifacts readable until
// the new ones are fully written.
type Store interface {
	Load(ctx context.Context) (*Artifacts, error)
	Save(ctx context.Context, a *Artifacts) error
	Close() error
}

// OpenStore opens a Store of the given kind rooted at dir.
func OpenStore(kind, dir string) (Store, error) {
	switch strings.ToLower(kind) {
	case "", StoreFile:
		s, err := NewFileStore(dir)
		if err != nil {
			return nil, err
		}
		return s, nil
	case StoreBadger:
		s, err := OpenBadgerStore(dir)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown model store %q (want %s or %s)", kind, StoreFile, StoreBadger)
	}
}
