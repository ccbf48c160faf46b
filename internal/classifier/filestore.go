package classifier

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"

	"github.com/Skufu/symptomcheck/internal/logging"
)

const (
	modelPrefix  = "disease_classifier-"
	labelsPrefix = "label_encoder-"
	artifactExt  = ".json"

	// currentFile names the generation Load serves. It is the only file
	// replaced in place; artifacts are written once under their generation.
	currentFile = "CURRENT"
)

// FileStore keeps each generation's two artifacts as JSON files in one
// directory and switches between generations by renaming a small pointer
// file. A crash at any point leaves the pointer naming a complete pair.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create model dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func modelName(gen string) string  { return modelPrefix + gen + artifactExt }
func labelsName(gen string) string { return labelsPrefix + gen + artifactExt }

func (s *FileStore) Load(ctx context.Context) (*Artifacts, error) {
	raw, err := os.ReadFile(filepath.Join(s.dir, currentFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StorageError{Op: "load", Err: err}
	}
	gen := strings.TrimSpace(string(raw))
	if err := checkGeneration(gen); err != nil {
		return nil, &StorageError{Op: "load", Err: fmt.Errorf("%s: %w", currentFile, err)}
	}

	var a Artifacts
	if err := s.read(modelName(gen), &a.Model); err != nil {
		return nil, err
	}
	if err := s.read(labelsName(gen), &a.Labels); err != nil {
		return nil, err
	}
	return &a, nil
}

// Save writes the new pair under its generation, then points CURRENT at it.
// Files of other generations are removed only after the switch.
func (s *FileStore) Save(ctx context.Context, a *Artifacts) error {
	gen := a.Model.Generation
	if err := checkGeneration(gen); err != nil {
		return &StorageError{Op: "save", Err: err}
	}
	if a.Labels.Generation != gen {
		return &StorageError{Op: "save", Err: fmt.Errorf("labels generation %q differs from model generation %q", a.Labels.Generation, gen)}
	}

	if err := s.writeFile(modelName(gen), a.Model); err != nil {
		return err
	}
	if err := s.writeFile(labelsName(gen), a.Labels); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.writeAtomic(currentFile, []byte(gen+"\n")); err != nil {
		return err
	}
	s.prune(gen)
	return nil
}

func (s *FileStore) Close() error { return nil }

func checkGeneration(gen string) error {
	if gen == "" {
		return errors.New("empty generation")
	}
	if strings.ContainsAny(gen, `/\`) || gen == "." || gen == ".." {
		return fmt.Errorf("invalid generation %q", gen)
	}
	return nil
}

func (s *FileStore) read(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return &StorageError{Op: "load", Err: err}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &StorageError{Op: "load", Err: fmt.Errorf("decode %s: %w", name, err)}
	}
	return nil
}

func (s *FileStore) writeFile(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return &StorageError{Op: "save", Err: fmt.Errorf("encode %s: %w", name, err)}
	}
	return s.writeAtomic(name, data)
}

// writeAtomic writes data to a synced temp file and renames it over name.
func (s *FileStore) writeAtomic(name string, data []byte) error {
	f, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return &StorageError{Op: "save", Err: err}
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return &StorageError{Op: "save", Err: err}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return &StorageError{Op: "save", Err: err}
	}
	if err := f.Close(); err != nil {
		return &StorageError{Op: "save", Err: err}
	}
	if err := os.Rename(tmp, filepath.Join(s.dir, name)); err != nil {
		return &StorageError{Op: "save", Err: err}
	}
	return syncDir(s.dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return &StorageError{Op: "save", Err: err}
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return &StorageError{Op: "save", Err: err}
	}
	return nil
}

// prune removes artifacts of every generation except keep. Failures only
// leave extra files behind, so they are logged and ignored.
func (s *FileStore) prune(keep string) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		logging.Warn().Err(err).Str("dir", s.dir).Msg("list model dir failed")
		return
	}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, artifactExt) {
			continue
		}
		if !strings.HasPrefix(name, modelPrefix) && !strings.HasPrefix(name, labelsPrefix) {
			continue
		}
		if name == modelName(keep) || name == labelsName(keep) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			logging.Warn().Err(err).Str("file", name).Msg("remove stale model artifact failed")
			continue
		}
		logging.Debug().Str("file", name).Msg("removed stale model artifact")
	}
}
