package dump

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nholik/munin-update/internal/lock"
	"github.com/rs/zerolog"
)

// DatafileLockName is the named lock serializing datafile writers. It is
// distinct from the run lock so readers of the persisted file never block
// behind a whole update cycle.
const DatafileLockName = "munin-datafile.lock"

// FileStore persists a HostConfigSet as a flat line-oriented datafile.
type FileStore struct {
	path   string
	locks  *lock.Manager
	logger zerolog.Logger
}

// NewFileStore returns a datafile store at the given path. Writes are
// guarded by the datafile lock from the given manager.
func NewFileStore(path string, locks *lock.Manager, logger zerolog.Logger) *FileStore {
	return &FileStore{
		path:   path,
		locks:  locks,
		logger: logger,
	}
}

// Load reads the persisted set from disk. A missing file yields an empty
// set, not an error. Load takes no lock: the atomic-rename write discipline
// guarantees a reader only ever sees a complete file.
func (s *FileStore) Load(ctx context.Context) (HostConfigSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Debug().Str("path", s.path).Msg("datafile missing, starting fresh")
			return HostConfigSet{}, nil
		}
		return nil, fmt.Errorf("open datafile: %w", err)
	}
	defer file.Close()

	set, err := Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode datafile %s: %w", s.path, err)
	}
	return set, nil
}

// Save writes the set to disk atomically: encode to a temp file in the same
// directory, fsync, then rename over the permanent path, all while holding
// the datafile lock.
func (s *FileStore) Save(ctx context.Context, set HostConfigSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	held, err := s.locks.Acquire(DatafileLockName)
	if err != nil {
		return err
	}
	defer held.Release()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, ".datafile-*")
	if err != nil {
		return fmt.Errorf("create datafile temp: %w", err)
	}

	cleanup := func() {
		_ = os.Remove(tempFile.Name())
	}

	if err := Encode(tempFile, set); err != nil {
		_ = tempFile.Close()
		cleanup()
		return fmt.Errorf("encode datafile: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		cleanup()
		return err
	}
	if err := tempFile.Close(); err != nil {
		cleanup()
		return err
	}

	if err := os.Rename(tempFile.Name(), s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace datafile: %w", err)
	}

	if dirHandle, err := os.Open(dir); err == nil {
		_ = dirHandle.Sync()
		_ = dirHandle.Close()
	}

	return nil
}
