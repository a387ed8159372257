package stats

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// FileName is the permanent stats file within the data directory.
const FileName = "munin-update.stats"

// Writer records cycle timing to a temp file and promotes it atomically over
// the permanent stats file on Commit. Opening is best-effort: when the temp
// target cannot be created the writer degrades to a discard target, telemetry
// for the cycle is lost and Commit does nothing. No business data ever goes
// through this writer.
type Writer struct {
	logger zerolog.Logger
	out    io.Writer
	file   *os.File
	path   string
}

// Open creates a stats writer targeting <dir>/munin-update.stats.
func Open(dir string, logger zerolog.Logger) *Writer {
	path := filepath.Join(dir, FileName)
	file, err := os.CreateTemp(dir, ".stats-*")
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("stats target unavailable, discarding cycle telemetry")
		return &Writer{logger: logger, out: io.Discard}
	}
	return &Writer{logger: logger, out: file, file: file, path: path}
}

// WorkerRecord appends a per-worker timing record: UD|<id>|<seconds>.
func (w *Writer) WorkerRecord(id string, elapsed time.Duration) {
	fmt.Fprintf(w.out, "UD|%s|%.2f\n", id, elapsed.Seconds())
}

// TotalRecord appends the total-cycle timing record: UT|<seconds>. It must
// be the last record of the cycle.
func (w *Writer) TotalRecord(elapsed time.Duration) {
	fmt.Fprintf(w.out, "UT|%.2f\n", elapsed.Seconds())
}

// Commit closes the temp file and renames it over the permanent stats file.
// Failures are logged and absorbed; the temp file is removed on any failure.
func (w *Writer) Commit() {
	if w.file == nil {
		return
	}
	name := w.file.Name()
	if err := w.file.Close(); err != nil {
		w.logger.Warn().Err(err).Msg("close stats temp failed")
		_ = os.Remove(name)
		w.release()
		return
	}
	if err := os.Rename(name, w.path); err != nil {
		w.logger.Warn().Err(err).Str("path", w.path).Msg("replace stats file failed")
		_ = os.Remove(name)
	}
	w.release()
}

// Discard closes and removes the temp file without promoting it. It is a
// no-op after Commit, so callers can defer it to cover aborted cycles.
func (w *Writer) Discard() {
	if w.file == nil {
		return
	}
	name := w.file.Name()
	if err := w.file.Close(); err != nil {
		w.logger.Warn().Err(err).Msg("close stats temp failed")
	}
	_ = os.Remove(name)
	w.release()
}

func (w *Writer) release() {
	w.file = nil
	w.out = io.Discard
}
