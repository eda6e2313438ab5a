// Package retention reclaims disk space in the download tree. A manager
// discovers every managed media file once, then runs sweeps over the
// candidates with a bounded worker pool: an age sweep removing files older
// than a cutoff, and a size sweep removing images too small to keep.
package retention

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"instatrack/pkg/errors"
	"instatrack/pkg/logger"
)

// managedExts lists the file extensions the sweeps are allowed to touch.
// Anything else in the tree (databases, stamps, tracking lists) is invisible
// to retention.
var managedExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".mpeg": true,
	".mpg":  true,
	".mp4":  true,
	".webp": true,
}

// imageExts is the subset the size sweep can decode
var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// Candidate is one managed file found during discovery
type Candidate struct {
	Path    string
	ModTime time.Time
	Size    int64
}

// Config tunes the sweep machinery
type Config struct {
	// Workers is the size of the sweep worker pool
	Workers int
	// BatchSize bounds how many candidates are in flight per batch
	BatchSize int
	// LargeFileThreshold is the byte size above which the size sweep
	// assumes an image is large enough and skips decoding it
	LargeFileThreshold int64
}

// DefaultConfig returns the standard sweep tuning
func DefaultConfig() Config {
	return Config{
		Workers:            16,
		BatchSize:          500,
		LargeFileThreshold: 100000,
	}
}

// SweepSummary is the outcome of one sweep
type SweepSummary struct {
	Examined    int
	Removed     int
	Skipped     int
	Failed      int
	BytesFreed  int64
	FailedPaths []string
}

// Manager holds the discovered candidates for a download tree
type Manager struct {
	baseDir     string
	cfg         Config
	candidates  []Candidate
	problematic int
	logger      logger.Logger
}

// NewManager walks the download tree once and records every managed file.
// Entries that cannot be inspected are counted as problematic rather than
// failing discovery.
func NewManager(baseDir string, cfg Config, log logger.Logger) (*Manager, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.LargeFileThreshold <= 0 {
		cfg.LargeFileThreshold = DefaultConfig().LargeFileThreshold
	}

	m := &Manager{baseDir: baseDir, cfg: cfg, logger: log}

	err := filepath.WalkDir(baseDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			m.problematic++
			log.WithError(err).WithField("path", path).Warn("Cannot inspect entry")
			return nil
		}
		if entry.IsDir() {
			return nil
		}
		if !managedExts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			m.problematic++
			log.WithError(err).WithField("path", path).Warn("Cannot stat file")
			return nil
		}

		m.candidates = append(m.candidates, Candidate{
			Path:    path,
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(errors.TypeFilesystem, err, "failed to walk download tree")
	}

	log.InfoWithFields("retention discovery finished", map[string]interface{}{
		"base_dir":    baseDir,
		"candidates":  len(m.candidates),
		"problematic": m.problematic,
	})
	return m, nil
}

// Candidates returns how many managed files were discovered
func (m *Manager) Candidates() int {
	return len(m.candidates)
}

// Problematic returns how many entries could not be inspected
func (m *Manager) Problematic() int {
	return m.problematic
}

// RemoveOld removes every candidate last modified before the cutoff
func (m *Manager) RemoveOld(ctx context.Context, olderThan time.Duration) (*SweepSummary, error) {
	cutoff := time.Now().Add(-olderThan)

	summary, err := m.runSweep(ctx, "age", func(c Candidate) verdict {
		if c.ModTime.Before(cutoff) {
			return remove
		}
		return keep
	})
	if err != nil {
		return summary, err
	}

	logger.LogRetentionSummary("age", summary.Examined, summary.Removed, summary.Failed)
	return summary, nil
}

// RemoveSmall removes images smaller than the given dimensions. Files above
// the large-file threshold are assumed big enough and skipped without
// decoding; images that cannot be decoded are treated as junk and removed.
func (m *Manager) RemoveSmall(ctx context.Context, minWidth, minHeight int) (*SweepSummary, error) {
	summary, err := m.runSweep(ctx, "size", func(c Candidate) verdict {
		if !imageExts[strings.ToLower(filepath.Ext(c.Path))] {
			return keep
		}
		if c.Size > m.cfg.LargeFileThreshold {
			return skip
		}

		width, height, err := probeDimensions(c.Path)
		if err != nil {
			m.logger.WithError(err).WithField("path", c.Path).Debug("Removing undecodable image")
			return remove
		}
		if width < minWidth || height < minHeight {
			return remove
		}
		return keep
	})
	if err != nil {
		return summary, err
	}

	logger.LogRetentionSummary("size", summary.Examined, summary.Removed, summary.Failed)
	return summary, nil
}

type verdict int

const (
	keep verdict = iota
	remove
	skip
)

type sweepResult struct {
	candidate Candidate
	verdict   verdict
	err       error
}

// runSweep pushes the candidates through a worker pool in batches. Workers
// decide and delete; the caller folds the results into the summary.
func (m *Manager) runSweep(ctx context.Context, name string, decide func(Candidate) verdict) (*SweepSummary, error) {
	summary := &SweepSummary{}

	for start := 0; start < len(m.candidates); start += m.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		end := start + m.cfg.BatchSize
		if end > len(m.candidates) {
			end = len(m.candidates)
		}
		batch := m.candidates[start:end]

		jobs := make(chan Candidate)
		results := make(chan sweepResult, len(batch))

		workers := m.cfg.Workers
		if workers > len(batch) {
			workers = len(batch)
		}
		for i := 0; i < workers; i++ {
			go func() {
				for candidate := range jobs {
					results <- m.apply(candidate, decide)
				}
			}()
		}

		go func() {
			defer close(jobs)
			for _, candidate := range batch {
				select {
				case jobs <- candidate:
				case <-ctx.Done():
					return
				}
			}
		}()

		delivered := 0
	collect:
		for delivered < len(batch) {
			select {
			case result := <-results:
				delivered++
				m.fold(summary, result)
			case <-ctx.Done():
				break collect
			}
		}

		m.logger.DebugWithFields("sweep batch finished", map[string]interface{}{
			"sweep":     name,
			"processed": start + delivered,
			"total":     len(m.candidates),
		})
	}

	return summary, nil
}

func (m *Manager) apply(candidate Candidate, decide func(Candidate) verdict) sweepResult {
	result := sweepResult{candidate: candidate, verdict: decide(candidate)}
	if result.verdict != remove {
		return result
	}
	if err := os.Remove(candidate.Path); err != nil {
		result.err = errors.Wrap(errors.TypeFilesystem, err, "failed to remove file")
	}
	return result
}

func (m *Manager) fold(summary *SweepSummary, result sweepResult) {
	summary.Examined++
	switch {
	case result.err != nil:
		summary.Failed++
		summary.FailedPaths = append(summary.FailedPaths, result.candidate.Path)
	case result.verdict == remove:
		summary.Removed++
		summary.BytesFreed += result.candidate.Size
	case result.verdict == skip:
		summary.Skipped++
	}
}
