// Package storage writes downloaded media to the per-user directory layout.
// Files are named {username}_{timestamp}{ext} and written via a temp file
// rename so an interrupted run never leaves a partial media file behind.
package storage

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"instatrack/pkg/errors"
	"instatrack/pkg/logger"
)

// timestampLayout matches the filename convention shared with the retention
// sweeps, which parse nothing and rely only on file modtimes.
const timestampLayout = "20060102_150405"

// Manager owns the download directory tree
type Manager struct {
	baseDir string
	logger  logger.Logger
}

// NewManager creates a manager rooted at baseDir, creating it if needed
func NewManager(baseDir string, log logger.Logger) (*Manager, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, errors.Wrap(errors.TypeFilesystem, err, "failed to create download directory")
	}
	return &Manager{baseDir: baseDir, logger: log}, nil
}

// BaseDir returns the root of the download tree
func (m *Manager) BaseDir() string {
	return m.baseDir
}

// UserDir returns the directory holding one user's media
func (m *Manager) UserDir(username string) string {
	return filepath.Join(m.baseDir, username)
}

// EnsureUserDir creates the user's directory if needed and returns it
func (m *Manager) EnsureUserDir(username string) (string, error) {
	dir := m.UserDir(username)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrap(errors.TypeFilesystem, err, "failed to create user directory")
	}
	return dir, nil
}

// SaveMedia stores one media file under the user's directory. When a file
// with the same name already exists the write is skipped; the return value
// reports whether a new file was created.
func (m *Manager) SaveMedia(username string, takenAt time.Time, ext string, data []byte) (string, bool, error) {
	dir, err := m.EnsureUserDir(username)
	if err != nil {
		return "", false, err
	}

	filename := fmt.Sprintf("%s_%s%s", username, takenAt.UTC().Format(timestampLayout), ext)
	path := filepath.Join(dir, filename)

	if _, err := os.Stat(path); err == nil {
		return path, false, nil
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", false, errors.Wrap(errors.TypeFilesystem, err, "failed to write media file")
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", false, errors.Wrap(errors.TypeFilesystem, err, "failed to finalize media file")
	}

	m.logger.DebugWithFields("media saved", map[string]interface{}{
		"path": path,
		"size": len(data),
	})
	return path, true, nil
}

// Exists reports whether a media file for the given instant is already stored
func (m *Manager) Exists(username string, takenAt time.Time, ext string) bool {
	filename := fmt.Sprintf("%s_%s%s", username, takenAt.UTC().Format(timestampLayout), ext)
	_, err := os.Stat(filepath.Join(m.UserDir(username), filename))
	return err == nil
}

// RemoveSidecarTexts deletes caption and metadata text files from a user's
// directory, returning how many were removed. Media files are untouched.
func (m *Manager) RemoveSidecarTexts(username string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(m.UserDir(username), "*.txt"))
	if err != nil {
		return 0, errors.Wrap(errors.TypeFilesystem, err, "sidecar glob failed")
	}

	removed := 0
	for _, path := range matches {
		if err := os.Remove(path); err != nil {
			return removed, errors.Wrap(errors.TypeFilesystem, err, "failed to remove sidecar file")
		}
		removed++
	}
	return removed, nil
}

// ExtForMedia picks the filename extension for a media URL. The URL's own
// extension wins when present; otherwise the media kind decides.
func ExtForMedia(mediaURL string, isVideo bool) string {
	if u, err := url.Parse(mediaURL); err == nil {
		if ext := strings.ToLower(filepath.Ext(u.Path)); isKnownExt(ext) {
			return ext
		}
	}
	if isVideo {
		return ".mp4"
	}
	return ".jpg"
}

func isKnownExt(ext string) bool {
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp", ".mp4", ".mpeg", ".mpg":
		return true
	}
	return false
}
