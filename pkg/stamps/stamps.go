// Package stamps persists per-user download marks between runs. Marks let a
// run skip content it already fetched: an unchanged profile picture URL, a
// timeline already drained up to a post, a story already seen.
package stamps

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Marks is the remembered download state for one user
type Marks struct {
	ProfilePicURL string    `json:"profile_pic_url,omitempty"`
	LastPostID    string    `json:"last_post_id,omitempty"`
	LastStoryID   string    `json:"last_story_id,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Store holds the marks for all users, backed by one JSON file
type Store struct {
	mu    sync.Mutex
	path  string
	marks map[string]Marks
}

// Load reads the stamps file, or starts empty when it does not exist
func Load(path string) (*Store, error) {
	store := &Store{
		path:  path,
		marks: make(map[string]Marks),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return store, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read stamps file: %w", err)
	}

	if err := json.Unmarshal(data, &store.marks); err != nil {
		return nil, fmt.Errorf("failed to parse stamps file: %w", err)
	}
	return store, nil
}

// Get returns the marks for a user and whether any exist
func (s *Store) Get(username string) (Marks, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	marks, ok := s.marks[username]
	return marks, ok
}

// Put replaces the marks for a user and timestamps the update
func (s *Store) Put(username string, marks Marks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	marks.UpdatedAt = time.Now().UTC()
	s.marks[username] = marks
}

// Remove drops the marks for a user
func (s *Store) Remove(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.marks, username)
}

// Save writes the stamps file atomically via a temp file rename
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create stamps directory: %w", err)
	}

	data, err := json.MarshalIndent(s.marks, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode stamps: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write stamps file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace stamps file: %w", err)
	}
	return nil
}
