// Package privacy tracks which profiles are publicly visible and which are
// private, and records transitions between the two states as fresh snapshots
// arrive. The two tracking sets are persisted as flat JSON lists so they
// survive runs even when the profile store is unavailable.
package privacy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Filter selects a subset of tracked users by privacy state
type Filter string

const (
	FilterAll     Filter = "all"
	FilterPublic  Filter = "public"
	FilterPrivate Filter = "private"
)

// ParseFilter parses a user-supplied filter name
func ParseFilter(s string) (Filter, error) {
	switch Filter(strings.ToLower(strings.TrimSpace(s))) {
	case FilterAll, "":
		return FilterAll, nil
	case FilterPublic:
		return FilterPublic, nil
	case FilterPrivate:
		return FilterPrivate, nil
	default:
		return FilterAll, fmt.Errorf("unknown privacy filter %q (want all, public, or private)", s)
	}
}

// State is a profile's visibility as last observed
type State string

const (
	StateUnknown State = "unknown"
	StatePublic  State = "public"
	StatePrivate State = "private"
)

// Change records one classification step for a username
type Change struct {
	Username string
	From     State
	To       State
}

// Transitioned reports whether the profile flipped between the two known
// states. A first sighting is not a transition.
func (c Change) Transitioned() bool {
	return (c.From == StatePublic && c.To == StatePrivate) ||
		(c.From == StatePrivate && c.To == StatePublic)
}

const (
	publicFile  = "public_users.json"
	privateFile = "private_users.json"
)

// Sets holds the two disjoint tracking sets. A username is in at most one
// set; Classify maintains that invariant.
type Sets struct {
	Public  map[string]bool
	Private map[string]bool
}

// NewSets creates empty tracking sets
func NewSets() *Sets {
	return &Sets{
		Public:  make(map[string]bool),
		Private: make(map[string]bool),
	}
}

// StateOf reports the last observed state of a username
func (s *Sets) StateOf(username string) State {
	switch {
	case s.Public[username]:
		return StatePublic
	case s.Private[username]:
		return StatePrivate
	default:
		return StateUnknown
	}
}

// Classify folds a fresh observation into the sets and reports the step.
// Classifying the same observation twice is a no-op with the same Change
// except that From equals To on the repeat.
func (s *Sets) Classify(username string, isPrivate bool) Change {
	change := Change{
		Username: username,
		From:     s.StateOf(username),
	}

	if isPrivate {
		change.To = StatePrivate
		delete(s.Public, username)
		s.Private[username] = true
	} else {
		change.To = StatePublic
		delete(s.Private, username)
		s.Public[username] = true
	}
	return change
}

// Usernames returns the members matching the filter, sorted
func (s *Sets) Usernames(filter Filter) []string {
	var names []string
	if filter == FilterAll || filter == FilterPublic {
		for name := range s.Public {
			names = append(names, name)
		}
	}
	if filter == FilterAll || filter == FilterPrivate {
		for name := range s.Private {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// LoadSets reads the tracking set files from a directory. Missing files are
// treated as empty sets so a first run starts clean.
func LoadSets(dir string) (*Sets, error) {
	sets := NewSets()

	publicNames, err := loadList(filepath.Join(dir, publicFile))
	if err != nil {
		return nil, err
	}
	privateNames, err := loadList(filepath.Join(dir, privateFile))
	if err != nil {
		return nil, err
	}

	for _, name := range publicNames {
		sets.Public[name] = true
	}
	for _, name := range privateNames {
		// The private set wins a conflict; a private profile must never
		// be treated as downloadable.
		delete(sets.Public, name)
		sets.Private[name] = true
	}
	return sets, nil
}

// Save writes both tracking set files atomically
func (s *Sets) Save(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create tracking directory: %w", err)
	}
	if err := saveList(filepath.Join(dir, publicFile), sortedKeys(s.Public)); err != nil {
		return err
	}
	return saveList(filepath.Join(dir, privateFile), sortedKeys(s.Private))
}

func sortedKeys(set map[string]bool) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func loadList(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return names, nil
}

func saveList(path string, names []string) error {
	data, err := json.MarshalIndent(names, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
