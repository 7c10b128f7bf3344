package notify

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// DismissedStore persists the set of dismissed event ids as a JSON
// array of strings. Writes go through a temp file and rename so a
// crash mid-write never corrupts the set.
type DismissedStore struct {
	mu   sync.Mutex
	path string
	ids  map[string]bool
}

// OpenDismissedStore loads the store at path, creating an empty one
// if the file does not exist.
func OpenDismissedStore(path string) (*DismissedStore, error) {
	s := &DismissedStore{path: path, ids: make(map[string]bool)}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read dismissed store: %w", err)
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("parse dismissed store %s: %w", path, err)
	}
	for _, id := range ids {
		s.ids[id] = true
	}
	return s, nil
}

// Contains reports whether id is dismissed.
func (s *DismissedStore) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ids[id]
}

// Add dismisses id and persists the set.
func (s *DismissedStore) Add(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ids[id] {
		return nil
	}
	s.ids[id] = true
	return s.saveLocked()
}

// Remove un-dismisses id and persists the set.
func (s *DismissedStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ids[id] {
		return nil
	}
	delete(s.ids, id)
	return s.saveLocked()
}

// Len returns the number of dismissed ids.
func (s *DismissedStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

func (s *DismissedStore) saveLocked() error {
	ids := make([]string, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode dismissed store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write dismissed store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace dismissed store: %w", err)
	}
	return nil
}
