// Package store persists progress records and highlights as JSON under the
// XDG state directory. Both stores treat writes as idempotent upserts, which
// is what the engine's ordering model requires.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgriffen/lectern/internal/highlight"
	"github.com/dgriffen/lectern/internal/progress"
)

const stateFileName = "reading_state.json"

// FileStore implements the progress and highlight stores over a single JSON
// state file.
type FileStore struct {
	path string
	mu   sync.RWMutex
	data fileData
}

type fileData struct {
	// Progress is keyed by "userID/documentID", then section id.
	Progress map[string]map[string]progress.Record `json:"progress"`
	// Highlights are keyed by section id. Section ids embed the document
	// identity, so no second level is needed.
	Highlights map[string][]highlight.Highlight `json:"highlights"`
}

// NewFileStore creates or loads the state file from XDG_STATE_HOME/lectern.
func NewFileStore() (*FileStore, error) {
	dir := stateDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	s := &FileStore{
		path: filepath.Join(dir, stateFileName),
		data: emptyData(),
	}
	if err := s.load(); err != nil {
		// Non-fatal - start with empty state
		s.data = emptyData()
	}
	return s, nil
}

func emptyData() fileData {
	return fileData{
		Progress:   make(map[string]map[string]progress.Record),
		Highlights: make(map[string][]highlight.Highlight),
	}
}

// stateDir returns XDG_STATE_HOME/lectern or ~/.local/state/lectern
func stateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "lectern")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "state", "lectern")
}

func progressKey(userID, documentID string) string {
	return userID + "/" + documentID
}

// Records returns all stored progress records for one user and document.
func (s *FileStore) Records(userID, documentID string) ([]progress.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []progress.Record
	for _, rec := range s.data.Progress[progressKey(userID, documentID)] {
		out = append(out, rec)
	}
	return out, nil
}

// UpsertProgress creates or updates the (user, section) record, touching only
// the fields present in the upsert.
func (s *FileStore) UpsertProgress(userID, documentID, sectionID string, up progress.Upsert) (progress.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := progressKey(userID, documentID)
	if s.data.Progress[key] == nil {
		s.data.Progress[key] = make(map[string]progress.Record)
	}

	rec, ok := s.data.Progress[key][sectionID]
	if !ok {
		rec = progress.Record{
			UserID:    userID,
			SectionID: sectionID,
			Status:    progress.StatusNotStarted,
		}
	}
	if up.Status != nil {
		rec.Status = *up.Status
	}
	if up.ScrollPercent != nil {
		rec.ScrollPercent = *up.ScrollPercent
	}
	rec.UpdatedAt = time.Now()

	s.data.Progress[key][sectionID] = rec
	if err := s.save(); err != nil {
		return progress.Record{}, err
	}
	return rec, nil
}

// Highlights returns the stored highlights for a section.
func (s *FileStore) Highlights(sectionID string) ([]highlight.Highlight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.data.Highlights[sectionID]
	out := make([]highlight.Highlight, len(stored))
	copy(out, stored)
	return out, nil
}

// CreateHighlight stores a new highlight and returns it with its assigned id.
func (s *FileStore) CreateHighlight(sectionID string, start, end int, text, color string, vis highlight.Visibility) (highlight.Highlight, error) {
	if start >= end {
		return highlight.Highlight{}, fmt.Errorf("invalid highlight range [%d,%d)", start, end)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	h := highlight.Highlight{
		ID:          uuid.New().String(),
		SectionID:   sectionID,
		StartOffset: start,
		EndOffset:   end,
		Text:        text,
		Color:       color,
		Visibility:  vis,
		CreatedAt:   time.Now(),
	}
	s.data.Highlights[sectionID] = append(s.data.Highlights[sectionID], h)
	if err := s.save(); err != nil {
		return highlight.Highlight{}, err
	}
	return h, nil
}

// DeleteHighlight removes a highlight by id. Deleting an unknown id is an
// error so callers can roll back optimistic removals.
func (s *FileStore) DeleteHighlight(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sectionID, hs := range s.data.Highlights {
		for i := range hs {
			if hs[i].ID == id {
				s.data.Highlights[sectionID] = append(hs[:i:i], hs[i+1:]...)
				return s.save()
			}
		}
	}
	return fmt.Errorf("highlight %s not found", id)
}

// SetNote attaches or clears the note on a highlight.
func (s *FileStore) SetNote(id, note string) (highlight.Highlight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sectionID, hs := range s.data.Highlights {
		for i := range hs {
			if hs[i].ID == id {
				hs[i].Note = note
				s.data.Highlights[sectionID] = hs
				if err := s.save(); err != nil {
					return highlight.Highlight{}, err
				}
				return hs[i], nil
			}
		}
	}
	return highlight.Highlight{}, fmt.Errorf("highlight %s not found", id)
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, &s.data); err != nil {
		return err
	}
	if s.data.Progress == nil {
		s.data.Progress = make(map[string]map[string]progress.Record)
	}
	if s.data.Highlights == nil {
		s.data.Highlights = make(map[string][]highlight.Highlight)
	}
	return nil
}

func (s *FileStore) save() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0644)
}
