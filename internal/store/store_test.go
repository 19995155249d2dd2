package store

import (
	"testing"

	"github.com/dgriffen/lectern/internal/highlight"
	"github.com/dgriffen/lectern/internal/progress"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	s, err := NewFileStore()
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return s
}

func intPtr(n int) *int                          { return &n }
func statusPtr(s progress.Status) *progress.Status { return &s }

func TestUpsertProgressCreatesRecord(t *testing.T) {
	s := newTestStore(t)

	rec, err := s.UpsertProgress("u1", "doc1", "doc1/0001", progress.Upsert{
		Status:        statusPtr(progress.StatusInProgress),
		ScrollPercent: intPtr(40),
	})
	if err != nil {
		t.Fatalf("UpsertProgress: %v", err)
	}
	if rec.Status != progress.StatusInProgress || rec.ScrollPercent != 40 {
		t.Errorf("record = %+v, want in_progress at 40", rec)
	}
	if rec.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not set")
	}
}

func TestUpsertProgressPartialUpdate(t *testing.T) {
	s := newTestStore(t)

	s.UpsertProgress("u1", "doc1", "sec", progress.Upsert{
		Status:        statusPtr(progress.StatusInProgress),
		ScrollPercent: intPtr(40),
	})

	// Percent-only upsert leaves the status alone.
	rec, err := s.UpsertProgress("u1", "doc1", "sec", progress.Upsert{ScrollPercent: intPtr(55)})
	if err != nil {
		t.Fatalf("UpsertProgress: %v", err)
	}
	if rec.Status != progress.StatusInProgress || rec.ScrollPercent != 55 {
		t.Errorf("record = %+v, want in_progress at 55", rec)
	}

	// Status-only upsert leaves the percent alone.
	rec, _ = s.UpsertProgress("u1", "doc1", "sec", progress.Upsert{Status: statusPtr(progress.StatusCompleted)})
	if rec.Status != progress.StatusCompleted || rec.ScrollPercent != 55 {
		t.Errorf("record = %+v, want completed at 55", rec)
	}
}

func TestRecordsScopedToUserAndDocument(t *testing.T) {
	s := newTestStore(t)

	s.UpsertProgress("u1", "doc1", "a", progress.Upsert{ScrollPercent: intPtr(10)})
	s.UpsertProgress("u1", "doc2", "b", progress.Upsert{ScrollPercent: intPtr(20)})
	s.UpsertProgress("u2", "doc1", "c", progress.Upsert{ScrollPercent: intPtr(30)})

	recs, err := s.Records("u1", "doc1")
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(recs) != 1 || recs[0].SectionID != "a" {
		t.Errorf("records = %+v, want just section a", recs)
	}
}

func TestProgressSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", dir)

	s1, err := NewFileStore()
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	s1.UpsertProgress("u1", "doc1", "sec", progress.Upsert{
		Status:        statusPtr(progress.StatusInProgress),
		ScrollPercent: intPtr(62),
	})

	s2, err := NewFileStore()
	if err != nil {
		t.Fatalf("NewFileStore (reload): %v", err)
	}
	recs, _ := s2.Records("u1", "doc1")
	if len(recs) != 1 || recs[0].ScrollPercent != 62 {
		t.Errorf("reloaded records = %+v, want section at 62", recs)
	}
}

func TestCreateHighlight(t *testing.T) {
	s := newTestStore(t)

	h, err := s.CreateHighlight("sec", 5, 12, "brave w", "yellow", highlight.VisibilityPrivate)
	if err != nil {
		t.Fatalf("CreateHighlight: %v", err)
	}
	if h.ID == "" {
		t.Error("no id assigned")
	}
	if h.StartOffset != 5 || h.EndOffset != 12 || h.Text != "brave w" {
		t.Errorf("highlight = %+v", h)
	}

	hs, _ := s.Highlights("sec")
	if len(hs) != 1 || hs[0].ID != h.ID {
		t.Errorf("stored highlights = %+v", hs)
	}
}

func TestCreateHighlightRejectsEmptyRange(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.CreateHighlight("sec", 7, 7, "", "yellow", highlight.VisibilityPrivate); err == nil {
		t.Error("empty range accepted")
	}
	if _, err := s.CreateHighlight("sec", 9, 3, "", "yellow", highlight.VisibilityPrivate); err == nil {
		t.Error("inverted range accepted")
	}
}

func TestDeleteHighlight(t *testing.T) {
	s := newTestStore(t)

	h, _ := s.CreateHighlight("sec", 0, 5, "Hello", "green", highlight.VisibilityPublic)
	if err := s.DeleteHighlight(h.ID); err != nil {
		t.Fatalf("DeleteHighlight: %v", err)
	}
	hs, _ := s.Highlights("sec")
	if len(hs) != 0 {
		t.Errorf("highlights = %+v, want none", hs)
	}

	if err := s.DeleteHighlight(h.ID); err == nil {
		t.Error("deleting unknown id did not error")
	}
}

func TestSetNote(t *testing.T) {
	s := newTestStore(t)

	h, _ := s.CreateHighlight("sec", 0, 5, "Hello", "blue", highlight.VisibilityPrivate)
	got, err := s.SetNote(h.ID, "revisit")
	if err != nil {
		t.Fatalf("SetNote: %v", err)
	}
	if got.Note != "revisit" {
		t.Errorf("note = %q, want %q", got.Note, "revisit")
	}

	hs, _ := s.Highlights("sec")
	if hs[0].Note != "revisit" {
		t.Error("note not stored")
	}

	if _, err := s.SetNote("ghost", "x"); err == nil {
		t.Error("SetNote on unknown id did not error")
	}
}

func TestHighlightsSurviveReload(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", dir)

	s1, _ := NewFileStore()
	h, _ := s1.CreateHighlight("sec", 3, 9, "llo br", "pink", highlight.VisibilityPrivate)

	s2, _ := NewFileStore()
	hs, _ := s2.Highlights("sec")
	if len(hs) != 1 || hs[0].ID != h.ID || hs[0].Text != "llo br" {
		t.Errorf("reloaded highlights = %+v", hs)
	}
}

func TestHighlightsReturnsCopy(t *testing.T) {
	s := newTestStore(t)
	s.CreateHighlight("sec", 0, 5, "Hello", "yellow", highlight.VisibilityPrivate)

	hs, _ := s.Highlights("sec")
	hs[0].Text = "mutated"

	again, _ := s.Highlights("sec")
	if again[0].Text != "Hello" {
		t.Error("caller mutation leaked into store")
	}
}
