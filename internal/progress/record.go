// Package progress computes and restores per-section reading progress.
package progress

import "time"

// Status of a section for one user.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Record is one user's progress in one section. A record is created on the
// first scroll or visit and mutated in place afterwards; the engine never
// deletes one. ScrollPercent is meaningful while Status != Completed; a
// completed record's percent is informational only.
type Record struct {
	UserID        string    `json:"user_id"`
	SectionID     string    `json:"section_id"`
	Status        Status    `json:"status"`
	ScrollPercent int       `json:"scroll_percent"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Upsert carries the optional fields of a progress write. Nil fields are left
// untouched by the store.
type Upsert struct {
	Status        *Status
	ScrollPercent *int
}

// Store persists progress records. Writes must behave as idempotent upserts
// keyed by (user, section): the engine does not guarantee global write
// ordering across rapid section switches.
type Store interface {
	Records(userID, documentID string) ([]Record, error)
	UpsertProgress(userID, documentID, sectionID string, up Upsert) (Record, error)
}

// SectionRef is the slice of a Section the engine needs: identity plus its
// place in the document order.
type SectionRef struct {
	ID    string
	Order int
}

// DocumentPercent aggregates per-section progress into one document-level
// figure: the mean of per-section percents with Completed counting as 100,
// clamped to 99 unless every section is completed.
func DocumentPercent(sections []SectionRef, records map[string]Record) int {
	if len(sections) == 0 {
		return 0
	}

	total := 0
	allCompleted := true
	for _, s := range sections {
		rec, ok := records[s.ID]
		if !ok {
			allCompleted = false
			continue
		}
		if rec.Status == StatusCompleted {
			total += 100
		} else {
			allCompleted = false
			total += rec.ScrollPercent
		}
	}

	pct := total / len(sections)
	if !allCompleted && pct > 99 {
		pct = 99
	}
	return pct
}
