package models

import "time"

// Edge is one row of a relationship table. Left and Right follow the table's column
// order; symmetric tables keep Left < Right.
type Edge struct {
	Kind        string    `db:"-"`
	LeftID      int       `db:"left_id"`
	RightID     int       `db:"right_id"`
	RelatedAs   Codes     `db:"related_as"`
	Probability *int      `db:"probability"`
	Comment     string    `db:"comment"`
	UserID      *int      `db:"user_id"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// SameAttrs reports whether two edges carry equal attributes.
func (e *Edge) SameAttrs(o *Edge) bool {
	if e.Comment != o.Comment || !e.RelatedAs.Equal(o.RelatedAs) {
		return false
	}
	switch {
	case e.Probability == nil && o.Probability == nil:
		return true
	case e.Probability == nil || o.Probability == nil:
		return false
	}
	return *e.Probability == *o.Probability
}

// HistoryRow is one append-only snapshot.
type HistoryRow struct {
	ID        int64     `db:"id"`
	SubjectID int       `db:"subject_id"`
	Data      JSONB     `db:"data"`
	UserID    *int      `db:"user_id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	User *UserRef
}
