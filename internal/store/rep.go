package store

import (
	"database/sql"
)

// RepRecord is a counted rep of one object, stored by frame timestamps.
type RepRecord struct {
	Index     int    `json:"index"`
	Keypoint1 string `json:"keypoint1"`
	Keypoint2 string `json:"keypoint2"`
	StartMs   int64  `json:"start_ms"`
	MiddleMs  int64  `json:"middle_ms"`
	EndMs     int64  `json:"end_ms"`

	// Consistency is how closely the rep follows the first rep, in (0,1].
	Consistency float64 `json:"consistency"`
}

// RepRepository stores rep analysis results.
type RepRepository struct {
	db *sql.DB
}

// Reps returns the rep repository for this store.
func (s *Store) Reps() *RepRepository {
	return &RepRepository{db: s.db}
}

// Replace swaps the stored reps of an object for a new analysis result.
// Record indexes are renumbered from 0 in slice order.
func (r *RepRepository) Replace(sessionID, objectID string, reps []RepRecord) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM reps WHERE session_id = ? AND object_id = ?`, sessionID, objectID); err != nil {
		return err
	}
	for i, rep := range reps {
		if _, err := tx.Exec(
			`INSERT INTO reps (session_id, object_id, rep_index, keypoint1, keypoint2, start_ms, middle_ms, end_ms, consistency)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sessionID, objectID, i, rep.Keypoint1, rep.Keypoint2, rep.StartMs, rep.MiddleMs, rep.EndMs, rep.Consistency,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// List returns the stored reps of an object in order.
func (r *RepRepository) List(sessionID, objectID string) ([]RepRecord, error) {
	rows, err := r.db.Query(
		`SELECT rep_index, keypoint1, keypoint2, start_ms, middle_ms, end_ms, consistency
		 FROM reps WHERE session_id = ? AND object_id = ?
		 ORDER BY rep_index`,
		sessionID, objectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reps := []RepRecord{}
	for rows.Next() {
		var rep RepRecord
		if err := rows.Scan(&rep.Index, &rep.Keypoint1, &rep.Keypoint2, &rep.StartMs, &rep.MiddleMs, &rep.EndMs, &rep.Consistency); err != nil {
			return nil, err
		}
		reps = append(reps, rep)
	}
	return reps, rows.Err()
}
