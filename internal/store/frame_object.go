package store

import (
	"database/sql"
	"fmt"

	"github.com/ayusman/reptrack/internal/frames"
	"github.com/ayusman/reptrack/internal/geometry"
)

// FrameObjectRepository persists per-frame observations of tracked objects.
type FrameObjectRepository struct {
	db *sql.DB
}

// FrameObjects returns the frame object repository for this store.
func (s *Store) FrameObjects() *FrameObjectRepository {
	return &FrameObjectRepository{db: s.db}
}

// Save stores one observation and its keypoints atomically.
func (r *FrameObjectRepository) Save(sessionID string, obj frames.FrameObject) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	b := obj.Boundary
	result, err := tx.Exec(
		`INSERT INTO frame_objects (session_id, object_id, type, timestamp_ms, x1, y1, x2, y2, confidence)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, obj.ID, obj.Type, obj.Timestamp,
		b.TopLeft.X, b.TopLeft.Y, b.BottomRight.X, b.BottomRight.Y, b.TopLeft.Confidence,
	)
	if err != nil {
		return fmt.Errorf("insert frame object: %w", err)
	}
	rowID, err := result.LastInsertId()
	if err != nil {
		return err
	}

	for name, kp := range obj.Keypoints {
		if _, err := tx.Exec(
			`INSERT INTO keypoints (frame_object_id, name, x, y, confidence) VALUES (?, ?, ?, ?, ?)`,
			rowID, name, kp.X, kp.Y, kp.Confidence,
		); err != nil {
			return fmt.Errorf("insert keypoint %s: %w", name, err)
		}
	}

	return tx.Commit()
}

// ListByObject returns the observations of one object ordered by timestamp.
func (r *FrameObjectRepository) ListByObject(sessionID, objectID string) ([]frames.FrameObject, error) {
	return r.query(
		`WHERE f.session_id = ? AND f.object_id = ?`,
		sessionID, objectID,
	)
}

// ListBySession returns every observation in a session ordered by object and timestamp.
func (r *FrameObjectRepository) ListBySession(sessionID string) ([]frames.FrameObject, error) {
	return r.query(`WHERE f.session_id = ?`, sessionID)
}

// ObjectIDs returns the distinct object ids in a session, sorted. An empty
// objType matches every type.
func (r *FrameObjectRepository) ObjectIDs(sessionID, objType string) ([]string, error) {
	rows, err := r.db.Query(
		`SELECT DISTINCT object_id FROM frame_objects
		 WHERE session_id = ? AND (? = '' OR type = ?)
		 ORDER BY object_id`,
		sessionID, objType, objType,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LoadRegistry rebuilds the in-memory registry of a session.
func (r *FrameObjectRepository) LoadRegistry(sessionID string) (*frames.Registry, error) {
	objs, err := r.ListBySession(sessionID)
	if err != nil {
		return nil, err
	}
	return frames.NewRegistry(objs...), nil
}

func (r *FrameObjectRepository) query(where string, args ...any) ([]frames.FrameObject, error) {
	rows, err := r.db.Query(
		`SELECT f.id, f.object_id, f.type, f.timestamp_ms, f.x1, f.y1, f.x2, f.y2, f.confidence,
		        k.name, k.x, k.y, k.confidence
		 FROM frame_objects f
		 LEFT JOIN keypoints k ON k.frame_object_id = f.id
		 `+where+`
		 ORDER BY f.object_id, f.timestamp_ms, f.id`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		objs   []frames.FrameObject
		lastID int64 = -1
	)
	for rows.Next() {
		var (
			rowID              int64
			obj                frames.FrameObject
			x1, y1, x2, y2, bc float64
			name               sql.NullString
			kx, ky, kc         sql.NullFloat64
		)
		if err := rows.Scan(&rowID, &obj.ID, &obj.Type, &obj.Timestamp, &x1, &y1, &x2, &y2, &bc,
			&name, &kx, &ky, &kc); err != nil {
			return nil, err
		}

		if rowID != lastID {
			obj.Boundary = geometry.NewBox(x1, y1, x2, y2)
			obj.Boundary.TopLeft.Confidence = bc
			obj.Boundary.BottomRight.Confidence = bc
			obj.Keypoints = map[string]geometry.Position{}
			objs = append(objs, obj)
			lastID = rowID
		}
		if name.Valid {
			objs[len(objs)-1].Keypoints[name.String] = geometry.Position{
				X:          kx.Float64,
				Y:          ky.Float64,
				Confidence: kc.Float64,
			}
		}
	}
	return objs, rows.Err()
}
