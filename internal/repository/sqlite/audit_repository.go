package sqlite

import (
	"fmt"
	"time"

	"ignitiongate/internal/model"
)

// AuditRepository implements repository.AuditRepository for SQLite.
type AuditRepository struct {
	db *DB
}

// NewAuditRepository creates a new SQLite audit repository.
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Open creates the database at path and returns a repository that owns it.
func Open(path string) (*AuditRepository, error) {
	db, err := New(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrAuditIO, err)
	}
	return NewAuditRepository(db), nil
}

// Append inserts one audit row.
func (r *AuditRepository) Append(rec model.AuditRecord) error {
	r.db.Lock()
	defer r.db.Unlock()

	row := rec.Row()
	_, err := r.db.Conn().Exec(`
		INSERT INTO audit_log (timestamp, detection_outcome, confidence, ignition_status, override_status)
		VALUES (?, ?, ?, ?, ?)
	`, row[0], row[1], row[2], row[3], row[4])
	if err != nil {
		return fmt.Errorf("%w: failed to insert audit record: %v", model.ErrAuditIO, err)
	}
	return nil
}

// AppendBatch inserts records in a single transaction.
func (r *AuditRepository) AppendBatch(records []model.AuditRecord) error {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", model.ErrAuditIO, err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO audit_log (timestamp, detection_outcome, confidence, ignition_status, override_status)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("%w: failed to prepare statement: %v", model.ErrAuditIO, err)
	}
	defer stmt.Close()

	for _, rec := range records {
		row := rec.Row()
		if _, err := stmt.Exec(row[0], row[1], row[2], row[3], row[4]); err != nil {
			return fmt.Errorf("%w: failed to insert audit record: %v", model.ErrAuditIO, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit: %v", model.ErrAuditIO, err)
	}
	return nil
}

// Recent returns the newest limit rows, oldest first.
func (r *AuditRepository) Recent(limit int) ([]model.AuditRecord, error) {
	if limit <= 0 {
		return []model.AuditRecord{}, nil
	}

	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT timestamp, detection_outcome, confidence, ignition_status, override_status
		FROM (SELECT * FROM audit_log ORDER BY id DESC LIMIT ?)
		ORDER BY id ASC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query audit log: %v", model.ErrAuditIO, err)
	}
	defer rows.Close()

	records := []model.AuditRecord{}
	for rows.Next() {
		row := make([]string, len(model.AuditColumns))
		if err := rows.Scan(&row[0], &row[1], &row[2], &row[3], &row[4]); err != nil {
			return nil, fmt.Errorf("%w: failed to scan audit record: %v", model.ErrAuditIO, err)
		}
		rec, err := model.ParseAuditRow(row, time.Local)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrAuditIO, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrAuditIO, err)
	}
	return records, nil
}

// Count returns the number of stored rows.
func (r *AuditRepository) Count() (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var n int
	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM audit_log`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: failed to count audit records: %v", model.ErrAuditIO, err)
	}
	return n, nil
}

// Close closes the underlying database.
func (r *AuditRepository) Close() error {
	return r.db.Close()
}
