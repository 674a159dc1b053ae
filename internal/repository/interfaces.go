package repository

import "ignitiongate/internal/model"

// AuditRepository is the durable, append-only decision log. Implementations
// create their storage with the audit schema when it does not exist and are
// safe for concurrent use.
type AuditRepository interface {
	// Append persists one record. Errors wrap model.ErrAuditIO.
	Append(rec model.AuditRecord) error

	// Recent returns up to limit of the newest records, oldest first.
	Recent(limit int) ([]model.AuditRecord, error)
	Count() (int, error)

	Close() error
}
