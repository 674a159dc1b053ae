// Package csvfile stores the audit log as a CSV file with a header row.
package csvfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"ignitiongate/internal/model"
)

// Store appends audit records to a CSV file and fsyncs after every row.
type Store struct {
	path string
	file *os.File
	mu   sync.Mutex
}

// New opens path for appending, creating it with the header row when it is
// missing or empty. An existing file must start with the audit header.
func New(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("%w: failed to create directory %s: %v", model.ErrAuditIO, dir, err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %s: %v", model.ErrAuditIO, path, err)
	}

	s := &Store{path: path, file: file}
	if err := s.ensureHeader(); err != nil {
		file.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureHeader() error {
	info, err := s.file.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat %s: %v", model.ErrAuditIO, s.path, err)
	}
	if info.Size() == 0 {
		return s.writeRow(model.AuditColumns)
	}

	header, err := csv.NewReader(io.NewSectionReader(s.file, 0, info.Size())).Read()
	if err != nil {
		return fmt.Errorf("%w: read header of %s: %v", model.ErrAuditIO, s.path, err)
	}
	if !slices.Equal(header, model.AuditColumns) {
		return fmt.Errorf("%w: %s has header %v, want %v", model.ErrAuditIO, s.path, header, model.AuditColumns)
	}
	return nil
}

func (s *Store) writeRow(row []string) error {
	w := csv.NewWriter(s.file)
	if err := w.Write(row); err != nil {
		return fmt.Errorf("%w: write %s: %v", model.ErrAuditIO, s.path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("%w: write %s: %v", model.ErrAuditIO, s.path, err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("%w: sync %s: %v", model.ErrAuditIO, s.path, err)
	}
	return nil
}

// Append writes rec as one CSV row.
func (s *Store) Append(rec model.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("%w: %s is closed", model.ErrAuditIO, s.path)
	}
	return s.writeRow(rec.Row())
}

// Recent reads the whole file and returns the last limit records.
func (s *Store) Recent(limit int) ([]model.AuditRecord, error) {
	if limit <= 0 {
		return []model.AuditRecord{}, nil
	}

	records, err := s.readAll()
	if err != nil {
		return nil, err
	}
	if len(records) > limit {
		records = records[len(records)-limit:]
	}
	return records, nil
}

// Count returns the number of data rows.
func (s *Store) Count() (int, error) {
	records, err := s.readAll()
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

func (s *Store) readAll() ([]model.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", model.ErrAuditIO, s.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(model.AuditColumns)

	var records []model.AuditRecord
	for line := 1; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", model.ErrAuditIO, s.path, err)
		}
		if line == 1 {
			continue
		}

		rec, err := model.ParseAuditRow(row, time.Local)
		if err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %v", model.ErrAuditIO, s.path, line, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Path is the file backing the store.
func (s *Store) Path() string {
	return s.path
}

// Close closes the file. Appends after Close fail with model.ErrAuditIO.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
