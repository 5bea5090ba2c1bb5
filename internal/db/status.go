// Package db persists per-row migration progress so an interrupted run can
// resume a row exactly where it stopped.
package db

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

type Status string

const (
	StatusNotStarted   Status = "not-started"
	StatusPending      Status = "pending"
	StatusFilesMoved   Status = "files-moved"
	StatusSheetUpdated Status = "sheet-updated"
)

// MigrationRecord mirrors the DynamoDB item.
type MigrationRecord struct {
	PK        string   `dynamodbav:"PK"`
	SK        string   `dynamodbav:"SK"`
	Row       int      `dynamodbav:"Row"`
	Status    Status   `dynamodbav:"Status"`
	Folder    string   `dynamodbav:"Folder"`
	Files     []string `dynamodbav:"Files"`
	Moved     []string `dynamodbav:"Moved"`
	LastError string   `dynamodbav:"LastError,omitempty"`
	UpdatedAt string   `dynamodbav:"UpdatedAt"`
}

// HasMoved reports whether key was already moved for this row.
func (r *MigrationRecord) HasMoved(key string) bool {
	return slices.Contains(r.Moved, key)
}

// SameFiles reports whether the record describes exactly files, in order.
func (r *MigrationRecord) SameFiles(files []string) bool {
	return slices.Equal(r.Files, files)
}

func SheetPK(spreadsheetID, sheetName string) string {
	return fmt.Sprintf("SHEET#%s#%s", spreadsheetID, sheetName)
}

func RowSK(rowNumber int) string {
	return fmt.Sprintf("ROW#%d", rowNumber)
}

var now = defaultNow

func defaultNow() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func wrap(op string, row int, err error) error {
	return fmt.Errorf("status %s row %d: %w", op, row, err)
}

// MemoryStatusStore is used when no table is configured. Progress then only
// lives for the duration of one run. Records are keyed by row number and
// carry no PK/SK; those belong to the DynamoDB item.
type MemoryStatusStore struct {
	mu   sync.Mutex
	rows map[int]MigrationRecord
}

func NewMemoryStatusStore() *MemoryStatusStore {
	return &MemoryStatusStore{rows: map[int]MigrationRecord{}}
}

func (m *MemoryStatusStore) Load(_ context.Context, rowNumber int) (*MigrationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[rowNumber]
	if !ok {
		return nil, nil
	}
	rec.Files = slices.Clone(rec.Files)
	rec.Moved = slices.Clone(rec.Moved)
	return &rec, nil
}

func (m *MemoryStatusStore) Save(_ context.Context, rec MigrationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.PK, rec.SK = "", ""
	rec.UpdatedAt = now()
	rec.Files = slices.Clone(rec.Files)
	rec.Moved = slices.Clone(rec.Moved)
	m.rows[rec.Row] = rec
	return nil
}
