// Package migrate moves each submission row's uploaded files into a folder of
// the submission bucket and records the folder location back in the sheet.
package migrate

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ase-101/hackathon/internal/db"
	"github.com/ase-101/hackathon/internal/storage"
)

type Sheet interface {
	ReadRows(ctx context.Context) ([][]string, error)
	WriteCell(ctx context.Context, rowNumber, column int, value string) error
}

type ObjectMover interface {
	EnsureFolder(ctx context.Context, folder string) error
	Move(ctx context.Context, folder, key string) (storage.Moved, error)
	Location(folder string) string
}

type StatusStore interface {
	Load(ctx context.Context, rowNumber int) (*db.MigrationRecord, error)
	Save(ctx context.Context, rec db.MigrationRecord) error
}

// TokenFunc returns the unique suffix of a new folder name.
type TokenFunc func() string

type Options struct {
	DryRun bool
	Token  TokenFunc
	// Status defaults to an in-memory store.
	Status StatusStore
}

type Migrator struct {
	sheet  Sheet
	mover  ObjectMover
	status StatusStore
	token  TokenFunc
	dryRun bool
	log    *zap.Logger
}

func New(sheet Sheet, mover ObjectMover, log *zap.Logger, opts Options) *Migrator {
	if opts.Token == nil {
		opts.Token = uuid.NewString
	}
	if opts.Status == nil {
		opts.Status = db.NewMemoryStatusStore()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Migrator{
		sheet:  sheet,
		mover:  mover,
		status: opts.Status,
		token:  opts.Token,
		dryRun: opts.DryRun,
		log:    log,
	}
}

// Run reads the whole sheet once and migrates data rows one after another.
// Row failures are logged and skipped; fatal kinds and cancellation end the run.
func (m *Migrator) Run(ctx context.Context) (Summary, error) {
	rows, err := m.sheet.ReadRows(ctx)
	if err != nil {
		merr := newError(KindSheetRead, "read rows", 0, "", err)
		m.log.Error("cannot read sheet", zap.String("kind", merr.Kind.String()), zap.Error(merr))
		return Summary{}, merr
	}

	var sum Summary
	if len(rows) > 1 {
		sum.DataRows = len(rows) - 1
	}
	m.log.Info("found data rows", zap.Int("rows", sum.DataRows), zap.Bool("dry_run", m.dryRun))

	for i := 1; i < len(rows); i++ {
		if err := ctx.Err(); err != nil {
			sum.Aborted = true
			m.log.Warn("migration interrupted", zap.Int("next_row", i+1), zap.Error(err))
			return sum, fmt.Errorf("interrupted before row %d: %w", i+1, err)
		}

		out, err := m.MigrateRow(ctx, i, rows[i])
		sum.Objects = append(sum.Objects, out.Objects...)
		switch {
		case err != nil:
			sum.Failed++
			m.log.Error("row failed",
				zap.Int("row", i+1),
				zap.String("kind", KindOf(err).String()),
				zap.Error(err),
			)
			if IsFatal(err) {
				sum.Aborted = true
				return sum, err
			}
		case out.Skipped:
			sum.Skipped++
		case m.dryRun:
			sum.Planned++
		default:
			sum.Migrated++
		}
	}

	m.log.Info("migration complete",
		zap.Int("rows", sum.DataRows),
		zap.Int("migrated", sum.Migrated),
		zap.Int("skipped", sum.Skipped),
		zap.Int("failed", sum.Failed),
		zap.Int("planned", sum.Planned),
	)
	return sum, nil
}

// MigrateRow handles the row at index (0 is the header).
func (m *Migrator) MigrateRow(ctx context.Context, index int, cells []string) (RowOutcome, error) {
	unit, reason, ok := Select(index, cells)
	if !ok {
		m.log.Info("skipping row", zap.Int("row", index+1), zap.String("reason", reason))
		return RowOutcome{Row: index + 1, Skipped: true, Reason: reason}, nil
	}

	if m.dryRun {
		return m.plan(unit), nil
	}

	rec, err := m.status.Load(ctx, unit.Row)
	if err != nil {
		return RowOutcome{Row: unit.Row}, newError(KindState, "load status", unit.Row, "", err)
	}
	// A sheet-updated record whose cell now lists files again describes a new
	// upload that may reuse old names, so it gets a fresh folder.
	if rec != nil && rec.Folder != "" && rec.Status != db.StatusSheetUpdated && rec.SameFiles(unit.Files) {
		unit.Folder = rec.Folder
		m.log.Info("resuming row",
			zap.Int("row", unit.Row),
			zap.String("folder", unit.Folder),
			zap.String("status", string(rec.Status)),
			zap.Int("already_moved", len(rec.Moved)),
		)
	} else {
		unit.Folder = FolderName(unit.Team, m.token())
		rec = &db.MigrationRecord{
			Row:    unit.Row,
			Status: db.StatusNotStarted,
			Folder: unit.Folder,
			Files:  unit.Files,
		}
	}

	out := RowOutcome{Row: unit.Row, Folder: unit.Folder}
	if err := m.migrate(ctx, unit, rec, &out); err != nil {
		rec.LastError = err.Error()
		if saveErr := m.status.Save(ctx, *rec); saveErr != nil {
			m.log.Warn("cannot record row failure", zap.Int("row", unit.Row), zap.Error(saveErr))
		}
		return out, err
	}
	return out, nil
}

func (m *Migrator) migrate(ctx context.Context, unit Unit, rec *db.MigrationRecord, out *RowOutcome) error {
	if rec.Status != db.StatusFilesMoved {
		if err := m.moveFiles(ctx, unit, rec, out); err != nil {
			return err
		}
	}

	location := m.mover.Location(unit.Folder)
	if err := m.sheet.WriteCell(ctx, unit.Row, ColFiles, location); err != nil {
		return newError(KindSheetUpdate, "update sheet", unit.Row, "", err)
	}
	out.Location = location

	rec.Status = db.StatusSheetUpdated
	rec.LastError = ""
	if err := m.status.Save(ctx, *rec); err != nil {
		return newError(KindState, "save status", unit.Row, "", err)
	}

	m.log.Info("row migrated", zap.Int("row", unit.Row), zap.String("location", location))
	return nil
}

// moveFiles stops at the first failing file; files after it are not attempted.
func (m *Migrator) moveFiles(ctx context.Context, unit Unit, rec *db.MigrationRecord, out *RowOutcome) error {
	rec.Status = db.StatusPending
	rec.LastError = ""
	if err := m.status.Save(ctx, *rec); err != nil {
		return newError(KindState, "save status", unit.Row, "", err)
	}

	m.log.Info("moving files",
		zap.Int("row", unit.Row),
		zap.String("name", unit.Name),
		zap.String("team", unit.Team),
		zap.Int("files", len(unit.Files)),
		zap.String("folder", unit.Folder),
	)
	if err := m.mover.EnsureFolder(ctx, unit.Folder); err != nil {
		return newError(KindTransfer, "ensure folder", unit.Row, "", err)
	}

	for _, key := range unit.Files {
		result := ObjectResult{
			Row:       unit.Row,
			Team:      unit.Team,
			Folder:    unit.Folder,
			SourceKey: key,
			DestKey:   storage.DestKey(unit.Folder, key),
		}
		if rec.HasMoved(key) {
			result.Status = ObjectAlreadyMoved
			out.Objects = append(out.Objects, result)
			continue
		}

		m.log.Debug("moving object", zap.Int("row", unit.Row), zap.String("key", key), zap.String("dest", result.DestKey))
		moved, err := m.mover.Move(ctx, unit.Folder, key)
		if err != nil {
			merr := newError(KindTransfer, "move object", unit.Row, key, err)
			result.Status = ObjectFailed
			result.Error = merr.Error()
			out.Objects = append(out.Objects, result)
			return merr
		}
		result.Status = ObjectMoved
		if moved.Recovered {
			result.Status = ObjectRecovered
			m.log.Info("object already at destination", zap.Int("row", unit.Row), zap.String("key", key))
		}
		out.Objects = append(out.Objects, result)

		rec.Moved = append(rec.Moved, key)
		if err := m.status.Save(ctx, *rec); err != nil {
			return newError(KindState, "save status", unit.Row, key, err)
		}
	}

	rec.Status = db.StatusFilesMoved
	if err := m.status.Save(ctx, *rec); err != nil {
		return newError(KindState, "save status", unit.Row, "", err)
	}
	return nil
}

func (m *Migrator) plan(unit Unit) RowOutcome {
	unit.Folder = FolderName(unit.Team, m.token())
	out := RowOutcome{Row: unit.Row, Folder: unit.Folder, Location: m.mover.Location(unit.Folder)}
	for _, key := range unit.Files {
		out.Objects = append(out.Objects, ObjectResult{
			Row:       unit.Row,
			Team:      unit.Team,
			Folder:    unit.Folder,
			SourceKey: key,
			DestKey:   storage.DestKey(unit.Folder, key),
			Status:    ObjectPlanned,
		})
	}
	m.log.Info("dry run: would move files",
		zap.Int("row", unit.Row),
		zap.String("folder", unit.Folder),
		zap.Strings("files", unit.Files),
		zap.String("location", out.Location),
	)
	return out
}
