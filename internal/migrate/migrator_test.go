package migrate

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ase-101/hackathon/internal/db"
	"github.com/ase-101/hackathon/internal/sheets"
	"github.com/ase-101/hackathon/internal/storage"
	"github.com/ase-101/hackathon/internal/storage/storagetest"
)

const (
	srcBucket  = "uploads"
	destBucket = "submissions"
)

type fakeSheet struct {
	rows     [][]string
	readErr  error
	writeErr error
	writes   map[int]string
}

func newFakeSheet(rows ...[]string) *fakeSheet {
	header := row("Full Name", "Team", "Uploaded Files")
	return &fakeSheet{rows: append([][]string{header}, rows...), writes: map[int]string{}}
}

func (s *fakeSheet) ReadRows(context.Context) ([][]string, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	out := make([][]string, len(s.rows))
	for i, r := range s.rows {
		out[i] = append([]string(nil), r...)
	}
	return out, nil
}

func (s *fakeSheet) WriteCell(_ context.Context, rowNumber, column int, value string) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	r := s.rows[rowNumber-1]
	for len(r) <= column {
		r = append(r, "")
	}
	r[column] = value
	s.rows[rowNumber-1] = r
	s.writes[rowNumber] = value
	return nil
}

type harness struct {
	s3     *storagetest.FakeS3
	sheet  *fakeSheet
	status *db.MemoryStatusStore
	logs   *observer.ObservedLogs
	m      *Migrator
}

func newHarness(t *testing.T, sheet *fakeSheet, opts Options) *harness {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	fake := storagetest.NewFakeS3()
	fake.Seed(srcBucket)
	fake.Seed(destBucket)

	status := db.NewMemoryStatusStore()
	if opts.Status == nil {
		opts.Status = status
	}
	if opts.Token == nil {
		opts.Token = func() string { return "tok1" }
	}
	return &harness{
		s3:     fake,
		sheet:  sheet,
		status: status,
		logs:   logs,
		m:      New(sheet, storage.NewMover(fake, srcBucket, destBucket), zap.New(core), opts),
	}
}

func TestRun_MovesFilesAndRewritesCell(t *testing.T) {
	sheet := newFakeSheet(row("Ada", "Team X", "a.png;b.png"))
	h := newHarness(t, sheet, Options{})
	h.s3.Seed(srcBucket, "a.png", "b.png", "unrelated.png")

	sum, err := h.m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, sum.DataRows)
	assert.Equal(t, 1, sum.Migrated)
	assert.True(t, h.s3.Has(destBucket, "Team_X-tok1/"))
	assert.True(t, h.s3.Has(destBucket, "Team_X-tok1/a.png"))
	assert.True(t, h.s3.Has(destBucket, "Team_X-tok1/b.png"))
	assert.False(t, h.s3.Has(srcBucket, "a.png"))
	assert.False(t, h.s3.Has(srcBucket, "b.png"))
	assert.True(t, h.s3.Has(srcBucket, "unrelated.png"))
	assert.Equal(t, "s3://submissions/Team_X-tok1", sheet.rows[1][ColFiles])

	rec, err := h.status.Load(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, db.StatusSheetUpdated, rec.Status)
	assert.Equal(t, []string{"a.png", "b.png"}, rec.Moved)

	require.Len(t, sum.Objects, 2)
	assert.Equal(t, ObjectMoved, sum.Objects[0].Status)
	assert.Equal(t, "Team_X-tok1/b.png", sum.Objects[1].DestKey)
}

func TestRun_SkipsEmptyAndMigratedRows(t *testing.T) {
	sheet := newFakeSheet(
		row("Ada", "Team X", ""),
		row("Bob", "Team Y", "s3://submissions/Team_Y-old"),
		row("Cy", "Team Z", " ; "),
	)
	h := newHarness(t, sheet, Options{})

	sum, err := h.m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Skipped)
	assert.Empty(t, h.s3.Calls)
	assert.Empty(t, sheet.writes)
	assert.Equal(t, 3, h.logs.FilterMessage("skipping row").Len())
	assert.Equal(t, "no files listed", h.logs.FilterField(zap.Int("row", 4)).All()[0].ContextMap()["reason"])
}

func TestRun_SecondCopyFailsAbortsRow(t *testing.T) {
	sheet := newFakeSheet(
		row("Ada", "Team X", "a.png;b.png;c.png"),
		row("Bob", "Team Y", "d.png"),
	)
	tokens := []string{"tok1", "tok2"}
	h := newHarness(t, sheet, Options{Token: func() string {
		tok := tokens[0]
		tokens = tokens[1:]
		return tok
	}})
	h.s3.Seed(srcBucket, "a.png", "b.png", "c.png", "d.png")
	h.s3.FailCopy = func(_, key string) error {
		if key == "b.png" {
			return errors.New("connection reset by peer")
		}
		return nil
	}

	sum, err := h.m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.Migrated)

	assert.True(t, h.s3.Has(destBucket, "Team_X-tok1/a.png"))
	assert.False(t, h.s3.Has(srcBucket, "a.png"))
	assert.False(t, h.s3.Has(destBucket, "Team_X-tok1/b.png"))
	assert.True(t, h.s3.Has(srcBucket, "b.png"))
	assert.False(t, h.s3.Has(destBucket, "Team_X-tok1/c.png"))
	assert.True(t, h.s3.Has(srcBucket, "c.png"))
	for _, c := range h.s3.Calls {
		assert.NotEqual(t, "Team_X-tok1/c.png", c.Key, "third file must not be attempted")
	}

	assert.Equal(t, "a.png;b.png;c.png", sheet.rows[1][ColFiles])
	assert.Equal(t, "s3://submissions/Team_Y-tok2", sheet.rows[2][ColFiles])

	failed := h.logs.FilterMessage("row failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, int64(2), failed[0].ContextMap()["row"])
	assert.Equal(t, "transfer", failed[0].ContextMap()["kind"])

	rec, err := h.status.Load(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, db.StatusPending, rec.Status)
	assert.Equal(t, []string{"a.png"}, rec.Moved)
	assert.Contains(t, rec.LastError, "b.png")
}

func TestRun_RerunAfterFullMigrationSkipsRow(t *testing.T) {
	sheet := newFakeSheet(row("Ada", "Team X", "a.png"))
	h := newHarness(t, sheet, Options{})
	h.s3.Seed(srcBucket, "a.png")

	_, err := h.m.Run(context.Background())
	require.NoError(t, err)
	callsAfterFirst := len(h.s3.Calls)

	sum, err := h.m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 0, sum.Migrated)
	assert.Len(t, h.s3.Calls, callsAfterFirst)
}

func TestRun_ResumesPartiallyMovedRow(t *testing.T) {
	sheet := newFakeSheet(row("Ada", "Team X", "a.png;b.png;c.png"))
	tokens := []string{"tok1", "tok2"}
	h := newHarness(t, sheet, Options{Token: func() string {
		tok := tokens[0]
		tokens = tokens[1:]
		return tok
	}})
	h.s3.Seed(srcBucket, "a.png", "b.png", "c.png")
	h.s3.FailCopy = func(_, key string) error {
		if key == "b.png" {
			return errors.New("timeout")
		}
		return nil
	}

	_, err := h.m.Run(context.Background())
	require.NoError(t, err)
	require.True(t, h.s3.Has(destBucket, "Team_X-tok1/a.png"))

	h.s3.FailCopy = nil
	sum, err := h.m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Migrated)
	assert.Equal(t, "s3://submissions/Team_X-tok1", sheet.rows[1][ColFiles])
	for _, key := range []string{"a.png", "b.png", "c.png"} {
		assert.True(t, h.s3.Has(destBucket, "Team_X-tok1/"+key), key)
		assert.False(t, h.s3.Has(srcBucket, key), key)
	}
	assert.Equal(t, []string{"tok2"}, tokens, "resumed row must reuse its folder")

	require.Len(t, sum.Objects, 3)
	assert.Equal(t, ObjectAlreadyMoved, sum.Objects[0].Status)
	assert.Equal(t, ObjectMoved, sum.Objects[1].Status)
	assert.Equal(t, 1, h.logs.FilterMessage("resuming row").Len())
}

func TestRun_RecoversObjectMovedWithoutRecord(t *testing.T) {
	sheet := newFakeSheet(row("Ada", "Team X", "a.png;b.png"))
	status := db.NewMemoryStatusStore()
	require.NoError(t, status.Save(context.Background(), db.MigrationRecord{
		Row:    2,
		Status: db.StatusPending,
		Folder: "Team_X-old",
		Files:  []string{"a.png", "b.png"},
	}))
	h := newHarness(t, sheet, Options{Status: status})
	h.s3.Seed(srcBucket, "b.png")
	h.s3.Seed(destBucket, "Team_X-old/a.png")

	sum, err := h.m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Migrated)
	assert.Equal(t, ObjectRecovered, sum.Objects[0].Status)
	assert.Equal(t, ObjectMoved, sum.Objects[1].Status)
	assert.Equal(t, "s3://submissions/Team_X-old", sheet.rows[1][ColFiles])
}

func TestRun_FilesMovedRecordGoesStraightToSheet(t *testing.T) {
	sheet := newFakeSheet(row("Ada", "Team X", "a.png"))
	status := db.NewMemoryStatusStore()
	require.NoError(t, status.Save(context.Background(), db.MigrationRecord{
		Row:    2,
		Status: db.StatusFilesMoved,
		Folder: "Team_X-old",
		Files:  []string{"a.png"},
		Moved:  []string{"a.png"},
	}))
	h := newHarness(t, sheet, Options{Status: status})

	sum, err := h.m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Migrated)
	assert.Empty(t, h.s3.Calls)
	assert.Equal(t, "s3://submissions/Team_X-old", sheet.writes[2])
}

func TestRun_ResetAfterSheetUpdateStartsFresh(t *testing.T) {
	sheet := newFakeSheet(row("Ada", "Team X", "submission.pdf"))
	status := db.NewMemoryStatusStore()
	require.NoError(t, status.Save(context.Background(), db.MigrationRecord{
		Row:    2,
		Status: db.StatusSheetUpdated,
		Folder: "Team_X-old",
		Files:  []string{"submission.pdf"},
		Moved:  []string{"submission.pdf"},
	}))
	h := newHarness(t, sheet, Options{Status: status})
	h.s3.Seed(srcBucket, "submission.pdf")
	h.s3.Seed(destBucket, "Team_X-old/submission.pdf")

	sum, err := h.m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Migrated)
	assert.True(t, h.s3.Has(destBucket, "Team_X-tok1/submission.pdf"))
	assert.False(t, h.s3.Has(srcBucket, "submission.pdf"))
	assert.Equal(t, "s3://submissions/Team_X-tok1", sheet.writes[2])
	assert.Zero(t, h.logs.FilterMessage("resuming row").Len())

	rec, err := status.Load(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "Team_X-tok1", rec.Folder)
	assert.Equal(t, db.StatusSheetUpdated, rec.Status)
}

func TestRun_ChangedFileListStartsFresh(t *testing.T) {
	sheet := newFakeSheet(row("Ada", "Team X", "new.png"))
	status := db.NewMemoryStatusStore()
	require.NoError(t, status.Save(context.Background(), db.MigrationRecord{
		Row:    2,
		Status: db.StatusPending,
		Folder: "Team_X-old",
		Files:  []string{"old.png"},
	}))
	h := newHarness(t, sheet, Options{Status: status})
	h.s3.Seed(srcBucket, "new.png")

	_, err := h.m.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, h.s3.Has(destBucket, "Team_X-tok1/new.png"))
	assert.Equal(t, "s3://submissions/Team_X-tok1", sheet.writes[2])
}

func TestRun_SheetUpdateFailureContinues(t *testing.T) {
	sheet := newFakeSheet(row("Ada", "Team X", "a.png"), row("Bob", "", "b.png"))
	sheet.writeErr = errors.New("quota exceeded")
	h := newHarness(t, sheet, Options{})
	h.s3.Seed(srcBucket, "a.png", "b.png")

	sum, err := h.m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Failed)
	assert.True(t, h.s3.Has(destBucket, "Team_X-tok1/a.png"))
	assert.True(t, h.s3.Has(destBucket, "submission-tok1/b.png"))

	rec, err := h.status.Load(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, db.StatusFilesMoved, rec.Status)

	kinds := h.logs.FilterMessage("row failed").All()
	require.Len(t, kinds, 2)
	assert.Equal(t, "sheet_update", kinds[0].ContextMap()["kind"])
}

func TestRun_ObjectAccessDeniedFailsOnlyThatRow(t *testing.T) {
	sheet := newFakeSheet(row("Ada", "Team X", "gone.png"), row("Bob", "Team Y", "b.png"))
	tokens := []string{"tok1", "tok2"}
	h := newHarness(t, sheet, Options{Token: func() string {
		tok := tokens[0]
		tokens = tokens[1:]
		return tok
	}})
	h.s3.Seed(srcBucket, "b.png")
	h.s3.FailCopy = func(_, key string) error {
		if key == "gone.png" {
			return &smithy.GenericAPIError{Code: "AccessDenied", Message: "Access Denied"}
		}
		return nil
	}

	sum, err := h.m.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, sum.Aborted)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.Migrated)
	assert.Equal(t, "gone.png", sheet.rows[1][ColFiles])
	assert.Equal(t, "s3://submissions/Team_Y-tok2", sheet.rows[2][ColFiles])
	assert.True(t, h.s3.Has(destBucket, "Team_Y-tok2/b.png"))

	failed := h.logs.FilterMessage("row failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, int64(2), failed[0].ContextMap()["row"])
	assert.Equal(t, "transfer", failed[0].ContextMap()["kind"])
}

func TestRun_ProtectedCellFailsOnlyThatRow(t *testing.T) {
	sheet := newFakeSheet(row("Ada", "Team X", "a.png"), row("Bob", "Team Y", "b.png"))
	sheet.writeErr = sheets.ErrForbidden
	h := newHarness(t, sheet, Options{})
	h.s3.Seed(srcBucket, "a.png", "b.png")

	sum, err := h.m.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, sum.Aborted)
	assert.Equal(t, 2, sum.Failed)
	assert.True(t, h.s3.Has(destBucket, "Team_Y-tok1/b.png"))
}

func TestRun_InvalidCredentialsAbortsRun(t *testing.T) {
	sheet := newFakeSheet(row("Ada", "Team X", "a.png"), row("Bob", "Team Y", "b.png"))
	h := newHarness(t, sheet, Options{})
	h.s3.Seed(srcBucket, "a.png", "b.png")
	h.s3.FailCopy = func(string, string) error {
		return &smithy.GenericAPIError{Code: "ExpiredToken", Message: "The provided token has expired."}
	}

	sum, err := h.m.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindAuthentication, KindOf(err))
	assert.True(t, sum.Aborted)
	assert.Equal(t, 1, sum.Failed)
	for _, c := range h.s3.Calls {
		assert.NotEqual(t, "Team_Y-tok1/b.png", c.Key, "rows after a fatal error must not run")
	}
}

func TestRun_SheetReadFailureIsFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
	}{
		{name: "network", err: errors.New("dial tcp: timeout"), kind: KindSheetRead},
		{name: "unauthorized", err: sheets.ErrUnauthorized, kind: KindAuthentication},
		{name: "forbidden", err: sheets.ErrForbidden, kind: KindAuthentication},
		{name: "no such spreadsheet", err: sheets.ErrNotFound, kind: KindConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sheet := newFakeSheet(row("Ada", "Team X", "a.png"))
			sheet.readErr = tt.err
			h := newHarness(t, sheet, Options{})

			_, err := h.m.Run(context.Background())
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
			assert.True(t, IsFatal(err))
			assert.Empty(t, h.s3.Calls)
		})
	}
}

func TestRun_DryRunMakesNoCalls(t *testing.T) {
	sheet := newFakeSheet(row("Ada", "Team X", "a.png;b.png"), row("Bob", "Team Y", ""))
	h := newHarness(t, sheet, Options{DryRun: true})
	h.s3.Seed(srcBucket, "a.png", "b.png")

	sum, err := h.m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Planned)
	assert.Equal(t, 1, sum.Skipped)
	assert.Empty(t, h.s3.Calls)
	assert.Empty(t, sheet.writes)
	require.Len(t, sum.Objects, 2)
	assert.Equal(t, ObjectPlanned, sum.Objects[0].Status)
	assert.Equal(t, "Team_X-tok1/a.png", sum.Objects[0].DestKey)

	rec, err := h.status.Load(context.Background(), 2)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRun_StopsWhenCancelled(t *testing.T) {
	sheet := newFakeSheet(row("Ada", "Team X", "a.png"))
	h := newHarness(t, sheet, Options{})
	h.s3.Seed(srcBucket, "a.png")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := h.m.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, sum.Aborted)
	assert.Empty(t, h.s3.Calls)
}

type failingStatus struct{ db.MemoryStatusStore }

func (f *failingStatus) Save(context.Context, db.MigrationRecord) error {
	return errors.New("table unavailable")
}

func TestRun_StatusFailureIsRowError(t *testing.T) {
	sheet := newFakeSheet(row("Ada", "Team X", "a.png"))
	h := newHarness(t, sheet, Options{Status: &failingStatus{}})
	h.s3.Seed(srcBucket, "a.png")

	sum, err := h.m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.Empty(t, h.s3.Calls)

	failed := h.logs.FilterMessage("row failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "state", failed[0].ContextMap()["kind"])
}
