package migrate

// Object statuses reported per attempted file.
const (
	ObjectMoved        = "moved"
	ObjectRecovered    = "recovered"
	ObjectAlreadyMoved = "already_moved"
	ObjectFailed       = "failed"
	ObjectPlanned      = "planned"
)

type ObjectResult struct {
	Row       int
	Team      string
	Folder    string
	SourceKey string
	DestKey   string
	Status    string
	Error     string
}

// RowOutcome is what happened to one row.
type RowOutcome struct {
	Row      int
	Skipped  bool
	Reason   string
	Folder   string
	Location string
	Objects  []ObjectResult
}

type Summary struct {
	DataRows int
	Migrated int
	Skipped  int
	Failed   int
	Planned  int
	// Aborted is set when a fatal error or cancellation stopped the run early.
	Aborted bool
	Objects []ObjectResult
}
