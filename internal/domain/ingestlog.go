package domain

import "time"

// IngestLogEntry records the ingestion outcome for one source object.
// At most one entry exists per SourceObjectID; its presence (success or
// failure) means the incremental run will not pick the object up again.
type IngestLogEntry struct {
	SourceObjectID   string
	SourceModifiedAt time.Time
	// RowsIngested is nil until the row count is known, which includes
	// objects that failed before any rows were written.
	RowsIngested *int
	// ErrorText is non-nil only on a terminal per-object failure or when
	// rows had to be skipped.
	ErrorText   *string
	ProcessedAt time.Time
}
