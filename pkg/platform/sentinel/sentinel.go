package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally wrapped)
// so services can translate them into domain errors.
//
// These represent factual states about rows, not validation failures:
//   - ErrNotFound: row does not exist, or a referenced row is missing (FK violation)
//   - ErrConflict: unique or primary key collision (edge pair, vocabulary title, live etag)
//   - ErrInvalidState: a database CHECK or validation function rejected the row
//   - ErrUnavailable: backing service temporarily unavailable
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
