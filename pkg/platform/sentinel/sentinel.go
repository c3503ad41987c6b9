package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and adapters return these
// (optionally wrapped) and services translate them into domain errors.
//
//   - ErrNotFound: the record does not exist
//   - ErrConflict: a unique key (document id, verification code, content hash) is taken
//   - ErrInvalidState: the record is not in the state the transition requires
//   - ErrUnavailable: the backing store or provider cannot be reached in time
//
// Validation failures belong in pkg/domain-errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
