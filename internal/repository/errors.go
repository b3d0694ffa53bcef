package repository

import "errors"

var (
	// ErrSeqConflict means the store advanced past the sequence the ledger
	// expected, i.e. another writer committed against the same store.
	ErrSeqConflict = errors.New("store sequence conflict")
	ErrCorruptData = errors.New("corrupt stored value")
)
