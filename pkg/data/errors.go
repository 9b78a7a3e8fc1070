package data

import (
	"errors"
	"strings"
)

var (
	// ErrStorageUnavailable is returned once the offline store could not be
	// opened even after recreating it. The handle stays in that state for
	// the rest of the process.
	ErrStorageUnavailable = errors.New("offline storage unavailable")

	ErrNotFound = errors.New("not found")

	// ErrCorrupt marks open or runtime failures that mean the database
	// file is unreadable and must be recreated.
	ErrCorrupt = errors.New("offline storage corrupt")

	// ErrSchemaVersion is a store written by a newer release. It is left
	// alone rather than recreated.
	ErrSchemaVersion = errors.New("offline storage schema is newer than supported")
)

// Signatures of a file DuckDB cannot make sense of. Generic IO errors are
// not here: a held lock or a full disk says nothing about the file.
var corruptionMarkers = []string{
	"not a valid duckdb database",
	"corrupt",
	"invalid database",
	"checksum",
}

// Failures that may mention IO but leave the file intact.
var transientMarkers = []string{
	"could not set lock",
	"conflicting lock",
	"no space left",
	"disk full",
	"permission denied",
	"too many open files",
	"resource temporarily unavailable",
}

// IsCorruption reports whether err means the database file is in an
// unreadable or invalid state.
func IsCorruption(err error) bool {
	if err == nil || errors.Is(err, ErrSchemaVersion) {
		return false
	}
	if errors.Is(err, ErrCorrupt) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return false
		}
	}
	for _, marker := range corruptionMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
