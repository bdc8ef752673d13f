package storage

import "errors"

// Storage error constants
var (
	// ErrCaseNotFound is returned when no archived case has the requested UUID
	ErrCaseNotFound = errors.New("case not found")

	// ErrInvalidCategory is returned for indicator categories that have no whitelist
	ErrInvalidCategory = errors.New("indicator category cannot be whitelisted")

	// ErrDatabaseClosed is returned when attempting to use a closed database connection
	ErrDatabaseClosed = errors.New("database is closed")

	// ErrConnectionUnavailable is returned when a store was created without a live connection
	ErrConnectionUnavailable = errors.New("connection not available")
)
