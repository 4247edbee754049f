package database

import "errors"

var (
	// ErrDatabaseNotFound is returned by Open when the database file is
	// missing and CreateIfNotExists is false.
	ErrDatabaseNotFound = errors.New("database not found")

	// ErrRunNotFound is returned when a run ID does not exist.
	ErrRunNotFound = errors.New("run not found")

	// ErrNoResult is returned by SaveRun when given a nil result.
	ErrNoResult = errors.New("no crawl result to save")
)
