package db

import "errors"

var (
	ErrPathRequired = errors.New("db: database path is required")
	ErrClosed       = errors.New("db: database is closed")
	ErrRunNotFound  = errors.New("db: run not found")
	ErrInvalidRun   = errors.New("db: invalid run record")
	ErrAmbiguousID  = errors.New("db: run id prefix matches more than one run")
)
