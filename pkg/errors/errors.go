package errors

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrEmptyKey     = errors.New("empty key")
	ErrInvalidData  = errors.New("invalid data type")
	ErrEntityExists = errors.New("entity already exists")

	ErrInvalidConfig     = errors.New("invalid training configuration")
	ErrDimensionMismatch = errors.New("parameter dimensionality mismatch")
	ErrUnknownWorker     = errors.New("worker is not part of the cohort")
	ErrAlreadyReported   = errors.New("worker already reported this round")
	ErrEmptyCohort       = errors.New("cohort is empty")
)
