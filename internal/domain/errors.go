package domain

import "errors"

var (
	// ErrInvalidInput marks a contract violation by the caller: malformed
	// series, negative prices or market caps, invalid configuration.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDataQuality marks input that is well-formed but too sparse or short
	// to support the requested computation.
	ErrDataQuality = errors.New("insufficient data quality")

	// ErrNumericalInstability marks a singular covariance matrix, a
	// non-converging solver, or a non-finite intermediate.
	ErrNumericalInstability = errors.New("numerical instability")
)
