package quota

import "errors"

var (
	// ErrQuotaExceeded indicates the daily free-use budget for a feature is
	// spent. Also returned when the consume write fails: a freemium gate
	// fails closed on writes so storage faults can never mint extra uses.
	ErrQuotaExceeded = errors.New("quota: daily limit exceeded")

	// ErrInvalidLimit indicates a non-positive daily limit.
	ErrInvalidLimit = errors.New("quota: daily limit must be positive")
)
