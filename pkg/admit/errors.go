package admit

import "errors"

var (
	// ErrInvalidPlanType is returned for an unparsable plan string.
	ErrInvalidPlanType = errors.New("invalid plan type")

	// ErrInvalidAmount is returned for negative credit amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrStoreUnavailable is returned when no store is configured.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrUnauthorizedOperator is returned when a credit adjustment is
	// attempted by an operator not on the allow list.
	ErrUnauthorizedOperator = errors.New("operator not authorized")
)
