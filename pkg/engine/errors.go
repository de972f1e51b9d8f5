// File: pkg/engine/errors.go
package engine

import "errors"

// Engine-level failure classes. Exchange transport and credential failures are
// classified by the exchange package; these cover order-level rejections.
var (
	// ErrValidation marks an order that fails exchange filters and could not
	// be auto-adjusted. Recoverable; reported with a reason, never fatal.
	ErrValidation = errors.New("order validation failed")

	// ErrInsufficientBalance marks an order exceeding available funds. No
	// state is mutated.
	ErrInsufficientBalance = errors.New("insufficient balance")
)
