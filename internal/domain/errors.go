package domain

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrMalformedEvent marks a decoded log that fails a required-field
	// check. It signals an ABI/contract mismatch and halts the projector
	// rather than letting it silently corrupt derived state.
	ErrMalformedEvent = errors.New("malformed event")

	// ErrUnresolvableAddress marks a log with no attributable contract
	// address. It is the only locally-recoverable normalization failure:
	// the event is dropped with a warning and the stream continues.
	ErrUnresolvableAddress = errors.New("unresolvable source address")

	// ErrNoSale is returned when a token has no SaleConfig to aggregate.
	ErrNoSale = errors.New("no sale configured")
)
