package chain

import "errors"

// Sentinel errors for gateway interactions. Callers branch on these with
// errors.Is; the wrapped detail carries the gateway's own message.
var (
	// ErrGatewayRejected is returned when the gateway answers with a non-2xx
	// status or an error field in the response body.
	ErrGatewayRejected = errors.New("gateway rejected transaction")

	// ErrMalformedResponse is returned when a 2xx response is missing the
	// fields the client expects.
	ErrMalformedResponse = errors.New("malformed gateway response")
)
