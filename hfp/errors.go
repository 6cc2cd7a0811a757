package hfp

import "errors"

// Sentinel errors returned synchronously by the host-facing API, following
// the errors.Is-compatible sentinel-variable idiom also used by
// github.com/pascaldekloe/part5's session.ErrConnLost/ErrNoConn.
var (
	// ErrResourceExhausted is returned when an API call would push a
	// per-connection list (codecs, AG indicators, HF indicators,
	// call-hold services) past its 20-element ceiling, or when the
	// registry is asked to track more connections than configured.
	ErrResourceExhausted = errors.New("hfp: resource exhausted")

	// ErrNoConnection is returned by any per-peer operation when no
	// connection context exists for the given identity.
	ErrNoConnection = errors.New("hfp: no such connection")

	// ErrNotEstablished is returned when an operation that requires an
	// established service-level connection is attempted too early.
	ErrNotEstablished = errors.New("hfp: service level connection not established")

	// ErrNotSupported is returned when the bound transport lacks the
	// capability an operation needs, e.g. outbound dialing on a
	// listen-only transport.
	ErrNotSupported = errors.New("hfp: operation not supported by transport")
)
