// Package transport defines the downward interfaces the hfp package needs
// from whatever carries HFP's bytes: an RFCOMM channel and a synchronous
// (SCO/eSCO) audio link. Concrete adapters live in transport/serial and
// transport/tcp; production Bluetooth stacks satisfy these interfaces
// directly from their own RFCOMM/SCO implementations.
package transport

// Address is a 6-byte Bluetooth device address, kept independent of the
// hfp package's own Address type so this package has no import-cycle
// dependency back on hfp.
type Address [6]byte

// RFCOMMCID identifies one RFCOMM channel endpoint.
type RFCOMMCID uint16

// SCOHandle identifies one synchronous link. Zero means "none".
type SCOHandle uint16

// RFCOMM is the byte-oriented serial channel HFP runs above. Send must
// not block past the point of handing bytes to the OS/driver send queue;
// callers check CanSend before producing output and re-try once
// RFCOMMHandler.Writable fires.
type RFCOMM interface {
	Send(cid RFCOMMCID, data []byte) error
	CanSend(cid RFCOMMCID) bool
}

// Dialer is the optional outbound-connection capability of an RFCOMM
// transport. Transports that can initiate a channel to a peer implement it
// alongside RFCOMM; the resulting channel is reported through the usual
// RFCOMMHandler.Opened callback, the same as an inbound one.
type Dialer interface {
	Connect(peer Address, channel uint8) error
}

// RFCOMMHandler receives RFCOMM channel lifecycle and data events.
type RFCOMMHandler interface {
	Opened(cid RFCOMMCID, peer Address, channel uint8)
	Data(cid RFCOMMCID, data []byte)
	Closed(cid RFCOMMCID)
	Writable(cid RFCOMMCID)
}

// SyncLink is the synchronous (SCO/eSCO) audio link operation set: open
// with a codec hint, and close. Audio sample transport itself is out of
// scope here.
type SyncLink interface {
	Open(peer Address, codec uint8) error
	Close(handle SCOHandle) error
}

// SyncLinkHandler receives synchronous-link lifecycle events.
type SyncLinkHandler interface {
	Opened(peer Address, handle SCOHandle)
	OpenFailed(peer Address)
	Closed(handle SCOHandle)
}
