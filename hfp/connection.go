package hfp

import (
	"github.com/zb3/gofp/atparse"
	"github.com/zb3/gofp/internal/bitfield"
)

// Connection is the per-peer context for one HFP link. It is owned
// exclusively by a Registry; all other code holds it only transiently
// through a Registry lookup or a callback argument, never across a
// suspension point, since the registry may remove it on disconnect.
type Connection struct {
	Address        Address
	Role           Role
	RFCOMMChannel  uint8
	RFCOMMCID      RFCOMMCID
	ACLHandle      uint16
	SCOHandle      SCOHandle
	ServiceUUID    uint16

	SLC   slcState
	Codec codecState
	Audio audioState
	Call  callState

	RemoteFeatures uint32
	LocalFeatures  uint32

	RemoteCodecs []uint8 // HF-advertised codec IDs, up to MaxListLen
	LocalCodecs  []uint8 // AG's advertised codecs, in priority order

	AGIndicators      *IndicatorSet
	GenericIndicators []GenericIndicator
	CallHoldServices  []CallHoldService
	Operator          NetworkOperator

	// RemoteGenericIndicators is the HF-supported generic indicator UUID
	// list received in the AT+BIND write step.
	RemoteGenericIndicators []uint16

	parser atparse.State

	// Pending latches. Each is a distinct one-shot intent, kept separate
	// rather than folded into one bitmap, because each is read and
	// cleared independently by a different state machine. The one-shot
	// call/audio action flags of the original data model are instead
	// returned as explicit callOutcome values.
	inBandRing            bool
	operatorChanged       bool
	extendedErrorsEnabled bool

	// pendingLines buffers output produced while the RFCOMM channel had
	// no send credit; the Stack drains it on the next Writable event.
	pendingLines []string
}

// NewConnection builds a fresh context for addr in the given role, seeded
// from cfg. It is the sole constructor; Stack.Opened is its only caller.
func NewConnection(addr Address, role Role, cfg *Config) (*Connection, error) {
	indicators, err := NewIndicatorSet(cfg.AGIndicators)
	if err != nil {
		return nil, err
	}
	if len(cfg.Codecs) > MaxListLen || len(cfg.HFIndicators) > MaxListLen || len(cfg.CallHoldServices) > MaxListLen {
		return nil, ErrResourceExhausted
	}
	generic := make([]GenericIndicator, len(cfg.HFIndicators))
	copy(generic, cfg.HFIndicators)

	holds := make([]CallHoldService, len(cfg.CallHoldServices))
	copy(holds, cfg.CallHoldServices)

	return &Connection{
		Address:           addr,
		Role:              role,
		RFCOMMChannel:     cfg.RFCOMMChannelNr,
		ServiceUUID:       cfg.ServiceUUID,
		LocalFeatures:     cfg.SupportedFeatures,
		LocalCodecs:       append([]uint8(nil), cfg.Codecs...),
		AGIndicators:      indicators,
		GenericIndicators: generic,
		CallHoldServices:  holds,
	}, nil
}

// codecNegotiationSupported reports whether both sides advertise the
// codec-negotiation feature bit, a precondition for the SLC handshake's
// codec step and for audio's entry precondition.
func (c *Connection) codecNegotiationSupported() bool {
	local := bitfield.GetBit(c.LocalFeatures, localCodecBit(c.Role))
	remote := bitfield.GetBit(c.RemoteFeatures, remoteCodecBit(c.Role))
	return local && remote
}

func (c *Connection) threeWaySupported() bool {
	local := bitfield.GetBit(c.LocalFeatures, localThreeWayBit(c.Role))
	remote := bitfield.GetBit(c.RemoteFeatures, remoteThreeWayBit(c.Role))
	return local && remote
}

func (c *Connection) hfIndicatorsSupported() bool {
	local := bitfield.GetBit(c.LocalFeatures, localHFIndicatorsBit(c.Role))
	remote := bitfield.GetBit(c.RemoteFeatures, remoteHFIndicatorsBit(c.Role))
	return local && remote
}

// inBandRingSupported reports whether this connection should route a
// ringing call through the audio-connection state machine before
// notifying the HF. For the AG role this is the host's
// own set_use_in_band_ring_tone choice (and only meaningful if the AG
// also advertises the capability); for an HF-role connection it instead
// reflects what the AG advertised.
func (c *Connection) inBandRingSupported() bool {
	if c.Role == RoleAG {
		return c.inBandRing && bitfield.GetBit(c.LocalFeatures, AGBitInBandRingTone)
	}
	return bitfield.GetBit(c.RemoteFeatures, AGBitInBandRingTone)
}

// localCodecBit/remoteCodecBit and their three-way/HF-indicator siblings
// pick the correct bit position for whichever side of the exchange the
// local/remote features bitmap represents, given the connection's role.
func localCodecBit(r Role) int {
	if r == RoleAG {
		return AGBitCodecNegotiation
	}
	return HFBitCodecNegotiation
}

func remoteCodecBit(r Role) int {
	if r == RoleAG {
		return HFBitCodecNegotiation
	}
	return AGBitCodecNegotiation
}

func localThreeWayBit(r Role) int {
	if r == RoleAG {
		return AGBitThreeWayCalling
	}
	return HFBitThreeWayCalling
}

func remoteThreeWayBit(r Role) int {
	if r == RoleAG {
		return HFBitThreeWayCalling
	}
	return AGBitThreeWayCalling
}

func localHFIndicatorsBit(r Role) int {
	if r == RoleAG {
		return AGBitHFIndicators
	}
	return HFBitHFIndicators
}

func remoteHFIndicatorsBit(r Role) int {
	if r == RoleAG {
		return HFBitHFIndicators
	}
	return AGBitHFIndicators
}

// TransportLost forces every sub-state-machine to its terminal IDLE value
// and returns the release events that must be emitted for a transport-lost
// connection. The caller (Stack) removes the connection from the registry
// after emitting these.
func (c *Connection) TransportLost() []Event {
	var events []Event

	if c.Audio.state != audioIdle {
		c.Audio = audioState{}
		events = append(events, Event{Subtype: EventAudioConnectionReleased, Status: 1, Address: c.Address})
	}
	if c.Call.state != callIdle {
		c.Call = callState{}
		events = append(events, Event{Subtype: EventCallTerminated, Status: 1, Address: c.Address})
	}
	if c.SLC.state != slcIdle {
		status := uint8(0)
		if c.SLC.state != slcEstablished {
			status = 1
		}
		c.SLC = slcState{}
		events = append(events, Event{Subtype: EventSLCReleased, Status: status, Address: c.Address})
	}
	c.Codec = codecState{}
	return events
}
