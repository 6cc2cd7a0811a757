package hfp

// callPhase is the tagged variant driving call-control.
type callPhase int

const (
	callIdle callPhase = iota
	callTriggerAudioConnection
	callW4AudioConnection
	callRing
	callW4Answer
	callTransferCallStatus
	callTransferCallSetupStatus
	callActive
)

// Callsetup indicator values, GSM 07.07 / HFP v1.7.
const (
	CallSetupNone               = 0
	CallSetupIncoming           = 1
	CallSetupOutgoingDialing    = 2
	CallSetupOutgoingAlerting   = 3
)

type callState struct {
	state    callPhase
	outgoing bool
}

// callOutcome bundles the lines, events and action intents a call
// transition produces. Actions are one-shot requests the Stack must act
// on (e.g. establishing the audio connection), replacing a persistent
// boolean flag on the context with an explicit return value.
type callOutcome struct {
	Events           []Event
	RequestAudio     bool
	RequestAudioDown bool
}

// IncomingCall implements the host-initiated incoming-call transition.
func (c *Connection) IncomingCall() callOutcome {
	if c.Call.state != callIdle {
		return callOutcome{}
	}
	c.AGIndicators.UpdateStatus(IndicatorCallSetup, CallSetupIncoming)
	if c.inBandRingSupported() {
		c.Call.state = callTriggerAudioConnection
		return callOutcome{RequestAudio: true}
	}
	c.Call.state = callRing
	return callOutcome{Events: []Event{{Subtype: EventStartRinging, Address: c.Address}}}
}

// OutgoingCall starts an AG-originated call. It is not part of the
// incoming-call transitions above but is one of the host-facing call
// control operations; it is modeled the same way, substituting the
// outgoing-dialing callsetup value for the incoming one. The
// outgoing-alerting value is never set.
func (c *Connection) OutgoingCall() callOutcome {
	if c.Call.state != callIdle {
		return callOutcome{}
	}
	c.Call.outgoing = true
	c.AGIndicators.UpdateStatus(IndicatorCallSetup, CallSetupOutgoingDialing)
	if c.inBandRingSupported() {
		c.Call.state = callTriggerAudioConnection
		return callOutcome{RequestAudio: true}
	}
	c.Call.state = callW4Answer
	return callOutcome{}
}

// CallAudioPending marks the audio-connection request issued to the
// transport, TRIGGER_AUDIO_CONNECTION -> W4_AUDIO_CONNECTION. A no-op when
// the audio request did not originate from a ringing call.
func (c *Connection) CallAudioPending() {
	if c.Call.state == callTriggerAudioConnection {
		c.Call.state = callW4AudioConnection
	}
}

// AudioEstablishedForCall implements the "audio established |
// W4_AUDIO_CONNECTION -> RING" row.
func (c *Connection) AudioEstablishedForCall() callOutcome {
	if c.Call.state != callTriggerAudioConnection && c.Call.state != callW4AudioConnection {
		return callOutcome{}
	}
	c.Call.state = callRing
	return callOutcome{Events: []Event{{Subtype: EventStartRinging, Address: c.Address}}}
}

// Answered implements both the "HF sends ATA" and "host: answer" rows,
// which have identical effects.
func (c *Connection) Answered() callOutcome {
	switch c.Call.state {
	case callRing, callW4Answer:
	default:
		return callOutcome{}
	}
	c.AGIndicators.UpdateStatus(IndicatorCall, 1)
	c.AGIndicators.UpdateStatus(IndicatorCallSetup, CallSetupNone)
	c.Call.state = callTransferCallStatus
	return callOutcome{Events: []Event{{Subtype: EventStopRinging, Address: c.Address}}}
}

// AfterIndicatorFlush implements the "after +CIEV flush |
// TRANSFER_CALL_STATUS -> ACTIVE" row. The Stack calls it once the
// batched +CIEV lines produced by Answered (or by any other transition
// into TRANSFER_CALL_STATUS/TRANSFER_CALLSETUP_STATUS) have been handed
// to its line sender, which either writes them to the transport or, when
// the channel has no send credit, queues them for the next Writable.
func (c *Connection) AfterIndicatorFlush() {
	switch c.Call.state {
	case callTransferCallStatus, callTransferCallSetupStatus:
		c.Call.state = callActive
	}
}

// Terminate implements both the "HF sends +CHUP" and "host: terminate"
// rows, which have identical effects and both apply from any non-IDLE
// state.
func (c *Connection) Terminate() callOutcome {
	if c.Call.state == callIdle {
		return callOutcome{}
	}
	wasRinging := c.Call.state == callRing || c.Call.state == callTriggerAudioConnection || c.Call.state == callW4AudioConnection
	c.AGIndicators.UpdateStatus(IndicatorCall, 0)
	c.AGIndicators.UpdateStatus(IndicatorCallSetup, CallSetupNone)
	c.Call = callState{}
	out := callOutcome{Events: []Event{{Subtype: EventCallTerminated, Address: c.Address}}}
	if wasRinging {
		out.RequestAudioDown = true
	}
	return out
}

// InCall reports whether a call is active or in progress.
func (c *Connection) InCall() bool { return c.Call.state != callIdle }
