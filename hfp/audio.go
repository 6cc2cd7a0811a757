package hfp

// audioPhase drives the synchronous-link (SCO/eSCO) lifecycle.
type audioPhase int

const (
	audioIdle audioPhase = iota
	audioW2ConnectSCO
	audioW4SCOConnected
	audioEstablished
	audioW2DisconnectSCO
	audioW4SCODisconnected
)

type audioState struct {
	state audioPhase
}

// CanEstablishAudio checks the entry precondition for opening audio: the
// SLC must be established, and codec negotiation must either be
// unsupported or have reached EXCHANGED.
func (c *Connection) CanEstablishAudio() bool {
	if !c.SLC.Established() {
		return false
	}
	if c.codecNegotiationSupported() && c.Codec.state != codecExchanged {
		return false
	}
	return true
}

// RequestAudioConnection begins opening the synchronous link. The caller
// (Stack) is responsible for actually invoking the transport's SCO-open
// operation once this returns true.
func (c *Connection) RequestAudioConnection() bool {
	if c.Audio.state != audioIdle || !c.CanEstablishAudio() {
		return false
	}
	c.Audio.state = audioW2ConnectSCO
	return true
}

// AudioConnecting marks the SCO open request as sent to the transport.
func (c *Connection) AudioConnecting() {
	if c.Audio.state == audioW2ConnectSCO {
		c.Audio.state = audioW4SCOConnected
	}
}

// AudioConnected handles a successful SCO-open transport event.
func (c *Connection) AudioConnected(handle SCOHandle) Event {
	c.SCOHandle = handle
	c.Audio.state = audioEstablished
	return Event{Subtype: EventAudioConnectionEstablished, Address: c.Address, Codec: c.NegotiatedCodec()}
}

// AudioConnectFailed handles a failed SCO-open transport event.
func (c *Connection) AudioConnectFailed() Event {
	c.Audio.state = audioIdle
	return Event{Subtype: EventAudioConnectionReleased, Status: 1, Address: c.Address}
}

// RequestAudioRelease begins tearing down the synchronous link, from
// either side.
func (c *Connection) RequestAudioRelease() bool {
	if c.Audio.state != audioEstablished {
		return false
	}
	c.Audio.state = audioW2DisconnectSCO
	return true
}

// AudioDisconnecting marks the SCO close request as sent to the
// transport.
func (c *Connection) AudioDisconnecting() {
	if c.Audio.state == audioW2DisconnectSCO {
		c.Audio.state = audioW4SCODisconnected
	}
}

// AudioDisconnected handles a SCO-disconnected transport event, which per
// always drives back to IDLE regardless of the previous
// state.
func (c *Connection) AudioDisconnected() Event {
	wasUp := c.Audio.state != audioIdle
	c.Audio = audioState{}
	c.SCOHandle = 0
	status := uint8(0)
	if !wasUp {
		status = 1
	}
	return Event{Subtype: EventAudioConnectionReleased, Status: status, Address: c.Address}
}

// AudioEstablished reports whether the synchronous link is up.
func (c *Connection) AudioEstablished() bool { return c.Audio.state == audioEstablished }
