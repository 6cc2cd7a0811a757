package hfp

import (
	"fmt"

	"github.com/zb3/gofp/atparse"
)

// codecPhase is the tagged variant driving codec negotiation.
type codecPhase int

const (
	codecIdle codecPhase = iota
	codecReceivedList
	codecReceivedTrigger
	codecAGSentCommonCodec
	codecAGResendCommonCodec
	codecExchanged
	codecError
)

type codecState struct {
	state     codecPhase
	suggested uint8
	confirmed uint8
}

// HandleCodecLine advances the codec-negotiation state machine, AG role.
// It is only invoked once the SLC handshake has reached the point where
// codec negotiation is relevant; bytes outside that window are routed to
// HandleSLCLine instead.
func (c *Connection) HandleCodecLine(ev atparse.Event) slcOutcome {
	switch ev.Command {
	case atparse.CmdAvailableCodecs:
		if ev.IsSet {
			if len(ev.Items) > MaxListLen {
				c.Codec = codecState{}
				return slcOutcome{Lines: []string{"ERROR"}}
			}
			codecs := make([]uint8, 0, len(ev.Items))
			for _, item := range ev.Items {
				v, err := parseUint(item)
				if err != nil {
					c.Codec = codecState{}
					return slcOutcome{Lines: []string{"ERROR"}}
				}
				codecs = append(codecs, uint8(v))
			}
			c.RemoteCodecs = codecs
			c.Codec.state = codecReceivedList
			return slcOutcome{Lines: []string{"OK"}}
		}

	case atparse.CmdTriggerCodecConnection:
		c.Codec.state = codecReceivedTrigger
		codec := c.selectCommonCodec()
		if codec == 0 {
			c.Codec.state = codecError
			return slcOutcome{Lines: []string{"ERROR"}}
		}
		c.Codec.suggested = codec
		c.Codec.state = codecAGSentCommonCodec
		return slcOutcome{Lines: []string{fmt.Sprintf("+BCS:%d", codec)}}

	case atparse.CmdConfirmCommonCodec:
		v, err := parseUint(firstItem(ev))
		if err != nil {
			c.Codec = codecState{}
			return slcOutcome{Lines: []string{"ERROR"}}
		}
		confirmed := uint8(v)
		c.Codec.confirmed = confirmed
		if confirmed == c.Codec.suggested {
			c.Codec.state = codecExchanged
			return slcOutcome{
				Lines:  []string{"OK"},
				Events: []Event{{Subtype: EventCodecsConnectionComplete, Address: c.Address, Codec: confirmed}},
			}
		}
		if c.codecAcceptable(confirmed) {
			c.Codec.suggested = confirmed
			c.Codec.state = codecAGResendCommonCodec
			return slcOutcome{Lines: []string{"OK", fmt.Sprintf("+BCS:%d", confirmed)}}
		}
		c.Codec.state = codecError
		return slcOutcome{Lines: []string{"ERROR"}}
	}

	// Any unexpected message reverts to IDLE and clears the pending
	// suggestion.
	c.Codec = codecState{}
	return slcOutcome{}
}

// NegotiatedCodec returns the codec the audio connection should use: the
// codec-negotiation result if EXCHANGED, else CVSD by default.
func (c *Connection) NegotiatedCodec() uint8 {
	if c.Codec.state == codecExchanged {
		return c.Codec.confirmed
	}
	return CodecCVSD
}

// selectCommonCodec picks the highest-priority codec present in both the
// AG's advertised codec list (priority = declared order) and the HF's
// remote codec list.
func (c *Connection) selectCommonCodec() uint8 {
	for _, agCodec := range c.LocalCodecs {
		for _, remote := range c.RemoteCodecs {
			if agCodec == remote {
				return agCodec
			}
		}
	}
	return 0
}

func (c *Connection) codecAcceptable(codec uint8) bool {
	for _, agCodec := range c.LocalCodecs {
		if agCodec == codec {
			return true
		}
	}
	return false
}
