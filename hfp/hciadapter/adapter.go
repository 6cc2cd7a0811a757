// Package hciadapter frames hfp.Event values into the
// HCI_EVENT_HFP_META byte sequence a Bluetooth host controller interface
// would expect, keeping that wire concern out of the hfp package core:
// event framing on the wire is a separate adapter concern, not a core
// concept.
package hciadapter

import "github.com/zb3/gofp/hfp"

// HCIEventHFPMeta is the vendor/profile meta-event code this adapter
// frames every hfp.Event under.
const HCIEventHFPMeta = 0xE5

// Encode renders ev as an HCI event packet: event code, parameter
// length, meta-subevent code, subtype byte, status byte, then the
// address/codec/error payload fields that apply to that subtype.
func Encode(ev hfp.Event) []byte {
	payload := []byte{
		HCIEventHFPMeta,
		byte(ev.Subtype),
		ev.Status,
	}
	payload = append(payload, ev.Address[:]...)
	switch ev.Subtype {
	case hfp.EventCodecsConnectionComplete, hfp.EventAudioConnectionEstablished:
		payload = append(payload, ev.Codec)
	case hfp.EventExtendedAudioGatewayError:
		payload = append(payload, ev.ErrorCode)
	}

	out := make([]byte, 0, len(payload)+2)
	out = append(out, 0xFF) // HCI event code placeholder for a vendor-specific event
	out = append(out, byte(len(payload)))
	out = append(out, payload...)
	return out
}

// Decode parses bytes produced by Encode back into an hfp.Event. It
// reports ok=false if data is too short or malformed to be one of our
// framed events.
func Decode(data []byte) (ev hfp.Event, ok bool) {
	if len(data) < 2 {
		return hfp.Event{}, false
	}
	length := int(data[1])
	if len(data) < 2+length {
		return hfp.Event{}, false
	}
	payload := data[2 : 2+length]
	if len(payload) < 3+6 || payload[0] != HCIEventHFPMeta {
		return hfp.Event{}, false
	}
	ev.Subtype = hfp.EventSubtype(payload[1])
	ev.Status = payload[2]
	copy(ev.Address[:], payload[3:9])
	rest := payload[9:]
	switch ev.Subtype {
	case hfp.EventCodecsConnectionComplete, hfp.EventAudioConnectionEstablished:
		if len(rest) > 0 {
			ev.Codec = rest[0]
		}
	case hfp.EventExtendedAudioGatewayError:
		if len(rest) > 0 {
			ev.ErrorCode = rest[0]
		}
	}
	return ev, true
}
