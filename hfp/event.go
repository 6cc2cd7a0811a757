package hfp

// EventSubtype distinguishes the host events a Stack surfaces, mirroring
// the wire subtype byte that would follow HCI_EVENT_HFP_META in the
// framed form (see package hfp/hciadapter for that framing).
type EventSubtype int

const (
	EventSLCEstablished EventSubtype = iota
	EventSLCReleased
	EventCodecsConnectionComplete
	EventAudioConnectionEstablished
	EventAudioConnectionReleased
	EventStartRinging
	EventStopRinging
	EventCallTerminated
	EventExtendedAudioGatewayError
)

func (e EventSubtype) String() string {
	switch e {
	case EventSLCEstablished:
		return "SLC_ESTABLISHED"
	case EventSLCReleased:
		return "SLC_RELEASED"
	case EventCodecsConnectionComplete:
		return "CODECS_CONNECTION_COMPLETE"
	case EventAudioConnectionEstablished:
		return "AUDIO_CONNECTION_ESTABLISHED"
	case EventAudioConnectionReleased:
		return "AUDIO_CONNECTION_RELEASED"
	case EventStartRinging:
		return "START_RINGING"
	case EventStopRinging:
		return "STOP_RINGING"
	case EventCallTerminated:
		return "CALL_TERMINATED"
	case EventExtendedAudioGatewayError:
		return "EXTENDED_AUDIO_GATEWAY_ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event is a single host-facing notification. Status is non-zero on
// failure; Codec and ErrorCode are only meaningful for the event
// subtypes that carry them.
type Event struct {
	Subtype   EventSubtype
	Status    uint8
	Address   Address
	RFCOMMCID RFCOMMCID
	Codec     uint8
	ErrorCode uint8
}

// EventHandler receives every Event a Stack produces. It replaces a
// single C-style callback-function-pointer idiom with a Go interface;
// wire framing of events into HCI_EVENT_HFP_META byte sequences is left
// to package hfp/hciadapter.
type EventHandler interface {
	HandleHFPEvent(Event)
}

// EventHandlerFunc adapts a plain function to EventHandler.
type EventHandlerFunc func(Event)

func (f EventHandlerFunc) HandleHFPEvent(ev Event) { f(ev) }
