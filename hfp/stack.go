// Package hfp implements the Audio Gateway side of the Bluetooth
// Hands-Free Profile: the Service Level Connection handshake, codec
// negotiation, the synchronous audio link, and call control, all driven
// over an RFCOMM byte channel supplied by the transport package. A
// Connection records a Role and picks feature bits by it, but the Stack
// creates only AG-role connections and no Hands-Free side of the
// handshake is implemented.
package hfp

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/zb3/gofp/atparse"
	"github.com/zb3/gofp/transport"
)

// Config is the sole input to New/Stack construction: every setting is
// passed explicitly at call time rather than read from package-level
// globals.
type Config struct {
	RFCOMMChannelNr   uint8
	ServiceUUID       uint16
	SupportedFeatures uint32
	Codecs            []uint8
	AGIndicators      []Indicator
	HFIndicators      []GenericIndicator
	CallHoldServices  []CallHoldService
	MaxConnections    int // 0 = unbounded
}

// Stack is the host-facing HFP Audio Gateway. It is single-threaded
// cooperative: every method, and every transport callback
// delivered to it, must run on the same goroutine.
type Stack struct {
	cfg      Config
	registry *Registry
	rfcomm   transport.RFCOMM
	sync     transport.SyncLink
	handler  EventHandler
	log      *log.Logger
}

// New builds a Stack bound to the given transport. rfcomm and sco may be
// nil in tests that only drive the parser/state machines directly.
func New(cfg Config, rfcomm transport.RFCOMM, sco transport.SyncLink) *Stack {
	return &Stack{
		cfg:      cfg,
		registry: NewRegistry(cfg.MaxConnections),
		rfcomm:   rfcomm,
		sync:     sco,
		handler:  EventHandlerFunc(func(Event) {}),
		log:      log.Default(),
	}
}

// SetTransport binds (or rebinds) the transport a Stack sends AT lines
// and synchronous-link requests through. It exists because a transport
// adapter that itself needs a transport.RFCOMMHandler (tcp.Listener,
// serial.Channel) can only be constructed after the Stack it will serve,
// creating an unavoidable two-phase wiring order.
func (s *Stack) SetTransport(rfcomm transport.RFCOMM, sco transport.SyncLink) {
	s.rfcomm = rfcomm
	s.sync = sco
}

// SetLogger overrides the default logger, e.g. to attach a prefix per
// connected device.
func (s *Stack) SetLogger(l *log.Logger) { s.log = l }

// RegisterPacketHandler implements the upward API's
// register_packet_handler.
func (s *Stack) RegisterPacketHandler(h EventHandler) { s.handler = h }

func (s *Stack) emit(conn *Connection, events []Event) {
	for _, ev := range events {
		ev.RFCOMMCID = conn.RFCOMMCID
		s.log.Debug("hfp event", "subtype", ev.Subtype, "status", ev.Status, "addr", ev.Address)
		s.handler.HandleHFPEvent(ev)
	}
}

// EstablishServiceLevelConnection implements the upward API's
// establish_service_level_connection. On a transport that can initiate an
// outbound RFCOMM connection (transport.Dialer) it dials the peer's HFP
// channel; the SLC handshake itself then proceeds over the usual
// Opened/Data callbacks, exactly as for an inbound connection, since the
// HF side drives the AT exchange either way. Idempotent for peers that
// already have a connection context.
func (s *Stack) EstablishServiceLevelConnection(addr Address) error {
	if _, ok := s.registry.ByAddress(addr); ok {
		return nil
	}
	d, ok := s.rfcomm.(transport.Dialer)
	if !ok {
		return ErrNotSupported
	}
	return d.Connect(transport.Address(addr), s.cfg.RFCOMMChannelNr)
}

// ReleaseServiceLevelConnection implements release_service_level_connection.
// It is idempotent: if the RFCOMM channel is already gone, cleanup is
// immediate.
func (s *Stack) ReleaseServiceLevelConnection(addr Address) error {
	conn, ok := s.registry.ByAddress(addr)
	if !ok {
		return nil
	}
	events := conn.TransportLost()
	s.registry.Remove(conn.RFCOMMCID)
	s.emit(conn, events)
	return nil
}

// EstablishAudioConnection implements establish_audio_connection.
func (s *Stack) EstablishAudioConnection(addr Address) error {
	conn, ok := s.registry.ByAddress(addr)
	if !ok {
		return ErrNoConnection
	}
	return s.requestAudio(conn)
}

func (s *Stack) requestAudio(conn *Connection) error {
	if !conn.RequestAudioConnection() {
		return ErrNotEstablished
	}
	conn.AudioConnecting()
	conn.CallAudioPending()
	if s.sync == nil {
		return nil
	}
	if err := s.sync.Open(transport.Address(conn.Address), conn.NegotiatedCodec()); err != nil {
		s.emit(conn, []Event{conn.AudioConnectFailed()})
		return err
	}
	return nil
}

// ReleaseAudioConnection implements release_audio_connection.
func (s *Stack) ReleaseAudioConnection(addr Address) error {
	conn, ok := s.registry.ByAddress(addr)
	if !ok {
		return ErrNoConnection
	}
	if !conn.RequestAudioRelease() {
		return nil
	}
	conn.AudioDisconnecting()
	if s.sync != nil {
		return s.sync.Close(transport.SCOHandle(conn.SCOHandle))
	}
	return nil
}

// IncomingCall implements incoming_call() for the connection to addr.
func (s *Stack) IncomingCall(addr Address) error {
	conn, ok := s.registry.ByAddress(addr)
	if !ok {
		return ErrNoConnection
	}
	return s.applyCallOutcome(conn, conn.IncomingCall())
}

// OutgoingCall implements outgoing_call(number). The dialed number is not
// retained by this stack (no dialed-number indicator is modeled; a host
// that needs it can track it alongside the Address key itself).
func (s *Stack) OutgoingCall(addr Address, number string) error {
	conn, ok := s.registry.ByAddress(addr)
	if !ok {
		return ErrNoConnection
	}
	return s.applyCallOutcome(conn, conn.OutgoingCall())
}

// AnswerCall implements answer_call().
func (s *Stack) AnswerCall(addr Address) error {
	conn, ok := s.registry.ByAddress(addr)
	if !ok {
		return ErrNoConnection
	}
	return s.applyCallOutcome(conn, conn.Answered())
}

// TerminateCall implements terminate_call().
func (s *Stack) TerminateCall(addr Address) error {
	conn, ok := s.registry.ByAddress(addr)
	if !ok {
		return ErrNoConnection
	}
	return s.applyCallOutcome(conn, conn.Terminate())
}

func (s *Stack) applyCallOutcome(conn *Connection, out callOutcome) error {
	s.emit(conn, out.Events)
	s.flushIndicators(conn)
	if out.RequestAudio {
		return s.requestAudio(conn)
	}
	if out.RequestAudioDown {
		_ = s.ReleaseAudioConnection(conn.Address)
	}
	return nil
}

// flushIndicators transmits +CIEV for every pending indicator update, in
// index order, then advances the call state machine past
// TRANSFER_CALL_STATUS/TRANSFER_CALLSETUP_STATUS, matching the
// "after +CIEV flush" row.
func (s *Stack) flushIndicators(conn *Connection) {
	updates := conn.AGIndicators.PendingUpdates()
	for _, ind := range updates {
		s.sendLine(conn, fmt.Sprintf("+CIEV:%d,%d", ind.Index, ind.Status))
	}
	if len(updates) > 0 {
		conn.AfterIndicatorFlush()
	}
}

// SetUseInBandRingTone implements set_use_in_band_ring_tone(bool). It is
// idempotent: calling it twice with the same value is equivalent to
// calling it once.
func (s *Stack) SetUseInBandRingTone(addr Address, use bool) error {
	conn, ok := s.registry.ByAddress(addr)
	if !ok {
		return ErrNoConnection
	}
	conn.inBandRing = use
	return nil
}

// SetOperatorName implements set_operator_name(name), truncated to 16
// characters, the wire limit for an operator name.
func (s *Stack) SetOperatorName(addr Address, name string) error {
	conn, ok := s.registry.ByAddress(addr)
	if !ok {
		return ErrNoConnection
	}
	if len(name) > 16 {
		name = name[:16]
	}
	conn.Operator.Name = name
	conn.operatorChanged = true
	return nil
}

// ReportExtendedAudioGatewayError implements
// report_extended_audio_gateway_error(code).
func (s *Stack) ReportExtendedAudioGatewayError(addr Address, code uint8) error {
	conn, ok := s.registry.ByAddress(addr)
	if !ok {
		return ErrNoConnection
	}
	if !conn.extendedErrorsEnabled {
		return nil
	}
	s.sendLine(conn, fmt.Sprintf("+CME ERROR:%d", code))
	s.emit(conn, []Event{{Subtype: EventExtendedAudioGatewayError, Address: addr, ErrorCode: code}})
	return nil
}

// sendLine queues line behind any already-buffered output, or transmits it
// immediately when the channel has send credit. Buffered lines drain from
// Writable, preserving per-connection order.
func (s *Stack) sendLine(conn *Connection, line string) {
	if s.rfcomm == nil {
		return
	}
	cid := transport.RFCOMMCID(conn.RFCOMMCID)
	if len(conn.pendingLines) > 0 || !s.rfcomm.CanSend(cid) {
		conn.pendingLines = append(conn.pendingLines, line)
		return
	}
	_ = s.rfcomm.Send(cid, []byte(line+"\r\n"))
}

// --- transport.RFCOMMHandler ---

// Opened handles an inbound RFCOMM channel opening on the HFP channel
// number: a new AG-role Connection is created and registered.
func (s *Stack) Opened(cid transport.RFCOMMCID, peer transport.Address, channel uint8) {
	conn, err := NewConnection(Address(peer), RoleAG, &s.cfg)
	if err != nil {
		s.log.Warn("rejecting inbound HFP connection", "err", err)
		return
	}
	conn.ACLHandle = 0
	if err := s.registry.Add(RFCOMMCID(cid), conn); err != nil {
		s.log.Warn("registry full, rejecting inbound HFP connection", "err", err)
	}
}

// Data feeds received bytes through the parser and the relevant state
// machines, one byte at a time.
func (s *Stack) Data(cid transport.RFCOMMCID, data []byte) {
	conn, ok := s.registry.ByCID(RFCOMMCID(cid))
	if !ok {
		return
	}
	for _, b := range data {
		ev, done := conn.parser.Feed(b)
		if !done {
			continue
		}
		s.dispatch(conn, ev)
	}
}

func (s *Stack) dispatch(conn *Connection, ev atparse.Event) {
	switch {
	case ev.Command == atparse.CmdCallAnswered:
		// OK for the command first, then the unsolicited +CIEV updates.
		s.sendLine(conn, "OK")
		s.applyCallOutcome(conn, conn.Answered())
		return
	case ev.Command == atparse.CmdHangUpCall:
		s.sendLine(conn, "OK")
		s.applyCallOutcome(conn, conn.Terminate())
		return
	case ev.Command == atparse.CmdUpdateIndividualIndicator:
		s.handleBIA(conn, ev)
		return
	case ev.Command == atparse.CmdExtendedErrorEnable:
		s.handleCMEE(conn, ev)
		return
	}

	if !conn.SLC.Established() {
		out := conn.HandleSLCLine(ev)
		s.applyOutcome(conn, out)
		return
	}

	switch ev.Command {
	case atparse.CmdAvailableCodecs, atparse.CmdTriggerCodecConnection, atparse.CmdConfirmCommonCodec:
		out := conn.HandleCodecLine(ev)
		s.applyOutcome(conn, out)
		return
	case atparse.CmdOperatorSelection:
		s.handleCOPS(conn, ev)
		return
	}

	s.sendLine(conn, "ERROR")
}

// handleCOPS serves the network-operator exchange: AT+COPS=3,0 selects the
// long-alphanumeric name format for subsequent reads, AT+COPS? reads the
// current operator record.
func (s *Stack) handleCOPS(conn *Connection, ev atparse.Event) {
	switch {
	case ev.IsSet:
		if len(ev.Items) < 2 {
			s.sendLine(conn, "ERROR")
			return
		}
		mode, err := parseUint(ev.Items[0])
		if err != nil || mode != 3 {
			// Only the set-format form is served; the AG does not
			// support manual operator selection.
			s.sendLine(conn, "ERROR")
			return
		}
		format, err := parseUint(ev.Items[1])
		if err != nil {
			s.sendLine(conn, "ERROR")
			return
		}
		conn.Operator.Format = int(format)
		s.sendLine(conn, "OK")
	case ev.IsQuery:
		s.sendLine(conn, fmt.Sprintf("+COPS:%d,%d,\"%s\"", conn.Operator.Mode, conn.Operator.Format, conn.Operator.Name))
		s.sendLine(conn, "OK")
		conn.operatorChanged = false
	default:
		s.sendLine(conn, "ERROR")
	}
}

func (s *Stack) applyOutcome(conn *Connection, out slcOutcome) {
	for _, line := range out.Lines {
		s.sendLine(conn, line)
	}
	s.emit(conn, out.Events)
}

func (s *Stack) handleBIA(conn *Connection, ev atparse.Event) {
	for i, item := range ev.Items {
		if item == "" {
			continue // empty slot: leave this indicator's enabled state unchanged
		}
		v, err := parseUint(item)
		if err != nil {
			s.sendLine(conn, "ERROR")
			return
		}
		conn.AGIndicators.SetEnabledAt(i+1, v != 0)
	}
	s.sendLine(conn, "OK")
}

func (s *Stack) handleCMEE(conn *Connection, ev atparse.Event) {
	v, err := parseUint(firstItem(ev))
	if err != nil {
		s.sendLine(conn, "ERROR")
		return
	}
	conn.extendedErrorsEnabled = v != 0
	s.sendLine(conn, "OK")
}

// Closed handles RFCOMM channel closure: the connection is torn down and
// a release event is emitted for whichever sub-state-machines were up.
func (s *Stack) Closed(cid transport.RFCOMMCID) {
	conn, ok := s.registry.ByCID(RFCOMMCID(cid))
	if !ok {
		return
	}
	events := conn.TransportLost()
	s.registry.Remove(RFCOMMCID(cid))
	s.emit(conn, events)
}

// Writable drains any output buffered while the channel had no send
// credit, stopping again as soon as the transport back-pressures.
func (s *Stack) Writable(cid transport.RFCOMMCID) {
	conn, ok := s.registry.ByCID(RFCOMMCID(cid))
	if !ok {
		return
	}
	for len(conn.pendingLines) > 0 && s.rfcomm.CanSend(cid) {
		line := conn.pendingLines[0]
		conn.pendingLines = conn.pendingLines[1:]
		_ = s.rfcomm.Send(cid, []byte(line+"\r\n"))
	}
}

// --- transport.SyncLinkHandler ---

// SCOOpened handles a successful synchronous-link transport event.
func (s *Stack) SCOOpened(peer transport.Address, handle transport.SCOHandle) {
	conn, ok := s.registry.ByAddress(Address(peer))
	if !ok {
		return
	}
	s.registry.BindSCOHandle(conn, SCOHandle(handle))
	ev := conn.AudioConnected(SCOHandle(handle))
	s.emit(conn, []Event{ev})
	s.applyCallOutcome(conn, conn.AudioEstablishedForCall())
}

// SCOOpenFailed handles a failed synchronous-link transport event.
func (s *Stack) SCOOpenFailed(peer transport.Address) {
	conn, ok := s.registry.ByAddress(Address(peer))
	if !ok {
		return
	}
	s.emit(conn, []Event{conn.AudioConnectFailed()})
}

// SCOClosed handles a synchronous-link disconnect transport event, which
// always drives the audio state machine back to IDLE regardless of its
// previous state.
func (s *Stack) SCOClosed(handle transport.SCOHandle) {
	conn, ok := s.registry.BySCOHandle(SCOHandle(handle))
	if !ok {
		return
	}
	s.registry.UnbindSCOHandle(conn)
	ev := conn.AudioDisconnected()
	s.emit(conn, []Event{ev})
}

// Connection looks up a tracked connection by peer address, for hosts
// that want to inspect state directly (tests, CLI status commands).
func (s *Stack) Connection(addr Address) (*Connection, bool) {
	return s.registry.ByAddress(addr)
}

// SyncLinkEvents adapts a Stack to transport.SyncLinkHandler, whose
// Opened/Closed method names collide with the Stack's own RFCOMMHandler
// methods.
type SyncLinkEvents struct{ Stack *Stack }

func (e SyncLinkEvents) Opened(peer transport.Address, handle transport.SCOHandle) {
	e.Stack.SCOOpened(peer, handle)
}

func (e SyncLinkEvents) OpenFailed(peer transport.Address) { e.Stack.SCOOpenFailed(peer) }

func (e SyncLinkEvents) Closed(handle transport.SCOHandle) { e.Stack.SCOClosed(handle) }

var (
	_ transport.RFCOMMHandler   = (*Stack)(nil)
	_ transport.SyncLinkHandler = SyncLinkEvents{}
)
