package hfp_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zb3/gofp/hfp"
	"github.com/zb3/gofp/transport"
)

// fakeRFCOMM is an in-memory transport.RFCOMM recording every line sent to
// each channel, standing in for a real RFCOMM link so tests can drive a
// Stack without opening a real serial port.
type fakeRFCOMM struct {
	mu      sync.Mutex
	lines   map[transport.RFCOMMCID][]string
	blocked bool
}

func newFakeRFCOMM() *fakeRFCOMM {
	return &fakeRFCOMM{lines: make(map[transport.RFCOMMCID][]string)}
}

func (f *fakeRFCOMM) Send(cid transport.RFCOMMCID, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := string(data)
	for len(s) > 0 {
		i := indexCRLF(s)
		if i < 0 {
			break
		}
		f.lines[cid] = append(f.lines[cid], s[:i])
		s = s[i+2:]
	}
	return nil
}

func (f *fakeRFCOMM) CanSend(transport.RFCOMMCID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.blocked
}

func (f *fakeRFCOMM) setBlocked(blocked bool) {
	f.mu.Lock()
	f.blocked = blocked
	f.mu.Unlock()
}

func (f *fakeRFCOMM) take(cid transport.RFCOMMCID) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.lines[cid]
	f.lines[cid] = nil
	return out
}

func indexCRLF(s string) int {
	for i := 0; i+1 < len(s); i++ {
		if s[i] == '\r' && s[i+1] == '\n' {
			return i
		}
	}
	return -1
}

// fakeSync is an in-memory transport.SyncLink recording every open/close
// request; tests drive its lifecycle events back into the Stack by hand to
// simulate the real audio transport reporting SCO up/down.
type fakeSync struct {
	mu     sync.Mutex
	opens  []uint8
	closes []transport.SCOHandle
}

func (f *fakeSync) Open(peer transport.Address, codec uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens = append(f.opens, codec)
	return nil
}

func (f *fakeSync) Close(handle transport.SCOHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes = append(f.closes, handle)
	return nil
}

func feedLine(stack *hfp.Stack, cid transport.RFCOMMCID, line string) {
	stack.Data(cid, []byte(line+"\r\n"))
}

func baseConfig(features uint32, codecs []uint8) hfp.Config {
	return hfp.Config{
		RFCOMMChannelNr:   1,
		ServiceUUID:       0x111F,
		SupportedFeatures: features,
		Codecs:            codecs,
		AGIndicators: []hfp.Indicator{
			{Name: hfp.IndicatorCall, Min: 0, Max: 1, Mandatory: true, Enabled: true},
			{Name: hfp.IndicatorCallSetup, Min: 0, Max: 3, Mandatory: true, Enabled: true},
			{Name: hfp.IndicatorCallHeld, Min: 0, Max: 2, Mandatory: true, Enabled: true},
		},
	}
}

func collectEvents(stack *hfp.Stack) *[]hfp.Event {
	events := &[]hfp.Event{}
	stack.RegisterPacketHandler(hfp.EventHandlerFunc(func(ev hfp.Event) {
		*events = append(*events, ev)
	}))
	return events
}

var testAddr = hfp.Address{1, 2, 3, 4, 5, 6}
var testPeer = transport.Address{1, 2, 3, 4, 5, 6}

func establishSLC(t *testing.T, stack *hfp.Stack, rf *fakeRFCOMM, cid transport.RFCOMMCID, remoteFeatures uint32, codecs []string) {
	t.Helper()
	stack.Opened(cid, testPeer, 1)

	feedLine(stack, cid, fmtBRSF(remoteFeatures))
	lines := rf.take(cid)
	require.Len(t, lines, 2)
	assert.Equal(t, "OK", lines[1])

	if len(codecs) > 0 {
		feedLine(stack, cid, "AT+BAC="+join(codecs))
		lines = rf.take(cid)
		require.Equal(t, []string{"OK"}, lines)
	}

	feedLine(stack, cid, "AT+CIND=?")
	lines = rf.take(cid)
	require.Len(t, lines, 2)
	assert.Equal(t, "OK", lines[1])

	feedLine(stack, cid, "AT+CIND?")
	lines = rf.take(cid)
	require.Len(t, lines, 2)
	assert.Equal(t, "OK", lines[1])

	feedLine(stack, cid, "AT+CMER=3,0,0,1")
	lines = rf.take(cid)
	require.NotEmpty(t, lines)
	assert.Equal(t, "OK", lines[0])
}

func fmtBRSF(features uint32) string {
	return "AT+BRSF=" + itoa(features)
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var digits []byte
	for v > 0 {
		digits = append([]byte{byte('0' + v%10)}, digits...)
		v /= 10
	}
	return string(digits)
}

func join(items []string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}

// Scenario 1: SLC establishes with no codec negotiation, no three-way
// calling and no HF indicators advertised by either side.
func TestSLCWithoutCodecNegotiation(t *testing.T) {
	rf := newFakeRFCOMM()
	stack := hfp.New(baseConfig(0, nil), rf, nil)
	events := collectEvents(stack)

	establishSLC(t, stack, rf, 1, 0, nil)

	require.Len(t, *events, 1)
	assert.Equal(t, hfp.EventSLCEstablished, (*events)[0].Subtype)
	assert.Equal(t, uint8(0), (*events)[0].Status)

	conn, ok := stack.Connection(testAddr)
	require.True(t, ok)
	assert.True(t, connSLCEstablished(conn))
}

// Scenario 2: SLC establishes with codec negotiation advertised by both
// sides, including the AT+BAC exchange.
func TestSLCWithCodecNegotiation(t *testing.T) {
	rf := newFakeRFCOMM()
	cfg := baseConfig(1<<hfp.AGBitCodecNegotiation, []uint8{hfp.CodecCVSD, hfp.CodecMSBC})
	stack := hfp.New(cfg, rf, nil)
	events := collectEvents(stack)

	stack.Opened(1, testPeer, 1)
	feedLine(stack, 1, "AT+BRSF="+itoa(1<<hfp.HFBitCodecNegotiation))
	lines := rf.take(1)
	require.Len(t, lines, 2)
	assert.Equal(t, "+BRSF:512", lines[0])

	feedLine(stack, 1, "AT+BAC=1,2")
	assert.Equal(t, []string{"OK"}, rf.take(1))

	feedLine(stack, 1, "AT+CIND=?")
	rf.take(1)
	feedLine(stack, 1, "AT+CIND?")
	rf.take(1)
	feedLine(stack, 1, "AT+CMER=3,0,0,1")
	lines = rf.take(1)
	require.NotEmpty(t, lines)
	assert.Equal(t, "OK", lines[0])

	require.Len(t, *events, 1)
	assert.Equal(t, hfp.EventSLCEstablished, (*events)[0].Subtype)
}

// Scenario 3: once SLC and codec negotiation have both completed, an
// audio (SCO) connection can be established and the host is notified when
// the transport reports it up.
func TestAudioConnectionAfterCodecExchange(t *testing.T) {
	rf := newFakeRFCOMM()
	sync := &fakeSync{}
	cfg := baseConfig(1<<hfp.AGBitCodecNegotiation, []uint8{hfp.CodecCVSD, hfp.CodecMSBC})
	stack := hfp.New(cfg, rf, sync)
	events := collectEvents(stack)

	establishSLC(t, stack, rf, 1, 1<<hfp.HFBitCodecNegotiation, nil)
	*events = nil

	feedLine(stack, 1, "AT+BAC=1,2")
	rf.take(1)
	feedLine(stack, 1, "AT+BCC")
	lines := rf.take(1)
	require.Equal(t, []string{"+BCS:1"}, lines)
	feedLine(stack, 1, "AT+BCS=1")
	assert.Equal(t, []string{"OK"}, rf.take(1))

	require.Len(t, *events, 1)
	assert.Equal(t, hfp.EventCodecsConnectionComplete, (*events)[0].Subtype)
	assert.Equal(t, uint8(hfp.CodecCVSD), (*events)[0].Codec)
	*events = nil

	require.NoError(t, stack.EstablishAudioConnection(testAddr))
	require.Len(t, sync.opens, 1)
	assert.Equal(t, uint8(hfp.CodecCVSD), sync.opens[0])

	stack.SCOOpened(testPeer, 9)
	require.Len(t, *events, 1)
	assert.Equal(t, hfp.EventAudioConnectionEstablished, (*events)[0].Subtype)
}

// Scenario 4: an incoming call with in-band ring tone enabled routes
// through the audio connection before ringing starts; the HF answers with
// ATA, the call goes active, and the HF hangs up via AT+CHUP.
func TestIncomingCallInBandRingAnswerThenHFHangsUp(t *testing.T) {
	rf := newFakeRFCOMM()
	sync := &fakeSync{}
	cfg := baseConfig(1<<hfp.AGBitInBandRingTone, nil)
	stack := hfp.New(cfg, rf, sync)
	events := collectEvents(stack)

	establishSLC(t, stack, rf, 1, 0, nil)
	require.NoError(t, stack.SetUseInBandRingTone(testAddr, true))
	*events = nil

	require.NoError(t, stack.IncomingCall(testAddr))
	require.Len(t, sync.opens, 1)
	assert.Equal(t, []string{"+CIEV:2,1"}, rf.take(1))

	stack.SCOOpened(testPeer, 7)
	subtypes := takeSubtypes(events)
	assert.Contains(t, subtypes, hfp.EventAudioConnectionEstablished)
	assert.Contains(t, subtypes, hfp.EventStartRinging)

	feedLine(stack, 1, "ATA")
	assert.Equal(t, []string{"OK", "+CIEV:1,1", "+CIEV:2,0"}, rf.take(1))
	assert.Contains(t, takeSubtypes(events), hfp.EventStopRinging)

	feedLine(stack, 1, "AT+CHUP")
	assert.Equal(t, []string{"OK", "+CIEV:1,0"}, rf.take(1))
	assert.Contains(t, takeSubtypes(events), hfp.EventCallTerminated)
}

// takeSubtypes drains the collected events, returning their subtypes.
func takeSubtypes(events *[]hfp.Event) []hfp.EventSubtype {
	out := make([]hfp.EventSubtype, 0, len(*events))
	for _, ev := range *events {
		out = append(out, ev.Subtype)
	}
	*events = nil
	return out
}

// Scenario 5: an incoming call without in-band ring rings immediately, the
// host answers, and the host (not the HF) terminates the active call.
func TestIncomingCallThenAGTerminates(t *testing.T) {
	rf := newFakeRFCOMM()
	stack := hfp.New(baseConfig(0, nil), rf, nil)
	events := collectEvents(stack)

	establishSLC(t, stack, rf, 1, 0, nil)
	*events = nil

	require.NoError(t, stack.IncomingCall(testAddr))
	require.Len(t, *events, 1)
	assert.Equal(t, hfp.EventStartRinging, (*events)[0].Subtype)
	assert.Equal(t, []string{"+CIEV:2,1"}, rf.take(1))
	*events = nil

	require.NoError(t, stack.AnswerCall(testAddr))
	assert.Equal(t, []string{"+CIEV:1,1", "+CIEV:2,0"}, rf.take(1))
	assert.Contains(t, takeSubtypes(events), hfp.EventStopRinging)

	require.NoError(t, stack.TerminateCall(testAddr))
	assert.Equal(t, []string{"+CIEV:1,0"}, rf.take(1))
	assert.Contains(t, takeSubtypes(events), hfp.EventCallTerminated)
}

// Scenario 6: a garbled line in the middle of the SLC handshake produces
// ERROR and leaves the parser, and the SLC step it interrupted, ready to
// retry on the next well-formed line.
func TestParserResilienceMidSLC(t *testing.T) {
	rf := newFakeRFCOMM()
	stack := hfp.New(baseConfig(0, nil), rf, nil)

	stack.Opened(1, testPeer, 1)
	feedLine(stack, 1, "AT+BRSF=0")
	rf.take(1)

	feedLine(stack, 1, "GARBAGE")
	lines := rf.take(1)
	require.Equal(t, []string{"ERROR"}, lines)

	feedLine(stack, 1, "AT+CIND=?")
	lines = rf.take(1)
	require.Len(t, lines, 2)
	assert.Equal(t, "OK", lines[1])
}

func connSLCEstablished(conn *hfp.Connection) bool {
	return conn.SLC.Established()
}

// The full SLC pipeline with codec negotiation, three-way calling and HF
// generic status indicators all mutually supported: every step of the
// handshake, in order, with the exact response lines.
func TestSLCFullPipeline(t *testing.T) {
	rf := newFakeRFCOMM()
	agFeatures := uint32(1<<hfp.AGBitThreeWayCalling | 1<<hfp.AGBitCodecNegotiation | 1<<hfp.AGBitHFIndicators)
	hfFeatures := uint32(1<<hfp.HFBitThreeWayCalling | 1<<hfp.HFBitCodecNegotiation | 1<<hfp.HFBitHFIndicators)
	cfg := baseConfig(agFeatures, []uint8{hfp.CodecCVSD, hfp.CodecMSBC})
	cfg.CallHoldServices = []hfp.CallHoldService{{Token: "0"}, {Token: "1"}, {Token: "2"}}
	cfg.HFIndicators = append([]hfp.GenericIndicator(nil), hfp.DefaultGenericIndicators...)
	stack := hfp.New(cfg, rf, nil)
	events := collectEvents(stack)

	stack.Opened(1, testPeer, 1)

	feedLine(stack, 1, fmtBRSF(hfFeatures))
	assert.Equal(t, []string{"+BRSF:" + itoa(agFeatures), "OK"}, rf.take(1))

	feedLine(stack, 1, "AT+BAC=1,2")
	assert.Equal(t, []string{"OK"}, rf.take(1))

	feedLine(stack, 1, "AT+CIND=?")
	assert.Equal(t, []string{
		`+CIND:("call",(0,1)),("callsetup",(0,3)),("callheld",(0,2))`,
		"OK",
	}, rf.take(1))

	feedLine(stack, 1, "AT+CIND?")
	assert.Equal(t, []string{"+CIND:0,0,0", "OK"}, rf.take(1))

	feedLine(stack, 1, "AT+CMER=3,0,0,1")
	assert.Equal(t, []string{"OK"}, rf.take(1))

	feedLine(stack, 1, "AT+CHLD=?")
	assert.Equal(t, []string{"+CHLD:(0,1,2)", "OK"}, rf.take(1))

	feedLine(stack, 1, "AT+BIND=1,2")
	assert.Equal(t, []string{"OK"}, rf.take(1))

	feedLine(stack, 1, "AT+BIND=?")
	assert.Equal(t, []string{"+BIND:(1,2)", "OK"}, rf.take(1))

	require.Empty(t, *events)
	feedLine(stack, 1, "AT+BIND?")
	assert.Equal(t, []string{"+BIND:1,0", "+BIND:2,1", "OK"}, rf.take(1))

	require.Len(t, *events, 1)
	assert.Equal(t, hfp.EventSLCEstablished, (*events)[0].Subtype)
	assert.Equal(t, uint8(0), (*events)[0].Status)

	conn, ok := stack.Connection(testAddr)
	require.True(t, ok)
	assert.Equal(t, []uint16{1, 2}, conn.RemoteGenericIndicators)
}

// +CIEV is only emitted for indicators whose individual enable bit is
// still set; AT+BIA with an empty slot leaves that indicator unchanged.
func TestBIADisablesIndicatorUpdates(t *testing.T) {
	rf := newFakeRFCOMM()
	stack := hfp.New(baseConfig(0, nil), rf, nil)
	events := collectEvents(stack)

	establishSLC(t, stack, rf, 1, 0, nil)
	*events = nil

	// Leave "call" (slot 1) alone, disable "callsetup" (slot 2).
	feedLine(stack, 1, "AT+BIA=,0,")
	assert.Equal(t, []string{"OK"}, rf.take(1))

	require.NoError(t, stack.IncomingCall(testAddr))
	assert.Contains(t, takeSubtypes(events), hfp.EventStartRinging)
	assert.Empty(t, rf.take(1), "no +CIEV for a disabled indicator")

	require.NoError(t, stack.AnswerCall(testAddr))
	assert.Equal(t, []string{"+CIEV:1,1"}, rf.take(1), "call stays enabled")
}

// The network-operator exchange: the HF selects the long-alphanumeric
// format, then reads the name the host set.
func TestOperatorNameQuery(t *testing.T) {
	rf := newFakeRFCOMM()
	stack := hfp.New(baseConfig(0, nil), rf, nil)

	establishSLC(t, stack, rf, 1, 0, nil)
	require.NoError(t, stack.SetOperatorName(testAddr, "TestNet"))

	feedLine(stack, 1, "AT+COPS=3,0")
	assert.Equal(t, []string{"OK"}, rf.take(1))

	feedLine(stack, 1, "AT+COPS?")
	assert.Equal(t, []string{`+COPS:0,0,"TestNet"`, "OK"}, rf.take(1))
}

// Output produced while the channel has no send credit is buffered on the
// connection and drained, in order, by the next writability notification.
func TestOutputBuffersUntilWritable(t *testing.T) {
	rf := newFakeRFCOMM()
	stack := hfp.New(baseConfig(0, nil), rf, nil)

	establishSLC(t, stack, rf, 1, 0, nil)

	rf.setBlocked(true)
	require.NoError(t, stack.IncomingCall(testAddr))
	assert.Empty(t, rf.take(1))

	rf.setBlocked(false)
	stack.Writable(1)
	assert.Equal(t, []string{"+CIEV:2,1"}, rf.take(1))
}

// A failed SCO open reports the release with non-zero status and leaves
// the audio state machine back at idle, so a later attempt can succeed.
func TestAudioOpenFailureReturnsToIdle(t *testing.T) {
	rf := newFakeRFCOMM()
	sco := &fakeSync{}
	stack := hfp.New(baseConfig(0, nil), rf, sco)
	events := collectEvents(stack)

	establishSLC(t, stack, rf, 1, 0, nil)
	*events = nil

	require.NoError(t, stack.EstablishAudioConnection(testAddr))
	stack.SCOOpenFailed(testPeer)
	require.Len(t, *events, 1)
	assert.Equal(t, hfp.EventAudioConnectionReleased, (*events)[0].Subtype)
	assert.NotZero(t, (*events)[0].Status)
	*events = nil

	require.NoError(t, stack.EstablishAudioConnection(testAddr))
	stack.SCOOpened(testPeer, 11)
	require.Len(t, *events, 1)
	assert.Equal(t, hfp.EventAudioConnectionEstablished, (*events)[0].Subtype)
}

// Releasing the service level connection (or losing the RFCOMM channel)
// removes the connection from the registry and reports the release.
func TestReleaseRemovesConnection(t *testing.T) {
	rf := newFakeRFCOMM()
	stack := hfp.New(baseConfig(0, nil), rf, nil)
	events := collectEvents(stack)

	establishSLC(t, stack, rf, 1, 0, nil)
	*events = nil

	require.NoError(t, stack.ReleaseServiceLevelConnection(testAddr))
	assert.Contains(t, takeSubtypes(events), hfp.EventSLCReleased)
	_, ok := stack.Connection(testAddr)
	assert.False(t, ok)

	// Idempotent once the connection is gone.
	require.NoError(t, stack.ReleaseServiceLevelConnection(testAddr))

	// The RFCOMM channel dropping mid-handshake reports a non-zero status.
	stack.Opened(2, testPeer, 1)
	feedLine(stack, 2, "AT+BRSF=0")
	rf.take(2)
	*events = nil
	stack.Closed(2)
	require.Len(t, *events, 1)
	assert.Equal(t, hfp.EventSLCReleased, (*events)[0].Subtype)
	assert.NotZero(t, (*events)[0].Status)
	_, ok = stack.Connection(testAddr)
	assert.False(t, ok)
}

// fakeDialer is a fakeRFCOMM that can also initiate outbound channels,
// recording each Connect request.
type fakeDialer struct {
	*fakeRFCOMM
	connects []transport.Address
}

func (f *fakeDialer) Connect(peer transport.Address, channel uint8) error {
	f.connects = append(f.connects, peer)
	return nil
}

func TestEstablishSLCDialsOut(t *testing.T) {
	rf := newFakeRFCOMM()
	stack := hfp.New(baseConfig(0, nil), rf, nil)
	assert.ErrorIs(t, stack.EstablishServiceLevelConnection(testAddr), hfp.ErrNotSupported)

	d := &fakeDialer{fakeRFCOMM: rf}
	stack.SetTransport(d, nil)
	require.NoError(t, stack.EstablishServiceLevelConnection(testAddr))
	require.Len(t, d.connects, 1)
	assert.Equal(t, testPeer, d.connects[0])

	// The dialed channel then comes up through the usual Opened callback
	// and a second establish call is a no-op.
	stack.Opened(1, testPeer, 1)
	require.NoError(t, stack.EstablishServiceLevelConnection(testAddr))
	require.Len(t, d.connects, 1)
}
