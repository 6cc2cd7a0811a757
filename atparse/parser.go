// Package atparse implements the byte-at-a-time AT command tokenizer shared
// by the HFP state machines. It never blocks. The 20-byte item buffer is
// fixed, but the accumulated header text, the item list and each item
// string are allocated on the heap as a line is fed. A well-formed line
// produces exactly one Event. A parse error produces a CmdError Event at
// the byte that caused it and resets the parser to the header phase, so
// the bytes that follow, up to the line terminator, are parsed as the
// start of a new line.
package atparse

// Command identifies a recognized AT token, or Unknown/Error.
type Command int

const (
	CmdNone Command = iota
	CmdError
	CmdUnknown
	CmdOK

	CmdSupportedFeatures     // AT+BRSF / +BRSF
	CmdAvailableCodecs       // AT+BAC
	CmdRetrieveIndicators    // AT+CIND=? and AT+CIND?, disambiguated via IsSet/IsQuery
	CmdEnableIndicatorStatusUpdate // AT+CMER
	CmdUpdateIndividualIndicator   // +BIA
	CmdCallHoldServices      // AT+CHLD
	CmdListGenericIndicators // +BIND: AT+BIND=<list> and AT+BIND=? are both IsSet (the latter's sole item is "?"), AT+BIND? is IsQuery
	CmdTransferIndicatorStatus // +CIEV
	CmdOperatorSelection     // +COPS
	CmdExtendedErrorEnable   // +CMEE
	CmdExtendedError         // +CME ERROR
	CmdTriggerCodecConnection // +BCC
	CmdConfirmCommonCodec    // +BCS
	CmdCallAnswered          // ATA
	CmdHangUpCall            // +CHUP
)

// Phase is a tokenizer phase. The tokenizer uses only PhaseCmdHeader and
// PhaseCmdSequence: every comma-separated item after the header, however
// many there are, is collected in PhaseCmdSequence. PhaseSecondItem and
// PhaseThirdItem are declared but never entered.
type Phase int

const (
	PhaseCmdHeader Phase = iota
	PhaseCmdSequence
	PhaseSecondItem
	PhaseThirdItem
)

const maxLineLen = 20

// token pairs a literal AT header with the Command it selects.
type token struct {
	text string
	cmd  Command
}

// atCommandTable holds every token that appears after an "AT" prefix has
// been consumed; it is only ever compared against the stripped body.
// Each entry must equal the whole body to match, so no entry can shadow
// another and the order of the entries has no effect.
var atCommandTable = []token{
	{"+CME ERROR", CmdExtendedError},
	{"+CMEE", CmdExtendedErrorEnable},
	{"+CMER", CmdEnableIndicatorStatusUpdate},
	{"+CIND", CmdRetrieveIndicators}, // disambiguated to status variant by '?'
	{"+CIEV", CmdTransferIndicatorStatus},
	{"+CHLD", CmdCallHoldServices},
	{"+CHUP", CmdHangUpCall},
	{"+COPS", CmdOperatorSelection},
	{"+BRSF", CmdSupportedFeatures},
	{"+BAC", CmdAvailableCodecs},
	{"+BIA", CmdUpdateIndividualIndicator},
	{"+BIND", CmdListGenericIndicators},
	{"+BCC", CmdTriggerCodecConnection},
	{"+BCS", CmdConfirmCommonCodec},
	{"A", CmdCallAnswered}, // "ATA": the literal command is just "A" after the AT prefix
}

// bareResponseTable holds tokens that never carry an "AT" prefix at all;
// it is only ever compared against the raw, un-stripped header.
var bareResponseTable = []token{
	{"OK", CmdOK},
	{"ERROR", CmdError},
}

// Event is produced once per complete AT line.
type Event struct {
	Command Command

	// Items holds every comma-separated parameter collected for the
	// line, in order, as they appeared on the wire. The '=' or '?'
	// that ends the header is not included; a '?' that follows '='
	// (as in "AT+CIND=?") is collected as an item. A query such as
	// "AT+CIND?" yields one empty item.
	Items []string

	// IsQuery is true for headers like "AT+CIND?" (trailing '?',
	// no '=').
	IsQuery bool
	// IsSet is true for headers like "AT+CIND=?" or "AT+BRSF=...",
	// i.e. the header was followed by '='.
	IsSet bool
}

// State is the parser's mutable scratch state. It is embedded in each
// connection context; the zero value is ready to use.
type State struct {
	phase      Phase
	itemIndex  int
	lineBuf    [maxLineLen]byte
	lineSize   int
	keepSeparator bool

	header string // accumulated header text, pre-match
	matched *token
	isQuery bool
	isSet   bool
	items   []string
	sawAT   bool // true once a leading "AT" prefix has been consumed
}

// KeepSeparator controls whether whitespace inside an item is preserved
// (needed for free-form names such as operator names and call-hold
// tokens) rather than skipped. Whitespace never ends an item; only ','
// '\r' and '\n' do.
func (s *State) KeepSeparator(keep bool) {
	s.keepSeparator = keep
}

func (s *State) reset() {
	s.phase = PhaseCmdHeader
	s.itemIndex = 0
	s.lineSize = 0
	s.header = ""
	s.matched = nil
	s.isQuery = false
	s.isSet = false
	s.items = s.items[:0]
	s.sawAT = false
}

// Feed advances the parser by one byte. It returns (Event{}, false) while
// still collecting a line, and (ev, true) once a complete line has been
// recognized, or at once with ev.Command == CmdError when the byte causes
// a parse error; either way the parser has already reset itself to the
// header phase.
func (s *State) Feed(b byte) (Event, bool) {
	if b == '\r' || b == '\n' {
		return s.endLine()
	}

	switch s.phase {
	case PhaseCmdHeader:
		return s.feedHeader(b)
	default:
		return s.feedItemByte(b)
	}
}

func (s *State) feedHeader(b byte) (Event, bool) {
	// Skip leading separators before the header starts.
	if s.header == "" && !s.sawAT && isSkippableLead(b) {
		return Event{}, false
	}

	if b == '=' || b == '?' {
		if s.header == "" {
			return s.parseError()
		}
		if b == '=' {
			s.isSet = true
		} else {
			s.isQuery = true
		}
		s.matchHeader()
		s.phase = PhaseCmdSequence
		return Event{}, false
	}

	s.header += string(b)
	if s.header == "AT" {
		s.sawAT = true
		return Event{}, false
	}
	if len(s.header) > maxLineLen {
		return s.parseError()
	}
	s.matchHeader()
	return Event{}, false
}

// matchHeader re-checks the accumulated header text against the known
// token tables. Matching on every byte (rather than only at a
// terminator) lets bare tokens with no '=' or '?' suffix -- OK, ERROR,
// ATA, +CHUP -- resolve as soon as the line ends. It always starts from
// no match, so a byte that breaks a previously-matched prefix (e.g. the
// 'X' in "AT+XYZZY" after the lone 'A' of an in-progress "ATA") clears
// the stale hit instead of leaving it in place.
func (s *State) matchHeader() {
	s.matched = nil

	if !s.sawAT {
		for i := range bareResponseTable {
			t := &bareResponseTable[i]
			if s.header == t.text {
				s.matched = t
				return
			}
		}
		return
	}

	if len(s.header) < 2 {
		return
	}
	body := s.header[2:]
	if body == "" {
		return
	}
	for i := range atCommandTable {
		t := &atCommandTable[i]
		if body == t.text {
			s.matched = t
			return
		}
	}
}

func isSkippableLead(b byte) bool {
	return b == ' ' || b == '\t'
}

func (s *State) feedItemByte(b byte) (Event, bool) {
	if !s.keepSeparator && (b == ' ' || b == '\t') {
		return Event{}, false
	}
	if b == ',' {
		s.flushItem()
		return Event{}, false
	}
	if s.lineSize >= maxLineLen {
		return s.parseError()
	}
	s.lineBuf[s.lineSize] = b
	s.lineSize++
	return Event{}, false
}

func (s *State) flushItem() {
	s.items = append(s.items, string(s.lineBuf[:s.lineSize]))
	s.lineSize = 0
	s.itemIndex++
}

func (s *State) parseError() (Event, bool) {
	s.reset()
	return Event{Command: CmdError}, true
}

func (s *State) endLine() (Event, bool) {
	if s.header == "" && len(s.items) == 0 && s.lineSize == 0 {
		// blank line (bare \r\n): ignore, stay in header phase
		return Event{}, false
	}
	if s.lineSize > 0 || s.phase != PhaseCmdHeader {
		s.flushItem()
	}

	ev := Event{
		Items:   append([]string(nil), s.items...),
		IsQuery: s.isQuery,
		IsSet:   s.isSet,
	}
	if s.matched != nil {
		ev.Command = s.matched.cmd
	} else {
		ev.Command = CmdUnknown
	}
	s.reset()
	return ev, true
}
