package hfp

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zb3/gofp/atparse"
	"github.com/zb3/gofp/internal/bitfield"
)

// slcPhase is the tagged variant driving the Service Level Connection pipeline,
// AG role. Each linear step has a "ready" value (produced once the
// previous step's OK arrived) and the pipeline advances strictly forward;
// any ERROR or transport loss resets to slcIdle.
type slcPhase int

const (
	slcIdle slcPhase = iota
	slcW4Codecs
	slcW4IndicatorsSchema
	slcW4IndicatorsStatus
	slcW4EnableStatusUpdate
	slcW4CallHoldServices
	slcW4BindWrite
	slcW4BindList
	slcW4BindStatus
	slcEstablished
)

type slcState struct {
	state slcPhase
}

// Established reports whether the SLC has reached slcEstablished.
func (s slcState) Established() bool { return s.state == slcEstablished }

// slcOutcome is what an SLC transition produces: zero or more lines to
// send back over RFCOMM, and zero or more host events.
type slcOutcome struct {
	Lines  []string
	Events []Event
}

// HandleSLCLine advances the AG-role SLC pipeline by one parsed AT line
// from the HF. It returns the lines to transmit (in order) and any host
// events to emit. Unrecognized-for-this-step input yields an ERROR
// response and no state change.
func (c *Connection) HandleSLCLine(ev atparse.Event) slcOutcome {
	if ev.Command == atparse.CmdError {
		return c.abortSLC()
	}

	switch c.SLC.state {
	case slcIdle:
		if ev.Command == atparse.CmdSupportedFeatures && ev.IsSet {
			return c.handleBRSF(ev)
		}
	case slcW4Codecs:
		if ev.Command == atparse.CmdAvailableCodecs && ev.IsSet {
			return c.handleBAC(ev)
		}
		// codec negotiation not offered by HF even though both sides
		// support it: fall through to indicators, matching the
		// lenient "both advertise but HF skips BAC" edge case.
		if ev.Command == atparse.CmdRetrieveIndicators && ev.IsSet {
			return c.handleCINDSchema(ev)
		}
	case slcW4IndicatorsSchema:
		if ev.Command == atparse.CmdRetrieveIndicators && ev.IsSet {
			return c.handleCINDSchema(ev)
		}
	case slcW4IndicatorsStatus:
		if ev.Command == atparse.CmdRetrieveIndicators && ev.IsQuery {
			return c.handleCINDStatus(ev)
		}
	case slcW4EnableStatusUpdate:
		if ev.Command == atparse.CmdEnableIndicatorStatusUpdate {
			return c.handleCMER(ev)
		}
	case slcW4CallHoldServices:
		if ev.Command == atparse.CmdCallHoldServices && ev.IsSet {
			return c.handleCHLDQuery(ev)
		}
		if ev.Command == atparse.CmdListGenericIndicators && ev.IsSet {
			return c.handleBINDWrite(ev)
		}
	case slcW4BindWrite:
		if ev.Command == atparse.CmdListGenericIndicators && ev.IsSet {
			return c.handleBINDWrite(ev)
		}
	case slcW4BindList:
		// AT+BIND=? parses as a set ('=') whose sole item is "?".
		if ev.Command == atparse.CmdListGenericIndicators && ev.IsSet {
			return c.handleBINDList(ev)
		}
	case slcW4BindStatus:
		if ev.Command == atparse.CmdListGenericIndicators && ev.IsQuery {
			return c.handleBINDStatus(ev)
		}
	}

	return slcOutcome{Lines: []string{"ERROR"}}
}

func (c *Connection) abortSLC() slcOutcome {
	wasEstablished := c.SLC.state == slcEstablished
	c.SLC = slcState{}
	c.Codec = codecState{}
	status := uint8(1)
	if wasEstablished {
		status = 0
	}
	return slcOutcome{Events: []Event{{Subtype: EventSLCReleased, Status: status, Address: c.Address}}}
}

// handleBRSF: step 1, AT+BRSF=<features>.
func (c *Connection) handleBRSF(ev atparse.Event) slcOutcome {
	features, err := parseUint(firstItem(ev))
	if err != nil {
		return slcOutcome{Lines: []string{"ERROR"}}
	}
	c.RemoteFeatures = uint32(features)
	c.SLC.state = slcW4Codecs
	lines := []string{
		fmt.Sprintf("+BRSF:%d", c.LocalFeatures),
		"OK",
	}
	if !c.codecNegotiationSupported() {
		c.SLC.state = slcW4IndicatorsSchema
	}
	return slcOutcome{Lines: lines}
}

// handleBAC: step 2, AT+BAC=<id>,<id>,...
func (c *Connection) handleBAC(ev atparse.Event) slcOutcome {
	codecs := make([]uint8, 0, len(ev.Items))
	for _, item := range ev.Items {
		v, err := parseUint(item)
		if err != nil {
			return slcOutcome{Lines: []string{"ERROR"}}
		}
		if len(codecs) >= MaxListLen {
			return slcOutcome{Lines: []string{"ERROR"}}
		}
		codecs = append(codecs, uint8(v))
	}
	c.RemoteCodecs = codecs
	c.SLC.state = slcW4IndicatorsSchema
	return slcOutcome{Lines: []string{"OK"}}
}

// handleCINDSchema: step 3, AT+CIND=?
func (c *Connection) handleCINDSchema(ev atparse.Event) slcOutcome {
	var b strings.Builder
	b.WriteString("+CIND:")
	for i, ind := range c.AGIndicators.All() {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "(\"%s\",(%d,%d))", ind.Name, ind.Min, ind.Max)
	}
	c.SLC.state = slcW4IndicatorsStatus
	return slcOutcome{Lines: []string{b.String(), "OK"}}
}

// handleCINDStatus: step 4, AT+CIND?
func (c *Connection) handleCINDStatus(ev atparse.Event) slcOutcome {
	inds := c.AGIndicators.All()
	statuses := make([]int, len(inds))
	for i, ind := range inds {
		statuses[i] = ind.Status
	}
	var buf [MaxListLen * 4]byte
	n := bitfield.Join(buf[:], statuses)
	c.SLC.state = slcW4EnableStatusUpdate
	return slcOutcome{Lines: []string{"+CIND:" + string(buf[:n]), "OK"}}
}

// handleCMER: step 5, AT+CMER=3,0,0,1.
func (c *Connection) handleCMER(ev atparse.Event) slcOutcome {
	if len(ev.Items) < 4 {
		return slcOutcome{Lines: []string{"ERROR"}}
	}
	enable, err := parseUint(ev.Items[3])
	if err != nil {
		return slcOutcome{Lines: []string{"ERROR"}}
	}
	c.AGIndicators.SetMasterEnable(enable != 0)

	if c.threeWaySupported() {
		c.SLC.state = slcW4CallHoldServices
	} else if c.hfIndicatorsSupported() {
		c.SLC.state = slcW4BindWrite
	} else {
		out := c.completeSLC()
		out.Lines = append([]string{"OK"}, out.Lines...)
		return out
	}
	return slcOutcome{Lines: []string{"OK"}}
}

// handleCHLDQuery: step 6, AT+CHLD=?
func (c *Connection) handleCHLDQuery(ev atparse.Event) slcOutcome {
	var b strings.Builder
	b.WriteString("+CHLD:(")
	for i, s := range c.CallHoldServices {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s.Token)
	}
	b.WriteByte(')')

	if c.hfIndicatorsSupported() {
		c.SLC.state = slcW4BindWrite
		return slcOutcome{Lines: []string{b.String(), "OK"}}
	}
	out := c.completeSLC()
	out.Lines = append([]string{b.String(), "OK"}, out.Lines...)
	return out
}

// handleBINDWrite: step 7a, AT+BIND=<uuid>,<uuid>,... The HF's list is
// recorded as-is; the AG's own supported set (seeded from Config) is what
// the list and status replies below report.
func (c *Connection) handleBINDWrite(ev atparse.Event) slcOutcome {
	if len(ev.Items) > MaxListLen {
		return slcOutcome{Lines: []string{"ERROR"}}
	}
	uuids := make([]uint16, 0, len(ev.Items))
	for _, item := range ev.Items {
		uuid, err := parseUint(item)
		if err != nil {
			return slcOutcome{Lines: []string{"ERROR"}}
		}
		uuids = append(uuids, uint16(uuid))
	}
	c.RemoteGenericIndicators = uuids
	c.SLC.state = slcW4BindList
	return slcOutcome{Lines: []string{"OK"}}
}

// handleBINDList: step 7b, AT+BIND=?
func (c *Connection) handleBINDList(ev atparse.Event) slcOutcome {
	uuids := make([]int, len(c.GenericIndicators))
	for i, g := range c.GenericIndicators {
		uuids[i] = int(g.UUID)
	}
	var buf [MaxListLen * 6]byte
	n := bitfield.Join(buf[:], uuids)
	c.SLC.state = slcW4BindStatus
	return slcOutcome{Lines: []string{"+BIND:(" + string(buf[:n]) + ")", "OK"}}
}

// handleBINDStatus: step 7c, AT+BIND?
func (c *Connection) handleBINDStatus(ev atparse.Event) slcOutcome {
	var lines []string
	for _, g := range c.GenericIndicators {
		state := 0
		if g.Enabled {
			state = 1
		}
		lines = append(lines, fmt.Sprintf("+BIND:%d,%d", g.UUID, state))
	}
	out := c.completeSLC()
	out.Lines = append(append(lines, "OK"), out.Lines...)
	return out
}

// completeSLC marks the SLC established and emits the completion event.
func (c *Connection) completeSLC() slcOutcome {
	c.SLC.state = slcEstablished
	return slcOutcome{Events: []Event{{Subtype: EventSLCEstablished, Status: 0, Address: c.Address}}}
}

func firstItem(ev atparse.Event) string {
	if len(ev.Items) == 0 {
		return ""
	}
	return ev.Items[0]
}

func parseUint(s string) (uint64, error) {
	return strconv.ParseUint(strings.TrimSpace(s), 10, 32)
}
