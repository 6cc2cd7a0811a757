package atparse

import "testing"

func feedLine(t *testing.T, s *State, line string) Event {
	t.Helper()
	var last Event
	var got bool
	for i := 0; i < len(line); i++ {
		ev, done := s.Feed(line[i])
		if done {
			last, got = ev, true
		}
	}
	if !got {
		t.Fatalf("line %q never completed", line)
	}
	return last
}

func TestParseBRSF(t *testing.T) {
	var s State
	ev := feedLine(t, &s, "AT+BRSF=1007\r\n")
	if ev.Command != CmdSupportedFeatures {
		t.Fatalf("command = %v, want CmdSupportedFeatures", ev.Command)
	}
	if len(ev.Items) != 1 || ev.Items[0] != "1007" {
		t.Fatalf("items = %v, want [1007]", ev.Items)
	}
}

func TestParseCINDQuery(t *testing.T) {
	var s State
	ev := feedLine(t, &s, "AT+CIND?\r\n")
	if ev.Command != CmdRetrieveIndicators {
		t.Fatalf("command = %v", ev.Command)
	}
	if !ev.IsQuery {
		t.Fatalf("expected IsQuery")
	}
}

func TestParseCINDSet(t *testing.T) {
	var s State
	ev := feedLine(t, &s, "AT+CIND=?\r\n")
	if ev.Command != CmdRetrieveIndicators {
		t.Fatalf("command = %v", ev.Command)
	}
	if !ev.IsSet {
		t.Fatalf("expected IsSet")
	}
}

func TestParseOK(t *testing.T) {
	var s State
	ev := feedLine(t, &s, "OK\r\n")
	if ev.Command != CmdOK {
		t.Fatalf("command = %v, want CmdOK", ev.Command)
	}
}

func TestParseUnknownResetsToHeader(t *testing.T) {
	var s State
	ev := feedLine(t, &s, "AT+XYZZY,,,\r\n")
	if ev.Command != CmdUnknown {
		t.Fatalf("command = %v, want CmdUnknown", ev.Command)
	}
	// Parser must be back at CmdHeader and able to parse the next line.
	ev2 := feedLine(t, &s, "OK\r\n")
	if ev2.Command != CmdOK {
		t.Fatalf("second line command = %v, want CmdOK", ev2.Command)
	}
}

func TestItemOverflowIsParseError(t *testing.T) {
	var s State
	long := make([]byte, maxLineLen+5)
	for i := range long {
		long[i] = 'a'
	}
	line := "AT+BAC=" + string(long) + "\r\n"
	var last Event
	for i := 0; i < len(line); i++ {
		ev, done := s.Feed(line[i])
		if done {
			last = ev
			break
		}
	}
	if last.Command != CmdError {
		t.Fatalf("command = %v, want CmdError on overflow", last.Command)
	}
}

func TestBACList(t *testing.T) {
	var s State
	ev := feedLine(t, &s, "AT+BAC=1,2,3\r\n")
	if ev.Command != CmdAvailableCodecs {
		t.Fatalf("command = %v", ev.Command)
	}
	if len(ev.Items) != 3 {
		t.Fatalf("items = %v, want 3 entries", ev.Items)
	}
}
