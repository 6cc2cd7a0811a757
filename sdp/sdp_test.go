package sdp

import (
	"bytes"
	"testing"
)

func TestCreateRecordStructure(t *testing.T) {
	record := CreateRecord(0x111F, 3, "Audio Gateway")

	if len(record) < 2 {
		t.Fatalf("record too short: %d bytes", len(record))
	}
	if record[0] != header(typeSequence, 0) {
		t.Fatalf("record[0] = %#x, want outer sequence header", record[0])
	}
	if int(record[1]) != len(record)-2 {
		t.Fatalf("outer length byte = %d, want %d", record[1], len(record)-2)
	}

	// The service class UUID, the RFCOMM channel and the service name must
	// all appear in the assembled bytes.
	if !bytes.Contains(record, []byte{header(typeUUID, 1), 0x11, 0x1F}) {
		t.Fatalf("service class UUID 0x111F not found in record")
	}
	if !bytes.Contains(record, []byte{header(typeUnsignedInt, 0), 3}) {
		t.Fatalf("RFCOMM channel 3 not found in record")
	}
	if !bytes.Contains(record, []byte("Audio Gateway")) {
		t.Fatalf("service name not found in record")
	}
}

func TestCreateRecordTruncatesLongName(t *testing.T) {
	long := make([]byte, 100)
	for i := range long {
		long[i] = 'n'
	}
	record := CreateRecord(0x111F, 1, string(long))
	if int(record[1]) != len(record)-2 {
		t.Fatalf("outer length byte = %d, want %d", record[1], len(record)-2)
	}
	if bytes.Contains(record, long) {
		t.Fatalf("100-byte name survived untruncated")
	}
}
