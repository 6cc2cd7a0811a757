// Package sdp builds the bytes of a Bluetooth SDP service record
// advertising the Hands-Free Profile service, implementing the
// create_sdp_record operation of an HFP host stack. SDP service discovery
// itself (browsing, querying another device's records) is out of scope;
// only producing the bytes of our own record is implemented here.
package sdp

import "encoding/binary"

// Standard SDP attribute IDs used by a minimal HFP AG service record.
const (
	attrServiceRecordHandle    = 0x0000
	attrServiceClassIDList     = 0x0001
	attrProtocolDescriptorList = 0x0004
	attrBrowseGroupList        = 0x0005
	attrServiceName            = 0x0100
	attrSupportedFeatures      = 0x0311

	protocolL2CAP  = 0x0100
	protocolRFCOMM = 0x0003

	uuidPublicBrowseGroup = 0x1002
)

// dataElementType nibbles, per the SDP data element header encoding.
const (
	typeUnsignedInt = 0x0
	typeUUID        = 0x1
	typeSequence    = 0x6
)

func header(typ, sizeIndex byte) byte { return typ<<3 | sizeIndex }

// appendUint16 appends a 2-byte unsigned-integer data element.
func appendUint16(buf []byte, v uint16) []byte {
	buf = append(buf, header(typeUnsignedInt, 1))
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}

// appendUUID16 appends a 2-byte UUID data element.
func appendUUID16(buf []byte, v uint16) []byte {
	buf = append(buf, header(typeUUID, 1))
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}

// appendSequence wraps inner as a data-element sequence with an 8-bit
// length, which is sufficient for every sequence this record needs.
func appendSequence(buf []byte, inner []byte) []byte {
	buf = append(buf, header(typeSequence, 0))
	buf = append(buf, byte(len(inner)))
	return append(buf, inner...)
}

// CreateRecord builds the bytes of a Bluetooth SDP record advertising the
// HFP Audio Gateway service on rfcommChannel, implementing
// hfp_create_sdp_record (original_source/src/hfp.h) in Go: a short,
// hand-assembled byte sequence rather than a parsed/streamed format,
// matching how the original builds this record directly into a caller
// buffer.
func CreateRecord(serviceUUID uint16, rfcommChannel uint8, name string) []byte {
	var record []byte

	// ServiceRecordHandle: left as 0, callers/hosts that register the
	// record assign the real handle.
	record = appendUint16(record, attrServiceRecordHandle)
	record = appendUint16(record, 0x0000)

	// ServiceClassIDList: [HandsfreeAudioGateway].
	var classList []byte
	classList = appendUUID16(classList, serviceUUID)
	record = appendUint16(record, attrServiceClassIDList)
	record = appendSequence(record, classList)

	// ProtocolDescriptorList: [[L2CAP], [RFCOMM, channel]].
	var l2cap []byte
	l2cap = appendUUID16(l2cap, protocolL2CAP)
	var rfcomm []byte
	rfcomm = appendUUID16(rfcomm, protocolRFCOMM)
	rfcomm = append(rfcomm, header(typeUnsignedInt, 0))
	rfcomm = append(rfcomm, rfcommChannel)
	var protoList []byte
	protoList = appendSequence(protoList, l2cap)
	protoList = appendSequence(protoList, rfcomm)
	record = appendUint16(record, attrProtocolDescriptorList)
	record = appendSequence(record, protoList)

	// BrowseGroupList: [PublicBrowseGroup].
	var browseList []byte
	browseList = appendUUID16(browseList, uuidPublicBrowseGroup)
	record = appendUint16(record, attrBrowseGroupList)
	record = appendSequence(record, browseList)

	// ServiceName, truncated to what the outer sequence length byte
	// can address alongside everything else (255 bytes total).
	if len(name) > 60 {
		name = name[:60]
	}
	record = appendUint16(record, attrServiceName)
	record = append(record, header(0x4, 5)) // text string, 1-byte length follows
	record = append(record, byte(len(name)))
	record = append(record, name...)

	return appendSequence(nil, record)
}
