package hciadapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zb3/gofp/hfp"
)

func TestEncodeDecodeCarriesCodec(t *testing.T) {
	in := hfp.Event{
		Subtype: hfp.EventAudioConnectionEstablished,
		Address: hfp.Address{0xD8, 0xBB, 0x2C, 0xDF, 0xF1, 0x08},
		Codec:   hfp.CodecMSBC,
	}
	out, ok := Decode(Encode(in))
	require.True(t, ok)
	assert.Equal(t, in, out)
}

func TestEncodeDecodeCarriesErrorCode(t *testing.T) {
	in := hfp.Event{
		Subtype:   hfp.EventExtendedAudioGatewayError,
		Status:    1,
		Address:   hfp.Address{1, 2, 3, 4, 5, 6},
		ErrorCode: hfp.CMENoNetworkService,
	}
	out, ok := Decode(Encode(in))
	require.True(t, ok)
	assert.Equal(t, in, out)
}

func TestDecodeRejectsTruncated(t *testing.T) {
	full := Encode(hfp.Event{Subtype: hfp.EventSLCEstablished})
	for n := 0; n < len(full); n++ {
		_, ok := Decode(full[:n])
		assert.False(t, ok, "truncated to %d bytes must not decode", n)
	}
}
