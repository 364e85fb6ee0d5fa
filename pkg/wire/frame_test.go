package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindString(t *testing.T) {
	assert.Equal(t, "HELLO", KindHello.String())
	assert.Equal(t, "DATA", KindData.String())
	assert.Equal(t, "PING", KindPing.String())
	assert.Equal(t, "PONG", KindPong.String())
	assert.Equal(t, "CLOSE", KindClose.String())
	assert.Contains(t, Kind(77).String(), "UNKNOWN")
}

func TestKindIsValid(t *testing.T) {
	for k := KindHello; k <= KindClose; k++ {
		assert.True(t, k.IsValid(), "kind %v should be valid", k)
	}
	assert.False(t, Kind(0).IsValid())
	assert.False(t, Kind(6).IsValid())
}

func TestHelloPayloadRoundTrip(t *testing.T) {
	in := &HelloPayload{DeviceID: "device-abc", Token: "tok-123"}

	data, err := EncodeHelloPayload(in)
	require.NoError(t, err)

	out, err := DecodeHelloPayload(data)
	require.NoError(t, err)
	assert.Equal(t, in.DeviceID, out.DeviceID)
	assert.Equal(t, in.Token, out.Token)
}

func TestHelloPayloadValidation(t *testing.T) {
	_, err := EncodeHelloPayload(&HelloPayload{Token: "tok"})
	assert.Error(t, err, "missing device ID should be rejected")

	_, err = EncodeHelloPayload(&HelloPayload{DeviceID: "device-abc"})
	assert.Error(t, err, "missing token should be rejected")
}
