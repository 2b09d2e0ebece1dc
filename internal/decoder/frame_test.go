package decoder

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"testing"

	"github.com/WendelHime/peernet/internal/shared/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataRoundTripThroughFrame(t *testing.T) {
	c := NewCodec()
	sizes := []int{1, 2, 255, 4096, 64 * 1024, models.MaxPayloadSize}

	for _, size := range sizes {
		payload := make([]byte, size)
		_, err := rand.Read(payload)
		require.NoError(t, err)

		encoded, err := c.EncodePeerMessage(models.Data(payload))
		require.NoError(t, err)

		buf := new(bytes.Buffer)
		require.NoError(t, WriteFrame(buf, encoded))
		assert.Equal(t, uint32(len(encoded)), binary.BigEndian.Uint32(buf.Bytes()[:4]))

		frame, err := ReadFrame(buf)
		require.NoError(t, err)

		decoded, err := c.DecodePeerMessage(frame)
		require.NoError(t, err)
		assert.Equal(t, models.PeerMessageData, decoded.Kind)
		assert.True(t, bytes.Equal(payload, decoded.Data), "payload of %d bytes changed in transit", size)
	}
}

func TestReadFrame(t *testing.T) {
	var tests = []struct {
		name   string
		setup  func() *bytes.Buffer
		assert func(t *testing.T, actual []byte, err error)
	}{
		{
			name: "consecutive frames are read in order",
			setup: func() *bytes.Buffer {
				buf := new(bytes.Buffer)
				_ = WriteFrame(buf, []byte("first"))
				_ = WriteFrame(buf, []byte("second"))
				return buf
			},
			assert: func(t *testing.T, actual []byte, err error) {
				assert.Nil(t, err)
				assert.Equal(t, []byte("first"), actual)
			},
		},
		{
			name: "oversized length prefix is rejected",
			setup: func() *bytes.Buffer {
				header := make([]byte, 4)
				binary.BigEndian.PutUint32(header, MaxFrameSize+1)
				return bytes.NewBuffer(header)
			},
			assert: func(t *testing.T, actual []byte, err error) {
				assert.ErrorIs(t, err, ErrFrameTooLarge)
				assert.Nil(t, actual)
			},
		},
		{
			name: "truncated payload is an error",
			setup: func() *bytes.Buffer {
				header := make([]byte, 4)
				binary.BigEndian.PutUint32(header, 10)
				return bytes.NewBuffer(append(header, 'a', 'b'))
			},
			assert: func(t *testing.T, actual []byte, err error) {
				assert.Error(t, err)
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			actual, err := ReadFrame(tt.setup())
			tt.assert(t, actual, err)
		})
	}
}

func TestWriteFrameRejectsOversizedPayload(t *testing.T) {
	err := WriteFrame(new(bytes.Buffer), make([]byte, MaxFrameSize+1))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}
