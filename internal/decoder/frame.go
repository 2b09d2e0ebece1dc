package decoder

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/WendelHime/peernet/internal/shared/models"
)

// frameEnvelope is the headroom for the encoded message around a Data payload.
const frameEnvelope = 1024

// MaxFrameSize bounds the length prefix accepted from a peer.
const MaxFrameSize = models.MaxPayloadSize + frameEnvelope

var ErrFrameTooLarge = errors.New("frame too large")

// WriteFrame writes [4-byte big-endian length][payload].
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}

	buf := make([]byte, 4, 4+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	buf = append(buf, payload...)
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one length-prefixed frame. The length is checked before
// anything is allocated for the payload.
func ReadFrame(r io.Reader) ([]byte, error) {
	header, err := ReadBytes(r, 4)
	if err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(header)
	if length > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFrameTooLarge, length, MaxFrameSize)
	}
	if length == 0 {
		return []byte{}, nil
	}

	return ReadBytes(r, int(length))
}
