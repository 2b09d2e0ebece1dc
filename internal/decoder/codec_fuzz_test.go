package decoder

import (
	"bytes"
	"testing"

	"github.com/WendelHime/peernet/internal/shared/models"
)

// FuzzDecodeDiscovery feeds arbitrary datagrams to the discovery decoder.
// Run with: go test -fuzz=FuzzDecodeDiscovery -fuzztime=30s ./internal/decoder/
func FuzzDecodeDiscovery(f *testing.F) {
	c := NewCodec()
	valid, _ := c.EncodeDiscovery(models.Announce(models.PeerInfo{ID: "a", Addr: "127.0.0.1:1"}))
	f.Add(valid)
	f.Add([]byte("de"))
	f.Add([]byte("i42e"))
	f.Add([]byte("l4:kinde"))
	f.Add([]byte{})
	f.Add([]byte("d4:kindi1ee"))
	f.Add([]byte("d4:kind8:announce2:id40000000000:x"))
	f.Add([]byte("d4:kind8:announce2:id9223372036854775807:x"))

	f.Fuzz(func(t *testing.T, data []byte) {
		msg, err := c.DecodeDiscovery(data)
		if err != nil {
			return
		}
		if _, err := c.EncodeDiscovery(msg); err != nil {
			t.Fatalf("decoded message does not encode: %v", err)
		}
	})
}

// FuzzDecodePeerMessage feeds arbitrary frames to the peer message decoder.
func FuzzDecodePeerMessage(f *testing.F) {
	c := NewCodec()
	valid, _ := c.EncodePeerMessage(models.Data([]byte("hello")))
	f.Add(valid)
	f.Add([]byte("i42e"))
	f.Add([]byte("d4:kind4:data4:datai5ee"))
	f.Add([]byte("d4:datall1:xeee4:kind4:datae"))

	f.Fuzz(func(t *testing.T, data []byte) {
		msg, err := c.DecodePeerMessage(data)
		if err != nil {
			return
		}
		if _, err := c.EncodePeerMessage(msg); err != nil {
			t.Fatalf("decoded message does not encode: %v", err)
		}
	})
}

// FuzzPeerMessageRoundTrip checks that any payload survives encode, frame and decode.
func FuzzPeerMessageRoundTrip(f *testing.F) {
	c := NewCodec()
	f.Add([]byte("hello"))
	f.Add([]byte{0x00})
	f.Add(bytes.Repeat([]byte{0xff}, 4096))

	f.Fuzz(func(t *testing.T, data []byte) {
		if len(data) == 0 || len(data) > models.MaxPayloadSize {
			return
		}
		encoded, err := c.EncodePeerMessage(models.Data(data))
		if err != nil {
			t.Fatal(err)
		}
		buf := new(bytes.Buffer)
		if err := WriteFrame(buf, encoded); err != nil {
			t.Fatal(err)
		}
		frame, err := ReadFrame(buf)
		if err != nil {
			t.Fatal(err)
		}
		msg, err := c.DecodePeerMessage(frame)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(msg.Data, data) {
			t.Fatalf("payload changed: %x != %x", msg.Data, data)
		}
	})
}
