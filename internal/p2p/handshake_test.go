package p2p

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldInitiate(t *testing.T) {
	ids := []string{"peer-aaa", "peer-zzz", "7f1c", "7f1d", "a", "b"}
	for _, a := range ids {
		for _, b := range ids {
			if a == b {
				assert.False(t, ShouldInitiate(a, b), "%s must not dial itself", a)
				continue
			}
			// exactly one side of every pair dials
			assert.NotEqual(t, ShouldInitiate(a, b), ShouldInitiate(b, a), "pair %s/%s", a, b)
		}
	}
	assert.True(t, ShouldInitiate("peer-zzz", "peer-aaa"))
	assert.False(t, ShouldInitiate("peer-aaa", "peer-zzz"))
}

type acceptResult struct {
	remoteID string
	reader   *bufio.Reader
	err      error
}

func TestHandshake(t *testing.T) {
	var tests = []struct {
		name       string
		localID    string
		expectedID string
		acceptorID string
		assert     func(t *testing.T, inbound acceptResult, outboundErr error)
	}{
		{
			name:       "ids are exchanged",
			localID:    "peer-zzz",
			expectedID: "peer-aaa",
			acceptorID: "peer-aaa",
			assert: func(t *testing.T, inbound acceptResult, outboundErr error) {
				assert.Nil(t, inbound.err)
				assert.Nil(t, outboundErr)
				assert.Equal(t, "peer-zzz", inbound.remoteID)
				assert.NotNil(t, inbound.reader)
			},
		},
		{
			name:       "acceptor answering with another id fails the initiator",
			localID:    "peer-zzz",
			expectedID: "peer-bbb",
			acceptorID: "peer-aaa",
			assert: func(t *testing.T, inbound acceptResult, outboundErr error) {
				assert.Nil(t, inbound.err)
				assert.ErrorIs(t, outboundErr, ErrPeerIDMismatch)
			},
		},
		{
			name:       "connecting to ourselves is refused",
			localID:    "peer-aaa",
			expectedID: "peer-aaa",
			acceptorID: "peer-aaa",
			assert: func(t *testing.T, inbound acceptResult, outboundErr error) {
				assert.ErrorIs(t, inbound.err, ErrSelfConnection)
				assert.Error(t, outboundErr)
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			client, server := net.Pipe()
			defer client.Close()
			defer server.Close()

			done := make(chan acceptResult, 1)
			go func() {
				id, r, err := AcceptHandshake(server, tt.acceptorID, time.Second)
				if err != nil {
					server.Close()
				}
				done <- acceptResult{remoteID: id, reader: r, err: err}
			}()

			_, outboundErr := InitiateHandshake(client, tt.localID, tt.expectedID, time.Second)
			tt.assert(t, <-done, outboundErr)
		})
	}
}

func TestAcceptHandshakeRejectsEmptyID(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		_, _ = client.Write([]byte("   \n"))
	}()

	_, _, err := AcceptHandshake(server, "peer-aaa", time.Second)
	assert.ErrorIs(t, err, ErrEmptyPeerID)
}

func TestAcceptHandshakeTimesOut(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	start := time.Now()
	_, _, err := AcceptHandshake(server, "peer-aaa", 50*time.Millisecond)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}
