package p2p

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

var (
	ErrEmptyPeerID    = errors.New("empty peer id")
	ErrPeerIDMismatch = errors.New("peer id mismatch")
	ErrSelfConnection = errors.New("connection to self")
)

// ShouldInitiate is the tie-break for a pair of peers: only the side with the
// lexicographically greater id dials.
func ShouldInitiate(localID, remoteID string) bool {
	return localID > remoteID
}

// AcceptHandshake runs the inbound side: read the remote id line, answer with
// ours. The returned reader must be reused for the framed stream.
func AcceptHandshake(conn net.Conn, localID string, timeout time.Duration) (string, *bufio.Reader, error) {
	if err := setDeadline(conn, timeout); err != nil {
		return "", nil, err
	}

	r := bufio.NewReader(conn)
	remoteID, err := readPeerID(r)
	if err != nil {
		return "", nil, err
	}
	if remoteID == localID {
		return "", nil, ErrSelfConnection
	}

	if err := writePeerID(conn, localID); err != nil {
		return "", nil, err
	}

	return remoteID, r, conn.SetDeadline(time.Time{})
}

// InitiateHandshake runs the outbound side: write our id first, then expect
// the remote to answer with expectedID.
func InitiateHandshake(conn net.Conn, localID, expectedID string, timeout time.Duration) (*bufio.Reader, error) {
	if err := setDeadline(conn, timeout); err != nil {
		return nil, err
	}

	if err := writePeerID(conn, localID); err != nil {
		return nil, err
	}

	r := bufio.NewReader(conn)
	remoteID, err := readPeerID(r)
	if err != nil {
		return nil, err
	}
	if remoteID != expectedID {
		return nil, fmt.Errorf("%w: expected %q, got %q", ErrPeerIDMismatch, expectedID, remoteID)
	}

	return r, conn.SetDeadline(time.Time{})
}

func readPeerID(r *bufio.Reader) (string, error) {
	// ReadSlice bounds the line to the reader's buffer size
	line, err := r.ReadSlice('\n')
	if err != nil {
		return "", err
	}

	id := strings.TrimSpace(string(line))
	if id == "" {
		return "", ErrEmptyPeerID
	}
	return id, nil
}

func writePeerID(conn net.Conn, id string) error {
	_, err := conn.Write([]byte(id + "\n"))
	return err
}

func setDeadline(conn net.Conn, timeout time.Duration) error {
	if timeout <= 0 {
		return nil
	}
	return conn.SetDeadline(time.Now().Add(timeout))
}
