package decoder

import (
	"fmt"
	"strconv"
	"strings"
)

// maxDepth bounds list/dict nesting in untrusted input.
const maxDepth = 32

// fieldTypes pins the bencode type of every key that lands in a wire struct
// field: 's' for strings, 'i' for integers. Keys are matched lowercased
// against both tag and field name, as the bencode library does. Other keys
// may hold any well-formed value.
var fieldTypes = map[string]byte{
	"kind":      's',
	"id":        's',
	"addr":      's',
	"data":      's',
	"last_seen": 'i',
	"lastseen":  'i',
}

// validate walks b before it reaches the bencode library. The input must be
// exactly one dictionary, every string length must fit in the bytes left and
// known keys must carry the type their struct field expects.
func validate(b []byte) error {
	if len(b) == 0 || b[0] != 'd' {
		return fmt.Errorf("%w: top level is not a dictionary", ErrMalformed)
	}
	s := scanner{buf: b}
	if err := s.dict(0, true); err != nil {
		return err
	}
	if s.pos != len(b) {
		return fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(b)-s.pos)
	}
	return nil
}

type scanner struct {
	buf []byte
	pos int
}

func (s *scanner) peek() (byte, error) {
	if s.pos >= len(s.buf) {
		return 0, fmt.Errorf("%w: unexpected end of input", ErrMalformed)
	}
	return s.buf[s.pos], nil
}

func (s *scanner) value(depth int) (byte, error) {
	if depth > maxDepth {
		return 0, fmt.Errorf("%w: nesting too deep", ErrMalformed)
	}
	c, err := s.peek()
	if err != nil {
		return 0, err
	}
	switch {
	case c == 'i':
		return 'i', s.integer()
	case c >= '0' && c <= '9':
		_, err := s.str()
		return 's', err
	case c == 'l':
		return 'l', s.list(depth)
	case c == 'd':
		return 'd', s.dict(depth, false)
	default:
		return 0, fmt.Errorf("%w: unexpected byte %q at %d", ErrMalformed, c, s.pos)
	}
}

func (s *scanner) integer() error {
	s.pos++ // 'i'
	start := s.pos
	for s.pos < len(s.buf) && s.buf[s.pos] != 'e' {
		s.pos++
	}
	if s.pos >= len(s.buf) {
		return fmt.Errorf("%w: unterminated integer", ErrMalformed)
	}
	if _, err := strconv.ParseInt(string(s.buf[start:s.pos]), 10, 64); err != nil {
		return fmt.Errorf("%w: bad integer", ErrMalformed)
	}
	s.pos++ // 'e'
	return nil
}

func (s *scanner) str() ([]byte, error) {
	start := s.pos
	for s.pos < len(s.buf) && s.buf[s.pos] != ':' {
		s.pos++
	}
	if s.pos >= len(s.buf) {
		return nil, fmt.Errorf("%w: unterminated string length", ErrMalformed)
	}
	length, err := strconv.ParseUint(string(s.buf[start:s.pos]), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: bad string length", ErrMalformed)
	}
	s.pos++ // ':'
	if length > uint64(len(s.buf)-s.pos) {
		return nil, fmt.Errorf("%w: string of %d bytes with %d left", ErrMalformed, length, len(s.buf)-s.pos)
	}
	v := s.buf[s.pos : s.pos+int(length)]
	s.pos += int(length)
	return v, nil
}

func (s *scanner) list(depth int) error {
	s.pos++ // 'l'
	for {
		c, err := s.peek()
		if err != nil {
			return err
		}
		if c == 'e' {
			s.pos++
			return nil
		}
		if _, err := s.value(depth + 1); err != nil {
			return err
		}
	}
}

// dict checks a dictionary; on the top level the known keys are type checked.
func (s *scanner) dict(depth int, top bool) error {
	s.pos++ // 'd'
	for {
		c, err := s.peek()
		if err != nil {
			return err
		}
		if c == 'e' {
			s.pos++
			return nil
		}
		if c < '0' || c > '9' {
			return fmt.Errorf("%w: dictionary key is not a string", ErrMalformed)
		}
		key, err := s.str()
		if err != nil {
			return err
		}
		kind, err := s.value(depth + 1)
		if err != nil {
			return err
		}
		if want, ok := fieldTypes[strings.ToLower(string(key))]; top && ok && kind != want {
			return fmt.Errorf("%w: field %q has the wrong type", ErrMalformed, key)
		}
	}
}
