package decoder

import "io"

// ReadBytes reads exactly n bytes from r.
func ReadBytes(r io.Reader, n int) ([]byte, error) {
	result := make([]byte, n)
	if _, err := io.ReadFull(r, result); err != nil {
		return nil, err
	}
	return result, nil
}
