package checkout

import (
	"fmt"
	"io"
)

const (
	refCodeLength   = 20
	refCodeAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// NewRefCode draws a reference code uniformly from [a-z0-9] using src.
func NewRefCode(src io.Reader) (string, error) {
	// bytes at or above the largest multiple of the alphabet size are
	// rejected so every character is equally likely
	limit := byte(256 - 256%len(refCodeAlphabet))

	code := make([]byte, 0, refCodeLength)
	buf := make([]byte, refCodeLength)
	for len(code) < refCodeLength {
		if _, err := io.ReadFull(src, buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			code = append(code, refCodeAlphabet[int(b)%len(refCodeAlphabet)])
			if len(code) == refCodeLength {
				break
			}
		}
	}

	return string(code), nil
}
