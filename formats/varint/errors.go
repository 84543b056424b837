package varint

import (
	"errors"
	"fmt"
)

// Errors.
var (
	ErrEmptyBuffer    = errors.New("varint: buffer empty")
	ErrBufferTooSmall = errors.New("varint: buffer too small")
	ErrValueExceeded  = errors.New("varint: encoded integer too big")
)

func exceeded(max string) error {
	return fmt.Errorf("%w for %s", ErrValueExceeded, max)
}
