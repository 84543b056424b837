package varint

import (
	"encoding/binary"
)

// Pack8 packs a uint8 into a VarInt.
func Pack8(n uint8) []byte {
	if n < 128 {
		return []byte{n}
	}
	return []byte{n, 0x01}
}

// Pack64 packs a uint64 into a VarInt.
func Pack64(n uint64) []byte {
	buf := make([]byte, binary.MaxVarintLen64)
	size := binary.PutUvarint(buf, n)
	return buf[:size]
}

// Unpack8 unpacks a VarInt into a uint8.
func Unpack8(blob []byte) (uint8, int, error) {
	if len(blob) < 1 {
		return 0, 0, ErrEmptyBuffer
	}
	if blob[0] < 128 {
		return blob[0], 1, nil
	}
	if len(blob) < 2 {
		return 0, 0, ErrBufferTooSmall
	}
	if blob[1] != 0x01 {
		return 0, 0, exceeded("uint8")
	}
	return blob[0], 2, nil
}

// Unpack64 unpacks a VarInt into a uint64.
func Unpack64(blob []byte) (uint64, int, error) {
	if len(blob) < 1 {
		return 0, 0, ErrEmptyBuffer
	}
	n, read := binary.Uvarint(blob)
	switch {
	case read == 0:
		return 0, 0, ErrBufferTooSmall
	case read < 0:
		return 0, 0, exceeded("uint64")
	}
	return n, read, nil
}
