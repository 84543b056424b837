package varint

// PrependLength returns the data prefixed with its varint encoded length.
func PrependLength(data []byte) []byte {
	block := make([]byte, 0, len(data)+binaryLen(uint64(len(data))))
	block = append(block, Pack64(uint64(len(data)))...)
	return append(block, data...)
}

// GetNextBlock reads a block written by PrependLength from the start of
// data. It returns the block content and the number of bytes consumed.
func GetNextBlock(data []byte) (block []byte, read int, err error) {
	length, n, err := Unpack64(data)
	if err != nil {
		return nil, 0, err
	}
	if length > uint64(len(data)-n) {
		return nil, 0, ErrBufferTooSmall
	}
	end := n + int(length)
	return data[n:end], end, nil
}

func binaryLen(n uint64) int {
	size := 1
	for n >= 0x80 {
		n >>= 7
		size++
	}
	return size
}
