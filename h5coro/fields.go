package h5coro

import "encoding/binary"

// readField reads a little-endian integer of 1, 2, 4 or 8 bytes at *pos and
// advances *pos. The value is copied out of the cache immediately.
func (f *h5File) readField(size int64, pos *uint64) uint64 {
	assert(size > 0, "invalid field size")
	data := f.ioRequest(size, pos, 0, nil)
	switch size {
	case 8:
		return binary.LittleEndian.Uint64(data)
	case 4:
		return uint64(binary.LittleEndian.Uint32(data))
	case 2:
		return uint64(binary.LittleEndian.Uint16(data))
	case 1:
		return uint64(data[0])
	}
	fail("invalid field size")
	return 0
}

// readByteArray copies size raw bytes at *pos and advances *pos.
func (f *h5File) readByteArray(size int64, pos *uint64) []byte {
	data := f.ioRequest(size, pos, 0, nil)
	out := make([]byte, size)
	copy(out, data)
	return out
}
