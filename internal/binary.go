package internal

// Little-endian write helpers used by the test encoders.

import (
	"encoding/binary"
	"io"

	"github.com/batchatco/go-thrower"
)

// MustWriteLE wraps binary.Write with LittleEndian and throws an error if it fails.
func MustWriteLE(w io.Writer, data any) {
	err := binary.Write(w, binary.LittleEndian, data)
	thrower.ThrowIfError(err)
}

// MustWriteByte wraps WriteByte and throws an error if it fails.
func MustWriteByte(w io.ByteWriter, c byte) {
	err := w.WriteByte(c)
	thrower.ThrowIfError(err)
}

// MustWriteRaw wraps Write and throws an error if it fails.
func MustWriteRaw(w io.Writer, p []byte) {
	_, err := w.Write(p)
	thrower.ThrowIfError(err)
}
