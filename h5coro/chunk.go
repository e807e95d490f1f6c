package h5coro

// Chunk pipeline: DEFLATE inflate and SHUFFLE de-interleave.

import (
	"bytes"
	"compress/zlib"
	"io"
)

// inflateChunk inflates a zlib stream into output, which must be exactly the
// uncompressed size.
func inflateChunk(input, output []byte) {
	r, err := zlib.NewReader(bytes.NewReader(input))
	if err != nil {
		failError(ErrDecodeFailed, "failed to initialize inflate stream: "+err.Error())
	}
	defer r.Close()

	if _, err := io.ReadFull(r, output); err != nil {
		failError(ErrDecodeFailed, "failed to inflate entire stream: "+err.Error())
	}
}

// shuffleChunk de-shuffles input into output. The shuffled chunk holds
// typeSize planes of len(input)/typeSize bytes; element e is reassembled from
// byte e of every plane. outputOffset and outputSize select the element range
// of the chunk that lands in the output.
func (f *h5File) shuffleChunk(input, output []byte, outputOffset, outputSize, typeSize int64) {
	if f.errorChecking {
		if typeSize < 1 || typeSize > 8 {
			failError(ErrDecodeFailed, "invalid data size to perform shuffle on")
		}
	}

	dstIndex := int64(0)
	shuffleBlockSize := int64(len(input)) / typeSize
	numElements := outputSize / typeSize
	startElement := outputOffset / typeSize
	for elementIndex := startElement; elementIndex < startElement+numElements; elementIndex++ {
		for valIndex := int64(0); valIndex < typeSize; valIndex++ {
			srcIndex := valIndex*shuffleBlockSize + elementIndex
			output[dstIndex] = input[srcIndex]
			dstIndex++
		}
	}
}
