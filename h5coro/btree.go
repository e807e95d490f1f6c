package h5coro

// Version 1 B-tree walker for raw data chunks. Keys carry the chunk size,
// filter mask and the chunk's starting coordinates; consecutive keys bound
// each child, and children overlapping the requested row range are visited.

type btreeNode struct {
	chunkSize  uint32
	filterMask uint32
	slice      [maxNdims]uint64
	rowKey     uint64
}

func (f *h5File) readBTreeV1(pos uint64, buffer []byte, bufferSize int64, bufferOffset uint64) {
	startingPosition := pos
	dataKey1 := uint64(f.startRow)
	dataKey2 := uint64(f.startRow + f.numRows - 1)

	if !f.errorChecking {
		pos += 5
	} else {
		signature := f.readField(4, &pos)
		assertError(signature == treeSignature, ErrBadSignature, "invalid b-tree signature")

		nodeType := f.readField(1, &pos)
		assertError(nodeType == 1, ErrBadSignature, "only raw data chunk b-trees supported")
	}

	nodeLevel := f.readField(1, &pos)
	entriesUsed := int(f.readField(2, &pos))

	logger.Infof("b-tree node 0x%x: level %d, %d entries", startingPosition, nodeLevel, entriesUsed)

	// Skip sibling addresses
	pos += uint64(2 * f.meta.offsetSize)

	// Read first key
	currNode := f.readBTreeNodeV1(f.meta.ndims, &pos)

	for e := 0; e < entriesUsed; e++ {
		childAddr := f.readField(f.meta.offsetSize, &pos)
		nextNode := f.readBTreeNodeV1(f.meta.ndims, &pos)

		// A zero terminating key closes the last child at the first
		// dimension's extent
		childKey1 := currNode.rowKey
		childKey2 := nextNode.rowKey
		if nextNode.chunkSize == 0 && f.meta.ndims > 0 {
			childKey2 = f.meta.dimensions[0]
		}

		// Check inclusion against the requested row range
		if (dataKey1 >= childKey1 && dataKey1 < childKey2) ||
			(dataKey2 >= childKey1 && dataKey2 < childKey2) ||
			(childKey1 >= dataKey1 && childKey1 <= dataKey2) ||
			(childKey2 > dataKey1 && childKey2 < dataKey2) {
			if nodeLevel > 0 {
				f.readBTreeV1(childAddr, buffer, bufferSize, bufferOffset)
			} else {
				f.readChunk(&currNode, childAddr, buffer, bufferSize, bufferOffset)
			}
		}

		currNode = nextNode
	}
}

// readChunk computes the chunk's intersection with the output buffer and runs
// the chunk pipeline for one leaf entry.
func (f *h5File) readChunk(node *btreeNode, childAddr uint64, buffer []byte, bufferSize int64, bufferOffset uint64) {
	dataChunkBufferSize := int64(len(f.dataChunkBuffer))

	// Chunk location in the flattened element space
	chunkOffset := uint64(0)
	for i := 0; i < f.meta.ndims; i++ {
		sliceSize := node.slice[i] * uint64(f.meta.typeSize)
		for j := i + 1; j < f.meta.ndims; j++ {
			sliceSize *= f.meta.dimensions[j]
		}
		chunkOffset += sliceSize
	}

	// Offset into the output buffer to write to
	var bufferIndex int64
	if chunkOffset > bufferOffset {
		bufferIndex = int64(chunkOffset - bufferOffset)
		if bufferIndex >= bufferSize {
			failError(ErrOutOfRange, "invalid location to read data")
		}
	}

	// Offset into the chunk buffer to read from
	var chunkIndex int64
	if bufferOffset > chunkOffset {
		chunkIndex = int64(bufferOffset - chunkOffset)
		if chunkIndex >= dataChunkBufferSize {
			failError(ErrOutOfRange, "invalid location to read chunk")
		}
	}

	// Number of chunk bytes that land in the output buffer
	chunkBytes := dataChunkBufferSize - chunkIndex
	if chunkBytes < 0 {
		failError(ErrOutOfRange, "no bytes of chunk data to read")
	}
	if bufferIndex+chunkBytes > bufferSize {
		chunkBytes = bufferSize - bufferIndex
	}

	if f.meta.filter[deflateFilter] {
		var cached bool
		chunkPtr := f.ioRequest(int64(node.chunkSize), &childAddr, f.dataSizeHint, &cached)
		if cached {
			f.dataSizeHint = ioCacheL1LineSize
		}

		if chunkBytes == dataChunkBufferSize && !f.meta.filter[shuffleFilter] {
			// Inflate directly into the output buffer
			inflateChunk(chunkPtr, buffer[bufferIndex:bufferIndex+chunkBytes])
		} else {
			inflateChunk(chunkPtr, f.dataChunkBuffer)

			if f.meta.filter[shuffleFilter] {
				f.shuffleChunk(f.dataChunkBuffer, buffer[bufferIndex:bufferIndex+chunkBytes],
					chunkIndex, chunkBytes, f.meta.typeSize)
			} else {
				copy(buffer[bufferIndex:bufferIndex+chunkBytes], f.dataChunkBuffer[chunkIndex:])
			}
		}
	} else {
		if f.errorChecking {
			if f.meta.filter[shuffleFilter] {
				failError(ErrUnsupportedFilter, "shuffle filter unsupported on uncompressed chunk")
			}
			if chunkBytes == dataChunkBufferSize && int64(node.chunkSize) != chunkBytes {
				failError(ErrDecodeFailed, "mismatch in chunk size")
			}
		}

		var cached bool
		chunkPtr := f.ioRequest(int64(node.chunkSize), &childAddr, f.dataSizeHint, &cached)
		if cached {
			f.dataSizeHint = ioCacheL1LineSize
		}
		copy(buffer[bufferIndex:bufferIndex+chunkBytes], chunkPtr[chunkIndex:])
	}
}

// readBTreeNodeV1 reads one key of a chunk B-tree node.
func (f *h5File) readBTreeNodeV1(ndims int, pos *uint64) btreeNode {
	var node btreeNode

	node.chunkSize = uint32(f.readField(4, pos))
	node.filterMask = uint32(f.readField(4, pos))
	for d := 0; d < ndims; d++ {
		node.slice[d] = f.readField(8, pos)
	}

	// The key's final coordinate is the element-size dimension
	trailingZero := f.readField(8, pos)
	if f.errorChecking && trailingZero%uint64(f.meta.typeSize) != 0 {
		failError(ErrDecodeFailed, "key did not include a trailing zero")
	}

	node.rowKey = node.slice[0]
	return node
}
