package h5coro

// Fractal heap walker for version 2 groups. The heap stores link messages as
// managed objects in a tier of direct blocks, enumerated either directly from
// the root or through indirect blocks whose rows double in size.

const frhpChecksumDirectBlocks = 0x02

type heapInfo struct {
	tableWidth      int
	currNumRows     int
	startingBlkSize int64
	maxDblkSize     int64
	blkOffsetSize   int64 // derived from the maximum heap size in bits
	dblkChecksum    bool
	msgType         int
	numObjects      int64
	curObjects      int64 // updated as objects are read
}

// readFractalHeap parses the heap header at pos and walks its blocks looking
// for msgType messages (links, for group traversal).
func (f *h5File) readFractalHeap(msgType int, pos uint64, hdrFlags uint8, dlvl int) int64 {
	startingPosition := pos

	if !f.errorChecking {
		pos += 5
	} else {
		signature := f.readField(4, &pos)
		assertError(signature == frhpSignature, ErrBadSignature, "invalid heap signature")

		version := f.readField(1, &pos)
		assertError(version == 0, ErrVersion, "invalid heap version")
	}

	logger.Infof("fractal heap [%d]: 0x%x", dlvl, startingPosition)

	f.readField(2, &pos)                       // heap ID length
	ioFilterLen := f.readField(2, &pos)        // I/O filters' encoded length
	flags := uint8(f.readField(1, &pos))       // flags
	f.readField(4, &pos)                       // maximum size of managed objects
	f.readField(f.meta.lengthSize, &pos)       // next huge object ID
	f.readField(f.meta.offsetSize, &pos)       // v2 b-tree address of huge objects
	f.readField(f.meta.lengthSize, &pos)       // free space in managed blocks
	f.readField(f.meta.offsetSize, &pos)       // address of managed block free space manager
	f.readField(f.meta.lengthSize, &pos)       // amount of managed space in heap
	f.readField(f.meta.lengthSize, &pos)       // amount of allocated managed space in heap
	f.readField(f.meta.lengthSize, &pos)       // offset of direct block allocation iterator
	mgObjs := f.readField(f.meta.lengthSize, &pos) // number of managed objects in heap
	f.readField(f.meta.lengthSize, &pos)       // size of huge objects in heap
	f.readField(f.meta.lengthSize, &pos)       // number of huge objects in heap
	f.readField(f.meta.lengthSize, &pos)       // size of tiny objects in heap
	f.readField(f.meta.lengthSize, &pos)       // number of tiny objects in heap
	tableWidth := int(f.readField(2, &pos))
	startingBlkSize := int64(f.readField(f.meta.lengthSize, &pos))
	maxDblkSize := int64(f.readField(f.meta.lengthSize, &pos))
	maxHeapSize := f.readField(2, &pos) // maximum heap size, in bits
	f.readField(2, &pos)                // starting # of rows in root indirect block
	rootBlkAddr := f.readField(f.meta.offsetSize, &pos)
	currNumRows := int(f.readField(2, &pos))

	if ioFilterLen > 0 {
		failError(ErrFilteredHeap, "filtering unsupported on fractal heap")
	}

	f.readField(4, &pos) // checksum, not validated

	info := heapInfo{
		tableWidth:      tableWidth,
		currNumRows:     currNumRows,
		startingBlkSize: startingBlkSize,
		maxDblkSize:     maxDblkSize,
		blkOffsetSize:   int64(maxHeapSize+7) / 8,
		dblkChecksum:    flags&frhpChecksumDirectBlocks != 0,
		msgType:         msgType,
		numObjects:      int64(mgObjs),
	}

	if info.currNumRows == 0 {
		// Root block is a single direct block
		bytesRead := f.readDirectBlock(&info, info.startingBlkSize, rootBlkAddr, hdrFlags, dlvl)
		if f.errorChecking && bytesRead > info.startingBlkSize {
			failError(ErrInternal, "direct block contained more bytes than specified")
		}
		pos += uint64(info.startingBlkSize)
	} else {
		// Root block is an indirect block
		bytesRead := f.readIndirectBlock(&info, 0, rootBlkAddr, hdrFlags, dlvl)
		pos += uint64(bytesRead)
	}

	return int64(pos - startingPosition)
}

// readDirectBlock parses link messages out of one direct block until the
// payload is exhausted or the next bytes (up to eight) are all zero.
func (f *h5File) readDirectBlock(info *heapInfo, blockSize int64, pos uint64, hdrFlags uint8, dlvl int) int64 {
	startingPosition := pos

	if !f.errorChecking {
		pos += 5
	} else {
		signature := f.readField(4, &pos)
		assertError(signature == fhdbSignature, ErrBadSignature, "invalid direct block signature")

		version := f.readField(1, &pos)
		assertError(version == 0, ErrVersion, "invalid direct block version")
	}

	logger.Infof("direct block [%d]: %d bytes at 0x%x", dlvl, blockSize, startingPosition)

	// Block prefix: heap header back-pointer and block offset
	pos += uint64(f.meta.offsetSize + info.blkOffsetSize)
	if info.dblkChecksum {
		pos += 4
	}

	prefixSize := int64(5) + f.meta.offsetSize + info.blkOffsetSize
	if info.dblkChecksum {
		prefixSize += 4
	}

	dataLeft := blockSize - prefixSize
	for dataLeft > 0 {
		// Peek whether more messages follow
		peekAddr := pos
		peekSize := int64(1) << highestBit(uint64(dataLeft))
		if peekSize > 8 {
			peekSize = 8
		}
		if f.readField(peekSize, &peekAddr) == 0 {
			break
		}

		dataRead := f.readMessage(info.msgType, dataLeft, pos, hdrFlags, dlvl)
		pos += uint64(dataRead)
		dataLeft -= dataRead

		// There are often more links in a heap than managed objects, so the
		// object count cannot be used to know when to stop reading.
		info.curObjects++

		if f.errorChecking && dataLeft < 0 {
			failError(ErrInternal, "reading message exceeded end of direct block")
		}

		if f.highestDataLevel > dlvl {
			break // dataset found
		}
	}

	// Skip to end of block
	pos += uint64(dataLeft)

	return int64(pos - startingPosition)
}

// readIndirectBlock enumerates child blocks: rows 0 and 1 use the starting
// block size, each later row doubles it; rows at or below the maximum direct
// block size hold direct blocks, the rest hold further indirect blocks.
func (f *h5File) readIndirectBlock(info *heapInfo, blockSize int64, pos uint64, hdrFlags uint8, dlvl int) int64 {
	startingPosition := pos

	if !f.errorChecking {
		pos += 5
	} else {
		signature := f.readField(4, &pos)
		assertError(signature == fhibSignature, ErrBadSignature, "invalid indirect block signature")

		version := f.readField(1, &pos)
		assertError(version == 0, ErrVersion, "invalid indirect block version")
	}

	logger.Infof("indirect block [%d]: 0x%x", dlvl, startingPosition)

	// Block prefix: heap header back-pointer and block offset
	pos += uint64(f.meta.offsetSize + info.blkOffsetSize)

	// Number of rows; the root indirect block takes it from the header
	nrows := info.currNumRows
	if blockSize > 0 {
		nrows = highestBit(uint64(blockSize)) -
			highestBit(uint64(info.startingBlkSize*int64(info.tableWidth))) + 1
	}
	maxDblockRows := highestBit(uint64(info.maxDblkSize)) -
		highestBit(uint64(info.startingBlkSize)) + 2

	for row := 0; row < nrows; row++ {
		var rowBlockSize int64
		switch {
		case row <= 1:
			rowBlockSize = info.startingBlkSize
		default:
			rowBlockSize = info.startingBlkSize * (int64(2) << (row - 2))
		}

		for entry := 0; entry < info.tableWidth; entry++ {
			if rowBlockSize <= info.maxDblkSize {
				// Direct block entry
				if f.errorChecking && row >= maxDblockRows {
					failError(ErrInternal, "unexpected direct block row")
				}

				directBlockAddr := f.readField(f.meta.offsetSize, &pos)
				// filters are unsupported, but if present would be read here
				if !h5Invalid(directBlockAddr, f.meta.offsetSize) && dlvl >= f.highestDataLevel {
					bytesRead := f.readDirectBlock(info, rowBlockSize, directBlockAddr, hdrFlags, dlvl)
					if f.errorChecking && bytesRead > rowBlockSize {
						failError(ErrInternal, "direct block contained more bytes than specified")
					}
				}
			} else {
				// Indirect block entry
				indirectBlockAddr := f.readField(f.meta.offsetSize, &pos)
				if !h5Invalid(indirectBlockAddr, f.meta.offsetSize) && dlvl >= f.highestDataLevel {
					bytesRead := f.readIndirectBlock(info, rowBlockSize, indirectBlockAddr, hdrFlags, dlvl)
					if f.errorChecking && bytesRead > rowBlockSize {
						failError(ErrInternal, "indirect block contained more bytes than specified")
					}
				}
			}
		}
	}

	f.readField(4, &pos) // checksum, not validated

	return int64(pos - startingPosition)
}
