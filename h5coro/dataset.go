package h5coro

// Superblock, dataset path, and the dataset assembler that dispatches on the
// storage layout once the metadata walk has finished.

import (
	"encoding/binary"
	"strings"
)

// parseDatasetPath splits the dataset name on '/' into ordered path
// components; a leading slash is ignored.
func (f *h5File) parseDatasetPath() {
	name := strings.TrimPrefix(f.datasetName, "/")
	if name == "" {
		f.datasetPath = nil
		return
	}
	f.datasetPath = strings.Split(name, "/")
}

// readSuperblock parses the version-0 superblock and returns the root group
// object header address.
func (f *h5File) readSuperblock() uint64 {
	pos := uint64(0)

	if f.errorChecking {
		signature := f.readField(8, &pos)
		assertError(signature == h5Signature, ErrBadSignature, "invalid h5 file signature")

		superblockVersion := f.readField(1, &pos)
		assertError(superblockVersion == 0, ErrVersion, "invalid h5 file superblock version")

		freespaceVersion := f.readField(1, &pos)
		assertError(freespaceVersion == 0, ErrVersion, "invalid h5 file free space version")

		roottableVersion := f.readField(1, &pos)
		assertError(roottableVersion == 0, ErrVersion, "invalid h5 file root table version")

		pos++ // reserved

		headermsgVersion := f.readField(1, &pos)
		assertError(headermsgVersion == 0, ErrVersion, "invalid h5 file header message version")
	}

	// Offset and length sizes
	pos = 13
	f.meta.offsetSize = int64(f.readField(1, &pos))
	f.meta.lengthSize = int64(f.readField(1, &pos))

	// Root group object header address
	pos = 64
	rootGroupOffset := f.readField(f.meta.offsetSize, &pos)

	logger.Infof("superblock: offset size %d, length size %d, root group 0x%x",
		f.meta.offsetSize, f.meta.lengthSize, rootGroupOffset)

	return rootGroupOffset
}

// readDataset allocates the output buffer, tiles the fill value, and reads
// the requested row range according to the storage layout.
func (f *h5File) readDataset(info *DatasetInfo) {
	info.TypeSize = f.meta.typeSize
	info.DataType = Dynamic

	if f.meta.typeSize <= 0 {
		failError(ErrNotFound, "missing data type information")
	}

	// Size of one data row (dimensions past the first)
	rowSize := f.meta.typeSize
	for d := 1; d < f.meta.ndims; d++ {
		rowSize *= int64(f.meta.dimensions[d])
	}

	var firstDimension int64
	if f.meta.ndims > 0 {
		firstDimension = int64(f.meta.dimensions[0])
	}
	if f.numRows == AllRows {
		f.numRows = firstDimension
	}
	if f.startRow+f.numRows > firstDimension {
		failError(ErrOutOfRange, "read exceeds number of rows")
	}

	bufferSize := rowSize * f.numRows
	buffer := make([]byte, bufferSize)

	// Tile the fill value when one was defined
	if f.meta.fillSize > 0 && bufferSize > 0 {
		var fill [8]byte
		binary.LittleEndian.PutUint64(fill[:], f.meta.fill)
		for i := int64(0); i < bufferSize; i += f.meta.fillSize {
			copy(buffer[i:], fill[:f.meta.fillSize])
		}
	}

	info.Elements = bufferSize / f.meta.typeSize
	info.DataSize = bufferSize
	info.Data = buffer
	info.NumRows = f.numRows

	switch {
	case f.meta.ndims == 0:
		info.NumCols = 0
	case f.meta.ndims == 1:
		info.NumCols = 1
	default:
		info.NumCols = int64(f.meta.dimensions[1])
	}

	switch f.meta.typ {
	case fixedPointType:
		info.DataType = Integer
	case floatingPointType:
		info.DataType = Real
	case stringType:
		info.DataType = Text
	}

	bufferOffset := uint64(rowSize * f.startRow)

	if f.errorChecking {
		if h5Invalid(f.meta.address, f.meta.offsetSize) {
			failError(ErrOutOfRange, "data not allocated in contiguous layout")
		}
		if f.meta.size != 0 && f.meta.size < int64(bufferOffset)+bufferSize {
			failError(ErrOutOfRange, "read exceeds available data")
		}
		if (f.meta.filter[deflateFilter] || f.meta.filter[shuffleFilter]) &&
			(f.meta.layout == compactLayout || f.meta.layout == contiguousLayout) {
			failError(ErrUnsupportedFilter, "filters unsupported on non-chunked layouts")
		}
	}

	if bufferSize == 0 {
		return
	}

	switch f.meta.layout {
	case compactLayout, contiguousLayout:
		dataAddr := f.meta.address + bufferOffset
		dataPtr := f.ioRequest(bufferSize, &dataAddr, 0, nil)
		copy(buffer, dataPtr)

	case chunkedLayout:
		if f.errorChecking {
			if f.meta.elementSize != f.meta.typeSize {
				failError(ErrDecodeFailed, "chunk element size does not match data element size")
			}
			if f.meta.chunkElements <= 0 {
				failError(ErrDecodeFailed, "invalid number of chunk elements")
			}
		}

		f.dataChunkBuffer = make([]byte, f.meta.chunkElements*f.meta.typeSize)

		// If reading from the start of the data segment past the desired
		// subset only doubles the bytes fetched, prefetch the whole span up
		// front; when that prefetch is newly fetched, drop the per-chunk hint
		// to one L1 line.
		f.dataSizeHint = bufferSize
		if int64(bufferOffset) < bufferSize {
			var cached bool
			prefetchAddr := f.meta.address
			f.ioRequest(0, &prefetchAddr, int64(bufferOffset)+bufferSize, &cached)
			if cached {
				f.dataSizeHint = ioCacheL1LineSize
			}
		}

		f.readBTreeV1(f.meta.address, buffer, bufferSize, bufferOffset)

	default:
		if f.errorChecking {
			failError(ErrInternal, "invalid data layout: "+layoutString(f.meta.layout))
		}
	}
}
