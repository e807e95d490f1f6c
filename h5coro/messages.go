package h5coro

// Header message parsers. Each returns the number of message bytes consumed
// from the parent stream.

// Dataspace message, version 1.
func (f *h5File) readDataspaceMsg(pos uint64, hdrFlags uint8, dlvl int) int64 {
	const maxDimPresent = 0x1
	const permIndexPresent = 0x2

	startingPosition := pos

	version := f.readField(1, &pos)
	dimensionality := int(f.readField(1, &pos))
	flags := f.readField(1, &pos)
	pos += 5 // go past reserved bytes

	if f.errorChecking {
		assertError(version == 1, ErrVersion, "invalid dataspace version")
		assertError(flags&permIndexPresent == 0, ErrUnsupportedType, "unsupported permutation indexes")
		assertError(dimensionality <= maxNdims, ErrUnsupportedType, "unsupported number of dimensions")
	}

	f.meta.ndims = dimensionality
	if f.meta.ndims > maxNdims {
		f.meta.ndims = maxNdims
	}
	if f.meta.ndims > 0 {
		for d := 0; d < f.meta.ndims; d++ {
			f.meta.dimensions[d] = f.readField(f.meta.lengthSize, &pos)
		}

		// Skip over maximum dimensions
		if flags&maxDimPresent != 0 {
			pos += uint64(int64(f.meta.ndims) * f.meta.lengthSize)
		}
	}

	logger.Infof("dataspace [%d]: %d dims %v", dlvl, f.meta.ndims, f.meta.dimensions[:f.meta.ndims])

	return int64(pos - startingPosition)
}

// Link info message, version 0; points v2 groups at their fractal heap.
func (f *h5File) readLinkInfoMsg(pos uint64, hdrFlags uint8, dlvl int) int64 {
	const maxCreatePresentBit = 0x01
	const createOrderPresentBit = 0x02

	startingPosition := pos

	version := f.readField(1, &pos)
	flags := f.readField(1, &pos)

	if f.errorChecking {
		assertError(version == 0, ErrVersion, "invalid link info version")
	}

	if flags&maxCreatePresentBit != 0 {
		f.readField(8, &pos) // maximum creation index
	}

	heapAddress := f.readField(f.meta.offsetSize, &pos)
	f.readField(f.meta.offsetSize, &pos) // name index b-tree address

	if flags&createOrderPresentBit != 0 {
		f.readField(8, &pos) // creation order index
	}

	if !h5Invalid(heapAddress, f.meta.offsetSize) {
		f.readFractalHeap(msgLink, heapAddress, hdrFlags, dlvl)
	}

	return int64(pos - startingPosition)
}

// Datatype message, version 1. Only fixed-point and floating-point classes
// can be materialized; other classes surface in the metadata and then fail.
func (f *h5File) readDatatypeMsg(pos uint64, hdrFlags uint8, dlvl int) int64 {
	startingPosition := pos

	versionClass := f.readField(4, &pos)
	f.meta.typeSize = int64(f.readField(4, &pos))
	version := (versionClass & 0xF0) >> 4

	if f.errorChecking {
		assertError(version == 1, ErrVersion, "invalid datatype version")
	}

	f.meta.typ = dataTypeClass(versionClass & 0x0F)
	logger.Infof("datatype [%d]: %s, %d bytes", dlvl, typeString(f.meta.typ), f.meta.typeSize)

	switch f.meta.typ {
	case fixedPointType:
		pos += 4 // bit offset, bit precision
	case floatingPointType:
		pos += 12 // bit fields, exponent and mantissa layout, bias
	default:
		if f.errorChecking {
			failError(ErrUnsupportedType, "unsupported datatype: "+typeString(f.meta.typ))
		}
	}

	return int64(pos - startingPosition)
}

// Fill value message, version 2.
func (f *h5File) readFillValueMsg(pos uint64, hdrFlags uint8, dlvl int) int64 {
	startingPosition := pos

	version := f.readField(1, &pos)
	if f.errorChecking {
		assertError(version == 2, ErrVersion, "invalid fill value version")
	}

	pos += 2 // space allocation time, fill value write time

	fillValueDefined := f.readField(1, &pos)
	if fillValueDefined != 0 {
		f.meta.fillSize = int64(f.readField(4, &pos))
		if f.meta.fillSize > 0 {
			f.meta.fill = f.readField(f.meta.fillSize, &pos)
		}
	}

	return int64(pos - startingPosition)
}

// Link message, version 1. Only hard links are followed; soft and external
// links are parsed for their fields.
func (f *h5File) readLinkMsg(pos uint64, hdrFlags uint8, dlvl int) int64 {
	const sizeOfLenOfNameMask = 0x03
	const createOrderPresentBit = 0x04
	const linkTypePresentBit = 0x08
	const charSetPresentBit = 0x10

	startingPosition := pos

	version := f.readField(1, &pos)
	flags := f.readField(1, &pos)

	if f.errorChecking {
		assertError(version == 1, ErrVersion, "invalid link version")
	}

	linkType := uint64(0) // default to hard link
	if flags&linkTypePresentBit != 0 {
		linkType = f.readField(1, &pos)
	}

	if flags&createOrderPresentBit != 0 {
		f.readField(8, &pos) // creation order
	}

	if flags&charSetPresentBit != 0 {
		f.readField(1, &pos) // character set
	}

	linkNameLenOfLen := int64(1) << (flags & sizeOfLenOfNameMask)
	if f.errorChecking && linkNameLenOfLen > 8 {
		failError(ErrInternal, "invalid link name length of length")
	}

	linkNameLen := int64(f.readField(linkNameLenOfLen, &pos))
	assertError(linkNameLen <= maxNameLen, ErrInternal, "link name exceeds maximum length")
	linkName := string(f.readByteArray(linkNameLen, &pos))
	logger.Infof("link [%d]: %q type %d", dlvl, linkName, linkType)

	switch linkType {
	case 0: // hard link
		objectHeaderAddr := f.readField(f.meta.offsetSize, &pos)
		if dlvl < len(f.datasetPath) && linkName == f.datasetPath[dlvl] {
			f.highestDataLevel = dlvl + 1
			f.readObjHdr(objectHeaderAddr, f.highestDataLevel)
		}

	case 1: // soft link
		softLinkLen := int64(f.readField(2, &pos))
		f.readByteArray(softLinkLen, &pos)

	case 64: // external link
		extLinkLen := int64(f.readField(2, &pos))
		f.readByteArray(extLinkLen, &pos)

	default:
		if f.errorChecking {
			failError(ErrLinkType, "invalid link type")
		}
	}

	return int64(pos - startingPosition)
}

// Data layout message, version 3.
func (f *h5File) readDataLayoutMsg(pos uint64, hdrFlags uint8, dlvl int) int64 {
	startingPosition := pos

	version := f.readField(1, &pos)
	f.meta.layout = layoutClass(f.readField(1, &pos))

	if f.errorChecking {
		assertError(version == 3, ErrVersion, "invalid data layout version")
	}

	logger.Infof("data layout [%d]: %s", dlvl, layoutString(f.meta.layout))

	switch f.meta.layout {
	case compactLayout:
		f.meta.size = int64(f.readField(2, &pos))
		f.meta.address = pos // data lives in the header itself
		pos += uint64(f.meta.size)

	case contiguousLayout:
		f.meta.address = f.readField(f.meta.offsetSize, &pos)
		f.meta.size = int64(f.readField(f.meta.lengthSize, &pos))

	case chunkedLayout:
		// Dimensionality is one over the actual number of dimensions
		chunkNumDim := int(f.readField(1, &pos)) - 1
		if chunkNumDim > maxNdims {
			chunkNumDim = maxNdims
		}
		if f.errorChecking {
			assertError(chunkNumDim == f.meta.ndims, ErrDecodeFailed,
				"number of chunk dimensions does not match data dimensions")
		}

		f.meta.address = f.readField(f.meta.offsetSize, &pos)

		if chunkNumDim > 0 {
			f.meta.chunkElements = 1
			for d := 0; d < chunkNumDim; d++ {
				f.meta.chunkElements *= int64(f.readField(4, &pos))
			}
		}

		f.meta.elementSize = int64(f.readField(4, &pos))

	default:
		if f.errorChecking {
			failError(ErrInternal, "invalid data layout: "+layoutString(f.meta.layout))
		}
	}

	return int64(pos - startingPosition)
}

// Filter pipeline message, version 1. Only DEFLATE and SHUFFLE are accepted.
func (f *h5File) readFilterMsg(pos uint64, hdrFlags uint8, dlvl int) int64 {
	startingPosition := pos

	version := f.readField(1, &pos)
	numFiltersPresent := int(f.readField(1, &pos))
	pos += 6 // move past reserved bytes

	if f.errorChecking {
		assertError(version == 1, ErrVersion, "invalid filter version")
	}

	for i := 0; i < numFiltersPresent; i++ {
		filterID := int(f.readField(2, &pos))
		nameLen := int64(f.readField(2, &pos))
		f.readField(2, &pos) // flags
		numParms := int64(f.readField(2, &pos))

		assertError(nameLen <= maxNameLen, ErrInternal, "filter name exceeds maximum length")
		filterName := string(f.readByteArray(nameLen, &pos))
		logger.Infof("filter [%d]: id %d %q", dlvl, filterID, filterName)

		if filterID == deflateFilter || filterID == shuffleFilter {
			f.meta.filter[filterID] = true
		} else {
			failError(ErrUnsupportedFilter, "invalid filter specified: "+filterName)
		}

		// Client data, padded to an even count
		pos += uint64(numParms * 4)
		if numParms%2 == 1 {
			pos += 4
		}
	}

	return int64(pos - startingPosition)
}

// Header continuation message: redirects parsing to a new block. V2 blocks
// carry an OCHK signature and trailing checksum; V1 blocks are bare.
func (f *h5File) readHeaderContMsg(pos uint64, hdrFlags uint8, dlvl int) int64 {
	hcOffset := f.readField(f.meta.offsetSize, &pos)
	hcLength := f.readField(f.meta.lengthSize, &pos)

	logger.Infof("header continuation [%d]: 0x%x, %d bytes", dlvl, hcOffset, hcLength)

	pos = hcOffset // go to continuation block
	if hdrFlags&customV1Flag != 0 {
		endOfChdr := hcOffset + hcLength
		f.readMessagesV1(pos, endOfChdr, hdrFlags, dlvl)
	} else {
		if f.errorChecking {
			signature := f.readField(4, &pos)
			assertError(signature == ochkSignature, ErrBadSignature,
				"invalid header continuation signature")
		} else {
			pos += 4
		}

		endOfChdr := hcOffset + hcLength - 4 // leave room for the checksum
		pos += uint64(f.readMessages(pos, endOfChdr, hdrFlags, dlvl))
		f.readField(4, &pos) // checksum, not validated
	}

	// The message consumed from the parent stream is just offset and length
	return f.meta.offsetSize + f.meta.lengthSize
}
