package h5coro

// Object header walker: version 1 and version 2 headers, their message
// streams, and header continuation blocks.

// Version 2 object header flag bits.
const (
	sizeOfChunk0Mask    = 0x03
	attrCreationTrack   = 0x04
	storeChangePhaseBit = 0x10
	fileStatsBit        = 0x20
)

// customV1Flag marks a recursion that came from a version 1 header, whose
// continuation blocks carry no signature or checksum. It occupies a bit no
// real header flag uses.
const customV1Flag = 0x80

// readObjHdr parses the object header at pos; dlvl is the dataset path level
// this header sits at. Returns the number of bytes read.
func (f *h5File) readObjHdr(pos uint64, dlvl int) int64 {
	startingPosition := pos

	// Version 1 headers have no signature; peek at the first byte.
	peekingPosition := pos
	if f.readField(1, &peekingPosition) == 1 {
		return f.readObjHdrV1(startingPosition, dlvl)
	}

	if !f.errorChecking {
		pos += 5 // move past signature and version
	} else {
		signature := f.readField(4, &pos)
		assertError(signature == ohdrSignature, ErrBadSignature, "invalid header signature")

		version := f.readField(1, &pos)
		assertError(version == 2, ErrVersion, "invalid header version")
	}

	logger.Infof("object header [%d]: 0x%x", dlvl, startingPosition)

	objHdrFlags := uint8(f.readField(1, &pos))
	if objHdrFlags&fileStatsBit != 0 {
		pos += 16 // move past time fields
	}
	if objHdrFlags&storeChangePhaseBit != 0 {
		pos += 4 // move past phase attributes
	}

	sizeOfChunk0 := f.readField(int64(1)<<(objHdrFlags&sizeOfChunk0Mask), &pos)
	endOfHdr := pos + sizeOfChunk0
	pos += uint64(f.readMessages(pos, endOfHdr, objHdrFlags, dlvl))

	// Trailing checksum is read but not validated
	f.readField(4, &pos)

	return int64(pos - startingPosition)
}

// readMessages walks a version 2 message stream until end.
func (f *h5File) readMessages(pos, end uint64, hdrFlags uint8, dlvl int) int64 {
	startingPosition := pos

	for pos < end {
		msgType := f.readField(1, &pos)
		msgSize := int64(f.readField(2, &pos))
		f.readField(1, &pos) // message flags

		if hdrFlags&attrCreationTrack != 0 {
			f.readField(2, &pos) // creation order
		}

		bytesRead := f.readMessage(int(msgType), msgSize, pos, hdrFlags, dlvl)
		if f.errorChecking && bytesRead != msgSize {
			failError(ErrInternal, "message different size than specified")
		}

		if f.highestDataLevel > dlvl {
			pos = end // dataset found, go directly to end of header
			break
		}

		pos += uint64(bytesRead)
	}

	if f.errorChecking && pos != end {
		failError(ErrInternal, "did not read correct number of header bytes")
	}

	return int64(pos - startingPosition)
}

// readObjHdrV1 parses a version 1 object header.
func (f *h5File) readObjHdrV1(pos uint64, dlvl int) int64 {
	startingPosition := pos

	if !f.errorChecking {
		pos += 2
	} else {
		version := f.readField(1, &pos)
		assertError(version == 1, ErrVersion, "invalid header version")

		reserved0 := f.readField(1, &pos)
		assertError(reserved0 == 0, ErrBadSignature, "invalid reserved field")
	}

	logger.Infof("object header v1 [%d]: 0x%x", dlvl, startingPosition)

	pos += 2 // message count (informational)
	pos += 4 // object reference count

	objHdrSize := f.readField(f.meta.lengthSize, &pos)
	endOfHdr := pos + objHdrSize

	pos += uint64(f.readMessagesV1(pos, endOfHdr, customV1Flag, dlvl))

	return int64(pos - startingPosition)
}

// readMessagesV1 walks a version 1 message stream until end. Messages are
// 8-byte aligned.
func (f *h5File) readMessagesV1(pos, end uint64, hdrFlags uint8, dlvl int) int64 {
	const sizeOfV1Prefix = 8

	startingPosition := pos

	for pos < end-sizeOfV1Prefix {
		msgType := f.readField(2, &pos)
		msgSize := int64(f.readField(2, &pos))
		f.readField(1, &pos) // message flags

		if !f.errorChecking {
			pos += 3
		} else {
			reserved1 := f.readField(1, &pos)
			reserved2 := f.readField(2, &pos)
			assertError(reserved1 == 0 || reserved2 == 0, ErrBadSignature, "invalid reserved fields")
		}

		bytesRead := f.readMessage(int(msgType), msgSize, pos, hdrFlags, dlvl)

		// Messages are 8-byte aligned
		if bytesRead%8 > 0 {
			bytesRead += 8 - bytesRead%8
		}
		if f.errorChecking && bytesRead != msgSize {
			failError(ErrInternal, "message different size than specified")
		}

		if f.highestDataLevel > dlvl {
			pos = end // dataset found, go directly to end of header
			break
		}

		pos += uint64(bytesRead)
	}

	// Move past gap
	if pos < end {
		pos = end
	}

	if f.errorChecking && pos != end {
		failError(ErrInternal, "did not read correct number of header bytes")
	}

	return int64(pos - startingPosition)
}

// readMessage dispatches one header message. Uninterpreted message types are
// skipped by their stated size.
func (f *h5File) readMessage(msgType int, size int64, pos uint64, hdrFlags uint8, dlvl int) int64 {
	switch msgType {
	case msgDataspace:
		return f.readDataspaceMsg(pos, hdrFlags, dlvl)
	case msgLinkInfo:
		return f.readLinkInfoMsg(pos, hdrFlags, dlvl)
	case msgDatatype:
		return f.readDatatypeMsg(pos, hdrFlags, dlvl)
	case msgFillValue:
		return f.readFillValueMsg(pos, hdrFlags, dlvl)
	case msgLink:
		return f.readLinkMsg(pos, hdrFlags, dlvl)
	case msgDataLayout:
		return f.readDataLayoutMsg(pos, hdrFlags, dlvl)
	case msgFilter:
		return f.readFilterMsg(pos, hdrFlags, dlvl)
	case msgHeaderCont:
		return f.readHeaderContMsg(pos, hdrFlags, dlvl)
	case msgSymbolTable:
		return f.readSymbolTableMsg(pos, hdrFlags, dlvl)
	default:
		logger.Infof("skipped message [%d]: 0x%x, %d, 0x%x", dlvl, msgType, size, pos)
		return size
	}
}
