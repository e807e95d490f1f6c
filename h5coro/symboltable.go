package h5coro

// Version 1 group traversal: the symbol table message's B-tree over name keys
// plus its local string heap.

// readSymbolTableMsg descends the group B-tree to its leftmost level-0 node,
// then walks sibling nodes left to right, scanning each symbol table node for
// the current path component.
func (f *h5File) readSymbolTableMsg(pos uint64, hdrFlags uint8, dlvl int) int64 {
	btreeAddr := f.readField(f.meta.offsetSize, &pos)
	heapAddr := f.readField(f.meta.offsetSize, &pos)

	logger.Infof("symbol table [%d]: b-tree 0x%x, heap 0x%x", dlvl, btreeAddr, heapAddr)

	// Local heap data segment address
	pos = heapAddr
	if !f.errorChecking {
		pos += 24
	} else {
		signature := f.readField(4, &pos)
		assertError(signature == heapSignature, ErrBadSignature, "invalid heap signature")

		version := f.readField(1, &pos)
		assertError(version == 0, ErrVersion, "incorrect version of heap")

		pos += 19
	}
	heapDataAddr := f.readField(f.meta.offsetSize, &pos)

	// Go to the left-most level-0 node
	pos = btreeAddr
	for {
		if !f.errorChecking {
			pos += 5
		} else {
			signature := f.readField(4, &pos)
			assertError(signature == treeSignature, ErrBadSignature, "invalid group b-tree signature")

			nodeType := f.readField(1, &pos)
			assertError(nodeType == 0, ErrBadSignature, "only group b-trees supported")
		}

		nodeLevel := f.readField(1, &pos)
		if nodeLevel == 0 {
			break
		}
		// Skip entries used, sibling addresses and the first key, then
		// follow the first child
		pos += 2 + uint64(2*f.meta.offsetSize) + uint64(f.meta.lengthSize)
		pos = f.readField(f.meta.offsetSize, &pos)
	}

	// Traverse children left to right
	for {
		entriesUsed := int(f.readField(2, &pos))
		f.readField(f.meta.offsetSize, &pos) // left sibling
		rightSibling := f.readField(f.meta.offsetSize, &pos)
		f.readField(f.meta.lengthSize, &pos) // first key

		for entry := 0; entry < entriesUsed; entry++ {
			symbolTableAddr := f.readField(f.meta.offsetSize, &pos)
			f.readSymbolTable(symbolTableAddr, heapDataAddr, dlvl)
			pos += uint64(f.meta.lengthSize) // skip next key
			if f.highestDataLevel > dlvl {
				break // dataset found
			}
		}

		if h5Invalid(rightSibling, f.meta.offsetSize) || f.highestDataLevel > dlvl {
			break
		}

		// Siblings start with their own node header
		pos = rightSibling
		if !f.errorChecking {
			pos += 6
		} else {
			signature := f.readField(4, &pos)
			assertError(signature == treeSignature, ErrBadSignature, "invalid group b-tree signature")

			nodeType := f.readField(1, &pos)
			assertError(nodeType == 0, ErrBadSignature, "only group b-trees supported")

			nodeLevel := f.readField(1, &pos)
			assertError(nodeLevel == 0, ErrBadSignature, "sibling node not at leaf level")
		}
	}

	return f.meta.offsetSize + f.meta.offsetSize
}

// readSymbolTable scans one SNOD node, resolving link names against the local
// heap and recursing into the child object header on a match.
func (f *h5File) readSymbolTable(pos, heapDataAddr uint64, dlvl int) int64 {
	startingPosition := pos

	if !f.errorChecking {
		pos += 6
	} else {
		signature := f.readField(4, &pos)
		assertError(signature == snodSignature, ErrBadSignature, "invalid symbol table signature")

		version := f.readField(1, &pos)
		assertError(version == 1, ErrVersion, "incorrect version of symbol table")

		reserved0 := f.readField(1, &pos)
		assertError(reserved0 == 0, ErrBadSignature, "incorrect reserved value")
	}

	numSymbols := int(f.readField(2, &pos))
	for s := 0; s < numSymbols; s++ {
		linkNameOffset := f.readField(f.meta.offsetSize, &pos)
		objHdrAddr := f.readField(f.meta.offsetSize, &pos)
		cacheType := f.readField(4, &pos)
		pos += 20 // reserved + scratch pad

		if f.errorChecking && cacheType == 2 {
			failError(ErrLinkType, "symbolic links are unsupported")
		}

		// Link name is a C string in the local heap
		linkNameAddr := heapDataAddr + linkNameOffset
		var linkName []byte
		for {
			assertError(len(linkName) < maxNameLen, ErrInternal, "link name exceeds maximum length")
			c := byte(f.readField(1, &linkNameAddr))
			if c == 0 {
				break
			}
			linkName = append(linkName, c)
		}
		logger.Infof("symbol [%d]: %q -> 0x%x", dlvl, string(linkName), objHdrAddr)

		if dlvl < len(f.datasetPath) && string(linkName) == f.datasetPath[dlvl] {
			f.highestDataLevel = dlvl + 1
			f.readObjHdr(objHdrAddr, f.highestDataLevel)
			break // dataset found
		}
	}

	return int64(pos - startingPosition)
}
