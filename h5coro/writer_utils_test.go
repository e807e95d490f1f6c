package h5coro

// Test encoders: enough of the HDF5 write path to build the structures the
// reader consumes, assembled in memory and flushed to temp files.

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/batchatco/go-h5coro/internal"
)

const undefinedAddr = ^uint64(0)

// fileBuilder assembles a file image with back-patching for addresses that
// are only known once later structures have been placed.
type fileBuilder struct {
	data []byte
}

// alloc reserves n zero bytes and returns their offset.
func (fb *fileBuilder) alloc(n int) uint64 {
	off := uint64(len(fb.data))
	fb.data = append(fb.data, make([]byte, n)...)
	return off
}

// place appends b and returns its offset.
func (fb *fileBuilder) place(b []byte) uint64 {
	off := uint64(len(fb.data))
	fb.data = append(fb.data, b...)
	return off
}

// patch overwrites previously allocated bytes at off.
func (fb *fileBuilder) patch(off uint64, b []byte) {
	copy(fb.data[off:], b)
}

// patchU64 overwrites one little-endian uint64 at off.
func (fb *fileBuilder) patchU64(off, val uint64) {
	binary.LittleEndian.PutUint64(fb.data[off:], val)
}

// write flushes the image to a file under dir and returns its file:// url.
// Basenames must be unique per test: the meta repository keys on them.
func (fb *fileBuilder) write(t *testing.T, dir, basename string) string {
	t.Helper()
	path := filepath.Join(dir, basename)
	if err := os.WriteFile(path, fb.data, 0o644); err != nil {
		t.Fatal("writing test file:", err)
	}
	return "file://" + path
}

// buildSuperblock emits the version-0 superblock. The root group object
// header address is patched in later at offset 64.
func (fb *fileBuilder) buildSuperblock() {
	buf := new(bytes.Buffer)
	internal.MustWriteRaw(buf, []byte("\x89HDF\r\n\x1a\n"))
	internal.MustWriteByte(buf, 0) // superblock version
	internal.MustWriteByte(buf, 0) // free space version
	internal.MustWriteByte(buf, 0) // root group symbol table version
	internal.MustWriteByte(buf, 0) // reserved
	internal.MustWriteByte(buf, 0) // shared header message version
	internal.MustWriteByte(buf, 8) // size of offsets
	internal.MustWriteByte(buf, 8) // size of lengths
	internal.MustWriteByte(buf, 0) // reserved
	internal.MustWriteLE(buf, uint16(4))  // group leaf node k
	internal.MustWriteLE(buf, uint16(16)) // group internal node k
	internal.MustWriteLE(buf, uint32(0))  // file consistency flags
	internal.MustWriteLE(buf, uint64(0))  // base address
	internal.MustWriteLE(buf, undefinedAddr) // free space address
	internal.MustWriteLE(buf, uint64(0))     // end of file address
	internal.MustWriteLE(buf, undefinedAddr) // driver info address
	// Root group symbol table entry
	internal.MustWriteLE(buf, uint64(0))     // link name offset
	internal.MustWriteLE(buf, uint64(0))     // object header address (patched)
	internal.MustWriteLE(buf, uint32(0))     // cache type
	internal.MustWriteLE(buf, uint32(0))     // reserved
	internal.MustWriteRaw(buf, make([]byte, 16)) // scratch pad
	fb.place(buf.Bytes())
}

func (fb *fileBuilder) setRootHeader(addr uint64) {
	fb.patchU64(64, addr)
}

// buildMessageV1 wraps a payload as one version 1 header message, padded to
// the 8-byte alignment the stream requires.
func buildMessageV1(msgType uint16, payload []byte) []byte {
	padded := len(payload)
	if padded%8 != 0 {
		padded += 8 - padded%8
	}
	buf := new(bytes.Buffer)
	internal.MustWriteLE(buf, msgType)
	internal.MustWriteLE(buf, uint16(padded))
	internal.MustWriteByte(buf, 0)               // flags
	internal.MustWriteRaw(buf, make([]byte, 3))  // reserved
	internal.MustWriteRaw(buf, payload)
	internal.MustWriteRaw(buf, make([]byte, padded-len(payload)))
	return buf.Bytes()
}

// buildObjHdrV1 wraps version 1 messages into an object header.
func buildObjHdrV1(messages ...[]byte) []byte {
	size := 0
	for _, m := range messages {
		size += len(m)
	}
	buf := new(bytes.Buffer)
	internal.MustWriteByte(buf, 1) // version
	internal.MustWriteByte(buf, 0) // reserved
	internal.MustWriteLE(buf, uint16(len(messages)))
	internal.MustWriteLE(buf, uint32(1)) // reference count
	internal.MustWriteLE(buf, uint32(size))
	internal.MustWriteLE(buf, uint32(0)) // padding
	for _, m := range messages {
		internal.MustWriteRaw(buf, m)
	}
	return buf.Bytes()
}

// buildMessageV2 wraps a payload as one version 2 header message.
func buildMessageV2(msgType uint8, payload []byte) []byte {
	buf := new(bytes.Buffer)
	internal.MustWriteByte(buf, msgType)
	internal.MustWriteLE(buf, uint16(len(payload)))
	internal.MustWriteByte(buf, 0) // flags
	internal.MustWriteRaw(buf, payload)
	return buf.Bytes()
}

// buildObjHdrV2 wraps version 2 messages into an OHDR block with a 4-byte
// chunk-0 size and trailing checksum.
func buildObjHdrV2(messages ...[]byte) []byte {
	size := 0
	for _, m := range messages {
		size += len(m)
	}
	buf := new(bytes.Buffer)
	internal.MustWriteRaw(buf, []byte("OHDR"))
	internal.MustWriteByte(buf, 2) // version
	internal.MustWriteByte(buf, 2) // flags: 4-byte size of chunk 0
	internal.MustWriteLE(buf, uint32(size))
	for _, m := range messages {
		internal.MustWriteRaw(buf, m)
	}
	internal.MustWriteLE(buf, uint32(0)) // checksum, not validated
	return buf.Bytes()
}

func buildDataspaceMessage(dimensions []uint64) []byte {
	buf := new(bytes.Buffer)
	internal.MustWriteByte(buf, 1) // version
	internal.MustWriteByte(buf, byte(len(dimensions)))
	internal.MustWriteByte(buf, 0)              // flags
	internal.MustWriteRaw(buf, make([]byte, 5)) // reserved
	for _, d := range dimensions {
		internal.MustWriteLE(buf, d)
	}
	return buf.Bytes()
}

func buildFixedPointDatatype(size int) []byte {
	buf := new(bytes.Buffer)
	internal.MustWriteByte(buf, 0x10) // version 1, class 0
	internal.MustWriteByte(buf, 0)    // little-endian, unsigned
	internal.MustWriteByte(buf, 0)
	internal.MustWriteByte(buf, 0)
	internal.MustWriteLE(buf, uint32(size))
	internal.MustWriteLE(buf, uint16(0))        // bit offset
	internal.MustWriteLE(buf, uint16(size*8))   // bit precision
	return buf.Bytes()
}

func buildFloatingPointDatatype(size int) []byte {
	buf := new(bytes.Buffer)
	internal.MustWriteByte(buf, 0x11) // version 1, class 1
	internal.MustWriteByte(buf, 0x20) // mantissa normalization
	if size == 4 {
		internal.MustWriteByte(buf, 31) // sign location
	} else {
		internal.MustWriteByte(buf, 63)
	}
	internal.MustWriteByte(buf, 0)
	internal.MustWriteLE(buf, uint32(size))
	internal.MustWriteLE(buf, uint16(0))        // bit offset
	internal.MustWriteLE(buf, uint16(size*8))   // bit precision
	if size == 4 {
		internal.MustWriteByte(buf, 23) // exponent location
		internal.MustWriteByte(buf, 8)  // exponent size
		internal.MustWriteByte(buf, 0)  // mantissa location
		internal.MustWriteByte(buf, 23) // mantissa size
		internal.MustWriteLE(buf, uint32(127))
	} else {
		internal.MustWriteByte(buf, 52)
		internal.MustWriteByte(buf, 11)
		internal.MustWriteByte(buf, 0)
		internal.MustWriteByte(buf, 52)
		internal.MustWriteLE(buf, uint32(1023))
	}
	return buf.Bytes()
}

// buildFillValueMessage; fill == nil means no fill value defined.
func buildFillValueMessage(fill []byte) []byte {
	buf := new(bytes.Buffer)
	internal.MustWriteByte(buf, 2) // version
	internal.MustWriteByte(buf, 2) // space allocation time
	internal.MustWriteByte(buf, 0) // fill value write time
	if fill == nil {
		internal.MustWriteByte(buf, 0)
		return buf.Bytes()
	}
	internal.MustWriteByte(buf, 1)
	internal.MustWriteLE(buf, uint32(len(fill)))
	internal.MustWriteRaw(buf, fill)
	return buf.Bytes()
}

func buildCompactLayoutMessage(data []byte) []byte {
	buf := new(bytes.Buffer)
	internal.MustWriteByte(buf, 3) // version
	internal.MustWriteByte(buf, 0) // compact
	internal.MustWriteLE(buf, uint16(len(data)))
	internal.MustWriteRaw(buf, data)
	return buf.Bytes()
}

func buildContiguousLayoutMessage(addr uint64, size uint64) []byte {
	buf := new(bytes.Buffer)
	internal.MustWriteByte(buf, 3) // version
	internal.MustWriteByte(buf, 1) // contiguous
	internal.MustWriteLE(buf, addr)
	internal.MustWriteLE(buf, size)
	return buf.Bytes()
}

func buildChunkedLayoutMessage(btreeAddr uint64, chunkDims []uint32, elementSize uint32) []byte {
	buf := new(bytes.Buffer)
	internal.MustWriteByte(buf, 3) // version
	internal.MustWriteByte(buf, 2) // chunked
	internal.MustWriteByte(buf, byte(len(chunkDims)+1))
	internal.MustWriteLE(buf, btreeAddr)
	for _, d := range chunkDims {
		internal.MustWriteLE(buf, d)
	}
	internal.MustWriteLE(buf, elementSize)
	return buf.Bytes()
}

type filterEntry struct {
	id     uint16
	params []uint32
}

func buildFilterMessage(filters ...filterEntry) []byte {
	buf := new(bytes.Buffer)
	internal.MustWriteByte(buf, 1) // version
	internal.MustWriteByte(buf, byte(len(filters)))
	internal.MustWriteRaw(buf, make([]byte, 6)) // reserved
	for _, f := range filters {
		internal.MustWriteLE(buf, f.id)
		internal.MustWriteLE(buf, uint16(0)) // no name
		internal.MustWriteLE(buf, uint16(1)) // flags: optional
		internal.MustWriteLE(buf, uint16(len(f.params)))
		for _, p := range f.params {
			internal.MustWriteLE(buf, p)
		}
		if len(f.params)%2 == 1 {
			internal.MustWriteLE(buf, uint32(0)) // padding
		}
	}
	return buf.Bytes()
}

func buildSymbolTableMessage(btreeAddr, heapAddr uint64) []byte {
	buf := new(bytes.Buffer)
	internal.MustWriteLE(buf, btreeAddr)
	internal.MustWriteLE(buf, heapAddr)
	return buf.Bytes()
}

// buildLocalHeap places the heap data segment holding the names and the
// heap header pointing at it, returning the header address and each name's
// offset in the data segment.
func (fb *fileBuilder) buildLocalHeap(names []string) (heapAddr uint64, offsets []uint64) {
	data := new(bytes.Buffer)
	internal.MustWriteByte(data, 0) // offset 0 stays reserved for ""
	for _, n := range names {
		offsets = append(offsets, uint64(data.Len()))
		internal.MustWriteRaw(data, []byte(n))
		internal.MustWriteByte(data, 0)
	}
	dataAddr := fb.place(data.Bytes())

	hdr := new(bytes.Buffer)
	internal.MustWriteRaw(hdr, []byte("HEAP"))
	internal.MustWriteByte(hdr, 0)              // version
	internal.MustWriteRaw(hdr, make([]byte, 3)) // reserved
	internal.MustWriteLE(hdr, uint64(data.Len()))
	internal.MustWriteLE(hdr, uint64(0)) // free list head
	internal.MustWriteLE(hdr, dataAddr)
	return fb.place(hdr.Bytes()), offsets
}

type symbolEntry struct {
	nameOffset uint64
	objHdrAddr uint64
}

// buildSymbolTableGroup places a SNOD and a one-node group B-tree over the
// given entries and returns the B-tree address.
func (fb *fileBuilder) buildSymbolTableGroup(entries []symbolEntry) uint64 {
	snod := new(bytes.Buffer)
	internal.MustWriteRaw(snod, []byte("SNOD"))
	internal.MustWriteByte(snod, 1) // version
	internal.MustWriteByte(snod, 0) // reserved
	internal.MustWriteLE(snod, uint16(len(entries)))
	for _, e := range entries {
		internal.MustWriteLE(snod, e.nameOffset)
		internal.MustWriteLE(snod, e.objHdrAddr)
		internal.MustWriteLE(snod, uint32(0))        // cache type
		internal.MustWriteLE(snod, uint32(0))        // reserved
		internal.MustWriteRaw(snod, make([]byte, 16)) // scratch pad
	}
	snodAddr := fb.place(snod.Bytes())

	node := new(bytes.Buffer)
	internal.MustWriteRaw(node, []byte("TREE"))
	internal.MustWriteByte(node, 0) // group node
	internal.MustWriteByte(node, 0) // leaf level
	internal.MustWriteLE(node, uint16(1))
	internal.MustWriteLE(node, undefinedAddr) // left sibling
	internal.MustWriteLE(node, undefinedAddr) // right sibling
	internal.MustWriteLE(node, uint64(0))     // key 0
	internal.MustWriteLE(node, snodAddr)
	internal.MustWriteLE(node, uint64(0)) // key 1
	return fb.place(node.Bytes())
}

// buildGroupHdrV1 places a version 1 group object header (symbol table plus
// local heap) over named children and returns the header address.
func (fb *fileBuilder) buildGroupHdrV1(names []string, children []uint64) uint64 {
	heapAddr, offsets := fb.buildLocalHeap(names)
	entries := make([]symbolEntry, len(names))
	for i := range names {
		entries[i] = symbolEntry{nameOffset: offsets[i], objHdrAddr: children[i]}
	}
	btreeAddr := fb.buildSymbolTableGroup(entries)
	hdr := buildObjHdrV1(buildMessageV1(msgSymbolTable, buildSymbolTableMessage(btreeAddr, heapAddr)))
	return fb.place(hdr)
}

// buildLinkMessage encodes one hard link the way it appears both in object
// headers and fractal heap direct blocks.
func buildLinkMessage(name string, objHdrAddr uint64) []byte {
	buf := new(bytes.Buffer)
	internal.MustWriteByte(buf, 1) // version
	internal.MustWriteByte(buf, 0) // flags: hard link, 1-byte name length
	internal.MustWriteByte(buf, byte(len(name)))
	internal.MustWriteRaw(buf, []byte(name))
	internal.MustWriteLE(buf, objHdrAddr)
	return buf.Bytes()
}

// fractal heap geometry shared by the builders below
type heapGeometry struct {
	tableWidth      int
	startingBlkSize int64
	maxDblkSize     int64
	currNumRows     int
}

// buildFractalHeap places link messages into a fractal heap and returns the
// heap header address. With currNumRows == 0 the root is one direct block;
// otherwise an indirect block whose first direct block holds the links.
func (fb *fileBuilder) buildFractalHeap(geo heapGeometry, links ...[]byte) uint64 {
	const blkOffsetSize = 4 // from a 32-bit maximum heap size

	// heap header address is needed inside the blocks; reserve it by
	// building blocks with a placeholder and patching afterwards
	var patchSites []uint64

	directBlock := func(payload [][]byte) uint64 {
		buf := new(bytes.Buffer)
		internal.MustWriteRaw(buf, []byte("FHDB"))
		internal.MustWriteByte(buf, 0)                         // version
		internal.MustWriteLE(buf, uint64(0))                   // heap header address (patched)
		internal.MustWriteRaw(buf, make([]byte, blkOffsetSize)) // block offset
		for _, m := range payload {
			internal.MustWriteRaw(buf, m)
		}
		if int64(buf.Len()) > geo.startingBlkSize {
			fail("direct block overflow in test encoder")
		}
		internal.MustWriteRaw(buf, make([]byte, geo.startingBlkSize-int64(buf.Len())))
		addr := fb.place(buf.Bytes())
		patchSites = append(patchSites, addr+5)
		return addr
	}

	rootAddr := directBlock(links)
	if geo.currNumRows > 0 {
		buf := new(bytes.Buffer)
		internal.MustWriteRaw(buf, []byte("FHIB"))
		internal.MustWriteByte(buf, 0)                         // version
		internal.MustWriteLE(buf, uint64(0))                   // heap header address (patched)
		internal.MustWriteRaw(buf, make([]byte, blkOffsetSize)) // block offset
		internal.MustWriteLE(buf, rootAddr)                    // first direct block
		for i := 1; i < geo.currNumRows*geo.tableWidth; i++ {
			internal.MustWriteLE(buf, undefinedAddr)
		}
		internal.MustWriteLE(buf, uint32(0)) // checksum
		addr := fb.place(buf.Bytes())
		patchSites = append(patchSites, addr+5)
		rootAddr = addr
	}

	hdr := new(bytes.Buffer)
	internal.MustWriteRaw(hdr, []byte("FRHP"))
	internal.MustWriteByte(hdr, 0)        // version
	internal.MustWriteLE(hdr, uint16(8))  // heap ID length
	internal.MustWriteLE(hdr, uint16(0))  // I/O filters' encoded length
	internal.MustWriteByte(hdr, 0)        // flags: no direct block checksums
	internal.MustWriteLE(hdr, uint32(4096)) // maximum size of managed objects
	internal.MustWriteLE(hdr, uint64(0))    // next huge object id
	internal.MustWriteLE(hdr, undefinedAddr) // huge object b-tree
	internal.MustWriteLE(hdr, uint64(0))     // free space
	internal.MustWriteLE(hdr, undefinedAddr) // free space manager
	internal.MustWriteLE(hdr, uint64(0))     // managed space
	internal.MustWriteLE(hdr, uint64(0))     // allocated managed space
	internal.MustWriteLE(hdr, uint64(0))     // direct block allocation iterator
	internal.MustWriteLE(hdr, uint64(len(links))) // managed objects
	internal.MustWriteLE(hdr, uint64(0))     // huge object size
	internal.MustWriteLE(hdr, uint64(0))     // huge objects
	internal.MustWriteLE(hdr, uint64(0))     // tiny object size
	internal.MustWriteLE(hdr, uint64(0))     // tiny objects
	internal.MustWriteLE(hdr, uint16(geo.tableWidth))
	internal.MustWriteLE(hdr, uint64(geo.startingBlkSize))
	internal.MustWriteLE(hdr, uint64(geo.maxDblkSize))
	internal.MustWriteLE(hdr, uint16(32)) // maximum heap size, bits
	internal.MustWriteLE(hdr, uint16(geo.currNumRows))
	internal.MustWriteLE(hdr, rootAddr)
	internal.MustWriteLE(hdr, uint16(geo.currNumRows))
	internal.MustWriteLE(hdr, uint32(0)) // checksum
	heapAddr := fb.place(hdr.Bytes())

	for _, site := range patchSites {
		fb.patchU64(site, heapAddr)
	}
	return heapAddr
}

func buildLinkInfoMessage(heapAddr uint64) []byte {
	buf := new(bytes.Buffer)
	internal.MustWriteByte(buf, 0) // version
	internal.MustWriteByte(buf, 0) // flags
	internal.MustWriteLE(buf, heapAddr)
	internal.MustWriteLE(buf, undefinedAddr) // name index b-tree
	return buf.Bytes()
}

// chunkRef describes one chunk placed on disk for the B-tree builder.
type chunkRef struct {
	row      uint64 // first-dimension coordinate of the chunk
	size     uint32 // bytes on disk
	addr     uint64
	lastRow  uint64 // row coordinate of the following chunk (terminator hint)
}

// buildChunkBTree places a single level-0 chunk B-tree node over the chunks.
func (fb *fileBuilder) buildChunkBTree(ndims int, chunks []chunkRef) uint64 {
	buf := new(bytes.Buffer)
	internal.MustWriteRaw(buf, []byte("TREE"))
	internal.MustWriteByte(buf, 1) // raw data chunk node
	internal.MustWriteByte(buf, 0) // leaf level
	internal.MustWriteLE(buf, uint16(len(chunks)))
	internal.MustWriteLE(buf, undefinedAddr) // left sibling
	internal.MustWriteLE(buf, undefinedAddr) // right sibling

	key := func(size uint32, row uint64) {
		internal.MustWriteLE(buf, size)
		internal.MustWriteLE(buf, uint32(0)) // filter mask
		internal.MustWriteLE(buf, row)
		for d := 1; d < ndims; d++ {
			internal.MustWriteLE(buf, uint64(0))
		}
		internal.MustWriteLE(buf, uint64(0)) // element-size coordinate
	}

	for i, c := range chunks {
		key(c.size, c.row)
		internal.MustWriteLE(buf, c.addr)
		if i == len(chunks)-1 {
			key(0, c.lastRow) // zero terminator
		}
	}
	return fb.place(buf.Bytes())
}

// shuffleBytes applies the forward SHUFFLE transform: byte v of every element
// is grouped into plane v.
func shuffleBytes(data []byte, typeSize int) []byte {
	n := len(data) / typeSize
	out := make([]byte, len(data))
	for e := 0; e < n; e++ {
		for v := 0; v < typeSize; v++ {
			out[v*n+e] = data[e*typeSize+v]
		}
	}
	return out
}

// deflateBytes compresses data as the zlib stream the DEFLATE filter stores.
func deflateBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	w := zlib.NewWriter(buf)
	if _, err := w.Write(data); err != nil {
		t.Fatal("deflating chunk:", err)
	}
	if err := w.Close(); err != nil {
		t.Fatal("closing deflate stream:", err)
	}
	return buf.Bytes()
}
