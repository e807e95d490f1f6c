package h5coro

// Two-tier ranged-read cache. L1 holds small header-sized reads on 16 KiB
// lines, L2 holds large prefetch reads on 1 MiB lines. One mutex guards both
// tiers; backend reads happen outside it.

import "sync"

const (
	ioCacheL1LineSize = 0x4000
	ioCacheL1Mask     = uint64(ioCacheL1LineSize - 1)
	ioCacheL1Entries  = 157

	ioCacheL2LineSize = 0x100000
	ioCacheL2Mask     = uint64(ioCacheL2LineSize - 1)
	ioCacheL2Entries  = 17
)

type cacheEntry struct {
	pos  uint64
	size int64
	data []byte
}

// cacheTable is a bounded map of cache entries keyed by line-masked address,
// evicting the oldest inserted line when full.
type cacheTable struct {
	lineMask uint64
	capacity int
	entries  map[uint64]cacheEntry
	order    []uint64
}

func newCacheTable(capacity int, lineMask uint64) *cacheTable {
	return &cacheTable{
		lineMask: lineMask,
		capacity: capacity,
		entries:  make(map[uint64]cacheEntry, capacity),
		order:    make([]uint64, 0, capacity),
	}
}

func (t *cacheTable) hash(pos uint64) uint64 {
	return pos &^ t.lineMask
}

// check returns the entry fully containing [pos, pos+size), probing the
// request's line and the previous line to catch a range that wraps a line
// boundary.
func (t *cacheTable) check(size int64, pos uint64) (cacheEntry, bool) {
	if e, ok := t.entries[t.hash(pos)]; ok && e.contains(size, pos) {
		return e, true
	}
	prevLinePos := t.hash(pos) - 1
	if pos > prevLinePos { // checks for rollover
		if e, ok := t.entries[t.hash(prevLinePos)]; ok && e.contains(size, pos) {
			return e, true
		}
	}
	return cacheEntry{}, false
}

func (e *cacheEntry) contains(size int64, pos uint64) bool {
	return pos >= e.pos && pos+uint64(size) <= e.pos+uint64(e.size)
}

// add inserts the entry, superseding any entry already on the same line and
// evicting the oldest line when at capacity.
func (t *cacheTable) add(e cacheEntry) {
	key := t.hash(e.pos)
	if _, ok := t.entries[key]; ok {
		t.entries[key] = e
		return
	}
	if len(t.order) >= t.capacity {
		oldest := t.order[0]
		t.order = t.order[1:]
		delete(t.entries, oldest)
	}
	t.entries[key] = e
	t.order = append(t.order, key)
}

func (t *cacheTable) len() int {
	return len(t.entries)
}

// IOContext is the ranged-read cache for one resource. It may be shared by
// concurrent readers of the same file, or left nil on Read to use a local one.
type IOContext struct {
	mu        sync.Mutex
	l1        *cacheTable
	l2        *cacheTable
	readRqsts int64
	bytesRead int64
}

func NewIOContext() *IOContext {
	return &IOContext{
		l1: newCacheTable(ioCacheL1Entries, ioCacheL1Mask),
		l2: newCacheTable(ioCacheL2Entries, ioCacheL2Mask),
	}
}

// Stats reports the number of backend read requests and total bytes fetched
// through this context.
func (ctx *IOContext) Stats() (readRequests, bytesRead int64) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.readRqsts, ctx.bytesRead
}

// ioRequest fulfills a ranged read of size bytes at *pos, reading at least
// max(size, hint) bytes from the backend on a miss. The returned slice is
// borrowed from the cache; callers copy what they keep before issuing a
// request that could evict the same line. *pos advances by size. When cached
// is non-nil it is set to true iff the range was newly fetched and inserted.
func (f *h5File) ioRequest(size int64, pos *uint64, hint int64, cached *bool) []byte {
	var buffer []byte
	var offset int64
	filePosition := *pos

	if cached != nil {
		*cached = false
	}

	ctx := f.ioContext
	ctx.mu.Lock()
	if entry, ok := ctx.l1.check(size, filePosition); ok {
		buffer = entry.data
		offset = int64(filePosition - entry.pos)
	} else if entry, ok := ctx.l2.check(size, filePosition); ok {
		buffer = entry.data
		offset = int64(filePosition - entry.pos)
	}
	ctx.mu.Unlock()

	if buffer == nil {
		readSize := size
		if hint > readSize {
			readSize = hint
		}

		data := make([]byte, readSize)
		n, err := f.driver.read(data, filePosition)
		if err != nil {
			failError(ErrShortRead, "backend read failed: "+err.Error())
		}
		if n < size {
			failError(ErrShortRead, "failed to read the minimum number of bytes")
		}
		entry := cacheEntry{pos: filePosition, size: n, data: data[:n]}

		ctx.mu.Lock()
		cache := ctx.l2
		if entry.size <= ioCacheL1LineSize {
			cache = ctx.l1
		}
		cache.add(entry)
		if cached != nil {
			*cached = true
		}
		ctx.readRqsts++
		ctx.bytesRead += entry.size
		ctx.mu.Unlock()

		buffer = entry.data
	}

	*pos += uint64(size)
	return buffer[offset : offset+size]
}
