package h5coro

// Process-wide repository of parsed dataset metadata, keyed by a hash of
// "<basename>/<dataset-path>". Entries are published only after a fully
// successful parse and read.

import (
	"encoding/binary"
	"strings"
	"sync"
)

const (
	metaMaxFilename  = 128
	metaRepoCapacity = 256
)

type metaRepository struct {
	mu      sync.Mutex
	entries map[uint64]metaData
	order   []uint64
}

var metaRepo = &metaRepository{
	entries: make(map[uint64]metaData, metaRepoCapacity),
}

// metaGetURL builds the repository URL: the resource basename joined with the
// dataset path.
func metaGetURL(resource, dataset string) string {
	filename := resource
	if slash := strings.LastIndexByte(resource, '/'); slash >= 0 {
		filename = resource[slash+1:]
	}
	dataset = strings.TrimPrefix(dataset, "/")

	url := filename + "/" + dataset
	// At least two terminators must fit in the padded key buffer
	if len(url) > metaMaxFilename-2 {
		failError(ErrInternal, "truncated meta repository url: "+url)
	}
	return url
}

// metaGetKey sums the 64-bit words of the zero-padded URL.
func metaGetKey(url string) uint64 {
	var padded [metaMaxFilename]byte
	copy(padded[:], url)

	var key uint64
	for i := 0; i < metaMaxFilename; i += 8 {
		key += binary.LittleEndian.Uint64(padded[i:])
	}
	return key
}

// find copies out the entry under key when its stored URL matches exactly.
func (r *metaRepository) find(key uint64, url string) (metaData, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	meta, ok := r.entries[key]
	if !ok || meta.url != url {
		return metaData{}, false
	}
	return meta, true
}

// add inserts the entry, evicting the oldest when the repository is full.
func (r *metaRepository) add(key uint64, meta metaData) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[key]; ok {
		r.entries[key] = meta
		return
	}
	if len(r.order) >= metaRepoCapacity {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.entries, oldest)
	}
	r.entries[key] = meta
	r.order = append(r.order, key)
}
