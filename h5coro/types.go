package h5coro

import "github.com/batchatco/go-h5coro/internal"

var (
	logger = internal.NewLogger()
	log    = "don't use the log package" // prevents usage of standard log package
)

// SetLogLevel sets the logging level to the given level, and returns the old
// level. The log messages are mostly structure-walk traces and are not
// expected to make much sense to anyone but the developers. The lowest level
// is 0 (fatal only) and the highest level is 3 (errors, warnings and traces).
func SetLogLevel(level int) int {
	old := logger.LogLevel()
	switch level {
	case 0:
		logger.SetLogLevel(internal.LevelFatal)
	case 1:
		logger.SetLogLevel(internal.LevelError)
	case 2:
		logger.SetLogLevel(internal.LevelWarn)
	default:
		logger.SetLogLevel(internal.LevelInfo)
	}
	return int(old)
}

// ValType is the value type a caller can request from Read, and also the
// numeric kind reported back on a DatasetInfo.
type ValType int

const (
	Dynamic ValType = iota // whatever is stored on disk
	Integer                // coerce to int32
	Real                   // coerce to float64
	Text                   // raw bytes of a string dataset
)

// AllRows selects every row of the first dimension.
const AllRows = -1

// maxNdims bounds the dimensionality this reader handles.
const maxNdims = 4

// Datatype message classes.
type dataTypeClass int

const (
	fixedPointType dataTypeClass = iota
	floatingPointType
	timeType
	stringType
	bitFieldType
	opaqueType
	compoundType
	referenceType
	enumeratedType
	variableLengthType
	arrayType

	unknownType dataTypeClass = -1
)

// Data layout classes (data layout message version 3).
type layoutClass int

const (
	compactLayout layoutClass = iota
	contiguousLayout
	chunkedLayout

	unknownLayout layoutClass = -1
)

// Filter identification values. Anything at or beyond numFilters fails fast.
const (
	deflateFilter = 1
	shuffleFilter = 2
	numFilters    = 3
)

// Little-endian signatures as readField returns them.
const (
	h5Signature   = 0x0a1a0a0d46444889 // \x89HDF\r\n\x1a\n
	ohdrSignature = 0x5244484f         // OHDR
	ochkSignature = 0x4b48434f         // OCHK
	frhpSignature = 0x50485246         // FRHP
	fhdbSignature = 0x42444846         // FHDB
	fhibSignature = 0x42494846         // FHIB
	treeSignature = 0x45455254         // TREE
	snodSignature = 0x444f4e53         // SNOD
	heapSignature = 0x50414548         // HEAP
)

// Header message types interpreted by this reader.
const (
	msgDataspace   = 0x01
	msgLinkInfo    = 0x02
	msgDatatype    = 0x03
	msgFillValue   = 0x05
	msgLink        = 0x06
	msgDataLayout  = 0x08
	msgFilter      = 0x0b
	msgHeaderCont  = 0x10
	msgSymbolTable = 0x11
)

// Sanity bound on link and filter name strings.
const maxNameLen = 1024

// metaData is the parsed description of one dataset, memoized per
// (resource, dataset) in the meta repository.
type metaData struct {
	url           string
	typ           dataTypeClass
	typeSize      int64
	fill          uint64
	fillSize      int64
	ndims         int
	dimensions    [maxNdims]uint64
	chunkElements int64
	elementSize   int64
	offsetSize    int64
	lengthSize    int64
	layout        layoutClass
	address       uint64
	size          int64
	filter        [numFilters]bool
}

// h5Invalid reports whether an address field of the given byte width holds
// the HDF5 "undefined address" value (all ones).
func h5Invalid(value uint64, width int64) bool {
	return value == (^uint64(0) >> (64 - uint(width)*8))
}

// highestBit returns the position of the highest set bit (0 for values < 2).
func highestBit(value uint64) int {
	bit := 0
	for value >>= 1; value != 0; value >>= 1 {
		bit++
	}
	return bit
}

func typeString(t dataTypeClass) string {
	switch t {
	case fixedPointType:
		return "fixed-point"
	case floatingPointType:
		return "floating-point"
	case timeType:
		return "time"
	case stringType:
		return "string"
	case bitFieldType:
		return "bitfield"
	case opaqueType:
		return "opaque"
	case compoundType:
		return "compound"
	case referenceType:
		return "reference"
	case enumeratedType:
		return "enumerated"
	case variableLengthType:
		return "variable-length"
	case arrayType:
		return "array"
	default:
		return "unknown"
	}
}

func layoutString(l layoutClass) string {
	switch l {
	case compactLayout:
		return "compact"
	case contiguousLayout:
		return "contiguous"
	case chunkedLayout:
		return "chunked"
	default:
		return "unknown"
	}
}
