package h5coro

import "errors"

var (
	// ErrInvalidURL is returned for URLs with an unrecognized scheme
	ErrInvalidURL = errors.New("invalid url")

	// ErrOpenFailed is returned when the underlying resource cannot be opened
	ErrOpenFailed = errors.New("failed to open resource")

	// ErrShortRead is returned when the backend returns fewer bytes than the
	// parser requires
	ErrShortRead = errors.New("short read")

	// ErrBadSignature is returned when an on-disk structure does not carry
	// its expected signature
	ErrBadSignature = errors.New("bad signature")

	// ErrVersion is returned when the particular HDF5 version is not supported
	ErrVersion = errors.New("hdf5 version not supported")

	// ErrLinkType is returned for symbolic and other unsupported link types
	ErrLinkType = errors.New("link type not supported")

	// ErrFilteredHeap is returned when a fractal heap carries an I/O filter
	ErrFilteredHeap = errors.New("filtered fractal heap not supported")

	// ErrUnsupportedType is returned for datatypes that cannot be materialized
	ErrUnsupportedType = errors.New("datatype not supported")

	// ErrUnsupportedFilter is returned when an unrecognized filter is encountered
	ErrUnsupportedFilter = errors.New("unsupported filter found")

	// ErrOutOfRange is returned when a request exceeds the dataset dimensions
	// or the file itself
	ErrOutOfRange = errors.New("out of range")

	// ErrDecodeFailed is returned for zlib failures and chunk size mismatches
	ErrDecodeFailed = errors.New("decode failed")

	// ErrNotFound is returned when the dataset path cannot be resolved
	ErrNotFound = errors.New("dataset not found")

	// ErrTranslation is returned when a numeric coercion is requested from an
	// unsupported native type
	ErrTranslation = errors.New("translation failed")

	// ErrInternal is an internal error not otherwise specified here
	ErrInternal = errors.New("internal error")
)
