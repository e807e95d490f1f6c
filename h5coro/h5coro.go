// Package h5coro is a read-only, range-oriented HDF5 reader. It extracts a
// single dataset (optionally a row subrange and column) from a local file or
// an S3 object without ever loading the whole file: it issues minimal ranged
// reads through a two-tier block cache and parses only the object headers and
// B-tree nodes needed to locate the target dataset and its chunks. Parsed
// dataset metadata is memoized process-wide so repeated reads skip the walk.
package h5coro

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/batchatco/go-thrower"
)

// DatasetInfo is the result of one Read.
type DatasetInfo struct {
	Data     []byte  // raw little-endian values
	DataSize int64   // len(Data)
	Elements int64   // number of values
	TypeSize int64   // bytes per value
	DataType ValType // numeric kind of the values in Data
	NumRows  int64
	NumCols  int64
}

// Int32s views the buffer as int32 values. Valid after Read with Integer.
func (info *DatasetInfo) Int32s() []int32 {
	out := make([]int32, info.Elements)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(info.Data[i*4:]))
	}
	return out
}

// Float64s views the buffer as float64 values. Valid after Read with Real.
func (info *DatasetInfo) Float64s() []float64 {
	out := make([]float64, info.Elements)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(info.Data[i*8:]))
	}
	return out
}

// Float32s views the buffer as float32 values, for Dynamic reads of f32 data.
func (info *DatasetInfo) Float32s() []float32 {
	out := make([]float32, info.Elements)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(info.Data[i*4:]))
	}
	return out
}

// h5File is the state of one read against one resource.
type h5File struct {
	driver        ioDriver
	resource      string
	datasetName   string
	datasetPath   []string
	startRow      int64
	numRows       int64
	errorChecking bool

	ioContext *IOContext

	meta             metaData
	highestDataLevel int

	dataChunkBuffer []byte
	dataSizeHint    int64
}

func openFile(ctx *IOContext, url, dataset string, startRow, numRows int64, errorChecking bool) *h5File {
	driver, resource, err := openDriver(url)
	thrower.ThrowIfError(err)

	f := &h5File{
		driver:        driver,
		resource:      resource,
		datasetName:   dataset,
		startRow:      startRow,
		numRows:       numRows,
		errorChecking: errorChecking,
		ioContext:     ctx,
	}
	if f.ioContext == nil {
		f.ioContext = NewIOContext()
	}
	return f
}

func (f *h5File) close() {
	if err := f.driver.close(); err != nil {
		logger.Warn("closing driver:", err)
	}
}

// Read extracts one dataset from the resource at url. numRows may be AllRows;
// col selects a single column when non-negative and the dataset has more than
// one. valtype Integer or Real coerces the values element-wise; Dynamic and
// Text return them as stored. ctx may be nil for a read-local cache, or shared
// across concurrent reads of the same resource.
func Read(url, dataset string, valtype ValType, col, startRow, numRows int64, ctx *IOContext) (info *DatasetInfo, err error) {
	defer func() {
		if err != nil {
			info = nil
			err = fmt.Errorf("%w (%s)", err, dataset)
		}
	}()
	defer thrower.RecoverError(&err)

	f := openFile(ctx, url, dataset, startRow, numRows, true)
	defer f.close()

	info = new(DatasetInfo)
	f.process(info)

	// Perform column translation
	if info.NumCols > 1 && col >= 0 {
		assertError(col < info.NumCols, ErrOutOfRange, "column exceeds dataset width")
		selectColumn(info, col)
	}

	// Perform numeric type translation
	switch valtype {
	case Integer:
		translateToInt32(info)
	case Real:
		translateToFloat64(info)
	}

	logger.Infof("read %d elements (%d bytes) from %s %s",
		info.Elements, info.DataSize, url, dataset)
	return info, nil
}

// process resolves the dataset metadata (from the repository when memoized,
// otherwise by walking the file) and reads the data.
func (f *h5File) process(info *DatasetInfo) {
	metaURL := metaGetURL(f.resource, f.datasetName)
	metaKey := metaGetKey(metaURL)

	meta, found := metaRepo.find(metaKey, metaURL)
	if found {
		f.meta = meta
	} else {
		f.meta.url = metaURL
		f.meta.typ = unknownType
		f.meta.layout = unknownLayout

		f.parseDatasetPath()
		rootGroupOffset := f.readSuperblock()
		f.readObjHdr(rootGroupOffset, 0)
		if f.highestDataLevel < len(f.datasetPath) {
			failError(ErrNotFound, "dataset not found: "+f.datasetName)
		}
	}

	f.readDataset(info)

	// Publish only after the walk and the read both succeeded.
	metaRepo.add(metaKey, f.meta)
}

// Traverse opens the file and walks to startGroup, reporting whether the walk
// resolved every path component.
func Traverse(url, startGroup string) (found bool, err error) {
	defer thrower.RecoverError(&err)

	f := openFile(nil, url, startGroup, 0, 0, true)
	defer f.close()

	f.meta.typ = unknownType
	f.meta.layout = unknownLayout
	f.parseDatasetPath()
	rootGroupOffset := f.readSuperblock()
	f.readObjHdr(rootGroupOffset, 0)

	return f.highestDataLevel == len(f.datasetPath), nil
}

// selectColumn rewrites the buffer to hold a single column, one element per
// row.
func selectColumn(info *DatasetInfo, col int64) {
	colBufSize := info.DataSize / info.NumCols
	colBuf := make([]byte, colBufSize)

	rowSize := info.DataSize / info.NumRows
	colSize := rowSize / info.NumCols
	for row := int64(0); row < info.NumRows; row++ {
		colOffset := row * colSize
		dataOffset := row*rowSize + col*colSize
		copy(colBuf[colOffset:colOffset+colSize], info.Data[dataOffset:])
	}

	info.Data = colBuf
	info.DataSize = colBufSize
	info.Elements = info.Elements / info.NumCols
	info.NumCols = 1
}

func translateToInt32(info *DatasetInfo) {
	out := make([]byte, 4*info.Elements)
	for i := int64(0); i < info.Elements; i++ {
		var v int32
		switch {
		case info.DataType == Real && info.TypeSize == 4:
			v = int32(math.Float32frombits(binary.LittleEndian.Uint32(info.Data[i*4:])))
		case info.DataType == Real && info.TypeSize == 8:
			v = int32(math.Float64frombits(binary.LittleEndian.Uint64(info.Data[i*8:])))
		case info.DataType == Integer && info.TypeSize == 1:
			v = int32(info.Data[i])
		case info.DataType == Integer && info.TypeSize == 2:
			v = int32(binary.LittleEndian.Uint16(info.Data[i*2:]))
		case info.DataType == Integer && info.TypeSize == 4:
			v = int32(binary.LittleEndian.Uint32(info.Data[i*4:]))
		case info.DataType == Integer && info.TypeSize == 8:
			v = int32(binary.LittleEndian.Uint64(info.Data[i*8:]))
		default:
			failError(ErrTranslation, fmt.Sprintf(
				"data translation failed: [%d,%d] %d --> %d",
				info.NumCols, info.TypeSize, info.DataType, Integer))
		}
		binary.LittleEndian.PutUint32(out[i*4:], uint32(v))
	}
	info.Data = out
	info.DataSize = int64(len(out))
	info.TypeSize = 4
	info.DataType = Integer
}

func translateToFloat64(info *DatasetInfo) {
	out := make([]byte, 8*info.Elements)
	for i := int64(0); i < info.Elements; i++ {
		var v float64
		switch {
		case info.DataType == Real && info.TypeSize == 4:
			v = float64(math.Float32frombits(binary.LittleEndian.Uint32(info.Data[i*4:])))
		case info.DataType == Real && info.TypeSize == 8:
			v = math.Float64frombits(binary.LittleEndian.Uint64(info.Data[i*8:]))
		case info.DataType == Integer && info.TypeSize == 1:
			v = float64(info.Data[i])
		case info.DataType == Integer && info.TypeSize == 2:
			v = float64(binary.LittleEndian.Uint16(info.Data[i*2:]))
		case info.DataType == Integer && info.TypeSize == 4:
			v = float64(binary.LittleEndian.Uint32(info.Data[i*4:]))
		case info.DataType == Integer && info.TypeSize == 8:
			v = float64(binary.LittleEndian.Uint64(info.Data[i*8:]))
		default:
			failError(ErrTranslation, fmt.Sprintf(
				"data translation failed: [%d,%d] %d --> %d",
				info.NumCols, info.TypeSize, info.DataType, Real))
		}
		binary.LittleEndian.PutUint64(out[i*8:], math.Float64bits(v))
	}
	info.Data = out
	info.DataSize = int64(len(out))
	info.TypeSize = 8
	info.DataType = Real
}
