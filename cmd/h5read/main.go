// Command h5read extracts one dataset from an HDF5 resource and prints a
// summary of what it read.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/batchatco/go-h5coro/h5coro"
)

func main() {
	var (
		url      = flag.String("url", "", "resource url (file:// or s3://)")
		dataset  = flag.String("dataset", "", "dataset path, e.g. /gt1l/h")
		col      = flag.Int64("col", -1, "column to select when the dataset is 2-D")
		startRow = flag.Int64("start", 0, "first row to read")
		numRows  = flag.Int64("rows", h5coro.AllRows, "number of rows to read (-1 for all)")
		valType  = flag.String("type", "dynamic", "value type: dynamic, integer, real or text")
		verbose  = flag.Bool("v", false, "log the structure walk")
		traverse = flag.Bool("traverse", false, "only walk to the named group")
	)
	flag.Parse()

	if *url == "" || *dataset == "" {
		flag.Usage()
		os.Exit(1)
	}
	if *verbose {
		h5coro.SetLogLevel(3)
	}

	if *traverse {
		found, err := h5coro.Traverse(*url, *dataset)
		if err != nil {
			fmt.Fprintln(os.Stderr, "traverse failed:", err)
			os.Exit(1)
		}
		fmt.Printf("%s %s: found=%v\n", *url, *dataset, found)
		return
	}

	var vt h5coro.ValType
	switch *valType {
	case "dynamic":
		vt = h5coro.Dynamic
	case "integer":
		vt = h5coro.Integer
	case "real":
		vt = h5coro.Real
	case "text":
		vt = h5coro.Text
	default:
		fmt.Fprintln(os.Stderr, "unknown value type:", *valType)
		os.Exit(1)
	}

	info, err := h5coro.Read(*url, *dataset, vt, *col, *startRow, *numRows, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read failed:", err)
		os.Exit(1)
	}

	fmt.Printf("%s %s: %d elements, %d bytes, %d x %d, type size %d\n",
		*url, *dataset, info.Elements, info.DataSize, info.NumRows, info.NumCols, info.TypeSize)

	const preview = 8
	switch {
	case vt == h5coro.Real:
		vals := info.Float64s()
		if len(vals) > preview {
			vals = vals[:preview]
		}
		fmt.Println("values:", vals)
	case vt == h5coro.Integer:
		vals := info.Int32s()
		if len(vals) > preview {
			vals = vals[:preview]
		}
		fmt.Println("values:", vals)
	}
}
