// Package columnar moves Arrow record batches and schemas across the C Data
// Interface. Every exchange is a move: the side receiving the structs is the
// only one left responsible for releasing them.
package columnar

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/cdata"
	"github.com/cockroachdb/errors"
)

// ErrExport marks failures to describe a batch or schema in C Data Interface
// structs.
var ErrExport = errors.New("arrow export failed")

// ExportBatch moves rec into the caller supplied structs. Both must be empty.
// rec stays owned by the caller, the exported structs hold their own
// reference to its buffers. On failure arr and schema are left untouched.
func ExportBatch(rec arrow.Record, arr *cdata.CArrowArray, schema *cdata.CArrowSchema) error {
	if arr == nil || schema == nil {
		return errors.AssertionFailedf("export batch: nil destination")
	}

	var (
		tmpArr    cdata.CArrowArray
		tmpSchema cdata.CArrowSchema
	)
	if err := exporting(func() {
		cdata.ExportArrowRecordBatch(rec, &tmpArr, &tmpSchema)
	}); err != nil {
		return err
	}

	*arr, tmpArr = tmpArr, *arr
	*schema, tmpSchema = tmpSchema, *schema
	return nil
}

// ExportSchema moves a description of s into out. A schema without fields is
// exported as a struct type without children, which is distinct from an
// empty out.
func ExportSchema(s *arrow.Schema, out *cdata.CArrowSchema) error {
	if out == nil {
		return errors.AssertionFailedf("export schema: nil destination")
	}
	var tmp cdata.CArrowSchema
	if err := exporting(func() {
		cdata.ExportArrowSchema(s, &tmp)
	}); err != nil {
		return err
	}
	*out, tmp = tmp, *out
	return nil
}

// EmptySchema is the schema reported when there is no result set.
func EmptySchema() *arrow.Schema {
	return arrow.NewSchema(nil, nil)
}

// ImportBatch takes ownership of a batch exported by the caller and leaves
// arr and schema empty, also on failure.
func ImportBatch(arr *cdata.CArrowArray, schema *cdata.CArrowSchema) (arrow.Record, error) {
	if arr == nil || schema == nil {
		return nil, errors.AssertionFailedf("import batch: nil source")
	}
	defer releaseSchema(schema)
	if IsEmptyArray(arr) || IsEmptySchema(schema) {
		if !IsEmptyArray(arr) {
			cdata.ReleaseCArrowArray(arr)
			*arr = cdata.CArrowArray{}
		}
		return nil, errors.Mark(errors.New("import record batch: no batch given"), ErrExport)
	}
	defer func() {
		*arr = cdata.CArrowArray{}
	}()

	rec, err := cdata.ImportCRecordBatch(arr, schema)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "import record batch"), ErrExport)
	}
	return rec, nil
}

// ImportSchema takes ownership of a schema exported by the caller and leaves
// it empty, also on failure.
func ImportSchema(schema *cdata.CArrowSchema) (*arrow.Schema, error) {
	if schema == nil {
		return nil, errors.AssertionFailedf("import schema: nil source")
	}
	defer releaseSchema(schema)
	if IsEmptySchema(schema) {
		return nil, errors.Mark(errors.New("import schema: no schema given"), ErrExport)
	}

	s, err := cdata.ImportCArrowSchema(schema)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "import schema"), ErrExport)
	}
	return s, nil
}

func releaseSchema(schema *cdata.CArrowSchema) {
	if !IsEmptySchema(schema) {
		cdata.ReleaseCArrowSchema(schema)
	}
	*schema = cdata.CArrowSchema{}
}

// IsEmptyArray reports whether arr is the all zero sentinel.
func IsEmptyArray(arr *cdata.CArrowArray) bool {
	return *arr == cdata.CArrowArray{}
}

// IsEmptySchema reports whether schema is the all zero sentinel.
func IsEmptySchema(schema *cdata.CArrowSchema) bool {
	return *schema == cdata.CArrowSchema{}
}

// exporting turns a panic of the exporter, raised for types the C Data
// Interface cannot describe, into ErrExport.
func exporting(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Mark(errors.Newf("export to C data interface: %s", fmt.Sprint(r)), ErrExport)
		}
	}()
	fn()
	return nil
}
