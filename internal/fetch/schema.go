package fetch

import (
	"database/sql"
	"reflect"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/cockroachdb/errors"

	"sql-arrow-bridge/internal/driver"
)

// maxDecimal128Precision is the widest decimal Arrow's Decimal128 can hold.
// Wider decimals are fetched as text.
const maxDecimal128Precision = 38

var (
	timestampType   = &arrow.TimestampType{Unit: arrow.Microsecond}
	timestampTZType = &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}
	timeType        = &arrow.Time64Type{Unit: arrow.Microsecond}
)

// SchemaFromColumns describes a result set in Arrow.
func SchemaFromColumns(cols []driver.Column) (*arrow.Schema, error) {
	return SchemaFor(cols, Quirks{})
}

// SchemaFor describes a result set of a data source with the workarounds q.
func SchemaFor(cols []driver.Column, q Quirks) (*arrow.Schema, error) {
	fields := make([]arrow.Field, len(cols))
	for i, col := range cols {
		dt, err := ArrowType(col)
		if err != nil {
			return nil, err
		}
		if q.IntervalTime && dt.ID() == arrow.TIME64 {
			dt = arrow.BinaryTypes.String
		}
		fields[i] = arrow.Field{Name: col.Name, Type: dt, Nullable: col.Nullable}
	}
	return arrow.NewSchema(fields, nil), nil
}

// ArrowType maps the driver's description of a column to an Arrow type.
func ArrowType(col driver.Column) (arrow.DataType, error) {
	name := strings.ToUpper(strings.TrimSpace(col.DatabaseType))
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = strings.TrimSpace(name[:i])
	}
	unsigned := false
	if rest, ok := strings.CutPrefix(name, "UNSIGNED "); ok {
		name, unsigned = rest, true
	}
	if rest, ok := strings.CutSuffix(name, " UNSIGNED"); ok {
		name, unsigned = rest, true
	}

	switch name {
	case "TINYINT":
		return pick(unsigned, arrow.PrimitiveTypes.Uint8, arrow.PrimitiveTypes.Int8), nil
	case "SMALLINT", "INT2", "YEAR":
		return pick(unsigned, arrow.PrimitiveTypes.Uint16, arrow.PrimitiveTypes.Int16), nil
	case "INT", "INTEGER", "INT4", "MEDIUMINT":
		return pick(unsigned, arrow.PrimitiveTypes.Uint32, arrow.PrimitiveTypes.Int32), nil
	case "BIGINT", "INT8":
		return pick(unsigned, arrow.PrimitiveTypes.Uint64, arrow.PrimitiveTypes.Int64), nil
	case "FLOAT", "REAL", "FLOAT4":
		return arrow.PrimitiveTypes.Float32, nil
	case "DOUBLE", "DOUBLE PRECISION", "FLOAT8":
		return arrow.PrimitiveTypes.Float64, nil
	case "DECIMAL", "NUMERIC":
		if col.HasPrecisionScale && col.Precision > 0 && col.Precision <= maxDecimal128Precision {
			return &arrow.Decimal128Type{Precision: int32(col.Precision), Scale: int32(col.Scale)}, nil
		}
		return arrow.BinaryTypes.String, nil
	case "BOOL", "BOOLEAN":
		return arrow.FixedWidthTypes.Boolean, nil
	case "BIT":
		if !col.HasLength || col.Length <= 1 {
			return arrow.FixedWidthTypes.Boolean, nil
		}
		return arrow.BinaryTypes.Binary, nil
	case "DATE":
		return arrow.FixedWidthTypes.Date32, nil
	case "DATETIME", "TIMESTAMP", "DATETIME2", "SMALLDATETIME":
		return timestampType, nil
	case "TIMESTAMPTZ", "DATETIMEOFFSET":
		return timestampTZType, nil
	case "TIME":
		return timeType, nil
	case "BINARY", "VARBINARY", "BLOB", "TINYBLOB", "MEDIUMBLOB", "LONGBLOB", "BYTEA", "IMAGE":
		return arrow.BinaryTypes.Binary, nil
	case "CHAR", "VARCHAR", "TEXT", "TINYTEXT", "MEDIUMTEXT", "LONGTEXT",
		"NCHAR", "NVARCHAR", "NTEXT", "BPCHAR", "CLOB", "STRING",
		"UUID", "JSON", "JSONB", "ENUM", "SET", "XML", "INTERVAL":
		return arrow.BinaryTypes.String, nil
	}

	if dt := arrowTypeOfScanType(col.ScanType); dt != nil {
		return dt, nil
	}
	return nil, errors.Mark(
		errors.Wrapf(ErrUnsupportedColumnType, "column %q of type %q", col.Name, col.DatabaseType),
		ErrConversion)
}

func pick(cond bool, a, b arrow.DataType) arrow.DataType {
	if cond {
		return a
	}
	return b
}

var (
	bytesType    = reflect.TypeOf([]byte(nil))
	timeTimeType = reflect.TypeOf(time.Time{})
)

// arrowTypeOfScanType is the fallback for type names the mapping does not
// know. It returns nil if the scan type does not help either.
func arrowTypeOfScanType(t reflect.Type) arrow.DataType {
	if t == nil {
		return nil
	}
	switch t {
	case bytesType, reflect.TypeOf(sql.RawBytes(nil)):
		return arrow.BinaryTypes.String
	case timeTimeType, reflect.TypeOf(sql.NullTime{}):
		return timestampType
	case reflect.TypeOf(sql.NullString{}):
		return arrow.BinaryTypes.String
	case reflect.TypeOf(sql.NullInt64{}):
		return arrow.PrimitiveTypes.Int64
	case reflect.TypeOf(sql.NullInt32{}):
		return arrow.PrimitiveTypes.Int32
	case reflect.TypeOf(sql.NullInt16{}):
		return arrow.PrimitiveTypes.Int16
	case reflect.TypeOf(sql.NullFloat64{}):
		return arrow.PrimitiveTypes.Float64
	case reflect.TypeOf(sql.NullBool{}):
		return arrow.FixedWidthTypes.Boolean
	}
	switch t.Kind() {
	case reflect.String:
		return arrow.BinaryTypes.String
	case reflect.Bool:
		return arrow.FixedWidthTypes.Boolean
	case reflect.Int8:
		return arrow.PrimitiveTypes.Int8
	case reflect.Int16:
		return arrow.PrimitiveTypes.Int16
	case reflect.Int32:
		return arrow.PrimitiveTypes.Int32
	case reflect.Int, reflect.Int64:
		return arrow.PrimitiveTypes.Int64
	case reflect.Uint8:
		return arrow.PrimitiveTypes.Uint8
	case reflect.Uint16:
		return arrow.PrimitiveTypes.Uint16
	case reflect.Uint32:
		return arrow.PrimitiveTypes.Uint32
	case reflect.Uint, reflect.Uint64:
		return arrow.PrimitiveTypes.Uint64
	case reflect.Float32:
		return arrow.PrimitiveTypes.Float32
	case reflect.Float64:
		return arrow.PrimitiveTypes.Float64
	}
	return nil
}

// supported reports whether values can be materialized into dt.
func supported(dt arrow.DataType) bool {
	switch dt.ID() {
	case arrow.BOOL,
		arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64,
		arrow.FLOAT32, arrow.FLOAT64, arrow.DECIMAL128,
		arrow.DATE32, arrow.TIMESTAMP, arrow.TIME64,
		arrow.STRING, arrow.LARGE_STRING, arrow.BINARY, arrow.LARGE_BINARY:
		return true
	}
	return false
}
