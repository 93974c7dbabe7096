package fetch

import (
	"reflect"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sql-arrow-bridge/internal/driver"
)

func TestArrowType(t *testing.T) {
	tests := []struct {
		col  driver.Column
		want arrow.DataType
	}{
		{driver.Column{DatabaseType: "TINYINT"}, arrow.PrimitiveTypes.Int8},
		{driver.Column{DatabaseType: "UNSIGNED TINYINT"}, arrow.PrimitiveTypes.Uint8},
		{driver.Column{DatabaseType: "int2"}, arrow.PrimitiveTypes.Int16},
		{driver.Column{DatabaseType: "INTEGER"}, arrow.PrimitiveTypes.Int32},
		{driver.Column{DatabaseType: "UNSIGNED INT"}, arrow.PrimitiveTypes.Uint32},
		{driver.Column{DatabaseType: "INT8"}, arrow.PrimitiveTypes.Int64},
		{driver.Column{DatabaseType: "BIGINT UNSIGNED"}, arrow.PrimitiveTypes.Uint64},
		{driver.Column{DatabaseType: "REAL"}, arrow.PrimitiveTypes.Float32},
		{driver.Column{DatabaseType: "FLOAT8"}, arrow.PrimitiveTypes.Float64},
		{driver.Column{DatabaseType: "NUMERIC", Precision: 10, Scale: 2, HasPrecisionScale: true}, &arrow.Decimal128Type{Precision: 10, Scale: 2}},
		{driver.Column{DatabaseType: "DECIMAL", Precision: 65, Scale: 2, HasPrecisionScale: true}, arrow.BinaryTypes.String},
		{driver.Column{DatabaseType: "NUMERIC"}, arrow.BinaryTypes.String},
		{driver.Column{DatabaseType: "BOOL"}, arrow.FixedWidthTypes.Boolean},
		{driver.Column{DatabaseType: "BIT", Length: 1, HasLength: true}, arrow.FixedWidthTypes.Boolean},
		{driver.Column{DatabaseType: "BIT", Length: 8, HasLength: true}, arrow.BinaryTypes.Binary},
		{driver.Column{DatabaseType: "DATE"}, arrow.FixedWidthTypes.Date32},
		{driver.Column{DatabaseType: "DATETIME"}, &arrow.TimestampType{Unit: arrow.Microsecond}},
		{driver.Column{DatabaseType: "TIMESTAMPTZ"}, &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}},
		{driver.Column{DatabaseType: "TIME"}, &arrow.Time64Type{Unit: arrow.Microsecond}},
		{driver.Column{DatabaseType: "BYTEA"}, arrow.BinaryTypes.Binary},
		{driver.Column{DatabaseType: "VARCHAR(20)"}, arrow.BinaryTypes.String},
		{driver.Column{DatabaseType: "UUID"}, arrow.BinaryTypes.String},
		{driver.Column{DatabaseType: "JSON"}, arrow.BinaryTypes.String},
		{driver.Column{DatabaseType: "", ScanType: reflect.TypeOf(int64(0))}, arrow.PrimitiveTypes.Int64},
		{driver.Column{DatabaseType: "CITEXT", ScanType: reflect.TypeOf("")}, arrow.BinaryTypes.String},
	}
	for _, tt := range tests {
		got, err := ArrowType(tt.col)
		require.NoError(t, err, tt.col.DatabaseType)
		assert.True(t, arrow.TypeEqual(tt.want, got), "%s: want %s, got %s", tt.col.DatabaseType, tt.want, got)
	}
}

func TestArrowTypeUnsupported(t *testing.T) {
	_, err := ArrowType(driver.Column{Name: "shape", DatabaseType: "GEOMETRY"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedColumnType))
	assert.True(t, errors.Is(err, ErrConversion))
	assert.Contains(t, err.Error(), "shape")
}

func TestSchemaFromColumns(t *testing.T) {
	schema, err := SchemaFromColumns([]driver.Column{
		{Name: "id", DatabaseType: "INTEGER"},
		{Name: "name", DatabaseType: "VARCHAR", Nullable: true},
	})
	require.NoError(t, err)
	require.Equal(t, 2, schema.NumFields())
	assert.Equal(t, "id", schema.Field(0).Name)
	assert.False(t, schema.Field(0).Nullable)
	assert.Equal(t, "name", schema.Field(1).Name)
	assert.True(t, schema.Field(1).Nullable)

	empty, err := SchemaFromColumns(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.NumFields())
}

func TestSchemaForIntervalTime(t *testing.T) {
	cols := []driver.Column{{Name: "t", DatabaseType: "TIME"}}

	schema, err := SchemaFor(cols, QuirksFor("MySQL"))
	require.NoError(t, err)
	assert.Equal(t, arrow.STRING, schema.Field(0).Type.ID())

	schema, err = SchemaFor(cols, QuirksFor("PostgreSQL"))
	require.NoError(t, err)
	assert.Equal(t, arrow.TIME64, schema.Field(0).Type.ID())
}
