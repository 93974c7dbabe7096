package fetch

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/decimal128"
	"github.com/cockroachdb/errors"
)

// column materializes the scanned values of one result set column into its
// Arrow builder.
type column struct {
	field       arrow.Field
	elementSize int
	quirks      Quirks
	encoding    TextEncoding
}

func (c *column) append(b array.Builder, v any) error {
	if v == nil {
		b.AppendNull()
		return nil
	}

	switch b := b.(type) {
	case *array.StringBuilder:
		return c.appendText(b, v)
	case *array.LargeStringBuilder:
		return c.appendText(b, v)
	case *array.BinaryBuilder:
		return c.appendBinary(b, v)
	case *array.BooleanBuilder:
		x, err := toBool(v)
		if err != nil {
			return c.wrap(err, v)
		}
		b.Append(x)
	case *array.Int8Builder:
		return appendSigned[int8](c, b, v, math.MinInt8, math.MaxInt8)
	case *array.Int16Builder:
		return appendSigned[int16](c, b, v, math.MinInt16, math.MaxInt16)
	case *array.Int32Builder:
		return appendSigned[int32](c, b, v, math.MinInt32, math.MaxInt32)
	case *array.Int64Builder:
		return appendSigned[int64](c, b, v, math.MinInt64, math.MaxInt64)
	case *array.Uint8Builder:
		return appendUnsigned[uint8](c, b, v, math.MaxUint8)
	case *array.Uint16Builder:
		return appendUnsigned[uint16](c, b, v, math.MaxUint16)
	case *array.Uint32Builder:
		return appendUnsigned[uint32](c, b, v, math.MaxUint32)
	case *array.Uint64Builder:
		return appendUnsigned[uint64](c, b, v, math.MaxUint64)
	case *array.Float32Builder:
		x, err := toFloat64(v)
		if err != nil {
			return c.wrap(err, v)
		}
		b.Append(float32(x))
	case *array.Float64Builder:
		x, err := toFloat64(v)
		if err != nil {
			return c.wrap(err, v)
		}
		b.Append(x)
	case *array.Decimal128Builder:
		dt := c.field.Type.(*arrow.Decimal128Type)
		n, err := toDecimal128(v, dt.Precision, dt.Scale)
		if err != nil {
			return c.wrap(err, v)
		}
		b.Append(n)
	case *array.Date32Builder:
		t, err := c.toTime(v, dateLayouts)
		if err != nil {
			return err
		}
		b.Append(arrow.Date32FromTime(t))
	case *array.TimestampBuilder:
		t, err := c.toTime(v, timestampLayouts)
		if err != nil {
			return err
		}
		b.Append(timestampOf(t, c.field.Type.(*arrow.TimestampType).Unit))
	case *array.Time64Builder:
		d, err := c.toTimeOfDay(v)
		if err != nil {
			return err
		}
		b.Append(arrow.Time64(d / c.field.Type.(*arrow.Time64Type).Unit.Multiplier()))
	default:
		return conversionErrorf("column %q: no conversion into %s", c.field.Name, c.field.Type)
	}
	return nil
}

type textBuilder interface {
	Append(string)
	AppendNull()
}

func (c *column) appendText(b textBuilder, v any) error {
	var (
		s    string
		size int
	)
	switch x := v.(type) {
	case string:
		s = x
		size = c.encodedSize(s)
	case []byte:
		s = decodeText(x)
		size = c.encodedSize(s)
	case time.Time:
		s = x.Format(time.RFC3339Nano)
		size = len(s)
	case int64:
		s = strconv.FormatInt(x, 10)
		size = len(s)
	case float64:
		s = strconv.FormatFloat(x, 'g', -1, 64)
		size = len(s)
	case bool:
		s = strconv.FormatBool(x)
		size = len(s)
	default:
		return conversionErrorf("column %q: cannot convert %T to text", c.field.Name, v)
	}

	if size > c.elementSize {
		return c.tooLarge(size)
	}
	if c.quirks.NulTerminatedText {
		if i := strings.IndexByte(s, 0); i >= 0 {
			s = s[:i]
		}
		if s == "" {
			b.AppendNull()
			return nil
		}
	}
	b.Append(s)
	return nil
}

func (c *column) appendBinary(b *array.BinaryBuilder, v any) error {
	var data []byte
	switch x := v.(type) {
	case []byte:
		data = x
	case string:
		data = []byte(x)
	default:
		return conversionErrorf("column %q: cannot convert %T to binary", c.field.Name, v)
	}
	if len(data) > c.elementSize {
		return c.tooLarge(len(data))
	}
	b.Append(data)
	return nil
}

// encodedSize is the size s takes in a buffer of the fetch encoding.
func (c *column) encodedSize(s string) int {
	if c.encoding == EncodingWide {
		return 2 * len(utf16.Encode([]rune(s)))
	}
	return len(s)
}

func (c *column) tooLarge(size int) error {
	return errors.Mark(
		errors.Wrapf(ErrValueTooLarge, "column %q: value of %d bytes exceeds the element buffer of %d bytes, raise the max text or binary size",
			c.field.Name, size, c.elementSize),
		ErrConversion)
}

func (c *column) wrap(err error, v any) error {
	if v == nil {
		return errors.Mark(errors.Wrapf(err, "column %q", c.field.Name), ErrConversion)
	}
	return errors.Mark(errors.Wrapf(err, "column %q: value %v of type %T", c.field.Name, v, v), ErrConversion)
}

func appendSigned[T int8 | int16 | int32 | int64](c *column, b interface{ Append(T) }, v any, lo, hi int64) error {
	n, err := toInt64(v)
	if err != nil {
		return c.wrap(err, v)
	}
	if n < lo || n > hi {
		return conversionErrorf("column %q: %d out of range for %s", c.field.Name, n, c.field.Type)
	}
	b.Append(T(n))
	return nil
}

func appendUnsigned[T uint8 | uint16 | uint32 | uint64](c *column, b interface{ Append(T) }, v any, hi uint64) error {
	n, err := toUint64(v)
	if err != nil {
		return c.wrap(err, v)
	}
	if n > hi {
		return conversionErrorf("column %q: %d out of range for %s", c.field.Name, n, c.field.Type)
	}
	b.Append(T(n))
	return nil
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, errors.Newf("%d overflows int64", x)
		}
		return int64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case float64:
		if x != math.Trunc(x) || x < math.MinInt64 || x > math.MaxInt64 {
			return 0, errors.Newf("%v is not an integer", x)
		}
		return int64(x), nil
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(x)), 10, 64)
	case string:
		return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	}
	return 0, errors.Newf("cannot convert %T to an integer", v)
}

func toUint64(v any) (uint64, error) {
	switch x := v.(type) {
	case uint64:
		return x, nil
	case []byte:
		return strconv.ParseUint(strings.TrimSpace(string(x)), 10, 64)
	case string:
		return strconv.ParseUint(strings.TrimSpace(x), 10, 64)
	}
	n, err := toInt64(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.Newf("%d is negative", n)
	}
	return uint64(n), nil
}

func toFloat64(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case []byte:
		return strconv.ParseFloat(strings.TrimSpace(string(x)), 64)
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	}
	return 0, errors.Newf("cannot convert %T to a float", v)
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case int64:
		return x != 0, nil
	case []byte:
		return parseBool(string(x))
	case string:
		return parseBool(x)
	}
	return false, errors.Newf("cannot convert %T to a boolean", v)
}

func parseBool(s string) (bool, error) {
	s = strings.TrimSpace(s)
	if len(s) == 1 && (s[0] == 0 || s[0] == 1) {
		// BIT(1) as delivered by MySQL.
		return s[0] == 1, nil
	}
	return strconv.ParseBool(s)
}

func toDecimal128(v any, precision, scale int32) (decimal128.Num, error) {
	switch x := v.(type) {
	case float64:
		return decimal128.FromFloat64(x, precision, scale)
	case int64:
		return decimal128.FromString(strconv.FormatInt(x, 10), precision, scale)
	case []byte:
		return decimal128.FromString(strings.TrimSpace(string(x)), precision, scale)
	case string:
		return decimal128.FromString(strings.TrimSpace(x), precision, scale)
	}
	return decimal128.Num{}, errors.Newf("cannot convert %T to a decimal", v)
}

var (
	dateLayouts      = []string{time.DateOnly}
	timestampLayouts = []string{"2006-01-02 15:04:05.999999999", time.RFC3339Nano, time.DateOnly}
	timeLayouts      = []string{"15:04:05.999999999"}
)

// toTime accepts time.Time, and text if the data source is known to deliver
// temporals as text.
func (c *column) toTime(v any, layouts []string) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case []byte, string:
		if !c.quirks.TextualTemporals {
			return time.Time{}, conversionErrorf("column %q: %s delivered as text %q", c.field.Name, c.field.Type, asString(x))
		}
		t, err := parseTime(asString(x), layouts)
		if err != nil {
			return time.Time{}, c.wrap(err, nil)
		}
		return t, nil
	}
	return time.Time{}, conversionErrorf("column %q: cannot convert %T to %s", c.field.Name, v, c.field.Type)
}

// toTimeOfDay returns the time since midnight. Drivers deliver TIME values as
// time.Time or as text, so text is accepted regardless of workarounds. Values
// outside of a day are conversion errors, data sources known to deliver them
// have TIME mapped to text instead.
func (c *column) toTimeOfDay(v any) (time.Duration, error) {
	var t time.Time
	switch x := v.(type) {
	case time.Time:
		t = x
	case []byte, string:
		parsed, err := parseTime(asString(x), timeLayouts)
		if err != nil {
			return 0, c.wrap(err, nil)
		}
		t = parsed
	default:
		return 0, conversionErrorf("column %q: cannot convert %T to %s", c.field.Name, v, c.field.Type)
	}
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return t.Sub(midnight), nil
}

func parseTime(s string, layouts []string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var err error
	for _, layout := range layouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

func asString(v any) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v.(string)
}

func timestampOf(t time.Time, unit arrow.TimeUnit) arrow.Timestamp {
	switch unit {
	case arrow.Second:
		return arrow.Timestamp(t.Unix())
	case arrow.Millisecond:
		return arrow.Timestamp(t.UnixMilli())
	case arrow.Nanosecond:
		return arrow.Timestamp(t.UnixNano())
	default:
		return arrow.Timestamp(t.UnixMicro())
	}
}
