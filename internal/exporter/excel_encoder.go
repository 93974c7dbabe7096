package exporter

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// excelMaxRows is the row limit of a worksheet.
const excelMaxRows = 1048576

// ExcelEncoder implements RowEncoder for Excel (.xlsx) files.
// It uses excelize.StreamWriter for efficient writing of large files.
type ExcelEncoder struct {
	f       *excelize.File
	sw      *excelize.StreamWriter
	w       io.Writer
	rowIdx  int
	err     error
	written bool
}

// NewExcelEncoder creates a new Excel encoder writing a single sheet.
func NewExcelEncoder(w io.Writer) *ExcelEncoder {
	f := excelize.NewFile()
	sw, err := f.NewStreamWriter("Sheet1")
	if err != nil {
		_ = f.Close()
		return &ExcelEncoder{err: err}
	}
	return &ExcelEncoder{f: f, sw: sw, w: w, rowIdx: 1}
}

func (e *ExcelEncoder) WriteHeader(columns []string) error {
	row := make([]any, len(columns))
	for i, col := range columns {
		row[i] = col
	}
	return e.setRow(row)
}

// WriteRow passes numbers, booleans and times through, excelize stores them
// natively. Text is guarded against formula injection.
func (e *ExcelEncoder) WriteRow(values []any) error {
	row := make([]any, len(values))
	for i, v := range values {
		switch val := v.(type) {
		case nil:
			row[i] = "NULL"
		case string:
			row[i] = escapeFormula(val)
		case []byte:
			row[i] = escapeFormula(string(val))
		default:
			row[i] = v
		}
	}
	return e.setRow(row)
}

func (e *ExcelEncoder) setRow(row []any) error {
	if e.err != nil {
		return e.err
	}
	if e.rowIdx > excelMaxRows {
		e.err = fmt.Errorf("excel row limit exceeded (%d rows)", excelMaxRows)
		return e.err
	}

	cell, err := excelize.CoordinatesToCellName(1, e.rowIdx)
	if err == nil {
		err = e.sw.SetRow(cell, row)
	}
	if err != nil {
		e.err = err
		return err
	}
	e.rowIdx++
	return nil
}

// Flush writes the workbook. It can only happen once, rows written
// afterwards are lost.
func (e *ExcelEncoder) Flush() error {
	if e.err != nil || e.written {
		return e.err
	}
	e.written = true

	if err := e.sw.Flush(); err != nil {
		e.err = err
		return err
	}
	if err := e.f.Write(e.w); err != nil {
		e.err = err
	}
	return e.err
}

func (e *ExcelEncoder) Error() error {
	return e.err
}

func (e *ExcelEncoder) Close() error {
	if e.f == nil {
		return e.err
	}
	if err := e.Flush(); err != nil {
		_ = e.f.Close()
		return err
	}
	return e.f.Close()
}
