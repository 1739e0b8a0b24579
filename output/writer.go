package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"survey-collector/logger"
	"survey-collector/types"
)

// Columns is the fixed column order of every output file
var Columns = []string{"Date", "Survey", "Title", "Keywords", "Abstract"}

// KeywordSeparator joins keywords into a single cell
const KeywordSeparator = "; "

// SheetName is the worksheet holding the records in XLSX output
const SheetName = "Articles"

// Writer serializes records as a table
type Writer interface {
	Extension() string
	Write(w io.Writer, records []types.ArticleRecord) error
}

// NewWriter returns the writer for format ("csv" or "xlsx")
func NewWriter(format string) (Writer, error) {
	switch strings.ToLower(format) {
	case "csv":
		return CSVWriter{}, nil
	case "xlsx":
		return XLSXWriter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
}

// Row renders one record in column order
func Row(record types.ArticleRecord) []string {
	return []string{
		record.DisplayDate(),
		record.Magazine,
		record.Title,
		strings.Join(record.Keywords, KeywordSeparator),
		record.Abstract,
	}
}

// FileName names the output of one run from its parameters and start time
func FileName(n int, since, ts time.Time, ext string) string {
	return fmt.Sprintf("survey_n_%d_since_%s_%s.%s",
		n, since.Format("2006-01-02"), ts.UTC().Format("20060102-150405"), strings.TrimPrefix(ext, "."))
}

// SaveToFile writes records into dir under FileName and returns the file path
func SaveToFile(dir string, writer Writer, n int, since, ts time.Time, records []types.ArticleRecord) (path string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", logger.NewAppError(logger.ErrorTypeOutput, "failed to create output directory", err)
	}

	path = filepath.Join(dir, FileName(n, since, ts, writer.Extension()))
	f, err := os.Create(path)
	if err != nil {
		return "", logger.NewAppError(logger.ErrorTypeOutput, "failed to create output file", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = logger.NewAppError(logger.ErrorTypeOutput, "failed to close output file", closeErr)
		}
	}()

	if err := writer.Write(f, records); err != nil {
		return "", logger.NewAppErrorWithMetadata(logger.ErrorTypeOutput, "failed to write output file", err,
			map[string]interface{}{"path": path})
	}

	return path, nil
}

// CSVWriter writes comma separated values with a header row
type CSVWriter struct{}

// Extension implements Writer
func (CSVWriter) Extension() string { return "csv" }

// Write implements Writer
func (CSVWriter) Write(w io.Writer, records []types.ArticleRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, record := range records {
		if err := cw.Write(Row(record)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// XLSXWriter writes a single-sheet Excel workbook
type XLSXWriter struct{}

// Extension implements Writer
func (XLSXWriter) Extension() string { return "xlsx" }

// Write implements Writer
func (XLSXWriter) Write(w io.Writer, records []types.ArticleRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}

	if err := setRow(f, 1, Columns); err != nil {
		return err
	}
	for i, record := range records {
		if err := setRow(f, i+2, Row(record)); err != nil {
			return err
		}
	}

	return f.Write(w)
}

func setRow(f *excelize.File, row int, values []string) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellStr(SheetName, cell, v); err != nil {
			return err
		}
	}
	return nil
}
