// Package dataset reads and writes the CSV datasets used by the offline jobs.
package dataset

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/features"
)

// ReadFrame parses a CSV dataset with a header row. Column names are
// lower-cased. Empty cells and NA/NaN markers become missing values.
func ReadFrame(r io.Reader) (*features.Frame, error) {
	rows, err := gocsv.DefaultCSVReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: malformed csv: %v", domain.ErrValidation, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: csv has no header", domain.ErrValidation)
	}

	f, err := features.NewFrame(rows[0])
	if err != nil {
		return nil, err
	}
	cols := f.Columns()
	for i, rec := range rows[1:] {
		values := make([]float64, len(rec))
		for c, cell := range rec {
			v, err := parseCell(cell)
			if err != nil {
				return nil, fmt.Errorf("%w: row %d column %q: %v", domain.ErrValidation, i, cols[c], err)
			}
			values[c] = v
		}
		if err := f.AppendRow(values); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
	}
	return f, nil
}

// ReadFrameFile opens and parses a CSV dataset.
func ReadFrameFile(path string) (*features.Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadFrame(file)
}

// WriteFrame writes f as CSV with a header row. Missing values are written
// as empty cells.
func WriteFrame(w io.Writer, f *features.Frame) error {
	out := gocsv.DefaultCSVWriter(w)
	if err := out.Write(f.Columns()); err != nil {
		return err
	}
	for r := 0; r < f.Len(); r++ {
		row := f.Row(r)
		rec := make([]string, len(row))
		for c, v := range row {
			rec[c] = formatCell(v)
		}
		if err := out.Write(rec); err != nil {
			return err
		}
	}
	out.Flush()
	return out.Error()
}

// WriteFrameFile creates path and writes f to it.
func WriteFrameFile(path string, f *features.Frame) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteFrame(file, f); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// WriteRecords writes a slice of csv-tagged structs with gocsv.
func WriteRecords(w io.Writer, records interface{}) error {
	return gocsv.Marshal(records, w)
}

func parseCell(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	switch strings.ToLower(cell) {
	case "", "na", "nan", "null":
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", cell)
	}
	return v, nil
}

func formatCell(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
