package models

import (
	"fmt"
	"math"
)

// Frame is a named-column numeric matrix with optional categorical columns
// riding alongside. Missing values are NaN. Rows align one-to-one with the
// entries the frame was built from.
type Frame struct {
	Columns []string
	Values  [][]float64 // row-major, len(Values[i]) == len(Columns)
	Cats    map[string][]string
}

// NewFrame allocates a frame of the given shape with all values NaN.
func NewFrame(columns []string, rows int) *Frame {
	f := &Frame{
		Columns: append([]string(nil), columns...),
		Values:  make([][]float64, rows),
		Cats:    make(map[string][]string),
	}
	for i := range f.Values {
		row := make([]float64, len(columns))
		for j := range row {
			row[j] = math.NaN()
		}
		f.Values[i] = row
	}
	return f
}

// NumRows returns the number of rows.
func (f *Frame) NumRows() int {
	return len(f.Values)
}

// ColIndex returns the position of a named column, or an error if absent.
func (f *Frame) ColIndex(name string) (int, error) {
	for j, c := range f.Columns {
		if c == name {
			return j, nil
		}
	}
	return -1, fmt.Errorf("%w: %s", ErrUnknownFeature, name)
}

// Col extracts a copy of the named column.
func (f *Frame) Col(name string) ([]float64, error) {
	j, err := f.ColIndex(name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(f.Values))
	for i, row := range f.Values {
		out[i] = row[j]
	}
	return out, nil
}

// SetCol overwrites the named column in place.
func (f *Frame) SetCol(name string, values []float64) error {
	j, err := f.ColIndex(name)
	if err != nil {
		return err
	}
	if len(values) != len(f.Values) {
		return fmt.Errorf("column %s: %w", name, ErrDimensionMismatch)
	}
	for i := range f.Values {
		f.Values[i][j] = values[i]
	}
	return nil
}

// Select returns a new frame containing only the named columns, in order.
func (f *Frame) Select(columns []string) (*Frame, error) {
	idx := make([]int, len(columns))
	for k, name := range columns {
		j, err := f.ColIndex(name)
		if err != nil {
			return nil, err
		}
		idx[k] = j
	}
	out := &Frame{
		Columns: append([]string(nil), columns...),
		Values:  make([][]float64, len(f.Values)),
		Cats:    f.Cats,
	}
	for i, row := range f.Values {
		sel := make([]float64, len(idx))
		for k, j := range idx {
			sel[k] = row[j]
		}
		out.Values[i] = sel
	}
	return out, nil
}

// Subset returns a new frame containing only the given rows, in order.
func (f *Frame) Subset(rows []int) *Frame {
	out := &Frame{
		Columns: f.Columns,
		Values:  make([][]float64, len(rows)),
		Cats:    make(map[string][]string, len(f.Cats)),
	}
	for k, i := range rows {
		out.Values[k] = append([]float64(nil), f.Values[i]...)
	}
	for name, col := range f.Cats {
		sub := make([]string, len(rows))
		for k, i := range rows {
			sub[k] = col[i]
		}
		out.Cats[name] = sub
	}
	return out
}
