package features

import (
	"fmt"
	"math"
	"strings"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// Frame is an in-memory columnar dataset. Missing values are NaN.
type Frame struct {
	columns []string
	index   map[string]int
	data    [][]float64
	rows    int
}

// NewFrame creates an empty frame with the given columns.
// Column names are lower-cased and trimmed.
func NewFrame(columns []string) (*Frame, error) {
	f := &Frame{index: make(map[string]int, len(columns))}
	for _, c := range columns {
		if err := f.addColumn(c); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// NormalizeName returns the canonical form of a column name.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (f *Frame) addColumn(name string) error {
	name = NormalizeName(name)
	if name == "" {
		return fmt.Errorf("%w: empty column name", domain.ErrValidation)
	}
	if _, ok := f.index[name]; ok {
		return fmt.Errorf("%w: duplicate column %q", domain.ErrValidation, name)
	}
	f.index[name] = len(f.columns)
	f.columns = append(f.columns, name)
	f.data = append(f.data, make([]float64, f.rows, f.rows+1))
	for i := range f.data[len(f.data)-1] {
		f.data[len(f.data)-1][i] = math.NaN()
	}
	return nil
}

// AppendRow appends one row ordered as Columns().
func (f *Frame) AppendRow(values []float64) error {
	if len(values) != len(f.columns) {
		return fmt.Errorf("%w: row has %d values, frame has %d columns", domain.ErrValidation, len(values), len(f.columns))
	}
	for i, v := range values {
		f.data[i] = append(f.data[i], v)
	}
	f.rows++
	return nil
}

// SetColumn adds or replaces a column. values must have Len() entries.
func (f *Frame) SetColumn(name string, values []float64) error {
	if len(values) != f.rows {
		return fmt.Errorf("%w: column %q has %d values, frame has %d rows", domain.ErrValidation, name, len(values), f.rows)
	}
	name = NormalizeName(name)
	if i, ok := f.index[name]; ok {
		f.data[i] = values
		return nil
	}
	if err := f.addColumn(name); err != nil {
		return err
	}
	f.data[len(f.data)-1] = values
	return nil
}

// Columns returns the column names in order.
func (f *Frame) Columns() []string {
	out := make([]string, len(f.columns))
	copy(out, f.columns)
	return out
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return f.rows
}

// Has reports whether the frame has the named column.
func (f *Frame) Has(name string) bool {
	_, ok := f.index[NormalizeName(name)]
	return ok
}

// Column returns the values of the named column. The slice is shared with
// the frame and must not be modified.
func (f *Frame) Column(name string) ([]float64, bool) {
	i, ok := f.index[NormalizeName(name)]
	if !ok {
		return nil, false
	}
	return f.data[i], true
}

// Row returns a copy of row i ordered as Columns().
func (f *Frame) Row(i int) []float64 {
	out := make([]float64, len(f.columns))
	for c := range f.columns {
		out[c] = f.data[c][i]
	}
	return out
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	out := &Frame{
		columns: f.Columns(),
		index:   make(map[string]int, len(f.index)),
		data:    make([][]float64, len(f.data)),
		rows:    f.rows,
	}
	for k, v := range f.index {
		out.index[k] = v
	}
	for i, col := range f.data {
		out.data[i] = append([]float64(nil), col...)
	}
	return out
}

// Take returns a new frame holding the given rows, in the given order.
func (f *Frame) Take(rows []int) *Frame {
	out := &Frame{
		columns: f.Columns(),
		index:   make(map[string]int, len(f.index)),
		data:    make([][]float64, len(f.data)),
		rows:    len(rows),
	}
	for k, v := range f.index {
		out.index[k] = v
	}
	for c, col := range f.data {
		vals := make([]float64, len(rows))
		for i, r := range rows {
			vals[i] = col[r]
		}
		out.data[c] = vals
	}
	return out
}

// FrameFromTransactions builds a frame holding the raw columns of txs, plus
// the label column when every transaction is labeled.
func FrameFromTransactions(txs []domain.Transaction) *Frame {
	labeled := len(txs) > 0
	for _, tx := range txs {
		if tx.Class == nil {
			labeled = false
			break
		}
	}
	cols := domain.RawFeatureNames
	if labeled {
		cols = append(append([]string(nil), cols...), domain.LabelColumn)
	}
	f, _ := NewFrame(cols)
	for _, tx := range txs {
		row := make([]float64, 0, len(cols))
		row = append(row, tx.Time, tx.Amount)
		row = append(row, tx.V[:]...)
		if labeled {
			row = append(row, boolValue(*tx.Class))
		}
		_ = f.AppendRow(row)
	}
	return f
}

// Transactions converts the frame to raw transactions. time and amount are
// required columns; absent v-columns default to 0. A missing value in a
// present column is rejected with the offending row.
func (f *Frame) Transactions() ([]domain.Transaction, error) {
	timeCol, ok := f.Column(domain.FeatureTime)
	if !ok {
		return nil, fmt.Errorf("%w: missing column %q", domain.ErrValidation, domain.FeatureTime)
	}
	amountCol, ok := f.Column(domain.FeatureAmount)
	if !ok {
		return nil, fmt.Errorf("%w: missing column %q", domain.ErrValidation, domain.FeatureAmount)
	}
	var comps [domain.NumComponents][]float64
	for i := range comps {
		comps[i], _ = f.Column(domain.ComponentName(i + 1))
	}
	labels, hasLabels := f.Column(domain.LabelColumn)

	txs := make([]domain.Transaction, f.rows)
	for r := 0; r < f.rows; r++ {
		tx := domain.Transaction{Time: timeCol[r], Amount: amountCol[r]}
		if math.IsNaN(tx.Time) {
			return nil, fmt.Errorf("%w: row %d: missing %s", domain.ErrValidation, r, domain.FeatureTime)
		}
		if math.IsNaN(tx.Amount) {
			return nil, fmt.Errorf("%w: row %d: missing %s", domain.ErrValidation, r, domain.FeatureAmount)
		}
		for i, col := range comps {
			if col == nil {
				continue
			}
			if math.IsNaN(col[r]) {
				return nil, fmt.Errorf("%w: row %d: missing %s", domain.ErrValidation, r, domain.ComponentName(i+1))
			}
			tx.V[i] = col[r]
		}
		if hasLabels {
			label, err := labelValue(labels[r])
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", r, err)
			}
			tx.Class = &label
		}
		txs[r] = tx
	}
	return txs, nil
}

// LabeledSet converts a labeled frame into transformed vectors and labels.
func (f *Frame) LabeledSet() (*domain.LabeledSet, error) {
	if !f.Has(domain.LabelColumn) {
		return nil, fmt.Errorf("%w: missing label column %q", domain.ErrValidation, domain.LabelColumn)
	}
	txs, err := f.Transactions()
	if err != nil {
		return nil, err
	}
	vectors, err := TransformBatch(txs)
	if err != nil {
		return nil, err
	}
	labels := make([]bool, len(txs))
	for i, tx := range txs {
		labels[i] = *tx.Class
	}
	return &domain.LabeledSet{Vectors: vectors, Labels: labels}, nil
}

func labelValue(v float64) (bool, error) {
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: label must be 0 or 1, got %v", domain.ErrValidation, v)
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
