// Package table holds the generated dataset: fixed point columns followed
// by one label column per clustering strategy, stored as CSV.
package table

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

var ErrMalformed = errors.New("malformed dataset table")

// FixedColumns precede the label columns in this order.
var FixedColumns = []string{"index", "x0", "x1", "y", "x0_s", "x1_s"}

type Row struct {
	Index  int
	X0, X1 float64
	Y      int
	X0s    float64
	X1s    float64
}

type Table struct {
	df   dataframe.DataFrame
	rows []Row
}

// New builds a table from raw points, ground truth groups and the
// standardized points. All three must be row aligned.
func New(points [][]float64, y []int, scaled [][]float64) (*Table, error) {
	n := len(points)
	if n == 0 {
		return nil, fmt.Errorf("%w: no points", ErrMalformed)
	}
	if len(y) != n || len(scaled) != n {
		return nil, fmt.Errorf("%w: %d points, %d groups, %d scaled points", ErrMalformed, n, len(y), len(scaled))
	}
	rows := make([]Row, n)
	cols := make([][]string, len(FixedColumns))
	for c := range cols {
		cols[c] = make([]string, n)
	}
	for i := range points {
		if len(points[i]) < 2 || len(scaled[i]) < 2 {
			return nil, fmt.Errorf("%w: row %d has fewer than two coordinates", ErrMalformed, i)
		}
		rows[i] = Row{Index: i, X0: points[i][0], X1: points[i][1], Y: y[i], X0s: scaled[i][0], X1s: scaled[i][1]}
		cols[0][i] = strconv.Itoa(i)
		cols[1][i] = formatFloat(points[i][0])
		cols[2][i] = formatFloat(points[i][1])
		cols[3][i] = strconv.Itoa(y[i])
		cols[4][i] = formatFloat(scaled[i][0])
		cols[5][i] = formatFloat(scaled[i][1])
	}
	s := make([]series.Series, len(FixedColumns))
	for c, name := range FixedColumns {
		s[c] = series.New(cols[c], series.String, name)
	}
	df := dataframe.New(s...)
	if df.Err != nil {
		return nil, df.Err
	}
	return &Table{df: df, rows: rows}, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// AddLabels appends a label column.
func (t *Table) AddLabels(name string, labels []int) error {
	if name == "" {
		return errors.New("label column needs a name")
	}
	if slices.Contains(t.df.Names(), name) {
		return fmt.Errorf("column %q already exists", name)
	}
	if len(labels) != len(t.rows) {
		return fmt.Errorf("column %q has %d labels, table has %d rows", name, len(labels), len(t.rows))
	}
	values := make([]string, len(labels))
	for i, l := range labels {
		values[i] = strconv.Itoa(l)
	}
	df := t.df.Mutate(series.New(values, series.String, name))
	if df.Err != nil {
		return df.Err
	}
	t.df = df
	return nil
}

func (t *Table) Len() int { return len(t.rows) }

func (t *Table) Rows() []Row { return t.rows }

func (t *Table) Names() []string { return t.df.Names() }

// LabelColumns returns every column after the fixed ones, in file order.
func (t *Table) LabelColumns() []string {
	names := t.df.Names()
	if len(names) <= len(FixedColumns) {
		return nil
	}
	return names[len(FixedColumns):]
}

// Column returns the values of a column as written in the file.
func (t *Table) Column(name string) ([]string, bool) {
	if !slices.Contains(t.df.Names(), name) {
		return nil, false
	}
	return t.df.Col(name).Records(), true
}

func (t *Table) WriteCSV(w io.Writer) error {
	return t.df.WriteCSV(w)
}

// WriteFile writes the table to path, creating parent directories and
// replacing any existing file.
func (t *Table) WriteFile(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := t.WriteCSV(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// ReadCSV loads every column as a string. The first column is the row
// index whatever its header says, so files with an unnamed index column
// load too.
func ReadCSV(r io.Reader) (*Table, error) {
	df := dataframe.ReadCSV(r,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	if df.Err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, df.Err)
	}
	names := df.Names()
	if len(names) < len(FixedColumns) {
		return nil, fmt.Errorf("%w: %d columns, want at least %d", ErrMalformed, len(names), len(FixedColumns))
	}
	if df.Nrow() == 0 {
		return nil, fmt.Errorf("%w: no rows", ErrMalformed)
	}
	if names[0] != FixedColumns[0] {
		df = df.Rename(FixedColumns[0], names[0])
		names = df.Names()
	}
	for _, want := range FixedColumns[1:] {
		if !slices.Contains(names, want) {
			return nil, fmt.Errorf("%w: missing column %q", ErrMalformed, want)
		}
	}
	// Fixed columns go first so that LabelColumns is everything after them.
	if !slices.Equal(names[:len(FixedColumns)], FixedColumns) {
		order := slices.Clone(FixedColumns)
		for _, name := range names {
			if !slices.Contains(FixedColumns, name) {
				order = append(order, name)
			}
		}
		df = df.Select(order)
		if df.Err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, df.Err)
		}
	}

	n := df.Nrow()
	rows := make([]Row, n)
	cols := make([][]string, len(FixedColumns))
	for c, name := range FixedColumns {
		cols[c] = df.Col(name).Records()
	}
	for i := 0; i < n; i++ {
		vals := make([]float64, len(FixedColumns))
		for c := range FixedColumns {
			v, err := strconv.ParseFloat(cols[c][i], 64)
			if err != nil {
				return nil, fmt.Errorf("%w: row %d column %q: %v", ErrMalformed, i, FixedColumns[c], err)
			}
			vals[c] = v
		}
		rows[i] = Row{Index: int(vals[0]), X0: vals[1], X1: vals[2], Y: int(vals[3]), X0s: vals[4], X1s: vals[5]}
	}
	return &Table{df: df, rows: rows}, nil
}
