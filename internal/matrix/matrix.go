package matrix

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"ioam-bench/internal/axis"
	"ioam-bench/internal/extract"
	"ioam-bench/internal/logging"

	"github.com/sirupsen/logrus"
)

// PlacementError reports an entry that cannot be put in the matrix.
type PlacementError struct {
	File   string
	Reason string
}

func (e *PlacementError) Error() string {
	return fmt.Sprintf("place %s: %s", e.File, e.Reason)
}

// Cell addresses one matrix slot.
type Cell struct {
	Row    int
	Column int
}

// ResultMatrix holds point estimates indexed by frequency (rows) and
// variant (columns), plus the matching spread for error bars. Absent cells
// keep value 0 with Present false.
type ResultMatrix struct {
	Rows    []string
	Columns []string
	Values  [][]float64
	Widths  [][]float64
	Present [][]bool
	Sources [][]string
}

func newResultMatrix(rows, columns []string) *ResultMatrix {
	m := &ResultMatrix{
		Rows:    rows,
		Columns: columns,
		Values:  make([][]float64, len(rows)),
		Widths:  make([][]float64, len(rows)),
		Present: make([][]bool, len(rows)),
		Sources: make([][]string, len(rows)),
	}
	for i := range rows {
		m.Values[i] = make([]float64, len(columns))
		m.Widths[i] = make([]float64, len(columns))
		m.Present[i] = make([]bool, len(columns))
		m.Sources[i] = make([]string, len(columns))
	}
	return m
}

// Build places every entry of result at (frequency, variant). The width of
// a cell is the population standard deviation of its trial file.
func Build(result extract.Result, frequencies *axis.FrequencyAxis, variants *axis.Axis[string]) (*ResultMatrix, error) {
	m := newResultMatrix(frequencies.Labels(), variants.Values())

	for _, file := range result.Files() {
		entry := result[file]

		row, ok := frequencies.Index(entry.Frequency)
		if !ok {
			return nil, &PlacementError{File: file, Reason: fmt.Sprintf("frequency %s is not on the axis", entry.Pair)}
		}
		col, ok := variants.Index(entry.Variant)
		if !ok {
			return nil, &PlacementError{File: file, Reason: fmt.Sprintf("variant %s is not on the axis", entry.Variant)}
		}
		if m.Present[row][col] {
			return nil, &PlacementError{File: file, Reason: fmt.Sprintf("cell (%s, %s) already filled by %s", m.Rows[row], m.Columns[col], m.Sources[row][col])}
		}

		m.Values[row][col] = entry.Summary.Mean
		m.Widths[row][col] = entry.Summary.StdDev
		m.Present[row][col] = true
		m.Sources[row][col] = file
	}

	logging.GetLogger().WithFields(logrus.Fields{
		"rows":    len(m.Rows),
		"columns": len(m.Columns),
		"missing": len(m.Missing()),
	}).Debug("Result matrix built")
	return m, nil
}

// Missing lists the absent cells in row-major order.
func (m *ResultMatrix) Missing() []Cell {
	var cells []Cell
	for i := range m.Present {
		for j := range m.Present[i] {
			if !m.Present[i][j] {
				cells = append(cells, Cell{Row: i, Column: j})
			}
		}
	}
	return cells
}

func (m *ResultMatrix) Value(row, column string) (float64, bool) {
	i, j, ok := m.locate(row, column)
	if !ok || !m.Present[i][j] {
		return 0, false
	}
	return m.Values[i][j], true
}

func (m *ResultMatrix) Width(row, column string) (float64, bool) {
	i, j, ok := m.locate(row, column)
	if !ok || !m.Present[i][j] {
		return 0, false
	}
	return m.Widths[i][j], true
}

func (m *ResultMatrix) locate(row, column string) (int, int, bool) {
	i, j := -1, -1
	for k, r := range m.Rows {
		if r == row {
			i = k
		}
	}
	for k, c := range m.Columns {
		if c == column {
			j = k
		}
	}
	return i, j, i >= 0 && j >= 0
}

// WriteCSV writes the point estimates as Frequency,<variants...>.
func (m *ResultMatrix) WriteCSV(w io.Writer) error {
	return m.writeGrid(w, m.Values)
}

func (m *ResultMatrix) WriteWidthsCSV(w io.Writer) error {
	return m.writeGrid(w, m.Widths)
}

func (m *ResultMatrix) writeGrid(w io.Writer, grid [][]float64) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(append([]string{"Frequency"}, m.Columns...)); err != nil {
		return err
	}
	for i, label := range m.Rows {
		record := make([]string, 0, len(m.Columns)+1)
		record = append(record, label)
		for j := range m.Columns {
			if !m.Present[i][j] {
				record = append(record, "")
				continue
			}
			record = append(record, strconv.FormatFloat(grid[i][j], 'g', -1, 64))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// Save writes the value and width checkpoints. Either path may be empty.
func (m *ResultMatrix) Save(valuesPath, widthsPath string) error {
	if valuesPath != "" {
		if err := writeFileAtomic(valuesPath, m.WriteCSV); err != nil {
			return err
		}
	}
	if widthsPath != "" {
		if err := writeFileAtomic(widthsPath, m.WriteWidthsCSV); err != nil {
			return err
		}
	}
	return nil
}

func writeFileAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".matrix-*.csv")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
