package stats

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Layout describes a headerless, delimiter-separated trial file.
type Layout struct {
	Delimiter rune
	// SkipFirst drops column 0 (the row index, or the profile parameter
	// string in files written by the TRex runner).
	SkipFirst bool
	// Columns names the remaining columns positionally.
	Columns []string
	Primary string
	// Divisor rescales the primary column.
	Divisor float64
}

// DefaultLayout matches the runner output: <extra>;pps;bps;ipackets;opackets.
func DefaultLayout() Layout {
	return Layout{
		Delimiter: ';',
		SkipFirst: true,
		Columns:   []string{"pps", "bps", "ipackets", "opackets"},
		Primary:   "pps",
		Divisor:   1e5,
	}
}

// DropLayout matches the drop test output: pps;rx_pps;tx_pps;ipackets;opackets;drop_rate.
func DropLayout() Layout {
	return Layout{
		Delimiter: ';',
		Columns:   []string{"pps", "rx_pps", "tx_pps", "ipackets", "opackets", "drop_rate"},
		Primary:   "drop_rate",
		Divisor:   1,
	}
}

func (l Layout) validate() error {
	if l.Delimiter == 0 {
		return fmt.Errorf("layout: delimiter is required")
	}
	if len(l.Columns) == 0 {
		return fmt.Errorf("layout: no columns")
	}
	if l.Primary != "" && l.columnIndex(l.Primary) < 0 {
		return fmt.Errorf("layout: primary column %q is not declared", l.Primary)
	}
	if l.Divisor == 0 {
		return fmt.Errorf("layout: divisor cannot be 0")
	}
	return nil
}

func (l Layout) columnIndex(name string) int {
	for i, c := range l.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Table holds the parsed numeric columns of one trial file.
type Table struct {
	columns map[string][]float64
	rows    int
}

func (t *Table) Rows() int {
	return t.rows
}

func (t *Table) Column(name string) []float64 {
	return t.columns[name]
}

// ReadTable parses r according to layout. Columns past the declared ones
// are ignored; a short row or a non-numeric cell is a ParseError.
func ReadTable(r io.Reader, layout Layout) (*Table, error) {
	if err := layout.validate(); err != nil {
		return nil, err
	}

	reader := csv.NewReader(r)
	reader.Comma = layout.Delimiter
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	offset := 0
	if layout.SkipFirst {
		offset = 1
	}
	need := offset + len(layout.Columns)

	table := &Table{columns: make(map[string][]float64, len(layout.Columns))}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line := table.rows + 1
		if err != nil {
			return nil, &ParseError{Line: line, Err: err}
		}
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		if len(record) < need {
			return nil, &ParseError{Line: line, Err: fmt.Errorf("expected at least %d fields, got %d", need, len(record))}
		}

		for i, name := range layout.Columns {
			raw := strings.TrimSpace(record[offset+i])
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, &ParseError{Line: line, Err: fmt.Errorf("column %s: %w", name, err)}
			}
			if name == layout.Primary {
				v /= layout.Divisor
			}
			table.columns[name] = append(table.columns[name], v)
		}
		table.rows++
	}

	if table.rows == 0 {
		return nil, &ParseError{Err: ErrEmpty}
	}
	return table, nil
}

func ReadTableFile(path string, layout Layout) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	table, err := ReadTable(f, layout)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Path = path
		}
		return nil, err
	}
	return table, nil
}
