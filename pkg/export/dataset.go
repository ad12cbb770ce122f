// Package export renders tabular data and printable checklists.
package export

import "fmt"

// Dataset defines tabular export content. Rows are positional and must match Headers.
type Dataset struct {
	Title   string
	Headers []string
	Rows    [][]string
}

func (d Dataset) validate() error {
	if len(d.Headers) == 0 {
		return fmt.Errorf("dataset requires at least one header")
	}
	for i, row := range d.Rows {
		if len(row) != len(d.Headers) {
			return fmt.Errorf("row %d has %d cells, expected %d", i+1, len(row), len(d.Headers))
		}
	}
	return nil
}
