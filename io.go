package nestedces

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"gonum.org/v1/gonum/mat"
)

// LoadMatrixCSV loads a dense matrix from a CSV file. The header row
// names the columns (one market per column); every following row is one
// input or output unit.
func LoadMatrixCSV(path string) (*mat.Dense, []string, error) {
	// 1. Open file
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	// 2. Make CSV reader
	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	// 3. Read header row
	header, err := r.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) == 0 {
		return nil, nil, fmt.Errorf("empty header in %s", path)
	}
	cols := len(header)

	var (
		data []float64 // flat data for mat.Dense
		row  int       // row counter
	)

	// 4. Read each data row
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read row %d: %w", row+2, err) // +2 for header + 1-based
		}

		// Skip completely empty lines
		if len(record) == 1 && record[0] == "" {
			continue
		}

		if len(record) != cols {
			return nil, nil, fmt.Errorf(
				"row %d: expected %d columns, got %d",
				row+2, cols, len(record),
			)
		}

		for j, s := range record {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, nil, fmt.Errorf(
					"parse float at row %d col %d (%q): %w",
					row+2, j+1, s, err,
				)
			}
			data = append(data, v)
		}
		row++
	}

	if row == 0 {
		return nil, nil, fmt.Errorf("no data rows in %s", path)
	}

	return mat.NewDense(row, cols, data), header, nil
}

// LoadStackedLayerCSV loads a stacked layer definition from a CSV file
// with columns sigma,w1,...,wk and one market per row. Each row becomes a
// single-output vector layer with a 1xk weight row.
func LoadStackedLayerCSV(path string) (*StackedLayer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("layer file %s needs a sigma column and at least one weight column", path)
	}
	k := len(header) - 1

	var layers []*VectorLayer
	row := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", row+2, err)
		}
		if len(record) == 1 && record[0] == "" {
			continue
		}
		if len(record) != k+1 {
			return nil, fmt.Errorf("row %d: expected %d columns, got %d", row+2, k+1, len(record))
		}

		vals := make([]float64, k+1)
		for j, s := range record {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("parse float at row %d col %d (%q): %w", row+2, j+1, s, err)
			}
			vals[j] = v
		}

		layer, err := NewVectorLayer(mat.NewDense(1, k, vals[1:]), vals[0])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row+2, err)
		}
		layers = append(layers, layer)
		row++
	}

	return NewStackedLayer(layers)
}

// WriteMatrixCSV writes a matrix to a CSV file with colNames as the
// header and rowNames as the first cell of each row. Either name slice
// may be nil, in which case positional labels are generated.
func WriteMatrixCSV(path string, m mat.Matrix, rowNames, colNames []string) error {
	rows, cols := m.Dims()

	if colNames != nil && len(colNames) != cols {
		return fmt.Errorf("got %d column names for %d columns", len(colNames), cols)
	}
	if rowNames != nil && len(rowNames) != rows {
		return fmt.Errorf("got %d row names for %d rows", len(rowNames), rows)
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := make([]string, cols+1)
	header[0] = ""
	for j := 0; j < cols; j++ {
		if colNames != nil {
			header[j+1] = colNames[j]
		} else {
			header[j+1] = fmt.Sprintf("col%d", j)
		}
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	// Write data rows
	record := make([]string, cols+1)
	for i := 0; i < rows; i++ {
		if rowNames != nil {
			record[0] = rowNames[i]
		} else {
			record[0] = fmt.Sprintf("row%d", i)
		}
		for j := 0; j < cols; j++ {
			record[j+1] = strconv.FormatFloat(m.At(i, j), 'f', -1, 64)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return nil
}

// PrintSolution prints a solved matrix as a labelled table, one market
// per column.
func PrintSolution(title string, m *mat.Dense, marketNames []string) {
	rows, cols := m.Dims()

	fmt.Printf("\n=== %s ===\n", title)

	// Print header
	fmt.Printf("\t")
	for j := 0; j < cols; j++ {
		if marketNames != nil && j < len(marketNames) {
			fmt.Printf("%12s", marketNames[j])
		} else {
			fmt.Printf("%12d", j)
		}
	}
	fmt.Println()

	// Print rows
	for i := 0; i < rows; i++ {
		fmt.Printf("%d\t", i)
		for j := 0; j < cols; j++ {
			fmt.Printf("%12.6f", m.At(i, j))
		}
		fmt.Println()
	}
}

// Helper to print a stacked layer's parameters
func (s *StackedLayer) PrintLayers() {
	for i, l := range s.Layers {
		fmt.Printf("\n=== Market %d (sigma = %g) ===\n", i, l.Sigma)
		fmt.Printf("%v\n", mat.Formatted(l.Weights, mat.Prefix(" ")))
	}
}
