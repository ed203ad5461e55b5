package nn

import (
	"fmt"
)

// Matrix is a dense row-major float64 matrix. Rows index samples in a batch.
type Matrix struct {
	Rows int
	Cols int
	Data []float64
}

// Zeros creates a rows x cols matrix filled with zeros
func Zeros(rows, cols int) *Matrix {
	return &Matrix{
		Rows: rows,
		Cols: cols,
		Data: make([]float64, rows*cols),
	}
}

// NewMatrix wraps existing data. The slice is not copied.
func NewMatrix(rows, cols int, data []float64) (*Matrix, error) {
	if rows < 0 || cols < 0 {
		return nil, fmt.Errorf("invalid matrix shape %dx%d", rows, cols)
	}
	if len(data) != rows*cols {
		return nil, fmt.Errorf("data length %d does not match shape %dx%d", len(data), rows, cols)
	}
	return &Matrix{Rows: rows, Cols: cols, Data: data}, nil
}

// At returns the element at (r, c)
func (m *Matrix) At(r, c int) float64 {
	return m.Data[r*m.Cols+c]
}

// Set stores v at (r, c)
func (m *Matrix) Set(r, c int, v float64) {
	m.Data[r*m.Cols+c] = v
}

// Row returns a view of row r
func (m *Matrix) Row(r int) []float64 {
	return m.Data[r*m.Cols : (r+1)*m.Cols]
}

// Shape returns the matrix shape as a slice, matching checkpoint tensor shapes
func (m *Matrix) Shape() []int {
	return []int{m.Rows, m.Cols}
}

// Size returns the number of elements
func (m *Matrix) Size() int {
	return len(m.Data)
}

// Clone returns a deep copy
func (m *Matrix) Clone() *Matrix {
	data := make([]float64, len(m.Data))
	copy(data, m.Data)
	return &Matrix{Rows: m.Rows, Cols: m.Cols, Data: data}
}

// Fill sets every element to v
func (m *Matrix) Fill(v float64) {
	for i := range m.Data {
		m.Data[i] = v
	}
}

// ArgMaxRow returns the column index of the largest value in row r
func (m *Matrix) ArgMaxRow(r int) int {
	row := m.Row(r)
	best := 0
	for i := 1; i < len(row); i++ {
		if row[i] > row[best] {
			best = i
		}
	}
	return best
}

// matMul computes a (n x k) * b (k x m)
func matMul(a, b *Matrix) (*Matrix, error) {
	if a.Cols != b.Rows {
		return nil, fmt.Errorf("shape mismatch for matmul: %dx%d * %dx%d", a.Rows, a.Cols, b.Rows, b.Cols)
	}
	out := Zeros(a.Rows, b.Cols)
	for i := 0; i < a.Rows; i++ {
		arow := a.Row(i)
		orow := out.Row(i)
		for k, av := range arow {
			if av == 0 {
				continue
			}
			brow := b.Row(k)
			for j, bv := range brow {
				orow[j] += av * bv
			}
		}
	}
	return out, nil
}

// matMulTransA computes a^T * b where a is (k x n) and b is (k x m)
func matMulTransA(a, b *Matrix) (*Matrix, error) {
	if a.Rows != b.Rows {
		return nil, fmt.Errorf("shape mismatch for matmul: (%dx%d)^T * %dx%d", a.Rows, a.Cols, b.Rows, b.Cols)
	}
	out := Zeros(a.Cols, b.Cols)
	for k := 0; k < a.Rows; k++ {
		arow := a.Row(k)
		brow := b.Row(k)
		for i, av := range arow {
			if av == 0 {
				continue
			}
			orow := out.Row(i)
			for j, bv := range brow {
				orow[j] += av * bv
			}
		}
	}
	return out, nil
}

// matMulTransB computes a * b^T where a is (n x k) and b is (m x k)
func matMulTransB(a, b *Matrix) (*Matrix, error) {
	if a.Cols != b.Cols {
		return nil, fmt.Errorf("shape mismatch for matmul: %dx%d * (%dx%d)^T", a.Rows, a.Cols, b.Rows, b.Cols)
	}
	out := Zeros(a.Rows, b.Rows)
	for i := 0; i < a.Rows; i++ {
		arow := a.Row(i)
		orow := out.Row(i)
		for j := 0; j < b.Rows; j++ {
			brow := b.Row(j)
			var sum float64
			for k, av := range arow {
				sum += av * brow[k]
			}
			orow[j] = sum
		}
	}
	return out, nil
}
