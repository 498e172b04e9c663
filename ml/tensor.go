// tensor.go - Dichter float64-Tensor fuer Gradienten, Gewichte und Modell-Ausgaben
// Dieses Modul stellt den Tensor-Container und die Vektor-Operationen bereit,
// die Akkumulator, Optimierer und Strategien benoetigen. Die Arithmetik
// delegiert an gonum/floats.
package ml

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/floats"
)

// Tensor is a dense row-major float64 array. A tensor with an empty shape is a
// scalar.
type Tensor struct {
	shape []int
	data  []float64
}

// NewTensor wraps data with the given shape. It panics if the number of values
// does not match the shape.
func NewTensor(data []float64, shape ...int) *Tensor {
	if n := mul(shape...); n != len(data) {
		panic(fmt.Sprintf("ml: %d values do not fit shape %v", len(data), shape))
	}

	return &Tensor{shape: slices.Clone(shape), data: data}
}

// Zeros returns a zero-filled tensor.
func Zeros(shape ...int) *Tensor {
	return &Tensor{shape: slices.Clone(shape), data: make([]float64, mul(shape...))}
}

// Scalar returns a rank 0 tensor holding v.
func Scalar(v float64) *Tensor {
	return &Tensor{data: []float64{v}}
}

// FromInts converts class ids to a rank 1 tensor.
func FromInts(s []int32) *Tensor {
	data := make([]float64, len(s))
	for i, v := range s {
		data[i] = float64(v)
	}

	return &Tensor{shape: []int{len(s)}, data: data}
}

// OneHot encodes class ids as a [len(ids), numClasses] tensor.
func OneHot(ids []int32, numClasses int) *Tensor {
	t := Zeros(len(ids), numClasses)
	for i, id := range ids {
		if int(id) >= 0 && int(id) < numClasses {
			t.data[i*numClasses+int(id)] = 1
		}
	}

	return t
}

func (t *Tensor) Shape() []int { return slices.Clone(t.shape) }
func (t *Tensor) Rank() int    { return len(t.shape) }
func (t *Tensor) Len() int     { return len(t.data) }

// Dim returns the size of dimension n, or 1 past the tensor's rank.
func (t *Tensor) Dim(n int) int {
	if n >= len(t.shape) {
		return 1
	}

	return t.shape[n]
}

// Floats returns the backing slice. Writes are visible to the tensor.
func (t *Tensor) Floats() []float64 { return t.data }

// Item returns the value of a single-element tensor.
func (t *Tensor) Item() float64 {
	if len(t.data) != 1 {
		panic(fmt.Sprintf("ml: Item called on tensor of shape %v", t.shape))
	}

	return t.data[0]
}

// Row returns row i of a rank 2 tensor as a view.
func (t *Tensor) Row(i int) []float64 {
	cols := t.Dim(1)
	return t.data[i*cols : (i+1)*cols]
}

func (t *Tensor) Clone() *Tensor {
	return &Tensor{shape: slices.Clone(t.shape), data: slices.Clone(t.data)}
}

// SameShape reports whether t and o have identical shapes.
func (t *Tensor) SameShape(o *Tensor) bool {
	return slices.Equal(t.shape, o.shape)
}

// Add adds o into t element-wise and returns t.
func (t *Tensor) Add(o *Tensor) *Tensor {
	if !t.SameShape(o) {
		panic(fmt.Sprintf("ml: cannot add shape %v to %v", o.shape, t.shape))
	}

	floats.Add(t.data, o.data)
	return t
}

// Scale multiplies t by s in place and returns t.
func (t *Tensor) Scale(s float64) *Tensor {
	floats.Scale(s, t.data)
	return t
}

// Zero sets every element to 0.
func (t *Tensor) Zero() {
	clear(t.data)
}

// SumSquares returns the squared L2 norm of the tensor.
func (t *Tensor) SumSquares() float64 {
	return floats.Dot(t.data, t.data)
}

// ArgmaxRows returns the index of the largest value in every row of a rank 2
// tensor. Ties resolve to the first index.
func (t *Tensor) ArgmaxRows() []int {
	rows := t.Dim(0)
	out := make([]int, rows)
	if t.Dim(1) == 0 {
		return out
	}

	for i := range rows {
		out[i] = floats.MaxIdx(t.Row(i))
	}

	return out
}

// Concat joins tensors along the first axis. All tensors must agree on the
// trailing dimensions.
func Concat(ts ...*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, fmt.Errorf("concat: no tensors")
	}

	trailing := ts[0].shape[min(1, len(ts[0].shape)):]
	rows := 0
	var data []float64
	for _, t := range ts {
		if t.Rank() == 0 || !slices.Equal(t.shape[1:], trailing) {
			return nil, fmt.Errorf("concat: shape %v incompatible with %v", t.shape, ts[0].shape)
		}
		rows += t.shape[0]
		data = append(data, t.data...)
	}

	return NewTensor(data, append([]int{rows}, trailing...)...), nil
}

// Mean returns the element-wise arithmetic mean of same-shaped tensors.
func Mean(ts ...*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, fmt.Errorf("mean: no tensors")
	}

	out := ts[0].Clone()
	for _, t := range ts[1:] {
		if !out.SameShape(t) {
			return nil, fmt.Errorf("mean: shape %v incompatible with %v", t.shape, out.shape)
		}
		floats.Add(out.data, t.data)
	}

	return out.Scale(1 / float64(len(ts))), nil
}

func (t *Tensor) String() string {
	return Dump(t)
}
