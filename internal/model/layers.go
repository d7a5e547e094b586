package model

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Param is one trainable tensor and its accumulated gradient.
type Param struct {
	Name  string
	Value *mat.Dense
	Grad  *mat.Dense
}

func newParam(name string, r, c int) *Param {
	return &Param{Name: name, Value: mat.NewDense(r, c, nil), Grad: mat.NewDense(r, c, nil)}
}

// Dense is a fully connected layer y = xW + b.
type Dense struct {
	W *Param // in x out
	B *Param // 1 x out
}

func newDense(name string, in, out int, src rand.Source) *Dense {
	d := &Dense{W: newParam(name+".weight", in, out), B: newParam(name+".bias", 1, out)}
	// He-uniform initialisation; every layer but the outputs feeds a ReLU.
	limit := math.Sqrt(6 / float64(in))
	u := distuv.Uniform{Min: -limit, Max: limit, Src: src}
	raw := d.W.Value.RawMatrix().Data
	for i := range raw {
		raw[i] = u.Rand()
	}
	return d
}

func (d *Dense) params() []*Param { return []*Param{d.W, d.B} }

func (d *Dense) forward(x *mat.Dense) *mat.Dense {
	r, _ := x.Dims()
	_, out := d.W.Value.Dims()
	y := mat.NewDense(r, out, nil)
	y.Mul(x, d.W.Value)
	bias := d.B.Value.RawRowView(0)
	for i := 0; i < r; i++ {
		row := y.RawRowView(i)
		for j := range row {
			row[j] += bias[j]
		}
	}
	return y
}

// backward accumulates dW and dB for input x and upstream gradient dy, and
// returns dx when wantInput is set.
func (d *Dense) backward(x, dy *mat.Dense, wantInput bool) *mat.Dense {
	var dW mat.Dense
	dW.Mul(x.T(), dy)
	d.W.Grad.Add(d.W.Grad, &dW)

	r, c := dy.Dims()
	gb := d.B.Grad.RawRowView(0)
	for i := 0; i < r; i++ {
		row := dy.RawRowView(i)
		for j := 0; j < c; j++ {
			gb[j] += row[j]
		}
	}

	if !wantInput {
		return nil
	}
	in, _ := d.W.Value.Dims()
	dx := mat.NewDense(r, in, nil)
	dx.Mul(dy, d.W.Value.T())
	return dx
}

func relu(x *mat.Dense) *mat.Dense {
	var y mat.Dense
	y.Apply(func(_, _ int, v float64) float64 { return math.Max(v, 0) }, x)
	return &y
}

// reluBackward masks dy where the pre-activation was not positive.
func reluBackward(pre, dy *mat.Dense) *mat.Dense {
	var dx mat.Dense
	dx.Apply(func(i, j int, v float64) float64 {
		if pre.At(i, j) > 0 {
			return v
		}
		return 0
	}, dy)
	return &dx
}
