package model

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Head maps the shared feature matrix to one task output. Heads are
// independent of each other and can be replaced individually.
type Head interface {
	Name() string
	OutputSize() int
	Forward(features *mat.Dense) (*mat.Dense, HeadCache)
	// Backward accumulates parameter gradients for dOut and returns the
	// gradient with respect to the features.
	Backward(cache HeadCache, dOut *mat.Dense) *mat.Dense
	Params() []*Param
}

// HeadCache holds whatever a head needs from its forward pass to run
// backward.
type HeadCache any

// MLPHead is Dense(F,H) -> ReLU -> Dense(H,out) with no output activation.
type MLPHead struct {
	name   string
	hidden *Dense
	out    *Dense
}

type mlpCache struct {
	features, pre, act *mat.Dense
}

// NewMLPHead builds a head with freshly initialised weights drawn from src.
func NewMLPHead(name string, features, hidden, out int, src rand.Source) *MLPHead {
	return &MLPHead{
		name:   name,
		hidden: newDense(name+".hidden", features, hidden, src),
		out:    newDense(name+".out", hidden, out, src),
	}
}

func (h *MLPHead) Name() string { return h.name }

func (h *MLPHead) OutputSize() int {
	_, c := h.out.W.Value.Dims()
	return c
}

func (h *MLPHead) Forward(features *mat.Dense) (*mat.Dense, HeadCache) {
	pre := h.hidden.forward(features)
	act := relu(pre)
	return h.out.forward(act), &mlpCache{features: features, pre: pre, act: act}
}

func (h *MLPHead) Backward(cache HeadCache, dOut *mat.Dense) *mat.Dense {
	c := cache.(*mlpCache)
	dAct := h.out.backward(c.act, dOut, true)
	dPre := reluBackward(c.pre, dAct)
	return h.hidden.backward(c.features, dPre, true)
}

func (h *MLPHead) Params() []*Param {
	return append(h.hidden.params(), h.out.params()...)
}
