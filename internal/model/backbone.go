package model

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Backbone turns a batch of CHW images into shared features: a fixed
// average pool of every channel onto a PoolGrid x PoolGrid grid, then a
// trainable projection with ReLU.
type Backbone struct {
	size, grid int
	proj       *Dense
}

type backboneCache struct {
	pooled, pre *mat.Dense
}

func newBackbone(cfg Config, src rand.Source) *Backbone {
	return &Backbone{
		size: cfg.InputSize,
		grid: cfg.PoolGrid,
		proj: newDense("backbone.proj", cfg.pooledWidth(), cfg.FeatureSize, src),
	}
}

func (b *Backbone) params() []*Param { return b.proj.params() }

func (b *Backbone) forward(x *mat.Dense) (*mat.Dense, *backboneCache) {
	pooled := b.pool(x)
	pre := b.proj.forward(pooled)
	return relu(pre), &backboneCache{pooled: pooled, pre: pre}
}

// backward accumulates projection gradients. The pool has no parameters and
// the input gradient is never needed, so propagation stops here.
func (b *Backbone) backward(c *backboneCache, dFeatures *mat.Dense) {
	b.proj.backward(c.pooled, reluBackward(c.pre, dFeatures), false)
}

// pool averages each channel over grid cells. Cell boundaries are spread
// evenly so sizes that do not divide exactly still cover every pixel once.
func (b *Backbone) pool(x *mat.Dense) *mat.Dense {
	rows, _ := x.Dims()
	s, g := b.size, b.grid
	out := mat.NewDense(rows, channels*g*g, nil)
	for r := 0; r < rows; r++ {
		in := x.RawRowView(r)
		dst := out.RawRowView(r)
		for c := 0; c < channels; c++ {
			plane := in[c*s*s : (c+1)*s*s]
			for gy := 0; gy < g; gy++ {
				y0, y1 := gy*s/g, (gy+1)*s/g
				for gx := 0; gx < g; gx++ {
					x0, x1 := gx*s/g, (gx+1)*s/g
					sum := 0.0
					for y := y0; y < y1; y++ {
						for _, v := range plane[y*s+x0 : y*s+x1] {
							sum += v
						}
					}
					dst[c*g*g+gy*g+gx] = sum / float64((y1-y0)*(x1-x0))
				}
			}
		}
	}
	return out
}
