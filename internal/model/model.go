// Package model implements the multi-task network: a shared backbone feeding
// five independent heads (person box, person class, face embedding, trash
// class, disposal class).
//
// Forward is pure with respect to the parameters; the only state a Model
// carries is its parameters and their gradient accumulators, which only
// Backward touches.
package model

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/trashdetect/perception/internal/perr"
)

// Head names, also used as checkpoint parameter prefixes.
const (
	HeadPersonBBox    = "person_bbox"
	HeadPersonClass   = "person_class"
	HeadFaceEmbedding = "face_embedding"
	HeadTrashClass    = "trash_class"
	HeadDisposalClass = "disposal_class"
)

// Model is the backbone plus the five task heads.
type Model struct {
	cfg           Config
	backbone      *Backbone
	PersonBBox    Head
	PersonClass   Head
	FaceEmbedding Head
	TrashClass    Head
	DisposalClass Head
}

// Outputs holds the raw head outputs for a batch; row i of each belongs to
// input row i. No activation is applied.
type Outputs struct {
	PersonBBox    *mat.Dense // B x 4
	PersonClass   *mat.Dense // B x 2
	FaceEmbedding *mat.Dense // B x EmbeddingSize
	TrashClass    *mat.Dense // B x NumTrashClasses
	DisposalClass *mat.Dense // B x 2
}

// Cache carries activations from ForwardTrain to Backward.
type Cache struct {
	backbone *backboneCache
	heads    [5]HeadCache
}

// New builds a model with weights initialised from cfg.Seed.
func New(cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	src := rand.NewPCG(uint64(cfg.Seed), 0x9e3779b97f4a7c15)
	f, h := cfg.FeatureSize, cfg.HiddenSize
	return &Model{
		cfg:           cfg,
		backbone:      newBackbone(cfg, src),
		PersonBBox:    NewMLPHead(HeadPersonBBox, f, h, BBoxSize, src),
		PersonClass:   NewMLPHead(HeadPersonClass, f, h, PersonClasses, src),
		FaceEmbedding: NewMLPHead(HeadFaceEmbedding, f, h, cfg.EmbeddingSize, src),
		TrashClass:    NewMLPHead(HeadTrashClass, f, h, cfg.NumTrashClasses, src),
		DisposalClass: NewMLPHead(HeadDisposalClass, f, h, DisposalClasses, src),
	}, nil
}

// Config returns the shapes the model was built with.
func (m *Model) Config() Config { return m.cfg }

func (m *Model) heads() [5]Head {
	return [5]Head{m.PersonBBox, m.PersonClass, m.FaceEmbedding, m.TrashClass, m.DisposalClass}
}

// Forward runs inference on a batch of flattened images (B x InputWidth).
func (m *Model) Forward(x *mat.Dense) (*Outputs, error) {
	out, _, err := m.ForwardTrain(x)
	return out, err
}

// ForwardTrain is Forward that also returns the activations Backward needs.
func (m *Model) ForwardTrain(x *mat.Dense) (*Outputs, *Cache, error) {
	rows, cols := x.Dims()
	if cols != m.cfg.InputWidth() {
		return nil, nil, perr.Dimensionf("model: input has %d columns, want %d (3x%dx%d)",
			cols, m.cfg.InputWidth(), m.cfg.InputSize, m.cfg.InputSize)
	}
	if rows == 0 {
		return nil, nil, perr.Dimensionf("model: empty batch")
	}

	features, bc := m.backbone.forward(x)
	cache := &Cache{backbone: bc}
	var res [5]*mat.Dense
	for i, h := range m.heads() {
		res[i], cache.heads[i] = h.Forward(features)
	}
	return &Outputs{
		PersonBBox:    res[0],
		PersonClass:   res[1],
		FaceEmbedding: res[2],
		TrashClass:    res[3],
		DisposalClass: res[4],
	}, cache, nil
}

// Backward accumulates parameter gradients given the loss gradient for each
// output. A nil field means that output did not contribute to the loss and
// its head receives no gradient.
func (m *Model) Backward(cache *Cache, grads *Outputs) {
	dOut := [5]*mat.Dense{grads.PersonBBox, grads.PersonClass, grads.FaceEmbedding, grads.TrashClass, grads.DisposalClass}
	var dFeatures *mat.Dense
	for i, h := range m.heads() {
		if dOut[i] == nil {
			continue
		}
		d := h.Backward(cache.heads[i], dOut[i])
		if dFeatures == nil {
			dFeatures = d
		} else {
			dFeatures.Add(dFeatures, d)
		}
	}
	if dFeatures != nil {
		m.backbone.backward(cache.backbone, dFeatures)
	}
}

// Params lists every trainable parameter in a stable order.
func (m *Model) Params() []*Param {
	ps := m.backbone.params()
	for _, h := range m.heads() {
		ps = append(ps, h.Params()...)
	}
	return ps
}

// ZeroGrad clears all gradient accumulators.
func (m *Model) ZeroGrad() {
	for _, p := range m.Params() {
		p.Grad.Zero()
	}
}
