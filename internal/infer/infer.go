// Package infer loads a trained checkpoint and turns images into decoded
// predictions.
package infer

import (
	"image"
	"io"
	"math"
	"os"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/trashdetect/perception/internal/dataset"
	"github.com/trashdetect/perception/internal/model"
	"github.com/trashdetect/perception/internal/perr"
)

// Prediction is the decoded output for one image. Class fields are arg-max
// indices of the raw head outputs.
type Prediction struct {
	PersonBBox    [4]float64 `json:"person_bbox"`
	PersonClass   int        `json:"person_class"`
	FaceEmbedding []float64  `json:"face_embedding"`
	TrashClass    int        `json:"trash_class"`
	DisposalClass int        `json:"disposal_class"`
}

// Predictor holds a loaded model. The model is never mutated after load, so
// a Predictor is safe for concurrent use.
type Predictor struct {
	model     *model.Model
	transform dataset.Transform
}

// NewPredictor loads checkpointPath, which must have been trained for
// numTrashClasses classes. The transform's size must match the checkpoint's
// input size.
func NewPredictor(checkpointPath string, numTrashClasses int, t dataset.Transform) (*Predictor, error) {
	m, err := model.Load(checkpointPath, numTrashClasses)
	if err != nil {
		return nil, err
	}
	if t.Size != m.Config().InputSize {
		return nil, &perr.Error{
			Kind: perr.ErrConfig,
			Path: checkpointPath,
			Msg:  "checkpoint input size differs from transform size",
		}
	}
	if err := t.Validate(); err != nil {
		return nil, perr.Configf("%v", err)
	}
	return &Predictor{model: m, transform: t}, nil
}

// NumTrashClasses returns the trash class count of the loaded checkpoint.
func (p *Predictor) NumTrashClasses() int { return p.model.Config().NumTrashClasses }

// PredictFile decodes and predicts the image at path.
func (p *Predictor) PredictFile(path string) (*Prediction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, perr.DataErr(path, err)
	}
	defer f.Close()
	return p.predictReader(f, path)
}

// PredictReader decodes an image from r and predicts it.
func (p *Predictor) PredictReader(r io.Reader) (*Prediction, error) {
	return p.predictReader(r, "")
}

func (p *Predictor) predictReader(r io.Reader, path string) (*Prediction, error) {
	img, err := dataset.DecodeImage(r)
	if err != nil {
		return nil, perr.DataErr(path, err)
	}
	return p.PredictImage(img)
}

// PredictImage predicts an already decoded image.
func (p *Predictor) PredictImage(img image.Image) (*Prediction, error) {
	x := mat.NewDense(1, p.transform.Width(), p.transform.Apply(img))
	out, err := p.model.Forward(x)
	if err != nil {
		return nil, err
	}
	return decode(out, 0), nil
}

func decode(out *model.Outputs, row int) *Prediction {
	pred := &Prediction{
		PersonClass:   ArgMax(out.PersonClass.RawRowView(row)),
		FaceEmbedding: append([]float64(nil), out.FaceEmbedding.RawRowView(row)...),
		TrashClass:    ArgMax(out.TrashClass.RawRowView(row)),
		DisposalClass: ArgMax(out.DisposalClass.RawRowView(row)),
	}
	copy(pred.PersonBBox[:], out.PersonBBox.RawRowView(row))
	return pred
}

// Load loads checkpointPath with the default transform sized to the
// checkpoint's input.
func Load(checkpointPath string, numTrashClasses int) (*Predictor, error) {
	m, err := model.Load(checkpointPath, numTrashClasses)
	if err != nil {
		return nil, err
	}
	t := dataset.DefaultTransform()
	t.Size = m.Config().InputSize
	return &Predictor{model: m, transform: t}, nil
}

// Predict is a one-shot helper: Load the checkpoint and predict imagePath.
func Predict(checkpointPath string, numTrashClasses int, imagePath string) (*Prediction, error) {
	p, err := Load(checkpointPath, numTrashClasses)
	if err != nil {
		return nil, err
	}
	return p.PredictFile(imagePath)
}

// ArgMax returns the index of the largest value; the first wins on ties.
// It returns -1 for an empty slice.
func ArgMax(v []float64) int {
	if len(v) == 0 {
		return -1
	}
	return floats.MaxIdx(v)
}

// Softmax returns the normalised exponentials of logits. The arg-max of the
// result equals the arg-max of the input.
func Softmax(logits []float64) []float64 {
	if len(logits) == 0 {
		return nil
	}
	lse := floats.LogSumExp(logits)
	out := make([]float64, len(logits))
	for i, v := range logits {
		out[i] = math.Exp(v - lse)
	}
	return out
}
