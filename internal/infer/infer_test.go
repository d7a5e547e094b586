package infer

import (
	"bytes"
	"errors"
	"image/color"
	"image/png"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/trashdetect/perception/internal/config"
	"github.com/trashdetect/perception/internal/dataset"
	"github.com/trashdetect/perception/internal/model"
	"github.com/trashdetect/perception/internal/perr"
	"github.com/trashdetect/perception/internal/testutil"
	"github.com/trashdetect/perception/internal/train"
)

func tinyTransform() dataset.Transform {
	t := dataset.DefaultTransform()
	t.Size = 8
	return t
}

// trainedCheckpoint trains one epoch on a one-image store and returns the
// checkpoint path and the image path.
func trainedCheckpoint(t *testing.T, numTrash int) (string, string) {
	t.Helper()
	s := testutil.NewStore(t)
	s.Add("sample.png", 16, 16, color.RGBA{R: 30, G: 160, B: 60, A: 255}, testutil.CompleteLabel(numTrash-1, true, true)...)

	cfg := config.DefaultTrainConfig(s.Root())
	n, size, grid, feat, hidden, epochs := numTrash, 8, 2, 16, 8, 1
	cfg.NumTrashClasses, cfg.InputSize, cfg.PoolGrid = &n, &size, &grid
	cfg.FeatureSize, cfg.HiddenSize, cfg.Epochs = &feat, &hidden, &epochs
	ckpt := filepath.Join(t.TempDir(), "model.ckpt")
	cfg.CheckpointPath = &ckpt

	_, err := train.Train(cfg)
	require.NoError(t, err)
	return ckpt, s.Layout.ImagePath("sample.png")
}

func TestTrainThenPredict(t *testing.T) {
	ckpt, img := trainedCheckpoint(t, 6)

	p, err := NewPredictor(ckpt, 6, tinyTransform())
	require.NoError(t, err)
	pred, err := p.PredictFile(img)
	require.NoError(t, err)

	assert.Contains(t, []int{0, 1}, pred.PersonClass)
	assert.GreaterOrEqual(t, pred.TrashClass, 0)
	assert.Less(t, pred.TrashClass, 6)
	assert.Contains(t, []int{0, 1}, pred.DisposalClass)
	assert.Len(t, pred.FaceEmbedding, model.DefaultEmbedding)

	oneShot, err := Predict(ckpt, 6, img)
	require.NoError(t, err)
	assert.Equal(t, pred, oneShot)
}

func TestTrashClassMismatchIsConfigError(t *testing.T) {
	ckpt, _ := trainedCheckpoint(t, 6)

	_, err := NewPredictor(ckpt, 60, tinyTransform())
	require.Error(t, err)
	assert.True(t, errors.Is(err, perr.ErrConfig))
}

func TestTransformSizeMismatch(t *testing.T) {
	ckpt, _ := trainedCheckpoint(t, 3)

	_, err := NewPredictor(ckpt, 3, dataset.DefaultTransform())
	require.Error(t, err)
	assert.True(t, errors.Is(err, perr.ErrConfig))
}

func TestPredictReader(t *testing.T) {
	ckpt, _ := trainedCheckpoint(t, 3)
	p, err := NewPredictor(ckpt, 3, tinyTransform())
	require.NoError(t, err)

	_, err = p.PredictReader(bytes.NewReader([]byte("definitely not an image")))
	assert.True(t, errors.Is(err, perr.ErrData))

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testutil.SolidImage(5, 9, color.White)))
	want, err := p.PredictImage(testutil.SolidImage(5, 9, color.White))
	require.NoError(t, err)
	got, err := p.PredictReader(&buf)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestPredictorConcurrentUse(t *testing.T) {
	ckpt, img := trainedCheckpoint(t, 3)
	p, err := NewPredictor(ckpt, 3, tinyTransform())
	require.NoError(t, err)
	want, err := p.PredictFile(img)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := p.PredictFile(img)
			assert.NoError(t, err)
			assert.Equal(t, want, got)
		}()
	}
	wg.Wait()
}

func TestArgMax(t *testing.T) {
	tests := []struct {
		in   []float64
		want int
	}{
		{[]float64{0.1, 0.7, 0.2}, 1},
		{[]float64{3, 3, 1}, 0},
		{[]float64{-5, -1, -1}, 1},
		{[]float64{42}, 0},
		{nil, -1},
	}
	for _, tt := range tests {
		got := ArgMax(tt.in)
		assert.Equal(t, tt.want, got, "ArgMax(%v)", tt.in)
		if got >= 0 {
			// Decoding an already decoded one-hot row yields the same class.
			onehot := make([]float64, len(tt.in))
			onehot[got] = 1
			assert.Equal(t, got, ArgMax(onehot))
		}
	}
}

func TestSoftmax(t *testing.T) {
	logits := []float64{2, -1, 0.5, 900}
	sm := Softmax(logits)
	assert.InDelta(t, 1, floats.Sum(sm), 1e-12)
	assert.Equal(t, ArgMax(logits), ArgMax(sm))
	assert.Nil(t, Softmax(nil))
}
