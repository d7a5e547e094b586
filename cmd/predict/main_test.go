package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"image/color"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trashdetect/perception/internal/api"
	"github.com/trashdetect/perception/internal/config"
	"github.com/trashdetect/perception/internal/dataset"
	"github.com/trashdetect/perception/internal/infer"
	"github.com/trashdetect/perception/internal/monitoring"
	"github.com/trashdetect/perception/internal/perr"
	"github.com/trashdetect/perception/internal/testutil"
	"github.com/trashdetect/perception/internal/train"
)

// trainTiny trains a small model for one epoch and returns the checkpoint
// and a sample image path.
func trainTiny(t *testing.T) (string, string) {
	t.Helper()
	monitoring.SetLogger(nil)

	s := testutil.NewStore(t)
	s.Add("sample.png", 10, 10, color.RGBA{G: 180, A: 255}, testutil.CompleteLabel(1, true, true)...)
	cfg := config.DefaultTrainConfig(s.Root())
	n, size, grid, feat, hidden, epochs := 4, 8, 2, 16, 8, 1
	cfg.NumTrashClasses, cfg.InputSize, cfg.PoolGrid = &n, &size, &grid
	cfg.FeatureSize, cfg.HiddenSize, cfg.Epochs = &feat, &hidden, &epochs
	ckpt := filepath.Join(t.TempDir(), "model.ckpt")
	cfg.CheckpointPath = &ckpt
	_, err := train.Train(cfg)
	require.NoError(t, err)
	return ckpt, s.Layout.ImagePath("sample.png")
}

func TestRunLocal(t *testing.T) {
	ckpt, img := trainTiny(t)

	var stdout bytes.Buffer
	require.NoError(t, run([]string{"-checkpoint", ckpt, "-trash-classes", "4", "-image", img}, &stdout))

	var pred infer.Prediction
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &pred))
	assert.GreaterOrEqual(t, pred.TrashClass, 0)
	assert.Less(t, pred.TrashClass, 4)
	assert.Len(t, pred.FaceEmbedding, 128)

	err := run([]string{"-checkpoint", ckpt, "-trash-classes", "60", "-image", img}, &bytes.Buffer{})
	assert.True(t, errors.Is(err, perr.ErrConfig))
}

func TestRunRemote(t *testing.T) {
	ckpt, img := trainTiny(t)
	tr := dataset.DefaultTransform()
	tr.Size = 8
	p, err := infer.NewPredictor(ckpt, 4, tr)
	require.NoError(t, err)
	mux, err := api.NewServer(p, api.Options{}).ServeMux()
	require.NoError(t, err)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var stdout bytes.Buffer
	require.NoError(t, run([]string{"-server", srv.URL, "-trash-classes", "4", "-image", img}, &stdout))
	var remote infer.Prediction
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &remote))

	local, err := p.PredictFile(img)
	require.NoError(t, err)
	assert.Equal(t, local.TrashClass, remote.TrashClass)
	assert.Equal(t, local.DisposalClass, remote.DisposalClass)
	assert.InDeltaSlice(t, local.FaceEmbedding, remote.FaceEmbedding, 1e-9)
}

func TestRunRemoteTrashClassMismatch(t *testing.T) {
	var predicted bool
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(api.Health{Status: "ok", NumTrashClasses: 4})
	})
	mux.HandleFunc("/predict", func(w http.ResponseWriter, r *http.Request) {
		predicted = true
		_ = json.NewEncoder(w).Encode(infer.Prediction{})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	img := filepath.Join(t.TempDir(), "x.png")
	testutil.WritePNG(t, img, testutil.SolidImage(4, 4, color.Black))
	err := run([]string{"-server", srv.URL, "-trash-classes", "60", "-image", img}, &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, perr.ErrConfig))
	assert.False(t, predicted)

	require.NoError(t, run([]string{"-server", srv.URL, "-trash-classes", "4", "-image", img}, &bytes.Buffer{}))
	assert.True(t, predicted)
}

func TestRunRequiresImage(t *testing.T) {
	err := run(nil, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-image")
}

func TestRunRemoteServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	img := filepath.Join(t.TempDir(), "x.png")
	testutil.WritePNG(t, img, testutil.SolidImage(4, 4, color.Black))
	err := run([]string{"-server", srv.URL, "-image", img}, &bytes.Buffer{})
	assert.Error(t, err)
}
