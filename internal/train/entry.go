package train

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/trashdetect/perception/internal/config"
	"github.com/trashdetect/perception/internal/dataset"
	"github.com/trashdetect/perception/internal/labels"
	"github.com/trashdetect/perception/internal/model"
	"github.com/trashdetect/perception/internal/monitoring"
	"github.com/trashdetect/perception/internal/perr"
	"github.com/trashdetect/perception/internal/runlog"
)

// Train runs a complete training job from cfg: open the dataset, build the
// model, train, and save the checkpoint. When configured it also writes a
// loss plot and records the run in the run log.
func Train(cfg *config.TrainConfig) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	numTrash := cfg.GetNumTrashClasses()

	tax, err := loadTaxonomy(cfg.GetTaxonomyPath(), numTrash)
	if err != nil {
		return nil, err
	}
	policy, err := dataset.ParsePolicy(cfg.GetIncompletePolicy())
	if err != nil {
		return nil, err
	}
	transform := dataset.DefaultTransform()
	transform.Size = cfg.GetInputSize()
	ds, err := dataset.Open(cfg.DataRoot, tax, dataset.Options{
		Policy:    policy,
		Sort:      cfg.GetSortIndex(),
		Transform: &transform,
	})
	if err != nil {
		return nil, err
	}

	m, err := model.New(ModelConfig(cfg))
	if err != nil {
		return nil, err
	}
	hp := Hyperparams{
		Epochs:          cfg.GetEpochs(),
		BatchSize:       cfg.GetBatchSize(),
		LearningRate:    cfg.GetLearningRate(),
		NumTrashClasses: numTrash,
		Shuffle:         cfg.GetShuffle(),
		Seed:            cfg.GetSeed(),
	}
	monitoring.Logf("train: %d samples from %s, %d epochs, batch %d, lr %g, %d trash classes",
		ds.Len(), cfg.DataRoot, hp.Epochs, hp.BatchSize, hp.LearningRate, numTrash)

	var opts []Option
	var rl *runRecorder
	if path := cfg.GetRunLogPath(); path != "" {
		rl, err = startRecorder(path, cfg, hp, ds.Len())
		if err != nil {
			return nil, err
		}
		defer rl.close()
		opts = append(opts, WithReporter(rl.epoch))
	}

	res, err := Run(ds, m, hp, opts...)
	if err == nil {
		res.CheckpointPath = cfg.GetCheckpointPath()
		if err = m.Save(res.CheckpointPath); err == nil {
			monitoring.Logf("train: checkpoint saved to %s", res.CheckpointPath)
		}
	}
	if rl != nil {
		var final float64
		if res != nil {
			final = res.FinalLoss()
			res.RunID = rl.id
		}
		rl.finish(final, err)
	}
	if err != nil {
		return nil, err
	}

	if plotPath := cfg.GetLossPlotPath(); plotPath != "" {
		title := "Training loss: " + filepath.Base(strings.TrimRight(cfg.DataRoot, string(filepath.Separator)))
		if err := WriteLossPlot(plotPath, title, res.Epochs); err != nil {
			monitoring.Logf("train: warning: %v", err)
		}
	}
	return res, nil
}

// ModelConfig derives the model shapes from a training config.
func ModelConfig(cfg *config.TrainConfig) model.Config {
	return model.Config{
		NumTrashClasses: cfg.GetNumTrashClasses(),
		InputSize:       cfg.GetInputSize(),
		PoolGrid:        cfg.GetPoolGrid(),
		FeatureSize:     cfg.GetFeatureSize(),
		HiddenSize:      cfg.GetHiddenSize(),
		EmbeddingSize:   cfg.GetEmbeddingSize(),
		Seed:            cfg.GetSeed(),
	}
}

func loadTaxonomy(path string, numTrash int) (*labels.Taxonomy, error) {
	if path == "" {
		return labels.DefaultTaxonomy(numTrash), nil
	}
	tax, err := labels.LoadTaxonomy(path)
	if err != nil {
		return nil, err
	}
	if tax.NumTrashClasses() != numTrash {
		return nil, perr.Configf("taxonomy %s defines %d trash classes, config asks for %d",
			path, tax.NumTrashClasses(), numTrash)
	}
	return tax, nil
}

// runRecorder mirrors a run into the run log. Run log failures are logged
// and never fail training.
type runRecorder struct {
	store *runlog.Store
	id    string
}

func startRecorder(path string, cfg *config.TrainConfig, hp Hyperparams, samples int) (*runRecorder, error) {
	store, err := runlog.OpenMigrated(path)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	id, err := store.StartRun(runlog.RunParams{
		DataRoot:        cfg.DataRoot,
		CheckpointPath:  cfg.GetCheckpointPath(),
		Epochs:          hp.Epochs,
		BatchSize:       hp.BatchSize,
		LearningRate:    hp.LearningRate,
		NumTrashClasses: hp.NumTrashClasses,
		Samples:         samples,
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	monitoring.Logf("train: run log %s, run id %s", path, id)
	return &runRecorder{store: store, id: id}, nil
}

func (r *runRecorder) epoch(e EpochStats) {
	err := r.store.RecordEpoch(r.id, runlog.Epoch{
		Epoch:      e.Epoch,
		Loss:       e.Loss,
		BBox:       e.BBox,
		Person:     e.Person,
		Trash:      e.Trash,
		Disposal:   e.Disposal,
		DurationMS: e.Duration.Milliseconds(),
	})
	if err != nil {
		monitoring.Logf("train: warning: %v", err)
	}
}

func (r *runRecorder) finish(finalLoss float64, runErr error) {
	if err := r.store.FinishRun(r.id, finalLoss, runErr); err != nil {
		monitoring.Logf("train: warning: %v", err)
	}
}

func (r *runRecorder) close() {
	r.store.Close()
}
