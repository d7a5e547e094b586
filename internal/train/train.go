// Package train fits the multi-task model on a unified dataset.
//
// Every batch contributes the unconditional sum of four losses: Smooth-L1 on
// the person box plus cross-entropy on the person, trash and disposal
// classes. The face embedding head takes no loss and receives no gradient.
package train

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/trashdetect/perception/internal/dataset"
	"github.com/trashdetect/perception/internal/model"
	"github.com/trashdetect/perception/internal/monitoring"
	"github.com/trashdetect/perception/internal/perr"
)

// Hyperparams control one training run.
type Hyperparams struct {
	Epochs          int
	BatchSize       int
	LearningRate    float64
	NumTrashClasses int
	Shuffle         bool
	Seed            int64
}

// DefaultHyperparams returns 10 epochs of batch 32 at lr 0.001 over 60 trash
// classes.
func DefaultHyperparams() Hyperparams {
	return Hyperparams{
		Epochs:          10,
		BatchSize:       32,
		LearningRate:    0.001,
		NumTrashClasses: 60,
		Shuffle:         true,
		Seed:            1,
	}
}

// Validate rejects hyperparameters a run cannot start with.
func (hp Hyperparams) Validate() error {
	switch {
	case hp.Epochs <= 0:
		return perr.Configf("epochs must be positive, got %d", hp.Epochs)
	case hp.BatchSize <= 0:
		return perr.Configf("batch size must be positive, got %d", hp.BatchSize)
	case hp.LearningRate <= 0:
		return perr.Configf("learning rate must be positive, got %g", hp.LearningRate)
	case hp.NumTrashClasses <= 0:
		return perr.Configf("trash classes must be positive, got %d", hp.NumTrashClasses)
	}
	return nil
}

// EpochStats are the batch-mean losses of one epoch.
type EpochStats struct {
	Epoch    int           `json:"epoch"`
	Loss     float64       `json:"loss"`
	BBox     float64       `json:"bbox"`
	Person   float64       `json:"person"`
	Trash    float64       `json:"trash"`
	Disposal float64       `json:"disposal"`
	Duration time.Duration `json:"duration"`
}

// EpochReporter is called after every epoch.
type EpochReporter func(EpochStats)

// Result summarises a finished run.
type Result struct {
	Epochs  []EpochStats
	Steps   int
	Samples int
	// Set by Train.
	RunID          string
	CheckpointPath string
}

// FinalLoss is the mean loss of the last epoch.
func (r *Result) FinalLoss() float64 {
	if len(r.Epochs) == 0 {
		return 0
	}
	return r.Epochs[len(r.Epochs)-1].Loss
}

type runOptions struct {
	reporters []EpochReporter
}

// Option customises Run.
type Option func(*runOptions)

// WithReporter adds an epoch callback. Reporters run in the order given.
func WithReporter(r EpochReporter) Option {
	return func(o *runOptions) { o.reporters = append(o.reporters, r) }
}

// Run trains m on ds in place. Any dataset error aborts the run.
func Run(ds *dataset.Dataset, m *model.Model, hp Hyperparams, opts ...Option) (*Result, error) {
	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}
	if err := hp.Validate(); err != nil {
		return nil, err
	}
	cfg := m.Config()
	if hp.NumTrashClasses != cfg.NumTrashClasses {
		return nil, perr.Configf("hyperparameters ask for %d trash classes, model has %d",
			hp.NumTrashClasses, cfg.NumTrashClasses)
	}
	if ds.Transform().Size != cfg.InputSize {
		return nil, perr.Dimensionf("dataset images are %dpx, model expects %dpx", ds.Transform().Size, cfg.InputSize)
	}
	if ds.Len() == 0 {
		return nil, perr.Dataf("", "dataset is empty")
	}

	rng := rand.New(rand.NewSource(hp.Seed))
	opt := NewAdam(hp.LearningRate)
	res := &Result{Samples: ds.Len()}

	for epoch := 1; epoch <= hp.Epochs; epoch++ {
		start := time.Now()
		var sum EpochStats
		batches := ds.Batches(hp.Shuffle, hp.BatchSize, rng)
		for _, idx := range batches {
			b, err := ds.LoadBatch(idx)
			if err != nil {
				return nil, fmt.Errorf("epoch %d: %w", epoch, err)
			}
			step, err := trainStep(m, opt, b)
			if err != nil {
				return nil, fmt.Errorf("epoch %d: %w", epoch, err)
			}
			sum.add(step)
			res.Steps++
		}

		stats := sum.mean(len(batches))
		stats.Epoch = epoch
		stats.Duration = time.Since(start)
		res.Epochs = append(res.Epochs, stats)
		monitoring.Logf("train: epoch %d/%d loss %.4f (bbox %.4f person %.4f trash %.4f disposal %.4f) in %v",
			epoch, hp.Epochs, stats.Loss, stats.BBox, stats.Person, stats.Trash, stats.Disposal,
			stats.Duration.Round(time.Millisecond))
		for _, r := range o.reporters {
			r(stats)
		}
	}
	return res, nil
}

// trainStep runs forward, loss, backward and one optimiser update.
func trainStep(m *model.Model, opt *Adam, b *dataset.Batch) (EpochStats, error) {
	out, cache, err := m.ForwardTrain(b.Images)
	if err != nil {
		return EpochStats{}, err
	}

	var s EpochStats
	grads := &model.Outputs{}
	s.BBox, grads.PersonBBox = smoothL1(out.PersonBBox, b.BBoxes)
	if s.Person, grads.PersonClass, err = crossEntropy(model.HeadPersonClass, out.PersonClass, b.Person); err != nil {
		return EpochStats{}, err
	}
	if s.Trash, grads.TrashClass, err = crossEntropy(model.HeadTrashClass, out.TrashClass, b.Trash); err != nil {
		return EpochStats{}, err
	}
	if s.Disposal, grads.DisposalClass, err = crossEntropy(model.HeadDisposalClass, out.DisposalClass, b.Disposal); err != nil {
		return EpochStats{}, err
	}
	s.Loss = s.BBox + s.Person + s.Trash + s.Disposal

	m.ZeroGrad()
	m.Backward(cache, grads)
	opt.Step(m.Params())
	return s, nil
}

func (s *EpochStats) add(o EpochStats) {
	s.Loss += o.Loss
	s.BBox += o.BBox
	s.Person += o.Person
	s.Trash += o.Trash
	s.Disposal += o.Disposal
}

func (s EpochStats) mean(n int) EpochStats {
	d := float64(n)
	return EpochStats{Loss: s.Loss / d, BBox: s.BBox / d, Person: s.Person / d, Trash: s.Trash / d, Disposal: s.Disposal / d}
}
