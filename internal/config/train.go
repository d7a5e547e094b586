package config

import (
	"fmt"

	"github.com/trashdetect/perception/internal/perr"
)

// Incomplete-sample policies accepted by IncompletePolicy.
const (
	PolicyStrict                  = "strict"
	PolicyExcludeIncomplete       = "exclude_incomplete"
	DefaultCheckpointPath         = "model.ckpt"
	DefaultNumTrashClasses        = 60
	DefaultEmbeddingSize          = 128
	defaultInputSize              = 224
	defaultEpochs                 = 10
	defaultBatchSize              = 32
	defaultLearningRate           = 0.001
	defaultPoolGrid               = 8
	defaultFeatureSize            = 256
	defaultHiddenSize             = 128
	defaultSeed             int64 = 1
)

// TrainConfig is the on-disk form of a training run. DataRoot is the only
// required field.
type TrainConfig struct {
	DataRoot       string  `json:"data_root" validate:"required"`
	TaxonomyPath   *string `json:"taxonomy_path,omitempty"`
	CheckpointPath *string `json:"checkpoint_path,omitempty" validate:"omitempty,min=1"`

	// Hyperparameters
	Epochs          *int     `json:"epochs,omitempty" validate:"omitempty,gt=0"`
	BatchSize       *int     `json:"batch_size,omitempty" validate:"omitempty,gt=0"`
	LearningRate    *float64 `json:"learning_rate,omitempty" validate:"omitempty,gt=0"`
	NumTrashClasses *int     `json:"num_trash_classes,omitempty" validate:"omitempty,gt=0"`
	Shuffle         *bool    `json:"shuffle,omitempty"`
	Seed            *int64   `json:"seed,omitempty"`

	// Dataset
	IncompletePolicy *string `json:"incomplete_policy,omitempty" validate:"omitempty,oneof=strict exclude_incomplete"`
	SortIndex        *bool   `json:"sort_index,omitempty"`

	// Model shape
	InputSize     *int `json:"input_size,omitempty" validate:"omitempty,gt=0"`
	PoolGrid      *int `json:"pool_grid,omitempty" validate:"omitempty,gt=0"`
	FeatureSize   *int `json:"feature_size,omitempty" validate:"omitempty,gt=0"`
	HiddenSize    *int `json:"hidden_size,omitempty" validate:"omitempty,gt=0"`
	EmbeddingSize *int `json:"embedding_size,omitempty" validate:"omitempty,gt=0"`

	// Outputs besides the checkpoint
	LossPlotPath *string `json:"loss_plot_path,omitempty"`
	RunLogPath   *string `json:"run_log_path,omitempty"`
}

// DefaultTrainConfig returns a config for dataRoot with every default made
// explicit.
func DefaultTrainConfig(dataRoot string) *TrainConfig {
	return &TrainConfig{
		DataRoot:         dataRoot,
		CheckpointPath:   ptrString(DefaultCheckpointPath),
		Epochs:           ptrInt(defaultEpochs),
		BatchSize:        ptrInt(defaultBatchSize),
		LearningRate:     ptrFloat64(defaultLearningRate),
		NumTrashClasses:  ptrInt(DefaultNumTrashClasses),
		Shuffle:          ptrBool(true),
		Seed:             ptrInt64(defaultSeed),
		IncompletePolicy: ptrString(PolicyStrict),
		InputSize:        ptrInt(defaultInputSize),
		PoolGrid:         ptrInt(defaultPoolGrid),
		FeatureSize:      ptrInt(defaultFeatureSize),
		HiddenSize:       ptrInt(defaultHiddenSize),
		EmbeddingSize:    ptrInt(DefaultEmbeddingSize),
	}
}

// LoadTrainConfig loads a TrainConfig from a JSON file. Omitted fields fall
// back to the Get* defaults.
func LoadTrainConfig(path string) (*TrainConfig, error) {
	cfg := &TrainConfig{}
	if err := readJSONFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks field ranges and cross-field constraints.
func (c *TrainConfig) Validate() error {
	if err := checkStruct("training config", c); err != nil {
		return err
	}
	if c.GetPoolGrid() > c.GetInputSize() {
		return perr.Configf("pool_grid %d exceeds input_size %d", c.GetPoolGrid(), c.GetInputSize())
	}
	return nil
}

// GetCheckpointPath returns the checkpoint_path value or the default.
func (c *TrainConfig) GetCheckpointPath() string {
	if c.CheckpointPath == nil {
		return DefaultCheckpointPath
	}
	return *c.CheckpointPath
}

// GetTaxonomyPath returns the taxonomy_path value; empty selects the built-in
// taxonomy.
func (c *TrainConfig) GetTaxonomyPath() string {
	if c.TaxonomyPath == nil {
		return ""
	}
	return *c.TaxonomyPath
}

// GetEpochs returns the epochs value or the default.
func (c *TrainConfig) GetEpochs() int {
	if c.Epochs == nil {
		return defaultEpochs
	}
	return *c.Epochs
}

// GetBatchSize returns the batch_size value or the default.
func (c *TrainConfig) GetBatchSize() int {
	if c.BatchSize == nil {
		return defaultBatchSize
	}
	return *c.BatchSize
}

// GetLearningRate returns the learning_rate value or the default.
func (c *TrainConfig) GetLearningRate() float64 {
	if c.LearningRate == nil {
		return defaultLearningRate
	}
	return *c.LearningRate
}

// GetNumTrashClasses returns the num_trash_classes value or the default.
func (c *TrainConfig) GetNumTrashClasses() int {
	if c.NumTrashClasses == nil {
		return DefaultNumTrashClasses
	}
	return *c.NumTrashClasses
}

// GetShuffle returns the shuffle value or the default (true).
func (c *TrainConfig) GetShuffle() bool {
	if c.Shuffle == nil {
		return true
	}
	return *c.Shuffle
}

// GetSeed returns the seed value or the default.
func (c *TrainConfig) GetSeed() int64 {
	if c.Seed == nil {
		return defaultSeed
	}
	return *c.Seed
}

// GetIncompletePolicy returns the incomplete_policy value or "strict".
func (c *TrainConfig) GetIncompletePolicy() string {
	if c.IncompletePolicy == nil {
		return PolicyStrict
	}
	return *c.IncompletePolicy
}

// GetSortIndex returns the sort_index value or the default (false).
func (c *TrainConfig) GetSortIndex() bool {
	if c.SortIndex == nil {
		return false
	}
	return *c.SortIndex
}

// GetInputSize returns the input_size value or the default.
func (c *TrainConfig) GetInputSize() int {
	if c.InputSize == nil {
		return defaultInputSize
	}
	return *c.InputSize
}

// GetPoolGrid returns the pool_grid value or the default.
func (c *TrainConfig) GetPoolGrid() int {
	if c.PoolGrid == nil {
		return defaultPoolGrid
	}
	return *c.PoolGrid
}

// GetFeatureSize returns the feature_size value or the default.
func (c *TrainConfig) GetFeatureSize() int {
	if c.FeatureSize == nil {
		return defaultFeatureSize
	}
	return *c.FeatureSize
}

// GetHiddenSize returns the hidden_size value or the default.
func (c *TrainConfig) GetHiddenSize() int {
	if c.HiddenSize == nil {
		return defaultHiddenSize
	}
	return *c.HiddenSize
}

// GetEmbeddingSize returns the embedding_size value or the default.
func (c *TrainConfig) GetEmbeddingSize() int {
	if c.EmbeddingSize == nil {
		return DefaultEmbeddingSize
	}
	return *c.EmbeddingSize
}

// GetLossPlotPath returns the loss_plot_path value; empty disables the plot.
func (c *TrainConfig) GetLossPlotPath() string {
	if c.LossPlotPath == nil {
		return ""
	}
	return *c.LossPlotPath
}

// GetRunLogPath returns the run_log_path value; empty disables run logging.
func (c *TrainConfig) GetRunLogPath() string {
	if c.RunLogPath == nil {
		return ""
	}
	return *c.RunLogPath
}
