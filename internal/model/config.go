package model

import (
	"github.com/trashdetect/perception/internal/perr"
)

// Config fixes every shape in the model. A checkpoint records the Config it
// was trained with.
type Config struct {
	NumTrashClasses int
	InputSize       int // side of the square preprocessed image
	PoolGrid        int // backbone pools each channel to PoolGrid x PoolGrid
	FeatureSize     int
	HiddenSize      int
	EmbeddingSize   int
	Seed            int64
}

// Output widths of the fixed heads.
const (
	BBoxSize           = 4
	PersonClasses      = 2
	DisposalClasses    = 2
	DefaultEmbedding   = 128
	defaultInputSize   = 224
	defaultPoolGrid    = 8
	defaultFeatureSize = 256
	defaultHiddenSize  = 128
	defaultSeed        = 1
	channels           = 3
)

// DefaultConfig returns the standard shapes for numTrash trash classes.
func DefaultConfig(numTrash int) Config {
	return Config{
		NumTrashClasses: numTrash,
		InputSize:       defaultInputSize,
		PoolGrid:        defaultPoolGrid,
		FeatureSize:     defaultFeatureSize,
		HiddenSize:      defaultHiddenSize,
		EmbeddingSize:   DefaultEmbedding,
		Seed:            defaultSeed,
	}
}

// InputWidth is the width of one flattened CHW image row.
func (c Config) InputWidth() int { return channels * c.InputSize * c.InputSize }

func (c Config) pooledWidth() int { return channels * c.PoolGrid * c.PoolGrid }

// Validate rejects shapes the model cannot be built with.
func (c Config) Validate() error {
	switch {
	case c.NumTrashClasses <= 0:
		return perr.Configf("model: num trash classes must be positive, got %d", c.NumTrashClasses)
	case c.InputSize <= 0:
		return perr.Configf("model: input size must be positive, got %d", c.InputSize)
	case c.PoolGrid <= 0 || c.PoolGrid > c.InputSize:
		return perr.Configf("model: pool grid %d must be in [1,%d]", c.PoolGrid, c.InputSize)
	case c.FeatureSize <= 0 || c.HiddenSize <= 0 || c.EmbeddingSize <= 0:
		return perr.Configf("model: layer sizes must be positive (feature %d, hidden %d, embedding %d)",
			c.FeatureSize, c.HiddenSize, c.EmbeddingSize)
	}
	return nil
}
