package extraction

import (
	"fmt"

	"github.com/sahilchouksey/study-artifacts/model"
)

// Config holds the extraction tunables
type Config struct {
	// SamplePages is the number of leading pages probed for text density
	SamplePages int
	// DensityThreshold is the minimum average of non-space characters per
	// sampled page for direct extraction
	DensityThreshold float64
	// MaxPagesDirect and MaxPagesOCR bound batch size per strategy
	MaxPagesDirect int
	MaxPagesOCR    int
	// Workers bounds concurrent batch extractions per document
	Workers int
}

// DefaultConfig returns the default extraction configuration
func DefaultConfig() Config {
	return Config{
		SamplePages:      3,
		DensityThreshold: 100,
		MaxPagesDirect:   20,
		MaxPagesOCR:      4,
		Workers:          4,
	}
}

// MaxPagesFor returns the batch size bound for a strategy
func (c Config) MaxPagesFor(strategy model.Strategy) int {
	if strategy == model.StrategyOCR {
		return c.MaxPagesOCR
	}
	return c.MaxPagesDirect
}

// Validate checks the configuration is usable
func (c Config) Validate() error {
	if c.SamplePages < 1 {
		return fmt.Errorf("sample pages must be at least 1, got %d", c.SamplePages)
	}
	if c.DensityThreshold < 0 {
		return fmt.Errorf("density threshold must not be negative, got %v", c.DensityThreshold)
	}
	if c.MaxPagesDirect < 1 || c.MaxPagesOCR < 1 {
		return fmt.Errorf("max pages per batch must be at least 1 (direct=%d, ocr=%d)", c.MaxPagesDirect, c.MaxPagesOCR)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	return nil
}
