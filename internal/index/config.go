package index

import (
	"runtime"
	"time"
)

// Config tunes the pipeline. Zero fields take their DefaultConfig values.
type Config struct {
	// PreprocessWorkers is the number of dedicated preprocess goroutines.
	// With zero, the index stage preprocesses inline.
	PreprocessWorkers int

	// IndexWorkers is the number of index-stage goroutines. Engine calls stay
	// serialized under the commit lock regardless of this value.
	IndexWorkers int

	// IndexQueueCapacity bounds the hand-off between preprocess and index stages.
	IndexQueueCapacity int

	// BusyThreshold is the weighted pending count above which IsBusy reports true.
	BusyThreshold int

	// CommitThreshold forces a commit once this many writes are uncommitted.
	CommitThreshold int

	// CommitInterval is how long the index stage must be idle before an idle commit.
	CommitInterval time.Duration

	// RunPollTimeout bounds each wait on the run queue.
	RunPollTimeout time.Duration

	// ItemPollTimeout bounds each wait on the item and index queues.
	ItemPollTimeout time.Duration

	// ShutdownTimeout bounds how long Shutdown waits for workers to exit.
	ShutdownTimeout time.Duration

	// ItemQueueHighWater makes the run stage sleep while the item queue is longer.
	ItemQueueHighWater int

	// SequenceCacheSize bounds the identifiers tracked for last-write-wins ordering.
	SequenceCacheSize int
}

// DefaultConfig returns the stock pipeline settings.
func DefaultConfig() Config {
	return Config{
		PreprocessWorkers:  0,
		IndexWorkers:       1,
		IndexQueueCapacity: min(100, 10*runtime.NumCPU()),
		BusyThreshold:      1000,
		CommitThreshold:    10000,
		CommitInterval:     2 * time.Second,
		RunPollTimeout:     30 * time.Second,
		ItemPollTimeout:    time.Second,
		ShutdownTimeout:    time.Second,
		ItemQueueHighWater: 1000,
		SequenceCacheSize:  100_000,
	}
}

// withDefaults fills unset fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PreprocessWorkers < 0 {
		c.PreprocessWorkers = 0
	}
	if c.IndexWorkers <= 0 {
		c.IndexWorkers = d.IndexWorkers
	}
	if c.IndexQueueCapacity <= 0 {
		c.IndexQueueCapacity = d.IndexQueueCapacity
	}
	if c.BusyThreshold <= 0 {
		c.BusyThreshold = d.BusyThreshold
	}
	if c.CommitThreshold <= 0 {
		c.CommitThreshold = d.CommitThreshold
	}
	if c.CommitInterval <= 0 {
		c.CommitInterval = d.CommitInterval
	}
	if c.RunPollTimeout <= 0 {
		c.RunPollTimeout = d.RunPollTimeout
	}
	if c.ItemPollTimeout <= 0 {
		c.ItemPollTimeout = d.ItemPollTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	if c.ItemQueueHighWater <= 0 {
		c.ItemQueueHighWater = d.ItemQueueHighWater
	}
	if c.SequenceCacheSize <= 0 {
		c.SequenceCacheSize = d.SequenceCacheSize
	}
	return c
}
