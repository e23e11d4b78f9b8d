package media

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/carlosfernandezdev/backend-recipeapp/internal/metrics"
)

// CleanerConfig sizes the cleanup worker pool.
type CleanerConfig struct {
	Workers       int
	QueueSize     int
	DeleteTimeout time.Duration
}

// DefaultCleanerConfig returns the defaults used when nothing is configured.
func DefaultCleanerConfig() CleanerConfig {
	return CleanerConfig{Workers: 4, QueueSize: 256, DeleteTimeout: 10 * time.Second}
}

// Cleaner deletes media in the background after the owning record is gone.
//
// Schedule never blocks and never fails: every id is attempted on its own,
// and errors are logged and counted, not returned. Media cleanup is
// advisory, so a media host outage cannot slow down or fail an API call.
type Cleaner struct {
	destroyer Destroyer
	config    CleanerConfig
	logger    *slog.Logger
	metrics   *metrics.Metrics

	jobs      chan string
	mu        sync.RWMutex
	stopped   bool
	wg        sync.WaitGroup
	startOnce sync.Once
}

// NewCleaner creates a stopped cleaner; call Start before scheduling.
func NewCleaner(d Destroyer, cfg CleanerConfig, logger *slog.Logger, m *metrics.Metrics) *Cleaner {
	def := DefaultCleanerConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.DeleteTimeout <= 0 {
		cfg.DeleteTimeout = def.DeleteTimeout
	}
	return &Cleaner{
		destroyer: d,
		config:    cfg,
		logger:    logger,
		metrics:   m,
		jobs:      make(chan string, cfg.QueueSize),
	}
}

// Start launches the workers. Calling it again is a no-op.
func (c *Cleaner) Start() {
	c.startOnce.Do(func() {
		c.logger.Info("starting media cleaner", slog.Int("workers", c.config.Workers))
		for i := 0; i < c.config.Workers; i++ {
			c.wg.Add(1)
			go c.worker()
		}
	})
}

// Stop refuses new work, lets the workers finish what is queued and waits
// for them.
func (c *Cleaner) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	close(c.jobs)
	c.mu.Unlock()

	c.logger.Info("stopping media cleaner", slog.Int("pending", len(c.jobs)))
	c.wg.Wait()
}

// Schedule queues publicIDs for deletion. Empty ids are ignored. When the
// queue is full (or the cleaner stopped) the id is dropped with a warning;
// the object then lingers on the media host, which is harmless.
func (c *Cleaner) Schedule(publicIDs ...string) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, id := range publicIDs {
		if id == "" {
			continue
		}
		if c.stopped {
			c.drop(id, "cleaner stopped")
			continue
		}
		select {
		case c.jobs <- id:
		default:
			c.drop(id, "queue full")
		}
	}
}

func (c *Cleaner) drop(id, reason string) {
	c.metrics.RecordMediaDeletion(metrics.OutcomeDropped)
	c.logger.Warn("media deletion dropped", slog.String("publicId", id), slog.String("reason", reason))
}

func (c *Cleaner) worker() {
	defer c.wg.Done()
	for id := range c.jobs {
		c.destroy(id)
	}
}

func (c *Cleaner) destroy(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.DeleteTimeout)
	defer cancel()

	if err := c.destroyer.Destroy(ctx, id); err != nil {
		c.metrics.RecordMediaDeletion(metrics.OutcomeFailed)
		c.logger.Warn("media deletion failed", slog.String("publicId", id), slog.String("error", err.Error()))
		return
	}
	c.metrics.RecordMediaDeletion(metrics.OutcomeDeleted)
	c.logger.Debug("media deleted", slog.String("publicId", id))
}
