package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pintrader/pintrader-backend/internal/file/biz"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrBackendUnavailable aborts a whole cycle: no record was touched and
// everything pending is retried on the next tick.
var ErrBackendUnavailable = errors.New("pinning backend unavailable")

// Session is one live connection to the pinning backend, held for the
// duration of a cycle.
type Session interface {
	Pin(ctx context.Context, name string, r io.Reader) (string, error)
	Close() error
}

// Backend hands out sessions. Connecting may fail at any time; the backend
// is an unreliable external collaborator.
type Backend interface {
	Connect(ctx context.Context) (Session, error)
}

// Config 处理器配置
type Config struct {
	// Interval between polling cycles.
	Interval time.Duration `mapstructure:"interval"`
	// BatchSize is the maximum number of pending records per cycle.
	BatchSize int `mapstructure:"batch_size"`
	// StaleTimeout reclaims processing records older than this back to
	// pending at the start of each cycle. Zero disables reclaiming and
	// stuck records then need an explicit retry.
	StaleTimeout time.Duration `mapstructure:"stale_timeout"`
	// PinsPerSecond throttles pin submissions; zero means unlimited.
	PinsPerSecond float64 `mapstructure:"pins_per_second"`
	// CleanupStaged removes staged bytes after a successful pin.
	CleanupStaged bool `mapstructure:"cleanup_staged"`
}

// SetDefaults fills in zero-valued fields.
func (c *Config) SetDefaults() {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
}

// Processor is the background pinning loop: it polls the store for pending
// records, pins their staged bytes into the content-addressed backend and
// writes the resulting identifier back. Records are handled sequentially,
// oldest first, and every state transition is durable before the next
// record is touched.
type Processor struct {
	repo    biz.FileRepo
	staging biz.StagingStore
	backend Backend
	limiter *rate.Limiter
	config  Config
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a processor.
func New(repo biz.FileRepo, store biz.StagingStore, backend Backend, cfg Config, logger *zap.Logger) *Processor {
	cfg.SetDefaults()

	limit := rate.Inf
	if cfg.PinsPerSecond > 0 {
		limit = rate.Limit(cfg.PinsPerSecond)
	}

	return &Processor{
		repo:    repo,
		staging: store,
		backend: backend,
		limiter: rate.NewLimiter(limit, 1),
		config:  cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Run executes one cycle immediately, then one per interval until the
// context is cancelled. Cycle errors are logged, never fatal: a broken
// backend or store heals on a later tick.
func (p *Processor) Run(ctx context.Context) {
	p.logger.Info("pinning processor started",
		zap.Duration("interval", p.config.Interval),
		zap.Int("batch_size", p.config.BatchSize))

	if err := p.RunCycle(ctx); err != nil {
		p.logger.Warn("processing cycle failed", zap.Error(err))
	}

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pinning processor stopped")
			return
		case <-ticker.C:
			if err := p.RunCycle(ctx); err != nil {
				p.logger.Warn("processing cycle failed", zap.Error(err))
			}
		}
	}
}

// RunCycle performs a single polling cycle. Safe to call with no backlog.
func (p *Processor) RunCycle(ctx context.Context) error {
	if p.config.StaleTimeout > 0 {
		threshold := p.now().Add(-p.config.StaleTimeout)
		n, err := p.repo.ReclaimStale(ctx, threshold)
		if err != nil {
			return fmt.Errorf("reclaim stale records: %w", err)
		}
		if n > 0 {
			p.logger.Warn("reclaimed stale processing records", zap.Int64("count", n))
		}
	}

	records, err := p.repo.ListPending(ctx, p.config.BatchSize)
	if err != nil {
		return fmt.Errorf("list pending files: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	p.logger.Info("found pending files", zap.Int("count", len(records)))

	// One connection per cycle. If the backend is down the cycle aborts
	// here and every record stays pending for the next tick.
	sess, err := p.backend.Connect(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer sess.Close()

	for _, rec := range records {
		claimed, err := p.repo.UpdateStatus(ctx, rec.ID, biz.StatusPending, biz.StatusProcessing, "")
		if err != nil {
			return fmt.Errorf("claim file %s: %w", rec.ID, err)
		}
		if !claimed {
			// Another processor instance got there first.
			continue
		}

		p.processRecord(ctx, sess, rec)
	}

	return nil
}

// processRecord pins one claimed record. Failures are scoped to the record:
// it is marked failed and the cycle moves on.
func (p *Processor) processRecord(ctx context.Context, sess Session, rec *biz.FileRecord) {
	log := p.logger.With(zap.String("file_id", rec.ID), zap.String("filename", rec.Filename))

	content, err := p.staging.Open(ctx, rec.StoragePath)
	if err != nil {
		// Missing staged bytes cannot heal on retry; permanent failure.
		log.Error("staged file not found", zap.String("storage_path", rec.StoragePath), zap.Error(err))
		p.markFailed(ctx, rec.ID, fmt.Sprintf("staged file not found: %v", err))
		return
	}

	if err := p.limiter.Wait(ctx); err != nil {
		_ = content.Close()
		p.markFailed(ctx, rec.ID, fmt.Sprintf("pin cancelled: %v", err))
		return
	}

	hash, err := sess.Pin(ctx, rec.Filename, content)
	_ = content.Close()
	if err != nil {
		log.Error("pin submission failed", zap.Error(err))
		p.markFailed(ctx, rec.ID, fmt.Sprintf("pin failed: %v", err))
		return
	}

	ok, err := p.repo.SetCompleted(ctx, rec.ID, hash)
	if err != nil {
		if errors.Is(err, biz.ErrDuplicateHash) {
			// Identical content was registered through the other path
			// while this record waited. Dedup wins.
			log.Warn("content already registered", zap.String("multihash", hash))
			p.markFailed(ctx, rec.ID, fmt.Sprintf("duplicate content: multihash %s already registered", hash))
			return
		}
		log.Error("failed to persist multihash", zap.Error(err))
		p.markFailed(ctx, rec.ID, fmt.Sprintf("failed to persist multihash: %v", err))
		return
	}
	if !ok {
		// The record left processing underneath us; leave it alone.
		log.Warn("record no longer in processing, skipping completion")
		return
	}

	if p.config.CleanupStaged {
		if err := p.staging.Remove(ctx, rec.StoragePath); err != nil {
			log.Warn("failed to remove staged file", zap.Error(err))
		}
	}

	log.Info("file pinned", zap.String("multihash", hash))
}

func (p *Processor) markFailed(ctx context.Context, id, reason string) {
	if _, err := p.repo.UpdateStatus(ctx, id, biz.StatusProcessing, biz.StatusFailed, reason); err != nil {
		p.logger.Error("failed to mark file as failed",
			zap.String("file_id", id),
			zap.Error(err))
	}
}
