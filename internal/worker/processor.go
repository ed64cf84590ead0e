package worker

import (
	"context"
	"sync"
	"time"

	"github.com/PaulBabatuyi/urbanease/internal/database"
	"go.uber.org/zap"
)

// Job outcomes reported to Outcomes.
const (
	outcomeCompleted = "completed"
	outcomeRetried   = "retried"
	outcomeFailed    = "failed"
)

// JobStore is the queue the worker drains.
type JobStore interface {
	GetNextPendingJob(ctx context.Context) (*database.ProcessingJob, error)
	GetItem(ctx context.Context, itemID string) (*database.PortfolioItem, error)
	UpdateJobStatus(ctx context.Context, jobID int64, status database.JobStatus, errorMsg string) error
	FailJob(ctx context.Context, jobID int64, errorMsg string) (database.JobStatus, error)
	CompleteJob(ctx context.Context, jobID int64, res database.ThumbnailResult) error
}

// Outcomes reports finished jobs, e.g. to metrics.
type Outcomes interface {
	JobFinished(outcome string)
}

type WorkerConfig struct {
	DB           JobStore
	Processor    *ImageProcessor
	Outcomes     Outcomes
	Logger       *zap.Logger
	PollInterval time.Duration
}

type ProcessingWorker struct {
	config *WorkerConfig
	logger *zap.Logger
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

func NewProcessingWorker(config *WorkerConfig) *ProcessingWorker {
	if config.PollInterval == 0 {
		config.PollInterval = 2 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProcessingWorker{
		config: config,
		logger: logger.Named("worker"),
		done:   make(chan struct{}),
	}
}

func (pw *ProcessingWorker) Start(ctx context.Context) {
	pw.wg.Add(1)
	go pw.run(ctx)
	pw.logger.Info("processing worker started", zap.Duration("poll_interval", pw.config.PollInterval))
}

// Stop signals the loop and waits for the job in hand to finish.
func (pw *ProcessingWorker) Stop() {
	pw.once.Do(func() { close(pw.done) })
	pw.wg.Wait()
	pw.logger.Info("processing worker stopped")
}

func (pw *ProcessingWorker) run(ctx context.Context) {
	defer pw.wg.Done()
	ticker := time.NewTicker(pw.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-pw.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			pw.drain(ctx)
		}
	}
}

// drain handles ready jobs until the queue is empty. It stops after a
// retry so a failing job waits at least one poll interval per attempt.
func (pw *ProcessingWorker) drain(ctx context.Context) {
	for {
		select {
		case <-pw.done:
			return
		default:
		}
		outcome, found := pw.processNext(ctx)
		if !found || outcome == outcomeRetried {
			return
		}
	}
}

// ProcessNext handles one job and reports whether one was found.
func (pw *ProcessingWorker) ProcessNext(ctx context.Context) bool {
	_, found := pw.processNext(ctx)
	return found
}

func (pw *ProcessingWorker) processNext(ctx context.Context) (string, bool) {
	db := pw.config.DB

	job, err := db.GetNextPendingJob(ctx)
	if err != nil {
		pw.logger.Error("error getting next job", zap.Error(err))
		return "", false
	}
	if job == nil {
		return "", false
	}

	log := pw.logger.With(zap.Int64("job_id", job.ID), zap.String("item_id", job.ItemID))
	log.Debug("processing job")

	item, err := db.GetItem(ctx, job.ItemID)
	if err != nil {
		// The item was deleted after upload; nothing left to render.
		log.Warn("item not found", zap.Error(err))
		if uerr := db.UpdateJobStatus(ctx, job.ID, database.JobFailed, "item not found"); uerr != nil {
			log.Error("failed to mark job failed", zap.Error(uerr))
		}
		return pw.finished(outcomeFailed), true
	}

	res, err := pw.config.Processor.ProcessImage(ctx, item)
	if err != nil {
		log.Warn("image processing failed", zap.Error(err))
		return pw.fail(ctx, log, job.ID, err.Error()), true
	}

	if err := db.CompleteJob(ctx, job.ID, res); err != nil {
		log.Error("failed to save job results", zap.Error(err))
		return pw.fail(ctx, log, job.ID, "save results: "+err.Error()), true
	}
	log.Info("completed job: generated thumbnails", zap.Int("width", res.Width), zap.Int("height", res.Height))
	return pw.finished(outcomeCompleted), true
}

// fail records a failed attempt; the store decides between retry and
// giving up.
func (pw *ProcessingWorker) fail(ctx context.Context, log *zap.Logger, jobID int64, msg string) string {
	status, err := pw.config.DB.FailJob(ctx, jobID, msg)
	if err != nil {
		log.Error("failed to record job failure", zap.Error(err))
		return pw.finished(outcomeFailed)
	}
	if status == database.JobFailed {
		log.Warn("job failed permanently", zap.String("error", msg))
		return pw.finished(outcomeFailed)
	}
	return pw.finished(outcomeRetried)
}

func (pw *ProcessingWorker) finished(outcome string) string {
	if pw.config.Outcomes != nil {
		pw.config.Outcomes.JobFinished(outcome)
	}
	return outcome
}
