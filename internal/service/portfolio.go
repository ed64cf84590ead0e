package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/PaulBabatuyi/urbanease/internal/database"
	"github.com/PaulBabatuyi/urbanease/internal/session"
	"github.com/PaulBabatuyi/urbanease/internal/storage"
	"github.com/PaulBabatuyi/urbanease/internal/upload"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

type PortfolioConfig struct {
	// MaxConcurrentBatches bounds how many upload batches talk to object
	// storage at once; extra batches wait.
	MaxConcurrentBatches int64
	// PutConcurrency bounds parallel puts inside one batch.
	PutConcurrency int
	// JobMaxRetries is stored on every thumbnail job.
	JobMaxRetries int
}

type PortfolioService struct {
	store     PortfolioStore
	objects   storage.ObjectStore
	uploadSem *semaphore.Weighted
	cfg       PortfolioConfig
	observer  UploadObserver
	logger    *zap.Logger
}

func NewPortfolioService(store PortfolioStore, objects storage.ObjectStore, cfg PortfolioConfig, observer UploadObserver, logger *zap.Logger) *PortfolioService {
	if cfg.MaxConcurrentBatches <= 0 {
		cfg.MaxConcurrentBatches = 4
	}
	if cfg.PutConcurrency <= 0 {
		cfg.PutConcurrency = 4
	}
	if cfg.JobMaxRetries <= 0 {
		cfg.JobMaxRetries = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PortfolioService{
		store:     store,
		objects:   objects,
		uploadSem: semaphore.NewWeighted(cfg.MaxConcurrentBatches),
		cfg:       cfg,
		observer:  observer,
		logger:    logger.Named("portfolio"),
	}
}

// Upload stores every accepted file and persists their references. The
// batch is all or nothing: if any put or the insert fails, objects already
// written are removed.
func (s *PortfolioService) Upload(ctx context.Context, user session.User, files []upload.File) ([]*database.PortfolioItem, error) {
	ctx, span := tracer.Start(ctx, "PortfolioService.Upload")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", user.ID), attribute.Int("files", len(files)))

	if err := requireUser(user); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	if err := s.uploadSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.uploadSem.Release(1)

	items := make([]*database.PortfolioItem, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.PutConcurrency)
	for i, f := range files {
		g.Go(func() error {
			key := storage.PortfolioKey(user.ID, f.Filename)
			obj, err := s.objects.Put(gctx, key, f.ContentType, f.Data)
			if err != nil {
				return fmt.Errorf("put %s: %w", f.Filename, err)
			}
			items[i] = &database.PortfolioItem{
				UserID:      user.ID,
				Filename:    f.Filename,
				ContentType: f.ContentType,
				Size:        obj.Size,
				StorageKey:  obj.Key,
				URL:         obj.URL,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.discard(ctx, items)
		span.RecordError(err)
		span.SetStatus(codes.Error, "object storage")
		return nil, err
	}

	if err := s.store.SaveItems(ctx, items); err != nil {
		s.discard(ctx, items)
		span.RecordError(err)
		span.SetStatus(codes.Error, "save items")
		return nil, fmt.Errorf("save portfolio items: %w", err)
	}

	for _, it := range items {
		if s.observer != nil {
			s.observer.FileUploaded(it.ContentType, it.Size)
		}
		if _, err := s.store.CreateProcessingJob(ctx, it.ID, s.cfg.JobMaxRetries); err != nil {
			s.logger.Warn("failed to create processing job", zap.String("item_id", it.ID), zap.Error(err))
		}
	}

	s.logger.Info("portfolio upload stored",
		zap.String("user_id", user.ID),
		zap.Int("files", len(items)),
	)
	return items, nil
}

// discard removes objects written by a failed batch.
func (s *PortfolioService) discard(ctx context.Context, items []*database.PortfolioItem) {
	ctx = context.WithoutCancel(ctx)
	for _, it := range items {
		if it == nil {
			continue
		}
		if err := s.objects.Delete(ctx, it.StorageKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("failed to discard stored object", zap.String("key", it.StorageKey), zap.Error(err))
		}
	}
}

// Entry is a portfolio item with its thumbnail state.
type Entry struct {
	*database.PortfolioItem
	Processing database.JobStatus
	Job        *database.ProcessingJob
}

type ListResult struct {
	Entries       []Entry
	NextPageToken string
}

// List returns one page of a user's portfolio, newest first. The page
// token is the decimal offset of the next page.
func (s *PortfolioService) List(ctx context.Context, userID string, pageSize int, pageToken string) (*ListResult, error) {
	ctx, span := tracer.Start(ctx, "PortfolioService.List")
	defer span.End()

	if userID == "" {
		return nil, invalid("userId is required")
	}
	limit := pageSize
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := 0
	if pageToken != "" {
		parsed, err := strconv.Atoi(pageToken)
		if err != nil || parsed < 0 {
			return nil, invalid("bad page token %q", pageToken)
		}
		offset = parsed
	}

	// Fetch one extra row to know whether another page exists.
	records, err := s.store.ListItems(ctx, userID, limit+1, offset)
	if err != nil {
		return nil, fmt.Errorf("list portfolio: %w", err)
	}

	res := &ListResult{}
	for i, rec := range records {
		if i == limit {
			break
		}
		e := Entry{PortfolioItem: rec, Processing: database.JobPending}
		if job, err := s.store.GetJobByItemID(ctx, rec.ID); err == nil {
			e.Processing = job.Status
			e.Job = job
		}
		res.Entries = append(res.Entries, e)
	}
	if len(records) > limit {
		res.NextPageToken = strconv.Itoa(offset + limit)
	}
	return res, nil
}

// Delete removes an item owned by user. A storage failure is logged and
// the reference is still soft-deleted.
func (s *PortfolioService) Delete(ctx context.Context, user session.User, itemID string) error {
	ctx, span := tracer.Start(ctx, "PortfolioService.Delete")
	defer span.End()

	if err := requireUser(user); err != nil {
		return err
	}
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	if item.UserID != user.ID && !user.IsAdmin() {
		return ErrNotOwner
	}

	if err := s.objects.Delete(ctx, item.StorageKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.Warn("failed to delete object from storage", zap.String("key", item.StorageKey), zap.Error(err))
	}

	return s.store.DeleteItem(ctx, item.ID, item.UserID)
}
