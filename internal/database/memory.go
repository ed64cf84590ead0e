package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryDB implements the same operations as PostgresDB in process memory.
// It backs local development when no database URL is configured.
type MemoryDB struct {
	mu       sync.Mutex
	items    map[string]*PortfolioItem
	messages map[string]*Message
	jobs     []*ProcessingJob
	nextJob  int64
	now      func() time.Time
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		items:    make(map[string]*PortfolioItem),
		messages: make(map[string]*Message),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryDB) Close() error { return nil }

func (m *MemoryDB) SaveItems(ctx context.Context, items []*PortfolioItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, it := range items {
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		if it.UploadedAt.IsZero() {
			it.UploadedAt = now
		}
		cp := *it
		m.items[it.ID] = &cp
	}
	return nil
}

func (m *MemoryDB) GetItem(ctx context.Context, itemID string) (*PortfolioItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[itemID]
	if !ok || it.DeletedAt != nil {
		return nil, ErrNotFound
	}
	cp := *it
	return &cp, nil
}

func (m *MemoryDB) ListItems(ctx context.Context, userID string, limit, offset int) ([]*PortfolioItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*PortfolioItem
	for _, it := range m.items {
		if it.UserID == userID && it.DeletedAt == nil {
			cp := *it
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].UploadedAt.After(out[j].UploadedAt)
		}
		return out[i].ID < out[j].ID
	})

	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryDB) DeleteItem(ctx context.Context, itemID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[itemID]
	if !ok || it.DeletedAt != nil || it.UserID != userID {
		return ErrNotFound
	}
	now := m.now()
	it.DeletedAt = &now
	return nil
}

func (m *MemoryDB) CreateMessage(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := m.now()
	msg.CreatedAt, msg.UpdatedAt = now, now
	cp := *msg
	m.messages[msg.ID] = &cp
	return nil
}

func (m *MemoryDB) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.messages[messageID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *msg
	return &cp, nil
}

func (m *MemoryDB) CountUnread(ctx context.Context, userID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, msg := range m.messages {
		if msg.ReceiverID == userID && !msg.Read {
			n++
		}
	}
	return n, nil
}

func (m *MemoryDB) MarkRead(ctx context.Context, messageID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.messages[messageID]
	if !ok || msg.ReceiverID != userID {
		return ErrNotFound
	}
	msg.Read = true
	msg.UpdatedAt = m.now()
	return nil
}

func (m *MemoryDB) UpdateBookingStatus(ctx context.Context, messageID string, status BookingStatus) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.messages[messageID]
	if !ok {
		return nil, ErrNotFound
	}
	msg.BookingStatus = status
	msg.UpdatedAt = m.now()
	cp := *msg
	return &cp, nil
}

func (m *MemoryDB) CreateProcessingJob(ctx context.Context, itemID string, maxRetries int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[itemID]; !ok {
		return 0, ErrNotFound
	}
	m.nextJob++
	now := m.now()
	m.jobs = append(m.jobs, &ProcessingJob{
		ID:         m.nextJob,
		ItemID:     itemID,
		Status:     JobPending,
		MaxRetries: maxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	return m.nextJob, nil
}

func (m *MemoryDB) job(jobID int64) *ProcessingJob {
	for _, j := range m.jobs {
		if j.ID == jobID {
			return j
		}
	}
	return nil
}

func (m *MemoryDB) GetNextPendingJob(ctx context.Context) (*ProcessingJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, j := range m.jobs {
		if j.Status == JobPending {
			j.Status = JobProcessing
			j.UpdatedAt = m.now()
			cp := *j
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemoryDB) UpdateJobStatus(ctx context.Context, jobID int64, status JobStatus, errorMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j := m.job(jobID)
	if j == nil {
		return ErrNotFound
	}
	j.Status = status
	j.ErrorMessage = errorMsg
	j.UpdatedAt = m.now()
	return nil
}

func (m *MemoryDB) FailJob(ctx context.Context, jobID int64, errorMsg string) (JobStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j := m.job(jobID)
	if j == nil {
		return "", ErrNotFound
	}
	j.RetryCount++
	j.ErrorMessage = errorMsg
	j.UpdatedAt = m.now()
	if j.RetryCount >= j.MaxRetries {
		j.Status = JobFailed
	} else {
		j.Status = JobPending
	}
	return j.Status, nil
}

func (m *MemoryDB) CompleteJob(ctx context.Context, jobID int64, res ThumbnailResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j := m.job(jobID)
	if j == nil {
		return ErrNotFound
	}
	now := m.now()
	j.Status = JobCompleted
	j.ErrorMessage = ""
	j.ThumbnailSmall, j.ThumbnailMedium, j.ThumbnailLarge = res.Small, res.Medium, res.Large
	j.OriginalWidth, j.OriginalHeight = res.Width, res.Height
	j.UpdatedAt = now
	j.CompletedAt = &now
	return nil
}

func (m *MemoryDB) GetJobByItemID(ctx context.Context, itemID string) (*ProcessingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(m.jobs) - 1; i >= 0; i-- {
		if m.jobs[i].ItemID == itemID {
			cp := *m.jobs[i]
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}
