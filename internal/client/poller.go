package client

import (
	"context"
	"strconv"
	"sync"

	"go.uber.org/zap"
)

// CountSource answers unread-count queries. Both *Client and
// rpc.NotificationClient satisfy it.
type CountSource interface {
	UnreadCount(ctx context.Context, userID string) (int, error)
}

// UnreadPoller keeps the unread badge for the current user. A query fires
// once per identity change; answers for a superseded identity are dropped.
type UnreadPoller struct {
	source CountSource
	logger *zap.Logger

	mu     sync.Mutex
	userID string
	gen    uint64
	count  int
	err    error
	cancel context.CancelFunc
	closed bool

	wg sync.WaitGroup
}

func NewUnreadPoller(source CountSource, logger *zap.Logger) *UnreadPoller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UnreadPoller{source: source, logger: logger.Named("unread")}
}

// SetUser switches the identity the badge belongs to. An empty ID or the
// current ID does nothing.
func (p *UnreadPoller) SetUser(ctx context.Context, userID string) {
	if userID == "" {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || userID == p.userID {
		return
	}
	p.userID = userID
	p.err = nil

	if p.cancel != nil {
		p.cancel()
	}
	p.gen++
	qctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.query(qctx, cancel, p.gen, userID)
}

func (p *UnreadPoller) query(ctx context.Context, cancel context.CancelFunc, gen uint64, userID string) {
	defer p.wg.Done()
	defer cancel()

	n, err := p.source.UnreadCount(ctx, userID)

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen {
		p.logger.Debug("dropping stale unread count", zap.String("user_id", userID))
		return
	}
	p.err = err
	if err != nil {
		p.logger.Warn("failed to fetch unread count", zap.String("user_id", userID), zap.Error(err))
		return
	}
	p.count = n
}

// Err reports why the latest query for the current user failed, or nil if
// it succeeded or has not finished.
func (p *UnreadPoller) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *UnreadPoller) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// Badge is the text shown on the messages icon; empty means no badge.
func (p *UnreadPoller) Badge() string {
	n := p.Count()
	if n <= 0 {
		return ""
	}
	return strconv.Itoa(n)
}

// Wait blocks until every query started so far has finished.
func (p *UnreadPoller) Wait() { p.wg.Wait() }

// Close cancels the in-flight query and waits for it. SetUser is a no-op
// afterwards.
func (p *UnreadPoller) Close() {
	p.mu.Lock()
	p.closed = true
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()
	p.wg.Wait()
}
