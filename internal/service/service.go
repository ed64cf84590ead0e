// Package service holds the portfolio and messaging use cases. Transports
// (REST and gRPC) call into it; it owns no wire formats.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/PaulBabatuyi/urbanease/internal/database"
	"github.com/PaulBabatuyi/urbanease/internal/session"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/PaulBabatuyi/urbanease/internal/service")

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrNoFiles         = fmt.Errorf("%w: no files submitted", ErrInvalidArgument)

	// Re-exported so transports only import this package.
	ErrNotFound = database.ErrNotFound
	ErrNotOwner = database.ErrNotOwner
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func requireUser(u session.User) error {
	if u.ID == "" {
		return ErrUnauthenticated
	}
	return nil
}

// PortfolioStore is the persistence the portfolio service needs.
type PortfolioStore interface {
	SaveItems(ctx context.Context, items []*database.PortfolioItem) error
	GetItem(ctx context.Context, itemID string) (*database.PortfolioItem, error)
	ListItems(ctx context.Context, userID string, limit, offset int) ([]*database.PortfolioItem, error)
	DeleteItem(ctx context.Context, itemID, userID string) error
	CreateProcessingJob(ctx context.Context, itemID string, maxRetries int) (int64, error)
	GetJobByItemID(ctx context.Context, itemID string) (*database.ProcessingJob, error)
}

// MessageStore is the persistence the message service needs.
type MessageStore interface {
	CreateMessage(ctx context.Context, m *database.Message) error
	GetMessage(ctx context.Context, messageID string) (*database.Message, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, messageID, userID string) error
	UpdateBookingStatus(ctx context.Context, messageID string, status database.BookingStatus) (*database.Message, error)
}

// UploadObserver receives one call per file handed to object storage.
type UploadObserver interface {
	FileUploaded(contentType string, size int64)
}
