package database

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrNotOwner = errors.New("not owner")
)

// PortfolioItem is the persisted reference to an uploaded portfolio image.
type PortfolioItem struct {
	ID          string
	UserID      string
	Filename    string
	ContentType string
	Size        int64
	StorageKey  string
	URL         string
	UploadedAt  time.Time
	DeletedAt   *time.Time
}

type BookingStatus string

const (
	BookingNone      BookingStatus = ""
	BookingPending   BookingStatus = "pending"
	BookingAccepted  BookingStatus = "accepted"
	BookingRejected  BookingStatus = "rejected"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

// ParseBookingStatus accepts the known statuses, case-insensitively.
func ParseBookingStatus(s string) (BookingStatus, error) {
	switch st := BookingStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case BookingPending, BookingAccepted, BookingRejected, BookingCompleted, BookingCancelled:
		return st, nil
	default:
		return "", fmt.Errorf("unknown booking status %q", s)
	}
}

type Message struct {
	ID            string
	SenderID      string
	ReceiverID    string
	Body          string
	BookingStatus BookingStatus
	Read          bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasParticipant reports whether userID sent or received the message.
func (m *Message) HasParticipant(userID string) bool {
	return userID != "" && (m.SenderID == userID || m.ReceiverID == userID)
}

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// ProcessingJob tracks thumbnail generation for one portfolio item.
type ProcessingJob struct {
	ID              int64
	ItemID          string
	Status          JobStatus
	RetryCount      int
	MaxRetries      int
	ErrorMessage    string
	ThumbnailSmall  string
	ThumbnailMedium string
	ThumbnailLarge  string
	OriginalWidth   int
	OriginalHeight  int
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}

// ThumbnailResult is what a completed job records.
type ThumbnailResult struct {
	Small, Medium, Large string
	Width, Height        int
}
