package httpapi

import (
	"time"

	"github.com/PaulBabatuyi/urbanease/internal/database"
	"github.com/PaulBabatuyi/urbanease/internal/service"
)

type itemView struct {
	ID          string    `json:"_id"`
	UserID      string    `json:"userId"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	URL         string    `json:"url"`
	UploadedAt  time.Time `json:"uploadedAt"`
	Processing  string    `json:"processing,omitempty"`
	Thumbnails  *thumbs   `json:"thumbnails,omitempty"`
}

type thumbs struct {
	Small  string `json:"small"`
	Medium string `json:"medium"`
	Large  string `json:"large"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// jobView is only shown on the admin listing.
type jobView struct {
	Status     string `json:"status"`
	RetryCount int    `json:"retryCount"`
	MaxRetries int    `json:"maxRetries"`
	Error      string `json:"error,omitempty"`
}

type adminItemView struct {
	itemView
	Job *jobView `json:"job,omitempty"`
}

type messageView struct {
	ID            string    `json:"_id"`
	SenderID      string    `json:"senderId"`
	ReceiverID    string    `json:"receiverId"`
	Body          string    `json:"body"`
	BookingStatus string    `json:"bookingStatus,omitempty"`
	Read          bool      `json:"read"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func newItemView(it *database.PortfolioItem) itemView {
	return itemView{
		ID:          it.ID,
		UserID:      it.UserID,
		Filename:    it.Filename,
		ContentType: it.ContentType,
		Size:        it.Size,
		URL:         it.URL,
		UploadedAt:  it.UploadedAt,
	}
}

func newEntryView(e service.Entry) itemView {
	v := newItemView(e.PortfolioItem)
	v.Processing = string(e.Processing)
	if j := e.Job; j != nil && j.Status == database.JobCompleted {
		v.Thumbnails = &thumbs{
			Small:  j.ThumbnailSmall,
			Medium: j.ThumbnailMedium,
			Large:  j.ThumbnailLarge,
			Width:  j.OriginalWidth,
			Height: j.OriginalHeight,
		}
	}
	return v
}

func newMessageView(m *database.Message) messageView {
	return messageView{
		ID:            m.ID,
		SenderID:      m.SenderID,
		ReceiverID:    m.ReceiverID,
		Body:          m.Body,
		BookingStatus: string(m.BookingStatus),
		Read:          m.Read,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}
