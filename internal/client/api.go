// Package client is the consumer side of the UrbanEase API: a typed HTTP
// client, the portfolio upload state machine and the unread-count poller.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Code       string `json:"error"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api: status %d: %s: %s", e.StatusCode, e.Code, e.Message)
}

type Message struct {
	ID            string    `json:"_id"`
	SenderID      string    `json:"senderId"`
	ReceiverID    string    `json:"receiverId"`
	Body          string    `json:"body"`
	BookingStatus string    `json:"bookingStatus,omitempty"`
	Read          bool      `json:"read"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type BookingStatusResponse struct {
	Success bool    `json:"success"`
	Message string  `json:"message"`
	Data    Message `json:"data"`
}

type PortfolioItem struct {
	ID          string    `json:"_id"`
	UserID      string    `json:"userId"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	URL         string    `json:"url"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

type PortfolioUploadResponse struct {
	Success bool            `json:"success"`
	Items   []PortfolioItem `json:"items"`
}

type NavigationView struct {
	UserID             string `json:"userId"`
	DisplayName        string `json:"displayName"`
	Role               string `json:"role,omitempty"`
	ShowAdminDashboard bool   `json:"showAdminDashboard"`
	ShowMessages       bool   `json:"showMessages"`
}

// StagedFile is a file picked locally and held in memory until submitted.
type StagedFile struct {
	Name        string
	ContentType string
	Data        []byte
}

type Client struct {
	baseURL string
	http    *http.Client
	token   string
	logger  *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithToken sends token as a bearer credential on every request.
func WithToken(token string) Option { return func(c *Client) { c.token = token } }

func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.logger = l } }

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("api call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(apiErr)
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// UpdateBookingStatus issues a single PATCH and hands back whatever the
// server answered. Failures are returned as-is; there is no retry.
func (c *Client) UpdateBookingStatus(ctx context.Context, messageID, status string) (*BookingStatusResponse, error) {
	body, err := json.Marshal(map[string]string{"status": status})
	if err != nil {
		return nil, err
	}
	var out BookingStatusResponse
	path := "/api/messages/" + url.PathEscape(messageID) + "/booking-status"
	if err := c.do(ctx, http.MethodPatch, path, bytes.NewReader(body), "application/json", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UnreadCount(ctx context.Context, userID string) (int, error) {
	var out struct {
		UnreadCount int `json:"unreadCount"`
	}
	path := "/api/messages/unread-count?" + url.Values{"userId": {userID}}.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, "", &out); err != nil {
		return 0, err
	}
	return out.UnreadCount, nil
}

// UploadPortfolio sends every file in one multipart request under the
// "portfolio" form field.
func (c *Client) UploadPortfolio(ctx context.Context, files []StagedFile) (*PortfolioUploadResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="portfolio"; filename=%q`, f.Name))
		h.Set("Content-Type", f.ContentType)
		w, err := mw.CreatePart(h)
		if err != nil {
			return nil, fmt.Errorf("create part %s: %w", f.Name, err)
		}
		if _, err := w.Write(f.Data); err != nil {
			return nil, fmt.Errorf("write part %s: %w", f.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var out PortfolioUploadResponse
	if err := c.do(ctx, http.MethodPost, "/api/portfolio", &buf, mw.FormDataContentType(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Me(ctx context.Context) (*NavigationView, error) {
	var out NavigationView
	if err := c.do(ctx, http.MethodGet, "/api/me", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}
