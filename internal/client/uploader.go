package client

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"sync"
)

type State int

const (
	Idle State = iota
	Staged
	Uploading
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Staged:
		return "staged"
	case Uploading:
		return "uploading"
	default:
		return "unknown"
	}
}

var (
	ErrUploadInFlight = errors.New("upload already in flight")
	ErrNothingStaged  = errors.New("no files staged")
)

// Preview is a local thumbnail reference for a staged file. URL is a data
// URL built from the file's own bytes.
type Preview struct {
	Name string
	URL  string
}

func newPreview(f StagedFile) Preview {
	ct := f.ContentType
	if ct == "" {
		ct = http.DetectContentType(f.Data)
	}
	return Preview{Name: f.Name, URL: "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(f.Data)}
}

// PortfolioSubmitter is the upload call the uploader drives; *Client
// implements it.
type PortfolioSubmitter interface {
	UploadPortfolio(ctx context.Context, files []StagedFile) (*PortfolioUploadResponse, error)
}

// PortfolioUploader stages a selection of files, renders previews and
// submits the whole selection as one batch.
type PortfolioUploader struct {
	api       PortfolioSubmitter
	onSuccess func(*PortfolioUploadResponse)

	mu       sync.Mutex
	state    State
	staged   []StagedFile
	previews []Preview
}

// NewPortfolioUploader returns an idle uploader. onSuccess may be nil.
func NewPortfolioUploader(api PortfolioSubmitter, onSuccess func(*PortfolioUploadResponse)) *PortfolioUploader {
	return &PortfolioUploader{api: api, onSuccess: onSuccess}
}

// Select replaces the staged set with files. An empty selection changes
// nothing.
func (u *PortfolioUploader) Select(files ...StagedFile) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.state == Uploading {
		return ErrUploadInFlight
	}
	if len(files) == 0 {
		return nil
	}

	u.release()
	u.staged = make([]StagedFile, len(files))
	u.previews = make([]Preview, len(files))
	for i, f := range files {
		f.Data = append([]byte(nil), f.Data...)
		u.staged[i] = f
		u.previews[i] = newPreview(f)
	}
	u.state = Staged
	return nil
}

// release drops the current previews and staged set. Callers hold mu.
func (u *PortfolioUploader) release() {
	u.previews = nil
	u.staged = nil
}

func (u *PortfolioUploader) State() State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

func (u *PortfolioUploader) Staged() []StagedFile {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]StagedFile(nil), u.staged...)
}

func (u *PortfolioUploader) Previews() []Preview {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]Preview(nil), u.previews...)
}

// Submit sends the staged set. On failure the set stays staged and the
// error is returned unchanged.
func (u *PortfolioUploader) Submit(ctx context.Context) (*PortfolioUploadResponse, error) {
	u.mu.Lock()
	switch u.state {
	case Uploading:
		u.mu.Unlock()
		return nil, ErrUploadInFlight
	case Idle:
		u.mu.Unlock()
		return nil, ErrNothingStaged
	}
	files := append([]StagedFile(nil), u.staged...)
	u.state = Uploading
	u.mu.Unlock()

	resp, err := u.api.UploadPortfolio(ctx, files)

	u.mu.Lock()
	if err != nil {
		u.state = Staged
		u.mu.Unlock()
		return nil, err
	}
	u.release()
	u.state = Idle
	u.mu.Unlock()

	if u.onSuccess != nil {
		u.onSuccess(resp)
	}
	return resp, nil
}

// Clear drops the staged set and returns to Idle. It is ignored while an
// upload is in flight.
func (u *PortfolioUploader) Clear() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state == Uploading {
		return
	}
	u.release()
	u.state = Idle
}
