package upload

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// File is one accepted upload, held entirely in memory.
type File struct {
	FieldName   string
	Filename    string
	ContentType string
	Data        []byte
}

// Size returns the number of buffered bytes.
func (f File) Size() int64 { return int64(len(f.Data)) }

// Reader returns a fresh reader over the buffered bytes.
func (f File) Reader() io.Reader { return bytes.NewReader(f.Data) }

// Gatekeeper validates candidate files against a Policy.
type Gatekeeper struct {
	policy     Policy
	extensions map[string]struct{}
	mimeTypes  map[string]struct{}
}

func NewGatekeeper(policy Policy) *Gatekeeper {
	if policy.MaxFileBytes <= 0 {
		policy.MaxFileBytes = MaxFileBytes
	}
	return &Gatekeeper{
		policy:     policy,
		extensions: policy.extensionSet(),
		mimeTypes:  policy.mimeSet(),
	}
}

// Policy returns the policy the gatekeeper enforces.
func (g *Gatekeeper) Policy() Policy { return g.policy }

// CheckType passes only when both the filename extension and the declared
// media type are on the allow-list.
func (g *Gatekeeper) CheckType(filename, contentType string) error {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	_, extOK := g.extensions[ext]

	mimeOK := false
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		_, mimeOK = g.mimeTypes[strings.ToLower(mediaType)]
	}

	if extOK && mimeOK {
		return nil
	}
	return &ValidationError{
		Filename:    filename,
		ContentType: contentType,
		Message:     fmt.Sprintf("only image files are allowed (%s)", g.policy.allowedList()),
	}
}

// Accept buffers r in memory and validates it. The size ceiling is checked
// before the type so an oversized file always reports *SizeLimitError.
// The returned File carries the lower-cased media type without parameters,
// with image/jpg folded into image/jpeg.
func (g *Gatekeeper) Accept(filename, contentType string, r io.Reader) (File, error) {
	limit := g.policy.MaxFileBytes

	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return File{}, fmt.Errorf("read %s: %w", filename, err)
	}
	if int64(len(data)) > limit {
		return File{}, &SizeLimitError{Filename: filename, Limit: limit, Size: int64(len(data))}
	}

	if err := g.CheckType(filename, contentType); err != nil {
		return File{}, err
	}

	if g.policy.SniffContent {
		if err := sniff(filename, contentType, data); err != nil {
			return File{}, err
		}
	}

	// CheckType has already parsed contentType successfully. Parameters are
	// dropped so only the bare media type reaches storage and metrics.
	mediaType, _, _ := mime.ParseMediaType(contentType)
	return File{Filename: filename, ContentType: normalizeImageType(mediaType), Data: data}, nil
}

// sniff checks the leading bytes against the declared type.
func sniff(filename, declared string, data []byte) error {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	detected := normalizeImageType(http.DetectContentType(head))
	mediaType, _, _ := mime.ParseMediaType(declared)

	if detected != normalizeImageType(mediaType) {
		return &ValidationError{
			Filename:    filename,
			ContentType: declared,
			Message:     fmt.Sprintf("content type mismatch: declared=%s, detected=%s", declared, detected),
		}
	}
	return nil
}

func normalizeImageType(t string) string {
	t = strings.ToLower(t)
	if t == "image/jpg" {
		return "image/jpeg"
	}
	return t
}
