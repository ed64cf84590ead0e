package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

type filesKey struct{}

// NewContext returns a child context carrying an accepted batch.
func NewContext(ctx context.Context, files []File) context.Context {
	return context.WithValue(ctx, filesKey{}, files)
}

// FilesFromContext returns the batch stored by Middleware.
func FilesFromContext(ctx context.Context) []File {
	files, _ := ctx.Value(filesKey{}).([]File)
	return files
}

// ReadMultipart streams the multipart body of r, gating every file part
// named field. Parts are read straight into memory; nothing touches disk.
// The first rejected file fails the whole batch.
func (g *Gatekeeper) ReadMultipart(r *http.Request, field string) ([]File, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("expected multipart form: %v", err)}
	}

	var files []File
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read multipart: %w", err)
		}

		// Non-file fields and files under other names are skipped.
		if part.FormName() != field || part.FileName() == "" {
			part.Close()
			continue
		}

		if g.policy.MaxFiles > 0 && len(files) == g.policy.MaxFiles {
			part.Close()
			return nil, ErrTooManyFiles
		}

		f, err := g.Accept(part.FileName(), part.Header.Get("Content-Type"), part)
		part.Close()
		if err != nil {
			return nil, err
		}
		f.FieldName = field
		files = append(files, f)
	}

	return files, nil
}

// RejectFunc observes a rejected batch; reason is one of the error codes.
type RejectFunc func(reason string, err error)

// Middleware gates the multipart body before next runs and leaves the
// accepted batch in the request context.
func (g *Gatekeeper) Middleware(field string, onReject RejectFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Bound the whole body so a client cannot stream forever.
			if g.policy.MaxFiles > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, int64(g.policy.MaxFiles)*(g.policy.MaxFileBytes+64<<10))
			}

			files, err := g.ReadMultipart(r, field)
			if err != nil {
				status, code := Classify(err)
				if onReject != nil {
					onReject(code, err)
				}
				writeError(w, status, code, err.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), files)))
		})
	}
}

// Classify maps a gatekeeper error to an HTTP status and error code.
func Classify(err error) (int, string) {
	var maxBytes *http.MaxBytesError
	switch {
	case IsSizeLimit(err), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, "SIZE_LIMIT"
	case IsValidation(err):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, ErrTooManyFiles):
		return http.StatusBadRequest, "TOO_MANY_FILES"
	default:
		return http.StatusBadRequest, "BAD_REQUEST"
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}
