package upload_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/PaulBabatuyi/urbanease/internal/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type part struct {
	field, filename, contentType string
	data                         []byte
}

func multipartRequest(t *testing.T, parts ...part) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("caption", "my work"))
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+p.field+`"; filename="`+p.filename+`"`)
		h.Set("Content-Type", p.contentType)
		w, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = w.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/portfolio", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestReadMultipart(t *testing.T) {
	gk := upload.NewGatekeeper(upload.DefaultPolicy())

	req := multipartRequest(t,
		part{upload.FieldPortfolio, "a.png", "image/png", []byte("aaa")},
		part{"avatar", "ignored.png", "image/png", []byte("zzz")},
		part{upload.FieldPortfolio, "b.webp", "image/webp", []byte("bbbb")},
	)

	files, err := gk.ReadMultipart(req, upload.FieldPortfolio)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a.png", files[0].Filename)
	assert.Equal(t, []byte("aaa"), files[0].Data)
	assert.Equal(t, "b.webp", files[1].Filename)
	assert.Equal(t, upload.FieldPortfolio, files[1].FieldName)
}

func TestReadMultipartNoFiles(t *testing.T) {
	gk := upload.NewGatekeeper(upload.DefaultPolicy())

	files, err := gk.ReadMultipart(multipartRequest(t), upload.FieldPortfolio)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestReadMultipartRejectsWholeBatch(t *testing.T) {
	gk := upload.NewGatekeeper(upload.DefaultPolicy())

	req := multipartRequest(t,
		part{upload.FieldPortfolio, "ok.png", "image/png", []byte("ok")},
		part{upload.FieldPortfolio, "evil.png", "text/html", []byte("<script>")},
	)

	files, err := gk.ReadMultipart(req, upload.FieldPortfolio)
	assert.Nil(t, files)
	assert.True(t, upload.IsValidation(err))
}

func TestReadMultipartTooManyFiles(t *testing.T) {
	policy := upload.DefaultPolicy()
	policy.MaxFiles = 1
	gk := upload.NewGatekeeper(policy)

	req := multipartRequest(t,
		part{upload.FieldPortfolio, "a.png", "image/png", []byte("a")},
		part{upload.FieldPortfolio, "b.png", "image/png", []byte("b")},
	)

	_, err := gk.ReadMultipart(req, upload.FieldPortfolio)
	assert.ErrorIs(t, err, upload.ErrTooManyFiles)
}

func TestMiddleware(t *testing.T) {
	policy := upload.DefaultPolicy()
	policy.MaxFileBytes = 8
	gk := upload.NewGatekeeper(policy)

	var got []upload.File
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = upload.FilesFromContext(r.Context())
		w.WriteHeader(http.StatusCreated)
	})

	var reasons []string
	h := gk.Middleware(upload.FieldPortfolio, func(reason string, err error) {
		reasons = append(reasons, reason)
	})(next)

	t.Run("accepted", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, multipartRequest(t, part{upload.FieldPortfolio, "a.gif", "image/gif", []byte("GIF89a")}))
		assert.Equal(t, http.StatusCreated, rec.Code)
		require.Len(t, got, 1)
		assert.Equal(t, []byte("GIF89a"), got[0].Data)
	})

	t.Run("wrong type", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, multipartRequest(t, part{upload.FieldPortfolio, "a.txt", "text/plain", []byte("hi")}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "VALIDATION_ERROR", body["error"])
		assert.Contains(t, body["message"], "jpeg, jpg, png, gif, webp")
	})

	t.Run("too large", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, multipartRequest(t, part{upload.FieldPortfolio, "a.png", "image/png", []byte("0123456789")}))
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("not multipart", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/portfolio", bytes.NewBufferString("{}"))
		req.Header.Set("Content-Type", "application/json")
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	assert.Equal(t, []string{"VALIDATION_ERROR", "SIZE_LIMIT", "VALIDATION_ERROR"}, reasons)
}
