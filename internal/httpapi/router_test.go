package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/PaulBabatuyi/urbanease/internal/database"
	"github.com/PaulBabatuyi/urbanease/internal/observability"
	"github.com/PaulBabatuyi/urbanease/internal/service"
	"github.com/PaulBabatuyi/urbanease/internal/session"
	"github.com/PaulBabatuyi/urbanease/internal/storage"
	"github.com/PaulBabatuyi/urbanease/internal/upload"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	alice = session.User{ID: "alice", FirstName: "Alice", LastName: "Smith", Username: "asmith"}
	bob   = session.User{ID: "bob", Username: "bob"}
	root  = session.User{ID: "root", Username: "root", Role: session.RoleAdmin}
)

type env struct {
	handler http.Handler
	db      *database.MemoryDB
	metrics *observability.Metrics
	issuer  *session.Issuer
}

func newEnv(t *testing.T) *env {
	t.Helper()

	db := database.NewMemoryDB()
	objects, err := storage.NewFilesystemStore(t.TempDir(), "http://files.test")
	require.NoError(t, err)
	metrics, err := observability.InitMetrics()
	require.NoError(t, err)
	issuer := session.NewIssuer("test-secret", "urbanease", time.Hour)

	h := NewRouter(Config{
		Portfolio:  service.NewPortfolioService(db, objects, service.PortfolioConfig{}, metrics, zap.NewNop()),
		Messages:   service.NewMessageService(db, zap.NewNop()),
		Gatekeeper: upload.NewGatekeeper(upload.DefaultPolicy()),
		Verifier:   issuer,
		Metrics:    metrics,
	})
	return &env{handler: h, db: db, metrics: metrics, issuer: issuer}
}

func (e *env) do(t *testing.T, as *session.User, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if as != nil {
		tok, err := e.issuer.Sign(*as)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *env) doJSON(t *testing.T, as *session.User, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, as, method, target, strings.NewReader(body), "application/json")
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func portfolioBody(t *testing.T, files map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, ct := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="portfolio"; filename="`+name+`"`)
		h.Set("Content-Type", ct)
		w, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = w.Write([]byte("image bytes for " + name))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (e *env) message(t *testing.T, from, to string) *database.Message {
	t.Helper()
	m := &database.Message{SenderID: from, ReceiverID: to, Body: "can you do Friday?", BookingStatus: database.BookingPending}
	require.NoError(t, e.db.CreateMessage(context.Background(), m))
	return m
}

func TestHealthAndRequestID(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, nil, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "fixed-id")
	rec = httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	assert.Equal(t, "fixed-id", rec.Header().Get(RequestIDHeader))
}

func TestAuthRequired(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, nil, http.MethodGet, "/api/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, CodeUnauthenticated, decode[errorBody](t, rec).Error)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer forged")
	rec = httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMe(t *testing.T) {
	e := newEnv(t)

	view := decode[session.NavigationView](t, e.do(t, &alice, http.MethodGet, "/api/me", nil, ""))
	assert.Equal(t, "Alice Smith", view.DisplayName)
	assert.False(t, view.ShowAdminDashboard)
	assert.True(t, view.ShowMessages)

	view = decode[session.NavigationView](t, e.do(t, &root, http.MethodGet, "/api/me", nil, ""))
	assert.True(t, view.ShowAdminDashboard)
}

func TestUploadPortfolio(t *testing.T) {
	e := newEnv(t)

	body, ct := portfolioBody(t, map[string]string{"a.png": "image/png", "b.jpg": "image/jpeg"})
	rec := e.do(t, &alice, http.MethodPost, "/api/portfolio", body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decode[uploadResponse](t, rec)
	assert.True(t, resp.Success)
	require.Len(t, resp.Items, 2)
	for _, it := range resp.Items {
		assert.Equal(t, "alice", it.UserID)
		assert.True(t, strings.HasPrefix(it.URL, "http://files.test/portfolio/alice/"), it.URL)
	}

	list := decode[listResponse[itemView]](t, e.do(t, &bob, http.MethodGet, "/api/portfolio?userId=alice", nil, ""))
	assert.Len(t, list.Items, 2)
	for _, it := range list.Items {
		assert.Equal(t, string(database.JobPending), it.Processing)
	}
}

func TestUploadContentTypeLabelIsNormalized(t *testing.T) {
	e := newEnv(t)

	body, ct := portfolioBody(t, map[string]string{
		"a.png": "image/png; x=1",
		"b.png": "IMAGE/PNG; x=2",
		"c.png": "image/png",
	})
	rec := e.do(t, &alice, http.MethodPost, "/api/portfolio", body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	for _, it := range decode[uploadResponse](t, rec).Items {
		assert.Equal(t, "image/png", it.ContentType)
	}

	n, err := testutil.GatherAndCount(e.metrics.Registry(), "urbanease_upload_files_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUploadPortfolioRejected(t *testing.T) {
	e := newEnv(t)

	body, ct := portfolioBody(t, map[string]string{"a.png": "image/png", "notes.txt": "text/plain"})
	rec := e.do(t, &alice, http.MethodPost, "/api/portfolio", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode[errorBody](t, rec).Error)

	n, err := testutil.GatherAndCount(e.metrics.Registry(), "urbanease_upload_rejections_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Nothing from the failed batch was persisted.
	list := decode[listResponse[itemView]](t, e.do(t, &alice, http.MethodGet, "/api/portfolio", nil, ""))
	assert.Empty(t, list.Items)
}

func TestUploadPortfolioEmpty(t *testing.T) {
	e := newEnv(t)

	body, ct := portfolioBody(t, nil)
	rec := e.do(t, &alice, http.MethodPost, "/api/portfolio", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeValidation, decode[errorBody](t, rec).Error)
}

func TestDeletePortfolio(t *testing.T) {
	e := newEnv(t)

	body, ct := portfolioBody(t, map[string]string{"a.png": "image/png"})
	items := decode[uploadResponse](t, e.do(t, &alice, http.MethodPost, "/api/portfolio", body, ct)).Items
	require.Len(t, items, 1)
	target := "/api/portfolio/" + items[0].ID

	assert.Equal(t, http.StatusForbidden, e.do(t, &bob, http.MethodDelete, target, nil, "").Code)
	assert.Equal(t, http.StatusNoContent, e.do(t, &alice, http.MethodDelete, target, nil, "").Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, &alice, http.MethodDelete, target, nil, "").Code)
}

func TestUnreadCount(t *testing.T) {
	e := newEnv(t)
	e.message(t, "bob", "alice")
	e.message(t, "bob", "alice")

	rec := e.do(t, &alice, http.MethodGet, "/api/messages/unread-count?userId=alice", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]int{"unreadCount": 2}, decode[map[string]int](t, rec))

	assert.Equal(t, http.StatusForbidden, e.do(t, &bob, http.MethodGet, "/api/messages/unread-count?userId=alice", nil, "").Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, &alice, http.MethodGet, "/api/messages/unread-count", nil, "").Code)
}

func TestSendAndMarkRead(t *testing.T) {
	e := newEnv(t)

	rec := e.doJSON(t, &bob, http.MethodPost, "/api/messages", `{"receiverId":"alice","body":"hello","booking":true}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	msg := decode[messageView](t, rec)
	assert.Equal(t, "pending", msg.BookingStatus)

	assert.Equal(t, http.StatusNotFound, e.do(t, &bob, http.MethodPatch, "/api/messages/"+msg.ID+"/read", nil, "").Code)
	assert.Equal(t, http.StatusNoContent, e.do(t, &alice, http.MethodPatch, "/api/messages/"+msg.ID+"/read", nil, "").Code)

	n, err := e.db.CountUnread(context.Background(), "alice")
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Equal(t, http.StatusBadRequest, e.doJSON(t, &bob, http.MethodPost, "/api/messages", `{"receiverId":"alice"`).Code)
}

func TestUpdateBookingStatus(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.db.CreateMessage(context.Background(), &database.Message{
		ID: "msg123", SenderID: "bob", ReceiverID: "alice", Body: "booking", BookingStatus: database.BookingPending,
	}))

	rec := e.doJSON(t, &alice, http.MethodPatch, "/api/messages/msg123/booking-status", `{"status":"accepted"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[bookingStatusResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, "msg123", resp.Data.ID)
	assert.Equal(t, "accepted", resp.Data.BookingStatus)

	tests := []struct {
		name string
		as   session.User
		path string
		body string
		code int
	}{
		{"unknown status", alice, "/api/messages/msg123/booking-status", `{"status":"maybe"}`, http.StatusBadRequest},
		{"missing message", alice, "/api/messages/nope/booking-status", `{"status":"accepted"}`, http.StatusNotFound},
		{"not a participant", session.User{ID: "carol"}, "/api/messages/msg123/booking-status", `{"status":"rejected"}`, http.StatusForbidden},
		{"admin may", root, "/api/messages/msg123/booking-status", `{"status":"completed"}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, e.doJSON(t, &tt.as, http.MethodPatch, tt.path, tt.body).Code)
		})
	}
}

func TestAdminUploads(t *testing.T) {
	e := newEnv(t)

	body, ct := portfolioBody(t, map[string]string{"a.png": "image/png"})
	require.Equal(t, http.StatusCreated, e.do(t, &alice, http.MethodPost, "/api/portfolio", body, ct).Code)

	assert.Equal(t, http.StatusForbidden, e.do(t, &alice, http.MethodGet, "/api/admin/uploads?userId=alice", nil, "").Code)

	rec := e.do(t, &root, http.MethodGet, "/api/admin/uploads?userId=alice", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[listResponse[adminItemView]](t, rec)
	require.Len(t, list.Items, 1)
	require.NotNil(t, list.Items[0].Job)
	assert.Equal(t, "pending", list.Items[0].Job.Status)
}

func TestHTTPMetricsUseRouteTemplate(t *testing.T) {
	e := newEnv(t)
	e.message(t, "bob", "alice")
	e.doJSON(t, &alice, http.MethodPatch, "/api/messages/abc/read", "")

	n, err := testutil.GatherAndCount(e.metrics.Registry(), "urbanease_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
