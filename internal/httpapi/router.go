// Package httpapi is the REST surface: portfolio uploads, messaging and the
// navigation view, routed with gorilla/mux.
package httpapi

import (
	"context"
	"net/http"

	"github.com/PaulBabatuyi/urbanease/internal/database"
	"github.com/PaulBabatuyi/urbanease/internal/service"
	"github.com/PaulBabatuyi/urbanease/internal/session"
	"github.com/PaulBabatuyi/urbanease/internal/upload"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Portfolio is the portfolio use case the handlers call.
type Portfolio interface {
	Upload(ctx context.Context, user session.User, files []upload.File) ([]*database.PortfolioItem, error)
	List(ctx context.Context, userID string, pageSize int, pageToken string) (*service.ListResult, error)
	Delete(ctx context.Context, user session.User, itemID string) error
}

// Messages is the messaging use case the handlers call.
type Messages interface {
	UnreadCount(ctx context.Context, viewer session.User, userID string) (int, error)
	Send(ctx context.Context, from session.User, to, body string, booking bool) (*database.Message, error)
	MarkRead(ctx context.Context, user session.User, messageID string) error
	UpdateBookingStatus(ctx context.Context, user session.User, messageID, status string) (*database.Message, error)
}

// RejectObserver counts batches the gatekeeper turned away.
type RejectObserver interface {
	UploadRejected(reason string)
}

type Config struct {
	Portfolio  Portfolio
	Messages   Messages
	Gatekeeper *upload.Gatekeeper
	Verifier   TokenVerifier
	Logger     *zap.Logger

	// Optional.
	Metrics interface {
		HTTPObserver
		RejectObserver
	}
	// Files serves filesystem-backed objects under /files/.
	Files http.FileSystem
}

type api struct {
	portfolio Portfolio
	messages  Messages
	logger    *zap.Logger
}

func NewRouter(cfg Config) *mux.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("http")
	a := &api{portfolio: cfg.Portfolio, messages: cfg.Messages, logger: logger}

	var (
		obs      HTTPObserver
		onReject upload.RejectFunc
	)
	if cfg.Metrics != nil {
		obs = cfg.Metrics
		onReject = func(reason string, err error) {
			cfg.Metrics.UploadRejected(reason)
			logger.Warn("upload rejected", zap.String("reason", reason), zap.Error(err))
		}
	}

	r := mux.NewRouter()
	r.Use(requestID, recovery(logger), accessLog(logger, obs))

	r.HandleFunc("/health", a.health).Methods(http.MethodGet)
	if cfg.Files != nil {
		r.PathPrefix("/files/").Handler(http.StripPrefix("/files/", http.FileServer(cfg.Files))).Methods(http.MethodGet)
	}

	authed := r.PathPrefix("/api").Subrouter()
	authed.Use(authenticate(cfg.Verifier))

	authed.HandleFunc("/me", a.me).Methods(http.MethodGet)

	authed.Handle("/portfolio", cfg.Gatekeeper.Middleware(upload.FieldPortfolio, onReject)(http.HandlerFunc(a.uploadPortfolio))).
		Methods(http.MethodPost)
	authed.HandleFunc("/portfolio", a.listPortfolio).Methods(http.MethodGet)
	authed.HandleFunc("/portfolio/{itemId}", a.deletePortfolio).Methods(http.MethodDelete)

	authed.HandleFunc("/messages", a.sendMessage).Methods(http.MethodPost)
	authed.HandleFunc("/messages/unread-count", a.unreadCount).Methods(http.MethodGet)
	authed.HandleFunc("/messages/{messageId}/booking-status", a.updateBookingStatus).Methods(http.MethodPatch)
	authed.HandleFunc("/messages/{messageId}/read", a.markRead).Methods(http.MethodPatch)

	admin := authed.PathPrefix("/admin").Subrouter()
	admin.Use(requireAdmin)
	admin.HandleFunc("/uploads", a.adminUploads).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, CodeNotFound, "no such route")
	})
	return r
}
