package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/PaulBabatuyi/urbanease/internal/service"
	"github.com/PaulBabatuyi/urbanease/internal/session"
	"github.com/PaulBabatuyi/urbanease/internal/upload"
	"github.com/gorilla/mux"
)

const maxJSONBody = 1 << 20

func currentUser(r *http.Request) session.User {
	u, _ := session.FromContext(r.Context())
	return u
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed JSON body: %v", service.ErrInvalidArgument, err)
	}
	return nil
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currentUser(r).Navigation())
}

type uploadResponse struct {
	Success bool       `json:"success"`
	Items   []itemView `json:"items"`
}

func (a *api) uploadPortfolio(w http.ResponseWriter, r *http.Request) {
	items, err := a.portfolio.Upload(r.Context(), currentUser(r), upload.FilesFromContext(r.Context()))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	resp := uploadResponse{Success: true, Items: make([]itemView, 0, len(items))}
	for _, it := range items {
		resp.Items = append(resp.Items, newItemView(it))
	}
	writeJSON(w, http.StatusCreated, resp)
}

type listResponse[T any] struct {
	Items         []T    `json:"items"`
	NextPageToken string `json:"nextPageToken,omitempty"`
}

func (a *api) list(r *http.Request, userID string) (*service.ListResult, error) {
	q := r.URL.Query()
	pageSize := 0
	if s := q.Get("pageSize"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("%w: pageSize must be a number", service.ErrInvalidArgument)
		}
		pageSize = n
	}
	return a.portfolio.List(r.Context(), userID, pageSize, q.Get("pageToken"))
}

// listPortfolio shows any user's portfolio; it defaults to the caller's.
func (a *api) listPortfolio(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		userID = currentUser(r).ID
	}
	res, err := a.list(r, userID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	resp := listResponse[itemView]{Items: make([]itemView, 0, len(res.Entries)), NextPageToken: res.NextPageToken}
	for _, e := range res.Entries {
		resp.Items = append(resp.Items, newEntryView(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) adminUploads(w http.ResponseWriter, r *http.Request) {
	res, err := a.list(r, r.URL.Query().Get("userId"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	resp := listResponse[adminItemView]{Items: make([]adminItemView, 0, len(res.Entries)), NextPageToken: res.NextPageToken}
	for _, e := range res.Entries {
		v := adminItemView{itemView: newEntryView(e)}
		if j := e.Job; j != nil {
			v.Job = &jobView{Status: string(j.Status), RetryCount: j.RetryCount, MaxRetries: j.MaxRetries, Error: j.ErrorMessage}
		}
		resp.Items = append(resp.Items, v)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) deletePortfolio(w http.ResponseWriter, r *http.Request) {
	if err := a.portfolio.Delete(r.Context(), currentUser(r), mux.Vars(r)["itemId"]); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) unreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := a.messages.UnreadCount(r.Context(), currentUser(r), r.URL.Query().Get("userId"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unreadCount": n})
}

type sendRequest struct {
	ReceiverID string `json:"receiverId"`
	Body       string `json:"body"`
	Booking    bool   `json:"booking"`
}

func (a *api) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	msg, err := a.messages.Send(r.Context(), currentUser(r), req.ReceiverID, req.Body, req.Booking)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newMessageView(msg))
}

type bookingStatusRequest struct {
	Status string `json:"status"`
}

type bookingStatusResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    messageView `json:"data"`
}

func (a *api) updateBookingStatus(w http.ResponseWriter, r *http.Request) {
	var req bookingStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	msg, err := a.messages.UpdateBookingStatus(r.Context(), currentUser(r), mux.Vars(r)["messageId"], req.Status)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bookingStatusResponse{
		Success: true,
		Message: "booking status updated",
		Data:    newMessageView(msg),
	})
}

func (a *api) markRead(w http.ResponseWriter, r *http.Request) {
	if err := a.messages.MarkRead(r.Context(), currentUser(r), mux.Vars(r)["messageId"]); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
