package service_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/PaulBabatuyi/urbanease/internal/database"
	"github.com/PaulBabatuyi/urbanease/internal/service"
	"github.com/PaulBabatuyi/urbanease/internal/session"
	"github.com/PaulBabatuyi/urbanease/internal/storage"
	"github.com/PaulBabatuyi/urbanease/internal/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	provider = session.User{ID: "provider-1", Username: "pat", Role: "provider"}
	customer = session.User{ID: "customer-1", Username: "cass", Role: "customer"}
	admin    = session.User{ID: "admin-1", Username: "root", Role: "admin"}
)

// flakyStore wraps an object store and fails the put of one filename.
type flakyStore struct {
	storage.ObjectStore
	failOn string

	mu      sync.Mutex
	deleted []string
}

func (f *flakyStore) Put(ctx context.Context, key, contentType string, data []byte) (storage.Object, error) {
	if contentType == f.failOn {
		return storage.Object{}, errors.New("remote storage unavailable")
	}
	return f.ObjectStore.Put(ctx, key, contentType, data)
}

func (f *flakyStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	f.deleted = append(f.deleted, key)
	f.mu.Unlock()
	return f.ObjectStore.Delete(ctx, key)
}

type countingObserver struct {
	mu    sync.Mutex
	files int
	bytes int64
}

func (c *countingObserver) FileUploaded(_ string, size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files++
	c.bytes += size
}

func newPortfolio(t *testing.T) (*service.PortfolioService, *database.MemoryDB, storage.ObjectStore, *countingObserver) {
	t.Helper()
	objects, err := storage.NewFilesystemStore(t.TempDir(), "http://cdn.test")
	require.NoError(t, err)
	db := database.NewMemoryDB()
	obs := &countingObserver{}
	return service.NewPortfolioService(db, objects, service.PortfolioConfig{}, obs, nil), db, objects, obs
}

func files(names ...string) []upload.File {
	out := make([]upload.File, 0, len(names))
	for _, n := range names {
		out = append(out, upload.File{Filename: n, ContentType: "image/png", Data: []byte("data:" + n)})
	}
	return out
}

func TestPortfolioUpload(t *testing.T) {
	svc, db, objects, obs := newPortfolio(t)
	ctx := context.Background()

	items, err := svc.Upload(ctx, provider, files("a.png", "b.png", "c.png"))
	require.NoError(t, err)
	require.Len(t, items, 3)

	for _, it := range items {
		assert.Equal(t, provider.ID, it.UserID)
		assert.Contains(t, it.URL, "http://cdn.test/portfolio/provider-1/")

		rc, err := objects.Open(ctx, it.StorageKey)
		require.NoError(t, err)
		data, _ := io.ReadAll(rc)
		rc.Close()
		assert.Equal(t, "data:"+it.Filename, string(data), "stored byte for byte")

		job, err := db.GetJobByItemID(ctx, it.ID)
		require.NoError(t, err)
		assert.Equal(t, database.JobPending, job.Status)
	}
	assert.Equal(t, 3, obs.files)
}

func TestPortfolioUploadRejectsEmptyBatch(t *testing.T) {
	svc, _, _, _ := newPortfolio(t)

	_, err := svc.Upload(context.Background(), provider, nil)
	assert.ErrorIs(t, err, service.ErrNoFiles)
	assert.ErrorIs(t, err, service.ErrInvalidArgument)

	_, err = svc.Upload(context.Background(), session.User{}, files("a.png"))
	assert.ErrorIs(t, err, service.ErrUnauthenticated)
}

func TestPortfolioUploadAllOrNothing(t *testing.T) {
	base, err := storage.NewFilesystemStore(t.TempDir(), "")
	require.NoError(t, err)
	flaky := &flakyStore{ObjectStore: base, failOn: "image/gif"}
	db := database.NewMemoryDB()
	svc := service.NewPortfolioService(db, flaky, service.PortfolioConfig{PutConcurrency: 1}, nil, nil)

	batch := files("a.png", "b.png")
	batch = append(batch, upload.File{Filename: "c.gif", ContentType: "image/gif", Data: []byte("gif")})

	_, err = svc.Upload(context.Background(), provider, batch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remote storage unavailable")

	list, err := db.ListItems(context.Background(), provider.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, list, "no partial batch persisted")
	assert.Len(t, flaky.deleted, 2, "stored objects are discarded")
}

func TestPortfolioListAndDelete(t *testing.T) {
	svc, _, objects, _ := newPortfolio(t)
	ctx := context.Background()

	items, err := svc.Upload(ctx, provider, files("a.png", "b.png", "c.png"))
	require.NoError(t, err)

	page, err := svc.List(ctx, provider.ID, 2, "")
	require.NoError(t, err)
	assert.Len(t, page.Entries, 2)
	assert.Equal(t, "2", page.NextPageToken)
	assert.Equal(t, database.JobPending, page.Entries[0].Processing)

	rest, err := svc.List(ctx, provider.ID, 2, page.NextPageToken)
	require.NoError(t, err)
	assert.Len(t, rest.Entries, 1)
	assert.Empty(t, rest.NextPageToken)

	_, err = svc.List(ctx, provider.ID, 2, "abc")
	assert.ErrorIs(t, err, service.ErrInvalidArgument)

	assert.ErrorIs(t, svc.Delete(ctx, customer, items[0].ID), service.ErrNotOwner)
	require.NoError(t, svc.Delete(ctx, provider, items[0].ID))
	require.NoError(t, svc.Delete(ctx, admin, items[1].ID))
	assert.ErrorIs(t, svc.Delete(ctx, provider, items[0].ID), service.ErrNotFound)

	_, err = objects.Open(ctx, items[0].StorageKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	all, err := svc.List(ctx, provider.ID, 0, "")
	require.NoError(t, err)
	assert.Len(t, all.Entries, 1)
}

func TestPortfolioUploadHonoursCancellation(t *testing.T) {
	svc, _, _, _ := newPortfolio(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Upload(ctx, provider, files("a.png"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMessages(t *testing.T) {
	db := database.NewMemoryDB()
	svc := service.NewMessageService(db, nil)
	ctx := context.Background()

	n, err := svc.UnreadCount(ctx, provider, provider.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	msg, err := svc.Send(ctx, customer, provider.ID, "Can you fix my sink on Friday?", true)
	require.NoError(t, err)
	assert.Equal(t, database.BookingPending, msg.BookingStatus)

	_, err = svc.Send(ctx, customer, provider.ID, "and the tap", false)
	require.NoError(t, err)

	n, err = svc.UnreadCount(ctx, provider, provider.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, svc.MarkRead(ctx, provider, msg.ID))
	n, err = svc.UnreadCount(ctx, admin, provider.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = svc.UnreadCount(ctx, customer, provider.ID)
	assert.ErrorIs(t, err, service.ErrNotOwner)
	_, err = svc.UnreadCount(ctx, provider, "")
	assert.ErrorIs(t, err, service.ErrInvalidArgument)
	_, err = svc.UnreadCount(ctx, session.User{}, provider.ID)
	assert.ErrorIs(t, err, service.ErrUnauthenticated)

	updated, err := svc.UpdateBookingStatus(ctx, provider, msg.ID, "accepted")
	require.NoError(t, err)
	assert.Equal(t, database.BookingAccepted, updated.BookingStatus)
	assert.Equal(t, msg.ID, updated.ID)

	_, err = svc.UpdateBookingStatus(ctx, provider, msg.ID, "sometime")
	assert.ErrorIs(t, err, service.ErrInvalidArgument)
	_, err = svc.UpdateBookingStatus(ctx, provider, "missing", "accepted")
	assert.ErrorIs(t, err, service.ErrNotFound)

	stranger := session.User{ID: "stranger"}
	_, err = svc.UpdateBookingStatus(ctx, stranger, msg.ID, "rejected")
	assert.ErrorIs(t, err, service.ErrNotOwner)

	_, err = svc.Send(ctx, customer, customer.ID, "me", false)
	assert.ErrorIs(t, err, service.ErrInvalidArgument)
	_, err = svc.Send(ctx, customer, provider.ID, "  ", false)
	assert.ErrorIs(t, err, service.ErrInvalidArgument)
}
