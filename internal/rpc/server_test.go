package rpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/PaulBabatuyi/urbanease/internal/database"
	"github.com/PaulBabatuyi/urbanease/internal/observability"
	"github.com/PaulBabatuyi/urbanease/internal/service"
	"github.com/PaulBabatuyi/urbanease/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type harness struct {
	conn   *grpc.ClientConn
	db     *database.MemoryDB
	issuer *session.Issuer
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db := database.NewMemoryDB()
	issuer := session.NewIssuer("test-secret", "urbanease", time.Hour)
	metrics, err := observability.InitMetrics()
	require.NoError(t, err)

	srv, _ := NewServer(Options{
		Messages: service.NewMessageService(db, nil),
		Verifier: issuer,
		Logger:   zaptest.NewLogger(t),
		Metrics:  metrics,
	})

	lis := bufconn.Listen(1 << 20)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &harness{conn: conn, db: db, issuer: issuer}
}

func (h *harness) token(t *testing.T, u session.User) string {
	t.Helper()
	tok, err := h.issuer.Sign(u)
	require.NoError(t, err)
	return tok
}

func TestUnreadCount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, h.db.CreateMessage(ctx, &database.Message{SenderID: "bob", ReceiverID: "alice", Body: "hi"}))
	}

	client := NewNotificationClient(h.conn, h.token(t, session.User{ID: "alice"}))
	n, err := client.UnreadCount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = NewNotificationClient(h.conn, h.token(t, session.User{ID: "root", Role: session.RoleAdmin})).UnreadCount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestUnreadCountErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		token  string
		userID string
		code   codes.Code
	}{
		{name: "no token", userID: "alice", code: codes.Unauthenticated},
		{name: "garbage token", token: "nope", userID: "alice", code: codes.Unauthenticated},
		{name: "other user", token: h.token(t, session.User{ID: "bob"}), userID: "alice", code: codes.PermissionDenied},
		{name: "empty user", token: h.token(t, session.User{ID: "bob"}), userID: "", code: codes.InvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewNotificationClient(h.conn, tt.token).UnreadCount(ctx, tt.userID)
			require.Error(t, err)
			assert.Equal(t, tt.code, status.Code(err))
		})
	}
}

func TestHealthIsPublic(t *testing.T) {
	h := newHarness(t)

	resp, err := healthpb.NewHealthClient(h.conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
