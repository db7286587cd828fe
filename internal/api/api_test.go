package api

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/matheus3301/wpdl/internal/bus"
	"github.com/matheus3301/wpdl/internal/config"
	"github.com/matheus3301/wpdl/internal/manager"
	"github.com/matheus3301/wpdl/internal/model"
	"github.com/matheus3301/wpdl/internal/provider"
	"github.com/matheus3301/wpdl/internal/provider/providertest"
	"github.com/matheus3301/wpdl/internal/session"
	"github.com/matheus3301/wpdl/internal/store"
)

func startServer(t *testing.T) *Client {
	t.Helper()
	// Unix socket paths are length limited; keep the directory short.
	dir, err := os.MkdirTemp("", "wpdl")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	root := t.TempDir()
	reg, err := store.OpenRegistry(filepath.Join(root, "wpdl.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	cfg := config.Default()
	cfg.DownloadDir = filepath.Join(root, "downloads")
	b := bus.New()
	m := manager.New(manager.Options{
		Layout:   session.Layout{Root: root},
		Config:   cfg,
		Registry: reg,
		Bus:      b,
		Factory: func(context.Context, string, string) (provider.Gateway, error) {
			gw := providertest.New()
			gw.Chats = []provider.Chat{{ID: "1@s.whatsapp.net", Title: "Ana"}}
			return gw, nil
		},
	}, nil)
	t.Cleanup(m.Close)

	srv := grpc.NewServer()
	Register(srv, NewSessionService(m), NewScanService(m), NewDownloadService(m), NewEventService(b, nil))
	lis, err := net.Listen("unix", filepath.Join(dir, "api.sock"))
	require.NoError(t, err)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	c, err := Dial(filepath.Join(dir, "api.sock"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func requireCode(t *testing.T, want codes.Code, err error) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, want, grpcstatus.Code(err), err.Error())
}

func TestNoActiveSession(t *testing.T) {
	c := startServer(t)
	ctx := context.Background()

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Nil(t, st.Session)

	_, err = c.StartScan(ctx, ScanRequest{ChatID: "x"})
	requireCode(t, codes.FailedPrecondition, err)
	_, err = c.ListDownloads(ctx)
	requireCode(t, codes.FailedPrecondition, err)
}

func TestSessionLifecycle(t *testing.T) {
	c := startServer(t)
	ctx := context.Background()

	require.NoError(t, c.SelectSession(ctx, "work"))
	st, err := c.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, st.Session)
	assert.Equal(t, "work", st.Session.ID)
	assert.Equal(t, model.AuthLoggedOut, st.Auth)

	list, err := c.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list.Sessions, 1)
	assert.True(t, list.Sessions[0].Active)

	auth, err := c.AuthState(ctx)
	require.NoError(t, err)
	assert.Equal(t, "work", auth.SessionID)

	requireCode(t, codes.Unimplemented, c.SubmitCode(ctx, "123"))
	requireCode(t, codes.InvalidArgument, c.SubmitPhone(ctx, ""))
	requireCode(t, codes.InvalidArgument, c.SelectSession(ctx, "Bad ID"))
	requireCode(t, codes.NotFound, c.RemoveSession(ctx, "ghost"))
	requireCode(t, codes.InvalidArgument, c.SetProxy(ctx, Proxy{Enabled: true, Type: "mtproto", Host: "h", Port: 1}))

	require.NoError(t, c.RemoveSession(ctx, "work"))
	st, err = c.Status(ctx)
	require.NoError(t, err)
	assert.Nil(t, st.Session)
}

func TestScanRequestValidation(t *testing.T) {
	c := startServer(t)
	ctx := context.Background()
	require.NoError(t, c.SelectSession(ctx, "work"))

	tests := []struct {
		name string
		req  ScanRequest
	}{
		{"missing chat", ScanRequest{}},
		{"bad date", ScanRequest{ChatID: "c", StartDate: "01/02/2024"}},
		{"reversed dates", ScanRequest{ChatID: "c", StartDate: "2024-03-01", EndDate: "2024-02-01"}},
		{"unknown type", ScanRequest{ChatID: "c", Type: "gif"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.StartScan(ctx, tt.req)
			requireCode(t, codes.InvalidArgument, err)
		})
	}

	epoch, err := c.StartScan(ctx, ScanRequest{ChatID: "c", StartDate: "2024-01-01", Type: "photo"})
	require.NoError(t, err)
	assert.NotZero(t, epoch)
}

func TestDownloadCommands(t *testing.T) {
	c := startServer(t)
	ctx := context.Background()
	require.NoError(t, c.SelectSession(ctx, "work"))

	require.NoError(t, c.StartDownload(ctx, 7, "a.jpg", 100))
	list, err := c.ListDownloads(ctx)
	require.NoError(t, err)
	require.Len(t, list.Downloads, 1)
	assert.Equal(t, int64(7), list.Downloads[0].FileID)
	assert.Equal(t, model.DownloadPending, list.Downloads[0].State)

	requireCode(t, codes.NotFound, c.PauseDownload(ctx, 99))
	requireCode(t, codes.InvalidArgument, c.SetDownloadDir(ctx, "relative"))

	require.NoError(t, c.CancelDownload(ctx, 7))
	ids, err := c.ClearCompletedDownloads(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{7}, ids)
}

func TestWatchStreamsEvents(t *testing.T) {
	c := startServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.SelectSession(ctx, "work"))

	stream, err := c.Watch(ctx, "chat.")
	require.NoError(t, err)
	got := make(chan *EventEnvelope, 1)
	go func() {
		if env, err := stream.Recv(); err == nil {
			got <- env
		}
	}()

	// The subscription is registered asynchronously; publish until it lands.
	var env *EventEnvelope
	require.Eventually(t, func() bool {
		_, _ = c.ListChats(ctx, 10)
		select {
		case env = <-got:
			return true
		default:
			return false
		}
	}, 3*time.Second, 20*time.Millisecond)

	assert.Equal(t, string(bus.KindChatsList), env.Kind)
	assert.NotEmpty(t, env.ID)
	var payload bus.ChatsList
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	require.Len(t, payload.Chats, 1)
	assert.Equal(t, "Ana", payload.Chats[0].Title)
}
