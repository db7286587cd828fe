package wa

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/wpdl/internal/provider"
	"github.com/matheus3301/wpdl/internal/session"
	"github.com/matheus3301/wpdl/internal/store"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

// chunkFetcher writes its chunks one by one, then truncates to size the way
// whatsmeow does after decrypting in place.
type chunkFetcher struct {
	chunks [][]byte
	size   int64
	err    error
}

func (c *chunkFetcher) DownloadToFile(_ context.Context, _ whatsmeow.DownloadableMessage, f whatsmeow.File) error {
	for _, chunk := range c.chunks {
		if _, err := f.Write(chunk); err != nil {
			return err
		}
	}
	if c.err != nil {
		return c.err
	}
	return f.Truncate(c.size)
}

func newDownloadGateway(t *testing.T, media mediaFetcher) (*Gateway, int64, *[]provider.FileInfo) {
	t.Helper()
	paths := session.PathsIn(t.TempDir())
	if err := os.MkdirAll(paths.Files, 0700); err != nil {
		t.Fatal(err)
	}
	mirror, err := store.OpenMirror(paths.MirrorDB)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = mirror.Close() })

	raw, err := proto.Marshal(&waE2E.Message{ImageMessage: &waE2E.ImageMessage{Mimetype: proto.String("image/jpeg")}})
	if err != nil {
		t.Fatal(err)
	}
	id, err := mirror.UpsertMessage(&store.Message{
		ChatJID:   "5511@s.whatsapp.net",
		MsgID:     "m1",
		Timestamp: 1_700_000_000_000,
		MediaType: store.MediaImage,
		MimeType:  "image/jpeg",
		FileSize:  10,
		Raw:       raw,
	})
	if err != nil {
		t.Fatal(err)
	}

	g := &Gateway{
		paths:     paths,
		media:     media,
		mirror:    mirror,
		logger:    zap.NewNop(),
		downloads: make(map[int64]*transfer),
	}
	g.ctx, g.cancel = context.WithCancel(context.Background())
	t.Cleanup(g.cancel)

	var pushes []provider.FileInfo
	g.OnFileUpdate(func(fi provider.FileInfo) { pushes = append(pushes, fi) })
	return g, id, &pushes
}

func TestDownloadFilePushesByteProgress(t *testing.T) {
	fetch := &chunkFetcher{chunks: [][]byte{[]byte("abcd"), []byte("efgh"), []byte("ijkl")}, size: 10}
	g, id, pushes := newDownloadGateway(t, fetch)

	if err := g.DownloadFile(context.Background(), id, 32); err != nil {
		t.Fatal(err)
	}
	g.wg.Wait()

	var got []int64
	for _, fi := range *pushes {
		if fi.ID != id {
			t.Fatalf("push for file %d, want %d", fi.ID, id)
		}
		got = append(got, fi.Local.DownloadedSize)
	}
	// Start, three writes (the last capped at the announced size), completion.
	want := []int64{0, 4, 8, 10, 10}
	if len(got) != len(want) {
		t.Fatalf("downloaded sizes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("downloaded sizes = %v, want %v", got, want)
		}
	}
	for _, fi := range (*pushes)[:4] {
		if !fi.Local.IsDownloadingActive || fi.Local.IsDownloadingCompleted {
			t.Errorf("in-flight push %+v should be active", fi.Local)
		}
	}

	last := (*pushes)[len(*pushes)-1]
	if !last.Local.IsDownloadingCompleted {
		t.Fatalf("last push %+v should be completed", last.Local)
	}
	if filepath.Dir(last.Local.Path) != g.paths.Files {
		t.Errorf("cached at %q, want under %q", last.Local.Path, g.paths.Files)
	}
	data, err := os.ReadFile(last.Local.Path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "abcdefghij" {
		t.Errorf("cache content = %q", data)
	}
	entries, err := os.ReadDir(g.paths.Files)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("cache dir = %v, want only the cached file", entries)
	}
}

func TestDownloadFileThrottlesProgress(t *testing.T) {
	fetch := &chunkFetcher{chunks: [][]byte{[]byte("ab"), []byte("cd"), []byte("ef")}, size: 6}
	g, id, pushes := newDownloadGateway(t, fetch)
	g.progressEvery = time.Hour

	if err := g.DownloadFile(context.Background(), id, 32); err != nil {
		t.Fatal(err)
	}
	g.wg.Wait()

	// Start, the first write, completion.
	if len(*pushes) != 3 {
		t.Fatalf("got %d pushes, want 3: %+v", len(*pushes), *pushes)
	}
	if got := (*pushes)[1].Local.DownloadedSize; got != 2 {
		t.Errorf("first progress = %d, want 2", got)
	}
}

func TestDownloadFileFailureDropsPartial(t *testing.T) {
	fetch := &chunkFetcher{chunks: [][]byte{[]byte("abcd")}, err: errors.New("media conn lost")}
	g, id, pushes := newDownloadGateway(t, fetch)

	if err := g.DownloadFile(context.Background(), id, 32); err != nil {
		t.Fatal(err)
	}
	g.wg.Wait()

	last := (*pushes)[len(*pushes)-1]
	if last.Local.IsDownloadingActive || last.Local.IsDownloadingCompleted {
		t.Errorf("last push %+v should be inactive", last.Local)
	}
	entries, err := os.ReadDir(g.paths.Files)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("cache dir not empty: %v", entries)
	}
	if g.isActive(id) {
		t.Error("failed transfer still tracked")
	}
}
