package wa

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/matheus3301/wpdl/internal/store"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

var errNoMedia = errors.New("message has no downloadable media")

// DownloadFile streams a message's media into the session cache. Progress is
// pushed through OnFileUpdate: active when the transfer starts, active with a
// growing byte count while it runs, then completed with the cached path, or
// inactive on cancel or failure.
// priority is accepted for interface parity; transfers are not queued.
func (g *Gateway) DownloadFile(ctx context.Context, fileID int64, priority int) error {
	msg, err := g.mirror.GetMessage(fileID)
	if err != nil {
		return fmt.Errorf("load message: %w", err)
	}
	if msg == nil {
		return fmt.Errorf("file %d: %w", fileID, errNoMedia)
	}
	if msg.LocalPath != "" {
		if _, err := os.Stat(msg.LocalPath); err == nil {
			g.pushFile(fileInfo(msg, false))
			return nil
		}
	}
	dm, err := downloadable(msg)
	if err != nil {
		return fmt.Errorf("file %d: %w", fileID, err)
	}

	g.mu.Lock()
	if t, ok := g.downloads[fileID]; ok && t.ctx.Err() == nil {
		g.mu.Unlock()
		return nil
	}
	t := &transfer{}
	t.ctx, t.cancel = context.WithCancel(g.ctx)
	g.downloads[fileID] = t
	g.mu.Unlock()

	g.pushFile(fileInfo(msg, true))
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.fetch(t, msg, dm)
	}()
	return nil
}

// transfer is one in-flight media fetch. A cancelled transfer may be
// replaced by a new one for the same file before it winds down.
type transfer struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func (g *Gateway) fetch(t *transfer, msg *store.Message, dm whatsmeow.DownloadableMessage) {
	ctx := t.ctx
	path, err := g.fetchToCache(ctx, msg, dm)
	t.cancel()

	g.mu.Lock()
	current := g.downloads[msg.ID] == t
	if current {
		delete(g.downloads, msg.ID)
	}
	g.mu.Unlock()
	if !current {
		return
	}

	if err != nil {
		if ctx.Err() == nil {
			g.logger.Warn("media download failed", zap.Int64("file_id", msg.ID), zap.Error(err))
		}
		g.pushFile(fileInfo(msg, false))
		return
	}
	msg.LocalPath = path
	g.pushFile(fileInfo(msg, false))
}

// mediaFetcher streams an attachment into a file. *whatsmeow.Client
// implements it.
type mediaFetcher interface {
	DownloadToFile(ctx context.Context, msg whatsmeow.DownloadableMessage, file whatsmeow.File) error
}

// progressFile counts the bytes whatsmeow streams into the cache file.
// The body arrives through Write (or ReadFrom); the in-place decryption
// afterwards goes through WriteAt and is not counted.
type progressFile struct {
	*os.File
	written int64
	report  func(written int64)
}

func (f *progressFile) Write(p []byte) (int, error) {
	n, err := f.File.Write(p)
	f.written += int64(n)
	f.report(f.written)
	return n, err
}

// ReadFrom shadows (*os.File).ReadFrom so io.Copy goes through Write.
func (f *progressFile) ReadFrom(r io.Reader) (int64, error) {
	return io.Copy(struct{ io.Writer }{f}, r)
}

func (g *Gateway) fetchToCache(ctx context.Context, msg *store.Message, dm whatsmeow.DownloadableMessage) (string, error) {
	path := filepath.Join(g.paths.Files, cacheName(msg))
	// A paused transfer may still be winding down when its file is resumed,
	// so every transfer writes its own part file.
	f, err := os.CreateTemp(g.paths.Files, cacheName(msg)+".*.part")
	if err != nil {
		return "", fmt.Errorf("create cache: %w", err)
	}
	tmp := f.Name()
	pf := &progressFile{File: f, report: g.progressReporter(ctx, msg)}
	err = g.media.DownloadToFile(ctx, dm, pf)
	if err == nil {
		err = ctx.Err()
	}
	var size int64
	if err == nil {
		var st os.FileInfo
		if st, err = f.Stat(); err == nil {
			size = st.Size()
		}
	}
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close cache: %w", cerr)
	}
	if err != nil {
		// whatsmeow cannot resume a transfer, so partial bytes are useless.
		_ = os.Remove(tmp)
		return "", err
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("commit cache: %w", err)
	}
	if err := g.mirror.SetLocalPath(msg.ID, path); err != nil {
		return "", fmt.Errorf("record cache path: %w", err)
	}
	if msg.FileSize == 0 {
		msg.FileSize = size
	}
	return path, nil
}

// progressReporter pushes the growing byte count of msg's transfer, at most
// once per progressEvery and never after ctx is done. The count is capped
// at the announced size since the encrypted body carries padding and a MAC.
func (g *Gateway) progressReporter(ctx context.Context, msg *store.Message) func(int64) {
	var last time.Time
	return func(written int64) {
		if ctx.Err() != nil {
			return
		}
		now := time.Now()
		if !last.IsZero() && now.Sub(last) < g.progressEvery {
			return
		}
		last = now
		fi := fileInfo(msg, true)
		fi.Local.DownloadedSize = written
		if msg.FileSize > 0 {
			fi.Local.DownloadedSize = min(written, msg.FileSize)
		}
		g.pushFile(fi)
	}
}

// CancelDownload aborts an in-flight transfer. Unknown ids are ignored.
func (g *Gateway) CancelDownload(_ context.Context, fileID int64) error {
	g.mu.Lock()
	t, ok := g.downloads[fileID]
	g.mu.Unlock()
	if ok {
		t.cancel()
	}
	return nil
}

// DeleteLocalFile removes the cached bytes of a file.
func (g *Gateway) DeleteLocalFile(_ context.Context, fileID int64) error {
	msg, err := g.mirror.GetMessage(fileID)
	if err != nil {
		return err
	}
	if msg == nil || msg.LocalPath == "" {
		return nil
	}
	// Only the cache is ours to delete; completed files may have moved out.
	if filepath.Dir(msg.LocalPath) == g.paths.Files {
		if err := os.Remove(msg.LocalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return g.mirror.SetLocalPath(fileID, "")
}

// downloadable decodes the stored proto and returns its attachment.
func downloadable(msg *store.Message) (whatsmeow.DownloadableMessage, error) {
	if len(msg.Raw) == 0 {
		return nil, errNoMedia
	}
	var m waE2E.Message
	if err := proto.Unmarshal(msg.Raw, &m); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	switch {
	case m.GetImageMessage() != nil:
		return m.GetImageMessage(), nil
	case m.GetVideoMessage() != nil:
		return m.GetVideoMessage(), nil
	case m.GetAudioMessage() != nil:
		return m.GetAudioMessage(), nil
	case documentOf(&m) != nil:
		return documentOf(&m), nil
	case m.GetStickerMessage() != nil:
		return m.GetStickerMessage(), nil
	}
	return nil, errNoMedia
}

// cacheName is the cache file name of a message's media.
func cacheName(msg *store.Message) string {
	ext := filepath.Ext(msg.FileName)
	if ext == "" && msg.MimeType != "" {
		mt, _, _ := strings.Cut(msg.MimeType, ";")
		if exts, err := mime.ExtensionsByType(strings.TrimSpace(mt)); err == nil && len(exts) > 0 {
			ext = exts[0]
		}
	}
	return fmt.Sprintf("%d%s", msg.ID, ext)
}
