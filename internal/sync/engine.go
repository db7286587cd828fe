package sync

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	stdsync "sync"
	"unicode/utf8"

	"github.com/matheus3301/wpdl/internal/store"
	"go.uber.org/zap"
)

// ErrStopped is returned by Submit once the engine has stopped.
var ErrStopped = errors.New("sync engine stopped")

// ChatMeta carries chat details known from history sync.
type ChatMeta struct {
	Name   string
	Unread int
}

// Batch is one unit of ingestion: a live message or a history sync chunk.
type Batch struct {
	Messages []*store.Message
	Chats    map[string]ChatMeta
	History  bool
}

// IngestFunc is notified after messages land in the mirror. messageID is 0
// for history batches.
type IngestFunc func(chatJID string, messageID int64)

// Engine handles idempotent ingestion of provider messages into the mirror.
// Batches are queued by Submit and applied in order by one worker.
type Engine struct {
	mirror     *store.Mirror
	reconciler *Reconciler
	kind       func(jid string) int
	logger     *zap.Logger

	in         chan Batch
	onIngested IngestFunc
	cancel     context.CancelFunc
	done       chan struct{}
	stopOnce   stdsync.Once
}

// NewEngine creates a new sync engine. kind classifies a chat JID into the
// mirror's chat kind.
func NewEngine(mirror *store.Mirror, kind func(jid string) int, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if kind == nil {
		kind = func(string) int { return 0 }
	}
	return &Engine{
		mirror:     mirror,
		reconciler: NewReconciler(mirror, logger),
		kind:       kind,
		logger:     logger,
		in:         make(chan Batch, 64),
		done:       make(chan struct{}),
	}
}

// Reconciler returns the engine's checkpoint and LID reconciler.
func (e *Engine) Reconciler() *Reconciler {
	return e.reconciler
}

// OnIngested registers the post-ingest callback. Call before Start.
func (e *Engine) OnIngested(fn IngestFunc) {
	e.onIngested = fn
}

// Start runs the ingestion worker until ctx is done or Stop is called.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	go func() {
		defer close(e.done)
		for {
			select {
			case b := <-e.in:
				e.handle(b)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the worker and waits for it. Queued batches are dropped; they
// are recovered by the next history sync.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		if e.cancel == nil {
			close(e.done)
			return
		}
		e.cancel()
		<-e.done
	})
}

// Submit queues a batch, blocking while the queue is full.
func (e *Engine) Submit(ctx context.Context, b Batch) error {
	select {
	case e.in <- b:
		return nil
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) handle(b Batch) {
	if b.History {
		chats, err := e.IngestHistoryBatch(b.Messages, b.Chats)
		if err != nil {
			e.logger.Error("failed to ingest history batch", zap.Error(err), zap.Int("count", len(b.Messages)))
			return
		}
		e.logger.Info("history batch ingested", zap.Int("messages", len(b.Messages)), zap.Int("chats", len(chats)))
		for _, jid := range chats {
			e.notify(jid, 0)
		}
		return
	}
	for _, msg := range b.Messages {
		id, err := e.IngestMessage(msg)
		if err != nil {
			e.logger.Error("failed to ingest message", zap.Error(err), zap.String("msg_id", msg.MsgID))
			continue
		}
		e.notify(msg.ChatJID, id)
	}
}

func (e *Engine) notify(chatJID string, id int64) {
	if e.onIngested != nil {
		e.onIngested(chatJID, id)
	}
}

// IngestMessage stores a single message (idempotent) and returns its row id.
func (e *Engine) IngestMessage(msg *store.Message) (int64, error) {
	if err := e.mirror.UpsertChat(&store.Chat{
		JID:                msg.ChatJID,
		Kind:               e.kind(msg.ChatJID),
		LastMessageAt:      msg.Timestamp,
		LastMessagePreview: Preview(msg),
	}); err != nil {
		return 0, fmt.Errorf("upsert chat: %w", err)
	}
	id, err := e.mirror.UpsertMessage(msg)
	if err != nil {
		return 0, fmt.Errorf("upsert message: %w", err)
	}
	return id, nil
}

// IngestHistoryBatch stores a history chunk in one transaction and returns
// the distinct chats it touched, in first-seen order.
func (e *Engine) IngestHistoryBatch(msgs []*store.Message, meta map[string]ChatMeta) ([]string, error) {
	var chats []string
	seen := make(map[string]bool)
	for _, m := range msgs {
		if !seen[m.ChatJID] {
			seen[m.ChatJID] = true
			chats = append(chats, m.ChatJID)
		}
	}

	err := e.mirror.IngestBatch(msgs, func(m *store.Message) store.Chat {
		return store.Chat{
			JID:                m.ChatJID,
			Name:               meta[m.ChatJID].Name,
			Kind:               e.kind(m.ChatJID),
			LastMessageAt:      m.Timestamp,
			LastMessagePreview: Preview(m),
		}
	})
	if err != nil {
		return nil, err
	}

	// Chats announced without messages still get their names recorded.
	for jid, cm := range meta {
		if seen[jid] || cm.Name == "" {
			continue
		}
		if err := e.mirror.UpsertChat(&store.Chat{JID: jid, Name: cm.Name, Kind: e.kind(jid), UnreadCount: cm.Unread}); err != nil {
			return nil, fmt.Errorf("upsert chat %q: %w", jid, err)
		}
	}

	if err := e.reconciler.RecordHistoryBatch(len(msgs)); err != nil {
		e.logger.Warn("failed to record history checkpoint", zap.Error(err))
	}
	return chats, nil
}

// Preview is the chat list summary of a message.
func Preview(m *store.Message) string {
	if m.Body != "" {
		return truncate(m.Body, 100)
	}
	switch m.MediaType {
	case store.MediaImage:
		return "Photo"
	case store.MediaVideo:
		return "Video"
	case store.MediaAudio:
		return "Audio"
	case store.MediaDocument:
		if m.FileName != "" {
			return truncate(m.FileName, 100)
		}
		return "Document"
	case store.MediaSticker:
		return "Sticker"
	}
	return ""
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	s = s[:maxLen]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
