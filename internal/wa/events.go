package wa

import (
	"context"
	"time"

	"github.com/matheus3301/wpdl/internal/model"
	"github.com/matheus3301/wpdl/internal/provider"
	"github.com/matheus3301/wpdl/internal/store"
	"github.com/matheus3301/wpdl/internal/sync"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
)

// sink is what the event handler drives. *Gateway implements it.
type sink interface {
	pushAuth(provider.AuthUpdate)
	pushConnectivity(provider.ConnectivityUpdate)
	submit(sync.Batch)
	resolveLID(ctx context.Context, jid types.JID) types.JID
	onConnected()
	log() *zap.Logger
}

// EventHandler translates whatsmeow events into provider pushes and
// ingestion batches.
type EventHandler struct {
	sink sink
}

// NewEventHandler creates a new event handler.
func NewEventHandler(s sink) *EventHandler {
	return &EventHandler{sink: s}
}

// Handle is the main whatsmeow event handler function.
func (h *EventHandler) Handle(rawEvt any) {
	logger := h.sink.log()
	switch evt := rawEvt.(type) {
	case *events.Message:
		h.handleMessage(evt)
	case *events.Connected:
		logger.Info("WhatsApp connected")
		h.sink.pushConnectivity(provider.ConnectivityUpdate{State: model.ConnReady})
		h.sink.pushAuth(provider.AuthUpdate{State: model.AuthReady})
		h.sink.onConnected()
	case *events.Disconnected:
		// whatsmeow reconnects on its own.
		logger.Warn("WhatsApp disconnected")
		h.sink.pushConnectivity(provider.ConnectivityUpdate{State: model.ConnConnecting})
	case *events.HistorySync:
		h.handleHistorySync(evt)
	case *events.LoggedOut:
		logger.Warn("WhatsApp logged out", zap.String("reason", evt.Reason.String()))
		h.sink.pushAuth(provider.AuthUpdate{State: model.AuthLoggedOut, Payload: evt.Reason.String()})
	}
}

func (h *EventHandler) handleMessage(evt *events.Message) {
	ctx := context.Background()
	evt.Info.Chat = h.sink.resolveLID(ctx, evt.Info.Chat)
	evt.Info.Sender = h.sink.resolveLID(ctx, evt.Info.Sender)
	parsed := ParseLiveMessage(evt)
	h.sink.submit(sync.Batch{Messages: []*store.Message{parsed.ToStoreMessage()}})
}

func (h *EventHandler) handleHistorySync(evt *events.HistorySync) {
	data := evt.Data
	if data == nil {
		return
	}

	ctx := context.Background()
	var msgs []*store.Message
	meta := make(map[string]sync.ChatMeta)
	for _, conv := range data.GetConversations() {
		chat, err := types.ParseJID(conv.GetID())
		if err != nil {
			continue
		}
		chat = h.sink.resolveLID(ctx, chat.ToNonAD())
		meta[chat.String()] = sync.ChatMeta{Name: conv.GetName(), Unread: int(conv.GetUnreadCount())}

		for _, hm := range conv.GetMessages() {
			wmsg := hm.GetMessage()
			if wmsg == nil || wmsg.GetMessage() == nil {
				continue
			}
			key := wmsg.GetKey()
			info := types.MessageInfo{
				MessageSource: types.MessageSource{
					Chat:     chat,
					IsFromMe: key.GetFromMe(),
				},
				ID:        key.GetID(),
				PushName:  wmsg.GetPushName(),
				Timestamp: time.Unix(int64(wmsg.GetMessageTimestamp()), 0),
			}
			if p := key.GetParticipant(); p != "" {
				if sender, err := types.ParseJID(p); err == nil {
					info.Sender = h.sink.resolveLID(ctx, sender)
				}
			} else if !key.GetFromMe() {
				info.Sender = chat
			}
			msgs = append(msgs, ParseHistoryMessage(wmsg.GetMessage(), info).ToStoreMessage())
		}
	}

	if len(msgs) > 0 || len(meta) > 0 {
		h.sink.submit(sync.Batch{Messages: msgs, Chats: meta, History: true})
	}
}

func (g *Gateway) submit(b sync.Batch) {
	if err := g.engine.Submit(g.ctx, b); err != nil {
		g.logger.Debug("dropped ingestion batch", zap.Error(err), zap.Int("messages", len(b.Messages)))
	}
}

func (g *Gateway) log() *zap.Logger {
	return g.logger
}

// onConnected refreshes contacts and LID mappings in the background.
func (g *Gateway) onConnected() {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.syncContacts(g.ctx)
	}()
}
