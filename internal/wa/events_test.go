package wa

import (
	"context"
	"testing"
	"time"

	"github.com/matheus3301/wpdl/internal/model"
	"github.com/matheus3301/wpdl/internal/provider"
	"github.com/matheus3301/wpdl/internal/sync"
	"go.mau.fi/whatsmeow/proto/waCommon"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/proto/waHistorySync"
	"go.mau.fi/whatsmeow/proto/waWeb"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

type recordingSink struct {
	auth         []provider.AuthUpdate
	connectivity []provider.ConnectivityUpdate
	batches      []sync.Batch
	connected    int
	lids         map[string]types.JID
}

func (s *recordingSink) pushAuth(u provider.AuthUpdate) { s.auth = append(s.auth, u) }
func (s *recordingSink) pushConnectivity(u provider.ConnectivityUpdate) {
	s.connectivity = append(s.connectivity, u)
}
func (s *recordingSink) submit(b sync.Batch) { s.batches = append(s.batches, b) }
func (s *recordingSink) onConnected()        { s.connected++ }
func (s *recordingSink) log() *zap.Logger    { return zap.NewNop() }
func (s *recordingSink) resolveLID(_ context.Context, jid types.JID) types.JID {
	if pn, ok := s.lids[jid.String()]; ok {
		return pn
	}
	return jid
}

func TestHandleConnected(t *testing.T) {
	s := &recordingSink{}
	NewEventHandler(s).Handle(&events.Connected{})

	if len(s.connectivity) != 1 || s.connectivity[0].State != model.ConnReady {
		t.Errorf("connectivity = %+v, want ready", s.connectivity)
	}
	if len(s.auth) != 1 || s.auth[0].State != model.AuthReady {
		t.Errorf("auth = %+v, want ready", s.auth)
	}
	if s.connected != 1 {
		t.Errorf("onConnected called %d times, want 1", s.connected)
	}
}

func TestHandleDisconnected(t *testing.T) {
	s := &recordingSink{}
	NewEventHandler(s).Handle(&events.Disconnected{})

	if len(s.connectivity) != 1 || s.connectivity[0].State != model.ConnConnecting {
		t.Errorf("connectivity = %+v, want connecting", s.connectivity)
	}
}

func TestHandleLoggedOut(t *testing.T) {
	s := &recordingSink{}
	NewEventHandler(s).Handle(&events.LoggedOut{})

	if len(s.auth) != 1 || s.auth[0].State != model.AuthLoggedOut {
		t.Errorf("auth = %+v, want logged_out", s.auth)
	}
}

func TestHandleMessageResolvesLID(t *testing.T) {
	s := &recordingSink{lids: map[string]types.JID{
		"3917077286968@lid": {User: "558592403672", Server: types.DefaultUserServer},
	}}
	NewEventHandler(s).Handle(&events.Message{
		Info: types.MessageInfo{
			ID:        "m1",
			Timestamp: time.Now(),
			MessageSource: types.MessageSource{
				Chat:   types.JID{User: "3917077286968", Server: types.HiddenUserServer},
				Sender: types.JID{User: "3917077286968", Server: types.HiddenUserServer},
			},
		},
		Message: &waE2E.Message{Conversation: proto.String("hi")},
	})

	if len(s.batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(s.batches))
	}
	b := s.batches[0]
	if b.History || len(b.Messages) != 1 {
		t.Fatalf("batch = %+v, want one live message", b)
	}
	if b.Messages[0].ChatJID != "558592403672@s.whatsapp.net" {
		t.Errorf("ChatJID = %q, want resolved PN chat", b.Messages[0].ChatJID)
	}
}

func TestHandleHistorySync(t *testing.T) {
	s := &recordingSink{}
	NewEventHandler(s).Handle(&events.HistorySync{
		Data: &waHistorySync.HistorySync{
			Conversations: []*waHistorySync.Conversation{
				{
					ID:          proto.String("chat@g.us"),
					Name:        proto.String("Family"),
					UnreadCount: proto.Uint32(3),
					Messages: []*waHistorySync.HistorySyncMsg{
						{
							Message: &waWeb.WebMessageInfo{
								Key: &waCommon.MessageKey{
									ID:          proto.String("hm1"),
									FromMe:      proto.Bool(false),
									RemoteJID:   proto.String("chat@g.us"),
									Participant: proto.String("558592403672:2@s.whatsapp.net"),
								},
								MessageTimestamp: proto.Uint64(1700000000),
								Message: &waE2E.Message{
									VideoMessage: &waE2E.VideoMessage{Mimetype: proto.String("video/mp4")},
								},
							},
						},
						// No payload: skipped.
						{Message: &waWeb.WebMessageInfo{Key: &waCommon.MessageKey{ID: proto.String("hm2")}}},
					},
				},
			},
		},
	})

	if len(s.batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(s.batches))
	}
	b := s.batches[0]
	if !b.History {
		t.Error("history batch not flagged")
	}
	if len(b.Messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(b.Messages))
	}
	m := b.Messages[0]
	if m.ChatJID != "chat@g.us" || m.MsgID != "hm1" || m.MediaType != "video" {
		t.Errorf("message = %+v", m)
	}
	if m.SenderJID != "558592403672@s.whatsapp.net" {
		t.Errorf("SenderJID = %q, want device suffix stripped", m.SenderJID)
	}
	if m.Timestamp != 1700000000*1000 {
		t.Errorf("Timestamp = %d", m.Timestamp)
	}
	if meta := b.Chats["chat@g.us"]; meta.Name != "Family" || meta.Unread != 3 {
		t.Errorf("chat meta = %+v", meta)
	}
}

func TestHandleHistorySyncEmpty(t *testing.T) {
	s := &recordingSink{}
	NewEventHandler(s).Handle(&events.HistorySync{})
	if len(s.batches) != 0 {
		t.Errorf("got %d batches for empty sync", len(s.batches))
	}
}
