package wa

import (
	"encoding/hex"
	"strings"

	"github.com/matheus3301/wpdl/internal/provider"
	"github.com/matheus3301/wpdl/internal/store"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

// ParsedMessage is a normalized message ready for ingestion.
type ParsedMessage struct {
	ChatJID     string
	MsgID       string
	SenderJID   string
	SenderName  string
	Body        string
	MessageType string
	FromMe      bool
	Timestamp   int64
	Media       Media
	Raw         []byte
}

// Media describes a message attachment.
type Media struct {
	FileName  string
	MimeType  string
	Size      int64
	SHA256    string
	Thumbnail []byte
}

// ParseLiveMessage normalizes a live whatsmeow message event.
func ParseLiveMessage(evt *events.Message) *ParsedMessage {
	return parse(evt.Message, evt.Info)
}

// ParseHistoryMessage normalizes a history sync message.
func ParseHistoryMessage(msg *waE2E.Message, info types.MessageInfo) *ParsedMessage {
	return parse(msg, info)
}

func parse(msg *waE2E.Message, info types.MessageInfo) *ParsedMessage {
	p := &ParsedMessage{
		ChatJID:     info.Chat.ToNonAD().String(),
		MsgID:       info.ID,
		SenderJID:   info.Sender.ToNonAD().String(),
		SenderName:  info.PushName,
		Body:        extractTextBody(msg),
		MessageType: detectMessageType(msg),
		FromMe:      info.IsFromMe,
		Timestamp:   info.Timestamp.UnixMilli(),
		Media:       extractMedia(msg),
	}
	if isMedia(p.MessageType) && msg != nil {
		// Media keys live in the proto; keep it so the bytes can be fetched later.
		if raw, err := proto.Marshal(msg); err == nil {
			p.Raw = raw
		}
	}
	return p
}

// ToStoreMessage converts a ParsedMessage to a store.Message.
func (p *ParsedMessage) ToStoreMessage() *store.Message {
	m := &store.Message{
		ChatJID:    p.ChatJID,
		MsgID:      p.MsgID,
		SenderJID:  p.SenderJID,
		SenderName: p.SenderName,
		FromMe:     p.FromMe,
		Timestamp:  p.Timestamp,
		Body:       p.Body,
		FileName:   p.Media.FileName,
		MimeType:   p.Media.MimeType,
		FileSize:   p.Media.Size,
		FileSHA256: p.Media.SHA256,
		Thumbnail:  p.Media.Thumbnail,
		Raw:        p.Raw,
	}
	if isMedia(p.MessageType) {
		m.MediaType = p.MessageType
	}
	return m
}

func isMedia(t string) bool {
	switch t {
	case store.MediaImage, store.MediaVideo, store.MediaAudio, store.MediaDocument, store.MediaSticker:
		return true
	}
	return false
}

// NormalizeJID strips device and agent suffixes so one contact maps to one chat.
func NormalizeJID(s string) string {
	if s == "" {
		return ""
	}
	jid, err := types.ParseJID(s)
	if err != nil {
		return s
	}
	return jid.ToNonAD().String()
}

// ChatKindOf classifies a chat JID.
func ChatKindOf(jid string) provider.ChatKind {
	_, server, _ := strings.Cut(jid, "@")
	switch server {
	case types.GroupServer:
		return provider.ChatGroup
	case types.BroadcastServer:
		return provider.ChatBroadcast
	case types.NewsletterServer:
		return provider.ChatNewsletter
	}
	return provider.ChatUser
}

func extractTextBody(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if c := msg.GetConversation(); c != "" {
		return c
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	if img := msg.GetImageMessage(); img != nil {
		return img.GetCaption()
	}
	if vid := msg.GetVideoMessage(); vid != nil {
		return vid.GetCaption()
	}
	if doc := documentOf(msg); doc != nil {
		return doc.GetCaption()
	}
	return ""
}

func detectMessageType(msg *waE2E.Message) string {
	if msg == nil {
		return "unknown"
	}
	switch {
	case msg.GetConversation() != "" || msg.GetExtendedTextMessage() != nil:
		return "text"
	case msg.GetImageMessage() != nil:
		return store.MediaImage
	case msg.GetVideoMessage() != nil:
		return store.MediaVideo
	case msg.GetAudioMessage() != nil:
		return store.MediaAudio
	case documentOf(msg) != nil:
		return store.MediaDocument
	case msg.GetStickerMessage() != nil:
		return store.MediaSticker
	case msg.GetContactMessage() != nil:
		return "contact"
	case msg.GetLocationMessage() != nil:
		return "location"
	default:
		return "unknown"
	}
}

// documentOf unwraps captioned documents, which arrive nested.
func documentOf(msg *waE2E.Message) *waE2E.DocumentMessage {
	if doc := msg.GetDocumentMessage(); doc != nil {
		return doc
	}
	return msg.GetDocumentWithCaptionMessage().GetMessage().GetDocumentMessage()
}

func extractMedia(msg *waE2E.Message) Media {
	if msg == nil {
		return Media{}
	}
	if img := msg.GetImageMessage(); img != nil {
		return Media{
			MimeType:  img.GetMimetype(),
			Size:      int64(img.GetFileLength()),
			SHA256:    hex.EncodeToString(img.GetFileSHA256()),
			Thumbnail: img.GetJPEGThumbnail(),
		}
	}
	if vid := msg.GetVideoMessage(); vid != nil {
		return Media{
			MimeType:  vid.GetMimetype(),
			Size:      int64(vid.GetFileLength()),
			SHA256:    hex.EncodeToString(vid.GetFileSHA256()),
			Thumbnail: vid.GetJPEGThumbnail(),
		}
	}
	if aud := msg.GetAudioMessage(); aud != nil {
		return Media{
			MimeType: aud.GetMimetype(),
			Size:     int64(aud.GetFileLength()),
			SHA256:   hex.EncodeToString(aud.GetFileSHA256()),
		}
	}
	if doc := documentOf(msg); doc != nil {
		name := doc.GetFileName()
		if name == "" {
			name = doc.GetTitle()
		}
		return Media{
			FileName:  name,
			MimeType:  doc.GetMimetype(),
			Size:      int64(doc.GetFileLength()),
			SHA256:    hex.EncodeToString(doc.GetFileSHA256()),
			Thumbnail: doc.GetJPEGThumbnail(),
		}
	}
	if st := msg.GetStickerMessage(); st != nil {
		return Media{
			MimeType: st.GetMimetype(),
			Size:     int64(st.GetFileLength()),
			SHA256:   hex.EncodeToString(st.GetFileSHA256()),
		}
	}
	return Media{}
}
