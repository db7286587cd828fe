package store

// Chat represents a mirrored chat.
type Chat struct {
	JID                string
	Name               string
	Kind               int
	UnreadCount        int
	LastMessageAt      int64
	LastMessagePreview string
}

// Contact represents a synced contact.
type Contact struct {
	JID      string
	Name     string
	PushName string
}

// Media types stored in messages.media_type.
const (
	MediaNone     = ""
	MediaImage    = "image"
	MediaVideo    = "video"
	MediaAudio    = "audio"
	MediaDocument = "document"
	MediaSticker  = "sticker"
)

// Message represents a mirrored message. Timestamp is unix milliseconds.
// Raw holds the marshaled provider message, needed to download its media.
type Message struct {
	ID         int64
	ChatJID    string
	MsgID      string
	SenderJID  string
	SenderName string
	FromMe     bool
	Timestamp  int64
	Body       string
	MediaType  string
	FileName   string
	MimeType   string
	FileSize   int64
	FileSHA256 string
	Thumbnail  []byte
	Raw        []byte
	GroupID    int64
	LocalPath  string
}

// HasMedia reports whether the message carries a downloadable attachment.
func (m *Message) HasMedia() bool {
	return m.MediaType != MediaNone && m.MediaType != MediaSticker
}
