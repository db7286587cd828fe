package provider

import "github.com/matheus3301/wpdl/internal/model"

// Message is a provider-native chat message.
type Message struct {
	ID      int64
	ChatID  string
	Date    int64 // unix seconds
	GroupID int64 // 0 when not part of an album
	Text    string
	Content Content
}

// Content is the message payload. One of Photo, Video, Document, Audio, Other.
type Content interface {
	isContent()
}

type Photo struct {
	File          FileInfo
	Thumbnail     []byte
	PreviewFileID int64
}

type Video struct {
	File      FileInfo
	FileName  string
	MimeType  string
	Thumbnail []byte
}

type Document struct {
	File      FileInfo
	FileName  string
	MimeType  string
	Thumbnail []byte
}

type Audio struct {
	File     FileInfo
	FileName string
	MimeType string
}

// Other is any content without a downloadable attachment.
type Other struct {
	Kind string
}

func (Photo) isContent()    {}
func (Video) isContent()    {}
func (Document) isContent() {}
func (Audio) isContent()    {}
func (Other) isContent()    {}

// FileInfo is the provider's view of a remote file and its local cache.
// File updates are pushed as FileInfo values.
type FileInfo struct {
	ID       int64
	UniqueID string
	Size     int64
	Local    LocalFile
}

// LocalFile is the cache state of a file.
type LocalFile struct {
	Path                   string
	IsDownloadingActive    bool
	IsDownloadingCompleted bool
	DownloadedSize         int64
}

// AuthUpdate is an auth state push.
type AuthUpdate struct {
	State   model.AuthState
	Payload string
}

// ConnectivityUpdate is a connection state push.
type ConnectivityUpdate struct {
	State model.Connectivity
	Err   error
}

// MessageUpdate signals a new or changed message in a chat.
type MessageUpdate struct {
	ChatID    string
	MessageID int64
}

// ChatKind is the provider's conversation class.
type ChatKind int

const (
	ChatUser ChatKind = iota
	ChatGroup
	ChatBroadcast
	ChatNewsletter
)

// Chat is a provider-native conversation summary.
type Chat struct {
	ID          string
	Title       string
	Kind        ChatKind
	UnreadCount int
	LastMessage *Message
}

// Profile is the logged-in account's profile.
type Profile struct {
	FirstName string
	LastName  string
	Username  string
	Phone     string
	Avatar    []byte
}
