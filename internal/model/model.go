// Package model holds the canonical records exchanged between the
// orchestration components and pushed to UIs.
package model

import "time"

// FileType is the coarse media class of a file.
type FileType string

const (
	FileImage    FileType = "Image"
	FileVideo    FileType = "Video"
	FileDocument FileType = "Document"
	FileMusic    FileType = "Music"
)

// ParseFileType maps a UI type filter to a FileType. Empty and "all" mean no filter.
func ParseFileType(s string) (FileType, bool) {
	switch s {
	case "", "all", "All":
		return "", true
	case "Image", "image", "photo":
		return FileImage, true
	case "Video", "video":
		return FileVideo, true
	case "Document", "document":
		return FileDocument, true
	case "Music", "music", "audio":
		return FileMusic, true
	}
	return "", false
}

// LocalState is whether a file's bytes are present locally.
type LocalState string

const (
	NotDownloaded LocalState = "not_downloaded"
	Downloading   LocalState = "downloading"
	Downloaded    LocalState = "downloaded"
)

// FileDescriptor is the normalized projection of a message's attached media.
type FileDescriptor struct {
	FileID        int64      `json:"id"`
	UniqueID      string     `json:"uniqueId"`
	MessageID     int64      `json:"messageId"`
	ChatID        string     `json:"chatId"`
	GroupID       int64      `json:"groupId"`
	Name          string     `json:"name"`
	Caption       string     `json:"caption,omitempty"`
	Size          int64      `json:"size"`
	Date          int64      `json:"date"`
	Type          FileType   `json:"type"`
	MimeType      string     `json:"mimeType,omitempty"`
	Thumbnail     []byte     `json:"thumbnail,omitempty"`
	PreviewFileID int64      `json:"previewFileId,omitempty"`
	State         LocalState `json:"state"`
	LocalPath     string     `json:"localPath,omitempty"`
}

// ChatType classifies a conversation.
type ChatType string

const (
	ChatPrivate ChatType = "private"
	ChatGroup   ChatType = "group"
	ChatChannel ChatType = "channel"
)

// Chat is a normalized conversation summary.
type Chat struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	UnreadCount int      `json:"unreadCount"`
	LastMessage string   `json:"lastMessage,omitempty"`
	Date        int64    `json:"date"`
	Type        ChatType `json:"type"`
}

// DownloadState is the lifecycle state of a download task.
type DownloadState string

const (
	DownloadPending   DownloadState = "pending"
	DownloadActive    DownloadState = "downloading"
	DownloadPaused    DownloadState = "paused"
	DownloadCompleted DownloadState = "completed"
	DownloadCancelled DownloadState = "cancelled"
	DownloadError     DownloadState = "error"
)

// Terminal reports whether no further transitions may occur from s.
func (s DownloadState) Terminal() bool {
	switch s {
	case DownloadCompleted, DownloadCancelled, DownloadError:
		return true
	}
	return false
}

// DownloadTask is a user-requested download in the active session.
type DownloadTask struct {
	FileID       int64         `json:"id"`
	Name         string        `json:"name"`
	Size         int64         `json:"size"`
	Downloaded   int64         `json:"downloaded"`
	State        DownloadState `json:"status"`
	Speed        float64       `json:"speed"`
	Path         string        `json:"path,omitempty"`
	Error        string        `json:"error,omitempty"`
	LastSampleAt time.Time     `json:"-"`
}

// Lifecycle is the connection lifecycle of a session.
type Lifecycle string

const (
	Uninitialized  Lifecycle = "uninitialized"
	Connecting     Lifecycle = "connecting"
	Authenticating Lifecycle = "authenticating"
	Ready          Lifecycle = "ready"
	Closed         Lifecycle = "closed"
)

// Session is a known account. Only one may be Active at a time.
type Session struct {
	ID         string    `json:"id"`
	FirstName  string    `json:"firstName,omitempty"`
	LastName   string    `json:"lastName,omitempty"`
	Username   string    `json:"username,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	Avatar     []byte    `json:"avatar,omitempty"`
	LastActive time.Time `json:"lastActive"`
	Active     bool      `json:"active"`
	State      Lifecycle `json:"state,omitempty"`
}

// DisplayName returns the best human label for s.
func (s Session) DisplayName() string {
	name := s.FirstName
	if s.LastName != "" {
		if name != "" {
			name += " "
		}
		name += s.LastName
	}
	switch {
	case name != "":
		return name
	case s.Username != "":
		return s.Username
	case s.Phone != "":
		return s.Phone
	}
	return s.ID
}

// AuthState is the closed set of auth states surfaced to UIs.
type AuthState string

const (
	AuthLoggedOut    AuthState = "logged_out"
	AuthAwaitingCode AuthState = "awaiting_code"
	AuthAwaiting2FA  AuthState = "awaiting_2fa"
	AuthQRPending    AuthState = "qr_pending"
	AuthReady        AuthState = "ready"
)

// Connectivity is the provider connection state.
type Connectivity string

const (
	ConnConnecting   Connectivity = "connecting"
	ConnReady        Connectivity = "ready"
	ConnDisconnected Connectivity = "disconnected"
	ConnFailed       Connectivity = "failed"
)
