package bus

import (
	"time"

	"github.com/matheus3301/wpdl/internal/model"
)

// Kind names an event. Kinds are dotted so subscribers can filter by namespace.
type Kind string

const (
	KindSessionsList      Kind = "session.list"
	KindAuthState         Kind = "session.auth"
	KindConnectivityState Kind = "session.connectivity"
	KindChatsList         Kind = "chat.list"
	KindChatsChanged      Kind = "chat.changed"
	KindScanBatch         Kind = "scan.batch"
	KindScanProgress      Kind = "scan.progress"
	KindScanEnded         Kind = "scan.ended"
	KindDownloadProgress  Kind = "download.progress"
	KindDownloadTerminal  Kind = "download.terminal"
	KindDownloadsCleared  Kind = "download.cleared"
)

// Event is one of the typed payloads below.
type Event interface {
	Kind() Kind
	isEvent()
}

// Envelope wraps a published event with its identity and time.
type Envelope struct {
	ID         string
	OccurredAt time.Time
	Event      Event
}

// Kind is a shorthand for e.Event.Kind().
func (e Envelope) Kind() Kind { return e.Event.Kind() }

type SessionsList struct {
	Sessions []model.Session `json:"sessions"`
}

type AuthState struct {
	SessionID string          `json:"sessionId"`
	State     model.AuthState `json:"state"`
	// Payload carries the QR string or the pairing code, depending on State.
	Payload string `json:"payload,omitempty"`
}

type ConnectivityState struct {
	SessionID string             `json:"sessionId"`
	State     model.Connectivity `json:"state"`
	Error     string             `json:"error,omitempty"`
}

type ChatsList struct {
	Chats []model.Chat `json:"chats"`
}

type ChatsChanged struct {
	ChatID string `json:"chatId"`
}

type ScanBatch struct {
	Epoch uint64                 `json:"epoch"`
	Files []model.FileDescriptor `json:"files"`
}

type ScanProgress struct {
	Epoch   uint64 `json:"epoch"`
	Scanned int    `json:"scanned"`
	Found   int    `json:"found"`
	Active  bool   `json:"active"`
}

type ScanEnded struct {
	Epoch uint64 `json:"epoch"`
	Error string `json:"error,omitempty"`
}

type DownloadProgress struct {
	Task model.DownloadTask `json:"task"`
}

type DownloadTerminal struct {
	FileID int64               `json:"id"`
	Status model.DownloadState `json:"status"`
	Path   string              `json:"path,omitempty"`
	Error  string              `json:"error,omitempty"`
}

type DownloadsCleared struct {
	FileIDs []int64 `json:"ids"`
}

func (SessionsList) Kind() Kind      { return KindSessionsList }
func (AuthState) Kind() Kind         { return KindAuthState }
func (ConnectivityState) Kind() Kind { return KindConnectivityState }
func (ChatsList) Kind() Kind         { return KindChatsList }
func (ChatsChanged) Kind() Kind      { return KindChatsChanged }
func (ScanBatch) Kind() Kind         { return KindScanBatch }
func (ScanProgress) Kind() Kind      { return KindScanProgress }
func (ScanEnded) Kind() Kind         { return KindScanEnded }
func (DownloadProgress) Kind() Kind  { return KindDownloadProgress }
func (DownloadTerminal) Kind() Kind  { return KindDownloadTerminal }
func (DownloadsCleared) Kind() Kind  { return KindDownloadsCleared }

func (SessionsList) isEvent()      {}
func (AuthState) isEvent()         {}
func (ConnectivityState) isEvent() {}
func (ChatsList) isEvent()         {}
func (ChatsChanged) isEvent()      {}
func (ScanBatch) isEvent()         {}
func (ScanProgress) isEvent()      {}
func (ScanEnded) isEvent()         {}
func (DownloadProgress) isEvent()  {}
func (DownloadTerminal) isEvent()  {}
func (DownloadsCleared) isEvent()  {}
