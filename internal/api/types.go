package api

import (
	"encoding/json"

	"github.com/matheus3301/wpdl/internal/config"
	"github.com/matheus3301/wpdl/internal/model"
)

type Empty struct{}

type StatusResponse struct {
	// Session is nil when no session is active.
	Session      *model.Session     `json:"session,omitempty"`
	Auth         model.AuthState    `json:"auth,omitempty"`
	Connectivity model.Connectivity `json:"connectivity,omitempty"`
	DownloadDir  string             `json:"downloadDir"`
	UptimeMs     int64              `json:"uptimeMs"`
}

type SessionRequest struct {
	ID string `json:"id"`
}

type SessionList struct {
	Sessions []model.Session `json:"sessions"`
}

type CreateSessionResponse struct {
	ID string `json:"id"`
}

type AuthStateResponse struct {
	SessionID string          `json:"sessionId"`
	State     model.AuthState `json:"state"`
	Payload   string          `json:"payload,omitempty"`
}

type PhoneRequest struct {
	Phone string `json:"phone"`
}

type CodeRequest struct {
	Code string `json:"code"`
}

type PasswordRequest struct {
	Password string `json:"password"`
}

type ListChatsRequest struct {
	Limit int `json:"limit"`
}

type ChatList struct {
	Chats []model.Chat `json:"chats"`
}

// Proxy is the wire form of config.Proxy.
type Proxy struct {
	Enabled  bool   `json:"enabled"`
	Type     string `json:"type"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// Config converts p to its configuration form.
func (p Proxy) Config() config.Proxy {
	return config.Proxy(p)
}

// ScanRequest dates use the YYYY-MM-DD layout; empty means unbounded.
type ScanRequest struct {
	ChatID    string `json:"chatId"`
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
	Query     string `json:"query,omitempty"`
	Type      string `json:"type,omitempty"`
	Cap       *int   `json:"cap,omitempty"`
}

type ScanResponse struct {
	Epoch uint64 `json:"epoch"`
}

type FileRequest struct {
	FileID int64  `json:"id"`
	Name   string `json:"name,omitempty"`
	Size   int64  `json:"size,omitempty"`
}

type FileIDs struct {
	IDs []int64 `json:"ids"`
}

type DownloadList struct {
	Downloads []model.DownloadTask `json:"downloads"`
}

type DirRequest struct {
	Dir string `json:"dir"`
}

// WatchRequest filters the event stream by kind prefix ("" is everything).
type WatchRequest struct {
	Namespace string `json:"namespace,omitempty"`
}

type EventEnvelope struct {
	ID               string          `json:"id"`
	Kind             string          `json:"kind"`
	OccurredAtUnixMs int64           `json:"occurredAtUnixMs"`
	Payload          json.RawMessage `json:"payload"`
}
