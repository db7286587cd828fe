// Package provider defines the Provider Gateway consumed by the core: history
// pagination, server-side search, chunked file download with push-based
// progress, and the account/auth surface.
package provider

import (
	"context"
	"errors"
	"time"

	"github.com/matheus3301/wpdl/internal/config"
	"github.com/matheus3301/wpdl/internal/model"
)

// ErrUnsupported is returned for operations the provider cannot perform.
var ErrUnsupported = errors.New("operation not supported by provider")

// HistoryRequest pages backward through a chat. FromMessageID 0 means newest.
// Inclusive includes FromMessageID itself in the page.
type HistoryRequest struct {
	ChatID        string
	FromMessageID int64
	Inclusive     bool
	Limit         int
}

// SearchRequest pages backward through server-side search results.
// An empty Type means all media types.
type SearchRequest struct {
	ChatID        string
	Query         string
	Type          model.FileType
	FromMessageID int64
	Limit         int
}

// History is the read side used by scans.
type History interface {
	GetHistoryPage(ctx context.Context, req HistoryRequest) ([]Message, error)
	SearchMessages(ctx context.Context, req SearchRequest) ([]Message, error)
	// GetMessageWindow returns up to older messages before and newer messages
	// after aroundID, plus aroundID itself.
	GetMessageWindow(ctx context.Context, chatID string, aroundID int64, older, newer int) ([]Message, error)
	// ResolveMessageAtOrBeforeDate returns the newest message id dated at or
	// before date, and false when none exists.
	ResolveMessageAtOrBeforeDate(ctx context.Context, chatID string, date time.Time) (int64, bool, error)
}

// Transfers is the file transfer side used by downloads.
type Transfers interface {
	DownloadFile(ctx context.Context, fileID int64, priority int) error
	// CancelDownload stops a transfer without deleting partial bytes.
	CancelDownload(ctx context.Context, fileID int64) error
	// DeleteLocalFile removes cached bytes, partial or complete.
	DeleteLocalFile(ctx context.Context, fileID int64) error
}

// Hooks routes provider pushes. Registering replaces any previous callback.
type Hooks interface {
	OnFileUpdate(fn func(FileInfo))
	OnAuthStateChange(fn func(AuthUpdate))
	OnConnectivityChange(fn func(ConnectivityUpdate))
	OnMessageUpdate(fn func(MessageUpdate))
}

// Account is the login and profile surface.
type Account interface {
	RequestQR(ctx context.Context) error
	SubmitPhone(ctx context.Context, phone string) error
	SubmitCode(ctx context.Context, code string) error
	SubmitPassword(ctx context.Context, password string) error
	Logout(ctx context.Context) error
	Profile(ctx context.Context) (Profile, error)
	ListChats(ctx context.Context, limit int) ([]Chat, error)
	SetProxy(p config.Proxy) error
}

// Gateway is one connection to the provider, scoped to a session directory.
type Gateway interface {
	History
	Transfers
	Hooks
	Account
	// Connect opens the connection. Auth progress is reported through hooks.
	Connect(ctx context.Context) error
	// Close is idempotent.
	Close() error
}

// Factory opens a gateway over the given session's isolated storage directory.
// The returned gateway is not yet connected.
type Factory func(ctx context.Context, sessionID, dir string) (Gateway, error)
