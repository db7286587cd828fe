// Package providertest provides an in-memory provider.Gateway for tests.
package providertest

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/wpdl/internal/config"
	"github.com/matheus3301/wpdl/internal/model"
	"github.com/matheus3301/wpdl/internal/provider"
)

var errUnknownMessage = errors.New("providertest: unknown message")

// Call records one gateway invocation.
type Call struct {
	Method   string
	FileID   int64
	Priority int
	Arg      string
}

// Gateway is a scripted provider.Gateway. Messages are served from an
// in-memory history; the exported error fields inject failures.
type Gateway struct {
	// Error injection, read at call time.
	ConnectErr  error
	CloseErr    error
	HistoryErr  error
	SearchErr   error
	WindowErr   error
	DownloadErr error
	CancelErr   error
	DeleteErr   error
	LogoutErr   error

	// BeforePage, when set, runs before every history or search page is served.
	// ctx is the caller's context; n counts pages served so far across both
	// modes, starting at 0.
	BeforePage func(ctx context.Context, n int)
	// OnClose, when set, runs at the start of Close.
	OnClose func()

	ProfileValue provider.Profile
	Chats        []provider.Chat

	mu        sync.Mutex
	messages  map[string][]provider.Message
	calls     []Call
	pages     int
	connected bool
	closed    bool
	proxy     config.Proxy

	onFile         func(provider.FileInfo)
	onAuth         func(provider.AuthUpdate)
	onConnectivity func(provider.ConnectivityUpdate)
	onMessage      func(provider.MessageUpdate)
}

var _ provider.Gateway = (*Gateway)(nil)

// New creates an empty gateway.
func New() *Gateway {
	return &Gateway{messages: make(map[string][]provider.Message)}
}

// Add appends messages to their chats' histories.
func (g *Gateway) Add(msgs ...provider.Message) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, m := range msgs {
		h := append(g.messages[m.ChatID], m)
		slices.SortFunc(h, func(a, b provider.Message) int { return cmp.Compare(a.ID, b.ID) })
		g.messages[m.ChatID] = h
	}
}

// Calls returns a snapshot of recorded calls.
func (g *Gateway) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.calls)
}

// CallsOf returns recorded calls of one method.
func (g *Gateway) CallsOf(method string) []Call {
	var out []Call
	for _, c := range g.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Connected reports whether Connect succeeded and Close was not called.
func (g *Gateway) Connected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connected && !g.closed
}

// Closed reports whether Close was called.
func (g *Gateway) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// Proxy returns the last proxy applied.
func (g *Gateway) Proxy() config.Proxy {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.proxy
}

func (g *Gateway) record(c Call) {
	g.mu.Lock()
	g.calls = append(g.calls, c)
	g.mu.Unlock()
}

func (g *Gateway) beforePage(ctx context.Context) {
	g.mu.Lock()
	n := g.pages
	g.pages++
	hook := g.BeforePage
	g.mu.Unlock()
	if hook != nil {
		hook(ctx, n)
	}
}

// PushFile delivers a file update to the registered hook.
func (g *Gateway) PushFile(fi provider.FileInfo) {
	g.mu.Lock()
	fn := g.onFile
	g.mu.Unlock()
	if fn != nil {
		fn(fi)
	}
}

// PushAuth delivers an auth update to the registered hook.
func (g *Gateway) PushAuth(u provider.AuthUpdate) {
	g.mu.Lock()
	fn := g.onAuth
	g.mu.Unlock()
	if fn != nil {
		fn(u)
	}
}

// PushConnectivity delivers a connectivity update to the registered hook.
func (g *Gateway) PushConnectivity(u provider.ConnectivityUpdate) {
	g.mu.Lock()
	fn := g.onConnectivity
	g.mu.Unlock()
	if fn != nil {
		fn(u)
	}
}

// PushMessage delivers a message update to the registered hook.
func (g *Gateway) PushMessage(u provider.MessageUpdate) {
	g.mu.Lock()
	fn := g.onMessage
	g.mu.Unlock()
	if fn != nil {
		fn(u)
	}
}

func (g *Gateway) Connect(ctx context.Context) error {
	g.record(Call{Method: "Connect"})
	if g.ConnectErr != nil {
		return g.ConnectErr
	}
	g.mu.Lock()
	g.connected = true
	g.mu.Unlock()
	return nil
}

func (g *Gateway) Close() error {
	g.record(Call{Method: "Close"})
	if g.OnClose != nil {
		g.OnClose()
	}
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	return g.CloseErr
}

// before returns the messages of chat older than from (or at from when
// inclusive), newest first.
func (g *Gateway) before(chatID string, from int64, inclusive bool) []provider.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	h := g.messages[chatID]
	var out []provider.Message
	for i := len(h) - 1; i >= 0; i-- {
		id := h[i].ID
		if from != 0 && (id > from || (id == from && !inclusive)) {
			continue
		}
		out = append(out, h[i])
	}
	return out
}

func (g *Gateway) GetHistoryPage(ctx context.Context, req provider.HistoryRequest) ([]provider.Message, error) {
	g.record(Call{Method: "GetHistoryPage", Arg: req.ChatID})
	g.beforePage(ctx)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if g.HistoryErr != nil {
		return nil, g.HistoryErr
	}
	msgs := g.before(req.ChatID, req.FromMessageID, req.Inclusive)
	if len(msgs) > req.Limit {
		msgs = msgs[:req.Limit]
	}
	return msgs, nil
}

func (g *Gateway) SearchMessages(ctx context.Context, req provider.SearchRequest) ([]provider.Message, error) {
	g.record(Call{Method: "SearchMessages", Arg: req.Query})
	g.beforePage(ctx)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if g.SearchErr != nil {
		return nil, g.SearchErr
	}
	var out []provider.Message
	for _, m := range g.before(req.ChatID, req.FromMessageID, false) {
		if !matches(m, req.Query, req.Type) {
			continue
		}
		out = append(out, m)
		if len(out) == req.Limit {
			break
		}
	}
	return out, nil
}

func matches(m provider.Message, query string, typ model.FileType) bool {
	if typ != "" && typeOf(m.Content) != typ {
		return false
	}
	if query == "" {
		return true
	}
	q := strings.ToLower(query)
	if strings.Contains(strings.ToLower(m.Text), q) {
		return true
	}
	return strings.Contains(strings.ToLower(fileName(m.Content)), q)
}

func typeOf(c provider.Content) model.FileType {
	switch c.(type) {
	case provider.Photo:
		return model.FileImage
	case provider.Video:
		return model.FileVideo
	case provider.Document:
		return model.FileDocument
	case provider.Audio:
		return model.FileMusic
	}
	return ""
}

func fileName(c provider.Content) string {
	switch v := c.(type) {
	case provider.Video:
		return v.FileName
	case provider.Document:
		return v.FileName
	case provider.Audio:
		return v.FileName
	}
	return ""
}

func (g *Gateway) GetMessageWindow(ctx context.Context, chatID string, aroundID int64, older, newer int) ([]provider.Message, error) {
	g.record(Call{Method: "GetMessageWindow", Arg: chatID})
	if g.WindowErr != nil {
		return nil, g.WindowErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	h := g.messages[chatID]
	idx := slices.IndexFunc(h, func(m provider.Message) bool { return m.ID == aroundID })
	if idx < 0 {
		return nil, errUnknownMessage
	}
	lo := max(idx-older, 0)
	hi := min(idx+newer+1, len(h))
	return slices.Clone(h[lo:hi]), nil
}

func (g *Gateway) ResolveMessageAtOrBeforeDate(ctx context.Context, chatID string, date time.Time) (int64, bool, error) {
	g.record(Call{Method: "ResolveMessageAtOrBeforeDate", Arg: chatID})
	g.mu.Lock()
	defer g.mu.Unlock()
	h := g.messages[chatID]
	for i := len(h) - 1; i >= 0; i-- {
		if h[i].Date <= date.Unix() {
			return h[i].ID, true, nil
		}
	}
	return 0, false, nil
}

func (g *Gateway) DownloadFile(ctx context.Context, fileID int64, priority int) error {
	g.record(Call{Method: "DownloadFile", FileID: fileID, Priority: priority})
	return g.DownloadErr
}

func (g *Gateway) CancelDownload(ctx context.Context, fileID int64) error {
	g.record(Call{Method: "CancelDownload", FileID: fileID})
	return g.CancelErr
}

func (g *Gateway) DeleteLocalFile(ctx context.Context, fileID int64) error {
	g.record(Call{Method: "DeleteLocalFile", FileID: fileID})
	return g.DeleteErr
}

func (g *Gateway) OnFileUpdate(fn func(provider.FileInfo)) {
	g.mu.Lock()
	g.onFile = fn
	g.mu.Unlock()
}

func (g *Gateway) OnAuthStateChange(fn func(provider.AuthUpdate)) {
	g.mu.Lock()
	g.onAuth = fn
	g.mu.Unlock()
}

func (g *Gateway) OnConnectivityChange(fn func(provider.ConnectivityUpdate)) {
	g.mu.Lock()
	g.onConnectivity = fn
	g.mu.Unlock()
}

func (g *Gateway) OnMessageUpdate(fn func(provider.MessageUpdate)) {
	g.mu.Lock()
	g.onMessage = fn
	g.mu.Unlock()
}

func (g *Gateway) RequestQR(ctx context.Context) error {
	g.record(Call{Method: "RequestQR"})
	return nil
}

func (g *Gateway) SubmitPhone(ctx context.Context, phone string) error {
	g.record(Call{Method: "SubmitPhone", Arg: phone})
	return nil
}

func (g *Gateway) SubmitCode(ctx context.Context, code string) error {
	g.record(Call{Method: "SubmitCode", Arg: code})
	return provider.ErrUnsupported
}

func (g *Gateway) SubmitPassword(ctx context.Context, password string) error {
	g.record(Call{Method: "SubmitPassword"})
	return provider.ErrUnsupported
}

func (g *Gateway) Logout(ctx context.Context) error {
	g.record(Call{Method: "Logout"})
	return g.LogoutErr
}

func (g *Gateway) Profile(ctx context.Context) (provider.Profile, error) {
	g.record(Call{Method: "Profile"})
	return g.ProfileValue, nil
}

func (g *Gateway) ListChats(ctx context.Context, limit int) ([]provider.Chat, error) {
	g.record(Call{Method: "ListChats"})
	chats := g.Chats
	if limit > 0 && len(chats) > limit {
		chats = chats[:limit]
	}
	return slices.Clone(chats), nil
}

func (g *Gateway) SetProxy(p config.Proxy) error {
	g.record(Call{Method: "SetProxy", Arg: p.Host})
	g.mu.Lock()
	g.proxy = p
	g.mu.Unlock()
	return nil
}
