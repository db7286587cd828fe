package wa

import (
	"context"
	"fmt"
	"os"
	stdsync "sync"
	"time"

	"github.com/matheus3301/wpdl/internal/config"
	"github.com/matheus3301/wpdl/internal/model"
	"github.com/matheus3301/wpdl/internal/provider"
	"github.com/matheus3301/wpdl/internal/session"
	"github.com/matheus3301/wpdl/internal/store"
	"github.com/matheus3301/wpdl/internal/sync"
	"go.mau.fi/whatsmeow"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"

	_ "github.com/mattn/go-sqlite3"
)

// Gateway is a provider.Gateway over one whatsmeow device. History is served
// from the session's local mirror, which the sync engine fills from live and
// history sync events.
type Gateway struct {
	id        string
	paths     session.Paths
	client    *whatsmeow.Client
	media     mediaFetcher
	container *sqlstore.Container
	mirror    *store.Mirror
	engine    *sync.Engine
	logger    *zap.Logger

	// ctx bounds background work; cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	mu             stdsync.Mutex
	onFile         func(provider.FileInfo)
	onAuth         func(provider.AuthUpdate)
	onConnectivity func(provider.ConnectivityUpdate)
	onMessage      func(provider.MessageUpdate)
	downloads      map[int64]*transfer
	pairing        bool
	// progressEvery throttles byte progress pushes of a transfer.
	progressEvery time.Duration

	wg        stdsync.WaitGroup
	closeOnce stdsync.Once
	closeErr  error
}

var _ provider.Gateway = (*Gateway)(nil)

// NewFactory returns a provider.Factory opening whatsmeow gateways.
func NewFactory(logger *zap.Logger) provider.Factory {
	return func(ctx context.Context, sessionID, dir string) (provider.Gateway, error) {
		return Open(ctx, sessionID, dir, logger)
	}
}

// Open prepares the device store and mirror in dir. The gateway is not
// connected until Connect.
func Open(ctx context.Context, sessionID, dir string, logger *zap.Logger) (*Gateway, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("session", sessionID))
	paths := session.PathsIn(dir)
	if err := os.MkdirAll(paths.Files, 0700); err != nil {
		return nil, fmt.Errorf("create files dir: %w", err)
	}

	// Set device name shown on the phone's linked devices list.
	wastore.SetOSInfo("wpdl", [3]uint32{0, 1, 0})

	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", paths.SessionDB),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create session store: %w", err)
	}
	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("get device store: %w", err)
	}
	mirror, err := store.OpenMirror(paths.MirrorDB)
	if err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("open mirror: %w", err)
	}

	g := &Gateway{
		id:            sessionID,
		paths:         paths,
		client:        whatsmeow.NewClient(deviceStore, nil),
		container:     container,
		mirror:        mirror,
		logger:        logger,
		downloads:     make(map[int64]*transfer),
		progressEvery: 250 * time.Millisecond,
	}
	g.media = g.client
	g.ctx, g.cancel = context.WithCancel(context.Background())
	g.engine = sync.NewEngine(mirror, func(jid string) int { return int(ChatKindOf(jid)) }, logger)
	g.engine.OnIngested(func(chatJID string, id int64) {
		g.pushMessage(provider.MessageUpdate{ChatID: chatJID, MessageID: id})
	})
	g.client.AddEventHandler(NewEventHandler(g).Handle)
	return g, nil
}

// IsLoggedIn returns whether the device has valid credentials.
func (g *Gateway) IsLoggedIn() bool {
	return g.client.Store.ID != nil
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

func (g *Gateway) pushFile(fi provider.FileInfo) {
	g.mu.Lock()
	fn := g.onFile
	g.mu.Unlock()
	if fn != nil {
		fn(fi)
	}
}

func (g *Gateway) pushAuth(u provider.AuthUpdate) {
	g.mu.Lock()
	fn := g.onAuth
	g.mu.Unlock()
	if fn != nil {
		fn(u)
	}
}

func (g *Gateway) pushConnectivity(u provider.ConnectivityUpdate) {
	g.mu.Lock()
	fn := g.onConnectivity
	g.mu.Unlock()
	if fn != nil {
		fn(u)
	}
}

func (g *Gateway) pushMessage(u provider.MessageUpdate) {
	g.mu.Lock()
	fn := g.onMessage
	g.mu.Unlock()
	if fn != nil {
		fn(u)
	}
}

// Connect starts ingestion and, for a paired device, opens the connection.
// An unpaired device reports logged_out and waits for RequestQR or
// SubmitPhone.
func (g *Gateway) Connect(ctx context.Context) error {
	g.engine.Start(g.ctx)
	if !g.IsLoggedIn() {
		g.pushAuth(provider.AuthUpdate{State: model.AuthLoggedOut})
		return nil
	}
	g.logger.Info("connecting to WhatsApp")
	g.pushConnectivity(provider.ConnectivityUpdate{State: model.ConnConnecting})
	if err := g.client.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

// Close disconnects, stops background work and releases the databases.
func (g *Gateway) Close() error {
	g.closeOnce.Do(func() {
		g.logger.Info("closing WhatsApp gateway")
		g.cancel()
		g.client.Disconnect()
		g.engine.Stop()
		g.wg.Wait()
		if err := g.mirror.Close(); err != nil {
			g.closeErr = err
		}
		if err := g.container.Close(); err != nil && g.closeErr == nil {
			g.closeErr = err
		}
	})
	return g.closeErr
}

func (g *Gateway) isActive(id int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.downloads[id]
	return ok
}

func (g *Gateway) convert(msgs []store.Message) []provider.Message {
	out := make([]provider.Message, len(msgs))
	for i := range msgs {
		out[i] = toProvider(&msgs[i], g.isActive(msgs[i].ID))
	}
	return out
}

func (g *Gateway) GetHistoryPage(ctx context.Context, req provider.HistoryRequest) ([]provider.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	msgs, err := g.mirror.HistoryPage(store.Page{
		ChatJID:   req.ChatID,
		From:      req.FromMessageID,
		Inclusive: req.Inclusive,
		Limit:     req.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("history page: %w", err)
	}
	return g.convert(msgs), nil
}

func (g *Gateway) SearchMessages(ctx context.Context, req provider.SearchRequest) ([]provider.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	msgs, err := g.mirror.Search(store.Page{
		ChatJID: req.ChatID,
		From:    req.FromMessageID,
		Limit:   req.Limit,
	}, req.Query, mediaTypesFor(req.Type))
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return g.convert(msgs), nil
}

func (g *Gateway) GetMessageWindow(ctx context.Context, chatID string, aroundID int64, older, newer int) ([]provider.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	msgs, err := g.mirror.Window(chatID, aroundID, older, newer)
	if err != nil {
		return nil, err
	}
	return g.convert(msgs), nil
}

func (g *Gateway) ResolveMessageAtOrBeforeDate(ctx context.Context, chatID string, date time.Time) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	return g.mirror.ResolveAtOrBefore(chatID, date.UnixMilli())
}

func (g *Gateway) ListChats(ctx context.Context, limit int) ([]provider.Chat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	chats, err := g.mirror.ListChats(limit)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	out := make([]provider.Chat, len(chats))
	for i, c := range chats {
		out[i] = chatToProvider(c)
	}
	return out, nil
}

// SetProxy routes the websocket and media traffic through p. A disabled
// proxy is cleared. Takes effect on the next connection.
func (g *Gateway) SetProxy(p config.Proxy) error {
	if !p.Enabled {
		return g.client.SetProxyAddress("")
	}
	return g.client.SetProxyAddress(ProxyURL(p))
}

// syncContacts mirrors the device store's contacts and LID mappings.
func (g *Gateway) syncContacts(ctx context.Context) {
	all, err := g.client.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		g.logger.Warn("failed to get contacts from device store", zap.Error(err))
		return
	}
	contacts := make([]store.Contact, 0, len(all))
	var mappings []store.LIDMapping
	for jid, info := range all {
		normalized := jid.ToNonAD()
		contacts = append(contacts, store.Contact{
			JID:      normalized.String(),
			Name:     info.FullName,
			PushName: info.PushName,
		})
		if normalized.Server == types.DefaultUserServer && g.client.Store.LIDs != nil {
			lid, err := g.client.Store.LIDs.GetLIDForPN(ctx, normalized)
			if err == nil && !lid.IsEmpty() {
				mappings = append(mappings, store.LIDMapping{LID: lid.User, PN: normalized.User})
			}
		}
	}
	if err := g.mirror.BulkUpsertContacts(contacts); err != nil {
		g.logger.Warn("failed to store contacts", zap.Error(err))
		return
	}
	if _, err := g.engine.Reconciler().ReconcileLIDs(mappings); err != nil {
		g.logger.Warn("failed to reconcile LID chats", zap.Error(err))
	}
}

// resolveLID resolves a LID JID to its phone number JID. Returns the
// original JID if it is not a LID or resolution fails.
func (g *Gateway) resolveLID(ctx context.Context, jid types.JID) types.JID {
	if jid.Server != types.HiddenUserServer {
		return jid
	}
	if g.client.Store == nil || g.client.Store.LIDs == nil {
		return jid
	}
	pn, err := g.client.Store.LIDs.GetPNForLID(ctx, jid)
	if err != nil || pn.IsEmpty() {
		return jid
	}
	return pn
}
