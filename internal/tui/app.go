// Package tui is the terminal front end of wpdl. It drives the daemon over
// its control socket and renders pushed events.
package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/wpdl/internal/api"
	"github.com/matheus3301/wpdl/internal/bus"
	domain "github.com/matheus3301/wpdl/internal/model"
	"github.com/matheus3301/wpdl/internal/tui/keys"
	"github.com/matheus3301/wpdl/internal/tui/model"
	"github.com/matheus3301/wpdl/internal/tui/ui"
	"github.com/matheus3301/wpdl/internal/tui/views"
)

const (
	pageSessions  = "sessions"
	pageChats     = "chats"
	pageMedia     = "media"
	pageDownloads = "downloads"
	pageAuth      = "auth"
	pageHelp      = "help"

	commandTimeout = 30 * time.Second
	reconnectDelay = 2 * time.Second
)

// page is a view that can be shown in the page stack.
type page interface {
	tview.Primitive
	ui.Component
}

// App is the main TUI application shell.
type App struct {
	app      *tview.Application
	client   *api.Client
	vm       *model.ViewModel
	theme    *ui.Theme
	registry *keys.Registry
	flash    *ui.FlashModel

	root     *tview.Flex
	pages    *ui.Pages
	crumbs   *ui.Crumbs
	menu     *ui.Menu
	info     *ui.SessionInfo
	flashBar *ui.FlashBar
	prompt   *ui.Prompt

	sessionsV  *views.SessionsView
	chatsV     *views.ChatsView
	mediaV     *views.MediaView
	downloadsV *views.DownloadsView
	authV      *views.AuthView
	helpV      *views.HelpView
	byName     map[string]page

	// Touched only on the UI goroutine.
	sessionID  string
	loadedAt   time.Time
	scanChatID string

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(c *api.Client) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:        tview.NewApplication(),
		client:     c,
		vm:         model.NewViewModel(c),
		theme:      theme,
		registry:   keys.NewRegistry(),
		flash:      ui.NewFlashModel(),
		pages:      ui.NewPages(),
		crumbs:     ui.NewCrumbs(theme),
		menu:       ui.NewMenu(theme),
		info:       ui.NewSessionInfo(theme),
		flashBar:   ui.NewFlashBar(theme),
		prompt:     ui.NewPrompt(theme),
		sessionsV:  views.NewSessionsView(theme),
		chatsV:     views.NewChatsView(theme),
		mediaV:     views.NewMediaView(theme),
		downloadsV: views.NewDownloadsView(theme),
		authV:      views.NewAuthView(theme),
		helpV:      views.NewHelpView(theme),
		ctx:        ctx,
		cancel:     cancel,
	}
	a.byName = map[string]page{
		pageSessions:  a.sessionsV,
		pageChats:     a.chatsV,
		pageMedia:     a.mediaV,
		pageDownloads: a.downloadsV,
		pageAuth:      a.authV,
		pageHelp:      a.helpV,
	}

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	return a
}

func key(r rune, desc string, fn func()) *keys.Action {
	return &keys.Action{Key: tcell.KeyRune, Rune: r, Label: string(r), Description: desc, Visible: true, Handler: fn}
}

func (a *App) setupBindings() {
	a.registry.AddGlobal(key('s', "Sessions", func() { a.show(pageSessions) }))
	a.registry.AddGlobal(key('c', "Chats", func() { a.show(pageChats) }))
	a.registry.AddGlobal(key('m', "Media", func() { a.show(pageMedia) }))
	a.registry.AddGlobal(key('d', "Downloads", func() { a.show(pageDownloads) }))
	a.registry.AddGlobal(key('?', "Help", func() { a.show(pageHelp) }))
	a.registry.AddGlobal(key('q', "Quit", a.Stop))

	a.registry.AddView(pageSessions, key('n', "New", func() { a.createSession() }))
	a.registry.AddView(pageSessions, key('D', "Remove", func() {
		if id := a.sessionsV.SelectedSession(); id != "" {
			a.removeSession(id)
		}
	}))

	a.registry.AddView(pageAuth, key('r', "QR code", func() {
		a.do("request QR", func(ctx context.Context) error { return a.client.RequestQR(ctx) })
	}))
	a.registry.AddView(pageAuth, key('n', "Phone login", func() { a.ask(ui.PromptPhone) }))
	a.registry.AddView(pageAuth, key('o', "Enter code", func() { a.ask(ui.PromptCode) }))
	a.registry.AddView(pageAuth, key('p', "Password", func() { a.ask(ui.PromptPassword) }))

	a.registry.AddView(pageMedia, &keys.Action{Key: tcell.KeyRune, Rune: ' ', Label: "Space", Description: "Mark", Visible: true, Handler: a.mediaV.ToggleMark})

	a.registry.AddView(pageDownloads, key('p', "Pause", a.onSelectedTask(a.client.PauseDownload)))
	a.registry.AddView(pageDownloads, key('r', "Resume", a.onSelectedTask(a.client.ResumeDownload)))
	a.registry.AddView(pageDownloads, key('x', "Cancel", a.onSelectedTask(a.client.CancelDownload)))
	a.registry.AddView(pageDownloads, key('P', "Pause all", func() { a.do("pause all", a.client.PauseAllDownloads) }))
	a.registry.AddView(pageDownloads, key('R', "Resume all", func() { a.do("resume all", a.client.ResumeAllDownloads) }))
	a.registry.AddView(pageDownloads, key('X', "Cancel all", func() { a.do("cancel all", a.client.CancelAllDownloads) }))
	a.registry.AddView(pageDownloads, key('C', "Clear done", func() {
		a.do("clear", func(ctx context.Context) error {
			ids, err := a.client.ClearCompletedDownloads(ctx)
			if err == nil {
				a.flash.Info(fmt.Sprintf("Cleared %d downloads", len(ids)))
			}
			return err
		})
	}))
}

func (a *App) onSelectedTask(fn func(context.Context, int64) error) func() {
	return func() {
		t, ok := a.downloadsV.SelectedTask()
		if !ok {
			return
		}
		a.do(t.Name, func(ctx context.Context) error { return fn(ctx, t.FileID) })
	}
}

func (a *App) setupCallbacks() {
	a.sessionsV.SetSelectedFunc(func(row, col int) {
		if id := a.sessionsV.SelectedSession(); id != "" {
			a.selectSession(id)
		}
	})
	a.chatsV.SetSelectedFunc(func(row, col int) {
		if c, ok := a.chatsV.SelectedChat(); ok {
			a.openChat(c, "")
		}
	})
	a.mediaV.SetSelectedFunc(func(row, col int) {
		a.download(a.mediaV.Selection())
	})

	a.pages.SetOnChange(func(stack []string) {
		names := make([]string, len(stack))
		for i, n := range stack {
			names[i] = a.byName[n].Name()
		}
		a.crumbs.Update(names)
		a.updateMenu()
	})

	a.prompt.SetOnSubmit(a.onPrompt)
	a.prompt.SetOnCancel(a.closePrompt)
}

func (a *App) setupLayout() {
	for name, p := range a.byName {
		a.pages.AddPage(name, p, true, false)
	}

	header := tview.NewFlex().
		AddItem(a.info, 0, 2, false).
		AddItem(a.menu, 0, 3, false).
		AddItem(ui.NewLogo(a.theme), 20, 0, false)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 7, 0, false).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.flashBar, 1, 0, false)

	a.app.SetRoot(a.root, true)
	a.app.SetInputCapture(a.onKey)
}

func (a *App) onKey(event *tcell.EventKey) *tcell.EventKey {
	// Let text input widgets handle all keys normally.
	if _, ok := a.app.GetFocus().(*tview.InputField); ok {
		return event
	}

	current := a.pages.Current()
	switch {
	case event.Key() == tcell.KeyEscape:
		if current == pageChats || current == pageMedia {
			a.setFilter(current, "")
		}
		if a.pages.Pop() != "" {
			a.focusPage()
		}
		return nil
	case event.Key() == tcell.KeyRune && event.Rune() == ':':
		a.ask(ui.PromptCommand)
		return nil
	case event.Key() == tcell.KeyRune && event.Rune() == '/' && (current == pageChats || current == pageMedia):
		a.ask(ui.PromptFilter)
		return nil
	}

	if a.registry.HandleEvent(current, event) {
		return nil
	}
	return event
}

func (a *App) show(name string) {
	a.pages.Push(name)
	a.focusPage()
}

func (a *App) focusPage() {
	if p, ok := a.byName[a.pages.Current()]; ok {
		a.app.SetFocus(p)
	}
}

func (a *App) updateMenu() {
	current := a.pages.Current()
	var hints []ui.MenuHint
	if p, ok := a.byName[current]; ok {
		hints = append(hints, p.Hints()...)
	}
	a.menu.Update(append(hints, a.registry.Hints(current)...))
}

func (a *App) ask(mode ui.PromptMode) {
	a.prompt.Activate(mode)
	a.root.ResizeItem(a.prompt, 3, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) closePrompt() {
	a.root.ResizeItem(a.prompt, 0, 0)
	a.focusPage()
}

func (a *App) onPrompt(mode ui.PromptMode, text string) {
	a.closePrompt()
	switch mode {
	case ui.PromptCommand:
		a.runCommand(ParseCommand(text))
	case ui.PromptFilter:
		a.setFilter(a.pages.Current(), text)
	case ui.PromptPhone:
		a.do("submit phone", func(ctx context.Context) error { return a.client.SubmitPhone(ctx, text) })
	case ui.PromptCode:
		a.do("submit code", func(ctx context.Context) error { return a.client.SubmitCode(ctx, text) })
	case ui.PromptPassword:
		a.do("submit password", func(ctx context.Context) error { return a.client.SubmitPassword(ctx, text) })
	}
}

func (a *App) setFilter(name, text string) {
	switch name {
	case pageChats:
		a.chatsV.SetFilter(text)
	case pageMedia:
		a.mediaV.SetFilter(text)
	}
}

func (a *App) runCommand(cmd Command) {
	switch cmd.Name {
	case "q", "quit":
		a.Stop()
	case "help", "h":
		a.show(pageHelp)
	case "sessions":
		a.show(pageSessions)
	case "chats":
		a.show(pageChats)
	case "downloads", "dl":
		a.show(pageDownloads)
	case "new":
		a.createSession()
	case "session":
		a.selectSession(cmd.Args)
	case "rm":
		a.removeSession(cmd.Args)
	case "logout":
		a.do("logout", a.client.Logout)
	case "dir":
		dir := cmd.Path()
		a.do("set directory", func(ctx context.Context) error {
			err := a.client.SetDownloadDir(ctx, dir)
			if err == nil {
				a.flash.Info("Saving to " + dir)
				err = a.vm.LoadStatus(ctx)
			}
			return err
		})
	case "proxy":
		p, err := api.ParseProxy(cmd.Args)
		if err != nil {
			a.flash.Err("proxy", err)
			return
		}
		a.do("set proxy", func(ctx context.Context) error { return a.client.SetProxy(ctx, p) })
	case "scan":
		if a.scanChatID == "" {
			a.flash.Warn("Open a chat first")
			return
		}
		for _, c := range a.vm.Chats() {
			if c.ID == a.scanChatID {
				a.openChat(c, cmd.Args)
				return
			}
		}
	default:
		a.flash.Warn("Unknown command: " + cmd.Name)
	}
}

// do runs fn off the UI goroutine and reports a failure in the flash bar.
func (a *App) do(what string, fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, commandTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			a.flash.Err(what, err)
		}
	}()
}

func (a *App) createSession() {
	a.do("create session", func(ctx context.Context) error {
		id, err := a.client.CreateSession(ctx)
		if err != nil {
			return err
		}
		a.flash.Info("Created session " + id)
		return nil
	})
}

func (a *App) selectSession(id string) {
	a.do("switch session", func(ctx context.Context) error {
		return a.client.SelectSession(ctx, id)
	})
}

func (a *App) removeSession(id string) {
	a.do("remove session", func(ctx context.Context) error {
		if err := a.client.RemoveSession(ctx, id); err != nil {
			return err
		}
		a.flash.Info("Removed session " + id)
		return nil
	})
}

func (a *App) openChat(c domain.Chat, args string) {
	req, err := api.ParseScanArgs(c.ID, args)
	if err != nil {
		a.flash.Err("scan", err)
		return
	}
	a.scanChatID = c.ID
	a.mediaV.SetChat(c.Title)
	a.show(pageMedia)
	a.do("scan", func(ctx context.Context) error { return a.vm.StartScan(ctx, req) })
}

func (a *App) download(files []domain.FileDescriptor) {
	if len(files) == 0 {
		return
	}
	a.do("download", func(ctx context.Context) error {
		for _, f := range files {
			if f.State == domain.Downloaded {
				continue
			}
			if err := a.client.StartDownload(ctx, f.FileID, f.Name, f.Size); err != nil {
				return fmt.Errorf("%s: %w", f.Name, err)
			}
		}
		a.flash.Info(fmt.Sprintf("Queued %d files", len(files)))
		return nil
	})
}

// Run starts the TUI application.
func (a *App) Run() error {
	a.pages.Reset(pageSessions)
	a.focusPage()

	go a.reload()
	go a.watchEvents()
	go a.refreshLoop()

	return a.app.Run()
}

// reload refetches everything after startup or a session switch.
func (a *App) reload() {
	ctx, cancel := context.WithTimeout(a.ctx, commandTimeout)
	defer cancel()

	if err := a.vm.LoadStatus(ctx); err != nil {
		a.flash.Err("status", err)
		return
	}
	if err := a.vm.LoadSessions(ctx); err != nil {
		a.flash.Err("sessions", err)
	}
	st := a.vm.Status()
	if st == nil || st.Session == nil {
		a.app.QueueUpdateDraw(func() {
			a.sessionID = ""
			a.pages.Reset(pageSessions)
			a.focusPage()
		})
		return
	}
	_ = a.vm.LoadAuth(ctx)
	_ = a.vm.LoadDownloads(ctx)
	if st.Auth == domain.AuthReady {
		if err := a.vm.LoadChats(ctx); err != nil {
			a.flash.Err("chats", err)
		}
	}
	a.app.QueueUpdateDraw(func() {
		a.sessionID = st.Session.ID
		a.loadedAt = time.Now()
		if st.Auth == domain.AuthReady {
			a.pages.Reset(pageChats)
		} else {
			a.pages.Reset(pageAuth)
		}
		a.focusPage()
	})
}

// watchEvents follows the daemon event stream, reconnecting until the app stops.
func (a *App) watchEvents() {
	for a.ctx.Err() == nil {
		stream, err := a.client.Watch(a.ctx, "")
		if err == nil {
			err = a.consume(stream)
		}
		if a.ctx.Err() != nil {
			return
		}
		a.flash.Warn("Event stream lost: " + err.Error())
		select {
		case <-time.After(reconnectDelay):
		case <-a.ctx.Done():
			return
		}
		go a.reload()
	}
}

func (a *App) consume(stream *api.EventStream) error {
	for {
		env, err := stream.Recv()
		if err != nil {
			return err
		}
		if err := a.vm.Apply(env); err != nil {
			a.flash.Warn(err.Error())
			continue
		}
		a.react(bus.Kind(env.Kind))
	}
}

// react follows up on events that change what should be loaded or shown.
func (a *App) react(kind bus.Kind) {
	switch kind {
	case bus.KindSessionsList:
		active := ""
		for _, s := range a.vm.Sessions() {
			if s.Active {
				active = s.ID
			}
		}
		a.app.QueueUpdate(func() {
			if active != a.sessionID {
				a.sessionID = active
				a.scanChatID = ""
				a.vm.ResetSession()
				go a.reload()
			}
		})
	case bus.KindAuthState:
		auth := a.vm.Auth()
		a.app.QueueUpdate(func() {
			if auth.SessionID != a.sessionID {
				return
			}
			if auth.State == domain.AuthReady {
				if a.pages.Current() == pageAuth {
					a.pages.Reset(pageChats)
					a.focusPage()
				}
				go func() { _ = a.vm.LoadChats(a.ctx) }()
				return
			}
			if a.pages.Current() != pageAuth {
				a.pages.Reset(pageAuth)
				a.focusPage()
			}
		})
	case bus.KindChatsChanged:
		go func() { _ = a.vm.LoadChats(a.ctx) }()
	}
}

// refreshLoop redraws tables when the view model changes and the header
// on every tick, so flashes expire and the uptime moves.
func (a *App) refreshLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-a.vm.RefreshCh():
			a.app.QueueUpdateDraw(a.render)
		case <-a.flash.Watch():
			a.app.QueueUpdateDraw(a.renderHeader)
		case <-ticker.C:
			a.app.QueueUpdateDraw(a.renderHeader)
		case <-a.ctx.Done():
			return
		}
	}
}

// render copies view model snapshots into the widgets. UI goroutine only.
func (a *App) render() {
	a.sessionsV.Update(a.vm.Sessions())
	a.chatsV.Update(a.vm.Chats())
	a.mediaV.Update(a.vm.Scan())
	a.downloadsV.Update(a.vm.Downloads())
	auth := a.vm.Auth()
	a.authV.ShowState(auth.State, auth.Payload)
	a.renderHeader()
}

func (a *App) renderHeader() {
	a.flashBar.Update(a.flash.Get())

	st := a.vm.Status()
	if st == nil || st.Session == nil {
		a.info.Update(nil)
		return
	}
	uptime := time.Duration(st.UptimeMs) * time.Millisecond
	if !a.loadedAt.IsZero() {
		uptime += time.Since(a.loadedAt)
	}
	a.info.Update(&ui.SessionData{
		Session:      st.Session.ID,
		Account:      st.Session.DisplayName(),
		Phone:        st.Session.Phone,
		Auth:         string(st.Auth),
		Connectivity: string(st.Connectivity),
		DownloadDir:  st.DownloadDir,
		Downloads:    a.vm.ActiveDownloads(),
		Uptime:       uptime,
	})
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
