// Package model mirrors daemon state for the TUI. It is fed by the event
// stream and by command replies, and read by the views on the UI goroutine.
package model

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/matheus3301/wpdl/internal/api"
	"github.com/matheus3301/wpdl/internal/bus"
	domain "github.com/matheus3301/wpdl/internal/model"
)

const chatLimit = 200

// Scan is the state of the latest history scan the TUI knows about.
type Scan struct {
	Epoch   uint64
	Files   []domain.FileDescriptor
	Scanned int
	Found   int
	Active  bool
	Err     string
}

// ViewModel caches daemon state and signals UI refreshes.
type ViewModel struct {
	mu sync.RWMutex

	client    *api.Client
	status    *api.StatusResponse
	sessions  []domain.Session
	auth      api.AuthStateResponse
	chats     []domain.Chat
	scan      Scan
	downloads []domain.DownloadTask

	refreshCh chan struct{}
}

// NewViewModel creates a view model backed by the daemon client. c may be nil
// when the model is only fed through Apply.
func NewViewModel(c *api.Client) *ViewModel {
	return &ViewModel{
		client:    c,
		refreshCh: make(chan struct{}, 1),
	}
}

// RefreshCh returns the channel that signals UI refresh.
func (vm *ViewModel) RefreshCh() <-chan struct{} {
	return vm.refreshCh
}

func (vm *ViewModel) signalRefresh() {
	select {
	case vm.refreshCh <- struct{}{}:
	default:
	}
}

// LoadStatus fetches the active session status.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	resp, err := vm.client.Status(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.status = resp
	if resp.Session != nil {
		vm.auth.SessionID = resp.Session.ID
		vm.auth.State = resp.Auth
	}
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// LoadSessions fetches the session list.
func (vm *ViewModel) LoadSessions(ctx context.Context) error {
	resp, err := vm.client.ListSessions(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.sessions = resp.Sessions
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// LoadAuth fetches the current auth state, including a pending QR payload.
func (vm *ViewModel) LoadAuth(ctx context.Context) error {
	resp, err := vm.client.AuthState(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.auth = *resp
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// LoadChats fetches the chat list.
func (vm *ViewModel) LoadChats(ctx context.Context) error {
	resp, err := vm.client.ListChats(ctx, chatLimit)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.chats = resp.Chats
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// LoadDownloads fetches the download table.
func (vm *ViewModel) LoadDownloads(ctx context.Context) error {
	resp, err := vm.client.ListDownloads(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.downloads = resp.Downloads
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// StartScan starts a history scan and adopts its epoch.
func (vm *ViewModel) StartScan(ctx context.Context, req api.ScanRequest) error {
	epoch, err := vm.client.StartScan(ctx, req)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.adoptEpoch(epoch)
	vm.scan.Active = true
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// adoptEpoch resets the scan results when epoch is newer. Batches of a new
// scan can arrive before the StartScan reply, so both paths call it.
func (vm *ViewModel) adoptEpoch(epoch uint64) bool {
	switch {
	case epoch < vm.scan.Epoch:
		return false
	case epoch > vm.scan.Epoch:
		vm.scan = Scan{Epoch: epoch, Active: true}
	}
	return true
}

// Apply folds one pushed event into the cached state.
func (vm *ViewModel) Apply(env *api.EventEnvelope) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	switch bus.Kind(env.Kind) {
	case bus.KindSessionsList:
		var ev bus.SessionsList
		if err := decode(env, &ev); err != nil {
			return err
		}
		vm.sessions = ev.Sessions

	case bus.KindAuthState:
		var ev bus.AuthState
		if err := decode(env, &ev); err != nil {
			return err
		}
		vm.auth = api.AuthStateResponse{SessionID: ev.SessionID, State: ev.State, Payload: ev.Payload}
		if vm.status != nil {
			vm.status.Auth = ev.State
		}

	case bus.KindConnectivityState:
		var ev bus.ConnectivityState
		if err := decode(env, &ev); err != nil {
			return err
		}
		if vm.status != nil {
			vm.status.Connectivity = ev.State
		}

	case bus.KindChatsList:
		var ev bus.ChatsList
		if err := decode(env, &ev); err != nil {
			return err
		}
		vm.chats = ev.Chats

	case bus.KindChatsChanged:
		// The list is refetched by the caller.

	case bus.KindScanBatch:
		var ev bus.ScanBatch
		if err := decode(env, &ev); err != nil {
			return err
		}
		if vm.adoptEpoch(ev.Epoch) {
			vm.scan.Files = append(vm.scan.Files, ev.Files...)
		}

	case bus.KindScanProgress:
		var ev bus.ScanProgress
		if err := decode(env, &ev); err != nil {
			return err
		}
		if vm.adoptEpoch(ev.Epoch) {
			vm.scan.Scanned = ev.Scanned
			vm.scan.Found = ev.Found
			vm.scan.Active = ev.Active
		}

	case bus.KindScanEnded:
		var ev bus.ScanEnded
		if err := decode(env, &ev); err != nil {
			return err
		}
		if ev.Epoch == vm.scan.Epoch {
			vm.scan.Active = false
			vm.scan.Err = ev.Error
		}

	case bus.KindDownloadProgress:
		var ev bus.DownloadProgress
		if err := decode(env, &ev); err != nil {
			return err
		}
		vm.upsertDownload(ev.Task)
		vm.markFile(ev.Task.FileID, domain.Downloading, "")

	case bus.KindDownloadTerminal:
		var ev bus.DownloadTerminal
		if err := decode(env, &ev); err != nil {
			return err
		}
		for i := range vm.downloads {
			if vm.downloads[i].FileID == ev.FileID {
				vm.downloads[i].State = ev.Status
				vm.downloads[i].Path = ev.Path
				vm.downloads[i].Error = ev.Error
				vm.downloads[i].Speed = 0
				if ev.Status == domain.DownloadCompleted {
					vm.downloads[i].Downloaded = vm.downloads[i].Size
				}
			}
		}
		if ev.Status == domain.DownloadCompleted {
			vm.markFile(ev.FileID, domain.Downloaded, ev.Path)
		} else {
			vm.markFile(ev.FileID, domain.NotDownloaded, "")
		}

	case bus.KindDownloadsCleared:
		var ev bus.DownloadsCleared
		if err := decode(env, &ev); err != nil {
			return err
		}
		cleared := make(map[int64]bool, len(ev.FileIDs))
		for _, id := range ev.FileIDs {
			cleared[id] = true
		}
		kept := vm.downloads[:0]
		for _, t := range vm.downloads {
			if !cleared[t.FileID] {
				kept = append(kept, t)
			}
		}
		vm.downloads = kept

	default:
		return fmt.Errorf("unknown event kind %q", env.Kind)
	}

	vm.signalRefresh()
	return nil
}

func decode(env *api.EventEnvelope, v any) error {
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("decode %s: %w", env.Kind, err)
	}
	return nil
}

func (vm *ViewModel) upsertDownload(t domain.DownloadTask) {
	for i := range vm.downloads {
		if vm.downloads[i].FileID == t.FileID {
			vm.downloads[i] = t
			return
		}
	}
	vm.downloads = append(vm.downloads, t)
}

func (vm *ViewModel) markFile(id int64, state domain.LocalState, path string) {
	for i := range vm.scan.Files {
		if vm.scan.Files[i].FileID == id {
			vm.scan.Files[i].State = state
			if path != "" {
				vm.scan.Files[i].LocalPath = path
			}
		}
	}
}

// ResetSession drops per-session state after a switch.
func (vm *ViewModel) ResetSession() {
	vm.mu.Lock()
	vm.chats = nil
	vm.downloads = nil
	vm.scan = Scan{Epoch: vm.scan.Epoch}
	vm.auth = api.AuthStateResponse{}
	vm.mu.Unlock()
	vm.signalRefresh()
}

// Status returns a snapshot of the session status, or nil before the first load.
func (vm *ViewModel) Status() *api.StatusResponse {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if vm.status == nil {
		return nil
	}
	s := *vm.status
	return &s
}

// Sessions returns a snapshot of the known sessions.
func (vm *ViewModel) Sessions() []domain.Session {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return append([]domain.Session(nil), vm.sessions...)
}

// Auth returns the last known auth state.
func (vm *ViewModel) Auth() api.AuthStateResponse {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.auth
}

// Chats returns a snapshot of the chat list.
func (vm *ViewModel) Chats() []domain.Chat {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return append([]domain.Chat(nil), vm.chats...)
}

// Scan returns a snapshot of the latest scan.
func (vm *ViewModel) Scan() Scan {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	s := vm.scan
	s.Files = append([]domain.FileDescriptor(nil), vm.scan.Files...)
	return s
}

// Downloads returns a snapshot of the download table.
func (vm *ViewModel) Downloads() []domain.DownloadTask {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return append([]domain.DownloadTask(nil), vm.downloads...)
}

// ActiveDownloads counts tasks that are not in a terminal state.
func (vm *ViewModel) ActiveDownloads() int {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	n := 0
	for _, t := range vm.downloads {
		if !t.State.Terminal() {
			n++
		}
	}
	return n
}
