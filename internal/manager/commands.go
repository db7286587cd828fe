package manager

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/matheus3301/wpdl/internal/bus"
	"github.com/matheus3301/wpdl/internal/config"
	"github.com/matheus3301/wpdl/internal/download"
	"github.com/matheus3301/wpdl/internal/model"
	"github.com/matheus3301/wpdl/internal/normalize"
	"github.com/matheus3301/wpdl/internal/provider"
	"github.com/matheus3301/wpdl/internal/scan"
)

const defaultChatLimit = 100

// AuthState returns the active session's latest auth state and payload.
func (m *Manager) AuthState() (model.AuthState, string, error) {
	sc, err := m.Active()
	if err != nil {
		return "", "", err
	}
	s, p := sc.Auth()
	return s, p, nil
}

// RequestQR starts QR login on the active session.
func (m *Manager) RequestQR(ctx context.Context) error {
	sc, err := m.Active()
	if err != nil {
		return err
	}
	return sc.Gateway.RequestQR(ctx)
}

// SubmitPhone starts phone-number login on the active session.
func (m *Manager) SubmitPhone(ctx context.Context, phone string) error {
	sc, err := m.Active()
	if err != nil {
		return err
	}
	if phone == "" {
		return fmt.Errorf("%w: phone is required", ErrInvalidInput)
	}
	return sc.Gateway.SubmitPhone(ctx, phone)
}

// SubmitCode submits a login code.
func (m *Manager) SubmitCode(ctx context.Context, code string) error {
	sc, err := m.Active()
	if err != nil {
		return err
	}
	return sc.Gateway.SubmitCode(ctx, code)
}

// SubmitPassword submits a second-factor password.
func (m *Manager) SubmitPassword(ctx context.Context, password string) error {
	sc, err := m.Active()
	if err != nil {
		return err
	}
	return sc.Gateway.SubmitPassword(ctx, password)
}

// Logout signs the active session out. Its record and storage are kept.
func (m *Manager) Logout(ctx context.Context) error {
	sc, err := m.Active()
	if err != nil {
		return err
	}
	if err := sc.Gateway.Logout(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	m.handleAuth(sc, provider.AuthUpdate{State: model.AuthLoggedOut})
	return nil
}

// ListChats fetches up to limit chats, publishes them and returns them.
func (m *Manager) ListChats(ctx context.Context, limit int) ([]model.Chat, error) {
	sc, err := m.Active()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultChatLimit
	}
	raw, err := sc.Gateway.ListChats(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	chats := normalize.Chats(raw)
	if m.isCurrent(sc) {
		m.pub.Publish(bus.ChatsList{Chats: chats})
	}
	return chats, nil
}

// StartScan supersedes any running scan with req and returns its epoch.
func (m *Manager) StartScan(req scan.Request) (uint64, error) {
	sc, err := m.Active()
	if err != nil {
		return 0, err
	}
	epoch, err := sc.Scans.Start(req)
	if err != nil {
		return 0, err
	}
	m.logger.Info("scan started", zap.String("session", sc.ID), zap.String("chat", req.ChatID), zap.Uint64("epoch", epoch))
	return epoch, nil
}

func (m *Manager) tracker() (*download.Tracker, error) {
	sc, err := m.Active()
	if err != nil {
		return nil, err
	}
	return sc.Tracker, nil
}

// StartDownload begins fetching a file.
func (m *Manager) StartDownload(ctx context.Context, fileID int64, name string, size int64) error {
	t, err := m.tracker()
	if err != nil {
		return err
	}
	return t.Start(ctx, fileID, name, size)
}

// PauseDownload pauses a download.
func (m *Manager) PauseDownload(ctx context.Context, fileID int64) error {
	t, err := m.tracker()
	if err != nil {
		return err
	}
	return t.Pause(ctx, fileID)
}

// ResumeDownload resumes a paused download.
func (m *Manager) ResumeDownload(ctx context.Context, fileID int64) error {
	t, err := m.tracker()
	if err != nil {
		return err
	}
	return t.Resume(ctx, fileID)
}

// CancelDownload cancels a download and deletes its partial bytes.
func (m *Manager) CancelDownload(ctx context.Context, fileID int64) error {
	t, err := m.tracker()
	if err != nil {
		return err
	}
	return t.Cancel(ctx, fileID)
}

func (m *Manager) PauseAllDownloads(ctx context.Context) error {
	t, err := m.tracker()
	if err != nil {
		return err
	}
	return t.PauseAll(ctx)
}

func (m *Manager) ResumeAllDownloads(ctx context.Context) error {
	t, err := m.tracker()
	if err != nil {
		return err
	}
	return t.ResumeAll(ctx)
}

func (m *Manager) CancelAllDownloads(ctx context.Context) error {
	t, err := m.tracker()
	if err != nil {
		return err
	}
	return t.CancelAll(ctx)
}

// ClearCompletedDownloads drops finished entries and returns their ids.
func (m *Manager) ClearCompletedDownloads() ([]int64, error) {
	t, err := m.tracker()
	if err != nil {
		return nil, err
	}
	return t.ClearCompleted(), nil
}

// ListDownloads returns the active session's download queue.
func (m *Manager) ListDownloads() ([]model.DownloadTask, error) {
	t, err := m.tracker()
	if err != nil {
		return nil, err
	}
	return t.List(), nil
}

// SetDownloadDir validates, creates and persists the destination directory.
// It applies to the active session and every later one.
func (m *Manager) SetDownloadDir(dir string) error {
	if err := download.PrepareDir(dir); err != nil {
		return err
	}
	if err := m.updateConfig(func(c *config.Config) { c.DownloadDir = dir }); err != nil {
		return err
	}
	if t, err := m.tracker(); err == nil {
		return t.SetDir(dir)
	}
	return nil
}

// SetProxy validates, persists and applies a proxy definition.
func (m *Manager) SetProxy(p config.Proxy) error {
	if p.Enabled {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	if err := m.updateConfig(func(c *config.Config) { c.Proxy = p }); err != nil {
		return err
	}
	sc, err := m.Active()
	if err != nil {
		return nil
	}
	if err := sc.Gateway.SetProxy(p); err != nil {
		return fmt.Errorf("apply proxy: %w", err)
	}
	return nil
}

func (m *Manager) updateConfig(mutate func(*config.Config)) error {
	m.mu.Lock()
	next := m.cfg
	mutate(&next)
	m.mu.Unlock()

	if m.configPath != "" {
		if err := config.Save(m.configPath, &next); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
	}
	m.mu.Lock()
	m.cfg = next
	m.mu.Unlock()
	return nil
}
