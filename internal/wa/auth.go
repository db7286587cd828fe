package wa

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/matheus3301/wpdl/internal/config"
	"github.com/matheus3301/wpdl/internal/model"
	"github.com/matheus3301/wpdl/internal/provider"
	"go.mau.fi/whatsmeow"
	"go.uber.org/zap"
)

// ErrAlreadyLoggedIn is returned when pairing a device that has credentials.
var ErrAlreadyLoggedIn = errors.New("already logged in")

// RequestQR begins QR pairing. Each code is pushed as a qr_pending auth
// update; success is reported once the paired connection comes up.
func (g *Gateway) RequestQR(ctx context.Context) error {
	_, err := g.startPairing(ctx)
	return err
}

// SubmitPhone pairs by phone number. The pairing code to type on the phone
// is pushed as the awaiting_code payload.
func (g *Gateway) SubmitPhone(ctx context.Context, phone string) error {
	firstQR, err := g.startPairing(ctx)
	if err != nil {
		return err
	}
	// Pairing by phone needs the websocket up, which the first QR proves.
	select {
	case <-firstQR:
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(30 * time.Second):
		return fmt.Errorf("pair phone: connection timeout")
	}
	code, err := g.client.PairPhone(ctx, strings.TrimPrefix(phone, "+"), true, whatsmeow.PairClientChrome, "Chrome (Linux)")
	if err != nil {
		return fmt.Errorf("pair phone: %w", err)
	}
	g.pushAuth(provider.AuthUpdate{State: model.AuthAwaitingCode, Payload: code})
	return nil
}

// SubmitCode is not used: the pairing code is entered on the phone.
func (g *Gateway) SubmitCode(context.Context, string) error {
	return provider.ErrUnsupported
}

// SubmitPassword is not used: linked devices have no second factor.
func (g *Gateway) SubmitPassword(context.Context, string) error {
	return provider.ErrUnsupported
}

// startPairing obtains the QR channel and connects. The returned channel is
// closed when the first code arrives. A second call while pairing is a no-op.
func (g *Gateway) startPairing(ctx context.Context) (<-chan struct{}, error) {
	if g.IsLoggedIn() {
		return nil, ErrAlreadyLoggedIn
	}
	g.mu.Lock()
	if g.pairing {
		g.mu.Unlock()
		first := make(chan struct{})
		close(first)
		return first, nil
	}
	g.pairing = true
	g.mu.Unlock()

	// QR channel must be obtained before Connect. It lives as long as the gateway.
	qrChan, err := g.client.GetQRChannel(g.ctx)
	if err != nil {
		g.setPairing(false)
		return nil, fmt.Errorf("get QR channel: %w", err)
	}
	if !g.client.IsConnected() {
		g.pushConnectivity(provider.ConnectivityUpdate{State: model.ConnConnecting})
		if err := g.client.Connect(); err != nil {
			g.setPairing(false)
			return nil, fmt.Errorf("connect: %w", err)
		}
	}

	first := make(chan struct{})
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer g.setPairing(false)
		g.forwardQR(qrChan, first)
	}()
	return first, nil
}

func (g *Gateway) setPairing(v bool) {
	g.mu.Lock()
	g.pairing = v
	g.mu.Unlock()
}

func (g *Gateway) forwardQR(qrChan <-chan whatsmeow.QRChannelItem, first chan struct{}) {
	signalled := false
	signal := func() {
		if !signalled {
			signalled = true
			close(first)
		}
	}
	defer signal()

	for item := range qrChan {
		switch item.Event {
		case "code":
			g.pushAuth(provider.AuthUpdate{State: model.AuthQRPending, Payload: item.Code})
			signal()
		case "success":
			g.logger.Info("device paired")
			return
		case "timeout":
			g.logger.Warn("QR pairing timed out")
			g.pushAuth(provider.AuthUpdate{State: model.AuthLoggedOut, Payload: "timeout"})
			return
		default:
			if item.Error != nil {
				g.logger.Warn("QR pairing failed", zap.Error(item.Error))
				g.pushAuth(provider.AuthUpdate{State: model.AuthLoggedOut, Payload: item.Error.Error()})
				return
			}
		}
	}
}

// Logout invalidates the device credentials.
func (g *Gateway) Logout(ctx context.Context) error {
	if !g.IsLoggedIn() {
		return nil
	}
	return g.client.Logout(ctx)
}

// Profile returns the paired account's details. The avatar is best effort.
func (g *Gateway) Profile(ctx context.Context) (provider.Profile, error) {
	id := g.client.Store.ID
	if id == nil {
		return provider.Profile{}, fmt.Errorf("profile: not logged in")
	}
	p := provider.Profile{
		FirstName: g.client.Store.PushName,
		Phone:     id.User,
	}
	info, err := g.client.GetProfilePictureInfo(ctx, id.ToNonAD(), &whatsmeow.GetProfilePictureParams{Preview: true})
	if err != nil || info == nil || info.URL == "" {
		return p, nil
	}
	if avatar, err := fetch(ctx, info.URL); err != nil {
		g.logger.Debug("failed to fetch avatar", zap.Error(err))
	} else {
		p.Avatar = avatar
	}
	return p, nil
}

func fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}

// ProxyURL renders a proxy definition as the URL whatsmeow dials.
func ProxyURL(p config.Proxy) string {
	u := url.URL{
		Scheme: p.Type,
		Host:   net.JoinHostPort(p.Host, strconv.Itoa(p.Port)),
	}
	if p.Username != "" {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return u.String()
}
