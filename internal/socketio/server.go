// Package socketio serves the web UI over a Socket.IO v4 (Engine.IO
// websocket transport) endpoint. Inbound events are commands on the session
// manager; every bus event is broadcast to connected clients.
package socketio

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/matheus3301/wpdl/internal/bus"
	"github.com/matheus3301/wpdl/internal/manager"
)

const busBuffer = 1024

// outbound names the client event for each bus kind.
var outbound = map[bus.Kind]string{
	bus.KindSessionsList:      "sessions_list",
	bus.KindAuthState:         "auth_update",
	bus.KindConnectivityState: "connection_state",
	bus.KindChatsList:         "chats_update",
	bus.KindChatsChanged:      "chats_changed",
	bus.KindScanBatch:         "scan_batch",
	bus.KindScanProgress:      "scan_progress",
	bus.KindScanEnded:         "scan_ended",
	bus.KindDownloadProgress:  "download_progress",
	bus.KindDownloadTerminal:  "download_terminal",
	bus.KindDownloadsCleared:  "downloads_cleared",
}

// Server is the Socket.IO endpoint.
type Server struct {
	manager  *manager.Manager
	bus      *bus.Bus
	logger   *zap.Logger
	upgrader websocket.Upgrader
	handlers map[string]handlerFunc

	mu    sync.RWMutex
	conns map[*conn]struct{}
}

// NewServer creates a server dispatching to m and broadcasting b.
func NewServer(m *manager.Manager, b *bus.Bus, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		manager: m,
		bus:     b,
		logger:  logger,
		upgrader: websocket.Upgrader{
			// The UI is served from another local origin during development.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[*conn]struct{}),
	}
	s.handlers = s.routes()
	return s
}

// Run forwards bus events to every connected client until ctx is done.
func (s *Server) Run(ctx context.Context) {
	ch, unsub := s.bus.Subscribe("", busBuffer)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-ch:
			name, ok := outbound[env.Kind()]
			if !ok {
				continue
			}
			s.broadcast(name, env.Event)
		}
	}
}

func (s *Server) broadcast(event string, arg any) {
	packet, err := buildEvent("/", event, arg)
	if err != nil {
		s.logger.Warn("failed to encode event", zap.String("event", event), zap.Error(err))
		return
	}
	s.mu.RLock()
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		if c.connected.Load() {
			conns = append(conns, c)
		}
	}
	s.mu.RUnlock()

	for _, c := range conns {
		if err := c.writePacket(packet); err != nil {
			s.unregister(c)
		}
	}
}

// Close disconnects every client.
func (s *Server) Close() {
	s.mu.Lock()
	conns := s.conns
	s.conns = make(map[*conn]struct{})
	s.mu.Unlock()
	for c := range conns {
		c.close()
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	ws.SetReadLimit(maxPayload)

	c := newConn(ws)
	s.register(c)
	defer s.unregister(c)

	open, _ := json.Marshal(map[string]any{
		"sid":          c.sid,
		"upgrades":     []string{},
		"pingInterval": pingInterval.Milliseconds(),
		"pingTimeout":  pingTimeout.Milliseconds(),
		"maxPayload":   maxPayload,
	})
	if err := c.writeText(string(engineOpen) + string(open)); err != nil {
		return
	}

	go c.pingLoop()
	c.readLoop(func(msg string) {
		s.handleMessage(c, msg)
	})
}

func (s *Server) register(c *conn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) unregister(c *conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	c.close()
}

func (s *Server) handleMessage(c *conn, msg string) {
	if msg == "" {
		return
	}
	switch enginePacketType(msg[0]) {
	case enginePong:
		c.markPong()
	case engineMessage:
		s.handlePacket(c, msg[1:])
	case engineClose:
		c.close()
	}
}

func (s *Server) handlePacket(c *conn, payload string) {
	if payload == "" {
		return
	}
	switch socketPacketType(payload[0]) {
	case socketConnect:
		s.handleConnect(c, payload)
	case socketDisconnect:
		c.close()
	case socketEvent:
		if !c.connected.Load() {
			return
		}
		pkt, err := parseEvent(payload)
		if err != nil {
			s.logger.Debug("dropping malformed packet", zap.Error(err))
			return
		}
		s.dispatch(c, pkt)
	}
}

// handleConnect accepts the default namespace and pushes the initial state.
func (s *Server) handleConnect(c *conn, payload string) {
	if c.connected.Load() {
		return
	}
	ns, _ := splitNamespace(payload[1:])
	packet, err := buildConnect(ns, c.sid)
	if err != nil {
		return
	}
	c.connected.Store(true)
	if err := c.writePacket(packet); err != nil {
		return
	}
	s.logger.Debug("ui client connected", zap.String("sid", c.sid))

	if list, err := s.manager.ListSessions(); err == nil {
		_ = c.emit("sessions_list", bus.SessionsList{Sessions: list})
	}
	if sc, err := s.manager.Active(); err == nil {
		state, payload := sc.Auth()
		_ = c.emit("auth_update", bus.AuthState{SessionID: sc.ID, State: state, Payload: payload})
		_ = c.emit("connection_state", bus.ConnectivityState{SessionID: sc.ID, State: sc.Connectivity()})
	}
}
