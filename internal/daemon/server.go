package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/matheus3301/wpdl/internal/api"
	"github.com/matheus3301/wpdl/internal/config"
	"github.com/matheus3301/wpdl/internal/socketio"
)

// Server manages the gRPC control API on the daemon's Unix domain socket.
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
	socketPath string
	logger     *zap.Logger
}

// NewServer creates a gRPC server bound to the daemon socket.
func NewServer(
	p Params,
	logger *zap.Logger,
	sessionSvc *api.SessionService,
	scanSvc *api.ScanService,
	downloadSvc *api.DownloadService,
	eventSvc *api.EventService,
) (*Server, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = p.Layout.SocketPath()
	}

	// Clean stale socket if it exists.
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}

	// Set socket permissions to 0600.
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(logCalls(logger)))
	api.Register(srv, sessionSvc, scanSvc, downloadSvc, eventSvc)

	return &Server{
		grpcServer: srv,
		listener:   listener,
		socketPath: socketPath,
		logger:     logger,
	}, nil
}

// Start begins serving gRPC requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("gRPC server starting", zap.String("socket", s.socketPath))
	return s.grpcServer.Serve(s.listener)
}

// Stop performs a graceful shutdown and removes the socket file. Open event
// streams are cut once ctx expires.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("gRPC server stopping")
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}
	_ = os.Remove(s.socketPath)
}

func logCalls(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.Duration("took", time.Since(start)),
		}
		if err != nil {
			fields = append(fields, zap.String("code", grpcstatus.Code(err).String()), zap.Error(err))
			logger.Info("rpc failed", fields...)
		} else {
			logger.Debug("rpc", fields...)
		}
		return resp, err
	}
}

// HTTPServer serves the web UI endpoint.
type HTTPServer struct {
	srv      *http.Server
	listener net.Listener
	logger   *zap.Logger
}

// NewHTTPServer binds the Socket.IO router to cfg.ListenAddr.
func NewHTTPServer(cfg *config.Config, sio *socketio.Server, logger *zap.Logger) (*HTTPServer, error) {
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}
	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.ListenAddr, err)
	}
	return &HTTPServer{
		srv: &http.Server{
			Handler:           socketio.NewRouter(sio, logger),
			ReadHeaderTimeout: 10 * time.Second,
		},
		listener: listener,
		logger:   logger,
	}, nil
}

// Addr returns the bound address.
func (h *HTTPServer) Addr() string {
	return h.listener.Addr().String()
}

// Start serves until Stop. Blocks.
func (h *HTTPServer) Start() error {
	h.logger.Info("ui server starting", zap.String("addr", h.Addr()))
	err := h.srv.Serve(h.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts the server down. Hijacked websocket connections are closed by
// the Socket.IO server itself.
func (h *HTTPServer) Stop(ctx context.Context) {
	if err := h.srv.Shutdown(ctx); err != nil {
		h.logger.Warn("ui server shutdown", zap.Error(err))
	}
}
