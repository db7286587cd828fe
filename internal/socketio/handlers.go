package socketio

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/matheus3301/wpdl/internal/api"
	"github.com/matheus3301/wpdl/internal/manager"
)

const commandTimeout = 60 * time.Second

// handlerFunc runs one inbound event. The result is returned in the ack.
type handlerFunc func(ctx context.Context, args []json.RawMessage) (any, error)

type idArg struct {
	ID string `json:"id"`
}

type fileArg struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// decode reads the first event argument into a T. A missing argument is the zero T.
func decode[T any](args []json.RawMessage) (T, error) {
	var v T
	if len(args) == 0 || string(args[0]) == "null" {
		return v, nil
	}
	if err := json.Unmarshal(args[0], &v); err != nil {
		return v, fmt.Errorf("%w: %v", manager.ErrInvalidInput, err)
	}
	return v, nil
}

// with adapts a typed command to a handlerFunc.
func with[T any](fn func(ctx context.Context, arg T) (any, error)) handlerFunc {
	return func(ctx context.Context, args []json.RawMessage) (any, error) {
		arg, err := decode[T](args)
		if err != nil {
			return nil, err
		}
		return fn(ctx, arg)
	}
}

// plain adapts an argument-less command that returns only an error.
func plain(fn func(ctx context.Context) error) handlerFunc {
	return func(ctx context.Context, _ []json.RawMessage) (any, error) {
		return nil, fn(ctx)
	}
}

func (s *Server) routes() map[string]handlerFunc {
	m := s.manager
	return map[string]handlerFunc{
		"get_sessions": func(context.Context, []json.RawMessage) (any, error) {
			list, err := m.ListSessions()
			if err != nil {
				return nil, err
			}
			m.PublishSessions()
			return list, nil
		},
		"create_session": func(ctx context.Context, _ []json.RawMessage) (any, error) {
			id, err := m.CreateSession(ctx)
			return gin.H{"id": id}, err
		},
		"select_session": with(func(ctx context.Context, a idArg) (any, error) {
			return nil, m.SelectOrCreate(ctx, a.ID)
		}),
		"remove_session": with(func(ctx context.Context, a idArg) (any, error) {
			return nil, m.Remove(ctx, a.ID)
		}),
		"get_auth_state": func(context.Context, []json.RawMessage) (any, error) {
			sc, err := m.Active()
			if err != nil {
				return nil, err
			}
			state, payload := sc.Auth()
			return api.AuthStateResponse{SessionID: sc.ID, State: state, Payload: payload}, nil
		},
		"request_qr": plain(m.RequestQR),
		"login_phone": with(func(ctx context.Context, a api.PhoneRequest) (any, error) {
			return nil, m.SubmitPhone(ctx, a.Phone)
		}),
		"login_code": with(func(ctx context.Context, a api.CodeRequest) (any, error) {
			return nil, m.SubmitCode(ctx, a.Code)
		}),
		"login_password": with(func(ctx context.Context, a api.PasswordRequest) (any, error) {
			return nil, m.SubmitPassword(ctx, a.Password)
		}),
		"logout": plain(m.Logout),
		"get_chats": with(func(ctx context.Context, a api.ListChatsRequest) (any, error) {
			return m.ListChats(ctx, a.Limit)
		}),
		"start_scan": with(func(_ context.Context, a api.ScanRequest) (any, error) {
			req, err := a.Request()
			if err != nil {
				return nil, err
			}
			epoch, err := m.StartScan(req)
			return gin.H{"epoch": epoch}, err
		}),
		"download_file": with(func(ctx context.Context, a fileArg) (any, error) {
			return nil, m.StartDownload(ctx, a.ID, a.Name, a.Size)
		}),
		"pause_download": with(func(ctx context.Context, a fileArg) (any, error) {
			return nil, m.PauseDownload(ctx, a.ID)
		}),
		"resume_download": with(func(ctx context.Context, a fileArg) (any, error) {
			return nil, m.ResumeDownload(ctx, a.ID)
		}),
		"cancel_download": with(func(ctx context.Context, a fileArg) (any, error) {
			return nil, m.CancelDownload(ctx, a.ID)
		}),
		"pause_all_downloads":  plain(m.PauseAllDownloads),
		"resume_all_downloads": plain(m.ResumeAllDownloads),
		"cancel_all_downloads": plain(m.CancelAllDownloads),
		"clear_completed_downloads": func(context.Context, []json.RawMessage) (any, error) {
			return m.ClearCompletedDownloads()
		},
		"get_downloads": func(context.Context, []json.RawMessage) (any, error) {
			return m.ListDownloads()
		},
		"set_proxy": with(func(_ context.Context, a api.Proxy) (any, error) {
			return nil, m.SetProxy(a.Config())
		}),
		"set_download_dir": with(func(_ context.Context, a api.DirRequest) (any, error) {
			return nil, m.SetDownloadDir(a.Dir)
		}),
	}
}

// dispatch runs pkt's handler, acks it when the client asked for an ack and
// reports failures as an error event.
func (s *Server) dispatch(c *conn, pkt eventPacket) {
	h, ok := s.handlers[pkt.Event]
	if !ok {
		s.logger.Debug("unknown ui event", zap.String("event", pkt.Event))
		s.reply(c, pkt, nil, fmt.Errorf("%w: unknown event %q", manager.ErrInvalidInput, pkt.Event))
		return
	}
	ctx, cancel := context.WithTimeout(c.ctx, commandTimeout)
	defer cancel()
	result, err := h(ctx, pkt.Args)
	if err != nil {
		s.logger.Info("ui command failed", zap.String("event", pkt.Event), zap.Error(err))
	}
	s.reply(c, pkt, result, err)
}

func (s *Server) reply(c *conn, pkt eventPacket, result any, err error) {
	if err != nil {
		_ = c.emit("error", gin.H{"event": pkt.Event, "message": err.Error()})
	}
	if pkt.ID == nil {
		return
	}
	resp := gin.H{"ok": err == nil}
	if err != nil {
		resp["error"] = err.Error()
	} else if result != nil {
		resp["result"] = result
	}
	packet, buildErr := buildAck(pkt.Namespace, *pkt.ID, resp)
	if buildErr != nil {
		return
	}
	_ = c.writePacket(packet)
}
