package api

import (
	"context"
	"time"

	"google.golang.org/grpc"

	"github.com/matheus3301/wpdl/internal/manager"
)

// SessionService implements wpdl.v1.SessionService: the session registry,
// the auth surface and the account settings.
type SessionService struct {
	manager   *manager.Manager
	startedAt time.Time
}

// NewSessionService creates a session service over m.
func NewSessionService(m *manager.Manager) *SessionService {
	return &SessionService{manager: m, startedAt: time.Now()}
}

func (s *SessionService) GetStatus(_ context.Context, _ *Empty) (*StatusResponse, error) {
	resp := &StatusResponse{
		DownloadDir: s.manager.Config().DownloadDir,
		UptimeMs:    time.Since(s.startedAt).Milliseconds(),
	}
	if cur, ok := s.manager.Current(); ok {
		resp.Session = &cur
		if sc, err := s.manager.Active(); err == nil {
			resp.Auth, _ = sc.Auth()
			resp.Connectivity = sc.Connectivity()
		}
	}
	return resp, nil
}

func (s *SessionService) ListSessions(_ context.Context, _ *Empty) (*SessionList, error) {
	list, err := s.manager.ListSessions()
	if err != nil {
		return nil, err
	}
	return &SessionList{Sessions: list}, nil
}

func (s *SessionService) CreateSession(ctx context.Context, _ *Empty) (*CreateSessionResponse, error) {
	id, err := s.manager.CreateSession(ctx)
	if err != nil {
		return nil, err
	}
	return &CreateSessionResponse{ID: id}, nil
}

func (s *SessionService) SelectSession(ctx context.Context, req *SessionRequest) (*Empty, error) {
	return &Empty{}, s.manager.SelectOrCreate(ctx, req.ID)
}

func (s *SessionService) RemoveSession(ctx context.Context, req *SessionRequest) (*Empty, error) {
	return &Empty{}, s.manager.Remove(ctx, req.ID)
}

func (s *SessionService) GetAuthState(_ context.Context, _ *Empty) (*AuthStateResponse, error) {
	sc, err := s.manager.Active()
	if err != nil {
		return nil, err
	}
	state, payload := sc.Auth()
	return &AuthStateResponse{SessionID: sc.ID, State: state, Payload: payload}, nil
}

func (s *SessionService) RequestQR(ctx context.Context, _ *Empty) (*Empty, error) {
	return &Empty{}, s.manager.RequestQR(ctx)
}

func (s *SessionService) SubmitPhone(ctx context.Context, req *PhoneRequest) (*Empty, error) {
	return &Empty{}, s.manager.SubmitPhone(ctx, req.Phone)
}

func (s *SessionService) SubmitCode(ctx context.Context, req *CodeRequest) (*Empty, error) {
	return &Empty{}, s.manager.SubmitCode(ctx, req.Code)
}

func (s *SessionService) SubmitPassword(ctx context.Context, req *PasswordRequest) (*Empty, error) {
	return &Empty{}, s.manager.SubmitPassword(ctx, req.Password)
}

func (s *SessionService) Logout(ctx context.Context, _ *Empty) (*Empty, error) {
	return &Empty{}, s.manager.Logout(ctx)
}

func (s *SessionService) ListChats(ctx context.Context, req *ListChatsRequest) (*ChatList, error) {
	chats, err := s.manager.ListChats(ctx, req.Limit)
	if err != nil {
		return nil, err
	}
	return &ChatList{Chats: chats}, nil
}

func (s *SessionService) SetProxy(_ context.Context, req *Proxy) (*Empty, error) {
	return &Empty{}, s.manager.SetProxy(req.Config())
}

var sessionServiceDesc = grpc.ServiceDesc{
	ServiceName: sessionServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary(sessionServiceName, "GetStatus", (*SessionService).GetStatus),
		unary(sessionServiceName, "ListSessions", (*SessionService).ListSessions),
		unary(sessionServiceName, "CreateSession", (*SessionService).CreateSession),
		unary(sessionServiceName, "SelectSession", (*SessionService).SelectSession),
		unary(sessionServiceName, "RemoveSession", (*SessionService).RemoveSession),
		unary(sessionServiceName, "GetAuthState", (*SessionService).GetAuthState),
		unary(sessionServiceName, "RequestQR", (*SessionService).RequestQR),
		unary(sessionServiceName, "SubmitPhone", (*SessionService).SubmitPhone),
		unary(sessionServiceName, "SubmitCode", (*SessionService).SubmitCode),
		unary(sessionServiceName, "SubmitPassword", (*SessionService).SubmitPassword),
		unary(sessionServiceName, "Logout", (*SessionService).Logout),
		unary(sessionServiceName, "ListChats", (*SessionService).ListChats),
		unary(sessionServiceName, "SetProxy", (*SessionService).SetProxy),
	},
	Metadata: "wpdl/v1/session.proto",
}
