package api

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client is a typed client for the daemon's control API.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the daemon's Unix domain socket. The connection is lazy:
// errors surface on the first call.
func Dial(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, service, method string, in, out any) error {
	return c.conn.Invoke(ctx, "/"+service+"/"+method, in, out)
}

func (c *Client) session(ctx context.Context, method string, in, out any) error {
	return c.invoke(ctx, sessionServiceName, method, in, out)
}

func (c *Client) download(ctx context.Context, method string, in any) error {
	return c.invoke(ctx, downloadServiceName, method, in, &Empty{})
}

func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	out := new(StatusResponse)
	return out, c.session(ctx, "GetStatus", &Empty{}, out)
}

func (c *Client) ListSessions(ctx context.Context) (*SessionList, error) {
	out := new(SessionList)
	return out, c.session(ctx, "ListSessions", &Empty{}, out)
}

func (c *Client) CreateSession(ctx context.Context) (string, error) {
	out := new(CreateSessionResponse)
	err := c.session(ctx, "CreateSession", &Empty{}, out)
	return out.ID, err
}

func (c *Client) SelectSession(ctx context.Context, id string) error {
	return c.session(ctx, "SelectSession", &SessionRequest{ID: id}, &Empty{})
}

func (c *Client) RemoveSession(ctx context.Context, id string) error {
	return c.session(ctx, "RemoveSession", &SessionRequest{ID: id}, &Empty{})
}

func (c *Client) AuthState(ctx context.Context) (*AuthStateResponse, error) {
	out := new(AuthStateResponse)
	return out, c.session(ctx, "GetAuthState", &Empty{}, out)
}

func (c *Client) RequestQR(ctx context.Context) error {
	return c.session(ctx, "RequestQR", &Empty{}, &Empty{})
}

func (c *Client) SubmitPhone(ctx context.Context, phone string) error {
	return c.session(ctx, "SubmitPhone", &PhoneRequest{Phone: phone}, &Empty{})
}

func (c *Client) SubmitCode(ctx context.Context, code string) error {
	return c.session(ctx, "SubmitCode", &CodeRequest{Code: code}, &Empty{})
}

func (c *Client) SubmitPassword(ctx context.Context, password string) error {
	return c.session(ctx, "SubmitPassword", &PasswordRequest{Password: password}, &Empty{})
}

func (c *Client) Logout(ctx context.Context) error {
	return c.session(ctx, "Logout", &Empty{}, &Empty{})
}

func (c *Client) ListChats(ctx context.Context, limit int) (*ChatList, error) {
	out := new(ChatList)
	return out, c.session(ctx, "ListChats", &ListChatsRequest{Limit: limit}, out)
}

func (c *Client) SetProxy(ctx context.Context, p Proxy) error {
	return c.session(ctx, "SetProxy", &p, &Empty{})
}

func (c *Client) StartScan(ctx context.Context, req ScanRequest) (uint64, error) {
	out := new(ScanResponse)
	err := c.invoke(ctx, scanServiceName, "StartScan", &req, out)
	return out.Epoch, err
}

func (c *Client) StartDownload(ctx context.Context, fileID int64, name string, size int64) error {
	return c.download(ctx, "Start", &FileRequest{FileID: fileID, Name: name, Size: size})
}

func (c *Client) PauseDownload(ctx context.Context, fileID int64) error {
	return c.download(ctx, "Pause", &FileRequest{FileID: fileID})
}

func (c *Client) ResumeDownload(ctx context.Context, fileID int64) error {
	return c.download(ctx, "Resume", &FileRequest{FileID: fileID})
}

func (c *Client) CancelDownload(ctx context.Context, fileID int64) error {
	return c.download(ctx, "Cancel", &FileRequest{FileID: fileID})
}

func (c *Client) PauseAllDownloads(ctx context.Context) error {
	return c.download(ctx, "PauseAll", &Empty{})
}

func (c *Client) ResumeAllDownloads(ctx context.Context) error {
	return c.download(ctx, "ResumeAll", &Empty{})
}

func (c *Client) CancelAllDownloads(ctx context.Context) error {
	return c.download(ctx, "CancelAll", &Empty{})
}

func (c *Client) ClearCompletedDownloads(ctx context.Context) ([]int64, error) {
	out := new(FileIDs)
	err := c.invoke(ctx, downloadServiceName, "ClearCompleted", &Empty{}, out)
	return out.IDs, err
}

func (c *Client) ListDownloads(ctx context.Context) (*DownloadList, error) {
	out := new(DownloadList)
	return out, c.invoke(ctx, downloadServiceName, "List", &Empty{}, out)
}

func (c *Client) SetDownloadDir(ctx context.Context, dir string) error {
	return c.download(ctx, "SetDownloadDir", &DirRequest{Dir: dir})
}

// EventStream receives envelopes from Watch.
type EventStream struct {
	stream grpc.ClientStream
}

// Recv blocks for the next event.
func (s *EventStream) Recv() (*EventEnvelope, error) {
	out := new(EventEnvelope)
	if err := s.stream.RecvMsg(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Watch opens an event stream filtered by namespace. Cancel ctx to stop it.
func (c *Client) Watch(ctx context.Context, namespace string) (*EventStream, error) {
	desc := &eventServiceDesc.Streams[0]
	stream, err := c.conn.NewStream(ctx, desc, "/"+eventServiceName+"/Watch")
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&WatchRequest{Namespace: namespace}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &EventStream{stream: stream}, nil
}
