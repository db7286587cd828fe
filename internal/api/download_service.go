package api

import (
	"context"

	"google.golang.org/grpc"

	"github.com/matheus3301/wpdl/internal/manager"
)

// DownloadService implements wpdl.v1.DownloadService over the active
// session's download queue.
type DownloadService struct {
	manager *manager.Manager
}

// NewDownloadService creates a download service over m.
func NewDownloadService(m *manager.Manager) *DownloadService {
	return &DownloadService{manager: m}
}

func (s *DownloadService) Start(ctx context.Context, req *FileRequest) (*Empty, error) {
	return &Empty{}, s.manager.StartDownload(ctx, req.FileID, req.Name, req.Size)
}

func (s *DownloadService) Pause(ctx context.Context, req *FileRequest) (*Empty, error) {
	return &Empty{}, s.manager.PauseDownload(ctx, req.FileID)
}

func (s *DownloadService) Resume(ctx context.Context, req *FileRequest) (*Empty, error) {
	return &Empty{}, s.manager.ResumeDownload(ctx, req.FileID)
}

func (s *DownloadService) Cancel(ctx context.Context, req *FileRequest) (*Empty, error) {
	return &Empty{}, s.manager.CancelDownload(ctx, req.FileID)
}

func (s *DownloadService) PauseAll(ctx context.Context, _ *Empty) (*Empty, error) {
	return &Empty{}, s.manager.PauseAllDownloads(ctx)
}

func (s *DownloadService) ResumeAll(ctx context.Context, _ *Empty) (*Empty, error) {
	return &Empty{}, s.manager.ResumeAllDownloads(ctx)
}

func (s *DownloadService) CancelAll(ctx context.Context, _ *Empty) (*Empty, error) {
	return &Empty{}, s.manager.CancelAllDownloads(ctx)
}

func (s *DownloadService) ClearCompleted(_ context.Context, _ *Empty) (*FileIDs, error) {
	ids, err := s.manager.ClearCompletedDownloads()
	if err != nil {
		return nil, err
	}
	return &FileIDs{IDs: ids}, nil
}

func (s *DownloadService) List(_ context.Context, _ *Empty) (*DownloadList, error) {
	list, err := s.manager.ListDownloads()
	if err != nil {
		return nil, err
	}
	return &DownloadList{Downloads: list}, nil
}

func (s *DownloadService) SetDownloadDir(_ context.Context, req *DirRequest) (*Empty, error) {
	return &Empty{}, s.manager.SetDownloadDir(req.Dir)
}

var downloadServiceDesc = grpc.ServiceDesc{
	ServiceName: downloadServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary(downloadServiceName, "Start", (*DownloadService).Start),
		unary(downloadServiceName, "Pause", (*DownloadService).Pause),
		unary(downloadServiceName, "Resume", (*DownloadService).Resume),
		unary(downloadServiceName, "Cancel", (*DownloadService).Cancel),
		unary(downloadServiceName, "PauseAll", (*DownloadService).PauseAll),
		unary(downloadServiceName, "ResumeAll", (*DownloadService).ResumeAll),
		unary(downloadServiceName, "CancelAll", (*DownloadService).CancelAll),
		unary(downloadServiceName, "ClearCompleted", (*DownloadService).ClearCompleted),
		unary(downloadServiceName, "List", (*DownloadService).List),
		unary(downloadServiceName, "SetDownloadDir", (*DownloadService).SetDownloadDir),
	},
	Metadata: "wpdl/v1/download.proto",
}
