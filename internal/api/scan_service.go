package api

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"

	"github.com/matheus3301/wpdl/internal/manager"
	"github.com/matheus3301/wpdl/internal/model"
	"github.com/matheus3301/wpdl/internal/scan"
)

// ScanService implements wpdl.v1.ScanService. Results arrive on the event stream.
type ScanService struct {
	manager *manager.Manager
}

// NewScanService creates a scan service over m.
func NewScanService(m *manager.Manager) *ScanService {
	return &ScanService{manager: m}
}

func (s *ScanService) StartScan(_ context.Context, req *ScanRequest) (*ScanResponse, error) {
	r, err := req.Request()
	if err != nil {
		return nil, err
	}
	epoch, err := s.manager.StartScan(r)
	if err != nil {
		return nil, err
	}
	return &ScanResponse{Epoch: epoch}, nil
}

// Request converts the wire form, rejecting malformed dates and types.
func (r *ScanRequest) Request() (scan.Request, error) {
	typ, ok := model.ParseFileType(r.Type)
	if !ok {
		return scan.Request{}, fmt.Errorf("%w: unknown type filter %q", scan.ErrInvalidRequest, r.Type)
	}
	out := scan.Request{ChatID: r.ChatID, Query: r.Query, Type: typ, Cap: r.Cap}
	if out.Start, ok = parseDate(r.StartDate); !ok {
		return scan.Request{}, fmt.Errorf("%w: bad start date %q", scan.ErrInvalidRequest, r.StartDate)
	}
	if out.End, ok = parseDate(r.EndDate); !ok {
		return scan.Request{}, fmt.Errorf("%w: bad end date %q", scan.ErrInvalidRequest, r.EndDate)
	}
	return out, nil
}

// parseDate reads a local calendar date. Empty is the zero time.
func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, true
	}
	t, err := time.ParseInLocation(time.DateOnly, s, time.Local)
	return t, err == nil
}

var scanServiceDesc = grpc.ServiceDesc{
	ServiceName: scanServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary(scanServiceName, "StartScan", (*ScanService).StartScan),
	},
	Metadata: "wpdl/v1/scan.proto",
}
