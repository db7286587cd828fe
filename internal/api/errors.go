package api

import (
	"errors"

	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/matheus3301/wpdl/internal/download"
	"github.com/matheus3301/wpdl/internal/manager"
	"github.com/matheus3301/wpdl/internal/provider"
	"github.com/matheus3301/wpdl/internal/scan"
	"github.com/matheus3301/wpdl/internal/session"
	"github.com/matheus3301/wpdl/internal/wa"
)

// toStatus maps core errors onto gRPC status codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	var code codes.Code
	switch {
	case errors.Is(err, scan.ErrInvalidRequest),
		errors.Is(err, manager.ErrInvalidInput),
		errors.Is(err, download.ErrInvalidDir),
		errors.Is(err, session.ErrInvalidID):
		code = codes.InvalidArgument
	case errors.Is(err, manager.ErrNoActiveSession),
		errors.Is(err, download.ErrDiscarded),
		errors.Is(err, scan.ErrStopped),
		errors.Is(err, wa.ErrAlreadyLoggedIn):
		code = codes.FailedPrecondition
	case errors.Is(err, manager.ErrUnknownSession),
		errors.Is(err, download.ErrUnknownTask):
		code = codes.NotFound
	case errors.Is(err, provider.ErrUnsupported):
		code = codes.Unimplemented
	default:
		code = codes.Internal
	}
	return grpcstatus.Error(code, err.Error())
}
