package api

import (
	"context"

	"google.golang.org/grpc"
)

const (
	sessionServiceName  = "wpdl.v1.SessionService"
	scanServiceName     = "wpdl.v1.ScanService"
	downloadServiceName = "wpdl.v1.DownloadService"
	eventServiceName    = "wpdl.v1.EventService"
)

// unary builds a method descriptor around a typed handler. Handler errors
// are mapped to status codes.
func unary[S, Req, Resp any](service, name string, fn func(S, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + service + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, req any) (any, error) {
				resp, err := fn(srv.(S), ctx, req.(*Req))
				if err != nil {
					return nil, toStatus(err)
				}
				return resp, nil
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// Register adds every service to srv.
func Register(srv grpc.ServiceRegistrar, sessions *SessionService, scans *ScanService, downloads *DownloadService, events *EventService) {
	srv.RegisterService(&sessionServiceDesc, sessions)
	srv.RegisterService(&scanServiceDesc, scans)
	srv.RegisterService(&downloadServiceDesc, downloads)
	srv.RegisterService(&eventServiceDesc, events)
}
