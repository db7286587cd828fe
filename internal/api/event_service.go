package api

import (
	"encoding/json"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/matheus3301/wpdl/internal/bus"
)

const watchBuffer = 256

// EventService implements wpdl.v1.EventService: a server stream of every
// bus event matching the requested namespace.
type EventService struct {
	bus    *bus.Bus
	logger *zap.Logger
}

// NewEventService creates an event service over b.
func NewEventService(b *bus.Bus, logger *zap.Logger) *EventService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventService{bus: b, logger: logger}
}

// Watch streams events until the client goes away.
func (s *EventService) Watch(req *WatchRequest, stream grpc.ServerStream) error {
	ch, unsub := s.bus.Subscribe(req.Namespace, watchBuffer)
	defer unsub()

	for {
		select {
		case env := <-ch:
			out, err := Envelope(env)
			if err != nil {
				s.logger.Warn("failed to encode event", zap.String("kind", string(env.Kind())), zap.Error(err))
				continue
			}
			if err := stream.SendMsg(out); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

// Envelope converts a bus envelope to its wire form.
func Envelope(env bus.Envelope) (*EventEnvelope, error) {
	payload, err := json.Marshal(env.Event)
	if err != nil {
		return nil, err
	}
	return &EventEnvelope{
		ID:               env.ID,
		Kind:             string(env.Kind()),
		OccurredAtUnixMs: env.OccurredAt.UnixMilli(),
		Payload:          payload,
	}, nil
}

var eventServiceDesc = grpc.ServiceDesc{
	ServiceName: eventServiceName,
	HandlerType: (*any)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName: "Watch",
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(WatchRequest)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(*EventService).Watch(in, stream)
			},
			ServerStreams: true,
		},
	},
	Metadata: "wpdl/v1/event.proto",
}
