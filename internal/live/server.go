package live

import (
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	serviceName   = "barsim.ChartFeed"
	subscribeName = "Subscribe"
	subscribePath = "/" + serviceName + "/" + subscribeName
)

// chartFeedServer is the handler contract checked by grpc.RegisterService.
type chartFeedServer interface {
	Subscribe(req *structpb.Struct, stream grpc.ServerStream) error
}

var chartFeedDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*chartFeedServer)(nil),
	Streams: []grpc.StreamDesc{{
		StreamName:    subscribeName,
		Handler:       subscribeHandler,
		ServerStreams: true,
	}},
	Metadata: "barsim/chartfeed",
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	req := new(structpb.Struct)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(chartFeedServer).Subscribe(req, stream)
}

// Server streams chart points from a Hub.
type Server struct {
	hub     *Hub
	bufSize int
	log     *slog.Logger
}

// NewServer creates a gRPC server backed by the given hub.
func NewServer(hub *Hub, log *slog.Logger) *Server {
	return &Server{hub: hub, bufSize: 4096, log: log}
}

// RegisterGRPC registers the server on the given gRPC server instance.
func (s *Server) RegisterGRPC(gs *grpc.Server) {
	gs.RegisterService(&chartFeedDesc, s)
}

// Subscribe sends the hub's retained history, then streams new points until
// the client disconnects. The request may carry "symbol" and "timeframe"
// filters.
func (s *Server) Subscribe(req *structpb.Struct, stream grpc.ServerStream) error {
	filter := structToFilter(req)

	subID, snapshot, ch := s.hub.Subscribe(s.bufSize)
	defer s.hub.Unsubscribe(subID)
	s.log.Info("grpc client subscribed", "subID", subID, "symbol", filter.Symbol, "timeframe", filter.Timeframe)

	for _, p := range snapshot {
		if !filter.Match(p) {
			continue
		}
		msg, err := pointToStruct(p)
		if err != nil {
			return err
		}
		if err := stream.SendMsg(msg); err != nil {
			return err
		}
	}

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("grpc client disconnected", "subID", subID)
			return nil
		case p, ok := <-ch:
			if !ok {
				return nil
			}
			if !filter.Match(p) {
				continue
			}
			msg, err := pointToStruct(p)
			if err != nil {
				return err
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}
