package live

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"barsim/internal/chart"
)

// Client connects to a chart feed server.
type Client struct {
	addr string
	opts []grpc.DialOption
	log  *slog.Logger
}

// NewClient creates a client targeting addr. Extra dial options are appended
// after insecure transport credentials.
func NewClient(addr string, log *slog.Logger, opts ...grpc.DialOption) *Client {
	return &Client{addr: addr, opts: opts, log: log}
}

// Sync subscribes with filter and calls fn for every received point. It
// blocks until ctx is cancelled or the stream ends.
func (c *Client) Sync(ctx context.Context, filter Filter, fn func(chart.Point)) error {
	dialOpts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, c.opts...)
	conn, err := grpc.NewClient(c.addr, dialOpts...)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", c.addr, err)
	}
	defer conn.Close()

	stream, err := conn.NewStream(ctx, &chartFeedDesc.Streams[0], subscribePath)
	if err != nil {
		return fmt.Errorf("starting stream: %w", err)
	}
	if err := stream.SendMsg(filterToStruct(filter)); err != nil {
		return fmt.Errorf("sending subscription: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("closing send: %w", err)
	}

	c.log.Info("connected to chart feed", "addr", c.addr)

	for {
		msg := new(structpb.Struct)
		err := stream.RecvMsg(msg)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receiving point: %w", err)
		}
		p, err := structToPoint(msg)
		if err != nil {
			return err
		}
		fn(p)
	}
}
