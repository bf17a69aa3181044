// Package feed streams save lifecycle and entry change events to remote
// watchers over gRPC.
package feed

import (
	"context"
	"net"

	"github.com/dmitrijs2005/gophvault/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
)

const (
	serviceName = "gophvault.EventFeed"
	watchMethod = "/" + serviceName + "/Watch"
)

// EventFeedServer is the server API of the feed service.
type EventFeedServer interface {
	Watch(req *emptypb.Empty, stream grpc.ServerStream) error
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(EventFeedServer).Watch(in, stream)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*EventFeedServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       watchHandler,
			ServerStreams: true,
		},
	},
	Metadata: "gophvault/feed.proto",
}

type Server struct {
	address   string
	hub       *Hub
	logger    logging.Logger
	jwtSecret []byte
}

// NewServer returns a feed server for hub. With an empty secret the feed
// does not require an access token.
func NewServer(address string, hub *Hub, secret []byte, l logging.Logger) *Server {
	return &Server{
		address:   address,
		hub:       hub,
		logger:    l.With("module", "feed_server"),
		jwtSecret: secret,
	}
}

// Watch sends hub events to the caller until the stream or the subscription
// ends.
func (s *Server) Watch(_ *emptypb.Empty, stream grpc.ServerStream) error {
	ctx := stream.Context()
	events, cancel := s.hub.Subscribe()
	defer cancel()

	s.logger.Info(ctx, "watcher connected")
	defer s.logger.Info(ctx, "watcher disconnected")

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			msg, err := e.toStruct()
			if err != nil {
				return status.Error(codes.Internal, err.Error())
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

func (s *Server) newGRPCServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainStreamInterceptor(s.accessTokenInterceptor))
	srv.RegisterService(&serviceDesc, s)
	return srv
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve serves on lis until ctx is done.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newGRPCServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping feed server...")
		srv.Stop()
	}()

	s.logger.Info(ctx, "Starting feed server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}
	return nil
}
