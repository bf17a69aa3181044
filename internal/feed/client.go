package feed

import (
	"context"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client reads the event feed of a remote vault.
type Client struct {
	cc          grpc.ClientConnInterface
	conn        *grpc.ClientConn
	accessToken string
}

// Dial connects to the feed at target without transport security.
func Dial(target, accessToken string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{cc: conn, conn: conn, accessToken: accessToken}, nil
}

// NewClient wraps an existing connection.
func NewClient(cc grpc.ClientConnInterface, accessToken string) *Client {
	return &Client{cc: cc, accessToken: accessToken}
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, token)
	return metadata.NewOutgoingContext(ctx, md)
}

// Stream is an open Watch call.
type Stream struct {
	cs grpc.ClientStream
}

// Watch opens the event stream. Cancel ctx to stop it.
func (c *Client) Watch(ctx context.Context) (*Stream, error) {
	if c.accessToken != "" {
		ctx = withAccessToken(ctx, c.accessToken)
	}
	cs, err := c.cc.NewStream(ctx, &serviceDesc.Streams[0], watchMethod)
	if err != nil {
		return nil, err
	}
	if err := cs.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := cs.CloseSend(); err != nil {
		return nil, err
	}
	return &Stream{cs: cs}, nil
}

// Recv blocks until the next event arrives.
func (s *Stream) Recv() (Event, error) {
	msg := new(structpb.Struct)
	if err := s.cs.RecvMsg(msg); err != nil {
		return Event{}, err
	}
	return eventFromStruct(msg)
}

// Close releases a connection opened by Dial.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
