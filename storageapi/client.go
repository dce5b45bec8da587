package storageapi

import (
	"context"
	"io"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/histion/slidetile/slide"
)

// Client calls the tile service over one reusable connection.
type Client struct {
	conn grpc.ClientConnInterface
}

// Dial returns a client for the tile service at addr.  A leading http:// is ignored.
// Unless opts say otherwise the connection is plaintext.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	target := strings.TrimPrefix(addr, "http://")
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(MaxMessageSize), grpc.MaxCallSendMsgSize(MaxMessageSize)),
	}
	conn, err := grpc.NewClient(target, append(dialOpts, opts...)...)
	if err != nil {
		return nil, err
	}
	return NewClient(conn), nil
}

// NewClient wraps an existing connection.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) invoke(ctx context.Context, method string, in, out Message) error {
	return c.conn.Invoke(ctx, method, in, out, grpc.ForceCodec(Codec{}))
}

// GetTile returns the encoded tile at (x, y) of a level.
func (c *Client) GetTile(ctx context.Context, id slide.SlideID, x, y, level uint32) ([]byte, error) {
	out := new(GetTileResponse)
	in := &GetTileRequest{ID: id.Bytes(), X: x, Y: y, Level: level}
	if err := c.invoke(ctx, GetTileMethod, in, out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// PutTile stores an encoded tile and returns the server's success flag.
func (c *Client) PutTile(ctx context.Context, id slide.SlideID, x, y, level uint32, data []byte) (bool, error) {
	out := new(PutTileResponse)
	in := &PutTileRequest{ID: id.Bytes(), X: x, Y: y, Level: level, Data: data}
	if err := c.invoke(ctx, PutTileMethod, in, out); err != nil {
		return false, err
	}
	return out.Success, nil
}

// HealthCheck returns the service's liveness flag.
func (c *Client) HealthCheck(ctx context.Context) (bool, error) {
	out := new(HealthCheckResponse)
	if err := c.invoke(ctx, HealthCheckMethod, &HealthCheckRequest{}, out); err != nil {
		return false, err
	}
	return out.Healthy, nil
}

// Close closes the underlying connection if the client owns a closable one.
func (c *Client) Close() error {
	if closer, ok := c.conn.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
