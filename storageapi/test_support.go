package storageapi

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1 << 20

// StartBufconn serves srv on an in-memory listener and returns a connected client
// plus a function that shuts both down.
func StartBufconn(srv TileServer) (*Client, func(), error) {
	lis := bufconn.Listen(bufSize)
	s := NewServer(srv)
	go s.Serve(lis)

	dialer := func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		s.Stop()
		return nil, nil, err
	}
	stop := func() {
		conn.Close()
		s.Stop()
		lis.Close()
	}
	return NewClient(conn), stop, nil
}
