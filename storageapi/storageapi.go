/*
	Package storageapi implements the wire protocol of the storage.StorageApi tile
	service: protobuf-encoded messages, a gRPC codec for them, a client used by remote
	tile sources and a file-backed reference server.
*/
package storageapi

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "storage.StorageApi"

	GetTileMethod     = "/" + ServiceName + "/GetTile"
	PutTileMethod     = "/" + ServiceName + "/PutTile"
	HealthCheckMethod = "/" + ServiceName + "/HealthCheck"

	// MaxMessageSize bounds request and response sizes on both ends.
	MaxMessageSize = 32 << 20
)

// Codec marshals Message values with the protobuf wire format.  It is named "proto"
// so peers see the standard application/grpc+proto content type.
type Codec struct{}

var _ encoding.Codec = Codec{}

func (Codec) Marshal(v interface{}) ([]byte, error) {
	m, ok := v.(Message)
	if !ok {
		return nil, fmt.Errorf("storageapi codec cannot marshal %T", v)
	}
	return m.Marshal()
}

func (Codec) Unmarshal(data []byte, v interface{}) error {
	m, ok := v.(Message)
	if !ok {
		return fmt.Errorf("storageapi codec cannot unmarshal into %T", v)
	}
	return m.Unmarshal(data)
}

func (Codec) Name() string {
	return "proto"
}

// TileServer is the server side of the tile service.
type TileServer interface {
	GetTile(context.Context, *GetTileRequest) (*GetTileResponse, error)
	PutTile(context.Context, *PutTileRequest) (*PutTileResponse, error)
	HealthCheck(context.Context, *HealthCheckRequest) (*HealthCheckResponse, error)
}

func getTileHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetTileRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TileServer).GetTile(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetTileMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TileServer).GetTile(ctx, req.(*GetTileRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func putTileHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(PutTileRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TileServer).PutTile(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PutTileMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TileServer).PutTile(ctx, req.(*PutTileRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func healthCheckHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(HealthCheckRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TileServer).HealthCheck(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: HealthCheckMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TileServer).HealthCheck(ctx, req.(*HealthCheckRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc describes the tile service for grpc.Server registration.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TileServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetTile",
			Handler:    getTileHandler,
		},
		{
			MethodName: "PutTile",
			Handler:    putTileHandler,
		},
		{
			MethodName: "HealthCheck",
			Handler:    healthCheckHandler,
		},
	},
	Metadata: "storage.proto",
}

// RegisterTileServer registers a TileServer implementation with a gRPC server.
func RegisterTileServer(s grpc.ServiceRegistrar, srv TileServer) {
	s.RegisterService(&ServiceDesc, srv)
}
