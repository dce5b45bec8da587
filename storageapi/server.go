package storageapi

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/histion/slidetile/slide"
)

// FileStore serves tiles stored as <Root>/<uuid>/<level>/<x>_<y>.webp files.
type FileStore struct {
	Root string
}

var _ TileServer = (*FileStore)(nil)

// TilePath returns the file holding a tile.
func (s *FileStore) TilePath(id uuid.UUID, level, x, y uint32) string {
	return filepath.Join(s.Root, id.String(), fmt.Sprintf("%d", level), fmt.Sprintf("%d_%d.webp", x, y))
}

func (s *FileStore) GetTile(ctx context.Context, req *GetTileRequest) (*GetTileResponse, error) {
	id, err := uuid.FromBytes(req.ID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid UUID")
	}
	path := s.TilePath(id, req.Level, req.X, req.Y)
	slide.Debugf("get_tile %s (%d, %d) level %d -> %s\n", id, req.X, req.Y, req.Level, path)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, status.Error(codes.NotFound, "tile not found")
		}
		slide.Errorf("Failed to read tile %s: %v\n", path, err)
		return nil, status.Error(codes.Internal, "failed to read tile")
	}
	return &GetTileResponse{Data: data}, nil
}

func (s *FileStore) PutTile(ctx context.Context, req *PutTileRequest) (*PutTileResponse, error) {
	id, err := uuid.FromBytes(req.ID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid UUID")
	}
	path := s.TilePath(id, req.Level, req.X, req.Y)
	slide.Debugf("put_tile %s (%d, %d) level %d, %s -> %s\n", id, req.X, req.Y, req.Level,
		humanize.Bytes(uint64(len(req.Data))), path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		slide.Errorf("Failed to create directories for %s: %v\n", path, err)
		return nil, status.Error(codes.Internal, "failed to create directories")
	}
	if err := os.WriteFile(path, req.Data, 0644); err != nil {
		slide.Errorf("Failed to write tile %s: %v\n", path, err)
		return nil, status.Error(codes.Internal, "failed to write tile")
	}
	return &PutTileResponse{Success: true}, nil
}

func (s *FileStore) HealthCheck(ctx context.Context, req *HealthCheckRequest) (*HealthCheckResponse, error) {
	return &HealthCheckResponse{Healthy: true}, nil
}

// logUnary logs every call with its duration and outcome.
func logUnary(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	timedLog := slide.NewTimeLog()
	resp, err := handler(ctx, req)
	if err != nil && status.Code(err) != codes.NotFound {
		timedLog.Warningf("%s failed: %v", info.FullMethod, err)
	} else {
		timedLog.Debugf("%s (%s)", info.FullMethod, status.Code(err))
	}
	return resp, err
}

// NewServer returns a gRPC server with the tile service registered.  Extra options are
// appended to the defaults.
func NewServer(srv TileServer, opts ...grpc.ServerOption) *grpc.Server {
	serverOpts := []grpc.ServerOption{
		grpc.ForceServerCodec(Codec{}),
		grpc.MaxRecvMsgSize(MaxMessageSize),
		grpc.MaxSendMsgSize(MaxMessageSize),
		grpc.ChainUnaryInterceptor(logUnary),
	}
	s := grpc.NewServer(append(serverOpts, opts...)...)
	RegisterTileServer(s, srv)
	return s
}
