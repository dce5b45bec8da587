package storageapi

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/histion/slidetile/slide"
)

func TestGetTileRequestWire(t *testing.T) {
	id, _ := slide.ParseSlideID("8f3a2b1c-0d4e-4f5a-9b6c-7d8e9f0a1b2c")
	req := &GetTileRequest{ID: id.Bytes(), X: 3, Y: 0, Level: 150}
	b, err := req.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	// bytes id = 1, uint32 x = 2, zero y omitted, uint32 level = 4 as a two byte varint
	expected := append([]byte{0x0a, 16}, id.Bytes()...)
	expected = append(expected, 0x10, 3, 0x20, 0x96, 0x01)
	if !bytes.Equal(b, expected) {
		t.Errorf("unexpected encoding:\n got %x\nwant %x\n", b, expected)
	}

	var got GetTileRequest
	if err := got.Unmarshal(b); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.ID, id.Bytes()) || got.X != 3 || got.Y != 0 || got.Level != 150 {
		t.Errorf("bad decode: %+v\n", got)
	}
}

func TestUnknownFieldsSkipped(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, 9, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte("future"))
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, 1)
	b = protowire.AppendTag(b, 10, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, 7)

	var resp HealthCheckResponse
	if err := resp.Unmarshal(b); err != nil {
		t.Fatalf("unexpected error: %v\n", err)
	}
	if !resp.Healthy {
		t.Errorf("expected healthy flag to survive unknown fields\n")
	}

	if err := resp.Unmarshal([]byte{0x08}); err == nil {
		t.Errorf("expected truncated varint to fail\n")
	}
	var tile GetTileResponse
	if err := tile.Unmarshal([]byte{0x08, 0x01}); err == nil {
		t.Errorf("expected wrong wire type for data to fail\n")
	}
}

func TestCodec(t *testing.T) {
	c := Codec{}
	if c.Name() != "proto" {
		t.Errorf("unexpected codec name %q\n", c.Name())
	}
	if _, err := c.Marshal("not a message"); err == nil {
		t.Errorf("expected marshal of foreign type to fail\n")
	}
	b, err := c.Marshal(&PutTileRequest{Data: []byte{1, 2}})
	if err != nil {
		t.Fatal(err)
	}
	var req PutTileRequest
	if err := c.Unmarshal(b, &req); err != nil || !bytes.Equal(req.Data, []byte{1, 2}) {
		t.Errorf("bad round trip %+v: %v\n", req, err)
	}
}

func TestFileStoreOverGRPC(t *testing.T) {
	root := t.TempDir()
	client, stop, err := StartBufconn(&FileStore{Root: root})
	if err != nil {
		t.Fatal(err)
	}
	defer stop()
	ctx := context.Background()

	healthy, err := client.HealthCheck(ctx)
	if err != nil || !healthy {
		t.Fatalf("expected healthy service, got %t, %v\n", healthy, err)
	}

	id, _ := slide.ParseSlideID("8f3a2b1c0d4e4f5a9b6c7d8e9f0a1b2c")
	if _, err := client.GetTile(ctx, id, 4, 5, 1); status.Code(err) != codes.NotFound {
		t.Errorf("expected NotFound before put, got %v\n", err)
	}

	payload := []byte("RIFF....WEBPVP8 fake")
	ok, err := client.PutTile(ctx, id, 4, 5, 1, payload)
	if err != nil || !ok {
		t.Fatalf("put failed: %t, %v\n", ok, err)
	}
	path := filepath.Join(root, uuid.UUID(id).String(), "1", "4_5.webp")
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected tile stored at %s: %v\n", path, err)
	}

	data, err := client.GetTile(ctx, id, 4, 5, 1)
	if err != nil {
		t.Fatalf("get failed: %v\n", err)
	}
	if !bytes.Equal(data, payload) {
		t.Errorf("expected %q, got %q\n", payload, data)
	}
}

func TestInvalidID(t *testing.T) {
	store := &FileStore{Root: t.TempDir()}
	_, err := store.GetTile(context.Background(), &GetTileRequest{ID: []byte{1, 2, 3}})
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("expected InvalidArgument, got %v\n", err)
	}
	_, err = store.PutTile(context.Background(), &PutTileRequest{})
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("expected InvalidArgument for empty id, got %v\n", err)
	}
}
