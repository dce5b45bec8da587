package storageapi

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Message is implemented by every request and response of the tile service.
type Message interface {
	Marshal() ([]byte, error)
	Unmarshal([]byte) error
}

// GetTileRequest asks for the encoded tile at (X, Y) of a level of slide ID.
type GetTileRequest struct {
	ID    []byte
	X     uint32
	Y     uint32
	Level uint32
}

// GetTileResponse carries the encoded tile image.
type GetTileResponse struct {
	Data []byte
}

// PutTileRequest stores an encoded tile.
type PutTileRequest struct {
	ID    []byte
	X     uint32
	Y     uint32
	Level uint32
	Data  []byte
}

// PutTileResponse reports whether a tile was stored.
type PutTileResponse struct {
	Success bool
}

// HealthCheckRequest is empty.
type HealthCheckRequest struct{}

// HealthCheckResponse reports service liveness.
type HealthCheckResponse struct {
	Healthy bool
}

const (
	fieldID    protowire.Number = 1
	fieldX     protowire.Number = 2
	fieldY     protowire.Number = 3
	fieldLevel protowire.Number = 4
	fieldData  protowire.Number = 5
)

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	return appendUint(b, num, 1)
}

// fieldFunc handles one decoded field and returns the number of bytes consumed, or a
// negative value to skip the field.
type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

func decodeFields(b []byte, f fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		m, err := f(num, typ, b)
		if err != nil {
			return err
		}
		if m < 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return protowire.ParseError(m)
			}
		}
		b = b[m:]
	}
	return nil
}

func consumeBytes(typ protowire.Type, b []byte, dst *[]byte) (int, error) {
	if typ != protowire.BytesType {
		return 0, fmt.Errorf("expected bytes field, got wire type %d", typ)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*dst = append([]byte(nil), v...)
	return n, nil
}

func consumeUint32(typ protowire.Type, b []byte, dst *uint32) (int, error) {
	if typ != protowire.VarintType {
		return 0, fmt.Errorf("expected varint field, got wire type %d", typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*dst = uint32(v)
	return n, nil
}

func consumeBool(typ protowire.Type, b []byte, dst *bool) (int, error) {
	if typ != protowire.VarintType {
		return 0, fmt.Errorf("expected varint field, got wire type %d", typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*dst = protowire.DecodeBool(v)
	return n, nil
}

func (m *GetTileRequest) Marshal() ([]byte, error) {
	var b []byte
	b = appendBytes(b, fieldID, m.ID)
	b = appendUint(b, fieldX, uint64(m.X))
	b = appendUint(b, fieldY, uint64(m.Y))
	b = appendUint(b, fieldLevel, uint64(m.Level))
	return b, nil
}

func (m *GetTileRequest) Unmarshal(b []byte) error {
	*m = GetTileRequest{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldID:
			return consumeBytes(typ, b, &m.ID)
		case fieldX:
			return consumeUint32(typ, b, &m.X)
		case fieldY:
			return consumeUint32(typ, b, &m.Y)
		case fieldLevel:
			return consumeUint32(typ, b, &m.Level)
		}
		return -1, nil
	})
}

func (m *GetTileResponse) Marshal() ([]byte, error) {
	return appendBytes(nil, 1, m.Data), nil
}

func (m *GetTileResponse) Unmarshal(b []byte) error {
	*m = GetTileResponse{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			return consumeBytes(typ, b, &m.Data)
		}
		return -1, nil
	})
}

func (m *PutTileRequest) Marshal() ([]byte, error) {
	var b []byte
	b = appendBytes(b, fieldID, m.ID)
	b = appendUint(b, fieldX, uint64(m.X))
	b = appendUint(b, fieldY, uint64(m.Y))
	b = appendUint(b, fieldLevel, uint64(m.Level))
	b = appendBytes(b, fieldData, m.Data)
	return b, nil
}

func (m *PutTileRequest) Unmarshal(b []byte) error {
	*m = PutTileRequest{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldID:
			return consumeBytes(typ, b, &m.ID)
		case fieldX:
			return consumeUint32(typ, b, &m.X)
		case fieldY:
			return consumeUint32(typ, b, &m.Y)
		case fieldLevel:
			return consumeUint32(typ, b, &m.Level)
		case fieldData:
			return consumeBytes(typ, b, &m.Data)
		}
		return -1, nil
	})
}

func (m *PutTileResponse) Marshal() ([]byte, error) {
	return appendBool(nil, 1, m.Success), nil
}

func (m *PutTileResponse) Unmarshal(b []byte) error {
	*m = PutTileResponse{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			return consumeBool(typ, b, &m.Success)
		}
		return -1, nil
	})
}

func (m *HealthCheckRequest) Marshal() ([]byte, error) {
	return nil, nil
}

func (m *HealthCheckRequest) Unmarshal(b []byte) error {
	return decodeFields(b, func(protowire.Number, protowire.Type, []byte) (int, error) {
		return -1, nil
	})
}

func (m *HealthCheckResponse) Marshal() ([]byte, error) {
	return appendBool(nil, 1, m.Healthy), nil
}

func (m *HealthCheckResponse) Unmarshal(b []byte) error {
	*m = HealthCheckResponse{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			return consumeBool(typ, b, &m.Healthy)
		}
		return -1, nil
	})
}
