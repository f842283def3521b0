package nodestore

import (
	"encoding/binary"
	"errors"
)

// Codec errors.
var (
	ErrBadEncoding = errors.New("value bytes do not match the codec's encoding")
)

// Codec converts keys or values to and from their stored byte form.
type Codec[T any] interface {
	Encode(v T) ([]byte, error)
	Decode(data []byte) (T, error)
}

// StringCodec stores strings as their raw bytes.
type StringCodec struct{}

func (StringCodec) Encode(v string) ([]byte, error) { return []byte(v), nil }

func (StringCodec) Decode(data []byte) (string, error) { return string(data), nil }

// BytesCodec stores byte slices as-is. Decode copies, so decoded values
// do not alias block buffers.
type BytesCodec struct{}

func (BytesCodec) Encode(v []byte) ([]byte, error) { return v, nil }

func (BytesCodec) Decode(data []byte) ([]byte, error) {
	return append([]byte(nil), data...), nil
}

// Uint64Codec stores uint64 values as 8 little-endian bytes.
type Uint64Codec struct{}

func (Uint64Codec) Encode(v uint64) ([]byte, error) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b[:], nil
}

func (Uint64Codec) Decode(data []byte) (uint64, error) {
	if len(data) != 8 {
		return 0, ErrBadEncoding
	}
	return binary.LittleEndian.Uint64(data), nil
}
