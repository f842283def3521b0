package nodestore

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/quilldb/quill/internal/storage/btree"
)

// nodeFormatVersion is the first byte of every serialized node. Bump it
// when the layout changes; Decode rejects versions it does not know.
const nodeFormatVersion = 1

const (
	tagLeaf     = 1
	tagInternal = 2
)

// Serialization errors.
var (
	ErrBadNodeVersion = errors.New("unknown node format version")
	ErrBadNodeTag     = errors.New("unknown node kind tag")
	ErrTruncatedNode  = errors.New("node bytes end before the encoded fields do")
	ErrValueTooLarge  = errors.New("encoded value exceeds the format's length field")
)

// Serialized layout, all integers little-endian:
//
//	version:u8 | tag:u8 | entryCount:u16 | body
//
// leaf body:      next:u32 | entryCount * (keyLen:u16 key | valLen:u32 val)
// internal body:  entryCount * (keyLen:u16 key) | (entryCount+1) * child:u32

func encodeNode[K, V any](n *btree.Node[K, V], keys Codec[K], vals Codec[V]) ([]byte, error) {
	buf := make([]byte, 0, 64)
	buf = append(buf, nodeFormatVersion)

	switch n.Kind {
	case btree.KindLeaf:
		buf = append(buf, tagLeaf)
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(n.Keys)))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(n.Next))
		for i, k := range n.Keys {
			kb, err := keys.Encode(k)
			if err != nil {
				return nil, err
			}
			if len(kb) > math.MaxUint16 {
				return nil, btree.ErrKeyTooLarge
			}
			vb, err := vals.Encode(n.Vals[i])
			if err != nil {
				return nil, err
			}
			if uint64(len(vb)) > math.MaxUint32 {
				return nil, ErrValueTooLarge
			}
			buf = binary.LittleEndian.AppendUint16(buf, uint16(len(kb)))
			buf = append(buf, kb...)
			buf = binary.LittleEndian.AppendUint32(buf, uint32(len(vb)))
			buf = append(buf, vb...)
		}
		return buf, nil

	case btree.KindInternal:
		buf = append(buf, tagInternal)
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(n.Keys)))
		for _, k := range n.Keys {
			kb, err := keys.Encode(k)
			if err != nil {
				return nil, err
			}
			if len(kb) > math.MaxUint16 {
				return nil, btree.ErrKeyTooLarge
			}
			buf = binary.LittleEndian.AppendUint16(buf, uint16(len(kb)))
			buf = append(buf, kb...)
		}
		for _, c := range n.Children {
			buf = binary.LittleEndian.AppendUint32(buf, uint32(c))
		}
		return buf, nil

	default:
		return nil, ErrBadNodeTag
	}
}

func decodeNode[K, V any](data []byte, keys Codec[K], vals Codec[V]) (*btree.Node[K, V], error) {
	r := reader{data: data}

	version, err := r.u8()
	if err != nil {
		return nil, err
	}
	if version != nodeFormatVersion {
		return nil, ErrBadNodeVersion
	}
	tag, err := r.u8()
	if err != nil {
		return nil, err
	}
	count, err := r.u16()
	if err != nil {
		return nil, err
	}

	switch tag {
	case tagLeaf:
		n := btree.NewLeaf[K, V]()
		next, err := r.u32()
		if err != nil {
			return nil, err
		}
		n.Next = btree.Ref(next)
		for i := 0; i < int(count); i++ {
			klen, err := r.u16()
			if err != nil {
				return nil, err
			}
			kb, err := r.bytes(int(klen))
			if err != nil {
				return nil, err
			}
			k, err := keys.Decode(kb)
			if err != nil {
				return nil, err
			}
			vlen, err := r.u32()
			if err != nil {
				return nil, err
			}
			vb, err := r.bytes(int(vlen))
			if err != nil {
				return nil, err
			}
			v, err := vals.Decode(vb)
			if err != nil {
				return nil, err
			}
			n.Keys = append(n.Keys, k)
			n.Vals = append(n.Vals, v)
		}
		return n, nil

	case tagInternal:
		ks := make([]K, 0, count)
		for i := 0; i < int(count); i++ {
			klen, err := r.u16()
			if err != nil {
				return nil, err
			}
			kb, err := r.bytes(int(klen))
			if err != nil {
				return nil, err
			}
			k, err := keys.Decode(kb)
			if err != nil {
				return nil, err
			}
			ks = append(ks, k)
		}
		children := make([]btree.Ref, 0, count+1)
		for i := 0; i <= int(count); i++ {
			c, err := r.u32()
			if err != nil {
				return nil, err
			}
			children = append(children, btree.Ref(c))
		}
		return btree.NewInternal[K, V](ks, children), nil

	default:
		return nil, ErrBadNodeTag
	}
}

// reader is a little-endian cursor over a node's bytes. Blob reads may
// return trailing padding past the encoded fields, so it only errors
// when a field runs off the end.
type reader struct {
	data []byte
	off  int
}

func (r *reader) bytes(n int) ([]byte, error) {
	if r.off+n > len(r.data) {
		return nil, ErrTruncatedNode
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) u8() (byte, error) {
	b, err := r.bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) u16() (uint16, error) {
	b, err := r.bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *reader) u32() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}
