package engine

import (
	"reflect"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/rungalileo/gcache/cache"
)

// typedCodec decodes into a concrete Go type instead of the generic
// map[string]any msgpack.Unmarshal produces when the target is `any`.
// Without this, a RemoteTier round trip would hand Cached[A, R] a
// map back where it promised an R, which is a correctness bug every
// registration needs to avoid — not an edge case, the default shape of
// any struct-valued use case.
type typedCodec struct {
	typ reflect.Type
}

// newTypedCodec builds a cache.Codec that decodes into a value of the
// given type, attached to a Key by Cached's registration so
// tier.RemoteTier's codecFor picks it up instead of the package default.
func newTypedCodec(typ reflect.Type) cache.Codec {
	return typedCodec{typ: typ}
}

func (c typedCodec) Encode(value any) ([]byte, error) {
	return msgpack.Marshal(value)
}

func (c typedCodec) Decode(data []byte) (any, error) {
	ptr := reflect.New(c.typ)
	if err := msgpack.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, err
	}
	return ptr.Elem().Interface(), nil
}
