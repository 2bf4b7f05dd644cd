package txbuilder

import (
	"fmt"
	"math/big"
	"sort"
)

// Minimal canonical CBOR encoder for the transaction shapes this package
// produces: definite lengths only, map keys sorted by their encoded bytes,
// big integers as tag-2 bignums.

const (
	majorUint   = 0
	majorNegInt = 1
	majorBytes  = 2
	majorText   = 3
	majorArray  = 4
	majorMap    = 5
	majorTag    = 6
)

func appendHead(b []byte, major byte, v uint64) []byte {
	mt := major << 5
	switch {
	case v < 24:
		return append(b, mt|byte(v))
	case v <= 0xff:
		return append(b, mt|24, byte(v))
	case v <= 0xffff:
		return append(b, mt|25, byte(v>>8), byte(v))
	case v <= 0xffffffff:
		return append(b, mt|26, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	default:
		return append(b, mt|27,
			byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
			byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	}
}

func appendValue(b []byte, v interface{}) ([]byte, error) {
	switch x := v.(type) {
	case uint64:
		return appendHead(b, majorUint, x), nil
	case int:
		if x >= 0 {
			return appendHead(b, majorUint, uint64(x)), nil
		}
		return appendHead(b, majorNegInt, uint64(-x-1)), nil
	case int64:
		if x >= 0 {
			return appendHead(b, majorUint, uint64(x)), nil
		}
		return appendHead(b, majorNegInt, uint64(-x-1)), nil
	case *big.Int:
		if x.IsUint64() {
			return appendHead(b, majorUint, x.Uint64()), nil
		}
		if x.Sign() < 0 {
			return nil, fmt.Errorf("negative bignum not supported")
		}
		b = appendHead(b, majorTag, 2)
		raw := x.Bytes()
		b = appendHead(b, majorBytes, uint64(len(raw)))
		return append(b, raw...), nil
	case []byte:
		b = appendHead(b, majorBytes, uint64(len(x)))
		return append(b, x...), nil
	case string:
		b = appendHead(b, majorText, uint64(len(x)))
		return append(b, x...), nil
	case []interface{}:
		b = appendHead(b, majorArray, uint64(len(x)))
		var err error
		for _, item := range x {
			if b, err = appendValue(b, item); err != nil {
				return nil, err
			}
		}
		return b, nil
	case map[interface{}]interface{}:
		return appendMap(b, x)
	default:
		return nil, fmt.Errorf("cbor: unsupported type %T", v)
	}
}

func appendMap(b []byte, m map[interface{}]interface{}) ([]byte, error) {
	type pair struct {
		key   []byte
		value interface{}
	}

	pairs := make([]pair, 0, len(m))
	for k, v := range m {
		encoded, err := appendValue(nil, k)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair{key: encoded, value: v})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if len(pairs[i].key) != len(pairs[j].key) {
			return len(pairs[i].key) < len(pairs[j].key)
		}
		return string(pairs[i].key) < string(pairs[j].key)
	})

	b = appendHead(b, majorMap, uint64(len(pairs)))
	var err error
	for _, p := range pairs {
		b = append(b, p.key...)
		if b, err = appendValue(b, p.value); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// encode serializes v as canonical CBOR.
func encode(v interface{}) ([]byte, error) {
	return appendValue(nil, v)
}
