package codec

import (
	"errors"
	"fmt"
)

// ErrUnknownName is returned when Enum sees a value or name outside its table.
var ErrUnknownName = errors.New("codec: unknown enum name")

// Enum stores a closed set of values by their names, so the stored form
// survives reordering of the Go constants.
type Enum[V comparable] struct {
	names  map[V]string
	values map[string]V
}

// NewEnum builds an Enum from names. Names must be unique.
func NewEnum[V comparable](names map[V]string) (Enum[V], error) {
	values := make(map[string]V, len(names))
	for v, n := range names {
		if _, dup := values[n]; dup {
			return Enum[V]{}, fmt.Errorf("codec: duplicate enum name %q", n)
		}
		values[n] = v
	}
	cp := make(map[V]string, len(names))
	for v, n := range names {
		cp[v] = n
	}
	return Enum[V]{names: cp, values: values}, nil
}

func (e Enum[V]) Encode(v V) ([]byte, error) {
	n, ok := e.names[v]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownName, v)
	}
	return []byte(n), nil
}

func (e Enum[V]) Decode(b []byte) (V, error) {
	v, ok := e.values[string(b)]
	if !ok {
		var zero V
		return zero, fmt.Errorf("%w: %q", ErrUnknownName, b)
	}
	return v, nil
}
