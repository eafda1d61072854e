package codec

import (
	"errors"
	"fmt"
)

// ErrTooLarge is returned by Limit.Decode for payloads over MaxDecode.
var ErrTooLarge = errors.New("codec: payload too large")

// Limit wraps another codec to cap the payload size accepted by Decode.
// Encode is forwarded to Inner unchanged. MaxDecode <= 0 disables the cap.
//
// Values come back from a shared remote store, so a cap keeps one oversized
// entry from being decoded by every reader.
type Limit[V any] struct {
	Inner     Codec[V]
	MaxDecode int
}

func (c Limit[V]) Encode(v V) ([]byte, error) { return c.Inner.Encode(v) }
func (c Limit[V]) Decode(b []byte) (V, error) {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		var zero V
		return zero, fmt.Errorf("%w: %d > %d", ErrTooLarge, len(b), c.MaxDecode)
	}
	return c.Inner.Decode(b)
}
