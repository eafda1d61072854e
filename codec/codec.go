// Package codec turns typed values into the bytes fallcache stores.
package codec

// Codec encodes and decodes values V for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
