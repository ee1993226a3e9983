// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pbq

import "encoding/json"

// Serializer converts elements to and from the raw bytes stored in the
// page files.
//
// The queue calls the serializer outside its lock (except in All, which
// decodes while holding it), so implementations MUST be safe for
// concurrent use when the queue is shared across goroutines. Encode must not return a nil slice for a nil error; an
// empty slice is valid.
type Serializer[T any] interface {
	// Encode converts an element to bytes.
	Encode(elem T) ([]byte, error)

	// Decode reconstructs an element from bytes produced by Encode.
	Decode(data []byte) (T, error)
}

// JSONSerializer is the default codec. It stores elements as their
// JSON encoding.
type JSONSerializer[T any] struct{}

func (JSONSerializer[T]) Encode(elem T) ([]byte, error) {
	return json.Marshal(elem)
}

func (JSONSerializer[T]) Decode(data []byte) (T, error) {
	var elem T
	err := json.Unmarshal(data, &elem)
	return elem, err
}

// BytesSerializer stores byte slices as-is.
type BytesSerializer struct{}

func (BytesSerializer) Encode(elem []byte) ([]byte, error) {
	if elem == nil {
		return []byte{}, nil
	}
	return elem, nil
}

func (BytesSerializer) Decode(data []byte) ([]byte, error) {
	return data, nil
}

// StringSerializer stores strings as their raw bytes.
type StringSerializer struct{}

func (StringSerializer) Encode(elem string) ([]byte, error) {
	return []byte(elem), nil
}

func (StringSerializer) Decode(data []byte) (string, error) {
	return string(data), nil
}
