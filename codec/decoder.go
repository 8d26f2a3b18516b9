package codec

import (
	"encoding/json"
)

// Decoder turns the raw JSON of one payload into a concrete shape. The
// awaiting command (or the event registration) supplies the Decoder, so result
// shapes are always resolved per call and never by global type inference.
type Decoder[T any] func(raw []byte) (T, error)

// Shape builds a Decoder that reads fields through a Reader and fails if any
// read failed.
func Shape[T any](name string, fn func(r *Reader) T) Decoder[T] {
	return func(raw []byte) (T, error) {
		r := NewReader(name, raw)
		v := fn(r)
		if err := r.Err(); err != nil {
			var zero T
			return zero, err
		}
		return v, nil
	}
}

// JSON wraps encoding/json for shapes without required fields or unions.
func JSON[T any](name string) Decoder[T] {
	return func(raw []byte) (T, error) {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return v, &DecodeError{Shape: name, Reason: err.Error()}
		}
		return v, nil
	}
}

// EmptyResult is the result of commands that answer with an empty object.
type EmptyResult struct {
	AdditionalData *Object
}

// Empty decodes an EmptyResult, keeping whatever the remote end sent anyway.
var Empty Decoder[EmptyResult] = Shape("EmptyResult", func(r *Reader) EmptyResult {
	return EmptyResult{AdditionalData: r.AdditionalData()}
})
