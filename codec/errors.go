// Package codec is the polymorphic JSON toolkit used to map WebDriver BiDi
// payloads onto Go shapes.
//
// The protocol is full of tagged unions (script results keyed by "type",
// remote values, log entries), enums with fixed wire tokens and objects that
// grow new properties between browser releases. The pieces here handle each of
// those explicitly instead of leaning on reflection:
//
//   - Reader:  typed, validating access to the fields of one JSON object
//   - Union:   discriminant-first decoding of tagged unions
//   - Enum:    bidirectional value <-> wire token tables
//   - Object:  ordered overflow properties (AdditionalData)
//   - EncodeVariant: outbound tagged variants
package codec

import (
	"fmt"
	"strings"
)

// DecodeError reports a structural problem with an inbound payload: a missing
// required field, a field of the wrong JSON kind or an unknown discriminant.
type DecodeError struct {
	Shape  string // Name of the shape being decoded, e.g. "script.EvaluateResult"
	Field  string // Dotted path of the offending field, empty for the whole payload
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("decode %s: %s", e.Shape, e.Reason)
	}
	return fmt.Sprintf("decode %s: field %q: %s", e.Shape, e.Field, e.Reason)
}

func joinPath(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ".")
}
