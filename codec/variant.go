package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// ErrNoVariant is returned when an outbound union holds no concrete variant.
var ErrNoVariant = errors.New("no variant set")

// EncodeVariant writes body as a JSON object prefixed with the discriminant
// field set to tag. body must marshal to an object (or be nil) and must not
// carry the discriminant itself.
func EncodeVariant(field, tag string, body any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	fb, _ := json.Marshal(field)
	tb, _ := json.Marshal(tag)
	buf.Write(fb)
	buf.WriteByte(':')
	buf.Write(tb)

	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		res := gjson.ParseBytes(b)
		if !res.IsObject() {
			return nil, fmt.Errorf("variant %q: body must be an object, got %s", tag, kindOf(res))
		}
		if res.Get(field).Exists() {
			return nil, fmt.Errorf("variant %q: body already sets %q", tag, field)
		}
		inner := bytes.TrimSpace(b[1 : len(b)-1])
		if len(inner) > 0 {
			buf.WriteByte(',')
			buf.Write(inner)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
