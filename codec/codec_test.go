package codec

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type proxyType int

const (
	proxyDirect proxyType = iota
	proxyManual
	proxyAutoConfig
	proxyAutodetect
	proxySystem
)

var proxyTypes = NewEnum("ProxyType", []EnumValue[proxyType]{
	{Value: proxyDirect, Name: "Direct"},
	{Value: proxyManual, Name: "Manual"},
	{Value: proxyAutoConfig, Name: "ProxyAutoConfig", Wire: "pac"},
	{Value: proxyAutodetect, Name: "AutoDetect"},
	{Value: proxySystem, Name: "System"},
})

type level int

const (
	levelUnknown level = iota
	levelInfo
	levelError
)

var levels = NewEnum("Level", []EnumValue[level]{
	{Value: levelUnknown, Name: "Unknown"},
	{Value: levelInfo, Name: "Info"},
	{Value: levelError, Name: "Error"},
}, WithDefault(levelUnknown))

func TestEnumTokens(t *testing.T) {
	t.Parallel()

	names := map[proxyType]string{
		proxyDirect:     "direct",
		proxyManual:     "manual",
		proxyAutoConfig: "pac",
		proxyAutodetect: "autodetect",
		proxySystem:     "system",
	}
	for _, v := range proxyTypes.Values() {
		tok, err := proxyTypes.Token(v)
		require.NoError(t, err)
		assert.Equal(t, names[v], tok)

		back, err := proxyTypes.Parse(tok)
		require.NoError(t, err)
		assert.Equal(t, v, back)
	}
}

func TestEnumUnknownToken(t *testing.T) {
	t.Parallel()

	_, err := proxyTypes.Parse("socks")
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Contains(t, de.Error(), `unknown value "socks"`)

	v, err := levels.Parse("verbose")
	require.NoError(t, err)
	assert.Equal(t, levelUnknown, v)

	_, err = proxyTypes.Token(proxyType(42))
	assert.Error(t, err)
}

func TestEnumJSON(t *testing.T) {
	t.Parallel()

	b, err := proxyTypes.Marshal(proxyAutoConfig)
	require.NoError(t, err)
	assert.Equal(t, `"pac"`, string(b))

	var v proxyType
	require.NoError(t, proxyTypes.Unmarshal([]byte(`"manual"`), &v))
	assert.Equal(t, proxyManual, v)

	assert.Error(t, proxyTypes.Unmarshal([]byte(`3`), &v))
}

func TestEnumDuplicateTokenPanics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() {
		NewEnum("Broken", []EnumValue[int]{
			{Value: 1, Name: "One", Wire: "x"},
			{Value: 2, Name: "Two", Wire: "x"},
		})
	})
}

type evalResult struct {
	Kind      string
	Value     json.RawMessage
	Text      string
	LineNo    int64
	Realm     string
	Remaining *Object
}

var evalResults = NewUnion[evalResult]("EvaluateResult", "type").
	Variant("success", Shape("EvaluateResultSuccess", func(r *Reader) evalResult {
		return evalResult{
			Kind:      r.String("type"),
			Value:     r.Raw("result"),
			Realm:     r.String("realm"),
			Remaining: r.AdditionalData(),
		}
	})).
	Variant("exception", Shape("EvaluateResultException", func(r *Reader) evalResult {
		r.String("type")
		details := r.Object("exceptionDetails")
		return evalResult{
			Kind:   "exception",
			Text:   details.String("text"),
			LineNo: details.Int("lineNumber"),
			Realm:  r.String("realm"),
		}
	}))

func TestUnionSelectsVariant(t *testing.T) {
	t.Parallel()

	res, err := evalResults.Decode([]byte(`{"type":"success","result":{"type":"number","value":3},"realm":"r1"}`))
	require.NoError(t, err)
	assert.Equal(t, "success", res.Kind)
	assert.JSONEq(t, `{"type":"number","value":3}`, string(res.Value))
	assert.Nil(t, res.Remaining)

	res, err = evalResults.Decode([]byte(`{"type":"exception","exceptionDetails":{"text":"boom","lineNumber":4},"realm":"r1"}`))
	require.NoError(t, err)
	assert.Equal(t, "exception", res.Kind)
	assert.Equal(t, "boom", res.Text)
	assert.EqualValues(t, 4, res.LineNo)
}

func TestUnionFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		reason string
	}{
		{"unknown discriminant", `{"type":"pending"}`, `unknown discriminant "pending"`},
		{"missing discriminant", `{"result":{}}`, "missing discriminant"},
		{"discriminant kind", `{"type":1}`, "expected string, got number"},
		{"not an object", `[1,2]`, "expected object, got array"},
		{"missing nested field", `{"type":"exception","exceptionDetails":{"lineNumber":4},"realm":"r"}`, `field "exceptionDetails.text": missing required field`},
		{"wrong nested kind", `{"type":"exception","exceptionDetails":{"text":"x","lineNumber":"4"},"realm":"r"}`, `field "exceptionDetails.lineNumber": expected integer, got string`},
		{"invalid json", `{"type":`, "invalid JSON"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := evalResults.Decode([]byte(tt.input))
			var de *DecodeError
			require.True(t, errors.As(err, &de), "expected DecodeError, got %v", err)
			assert.Contains(t, de.Error(), tt.reason)
		})
	}
}

func TestUnionFallback(t *testing.T) {
	t.Parallel()

	u := NewUnion[string]("Value", "").
		Variant("string", Shape("StringValue", func(r *Reader) string { return r.String("value") })).
		Fallback(Shape("OtherValue", func(r *Reader) string { return "other:" + r.String("type") }))

	v, err := u.Decode([]byte(`{"type":"bigint","value":"1"}`))
	require.NoError(t, err)
	assert.Equal(t, "other:bigint", v)
	assert.Equal(t, []string{"string"}, u.Tags())
}

func TestReaderAdditionalDataKeepsOrder(t *testing.T) {
	t.Parallel()

	r := NewReader("Status", []byte(`{"zeta":1,"ready":true,"alpha":{"b":[1,"x",null],"a":false},"message":"ok"}`))
	assert.True(t, r.Bool("ready"))
	assert.Equal(t, "ok", r.String("message"))
	extra := r.AdditionalData()
	require.NoError(t, r.Err())

	require.NotNil(t, extra)
	assert.Equal(t, []string{"zeta", "alpha"}, extra.Keys())

	zeta, _ := extra.Get("zeta")
	assert.Equal(t, json.Number("1"), zeta)

	alpha, _ := extra.Get("alpha")
	nested, ok := alpha.(*Object)
	require.True(t, ok)
	assert.Equal(t, []string{"b", "a"}, nested.Keys())
	b, _ := nested.Get("b")
	assert.Equal(t, []any{json.Number("1"), "x", nil}, b)

	out, err := json.Marshal(extra)
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":1,"alpha":{"b":[1,"x",null],"a":false}}`, string(out))
}

func TestReaderOptionalFields(t *testing.T) {
	t.Parallel()

	r := NewReader("Entry", []byte(`{"text":null,"count":2,"tags":["a","b"]}`))
	_, ok := r.OptionalString("text")
	assert.False(t, ok)
	_, ok = r.OptionalString("missing")
	assert.False(t, ok)
	n, ok := r.OptionalInt("count")
	assert.True(t, ok)
	assert.EqualValues(t, 2, n)
	tags, ok := r.OptionalStrings("tags")
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, tags)
	require.NoError(t, r.Err())

	_, ok = r.OptionalBool("count")
	assert.False(t, ok)
	assert.EqualError(t, r.Err(), `decode Entry: field "count": expected boolean, got number`)
}

func TestReaderFirstErrorSticks(t *testing.T) {
	t.Parallel()

	r := NewReader("Thing", []byte(`{"a":"x"}`))
	r.Int("a")
	r.String("missing")
	assert.EqualError(t, r.Err(), `decode Thing: field "a": expected integer, got string`)
}

func TestFieldAndList(t *testing.T) {
	t.Parallel()

	dec := Shape("Tree", func(r *Reader) []evalResult {
		return List(r, "results", evalResults.Decoder())
	})
	res, err := dec([]byte(`{"results":[{"type":"success","result":1,"realm":"a"},{"type":"success","result":2,"realm":"b"}]}`))
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "b", res[1].Realm)

	_, err = dec([]byte(`{"results":[{"type":"success","result":1,"realm":"a"},{"type":"nope"}]}`))
	assert.ErrorContains(t, err, `field "results.1": field "type": unknown discriminant "nope"`)

	single := Shape("Wrapper", func(r *Reader) proxyType {
		return EnumField(r, "proxyType", proxyTypes)
	})
	v, err := single([]byte(`{"proxyType":"pac"}`))
	require.NoError(t, err)
	assert.Equal(t, proxyAutoConfig, v)

	_, err = single([]byte(`{"proxyType":"bogus"}`))
	assert.ErrorContains(t, err, `field "proxyType": unknown value "bogus"`)
}

func TestEncodeVariant(t *testing.T) {
	t.Parallel()

	b, err := EncodeVariant("type", "archivePath", struct {
		Path string `json:"path"`
	}{Path: "/tmp/ext.zip"})
	require.NoError(t, err)
	assert.Equal(t, `{"type":"archivePath","path":"/tmp/ext.zip"}`, string(b))

	b, err = EncodeVariant("type", "empty", nil)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"empty"}`, string(b))

	_, err = EncodeVariant("type", "bad", []int{1})
	assert.Error(t, err)

	_, err = EncodeVariant("type", "clash", map[string]string{"type": "other"})
	assert.Error(t, err)
}

func TestEmptyDecoder(t *testing.T) {
	t.Parallel()

	res, err := Empty([]byte(`{}`))
	require.NoError(t, err)
	assert.Nil(t, res.AdditionalData)

	res, err = Empty([]byte(`{"vendor:extra":1}`))
	require.NoError(t, err)
	assert.Equal(t, 1, res.AdditionalData.Len())

	_, err = Empty([]byte(`"nope"`))
	assert.Error(t, err)
}
