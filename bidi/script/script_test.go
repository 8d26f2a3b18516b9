package script

import (
	"context"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"mini-bidi/bidi/biditest"
	"mini-bidi/codec"
	"mini-bidi/event"
)

func TestDecodeRemoteValuePrimitives(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want any
	}{
		{"undefined", `{"type":"undefined"}`, nil},
		{"null", `{"type":"null"}`, nil},
		{"string", `{"type":"string","value":"hi"}`, "hi"},
		{"bigint", `{"type":"bigint","value":"123456789012345678901"}`, "123456789012345678901"},
		{"boolean", `{"type":"boolean","value":true}`, true},
		{"number", `{"type":"number","value":1.5}`, 1.5},
		{"infinity", `{"type":"number","value":"Infinity"}`, math.Inf(1)},
		{"date", `{"type":"date","value":"2024-01-01T00:00:00.000Z"}`, "2024-01-01T00:00:00.000Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := DecodeRemoteValue([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Value)
		})
	}

	v, err := DecodeRemoteValue([]byte(`{"type":"number","value":"NaN"}`))
	require.NoError(t, err)
	f, ok := v.AsNumber()
	require.True(t, ok)
	assert.True(t, math.IsNaN(f))

	v, err = DecodeRemoteValue([]byte(`{"type":"number","value":"-0"}`))
	require.NoError(t, err)
	f, _ = v.AsNumber()
	assert.True(t, math.Signbit(f))
}

func TestDecodeRemoteValueContainers(t *testing.T) {
	v, err := DecodeRemoteValue([]byte(`{
		"type": "object", "handle": "h-1",
		"value": [
			["name", {"type": "string", "value": "bidi"}],
			["tags", {"type": "array", "value": [{"type": "number", "value": 1}, {"type": "null"}]}],
			[{"type": "number", "value": 7}, {"type": "boolean", "value": false}]
		]
	}`))
	require.NoError(t, err)
	assert.Equal(t, "object", v.Type)
	assert.Equal(t, "h-1", v.Handle)
	require.Len(t, v.Properties(), 3)

	name, ok := v.Get("name")
	require.True(t, ok)
	s, ok := name.AsString()
	require.True(t, ok)
	assert.Equal(t, "bidi", s)

	tags, _ := v.Get("tags")
	require.Len(t, tags.Items(), 2)
	assert.Equal(t, "null", tags.Items()[1].Type)

	numKey, ok := v.Properties()[2].Key.(RemoteValue)
	require.True(t, ok)
	assert.Equal(t, 7.0, numKey.Value)

	re, err := DecodeRemoteValue([]byte(`{"type":"regexp","value":{"pattern":"a+","flags":"g"}}`))
	require.NoError(t, err)
	assert.Equal(t, RegExpValue{Pattern: "a+", Flags: "g"}, re.Value)

	node, err := DecodeRemoteValue([]byte(`{"type":"node","sharedId":"s-1","value":{"nodeType":1}}`))
	require.NoError(t, err)
	assert.Equal(t, "s-1", node.SharedID)
	require.NotNil(t, node.AdditionalData)
	assert.Equal(t, []string{"value"}, node.AdditionalData.Keys())

	// Depth-limited containers omit their value.
	deep, err := DecodeRemoteValue([]byte(`{"type":"array"}`))
	require.NoError(t, err)
	assert.Nil(t, deep.Items())

	future, err := DecodeRemoteValue([]byte(`{"type":"iterator","handle":"h-2"}`))
	require.NoError(t, err)
	assert.Equal(t, "iterator", future.Type)
}

func TestDecodeRemoteValueErrors(t *testing.T) {
	_, err := DecodeRemoteValue([]byte(`{"type":"string"}`))
	var de *codec.DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "value", de.Field)

	_, err = DecodeRemoteValue([]byte(`{"type":"number","value":"lots"}`))
	require.ErrorAs(t, err, &de)
	assert.Contains(t, de.Reason, "lots")

	_, err = DecodeRemoteValue([]byte(`{"type":"array","value":[{"type":"boolean","value":"yes"}]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "value.0")

	_, err = DecodeRemoteValue([]byte(`{"value":1}`))
	assert.ErrorContains(t, err, "missing discriminant")
}

func TestLocalValueEncoding(t *testing.T) {
	tests := []struct {
		v    LocalValue
		want string
	}{
		{LocalString("a"), `{"type":"string","value":"a"}`},
		{LocalNumber(2), `{"type":"number","value":2}`},
		{LocalNumber(math.Inf(-1)), `{"type":"number","value":"-Infinity"}`},
		{LocalNumber(math.Copysign(0, -1)), `{"type":"number","value":"-0"}`},
		{LocalBool(true), `{"type":"boolean","value":true}`},
		{LocalUndefined(), `{"type":"undefined"}`},
		{LocalNull(), `{"type":"null"}`},
		{Reference("h-1"), `{"handle":"h-1"}`},
		{LocalArray(LocalNull(), LocalString("x")), `{"type":"array","value":[{"type":"null"},{"type":"string","value":"x"}]}`},
		{LocalObject(LocalProperty{Key: "k", Value: LocalBool(false)}), `{"type":"object","value":[["k",{"type":"boolean","value":false}]]}`},
	}
	for _, tt := range tests {
		b, err := json.Marshal(tt.v)
		require.NoError(t, err)
		assert.JSONEq(t, tt.want, string(b))
	}

	_, err := json.Marshal(LocalValue{})
	assert.ErrorIs(t, err, codec.ErrNoVariant)
}

func TestEvaluateSuccessAndException(t *testing.T) {
	env := biditest.Start(t)
	m, err := New(env.Transport, env.Events)
	require.NoError(t, err)
	ctx := context.Background()

	params := env.Capture("script.evaluate", map[string]any{
		"type":   "success",
		"realm":  "r-1",
		"result": map[string]any{"type": "number", "value": 2},
	})
	res, err := m.Evaluate(ctx, EvaluateParameters{Expression: "1+1", Target: Target{Context: "ctx-1"}, AwaitPromise: true})
	require.NoError(t, err)
	require.True(t, res.OK())
	success, ok := res.Value.(*EvaluateResultSuccess)
	require.True(t, ok)
	assert.Equal(t, 2.0, success.Result.Value)
	assert.Equal(t, "r-1", success.RealmID())

	sent := gjson.ParseBytes(biditest.Await(t, params))
	assert.Equal(t, "1+1", sent.Get("expression").Str)
	assert.Equal(t, "ctx-1", sent.Get("target.context").Str)
	assert.False(t, sent.Get("target.realm").Exists())

	env.Reply("script.callFunction", map[string]any{
		"type":  "exception",
		"realm": "r-1",
		"exceptionDetails": map[string]any{
			"columnNumber": 4, "lineNumber": 0, "text": "ReferenceError: nope is not defined",
			"exception":  map[string]any{"type": "error", "handle": "e-1"},
			"stackTrace": map[string]any{"callFrames": []any{map[string]any{"columnNumber": 4, "lineNumber": 0, "functionName": "", "url": "about:blank"}}},
		},
	})
	res, err = m.CallFunction(ctx, CallFunctionParameters{
		FunctionDeclaration: "() => nope",
		Target:              Target{Realm: "r-1"},
		Arguments:           []LocalValue{LocalString("x")},
	})
	require.NoError(t, err)
	exc, ok := res.Value.(*EvaluateResultException)
	require.True(t, ok)
	assert.Equal(t, "e-1", exc.ExceptionDetails.Exception.Handle)
	require.Len(t, exc.ExceptionDetails.StackTrace.CallFrames, 1)
	assert.Equal(t, "about:blank", exc.ExceptionDetails.StackTrace.CallFrames[0].URL)
	assert.EqualError(t, exc, "script exception: ReferenceError: nope is not defined")
}

func TestEvaluateUnknownResultType(t *testing.T) {
	env := biditest.Start(t)
	m, err := New(env.Transport, env.Events)
	require.NoError(t, err)
	env.Reply("script.evaluate", map[string]any{"type": "maybe", "realm": "r"})

	_, err = m.Evaluate(context.Background(), EvaluateParameters{Expression: "1"})
	assert.ErrorContains(t, err, `unknown discriminant "maybe"`)
}

func TestDisownAndGetRealms(t *testing.T) {
	env := biditest.Start(t)
	m, err := New(env.Transport, env.Events)
	require.NoError(t, err)
	ctx := context.Background()

	params := env.Capture("script.disown", map[string]any{})
	res, err := m.Disown(ctx, DisownParameters{Handles: []string{"h-1", "h-2"}, Target: Target{Realm: "r-1"}})
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.JSONEq(t, `{"handles":["h-1","h-2"],"target":{"realm":"r-1"}}`, string(biditest.Await(t, params)))

	env.Reply("script.getRealms", map[string]any{"realms": []any{
		map[string]any{"realm": "r-1", "origin": "null", "type": "window", "context": "ctx-1"},
		map[string]any{"realm": "r-2", "origin": "https://a", "type": "dedicated-worker"},
	}})
	realms, err := m.GetRealms(ctx, GetRealmsParameters{})
	require.NoError(t, err)
	require.Len(t, realms.Value.Realms, 2)
	assert.Equal(t, "ctx-1", realms.Value.Realms[0].Context)
	assert.Equal(t, "dedicated-worker", realms.Value.Realms[1].Type)
}

func TestEvents(t *testing.T) {
	env := biditest.Start(t)
	m, err := New(env.Transport, env.Events)
	require.NoError(t, err)

	created := make(chan RealmInfo, 1)
	destroyed := make(chan RealmDestroyedEventArgs, 1)
	messages := make(chan MessageEventArgs, 1)
	m.OnRealmCreated.On(func(r RealmInfo) { created <- r })
	m.OnRealmDestroyed.On(func(r RealmDestroyedEventArgs) { destroyed <- r })
	m.OnMessage.On(func(msg MessageEventArgs) { messages <- msg })

	require.NoError(t, env.Session.Emit("script.realmCreated", map[string]any{"realm": "r-9", "origin": "null", "type": "window", "context": "c"}))
	require.NoError(t, env.Session.Emit("script.message", map[string]any{
		"channel": "ch-1",
		"data":    map[string]any{"type": "string", "value": "ping"},
		"source":  map[string]any{"realm": "r-9"},
	}))
	require.NoError(t, env.Session.Emit("script.realmDestroyed", map[string]any{"realm": "r-9"}))

	assert.Equal(t, "r-9", biditest.Await(t, created).Realm)
	msg := biditest.Await(t, messages)
	assert.Equal(t, "ch-1", msg.Channel)
	assert.Equal(t, "ping", msg.Data.Value)
	assert.Equal(t, "r-9", msg.Source.Realm)
	assert.Equal(t, "r-9", biditest.Await(t, destroyed).Realm)

	_, err = New(env.Transport, env.Events)
	assert.ErrorIs(t, err, event.ErrDuplicateEvent)
}
