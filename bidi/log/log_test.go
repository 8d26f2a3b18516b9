package log

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mini-bidi/bidi/biditest"
	"mini-bidi/codec"
)

func TestDecodeConsoleEntry(t *testing.T) {
	e, err := DecodeEntry([]byte(`{
		"type": "console", "level": "warn", "method": "warn",
		"source": {"realm": "r-1", "context": "ctx-1"},
		"text": "careful", "timestamp": 1700000000123,
		"args": [{"type": "string", "value": "careful"}, {"type": "number", "value": 3}],
		"stackTrace": {"callFrames": [{"columnNumber": 1, "lineNumber": 2, "functionName": "f", "url": "https://a/x.js"}]}
	}`))
	require.NoError(t, err)
	c, ok := e.(*ConsoleEntry)
	require.True(t, ok)
	assert.Equal(t, LevelWarn, c.Level)
	assert.Equal(t, "warn", c.Method)
	require.Len(t, c.Args, 2)
	assert.Equal(t, 3.0, c.Args[1].Value)
	require.NotNil(t, c.StackTrace)
	assert.Equal(t, "f", c.StackTrace.CallFrames[0].FunctionName)

	args, err := Flatten(e)
	require.NoError(t, err)
	assert.Equal(t, "console", args.Type)
	assert.Equal(t, "careful", args.Text)
	assert.True(t, args.HasText)
	assert.Equal(t, "ctx-1", args.Source.Context)
	assert.Equal(t, time.UnixMilli(1700000000123), args.Timestamp)
	assert.Len(t, args.Args, 2)
}

func TestDecodeJavascriptAndGenericEntries(t *testing.T) {
	e, err := DecodeEntry([]byte(`{"type":"javascript","level":"error","source":{"realm":"r"},"text":null,"timestamp":1}`))
	require.NoError(t, err)
	js, ok := e.(*JavascriptEntry)
	require.True(t, ok)
	assert.Nil(t, js.Text)
	args, _ := Flatten(e)
	assert.False(t, args.HasText)
	assert.Empty(t, args.Method)

	e, err = DecodeEntry([]byte(`{"type":"network","level":"info","source":{"realm":"r"},"text":"x","timestamp":1,"url":"https://a"}`))
	require.NoError(t, err)
	g, ok := e.(*GenericEntry)
	require.True(t, ok)
	assert.Equal(t, "network", g.Type)
	require.NotNil(t, g.AdditionalData)
	url, _ := g.AdditionalData.Get("url")
	assert.Equal(t, "https://a", url)
}

func TestDecodeEntryErrors(t *testing.T) {
	var de *codec.DecodeError

	_, err := DecodeEntry([]byte(`{"type":"javascript","level":"fatal","source":{"realm":"r"},"text":"x","timestamp":1}`))
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "level", de.Field)

	_, err = DecodeEntry([]byte(`{"type":"javascript","level":"info","source":{"realm":"r"},"timestamp":1}`))
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "text", de.Field)

	_, err = DecodeEntry([]byte(`{"type":"console","level":"info","source":{"realm":"r"},"text":"x","timestamp":1,"method":"log"}`))
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "args", de.Field)
}

func TestLevelTokens(t *testing.T) {
	b, err := json.Marshal(LevelError)
	require.NoError(t, err)
	assert.Equal(t, `"error"`, string(b))

	var l Level
	require.NoError(t, json.Unmarshal([]byte(`"debug"`), &l))
	assert.Equal(t, LevelDebug, l)
	assert.Error(t, json.Unmarshal([]byte(`"verbose"`), &l))
	assert.Equal(t, "info", LevelInfo.String())
}

func TestEntryAddedObservers(t *testing.T) {
	env := biditest.Start(t)
	m, err := New(env.Events)
	require.NoError(t, err)

	got := make(chan EntryAddedEventArgs, 4)
	m.OnEntryAdded.On(func(args EntryAddedEventArgs) { got <- args })

	// A malformed entry is dropped and the next one still arrives.
	require.NoError(t, env.Session.Emit(EventEntryAdded, map[string]any{"type": "console"}))
	require.NoError(t, env.Session.Emit(EventEntryAdded, map[string]any{
		"type": "console", "level": "info", "method": "log",
		"source": map[string]any{"realm": "r-1"}, "text": "hello", "timestamp": 5,
		"args": []any{map[string]any{"type": "string", "value": "hello"}},
	}))

	args := biditest.Await(t, got)
	assert.Equal(t, "hello", args.Text)
	assert.Equal(t, LevelInfo, args.Level)
	assert.Equal(t, "log", args.Method)
	_, isConsole := args.Entry.(*ConsoleEntry)
	assert.True(t, isConsole)
}
