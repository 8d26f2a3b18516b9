// Package log implements the BiDi "log" module. Its only event,
// log.entryAdded, arrives as one of several entry shapes and is flattened
// into EntryAddedEventArgs before observers see it.
package log

import (
	"time"

	"mini-bidi/bidi/script"
	"mini-bidi/codec"
	"mini-bidi/event"
)

const EventEntryAdded = "log.entryAdded"

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levels = codec.NewEnum("log.Level", []codec.EnumValue[Level]{
	{Value: LevelDebug, Name: "Debug"},
	{Value: LevelInfo, Name: "Info"},
	{Value: LevelWarn, Name: "Warn"},
	{Value: LevelError, Name: "Error"},
})

func (l Level) String() string {
	tok, err := levels.Token(l)
	if err != nil {
		return "Level(?)"
	}
	return tok
}

func (l Level) MarshalJSON() ([]byte, error) {
	return levels.Marshal(l)
}

func (l *Level) UnmarshalJSON(data []byte) error {
	return levels.Unmarshal(data, l)
}

// Entry is one of *ConsoleEntry, *JavascriptEntry or *GenericEntry.
type Entry interface {
	base() *BaseEntry
}

// BaseEntry holds the properties every entry type carries. Text is nil when
// the browser sends null.
type BaseEntry struct {
	Type       string
	Level      Level
	Source     script.Source
	Text       *string
	Timestamp  int64
	StackTrace *script.StackTrace
}

func (e *BaseEntry) base() *BaseEntry { return e }

// ConsoleEntry comes from the console API; Method is "log", "warn", ...
type ConsoleEntry struct {
	BaseEntry
	Method string
	Args   []script.RemoteValue
}

// JavascriptEntry reports an uncaught error.
type JavascriptEntry struct {
	BaseEntry
}

// GenericEntry covers entry types without a dedicated shape.
type GenericEntry struct {
	BaseEntry
	AdditionalData *codec.Object
}

func readBase(r *codec.Reader) BaseEntry {
	b := BaseEntry{
		Type:      r.String("type"),
		Level:     codec.EnumField(r, "level", levels),
		Source:    codec.Field(r, "source", script.SourceShape),
		Timestamp: r.Int("timestamp"),
	}
	if !r.Has("text") {
		r.Fail("text", "missing required field")
	}
	if text, ok := r.OptionalString("text"); ok {
		b.Text = &text
	}
	if st, ok := codec.OptionalField(r, "stackTrace", script.StackTraceShape); ok {
		b.StackTrace = &st
	}
	return b
}

var entries = codec.NewUnion[Entry]("log.Entry", "type").
	Variant("console", codec.Shape("log.ConsoleLogEntry", func(r *codec.Reader) Entry {
		return &ConsoleEntry{
			BaseEntry: readBase(r),
			Method:    r.String("method"),
			Args:      codec.List(r, "args", script.DecodeRemoteValue),
		}
	})).
	Variant("javascript", codec.Shape("log.JavascriptLogEntry", func(r *codec.Reader) Entry {
		return &JavascriptEntry{BaseEntry: readBase(r)}
	})).
	Fallback(codec.Shape("log.GenericLogEntry", func(r *codec.Reader) Entry {
		e := &GenericEntry{BaseEntry: readBase(r)}
		e.AdditionalData = r.AdditionalData()
		return e
	}))

// DecodeEntry decodes the params of a log.entryAdded event.
func DecodeEntry(raw []byte) (Entry, error) {
	return entries.Decode(raw)
}

// EntryAddedEventArgs is the flattened form observers receive. Method and
// Args are only set for console entries.
type EntryAddedEventArgs struct {
	Type       string
	Level      Level
	Source     script.Source
	Text       string
	HasText    bool
	Timestamp  time.Time
	StackTrace *script.StackTrace
	Method     string
	Args       []script.RemoteValue
	Entry      Entry
}

// Flatten projects any entry onto EntryAddedEventArgs.
func Flatten(e Entry) (EntryAddedEventArgs, error) {
	b := e.base()
	args := EntryAddedEventArgs{
		Type:       b.Type,
		Level:      b.Level,
		Source:     b.Source,
		Timestamp:  time.UnixMilli(b.Timestamp),
		StackTrace: b.StackTrace,
		Entry:      e,
	}
	if b.Text != nil {
		args.Text, args.HasText = *b.Text, true
	}
	if c, ok := e.(*ConsoleEntry); ok {
		args.Method = c.Method
		args.Args = c.Args
	}
	return args, nil
}

// Module exposes log events. The log module has no commands.
type Module struct {
	OnEntryAdded *event.Observable[EntryAddedEventArgs]
}

// New registers log.entryAdded with events. The log module has no commands.
func New(events *event.Registry) (*Module, error) {
	m := &Module{
		OnEntryAdded: event.NewObservable[EntryAddedEventArgs](EventEntryAdded),
	}
	if err := event.Register(events, EventEntryAdded, entries.Decoder(), Flatten, m.OnEntryAdded); err != nil {
		return nil, err
	}
	return m, nil
}
