// Package script implements the BiDi "script" module: evaluating code in
// realms, handle lifetime and realm events.
package script

import (
	"context"
	"errors"

	"mini-bidi/codec"
	"mini-bidi/event"
	"mini-bidi/transport"
)

// Target selects where code runs: a realm, or a browsing context with an
// optional sandbox.
type Target struct {
	Realm   string `json:"realm,omitempty"`
	Context string `json:"context,omitempty"`
	Sandbox string `json:"sandbox,omitempty"`
}

type ResultOwnership string

const (
	OwnershipRoot ResultOwnership = "root"
	OwnershipNone ResultOwnership = "none"
)

type EvaluateParameters struct {
	Expression      string          `json:"expression"`
	Target          Target          `json:"target"`
	AwaitPromise    bool            `json:"awaitPromise"`
	ResultOwnership ResultOwnership `json:"resultOwnership,omitempty"`
	UserActivation  bool            `json:"userActivation,omitempty"`
}

type CallFunctionParameters struct {
	FunctionDeclaration string          `json:"functionDeclaration"`
	Target              Target          `json:"target"`
	AwaitPromise        bool            `json:"awaitPromise"`
	Arguments           []LocalValue    `json:"arguments,omitempty"`
	This                *LocalValue     `json:"this,omitempty"`
	ResultOwnership     ResultOwnership `json:"resultOwnership,omitempty"`
	UserActivation      bool            `json:"userActivation,omitempty"`
}

// EvaluateResult is either *EvaluateResultSuccess or
// *EvaluateResultException. A thrown exception is a normal result, not a
// command failure.
type EvaluateResult interface {
	RealmID() string
	isEvaluateResult()
}

type EvaluateResultSuccess struct {
	Result RemoteValue
	Realm  string
}

type EvaluateResultException struct {
	ExceptionDetails ExceptionDetails
	Realm            string
}

func (r *EvaluateResultSuccess) RealmID() string { return r.Realm }
func (r *EvaluateResultException) RealmID() string { return r.Realm }

func (*EvaluateResultSuccess) isEvaluateResult() {}
func (*EvaluateResultException) isEvaluateResult() {}

// Error lets an exception be returned where an error is expected.
func (r *EvaluateResultException) Error() string {
	return "script exception: " + r.ExceptionDetails.Text
}

type ExceptionDetails struct {
	ColumnNumber int64
	LineNumber   int64
	Exception    RemoteValue
	StackTrace   StackTrace
	Text         string
}

type StackFrame struct {
	ColumnNumber int64
	LineNumber   int64
	FunctionName string
	URL          string
}

type StackTrace struct {
	CallFrames []StackFrame
}

var stackFrameShape = codec.Shape("StackFrame", func(r *codec.Reader) StackFrame {
	return StackFrame{
		ColumnNumber: r.Int("columnNumber"),
		LineNumber:   r.Int("lineNumber"),
		FunctionName: r.String("functionName"),
		URL:          r.String("url"),
	}
})

// StackTraceShape decodes a script.StackTrace; the log module reuses it.
var StackTraceShape = codec.Shape("StackTrace", func(r *codec.Reader) StackTrace {
	return StackTrace{CallFrames: codec.List(r, "callFrames", stackFrameShape)}
})

var exceptionDetailsShape = codec.Shape("ExceptionDetails", func(r *codec.Reader) ExceptionDetails {
	return ExceptionDetails{
		ColumnNumber: r.Int("columnNumber"),
		LineNumber:   r.Int("lineNumber"),
		Exception:    codec.Field(r, "exception", DecodeRemoteValue),
		StackTrace:   codec.Field(r, "stackTrace", StackTraceShape),
		Text:         r.String("text"),
	}
})

var evaluateResults = codec.NewUnion[EvaluateResult]("EvaluateResult", "type").
	Variant("success", codec.Shape("EvaluateResultSuccess", func(r *codec.Reader) EvaluateResult {
		return &EvaluateResultSuccess{
			Result: codec.Field(r, "result", DecodeRemoteValue),
			Realm:  r.String("realm"),
		}
	})).
	Variant("exception", codec.Shape("EvaluateResultException", func(r *codec.Reader) EvaluateResult {
		return &EvaluateResultException{
			ExceptionDetails: codec.Field(r, "exceptionDetails", exceptionDetailsShape),
			Realm:            r.String("realm"),
		}
	}))

// RealmInfo describes a realm. Type is "window", "dedicated-worker",
// "shared-worker", "service-worker", "worker", "paint-worklet",
// "audio-worklet" or "worklet".
type RealmInfo struct {
	Realm   string
	Origin  string
	Type    string
	Context string
	Sandbox string
}

var realmInfoShape = codec.Shape("RealmInfo", func(r *codec.Reader) RealmInfo {
	info := RealmInfo{
		Realm:  r.String("realm"),
		Origin: r.String("origin"),
		Type:   r.String("type"),
	}
	info.Context, _ = r.OptionalString("context")
	info.Sandbox, _ = r.OptionalString("sandbox")
	return info
})

type GetRealmsParameters struct {
	Context string `json:"context,omitempty"`
	Type    string `json:"type,omitempty"`
}

type GetRealmsResult struct {
	Realms []RealmInfo
}

var getRealmsShape = codec.Shape("GetRealmsResult", func(r *codec.Reader) GetRealmsResult {
	return GetRealmsResult{Realms: codec.List(r, "realms", realmInfoShape)}
})

type DisownParameters struct {
	Handles []string `json:"handles"`
	Target  Target   `json:"target"`
}

type RealmDestroyedEventArgs struct {
	Realm string
}

var realmDestroyedShape = codec.Shape("RealmDestroyedParameters", func(r *codec.Reader) RealmDestroyedEventArgs {
	return RealmDestroyedEventArgs{Realm: r.String("realm")}
})

// Source identifies where a message or log entry came from.
type Source struct {
	Realm   string
	Context string
}

// SourceShape decodes a script.Source; the log module reuses it.
var SourceShape = codec.Shape("Source", func(r *codec.Reader) Source {
	s := Source{Realm: r.String("realm")}
	s.Context, _ = r.OptionalString("context")
	return s
})

type MessageEventArgs struct {
	Channel string
	Data    RemoteValue
	Source  Source
}

var messageShape = codec.Shape("MessageParameters", func(r *codec.Reader) MessageEventArgs {
	return MessageEventArgs{
		Channel: r.String("channel"),
		Data:    codec.Field(r, "data", DecodeRemoteValue),
		Source:  codec.Field(r, "source", SourceShape),
	}
})

// Module issues script.* commands and exposes its events.
type Module struct {
	c transport.Commander

	OnRealmCreated   *event.Observable[RealmInfo]
	OnRealmDestroyed *event.Observable[RealmDestroyedEventArgs]
	OnMessage        *event.Observable[MessageEventArgs]
}

// New registers the module's events with events.
func New(c transport.Commander, events *event.Registry) (*Module, error) {
	m := &Module{
		c:                c,
		OnRealmCreated:   event.NewObservable[RealmInfo]("script.realmCreated"),
		OnRealmDestroyed: event.NewObservable[RealmDestroyedEventArgs]("script.realmDestroyed"),
		OnMessage:        event.NewObservable[MessageEventArgs]("script.message"),
	}
	err := errors.Join(
		event.RegisterEvent(events, "script.realmCreated", realmInfoShape, m.OnRealmCreated),
		event.RegisterEvent(events, "script.realmDestroyed", realmDestroyedShape, m.OnRealmDestroyed),
		event.RegisterEvent(events, "script.message", messageShape, m.OnMessage),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Evaluate runs an expression. Branch on the result type to tell a value
// from a thrown exception.
func (m *Module) Evaluate(ctx context.Context, params EvaluateParameters, opts ...transport.CallOption) (transport.Result[EvaluateResult], error) {
	return transport.Execute(ctx, m.c, "script.evaluate", params, evaluateResults.Decoder(), opts...)
}

func (m *Module) CallFunction(ctx context.Context, params CallFunctionParameters, opts ...transport.CallOption) (transport.Result[EvaluateResult], error) {
	return transport.Execute(ctx, m.c, "script.callFunction", params, evaluateResults.Decoder(), opts...)
}

// Disown releases handles so the browser may garbage collect their objects.
func (m *Module) Disown(ctx context.Context, params DisownParameters, opts ...transport.CallOption) (transport.Result[codec.EmptyResult], error) {
	return transport.Execute(ctx, m.c, "script.disown", params, codec.Empty, opts...)
}

func (m *Module) GetRealms(ctx context.Context, params GetRealmsParameters, opts ...transport.CallOption) (transport.Result[GetRealmsResult], error) {
	return transport.Execute(ctx, m.c, "script.getRealms", params, getRealmsShape, opts...)
}
