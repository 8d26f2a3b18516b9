// Package browsingcontext implements the BiDi "browsingContext" module:
// tabs, windows and frames, navigation and their lifecycle events.
package browsingcontext

import (
	"context"
	"errors"
	"time"

	"mini-bidi/codec"
	"mini-bidi/event"
	"mini-bidi/transport"
)

// ReadinessState is how far a navigation must progress before navigate
// returns.
type ReadinessState int

const (
	ReadinessNone ReadinessState = iota
	ReadinessInteractive
	ReadinessComplete
)

var readinessStates = codec.NewEnum("browsingContext.ReadinessState", []codec.EnumValue[ReadinessState]{
	{Value: ReadinessNone, Name: "None"},
	{Value: ReadinessInteractive, Name: "Interactive"},
	{Value: ReadinessComplete, Name: "Complete"},
})

func (s ReadinessState) MarshalJSON() ([]byte, error) {
	return readinessStates.Marshal(s)
}

func (s *ReadinessState) UnmarshalJSON(data []byte) error {
	return readinessStates.Unmarshal(data, s)
}

func (s ReadinessState) String() string {
	tok, err := readinessStates.Token(s)
	if err != nil {
		return "ReadinessState(?)"
	}
	return tok
}

// CreateType selects between a new tab and a new window.
type CreateType int

const (
	CreateTab CreateType = iota
	CreateWindow
)

var createTypes = codec.NewEnum("browsingContext.CreateType", []codec.EnumValue[CreateType]{
	{Value: CreateTab, Name: "Tab"},
	{Value: CreateWindow, Name: "Window"},
})

func (t CreateType) MarshalJSON() ([]byte, error) {
	return createTypes.Marshal(t)
}

func (t *CreateType) UnmarshalJSON(data []byte) error {
	return createTypes.Unmarshal(data, t)
}

// Info describes one browsing context. Children is nil when the tree was cut
// off by maxDepth.
type Info struct {
	Context     string
	URL         string
	Children    []Info
	Parent      string
	UserContext string
}

var infoShape codec.Decoder[Info]

func init() {
	infoShape = codec.Shape("browsingContext.Info", func(r *codec.Reader) Info {
		info := Info{
			Context: r.String("context"),
			URL:     r.String("url"),
		}
		if _, ok := r.OptionalRaw("children"); ok {
			info.Children = codec.List(r, "children", infoShape)
		}
		info.Parent, _ = r.OptionalString("parent")
		info.UserContext, _ = r.OptionalString("userContext")
		return info
	})
}

type NavigateParameters struct {
	Context string          `json:"context"`
	URL     string          `json:"url"`
	Wait    *ReadinessState `json:"wait,omitempty"`
}

// Wait is a helper for NavigateParameters.Wait.
func Wait(s ReadinessState) *ReadinessState {
	return &s
}

// NavigateResult.Navigation is empty when the browser did not start a new
// navigation, e.g. for a fragment change.
type NavigateResult struct {
	Navigation string
	URL        string
}

var navigateShape = codec.Shape("browsingContext.NavigateResult", func(r *codec.Reader) NavigateResult {
	res := NavigateResult{URL: r.String("url")}
	res.Navigation, _ = r.OptionalString("navigation")
	return res
})

type GetTreeParameters struct {
	MaxDepth *int   `json:"maxDepth,omitempty"`
	Root     string `json:"root,omitempty"`
}

type GetTreeResult struct {
	Contexts []Info
}

var getTreeShape = codec.Shape("browsingContext.GetTreeResult", func(r *codec.Reader) GetTreeResult {
	return GetTreeResult{Contexts: codec.List(r, "contexts", infoShape)}
})

type CreateParameters struct {
	Type             CreateType `json:"type"`
	ReferenceContext string     `json:"referenceContext,omitempty"`
	Background       bool       `json:"background,omitempty"`
	UserContext      string     `json:"userContext,omitempty"`
}

type CreateResult struct {
	Context string
}

var createShape = codec.Shape("browsingContext.CreateResult", func(r *codec.Reader) CreateResult {
	return CreateResult{Context: r.String("context")}
})

type CloseParameters struct {
	Context      string `json:"context"`
	PromptUnload bool   `json:"promptUnload,omitempty"`
}

type ReloadParameters struct {
	Context     string          `json:"context"`
	IgnoreCache bool            `json:"ignoreCache,omitempty"`
	Wait        *ReadinessState `json:"wait,omitempty"`
}

// NavigationInfo accompanies load and domContentLoaded.
type NavigationInfo struct {
	Context    string
	Navigation string
	Timestamp  time.Time
	URL        string
}

var navigationInfoShape = codec.Shape("browsingContext.NavigationInfo", func(r *codec.Reader) NavigationInfo {
	info := NavigationInfo{
		Context:   r.String("context"),
		Timestamp: time.UnixMilli(r.Int("timestamp")),
		URL:       r.String("url"),
	}
	info.Navigation, _ = r.OptionalString("navigation")
	return info
})

// Module issues browsingContext.* commands and exposes its events.
type Module struct {
	c transport.Commander

	OnContextCreated   *event.Observable[Info]
	OnContextDestroyed *event.Observable[Info]
	OnLoad             *event.Observable[NavigationInfo]
	OnDOMContentLoaded *event.Observable[NavigationInfo]
}

func New(c transport.Commander, events *event.Registry) (*Module, error) {
	m := &Module{
		c:                  c,
		OnContextCreated:   event.NewObservable[Info]("browsingContext.contextCreated"),
		OnContextDestroyed: event.NewObservable[Info]("browsingContext.contextDestroyed"),
		OnLoad:             event.NewObservable[NavigationInfo]("browsingContext.load"),
		OnDOMContentLoaded: event.NewObservable[NavigationInfo]("browsingContext.domContentLoaded"),
	}
	err := errors.Join(
		event.RegisterEvent(events, "browsingContext.contextCreated", infoShape, m.OnContextCreated),
		event.RegisterEvent(events, "browsingContext.contextDestroyed", infoShape, m.OnContextDestroyed),
		event.RegisterEvent(events, "browsingContext.load", navigationInfoShape, m.OnLoad),
		event.RegisterEvent(events, "browsingContext.domContentLoaded", navigationInfoShape, m.OnDOMContentLoaded),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Module) Navigate(ctx context.Context, params NavigateParameters, opts ...transport.CallOption) (transport.Result[NavigateResult], error) {
	return transport.Execute(ctx, m.c, "browsingContext.navigate", params, navigateShape, opts...)
}

func (m *Module) Reload(ctx context.Context, params ReloadParameters, opts ...transport.CallOption) (transport.Result[NavigateResult], error) {
	return transport.Execute(ctx, m.c, "browsingContext.reload", params, navigateShape, opts...)
}

// GetTree returns the top-level contexts, or the subtree under Root.
func (m *Module) GetTree(ctx context.Context, params GetTreeParameters, opts ...transport.CallOption) (transport.Result[GetTreeResult], error) {
	return transport.Execute(ctx, m.c, "browsingContext.getTree", params, getTreeShape, opts...)
}

func (m *Module) Create(ctx context.Context, params CreateParameters, opts ...transport.CallOption) (transport.Result[CreateResult], error) {
	return transport.Execute(ctx, m.c, "browsingContext.create", params, createShape, opts...)
}

func (m *Module) Close(ctx context.Context, params CloseParameters, opts ...transport.CallOption) (transport.Result[codec.EmptyResult], error) {
	return transport.Execute(ctx, m.c, "browsingContext.close", params, codec.Empty, opts...)
}
