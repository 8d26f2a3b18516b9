// Package browser implements the BiDi "browser" module: closing the browser
// and managing user contexts.
package browser

import (
	"context"

	"mini-bidi/codec"
	"mini-bidi/transport"
)

// DefaultUserContext is the user context every browser starts with. It
// cannot be removed.
const DefaultUserContext = "default"

type UserContextInfo struct {
	UserContext string
}

var userContextInfoShape = codec.Shape("browser.UserContextInfo", func(r *codec.Reader) UserContextInfo {
	return UserContextInfo{UserContext: r.String("userContext")}
})

type GetUserContextsResult struct {
	UserContexts []UserContextInfo
}

var getUserContextsShape = codec.Shape("browser.GetUserContextsResult", func(r *codec.Reader) GetUserContextsResult {
	return GetUserContextsResult{UserContexts: codec.List(r, "userContexts", userContextInfoShape)}
})

type RemoveUserContextParameters struct {
	UserContext string `json:"userContext"`
}

// Module issues browser.* commands. It has no events.
type Module struct {
	c transport.Commander
}

func New(c transport.Commander) *Module {
	return &Module{c: c}
}

// Close ends every session and shuts the browser down.
func (m *Module) Close(ctx context.Context, opts ...transport.CallOption) (transport.Result[codec.EmptyResult], error) {
	return transport.Execute(ctx, m.c, "browser.close", nil, codec.Empty, opts...)
}

func (m *Module) CreateUserContext(ctx context.Context, opts ...transport.CallOption) (transport.Result[UserContextInfo], error) {
	return transport.Execute(ctx, m.c, "browser.createUserContext", nil, userContextInfoShape, opts...)
}

func (m *Module) GetUserContexts(ctx context.Context, opts ...transport.CallOption) (transport.Result[GetUserContextsResult], error) {
	return transport.Execute(ctx, m.c, "browser.getUserContexts", nil, getUserContextsShape, opts...)
}

func (m *Module) RemoveUserContext(ctx context.Context, params RemoveUserContextParameters, opts ...transport.CallOption) (transport.Result[codec.EmptyResult], error) {
	return transport.Execute(ctx, m.c, "browser.removeUserContext", params, codec.Empty, opts...)
}
