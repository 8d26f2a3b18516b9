// Package permissions implements the BiDi "permissions" module.
package permissions

import (
	"context"

	"mini-bidi/codec"
	"mini-bidi/transport"
)

type PermissionState int

const (
	StateGranted PermissionState = iota
	StateDenied
	StatePrompt
)

var permissionStates = codec.NewEnum("permissions.PermissionState", []codec.EnumValue[PermissionState]{
	{Value: StateGranted, Name: "Granted"},
	{Value: StateDenied, Name: "Denied"},
	{Value: StatePrompt, Name: "Prompt"},
})

func (s PermissionState) MarshalJSON() ([]byte, error) {
	return permissionStates.Marshal(s)
}

func (s *PermissionState) UnmarshalJSON(data []byte) error {
	return permissionStates.Unmarshal(data, s)
}

func (s PermissionState) String() string {
	tok, err := permissionStates.Token(s)
	if err != nil {
		return "PermissionState(?)"
	}
	return tok
}

// Descriptor names a permission, e.g. "geolocation".
type Descriptor struct {
	Name string `json:"name"`
}

type SetPermissionParameters struct {
	Descriptor  Descriptor      `json:"descriptor"`
	State       PermissionState `json:"state"`
	Origin      string          `json:"origin"`
	UserContext string          `json:"userContext,omitempty"`
}

type Module struct {
	c transport.Commander
}

func New(c transport.Commander) *Module {
	return &Module{c: c}
}

// SetPermission overrides the state of a permission for an origin.
func (m *Module) SetPermission(ctx context.Context, params SetPermissionParameters, opts ...transport.CallOption) (transport.Result[codec.EmptyResult], error) {
	return transport.Execute(ctx, m.c, "permissions.setPermission", params, codec.Empty, opts...)
}
