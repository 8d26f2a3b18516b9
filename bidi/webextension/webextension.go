// Package webextension implements the BiDi "webExtension" module.
package webextension

import (
	"context"
	"encoding/base64"
	"errors"

	"mini-bidi/codec"
	"mini-bidi/transport"
)

// ExtensionData locates the extension to install. Exactly one of the
// constructors below builds a valid value.
type ExtensionData struct {
	kind  string
	body  any
	valid bool
}

// ArchivePath installs from a zip archive on the browser's file system.
func ArchivePath(path string) ExtensionData {
	return ExtensionData{kind: "archivePath", body: struct {
		Path string `json:"path"`
	}{path}, valid: true}
}

// Base64 installs from an in-memory zip archive.
func Base64(archive []byte) ExtensionData {
	return ExtensionData{kind: "base64", body: struct {
		Value string `json:"value"`
	}{base64.StdEncoding.EncodeToString(archive)}, valid: true}
}

// Path installs an unpacked extension directory.
func Path(dir string) ExtensionData {
	return ExtensionData{kind: "path", body: struct {
		Path string `json:"path"`
	}{dir}, valid: true}
}

func (d ExtensionData) MarshalJSON() ([]byte, error) {
	if !d.valid {
		return nil, codec.ErrNoVariant
	}
	return codec.EncodeVariant("type", d.kind, d.body)
}

type InstallParameters struct {
	ExtensionData ExtensionData `json:"extensionData"`
}

type InstallResult struct {
	Extension string
}

var installShape = codec.Shape("webExtension.InstallResult", func(r *codec.Reader) InstallResult {
	return InstallResult{Extension: r.String("extension")}
})

type UninstallParameters struct {
	Extension string `json:"extension"`
}

var ErrNoExtension = errors.New("webextension: empty extension id")

type Module struct {
	c transport.Commander
}

func New(c transport.Commander) *Module {
	return &Module{c: c}
}

func (m *Module) Install(ctx context.Context, params InstallParameters, opts ...transport.CallOption) (transport.Result[InstallResult], error) {
	return transport.Execute(ctx, m.c, "webExtension.install", params, installShape, opts...)
}

func (m *Module) Uninstall(ctx context.Context, params UninstallParameters, opts ...transport.CallOption) (transport.Result[codec.EmptyResult], error) {
	if params.Extension == "" {
		return transport.Result[codec.EmptyResult]{}, ErrNoExtension
	}
	return transport.Execute(ctx, m.c, "webExtension.uninstall", params, codec.Empty, opts...)
}
