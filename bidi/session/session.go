// Package session implements the BiDi "session" module.
package session

import (
	"context"

	"mini-bidi/codec"
	"mini-bidi/transport"
)

type ProxyType int

const (
	ProxyDirect ProxyType = iota
	ProxyManual
	ProxyAutoConfig
	ProxyAutoDetect
	ProxySystem
)

var proxyTypes = codec.NewEnum("ProxyType", []codec.EnumValue[ProxyType]{
	{Value: ProxyDirect, Name: "Direct"},
	{Value: ProxyManual, Name: "Manual"},
	{Value: ProxyAutoConfig, Name: "ProxyAutoConfig", Wire: "pac"},
	{Value: ProxyAutoDetect, Name: "AutoDetect"},
	{Value: ProxySystem, Name: "System"},
})

func (p ProxyType) MarshalJSON() ([]byte, error) {
	return proxyTypes.Marshal(p)
}

func (p *ProxyType) UnmarshalJSON(data []byte) error {
	return proxyTypes.Unmarshal(data, p)
}

func (p ProxyType) String() string {
	tok, err := proxyTypes.Token(p)
	if err != nil {
		return "ProxyType(?)"
	}
	return tok
}

// ProxyConfiguration is sent in capability requests and echoed back in the
// matched capabilities.
type ProxyConfiguration struct {
	Type               ProxyType `json:"proxyType"`
	ProxyAutoconfigURL string    `json:"proxyAutoconfigUrl,omitempty"`
	HTTPProxy          string    `json:"httpProxy,omitempty"`
	SSLProxy           string    `json:"sslProxy,omitempty"`
	SocksProxy         string    `json:"socksProxy,omitempty"`
	SocksVersion       int       `json:"socksVersion,omitempty"`
	NoProxy            []string  `json:"noProxy,omitempty"`
}

var proxyShape = codec.Shape("ProxyConfiguration", func(r *codec.Reader) ProxyConfiguration {
	p := ProxyConfiguration{Type: codec.EnumField(r, "proxyType", proxyTypes)}
	p.ProxyAutoconfigURL, _ = r.OptionalString("proxyAutoconfigUrl")
	p.HTTPProxy, _ = r.OptionalString("httpProxy")
	p.SSLProxy, _ = r.OptionalString("sslProxy")
	p.SocksProxy, _ = r.OptionalString("socksProxy")
	if v, ok := r.OptionalInt("socksVersion"); ok {
		p.SocksVersion = int(v)
	}
	p.NoProxy, _ = r.OptionalStrings("noProxy")
	return p
})

type CapabilityRequest struct {
	AcceptInsecureCerts *bool               `json:"acceptInsecureCerts,omitempty"`
	BrowserName         string              `json:"browserName,omitempty"`
	BrowserVersion      string              `json:"browserVersion,omitempty"`
	PlatformName        string              `json:"platformName,omitempty"`
	Proxy               *ProxyConfiguration `json:"proxy,omitempty"`
	UnhandledPrompt     map[string]string   `json:"unhandledPromptBehavior,omitempty"`
}

type CapabilitiesRequest struct {
	AlwaysMatch *CapabilityRequest  `json:"alwaysMatch,omitempty"`
	FirstMatch  []CapabilityRequest `json:"firstMatch,omitempty"`
}

type NewParameters struct {
	Capabilities CapabilitiesRequest `json:"capabilities"`
}

// Capabilities are the ones the remote end matched. Vendor capabilities
// ("moz:...", "goog:...") land in AdditionalData.
type Capabilities struct {
	AcceptInsecureCerts bool
	BrowserName         string
	BrowserVersion      string
	PlatformName        string
	SetWindowRect       bool
	UserAgent           string
	Proxy               *ProxyConfiguration
	WebSocketURL        string
	AdditionalData      *codec.Object
}

type NewResult struct {
	SessionID    string
	Capabilities Capabilities
}

var capabilitiesShape = codec.Shape("Capabilities", func(r *codec.Reader) Capabilities {
	c := Capabilities{
		AcceptInsecureCerts: r.Bool("acceptInsecureCerts"),
		BrowserName:         r.String("browserName"),
		BrowserVersion:      r.String("browserVersion"),
		PlatformName:        r.String("platformName"),
		SetWindowRect:       r.Bool("setWindowRect"),
		UserAgent:           r.String("userAgent"),
	}
	if p, ok := codec.OptionalField(r, "proxy", proxyShape); ok {
		c.Proxy = &p
	}
	c.WebSocketURL, _ = r.OptionalString("webSocketUrl")
	c.AdditionalData = r.AdditionalData()
	return c
})

var newResultShape = codec.Shape("session.NewResult", func(r *codec.Reader) NewResult {
	return NewResult{
		SessionID:    r.String("sessionId"),
		Capabilities: codec.Field(r, "capabilities", capabilitiesShape),
	}
})

type StatusResult struct {
	Ready   bool
	Message string
}

var statusShape = codec.Shape("session.StatusResult", func(r *codec.Reader) StatusResult {
	return StatusResult{Ready: r.Bool("ready"), Message: r.String("message")}
})

type SubscribeParameters struct {
	Events   []string `json:"events"`
	Contexts []string `json:"contexts,omitempty"`
}

type SubscribeResult struct {
	Subscription string
}

var subscribeShape = codec.Shape("session.SubscribeResult", func(r *codec.Reader) SubscribeResult {
	return SubscribeResult{Subscription: r.String("subscription")}
})

type UnsubscribeParameters struct {
	Subscriptions []string `json:"subscriptions"`
}

// Module issues session.* commands.
type Module struct {
	c transport.Commander
}

func New(c transport.Commander) *Module {
	return &Module{c: c}
}

// Status reports whether the remote end can create new sessions.
func (m *Module) Status(ctx context.Context, opts ...transport.CallOption) (transport.Result[StatusResult], error) {
	return transport.Execute(ctx, m.c, "session.status", nil, statusShape, opts...)
}

func (m *Module) New(ctx context.Context, params NewParameters, opts ...transport.CallOption) (transport.Result[NewResult], error) {
	return transport.Execute(ctx, m.c, "session.new", params, newResultShape, opts...)
}

func (m *Module) End(ctx context.Context, opts ...transport.CallOption) (transport.Result[codec.EmptyResult], error) {
	return transport.Execute(ctx, m.c, "session.end", nil, codec.Empty, opts...)
}

func (m *Module) Subscribe(ctx context.Context, params SubscribeParameters, opts ...transport.CallOption) (transport.Result[SubscribeResult], error) {
	return transport.Execute(ctx, m.c, "session.subscribe", params, subscribeShape, opts...)
}

func (m *Module) Unsubscribe(ctx context.Context, params UnsubscribeParameters, opts ...transport.CallOption) (transport.Result[codec.EmptyResult], error) {
	return transport.Execute(ctx, m.c, "session.unsubscribe", params, codec.Empty, opts...)
}

// ParseProxyType maps a wire token such as "pac" onto its ProxyType.
func ParseProxyType(tok string) (ProxyType, error) {
	return proxyTypes.Parse(tok)
}
