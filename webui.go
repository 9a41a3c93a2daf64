// Package webui lets a Go backend drive a live browser-rendered interface.
// The backend broadcasts imperative DOM-mutation commands over a persistent
// WebSocket to every connected tab, and receives events raised by frontend
// script. This file contains the configuration surface and handler types.
package webui

import (
	"context"
	"crypto/tls"
	"log/slog"
	"regexp"
	"time"
)

// InitHandler runs once for every new connection, after it has been
// registered. It typically paints the initial interface through the facade.
// Anything it broadcasts reaches all connected clients, not just the new one.
type InitHandler func(ctx context.Context, ui *UI) error

// EventHandler processes a single event raised by frontend script via
// _uiEvent(name, data). Data is the decoded JSON value the client sent.
// Handlers may call facade methods; re-entrant broadcasts are safe.
type EventHandler func(ctx context.Context, ui *UI, name string, data interface{}) error

// BackgroundHandler runs on every scheduler tick, independent of any
// connection. It keeps firing while zero clients are connected.
type BackgroundHandler func(ctx context.Context, ui *UI) error

// AssetHandler resolves a custom asset requested at /assets/<name>.
// It returns the asset bytes and their content type.
type AssetHandler func(ctx context.Context, name string) ([]byte, string, error)

// Source is a page configuration value supplied either as a literal string
// or as a deferred zero-argument producer. Deferred sources are resolved
// exactly once, during server construction, never per request.
type Source struct {
	value string
	fn    func() string
}

// Static wraps a literal configuration value.
func Static(v string) Source {
	return Source{value: v}
}

// Deferred wraps a producer that is invoked once at startup to obtain the
// configuration value.
func Deferred(fn func() string) Source {
	return Source{fn: fn}
}

func (s Source) resolve(fallback string) string {
	if s.fn != nil {
		return s.fn()
	}
	if s.value == "" {
		return fallback
	}
	return s.value
}

// Config describes one webui application. The zero value is usable; every
// field has a sensible default. Page-level fields accept Static or Deferred
// sources and are resolved once when the server is constructed.
type Config struct {
	// Addr is the host:port the HTTP server binds to. Defaults to
	// "localhost:7865".
	Addr string

	PageTitle    Source
	PageLang     Source
	PageEncoding Source
	PageViewport Source

	// BaseCSS is appended to the served stylesheet after the optional reset.
	BaseCSS Source

	// BaseJS is appended to the served script after the bridge runtime, so
	// the _ui* globals are always defined before user code runs.
	BaseJS Source

	// InjectDefaultFavicon serves the bundled favicon at /favicon.ico.
	InjectDefaultFavicon bool

	// InjectCSSReset prepends the bundled reset stylesheet to /style.css.
	InjectCSSReset bool

	// FontTTF, when non-nil, is served at /font.ttf and declared as the
	// page's base font face.
	FontTTF []byte

	// UseTLSScheme makes the generated client connect with wss:// instead
	// of ws://. Set it when the server sits behind TLS.
	UseTLSScheme bool

	// Debug enables verbose logging in the client runtime and lowers the
	// server log threshold.
	Debug bool

	OnInit       InitHandler
	OnEvent      EventHandler
	OnBackground BackgroundHandler
	OnAsset      AssetHandler

	// BackgroundInterval is the scheduler period for OnBackground.
	// Defaults to one second when OnBackground is set.
	BackgroundInterval time.Duration

	// Logger receives structured logs. Defaults to slog.Default().
	Logger *slog.Logger

	// Hooks receives lifecycle callbacks and metrics. Optional.
	Hooks *Hooks

	// PubSub relays broadcast frames between nodes in multi-node
	// deployments. Nil means single node.
	PubSub PubSub

	// Transport overrides the WebSocket transport options.
	Transport *Options
}

// Options configures the WebSocket transport: origin checking, buffer
// sizes, keepalive timing and connection limits.
type Options struct {
	CheckOrigin          bool
	AllowedOrigins       []string
	AllowedOriginRegexps []*regexp.Regexp
	ReadBufferSize       int
	WriteBufferSize      int
	MaxMessageSize       int64
	PingInterval         time.Duration
	PongWait             time.Duration
	WriteWait            time.Duration
	EnableCompression    bool
	MaxConnections       int
	SendChannelBuffer    int
	ServerReadTimeout    time.Duration
	ServerWriteTimeout   time.Duration
	ServerIdleTimeout    time.Duration
	TLSConfig            *tls.Config
}

// DefaultOptions returns transport options suitable for most applications:
// no origin checking, 1KB socket buffers, 512KB max message size, 30s ping
// interval with 60s pong wait, and a 256 message outbound buffer per
// connection.
func DefaultOptions() *Options {
	return &Options{
		CheckOrigin:       false,
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		MaxMessageSize:    512 * 1024,
		PingInterval:      30 * time.Second,
		PongWait:          60 * time.Second,
		WriteWait:         10 * time.Second,
		EnableCompression: false,
		SendChannelBuffer: 256,
	}
}

const (
	defaultAddr     = "localhost:7865"
	defaultTitle    = "webui"
	defaultLang     = "en"
	defaultEncoding = "UTF-8"
	defaultViewport = "width=device-width, initial-scale=1.0"

	defaultBackgroundInterval = time.Second
)

// resolvedPage holds the page configuration after all Sources have been
// resolved. Built once in New and read-only afterwards.
type resolvedPage struct {
	title      string
	lang       string
	encoding   string
	viewport   string
	baseCSS    string
	baseJS     string
	injectFont bool
}

func resolvePage(cfg *Config) resolvedPage {
	return resolvedPage{
		title:      cfg.PageTitle.resolve(defaultTitle),
		lang:       cfg.PageLang.resolve(defaultLang),
		encoding:   cfg.PageEncoding.resolve(defaultEncoding),
		viewport:   cfg.PageViewport.resolve(defaultViewport),
		baseCSS:    cfg.BaseCSS.resolve(""),
		baseJS:     cfg.BaseJS.resolve(""),
		injectFont: len(cfg.FontTTF) > 0,
	}
}
