// This file contains the Server struct which manages the HTTP server
// lifecycle, the WebSocket upgrade path, the served frontend surface, the
// background scheduler, and graceful shutdown handling.
package webui

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const serverEntity = "SERVER"

// Server hosts one webui application: the page shell and asset routes, the
// /ws bridge endpoint, and the optional background scheduler.
type Server struct {
	cfg     *Config
	options *Options
	logger  *slog.Logger

	page    resolvedPage
	shell   []byte
	style   []byte
	script  []byte
	favicon []byte

	registry  *registry
	ui        *UI
	scheduler *scheduler
	upgrader  websocket.Upgrader

	server    *http.Server
	listener  net.Listener
	mutex     sync.RWMutex
	isRunning bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// New builds a server from the given configuration. All deferred
// configuration sources are resolved here, exactly once; the page shell,
// stylesheet and script are assembled up front. A configured PubSub is
// subscribed to the command topic before New returns.
func New(cfg *Config) (*Server, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	opts := cfg.Transport
	if opts == nil {
		opts = DefaultOptions()
	}
	page := resolvePage(cfg)

	shell, err := buildPage(page)

	if err != nil {
		return nil, err
	}

	var favicon []byte
	if cfg.InjectDefaultFavicon {
		favicon, err = defaultFavicon()

		if err != nil {
			return nil, err
		}
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:      cfg,
		options:  opts,
		logger:   logger,
		page:     page,
		shell:    shell,
		style:    buildStylesheet(cfg.InjectCSSReset, page),
		script:   buildScript(cfg.Debug, cfg.UseTLSScheme, page),
		favicon:  favicon,
		registry: newRegistry(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:    opts.ReadBufferSize,
			WriteBufferSize:   opts.WriteBufferSize,
			CheckOrigin:       createOriginChecker(opts),
			EnableCompression: opts.EnableCompression,
		},
		ctx:    ctx,
		cancel: cancel,
	}
	s.ui = newUI(s.registry, cfg.PubSub, uuid.NewString(), logger, cfg.Hooks)

	if cfg.PubSub != nil {
		if err := cfg.PubSub.Subscribe(commandTopic, func(_ string, data []byte) {
			s.ui.handleRelay(data)
		}); err != nil {
			cancel()

			return nil, wrapF(err, "failed to subscribe to command topic")
		}
	}

	if cfg.OnBackground != nil {
		s.scheduler = newScheduler(ctx, cfg.BackgroundInterval, s.runTick, logger)
	}

	addr := cfg.Addr
	if addr == "" {
		addr = defaultAddr
	}
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  opts.ServerReadTimeout,
		WriteTimeout: opts.ServerWriteTimeout,
		IdleTimeout:  opts.ServerIdleTimeout,
		TLSConfig:    opts.TLSConfig,
	}
	return s, nil
}

func createOriginChecker(opts *Options) func(*http.Request) bool {
	var compiledRegexps []*regexp.Regexp
	if opts.CheckOrigin && len(opts.AllowedOriginRegexps) > 0 {
		compiledRegexps = append(compiledRegexps, opts.AllowedOriginRegexps...)
	}
	return func(r *http.Request) bool {
		if !opts.CheckOrigin {
			return true
		}
		origin := r.Header.Get("Origin")

		if origin == "" {
			return false
		}
		for _, allowed := range opts.AllowedOrigins {
			if allowed == "*" {
				return true
			}
			if allowed == origin {
				return true
			}
		}
		for _, pattern := range compiledRegexps {
			if pattern.MatchString(origin) {
				return true
			}
		}
		return false
	}
}

// UI returns the bridge facade. It is valid before Start and can be handed
// to any goroutine; broadcasts with zero connections are silent no-ops.
func (s *Server) UI() *UI {
	return s.ui
}

// Handler returns the HTTP handler serving the page, assets and the /ws
// bridge endpoint. Useful for mounting the application under an existing
// server or for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")

		_, _ = w.Write(s.shell)
	})

	mux.HandleFunc("GET /style.css", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css")

		_, _ = w.Write(s.style)
	})

	mux.HandleFunc("GET /script.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/javascript")

		_, _ = w.Write(s.script)
	})

	if len(s.favicon) > 0 {
		mux.HandleFunc("GET /favicon.ico", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "image/x-icon")

			_, _ = w.Write(s.favicon)
		})
	}

	if len(s.cfg.FontTTF) > 0 {
		mux.HandleFunc("GET /font.ttf", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "font/ttf")

			_, _ = w.Write(s.cfg.FontTTF)
		})
	}

	mux.HandleFunc("GET /assets/{name}", s.handleAsset)

	mux.HandleFunc("GET /ws", s.handleSocket)

	return mux
}

func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	if s.cfg.OnAsset == nil {
		http.NotFound(w, r)

		return
	}
	name := r.PathValue("name")

	content, contentType, err := s.cfg.OnAsset(r.Context(), name)

	if err != nil {
		s.logger.Debug("asset handler failed", "asset", name, "error", err)

		http.NotFound(w, r)

		return
	}
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	_, _ = w.Write(content)
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	if s.options.MaxConnections > 0 && s.registry.size() >= s.options.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)

		return
	}
	wsConn, err := s.upgrader.Upgrade(w, r, nil)

	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)

		return
	}
	id := uuid.NewString()

	conn, err := newConn(s.ctx, wsConn, id, s.options, s.logger)

	if err != nil {
		s.logger.Warn("failed to set up connection", "conn", id, "error", err)

		_ = wsConn.Close()

		return
	}
	hooks := s.cfg.Hooks

	if hooks != nil && hooks.OnConnect != nil {
		if err := hooks.OnConnect(conn); err != nil {
			s.logger.Debug("connection rejected by OnConnect hook", "conn", id, "error", err)

			conn.Close()

			return
		}
	}
	if err := s.registry.add(conn); err != nil {
		conn.Close()

		return
	}
	openedAt := time.Now()

	hooks.metrics().ConnectionOpened(id)

	s.logger.Debug("connection registered", "conn", id)

	conn.OnClose(func(c *Conn) {
		s.registry.remove(c.ID)

		hooks.metrics().ConnectionClosed(c.ID, time.Since(openedAt))

		if hooks != nil && hooks.OnDisconnect != nil {
			hooks.OnDisconnect(c)
		}
		s.logger.Debug("connection removed", "conn", c.ID)
	})

	conn.handleEvents(func(ev Event, size int) {
		s.dispatchEvent(conn, ev, size)
	})

	s.runInit(conn)
}

// dispatchEvent invokes the user event handler for one decoded client
// event. Handler errors and panics are logged and the invocation abandoned;
// they never terminate the ingress loop.
func (s *Server) dispatchEvent(c *Conn, ev Event, size int) {
	if s.cfg.OnEvent == nil {
		return
	}
	hooks := s.cfg.Hooks

	hooks.metrics().EventReceived(c.ID, ev.Name, size)

	start := time.Now()

	defer func() {
		hooks.metrics().HandlerDuration("event", time.Since(start))

		if r := recover(); r != nil {
			s.logger.Error("event handler panic", "event", ev.Name, "conn", c.ID, "panic", r)
		}
	}()

	if err := s.cfg.OnEvent(s.ctx, s.ui, ev.Name, ev.Data); err != nil {
		s.logger.Error("event handler failed", "event", ev.Name, "conn", c.ID, "error", err)

		hooks.metrics().Error(serverEntity, err)
	}
}

func (s *Server) runInit(c *Conn) {
	if s.cfg.OnInit == nil {
		return
	}
	start := time.Now()

	defer func() {
		s.cfg.Hooks.metrics().HandlerDuration("init", time.Since(start))

		if r := recover(); r != nil {
			s.logger.Error("init handler panic", "conn", c.ID, "panic", r)
		}
	}()

	if err := s.cfg.OnInit(s.ctx, s.ui); err != nil {
		s.logger.Error("init handler failed", "conn", c.ID, "error", err)

		s.cfg.Hooks.metrics().Error(serverEntity, err)
	}
}

func (s *Server) runTick(ctx context.Context) {
	start := time.Now()

	defer func() {
		s.cfg.Hooks.metrics().HandlerDuration("background", time.Since(start))

		if r := recover(); r != nil {
			s.logger.Error("background handler panic", "panic", r)
		}
	}()

	if err := s.cfg.OnBackground(ctx, s.ui); err != nil {
		s.logger.Error("background handler failed", "error", err)

		s.cfg.Hooks.metrics().Error(serverEntity, err)
	}
}

// Start binds the configured address and begins serving in a background
// goroutine. Bind failure is returned synchronously; nothing is served in
// that case. The background scheduler starts with the server.
func (s *Server) Start() error {
	s.mutex.Lock()

	if s.isRunning {
		s.mutex.Unlock()

		return internal(serverEntity, "server is already running")
	}
	ln, err := net.Listen("tcp", s.server.Addr)

	if err != nil {
		s.mutex.Unlock()

		return wrapF(err, "failed to bind %s", s.server.Addr)
	}
	s.listener = ln

	s.isRunning = true

	s.mutex.Unlock()

	if s.scheduler != nil {
		s.scheduler.start()
	}
	s.logger.Info("serving", "addr", ln.Addr().String())

	go func() {
		if s.server.TLSConfig != nil {
			_ = s.server.ServeTLS(ln, "", "")
		} else {
			_ = s.server.Serve(ln)
		}

		s.mutex.Lock()

		s.isRunning = false

		s.mutex.Unlock()
	}()

	return nil
}

// Listen starts the server and blocks until SIGINT or SIGTERM, then shuts
// down gracefully, waiting up to 30 seconds for connections to drain.
func (s *Server) Listen() error {
	if err := s.Start(); err != nil {
		return err
	}
	quit := make(chan os.Signal, 1)

	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	if err := s.Stop(30 * time.Second); err != nil {
		return wrapF(err, "error during server shutdown")
	}
	return nil
}

// Addr returns the address the server is bound to. Only valid after Start;
// useful when binding port 0.
func (s *Server) Addr() string {
	s.mutex.RLock()

	defer s.mutex.RUnlock()

	if s.listener == nil {
		return s.server.Addr
	}
	return s.listener.Addr().String()
}

// IsRunning reports whether the server is currently accepting connections.
func (s *Server) IsRunning() bool {
	s.mutex.RLock()

	defer s.mutex.RUnlock()

	return s.isRunning
}

// Stop gracefully shuts the server down: no further scheduler ticks are
// initiated, live connections are closed, and the HTTP server drains within
// the given timeout. Returns nil if the server was not running.
func (s *Server) Stop(timeout time.Duration) error {
	s.mutex.Lock()

	if !s.isRunning {
		s.mutex.Unlock()

		return nil
	}
	s.mutex.Unlock()

	if s.scheduler != nil {
		s.scheduler.stop()
	}
	s.cancel()

	for _, c := range s.registry.snapshot() {
		c.Close()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)

	defer shutdownCancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return wrapF(err, "http server shutdown failed")
	}
	return nil
}
