package webui

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func get(t *testing.T, ts string, path string) (int, string, string) {
	t.Helper()

	resp, err := http.Get(ts + path)

	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)

	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	return resp.StatusCode, string(body), resp.Header.Get("Content-Type")
}

func TestPageShellRoute(t *testing.T) {
	cfg := &Config{
		PageTitle: Static("My App"),
		PageLang:  Static("fr"),
	}
	_, ts := newTestApp(t, cfg)

	status, body, contentType := get(t, ts.URL, "/")

	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if !strings.HasPrefix(contentType, "text/html") {
		t.Errorf("unexpected content type %s", contentType)
	}
	if !strings.Contains(body, "<title>My App</title>") {
		t.Error("page shell is missing the configured title")
	}
	if !strings.Contains(body, `lang="fr"`) {
		t.Error("page shell is missing the configured lang")
	}
	if !strings.Contains(body, `src="/script.js"`) {
		t.Error("page shell does not load the bridge script")
	}
}

func TestStylesheetRoute(t *testing.T) {
	t.Run("includes reset and user css", func(t *testing.T) {
		cfg := &Config{
			InjectCSSReset: true,
			BaseCSS:        Static("body { color: red; }"),
		}
		_, ts := newTestApp(t, cfg)

		_, body, contentType := get(t, ts.URL, "/style.css")

		if contentType != "text/css" {
			t.Errorf("unexpected content type %s", contentType)
		}
		if !strings.Contains(body, "box-sizing") {
			t.Error("reset styles missing")
		}
		if !strings.Contains(body, "color: red") {
			t.Error("user styles missing")
		}
		if strings.Index(body, "box-sizing") > strings.Index(body, "color: red") {
			t.Error("reset must precede user styles")
		}
	})

	t.Run("omits reset when disabled", func(t *testing.T) {
		_, ts := newTestApp(t, &Config{BaseCSS: Static("body { color: red; }")})

		_, body, _ := get(t, ts.URL, "/style.css")

		if strings.Contains(body, "box-sizing") {
			t.Error("reset styles should be absent")
		}
	})
}

func TestScriptRoute(t *testing.T) {
	t.Run("appends user script after the runtime", func(t *testing.T) {
		_, ts := newTestApp(t, &Config{BaseJS: Static("myApp();")})

		_, body, contentType := get(t, ts.URL, "/script.js")

		if contentType != "text/javascript" {
			t.Errorf("unexpected content type %s", contentType)
		}
		if !strings.Contains(body, "window._uiEvent") {
			t.Error("bridge runtime missing")
		}
		if !strings.Contains(body, "myApp();") {
			t.Error("user script missing")
		}
		if strings.Index(body, "window._uiEvent") > strings.Index(body, "myApp();") {
			t.Error("runtime must precede user script")
		}
	})

	t.Run("patches scheme and debug flags", func(t *testing.T) {
		_, ts := newTestApp(t, &Config{Debug: true, UseTLSScheme: true})

		_, body, _ := get(t, ts.URL, "/script.js")

		if !strings.Contains(body, "var DEBUG = true;") {
			t.Error("debug flag not patched")
		}
		if !strings.Contains(body, `var SCHEME = "wss";`) {
			t.Error("socket scheme not patched")
		}
	})
}

func TestFaviconRoute(t *testing.T) {
	t.Run("served when injected", func(t *testing.T) {
		_, ts := newTestApp(t, &Config{InjectDefaultFavicon: true})

		status, body, contentType := get(t, ts.URL, "/favicon.ico")

		if status != http.StatusOK {
			t.Fatalf("expected 200, got %d", status)
		}
		if contentType != "image/x-icon" {
			t.Errorf("unexpected content type %s", contentType)
		}
		if len(body) == 0 {
			t.Error("empty favicon")
		}
	})

	t.Run("absent when not injected", func(t *testing.T) {
		_, ts := newTestApp(t, nil)

		status, _, _ := get(t, ts.URL, "/favicon.ico")

		if status != http.StatusNotFound {
			t.Errorf("expected 404, got %d", status)
		}
	})
}

func TestFontRoute(t *testing.T) {
	font := []byte{0x00, 0x01, 0x00, 0x00}

	_, ts := newTestApp(t, &Config{FontTTF: font})

	status, body, contentType := get(t, ts.URL, "/font.ttf")

	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if contentType != "font/ttf" {
		t.Errorf("unexpected content type %s", contentType)
	}
	if body != string(font) {
		t.Error("font bytes mismatch")
	}

	_, shell, _ := get(t, ts.URL, "/")

	if !strings.Contains(shell, "font-face") {
		t.Error("page shell is missing the font-face declaration")
	}
}

func TestAssetRoute(t *testing.T) {
	t.Run("delegates to the asset handler", func(t *testing.T) {
		cfg := &Config{
			OnAsset: func(ctx context.Context, name string) ([]byte, string, error) {
				if name == "app.js" {
					return []byte("bundle"), "text/javascript", nil
				}
				return nil, "", notFound("assets", "unknown asset "+name)
			},
		}
		_, ts := newTestApp(t, cfg)

		status, body, contentType := get(t, ts.URL, "/assets/app.js")

		if status != http.StatusOK {
			t.Fatalf("expected 200, got %d", status)
		}
		if body != "bundle" || contentType != "text/javascript" {
			t.Errorf("unexpected asset response: %q %q", body, contentType)
		}

		status, _, _ = get(t, ts.URL, "/assets/missing.js")

		if status != http.StatusNotFound {
			t.Errorf("expected 404 for unknown asset, got %d", status)
		}
	})

	t.Run("404s without a handler", func(t *testing.T) {
		_, ts := newTestApp(t, nil)

		status, _, _ := get(t, ts.URL, "/assets/anything")

		if status != http.StatusNotFound {
			t.Errorf("expected 404, got %d", status)
		}
	})
}

func TestDeferredSourcesResolveOnce(t *testing.T) {
	calls := 0

	cfg := &Config{
		PageTitle: Deferred(func() string {
			calls++

			return "Deferred Title"
		}),
	}
	_, ts := newTestApp(t, cfg)

	for i := 0; i < 3; i++ {
		_, body, _ := get(t, ts.URL, "/")

		if !strings.Contains(body, "Deferred Title") {
			t.Fatal("deferred title missing from page shell")
		}
	}
	if calls != 1 {
		t.Errorf("deferred source resolved %d times, want exactly once", calls)
	}
}

func TestServerLifecycle(t *testing.T) {
	t.Run("start serves and stop shuts down", func(t *testing.T) {
		srv, err := New(&Config{Addr: "127.0.0.1:0", Logger: testLogger()})

		if err != nil {
			t.Fatalf("failed to build server: %v", err)
		}
		if err := srv.Start(); err != nil {
			t.Fatalf("failed to start: %v", err)
		}
		if !srv.IsRunning() {
			t.Error("expected server to be running")
		}
		if err := srv.Start(); err == nil {
			t.Error("expected an error for a second start")
		}

		status, _, _ := get(t, "http://"+srv.Addr(), "/")

		if status != http.StatusOK {
			t.Errorf("expected 200 from the live server, got %d", status)
		}
		if err := srv.Stop(2 * time.Second); err != nil {
			t.Fatalf("stop failed: %v", err)
		}

		deadline := time.Now().Add(2 * time.Second)

		for srv.IsRunning() {
			if time.Now().After(deadline) {
				t.Fatal("server still running after stop")
			}
			time.Sleep(10 * time.Millisecond)
		}
	})

	t.Run("bind failure is fatal and synchronous", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")

		if err != nil {
			t.Fatalf("failed to occupy a port: %v", err)
		}
		defer ln.Close()

		srv, err := New(&Config{Addr: ln.Addr().String(), Logger: testLogger()})

		if err != nil {
			t.Fatalf("failed to build server: %v", err)
		}
		if err := srv.Start(); err == nil {
			t.Fatal("expected a bind error")
		}
		if srv.IsRunning() {
			t.Error("server must not be running after a failed start")
		}
	})

	t.Run("stop without start is a no-op", func(t *testing.T) {
		srv, err := New(&Config{Logger: testLogger()})

		if err != nil {
			t.Fatalf("failed to build server: %v", err)
		}
		if err := srv.Stop(time.Second); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})
}

func TestMaxConnections(t *testing.T) {
	opts := DefaultOptions()

	opts.MaxConnections = 1

	srv, ts := newTestApp(t, &Config{Transport: opts})

	dialBridge(t, ts)

	waitForConnections(t, srv.UI(), 1)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	if conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil); err == nil {
		conn.Close()

		t.Error("expected the second connection to be rejected")
	}
}
