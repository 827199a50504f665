package dev

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialReload(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readReloadMessage(t *testing.T, conn *websocket.Conn) ReloadMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg ReloadMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return msg
}

func TestReloadServer_BroadcastTypes(t *testing.T) {
	rs := NewReloadServer()
	srv := httptest.NewServer(http.HandlerFunc(rs.HandleWebSocket))
	defer srv.Close()
	defer rs.Close()

	conn := dialReload(t, srv)
	defer conn.Close()
	waitFor(t, func() bool { return rs.ClientCount() == 1 })

	rs.NotifyReload()
	if msg := readReloadMessage(t, conn); msg.Type != ReloadTypeFull {
		t.Errorf("type = %q, want %q", msg.Type, ReloadTypeFull)
	}

	rs.NotifyCSS("src/app.css")
	msg := readReloadMessage(t, conn)
	if msg.Type != ReloadTypeCSS || msg.File != "src/app.css" {
		t.Errorf("css message = %+v", msg)
	}

	rs.NotifyError("compile failed")
	msg = readReloadMessage(t, conn)
	if msg.Type != ReloadTypeError || msg.Error != "compile failed" {
		t.Errorf("error message = %+v", msg)
	}

	rs.ClearError()
	if msg := readReloadMessage(t, conn); msg.Type != ReloadTypeClear {
		t.Errorf("type = %q, want %q", msg.Type, ReloadTypeClear)
	}
}

func TestReloadServer_ReplaysPendingErrorToNewClients(t *testing.T) {
	rs := NewReloadServer()
	srv := httptest.NewServer(http.HandlerFunc(rs.HandleWebSocket))
	defer srv.Close()
	defer rs.Close()

	// Fail before anyone is connected.
	rs.NotifyError("broken module")

	// A page opened after the failure still gets the overlay.
	conn := dialReload(t, srv)
	defer conn.Close()
	msg := readReloadMessage(t, conn)
	if msg.Type != ReloadTypeError || msg.Error != "broken module" {
		t.Fatalf("first message = %+v, want the pending error", msg)
	}

	rs.ClearError()
	if msg := readReloadMessage(t, conn); msg.Type != ReloadTypeClear {
		t.Fatalf("after clear got %+v", msg)
	}

	// Once cleared, new connections get nothing.
	late := dialReload(t, srv)
	defer late.Close()
	late.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, _, err := late.ReadMessage(); err == nil {
		t.Fatal("expected no pending message after ClearError")
	}
}

func TestReloadServer_DropsDisconnectedClients(t *testing.T) {
	rs := NewReloadServer()
	srv := httptest.NewServer(http.HandlerFunc(rs.HandleWebSocket))
	defer srv.Close()
	defer rs.Close()

	conn := dialReload(t, srv)
	waitFor(t, func() bool { return rs.ClientCount() == 1 })

	conn.Close()
	waitFor(t, func() bool { return rs.ClientCount() == 0 })

	// Broadcasting with no clients must not panic.
	rs.NotifyReload()
}

func TestReloadServer_CloseDisconnectsAll(t *testing.T) {
	rs := NewReloadServer()
	srv := httptest.NewServer(http.HandlerFunc(rs.HandleWebSocket))
	defer srv.Close()

	a := dialReload(t, srv)
	defer a.Close()
	b := dialReload(t, srv)
	defer b.Close()
	waitFor(t, func() bool { return rs.ClientCount() == 2 })

	rs.Close()
	if got := rs.ClientCount(); got != 0 {
		t.Fatalf("clients after close = %d, want 0", got)
	}
}

func TestDevClientScript(t *testing.T) {
	if !strings.Contains(DevClientScript, ReloadPath) {
		t.Error("client script must dial the reload endpoint")
	}
	if !strings.Contains(DevClientScript, "loom-error-overlay") {
		t.Error("client script must manage the error overlay element")
	}
}
