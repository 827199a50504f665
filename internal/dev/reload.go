package dev

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/loom-dev/loom/pkg/middleware"
)

// ReloadPath is the WebSocket endpoint browsers connect to for reload
// signals.
const ReloadPath = "/_loom/reload"

// ReloadMessageType represents the type of reload message.
type ReloadMessageType string

const (
	ReloadTypeFull  ReloadMessageType = "reload"
	ReloadTypeCSS   ReloadMessageType = "css"
	ReloadTypeError ReloadMessageType = "error"
	ReloadTypeClear ReloadMessageType = "clear"
)

// ReloadMessage is sent to browsers via WebSocket.
type ReloadMessage struct {
	Type  ReloadMessageType `json:"type"`
	Error string            `json:"error,omitempty"`
	File  string            `json:"file,omitempty"`
}

// ReloadServer manages the WebSocket connections of open development
// pages. It remembers the last unrecovered error so a page that connects
// after a failure still gets the overlay.
type ReloadServer struct {
	mu        sync.RWMutex
	clients   map[*websocket.Conn]bool
	lastError string
	upgrader  websocket.Upgrader
}

// NewReloadServer creates a new reload server.
func NewReloadServer() *ReloadServer {
	return &ReloadServer{
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in dev
			},
		},
	}
}

// HandleWebSocket handles WebSocket upgrade and connection.
func (rs *ReloadServer) HandleWebSocket(w http.ResponseWriter, req *http.Request) {
	conn, err := rs.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}

	rs.mu.Lock()
	rs.clients[conn] = true
	pending := rs.lastError
	rs.mu.Unlock()
	middleware.RecordClientConnect()

	if pending != "" {
		rs.send(conn, ReloadMessage{Type: ReloadTypeError, Error: pending})
	}

	// Keep connection alive until client disconnects
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	rs.mu.Lock()
	delete(rs.clients, conn)
	rs.mu.Unlock()
	conn.Close()
	middleware.RecordClientDisconnect()
}

// NotifyReload sends a full page reload message to all clients.
func (rs *ReloadServer) NotifyReload() {
	middleware.RecordReload()
	rs.broadcast(ReloadMessage{Type: ReloadTypeFull})
}

// NotifyCSS sends a stylesheet-only reload message to all clients.
func (rs *ReloadServer) NotifyCSS(file string) {
	rs.broadcast(ReloadMessage{Type: ReloadTypeCSS, File: file})
}

// NotifyError shows the error overlay on all clients and on any client
// that connects before ClearError.
func (rs *ReloadServer) NotifyError(errMsg string) {
	rs.mu.Lock()
	rs.lastError = errMsg
	rs.mu.Unlock()
	rs.broadcast(ReloadMessage{Type: ReloadTypeError, Error: errMsg})
}

// ClearError clears the error overlay on all clients.
func (rs *ReloadServer) ClearError() {
	rs.mu.Lock()
	rs.lastError = ""
	rs.mu.Unlock()
	rs.broadcast(ReloadMessage{Type: ReloadTypeClear})
}

// broadcast sends a message to all connected clients.
func (rs *ReloadServer) broadcast(msg ReloadMessage) {
	rs.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(rs.clients))
	for client := range rs.clients {
		clients = append(clients, client)
	}
	rs.mu.RUnlock()

	for _, client := range clients {
		rs.send(client, msg)
	}
}

// send writes one message, dropping the client on failure.
func (rs *ReloadServer) send(conn *websocket.Conn, msg ReloadMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		rs.mu.Lock()
		delete(rs.clients, conn)
		rs.mu.Unlock()
		conn.Close()
	}
}

// ClientCount returns the number of connected clients.
func (rs *ReloadServer) ClientCount() int {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return len(rs.clients)
}

// Close closes all client connections.
func (rs *ReloadServer) Close() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	for client := range rs.clients {
		client.Close()
		delete(rs.clients, client)
	}
}

// DevClientScript is the JavaScript injected into development pages. It
// connects to ReloadPath and acts on the four message types.
const DevClientScript = `
<script>
(function() {
    'use strict';

    var reconnectDelay = 1000;
    var maxReconnectDelay = 30000;
    var ws = null;

    function connect() {
        var protocol = location.protocol === 'https:' ? 'wss:' : 'ws:';
        ws = new WebSocket(protocol + '//' + location.host + '/_loom/reload');

        ws.onopen = function() {
            console.log('[loom] reload channel connected');
            reconnectDelay = 1000;
            clearErrorOverlay();
        };

        ws.onmessage = function(e) {
            var msg;
            try {
                msg = JSON.parse(e.data);
            } catch (err) {
                return;
            }

            switch (msg.type) {
                case 'reload':
                    console.log('[loom] reloading...');
                    location.reload();
                    break;

                case 'css':
                    console.log('[loom] reloading stylesheets...');
                    reloadCSS();
                    break;

                case 'error':
                    console.error('[loom] ' + msg.error);
                    showErrorOverlay(msg.error);
                    break;

                case 'clear':
                    clearErrorOverlay();
                    break;
            }
        };

        ws.onclose = function() {
            setTimeout(function() {
                reconnectDelay = Math.min(reconnectDelay * 2, maxReconnectDelay);
                connect();
            }, reconnectDelay);
        };

        ws.onerror = function() {
            ws.close();
        };
    }

    function reloadCSS() {
        var links = document.querySelectorAll('link[rel="stylesheet"]');
        links.forEach(function(link) {
            var url = new URL(link.href);
            url.searchParams.set('_reload', Date.now());
            link.href = url.toString();
        });
    }

    function showErrorOverlay(error) {
        clearErrorOverlay();

        var overlay = document.createElement('div');
        overlay.id = 'loom-error-overlay';
        overlay.style.cssText = 'position:fixed;top:0;left:0;right:0;bottom:0;background:rgba(0,0,0,0.9);color:#fff;font-family:monospace;font-size:14px;padding:20px;overflow:auto;z-index:999999;';

        var content = document.createElement('div');
        content.style.cssText = 'max-width:800px;margin:0 auto;';

        var title = document.createElement('h2');
        title.style.cssText = 'color:#ff5555;margin:0 0 20px;';
        title.textContent = 'Request Failed';

        var pre = document.createElement('pre');
        pre.style.cssText = 'white-space:pre-wrap;word-wrap:break-word;background:#1a1a1a;padding:20px;border-radius:8px;border:1px solid #333;';
        pre.textContent = error;

        var hint = document.createElement('p');
        hint.style.cssText = 'margin-top:20px;color:#888;';
        hint.textContent = 'Fix the error and save to reload.';

        content.appendChild(title);
        content.appendChild(pre);
        content.appendChild(hint);
        overlay.appendChild(content);
        document.body.appendChild(overlay);
    }

    function clearErrorOverlay() {
        var overlay = document.getElementById('loom-error-overlay');
        if (overlay) {
            overlay.remove();
        }
    }

    if (document.readyState === 'loading') {
        document.addEventListener('DOMContentLoaded', connect);
    } else {
        connect();
    }
})();
</script>
`
