// Package server exposes HTTP handlers, including the WebSocket gateway into
// the relay, health and status endpoints, and the built-in test page.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hako/durafmt"
)

// wsAdmissionWait bounds how long an upgrade request waits for a free session
// slot when MaxSessions is reached.
const wsAdmissionWait = 500 * time.Millisecond

// WebSocketHandler upgrades the request and admits the connection as a relay
// client. Browser clients speak the same command protocol as TCP clients, one
// text frame per message, and share the same registry.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}
	if s.acceptCtx.Err() != nil {
		http.Error(w, "Relay is not accepting connections.", http.StatusServiceUnavailable)
		return
	}

	// the slot is taken before the 101 so a full relay answers with a plain 503
	admitCtx, cancel := context.WithTimeout(s.acceptCtx, wsAdmissionWait)
	err := s.sessions.AddWithContext(admitCtx)
	cancel()
	if err != nil {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("Rejected WebSocket client: relay at capacity")
		http.Error(w, "Relay is at capacity, try again later.", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.sessions.Done()
		s.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	s.startSession(newWSTransport(conn, s.cfg.MaxMessageSize))
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "Chat relay is running!")
}

type statusResponse struct {
	ActiveClients int             `json:"active_clients"`
	Uptime        string          `json:"uptime"`
	Sessions      []sessionStatus `json:"sessions"`
}

type sessionStatus struct {
	ID           string    `json:"id"`
	Addr         string    `json:"addr"`
	Transport    string    `json:"transport"`
	ConnectedAt  time.Time `json:"connected_at"`
	ConnectedFor string    `json:"connected_for"`
}

// StatusHandler reports the active client count and one entry per session as JSON.
func (s *Server) StatusHandler(w http.ResponseWriter, _ *http.Request) {
	peers := s.registry.Snapshot()
	now := time.Now()

	resp := statusResponse{
		ActiveClients: len(peers),
		Uptime:        humanDuration(now.Sub(s.started)),
		Sessions:      make([]sessionStatus, 0, len(peers)),
	}
	for _, p := range peers {
		resp.Sessions = append(resp.Sessions, sessionStatus{
			ID:           p.ID(),
			Addr:         p.Addr(),
			Transport:    string(p.Kind()),
			ConnectedAt:  p.ConnectedAt().UTC(),
			ConnectedFor: humanDuration(now.Sub(p.ConnectedAt())),
		})
	}

	body, err := fastJSONMarshal(resp)
	if err != nil {
		s.log.Error().Err(err).Msg("Error encoding status response")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(body); err != nil {
		s.log.Debug().Err(err).Msg("Error writing status response")
	}
}

func humanDuration(d time.Duration) string {
	return durafmt.Parse(d.Truncate(time.Second)).LimitFirstN(2).String()
}

// TestPageHandler serves an HTML page for trying the relay from a browser.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprint(w, testPageHTML)
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Chat Relay Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages { border: 1px solid #ccc; height: 300px; padding: 10px; overflow-y: scroll; margin: 10px 0; background-color: #f9f9f9; }
        input[type="text"] { width: 300px; padding: 5px; margin-right: 10px; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>Chat Relay Test</h1>
    <p>Commands: <code>/count</code> | <code>/broadcast &lt;message&gt;</code> | anything else is echoed.</p>
    <div id="status" class="status disconnected">Disconnected</div>
    <div>
        <input type="text" id="messageInput" placeholder="Type a command..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>
    <div id="messages"></div>
    <script>
        let ws = null;
        const messagesDiv = document.getElementById('messages');
        const messageInput = document.getElementById('messageInput');
        const sendButton = document.getElementById('sendButton');
        const connectButton = document.getElementById('connectButton');
        const statusDiv = document.getElementById('status');

        function addMessage(text, prefix) {
            const el = document.createElement('div');
            el.textContent = prefix + text;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            messageInput.disabled = !connected;
            sendButton.disabled = !connected;
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
                return;
            }
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws');
            ws.onopen = () => updateStatus(true);
            ws.onmessage = (event) => addMessage(event.data, '[Server] ');
            ws.onclose = () => { updateStatus(false); ws = null; };
        }

        function sendMessage() {
            const message = messageInput.value;
            if (message && ws && ws.readyState === WebSocket.OPEN) {
                ws.send(message);
                addMessage(message, '> ');
                messageInput.value = '';
            }
        }

        messageInput.addEventListener('keypress', (e) => { if (e.key === 'Enter') sendMessage(); });
    </script>
</body>
</html>`
