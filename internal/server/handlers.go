// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, the room catalog, and the built-in test page.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// WebSocketHandler upgrades GET requests to WebSocket connections and hands
// each new client to hub.
func WebSocketHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Str("module", "server.http").Str("addr", r.RemoteAddr).Err(err).Msg("websocket upgrade failed")
			return
		}

		client := NewClient(conn, hub, r.RemoteAddr)
		if !hub.Register(client) {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			_ = conn.Close()
		}
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Room chat server is running!")
}

// StatsHandler reports hub statistics as JSON.
func StatsHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, struct {
			Status string `json:"status"`
			Stats
		}{Status: "ok", Stats: hub.Stats()})
	}
}

// RoomsHandler lists the configured rooms with their current member counts.
func RoomsHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed.", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, hub.Stats().Rooms)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Str("module", "server.http").Err(err).Msg("error writing JSON response")
	}
}

// TestPageHandler serves an HTML page for trying the room protocol from a
// browser: pick a name and a room, chat, and watch typing indicators.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPage); err != nil {
		log.Warn().Str("module", "server.http").Err(err).Msg("error writing HTML response")
	}
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>Room Chat Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages { border: 1px solid #ccc; height: 300px; padding: 10px; overflow-y: scroll; margin: 10px 0; background-color: #f9f9f9; }
        #typing { height: 1.2em; color: #666; font-style: italic; }
        input[type="text"], select { padding: 5px; margin-right: 10px; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        button:hover { background-color: #005a87; }
        .system { color: gray; font-style: italic; }
        .mine { color: blue; }
    </style>
</head>
<body>
    <h1>Room Chat Test</h1>
    <div>
        <input type="text" id="user" placeholder="Your name">
        <select id="room"></select>
        <button onclick="join()">Join</button>
        <button onclick="leave()">Leave</button>
    </div>
    <div id="messages"></div>
    <div id="typing"></div>
    <div>
        <input type="text" id="text" placeholder="Type a message..." disabled>
        <button id="send" onclick="send()" disabled>Send</button>
    </div>

    <script>
        const messages = document.getElementById('messages');
        const typingDiv = document.getElementById('typing');
        const text = document.getElementById('text');
        const sendButton = document.getElementById('send');
        const typers = new Set();
        let ws = null;
        let current = null;
        let typingTimer = null;

        fetch('/rooms').then(r => r.json()).then(rooms => {
            const select = document.getElementById('room');
            rooms.forEach(room => {
                const opt = document.createElement('option');
                opt.value = room.key;
                opt.textContent = room.label;
                select.appendChild(opt);
            });
        });

        function emit(event, data) {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({event: event, data: data}));
            }
        }

        function show(line, cls) {
            const el = document.createElement('div');
            el.className = cls || '';
            el.textContent = line;
            messages.appendChild(el);
            messages.scrollTop = messages.scrollHeight;
        }

        function renderTyping() {
            typingDiv.textContent = typers.size ? Array.from(typers).join(', ') + ' digitando...' : '';
        }

        function handle(frame) {
            const {event, data} = JSON.parse(frame);
            if (event === 'system') {
                show('[' + data.timestamp + '] ' + data.user + ' ' + data.text, 'system');
            } else if (event === 'message') {
                show('[' + data.timestamp + '] ' + data.user + ': ' + data.text, data.user === current.user ? 'mine' : '');
            } else if (event === 'typing') {
                if (data.isTyping) { typers.add(data.user); } else { typers.delete(data.user); }
                renderTyping();
            }
        }

        function join() {
            const user = document.getElementById('user').value.trim();
            const room = document.getElementById('room').value;
            if (!user || !room) { return; }
            current = {user: user, room: room};
            typers.clear();
            renderTyping();
            if (ws && ws.readyState === WebSocket.OPEN) {
                emit('join_room', current);
                return;
            }
            ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
            ws.onopen = () => {
                text.disabled = false;
                sendButton.disabled = false;
                emit('join_room', current);
            };
            ws.onmessage = e => e.data.split('\n').forEach(handle);
            ws.onclose = () => {
                show('Connection closed', 'system');
                text.disabled = true;
                sendButton.disabled = true;
                ws = null;
            };
        }

        function leave() {
            if (current) {
                emit('user_left', current);
                show('You left ' + current.room, 'system');
            }
        }

        function send() {
            const value = text.value.trim();
            if (!value || !current) { return; }
            const now = new Date().toLocaleTimeString('pt-BR');
            emit('message', {type: 'message', text: value, user: current.user, room: current.room, timestamp: now});
            text.value = '';
            clearTimeout(typingTimer);
        }

        text.addEventListener('input', () => {
            if (!current) { return; }
            emit('typing', {user: current.user, isTyping: true, room: current.room});
            clearTimeout(typingTimer);
            typingTimer = setTimeout(() => emit('stop_typing', current), 2500);
        });

        text.addEventListener('keypress', e => {
            if (e.key === 'Enter') { send(); }
        });
    </script>
</body>
</html>`
