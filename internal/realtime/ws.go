package realtime

import (
	"context"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"pet-diary/internal/platform/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

const (
	MessageTypeSnapshot = "snapshot"
	MessageTypeError    = "error"
	MessageTypePing     = "ping"
	MessageTypePong     = "pong"
	MessageTypeLoadMore = "load_more"
)

// Source es lo que el Bridge empuja al cliente. *Subscription lo implementa.
type Source interface {
	Snapshots() <-chan Snapshot
	Close()
}

// Commander es opcional: fuentes que aceptan comandos del cliente (ej. load_more).
type Commander interface {
	Command(ctx context.Context, cmd string) error
}

type outMessage struct {
	Type    string `json:"type"`
	Version uint64 `json:"version,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

type inMessage struct {
	Type string `json:"type"`
}

// Bridge sirve una Source por WebSocket.
type Bridge struct {
	upgrader websocket.Upgrader
	log      logger.Logger
}

func NewBridge(allowedOrigins []string, log logger.Logger) *Bridge {
	if log == nil {
		log = logger.Nop()
	}
	return &Bridge{
		upgrader: websocket.Upgrader{
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      originChecker(allowedOrigins),
		},
		log: log,
	}
}

// clientes no-browser no mandan Origin
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// Serve hace upgrade y bloquea hasta que el cliente o la fuente cierran.
// src se cierra siempre antes de volver.
func (b *Bridge) Serve(w http.ResponseWriter, r *http.Request, src Source) {
	defer src.Close()

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn("realtime: websocket upgrade", map[string]any{"error": err})
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	replies := make(chan outMessage, 4)
	go b.readPump(ctx, cancel, conn, src, replies)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return

		case snap, ok := <-src.Snapshots():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
				return
			}
			msg := outMessage{Type: MessageTypeSnapshot, Version: snap.Version, Data: snap.Data}
			if snap.Err != nil {
				msg = outMessage{Type: MessageTypeError, Version: snap.Version, Error: snap.Err.Error()}
			}
			if err := b.write(conn, msg); err != nil {
				return
			}

		case msg := <-replies:
			if err := b.write(conn, msg); err != nil {
				return
			}

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (b *Bridge) write(conn *websocket.Conn, msg outMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		b.log.Error("realtime: encode message", map[string]any{"error": err})
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, raw)
}

func (b *Bridge) readPump(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, src Source, replies chan<- outMessage) {
	defer cancel()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				b.log.Warn("realtime: websocket read", map[string]any{"error": err})
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var in inMessage
		if err := json.Unmarshal(raw, &in); err != nil {
			continue
		}

		var reply *outMessage
		switch in.Type {
		case MessageTypePing:
			reply = &outMessage{Type: MessageTypePong}
		case MessageTypeLoadMore:
			cmd, ok := src.(Commander)
			if !ok {
				reply = &outMessage{Type: MessageTypeError, Error: "load_more not supported"}
				break
			}
			if err := cmd.Command(ctx, in.Type); err != nil {
				reply = &outMessage{Type: MessageTypeError, Error: err.Error()}
			}
		}

		if reply != nil {
			select {
			case replies <- *reply:
			case <-ctx.Done():
				return
			}
		}
	}
}
