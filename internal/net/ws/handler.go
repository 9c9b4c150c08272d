package ws

import (
	"context"
	"encoding/json"
	"log"
	nethttp "net/http"
	"time"

	"github.com/gorilla/websocket"

	server "lorule-online/server"
	"lorule-online/server/internal/auth"
	"lorule-online/server/logging"
	sessionlog "lorule-online/server/logging/session"
)

const (
	// authWait bounds how long a fresh connection may take to submit its
	// token before the server gives up on it.
	authWait = 10 * time.Second

	// unauthorizedLinger keeps a rejected connection open long enough for
	// the unauthorized notice to flush before the close.
	unauthorizedLinger = 250 * time.Millisecond

	writeWait = 10 * time.Second
)

// Authenticator verifies a submitted token and resolves its identity.
type Authenticator interface {
	VerifyToken(token string) (auth.Identity, error)
}

type subscription interface {
	WriteMessage(messageType int, data []byte) error
}

type HandlerConfig struct {
	Logger    *log.Logger
	Publisher logging.Publisher
}

// Handler upgrades connections, runs the credential handshake, and pumps a
// session's inbound messages into the hub.
type Handler struct {
	hub           *server.Hub
	authenticator Authenticator
	logger        *log.Logger
	publisher     logging.Publisher
	upgrader      websocket.Upgrader
}

func NewHandler(hub *server.Hub, authenticator Authenticator, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}

	return &Handler{
		hub:           hub,
		authenticator: authenticator,
		logger:        logger,
		publisher:     publisher,
		upgrader:      upgrader,
	}
}

func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed: %v", err)
		return
	}

	identity, ok := h.handshake(conn)
	if !ok {
		return
	}

	sub, primary := h.hub.StartSession(identity.ID, identity.Name, conn)
	session := subscription(sub)

	if !h.writeJSON(session, identity.ID, conn, welcomeMessage{Ver: server.ProtocolVersion, Type: "welcome"}) {
		return
	}
	if !h.writeJSON(session, identity.ID, conn, identityMessage{Ver: server.ProtocolVersion, Type: "identity", ID: primary.ID}) {
		return
	}

	h.hub.BroadcastState()
	h.hub.BroadcastChat("", identity.Name+" has arrived.")

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			h.hub.EndSessionFor(identity.ID, conn, "connection closed")
			return
		}
		h.hub.MarkAlive(identity.ID, time.Now())

		var msg clientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			h.logger.Printf("discarding malformed message from %s: %v", identity.ID, err)
			continue
		}

		switch msg.Type {
		case "update":
			if msg.Hadron == nil {
				continue
			}
			// Rejections are deliberately silent; the authoritative echo in
			// the next broadcast is all the feedback a client gets.
			h.hub.ApplyUpdate(identity.ID, msg.Hadron)
		case "chat":
			name := msg.Name
			if name == "" {
				name = identity.Name
			}
			h.hub.BroadcastChat(name, msg.Content)
		case "command":
			// Reserved channel; accepted but not yet processed.
			h.logger.Printf("ignoring command %q from %s", msg.Cmd, identity.ID)
		case "heartbeat":
			now := time.Now()
			rtt, ok := h.hub.UpdateHeartbeat(identity.ID, now, msg.SentAt)
			if !ok {
				continue
			}
			ack := heartbeatMessage{
				Ver:        server.ProtocolVersion,
				Type:       "heartbeat",
				ServerTime: now.UnixMilli(),
				ClientTime: msg.SentAt,
				RTTMillis:  rtt.Milliseconds(),
			}
			if !h.writeJSON(session, identity.ID, conn, ack) {
				return
			}
		default:
			h.logger.Printf("unknown message type %q from %s", msg.Type, identity.ID)
		}
	}
}

// handshake requests credentials and verifies the submitted token. The
// false return means the connection has already been closed.
func (h *Handler) handshake(conn *websocket.Conn) (auth.Identity, bool) {
	request := requestCredentialsMessage{Ver: server.ProtocolVersion, Type: "requestCredentials"}
	if err := writeConnJSON(conn, request); err != nil {
		conn.Close()
		return auth.Identity{}, false
	}

	conn.SetReadDeadline(time.Now().Add(authWait))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		h.reject(conn, "no credentials submitted")
		return auth.Identity{}, false
	}
	conn.SetReadDeadline(time.Time{})

	var msg clientMessage
	if err := json.Unmarshal(payload, &msg); err != nil || msg.Type != "token" || msg.Token == "" {
		h.reject(conn, "malformed credentials")
		return auth.Identity{}, false
	}

	identity, err := h.authenticator.VerifyToken(msg.Token)
	if err != nil {
		h.reject(conn, "token rejected")
		return auth.Identity{}, false
	}
	return identity, true
}

// reject tells the client it is unauthorized, waits for the notice to
// flush, and closes. The client never learns which check failed.
func (h *Handler) reject(conn *websocket.Conn, reason string) {
	sessionlog.Rejected(context.Background(), h.publisher, 0, logging.EntityRef{Kind: logging.EntityKindSession}, sessionlog.RejectedPayload{Reason: reason})

	notice := unauthorizedMessage{Ver: server.ProtocolVersion, Type: "unauthorized"}
	if err := writeConnJSON(conn, notice); err == nil {
		time.Sleep(unauthorizedLinger)
	}
	conn.Close()
}

func (h *Handler) writeJSON(session subscription, identity string, conn *websocket.Conn, payload any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Printf("failed to marshal message for %s: %v", identity, err)
		return true
	}
	if err := session.WriteMessage(websocket.TextMessage, data); err != nil {
		h.hub.EndSessionFor(identity, conn, "write failure")
		return false
	}
	return true
}

func writeConnJSON(conn *websocket.Conn, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}
