// Package ws adapts the chat core to WebSocket connections. Each
// connection gets a read loop feeding the client's inbox and a write loop
// draining its outbox; the routing core never sees the socket.
package ws

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"

	"github.com/nfrund/signalhub/internal/chat"
	"github.com/nfrund/signalhub/internal/queue"
)

const sessionName = "signalhub-session"

// Handler upgrades HTTP requests to WebSocket connections and binds them
// to chat clients.
type Handler struct {
	manager *chat.Manager
	logger  *slog.Logger
}

// NewHandler creates a transport handler bound to the chat manager.
func NewHandler(m *chat.Manager) *Handler {
	return &Handler{
		manager: m,
		logger:  slog.Default().With("service", "transport"),
	}
}

// Serve handles GET /rooms/:slug/ws: authenticate, register the client,
// join the room and pump messages until either side goes away.
func (h *Handler) Serve(c echo.Context) error {
	slug := c.Param("slug")
	room := h.manager.GetRoom(slug)
	if room == nil {
		return echo.NewHTTPError(http.StatusNotFound, "room not found")
	}

	ok, err := h.manager.Authenticate(slug, c.QueryParam("password"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "room not found")
	}
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid room password")
	}

	client, err := h.manager.CreateClient(h.clientID(c))
	if errors.Is(err, chat.ErrDuplicateClient) {
		// A second tab or a reconnect racing the reaper. Give the new
		// connection a fresh identity instead of hijacking the old one.
		client, err = h.manager.CreateClient(uuid.NewString())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "could not register client")
	}

	if err := h.manager.JoinRoom(slug, client.ID); err != nil {
		_ = h.manager.RemoveClient(client.ID)
		switch {
		case errors.Is(err, chat.ErrGuestLimitReached):
			return echo.NewHTTPError(http.StatusForbidden, "room is full")
		case errors.Is(err, chat.ErrRoomNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "room not found")
		default:
			return err
		}
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		InsecureSkipVerify: true, // In production, check origin.
	})
	if err != nil {
		h.logger.Error("failed to upgrade connection", "client_id", client.ID, "error", err)
		_ = h.manager.RemoveClient(client.ID)
		return err
	}

	h.logger.Info("client connected", "client_id", client.ID, "room_id", slug)

	go h.writePump(conn, client)
	h.readPump(conn, client)
	return nil
}

// clientID returns the session-stable client identifier, minting one on
// first contact.
func (h *Handler) clientID(c echo.Context) string {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		return uuid.NewString()
	}
	if id, ok := sess.Values["client_id"].(string); ok && id != "" {
		return id
	}
	id := uuid.NewString()
	sess.Values["client_id"] = id
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		h.logger.Warn("could not save session", "error", err)
	}
	return id
}

// readPump forwards raw frames from the socket into the client's inbox.
// On any read error the client is removed from the core.
func (h *Handler) readPump(conn *websocket.Conn, client *chat.Client) {
	defer func() {
		_ = h.manager.RemoveClient(client.ID)
		conn.Close(websocket.StatusNormalClosure, "client disconnected")
	}()

	for {
		_, data, err := conn.Read(context.Background())
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				h.logger.Info("websocket closed by client", "client_id", client.ID)
			} else if !errors.Is(err, io.EOF) {
				h.logger.Info("websocket read error", "client_id", client.ID, "error", err)
			}
			return
		}
		h.manager.Route(data, client.ID)
	}
}

// writePump drains the client's outbox onto the socket. It exits when the
// outbox is closed (client shut down) and drained.
func (h *Handler) writePump(conn *websocket.Conn, client *chat.Client) {
	ctx := context.Background()
	for {
		payload, err := client.Outbox.Pop(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) {
				conn.Close(websocket.StatusNormalClosure, "client shut down")
			}
			return
		}
		if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
			h.logger.Info("websocket write error", "client_id", client.ID, "error", err)
			return
		}
	}
}
