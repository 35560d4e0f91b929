package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nfrund/signalhub/internal/chat"
	"github.com/nfrund/signalhub/internal/password"
	"github.com/nfrund/signalhub/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *chat.Manager) {
	t.Helper()

	m := chat.NewManager(store.NewMemory(), nil, nil, &password.Bcrypt{Cost: bcrypt.MinCost})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})

	e := echo.New()
	e.Use(session.Middleware(sessions.NewCookieStore([]byte("test-secret"))))
	e.GET("/rooms/:slug/ws", NewHandler(m).Serve)

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv, m
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws://" + strings.TrimPrefix(srv.URL, "http://") + path
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) chat.Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	msg, err := chat.ParseMessage(data)
	require.NoError(t, err)
	return msg
}

func TestServe_GreetsAndJoins(t *testing.T) {
	srv, m := newTestServer(t)
	_, err := m.CreateRoom("Family Call", chat.RoomOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv, "/rooms/family-call/ws"), nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	greeting := readMessage(t, ctx, conn)
	assert.Equal(t, chat.TypeGreeting, greeting.Type)
	assert.Equal(t, chat.AddrGroundControl, greeting.Sender)

	info := readMessage(t, ctx, conn)
	assert.Equal(t, chat.TypeRoomInfo, info.Type)
}

func TestServe_PingPongRoundTrip(t *testing.T) {
	srv, m := newTestServer(t)
	_, err := m.CreateRoom("Family Call", chat.RoomOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv, "/rooms/family-call/ws"), nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// Drain greeting and room-info.
	readMessage(t, ctx, conn)
	readMessage(t, ctx, conn)

	ping := []byte(`{"receiver":"ground control","type":"ping","data":"marco"}`)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, ping))

	pong := readMessage(t, ctx, conn)
	assert.Equal(t, chat.TypePong, pong.Type)
	assert.Equal(t, `"marco"`, string(pong.Data))
}

func TestServe_UnknownRoom(t *testing.T) {
	srv, _ := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, wsURL(srv, "/rooms/nope/ws"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServe_RejectsWrongPassword(t *testing.T) {
	srv, m := newTestServer(t)
	_, err := m.CreateRoom("Locked", chat.RoomOptions{Password: "s3cret"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, wsURL(srv, "/rooms/locked/ws?password=wrong"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.Dial(ctx, wsURL(srv, "/rooms/locked/ws?password=s3cret"), nil)
	require.NoError(t, err)
	conn.Close(websocket.StatusNormalClosure, "done")
}

func TestServe_FullRoom(t *testing.T) {
	srv, m := newTestServer(t)
	_, err := m.CreateRoom("Tiny", chat.RoomOptions{GuestLimit: 1})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv, "/rooms/tiny/ws"), nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	_, resp, err := websocket.Dial(ctx, wsURL(srv, "/rooms/tiny/ws"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServe_DisconnectRemovesClient(t *testing.T) {
	srv, m := newTestServer(t)
	_, err := m.CreateRoom("Family Call", chat.RoomOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv, "/rooms/family-call/ws"), nil)
	require.NoError(t, err)
	conn.Close(websocket.StatusNormalClosure, "leaving")

	assert.Eventually(t, func() bool {
		info, err := m.RoomInfo("family-call")
		return err == nil && len(info.Clients) == 0
	}, 2*time.Second, 20*time.Millisecond)
}
