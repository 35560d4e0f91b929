package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nfrund/signalhub/internal/chat"
	"github.com/nfrund/signalhub/internal/password"
	"github.com/nfrund/signalhub/internal/store"
)

type requestValidator struct {
	validate *validator.Validate
}

func (rv requestValidator) Validate(i any) error {
	return rv.validate.Struct(i)
}

func newTestHandler(t *testing.T) (*RoomHandler, *chat.Manager, *echo.Echo) {
	t.Helper()

	m := chat.NewManager(store.NewMemory(), nil, nil, &password.Bcrypt{Cost: bcrypt.MinCost})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})

	e := echo.New()
	e.Validator = requestValidator{validate: validator.New()}
	return NewRoomHandler(m), m, e
}

func jsonRequest(e *echo.Echo, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestRoomHandler_Create(t *testing.T) {
	h, _, e := newTestHandler(t)

	c, rec := jsonRequest(e, http.MethodPost, "/rooms", `{"name":"Family Call","is_public":true}`)
	require.NoError(t, h.Create(c))
	assert.Equal(t, http.StatusCreated, rec.Code)

	var resp CreateRoomResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "family-call", resp.RoomID)
	assert.Equal(t, "Family Call", resp.Name)
}

func TestRoomHandler_CreateDuplicate(t *testing.T) {
	h, m, e := newTestHandler(t)

	_, err := m.CreateRoom("Family Call", chat.RoomOptions{})
	require.NoError(t, err)

	c, _ := jsonRequest(e, http.MethodPost, "/rooms", `{"name":"Family Call"}`)
	err = h.Create(c)

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusConflict, httpErr.Code)
}

func TestRoomHandler_CreateRejectsInvalidBody(t *testing.T) {
	h, _, e := newTestHandler(t)

	for name, body := range map[string]string{
		"missing name":   `{"is_public":true}`,
		"negative limit": `{"name":"x","guest_limit":-1}`,
		"not json":       `name=x`,
	} {
		t.Run(name, func(t *testing.T) {
			c, _ := jsonRequest(e, http.MethodPost, "/rooms", body)
			err := h.Create(c)

			var httpErr *echo.HTTPError
			require.ErrorAs(t, err, &httpErr)
			assert.Equal(t, http.StatusBadRequest, httpErr.Code)
		})
	}
}

func TestRoomHandler_ListPublicOnly(t *testing.T) {
	h, m, e := newTestHandler(t)

	_, err := m.CreateRoom("Open Space", chat.RoomOptions{IsPublic: true})
	require.NoError(t, err)
	_, err = m.CreateRoom("Hidden Lair", chat.RoomOptions{})
	require.NoError(t, err)

	c, rec := jsonRequest(e, http.MethodGet, "/rooms", "")
	require.NoError(t, h.List(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var rooms []chat.RoomSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rooms))
	require.Len(t, rooms, 1)
	assert.Equal(t, "open-space", rooms[0].Slug)
}

func TestRoomHandler_ListEmptyIsArray(t *testing.T) {
	h, _, e := newTestHandler(t)

	c, rec := jsonRequest(e, http.MethodGet, "/rooms", "")
	require.NoError(t, h.List(c))
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestRoomHandler_Get(t *testing.T) {
	h, m, e := newTestHandler(t)

	_, err := m.CreateRoom("Family Call", chat.RoomOptions{})
	require.NoError(t, err)

	c, rec := jsonRequest(e, http.MethodGet, "/rooms/family-call", "")
	c.SetParamNames("slug")
	c.SetParamValues("family-call")
	require.NoError(t, h.Get(c))

	var info chat.RoomInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "family-call", info.RoomID)
	assert.Empty(t, info.Clients)
}

func TestRoomHandler_GetUnknownRoom(t *testing.T) {
	h, _, e := newTestHandler(t)

	c, _ := jsonRequest(e, http.MethodGet, "/rooms/nope", "")
	c.SetParamNames("slug")
	c.SetParamValues("nope")
	err := h.Get(c)

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.Code)
}

func TestRoomHandler_Authenticate(t *testing.T) {
	h, m, e := newTestHandler(t)

	_, err := m.CreateRoom("Locked", chat.RoomOptions{Password: "s3cret"})
	require.NoError(t, err)

	t.Run("correct password", func(t *testing.T) {
		c, rec := jsonRequest(e, http.MethodPost, "/rooms/locked/auth", `{"password":"s3cret"}`)
		c.SetParamNames("slug")
		c.SetParamValues("locked")
		require.NoError(t, h.Authenticate(c))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("wrong password", func(t *testing.T) {
		c, _ := jsonRequest(e, http.MethodPost, "/rooms/locked/auth", `{"password":"wrong"}`)
		c.SetParamNames("slug")
		c.SetParamValues("locked")
		err := h.Authenticate(c)

		var httpErr *echo.HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
	})

	t.Run("unknown room", func(t *testing.T) {
		c, _ := jsonRequest(e, http.MethodPost, "/rooms/nope/auth", `{"password":""}`)
		c.SetParamNames("slug")
		c.SetParamValues("nope")
		err := h.Authenticate(c)

		var httpErr *echo.HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusNotFound, httpErr.Code)
	})
}
