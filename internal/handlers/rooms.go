package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/signalhub/internal/chat"
)

// RoomHandler exposes the room registry over the JSON API.
type RoomHandler struct {
	manager *chat.Manager
	logger  *slog.Logger
}

// NewRoomHandler creates a new RoomHandler.
func NewRoomHandler(m *chat.Manager) *RoomHandler {
	return &RoomHandler{
		manager: m,
		logger:  slog.Default().With("handler", "rooms"),
	}
}

// CreateRoomRequest is the body of POST /rooms.
type CreateRoomRequest struct {
	Name       string   `json:"name" validate:"required,min=1,max=64"`
	Password   string   `json:"password" validate:"max=128"`
	GuestLimit int      `json:"guest_limit" validate:"gte=0"`
	AdminList  []string `json:"admin_list"`
	IsPublic   bool     `json:"is_public"`
}

// CreateRoomResponse is returned on successful creation.
type CreateRoomResponse struct {
	RoomID string `json:"room_id"`
	Name   string `json:"name"`
}

// List handles GET /rooms: public rooms, most recently active first.
func (h *RoomHandler) List(c echo.Context) error {
	rooms := h.manager.PublicRooms()
	if rooms == nil {
		rooms = []chat.RoomSummary{}
	}
	return c.JSON(http.StatusOK, rooms)
}

// Create handles POST /rooms.
func (h *RoomHandler) Create(c echo.Context) error {
	var req CreateRoomRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	room, err := h.manager.CreateRoom(req.Name, chat.RoomOptions{
		Password:   req.Password,
		GuestLimit: req.GuestLimit,
		AdminList:  req.AdminList,
		IsPublic:   req.IsPublic,
	})
	if err != nil {
		if errors.Is(err, chat.ErrDuplicateRoom) {
			return echo.NewHTTPError(http.StatusConflict, "a room with this name already exists")
		}
		h.logger.Error("could not create room", "name", req.Name, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "could not create room")
	}

	return c.JSON(http.StatusCreated, CreateRoomResponse{RoomID: room.Slug, Name: room.Name})
}

// Get handles GET /rooms/:slug: the room-info membership snapshot.
func (h *RoomHandler) Get(c echo.Context) error {
	info, err := h.manager.RoomInfo(c.Param("slug"))
	if err != nil {
		if errors.Is(err, chat.ErrRoomNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "room not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "could not load room")
	}
	return c.JSON(http.StatusOK, info)
}

// AuthRequest is the body of POST /rooms/:slug/auth.
type AuthRequest struct {
	Password string `json:"password"`
}

// Authenticate handles POST /rooms/:slug/auth.
func (h *RoomHandler) Authenticate(c echo.Context) error {
	var req AuthRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ok, err := h.manager.Authenticate(c.Param("slug"), req.Password)
	if err != nil {
		if errors.Is(err, chat.ErrRoomNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "room not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "could not authenticate")
	}
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid room password")
	}
	return c.NoContent(http.StatusNoContent)
}
