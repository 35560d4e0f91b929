package server

import (
	"context"
	"log/slog"
	"os"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/nfrund/signalhub/internal/chat"
	"github.com/nfrund/signalhub/internal/config"
	"github.com/nfrund/signalhub/internal/handlers"
	"github.com/nfrund/signalhub/internal/ice"
	"github.com/nfrund/signalhub/internal/lifecycle"
	"github.com/nfrund/signalhub/internal/logging"
	"github.com/nfrund/signalhub/internal/password"
	"github.com/nfrund/signalhub/internal/pubsub"
	"github.com/nfrund/signalhub/internal/store"
	"github.com/nfrund/signalhub/internal/transport/ws"
)

// Server holds the dependencies for the HTTP server.
type Server struct {
	E           *echo.Echo
	Cfg         *config.Config
	Manager     *chat.Manager
	bus         *pubsub.WatermillBridge
	store       store.Store
	roomHandler *handlers.RoomHandler
	wsHandler   *ws.Handler
}

// New creates a new Server instance with all collaborators wired up
// explicitly: store, event bus, credential issuer, chat manager, transport.
func New() *Server {
	logging.New()
	cfg := config.New()

	var st store.Store
	if cfg.RedisAddr != "" {
		rdb := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := rdb.Ping(context.Background()); err != nil {
			slog.Error("Failed to connect to redis", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		st = rdb
	} else {
		st = store.NewMemory()
	}

	bus := pubsub.NewWatermillBridge()

	issuerOpts := []ice.Option{}
	if cfg.TwilioAccountSID != "" && cfg.TwilioKeySID != "" && cfg.TwilioAuthToken != "" {
		tokens := ice.NewTwilioTokenService(cfg.TwilioAccountSID, cfg.TwilioKeySID, cfg.TwilioAuthToken)
		issuerOpts = append(issuerOpts, ice.WithTokenService(tokens))
	}
	issuer := ice.NewIssuer(ice.Config{
		StunHost:   cfg.StunHost,
		StunPort:   cfg.StunPort,
		TurnHost:   cfg.TurnHost,
		TurnPort:   cfg.TurnPort,
		TurnSecret: cfg.TurnSecret,
	}, issuerOpts...)

	manager := chat.NewManager(st, issuer, bus, password.NewBcrypt(),
		chat.WithPingInterval(cfg.PingInterval),
		chat.WithReapTimeout(cfg.ReapTimeout),
		chat.WithRoomExpiry(cfg.RoomExpiry),
	)

	if _, err := lifecycle.NewMirror(context.Background(), st, bus); err != nil {
		slog.Error("Failed to start lifecycle mirror", "error", err)
		os.Exit(1)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Validator = NewValidator()

	cookieStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	cookieStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7, // 7 days
		HttpOnly: true,
	}
	e.Use(session.Middleware(cookieStore))

	return &Server{
		E:           e,
		Cfg:         cfg,
		Manager:     manager,
		bus:         bus,
		store:       st,
		roomHandler: handlers.NewRoomHandler(manager),
		wsHandler:   ws.NewHandler(manager),
	}
}
