package server

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Start runs the HTTP server and blocks until an interrupt or terminate
// signal arrives, then shuts everything down in dependency order: HTTP
// first, then the chat core, then the bus.
func (s *Server) Start() {
	go func() {
		if err := s.E.Start(s.Cfg.BindAddr); err != nil && err != http.ErrServerClosed {
			s.E.Logger.Fatalf("shutting down the server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.E.Shutdown(ctx); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}
	if err := s.Manager.Shutdown(ctx); err != nil {
		slog.Error("Chat manager shutdown failed", "error", err)
	}
	if err := s.bus.Close(); err != nil {
		slog.Error("Bus shutdown failed", "error", err)
	}
}
