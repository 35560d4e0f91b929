package server

// RegisterRoutes wires up the JSON API and the WebSocket endpoint.
func (s *Server) RegisterRoutes() {
	s.E.GET("/rooms", s.roomHandler.List)
	s.E.POST("/rooms", s.roomHandler.Create)
	s.E.GET("/rooms/:slug", s.roomHandler.Get)
	s.E.POST("/rooms/:slug/auth", s.roomHandler.Authenticate)
	s.E.GET("/rooms/:slug/ws", s.wsHandler.Serve)
}
