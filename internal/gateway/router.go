package gateway

import "github.com/gin-gonic/gin"

// ChatPath is where the chat widget posts conversations.
const ChatPath = "/api/bot"

// NewRouter wires middleware and routes. allowedOrigin enables CORS for the
// site when non-empty.
func NewRouter(h *Handler, allowedOrigin string) *gin.Engine {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware())
	r.Use(LoggingMiddleware())
	r.Use(CORSMiddleware(allowedOrigin))

	r.POST(ChatPath, h.Chat)
	r.OPTIONS(ChatPath, func(c *gin.Context) {})
	r.GET("/health", h.Health)

	return r
}
