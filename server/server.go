package server

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Desarso/chatrelay/sessions"
	"github.com/Desarso/chatrelay/stores"
)

// Options configures a Server.
type Options struct {
	Store       stores.ConversationStore
	Traces      stores.TraceStore // Optional: enables GET /api/conversations/:id/traces
	Relay       *sessions.TurnRelay
	CORSOrigin  string
	Development bool
}

// Server is the HTTP surface of the relay.
type Server struct {
	Router   *gin.Engine
	Store    stores.ConversationStore
	Traces   stores.TraceStore
	Relay    *sessions.TurnRelay
	Logger   *log.Logger
	upgrader websocket.Upgrader
}

// New builds the router with every route registered.
func New(opts Options) *Server {
	s := &Server{
		Router: gin.New(),
		Store:  opts.Store,
		Traces: opts.Traces,
		Relay:  opts.Relay,
		Logger: log.New(os.Stdout, "[HTTP] ", log.LstdFlags),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || opts.CORSOrigin == "" || origin == opts.CORSOrigin
			},
		},
	}

	origin := opts.CORSOrigin
	if origin == "" {
		origin = "http://localhost:3000"
	}

	r := s.Router
	r.Use(gin.Recovery())
	r.Use(CORS(origin))
	r.Use(RequestLogger(s.Logger))
	r.Use(ErrorHandler(s.Logger, opts.Development))

	r.GET("/health", s.health)

	chat := r.Group("/api/chat")
	chat.POST("/message", s.sendMessage)
	chat.GET("/ws", s.chatWebSocket)

	conv := r.Group("/api/conversations")
	conv.POST("", s.createConversation)
	conv.GET("", s.listConversations)
	conv.GET("/:id", s.getConversation)
	conv.PATCH("/:id", s.updateConversation)
	conv.DELETE("/:id", s.deleteConversation)
	conv.GET("/:id/traces", s.listTraces)

	r.NoRoute(notFound)
	return s
}

// ServeHTTP lets the Server be used directly as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}
