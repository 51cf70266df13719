package main

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/mirrormatch/mirrormatch/internal/auth"
	"github.com/mirrormatch/mirrormatch/internal/data"
	"github.com/mirrormatch/mirrormatch/internal/middleware"
)

// UserStore is the subset of user persistence the HTTP layer needs.
type UserStore interface {
	CreateUser(ctx context.Context, name, email, hashedPassword, profilePhoto, aiHalfPhoto string) (*data.User, error)
	GetUserByEmail(ctx context.Context, email string) (*data.User, error)
	GetUserByID(ctx context.Context, id bson.ObjectID) (*data.User, error)
}

// ChatStore is the durable message log the realtime broker writes through.
type ChatStore interface {
	Append(ctx context.Context, roomID string, senderID bson.ObjectID, body string) (*data.Message, error)
	History(ctx context.Context, roomID string) ([]data.Message, error)
}

// MatchRunner executes one comparison run for a source user.
type MatchRunner interface {
	Run(ctx context.Context, sourceID bson.ObjectID) ([]data.MatchRecord, error)
}

// Server holds the wired dependencies behind the HTTP and websocket surface.
type Server struct {
	users    UserStore
	rooms    ChatStore
	ingestor MatchRunner
	auth     *auth.JWTManager
	hub      *RoomHub

	uploadsDir string
	aiFacesDir string
}

// newServer returns a ready-to-use Server.
func newServer(users UserStore, rooms ChatStore, ingestor MatchRunner, authMgr *auth.JWTManager, hub *RoomHub, uploadsDir, aiFacesDir string) *Server {
	return &Server{
		users:      users,
		rooms:      rooms,
		ingestor:   ingestor,
		auth:       authMgr,
		hub:        hub,
		uploadsDir: uploadsDir,
		aiFacesDir: aiFacesDir,
	}
}

// registerRoutes wires the route table. Credential endpoints are rate
// limited; everything else requires a valid token.
func (s *Server) registerRoutes(r *gin.Engine, limiter *middleware.LimiterStore) {
	limited := middleware.RateLimit(limiter)
	r.POST("/signup", limited, s.Signup)
	r.POST("/login", limited, s.Login)

	authed := r.Group("/", middleware.RequireAuth(s.auth))
	authed.POST("/compare/:id", s.Compare)
	authed.GET("/matches", s.Matches)
	authed.GET("/rooms/:roomID/history", s.History)
	authed.GET("/ws", s.ServeWS)
}
