package main

import (
	"errors"
	"fmt"
	"log"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/mirrormatch/mirrormatch/internal/auth"
	"github.com/mirrormatch/mirrormatch/internal/data"
	"github.com/mirrormatch/mirrormatch/internal/ingest"
	"github.com/mirrormatch/mirrormatch/internal/middleware"
	"github.com/mirrormatch/mirrormatch/internal/normalize"
	"github.com/mirrormatch/mirrormatch/internal/scorer"
)

// Signup creates an account from a multipart form carrying the credentials
// and the two photos, then returns a session token.
func (s *Server) Signup(c *gin.Context) {
	name := c.PostForm("name")
	email := normalize.Email(c.PostForm("email"))
	password := c.PostForm("password")
	if name == "" || email == "" || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name, email and password are required"})
		return
	}

	// The profile photo is mandatory: without it the user can never be
	// matched by anyone else's comparison run.
	profileFile, err := c.FormFile("profile_photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "profile_photo is required"})
		return
	}
	profilePhoto, err := s.savePhoto(c, profileFile, s.uploadsDir)
	if err != nil {
		log.Printf("failed to store profile photo: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store photo"})
		return
	}

	// The AI reference photo is optional; a user without one simply cannot
	// initiate comparisons.
	var aiHalfPhoto string
	if aiFile, err := c.FormFile("ai_half_photo"); err == nil {
		aiHalfPhoto, err = s.savePhoto(c, aiFile, s.aiFacesDir)
		if err != nil {
			log.Printf("failed to store ai photo: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store photo"})
			return
		}
	}

	hashed, err := auth.HashPassword(password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to hash password"})
		return
	}

	user, err := s.users.CreateUser(c.Request.Context(), name, email, hashed, profilePhoto, aiHalfPhoto)
	if err != nil {
		if errors.Is(err, data.ErrUserExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
			return
		}
		log.Printf("create user failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		return
	}

	s.respondWithToken(c, user)
}

// Login authenticates a user and returns a session token.
func (s *Server) Login(c *gin.Context) {
	email := normalize.Email(c.PostForm("email"))
	password := c.PostForm("password")

	user, err := s.users.GetUserByEmail(c.Request.Context(), email)
	if err != nil {
		// same response for unknown email and bad password
		c.JSON(http.StatusUnauthorized, gin.H{"error": "incorrect email or password"})
		return
	}
	if err := auth.CheckPassword(user.Password, password); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "incorrect email or password"})
		return
	}

	s.respondWithToken(c, user)
}

func (s *Server) respondWithToken(c *gin.Context, user *data.User) {
	token, expiresAt, err := s.auth.GenerateToken(user.ID, user.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"user_id":    user.ID.Hex(),
		"expires_at": expiresAt,
	})
}

// savePhoto stores one uploaded photo under dir with a timestamp-prefixed
// name, mirroring how the upload folder has always been laid out.
func (s *Server) savePhoto(c *gin.Context, file *multipart.FileHeader, dir string) (string, error) {
	name := fmt.Sprintf("%d-%s", time.Now().UnixMilli(), filepath.Base(file.Filename))
	if err := c.SaveUploadedFile(file, filepath.Join(dir, name)); err != nil {
		return "", err
	}
	return name, nil
}

// Compare triggers a comparison run for the user named in the path and
// returns the resulting match list. The error taxonomy maps onto distinct
// status codes so callers can tell an aborted run from a partial one.
func (s *Server) Compare(c *gin.Context) {
	sourceID, err := bson.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	matches, err := s.ingestor.Run(c.Request.Context(), sourceID)
	if err != nil {
		var partial *ingest.PartialError
		switch {
		case errors.Is(err, data.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		case errors.Is(err, ingest.ErrNoComparableImage):
			c.JSON(http.StatusPreconditionFailed, gin.H{"error": "user has no comparable image"})
		case errors.Is(err, scorer.ErrProcess):
			log.Printf("scorer process failed for %s: %v", sourceID.Hex(), err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "similarity scorer failed"})
		case errors.Is(err, scorer.ErrOutput):
			log.Printf("scorer output unparseable for %s: %v", sourceID.Hex(), err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "similarity scorer produced invalid output"})
		case errors.As(err, &partial):
			// the source user's matches are written; only some counterpart
			// links are missing, and we name them so they can be retried
			failed := make([]string, len(partial.Failed))
			for i, f := range partial.Failed {
				failed[i] = f.UserID.Hex()
			}
			log.Printf("partial ingestion for %s: %v", sourceID.Hex(), err)
			c.JSON(http.StatusMultiStatus, gin.H{
				"matches":             matches,
				"failed_counterparts": failed,
			})
		default:
			log.Printf("ingestion failed for %s: %v", sourceID.Hex(), err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "comparison failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"matches": matches})
}

// Matches returns both match lists of the authenticated user.
func (s *Server) Matches(c *gin.Context) {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth claims"})
		return
	}
	userID, err := claims.UserObjectID()
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "malformed user id in token"})
		return
	}

	user, err := s.users.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, data.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load matches"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"outgoing_matches": user.OutgoingMatches,
		"incoming_matches": user.IncomingMatches,
	})
}

// History returns the full ordered message log of a room. An unknown room is
// an empty history, not an error.
func (s *Server) History(c *gin.Context) {
	roomID := c.Param("roomID")

	messages, err := s.rooms.History(c.Request.Context(), roomID)
	if err != nil {
		log.Printf("history read failed for room %s: %v", roomID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"room_id": roomID, "messages": messages})
}
