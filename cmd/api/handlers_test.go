package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/mirrormatch/mirrormatch/internal/auth"
	"github.com/mirrormatch/mirrormatch/internal/data"
	"github.com/mirrormatch/mirrormatch/internal/ingest"
	"github.com/mirrormatch/mirrormatch/internal/middleware"
	"github.com/mirrormatch/mirrormatch/internal/scorer"
)

// fakeUsers provides the subset of the users store used by the handlers.
type fakeUsers struct {
	mu      sync.Mutex
	byEmail map[string]*data.User
	byID    map[bson.ObjectID]*data.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		byEmail: map[string]*data.User{},
		byID:    map[bson.ObjectID]*data.User{},
	}
}

func (f *fakeUsers) CreateUser(_ context.Context, name, email, hashedPassword, profilePhoto, aiHalfPhoto string) (*data.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byEmail[email]; ok {
		return nil, data.ErrUserExists
	}
	u := &data.User{
		ID:           bson.NewObjectID(),
		Name:         name,
		Email:        email,
		Password:     hashedPassword,
		ProfilePhoto: profilePhoto,
		AIHalfPhoto:  aiHalfPhoto,
	}
	f.byEmail[email] = u
	f.byID[u.ID] = u
	return u, nil
}

func (f *fakeUsers) GetUserByEmail(_ context.Context, email string) (*data.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.byEmail[email]; ok {
		return u, nil
	}
	return nil, data.ErrUserNotFound
}

func (f *fakeUsers) GetUserByID(_ context.Context, id bson.ObjectID) (*data.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.byID[id]; ok {
		return u, nil
	}
	return nil, data.ErrUserNotFound
}

// fakeRooms is an in-memory ChatStore with arrival-order appends.
type fakeRooms struct {
	mu         sync.Mutex
	logs       map[string][]data.Message
	failAppend bool
}

func newFakeRooms() *fakeRooms {
	return &fakeRooms{logs: map[string][]data.Message{}}
}

func (f *fakeRooms) Append(_ context.Context, roomID string, senderID bson.ObjectID, body string) (*data.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAppend {
		return nil, fmt.Errorf("append rejected")
	}
	msg := data.Message{SenderID: senderID, Body: body, SentAt: time.Now()}
	f.logs[roomID] = append(f.logs[roomID], msg)
	return &msg, nil
}

func (f *fakeRooms) History(_ context.Context, roomID string) ([]data.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]data.Message, len(f.logs[roomID]))
	copy(out, f.logs[roomID])
	return out, nil
}

// fakeIngestor returns a canned result or error.
type fakeIngestor struct {
	matches []data.MatchRecord
	err     error
}

func (f *fakeIngestor) Run(_ context.Context, _ bson.ObjectID) ([]data.MatchRecord, error) {
	return f.matches, f.err
}

// testEnv bundles a wired router with its fakes.
type testEnv struct {
	router *gin.Engine
	users  *fakeUsers
	rooms  *fakeRooms
	ing    *fakeIngestor
	jwt    *auth.JWTManager
	hub    *RoomHub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		users: newFakeUsers(),
		rooms: newFakeRooms(),
		ing:   &fakeIngestor{},
		jwt:   auth.NewJWTManager("test-secret", time.Hour),
		hub:   NewRoomHub(),
	}

	limiter := middleware.NewLimiterStore(1000, 1000, time.Minute)
	t.Cleanup(limiter.Stop)

	srv := newServer(env.users, env.rooms, env.ing, env.jwt, env.hub, t.TempDir(), t.TempDir())
	env.router = gin.New()
	srv.registerRoutes(env.router, limiter)
	return env
}

// addUser registers a user with a known password and returns it with a token.
func (e *testEnv) addUser(t *testing.T, email, password string) (*data.User, string) {
	t.Helper()
	hashed, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	u, err := e.users.CreateUser(context.Background(), "user", email, hashed, email+".png", "")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	token, _, err := e.jwt.GenerateToken(u.ID, u.Email)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	return u, token
}

func postForm(router *gin.Engine, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestLogin_Success(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "alice@example.com", "hunter22")

	w := postForm(env.router, "/login", url.Values{
		"email":    {"alice@example.com"},
		"password": {"hunter22"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Token  string `json:"token"`
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	claims, err := env.jwt.VerifyToken(resp.Token)
	if err != nil {
		t.Fatalf("issued token did not verify: %v", err)
	}
	if claims.Email != "alice@example.com" {
		t.Fatalf("token email mismatch: %s", claims.Email)
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "alice@example.com", "hunter22")

	// wrong password and unknown email are indistinguishable to the client
	for _, form := range []url.Values{
		{"email": {"alice@example.com"}, "password": {"wrong"}},
		{"email": {"nobody@example.com"}, "password": {"hunter22"}},
	} {
		w := postForm(env.router, "/login", form)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 for %v, got %d", form, w.Code)
		}
	}
}

func TestCompare_StatusPerErrorClass(t *testing.T) {
	env := newTestEnv(t)
	user, token := env.addUser(t, "src@example.com", "pw")

	cases := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"no comparable image", ingest.ErrNoComparableImage, http.StatusPreconditionFailed},
		{"scorer process failure", fmt.Errorf("%w: exit status 1", scorer.ErrProcess), http.StatusBadGateway},
		{"scorer output failure", fmt.Errorf("%w: garbage", scorer.ErrOutput), http.StatusBadGateway},
		{"unknown user", data.ErrUserNotFound, http.StatusNotFound},
		{"success", nil, http.StatusOK},
	}

	for _, tc := range cases {
		env.ing.err = tc.err
		req := httptest.NewRequest(http.MethodPost, "/compare/"+user.ID.Hex(), nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		if w.Code != tc.wantCode {
			t.Fatalf("%s: expected %d, got %d (%s)", tc.name, tc.wantCode, w.Code, w.Body.String())
		}
	}
}

func TestCompare_PartialFailureNamesCounterparts(t *testing.T) {
	env := newTestEnv(t)
	user, token := env.addUser(t, "src@example.com", "pw")

	failedID := bson.NewObjectID()
	env.ing.matches = []data.MatchRecord{{MatchedUserID: failedID, RoomID: "a_b"}}
	env.ing.err = &ingest.PartialError{Failed: []ingest.CounterpartWrite{{UserID: failedID, Err: fmt.Errorf("down")}}}

	req := httptest.NewRequest(http.MethodPost, "/compare/"+user.ID.Hex(), nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusMultiStatus {
		t.Fatalf("expected 207, got %d", w.Code)
	}
	var resp struct {
		FailedCounterparts []string `json:"failed_counterparts"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if len(resp.FailedCounterparts) != 1 || resp.FailedCounterparts[0] != failedID.Hex() {
		t.Fatalf("expected failed counterpart %s, got %v", failedID.Hex(), resp.FailedCounterparts)
	}
}

func TestMatches_RequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/matches", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
}

func TestMatches_ReturnsBothLists(t *testing.T) {
	env := newTestEnv(t)
	user, token := env.addUser(t, "alice@example.com", "pw")
	peer := bson.NewObjectID()
	user.OutgoingMatches = []data.MatchRecord{{MatchedUserID: peer, RoomID: "r1"}}
	user.IncomingMatches = []data.MatchRecord{{MatchedUserID: peer, RoomID: "r2"}}

	req := httptest.NewRequest(http.MethodGet, "/matches", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Outgoing []data.MatchRecord `json:"outgoing_matches"`
		Incoming []data.MatchRecord `json:"incoming_matches"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if len(resp.Outgoing) != 1 || resp.Outgoing[0].RoomID != "r1" {
		t.Fatalf("outgoing list wrong: %+v", resp.Outgoing)
	}
	if len(resp.Incoming) != 1 || resp.Incoming[0].RoomID != "r2" {
		t.Fatalf("incoming list wrong: %+v", resp.Incoming)
	}
}

func TestHistory_UnknownRoomIsEmpty(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.addUser(t, "alice@example.com", "pw")

	req := httptest.NewRequest(http.MethodGet, "/rooms/never_created/history", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Messages []data.Message `json:"messages"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if len(resp.Messages) != 0 {
		t.Fatalf("expected empty history, got %d messages", len(resp.Messages))
	}
}
