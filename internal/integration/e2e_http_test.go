package integration

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"mindmeld/internal/config"
	"mindmeld/internal/engine"
	httpserver "mindmeld/internal/http"
	"mindmeld/internal/service"
	"mindmeld/internal/store"
	"mindmeld/internal/ws"
)

func newTestServer(t *testing.T) (*httptest.Server, store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	service.InitTokens("test-secret")

	st := store.NewMemory()
	sessions := service.NewSessionService(st, 5)
	hub := ws.NewHub(st, sessions, engine.Config{RoundTimer: time.Minute})

	cfg := &config.Config{APIRateLimit: 100, APIRateWindow: time.Minute}
	r := gin.New()
	httpserver.RegisterRoutes(r, sessions, hub, nil, nil, "test", cfg)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, st
}

func postJSON(t *testing.T, url, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request %s: %v", url, err)
	}
	defer res.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode response from %s: %v", url, err)
	}
	return res, out
}

func getJSON(t *testing.T, url string) (*http.Response, map[string]any) {
	t.Helper()
	res, err := http.Get(url)
	if err != nil {
		t.Fatalf("request %s: %v", url, err)
	}
	defer res.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode response from %s: %v", url, err)
	}
	return res, out
}

// Two players over the HTTP API: create, join, confirm, mismatch one round,
// match the next, then both request a rematch.
func TestE2ETwoPlayerGame(t *testing.T) {
	srv, _ := newTestServer(t)
	api := srv.URL + "/api/v1"

	res, created := postJSON(t, api+"/sessions", "", map[string]any{
		"capacity":    2,
		"displayName": "alice",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %v", res.StatusCode, created)
	}
	code, _ := created["sessionCode"].(string)
	aliceToken, _ := created["token"].(string)
	if code == "" || aliceToken == "" {
		t.Fatalf("create response incomplete: %v", created)
	}

	res, joined := postJSON(t, api+"/sessions/"+code+"/join", "", map[string]any{
		"displayName": "bob",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("join status %d: %v", res.StatusCode, joined)
	}
	bobToken, _ := joined["token"].(string)

	for _, token := range []string{aliceToken, bobToken} {
		if res, body := postJSON(t, api+"/participant/ready", token, map[string]any{}); res.StatusCode != http.StatusOK {
			t.Fatalf("ready status %d: %v", res.StatusCode, body)
		}
	}

	res, view := getJSON(t, api+"/sessions/"+code)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("view status %d", res.StatusCode)
	}
	session, _ := view["session"].(map[string]any)
	if session["status"] != "active" {
		t.Fatalf("status after confirmations: %v", session["status"])
	}

	// round 1: mismatch
	postJSON(t, api+"/participant/word", aliceToken, map[string]any{"word": "ocean"})
	postJSON(t, api+"/participant/word", bobToken, map[string]any{"word": "sand"})

	// round 2: match
	postJSON(t, api+"/participant/word", aliceToken, map[string]any{"word": "Beach"})
	postJSON(t, api+"/participant/word", bobToken, map[string]any{"word": "beach"})

	_, view = getJSON(t, api+"/sessions/"+code)
	session, _ = view["session"].(map[string]any)
	if session["status"] != "finished" {
		t.Fatalf("status after match: %v", session["status"])
	}
	if session["winnerName"] != "alice & bob" {
		t.Fatalf("winner %v", session["winnerName"])
	}
	if session["roundsTaken"] != float64(2) {
		t.Fatalf("roundsTaken %v", session["roundsTaken"])
	}

	for _, token := range []string{aliceToken, bobToken} {
		if res, body := postJSON(t, api+"/participant/rematch", token, map[string]any{}); res.StatusCode != http.StatusOK {
			t.Fatalf("rematch status %d: %v", res.StatusCode, body)
		}
	}

	_, view = getJSON(t, api+"/sessions/"+code)
	session, _ = view["session"].(map[string]any)
	successor, _ := session["successorCode"].(string)
	if successor == "" {
		t.Fatal("no successor after both opted in")
	}

	_, view = getJSON(t, api+"/sessions/"+successor)
	session, _ = view["session"].(map[string]any)
	if session["status"] != "waiting" {
		t.Fatalf("successor status %v", session["status"])
	}
}

func TestE2ERejectsBadRequests(t *testing.T) {
	srv, _ := newTestServer(t)
	api := srv.URL + "/api/v1"

	res, _ := postJSON(t, api+"/sessions", "", map[string]any{"capacity": 9, "displayName": "alice"})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("oversized capacity: %d", res.StatusCode)
	}

	res, _ = getJSON(t, api+"/sessions/NOSUCH")
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown session: %d", res.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodPost, api+"/participant/ready", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	res2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	res2.Body.Close()
	if res2.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing token: %d", res2.StatusCode)
	}
}

// A live-view socket receives the initial snapshot and a state push when the
// session changes underneath it.
func TestE2EWebsocketLiveView(t *testing.T) {
	srv, _ := newTestServer(t)
	api := srv.URL + "/api/v1"

	_, created := postJSON(t, api+"/sessions", "", map[string]any{
		"capacity":    2,
		"displayName": "alice",
	})
	code, _ := created["sessionCode"].(string)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + code
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first ws.Message
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if first.Type != "state" {
		t.Fatalf("first message type %q; want state", first.Type)
	}

	// a second player joining must reach the viewer as a fresh state push
	postJSON(t, api+"/sessions/"+code+"/join", "", map[string]any{"displayName": "bob"})

	deadline := time.Now().Add(2 * time.Second)
	for {
		conn.SetReadDeadline(deadline)
		var msg ws.Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read push: %v", err)
		}
		if msg.Type != "state" {
			continue
		}
		payload, _ := msg.Payload.(map[string]any)
		participants, _ := payload["participants"].([]any)
		if len(participants) == 2 {
			return
		}
	}
}

func TestE2EWebsocketUnknownSession(t *testing.T) {
	srv, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/NOSUCH"
	_, res, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("dial to unknown session succeeded")
	}
	if res == nil || res.StatusCode != http.StatusNotFound {
		t.Fatalf("handshake response: %+v", res)
	}
}
