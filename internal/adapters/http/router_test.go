package http_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	router "github.com/dkeye/babel/internal/adapters/http"
	"github.com/dkeye/babel/internal/app"
	"github.com/dkeye/babel/internal/app/orch"
	"github.com/dkeye/babel/internal/app/pipeline"
	"github.com/dkeye/babel/internal/config"
	"github.com/dkeye/babel/internal/domain"
	"github.com/dkeye/babel/internal/gateway"
	"github.com/dkeye/babel/internal/journal"
	"github.com/dkeye/babel/internal/metrics"
)

func newServer(t *testing.T) (*httptest.Server, *orch.Orchestrator) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	catalog, err := domain.NewCatalog(domain.DefaultLanguages)
	require.NoError(t, err)
	m := metrics.New()
	j := journal.NewMemory(0)
	r := app.NewRouter(app.DropPolicy{}, m)
	gw := gateway.New(gateway.Echo{}, gateway.Echo{}, catalog, time.Second, m)

	ctx, cancel := context.WithCancel(context.Background())
	o := &orch.Orchestrator{
		Registry:        app.NewRegistry(),
		Rooms:           app.NewRoomManager(),
		Router:          r,
		Pipeline:        pipeline.New(gw, r, j, m, 4),
		Gateway:         gw,
		Catalog:         catalog,
		Journal:         j,
		Metrics:         m,
		DefaultLanguage: "en",
		Context:         ctx,
	}
	cfg := &config.Config{
		Mode:       "test",
		Secret:     "test-secret",
		StaticPath: t.TempDir(),
		ReadLimit:  1 << 20,
		PingPeriod: time.Minute,
		SendBuffer: 32,
		RateLimit:  config.RateLimitConfig{RPS: 100, Burst: 100},
	}
	srv := httptest.NewServer(router.SetupRouter(ctx, cfg, o))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		o.Wait()
	})
	return srv, o
}

func getJSON(t *testing.T, url string, want int) map[string]any {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, want, resp.StatusCode)
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealthAndLanguages(t *testing.T) {
	srv, _ := newServer(t)

	health := getJSON(t, srv.URL+"/api/health", http.StatusOK)
	assert.Equal(t, "healthy", health["status"])

	langs := getJSON(t, srv.URL+"/api/languages", http.StatusOK)["languages"].([]any)
	require.Len(t, langs, 12)
	assert.Equal(t, map[string]any{"code": "en", "name": "English"}, langs[0])
}

func TestRoomsAPI(t *testing.T) {
	srv, _ := newServer(t)

	resp, err := http.Post(srv.URL+"/api/rooms", "application/json", strings.NewReader(`{"room_name":"Standup"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()
	id := created["room_id"].(string)
	assert.Equal(t, "Standup", created["room_name"])
	assert.Equal(t, true, created["is_active"])

	rooms := getJSON(t, srv.URL+"/api/rooms", http.StatusOK)["rooms"].([]any)
	assert.Len(t, rooms, 1)

	got := getJSON(t, srv.URL+"/api/rooms/"+id, http.StatusOK)
	assert.Equal(t, float64(0), got["participant_count"])

	parts := getJSON(t, srv.URL+"/api/rooms/"+id+"/participants", http.StatusOK)
	assert.Empty(t, parts["participants"])

	msgs := getJSON(t, srv.URL+"/api/rooms/"+id+"/messages?limit=5", http.StatusOK)
	assert.Empty(t, msgs["messages"])
	getJSON(t, srv.URL+"/api/rooms/"+id+"/messages?limit=abc", http.StatusBadRequest)

	missing := getJSON(t, srv.URL+"/api/rooms/nope", http.StatusNotFound)
	assert.Equal(t, "room_not_found", missing["kind"])

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/rooms/"+id, nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newServer(t)
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "babel_sessions_connected")
}

type client struct {
	t    *testing.T
	conn *websocket.Conn
}

func dial(t *testing.T, srv *httptest.Server, room string) *client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/conference/" + room
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &client{t: t, conn: conn}
}

func (c *client) send(v any) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(v))
}

// await reads messages until one of type typ arrives.
func (c *client) await(typ string) map[string]any {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var m map[string]any
		require.NoError(c.t, c.conn.ReadJSON(&m), "waiting for %s", typ)
		if m["type"] == typ {
			return m
		}
	}
}

func TestConferenceOverWebSocket(t *testing.T) {
	srv, o := newServer(t)

	alice := dial(t, srv, "R")
	alice.send(map[string]string{"type": "join_conference", "participant_name": "Alice", "language": "en"})
	joined := alice.await("joined_successfully")
	assert.Equal(t, "R", joined["room_id"])
	alice.await("participants_list")

	bob := dial(t, srv, "R")
	bob.send(map[string]string{"type": "join_conference", "participant_name": "Bob", "language": "es"})
	bob.await("joined_successfully")
	list := bob.await("participants_list")["participants"].([]any)
	assert.Len(t, list, 2)
	assert.Equal(t, "Bob", alice.await("participant_joined")["participant"].(map[string]any)["name"])

	alice.send(map[string]string{
		"type":       "voice_message",
		"audio_data": base64.StdEncoding.EncodeToString([]byte("Good morning")),
	})
	vt := bob.await("voice_translation")
	assert.Equal(t, "[es] Good morning", vt["translated_text"])
	assert.Equal(t, "Good morning", vt["original_text"])
	assert.Equal(t, "Alice", vt["speaker_name"])

	status := alice.await("speaking_status")
	assert.Equal(t, true, status["is_speaking"])
	status = alice.await("speaking_status")
	assert.Equal(t, false, status["is_speaking"])

	require.NoError(t, bob.conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	e := bob.await("error")
	assert.Equal(t, "protocol_error", e["kind"])

	bob.send(map[string]string{"type": "dance"})
	assert.Equal(t, "protocol_error", bob.await("error")["kind"])

	bob.send(map[string]string{"type": "voice_message", "audio_data": "%%%"})
	assert.Equal(t, "protocol_error", bob.await("error")["kind"])

	bob.send(map[string]string{"type": "offer", "sdp": "v=0"})
	assert.Equal(t, "protocol_error", bob.await("error")["kind"], "live audio disabled")

	bob.send(map[string]string{"type": "ping"})
	bob.await("pong")

	bob.send(map[string]string{"type": "text_message", "message": "Hasta luego"})
	chat := alice.await("chat_message")
	assert.Equal(t, "[en] Hasta luego", chat["translated_text"])
	assert.Equal(t, "es", chat["original_language"])
	assert.Equal(t, "Bob", chat["speaker_name"])

	bob.send(map[string]string{"type": "text_message", "message": "   "})
	assert.Equal(t, "invalid_text", bob.await("error")["kind"])

	bob.send(map[string]string{"type": "translation_request", "text": "Gracias", "source_language": "es", "target_language": "fr"})
	res := bob.await("translation_result")
	assert.Equal(t, "[fr] Gracias", res["translated_text"])
	assert.Equal(t, "Gracias", res["original_text"])

	require.NoError(t, bob.conn.Close())
	left := alice.await("participant_left")
	assert.Equal(t, "Bob", left["participant_name"])

	parts := getJSON(t, srv.URL+"/api/rooms/R/participants?include_offline=true", http.StatusOK)
	assert.Len(t, parts["participants"], 1)
	assert.Len(t, parts["members"], 2)
	_, ok := getJSON(t, srv.URL+"/api/rooms/R/participants", http.StatusOK)["members"]
	assert.False(t, ok)

	o.Wait()
	entries, err := o.Journal.Recent(context.Background(), "R", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.UtteranceText, entries[1].Kind)
}

func postJSON(t *testing.T, url, body string, want int) map[string]any {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, want, resp.StatusCode)
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestTranslateAPI(t *testing.T) {
	srv, _ := newServer(t)
	url := srv.URL + "/api/translate"

	got := postJSON(t, url, `{"text":"Hello","target_language":"es"}`, http.StatusOK)
	assert.Equal(t, "[es] Hello", got["translated_text"])
	assert.Equal(t, "en", got["source_language"], "source defaults to english")
	assert.Equal(t, "es", got["target_language"])

	same := postJSON(t, url, `{"text":"Hola","source_language":"es","target_language":"es"}`, http.StatusOK)
	assert.Equal(t, "Hola", same["translated_text"])

	assert.Equal(t, "invalid_text", postJSON(t, url, `{"text":"","target_language":"es"}`, http.StatusBadRequest)["kind"])
	assert.Equal(t, "unknown_language", postJSON(t, url, `{"text":"Hi","target_language":"tlh"}`, http.StatusBadRequest)["kind"])
	assert.Equal(t, "protocol_error", postJSON(t, url, `{nope`, http.StatusBadRequest)["kind"])
}

func TestVoiceBeforeJoinIsRejected(t *testing.T) {
	srv, _ := newServer(t)
	c := dial(t, srv, "R")
	c.send(map[string]string{"type": "voice_message", "audio_data": base64.StdEncoding.EncodeToString([]byte("hi"))})
	assert.Equal(t, "not_joined", c.await("error")["kind"])

	c.send(map[string]string{"type": "join_conference", "participant_name": "Alice", "language": "tlh"})
	assert.Equal(t, "unknown_language", c.await("error")["kind"])
}
