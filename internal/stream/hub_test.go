package stream

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/trails-backend-go/internal/models"
)

func receive(t *testing.T, client *Client) models.RecordingSnapshot {
	t.Helper()
	select {
	case msg := <-client.Send:
		var state models.RecordingSnapshot
		require.NoError(t, json.Unmarshal(msg, &state))
		return state
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
	return models.RecordingSnapshot{}
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(nil, "device-1")
	defer hub.Close()
	client := hub.Register()
	defer hub.Unregister(client)

	hub.Broadcast(models.RecordingSnapshot{State: models.StateRecording, PointCount: 3})

	state := receive(t, client)
	assert.Equal(t, models.StateRecording, state.State)
	assert.Equal(t, 3, state.PointCount)
}

func TestHubReplaysLatestStateOnRegister(t *testing.T) {
	hub := NewHub(nil, "device-1")
	defer hub.Close()

	hub.Broadcast(models.RecordingSnapshot{State: models.StatePaused})
	client := hub.Register()
	defer hub.Unregister(client)

	assert.Equal(t, models.StatePaused, receive(t, client).State)
}

func TestUnregisterCloses(t *testing.T) {
	hub := NewHub(nil, "device-1")
	defer hub.Close()
	client := hub.Register()
	assert.Equal(t, 1, hub.ClientCount())

	hub.Unregister(client)
	hub.Unregister(client)
	_, ok := <-client.Send
	assert.False(t, ok)
	assert.Zero(t, hub.ClientCount())
}

func TestHubSlowClientDoesNotBlock(t *testing.T) {
	hub := NewHub(nil, "device-1")
	defer hub.Close()
	client := hub.Register()
	defer hub.Unregister(client)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			hub.Broadcast(models.RecordingSnapshot{PointCount: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full client")
	}
}

func TestHubRedisFanOut(t *testing.T) {
	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer rdb.Close()

	a := NewHub(rdb, "device-1")
	defer a.Close()
	b := NewHub(rdb, "device-1")
	defer b.Close()

	localClient := a.Register()
	defer a.Unregister(localClient)
	remoteClient := b.Register()
	defer b.Unregister(remoteClient)

	a.Broadcast(models.RecordingSnapshot{State: models.StateRecording, PointCount: 7})

	assert.Equal(t, 7, receive(t, remoteClient).PointCount)
	assert.Equal(t, 7, receive(t, localClient).PointCount)

	select {
	case <-localClient.Send:
		t.Fatal("own redis message delivered twice")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubHelpers(t *testing.T) {
	assert.Equal(t, "trails:abc:state", redisChannel("abc"))
}

func TestServeWSRequiresUpgrade(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	hub := NewHub(nil, "device-1")
	defer hub.Close()
	RegisterRoutes(r, hub)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/recording/ws", nil))
	assert.NotEqual(t, http.StatusOK, w.Code)
}

func TestServeWSStreamsState(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	hub := NewHub(nil, "device-1")
	defer hub.Close()
	RegisterRoutes(r, hub)

	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/recording/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	hub.Broadcast(models.RecordingSnapshot{State: models.StateRecording, Distance: 12.5})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var state models.RecordingSnapshot
	require.NoError(t, json.Unmarshal(msg, &state))
	assert.Equal(t, 12.5, state.Distance)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHubBroadcastDoesNotWaitForRedis(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer rdb.Close()

	hub := NewHub(rdb, "device-1")
	client := hub.Register()
	s.Close()

	start := time.Now()
	for i := 0; i < 100; i++ {
		hub.Broadcast(models.RecordingSnapshot{State: models.StateRecording, PointCount: i})
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond, "redis outage must not slow point ingestion")
	assert.Equal(t, 0, receive(t, client).PointCount)

	closed := make(chan struct{})
	go func() {
		hub.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(3 * time.Second):
		t.Fatal("Close blocked on an unreachable redis")
	}
}
