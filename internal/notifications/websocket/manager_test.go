package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carbonlock/marketplace-portal/internal/notifications"
)

func TestManagerBroadcastsToasts(t *testing.T) {
	manager := NewManager(zap.NewNop())
	defer manager.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := manager.HandleConnection(w, r)
		assert.NoError(t, err)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer client.Close()

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var greeting notifications.WebSocketMessage
	require.NoError(t, client.ReadJSON(&greeting))
	assert.Equal(t, notifications.WSMessageTypeStatus, greeting.Type)
	assert.Equal(t, "connected", greeting.Data["status"])

	require.Eventually(t, func() bool { return manager.GetConnectionCount() == 1 }, time.Second, 10*time.Millisecond)

	svc := notifications.NewService(manager, zap.NewNop())
	toast := svc.Notify(notifications.ToastSuccess, "Purchase successful!")

	var got notifications.WebSocketMessage
	require.NoError(t, client.ReadJSON(&got))
	assert.Equal(t, notifications.WSMessageTypeToast, got.Type)
	assert.Equal(t, "Purchase successful!", got.Data["message"])
	assert.Equal(t, toast.ID.String(), got.Data["id"])
	assert.Equal(t, "success", got.Data["type"])
}

func TestManagerAnswersPresence(t *testing.T) {
	manager := NewManager(zap.NewNop())
	defer manager.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = manager.HandleConnection(w, r)
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer client.Close()

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var greeting notifications.WebSocketMessage
	require.NoError(t, client.ReadJSON(&greeting))

	require.NoError(t, client.WriteJSON(notifications.WebSocketMessage{Type: notifications.WSMessageTypePresence}))
	var reply notifications.WebSocketMessage
	require.NoError(t, client.ReadJSON(&reply))
	assert.Equal(t, greeting.Data["connection_id"], reply.Data["connection_id"])

	info := manager.GetConnectionInfo()
	require.Len(t, info, 1)
	assert.Equal(t, greeting.Data["connection_id"], info[0].ConnectionID)
}

func TestBroadcastAfterCloseFails(t *testing.T) {
	manager := NewManager(zap.NewNop())
	manager.Close()
	manager.Close()

	assert.Error(t, manager.Broadcast(notifications.WebSocketMessage{Type: notifications.WSMessageTypeRefresh}))
}

func TestPresenceRepliesDuringShutdownAreDropped(t *testing.T) {
	manager := NewManager(zap.NewNop())
	conn := &Connection{ID: "c1", Send: make(chan notifications.WebSocketMessage, sendBuffer)}
	manager.hub.register <- conn

	go func() {
		for range conn.Send {
		}
	}()

	presence := &notifications.WebSocketMessage{Type: notifications.WSMessageTypePresence}
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				manager.handleMessage(conn, presence)
			}
		}()
	}
	manager.Close()
	wg.Wait()

	require.Eventually(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		return conn.closed
	}, time.Second, 10*time.Millisecond)
	assert.False(t, conn.send(statusMessage(conn.ID)))
}

func TestConnectionCloseIsIdempotent(t *testing.T) {
	conn := &Connection{ID: "c2", Send: make(chan notifications.WebSocketMessage, 1)}
	assert.True(t, conn.send(statusMessage(conn.ID)))
	assert.False(t, conn.send(statusMessage(conn.ID)))

	conn.close()
	conn.close()
	assert.False(t, conn.send(statusMessage(conn.ID)))
}
