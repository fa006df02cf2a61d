package logging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"geminivoice-go/internal/events"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchSincePagesThroughHistory(t *testing.T) {
	b := NewBroadcaster(3, 1)
	for i := 0; i < 5; i++ {
		b.Publish(Message{Kind: "log", Message: "m"})
	}

	latest, cursor, more := b.FetchSince(0, 2)
	require.Len(t, latest, 2)
	assert.Equal(t, uint64(4), latest[0].ID)
	assert.Equal(t, uint64(5), cursor)
	assert.False(t, more)

	page, cursor, more := b.FetchSince(2, 1)
	require.Len(t, page, 1)
	assert.Equal(t, uint64(3), page[0].ID, "oldest retained message")
	assert.Equal(t, uint64(3), cursor)
	assert.True(t, more)

	empty, cursor, more := b.FetchSince(5, 10)
	assert.Empty(t, empty)
	assert.Equal(t, uint64(5), cursor)
	assert.False(t, more)
}

func TestHookAndHubFeedTheHistory(t *testing.T) {
	b := NewBroadcaster(10, 1)
	logger := log.New()
	logger.AddHook(b)
	logger.SetOutput(&strings.Builder{})

	logger.WithField("credential", "primary").Warn("rate limited")
	logger.Debug("not forwarded")

	hub := events.NewHub()
	stop := b.Follow(hub, events.TopicSessionState)
	hub.Publish(context.Background(), events.TopicSessionState, map[string]any{"state": "connected"}, map[string]string{"source": "test"})
	stop()
	hub.Publish(context.Background(), events.TopicSessionState, map[string]any{"state": "disconnected"}, nil)

	msgs, _, _ := b.FetchSince(0, 0)
	require.Len(t, msgs, 2)
	assert.Equal(t, "log", msgs[0].Kind)
	assert.Equal(t, "warning", msgs[0].Level)
	assert.Equal(t, "primary", msgs[0].Fields["credential"])
	assert.Equal(t, "event", msgs[1].Kind)
	assert.Equal(t, events.TopicSessionState, msgs[1].Topic)
	assert.Equal(t, "test", msgs[1].Fields["source"])
}

func TestWebSocketClientsReceiveMessages(t *testing.T) {
	b := NewBroadcaster(10, 1)
	defer b.Stop()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if err := b.AddClient(conn); err != nil {
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
			_ = conn.Close()
		}
	}))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return b.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	// the second client is over the limit
	extra, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_, _, err = extra.ReadMessage()
	assert.Error(t, err)
	_ = extra.Close()

	b.Publish(Message{Kind: "event", Topic: events.TopicCredentialChanged})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got Message
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, events.TopicCredentialChanged, got.Topic)
	assert.Equal(t, uint64(1), got.ID)
}
