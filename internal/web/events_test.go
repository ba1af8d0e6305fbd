package web

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/transitwatch/internal/config"
	"github.com/JonMunkholm/transitwatch/internal/notify"
	"github.com/JonMunkholm/transitwatch/internal/store"
)

func waitForSubscribers(t *testing.T, hub *notify.Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Subscribers() == n }, 2*time.Second, 5*time.Millisecond)
}

func TestEvents_SSE(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.srv.Router())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	waitForSubscribers(t, env.hub, 1)

	env.importSample(t)

	var events []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if name, ok := strings.CutPrefix(scanner.Text(), "event: "); ok {
			events = append(events, name)
			if name == string(notify.TypeRecordsChanged) {
				break
			}
		}
	}
	assert.Equal(t, []string{string(store.EventSaved), string(notify.TypeRecordsChanged)}, events)
}

func TestWebSocket_StreamsMessages(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.srv.Router())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	waitForSubscribers(t, env.hub, 1)

	env.importSample(t)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first, second notify.Message
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, notify.TypeStoreEvent, first.Type)
	require.NotNil(t, first.Event)
	assert.Equal(t, store.EventSaved, first.Event.Type)

	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, notify.TypeRecordsChanged, second.Type)
	assert.Equal(t, 3, second.Records)
	assert.Greater(t, second.Version, uint64(0))

	// Closing the socket releases the subscription.
	conn.Close()
	waitForSubscribers(t, env.hub, 0)
}

func TestWebSocket_RejectsForeignOrigin(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Server.CORSOrigins = []string{"http://dashboard.local"}
	})
	ts := httptest.NewServer(env.srv.Router())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"http://dashboard.local"}})
	require.NoError(t, err)
	conn.Close()
}
