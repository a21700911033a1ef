package signalclient

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/webrtc-calling/config"
	"github.com/mossy-p/webrtc-calling/internal/bus"
	"github.com/mossy-p/webrtc-calling/internal/directory"
	"github.com/mossy-p/webrtc-calling/internal/handlers"
	"github.com/mossy-p/webrtc-calling/internal/models"
	"github.com/mossy-p/webrtc-calling/internal/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRelayServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{
		AllowedOrigins: []string{"http://localhost:5173"},
		JWTSecret:      "test-secret",
		TokenTTL:       time.Hour,
	}
	dir := directory.NewMemory()
	srv := httptest.NewServer(handlers.SetupRouter(cfg, relay.New(relay.NewHub(16, log), dir, nil, log), dir, log))
	t.Cleanup(srv.Close)
	return srv
}

func connect(t *testing.T, baseURL, user string) (*Client, <-chan models.Delivery) {
	t.Helper()
	ctx := context.Background()
	creds, err := Login(ctx, nil, baseURL, user, "pw")
	require.NoError(t, err)
	require.Equal(t, models.Identity(user), creds.UserID)

	topic := bus.NewTopic[models.Delivery](16)
	inbound, cancel := topic.Subscribe()
	t.Cleanup(cancel)

	c, err := Dial(ctx, baseURL, creds.Token, topic, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, inbound
}

func TestClient_SendAndReceive(t *testing.T) {
	srv := newRelayServer(t)
	alice, _ := connect(t, srv.URL, "alice")
	_, bobInbound := connect(t, srv.URL, "bob")

	offer := models.Offer{SDP: models.SessionDescription{Type: "offer", SDP: "v=0"}}
	require.NoError(t, alice.Send(context.Background(), "bob", offer))
	require.NoError(t, alice.Send(context.Background(), "bob", models.Hangup{}))

	var got []models.Payload
	for len(got) < 2 {
		select {
		case d := <-bobInbound:
			assert.Equal(t, models.Identity("alice"), d.FromIdentity)
			p, err := models.DecodePayload(d.Payload)
			require.NoError(t, err)
			got = append(got, p)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for deliveries")
		}
	}
	assert.Equal(t, []models.Payload{offer, models.Hangup{}}, got)
}

func TestClient_DialRejectsBadToken(t *testing.T) {
	srv := newRelayServer(t)
	_, err := Dial(context.Background(), srv.URL, "forged", bus.NewTopic[models.Delivery](1), slog.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestUserExists(t *testing.T) {
	srv := newRelayServer(t)
	ctx := context.Background()
	creds, err := Login(ctx, nil, srv.URL, "alice", "pw")
	require.NoError(t, err)

	ok, err := UserExists(ctx, nil, srv.URL, creds.Token, "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = UserExists(ctx, nil, srv.URL, creds.Token, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = UserExists(ctx, nil, srv.URL, "bad-token", "alice")
	require.Error(t, err)
}

func TestClient_SendAfterClose(t *testing.T) {
	srv := newRelayServer(t)
	alice, _ := connect(t, srv.URL, "alice")
	require.NoError(t, alice.Close())

	<-alice.Done()
	err := alice.Send(context.Background(), "bob", models.Hangup{})
	require.ErrorIs(t, err, ErrClosed)
}

func TestSocketURL(t *testing.T) {
	u, err := socketURL("https://relay.example.com/base/")
	require.NoError(t, err)
	assert.Equal(t, "wss://relay.example.com/base/ws/call", u)

	u, err = socketURL("http://localhost:8080")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/ws/call", u)

	_, err = socketURL("ftp://x")
	require.Error(t, err)
}
