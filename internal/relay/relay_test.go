package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/mossy-p/webrtc-calling/internal/directory"
	"github.com/mossy-p/webrtc-calling/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRelay(t *testing.T, ids ...models.Identity) (*Relay, *Hub) {
	t.Helper()
	hub := NewHub(8, discardLogger())
	return New(hub, directory.NewMemory(ids...), nil, discardLogger()), hub
}

func receive(t *testing.T, sub *Subscription) models.Delivery {
	t.Helper()
	select {
	case data, ok := <-sub.Messages():
		require.True(t, ok, "subscription closed")
		var d models.Delivery
		require.NoError(t, json.Unmarshal(data, &d))
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
	return models.Delivery{}
}

func assertNothing(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case data := <-sub.Messages():
		t.Fatalf("unexpected delivery: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublish_DeliversToEveryStreamOfRecipient(t *testing.T) {
	r, _ := newTestRelay(t, "A", "B")
	tab1 := r.Subscribe("B")
	tab2 := r.Subscribe("B")
	sender := r.Subscribe("A")
	defer tab1.Close()
	defer tab2.Close()
	defer sender.Close()

	payload := json.RawMessage(`{"type":"offer","sdp":{"type":"offer","sdp":"v=0"}}`)
	r.Publish(context.Background(), "A", models.Outbound{ToIdentity: "B", Payload: payload})

	for _, sub := range []*Subscription{tab1, tab2} {
		d := receive(t, sub)
		assert.Equal(t, models.Identity("A"), d.FromIdentity)
		assert.JSONEq(t, string(payload), string(d.Payload))
	}
	assertNothing(t, sender)
}

func TestPublish_PreservesOrderPerSender(t *testing.T) {
	r, _ := newTestRelay(t, "A", "B")
	sub := r.Subscribe("B")
	defer sub.Close()

	for _, p := range []string{`{"n":1}`, `{"n":2}`, `{"n":3}`} {
		r.Publish(context.Background(), "A", models.Outbound{ToIdentity: "B", Payload: json.RawMessage(p)})
	}
	for _, want := range []string{`{"n":1}`, `{"n":2}`, `{"n":3}`} {
		assert.JSONEq(t, want, string(receive(t, sub).Payload))
	}
}

func TestPublish_DropsSilently(t *testing.T) {
	cases := map[string]models.Outbound{
		"missing recipient": {Payload: json.RawMessage(`{"type":"hangup"}`)},
		"missing payload":   {ToIdentity: "B"},
		"null payload":      {ToIdentity: "B", Payload: json.RawMessage(`null`)},
		"unknown recipient": {ToIdentity: "ghost", Payload: json.RawMessage(`{"type":"hangup"}`)},
	}
	for name, msg := range cases {
		t.Run(name, func(t *testing.T) {
			r, _ := newTestRelay(t, "A", "B")
			b := r.Subscribe("B")
			a := r.Subscribe("A")
			defer b.Close()
			defer a.Close()

			r.Publish(context.Background(), "A", msg)
			assertNothing(t, b)
			assertNothing(t, a)
		})
	}
}

type failingDirectory struct{}

func (failingDirectory) Exists(context.Context, models.Identity) (bool, error) {
	return false, errors.New("directory down")
}

func TestPublish_DirectoryErrorDrops(t *testing.T) {
	hub := NewHub(8, discardLogger())
	r := New(hub, failingDirectory{}, nil, discardLogger())
	sub := r.Subscribe("B")
	defer sub.Close()

	r.Publish(context.Background(), "A", models.Outbound{ToIdentity: "B", Payload: json.RawMessage(`{}`)})
	assertNothing(t, sub)
}

func TestPublish_NoLiveStreamIsNotAnError(t *testing.T) {
	r, hub := newTestRelay(t, "A", "B")
	r.Publish(context.Background(), "A", models.Outbound{ToIdentity: "B", Payload: json.RawMessage(`{}`)})
	assert.Equal(t, 0, hub.Subscribers("B"))
}

func TestSubscription_CloseUnbinds(t *testing.T) {
	r, hub := newTestRelay(t, "B")
	sub := r.Subscribe("B")
	require.Equal(t, 1, hub.Subscribers("B"))

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, hub.Subscribers("B"))

	_, ok := <-sub.Messages()
	assert.False(t, ok)

	r.Publish(context.Background(), "A", models.Outbound{ToIdentity: "B", Payload: json.RawMessage(`{}`)})
}

func TestHub_FullBufferDropsOnlyForSlowSubscriber(t *testing.T) {
	hub := NewHub(1, discardLogger())
	slow := hub.Subscribe("B")
	fast := hub.Subscribe("B")
	defer slow.Close()
	defer fast.Close()

	require.NoError(t, hub.Forward(context.Background(), "B", models.Delivery{FromIdentity: "A", Payload: json.RawMessage(`{"n":1}`)}))
	<-fast.Messages()
	require.NoError(t, hub.Forward(context.Background(), "B", models.Delivery{FromIdentity: "A", Payload: json.RawMessage(`{"n":2}`)}))

	assert.JSONEq(t, `{"n":1}`, string(receive(t, slow).Payload))
	assertNothing(t, slow)
	assert.JSONEq(t, `{"n":2}`, string(receive(t, fast).Payload))
}

func TestRedis_FansOutAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := directory.NewRedis(client)
	require.NoError(t, dir.Register(ctx, "A"))
	require.NoError(t, dir.Register(ctx, "B"))

	// Two relay instances sharing one Redis.
	hubA := NewHub(8, discardLogger())
	hubB := NewHub(8, discardLogger())
	relayA := New(hubA, dir, NewRedisForwarder(client), discardLogger())

	bridgeB, err := NewRedisBridge(ctx, client, hubB, discardLogger())
	require.NoError(t, err)
	defer bridgeB.Close()
	go func() { _ = bridgeB.Run(ctx) }()

	sub := hubB.Subscribe("B")
	defer sub.Close()

	relayA.Publish(ctx, "A", models.Outbound{ToIdentity: "B", Payload: json.RawMessage(`{"type":"hangup"}`)})

	d := receive(t, sub)
	assert.Equal(t, models.Identity("A"), d.FromIdentity)
	assert.JSONEq(t, `{"type":"hangup"}`, string(d.Payload))
}
