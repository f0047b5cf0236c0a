package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestClient(hub *Hub, userID uuid.UUID, buffer int) *Client {
	return &Client{hub: hub, userID: userID, send: make(chan []byte, buffer)}
}

func startHub(t *testing.T) (*Hub, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil)
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub, ctx
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case raw, ok := <-c.send:
		require.True(t, ok, "client channel closed")
		var msg Message
		require.NoError(t, json.Unmarshal(raw, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Message{}
}

func TestHubDeliversOnlyToRecipient(t *testing.T) {
	hub, ctx := startHub(t)
	alice, bob := uuid.New(), uuid.New()

	aliceTab1 := newTestClient(hub, alice, 4)
	aliceTab2 := newTestClient(hub, alice, 4)
	bobTab := newTestClient(hub, bob, 4)
	hub.Register(ctx, aliceTab1)
	hub.Register(ctx, aliceTab2)
	hub.Register(ctx, bobTab)

	msg, err := NewMessage(KindNotificationCreated, alice, map[string]string{"title": "Gem approved"})
	require.NoError(t, err)
	hub.Deliver(ctx, msg)

	for _, c := range []*Client{aliceTab1, aliceTab2} {
		got := receive(t, c)
		require.Equal(t, KindNotificationCreated, got.Kind)
		require.JSONEq(t, `{"title":"Gem approved"}`, string(got.Data))
	}

	select {
	case <-bobTab.send:
		t.Fatal("bob must not receive alice's notification")
	case <-time.After(50 * time.Millisecond):
	}
	require.EqualValues(t, 3, hub.Connected())
}

func TestHubUnregisterClosesSend(t *testing.T) {
	hub, ctx := startHub(t)
	c := newTestClient(hub, uuid.New(), 1)
	hub.Register(ctx, c)
	hub.Unregister(c)

	select {
	case _, ok := <-c.send:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("send channel not closed")
	}
	require.Zero(t, hub.Connected())
}

func TestHubDropsSlowClient(t *testing.T) {
	hub, ctx := startHub(t)
	user := uuid.New()
	slow := newTestClient(hub, user, 1)
	hub.Register(ctx, slow)

	for i := 0; i < 3; i++ {
		msg, err := NewMessage(KindNotificationUpdated, user, nil)
		require.NoError(t, err)
		hub.Deliver(ctx, msg)
	}

	require.Eventually(t, func() bool { return hub.Connected() == 0 }, time.Second, 10*time.Millisecond)
}

func TestBridgeHandleDeliversDecodedMessage(t *testing.T) {
	hub, ctx := startHub(t)
	user := uuid.New()
	c := newTestClient(hub, user, 2)
	hub.Register(ctx, c)

	bridge := &Bridge{hub: hub, channel: "hg:" + defaultChannel}
	bridge.handle(ctx, []byte(`not json`))
	bridge.handle(ctx, []byte(`{"kind":"notification.read_all"}`))

	msg, err := NewMessage(KindNotificationReadAll, user, map[string]int{"updated": 3})
	require.NoError(t, err)
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	bridge.handle(ctx, raw)

	got := receive(t, c)
	require.Equal(t, KindNotificationReadAll, got.Kind)
	require.Equal(t, user, got.UserID)
}

type fakePublisher struct {
	channel string
	payload []byte
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	f.channel = channel
	f.payload = payload
	return nil
}

func (f *fakePublisher) ChannelName(name string) string { return "hg:" + name }

func TestRedisBroadcasterPublishesOnNamespacedChannel(t *testing.T) {
	pub := &fakePublisher{}
	b, err := NewRedisBroadcaster(pub, "")
	require.NoError(t, err)

	msg, err := NewMessage(KindNotificationDeleted, uuid.New(), map[string]string{"id": "n1"})
	require.NoError(t, err)
	require.NoError(t, b.Broadcast(context.Background(), msg))

	require.Equal(t, "hg:realtime:notifications", pub.channel)
	decoded, err := decodeMessage(pub.payload)
	require.NoError(t, err)
	require.Equal(t, msg.UserID, decoded.UserID)
}

func TestUpgraderOriginCheck(t *testing.T) {
	up := NewUpgrader([]string{"https://hiddengems.africa/"})
	req := func(origin string) bool {
		r, _ := http.NewRequest("GET", "/api/realtime", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return up.CheckOrigin(r)
	}
	require.True(t, req("https://hiddengems.africa"))
	require.True(t, req(""))
	require.False(t, req("https://evil.example"))
}
