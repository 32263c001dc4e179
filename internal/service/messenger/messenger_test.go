package messenger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"e2e_relay/internal/identity"
	"e2e_relay/internal/model"
	"e2e_relay/internal/presence"
	"e2e_relay/internal/relay"
	"e2e_relay/internal/repository/message"
	"e2e_relay/internal/repository/user"
	"e2e_relay/internal/service/cache"
	"e2e_relay/internal/service/server"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

func startRelay(t *testing.T) *httptest.Server {
	t.Helper()

	r := relay.New(presence.NewRegistry(), message.NewMemoryStore(), user.NewMemoryRepo(), nil, relay.Options{
		MaxPayloadBytes: 4096,
	})
	srv := httptest.NewServer(server.NewHttpServer(r, server.Options{
		WriteTimeout: time.Second,
		OpTimeout:    time.Second,
	}).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func newMessenger(t *testing.T, srv *httptest.Server, id *identity.Identity) *Messenger {
	t.Helper()

	m, err := New(id, cache.New(cache.NewMemoryBackend(), id.ID()), Options{URL: wsURL(srv)})
	require.NoError(t, err)
	return m
}

func connect(t *testing.T, srv *httptest.Server, m *Messenger) {
	t.Helper()

	require.NoError(t, m.Connect(context.Background()))
	t.Cleanup(func() { m.Close() })
	require.Eventually(t, func() bool { return isOnline(srv, m.ID()) }, waitFor, 10*time.Millisecond)
}

func isOnline(srv *httptest.Server, id string) bool {
	resp, err := http.Get(srv.URL + "/online/" + id)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	var body map[string]bool
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false
	}
	return body["online"]
}

func nextEntry(t *testing.T, m *Messenger) *Entry {
	t.Helper()

	select {
	case e := <-m.Inbox():
		return e
	case <-time.After(waitFor):
		t.Fatal("no message arrived")
		return nil
	}
}

func nextEvent(t *testing.T, m *Messenger) *Event {
	t.Helper()

	select {
	case e := <-m.Events():
		return e
	case <-time.After(waitFor):
		t.Fatal("no event arrived")
		return nil
	}
}

func TestSendToOnlineReceiver(t *testing.T) {
	ctx := context.Background()
	srv := startRelay(t)

	alice := newMessenger(t, srv, newIdentity(t, 'A'))
	bob := newMessenger(t, srv, newIdentity(t, 'B'))
	connect(t, srv, alice)
	connect(t, srv, bob)

	sent, err := alice.Send(ctx, strings.ToUpper(bob.ID()), "hello")
	require.NoError(t, err)
	assert.Equal(t, bob.ID(), sent.To)

	ack := nextEvent(t, alice)
	assert.Equal(t, model.EventMessageSent, ack.Kind)
	assert.Equal(t, bob.ID(), ack.To)

	got := nextEntry(t, bob)
	assert.Equal(t, "hello", got.Text)
	assert.Equal(t, alice.ID(), got.From)
	assert.Equal(t, ack.ID, got.ID)
	assert.False(t, got.Undecryptable)

	history, err := alice.History(ctx, bob.ID())
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hello", history[0].Text)
	assert.Equal(t, model.StatusSent, history[0].Status)

	history, err = bob.History(ctx, alice.ID())
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hello", history[0].Text)
	assert.Equal(t, model.StatusReceived, history[0].Status)
}

func TestOfflineReceiverGetsReplayInOrder(t *testing.T) {
	ctx := context.Background()
	srv := startRelay(t)

	alice := newMessenger(t, srv, newIdentity(t, 'A'))
	connect(t, srv, alice)
	bobID := newIdentity(t, 'B')

	for _, text := range []string{"one", "two", "three"} {
		_, err := alice.Send(ctx, bobID.ID(), text)
		require.NoError(t, err)
		assert.Equal(t, model.EventMessageSent, nextEvent(t, alice).Kind)
	}

	bob := newMessenger(t, srv, bobID)
	connect(t, srv, bob)

	for _, want := range []string{"one", "two", "three"} {
		assert.Equal(t, want, nextEntry(t, bob).Text)
	}
}

func TestUndecryptablePayload(t *testing.T) {
	srv := startRelay(t)

	bob := newMessenger(t, srv, newIdentity(t, 'B'))
	connect(t, srv, bob)

	carol := newIdentity(t, 'C')
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer conn.Close()

	for _, f := range []struct {
		event string
		data  any
	}{
		{model.EventRegister, &model.RegisterRequest{PublicKey: carol.ID()}},
		{model.EventSendMessage, &model.SendMessageRequest{To: bob.ID(), Payload: "garbage"}},
	} {
		frame, err := model.NewFrame(f.event, f.data)
		require.NoError(t, err)
		require.NoError(t, conn.WriteJSON(frame))
	}

	got := nextEntry(t, bob)
	assert.True(t, got.Undecryptable)
	assert.Equal(t, Undecryptable, got.Text)
	assert.Equal(t, carol.ID(), got.From)

	history, err := bob.History(context.Background(), carol.ID())
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Undecryptable)
}

func TestRelayErrorSurfacesAsEvent(t *testing.T) {
	srv := startRelay(t)

	alice := newMessenger(t, srv, newIdentity(t, 'A'))
	connect(t, srv, alice)

	_, err := alice.Send(context.Background(), newIdentity(t, 'B').ID(), strings.Repeat("x", 8192))
	require.NoError(t, err)

	ev := nextEvent(t, alice)
	assert.Equal(t, model.EventError, ev.Kind)
	assert.Equal(t, relay.ErrPayloadTooLarge.Error(), ev.Description)
}

func TestSendValidation(t *testing.T) {
	srv := startRelay(t)
	alice := newMessenger(t, srv, newIdentity(t, 'A'))

	_, err := alice.Send(context.Background(), newIdentity(t, 'B').ID(), "hi")
	assert.ErrorIs(t, err, ErrNotConnected)

	connect(t, srv, alice)
	_, err = alice.Send(context.Background(), "not-an-identity", "hi")
	assert.Error(t, err)
}

func TestContactsAreSealed(t *testing.T) {
	ctx := context.Background()
	id := newIdentity(t, 'A')
	backend := cache.NewMemoryBackend()

	m, err := New(id, cache.New(backend, id.ID()), Options{URL: "ws://unused"})
	require.NoError(t, err)

	bob := newIdentity(t, 'B').ID()
	require.NoError(t, m.AddContact(ctx, strings.ToUpper(bob), "Bob"))
	assert.Error(t, m.AddContact(ctx, "short", "x"))

	contacts, err := m.Contacts(ctx)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, bob, contacts[0].ID)
	assert.Equal(t, "Bob", contacts[0].Username)

	raw, err := cache.New(backend, id.ID()).Contacts(ctx)
	require.NoError(t, err)
	require.Len(t, raw, 1)
	assert.NotEqual(t, "Bob", raw[0].Username)
}

func TestClearHistory(t *testing.T) {
	ctx := context.Background()
	srv := startRelay(t)
	alice := newMessenger(t, srv, newIdentity(t, 'A'))
	bob := newMessenger(t, srv, newIdentity(t, 'B'))
	connect(t, srv, alice)
	connect(t, srv, bob)

	_, err := alice.Send(ctx, bob.ID(), "one")
	require.NoError(t, err)
	_, err = alice.Send(ctx, bob.ID(), "two")
	require.NoError(t, err)
	require.NoError(t, alice.AddContact(ctx, bob.ID(), "Bob"))

	n, err := alice.ClearHistory(ctx, strings.ToUpper(bob.ID()))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	history, err := alice.History(ctx, bob.ID())
	require.NoError(t, err)
	assert.Empty(t, history)

	contacts, err := alice.Contacts(ctx)
	require.NoError(t, err)
	assert.Len(t, contacts, 1, "contacts survive a cleared conversation")

	// the receiver keeps its own copy
	nextEntry(t, bob)
	nextEntry(t, bob)
	require.Eventually(t, func() bool {
		h, err := bob.History(ctx, alice.ID())
		return err == nil && len(h) == 2
	}, waitFor, 10*time.Millisecond)

	_, err = alice.ClearHistory(ctx, "short")
	assert.Error(t, err)
}

func TestCloseStopsReader(t *testing.T) {
	srv := startRelay(t)
	alice := newMessenger(t, srv, newIdentity(t, 'A'))
	connect(t, srv, alice)

	require.NoError(t, alice.Close())
	select {
	case <-alice.Done():
	case <-time.After(waitFor):
		t.Fatal("reader did not stop")
	}
	assert.NoError(t, alice.Err())
}
