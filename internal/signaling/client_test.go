package signaling_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moorthiguru33/omegle-clone-sub000/internal/signaling"
	"github.com/moorthiguru33/omegle-clone-sub000/internal/signaling/signalingtest"
)

const waitTimeout = 5 * time.Second

func connect(t *testing.T, srv *signalingtest.Server) (*signaling.Client, chan signaling.Event) {
	t.Helper()

	c := signaling.NewClient(srv.URL)
	events := make(chan signaling.Event, 32)
	for _, name := range []string{
		signaling.EventConnect, signaling.EventDisconnect, signaling.EventJoined,
		signaling.EventMessage, signaling.EventLeaveRoom, signaling.EventSendOffer,
	} {
		c.On(name, func(ev signaling.Event) { events <- ev })
	}

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	t.Cleanup(func() { c.Close() })

	require.Equal(t, signaling.EventConnect, next(t, events).Name)
	return c, events
}

func next(t *testing.T, events chan signaling.Event) signaling.Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for event")
		return signaling.Event{}
	}
}

func nextNamed(t *testing.T, events chan signaling.Event, name string) signaling.Event {
	t.Helper()
	for {
		if ev := next(t, events); ev.Name == name {
			return ev
		}
	}
}

func match(t *testing.T, srv *signalingtest.Server) (a, b *signaling.Client, ea, eb chan signaling.Event, room string) {
	t.Helper()
	a, ea = connect(t, srv)
	b, eb = connect(t, srv)
	require.NoError(t, a.Send(signaling.EventJoin))
	require.NoError(t, b.Send(signaling.EventJoin))

	var ja, jb signaling.Joined
	require.NoError(t, nextNamed(t, ea, signaling.EventJoined).Decode(0, &ja))
	require.NoError(t, nextNamed(t, eb, signaling.EventJoined).Decode(0, &jb))
	require.Equal(t, ja.Room, jb.Room)
	require.NotEmpty(t, ja.Room)
	return a, b, ea, eb, ja.Room
}

func TestConnectAndMatch(t *testing.T) {
	srv := signalingtest.NewServer()
	defer srv.Close()

	a, _, _, _, room := match(t, srv)
	assert.Equal(t, signaling.StateOpen, a.State())
	assert.NotEmpty(t, a.SID())
	assert.Equal(t, []string{room}, srv.Rooms())
	assert.Equal(t, room, srv.RoomOf(a.SID()))
}

func TestMessageRelayDropsRoomArgument(t *testing.T) {
	srv := signalingtest.NewServer()
	defer srv.Close()

	a, _, _, eb, room := match(t, srv)
	require.NoError(t, a.Send(signaling.EventMessage, room, "hello"))

	ev := nextNamed(t, eb, signaling.EventMessage)
	require.Len(t, ev.Args, 1)
	var text string
	require.NoError(t, ev.Decode(0, &text))
	assert.Equal(t, "hello", text)

	got := srv.Received(signaling.EventMessage)
	require.Len(t, got, 1)
	assert.Equal(t, room, got[0].Room)
}

func TestLeaveRoomEchoesToBoth(t *testing.T) {
	srv := signalingtest.NewServer()
	defer srv.Close()

	a, _, ea, eb, _ := match(t, srv)
	require.NoError(t, a.Send(signaling.EventLeaveRoom))

	nextNamed(t, ea, signaling.EventLeaveRoom)
	nextNamed(t, eb, signaling.EventLeaveRoom)
	assert.Empty(t, srv.Rooms())
}

func TestServerRequestedOffer(t *testing.T) {
	srv := signalingtest.NewServer()
	defer srv.Close()

	a, ea := connect(t, srv)
	require.True(t, srv.SendOffer(a.SID()))
	nextNamed(t, ea, signaling.EventSendOffer)
}

func TestSendBeforeConnectFails(t *testing.T) {
	c := signaling.NewClient("http://127.0.0.1:1")
	err := c.Send(signaling.EventJoin)
	assert.ErrorIs(t, err, signaling.ErrSendFailed)

	var se *signaling.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "send join", se.Op)
}

func TestTransportLossDispatchesDisconnectOnce(t *testing.T) {
	srv := signalingtest.NewServer()
	defer srv.Close()

	c, events := connect(t, srv)
	require.True(t, srv.Drop(c.SID()))

	ev := nextNamed(t, events, signaling.EventDisconnect)
	var reason string
	require.NoError(t, ev.Decode(0, &reason))
	assert.NotEmpty(t, reason)
	assert.Equal(t, signaling.StateClosed, c.State())
	assert.ErrorIs(t, c.Send(signaling.EventJoin), signaling.ErrSendFailed)

	require.NoError(t, c.Close())
	select {
	case ev := <-events:
		if ev.Name == signaling.EventDisconnect {
			t.Fatal("second disconnect dispatched")
		}
	case <-time.After(200 * time.Millisecond):
	}
}

func TestCloseFlushesAndStaysQuiet(t *testing.T) {
	srv := signalingtest.NewServer()
	defer srv.Close()

	c, events := connect(t, srv)
	require.NoError(t, c.Send(signaling.EventJoin))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	assert.Eventually(t, func() bool {
		return len(srv.Received(signaling.EventJoin)) == 1
	}, waitTimeout, 10*time.Millisecond)

	select {
	case ev := <-events:
		assert.NotEqual(t, signaling.EventDisconnect, ev.Name)
	case <-time.After(200 * time.Millisecond):
	}
	assert.Equal(t, signaling.StateClosed, c.State())
}

func TestOffRemovesListener(t *testing.T) {
	c := signaling.NewClient("http://127.0.0.1:1")
	off := c.On(signaling.EventJoined, func(signaling.Event) {})
	assert.Equal(t, 1, c.Listeners())
	off()
	off()
	assert.Zero(t, c.Listeners())
}

func TestPingKeepsConnectionAlive(t *testing.T) {
	srv := signalingtest.NewServer(signalingtest.WithPingInterval(30 * time.Millisecond))
	defer srv.Close()

	c, _ := connect(t, srv)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, signaling.StateOpen, c.State())
	assert.Len(t, srv.Clients(), 1)
}

func TestConnectHandshakeFailure(t *testing.T) {
	hs := httptest.NewServer(http.NotFoundHandler())
	defer hs.Close()

	c := signaling.NewClient(hs.URL)
	err := c.Connect(context.Background())
	assert.ErrorIs(t, err, signaling.ErrHandshake)
	assert.Equal(t, signaling.StateClosed, c.State())

	assert.ErrorIs(t, c.Connect(context.Background()), signaling.ErrHandshake)
}
