package nordchat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
		"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherNotify(t *testing.T) {
	var got []string
	var d Dispatcher
	d.Subscribe(NotifyRoomEvent, func(n Notification) { got = append(got, n.Method) })
	d.Subscribe(NotifyRoomEvent, func(n Notification) { got = append(got, "second") })

	d.Notify(Notification{Method: NotifyRoomEvent, Params: json.RawMessage(`{}`)})
	d.Notify(Notification{Method: NotifyLastRead, Params: json.RawMessage(`{}`)})

	assert.Equal(t, []string{NotifyRoomEvent, "second"}, got)
}

func TestDispatcherApplied(t *testing.T) {
	var d Dispatcher
	var events []RoomEvent
	var phases []PhaseEvent
	var states int
	d.SetOnRoomEvent(func(ev RoomEvent) { events = append(events, ev) })
	d.SetOnPhaseChanged(func(ev PhaseEvent) { phases = append(phases, ev) })
	d.SetOnStateChanged(func(AppState) { states++ })

	prev := InitialState()
	next, err := Reduce(prev, SetConnectionState{Phase: PhaseClosed, Code: 1006})
	require.NoError(t, err)
	d.Applied(SetConnectionState{Phase: PhaseClosed, Code: 1006}, prev, next)
	assert.Empty(t, phases, "phase did not change")

	next2, _ := Reduce(next, SetConnectionState{Phase: PhaseConnecting})
	d.Applied(SetConnectionState{Phase: PhaseConnecting}, next, next2)
	require.Len(t, phases, 1)
	assert.Equal(t, PhaseConnecting, phases[0].NewPhase)

	ev := RoomEvent{ID: 1, Kind: EventJoin, Room: "nowhere", Sender: "bob", TS: 1}
	d.Applied(AddRoomEvent{Event: ev}, next2, next2)
	assert.Empty(t, events, "dropped events are not reported")
	assert.Equal(t, 3, states)
}

func TestDispatcherError(t *testing.T) {
	var errGot error
	var d Dispatcher
	d.SetOnError(func(err error) { errGot = err })

	d.fireError(NewError(ErrorTransport, "reset"))
	require.Error(t, errGot)
	assert.True(t, IsConnectionError(errGot))
}

func TestClientSendNotConnected(t *testing.T) {
	cfg := DefaultConfig()
	c := NewClient(cfg)
	err := c.SendMessage(testCtx(), "room", "hi")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotConnected))
}

func TestClientConnectRequiresURL(t *testing.T) {
	c := NewClient(DefaultConfig())
	err := c.Connect(context.Background())
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, ErrorInvalidConfig, e.Code)
}

// testCtx returns a cancellable context for unit tests.
func testCtx() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// chatServer accepts WebSocket connections and hands them to the test.
type chatServer struct {
	srv   *httptest.Server
	conns chan *serverConn
}

// serverConn is the server end of one client connection. A reader
// goroutine drains it so close handshakes complete promptly.
type serverConn struct {
	*websocket.Conn
	in chan []byte
}

type wireRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

func newChatServer(t *testing.T) *chatServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	s := &chatServer{conns: make(chan *serverConn, 8)}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer ws.CloseNow()
		conn := &serverConn{Conn: ws, in: make(chan []byte, 64)}
		s.conns <- conn
		defer close(conn.in)
		for {
			_, data, err := ws.Read(ctx)
			if err != nil {
				return
			}
			select {
			case conn.in <- data:
			case <-ctx.Done():
				return
			}
		}
	}))
	t.Cleanup(func() {
		cancel()
		s.srv.Close()
	})
	return s
}

func (s *chatServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *chatServer) accept(t *testing.T) *serverConn {
	t.Helper()
	select {
	case conn := <-s.conns:
		return conn
	case <-time.After(3 * time.Second):
		t.Fatalf("client did not connect")
		return nil
	}
}

func readRequest(t *testing.T, conn *serverConn) wireRequest {
	t.Helper()
	select {
	case data, ok := <-conn.in:
		require.True(t, ok, "connection closed")
		var req wireRequest
		require.NoError(t, json.Unmarshal(data, &req))
		require.Equal(t, ProtocolVersion, req.JSONRPC)
		return req
	case <-time.After(3 * time.Second):
		t.Fatalf("no request received")
		return wireRequest{}
	}
}

// expectSilence fails if the client sends anything within d.
func expectSilence(t *testing.T, conn *serverConn, d time.Duration) {
	t.Helper()
	select {
	case data, ok := <-conn.in:
		if ok {
			t.Fatalf("unexpected request %s", data)
		}
	case <-time.After(d):
	}
}

func writeFrame(t *testing.T, conn *serverConn, frame string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(frame)))
}

func testConfig(url string) Config {
	cfg := DefaultConfig()
	cfg.URL = url
	cfg.ReconnectDelay = 50 * time.Millisecond
	cfg.AutoMarkRead = false
	return cfg
}

func connectClient(t *testing.T, cfg Config, identity IdentityStore) *Client {
	t.Helper()
	c := NewClient(cfg)
	if identity != nil {
		c.SetIdentityStore(identity)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClientLoginResolves(t *testing.T) {
	srv := newChatServer(t)
	c := connectClient(t, testConfig(srv.url()), nil)
	conn := srv.accept(t)
	assert.Equal(t, PhaseConnected, c.State().Phase)

	done := make(chan json.RawMessage, 1)
	go func() {
		res, err := c.Call(context.Background(), MethodLogin, []string{"alice"})
		assert.NoError(t, err)
		done <- res
	}()

	req := readRequest(t, conn)
	assert.Equal(t, int64(1), req.ID)
	assert.Equal(t, MethodLogin, req.Method)
	assert.JSONEq(t, `["alice"]`, string(req.Params))
	writeFrame(t, conn, `{"jsonrpc":"2.0","id":1,"result":true}`)

	select {
	case res := <-done:
		assert.JSONEq(t, `true`, string(res))
	case <-time.After(3 * time.Second):
		t.Fatalf("call not resolved")
	}
	assert.Equal(t, 0, c.State().Session.Pending())
}

func TestClientAbnormalCloseRejectsAndReconnects(t *testing.T) {
	srv := newChatServer(t)
	c := connectClient(t, testConfig(srv.url()), nil)
	conn := srv.accept(t)
	first := c.State().Session

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := c.Call(context.Background(), MethodGetUsers, []any{})
			errs <- err
		}()
	}
	ids := map[int64]bool{}
	ids[readRequest(t, conn).ID] = true
	ids[readRequest(t, conn).ID] = true
	assert.Equal(t, map[int64]bool{1: true, 2: true}, ids)

	conn.CloseNow()

	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			assert.True(t, errors.Is(err, ErrConnectionClosed), "got %v", err)
		case <-time.After(3 * time.Second):
			t.Fatalf("pending call not rejected")
		}
	}
	assert.Equal(t, 0, first.Pending())

	srv.accept(t)
	require.Eventually(t, func() bool {
		s := c.State()
		return s.Phase == PhaseConnected && s.Session != nil && s.Session != first
	}, 3*time.Second, 10*time.Millisecond)
}

func TestClientNormalCloseDoesNotReconnect(t *testing.T) {
	srv := newChatServer(t)
	c := connectClient(t, testConfig(srv.url()), nil)
	conn := srv.accept(t)

	_ = conn.Close(websocket.StatusNormalClosure, "bye")

	require.Eventually(t, func() bool {
		s := c.State()
		return s.Phase == PhaseClosed && s.CloseCode == CloseNormal
	}, 3*time.Second, 10*time.Millisecond)

	select {
	case <-srv.conns:
		t.Fatalf("client reconnected after a normal close")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestClientNotificationsUpdateState(t *testing.T) {
	srv := newChatServer(t)
	c := connectClient(t, testConfig(srv.url()), nil)
	conn := srv.accept(t)

	var seen []RoomEvent
	events := make(chan RoomEvent, 4)
	c.OnRoomEvent(func(ev RoomEvent) { events <- ev })

	writeFrame(t, conn, `{"jsonrpc":"2.0","method":"joinRoom","params":{"user":"bob","room":"lobby","lastRead":0}}`)
	writeFrame(t, conn, `{"jsonrpc":"2.0","method":"roomEvent","params":{"id":7,"room":"lobby","type":"message","sender":"bob","ts":100,"message":"hi"}}`)
	writeFrame(t, conn, `{"jsonrpc":"1.0","method":"roomEvent","params":{"id":8,"room":"lobby","type":"message","sender":"bob","ts":101,"message":"ignored"}}`)
	writeFrame(t, conn, `{"jsonrpc":"2.0","method":"roomEvent","params":{"id":9,"room":"ghost","type":"join","sender":"eve","ts":102}}`)

	select {
	case ev := <-events:
		seen = append(seen, ev)
	case <-time.After(3 * time.Second):
		t.Fatalf("no room event")
	}

	require.Eventually(t, func() bool {
		_, ok := c.State().Rooms["lobby"]
		return ok
	}, 3*time.Second, 10*time.Millisecond)
	room := c.State().Rooms["lobby"]
	assert.True(t, room.HasMember("bob"))
	require.Len(t, room.Events, 1)
	assert.Equal(t, int64(7), room.Events[0].ID)
	assert.Equal(t, "hi", seen[0].Message)
	_, ghost := c.State().Rooms["ghost"]
	assert.False(t, ghost)
}

func TestClientSelfLeaveClearsSelection(t *testing.T) {
	srv := newChatServer(t)
	c := connectClient(t, testConfig(srv.url()), nil)
	conn := srv.accept(t)

	loginDone := make(chan error, 1)
	go func() { loginDone <- c.Login(context.Background(), "alice") }()
	req := readRequest(t, conn)
	writeFrame(t, conn, `{"jsonrpc":"2.0","id":`+jsonInt(req.ID)+`,"result":true}`)
	require.NoError(t, <-loginDone)
	assert.Equal(t, "alice", c.State().User)
	assert.False(t, c.State().LoginInProgress)

	joinDone := make(chan error, 1)
	go func() { joinDone <- c.JoinRoom(context.Background(), "lobby") }()
	req = readRequest(t, conn)
	assert.Equal(t, MethodJoinRoom, req.Method)
	writeFrame(t, conn, `{"jsonrpc":"2.0","method":"joinRoom","params":{"user":"alice","room":"lobby","lastRead":0}}`)
	writeFrame(t, conn, `{"jsonrpc":"2.0","id":`+jsonInt(req.ID)+`,"result":true}`)
	require.NoError(t, <-joinDone)
	assert.Equal(t, "lobby", c.State().Selected)

	writeFrame(t, conn, `{"jsonrpc":"2.0","method":"leaveRoom","params":{"user":"alice","room":"lobby"}}`)
	require.Eventually(t, func() bool {
		s := c.State()
		_, ok := s.Rooms["lobby"]
		return !ok && s.Selected == ""
	}, 3*time.Second, 10*time.Millisecond)
}

func TestClientAutoLoginFromIdentity(t *testing.T) {
	srv := newChatServer(t)
	identity := &MemoryIdentity{}
	require.NoError(t, identity.Save("alice"))
	c := connectClient(t, testConfig(srv.url()), identity)
	conn := srv.accept(t)

	req := readRequest(t, conn)
	assert.Equal(t, int64(1), req.ID)
	assert.Equal(t, MethodLogin, req.Method)
	assert.JSONEq(t, `["alice"]`, string(req.Params))
	writeFrame(t, conn, `{"jsonrpc":"2.0","id":1,"result":true}`)

	require.Eventually(t, func() bool {
		s := c.State()
		return s.User == "alice" && !s.LoginInProgress
	}, 3*time.Second, 10*time.Millisecond)
}

func TestClientRPCErrorReturnsToCaller(t *testing.T) {
	srv := newChatServer(t)
	c := connectClient(t, testConfig(srv.url()), nil)
	conn := srv.accept(t)

	done := make(chan error, 1)
	go func() { done <- c.JoinRoom(context.Background(), "vip") }()
	req := readRequest(t, conn)
	writeFrame(t, conn, `{"jsonrpc":"2.0","id":`+jsonInt(req.ID)+`,"error":{"message":"forbidden"}}`)

	err := <-done
	require.Error(t, err)
	assert.True(t, IsRPCError(err))
	assert.Empty(t, c.State().Rooms)
	assert.Empty(t, c.State().Selected)
}

func TestClientLogoutStartsFreshSession(t *testing.T) {
	srv := newChatServer(t)
	identity := &MemoryIdentity{}
	c := connectClient(t, testConfig(srv.url()), identity)
	conn := srv.accept(t)
	first := c.State().Session

	loginDone := make(chan error, 1)
	go func() { loginDone <- c.Login(context.Background(), "alice") }()
	req := readRequest(t, conn)
	writeFrame(t, conn, `{"jsonrpc":"2.0","id":`+jsonInt(req.ID)+`,"result":true}`)
	require.NoError(t, <-loginDone)
	user, _ := identity.Load()
	assert.Equal(t, "alice", user)

	logoutDone := make(chan error, 1)
	go func() { logoutDone <- c.Logout(context.Background()) }()
	req = readRequest(t, conn)
	assert.Equal(t, MethodLogout, req.Method)
	writeFrame(t, conn, `{"jsonrpc":"2.0","id":`+jsonInt(req.ID)+`,"result":true}`)
	require.NoError(t, <-logoutDone)

	user, _ = identity.Load()
	assert.Empty(t, user)
	assert.Empty(t, c.State().User)

	srv.accept(t)
	require.Eventually(t, func() bool {
		s := c.State()
		return s.Phase == PhaseConnected && s.Session != first
	}, 3*time.Second, 10*time.Millisecond)
}

func TestClientCloseRejectsPending(t *testing.T) {
	srv := newChatServer(t)
	c := connectClient(t, testConfig(srv.url()), nil)
	conn := srv.accept(t)

	errs := make(chan error, 1)
	go func() {
		_, err := c.Call(context.Background(), MethodGetRooms, []any{})
		errs <- err
	}()
	readRequest(t, conn)

	go func() { _ = c.Close() }()
	select {
	case err := <-errs:
		assert.True(t, errors.Is(err, ErrConnectionClosed), "got %v", err)
	case <-time.After(10 * time.Second):
		t.Fatalf("pending call survived Close")
	}
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestClientTypedCalls(t *testing.T) {
	srv := newChatServer(t)
	c := connectClient(t, testConfig(srv.url()), nil)
	conn := srv.accept(t)

	rooms := make(chan []string, 1)
	go func() {
		names, err := c.GetRooms(context.Background())
		assert.NoError(t, err)
		rooms <- names
	}()
	req := readRequest(t, conn)
	assert.Equal(t, MethodGetRooms, req.Method)
	assert.JSONEq(t, `[]`, string(req.Params))
	writeFrame(t, conn, `{"jsonrpc":"2.0","id":`+jsonInt(req.ID)+`,"result":["dev","lobby"]}`)
	assert.Equal(t, []string{"dev", "lobby"}, <-rooms)

	sent := make(chan error, 1)
	go func() { sent <- c.SendMessage(context.Background(), "lobby", "hello") }()
	req = readRequest(t, conn)
	assert.Equal(t, MethodSendMessage, req.Method)
	assert.JSONEq(t, `{"room":"lobby","message":"hello"}`, string(req.Params))
	writeFrame(t, conn, `{"jsonrpc":"2.0","id":`+jsonInt(req.ID)+`,"result":null}`)
	require.NoError(t, <-sent)

	marked := make(chan error, 1)
	go func() { marked <- c.SetRoomLastRead(context.Background(), "lobby", 42) }()
	req = readRequest(t, conn)
	assert.Equal(t, MethodSetRoomLastRead, req.Method)
	assert.JSONEq(t, `{"room":"lobby","lastRead":42}`, string(req.Params))
	writeFrame(t, conn, `{"jsonrpc":"2.0","id":`+jsonInt(req.ID)+`,"result":true}`)
	require.NoError(t, <-marked)

	bad := make(chan error, 1)
	go func() {
		_, err := c.GetUsers(context.Background())
		bad <- err
	}()
	req = readRequest(t, conn)
	writeFrame(t, conn, `{"jsonrpc":"2.0","id":`+jsonInt(req.ID)+`,"result":{"not":"a list"}}`)
	err := <-bad
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, ErrorSerialization, e.Code)
}

func TestClientLoginAppliesUserBeforeFollowingFrames(t *testing.T) {
	srv := newChatServer(t)
	c := connectClient(t, testConfig(srv.url()), nil)
	conn := srv.accept(t)

	loginDone := make(chan error, 1)
	go func() { loginDone <- c.Login(context.Background(), "alice") }()
	req := readRequest(t, conn)
	writeFrame(t, conn, `{"jsonrpc":"2.0","id":`+jsonInt(req.ID)+`,"result":true}`)
	writeFrame(t, conn, `{"jsonrpc":"2.0","method":"joinRoom","params":{"user":"alice","room":"lobby","lastRead":50}}`)
	writeFrame(t, conn, `{"jsonrpc":"2.0","method":"roomEvent","params":{"id":1,"room":"lobby","type":"message","sender":"bob","ts":40,"message":"old"}}`)
	require.NoError(t, <-loginDone)

	require.Eventually(t, func() bool {
		return len(c.State().Rooms["lobby"].Events) == 1
	}, 3*time.Second, 10*time.Millisecond)
	s := c.State()
	assert.Equal(t, "alice", s.User)
	assert.Equal(t, int64(50), s.Rooms["lobby"].LastRead)
	assert.Equal(t, 0, s.Rooms["lobby"].Unread())
}

func TestClientAutoLoginAppliesUserBeforeFollowingFrames(t *testing.T) {
	srv := newChatServer(t)
	identity := &MemoryIdentity{}
	require.NoError(t, identity.Save("alice"))
	c := connectClient(t, testConfig(srv.url()), identity)
	conn := srv.accept(t)

	req := readRequest(t, conn)
	require.Equal(t, MethodLogin, req.Method)
	writeFrame(t, conn, `{"jsonrpc":"2.0","id":`+jsonInt(req.ID)+`,"result":true}`)
	writeFrame(t, conn, `{"jsonrpc":"2.0","method":"joinRoom","params":{"user":"alice","room":"lobby","lastRead":50}}`)
	writeFrame(t, conn, `{"jsonrpc":"2.0","method":"roomEvent","params":{"id":1,"room":"lobby","type":"message","sender":"bob","ts":40,"message":"old"}}`)

	require.Eventually(t, func() bool {
		return len(c.State().Rooms["lobby"].Events) == 1
	}, 3*time.Second, 10*time.Millisecond)
	s := c.State()
	assert.Equal(t, "alice", s.User)
	assert.False(t, s.LoginInProgress)
	assert.Equal(t, int64(50), s.Rooms["lobby"].LastRead)
	assert.Equal(t, 0, s.Rooms["lobby"].Unread())
}

func TestClientAutoMarkRead(t *testing.T) {
	srv := newChatServer(t)
	cfg := testConfig(srv.url())
	cfg.AutoMarkRead = true
	c := connectClient(t, cfg, nil)
	conn := srv.accept(t)

	loginDone := make(chan error, 1)
	go func() { loginDone <- c.Login(context.Background(), "alice") }()
	req := readRequest(t, conn)
	writeFrame(t, conn, `{"jsonrpc":"2.0","id":`+jsonInt(req.ID)+`,"result":true}`)
	require.NoError(t, <-loginDone)

	joinDone := make(chan error, 1)
	go func() { joinDone <- c.JoinRoom(context.Background(), "lobby") }()
	req = readRequest(t, conn)
	writeFrame(t, conn, `{"jsonrpc":"2.0","method":"joinRoom","params":{"user":"alice","room":"lobby","lastRead":0}}`)
	writeFrame(t, conn, `{"jsonrpc":"2.0","id":`+jsonInt(req.ID)+`,"result":true}`)
	require.NoError(t, <-joinDone)
	require.Equal(t, "lobby", c.State().Selected)

	writeFrame(t, conn, `{"jsonrpc":"2.0","method":"roomEvent","params":{"id":1,"room":"lobby","type":"message","sender":"bob","ts":100,"message":"hi"}}`)
	req = readRequest(t, conn)
	assert.Equal(t, MethodSetRoomLastRead, req.Method)
	assert.JSONEq(t, `{"room":"lobby","lastRead":100}`, string(req.Params))
	writeFrame(t, conn, `{"jsonrpc":"2.0","id":`+jsonInt(req.ID)+`,"result":true}`)

	// Another dispatch with the same newest event must not report it again.
	writeFrame(t, conn, `{"jsonrpc":"2.0","method":"joinRoom","params":{"user":"bob","room":"lobby"}}`)
	require.Eventually(t, func() bool {
		return c.State().Rooms["lobby"].HasMember("bob")
	}, 3*time.Second, 10*time.Millisecond)
	expectSilence(t, conn, 300*time.Millisecond)
}

func TestClientCallbackCanCallClientFromGoroutine(t *testing.T) {
	srv := newChatServer(t)
	c := connectClient(t, testConfig(srv.url()), nil)
	conn := srv.accept(t)

	selected := make(chan error, 1)
	c.OnUserJoined(func(u UserJoined) {
		go func() { selected <- c.SelectRoom(u.Room) }()
	})
	writeFrame(t, conn, `{"jsonrpc":"2.0","method":"joinRoom","params":{"user":"bob","room":"lobby"}}`)

	select {
	case err := <-selected:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatalf("select from callback goroutine did not complete")
	}
	assert.Equal(t, "lobby", c.State().Selected)
}
