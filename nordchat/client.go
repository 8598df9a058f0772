package nordchat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// Client is the application-facing handle. It owns one dispatch goroutine
// that is the only writer of the Store, the current Session and the
// reconnect Supervisor.
type Client struct {
	cfg        Config
	logger     Logger
	identity   IdentityStore
	dispatcher Dispatcher
	store      *Store
	supervisor *Supervisor

	inbox    chan envelope
	done     chan struct{}
	loopDone chan struct{}
	opened   chan struct{}

	mu      sync.Mutex
	session *Session
	running bool
	closed  bool

	// touched only by the dispatch goroutine
	openOnce   sync.Once
	markedRead map[string]int64
}

type envelope struct {
	msg any
	ack chan struct{}
}

type reconnectTick struct{}

type logoutMsg struct{ session *Session }

// NewClient constructs a client with provided config.
// Use DefaultConfig() as a starting point and modify as needed.
func NewClient(cfg Config) *Client {
	c := &Client{
		cfg:        cfg,
		logger:     noopLogger{},
		identity:   &MemoryIdentity{},
		store:      NewStore(),
		inbox:      make(chan envelope, 64),
		done:       make(chan struct{}),
		loopDone:   make(chan struct{}),
		opened:     make(chan struct{}),
		markedRead: make(map[string]int64),
	}
	c.supervisor = NewSupervisor(cfg.ReconnectDelay, func() { c.post(reconnectTick{}) })
	return c
}

// SetLogger overrides logger (optional).
func (c *Client) SetLogger(l Logger) {
	if l == nil {
		return
	}
	c.logger = l
}

// SetIdentityStore overrides where the last authenticated user is kept.
func (c *Client) SetIdentityStore(s IdentityStore) {
	if s == nil {
		return
	}
	c.identity = s
}

// OnRoomEvent registers callback for events appended to a joined room.
//
// All callbacks run on the dispatch goroutine. They must not call Client
// methods that wait on it (Login, Logout, JoinRoom, SelectRoom, Connect);
// start a goroutine for that instead.
func (c *Client) OnRoomEvent(fn func(RoomEvent)) { c.dispatcher.SetOnRoomEvent(fn) }

// OnUserJoined registers callback for membership joins. It runs on the
// dispatch goroutine; see OnRoomEvent.
func (c *Client) OnUserJoined(fn func(UserJoined)) { c.dispatcher.SetOnUserJoined(fn) }

// OnUserLeft registers callback for membership leaves. It runs on the
// dispatch goroutine; see OnRoomEvent.
func (c *Client) OnUserLeft(fn func(UserLeft)) { c.dispatcher.SetOnUserLeft(fn) }

// OnStateChanged registers callback receiving every new snapshot. It runs
// on the dispatch goroutine; see OnRoomEvent.
func (c *Client) OnStateChanged(fn func(AppState)) { c.dispatcher.SetOnStateChanged(fn) }

// OnPhaseChanged registers callback for connection phase transitions. It
// runs on the dispatch goroutine; see OnRoomEvent.
func (c *Client) OnPhaseChanged(fn func(PhaseEvent)) { c.dispatcher.SetOnPhaseChanged(fn) }

// OnError registers callback for errors. It may run on the dispatch
// goroutine; see OnRoomEvent.
func (c *Client) OnError(fn func(error)) { c.dispatcher.SetOnError(fn) }

// OnNotification registers callback for raw notifications named method.
// It runs on the dispatch goroutine; see OnRoomEvent.
func (c *Client) OnNotification(method string, fn func(Notification)) {
	c.dispatcher.Subscribe(method, fn)
}

// State returns the current snapshot.
func (c *Client) State() AppState { return c.store.State() }

// Connect starts the dispatch loop and the first session, then waits until
// the socket is open or ctx is done. Failed attempts are retried in the
// background until Close.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.cfg.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return NewError(ErrorNotConnected, "client closed")
	}
	if c.running {
		c.mu.Unlock()
		return errors.New("already connected")
	}
	c.running = true
	c.mu.Unlock()

	go c.loop()
	if err := c.apply(Init{}); err != nil {
		return err
	}

	select {
	case <-c.opened:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return NewError(ErrorNotConnected, "client closed")
	}
}

// Close stops reconnecting, closes the session normally and ends the
// dispatch loop. Pending calls fail with ErrorConnectionClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	running := c.running
	c.mu.Unlock()

	c.supervisor.Stop()
	close(c.done)
	if running {
		<-c.loopDone
	}

	c.mu.Lock()
	s := c.session
	c.session = nil
	c.mu.Unlock()
	if s != nil {
		return s.Close(CloseNormal, "client close")
	}
	return nil
}

// Call issues method on the current session.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	s := c.current()
	if s == nil {
		return nil, NewError(ErrorNotConnected, "no session")
	}
	return s.Call(ctx, method, params)
}

// Login authenticates as user, persists the identity and records it.
func (c *Client) Login(ctx context.Context, user string) error {
	if user == "" {
		return NewError(ErrorInvalidConfig, "empty user")
	}
	s := c.current()
	if s == nil {
		return NewError(ErrorNotConnected, "no session")
	}
	if err := c.apply(StartLogin{}); err != nil {
		return err
	}

	if _, err := s.callThen(ctx, MethodLogin, []string{user}, c.loggedIn(user)); err != nil {
		_ = c.apply(StopLogin{})
		return err
	}
	if err := c.identity.Save(user); err != nil {
		c.logger.Warn("persist identity failed", map[string]any{"error": err.Error()})
	}
	return nil
}

// loggedIn records user as authenticated. It runs on the dispatch
// goroutine as the login response is routed, so frames that follow the
// response are reduced with the user already set.
func (c *Client) loggedIn(user string) func(json.RawMessage) {
	return func(json.RawMessage) {
		c.dispatch(SetAuthData{User: user})
		c.dispatch(StopLogin{})
	}
}

// Logout ends the server session, forgets the identity and starts a fresh
// unauthenticated session.
func (c *Client) Logout(ctx context.Context) error {
	s := c.current()
	if s == nil {
		return NewError(ErrorNotConnected, "no session")
	}
	if _, err := s.Call(ctx, MethodLogout, []any{}); err != nil {
		return err
	}
	return c.apply(logoutMsg{session: s})
}

// JoinRoom joins room and selects it.
func (c *Client) JoinRoom(ctx context.Context, room string) error {
	if _, err := c.Call(ctx, MethodJoinRoom, []string{room}); err != nil {
		return err
	}
	return c.apply(SelectRoom{Room: room})
}

// JoinContact joins the contact room shared with peer.
func (c *Client) JoinContact(ctx context.Context, peer string) (string, error) {
	self := c.State().User
	if self == "" {
		return "", NewError(ErrorNotConnected, "not logged in")
	}
	room := ContactRoom(peer, self)
	return room, c.JoinRoom(ctx, room)
}

// LeaveRoom leaves room. The room disappears from state when the server
// confirms with a leaveRoom notification.
func (c *Client) LeaveRoom(ctx context.Context, room string) error {
	_, err := c.Call(ctx, MethodLeaveRoom, []string{room})
	return err
}

// SendMessage publishes text to room.
func (c *Client) SendMessage(ctx context.Context, room, text string) error {
	_, err := c.Call(ctx, MethodSendMessage, SendMessagePayload{Room: room, Message: text})
	return err
}

// SetRoomLastRead tells the server everything up to lastRead was seen.
func (c *Client) SetRoomLastRead(ctx context.Context, room string, lastRead int64) error {
	_, err := c.Call(ctx, MethodSetRoomLastRead, LastReadPayload{Room: room, LastRead: lastRead})
	return err
}

// GetRooms lists the rooms known to the server.
func (c *Client) GetRooms(ctx context.Context) ([]string, error) {
	return c.callStrings(ctx, MethodGetRooms)
}

// GetUsers lists the users known to the server.
func (c *Client) GetUsers(ctx context.Context) ([]string, error) {
	return c.callStrings(ctx, MethodGetUsers)
}

// SelectRoom sets the selected room; empty clears it.
func (c *Client) SelectRoom(room string) error {
	return c.apply(SelectRoom{Room: room})
}

func (c *Client) callStrings(ctx context.Context, method string) ([]string, error) {
	raw, err := c.Call(ctx, method, []any{})
	if err != nil {
		return nil, err
	}
	var out []string
	if err := UnmarshalData(raw, &out); err != nil {
		return nil, WrapError(ErrorSerialization, "decode "+method+" result", err)
	}
	return out, nil
}

func (c *Client) current() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// apply hands msg to the dispatch loop and waits until it was handled.
func (c *Client) apply(msg any) error {
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()
	if !running {
		return NewError(ErrorNotConnected, "client not connected")
	}
	ack := make(chan struct{})
	select {
	case c.inbox <- envelope{msg: msg, ack: ack}:
	case <-c.done:
		return NewError(ErrorNotConnected, "client closed")
	}
	select {
	case <-ack:
		return nil
	case <-c.done:
		return NewError(ErrorNotConnected, "client closed")
	}
}

// post hands msg to the dispatch loop without waiting.
func (c *Client) post(msg any) {
	select {
	case c.inbox <- envelope{msg: msg}:
	case <-c.done:
	}
}

func (c *Client) sink(ev sessionEvent) { c.post(ev) }

func (c *Client) loop() {
	defer close(c.loopDone)
	for {
		select {
		case env := <-c.inbox:
			c.handle(env.msg)
			if env.ack != nil {
				close(env.ack)
			}
		case <-c.done:
			return
		}
	}
}

func (c *Client) handle(msg any) {
	switch m := msg.(type) {
	case sessionEvent:
		c.handleSession(m)
	case reconnectTick:
		c.logger.Info("reconnecting", nil)
		c.dispatch(Init{})
	case logoutMsg:
		if m.session != c.current() {
			return
		}
		c.supervisor.Closing()
		c.dispatch(SetConnectionState{Phase: PhaseClosing})
		go func() { _ = m.session.Close(CloseNormal, "logout") }()
		if err := c.identity.Clear(); err != nil {
			c.logger.Warn("clear identity failed", map[string]any{"error": err.Error()})
		}
		c.dispatch(Init{})
	case Action:
		c.dispatch(m)
	default:
		c.logger.Error("unexpected loop message", map[string]any{"type": typeName(msg)})
	}
}

func (c *Client) handleSession(ev sessionEvent) {
	if ev.session != c.current() {
		c.logger.Debug("ignoring event from replaced session", map[string]any{"session": ev.session.ID()})
		return
	}
	switch ev.kind {
	case sessionOpened:
		c.supervisor.Opened()
		c.dispatch(SetConnectionState{Phase: PhaseConnected})
		c.openOnce.Do(func() { close(c.opened) })
		c.autoLogin(ev.session)
	case sessionFrame:
		c.route(ev.session, ev.data)
	case sessionTransportError:
		c.logger.Warn("transport error", map[string]any{"session": ev.session.ID(), "error": ev.err.Error()})
		c.dispatcher.fireError(ev.err)
	case sessionClosed:
		if c.supervisor.Closed(ev.code) {
			c.logger.Info("reconnect scheduled", map[string]any{"code": ev.code, "delay": c.cfg.ReconnectDelay.String()})
		}
		c.dispatch(SetConnectionState{Phase: PhaseClosed, Code: ev.code})
	}
}

// route feeds one inbound frame through the classifier, in receipt order.
func (c *Client) route(s *Session, data []byte) {
	frame, err := Classify(data)
	if err != nil {
		c.logger.Warn("discarding frame", map[string]any{"error": err.Error()})
		return
	}
	switch frame.Kind {
	case FrameResponse:
		if err := s.corr.Settle(frame.Response); err != nil {
			c.logger.Warn("discarding response", map[string]any{"error": err.Error()})
		}
	case FrameNotification:
		c.dispatcher.Notify(frame.Notification)
		action, err := NotificationAction(frame.Notification)
		if err != nil {
			c.logger.Warn("discarding notification", map[string]any{"method": frame.Notification.Method, "error": err.Error()})
			return
		}
		if add, ok := action.(AddRoomEvent); ok {
			if _, known := c.store.State().Rooms[add.Event.Room]; !known {
				c.logger.Warn("dropping event for unknown room", map[string]any{"room": add.Event.Room, "id": add.Event.ID})
			}
		}
		c.dispatch(action)
	}
}

// dispatch reduces action and runs the follow-up effects. Only the loop
// goroutine calls it.
func (c *Client) dispatch(action Action) {
	prev := c.store.State()
	next, err := c.store.Dispatch(action)
	if err != nil {
		c.logger.Error("reducer rejected action", map[string]any{"action": typeName(action), "error": err.Error()})
		c.dispatcher.fireError(err)
		return
	}
	c.dispatcher.Applied(action, prev, next)

	if _, ok := action.(Init); ok {
		c.restart()
		return
	}
	if next.Selected != "" {
		if _, ok := next.Rooms[next.Selected]; !ok {
			c.dispatch(SelectRoom{})
			return
		}
	}
	c.markSelectedRead(next)
}

// restart replaces the current session with a new connection attempt.
func (c *Client) restart() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	old := c.session
	s := newSession(c.cfg, c.logger, c.sink)
	c.session = s
	c.mu.Unlock()

	if old != nil {
		go func() { _ = old.Close(CloseNormal, "session replaced") }()
	}
	c.markedRead = make(map[string]int64)
	c.supervisor.Connecting()
	c.dispatch(SetConnectionState{Phase: PhaseConnecting})
	c.dispatch(SetClient{Session: s})
	s.start()
}

func (c *Client) autoLogin(s *Session) {
	user, err := c.identity.Load()
	if err != nil {
		c.logger.Warn("load identity failed", map[string]any{"error": err.Error()})
		return
	}
	if user == "" {
		return
	}
	c.dispatch(StartLogin{})
	go func() {
		if _, err := s.callThen(context.Background(), MethodLogin, []string{user}, c.loggedIn(user)); err != nil {
			c.logger.Warn("automatic login failed", map[string]any{"user": user, "error": err.Error()})
			c.dispatcher.fireError(err)
			c.post(StopLogin{})
		}
	}()
}

// markSelectedRead reports the newest event of the selected room as read,
// once per timestamp.
func (c *Client) markSelectedRead(state AppState) {
	if !c.cfg.AutoMarkRead || state.Session == nil || state.User == "" || state.Selected == "" {
		return
	}
	room := state.Rooms[state.Selected]
	ts, ok := room.LatestTS()
	if !ok || ts <= room.LastRead || c.markedRead[state.Selected] == ts {
		return
	}
	c.markedRead[state.Selected] = ts
	name, s := state.Selected, state.Session
	go func() {
		if _, err := s.Call(context.Background(), MethodSetRoomLastRead, LastReadPayload{Room: name, LastRead: ts}); err != nil {
			c.logger.Warn("mark read failed", map[string]any{"room": name, "error": err.Error()})
		}
	}()
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}
