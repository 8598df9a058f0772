package nordchat

import "sync"

// Dispatcher is the notification bus: it fans server pushes, reduced
// actions, state snapshots and errors out to registered callbacks.
// Callbacks run on the client's dispatch goroutine and must not block on
// the client (no Call from inside a callback).
type Dispatcher struct {
	mu             sync.RWMutex
	byMethod       map[string][]func(Notification)
	onRoomEvent    func(RoomEvent)
	onUserJoined   func(UserJoined)
	onUserLeft     func(UserLeft)
	onStateChanged func(AppState)
	onPhase        func(PhaseEvent)
	onError        func(error)
}

func (d *Dispatcher) SetOnRoomEvent(fn func(RoomEvent))     { d.set(func() { d.onRoomEvent = fn }) }
func (d *Dispatcher) SetOnUserJoined(fn func(UserJoined))   { d.set(func() { d.onUserJoined = fn }) }
func (d *Dispatcher) SetOnUserLeft(fn func(UserLeft))       { d.set(func() { d.onUserLeft = fn }) }
func (d *Dispatcher) SetOnStateChanged(fn func(AppState))   { d.set(func() { d.onStateChanged = fn }) }
func (d *Dispatcher) SetOnPhaseChanged(fn func(PhaseEvent)) { d.set(func() { d.onPhase = fn }) }
func (d *Dispatcher) SetOnError(fn func(error))             { d.set(func() { d.onError = fn }) }

// Subscribe adds fn for notifications named method.
func (d *Dispatcher) Subscribe(method string, fn func(Notification)) {
	if fn == nil {
		return
	}
	d.set(func() {
		if d.byMethod == nil {
			d.byMethod = make(map[string][]func(Notification))
		}
		d.byMethod[method] = append(d.byMethod[method], fn)
	})
}

func (d *Dispatcher) set(fn func()) {
	d.mu.Lock()
	fn()
	d.mu.Unlock()
}

// Notify publishes a raw notification under its method name.
func (d *Dispatcher) Notify(n Notification) {
	d.mu.RLock()
	handlers := d.byMethod[n.Method]
	d.mu.RUnlock()
	for _, fn := range handlers {
		fn(n)
	}
}

// Applied reports an action the store accepted, with the resulting state.
func (d *Dispatcher) Applied(action Action, prev, next AppState) {
	d.mu.RLock()
	onRoomEvent, onJoined, onLeft := d.onRoomEvent, d.onUserJoined, d.onUserLeft
	onState, onPhase := d.onStateChanged, d.onPhase
	d.mu.RUnlock()

	switch a := action.(type) {
	case AddRoomEvent:
		if onRoomEvent != nil {
			if _, ok := next.Rooms[a.Event.Room]; ok {
				onRoomEvent(a.Event)
			}
		}
	case UserJoined:
		if onJoined != nil {
			onJoined(a)
		}
	case UserLeft:
		if onLeft != nil {
			onLeft(a)
		}
	}
	if onPhase != nil && prev.Phase != next.Phase {
		onPhase(PhaseEvent{OldPhase: prev.Phase, NewPhase: next.Phase, Code: next.CloseCode})
	}
	if onState != nil {
		onState(next)
	}
}

func (d *Dispatcher) fireError(err error) {
	d.mu.RLock()
	fn := d.onError
	d.mu.RUnlock()
	if fn != nil && err != nil {
		fn(err)
	}
}
