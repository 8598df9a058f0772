package nordchat

// Action is one input to the reducer. The set is closed: only the types
// in this file implement it.
type Action interface {
	ActionName() string
	action()
}

// Init replaces the whole state with the initial snapshot.
type Init struct{}

// StartLogin marks a login call in flight.
type StartLogin struct{}

// StopLogin clears the login-in-flight flag.
type StopLogin struct{}

// SetClient attaches the active Session, or detaches it when nil.
type SetClient struct{ Session *Session }

// SetAuthData sets the authenticated user; empty means logged out.
type SetAuthData struct{ User string }

// SetConnectionState sets the connection phase and keeps the close code.
type SetConnectionState struct {
	Phase ConnectionPhase
	Code  int
}

// UserJoined records that User is now a member of Room.
type UserJoined struct {
	User     string
	Room     string
	LastRead int64
}

// UserLeft records that User left Room.
type UserLeft struct {
	User string
	Room string
}

// AddRoomEvent appends a server-delivered event to its room.
type AddRoomEvent struct{ Event RoomEvent }

// SetLastRead raises a room's read marker.
type SetLastRead struct {
	Room     string
	LastRead int64
}

// SelectRoom sets the selected room; empty clears the selection.
type SelectRoom struct{ Room string }

func (Init) ActionName() string               { return "init" }
func (StartLogin) ActionName() string         { return "startLogin" }
func (StopLogin) ActionName() string          { return "stopLogin" }
func (SetClient) ActionName() string          { return "setClient" }
func (SetAuthData) ActionName() string        { return "setAuthData" }
func (SetConnectionState) ActionName() string { return "setConnectionState" }
func (UserJoined) ActionName() string         { return "userJoined" }
func (UserLeft) ActionName() string           { return "userLeft" }
func (AddRoomEvent) ActionName() string       { return "addRoomEvent" }
func (SetLastRead) ActionName() string        { return "setLastRead" }
func (SelectRoom) ActionName() string         { return "selectRoom" }

func (Init) action()               {}
func (StartLogin) action()         {}
func (StopLogin) action()          {}
func (SetClient) action()          {}
func (SetAuthData) action()        {}
func (SetConnectionState) action() {}
func (UserJoined) action()         {}
func (UserLeft) action()           {}
func (AddRoomEvent) action()       {}
func (SetLastRead) action()        {}
func (SelectRoom) action()         {}
