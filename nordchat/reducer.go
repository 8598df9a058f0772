package nordchat

import (
	"fmt"
	"sort"
)

// RoomState mirrors one room the authenticated user belongs to. Values
// reachable from a published RoomState are never modified; the reducer
// copies whatever it changes.
type RoomState struct {
	Members  map[string]struct{}
	Events   []RoomEvent
	LastRead int64
}

// Unread counts events newer than the read marker.
func (r RoomState) Unread() int {
	n := 0
	for _, ev := range r.Events {
		if ev.TS > r.LastRead {
			n++
		}
	}
	return n
}

// HasMember reports whether user is in the room.
func (r RoomState) HasMember(user string) bool {
	_, ok := r.Members[user]
	return ok
}

// MemberList returns the members sorted by name.
func (r RoomState) MemberList() []string {
	out := make([]string, 0, len(r.Members))
	for m := range r.Members {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// LatestTS returns the timestamp of the newest event, if any.
func (r RoomState) LatestTS() (int64, bool) {
	if len(r.Events) == 0 {
		return 0, false
	}
	return r.Events[len(r.Events)-1].TS, true
}

// AppState is the process-wide snapshot. It is replaced wholesale on each
// transition and never edited in place.
type AppState struct {
	Phase           ConnectionPhase
	CloseCode       int
	LoginInProgress bool
	User            string
	Rooms           map[string]RoomState
	Selected        string
	Session         *Session
}

// InitialState returns the snapshot installed by Init.
func InitialState() AppState {
	return AppState{Phase: PhaseClosed, Rooms: map[string]RoomState{}}
}

// Room looks up a room by name.
func (s AppState) Room(name string) (RoomState, bool) {
	r, ok := s.Rooms[name]
	return r, ok
}

// RoomNames returns joined room names sorted.
func (s AppState) RoomNames() []string {
	out := make([]string, 0, len(s.Rooms))
	for name := range s.Rooms {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// TotalUnread sums Unread over all rooms.
func (s AppState) TotalUnread() int {
	n := 0
	for _, r := range s.Rooms {
		n += r.Unread()
	}
	return n
}

// Contacts returns the peers of all joined contact rooms of self, sorted.
func (s AppState) Contacts(self string) []string {
	var out []string
	for name := range s.Rooms {
		if peer, ok := ContactPeer(name, self); ok {
			out = append(out, peer)
		}
	}
	sort.Strings(out)
	return out
}

// Reduce applies action to state and returns the next snapshot. It never
// modifies state. An action outside the defined set returns an
// ErrorUnknownAction error together with the unchanged state.
func Reduce(state AppState, action Action) (AppState, error) {
	switch a := action.(type) {
	case Init:
		return InitialState(), nil

	case StartLogin:
		state.LoginInProgress = true
		return state, nil

	case StopLogin:
		state.LoginInProgress = false
		return state, nil

	case SetClient:
		state.Session = a.Session
		return state, nil

	case SetAuthData:
		state.User = a.User
		return state, nil

	case SetConnectionState:
		state.Phase = a.Phase
		state.CloseCode = a.Code
		return state, nil

	case UserJoined:
		room, ok := state.Rooms[a.Room]
		if !ok {
			room = RoomState{}
		}
		room.Members = withMember(room.Members, a.User)
		if a.User == state.User && a.LastRead > room.LastRead {
			room.LastRead = a.LastRead
		}
		state.Rooms = withRoom(state.Rooms, a.Room, room)
		return state, nil

	case UserLeft:
		room, ok := state.Rooms[a.Room]
		if !ok {
			return state, nil
		}
		if a.User == state.User {
			state.Rooms = withoutRoom(state.Rooms, a.Room)
			return state, nil
		}
		if _, member := room.Members[a.User]; !member {
			return state, nil
		}
		room.Members = withoutMember(room.Members, a.User)
		state.Rooms = withRoom(state.Rooms, a.Room, room)
		return state, nil

	case AddRoomEvent:
		room, ok := state.Rooms[a.Event.Room]
		if !ok {
			return state, nil
		}
		events := make([]RoomEvent, len(room.Events), len(room.Events)+1)
		copy(events, room.Events)
		room.Events = append(events, a.Event)
		state.Rooms = withRoom(state.Rooms, a.Event.Room, room)
		return state, nil

	case SetLastRead:
		room, ok := state.Rooms[a.Room]
		if !ok || a.LastRead <= room.LastRead {
			return state, nil
		}
		room.LastRead = a.LastRead
		state.Rooms = withRoom(state.Rooms, a.Room, room)
		return state, nil

	case SelectRoom:
		state.Selected = a.Room
		return state, nil

	default:
		return state, NewError(ErrorUnknownAction, fmt.Sprintf("unknown action %T", action))
	}
}

func withRoom(rooms map[string]RoomState, name string, room RoomState) map[string]RoomState {
	out := make(map[string]RoomState, len(rooms)+1)
	for k, v := range rooms {
		out[k] = v
	}
	out[name] = room
	return out
}

func withoutRoom(rooms map[string]RoomState, name string) map[string]RoomState {
	out := make(map[string]RoomState, len(rooms))
	for k, v := range rooms {
		if k != name {
			out[k] = v
		}
	}
	return out
}

func withMember(members map[string]struct{}, user string) map[string]struct{} {
	out := make(map[string]struct{}, len(members)+1)
	for m := range members {
		out[m] = struct{}{}
	}
	out[user] = struct{}{}
	return out
}

func withoutMember(members map[string]struct{}, user string) map[string]struct{} {
	out := make(map[string]struct{}, len(members))
	for m := range members {
		if m != user {
			out[m] = struct{}{}
		}
	}
	return out
}
