package nordchat

import "encoding/json"

const (
	ProtocolVersion = "2.0"

	// Client-invoked methods.
	MethodLogin           = "login"
	MethodLogout          = "logout"
	MethodJoinRoom        = "joinRoom"
	MethodLeaveRoom       = "leaveRoom"
	MethodSendMessage     = "sendMessage"
	MethodSetRoomLastRead = "setRoomLastRead"
	MethodGetRooms        = "getRooms"
	MethodGetUsers        = "getUsers"

	// Server-pushed notifications. joinRoom and leaveRoom share their
	// names with the calls above.
	NotifyJoinRoom  = "joinRoom"
	NotifyLeaveRoom = "leaveRoom"
	NotifyRoomEvent = "roomEvent"
	NotifyLastRead  = "lastRead"
)

// Request is the envelope from client to server.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// Response settles one pending call.
type Response struct {
	ID     int64
	Result json.RawMessage
	Error  json.RawMessage
}

// Notification is a server push with no id.
type Notification struct {
	Method string
	Params json.RawMessage
}

// FrameKind classifies a decoded inbound frame.
type FrameKind int

const (
	FrameInvalid FrameKind = iota
	FrameResponse
	FrameNotification
)

func (k FrameKind) String() string {
	switch k {
	case FrameResponse:
		return "response"
	case FrameNotification:
		return "notification"
	default:
		return "invalid"
	}
}

// Frame is the result of classifying one inbound message. Exactly one of
// Response and Notification is meaningful, selected by Kind.
type Frame struct {
	Kind         FrameKind
	Response     Response
	Notification Notification
}

// MembershipPayload is carried by joinRoom and leaveRoom notifications.
type MembershipPayload struct {
	User     string `json:"user"`
	Room     string `json:"room"`
	LastRead int64  `json:"lastRead,omitempty"`
}

// LastReadPayload is used both by the lastRead notification and the
// setRoomLastRead call.
type LastReadPayload struct {
	Room     string `json:"room"`
	LastRead int64  `json:"lastRead"`
}

// SendMessagePayload sends a message to a room.
type SendMessagePayload struct {
	Room    string `json:"room"`
	Message string `json:"message"`
}

// UnmarshalData decodes RawMessage into target.
func UnmarshalData(data json.RawMessage, v any) error {
	return json.Unmarshal(data, v)
}
