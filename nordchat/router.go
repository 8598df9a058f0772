package nordchat

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Classify decodes one inbound message and decides whether it is a
// notification or a response. It never blocks and has no side effects;
// anything it cannot place comes back as an ErrorProtocol error.
func Classify(data []byte) (Frame, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Frame{}, WrapError(ErrorProtocol, "malformed frame", err)
	}

	var version string
	if raw, ok := fields["jsonrpc"]; !ok || json.Unmarshal(raw, &version) != nil || version != ProtocolVersion {
		return Frame{}, NewError(ErrorProtocol, fmt.Sprintf("unsupported jsonrpc version %s", string(fields["jsonrpc"])))
	}

	var method string
	if raw, ok := fields["method"]; ok {
		if err := json.Unmarshal(raw, &method); err != nil {
			return Frame{}, WrapError(ErrorProtocol, "method is not a string", err)
		}
	}
	params, hasParams := present(fields, "params")
	if method != "" && hasParams {
		return Frame{Kind: FrameNotification, Notification: Notification{Method: method, Params: params}}, nil
	}

	rawID, hasID := present(fields, "id")
	result, hasResult := fields["result"]
	errObj, hasError := present(fields, "error")
	if hasID && (hasResult || hasError) {
		var id int64
		if err := json.Unmarshal(rawID, &id); err != nil {
			return Frame{}, WrapError(ErrorProtocol, "response id is not an integer", err)
		}
		resp := Response{ID: id}
		if hasError {
			resp.Error = errObj
		} else {
			resp.Result = result
		}
		return Frame{Kind: FrameResponse, Response: resp}, nil
	}

	return Frame{}, NewError(ErrorProtocol, "frame is neither a response nor a notification")
}

// present reports a key that exists and is not JSON null.
func present(fields map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	raw, ok := fields[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, false
	}
	return raw, true
}

// NotificationAction translates a server push into the reducer action it
// stands for. Methods outside the consumed set yield ErrorProtocol.
func NotificationAction(n Notification) (Action, error) {
	switch n.Method {
	case NotifyJoinRoom:
		var p MembershipPayload
		if err := decodeParams(n, &p); err != nil {
			return nil, err
		}
		return UserJoined{User: p.User, Room: p.Room, LastRead: p.LastRead}, nil
	case NotifyLeaveRoom:
		var p MembershipPayload
		if err := decodeParams(n, &p); err != nil {
			return nil, err
		}
		return UserLeft{User: p.User, Room: p.Room}, nil
	case NotifyRoomEvent:
		var ev RoomEvent
		if err := decodeParams(n, &ev); err != nil {
			return nil, err
		}
		return AddRoomEvent{Event: ev}, nil
	case NotifyLastRead:
		var p LastReadPayload
		if err := decodeParams(n, &p); err != nil {
			return nil, err
		}
		return SetLastRead{Room: p.Room, LastRead: p.LastRead}, nil
	default:
		return nil, NewError(ErrorProtocol, fmt.Sprintf("unhandled notification %q", n.Method))
	}
}

func decodeParams(n Notification, v any) error {
	if err := UnmarshalData(n.Params, v); err != nil {
		return WrapError(ErrorProtocol, fmt.Sprintf("bad %s params", n.Method), err)
	}
	switch p := v.(type) {
	case *MembershipPayload:
		if p.User == "" || p.Room == "" {
			return NewError(ErrorProtocol, fmt.Sprintf("%s notification without user or room", n.Method))
		}
	case *LastReadPayload:
		if p.Room == "" {
			return NewError(ErrorProtocol, "lastRead notification without room")
		}
	}
	return nil
}
