package nordchat

import (
	"sort"
	"strings"
)

const contactPrefix = "!"

// ContactRoom names the two-party room shared by a and b. The name does
// not depend on argument order.
func ContactRoom(a, b string) string {
	names := []string{a, b}
	sort.Strings(names)
	return contactPrefix + strings.Join(names, contactPrefix)
}

// IsContactRoom reports whether room is a contact room name.
func IsContactRoom(room string) bool {
	return strings.HasPrefix(room, contactPrefix)
}

// ContactPeer returns the participant of a contact room other than self.
func ContactPeer(room, self string) (string, bool) {
	if !IsContactRoom(room) {
		return "", false
	}
	parts := strings.Split(strings.TrimPrefix(room, contactPrefix), contactPrefix)
	if len(parts) != 2 {
		return "", false
	}
	switch self {
	case parts[0]:
		return parts[1], true
	case parts[1]:
		return parts[0], true
	default:
		return "", false
	}
}
