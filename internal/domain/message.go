package domain

import (
	"strings"
	"time"
)

// Role is the author of a message. The set is closed.
type Role uint8

const (
	RoleUser Role = iota
	RoleAssistant
	RoleSystem
)

// String returns the wire name of the role.
func (r Role) String() string {
	switch r {
	case RoleAssistant:
		return "assistant"
	case RoleSystem:
		return "system"
	default:
		return "user"
	}
}

// RoleFromString maps a stored role name onto Role. Unknown names map to
// RoleUser.
func RoleFromString(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "assistant":
		return RoleAssistant
	case "system":
		return RoleSystem
	default:
		return RoleUser
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(b []byte) error {
	*r = RoleFromString(string(b))
	return nil
}

// Message is one unit of a conversation. Messages are appended, never edited.
type Message struct {
	ID        string    `json:"msgId" cbor:"1,keyasint"`
	SessionID string    `json:"sessionId" cbor:"2,keyasint"`
	Role      Role      `json:"role" cbor:"3,keyasint"`
	Content   string    `json:"content" cbor:"4,keyasint"`
	CreatedAt time.Time `json:"createdAt" cbor:"5,keyasint"`
}

// AllSystem reports whether msgs is non-empty and every message is a system
// message.
func AllSystem(msgs []Message) bool {
	if len(msgs) == 0 {
		return false
	}
	for _, m := range msgs {
		if m.Role != RoleSystem {
			return false
		}
	}
	return true
}
