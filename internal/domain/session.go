package domain

import "time"

// titleRunes bounds the title derived from a session's first message.
const titleRunes = 10

// Session tracks one conversation. The ID is supplied by the caller and keys
// both the agent cache and the memory store.
type Session struct {
	ID         string    `json:"sessionId"`
	UserID     string    `json:"userId"`
	Title      string    `json:"title"`
	Itinerary  string    `json:"structuredItinerary,omitempty"` // validated JSON; empty until one is extracted
	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// TitleFrom derives a session title from the first user message: its first
// ten characters.
func TitleFrom(firstMessage string) string {
	r := []rune(firstMessage)
	if len(r) > titleRunes {
		r = r[:titleRunes]
	}
	return string(r)
}

// DefaultUserID is used when a caller does not identify the user.
const DefaultUserID = "default_user"
